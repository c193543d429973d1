package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/ngenohkevin/hivedeck-monitor/config"
	"github.com/ngenohkevin/hivedeck-monitor/internal/alerts"
	"github.com/ngenohkevin/hivedeck-monitor/internal/logging"
	"github.com/ngenohkevin/hivedeck-monitor/internal/monitor"
	"github.com/ngenohkevin/hivedeck-monitor/internal/safego"
	"github.com/ngenohkevin/hivedeck-monitor/internal/server"
	"github.com/ngenohkevin/hivedeck-monitor/internal/system"
	"github.com/ngenohkevin/hivedeck-monitor/internal/systemd"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	defer logging.Sync()

	// Load configuration
	path := config.DefaultPath()
	store, err := config.OpenStore(path)
	if err != nil {
		logging.Error("failed to load config %s: %v", path, err)
		return 1
	}
	cfg := store.Get()
	logging.SetLevel(cfg.LogLevel)
	store.OnChange(func(prev, next *config.Config) {
		if prev.LogLevel != next.LogLevel {
			logging.SetLevel(next.LogLevel)
		}
	})

	engine := alerts.NewEngine()
	engine.Register(alerts.LogNotifier{})
	if jn := systemd.NewJournalNotifier(); jn != nil {
		engine.Register(alerts.NotifierFunc(func(a alerts.Alert) error {
			if !store.Get().ShowNotifications {
				return nil
			}
			return jn.Notify(a)
		}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon := monitor.New(store, system.NewCollector(), engine)

	safego.Go(func() {
		if err := config.Watch(ctx, store); err != nil {
			logging.Warn("config watcher stopped: %v", err)
		}
	})

	serverDone := make(chan struct{})
	if cfg.Server.Enabled {
		srv := server.New(store, mon)
		safego.Go(func() {
			defer close(serverDone)
			if err := srv.Run(ctx); err != nil {
				logging.Error("dashboard API: %v", err)
			}
		})
	} else {
		close(serverDone)
	}

	var lastTicks uint64
	safego.Go(func() {
		systemd.Watchdog(ctx, func() bool {
			ticks := mon.Status().Ticks
			progressed := ticks != lastTicks
			lastTicks = ticks
			return progressed
		})
	})

	systemd.Ready()
	logging.Info("resource monitor started, config %s", path)

	if err := mon.Run(ctx); err != nil {
		logging.Error("monitor stopped: %v", err)
	}
	systemd.Stopping()
	logging.Info("shutting down")

	<-serverDone

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := mon.Close(closeCtx); err != nil {
		logging.Warn("export queue not drained: %v", err)
		return 1
	}
	return 0
}
