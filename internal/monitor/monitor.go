// Package monitor drives the sampling loop and fans each snapshot out to
// alerting, logging and subscribers.
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ngenohkevin/hivedeck-monitor/config"
	"github.com/ngenohkevin/hivedeck-monitor/internal/alerts"
	"github.com/ngenohkevin/hivedeck-monitor/internal/export"
	"github.com/ngenohkevin/hivedeck-monitor/internal/history"
	"github.com/ngenohkevin/hivedeck-monitor/internal/logging"
	"github.com/ngenohkevin/hivedeck-monitor/internal/sampler"
	"github.com/ngenohkevin/hivedeck-monitor/internal/snapshot"
	"github.com/ngenohkevin/hivedeck-monitor/internal/system"
)

var (
	// ErrNoSnapshot is returned when nothing has been sampled yet.
	ErrNoSnapshot = errors.New("no snapshot taken yet")
	// ErrUnknownSeries is returned for a history series that does not exist.
	ErrUnknownSeries = errors.New("unknown history series")
)

// Status summarises the monitor for the dashboard
type Status struct {
	StartedAt  time.Time                   `json:"started_at"`
	Ticks      uint64                      `json:"ticks"`
	Interval   string                      `json:"interval"`
	Logging    bool                        `json:"logging"`
	AutoExport bool                        `json:"auto_export"`
	Last       *snapshot.Status            `json:"last,omitempty"`
	Worker     export.Stats                `json:"worker"`
	Cooldowns  map[alerts.Metric]time.Time `json:"cooldowns"`
}

// Option customises a Monitor
type Option func(*Monitor)

// WithClock replaces time.Now for sampling and export timing.
func WithClock(clock func() time.Time) Option {
	return func(m *Monitor) { m.clock = clock }
}

// Monitor owns one sampler and everything downstream of it.
type Monitor struct {
	store   *config.Store
	sampler *sampler.Sampler
	engine  *alerts.Engine
	worker  *export.Worker
	clock   func() time.Time

	startedAt time.Time
	ticks     atomic.Uint64
	rearm     chan struct{}

	mu         sync.RWMutex
	latest     *snapshot.Snapshot
	lastExport time.Time

	subMu   sync.Mutex
	subs    map[int]chan *snapshot.Snapshot
	nextSub int

	closeOnce sync.Once
}

// New wires a monitor over source using the configuration in store and
// starts its export worker. Call Close to stop it.
func New(store *config.Store, source system.Source, engine *alerts.Engine, opts ...Option) *Monitor {
	cfg := store.Get()

	m := &Monitor{
		store:  store,
		engine: engine,
		clock:  time.Now,
		rearm:  make(chan struct{}, 1),
		subs:   make(map[int]chan *snapshot.Snapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.startedAt = m.clock()

	m.sampler = sampler.New(source, sampler.Options{
		HistorySize: cfg.HistorySize,
		ReadTimeout: cfg.ReadTimeout(),
		DiskPath:    cfg.DiskPath,
		Clock:       m.clock,
	})

	format := export.Format(cfg.LogFormat)
	m.worker = export.NewWorker(
		export.NewRotatingLog(cfg.LogDir, format, cfg.LogMaxEntries),
		cfg.ExportDir,
		cfg.ExportQueueSize,
	)
	m.worker.Start()

	store.OnChange(m.configChanged)
	return m
}

func (m *Monitor) configChanged(prev, next *config.Config) {
	if prev.UpdateInterval != next.UpdateInterval {
		select {
		case m.rearm <- struct{}{}:
		default:
		}
	}
	if prev.LoggingEnabled && !next.LoggingEnabled {
		m.worker.EnqueueCloseLog()
		logging.Info("monitor: continuous logging stopped")
	}
	if !prev.LoggingEnabled && next.LoggingEnabled {
		logging.Info("monitor: continuous logging started in %s", next.LogDir)
	}
	if prev.HistorySize != next.HistorySize || prev.LogDir != next.LogDir ||
		prev.LogFormat != next.LogFormat || prev.ExportDir != next.ExportDir {
		logging.Warn("monitor: history and output location changes take effect after restart")
	}
}

// Step samples once and hands the snapshot to alerting, logging, auto
// export and subscribers. It returns the new snapshot.
func (m *Monitor) Step(ctx context.Context) *snapshot.Snapshot {
	cfg := m.store.Get()

	snap := m.sampler.Tick(ctx, sampler.Settings{
		ProcessLimit: cfg.ProcessLimit,
		ProcessSort:  cfg.SortKey(),
		ReadTimeout:  cfg.ReadTimeout(),
		DiskPath:     cfg.DiskPath,
	})
	m.ticks.Add(1)

	m.mu.Lock()
	m.latest = snap
	exportDue := false
	if cfg.AutoExport {
		if m.lastExport.IsZero() {
			m.lastExport = snap.Timestamp
		} else if snap.Timestamp.Sub(m.lastExport) >= cfg.ExportEvery() {
			m.lastExport = snap.Timestamp
			exportDue = true
		}
	} else {
		m.lastExport = time.Time{}
	}
	m.mu.Unlock()

	fired := m.engine.Evaluate(snap, cfg.AlertPolicy(), snap.Timestamp)
	m.engine.Dispatch(fired)

	if cfg.LoggingEnabled {
		m.worker.EnqueueLog(snap)
	}
	if exportDue {
		m.worker.EnqueueExport(snap)
	}

	m.publish(snap)
	return snap
}

// Run samples immediately and then once per update interval until ctx is
// done. Interval changes apply from the next tick. A slow tick delays the
// next one instead of queueing extra ticks.
func (m *Monitor) Run(ctx context.Context) error {
	interval := m.store.Get().Interval()
	logging.Info("monitor: sampling every %s", interval)

	m.Step(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Step(ctx)
		case <-m.rearm:
			if next := m.store.Get().Interval(); next != interval {
				interval = next
				ticker.Reset(interval)
				logging.Info("monitor: sampling interval changed to %s", interval)
			}
		}
	}
}

// Close drains the export worker and closes subscriber channels.
func (m *Monitor) Close(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		err = m.worker.Stop(ctx)

		m.subMu.Lock()
		for id, ch := range m.subs {
			close(ch)
			delete(m.subs, id)
		}
		m.subMu.Unlock()
	})
	return err
}

// Latest returns a copy of the newest snapshot, or nil before the first tick.
func (m *Monitor) Latest() *snapshot.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return nil
	}
	return m.latest.Clone()
}

// Series lists the history series names
func (m *Monitor) Series() []string {
	return append([]string(nil), sampler.Series...)
}

// Recent returns up to n newest points of series, oldest first.
func (m *Monitor) Recent(series string, n int) ([]history.Point, error) {
	for _, s := range sampler.Series {
		if s == series {
			return m.sampler.Recent(series, n), nil
		}
	}
	return nil, ErrUnknownSeries
}

// Alerts returns the recently fired alerts, oldest first.
func (m *Monitor) Alerts() []alerts.Alert {
	return m.engine.Recent()
}

// ResetCooldown clears one metric's cooldown, or all when metric is empty.
func (m *Monitor) ResetCooldown(metric alerts.Metric) {
	m.engine.ResetCooldown(metric)
}

// Status reports loop and worker state
func (m *Monitor) Status() Status {
	cfg := m.store.Get()

	st := Status{
		StartedAt:  m.startedAt,
		Ticks:      m.ticks.Load(),
		Interval:   cfg.Interval().String(),
		Logging:    cfg.LoggingEnabled,
		AutoExport: cfg.AutoExport,
		Worker:     m.worker.Stats(),
		Cooldowns:  m.engine.LastFired(),
	}
	if latest := m.Latest(); latest != nil {
		st.Last = &latest.Status
	}
	return st
}

// ExportSnapshot writes the newest snapshot to the export directory and
// returns the file path.
func (m *Monitor) ExportSnapshot() (string, error) {
	latest := m.Latest()
	if latest == nil {
		return "", ErrNoSnapshot
	}
	path, err := export.WriteSnapshot(latest, m.store.Get().ExportDir)
	if err != nil {
		return "", err
	}
	logging.Info("monitor: exported snapshot to %s", path)
	return path, nil
}

// ExportHistory writes every history series as CSV and returns the path.
func (m *Monitor) ExportHistory() (string, error) {
	path, err := export.WriteHistoryCSV(m.sampler.History().Snapshot(), m.store.Get().ExportDir, m.clock())
	if err != nil {
		return "", err
	}
	logging.Info("monitor: exported history to %s", path)
	return path, nil
}

// SetLogging turns continuous logging on or off and persists the choice.
// Turning it off closes the current log file once queued records are
// written.
func (m *Monitor) SetLogging(enabled bool) error {
	_, err := m.store.Update(func(c *config.Config) { c.LoggingEnabled = enabled })
	return err
}

// Logging reports whether continuous logging is on
func (m *Monitor) Logging() bool {
	return m.store.Get().LoggingEnabled
}
