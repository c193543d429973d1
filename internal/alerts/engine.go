// Package alerts evaluates snapshots against thresholds with a per-metric cooldown.
package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ngenohkevin/hivedeck-monitor/internal/logging"
	"github.com/ngenohkevin/hivedeck-monitor/internal/safego"
	"github.com/ngenohkevin/hivedeck-monitor/internal/snapshot"
)

// DefaultRecentSize is the number of fired alerts kept for display.
const DefaultRecentSize = 50

// Notifier receives every fired alert
type Notifier interface {
	Notify(a Alert) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(a Alert) error

// Notify calls f(a)
func (f NotifierFunc) Notify(a Alert) error {
	return f(a)
}

// Engine holds the cooldown state and the notifier list.
type Engine struct {
	mu        sync.Mutex
	lastFired map[Metric]time.Time
	recent    []Alert
	maxRecent int
	notifiers []Notifier
}

// NewEngine creates an engine with empty cooldown state
func NewEngine() *Engine {
	return &Engine{
		lastFired: make(map[Metric]time.Time),
		maxRecent: DefaultRecentSize,
	}
}

// Register adds a notifier
func (e *Engine) Register(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifiers = append(e.notifiers, n)
}

// Evaluate returns the alerts snap triggers at now under policy and starts a
// cooldown for each. With alerting disabled nothing fires and the existing
// cooldowns are left untouched.
func (e *Engine) Evaluate(snap *snapshot.Snapshot, policy Policy, now time.Time) []Alert {
	if !policy.Enabled || snap == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var fired []Alert
	for _, m := range Metrics {
		value, ok := reading(snap, m)
		if !ok {
			continue
		}
		threshold := policy.Thresholds.Get(m)
		if !breached(m, value, threshold) {
			continue
		}
		if last, seen := e.lastFired[m]; seen && now.Sub(last) < policy.Cooldown {
			continue
		}

		e.lastFired[m] = now
		fired = append(fired, build(m, value, threshold, now))
	}

	e.remember(fired)
	return fired
}

// Dispatch hands alerts to every notifier. A notifier that fails or panics
// is logged and does not stop the others.
func (e *Engine) Dispatch(alerts []Alert) {
	if len(alerts) == 0 {
		return
	}

	e.mu.Lock()
	notifiers := append([]Notifier(nil), e.notifiers...)
	e.mu.Unlock()

	for _, a := range alerts {
		for _, n := range notifiers {
			safego.Run(func() {
				if err := n.Notify(a); err != nil {
					logging.Warn("alerts: notifier failed for %s: %v", a.Metric, err)
				}
			})
		}
	}
}

// ResetCooldown clears the cooldown of one metric, or of all when m is empty.
func (e *Engine) ResetCooldown(m Metric) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if m == "" {
		e.lastFired = make(map[Metric]time.Time)
		return
	}
	delete(e.lastFired, m)
}

// LastFired returns a copy of the cooldown state
func (e *Engine) LastFired() map[Metric]time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[Metric]time.Time, len(e.lastFired))
	for m, t := range e.lastFired {
		out[m] = t
	}
	return out
}

// Recent returns the most recently fired alerts, oldest first.
func (e *Engine) Recent() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Alert{}, e.recent...)
}

func (e *Engine) remember(fired []Alert) {
	e.recent = append(e.recent, fired...)
	if over := len(e.recent) - e.maxRecent; over > 0 {
		e.recent = append([]Alert(nil), e.recent[over:]...)
	}
}

// reading extracts the value of m, reporting false when it was not sampled.
// Battery only counts while running on battery power.
func reading(snap *snapshot.Snapshot, m Metric) (float64, bool) {
	switch m {
	case MetricCPU:
		return snap.CPUOverall, snap.Available(snapshot.FieldCPU)
	case MetricMemory:
		return snap.Memory.Percent, snap.Available(snapshot.FieldMemory)
	case MetricDisk:
		return snap.Disk.Percent, snap.Available(snapshot.FieldDiskUsage)
	case MetricBattery:
		if snap.Battery == nil || snap.Battery.Plugged {
			return 0, false
		}
		return snap.Battery.Percent, true
	}
	return 0, false
}

func breached(m Metric, value, threshold float64) bool {
	if m == MetricBattery {
		return value < threshold
	}
	return value > threshold
}

func build(m Metric, value, threshold float64, now time.Time) Alert {
	a := Alert{
		ID:        uuid.NewString(),
		Metric:    m,
		Value:     value,
		Threshold: threshold,
		Direction: Above,
		FiredAt:   now,
	}

	switch m {
	case MetricCPU:
		a.Level = levelFor(value)
		a.Title = "High CPU Usage"
		a.Message = fmt.Sprintf("CPU usage is at %.1f%%", value)
	case MetricMemory:
		a.Level = levelFor(value)
		a.Title = "High Memory Usage"
		a.Message = fmt.Sprintf("Memory usage is at %.1f%%", value)
	case MetricDisk:
		a.Level = LevelCritical
		a.Title = "Low Disk Space"
		a.Message = fmt.Sprintf("Disk usage is at %.1f%%", value)
	case MetricBattery:
		a.Direction = Below
		a.Level = LevelWarning
		a.Title = "Low Battery"
		a.Message = fmt.Sprintf("Battery is at %.0f%%", value)
	}
	return a
}

func levelFor(value float64) Level {
	if value < criticalPercent {
		return LevelWarning
	}
	return LevelCritical
}
