package alerts

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngenohkevin/hivedeck-monitor/internal/snapshot"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func policy() Policy {
	return Policy{Thresholds: DefaultThresholds(), Enabled: true, Cooldown: 300 * time.Second}
}

func snap(cpu, memory, disk float64) *snapshot.Snapshot {
	return &snapshot.Snapshot{CPUOverall: cpu, Memory: snapshot.Memory{Percent: memory}, Disk: snapshot.Disk{Percent: disk}}
}

func metrics(alerts []Alert) []Metric {
	out := make([]Metric, len(alerts))
	for i, a := range alerts {
		out[i] = a.Metric
	}
	return out
}

func TestEvaluate_MemoryCooldownScenario(t *testing.T) {
	e := NewEngine()
	p := policy()
	p.Thresholds.Memory = 90

	fired := e.Evaluate(snap(0, 95, 0), p, t0)
	require.Len(t, fired, 1)
	assert.Equal(t, MetricMemory, fired[0].Metric)
	assert.Equal(t, 95.0, fired[0].Value)
	assert.Equal(t, 90.0, fired[0].Threshold)
	assert.Equal(t, Above, fired[0].Direction)
	assert.Equal(t, LevelCritical, fired[0].Level)
	assert.Equal(t, "Memory usage is at 95.0%", fired[0].Message)
	assert.NotEmpty(t, fired[0].ID)

	assert.Empty(t, e.Evaluate(snap(0, 95, 0), p, t0.Add(100*time.Second)))
	assert.Len(t, e.Evaluate(snap(0, 95, 0), p, t0.Add(301*time.Second)), 1)
}

func TestEvaluate_CooldownBoundaryIsInclusive(t *testing.T) {
	e := NewEngine()
	p := policy()

	require.Len(t, e.Evaluate(snap(90, 0, 0), p, t0), 1)
	assert.Empty(t, e.Evaluate(snap(90, 0, 0), p, t0.Add(299*time.Second)))
	assert.Len(t, e.Evaluate(snap(90, 0, 0), p, t0.Add(300*time.Second)), 1)
}

func TestEvaluate_Battery(t *testing.T) {
	p := policy()
	p.Thresholds.Battery = 15

	e := NewEngine()
	s := &snapshot.Snapshot{Battery: &snapshot.Battery{Percent: 10, Plugged: false}}
	fired := e.Evaluate(s, p, t0)
	require.Len(t, fired, 1)
	assert.Equal(t, MetricBattery, fired[0].Metric)
	assert.Equal(t, Below, fired[0].Direction)
	assert.Equal(t, LevelWarning, fired[0].Level)
	assert.Equal(t, "Battery is at 10%", fired[0].Message)

	e = NewEngine()
	s.Battery.Plugged = true
	assert.Empty(t, e.Evaluate(s, p, t0))

	e = NewEngine()
	assert.Empty(t, e.Evaluate(&snapshot.Snapshot{}, p, t0), "unknown battery never fires")
}

func TestEvaluate_AboveIsStrict(t *testing.T) {
	e := NewEngine()
	assert.Empty(t, e.Evaluate(snap(85, 90, 95), policy(), t0))
}

func TestEvaluate_MultipleMetricsIndependent(t *testing.T) {
	e := NewEngine()
	p := policy()

	fired := e.Evaluate(snap(99, 99, 99), p, t0)
	assert.Equal(t, []Metric{MetricCPU, MetricMemory, MetricDisk}, metrics(fired))

	// resetting one metric does not touch the others
	e.ResetCooldown(MetricCPU)
	fired = e.Evaluate(snap(99, 99, 99), p, t0.Add(time.Second))
	assert.Equal(t, []Metric{MetricCPU}, metrics(fired))
}

func TestEvaluate_DisabledKeepsCooldown(t *testing.T) {
	e := NewEngine()
	p := policy()

	require.Len(t, e.Evaluate(snap(99, 0, 0), p, t0), 1)

	p.Enabled = false
	assert.Empty(t, e.Evaluate(snap(99, 0, 0), p, t0.Add(10*time.Second)))
	assert.Equal(t, t0, e.LastFired()[MetricCPU])

	p.Enabled = true
	assert.Empty(t, e.Evaluate(snap(99, 0, 0), p, t0.Add(20*time.Second)))
	assert.Len(t, e.Evaluate(snap(99, 0, 0), p, t0.Add(300*time.Second)), 1)
}

func TestEvaluate_SkipsUnavailableReadings(t *testing.T) {
	e := NewEngine()
	s := snap(99, 99, 99)
	s.MarkUnavailable(snapshot.FieldCPU, "timeout")
	s.MarkUnavailable(snapshot.FieldDiskUsage, "error")

	assert.Equal(t, []Metric{MetricMemory}, metrics(e.Evaluate(s, policy(), t0)))
}

func TestEvaluate_NeverTwiceWithinCooldown(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	e := NewEngine()
	p := policy()
	p.Cooldown = 30 * time.Second

	last := map[Metric]time.Time{}
	now := t0
	for i := 0; i < 2000; i++ {
		now = now.Add(time.Duration(rng.Intn(5000)) * time.Millisecond)
		s := snap(rng.Float64()*100, rng.Float64()*100, rng.Float64()*100)
		for _, a := range e.Evaluate(s, p, now) {
			if prev, ok := last[a.Metric]; ok {
				assert.GreaterOrEqual(t, a.FiredAt.Sub(prev), p.Cooldown)
			}
			last[a.Metric] = a.FiredAt
		}
	}
	assert.NotEmpty(t, last)
}

func TestLevels(t *testing.T) {
	e := NewEngine()
	fired := e.Evaluate(snap(90, 0, 96), policy(), t0)
	require.Len(t, fired, 2)
	assert.Equal(t, LevelWarning, fired[0].Level)
	assert.Equal(t, "High CPU Usage", fired[0].Title)
	assert.Equal(t, LevelCritical, fired[1].Level)
	assert.Equal(t, "Low Disk Space", fired[1].Title)
}

func TestResetCooldown_All(t *testing.T) {
	e := NewEngine()
	e.Evaluate(snap(99, 99, 0), policy(), t0)
	require.Len(t, e.LastFired(), 2)

	e.ResetCooldown("")
	assert.Empty(t, e.LastFired())
	assert.Len(t, e.Evaluate(snap(99, 99, 0), policy(), t0.Add(time.Second)), 2)
}

func TestRecent_Bounded(t *testing.T) {
	e := NewEngine()
	e.maxRecent = 3
	p := policy()
	p.Cooldown = 0

	for i := 0; i < 5; i++ {
		e.Evaluate(snap(99, 0, 0), p, t0.Add(time.Duration(i)*time.Second))
	}

	recent := e.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, t0.Add(2*time.Second), recent[0].FiredAt)
	assert.Equal(t, t0.Add(4*time.Second), recent[2].FiredAt)
}

func TestDispatch(t *testing.T) {
	e := NewEngine()
	var got []Metric

	e.Register(NotifierFunc(func(a Alert) error {
		panic("broken notifier")
	}))
	e.Register(NotifierFunc(func(a Alert) error {
		return errors.New("fails")
	}))
	e.Register(NotifierFunc(func(a Alert) error {
		got = append(got, a.Metric)
		return nil
	}))
	e.Register(LogNotifier{})

	fired := e.Evaluate(snap(99, 99, 0), policy(), t0)
	assert.NotPanics(t, func() { e.Dispatch(fired) })
	assert.Equal(t, []Metric{MetricCPU, MetricMemory}, got)
}
