package systemd

import (
	"context"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngenohkevin/hivedeck-monitor/internal/alerts"
)

func TestJournalNotifier(t *testing.T) {
	var (
		gotMsg  string
		gotPri  journal.Priority
		gotVars map[string]string
	)
	n := &JournalNotifier{send: func(msg string, p journal.Priority, vars map[string]string) error {
		gotMsg, gotPri, gotVars = msg, p, vars
		return nil
	}}

	err := n.Notify(alerts.Alert{
		ID:        "a1",
		Metric:    alerts.MetricDisk,
		Value:     97.4,
		Threshold: 95,
		Level:     alerts.LevelCritical,
		Title:     "Low Disk Space",
		Message:   "Disk usage is 97.4%",
	})
	require.NoError(t, err)

	assert.Equal(t, "Low Disk Space: Disk usage is 97.4%", gotMsg)
	assert.Equal(t, journal.PriCrit, gotPri)
	assert.Equal(t, "disk", gotVars["MONITOR_METRIC"])
	assert.Equal(t, "97.4", gotVars["MONITOR_VALUE"])
	assert.Equal(t, "95.0", gotVars["MONITOR_THRESHOLD"])
}

func TestPriority(t *testing.T) {
	assert.Equal(t, journal.PriWarning, priority(alerts.LevelWarning))
	assert.Equal(t, journal.PriCrit, priority(alerts.LevelCritical))
}

func TestNotifyOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	Ready()
	Stopping()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// returns immediately when no watchdog is configured
	Watchdog(ctx, nil)
}
