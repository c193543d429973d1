package systemd

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/journal"

	"github.com/ngenohkevin/hivedeck-monitor/internal/alerts"
)

// JournalNotifier writes alerts to the systemd journal with structured
// fields so they can be filtered with journalctl MONITOR_METRIC=cpu.
type JournalNotifier struct {
	send func(message string, priority journal.Priority, vars map[string]string) error
}

// NewJournalNotifier returns a notifier, or nil when no journal socket is
// reachable on this host.
func NewJournalNotifier() *JournalNotifier {
	if !journal.Enabled() {
		return nil
	}
	return &JournalNotifier{send: journal.Send}
}

// Notify sends one alert to the journal
func (n *JournalNotifier) Notify(a alerts.Alert) error {
	vars := map[string]string{
		"MONITOR_ALERT_ID":  a.ID,
		"MONITOR_METRIC":    string(a.Metric),
		"MONITOR_LEVEL":     string(a.Level),
		"MONITOR_VALUE":     fmt.Sprintf("%.1f", a.Value),
		"MONITOR_THRESHOLD": fmt.Sprintf("%.1f", a.Threshold),
		"SYSLOG_IDENTIFIER": "resource-monitor",
	}
	return n.send(a.Title+": "+a.Message, priority(a.Level), vars)
}

func priority(level alerts.Level) journal.Priority {
	if level == alerts.LevelCritical {
		return journal.PriCrit
	}
	return journal.PriWarning
}
