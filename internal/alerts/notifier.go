package alerts

import "github.com/ngenohkevin/hivedeck-monitor/internal/logging"

// LogNotifier writes alerts to the process log
type LogNotifier struct{}

// Notify logs a at warning level
func (LogNotifier) Notify(a Alert) error {
	logging.Warn("alert [%s] %s: %s (threshold %.1f, %s)", a.Level, a.Title, a.Message, a.Threshold, a.Direction)
	return nil
}
