package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
)

// envParser applies MONITOR_* overrides and collects malformed values.
type envParser struct {
	bad map[string]string
}

func (p *envParser) fail(key, msg string) {
	if p.bad == nil {
		p.bad = make(map[string]string)
	}
	p.bad[key] = msg
}

func (p *envParser) set(key, value string, dst any) {
	value = strings.TrimSpace(value)
	switch dst := dst.(type) {
	case *string:
		*dst = value
	case *int:
		v, err := strconv.Atoi(value)
		if err != nil {
			p.fail(key, "not an integer: "+value)
			return
		}
		*dst = v
	case *float64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			p.fail(key, "not a number: "+value)
			return
		}
		*dst = v
	case *bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			p.fail(key, "not a boolean: "+value)
			return
		}
		*dst = v
	case *[]string:
		var out []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
	}
}

// envBinding ties a variable to the Config field it overrides. field
// returns a pointer into c.
type envBinding struct {
	key   string
	field func(c *Config) any
}

var envBindings = []envBinding{
	{"MONITOR_UPDATE_INTERVAL", func(c *Config) any { return &c.UpdateInterval }},
	{"MONITOR_HISTORY_SIZE", func(c *Config) any { return &c.HistorySize }},
	{"MONITOR_THRESHOLD_CPU", func(c *Config) any { return &c.Thresholds.CPU }},
	{"MONITOR_THRESHOLD_MEMORY", func(c *Config) any { return &c.Thresholds.Memory }},
	{"MONITOR_THRESHOLD_DISK", func(c *Config) any { return &c.Thresholds.Disk }},
	{"MONITOR_THRESHOLD_BATTERY", func(c *Config) any { return &c.Thresholds.Battery }},
	{"MONITOR_ALERT_ENABLED", func(c *Config) any { return &c.AlertEnabled }},
	{"MONITOR_ALERT_COOLDOWN", func(c *Config) any { return &c.AlertCooldown }},
	{"MONITOR_PROCESS_LIMIT", func(c *Config) any { return &c.ProcessLimit }},
	{"MONITOR_PROCESS_SORT", func(c *Config) any { return &c.ProcessSort }},
	{"MONITOR_LOGGING_ENABLED", func(c *Config) any { return &c.LoggingEnabled }},
	{"MONITOR_LOG_FORMAT", func(c *Config) any { return &c.LogFormat }},
	{"MONITOR_LOG_DIR", func(c *Config) any { return &c.LogDir }},
	{"MONITOR_EXPORT_DIR", func(c *Config) any { return &c.ExportDir }},
	{"MONITOR_AUTO_EXPORT", func(c *Config) any { return &c.AutoExport }},
	{"MONITOR_EXPORT_INTERVAL", func(c *Config) any { return &c.ExportInterval }},
	{"MONITOR_DISK_PATH", func(c *Config) any { return &c.DiskPath }},
	{"MONITOR_LOG_LEVEL", func(c *Config) any { return &c.LogLevel }},
	{"MONITOR_SERVER_ENABLED", func(c *Config) any { return &c.Server.Enabled }},
	{"MONITOR_HOST", func(c *Config) any { return &c.Server.Host }},
	{"MONITOR_PORT", func(c *Config) any { return &c.Server.Port }},
	{"MONITOR_API_KEY", func(c *Config) any { return &c.Server.APIKey }},
	{"MONITOR_JWT_SECRET", func(c *Config) any { return &c.Server.JWTSecret }},
	{"MONITOR_RATE_LIMIT_RPS", func(c *Config) any { return &c.Server.RateLimitRPS }},
	{"MONITOR_ALLOWED_ORIGINS", func(c *Config) any { return &c.Server.AllowedOrigins }},
}

// activeEnv returns the bindings whose variable is set
func activeEnv() []envBinding {
	var out []envBinding
	for _, b := range envBindings {
		if os.Getenv(b.key) != "" {
			out = append(out, b)
		}
	}
	return out
}

func (c *Config) applyEnv() error {
	var p envParser
	for _, b := range activeEnv() {
		p.set(b.key, os.Getenv(b.key), b.field(c))
	}
	if len(p.bad) > 0 {
		return &ValidationError{Fields: p.bad}
	}
	return nil
}

// withoutEnv returns the copy of next written to the config file. Fields
// still holding their environment value get the file's value back, so
// variables such as MONITOR_API_KEY never end up on disk. A field the
// caller changed in this update is kept.
func withoutEnv(file, prev, next *Config) *Config {
	out := next.Clone()
	for _, b := range activeEnv() {
		changed := !reflect.DeepEqual(reflect.ValueOf(b.field(prev)).Elem().Interface(),
			reflect.ValueOf(b.field(next)).Elem().Interface())
		if changed {
			continue
		}
		reflect.ValueOf(b.field(out)).Elem().Set(reflect.ValueOf(b.field(file.Clone())).Elem())
	}
	return out
}
