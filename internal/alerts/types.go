package alerts

import "time"

// Metric names an alertable reading
type Metric string

const (
	MetricCPU     Metric = "cpu"
	MetricMemory  Metric = "memory"
	MetricDisk    Metric = "disk"
	MetricBattery Metric = "battery"
)

// Metrics lists every alertable metric in evaluation order.
var Metrics = []Metric{MetricCPU, MetricMemory, MetricDisk, MetricBattery}

// Direction tells which side of the threshold triggers an alert
type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

// Level is the severity of an alert
type Level string

const (
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// criticalPercent is the usage at which cpu and memory alerts escalate.
const criticalPercent = 95.0

// Thresholds holds the trigger value per metric, in percent
type Thresholds struct {
	CPU     float64 `json:"cpu" yaml:"cpu" validate:"gte=0,lte=100"`
	Memory  float64 `json:"memory" yaml:"memory" validate:"gte=0,lte=100"`
	Disk    float64 `json:"disk" yaml:"disk" validate:"gte=0,lte=100"`
	Battery float64 `json:"battery" yaml:"battery" validate:"gte=0,lte=100"`
}

// DefaultThresholds returns the stock trigger values
func DefaultThresholds() Thresholds {
	return Thresholds{CPU: 85, Memory: 90, Disk: 95, Battery: 15}
}

// Get returns the threshold for m
func (t Thresholds) Get(m Metric) float64 {
	switch m {
	case MetricCPU:
		return t.CPU
	case MetricMemory:
		return t.Memory
	case MetricDisk:
		return t.Disk
	case MetricBattery:
		return t.Battery
	}
	return 0
}

// Policy is the alert configuration in effect for one evaluation
type Policy struct {
	Thresholds Thresholds
	Enabled    bool
	Cooldown   time.Duration
}

// Alert is one fired threshold rule
type Alert struct {
	ID        string    `json:"id"`
	Metric    Metric    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Direction Direction `json:"direction"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	FiredAt   time.Time `json:"fired_at"`
}
