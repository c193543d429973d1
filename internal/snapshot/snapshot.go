// Package snapshot defines the point-in-time bundle of host metrics.
package snapshot

import (
	"time"

	"github.com/ngenohkevin/hivedeck-monitor/internal/process"
)

// Field names used as keys of Status.Unavailable
const (
	FieldCPU       = "cpu"
	FieldMemory    = "memory"
	FieldSwap      = "swap"
	FieldDiskUsage = "disk.usage"
	FieldDiskIO    = "disk.io"
	FieldNetwork   = "network"
	FieldBattery   = "battery"
	FieldProcesses = "processes"
)

// Memory holds physical or swap usage
type Memory struct {
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Percent float64 `json:"percent"`
}

// Disk holds filesystem usage and throughput in bytes per second
type Disk struct {
	Total     uint64  `json:"total"`
	Used      uint64  `json:"used"`
	Percent   float64 `json:"percent"`
	ReadRate  float64 `json:"read_rate"`
	WriteRate float64 `json:"write_rate"`
}

// Network holds throughput in bytes per second and cumulative totals
type Network struct {
	SentRate  float64 `json:"sent_rate"`
	RecvRate  float64 `json:"recv_rate"`
	TotalSent uint64  `json:"total_sent"`
	TotalRecv uint64  `json:"total_recv"`
}

// Battery holds charge state. TimeRemaining is in seconds; nil means unknown.
type Battery struct {
	Percent       float64 `json:"percent"`
	Plugged       bool    `json:"plugged"`
	TimeRemaining *int64  `json:"time_remaining"`
}

// Status marks readings that could not be taken this tick.
type Status struct {
	Degraded bool `json:"degraded"`
	// Unavailable maps a field name to a short reason such as "unavailable",
	// "permission_denied" or "timeout".
	Unavailable map[string]string `json:"unavailable,omitempty"`
	// DeniedProcesses counts processes skipped for lack of access.
	DeniedProcesses int `json:"denied_processes,omitempty"`
}

// Snapshot is one sample of every monitored metric
type Snapshot struct {
	Timestamp    time.Time      `json:"timestamp"`
	CPUOverall   float64        `json:"cpu_overall"`
	CPUPerCore   []float64      `json:"cpu_per_core"`
	Memory       Memory         `json:"memory"`
	Swap         Memory         `json:"swap"`
	Disk         Disk           `json:"disk"`
	Network      Network        `json:"network"`
	Battery      *Battery       `json:"battery"`
	TopProcesses []process.Info `json:"top_processes"`
	Status       Status         `json:"status"`
}

// MarkUnavailable records that field could not be read and flags the
// snapshot as degraded. A missing battery alone does not degrade it.
func (s *Snapshot) MarkUnavailable(field, reason string) {
	if s.Status.Unavailable == nil {
		s.Status.Unavailable = make(map[string]string)
	}
	s.Status.Unavailable[field] = reason
	if field != FieldBattery || reason != "unavailable" {
		s.Status.Degraded = true
	}
}

// Available reports whether field was read successfully
func (s *Snapshot) Available(field string) bool {
	_, missing := s.Status.Unavailable[field]
	return !missing
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	if s.CPUPerCore != nil {
		c.CPUPerCore = append([]float64(nil), s.CPUPerCore...)
	}
	if s.TopProcesses != nil {
		c.TopProcesses = append([]process.Info(nil), s.TopProcesses...)
	}
	if s.Battery != nil {
		b := *s.Battery
		if b.TimeRemaining != nil {
			tr := *b.TimeRemaining
			b.TimeRemaining = &tr
		}
		c.Battery = &b
	}
	if s.Status.Unavailable != nil {
		c.Status.Unavailable = make(map[string]string, len(s.Status.Unavailable))
		for k, v := range s.Status.Unavailable {
			c.Status.Unavailable[k] = v
		}
	}
	return &c
}
