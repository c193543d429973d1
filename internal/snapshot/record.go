package snapshot

import (
	"strconv"
	"time"
)

// Columns is the fixed header of flattened log records.
var Columns = []string{
	"timestamp",
	"cpu_percent",
	"memory_percent",
	"memory_used",
	"memory_total",
	"swap_percent",
	"disk_percent",
	"disk_read_bps",
	"disk_write_bps",
	"network_upload_bps",
	"network_download_bps",
	"network_total_sent",
	"network_total_recv",
	"battery_percent",
	"battery_plugged",
	"battery_time_remaining",
	"degraded",
}

// Record is the flattened scalar form of a Snapshot used by the continuous log.
// Battery fields are nil when the battery is unknown.
type Record struct {
	Timestamp            time.Time `json:"timestamp"`
	CPUPercent           float64   `json:"cpu_percent"`
	MemoryPercent        float64   `json:"memory_percent"`
	MemoryUsed           uint64    `json:"memory_used"`
	MemoryTotal          uint64    `json:"memory_total"`
	SwapPercent          float64   `json:"swap_percent"`
	DiskPercent          float64   `json:"disk_percent"`
	DiskReadBPS          float64   `json:"disk_read_bps"`
	DiskWriteBPS         float64   `json:"disk_write_bps"`
	NetworkUploadBPS     float64   `json:"network_upload_bps"`
	NetworkDownloadBPS   float64   `json:"network_download_bps"`
	NetworkTotalSent     uint64    `json:"network_total_sent"`
	NetworkTotalRecv     uint64    `json:"network_total_recv"`
	BatteryPercent       *float64  `json:"battery_percent"`
	BatteryPlugged       *bool     `json:"battery_plugged"`
	BatteryTimeRemaining *int64    `json:"battery_time_remaining"`
	Degraded             bool      `json:"degraded"`
}

// Flatten converts a snapshot to its log record
func (s *Snapshot) Flatten() Record {
	r := Record{
		Timestamp:          s.Timestamp,
		CPUPercent:         s.CPUOverall,
		MemoryPercent:      s.Memory.Percent,
		MemoryUsed:         s.Memory.Used,
		MemoryTotal:        s.Memory.Total,
		SwapPercent:        s.Swap.Percent,
		DiskPercent:        s.Disk.Percent,
		DiskReadBPS:        s.Disk.ReadRate,
		DiskWriteBPS:       s.Disk.WriteRate,
		NetworkUploadBPS:   s.Network.SentRate,
		NetworkDownloadBPS: s.Network.RecvRate,
		NetworkTotalSent:   s.Network.TotalSent,
		NetworkTotalRecv:   s.Network.TotalRecv,
		Degraded:           s.Status.Degraded,
	}
	if s.Battery != nil {
		pct, plugged := s.Battery.Percent, s.Battery.Plugged
		r.BatteryPercent = &pct
		r.BatteryPlugged = &plugged
		if s.Battery.TimeRemaining != nil {
			tr := *s.Battery.TimeRemaining
			r.BatteryTimeRemaining = &tr
		}
	}
	return r
}

// Row renders the record as CSV cells in Columns order. Unknown values are empty.
func (r Record) Row() []string {
	row := []string{
		r.Timestamp.Format(time.RFC3339Nano),
		formatFloat(r.CPUPercent),
		formatFloat(r.MemoryPercent),
		strconv.FormatUint(r.MemoryUsed, 10),
		strconv.FormatUint(r.MemoryTotal, 10),
		formatFloat(r.SwapPercent),
		formatFloat(r.DiskPercent),
		formatFloat(r.DiskReadBPS),
		formatFloat(r.DiskWriteBPS),
		formatFloat(r.NetworkUploadBPS),
		formatFloat(r.NetworkDownloadBPS),
		strconv.FormatUint(r.NetworkTotalSent, 10),
		strconv.FormatUint(r.NetworkTotalRecv, 10),
		"",
		"",
		"",
		strconv.FormatBool(r.Degraded),
	}
	if r.BatteryPercent != nil {
		row[13] = formatFloat(*r.BatteryPercent)
	}
	if r.BatteryPlugged != nil {
		row[14] = strconv.FormatBool(*r.BatteryPlugged)
	}
	if r.BatteryTimeRemaining != nil {
		row[15] = strconv.FormatInt(*r.BatteryTimeRemaining, 10)
	}
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
