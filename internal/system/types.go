package system

import "time"

// CPUReading contains CPU utilisation in percent
type CPUReading struct {
	Overall float64
	PerCore []float64
}

// MemoryReading contains physical or swap memory usage
type MemoryReading struct {
	Total   uint64
	Used    uint64
	Percent float64
}

// DiskUsage contains filesystem usage for one mount point
type DiskUsage struct {
	Path    string
	Total   uint64
	Used    uint64
	Percent float64
}

// IOCounters contains cumulative disk bytes summed over all devices
type IOCounters struct {
	ReadBytes  uint64
	WriteBytes uint64
}

// NetCounters contains cumulative network bytes summed over all interfaces
type NetCounters struct {
	BytesSent uint64
	BytesRecv uint64
}

// BatteryReading contains the combined state of all batteries
type BatteryReading struct {
	Percent float64
	Plugged bool
	// TimeRemaining is nil when the estimate is unknown or the machine is on AC.
	TimeRemaining *time.Duration
}

// HostInfo identifies the monitored machine
type HostInfo struct {
	Hostname        string    `json:"hostname"`
	OS              string    `json:"os"`
	Platform        string    `json:"platform"`
	PlatformVersion string    `json:"platform_version"`
	KernelVersion   string    `json:"kernel_version"`
	KernelArch      string    `json:"kernel_arch"`
	Virtualization  string    `json:"virtualization,omitempty"`
	CPUModel        string    `json:"cpu_model,omitempty"`
	CPUCores        int       `json:"cpu_cores"`
	CPUThreads      int       `json:"cpu_threads"`
	MemoryTotal     uint64    `json:"memory_total"`
	MemoryHuman     string    `json:"memory_human"`
	Uptime          uint64    `json:"uptime"`
	UptimeHuman     string    `json:"uptime_human"`
	BootTime        time.Time `json:"boot_time"`
}
