package system

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// ReadHostInfo identifies the machine. Only the host read is required; CPU
// and memory details are left empty when they cannot be read.
func ReadHostInfo(ctx context.Context) (*HostInfo, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read host info: %w", classify(err))
	}

	var hw hardware
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		hw.model = cpus[0].ModelName
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		hw.cores = n
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		hw.threads = n
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		hw.memory = vm.Total
	}

	return hostInfoFrom(info, hw), nil
}

type hardware struct {
	model   string
	cores   int
	threads int
	memory  uint64
}

func hostInfoFrom(info *host.InfoStat, hw hardware) *HostInfo {
	uptime := time.Duration(info.Uptime) * time.Second
	return &HostInfo{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		KernelArch:      info.KernelArch,
		Virtualization:  info.VirtualizationSystem,
		CPUModel:        strings.TrimSpace(hw.model),
		CPUCores:        hw.cores,
		CPUThreads:      hw.threads,
		MemoryTotal:     hw.memory,
		MemoryHuman:     FormatBytes(float64(hw.memory)),
		Uptime:          info.Uptime,
		UptimeHuman:     FormatUptime(uptime),
		BootTime:        time.Unix(int64(info.BootTime), 0).UTC(),
	}
}

// FormatUptime renders d as "3d 4h 5m", dropping leading zero units.
func FormatUptime(d time.Duration) string {
	if d < time.Minute {
		return "0m"
	}
	total := int64(d / time.Minute)
	days, hours, minutes := total/(24*60), (total/60)%24, total%60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
