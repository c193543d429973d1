package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/distatus/battery"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"

	"github.com/ngenohkevin/hivedeck-monitor/internal/process"
)

// Collector implements Source with gopsutil and the battery package
type Collector struct {
	procs *process.Manager
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{procs: process.NewManager()}
}

// CPU reports utilisation since the previous call, per core and averaged.
func (c *Collector) CPU(ctx context.Context) (*CPUReading, error) {
	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get per-cpu percent: %w", classify(err))
	}
	if len(perCore) == 0 {
		return nil, fmt.Errorf("no cpu cores reported: %w", ErrSensorUnavailable)
	}

	var sum float64
	for _, p := range perCore {
		sum += p
	}

	return &CPUReading{
		Overall: sum / float64(len(perCore)),
		PerCore: perCore,
	}, nil
}

// Memory retrieves physical memory usage
func (c *Collector) Memory(ctx context.Context) (*MemoryReading, error) {
	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get virtual memory: %w", classify(err))
	}

	return &MemoryReading{
		Total:   vmem.Total,
		Used:    vmem.Used,
		Percent: vmem.UsedPercent,
	}, nil
}

// Swap retrieves swap usage
func (c *Collector) Swap(ctx context.Context) (*MemoryReading, error) {
	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get swap memory: %w", classify(err))
	}

	return &MemoryReading{
		Total:   swap.Total,
		Used:    swap.Used,
		Percent: swap.UsedPercent,
	}, nil
}

// DiskUsage retrieves filesystem usage of the mount holding path
func (c *Collector) DiskUsage(ctx context.Context, path string) (*DiskUsage, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk usage of %s: %w", path, classify(err))
	}

	return &DiskUsage{
		Path:    usage.Path,
		Total:   usage.Total,
		Used:    usage.Used,
		Percent: usage.UsedPercent,
	}, nil
}

// DiskIO sums the cumulative byte counters of every block device
func (c *Collector) DiskIO(ctx context.Context) (*IOCounters, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk io counters: %w", classify(err))
	}
	if len(counters) == 0 {
		return nil, fmt.Errorf("no block devices: %w", ErrSensorUnavailable)
	}

	var total IOCounters
	for _, d := range counters {
		total.ReadBytes += d.ReadBytes
		total.WriteBytes += d.WriteBytes
	}
	return &total, nil
}

// NetIO sums the cumulative byte counters of every interface except loopback
func (c *Collector) NetIO(ctx context.Context) (*NetCounters, error) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get network io counters: %w", classify(err))
	}

	var total NetCounters
	for _, counter := range counters {
		if counter.Name == "lo" || counter.Name == "lo0" {
			continue
		}
		total.BytesSent += counter.BytesSent
		total.BytesRecv += counter.BytesRecv
	}
	return &total, nil
}

// Battery combines all batteries into one reading. Hosts without a battery
// return ErrSensorUnavailable.
func (c *Collector) Battery(ctx context.Context) (*BatteryReading, error) {
	return combineBatteries(battery.GetAll())
}

func combineBatteries(batteries []*battery.Battery, err error) (*BatteryReading, error) {
	var current, full, rate float64
	discharging, powered, found := false, false, false
	for _, b := range batteries {
		if b == nil {
			continue
		}
		found = true
		current += b.Current
		full += b.Full
		switch b.State.Raw {
		case battery.Discharging:
			discharging = true
			rate += b.ChargeRate
		case battery.Charging, battery.Full, battery.Idle:
			powered = true
		}
	}
	if !found {
		if err != nil {
			return nil, fmt.Errorf("no battery (%v): %w", err, ErrSensorUnavailable)
		}
		return nil, fmt.Errorf("no battery: %w", ErrSensorUnavailable)
	}
	if full <= 0 {
		return nil, fmt.Errorf("battery capacity unknown: %w", ErrSensorUnavailable)
	}

	// Empty and Unknown say nothing about AC, so they count as unplugged.
	reading := &BatteryReading{
		Percent: current / full * 100,
		Plugged: powered && !discharging,
	}
	// Current is in mWh and ChargeRate in mW, so their ratio is hours.
	if discharging && rate > 0 {
		d := time.Duration(current / rate * float64(time.Hour))
		reading.TimeRemaining = &d
	}
	return reading, nil
}

// Processes lists the top processes by key
func (c *Collector) Processes(ctx context.Context, key process.SortKey, limit int) (*process.List, error) {
	list, err := c.procs.Top(ctx, key, limit)
	if err != nil {
		return nil, classify(err)
	}
	return list, nil
}

func classify(err error) error {
	if errors.Is(err, os.ErrPermission) && !errors.Is(err, ErrPermissionDenied) {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return err
}
