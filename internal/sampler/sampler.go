// Package sampler takes one snapshot of the host per tick.
package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/ngenohkevin/hivedeck-monitor/internal/history"
	"github.com/ngenohkevin/hivedeck-monitor/internal/logging"
	"github.com/ngenohkevin/hivedeck-monitor/internal/process"
	"github.com/ngenohkevin/hivedeck-monitor/internal/rate"
	"github.com/ngenohkevin/hivedeck-monitor/internal/snapshot"
	"github.com/ngenohkevin/hivedeck-monitor/internal/system"
)

// History series written on every tick
const (
	SeriesCPU       = "cpu_overall"
	SeriesMemory    = "memory.percent"
	SeriesNetSent   = "network.sent_rate"
	SeriesNetRecv   = "network.recv_rate"
	SeriesDiskRead  = "disk.read_rate"
	SeriesDiskWrite = "disk.write_rate"
)

// Series lists every history series in a stable order.
var Series = []string{SeriesCPU, SeriesMemory, SeriesNetSent, SeriesNetRecv, SeriesDiskRead, SeriesDiskWrite}

// Rate tracker counter names
const (
	counterDiskRead  = "disk.read_bytes"
	counterDiskWrite = "disk.write_bytes"
	counterNetSent   = "network.bytes_sent"
	counterNetRecv   = "network.bytes_recv"
)

// Options control a Sampler
type Options struct {
	HistorySize int
	// ReadTimeout bounds every individual source read.
	ReadTimeout time.Duration
	DiskPath    string
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Settings are the per-tick knobs that may change at runtime.
type Settings struct {
	ProcessLimit int
	ProcessSort  process.SortKey
	// ReadTimeout and DiskPath override Options when set.
	ReadTimeout time.Duration
	DiskPath    string
}

// Sampler owns the rate state and history of one monitored host.
type Sampler struct {
	source  system.Source
	rates   *rate.Tracker
	history *history.Buffer

	readTimeout time.Duration
	diskPath    string
	clock       func() time.Time

	mu   sync.Mutex
	last time.Time
}

// New creates a sampler over source
func New(source system.Source, opts Options) *Sampler {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.DiskPath == "" {
		opts.DiskPath = "/"
	}
	return &Sampler{
		source:      source,
		rates:       rate.NewTracker(),
		history:     history.New(opts.HistorySize),
		readTimeout: opts.ReadTimeout,
		diskPath:    opts.DiskPath,
		clock:       opts.Clock,
	}
}

// History exposes the sampler's buffer for read-only consumers.
func (s *Sampler) History() *history.Buffer {
	return s.history
}

// Recent returns up to n newest points of a series, oldest first.
func (s *Sampler) Recent(series string, n int) []history.Point {
	return s.history.Recent(series, n)
}

// Tick reads every source once and returns the combined snapshot. Readings
// that fail are marked in the snapshot status; Tick itself never fails.
// Concurrent calls are serialised.
func (s *Sampler) Tick(ctx context.Context, settings Settings) *snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.ReadTimeout > 0 {
		s.readTimeout = settings.ReadTimeout
	}
	if settings.DiskPath != "" {
		s.diskPath = settings.DiskPath
	}

	// rates see the raw clock, only the timestamp is bumped
	now := s.clock()
	stamp := now
	if !s.last.IsZero() && !stamp.After(s.last) {
		stamp = s.last.Add(time.Nanosecond)
	}
	s.last = stamp

	snap := &snapshot.Snapshot{Timestamp: stamp}

	s.readCPU(ctx, snap)
	s.readMemory(ctx, snap)
	s.readDisk(ctx, snap, now)
	s.readNetwork(ctx, snap, now)
	s.readBattery(ctx, snap)
	s.readProcesses(ctx, snap, settings)

	s.record(snap)
	return snap
}

func (s *Sampler) readCPU(ctx context.Context, snap *snapshot.Snapshot) {
	cpu, err := system.WithTimeout(ctx, s.readTimeout, s.source.CPU)
	if err != nil {
		s.unavailable(snap, snapshot.FieldCPU, err)
		snap.CPUPerCore = []float64{}
		return
	}
	snap.CPUOverall = clampPercent(cpu.Overall)
	snap.CPUPerCore = make([]float64, len(cpu.PerCore))
	for i, p := range cpu.PerCore {
		snap.CPUPerCore[i] = clampPercent(p)
	}
}

func (s *Sampler) readMemory(ctx context.Context, snap *snapshot.Snapshot) {
	if vm, err := system.WithTimeout(ctx, s.readTimeout, s.source.Memory); err != nil {
		s.unavailable(snap, snapshot.FieldMemory, err)
	} else {
		snap.Memory = toMemory(vm)
	}

	if sw, err := system.WithTimeout(ctx, s.readTimeout, s.source.Swap); err != nil {
		s.unavailable(snap, snapshot.FieldSwap, err)
	} else {
		snap.Swap = toMemory(sw)
	}
}

func (s *Sampler) readDisk(ctx context.Context, snap *snapshot.Snapshot, now time.Time) {
	usage, err := system.WithTimeout(ctx, s.readTimeout, func(ctx context.Context) (*system.DiskUsage, error) {
		return s.source.DiskUsage(ctx, s.diskPath)
	})
	if err != nil {
		s.unavailable(snap, snapshot.FieldDiskUsage, err)
	} else {
		snap.Disk.Total = usage.Total
		snap.Disk.Used = usage.Used
		snap.Disk.Percent = clampPercent(usage.Percent)
	}

	io, err := system.WithTimeout(ctx, s.readTimeout, s.source.DiskIO)
	if err != nil {
		s.unavailable(snap, snapshot.FieldDiskIO, err)
		return
	}
	snap.Disk.ReadRate = s.rates.Derive(counterDiskRead, io.ReadBytes, now)
	snap.Disk.WriteRate = s.rates.Derive(counterDiskWrite, io.WriteBytes, now)
}

func (s *Sampler) readNetwork(ctx context.Context, snap *snapshot.Snapshot, now time.Time) {
	n, err := system.WithTimeout(ctx, s.readTimeout, s.source.NetIO)
	if err != nil {
		s.unavailable(snap, snapshot.FieldNetwork, err)
		return
	}
	snap.Network.TotalSent = n.BytesSent
	snap.Network.TotalRecv = n.BytesRecv
	snap.Network.SentRate = s.rates.Derive(counterNetSent, n.BytesSent, now)
	snap.Network.RecvRate = s.rates.Derive(counterNetRecv, n.BytesRecv, now)
}

func (s *Sampler) readBattery(ctx context.Context, snap *snapshot.Snapshot) {
	b, err := system.WithTimeout(ctx, s.readTimeout, s.source.Battery)
	if err != nil {
		s.unavailable(snap, snapshot.FieldBattery, err)
		return
	}

	bat := &snapshot.Battery{
		Percent: clampPercent(b.Percent),
		Plugged: b.Plugged,
	}
	if b.TimeRemaining != nil {
		secs := int64(b.TimeRemaining.Seconds())
		bat.TimeRemaining = &secs
	}
	snap.Battery = bat
}

func (s *Sampler) readProcesses(ctx context.Context, snap *snapshot.Snapshot, settings Settings) {
	key := settings.ProcessSort
	if !key.Valid() {
		key = process.SortCPU
	}

	list, err := system.WithTimeout(ctx, s.readTimeout, func(ctx context.Context) (*process.List, error) {
		return s.source.Processes(ctx, key, settings.ProcessLimit)
	})
	if err != nil {
		s.unavailable(snap, snapshot.FieldProcesses, err)
		snap.TopProcesses = []process.Info{}
		return
	}

	procs := list.Processes
	if settings.ProcessLimit >= 0 && len(procs) > settings.ProcessLimit {
		procs = procs[:settings.ProcessLimit]
	}
	snap.TopProcesses = append(make([]process.Info, 0, len(procs)), procs...)
	snap.Status.DeniedProcesses = list.Denied
}

// record appends the scalar series to history. Series whose reading failed
// this tick are skipped rather than filled with zeros.
func (s *Sampler) record(snap *snapshot.Snapshot) {
	ts := snap.Timestamp
	if snap.Available(snapshot.FieldCPU) {
		s.history.Push(SeriesCPU, ts, snap.CPUOverall)
	}
	if snap.Available(snapshot.FieldMemory) {
		s.history.Push(SeriesMemory, ts, snap.Memory.Percent)
	}
	if snap.Available(snapshot.FieldNetwork) {
		s.history.Push(SeriesNetSent, ts, snap.Network.SentRate)
		s.history.Push(SeriesNetRecv, ts, snap.Network.RecvRate)
	}
	if snap.Available(snapshot.FieldDiskIO) {
		s.history.Push(SeriesDiskRead, ts, snap.Disk.ReadRate)
		s.history.Push(SeriesDiskWrite, ts, snap.Disk.WriteRate)
	}
}

func (s *Sampler) unavailable(snap *snapshot.Snapshot, field string, err error) {
	reason := system.Reason(err)
	snap.MarkUnavailable(field, reason)
	if field == snapshot.FieldBattery && reason == "unavailable" {
		return
	}
	logging.Warn("sampler: %s reading failed: %v", field, err)
}

func toMemory(m *system.MemoryReading) snapshot.Memory {
	return snapshot.Memory{
		Total:   m.Total,
		Used:    m.Used,
		Percent: clampPercent(m.Percent),
	}
}

func clampPercent(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
