package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// Manager lists processes. It keeps the gopsutil handle of every live pid so
// CPU usage is measured between consecutive listings instead of since start.
type Manager struct {
	mu      sync.Mutex
	handles map[int32]*process.Process
	numCPU  float64
}

// NewManager creates a new process manager
func NewManager() *Manager {
	return &Manager{
		handles: make(map[int32]*process.Process),
		numCPU:  float64(runtime.NumCPU()),
	}
}

// Top returns up to limit processes ordered by key. Processes whose name
// cannot be read are skipped and counted as denied.
func (m *Manager) Top(ctx context.Context, key SortKey, limit int) (*List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get processes: %w", err)
	}

	seen := make(map[int32]bool, len(procs))
	infos := make([]Info, 0, len(procs))
	denied := 0

	for _, p := range procs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		h, ok := m.handles[p.Pid]
		if !ok {
			h = p
			m.handles[p.Pid] = h
		}
		seen[p.Pid] = true

		info, err := m.inspect(ctx, h)
		if err != nil {
			if isPermission(err) {
				denied++
			}
			continue
		}
		infos = append(infos, info)
	}

	for pid := range m.handles {
		if !seen[pid] {
			delete(m.handles, pid)
		}
	}

	Sort(infos, key)

	total := len(infos)
	if limit >= 0 && limit < len(infos) {
		infos = infos[:limit]
	}

	return &List{
		Processes: infos,
		Total:     total,
		Denied:    denied,
	}, nil
}

func (m *Manager) inspect(ctx context.Context, p *process.Process) (Info, error) {
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return Info{}, err
	}

	cpuPercent, _ := p.PercentWithContext(ctx, 0)
	memPercent, _ := p.MemoryPercentWithContext(ctx)
	status, _ := p.StatusWithContext(ctx)

	var statusStr string
	if len(status) > 0 {
		statusStr = status[0]
	}

	// gopsutil reports per-core percent; scale to a share of the whole machine.
	if m.numCPU > 0 {
		cpuPercent /= m.numCPU
	}

	return Info{
		PID:           p.Pid,
		Name:          name,
		CPUPercent:    clamp(cpuPercent),
		MemoryPercent: clamp(float64(memPercent)),
		Status:        statusStr,
	}, nil
}

// Sort orders processes in place: cpu and memory descending, name ascending
// (case-insensitive). Ties fall back to pid so output is stable.
func Sort(infos []Info, key SortKey) {
	sort.SliceStable(infos, func(i, j int) bool {
		a, b := infos[i], infos[j]
		switch key {
		case SortMemory:
			if a.MemoryPercent != b.MemoryPercent {
				return a.MemoryPercent > b.MemoryPercent
			}
		case SortName:
			an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
			if an != bn {
				return an < bn
			}
		default:
			if a.CPUPercent != b.CPUPercent {
				return a.CPUPercent > b.CPUPercent
			}
		}
		return a.PID < b.PID
	})
}

func isPermission(err error) bool {
	return errors.Is(err, os.ErrPermission)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
