// Package system reads resource counters from the operating system.
package system

import (
	"context"
	"errors"
	"os"

	"github.com/ngenohkevin/hivedeck-monitor/internal/process"
)

var (
	// ErrSensorUnavailable is returned when the hardware or OS has no such reading.
	ErrSensorUnavailable = errors.New("sensor unavailable")
	// ErrPermissionDenied is returned when a reading needs elevated access.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrReadTimeout is returned when a reading did not finish within its bound.
	ErrReadTimeout = errors.New("read timed out")
)

// Source is a stateless view of the host's resource counters. Each method
// performs one OS query.
type Source interface {
	CPU(ctx context.Context) (*CPUReading, error)
	Memory(ctx context.Context) (*MemoryReading, error)
	Swap(ctx context.Context) (*MemoryReading, error)
	DiskUsage(ctx context.Context, path string) (*DiskUsage, error)
	DiskIO(ctx context.Context) (*IOCounters, error)
	NetIO(ctx context.Context) (*NetCounters, error)
	Battery(ctx context.Context) (*BatteryReading, error)
	Processes(ctx context.Context, key process.SortKey, limit int) (*process.List, error)
}

// Reason maps a read error to the short marker stored in a degraded snapshot.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSensorUnavailable):
		return "unavailable"
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, os.ErrPermission):
		return "permission_denied"
	case errors.Is(err, ErrReadTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
