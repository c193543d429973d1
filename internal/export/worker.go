package export

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ngenohkevin/hivedeck-monitor/internal/logging"
	"github.com/ngenohkevin/hivedeck-monitor/internal/safego"
	"github.com/ngenohkevin/hivedeck-monitor/internal/snapshot"
)

// DefaultQueueSize is the worker queue length when none is configured.
const DefaultQueueSize = 64

type jobKind int

const (
	jobLog jobKind = iota
	jobExport
	jobCloseLog
)

type job struct {
	kind jobKind
	snap *snapshot.Snapshot
}

// Stats describes worker progress
type Stats struct {
	Queued     int    `json:"queued"`
	Capacity   int    `json:"capacity"`
	Dropped    uint64 `json:"dropped"`
	Logged     uint64 `json:"logged"`
	Exported   uint64 `json:"exported"`
	Failed     uint64 `json:"failed"`
	LastError  string `json:"last_error,omitempty"`
	LastExport string `json:"last_export,omitempty"`
	LogPath    string `json:"log_path,omitempty"`
}

// Worker performs log appends and snapshot exports off the sampling path.
// Its queue is bounded; when full the oldest log or export job is dropped.
type Worker struct {
	log       *RotatingLog
	exportDir string

	mu     sync.Mutex
	queue  chan job
	closed bool
	done   chan struct{}

	dropped  atomic.Uint64
	logged   atomic.Uint64
	exported atomic.Uint64
	failed   atomic.Uint64

	statMu     sync.Mutex
	lastError  string
	lastExport string
}

// NewWorker creates a worker writing logs through log and exports into exportDir.
func NewWorker(log *RotatingLog, exportDir string, queueSize int) *Worker {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	return &Worker{
		log:       log,
		exportDir: exportDir,
		queue:     make(chan job, queueSize),
		done:      make(chan struct{}),
	}
}

// Start launches the worker goroutine
func (w *Worker) Start() {
	safego.Go(w.loop)
}

// EnqueueLog queues snap for the continuous log. It never blocks.
func (w *Worker) EnqueueLog(snap *snapshot.Snapshot) {
	w.enqueue(job{kind: jobLog, snap: snap})
}

// EnqueueExport queues a snapshot export. It never blocks.
func (w *Worker) EnqueueExport(snap *snapshot.Snapshot) {
	w.enqueue(job{kind: jobExport, snap: snap})
}

// EnqueueCloseLog queues closing the current log file once earlier records are written.
func (w *Worker) EnqueueCloseLog() {
	w.enqueue(job{kind: jobCloseLog})
}

func (w *Worker) enqueue(j job) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	select {
	case w.queue <- j:
		return
	default:
	}

	// Full. Drop the oldest log or export job; a queued close keeps its place.
	pending := make([]job, 0, cap(w.queue)+1)
	for drained := false; !drained; {
		select {
		case old := <-w.queue:
			pending = append(pending, old)
		default:
			drained = true
		}
	}
	pending = append(pending, j)

	if len(pending) > cap(w.queue) {
		i := oldestData(pending)
		if i < 0 {
			// only closes queued; one more changes nothing
			i = len(pending) - 1
		}
		w.dropped.Add(1)
		logging.Warn("export: queue full (%d), dropped oldest job at %v", cap(w.queue), jobTime(pending[i]))
		pending = append(pending[:i], pending[i+1:]...)
	}
	for _, p := range pending {
		w.queue <- p
	}
}

func oldestData(jobs []job) int {
	for i, j := range jobs {
		if j.kind == jobLog || j.kind == jobExport {
			return i
		}
	}
	return -1
}

func jobTime(j job) time.Time {
	if j.snap == nil {
		return time.Time{}
	}
	return j.snap.Timestamp
}

func (w *Worker) loop() {
	defer close(w.done)
	for j := range w.queue {
		safego.Run(func() { w.handle(j) })
	}
	if w.log != nil {
		if err := w.log.Close(); err != nil {
			w.fail(err)
		}
	}
}

func (w *Worker) handle(j job) {
	switch j.kind {
	case jobLog:
		if w.log == nil {
			return
		}
		if err := w.log.Append(j.snap); err != nil {
			w.fail(err)
			return
		}
		w.logged.Add(1)
	case jobExport:
		path, err := WriteSnapshot(j.snap, w.exportDir)
		if err != nil {
			w.fail(err)
			return
		}
		w.exported.Add(1)
		w.statMu.Lock()
		w.lastExport = path
		w.statMu.Unlock()
		logging.Info("export: wrote snapshot %s", path)
	case jobCloseLog:
		if w.log == nil {
			return
		}
		if err := w.log.Close(); err != nil {
			w.fail(err)
		}
	}
}

func (w *Worker) fail(err error) {
	w.failed.Add(1)
	w.statMu.Lock()
	w.lastError = err.Error()
	w.statMu.Unlock()
	logging.Warn("export: %v", err)
}

// Stop stops accepting jobs and waits until the queue is drained or ctx ends.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a copy of the worker counters
func (w *Worker) Stats() Stats {
	w.statMu.Lock()
	lastError, lastExport := w.lastError, w.lastExport
	w.statMu.Unlock()

	s := Stats{
		Queued:     len(w.queue),
		Capacity:   cap(w.queue),
		Dropped:    w.dropped.Load(),
		Logged:     w.logged.Load(),
		Exported:   w.exported.Load(),
		Failed:     w.failed.Load(),
		LastError:  lastError,
		LastExport: lastExport,
	}
	if w.log != nil {
		s.LogPath = w.log.Path()
	}
	return s
}
