package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ngenohkevin/hivedeck-monitor/internal/snapshot"
)

// Format is the encoding of the continuous log
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// Ext returns the file extension for f
func (f Format) Ext() string {
	if f == FormatJSONL {
		return ".jsonl"
	}
	return ".csv"
}

// logFile is the subset of *os.File the log writes through.
type logFile interface {
	Write(p []byte) (int, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

// Log is an open append-only metrics log. Every Append writes one whole
// record or nothing.
type Log struct {
	mu      sync.Mutex
	f       logFile
	path    string
	format  Format
	size    int64
	entries int
}

// OpenLog opens path for appending, creating it if needed. A new CSV file
// starts with the header row.
func OpenLog(path string, format Format) (*Log, error) {
	if format != FormatCSV && format != FormatJSONL {
		return nil, ioErr("open", path, fmt.Errorf("unknown log format %q", format))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ioErr("mkdir", filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, ioErr("open", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ioErr("stat", path, err)
	}

	l := &Log{f: f, path: path, format: format, size: info.Size()}
	if l.size == 0 && format == FormatCSV {
		header, err := encodeCSV(snapshot.Columns)
		if err == nil {
			err = l.write(header)
		}
		if err != nil {
			f.Close()
			return nil, err
		}
	}
	return l, nil
}

// Path returns the file path of the log
func (l *Log) Path() string {
	return l.path
}

// Entries returns the number of records appended through this handle
func (l *Log) Entries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries
}

// Append writes one flattened record for snap.
func (l *Log) Append(snap *snapshot.Snapshot) error {
	record, err := l.encode(snap)
	if err != nil {
		return ioErr("encode", l.path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return ioErr("append", l.path, os.ErrClosed)
	}
	if err := l.write(record); err != nil {
		return err
	}
	l.entries++
	return nil
}

// write issues a single write of data. A failed or short write is rolled back
// by truncating to the previous size so no partial record remains.
func (l *Log) write(data []byte) error {
	n, err := l.f.Write(data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	if err != nil {
		if n > 0 {
			_ = l.f.Truncate(l.size)
		}
		return ioErr("append", l.path, err)
	}
	l.size += int64(n)
	return nil
}

func (l *Log) encode(snap *snapshot.Snapshot) ([]byte, error) {
	record := snap.Flatten()
	if l.format == FormatJSONL {
		data, err := json.Marshal(record)
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return encodeCSV(record.Row())
}

// Close flushes the log to disk and closes it. Closing twice is a no-op.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil

	syncErr := f.Sync()
	if err := f.Close(); err != nil {
		return ioErr("close", l.path, err)
	}
	if syncErr != nil {
		return ioErr("sync", l.path, syncErr)
	}
	return nil
}

func encodeCSV(row []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(row); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RotatingLog appends to a series of log files in one directory, starting a
// new file after maxEntries records.
type RotatingLog struct {
	mu         sync.Mutex
	dir        string
	format     Format
	maxEntries int
	current    *Log
}

// NewRotatingLog creates a rotating log. No file is opened until the first Append.
func NewRotatingLog(dir string, format Format, maxEntries int) *RotatingLog {
	return &RotatingLog{dir: dir, format: format, maxEntries: maxEntries}
}

// Append writes snap to the current file, opening or rotating as needed.
func (r *RotatingLog) Append(snap *snapshot.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.maxEntries > 0 && r.current.Entries() >= r.maxEntries {
		if err := r.current.Close(); err != nil {
			return err
		}
		r.current = nil
	}
	if r.current == nil {
		path := filepath.Join(r.dir, "metrics_log_"+stamp(snap.Timestamp)+r.format.Ext())
		l, err := OpenLog(path, r.format)
		if err != nil {
			return err
		}
		r.current = l
	}
	return r.current.Append(snap)
}

// Path returns the file currently written, or "" when none is open.
func (r *RotatingLog) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ""
	}
	return r.current.Path()
}

// Close closes the current file; the next Append starts a new one.
func (r *RotatingLog) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}
