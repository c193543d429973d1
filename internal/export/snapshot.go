package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/ngenohkevin/hivedeck-monitor/internal/history"
	"github.com/ngenohkevin/hivedeck-monitor/internal/snapshot"
)

// stampLayout is embedded in every file name written by this package.
const stampLayout = "20060102_150405.000"

func stamp(t time.Time) string {
	return t.Format(stampLayout)
}

// WriteSnapshot serialises snap as indented JSON into dir and returns the
// file path. The file appears atomically: it is written under a temporary
// name and renamed into place.
func WriteSnapshot(snap *snapshot.Snapshot, dir string) (string, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", ioErr("encode", dir, err)
	}
	return writeFile(dir, "snapshot_"+stamp(snap.Timestamp)+".json", data)
}

// ReadSnapshot parses a file written by WriteSnapshot.
func ReadSnapshot(path string) (*snapshot.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioErr("read", path, err)
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, ioErr("decode", path, err)
	}
	return &snap, nil
}

// WriteHistoryCSV writes history series side by side, one row per distinct
// timestamp and one column per series (sorted by name). Cells are empty where
// a series has no point at that timestamp.
func WriteHistoryCSV(series map[string][]history.Point, dir string, now time.Time) (string, error) {
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make(map[int64][]string)
	var stamps []int64
	for col, name := range names {
		for _, p := range series[name] {
			key := p.Timestamp.UnixNano()
			row, ok := rows[key]
			if !ok {
				row = make([]string, len(names)+1)
				row[0] = p.Timestamp.UTC().Format(time.RFC3339Nano)
				rows[key] = row
				stamps = append(stamps, key)
			}
			row[col+1] = strconv.FormatFloat(p.Value, 'f', 2, 64)
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(append([]string{"timestamp"}, names...))
	for _, key := range stamps {
		_ = w.Write(rows[key])
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", ioErr("encode", dir, err)
	}

	return writeFile(dir, "history_"+stamp(now)+".csv", buf.Bytes())
}

func writeFile(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", ioErr("mkdir", dir, err)
	}

	path := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", ioErr("create", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", ioErr("write", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", ioErr("sync", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", ioErr("close", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", ioErr("rename", path, err)
	}
	return path, nil
}
