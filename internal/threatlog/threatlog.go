// Package threatlog persists kill switch ThreatInfo records and implements
// the killswitch.ThreatLog interface.
//
// Unlike the original Qt-based logger, which reads the whole file, appends
// an entry in memory, and writes it back with no fsync, every write here
// goes through a temp-file-plus-rename sequence so a crash mid-write can
// never leave sentinel-threats.json truncated or corrupt.
package threatlog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ransomwatch/internal/killswitch"
)

const logVersion = 1

// Entry is one persisted threat record.
type Entry struct {
	Timestamp     time.Time             `json:"timestamp"`
	Level         string                `json:"level"`
	Detector      string                `json:"detector"`
	Description   string                `json:"description"`
	Files         []string              `json:"files"`
	ActionTaken   string                `json:"action_taken,omitempty"`
}

type logFile struct {
	Version int     `json:"version"`
	Threats []Entry `json:"threats"`
}

// Log is a JSON-file-backed killswitch.ThreatLog implementation.
type Log struct {
	mu   sync.Mutex
	path string
}

// New opens (creating if necessary) a threat log at path.
func New(path string) (*Log, error) {
	l := &Log{path: path}
	if err := l.ensureExists(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) ensureExists() error {
	if _, err := os.Stat(l.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("threatlog: failed to create directory: %w", err)
		}
	}
	return l.writeAll(logFile{Version: logVersion, Threats: []Entry{}})
}

func (l *Log) readAll() (logFile, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return logFile{}, fmt.Errorf("threatlog: read failed: %w", err)
	}
	var f logFile
	if len(data) == 0 {
		return logFile{Version: logVersion, Threats: []Entry{}}, nil
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return logFile{}, fmt.Errorf("threatlog: corrupt log file: %w", err)
	}
	return f, nil
}

// writeAll atomically replaces the log file contents: write to a temp file
// in the same directory, fsync it, then rename over the target. The rename
// is atomic on the same filesystem, so readers never observe a partial file.
func (l *Log) writeAll(f logFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("threatlog: marshal failed: %w", err)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".threatlog-*.tmp")
	if err != nil {
		return fmt.Errorf("threatlog: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("threatlog: write failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("threatlog: fsync failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("threatlog: close failed: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("threatlog: rename failed: %w", err)
	}
	return nil
}

// Log appends a threat record. Satisfies killswitch.ThreatLog.
func (l *Log) Log(threat killswitch.ThreatInfo, actionTaken string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.readAll()
	if err != nil {
		return err
	}

	f.Threats = append(f.Threats, Entry{
		Timestamp:   threat.Timestamp,
		Level:       threat.Level.String(),
		Detector:    threat.DetectorName,
		Description: threat.Description,
		Files:       threat.AffectedFiles,
		ActionTaken: actionTaken,
	})

	return l.writeAll(f)
}

// Entries returns every persisted record, oldest first.
func (l *Log) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.readAll()
	if err != nil {
		return nil, err
	}
	return f.Threats, nil
}

// SinceDays returns entries from the last n days.
func (l *Log) SinceDays(n int) ([]Entry, error) {
	all, err := l.Entries()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().AddDate(0, 0, -n)
	var result []Entry
	for _, e := range all {
		if !e.Timestamp.Before(cutoff) {
			result = append(result, e)
		}
	}
	return result, nil
}

// Clear empties the log, keeping the file in place.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeAll(logFile{Version: logVersion, Threats: []Entry{}})
}

// ExportCSV writes every entry to destPath in Timestamp,Level,Detector,
// Description,Files column order.
func (l *Log) ExportCSV(destPath string) error {
	entries, err := l.Entries()
	if err != nil {
		return err
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("threatlog: failed to create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"Timestamp", "Level", "Detector", "Description", "Files"}); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.Timestamp.Format(time.RFC3339),
			e.Level,
			e.Detector,
			e.Description,
			joinSemicolon(e.Files),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func joinSemicolon(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ";"
		}
		out += s
	}
	return out
}

// Stats summarizes the log's contents by level and by detector.
type Stats struct {
	Total      int
	ByLevel    map[string]int
	ByDetector map[string]int
}

// Statistics computes aggregate counts over the whole log.
func (l *Log) Statistics() (Stats, error) {
	entries, err := l.Entries()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ByLevel: make(map[string]int), ByDetector: make(map[string]int)}
	for _, e := range entries {
		stats.Total++
		stats.ByLevel[e.Level]++
		stats.ByDetector[e.Detector]++
	}
	return stats, nil
}

// Path returns the on-disk log file location.
func (l *Log) Path() string { return l.path }

// RecentDetectors returns the detector names sorted by descending trigger
// count, for CLI/TUI summary views.
func RecentDetectors(stats Stats) []string {
	type kv struct {
		name  string
		count int
	}
	var kvs []kv
	for k, v := range stats.ByDetector {
		kvs = append(kvs, kv{k, v})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].count > kvs[j].count })

	names := make([]string, len(kvs))
	for i, e := range kvs {
		names[i] = e.name
	}
	return names
}
