// Package actions provides the kill switch's built-in Action
// implementations: local backup, S3 archival, webhook/Slack notification,
// and Kafka event publication.
package actions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"ransomwatch/internal/killswitch"
)

const backupSessionLayout = "2006-01-02_150405"

// BackupAction copies every affected file into a timestamped session
// directory under Root, preserving the last 4 path components so the
// backup tree stays shallow while still disambiguating same-named files
// from different directories.
type BackupAction struct {
	mu sync.Mutex

	Root          string
	RetentionDays int
	MaxSizeMB     int64

	logger *slog.Logger

	filesBackedUp int64
	bytesBackedUp int64
	lastSession   string
}

// NewBackupAction constructs an action rooted at dir, with the given
// retention window and size cap (0 disables the cap).
func NewBackupAction(dir string, retentionDays int, maxSizeMB int64, logger *slog.Logger) *BackupAction {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupAction{
		Root:          dir,
		RetentionDays: retentionDays,
		MaxSizeMB:     maxSizeMB,
		logger:        logger,
	}
}

func (a *BackupAction) Name() string { return "backup" }

func (a *BackupAction) ensureRoot() error {
	if a.Root == "" {
		return fmt.Errorf("backup: no directory configured")
	}
	return os.MkdirAll(a.Root, 0o755)
}

func (a *BackupAction) Execute(ctx context.Context, threat killswitch.ThreatInfo) error {
	if len(threat.AffectedFiles) == 0 {
		a.logger.Debug("backup: no affected files, skipping")
		return nil
	}
	if err := a.ensureRoot(); err != nil {
		return fmt.Errorf("backup: directory not available: %w", err)
	}

	session := time.Now().Format(backupSessionLayout)
	sessionRoot := filepath.Join(a.Root, session)
	if err := os.MkdirAll(sessionRoot, 0o755); err != nil {
		return fmt.Errorf("backup: failed to create session directory: %w", err)
	}

	a.mu.Lock()
	a.lastSession = sessionRoot
	a.mu.Unlock()

	a.logger.Info("backup: starting",
		"threat_id", threat.ID,
		"description", threat.Description,
		"session", sessionRoot,
		"file_count", len(threat.AffectedFiles),
	)

	var succeeded, failed int
	for _, path := range threat.AffectedFiles {
		if err := a.backupFile(path, sessionRoot); err != nil {
			a.logger.Warn("backup: failed to back up file", "path", path, "error", err)
			failed++
			continue
		}
		succeeded++
	}

	a.logger.Info("backup: complete", "succeeded", succeeded, "failed", failed)

	removed, err := a.cleanOldBackups()
	if err != nil {
		a.logger.Warn("backup: retention sweep failed", "error", err)
	} else if removed > 0 {
		a.logger.Info("backup: removed expired sessions", "count", removed)
	}

	if err := a.enforceMaxSize(); err != nil {
		a.logger.Warn("backup: size enforcement failed", "error", err)
	}

	return nil
}

// backupDestination preserves only the last 4 path components (3
// directories plus the filename) so the mirrored tree cannot grow
// arbitrarily deep.
func backupDestination(sourcePath, sessionRoot string) string {
	parts := strings.Split(filepath.ToSlash(sourcePath), "/")
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) > 4 {
		kept = kept[len(kept)-4:]
	}
	if len(kept) == 0 {
		kept = []string{filepath.Base(sourcePath)}
	}
	return filepath.Join(append([]string{sessionRoot}, kept...)...)
}

func (a *BackupAction) backupFile(sourcePath, sessionRoot string) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return fmt.Errorf("source unreadable: %w", err)
	}
	if info.IsDir() {
		return nil
	}

	destPath := backupDestination(sourcePath, sessionRoot)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create backup subdirectory: %w", err)
	}

	if err := copyFile(sourcePath, destPath); err != nil {
		return err
	}

	a.mu.Lock()
	a.filesBackedUp++
	a.bytesBackedUp += info.Size()
	a.mu.Unlock()

	a.logger.Debug("backup: copied file", "source", sourcePath, "dest", destPath, "bytes", info.Size())
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy contents: %w", err)
	}
	return out.Close()
}

func (a *BackupAction) sessionDirs() ([]string, error) {
	entries, err := os.ReadDir(a.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (a *BackupAction) cleanOldBackups() (int, error) {
	if a.RetentionDays <= 0 {
		return 0, nil
	}
	dirs, err := a.sessionDirs()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().AddDate(0, 0, -a.RetentionDays)
	removed := 0
	for _, name := range dirs {
		sessionTime, err := time.ParseInLocation(backupSessionLayout, name, time.Local)
		if err != nil {
			continue // not a session directory we created
		}
		if sessionTime.Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(a.Root, name)); err != nil {
				a.logger.Warn("backup: failed to remove expired session", "session", name, "error", err)
				continue
			}
			removed++
		}
	}
	return removed, nil
}

func dirSize(path string) (int64, error) {
	var total int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

func (a *BackupAction) enforceMaxSize() error {
	if a.MaxSizeMB <= 0 {
		return nil
	}
	maxBytes := a.MaxSizeMB * 1024 * 1024

	current, err := dirSize(a.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if current <= maxBytes {
		return nil
	}

	a.logger.Info("backup: size exceeds limit, trimming oldest sessions",
		"current_mb", current/1024/1024, "limit_mb", a.MaxSizeMB)

	dirs, err := a.sessionDirs()
	if err != nil {
		return err
	}
	for _, name := range dirs {
		if current <= maxBytes {
			break
		}
		sessionPath := filepath.Join(a.Root, name)
		size, err := dirSize(sessionPath)
		if err != nil {
			continue
		}
		if err := os.RemoveAll(sessionPath); err != nil {
			a.logger.Warn("backup: failed to remove session for size limit", "session", name, "error", err)
			continue
		}
		current -= size
		a.logger.Info("backup: removed session to enforce size limit", "session", name, "freed_mb", size/1024/1024)
	}
	return nil
}

// LastSession returns the most recent session directory created by Execute,
// or "" if no backup has run yet. Satisfies killswitch.SessionReporter.
func (a *BackupAction) LastSession() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSession
}

// TotalSize returns the current on-disk size of the backup root.
func (a *BackupAction) TotalSize() (int64, error) {
	return dirSize(a.Root)
}

// Stats returns cumulative counters since process start.
func (a *BackupAction) Stats() (filesBackedUp, bytesBackedUp int64, lastSession string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filesBackedUp, a.bytesBackedUp, a.lastSession
}
