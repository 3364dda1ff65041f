// Package detectors provides the kill switch's built-in Detector
// implementations: mass deletion, content entropy, canary files, and known
// ransomware naming/extension patterns.
package detectors

import (
	"context"
	"fmt"
	"strings"

	"ransomwatch/internal/killswitch"
)

// MassDeleteDetector counts recent deletions (excluding whitelisted build/VCS
// directories) and their rate, flagging bulk or fast deletion as a threat.
type MassDeleteDetector struct {
	Threshold int
	RateLimit float64 // files/second

	whitelist map[string]struct{}
}

// NewMassDeleteDetector constructs a detector seeded with the shared
// whitelist of development/build directories (killswitch.WhitelistedDirs),
// which user additions extend per-detector.
func NewMassDeleteDetector(threshold int, rateLimit float64) *MassDeleteDetector {
	d := &MassDeleteDetector{
		Threshold: threshold,
		RateLimit: rateLimit,
		whitelist: make(map[string]struct{}, len(killswitch.WhitelistedDirs)),
	}
	for _, name := range killswitch.WhitelistedDirs {
		d.whitelist[name] = struct{}{}
	}
	return d
}

// AddWhitelistedDirectory adds a user-supplied whitelisted path component.
func (d *MassDeleteDetector) AddWhitelistedDirectory(name string) {
	d.whitelist[strings.ToLower(name)] = struct{}{}
}

// isWhitelisted reports whether any component of path matches a whitelisted
// directory name, case-insensitively.
func (d *MassDeleteDetector) isWhitelisted(path string) bool {
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		if _, ok := d.whitelist[strings.ToLower(part)]; ok {
			return true
		}
	}
	return false
}

// detectTreeDeletion finds a non-trivial common-ancestor directory shared by
// at least 5 deleted paths (or by fewer, when one of them is that directory
// itself or ends in "/"), for description enrichment only.
func detectTreeDeletion(paths []string) string {
	if len(paths) == 0 {
		return ""
	}

	prefix := paths[0]
	if idx := strings.LastIndex(prefix, "/"); idx > 0 {
		prefix = prefix[:idx]
	}

	for _, p := range paths {
		for prefix != "" && !strings.HasPrefix(p, prefix+"/") && !strings.HasPrefix(p, prefix) {
			if idx := strings.LastIndex(prefix, "/"); idx > 0 {
				prefix = prefix[:idx]
			} else {
				prefix = ""
			}
		}
	}

	if prefix == "" || !strings.Contains(prefix, "/") {
		return ""
	}

	if len(paths) >= 5 {
		return prefix
	}

	for _, p := range paths {
		if p == prefix || strings.HasSuffix(p, "/") {
			return prefix
		}
	}
	return ""
}

func (d *MassDeleteDetector) Name() string { return "mass_delete" }

func (d *MassDeleteDetector) Analyze(ctx context.Context, item killswitch.Item, window []killswitch.Event) killswitch.ThreatInfo {
	none := killswitch.ThreatInfo{Level: killswitch.LevelNone, DetectorName: d.Name()}

	if item.Instruction != "REMOVE" {
		return none
	}

	var deletedPaths []string
	var oldest, newest int64
	haveBounds := false

	for _, e := range window {
		if e.Kind != killswitch.EventDelete {
			continue
		}
		if d.isWhitelisted(e.Path) {
			continue
		}
		deletedPaths = append(deletedPaths, e.Path)
		ts := e.Timestamp.UnixMilli()
		if !haveBounds {
			oldest, newest = ts, ts
			haveBounds = true
		} else {
			if ts < oldest {
				oldest = ts
			}
			if ts > newest {
				newest = ts
			}
		}
	}

	count := len(deletedPaths)
	if count == 0 {
		return none
	}

	rate := 0.0
	if elapsed := newest - oldest; elapsed > 0 {
		rate = float64(count) * 1000.0 / float64(elapsed)
	}

	treeRoot := detectTreeDeletion(deletedPaths)

	result := killswitch.ThreatInfo{DetectorName: d.Name(), AffectedFiles: deletedPaths}

	switch {
	case count >= d.Threshold*2:
		result.Level = killswitch.LevelCritical
		if treeRoot != "" {
			result.Description = fmt.Sprintf("Critical: Tree deletion of '%s' (%d files)", treeRoot, count)
		} else {
			result.Description = fmt.Sprintf("Critical: %d files deleted (threshold: %d)", count, d.Threshold)
		}
	case count >= d.Threshold:
		result.Level = killswitch.LevelHigh
		result.Description = fmt.Sprintf("High: %d files deleted, approaching critical threshold", count)
	case rate > d.RateLimit:
		result.Level = killswitch.LevelHigh
		result.Description = fmt.Sprintf("High deletion rate: %.1f files/sec (limit: %.1f)", rate, d.RateLimit)
	case float64(count) >= 0.5*float64(d.Threshold):
		result.Level = killswitch.LevelMedium
		result.Description = fmt.Sprintf("Medium: %d files deleted in short window", count)
	default:
		result.Level = killswitch.LevelNone
	}

	return result
}
