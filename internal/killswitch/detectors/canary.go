package detectors

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"ransomwatch/internal/killswitch"
)

var defaultCanaryPatterns = []string{
	"_canary.txt", ".canary", "zzz_canary.txt", "DO_NOT_DELETE.sentinel", ".killswitch_canary",
}

// CanaryDetector flags any touch of a honeypot filename. Creation is
// allowed (initial setup); any delete, modify, or rename touching a canary
// basename is Critical.
type CanaryDetector struct {
	patterns []string
}

// NewCanaryDetector constructs a detector seeded with the default patterns.
func NewCanaryDetector() *CanaryDetector {
	return &CanaryDetector{patterns: append([]string(nil), defaultCanaryPatterns...)}
}

// AddPattern registers an additional canary filename pattern. "*" and "?"
// are treated as shell-style wildcards; anything else must equal the whole
// basename. Both kinds match case-insensitively.
func (d *CanaryDetector) AddPattern(pattern string) {
	d.patterns = append(d.patterns, pattern)
}

func (d *CanaryDetector) RemovePattern(pattern string) {
	for i, p := range d.patterns {
		if p == pattern {
			d.patterns = append(d.patterns[:i], d.patterns[i+1:]...)
			return
		}
	}
}

// wildcardToRegexp converts a glob-style pattern (using * and ?) into an
// anchored, case-insensitive regular expression.
func wildcardToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func (d *CanaryDetector) isCanaryFile(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range d.patterns {
		if strings.ContainsAny(pattern, "*?") {
			if wildcardToRegexp(pattern).MatchString(base) {
				return true
			}
			continue
		}
		if strings.EqualFold(base, pattern) {
			return true
		}
	}
	return false
}

func (d *CanaryDetector) Name() string { return "canary" }

func (d *CanaryDetector) Analyze(ctx context.Context, item killswitch.Item, window []killswitch.Event) killswitch.ThreatInfo {
	none := killswitch.ThreatInfo{Level: killswitch.LevelNone, DetectorName: d.Name()}

	isCanary := d.isCanaryFile(item.Path)
	if item.Instruction == "RENAME" {
		isCanary = isCanary || d.isCanaryFile(item.RenameFrom)
	}
	if !isCanary {
		return none
	}

	var op string
	switch item.Instruction {
	case "REMOVE":
		op = "DELETED"
	case "SYNC", "CONFLICT":
		op = "MODIFIED"
	case "RENAME":
		op = "RENAMED"
	case "NEW":
		return none // initial setup is allowed
	default:
		op = "TOUCHED"
	}

	return killswitch.ThreatInfo{
		Level:         killswitch.LevelCritical,
		DetectorName:  d.Name(),
		Description:   fmt.Sprintf("Canary file %s: %s", op, item.Path),
		AffectedFiles: []string{item.Path},
	}
}
