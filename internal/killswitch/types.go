// Package killswitch implements the anti-ransomware detection-and-response
// engine: a sliding window of recent file operations, a set of pluggable
// threat detectors, a set of pluggable response actions, and the
// coordinator that ties them together.
package killswitch

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the kind of file operation an Event records.
type EventKind string

const (
	EventCreate EventKind = "CREATE"
	EventModify EventKind = "MODIFY"
	EventDelete EventKind = "DELETE"
	EventRename EventKind = "RENAME"
)

// Instruction is the pending sync operation the sync engine is about to
// commit. Conflict is folded into Modify for all accounting purposes.
type Instruction string

const (
	InstructionNew      Instruction = "NEW"
	InstructionSync     Instruction = "SYNC"
	InstructionRemove   Instruction = "REMOVE"
	InstructionRename   Instruction = "RENAME"
	InstructionConflict Instruction = "CONFLICT"
)

// ItemType distinguishes a regular file from a directory.
type ItemType string

const (
	ItemFile      ItemType = "FILE"
	ItemDirectory ItemType = "DIRECTORY"
)

// Item is one pending file operation handed to the manager by the sync engine.
type Item struct {
	Path        string
	Instruction Instruction
	Type        ItemType
	// RenameFrom is the prior path when Instruction is RENAME; empty otherwise.
	RenameFrom string
}

// Event records one observed file operation inside the sliding window.
type Event struct {
	Timestamp time.Time
	Kind      EventKind
	Path      string
}

// ThreatLevel is a totally ordered detector verdict.
type ThreatLevel int

const (
	LevelNone ThreatLevel = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l ThreatLevel) String() string {
	switch l {
	case LevelNone:
		return "None"
	case LevelLow:
		return "Low"
	case LevelMedium:
		return "Medium"
	case LevelHigh:
		return "High"
	case LevelCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// ParseThreatLevel parses the String() form back into a ThreatLevel,
// defaulting to LevelNone for anything unrecognized.
func ParseThreatLevel(s string) ThreatLevel {
	switch s {
	case "Critical":
		return LevelCritical
	case "High":
		return LevelHigh
	case "Medium":
		return LevelMedium
	case "Low":
		return LevelLow
	default:
		return LevelNone
	}
}

// ThreatInfo is a detection result: produced by a Detector, or synthesized
// by the manager on a manual/aggregate trigger.
type ThreatInfo struct {
	ID             string
	Level          ThreatLevel
	DetectorName   string
	Description    string
	AffectedFiles  []string
	Timestamp      time.Time
}

// NewThreatInfo stamps a fresh ID and timestamp onto a detector's verdict.
func NewThreatInfo(detector string, level ThreatLevel, description string, affected []string) ThreatInfo {
	return ThreatInfo{
		ID:            uuid.NewString(),
		Level:         level,
		DetectorName:  detector,
		Description:   description,
		AffectedFiles: affected,
		Timestamp:     time.Now(),
	}
}

// Decision is the manager's verdict on a pending Item.
type Decision int

const (
	Allow Decision = iota
	Block
)

func (d Decision) String() string {
	if d == Block {
		return "Block"
	}
	return "Allow"
}

// Detector is a capability trait: given the current item and the window of
// recently observed events, it returns exactly one ThreatInfo (possibly
// LevelNone). Detectors must be safe for concurrent use by one manager.
type Detector interface {
	Name() string
	Analyze(ctx context.Context, item Item, window []Event) ThreatInfo
}

// Action is a capability trait: a response executed with the triggering
// ThreatInfo. Actions must not hold the manager's lock and must treat their
// own failures as local (logged, never fatal to the trigger path).
type Action interface {
	Name() string
	Execute(ctx context.Context, threat ThreatInfo) error
}
