package detectors

import (
	"context"
	"strings"
	"testing"

	"ransomwatch/internal/killswitch"
)

func TestPatternRansomNoteDetection(t *testing.T) {
	d := NewPatternDetector(3)
	threat := d.Analyze(context.Background(), killswitch.Item{Path: "HOW_TO_DECRYPT.txt", Instruction: "NEW"}, nil)
	if threat.Level != killswitch.LevelCritical {
		t.Fatalf("expected Critical for a ransom note filename, got %v", threat.Level)
	}
	if !strings.Contains(threat.Description, "Ransom note") {
		t.Fatalf("expected description to mention 'Ransom note', got %q", threat.Description)
	}
}

func TestPatternRansomNoteCaseInsensitive(t *testing.T) {
	d := NewPatternDetector(3)
	threat := d.Analyze(context.Background(), killswitch.Item{Path: "ReadMe.TXT", Instruction: "NEW"}, nil)
	if threat.Level != killswitch.LevelCritical {
		t.Fatalf("expected case-insensitive ransom-note match, got %v", threat.Level)
	}
}

func TestPatternSingleRansomwareExtensionIsLow(t *testing.T) {
	d := NewPatternDetector(10)
	threat := d.Analyze(context.Background(), killswitch.Item{Path: "family_photo.locked", Instruction: "SYNC"}, nil)
	if threat.Level != killswitch.LevelLow {
		t.Fatalf("expected Low for a single ransomware-extension hit, got %v", threat.Level)
	}
}

func TestPatternExtensionCaseInsensitive(t *testing.T) {
	d := NewPatternDetector(10)
	threat := d.Analyze(context.Background(), killswitch.Item{Path: "family_photo.LOCKED", Instruction: "SYNC"}, nil)
	if threat.Level != killswitch.LevelLow {
		t.Fatalf("expected case-insensitive extension match, got %v", threat.Level)
	}
}

func TestPatternDoubleExtensionIsMedium(t *testing.T) {
	d := NewPatternDetector(10)
	threat := d.Analyze(context.Background(), killswitch.Item{Path: "invoice.pdf.locked", Instruction: "NEW"}, nil)
	if threat.Level != killswitch.LevelMedium {
		t.Fatalf("expected Medium for a normal+ransomware double extension, got %v", threat.Level)
	}
}

func TestPatternMassEncryptionEscalatesToCritical(t *testing.T) {
	d := NewPatternDetector(3)
	var window []killswitch.Event
	for i := 0; i < 6; i++ {
		window = append(window, killswitch.Event{Kind: killswitch.EventCreate, Path: "file.locked"})
	}
	threat := d.Analyze(context.Background(), killswitch.Item{Path: "file.locked", Instruction: "NEW"}, window)
	if threat.Level != killswitch.LevelCritical {
		t.Fatalf("expected Critical once suspicious count crosses 2x threshold, got %v", threat.Level)
	}
}

func TestPatternIgnoresNonCreateModify(t *testing.T) {
	d := NewPatternDetector(1)
	threat := d.Analyze(context.Background(), killswitch.Item{Path: "a.locked", Instruction: "REMOVE"}, nil)
	if threat.Level != killswitch.LevelNone {
		t.Fatalf("expected pattern detector to ignore non create/modify instructions, got %v", threat.Level)
	}
}

func TestPatternUnrelatedFileIsNone(t *testing.T) {
	d := NewPatternDetector(3)
	threat := d.Analyze(context.Background(), killswitch.Item{Path: "notes.txt", Instruction: "NEW"}, nil)
	if threat.Level != killswitch.LevelNone {
		t.Fatalf("expected no verdict for an ordinary file, got %v", threat.Level)
	}
}

func TestPatternAddCustomExtensionAndPattern(t *testing.T) {
	d := NewPatternDetector(10)
	d.AddCustomExtension("mycrypt")
	if !d.hasRansomwareExtension("file.mycrypt") {
		t.Fatalf("expected custom extension to be recognized")
	}

	if err := d.AddCustomPattern(`^custom-note\.txt$`); err != nil {
		t.Fatalf("unexpected error adding a valid pattern: %v", err)
	}
	if !d.isRansomNote("custom-note.txt") {
		t.Fatalf("expected custom ransom-note pattern to match")
	}

	if err := d.AddCustomPattern(`(unterminated`); err == nil {
		t.Fatalf("expected an invalid regex to be rejected")
	}
}
