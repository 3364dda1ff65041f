package detectors

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"ransomwatch/internal/killswitch"
)

func TestShannonEntropyEmpty(t *testing.T) {
	if h := shannonEntropy(nil); h != 0 {
		t.Fatalf("expected entropy(empty) = 0, got %v", h)
	}
}

func TestShannonEntropySingleValue(t *testing.T) {
	buf := make([]byte, 4096)
	for i := range buf {
		buf[i] = 'A'
	}
	if h := shannonEntropy(buf); h != 0 {
		t.Fatalf("expected entropy of a single repeated byte = 0, got %v", h)
	}
}

func TestShannonEntropyUniform256(t *testing.T) {
	buf := make([]byte, 256*100)
	for i := range buf {
		buf[i] = byte(i % 256)
	}
	h := shannonEntropy(buf)
	if diff := h - 8.0; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("expected entropy ~8.0 for uniform 256-value distribution, got %v", h)
	}
}

func TestIsNormallyHighEntropy(t *testing.T) {
	for _, ext := range []string{".zip", ".jpg", ".mp4", ".pdf", ".gpg", ".JPG"} {
		if !isNormallyHighEntropy(ext) {
			t.Errorf("expected %s to be whitelisted as normally high entropy", ext)
		}
	}
	for _, ext := range []string{".txt", ".cpp", ".py", ".csv"} {
		if isNormallyHighEntropy(ext) {
			t.Errorf("expected %s not to be whitelisted", ext)
		}
	}
}

func TestSampleOffsetsSmallFile(t *testing.T) {
	offsets := sampleOffsets(32 * 1024)
	if len(offsets) != 1 || offsets[0] != 0 {
		t.Fatalf("expected a single whole-file sample for a small file, got %v", offsets)
	}
}

func TestSampleOffsetsMediumFile(t *testing.T) {
	offsets := sampleOffsets(512 * 1024)
	if len(offsets) != 3 {
		t.Fatalf("expected three sample blocks for a medium file, got %d", len(offsets))
	}
}

func TestSampleOffsetsLargeFile(t *testing.T) {
	offsets := sampleOffsets(10 * 1024 * 1024)
	if len(offsets) != 5 {
		t.Fatalf("expected five sample blocks for a large file, got %d", len(offsets))
	}
}

func writeRandomFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("failed to generate random content: %v", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func TestEntropyDetectorFlagsHighEntropyCreate(t *testing.T) {
	dir := t.TempDir()
	path := writeRandomFile(t, dir, "document.bin", 70*1024)

	d := NewEntropyDetector(7.9, 1000)
	threat := d.Analyze(context.Background(), killswitch.Item{Path: path, Instruction: "NEW", Type: "FILE"}, nil)
	if threat.Level == killswitch.LevelNone {
		t.Fatalf("expected a high-entropy random file to be flagged, got None")
	}
}

func TestEntropyDetectorSkipsWhitelistedExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeRandomFile(t, dir, "archive.zip", 70*1024)

	d := NewEntropyDetector(7.9, 1000)
	threat := d.Analyze(context.Background(), killswitch.Item{Path: path, Instruction: "NEW", Type: "FILE"}, nil)
	if threat.Level != killswitch.LevelNone {
		t.Fatalf("expected a whitelisted extension to be skipped regardless of content, got %v", threat.Level)
	}
}

func TestEntropyDetectorSkipsDirectories(t *testing.T) {
	d := NewEntropyDetector(7.9, 1000)
	threat := d.Analyze(context.Background(), killswitch.Item{Path: "somedir", Instruction: "NEW", Type: "DIRECTORY"}, nil)
	if threat.Level != killswitch.LevelNone {
		t.Fatalf("expected directories to be skipped, got %v", threat.Level)
	}
}

func TestEntropyDetectorSkipsNonCreateModify(t *testing.T) {
	dir := t.TempDir()
	path := writeRandomFile(t, dir, "document.bin", 70*1024)

	d := NewEntropyDetector(7.9, 1000)
	threat := d.Analyze(context.Background(), killswitch.Item{Path: path, Instruction: "REMOVE", Type: "FILE"}, nil)
	if threat.Level != killswitch.LevelNone {
		t.Fatalf("expected entropy detector to ignore non create/modify instructions, got %v", threat.Level)
	}
}

func TestEntropyDetectorUnreadablePathIsNoThreat(t *testing.T) {
	d := NewEntropyDetector(7.9, 1000)
	threat := d.Analyze(context.Background(), killswitch.Item{Path: "/nonexistent/path/file.bin", Instruction: "NEW", Type: "FILE"}, nil)
	if threat.Level != killswitch.LevelNone {
		t.Fatalf("expected an unreadable path to yield no threat, got %v", threat.Level)
	}
}

func TestEntropyDetectorSpikeRule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello world, this is some very ordinary low entropy text content."), 0o644); err != nil {
		t.Fatalf("failed to write low-entropy file: %v", err)
	}

	// Thresholds above 8 bits/byte are unreachable, so only the spike rule
	// can flag the second reading.
	d := NewEntropyDetector(8.1, 1000)
	d.SuspiciousThreshold = 8.1
	// Prime the cache with a low reading.
	d.Analyze(context.Background(), killswitch.Item{Path: path, Instruction: "NEW", Type: "FILE"}, nil)

	highEntropyBuf := make([]byte, 8192)
	if _, err := rand.Read(highEntropyBuf); err != nil {
		t.Fatalf("failed to generate random content: %v", err)
	}
	if err := os.WriteFile(path, highEntropyBuf, 0o644); err != nil {
		t.Fatalf("failed to overwrite file: %v", err)
	}

	threat := d.Analyze(context.Background(), killswitch.Item{Path: path, Instruction: "SYNC", Type: "FILE"}, nil)
	if threat.Level != killswitch.LevelHigh {
		t.Fatalf("expected the spike from low to high entropy to be flagged High, got %v", threat.Level)
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", 1.0)
	c.put("b", 2.0)
	c.put("c", 3.0)

	if _, ok := c.get("a"); ok {
		t.Fatalf("expected the oldest entry to be evicted once capacity is exceeded")
	}
	if v, ok := c.get("c"); !ok || v != 3.0 {
		t.Fatalf("expected the most recent entry to still be cached")
	}
}
