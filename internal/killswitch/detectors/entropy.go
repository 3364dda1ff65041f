package detectors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ransomwatch/internal/killswitch"
)

const (
	blockSize     = 32 * 1024
	wholeFileMax  = 64 * 1024
	threeBlockMax = 1024 * 1024
)

var normallyHighEntropyExtensions = map[string]struct{}{
	".zip": {}, ".7z": {}, ".rar": {}, ".gz": {}, ".bz2": {}, ".xz": {}, ".tgz": {},
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mkv": {}, ".flac": {}, ".ogg": {},
	".pdf": {}, ".docx": {}, ".xlsx": {}, ".pptx": {}, ".odt": {}, ".ods": {},
	".gpg": {}, ".aes": {}, ".enc": {},
}

type entropyRange struct{ lo, hi float64 }

var expectedRanges = map[string]entropyRange{
	".txt": {3.0, 5.5}, ".md": {3.0, 5.5}, ".rst": {3.0, 5.5},
	".cpp": {4.0, 6.0}, ".h": {4.0, 6.0}, ".py": {4.0, 6.0}, ".js": {4.0, 6.0}, ".ts": {4.0, 6.0}, ".java": {4.0, 6.0}, ".c": {4.0, 6.0},
	".json": {3.5, 5.5}, ".xml": {3.5, 5.5}, ".yaml": {3.5, 5.5}, ".yml": {3.5, 5.5}, ".ini": {3.5, 5.5}, ".conf": {3.5, 5.5},
	".csv": {3.0, 5.0}, ".tsv": {3.0, 5.0},
	".html": {4.0, 6.0},
}

var unknownRange = entropyRange{0.0, 8.0}

// entropyCache caches the last measured entropy per path, used only for the
// spike rule. It is a pure optimization: clearing it cannot cause an
// incorrect verdict, only the loss of the spike signal for one observation.
type entropyCache interface {
	get(path string) (float64, bool)
	put(path string, value float64)
}

// lruCache is a small bounded map with insertion-order eviction. A plain
// guarded map suffices here: the cache only feeds the spike rule, so a
// suboptimal eviction costs one missed spike signal at worst.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	order    []string
	values   map[string]float64
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{capacity: capacity, values: make(map[string]float64, capacity)}
}

func (c *lruCache) get(path string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[path]
	return v, ok
}

func (c *lruCache) put(path string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.values[path]; !exists {
		if len(c.order) >= c.capacity && c.capacity > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.values, oldest)
		}
		c.order = append(c.order, path)
	}
	c.values[path] = value
}

// EntropyDetector measures Shannon entropy of sampled file content to catch
// in-place encryption of previously ordinary files.
type EntropyDetector struct {
	HighThreshold       float64
	SuspiciousThreshold float64
	cache               entropyCache
}

// NewEntropyDetector constructs a detector with an in-process LRU cache of
// the given capacity (10000 in the default daemon wiring).
func NewEntropyDetector(highThreshold float64, cacheCapacity int) *EntropyDetector {
	return &EntropyDetector{
		HighThreshold:       highThreshold,
		SuspiciousThreshold: 7.5,
		cache:               newLRUCache(cacheCapacity),
	}
}

// WithCache overrides the default in-process cache, e.g. with a Redis-backed
// implementation shared across a process fleet.
func (d *EntropyDetector) WithCache(c entropyCache) *EntropyDetector {
	d.cache = c
	return d
}

func (d *EntropyDetector) Name() string { return "entropy" }

func shannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	n := float64(len(data))
	h := 0.0
	for _, c := range freq {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// sampleOffsets returns the byte offsets of blockSize-sized blocks to read,
// per the multi-block sampling strategy for a file of the given size.
func sampleOffsets(size int64) []int64 {
	if size <= wholeFileMax {
		return []int64{0}
	}
	if size <= threeBlockMax {
		return []int64{0, size/2 - 16*1024, size - blockSize}
	}
	offsets := make([]int64, 5)
	step := size / 5
	for i := range offsets {
		offsets[i] = int64(i) * step
	}
	return offsets
}

// measureFileEntropy returns the maximum entropy across sampled blocks,
// exiting early if the first sample already exceeds highThreshold.
func measureFileEntropy(path string, highThreshold float64) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 {
		return 0, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	size := info.Size()
	if size <= wholeFileMax {
		buf := make([]byte, size)
		if _, err := f.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		return shannonEntropy(buf), nil
	}

	readLen := int64(blockSize)
	max := 0.0
	for i, offset := range sampleOffsets(size) {
		if offset < 0 {
			offset = 0
		}
		length := readLen
		if offset+length > size {
			length = size - offset
		}
		buf := make([]byte, length)
		if _, err := f.ReadAt(buf, offset); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		h := shannonEntropy(buf)
		if h > max {
			max = h
		}
		if i == 0 && max >= highThreshold {
			return max, nil
		}
	}
	return max, nil
}

func expectedRangeFor(ext string) entropyRange {
	if r, ok := expectedRanges[ext]; ok {
		return r
	}
	return unknownRange
}

func (d *EntropyDetector) Analyze(ctx context.Context, item killswitch.Item, window []killswitch.Event) killswitch.ThreatInfo {
	none := killswitch.ThreatInfo{Level: killswitch.LevelNone, DetectorName: d.Name()}

	if item.Instruction != "NEW" && item.Instruction != "SYNC" && item.Instruction != "CONFLICT" {
		return none
	}
	if item.Type == "DIRECTORY" {
		return none
	}

	ext := strings.ToLower(filepath.Ext(item.Path))
	if _, skip := normallyHighEntropyExtensions[ext]; skip {
		return none
	}

	h, err := measureFileEntropy(item.Path, d.HighThreshold)
	if err != nil {
		// PathUnreadable: entropy cannot be measured, return no threat.
		return none
	}

	rng := expectedRangeFor(ext)
	prev, hasPrev := d.cache.get(item.Path)
	d.cache.put(item.Path, h)

	switch {
	case h >= d.HighThreshold:
		return killswitch.ThreatInfo{
			Level:         killswitch.LevelCritical,
			DetectorName:  d.Name(),
			Description:   fmt.Sprintf("Critical entropy %.2f on %s", h, item.Path),
			AffectedFiles: []string{item.Path},
		}
	case h >= d.SuspiciousThreshold && h > rng.hi:
		return killswitch.ThreatInfo{
			Level:         killswitch.LevelHigh,
			DetectorName:  d.Name(),
			Description:   fmt.Sprintf("Suspicious entropy %.2f (expected <= %.1f) on %s", h, rng.hi, item.Path),
			AffectedFiles: []string{item.Path},
		}
	case hasPrev && h-prev > 2.0 && h > 7.0:
		return killswitch.ThreatInfo{
			Level:         killswitch.LevelHigh,
			DetectorName:  d.Name(),
			Description:   fmt.Sprintf("Entropy spike %.2f -> %.2f on %s", prev, h, item.Path),
			AffectedFiles: []string{item.Path},
		}
	default:
		return none
	}
}

// isNormallyHighEntropy reports whether ext is in the whitelist of file
// types expected to already be high-entropy (archives, media, encrypted).
func isNormallyHighEntropy(ext string) bool {
	_, ok := normallyHighEntropyExtensions[strings.ToLower(ext)]
	return ok
}
