package killswitch

import (
	"testing"
	"time"
)

func TestEventWindowEvict(t *testing.T) {
	w := newEventWindow()
	now := time.Now()

	w.append(Event{Timestamp: now.Add(-2 * time.Minute), Kind: EventDelete, Path: "old.txt"})
	w.append(Event{Timestamp: now.Add(-30 * time.Second), Kind: EventDelete, Path: "recent.txt"})
	w.append(Event{Timestamp: now, Kind: EventCreate, Path: "new.txt"})

	w.evict(now.Add(-time.Minute))

	snap := w.snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 events to survive eviction, got %d", len(snap))
	}
	if snap[0].Path != "recent.txt" || snap[1].Path != "new.txt" {
		t.Fatalf("unexpected survivors after eviction: %+v", snap)
	}
}

func TestEventWindowEvictNoneStale(t *testing.T) {
	w := newEventWindow()
	now := time.Now()
	w.append(Event{Timestamp: now, Kind: EventCreate, Path: "a.txt"})
	w.evict(now.Add(-time.Hour))
	if len(w.snapshot()) != 1 {
		t.Fatalf("expected no eviction, got %d events", len(w.snapshot()))
	}
}

func TestEventWindowClear(t *testing.T) {
	w := newEventWindow()
	w.append(Event{Timestamp: time.Now(), Kind: EventCreate, Path: "a.txt"})
	w.clear()
	if len(w.snapshot()) != 0 {
		t.Fatalf("expected empty window after clear, got %d", len(w.snapshot()))
	}
}

func TestCountDeletes(t *testing.T) {
	now := time.Now()
	events := []Event{
		{Timestamp: now, Kind: EventCreate, Path: "a.txt"},
		{Timestamp: now.Add(time.Second), Kind: EventDelete, Path: "b.txt"},
		{Timestamp: now.Add(2 * time.Second), Kind: EventDelete, Path: "c.txt"},
		{Timestamp: now.Add(3 * time.Second), Kind: EventDelete, Path: "app/node_modules/d.js"},
	}
	count, oldest, newest := countDeletes(events)
	if count != 2 {
		t.Fatalf("expected 2 deletes (whitelisted path excluded), got %d", count)
	}
	if !oldest.Equal(now.Add(time.Second)) || !newest.Equal(now.Add(2*time.Second)) {
		t.Fatalf("unexpected bounds: oldest=%v newest=%v", oldest, newest)
	}
}

func TestHasWhitelistedComponent(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"project/node_modules/pkg/index.js", true},
		{"Project/NODE_MODULES/pkg/index.js", true},
		{"a/b/build/c.o", true},
		{"documents/report.docx", false},
		{"node_modules_backup/file.txt", false},
	}
	for _, c := range cases {
		if got := HasWhitelistedComponent(c.path); got != c.want {
			t.Errorf("HasWhitelistedComponent(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestCountDeletesEmpty(t *testing.T) {
	count, oldest, newest := countDeletes(nil)
	if count != 0 || !oldest.IsZero() || !newest.IsZero() {
		t.Fatalf("expected zero values for empty input, got count=%d oldest=%v newest=%v", count, oldest, newest)
	}
}
