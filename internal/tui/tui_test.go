package tui

import (
	"strings"
	"testing"

	"ransomwatch/internal/tui/api"
)

func TestViewWhileLoading(t *testing.T) {
	m := New("http://127.0.0.1:0")
	view := m.View()
	if !strings.Contains(view, "connecting") {
		t.Fatalf("expected loading view, got %q", view)
	}
}

func TestViewShowsTriggeredStatus(t *testing.T) {
	m := New("http://127.0.0.1:0")
	m.loading = false
	m.stats = &api.Stats{Healthy: true, Triggered: true, Level: "Critical", ThreatCount: 3, Uptime: "1m0s"}

	view := m.View()
	if !strings.Contains(view, "TRIGGERED") {
		t.Fatalf("expected TRIGGERED status in view, got %q", view)
	}
}

func TestViewListsRecentThreats(t *testing.T) {
	m := New("http://127.0.0.1:0")
	m.loading = false
	m.stats = &api.Stats{Healthy: true, Level: "Low"}
	m.threats = []api.Threat{
		{DetectorName: "canary", Description: "Canary file MODIFIED: _canary.txt", Level: 4},
	}

	view := m.View()
	if !strings.Contains(view, "canary") || !strings.Contains(view, "MODIFIED") {
		t.Fatalf("expected threat row in view, got %q", view)
	}
}

func TestLevelLabelBounds(t *testing.T) {
	if got := levelLabel(-1); got != "Unknown" {
		t.Fatalf("expected Unknown for negative level, got %q", got)
	}
	if got := levelLabel(99); got != "Unknown" {
		t.Fatalf("expected Unknown for out-of-range level, got %q", got)
	}
}
