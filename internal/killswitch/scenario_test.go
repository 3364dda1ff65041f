package killswitch_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"ransomwatch/internal/killswitch"
	"ransomwatch/internal/killswitch/detectors"
)

func newScenarioManager(deleteThreshold int) *killswitch.Manager {
	cfg := killswitch.DefaultManagerConfig()
	cfg.DeleteThreshold = deleteThreshold
	m := killswitch.NewManager(cfg, nil, nil)
	m.RegisterDetector(detectors.NewMassDeleteDetector(deleteThreshold, 1e9))
	m.RegisterDetector(detectors.NewCanaryDetector())
	m.RegisterDetector(detectors.NewPatternDetector(deleteThreshold))
	return m
}

// Scenario 1: mass delete triggers at threshold.
func TestScenarioMassDeleteTriggersAtThreshold(t *testing.T) {
	m := newScenarioManager(5)

	var paused int
	var mu sync.Mutex
	m.OnSyncPaused(func(string) {
		mu.Lock()
		paused++
		mu.Unlock()
	})

	var decision killswitch.Decision
	for i := 0; i < 6; i++ {
		decision = m.AnalyzeItem(context.Background(), killswitch.Item{
			Path: fmt.Sprintf("file%d.txt", i), Instruction: killswitch.InstructionRemove,
		})
	}

	if decision != killswitch.Block {
		t.Fatalf("expected Block on the 6th delete, got %v", decision)
	}
	if !m.IsTriggered() {
		t.Fatalf("expected triggered=true")
	}
	mu.Lock()
	if paused != 1 {
		t.Fatalf("expected sync_paused exactly once, got %d", paused)
	}
	mu.Unlock()
}

// Scenario 2: whitelisted mass delete does not trigger.
func TestScenarioWhitelistedMassDeleteDoesNotTrigger(t *testing.T) {
	m := newScenarioManager(5)

	for i := 0; i < 10; i++ {
		m.AnalyzeItem(context.Background(), killswitch.Item{
			Path: "project/node_modules/pkg_i/index.js", Instruction: killswitch.InstructionRemove,
		})
	}
	if m.IsTriggered() {
		t.Fatalf("expected whitelisted deletes never to trigger")
	}
}

// Scenario 3: canary modify is Critical.
func TestScenarioCanaryModifyIsCritical(t *testing.T) {
	m := newScenarioManager(10)

	decision := m.AnalyzeItem(context.Background(), killswitch.Item{Path: "_canary.txt", Instruction: killswitch.InstructionSync})
	if decision != killswitch.Block {
		t.Fatalf("expected Block, got %v", decision)
	}
	threats := m.Threats()
	if len(threats) == 0 || !strings.Contains(threats[len(threats)-1].Description, "MODIFIED") {
		t.Fatalf("expected last threat description to contain MODIFIED, got %+v", threats)
	}
}

// Scenario 4: new canary file allowed.
func TestScenarioNewCanaryFileAllowed(t *testing.T) {
	m := newScenarioManager(10)

	decision := m.AnalyzeItem(context.Background(), killswitch.Item{Path: "_canary.txt", Instruction: killswitch.InstructionNew})
	if decision != killswitch.Allow {
		t.Fatalf("expected Allow for a newly created canary file, got %v", decision)
	}
	if len(m.Threats()) != 0 {
		t.Fatalf("expected no threat emitted for initial canary setup")
	}
}

// Scenario 5: ransom note detection.
func TestScenarioRansomNoteDetection(t *testing.T) {
	m := newScenarioManager(10)

	decision := m.AnalyzeItem(context.Background(), killswitch.Item{Path: "HOW_TO_DECRYPT.txt", Instruction: killswitch.InstructionNew})
	if decision != killswitch.Block {
		t.Fatalf("expected Block, got %v", decision)
	}
	threats := m.Threats()
	if len(threats) == 0 || !strings.Contains(threats[len(threats)-1].Description, "Ransom note") {
		t.Fatalf("expected threat description to contain 'Ransom note', got %+v", threats)
	}
}

// Scenario 7: reset then re-trigger.
func TestScenarioResetThenRetrigger(t *testing.T) {
	m := newScenarioManager(10)

	m.AnalyzeItem(context.Background(), killswitch.Item{Path: ".canary", Instruction: killswitch.InstructionSync})
	if !m.IsTriggered() {
		t.Fatalf("expected first canary touch to trigger")
	}

	if err := m.Reset(""); err != nil {
		t.Fatalf("unexpected error on reset: %v", err)
	}
	if m.IsTriggered() {
		t.Fatalf("expected triggered=false after reset")
	}

	var retriggered bool
	m.OnTriggeredChanged(func(v bool) {
		if v {
			retriggered = true
		}
	})

	decision := m.AnalyzeItem(context.Background(), killswitch.Item{Path: ".canary", Instruction: killswitch.InstructionRemove})
	if decision != killswitch.Block {
		t.Fatalf("expected Block on re-trigger, got %v", decision)
	}
	if !retriggered {
		t.Fatalf("expected triggered_changed(true) to fire again after reset")
	}
}

func TestScenarioEnabledFalseNeverMutatesState(t *testing.T) {
	m := newScenarioManager(5)
	m.SetEnabled(false)

	for i := 0; i < 20; i++ {
		decision := m.AnalyzeItem(context.Background(), killswitch.Item{
			Path: fmt.Sprintf("f%d.locked", i), Instruction: killswitch.InstructionRemove,
		})
		if decision != killswitch.Allow {
			t.Fatalf("expected every call to Allow while disabled, got %v at i=%d", decision, i)
		}
	}
	if m.IsTriggered() || m.CurrentLevel() != killswitch.LevelNone || len(m.Threats()) != 0 {
		t.Fatalf("expected no state mutation while disabled")
	}
}
