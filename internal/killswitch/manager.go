package killswitch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// EventBus callbacks. Subscribers must not block or re-enter the manager.
type (
	EnabledChangedFunc     func(enabled bool)
	TriggeredChangedFunc   func(triggered bool)
	ThreatLevelChangedFunc func(level ThreatLevel)
	ThreatDetectedFunc     func(threat ThreatInfo)
	SyncPausedFunc         func(reason string)
	SyncResumedFunc        func()
	BackupCreatedFunc      func(path string)
)

// ManagerConfig holds the tunables a sync-client settings layer would
// persist under the killSwitch/ namespace.
type ManagerConfig struct {
	Enabled          bool
	DeleteThreshold  int
	WindowSeconds    int
	EntropyThreshold float64
	CanaryFiles      []string
	AutoBackup       bool
	// ResetCodeHash, if non-empty, gates Reset behind a bcrypt-verified code.
	ResetCodeHash string
}

// DefaultManagerConfig returns the stock killSwitch/ settings.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Enabled:          true,
		DeleteThreshold:  10,
		WindowSeconds:    60,
		EntropyThreshold: 7.5,
		CanaryFiles:      []string{"_canary.txt", ".canary", "zzz_canary.txt"},
		AutoBackup:       true,
	}
}

// Manager is the kill switch coordinator. It owns the event window, the
// in-memory threat buffer, triggered/level state, and the ordered detector
// and action lists. All mutable state is guarded by mu; detectors run
// against a released snapshot of the window, never while mu is held.
type Manager struct {
	mu sync.Mutex

	logger *slog.Logger
	log    ThreatLog

	cfg ManagerConfig

	enabled   bool
	triggered bool
	level     ThreatLevel
	window    *eventWindow
	threats   []ThreatInfo

	detectors []Detector
	actions   []Action

	onEnabledChanged     []EnabledChangedFunc
	onTriggeredChanged   []TriggeredChangedFunc
	onThreatLevelChanged []ThreatLevelChangedFunc
	onThreatDetected     []ThreatDetectedFunc
	onSyncPaused         []SyncPausedFunc
	onSyncResumed        []SyncResumedFunc
	onBackupCreated      []BackupCreatedFunc

	tickerCancel context.CancelFunc
	tickerDone   chan struct{}
}

// SessionReporter is implemented by actions that materialize an on-disk
// backup session, letting the manager emit backup_created with the real
// session path and honor the auto-backup toggle.
type SessionReporter interface {
	LastSession() string
}

// ThreatLog is the durability contract the manager logs every trigger to.
// Defined here (rather than imported) so the manager has no hard dependency
// on a particular backend; internal/threatlog provides implementations.
type ThreatLog interface {
	Log(threat ThreatInfo, actionTaken string) error
}

// NewManager constructs a manager with the given config, logger, and
// threat-log handle. It does not start the window-eviction ticker; call
// Start for that.
func NewManager(cfg ManagerConfig, log ThreatLog, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:  logger,
		log:     log,
		cfg:     cfg,
		enabled: cfg.Enabled,
		level:   LevelNone,
		window:  newEventWindow(),
	}
}

// Start begins the periodic (~1s) window-eviction ticker. Safe to call once;
// Stop must be called on shutdown to avoid callbacks on a dead coordinator.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.tickerCancel = cancel
	m.tickerDone = make(chan struct{})

	go func() {
		defer close(m.tickerDone)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.evictStale()
			}
		}
	}()
}

// Stop cancels the eviction ticker and waits for it to exit.
func (m *Manager) Stop() {
	if m.tickerCancel == nil {
		return
	}
	m.tickerCancel()
	<-m.tickerDone
}

func (m *Manager) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(m.cfg.WindowSeconds) * time.Second)
	m.window.evict(cutoff)
}

// RegisterDetector appends a detector; evaluation order is registration order.
func (m *Manager) RegisterDetector(d Detector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectors = append(m.detectors, d)
}

// RegisterAction appends a response action; execution order is registration order.
func (m *Manager) RegisterAction(a Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, a)
}

func (m *Manager) OnEnabledChanged(fn EnabledChangedFunc)         { m.onEnabledChanged = append(m.onEnabledChanged, fn) }
func (m *Manager) OnTriggeredChanged(fn TriggeredChangedFunc)     { m.onTriggeredChanged = append(m.onTriggeredChanged, fn) }
func (m *Manager) OnThreatLevelChanged(fn ThreatLevelChangedFunc) { m.onThreatLevelChanged = append(m.onThreatLevelChanged, fn) }
func (m *Manager) OnThreatDetected(fn ThreatDetectedFunc)         { m.onThreatDetected = append(m.onThreatDetected, fn) }
func (m *Manager) OnSyncPaused(fn SyncPausedFunc)                 { m.onSyncPaused = append(m.onSyncPaused, fn) }
func (m *Manager) OnSyncResumed(fn SyncResumedFunc)               { m.onSyncResumed = append(m.onSyncResumed, fn) }
func (m *Manager) OnBackupCreated(fn BackupCreatedFunc)           { m.onBackupCreated = append(m.onBackupCreated, fn) }

// SetEnabled toggles the user-facing enable switch.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
	m.emitEnabledChanged(enabled)
}

// SetDeleteThreshold updates the mass-delete threshold and window length.
func (m *Manager) SetDeleteThreshold(count, windowSeconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.DeleteThreshold = count
	m.cfg.WindowSeconds = windowSeconds
}

// SetEntropyThreshold records the entropy threshold in the manager's
// configuration. Detectors that are already registered keep their own
// thresholds; the value is not passed on to them.
func (m *Manager) SetEntropyThreshold(x float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.EntropyThreshold = x
}

// AddCanaryFile appends a canary pattern to the manager's configuration.
func (m *Manager) AddCanaryFile(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.CanaryFiles = append(m.cfg.CanaryFiles, name)
}

// SetAutoBackup toggles whether BackupAction (if registered) runs automatically on trigger.
func (m *Manager) SetAutoBackup(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.AutoBackup = enabled
}

// instructionToEventKind maps a pending instruction to the Event.Kind
// recorded in the window. Conflict is folded into Modify and Rename maps to
// EventRename. Any other instruction returns ok=false and is allowed without
// recording an event.
func instructionToEventKind(instr Instruction) (EventKind, bool) {
	switch instr {
	case InstructionRemove:
		return EventDelete, true
	case InstructionNew:
		return EventCreate, true
	case InstructionSync, InstructionConflict:
		return EventModify, true
	case InstructionRename:
		return EventRename, true
	default:
		return "", false
	}
}

// AnalyzeItem is the sync engine's entry point for one pending operation.
func (m *Manager) AnalyzeItem(ctx context.Context, item Item) Decision {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return Allow
	}
	if m.triggered {
		m.mu.Unlock()
		return Block
	}

	kind, ok := instructionToEventKind(item.Instruction)
	if !ok {
		m.mu.Unlock()
		return Allow
	}

	m.window.append(Event{Timestamp: time.Now(), Kind: kind, Path: item.Path})
	windowSnapshot := append([]Event(nil), m.window.snapshot()...)
	detectors := append([]Detector(nil), m.detectors...)
	m.mu.Unlock()

	maxLevel := LevelNone
	var maxDescription string
	for _, d := range detectors {
		threat := m.runDetector(ctx, d, item, windowSnapshot)
		if threat.Level == LevelNone {
			continue
		}
		threat = NewThreatInfo(threat.DetectorName, threat.Level, threat.Description, threat.AffectedFiles)

		m.mu.Lock()
		m.threats = append(m.threats, threat)
		m.mu.Unlock()
		m.emitThreatDetected(threat)

		if threat.Level > maxLevel {
			maxLevel = threat.Level
			maxDescription = threat.Description
		}
	}

	if maxLevel >= LevelHigh {
		m.trigger(ctx, maxDescription)
		return Block
	}

	if m.recomputeAggregateLevel(ctx, windowSnapshot) {
		return Block
	}
	return Allow
}

// runDetector calls a single detector, converting a panic into a None
// verdict with a warning log so one misbehaving detector never aborts the
// analysis of the other registered detectors.
func (m *Manager) runDetector(ctx context.Context, d Detector, item Item, window []Event) (result ThreatInfo) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("detector panicked, treating as no threat", "detector", d.Name(), "panic", r)
			result = ThreatInfo{Level: LevelNone, DetectorName: d.Name()}
		}
	}()
	return d.Analyze(ctx, item, window)
}

// AnalyzeBatch evaluates a batch of pending operations. A batch whose
// cumulative deletes exceed 2x the delete threshold triggers immediately
// without per-item detector work; otherwise each item runs through
// AnalyzeItem in order, stopping at the first Block.
func (m *Manager) AnalyzeBatch(ctx context.Context, items []Item) Decision {
	m.mu.Lock()
	threshold := m.cfg.DeleteThreshold
	m.mu.Unlock()

	deleteCount := 0
	for _, item := range items {
		if item.Instruction == InstructionRemove {
			deleteCount++
		}
	}

	if deleteCount > threshold*2 {
		m.trigger(ctx, fmt.Sprintf("massive batch deletion: %d", deleteCount))
		return Block
	}

	for _, item := range items {
		if m.AnalyzeItem(ctx, item) == Block {
			return Block
		}
	}
	return Allow
}

// recomputeAggregateLevel implements the aggregate-level heuristic: when no
// individual detector crossed High, classify based on recent delete volume
// alone, auto-triggering on a Critical crossing. Reports whether this call
// triggered the kill switch.
func (m *Manager) recomputeAggregateLevel(ctx context.Context, window []Event) bool {
	m.mu.Lock()
	threshold := m.cfg.DeleteThreshold
	windowSeconds := m.cfg.WindowSeconds
	deleteCount, _, _ := countDeletes(window)

	var level ThreatLevel
	switch {
	case deleteCount >= threshold:
		level = LevelCritical
	case float64(deleteCount) >= 0.7*float64(threshold):
		level = LevelHigh
	case float64(deleteCount) >= 0.5*float64(threshold):
		level = LevelMedium
	case float64(deleteCount) >= 0.3*float64(threshold):
		level = LevelLow
	default:
		level = LevelNone
	}

	changed := level != m.level
	m.level = level
	shouldTrigger := level == LevelCritical && !m.triggered
	m.mu.Unlock()

	if changed {
		m.emitThreatLevelChanged(level)
	}
	if shouldTrigger {
		m.trigger(ctx, fmt.Sprintf("Deletion threshold exceeded: %d files in %d seconds", deleteCount, windowSeconds))
	}
	return shouldTrigger
}

// Trigger manually latches the kill switch with the given reason, as a
// GUI panic button or an operator script would. Idempotent once triggered.
func (m *Manager) Trigger(ctx context.Context, reason string) {
	m.trigger(ctx, reason)
}

// trigger is the idempotent latch: on the first call it flips triggered,
// sets level to Critical, executes every registered action (in registration
// order, after the flip so actions observe a consistent triggered state),
// logs the synthetic threat, and emits the trigger event sequence. A
// second call while already triggered is a no-op.
func (m *Manager) trigger(ctx context.Context, reason string) {
	m.mu.Lock()
	if m.triggered {
		m.mu.Unlock()
		return
	}
	m.triggered = true
	m.level = LevelCritical
	threat := NewThreatInfo("KillSwitchManager", LevelCritical, reason, nil)
	m.threats = append(m.threats, threat)
	actions := append([]Action(nil), m.actions...)
	autoBackup := m.cfg.AutoBackup
	m.mu.Unlock()

	for _, a := range actions {
		reporter, isBackup := a.(SessionReporter)
		if isBackup && !autoBackup {
			m.logger.Info("auto-backup disabled, skipping action", "action", a.Name())
			continue
		}
		if err := a.Execute(ctx, threat); err != nil {
			m.logger.Error("action failed", "action", a.Name(), "error", err)
		} else if isBackup {
			if session := reporter.LastSession(); session != "" {
				m.emitBackupCreated(session)
			}
		}
	}

	if m.log != nil {
		if err := m.log.Log(threat, "triggered"); err != nil {
			m.logger.Error("failed to write threat log", "error", err)
		}
	}

	m.emitTriggeredChanged(true)
	m.emitThreatLevelChanged(LevelCritical)
	m.emitSyncPaused(reason)
}

// Reset clears triggered state, current level, in-memory threats, and the
// event window. EntropyDetector's cache, if any, deliberately survives —
// it is a pure optimization and the spike rule self-corrects after one more
// observation. If cfg.ResetCodeHash is set, code must verify against it.
func (m *Manager) Reset(code string) error {
	m.mu.Lock()
	if m.cfg.ResetCodeHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(m.cfg.ResetCodeHash), []byte(code)); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("reset code rejected: %w", err)
		}
	}

	m.triggered = false
	m.level = LevelNone
	m.threats = nil
	m.window.clear()
	m.mu.Unlock()

	m.emitTriggeredChanged(false)
	m.emitThreatLevelChanged(LevelNone)
	m.emitSyncResumed()
	return nil
}

// Threats returns a copy of the in-memory threat buffer since last reset.
func (m *Manager) Threats() []ThreatInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ThreatInfo(nil), m.threats...)
}

// IsTriggered reports the current latched state.
func (m *Manager) IsTriggered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggered
}

// CurrentLevel reports the current aggregate severity.
func (m *Manager) CurrentLevel() ThreatLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

func (m *Manager) emitEnabledChanged(v bool) {
	for _, fn := range m.onEnabledChanged {
		fn(v)
	}
}
func (m *Manager) emitTriggeredChanged(v bool) {
	for _, fn := range m.onTriggeredChanged {
		fn(v)
	}
}
func (m *Manager) emitThreatLevelChanged(v ThreatLevel) {
	for _, fn := range m.onThreatLevelChanged {
		fn(v)
	}
}
func (m *Manager) emitThreatDetected(t ThreatInfo) {
	for _, fn := range m.onThreatDetected {
		fn(t)
	}
}
func (m *Manager) emitSyncPaused(reason string) {
	for _, fn := range m.onSyncPaused {
		fn(reason)
	}
}
func (m *Manager) emitSyncResumed() {
	for _, fn := range m.onSyncResumed {
		fn()
	}
}
func (m *Manager) emitBackupCreated(path string) {
	for _, fn := range m.onBackupCreated {
		fn(path)
	}
}
