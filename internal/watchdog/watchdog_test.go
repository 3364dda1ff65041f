package watchdog

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Interval != 2*time.Second {
		t.Errorf("Interval = %v, want %v", config.Interval, 2*time.Second)
	}
	if config.HealthCheckInterval != 5*time.Second {
		t.Errorf("HealthCheckInterval = %v, want %v", config.HealthCheckInterval, 5*time.Second)
	}
	if !config.FailOnUnhealthy {
		t.Error("FailOnUnhealthy should be true by default")
	}
}

func TestDefaultConfig_WithEnv(t *testing.T) {
	os.Setenv("NOTIFY_SOCKET", "/run/test.sock")
	os.Setenv("WATCHDOG_USEC", "10000000")
	defer func() {
		os.Unsetenv("NOTIFY_SOCKET")
		os.Unsetenv("WATCHDOG_USEC")
	}()

	config := DefaultConfig()

	if config.NotifySocket != "/run/test.sock" {
		t.Errorf("NotifySocket = %q, want %q", config.NotifySocket, "/run/test.sock")
	}
	if config.WatchdogUSec != 10000000 {
		t.Errorf("WatchdogUSec = %d, want %d", config.WatchdogUSec, 10000000)
	}
	if config.Interval != 5*time.Second {
		t.Errorf("Interval = %v, want %v", config.Interval, 5*time.Second)
	}
}

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	config := &Config{
		Interval:            1 * time.Second,
		HealthCheckInterval: 2 * time.Second,
		HealthCheckTimeout:  1 * time.Second,
	}

	wd, err := New(config, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer wd.Stop()

	if !wd.IsHealthy() {
		t.Error("watchdog should be healthy by default")
	}
}

func TestWatchdog_AddHealthChecker(t *testing.T) {
	wd, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer wd.Stop()

	wd.AddHealthChecker(func(ctx context.Context) *Check {
		return &Check{Name: "test", Healthy: true, Message: "test passed"}
	})

	if len(wd.checkers) != 1 {
		t.Errorf("expected 1 checker, got %d", len(wd.checkers))
	}
}

func TestWatchdog_RunHealthChecks_Failure(t *testing.T) {
	wd, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer wd.Stop()

	wd.AddHealthChecker(func(ctx context.Context) *Check {
		return &Check{Name: "fail", Healthy: false, Message: "something is wrong"}
	})

	health := wd.runHealthChecks()

	if health.Healthy {
		t.Error("expected unhealthy result")
	}
	if health.Message != "something is wrong" {
		t.Errorf("Message = %q, want %q", health.Message, "something is wrong")
	}
}

func TestWatchdog_StartStop(t *testing.T) {
	config := &Config{
		Interval:            50 * time.Millisecond,
		HealthCheckInterval: 100 * time.Millisecond,
		HealthCheckTimeout:  50 * time.Millisecond,
	}

	wd, err := New(config, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := wd.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := wd.Start(); err == nil {
		t.Error("expected error on double start")
	}

	time.Sleep(150 * time.Millisecond)

	if err := wd.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestWatchdog_IsEnabled(t *testing.T) {
	wd, _ := New(nil, nil)
	defer wd.Stop()

	if wd.IsEnabled() {
		t.Error("watchdog should not be enabled without a notify socket")
	}
}

func TestStateConstants(t *testing.T) {
	if string(StateReady) != "READY=1" {
		t.Errorf("StateReady = %q", StateReady)
	}
	if string(StateStopping) != "STOPPING=1" {
		t.Errorf("StateStopping = %q", StateStopping)
	}
}

func TestDiskSpaceChecker(t *testing.T) {
	checker := DiskSpaceChecker("/", 0.999)
	check := checker(context.Background())

	if check == nil {
		t.Fatal("expected non-nil check")
	}
	if check.Name != "disk:/" {
		t.Errorf("Name = %q, want %q", check.Name, "disk:/")
	}
	if !check.Healthy {
		t.Errorf("expected healthy, got: %s", check.Message)
	}
}

func TestDiskSpaceChecker_InvalidPath(t *testing.T) {
	checker := DiskSpaceChecker("/nonexistent/path/that/should/not/exist", 0.5)
	check := checker(context.Background())

	if check.Healthy {
		t.Error("expected unhealthy for invalid path")
	}
}

func TestFileReachableChecker_Missing(t *testing.T) {
	checker := FileReachableChecker("/nonexistent/threat-log.json")
	check := checker(context.Background())

	if !check.Healthy {
		t.Error("a not-yet-created log file should still be reported healthy")
	}
}

func TestFileReachableChecker_Exists(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "watchdog-test-*")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.WriteString("test content")
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	checker := FileReachableChecker(tmpFile.Name())
	check := checker(context.Background())

	if !check.Healthy {
		t.Errorf("expected healthy, got: %s", check.Message)
	}
}

func TestSignalHandler(t *testing.T) {
	handler := NewSignalHandler(nil, nil)

	handler.SetOnShutdown(func() {})
	handler.SetOnReload(func() {})

	handler.Start()
	defer handler.Stop()

	time.Sleep(50 * time.Millisecond)
}
