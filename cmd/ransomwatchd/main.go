// Package main is the entry point for the kill switch daemon.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"ransomwatch/internal/config"
	"ransomwatch/internal/errors"
	"ransomwatch/internal/kafka"
	"ransomwatch/internal/killswitch"
	"ransomwatch/internal/killswitch/actions"
	"ransomwatch/internal/killswitch/detectors"
	"ransomwatch/internal/killswitch/statusapi"
	"ransomwatch/internal/storage"
	"ransomwatch/internal/storage/s3"
	"ransomwatch/internal/threatlog"
	"ransomwatch/internal/watchdog"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("RANSOMWATCH_LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	errors.SetProductionMode(os.Getenv("RANSOMWATCH_ENV") == "production")

	slog.Info("configuration loaded", cfg.LogFields()...)

	log, chClient, err := buildThreatLog(cfg)
	if err != nil {
		slog.Error("failed to initialize threat log", "error", err)
		os.Exit(1)
	}
	if chClient != nil {
		defer chClient.Close()
	}

	mgrCfg := killswitch.ManagerConfig{
		Enabled:          cfg.KillSwitch.Enabled,
		DeleteThreshold:  cfg.KillSwitch.DeleteThreshold,
		WindowSeconds:    cfg.KillSwitch.WindowSeconds,
		EntropyThreshold: cfg.KillSwitch.EntropyThreshold,
		CanaryFiles:      cfg.KillSwitch.CanaryFiles,
		AutoBackup:       cfg.KillSwitch.AutoBackup,
		ResetCodeHash:    cfg.KillSwitch.ResetCodeHash,
	}
	mgr := killswitch.NewManager(mgrCfg, log, logger)

	mgr.RegisterDetector(detectors.NewMassDeleteDetector(cfg.KillSwitch.DeleteThreshold, 50))
	entropy := detectors.NewEntropyDetector(7.9, 10000)
	entropy.SuspiciousThreshold = cfg.KillSwitch.EntropyThreshold
	mgr.RegisterDetector(entropy)
	canary := detectors.NewCanaryDetector()
	for _, pattern := range cfg.KillSwitch.CanaryFiles {
		canary.AddPattern(pattern)
	}
	mgr.RegisterDetector(canary)
	mgr.RegisterDetector(detectors.NewPatternDetector(cfg.KillSwitch.DeleteThreshold))

	s3Client, stopActions := registerActions(mgr, cfg, logger)
	defer stopActions()

	mgr.OnTriggeredChanged(func(triggered bool) {
		slog.Warn("kill switch triggered state changed", "triggered", triggered)
	})
	mgr.OnThreatDetected(func(threat killswitch.ThreatInfo) {
		slog.Warn("threat detected",
			"detector", threat.DetectorName,
			"level", threat.Level.String(),
			"description", threat.Description,
		)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr.Start(ctx)
	defer mgr.Stop()

	wd := startWatchdog(cfg, log, s3Client, chClient, logger)

	var apiServer *http.Server
	if cfg.API.Enabled {
		apiServer = startStatusAPI(cfg, mgr)
	}

	sigHandler := watchdog.NewSignalHandler(wd, logger)
	sigHandler.SetOnShutdown(func() {
		slog.Info("shutdown signal received")
		cancel()
	})
	sigHandler.Start()
	defer sigHandler.Stop()

	driveSyncFeed(ctx, mgr, logger)

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("status api shutdown error", "error", err)
		}
		shutdownCancel()
	}

	if wd != nil {
		wd.Stop()
	}

	slog.Info("ransomwatchd exiting")
}

// buildThreatLog constructs the configured backend. For the clickhouse
// backend it also returns the client, so the watchdog can probe the
// connection and shutdown can close it.
func buildThreatLog(cfg *config.Config) (killswitch.ThreatLog, *storage.ClickHouseClient, error) {
	switch cfg.ThreatLog.Backend {
	case "clickhouse":
		chCfg := storage.DefaultClickHouseConfig()
		chCfg.Hosts = cfg.ThreatLog.ClickHouse.Hosts
		if cfg.ThreatLog.ClickHouse.Database != "" {
			chCfg.Database = cfg.ThreatLog.ClickHouse.Database
		}
		chCfg.Username = cfg.ThreatLog.ClickHouse.Username
		chCfg.Password = cfg.ThreatLog.ClickHouse.Password

		chClient, err := storage.NewClickHouseClient(chCfg)
		if err != nil {
			return nil, nil, errors.Wrap(errors.KindLogIOFailure, err)
		}
		chLog := threatlog.NewClickHouseLog(chClient, cfg.ThreatLog.ClickHouse.Table)
		if err := chLog.EnsureTable(context.Background()); err != nil {
			return nil, nil, errors.Wrap(errors.KindLogIOFailure, err)
		}
		return chLog, chClient, nil
	default:
		log, err := threatlog.New(cfg.ThreatLog.Path)
		if err != nil {
			return nil, nil, errors.Wrap(errors.KindLogIOFailure, err)
		}
		return log, nil, nil
	}
}

// registerActions wires the configured actions into mgr. It returns the S3
// client when the S3 action is enabled, so startWatchdog can add a
// connectivity check for it, and a cleanup func that releases whatever the
// actions hold open (currently the Kafka producer).
func registerActions(mgr *killswitch.Manager, cfg *config.Config, logger *slog.Logger) (*s3.Client, func()) {
	if cfg.Backup.Enabled {
		mgr.RegisterAction(actions.NewBackupAction(
			cfg.Backup.Directory, cfg.Backup.RetentionDays, cfg.Backup.MaxSizeMB, logger,
		))
	}

	var s3Client *s3.Client
	if cfg.S3.Enabled {
		s3Cfg := s3.DefaultConfig()
		s3Cfg.Region = cfg.S3.Region
		s3Cfg.Bucket = cfg.S3.Bucket
		s3Cfg.Endpoint = cfg.S3.Endpoint

		client, err := s3.NewClient(context.Background(), s3Cfg, logger)
		if err != nil {
			slog.Error("failed to initialize s3 action, skipping", "error", err)
		} else {
			mgr.RegisterAction(actions.NewS3Action(client, logger))
			s3Client = client
		}
	}

	if cfg.Notify.Enabled {
		mgr.RegisterAction(actions.NewNotifyAction(cfg.Notify.WebhookURL, cfg.Notify.Headers))
	}

	cleanup := func() {}
	if cfg.Kafka.Enabled {
		kafkaCfg := kafka.DefaultConfig()
		kafkaCfg.Brokers = cfg.Kafka.Brokers
		kafkaCfg.Topic = cfg.Kafka.Topic
		producer, err := kafka.NewProducer(kafkaCfg, logger)
		if err != nil {
			slog.Error("failed to initialize kafka action, skipping", "error", err)
		} else {
			mgr.RegisterAction(actions.NewKafkaAction(producer))
			cleanup = func() {
				if err := producer.Close(); err != nil {
					slog.Error("failed to close kafka producer", "error", err)
				}
			}
		}
	}

	return s3Client, cleanup
}

func startWatchdog(cfg *config.Config, log killswitch.ThreatLog, s3Client *s3.Client, chClient *storage.ClickHouseClient, logger *slog.Logger) *watchdog.Watchdog {
	if !cfg.Watchdog.Enabled {
		return nil
	}

	wdCfg := watchdog.DefaultConfig()
	wdCfg.HealthCheckInterval = cfg.Watchdog.HealthCheckPeriod
	wd, err := watchdog.New(wdCfg, logger)
	if err != nil {
		slog.Error("failed to construct watchdog", "error", err)
		return nil
	}

	wd.AddHealthChecker(watchdog.DiskSpaceChecker(cfg.Watchdog.DiskSpacePath, 1-cfg.Watchdog.DiskSpaceMin))
	if l, ok := log.(*threatlog.Log); ok {
		wd.AddHealthChecker(watchdog.FileReachableChecker(l.Path()))
	}
	if s3Client != nil {
		wd.AddHealthChecker(s3HealthChecker(s3Client))
	}
	if chClient != nil {
		wd.AddHealthChecker(clickhouseHealthChecker(chClient))
	}

	if err := wd.Start(); err != nil {
		slog.Error("failed to start watchdog", "error", err)
		return nil
	}
	return wd
}

// s3HealthChecker adapts the S3 client's HealthCheck into a watchdog.Check so
// a stalled offsite backup connection surfaces the same way a full disk does.
func s3HealthChecker(client *s3.Client) watchdog.HealthChecker {
	return func(ctx context.Context) *watchdog.Check {
		status := client.HealthCheck(ctx)
		check := &watchdog.Check{
			Name:    "s3_backup",
			Healthy: status.Healthy,
			Latency: status.Latency,
		}
		if status.Healthy {
			check.Message = "bucket reachable"
		} else {
			check.Message = status.Error
		}
		return check
	}
}

// clickhouseHealthChecker surfaces a lost threat-history connection the
// same way a full backup disk does: the log write on the trigger path
// would fail, so the operator should hear about it before a trigger.
func clickhouseHealthChecker(client *storage.ClickHouseClient) watchdog.HealthChecker {
	return func(ctx context.Context) *watchdog.Check {
		start := time.Now()
		err := client.Ping(ctx)
		check := &watchdog.Check{
			Name:    "threat_log_clickhouse",
			Healthy: err == nil,
			Latency: time.Since(start),
		}
		if err == nil {
			check.Message = "clickhouse reachable"
		} else {
			check.Message = err.Error()
		}
		return check
	}
}

func startStatusAPI(cfg *config.Config, mgr *killswitch.Manager) *http.Server {
	handler := statusapi.NewHandler(mgr)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.HandleFunc("GET /api/threats", handler.Threats)
	mux.HandleFunc("GET /metrics", handler.Metrics)

	server := &http.Server{
		Addr:         cfg.API.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("starting status api", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("status api server error", "error", err)
		}
	}()

	return server
}

// driveSyncFeed reads NDJSON killswitch.Item records from stdin, one per
// line, and feeds them to the manager. It stands in for a real sync
// engine's file-event stream.
func driveSyncFeed(ctx context.Context, mgr *killswitch.Manager, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			var item killswitch.Item
			if err := json.Unmarshal(scanner.Bytes(), &item); err != nil {
				logger.Warn("sync feed: malformed item, skipping", "error", err)
				continue
			}

			decision := mgr.AnalyzeItem(ctx, item)
			if decision == killswitch.Block {
				logger.Warn("sync feed: item blocked", "path", item.Path)
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Error("sync feed: read error", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
	time.Sleep(50 * time.Millisecond) // let in-flight ticker eviction settle before Stop
}
