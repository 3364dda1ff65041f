package actions

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"ransomwatch/internal/killswitch"
	"ransomwatch/internal/storage/s3"
)

// S3Action mirrors affected files to an S3-compatible bucket, for
// deployments that want offsite backup instead of (or in addition to) a
// local BackupAction.
type S3Action struct {
	client *s3.Client
	logger *slog.Logger
}

// NewS3Action wraps an already-constructed S3 client (see s3.NewClient).
func NewS3Action(client *s3.Client, logger *slog.Logger) *S3Action {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Action{client: client, logger: logger}
}

func (a *S3Action) Name() string { return "s3_backup" }

func (a *S3Action) Execute(ctx context.Context, threat killswitch.ThreatInfo) error {
	if len(threat.AffectedFiles) == 0 {
		return nil
	}

	session := time.Now().Format(backupSessionLayout)
	var succeeded, failed int

	for _, path := range threat.AffectedFiles {
		if err := a.uploadFile(ctx, session, path); err != nil {
			a.logger.Warn("s3_backup: failed to upload file", "path", path, "error", err)
			failed++
			continue
		}
		succeeded++
	}

	a.logger.Info("s3_backup: complete",
		"threat_id", threat.ID, "session", session, "succeeded", succeeded, "failed", failed)
	return nil
}

func (a *S3Action) uploadFile(ctx context.Context, session, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("source unreadable: %w", err)
	}
	if info.IsDir() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer f.Close()

	key := fmt.Sprintf("%s/%s", session, strings.TrimPrefix(path, "/"))
	_, err = a.client.Upload(ctx, &s3.UploadInput{
		Key:  key,
		Body: f,
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}
