package s3

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Region == "" || cfg.Bucket == "" {
		t.Fatalf("expected region and bucket defaults, got %+v", cfg)
	}
	if cfg.UploadTimeout <= 0 {
		t.Fatalf("expected a positive default upload timeout, got %v", cfg.UploadTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing bucket", func(c *Config) { c.Bucket = "" }, true},
		{"missing region", func(c *Config) { c.Region = "" }, true},
		{"access key without secret", func(c *Config) { c.AccessKeyID = "AKIAEXAMPLE" }, true},
		{"secret without access key", func(c *Config) { c.SecretAccessKey = "shhh" }, true},
		{"static credential pair", func(c *Config) {
			c.AccessKeyID = "AKIAEXAMPLE"
			c.SecretAccessKey = "shhh"
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestObjectKeyPrefixing(t *testing.T) {
	cases := []struct {
		prefix string
		key    string
		want   string
	}{
		{"emergency", "2026-08-06_120000/docs/report.docx", "emergency/2026-08-06_120000/docs/report.docx"},
		{"emergency/", "a/b.txt", "emergency/a/b.txt"},
		{"", "a/b.txt", "a/b.txt"},
		{"emergency", "/rooted/a.txt", "emergency/rooted/a.txt"},
	}
	for _, tc := range cases {
		c := &Client{cfg: &Config{Prefix: tc.prefix}}
		if got := c.objectKey(tc.key); got != tc.want {
			t.Errorf("objectKey(%q) with prefix %q = %q, want %q", tc.key, tc.prefix, got, tc.want)
		}
	}
}

func TestUploadRejectsEmptyKey(t *testing.T) {
	c := &Client{cfg: DefaultConfig(), logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	if _, err := c.Upload(context.Background(), &UploadInput{Body: strings.NewReader("x")}); err == nil {
		t.Fatalf("expected an error for an empty object key")
	}
}

// TestClientIntegration exercises Upload and HealthCheck against a live
// S3-compatible endpoint (e.g. a local MinIO). Skipped unless
// RANSOMWATCH_S3_TEST_ENDPOINT is set.
func TestClientIntegration(t *testing.T) {
	endpoint := os.Getenv("RANSOMWATCH_S3_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("RANSOMWATCH_S3_TEST_ENDPOINT not set, skipping integration test")
	}

	cfg := DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.UsePathStyle = true
	cfg.AccessKeyID = os.Getenv("RANSOMWATCH_S3_TEST_ACCESS_KEY")
	cfg.SecretAccessKey = os.Getenv("RANSOMWATCH_S3_TEST_SECRET_KEY")
	if bucket := os.Getenv("RANSOMWATCH_S3_TEST_BUCKET"); bucket != "" {
		cfg.Bucket = bucket
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := NewClient(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	if status := client.HealthCheck(ctx); !status.Healthy {
		t.Fatalf("expected a healthy bucket, got %+v", status)
	}

	out, err := client.Upload(ctx, &UploadInput{
		Key:  "integration-test/sample.txt",
		Body: strings.NewReader("at-risk file contents"),
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if !strings.HasSuffix(out.Key, "integration-test/sample.txt") {
		t.Fatalf("unexpected object key %q", out.Key)
	}
}
