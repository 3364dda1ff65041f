// Package s3 is the offsite mirror for files the kill switch flags as at
// risk. It exposes only the surface the emergency-copy path needs: upload
// one object, probe the bucket. Recovery from the mirror is an operator
// task done with standard S3 tooling, not something this daemon automates.
package s3

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds connection settings for the offsite bucket.
type Config struct {
	Region string `yaml:"region"`
	Bucket string `yaml:"bucket"`
	// Endpoint overrides the AWS endpoint, for MinIO and other
	// S3-compatible stores.
	Endpoint string `yaml:"endpoint,omitempty"`
	// Static credentials. When both are empty the SDK's default chain
	// (env vars, shared config, instance role) applies.
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	// Prefix namespaces every object key, so one bucket can hold the
	// mirrors of several protected hosts.
	Prefix string `yaml:"prefix,omitempty"`
	// UsePathStyle is required by most non-AWS endpoints.
	UsePathStyle  bool          `yaml:"use_path_style"`
	UploadTimeout time.Duration `yaml:"upload_timeout"`
}

// DefaultConfig returns the default offsite-mirror configuration.
func DefaultConfig() *Config {
	return &Config{
		Region:        "us-east-1",
		Bucket:        "ransomwatch-archive",
		Prefix:        "emergency",
		UploadTimeout: 60 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3: bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3: region is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return fmt.Errorf("s3: access key id and secret access key must be set together")
	}
	return nil
}

// Client uploads at-risk files to the offsite bucket.
type Client struct {
	api    *awss3.Client
	cfg    *Config
	logger *slog.Logger
}

// NewClient builds a client for the configured bucket. Construction does
// not touch the network; the first Upload or HealthCheck does.
func NewClient(ctx context.Context, cfg *Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load aws config: %w", err)
	}

	api := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Client{api: api, cfg: cfg, logger: logger}, nil
}

// objectKey joins the configured prefix with the caller's key.
func (c *Client) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if c.cfg.Prefix == "" {
		return key
	}
	return strings.TrimSuffix(c.cfg.Prefix, "/") + "/" + key
}

// UploadInput names one object to store.
type UploadInput struct {
	Key         string
	Body        io.Reader
	ContentType string
}

// UploadOutput reports where the object landed.
type UploadOutput struct {
	Bucket string
	Key    string
	ETag   string
}

// Upload stores one object under the configured prefix.
func (c *Client) Upload(ctx context.Context, input *UploadInput) (*UploadOutput, error) {
	if input.Key == "" {
		return nil, fmt.Errorf("s3: object key is required")
	}
	if c.cfg.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.UploadTimeout)
		defer cancel()
	}

	key := c.objectKey(input.Key)
	put := &awss3.PutObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
		Body:   input.Body,
	}
	if input.ContentType != "" {
		put.ContentType = aws.String(input.ContentType)
	}

	out, err := c.api.PutObject(ctx, put)
	if err != nil {
		return nil, fmt.Errorf("s3: put object %s: %w", key, err)
	}

	result := &UploadOutput{Bucket: c.cfg.Bucket, Key: key}
	if out.ETag != nil {
		result.ETag = *out.ETag
	}
	c.logger.Debug("s3: uploaded object", "bucket", c.cfg.Bucket, "key", key)
	return result, nil
}

// HealthStatus is the result of a bucket probe.
type HealthStatus struct {
	Healthy bool
	Latency time.Duration
	Error   string
}

// HealthCheck probes the bucket with a HeadBucket call, so a severed
// offsite connection surfaces through the watchdog before a trigger
// needs it.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.api.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(c.cfg.Bucket)})
	status := HealthStatus{Healthy: err == nil, Latency: time.Since(start)}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.cfg.Bucket }
