// Package config loads process configuration from TELECARE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"telecare/internal/blob"
	"telecare/internal/persistence"
)

// Prefix is the environment variable prefix.
const Prefix = "TELECARE"

// Config is the full process configuration.
type Config struct {
	Namespace string `envconfig:"NAMESPACE" default:"telecare"`
	SessionID string `envconfig:"SESSION_ID" default:"default"`
	SeedFile  string `envconfig:"SEED_FILE"`

	Storage  StorageConfig  `envconfig:"STORAGE"`
	Blob     BlobConfig     `envconfig:"BLOB"`
	Backend  BackendConfig  `envconfig:"BACKEND"`
	Realtime RealtimeConfig `envconfig:"REALTIME"`
	HTTP     HTTPConfig     `envconfig:"HTTP"`
	Log      LogConfig      `envconfig:"LOG"`
}

// StorageConfig selects the snapshot backend.
type StorageConfig struct {
	Driver      string `envconfig:"DRIVER" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"telecare.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN"`
	BlobPrefix  string `envconfig:"BLOB_PREFIX" default:"snapshots"`
}

// BlobConfig configures object storage for the blob snapshot driver.
type BlobConfig struct {
	Driver            string `envconfig:"DRIVER" default:"fs"`
	FSRoot            string `envconfig:"FS_ROOT" default:"data/blobs"`
	S3Bucket          string `envconfig:"S3_BUCKET"`
	S3Region          string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint        string `envconfig:"S3_ENDPOINT"`
	S3Prefix          string `envconfig:"S3_PREFIX"`
	S3PathStyle       bool   `envconfig:"S3_PATH_STYLE"`
	S3AccessKeyID     string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
}

// BackendConfig points at the managed backend.
type BackendConfig struct {
	URL     string        `envconfig:"URL"`
	APIKey  string        `envconfig:"API_KEY"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"15s"`
}

// RealtimeConfig selects the change-event source.
type RealtimeConfig struct {
	Driver      string `envconfig:"DRIVER" default:"memory"`
	PostgresDSN string `envconfig:"POSTGRES_DSN"`
	Channel     string `envconfig:"CHANNEL" default:"telecare_changes"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"text"`
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints and fills derived defaults.
func (c *Config) Validate() error {
	var errs []error
	switch persistence.Driver(c.Storage.Driver) {
	case persistence.DriverMemory, persistence.DriverSQLite, persistence.DriverBlob:
	case persistence.DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("TELECARE_STORAGE_POSTGRES_DSN is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if persistence.Driver(c.Storage.Driver) == persistence.DriverBlob {
		switch blob.Driver(c.Blob.Driver) {
		case blob.DriverFilesystem, blob.DriverMemory:
		case blob.DriverS3:
			if c.Blob.S3Bucket == "" {
				errs = append(errs, errors.New("TELECARE_BLOB_S3_BUCKET is required for the s3 blob driver"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
		}
	}
	switch c.Realtime.Driver {
	case "memory":
	case "postgres":
		if c.Realtime.PostgresDSN == "" {
			c.Realtime.PostgresDSN = c.Storage.PostgresDSN
		}
		if c.Realtime.PostgresDSN == "" {
			errs = append(errs, errors.New("TELECARE_REALTIME_POSTGRES_DSN is required for the postgres realtime driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown realtime driver %q", c.Realtime.Driver))
	}
	if u := strings.TrimSpace(c.Backend.URL); u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		errs = append(errs, fmt.Errorf("TELECARE_BACKEND_URL must be an http(s) url, got %q", u))
	}
	if strings.TrimSpace(c.SessionID) == "" {
		errs = append(errs, errors.New("TELECARE_SESSION_ID must not be empty"))
	}
	return errors.Join(errs...)
}

// Persistence returns the snapshot backend configuration.
func (c Config) Persistence() persistence.Config {
	return persistence.Config{
		Driver:      persistence.Driver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
		Blob:        c.BlobStore(),
		BlobPrefix:  c.Storage.BlobPrefix,
	}
}

// BlobStore returns the blob driver configuration.
func (c Config) BlobStore() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Region:          c.Blob.S3Region,
			Bucket:          c.Blob.S3Bucket,
			Prefix:          c.Blob.S3Prefix,
			Endpoint:        c.Blob.S3Endpoint,
			AccessKeyID:     c.Blob.S3AccessKeyID,
			SecretAccessKey: c.Blob.S3SecretAccessKey,
			PathStyle:       c.Blob.S3PathStyle,
		},
	}
}

// Usage prints the recognised environment variables.
func Usage() error {
	var cfg Config
	return envconfig.Usage(Prefix, &cfg)
}
