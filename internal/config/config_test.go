package config

import (
	"strings"
	"testing"
	"time"

	"telecare/internal/blob"
	"telecare/internal/persistence"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Namespace != "telecare" || cfg.SessionID != "default" {
		t.Fatalf("unexpected identity defaults: %+v", cfg)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.SQLitePath != "telecare.db" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.HTTP.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected http defaults: %+v", cfg.HTTP)
	}
	if cfg.Realtime.Driver != "memory" || cfg.Realtime.Channel != "telecare_changes" {
		t.Fatalf("unexpected realtime defaults: %+v", cfg.Realtime)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TELECARE_NAMESPACE", "clinic")
	t.Setenv("TELECARE_STORAGE_DRIVER", "blob")
	t.Setenv("TELECARE_BLOB_DRIVER", "s3")
	t.Setenv("TELECARE_BLOB_S3_BUCKET", "snapshots")
	t.Setenv("TELECARE_BLOB_S3_PATH_STYLE", "true")
	t.Setenv("TELECARE_BACKEND_URL", "https://api.example.test")
	t.Setenv("TELECARE_BACKEND_TIMEOUT", "3s")
	t.Setenv("TELECARE_LOG_FORMAT", "json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Namespace != "clinic" || cfg.Backend.Timeout != 3*time.Second || cfg.Log.Format != "json" {
		t.Fatalf("environment not applied: %+v", cfg)
	}
	pc := cfg.Persistence()
	if pc.Driver != persistence.DriverBlob || pc.Blob.Driver != blob.DriverS3 {
		t.Fatalf("unexpected persistence config %+v", pc)
	}
	if pc.Blob.S3.Bucket != "snapshots" || !pc.Blob.S3.PathStyle || pc.Blob.S3.Region != "us-east-1" {
		t.Fatalf("unexpected s3 config %+v", pc.Blob.S3)
	}
}

func TestValidateRejectsInconsistentSettings(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"unknown storage":   {func(c *Config) { c.Storage.Driver = "redis" }, "unknown storage driver"},
		"postgres no dsn":   {func(c *Config) { c.Storage.Driver = "postgres" }, "TELECARE_STORAGE_POSTGRES_DSN"},
		"s3 no bucket":      {func(c *Config) { c.Storage.Driver = "blob"; c.Blob.Driver = "s3" }, "TELECARE_BLOB_S3_BUCKET"},
		"unknown realtime":  {func(c *Config) { c.Realtime.Driver = "kafka" }, "unknown realtime driver"},
		"realtime no dsn":   {func(c *Config) { c.Realtime.Driver = "postgres" }, "TELECARE_REALTIME_POSTGRES_DSN"},
		"bad backend url":   {func(c *Config) { c.Backend.URL = "ftp://x" }, "TELECARE_BACKEND_URL"},
		"empty session id":  {func(c *Config) { c.SessionID = " " }, "TELECARE_SESSION_ID"},
		"unknown blob kind": {func(c *Config) { c.Storage.Driver = "blob"; c.Blob.Driver = "gcs" }, "unknown blob driver"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateRealtimeFallsBackToStorageDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Driver = "postgres"
	cfg.Storage.PostgresDSN = "postgres://localhost/telecare"
	cfg.Realtime.Driver = "postgres"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Realtime.PostgresDSN != cfg.Storage.PostgresDSN {
		t.Fatalf("expected realtime dsn fallback, got %q", cfg.Realtime.PostgresDSN)
	}
}

func TestLoadReportsParseErrors(t *testing.T) {
	t.Setenv("TELECARE_HTTP_READ_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected duration parse error")
	}
}

func validConfig() Config {
	return Config{
		Namespace: "telecare",
		SessionID: "default",
		Storage:   StorageConfig{Driver: "sqlite", SQLitePath: "x.db"},
		Blob:      BlobConfig{Driver: "fs"},
		Realtime:  RealtimeConfig{Driver: "memory", Channel: "c"},
	}
}
