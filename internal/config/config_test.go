package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sampleflow/internal/blob"
	"sampleflow/internal/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Addr() != ":8080" {
		t.Fatalf("unexpected port %d", cfg.Port)
	}
	if cfg.Storage.Driver != core.StorageSQLite || cfg.Storage.SQLitePath != filepath.Join("/sample_flow_data", "SampleFlow.db") {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Blob.Driver != blob.DriverFilesystem || cfg.Blob.FSRoot != "/sample_flow_data" {
		t.Fatalf("unexpected blob %+v", cfg.Blob)
	}
	if cfg.AccessTokenTTL != 30*time.Minute || cfg.MaxUploadBytes != 384*1024*1024 {
		t.Fatalf("unexpected limits %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected cors %v", cfg.CORSOrigins)
	}
	if cfg.PresignTTL != 0 || cfg.MaxArtifactBytes != core.DefaultMaxArtifactBytes {
		t.Fatalf("unexpected download settings %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SAMPLEFLOW_PORT", "9000")
	t.Setenv("SAMPLEFLOW_DATA_PATH", "/srv/data")
	t.Setenv("SAMPLEFLOW_STORAGE_DRIVER", "memory")
	t.Setenv("SAMPLEFLOW_BLOB_DRIVER", "s3")
	t.Setenv("SAMPLEFLOW_BLOB_S3_BUCKET", "samples")
	t.Setenv("SAMPLEFLOW_BLOB_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("SAMPLEFLOW_SITE_URL", "https://lab.example/")
	t.Setenv("SAMPLEFLOW_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SAMPLEFLOW_LOG_LEVEL", "debug")
	t.Setenv("SAMPLEFLOW_BLOB_PRESIGN_TTL", "10m")
	t.Setenv("SAMPLEFLOW_MAX_ARTIFACT_BYTES", "1024")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9000 || cfg.Storage.Driver != core.StorageMemory || cfg.Blob.FSRoot != "/srv/data" {
		t.Fatalf("overrides not applied %+v", cfg)
	}
	if !cfg.Blob.S3.PathStyle || cfg.Blob.S3.Bucket != "samples" {
		t.Fatalf("unexpected s3 config %+v", cfg.Blob.S3)
	}
	if cfg.SiteURL != "https://lab.example" || len(cfg.CORSOrigins) != 2 {
		t.Fatalf("unexpected site or cors %q %v", cfg.SiteURL, cfg.CORSOrigins)
	}
	if cfg.PresignTTL != 10*time.Minute || cfg.MaxArtifactBytes != 1024 {
		t.Fatalf("unexpected download settings %v %d", cfg.PresignTTL, cfg.MaxArtifactBytes)
	}
}

func TestPresignRequiresS3(t *testing.T) {
	t.Setenv("SAMPLEFLOW_BLOB_PRESIGN_TTL", "10m")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "SAMPLEFLOW_BLOB_PRESIGN_TTL") {
		t.Fatalf("expected presign rejection for fs driver, got %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"SAMPLEFLOW_PORT":             "eighty",
		"SAMPLEFLOW_STORAGE_DRIVER":   "oracle",
		"SAMPLEFLOW_BLOB_DRIVER":      "ftp",
		"SAMPLEFLOW_ACCESS_TOKEN_TTL": "soon",
		"SAMPLEFLOW_MAIL_DRIVER":      "pigeon",
		"SAMPLEFLOW_LOG_FORMAT":       "xml",
		"SAMPLEFLOW_LOG_LEVEL":        "loud",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error naming %s, got %v", key, err)
			}
		})
	}
}

func TestPostgresRequiresDSN(t *testing.T) {
	t.Setenv("SAMPLEFLOW_STORAGE_DRIVER", "postgres")
	if _, err := Load(); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SAMPLEFLOW_TEST_DOTENV=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("SAMPLEFLOW_TEST_DOTENV", "")
	_ = os.Unsetenv("SAMPLEFLOW_TEST_DOTENV")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("SAMPLEFLOW_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("unexpected value %q", got)
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(&Config{LogFormat: "json"}, &buf)
	logger.Info("hello", "component", "test")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("expected json log line, got %q", buf.String())
	}
}
