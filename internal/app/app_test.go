package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sampleflow/internal/auth"
	"sampleflow/internal/blob"
	"sampleflow/internal/config"
	"sampleflow/internal/core"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Port:            0,
		DataPath:        dir,
		Storage:         core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: filepath.Join(dir, "db", "SampleFlow.db")},
		Blob:            blob.Config{Driver: blob.DriverFilesystem, FSRoot: filepath.Join(dir, "blobs")},
		MailDriver:      config.MailLog,
		MailFrom:        core.DefaultMailFrom,
		SiteURL:         "https://sampleflow.test",
		MaxUploadBytes:  1 << 20,
		CORSOrigins:     []string{"*"},
		AccessTokenTTL:  auth.DefaultAccessTTL,
		AdminTokenTTL:   auth.DefaultAccessTTL,
		ShutdownTimeout: 0,
	}
}

func TestNewWiresService(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if !strings.Contains(logs.String(), "generating random secret key") {
		t.Fatalf("expected weak secret warning, got %q", logs.String())
	}

	ctx := context.Background()
	if _, err := a.Service.CreateAdmin(ctx, "admin@embl.de", "AdminPass1"); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if _, err := a.Service.IssueToken(ctx, "admin@embl.de", auth.DefaultAccessTTL); err != nil {
		t.Fatalf("issue token: %v", err)
	}

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
	for _, want := range []string{"sampleflow_core_operations_total", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}

func TestNewPersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	cfg.JWTSecret = "a-long-enough-test-secret"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	first, err := New(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := first.Service.CreateAdmin(ctx, "admin@embl.de", "AdminPass1"); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	token, err := first.Service.IssueToken(ctx, "admin@embl.de", auth.DefaultAccessTTL)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := New(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("reopen app: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	if err := second.Service.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
	user, err := second.Service.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate after restart: %v", err)
	}
	if user.Email != "admin@embl.de" || !user.IsAdmin {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestTraceFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage = core.StorageConfig{Driver: core.StorageMemory}
	cfg.Blob = blob.Config{Driver: blob.DriverMemory}
	cfg.TraceFile = filepath.Join(t.TempDir(), "trace.jsonl")
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := a.Service.RemainingSamples(context.Background()); err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(cfg.TraceFile)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	if !strings.Contains(string(data), `"remaining_samples"`) {
		t.Fatalf("expected remaining_samples span, got %q", data)
	}
}

func TestNewRejectsBrokenBlobConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage = core.StorageConfig{Driver: core.StorageMemory}
	cfg.Blob = blob.Config{Driver: blob.DriverS3}
	if _, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected error for s3 without bucket")
	}
}
