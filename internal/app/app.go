// Package app wires configuration, storage, mail and the HTTP API into a
// runnable sampleflow process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sampleflow/internal/api"
	"sampleflow/internal/auth"
	"sampleflow/internal/blob"
	"sampleflow/internal/config"
	"sampleflow/internal/core"
	"sampleflow/internal/notify"
)

// App holds the long-lived collaborators of one process.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Service  *core.Service
	Registry *prometheus.Registry

	handler http.Handler
	closers []io.Closer
}

// New opens the configured stores and builds the service.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.Storage.Driver == core.StorageSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	store, err := core.OpenPersistentStore(ctx, cfg.Storage, nil)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	logger.Info("persistent store opened", "driver", string(cfg.Storage.Driver))

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}
	logger.Info("blob store opened", "driver", string(blobs.Driver()))

	secret, err := auth.ResolveSecret(cfg.JWTSecret)
	switch {
	case errors.Is(err, auth.ErrWeakSecret):
		logger.Warn("JWT_SECRET_KEY env var not set or too short: generating random secret key")
	case err != nil:
		_ = a.Close()
		return nil, err
	default:
		logger.Info("JWT secret loaded from JWT_SECRET_KEY")
	}

	metrics, err := core.NewPrometheusMetricsRecorder(a.Registry)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := []core.Option{
		core.WithLogger(logger.With("component", "core")),
		core.WithMetricsRecorder(metrics),
		core.WithNotifier(newSender(cfg, logger)),
		core.WithTokens(auth.NewTokens(secret, auth.DefaultIssuer)),
		core.WithSiteURL(cfg.SiteURL),
		core.WithMailFrom(cfg.MailFrom),
		core.WithAccessTokenTTL(cfg.AccessTokenTTL),
		core.WithMaxArtifactBytes(cfg.MaxArtifactBytes),
		core.WithPresignedDownloads(cfg.PresignTTL),
	}
	if cfg.TraceFile != "" {
		f, err := os.OpenFile(cfg.TraceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		a.closers = append(a.closers, f)
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
		logger.Info("operation traces enabled", "file", cfg.TraceFile)
	}
	a.Service = core.NewService(store, blobs, opts...)
	return a, nil
}

func newSender(cfg *config.Config, logger *slog.Logger) notify.Sender {
	if cfg.MailDriver == config.MailLog {
		return notify.LogSender{Logger: logger.With("component", "mail")}
	}
	return notify.NewSMTPSender(cfg.SMTPAddr, cfg.MailFrom)
}

// Handler returns the HTTP handler of the API. The router is built at most
// once because its collectors live on the app registry.
func (a *App) Handler() http.Handler {
	if a.handler == nil {
		a.handler = api.NewRouter(a.Service, api.RouterConfig{
			Logger:         a.Logger.With("component", "http"),
			Registry:       a.Registry,
			CORSOrigins:    a.Config.CORSOrigins,
			MaxUploadBytes: a.Config.MaxUploadBytes,
			AdminTokenTTL:  a.Config.AdminTokenTTL,
		})
	}
	return a.handler
}

// Serve runs the HTTP server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	srv := api.NewServer(a.Config.Addr(), a.Handler(), a.Logger, a.Config.ShutdownTimeout)
	return srv.Run(ctx)
}

// Close releases the persistent store.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
