// Package config loads sampleflow settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"sampleflow/internal/blob"
	"sampleflow/internal/core"
)

// Mail drivers.
const (
	MailSMTP = "smtp"
	MailLog  = "log"
)

// Config holds every runtime setting of the server and CLI.
type Config struct {
	Port     int
	DataPath string

	Storage core.StorageConfig
	Blob    blob.Config

	// PresignTTL enables redirects to presigned s3 URLs for downloads.
	PresignTTL time.Duration

	JWTSecret      string
	AccessTokenTTL time.Duration
	AdminTokenTTL  time.Duration

	MailDriver string
	SMTPAddr   string
	MailFrom   string
	SiteURL    string

	MaxUploadBytes   int64
	MaxArtifactBytes int64
	CORSOrigins      []string
	ShutdownTimeout  time.Duration

	LogLevel  slog.Level
	LogFormat string
	TraceFile string
}

// LoadDotEnv reads path into the environment when it exists. Variables that
// are already set win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	if cfg.Port, err = getEnvInt("SAMPLEFLOW_PORT", 8080); err != nil {
		return nil, fmt.Errorf("SAMPLEFLOW_PORT: %w", err)
	}
	cfg.DataPath = getEnvDefault("SAMPLEFLOW_DATA_PATH", "/sample_flow_data")

	cfg.Storage.Driver = core.StorageDriver(getEnvDefault("SAMPLEFLOW_STORAGE_DRIVER", string(core.StorageSQLite)))
	switch cfg.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		return nil, fmt.Errorf("SAMPLEFLOW_STORAGE_DRIVER: unknown driver %q", cfg.Storage.Driver)
	}
	cfg.Storage.SQLitePath = getEnvDefault("SAMPLEFLOW_SQLITE_PATH", filepath.Join(cfg.DataPath, "SampleFlow.db"))
	cfg.Storage.PostgresDSN = os.Getenv("SAMPLEFLOW_POSTGRES_DSN")
	if cfg.Storage.Driver == core.StoragePostgres && cfg.Storage.PostgresDSN == "" {
		return nil, fmt.Errorf("SAMPLEFLOW_POSTGRES_DSN: required for postgres storage")
	}

	cfg.Blob.Driver = blob.Driver(getEnvDefault("SAMPLEFLOW_BLOB_DRIVER", string(blob.DriverFilesystem)))
	switch cfg.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory, blob.DriverS3:
	default:
		return nil, fmt.Errorf("SAMPLEFLOW_BLOB_DRIVER: unknown driver %q", cfg.Blob.Driver)
	}
	cfg.Blob.FSRoot = getEnvDefault("SAMPLEFLOW_BLOB_FS_ROOT", cfg.DataPath)
	cfg.Blob.S3 = blob.S3Config{
		Bucket:   os.Getenv("SAMPLEFLOW_BLOB_S3_BUCKET"),
		Region:   getEnvDefault("SAMPLEFLOW_BLOB_S3_REGION", "us-east-1"),
		Endpoint: os.Getenv("SAMPLEFLOW_BLOB_S3_ENDPOINT"),
	}
	cfg.Blob.S3.PathStyle = cfg.Blob.S3.Endpoint != ""
	if cfg.Blob.Driver == blob.DriverS3 && cfg.Blob.S3.Bucket == "" {
		return nil, fmt.Errorf("SAMPLEFLOW_BLOB_S3_BUCKET: required for s3 blob storage")
	}

	if os.Getenv("SAMPLEFLOW_BLOB_PRESIGN_TTL") != "" {
		if cfg.PresignTTL, err = getEnvDuration("SAMPLEFLOW_BLOB_PRESIGN_TTL", 0); err != nil {
			return nil, fmt.Errorf("SAMPLEFLOW_BLOB_PRESIGN_TTL: %w", err)
		}
		if cfg.Blob.Driver != blob.DriverS3 {
			return nil, fmt.Errorf("SAMPLEFLOW_BLOB_PRESIGN_TTL: only supported by the s3 blob driver")
		}
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET_KEY")
	if cfg.AccessTokenTTL, err = getEnvDuration("SAMPLEFLOW_ACCESS_TOKEN_TTL", 30*time.Minute); err != nil {
		return nil, fmt.Errorf("SAMPLEFLOW_ACCESS_TOKEN_TTL: %w", err)
	}
	if cfg.AdminTokenTTL, err = getEnvDuration("SAMPLEFLOW_ADMIN_TOKEN_TTL", 26*7*24*time.Hour); err != nil {
		return nil, fmt.Errorf("SAMPLEFLOW_ADMIN_TOKEN_TTL: %w", err)
	}

	cfg.MailDriver = getEnvDefault("SAMPLEFLOW_MAIL_DRIVER", MailSMTP)
	if cfg.MailDriver != MailSMTP && cfg.MailDriver != MailLog {
		return nil, fmt.Errorf("SAMPLEFLOW_MAIL_DRIVER: unknown driver %q, expected smtp or log", cfg.MailDriver)
	}
	cfg.SMTPAddr = getEnvDefault("SAMPLEFLOW_SMTP_ADDR", "email:587")
	cfg.MailFrom = getEnvDefault("SAMPLEFLOW_MAIL_FROM", core.DefaultMailFrom)
	cfg.SiteURL = strings.TrimSuffix(getEnvDefault("SAMPLEFLOW_SITE_URL", core.DefaultSiteURL), "/")

	maxUpload, err := getEnvInt("SAMPLEFLOW_MAX_UPLOAD_BYTES", 384*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("SAMPLEFLOW_MAX_UPLOAD_BYTES: %w", err)
	}
	if maxUpload <= 0 {
		return nil, fmt.Errorf("SAMPLEFLOW_MAX_UPLOAD_BYTES: must be positive")
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	maxArtifact, err := getEnvInt("SAMPLEFLOW_MAX_ARTIFACT_BYTES", int(core.DefaultMaxArtifactBytes))
	if err != nil {
		return nil, fmt.Errorf("SAMPLEFLOW_MAX_ARTIFACT_BYTES: %w", err)
	}
	if maxArtifact <= 0 {
		return nil, fmt.Errorf("SAMPLEFLOW_MAX_ARTIFACT_BYTES: must be positive")
	}
	cfg.MaxArtifactBytes = int64(maxArtifact)
	cfg.CORSOrigins = splitList(getEnvDefault("SAMPLEFLOW_CORS_ORIGINS", "*"))
	if cfg.ShutdownTimeout, err = getEnvDuration("SAMPLEFLOW_SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, fmt.Errorf("SAMPLEFLOW_SHUTDOWN_TIMEOUT: %w", err)
	}

	if cfg.LogLevel, err = parseLogLevel(getEnvDefault("SAMPLEFLOW_LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("SAMPLEFLOW_LOG_LEVEL: %w", err)
	}
	cfg.LogFormat = getEnvDefault("SAMPLEFLOW_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SAMPLEFLOW_LOG_FORMAT: unknown format %q, expected json or text", cfg.LogFormat)
	}
	cfg.TraceFile = os.Getenv("SAMPLEFLOW_TRACE_FILE")
	return cfg, nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// SetupLogger builds the process logger writing to w and installs it as the
// slog default.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func getEnvDefault(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use Go syntax such as 30s, 15m, 1h)", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return d, nil
}

func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level %q, expected debug, info, warn or error", level)
	}
}
