// Package api exposes the sampleflow service over HTTP.
package api

import (
	"context"
	"log/slog"
	"time"

	"sampleflow/internal/core"
	"sampleflow/pkg/domain"
)

// Service is the subset of *core.Service the handlers call.
type Service interface {
	Authenticate(ctx context.Context, token string) (domain.User, error)
	Login(ctx context.Context, email, password string) (core.LoginResult, error)
	Signup(ctx context.Context, email, password string) (string, error)
	Activate(ctx context.Context, token string) (string, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, email, newPassword string) (string, error)
	ChangePassword(ctx context.Context, userID int64, current, newPassword string) (string, error)
	ListUsers(ctx context.Context) ([]domain.PublicUser, error)
	IssueToken(ctx context.Context, email string, ttl time.Duration) (string, error)

	RemainingSamples(ctx context.Context) (core.Remaining, error)
	CurrentSettings(ctx context.Context) (domain.Settings, error)
	UpdateSettings(ctx context.Context, author string, values map[string]any) (string, error)
	SettingsHistory(ctx context.Context) ([]domain.SettingsVersion, error)
	Ready(ctx context.Context) error

	AddSample(ctx context.Context, in core.NewSample) (domain.Sample, error)
	GetSamples(ctx context.Context, email string) (core.SampleLists, error)
	ReferenceSequence(ctx context.Context, requester domain.User, primaryKey string) (core.Download, error)
	ResultFile(ctx context.Context, requester domain.User, primaryKey, filetype string) (core.Download, error)
	ProcessResult(ctx context.Context, primaryKey string, success bool, archive *core.ResultArchive) (string, error)
	ResubmitSample(ctx context.Context, primaryKey string) (string, error)
	ZipSamples(ctx context.Context) (core.Download, error)
}

// Handler implements the HTTP endpoints.
type Handler struct {
	svc           Service
	logger        *slog.Logger
	adminTokenTTL time.Duration
	maxMemory     int64
}

// DefaultAdminTokenTTL is the lifetime of tokens issued by /api/admin/token.
const DefaultAdminTokenTTL = 26 * 7 * 24 * time.Hour

// multipartMemory is the part of a multipart form kept in memory; the rest
// spills to temporary files.
const multipartMemory = 32 << 20

// NewHandler constructs a Handler over svc.
func NewHandler(svc Service, logger *slog.Logger, adminTokenTTL time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if adminTokenTTL <= 0 {
		adminTokenTTL = DefaultAdminTokenTTL
	}
	return &Handler{svc: svc, logger: logger, adminTokenTTL: adminTokenTTL, maxMemory: multipartMemory}
}
