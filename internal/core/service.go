package core

import (
	"context"
	"time"

	"sampleflow/internal/auth"
	"sampleflow/internal/blob"
	"sampleflow/internal/infra/persistence/memory"
	"sampleflow/internal/notify"
	"sampleflow/internal/reference"
	"sampleflow/pkg/domain"
)

// Operation names reported to the logger, metrics recorder and tracer.
const (
	OpRemainingSamples     = "remaining_samples"
	OpCurrentSettings      = "current_settings"
	OpUpdateSettings       = "update_settings"
	OpSettingsHistory      = "settings_history"
	OpAddSample            = "add_sample"
	OpGetSamples           = "get_samples"
	OpReferenceSequence    = "reference_sequence"
	OpResultFile           = "result_file"
	OpProcessResult        = "process_result"
	OpResubmitSample       = "resubmit_sample"
	OpExportWeek           = "export_week"
	OpSignup               = "signup"
	OpActivate             = "activate"
	OpRequestPasswordReset = "request_password_reset"
	OpResetPassword        = "reset_password"
	OpLogin                = "login"
	OpChangePassword       = "change_password"
	OpCreateAdmin          = "create_admin"
	OpListUsers            = "list_users"
	OpIssueToken           = "issue_token"
	OpAuthenticate         = "authenticate"
)

// Default collaborator settings.
const (
	DefaultSiteURL  = "https://circuitseq.iwr.uni-heidelberg.de"
	DefaultMailFrom = "no-reply@circuitseq.iwr.uni-heidelberg.de"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// Logger is the subset of *slog.Logger the service writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder observes the outcome and latency of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan ends with the error the operation returned, if any.
type TraceSpan interface {
	End(err error)
}

// ReferenceParser converts an uploaded reference file into a sequence record.
type ReferenceParser interface {
	Parse(filename string, data []byte) (reference.Sequence, error)
}

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// TokenService signs session, activation and password reset tokens.
type TokenService interface {
	IssueAccess(user domain.User, ttl time.Duration) (string, error)
	ParseAccess(token string) (auth.Claims, error)
	IssueActivation(email string) (string, error)
	ParseActivation(token string) (string, error)
	IssuePasswordReset(email string) (string, error)
	ParsePasswordReset(token string) (auth.Claims, error)
	ConsumePasswordReset(token string)
}

// Service implements sample intake, result distribution and account
// management on top of a transactional store and a blob store.
type Service struct {
	store     PersistentStore
	blobs     blob.Store
	clock     Clock
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	notifier  notify.Sender
	parser    ReferenceParser
	hasher    PasswordHasher
	tokens    TokenService
	siteURL   string
	mailFrom  string
	accessTTL time.Duration

	maxArtifactBytes int64
	presignTTL       time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source. Sample dates and week boundaries are
// computed in the location of the returned times.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger routes service logs to logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithNotifier sets the email sender.
func WithNotifier(sender notify.Sender) Option {
	return func(s *Service) {
		if sender != nil {
			s.notifier = sender
		}
	}
}

// WithReferenceParser replaces the reference file parser.
func WithReferenceParser(parser ReferenceParser) Option {
	return func(s *Service) {
		if parser != nil {
			s.parser = parser
		}
	}
}

// WithPasswordHasher replaces the password hasher.
func WithPasswordHasher(hasher PasswordHasher) Option {
	return func(s *Service) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

// WithTokens replaces the token service.
func WithTokens(tokens TokenService) Option {
	return func(s *Service) {
		if tokens != nil {
			s.tokens = tokens
		}
	}
}

// WithSiteURL sets the public URL used in email links.
func WithSiteURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.siteURL = url
		}
	}
}

// WithMailFrom sets the sender address quoted in signup confirmations.
func WithMailFrom(from string) Option {
	return func(s *Service) {
		if from != "" {
			s.mailFrom = from
		}
	}
}

// WithAccessTokenTTL sets the lifetime of login tokens.
func WithAccessTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithMaxArtifactBytes caps the decompressed size of each extracted result
// artifact.
func WithMaxArtifactBytes(limit int64) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxArtifactBytes = limit
		}
	}
}

// WithPresignedDownloads makes downloads hand out blob store URLs valid for
// ttl when the store can sign them.
func WithPresignedDownloads(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.presignTTL = ttl
		}
	}
}

// NewService constructs a service over store and blobs.
func NewService(store PersistentStore, blobs blob.Store, opts ...Option) *Service {
	secret, _ := auth.RandomSecret()
	tokens := auth.NewTokens(secret, auth.DefaultIssuer)
	s := &Service{
		store:     store,
		blobs:     blobs,
		clock:     ClockFunc(time.Now),
		logger:    noopLogger{},
		metrics:   noopMetricsRecorder{},
		tracer:    noopTracer{},
		notifier:  notify.Discard,
		parser:    reference.Parser{},
		hasher:    auth.NewBcryptHasher(0),
		tokens:    tokens,
		siteURL:   DefaultSiteURL,
		mailFrom:  DefaultMailFrom,
		accessTTL: auth.DefaultAccessTTL,

		maxArtifactBytes: DefaultMaxArtifactBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if stamper, ok := store.(interface{ SetNowFunc(func() time.Time) }); ok {
		stamper.SetNowFunc(s.now)
	}
	if s.tokens == TokenService(tokens) {
		tokens.SetNow(s.now)
	}
	return s
}

// NewInMemoryService wires a service to an in-memory store using the default
// rules and an in-memory blob store.
func NewInMemoryService(opts ...Option) *Service {
	return NewService(memory.NewStore(NewDefaultRulesEngine()), blob.NewMemory(), opts...)
}

// Store returns the underlying persistent store.
func (s *Service) Store() PersistentStore { return s.store }

// Blobs returns the blob store holding uploaded and generated files.
func (s *Service) Blobs() blob.Store { return s.blobs }

func (s *Service) now() time.Time { return s.clock.Now() }

func (s *Service) today() time.Time { return Day(s.now()) }

// run wraps one service operation with tracing, metrics and logging.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	if err != nil {
		status := domain.StatusOf(err)
		if status == domain.StatusFailed {
			s.logger.Error("operation failed", "operation", op, "duration", elapsed, "error", err)
		} else {
			s.logger.Info("operation rejected", "operation", op, "status", string(status), "error", err)
		}
		return err
	}
	s.logger.Debug("operation completed", "operation", op, "duration", elapsed)
	return nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}
