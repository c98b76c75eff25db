package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"onboarding/internal/journey/metrics"
	"onboarding/internal/journey/models"
	"onboarding/internal/journey/upload"
	"onboarding/pkg/platform/audit"
	"onboarding/pkg/platform/circuit"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Store persists journeys with compare-and-swap updates.
type Store interface {
	CreateIfAbsent(ctx context.Context, j *models.Journey) (*models.Journey, bool, error)
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Journey, error)
	Update(ctx context.Context, j *models.Journey, expectedVersion int64) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// EventPublisher receives every successfully written journey document.
type EventPublisher interface {
	Publish(ctx context.Context, j *models.Journey) error
}

// DirectorySyncer pushes identity fields collected on the profile step to
// the user directory. It is a dependent write: its failure never undoes the
// journey save.
type DirectorySyncer interface {
	SyncProfile(ctx context.Context, userID uuid.UUID, persona models.Persona, fields map[string]any) error
}

type UploadSigner interface {
	Generate(userID uuid.UUID) (upload.Location, error)
	Verify(token string, userID uuid.UUID) (uuid.UUID, error)
}

// Service is the authoritative writer of onboarding journeys. Every mutation
// is validated against the stored document and committed with a
// compare-and-swap on its version.
type Service struct {
	journeys          Store
	logger            *slog.Logger
	auditPublisher    AuditPublisher
	eventPublishers   []EventPublisher
	directory         DirectorySyncer
	directoryBreaker  *circuit.Breaker
	uploads           UploadSigner
	metrics           *metrics.Metrics
	tracer            trace.Tracer
	now               func() time.Time
	allowResubmission bool
	maxAttempts       uint64
	retryInterval     time.Duration
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithEventPublisher adds a sink for written documents. May be repeated.
func WithEventPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.eventPublishers = append(s.eventPublishers, publisher)
	}
}

func WithDirectorySyncer(syncer DirectorySyncer) Option {
	return func(s *Service) {
		s.directory = syncer
	}
}

// WithDirectoryBreaker replaces the breaker guarding directory sync.
func WithDirectoryBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		s.directoryBreaker = b
	}
}

func WithUploads(signer UploadSigner) Option {
	return func(s *Service) {
		s.uploads = signer
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracerProvider replaces the global provider for journey spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer("onboarding/journey")
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithResubmission lets a rejected journey reopen as a new draft cycle.
func WithResubmission(enabled bool) Option {
	return func(s *Service) {
		s.allowResubmission = enabled
	}
}

// WithMaxAttempts bounds how often a mutation is retried after a version conflict.
func WithMaxAttempts(n uint64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New constructs a Service.
func New(journeys Store, opts ...Option) *Service {
	s := &Service{
		journeys:         journeys,
		logger:           slog.Default(),
		directoryBreaker: circuit.New("directory-sync"),
		tracer:           otel.Tracer("onboarding/journey"),
		now:              time.Now,
		maxAttempts:      4,
		retryInterval:    5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
