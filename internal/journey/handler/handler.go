package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"onboarding/internal/journey/models"
	"onboarding/internal/journey/service"
	"onboarding/internal/journey/upload"
	"onboarding/internal/platform/middleware"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/httputil"
	"onboarding/pkg/platform/middleware/metadata"
	"onboarding/pkg/requestcontext"
)

const defaultHeartbeat = 25 * time.Second

// Service defines the journey operations exposed over HTTP.
type Service interface {
	GetJourney(ctx context.Context, userID uuid.UUID) (*models.Journey, error)
	EnsureJourney(ctx context.Context, userID uuid.UUID) (*models.Journey, error)
	StartJourney(ctx context.Context, userID uuid.UUID, persona models.Persona) (*models.Journey, error)
	SaveStep(ctx context.Context, userID uuid.UUID, stateValue string, patch map[string]any) (*service.SaveResult, error)
	SubmitJourney(ctx context.Context, userID uuid.UUID, patch map[string]any) (*models.Journey, error)
	GenerateDocumentUploadURL(ctx context.Context, userID uuid.UUID) (upload.Location, error)
	AttachDocument(ctx context.Context, userID uuid.UUID, token, label string) (*models.Journey, error)
	Resubmit(ctx context.Context, userID uuid.UUID) (*models.Journey, error)
}

// Feed delivers every committed version of a user's journey.
type Feed interface {
	Subscribe(ctx context.Context, userID uuid.UUID) (<-chan *models.Journey, func())
}

// Handler wires journey endpoints to the journey service.
type Handler struct {
	service   Service
	feed      Feed
	validator middleware.JWTValidator
	logger    *slog.Logger
	heartbeat time.Duration

	closing   chan struct{}
	closeOnce sync.Once
}

// Option configures a Handler.
type Option func(*Handler)

// WithHeartbeat sets the keep-alive interval of the event stream.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// New constructs a journey handler with its dependencies.
func New(svc Service, feed Feed, validator middleware.JWTValidator, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:   svc,
		feed:      feed,
		validator: validator,
		logger:    logger,
		heartbeat: defaultHeartbeat,
		closing:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts journey endpoints on the router. Every route requires an
// authenticated user and operates on that user's journey only.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/journey", func(r chi.Router) {
		r.Use(metadata.ClientMetadata)
		r.Use(middleware.RequireAuth(h.validator, h.logger))

		r.Get("/", h.HandleGet)
		r.Get("/events", h.HandleEvents)
		r.Post("/ensure", h.HandleEnsure)
		r.Post("/start", h.HandleStart)
		r.Post("/steps", h.HandleSaveStep)
		r.Post("/submit", h.HandleSubmit)
		r.Post("/uploads", h.HandleUploadURL)
		r.Post("/documents", h.HandleAttachDocument)
		r.Post("/resubmit", h.HandleResubmit)
	})
}

// HandleGet handles GET /v1/journey.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	j, err := h.service.GetJourney(ctx, userID)
	h.writeJourney(w, ctx, "get", j, err)
}

// HandleEnsure handles POST /v1/journey/ensure.
func (h *Handler) HandleEnsure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	j, err := h.service.EnsureJourney(ctx, userID)
	h.writeJourney(w, ctx, "ensure", j, err)
}

// HandleStart handles POST /v1/journey/start.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[StartRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	j, err := h.service.StartJourney(ctx, userID, req.ParsedPersona())
	h.writeJourney(w, ctx, "start", j, err)
}

// HandleSaveStep handles POST /v1/journey/steps.
func (h *Handler) HandleSaveStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SaveStepRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.SaveStep(ctx, userID, req.StateValue, req.Data)
	if err != nil {
		h.logFailure(ctx, "save_step", err, "state_value", req.StateValue)
		httputil.WriteError(w, err)
		return
	}
	if len(res.Warnings) > 0 {
		h.logger.WarnContext(ctx, "step saved with warnings",
			"request_id", requestID,
			"user_id", userID,
			"warnings", res.Warnings,
		)
	}
	httputil.WriteJSON(w, http.StatusOK, &SaveStepResponse{
		JourneyResponse: FromJourney(res.Journey),
		Warnings:        res.Warnings,
	})
}

// HandleSubmit handles POST /v1/journey/submit.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	j, err := h.service.SubmitJourney(ctx, userID, req.Data)
	h.writeJourney(w, ctx, "submit", j, err)
}

// HandleUploadURL handles POST /v1/journey/uploads.
func (h *Handler) HandleUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	loc, err := h.service.GenerateDocumentUploadURL(ctx, userID)
	if err != nil {
		h.logFailure(ctx, "upload_url", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromLocation(loc))
}

// HandleAttachDocument handles POST /v1/journey/documents.
func (h *Handler) HandleAttachDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AttachDocumentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	j, err := h.service.AttachDocument(ctx, userID, req.UploadToken, req.Label)
	h.writeJourney(w, ctx, "attach_document", j, err)
}

// HandleResubmit handles POST /v1/journey/resubmit.
func (h *Handler) HandleResubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	j, err := h.service.Resubmit(ctx, userID)
	h.writeJourney(w, ctx, "resubmit", j, err)
}

// Close ends open event streams. Regular requests are unaffected.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

func (h *Handler) requireUser(w http.ResponseWriter, ctx context.Context) (uuid.UUID, bool) {
	userID := requestcontext.UserID(ctx)
	if userID == uuid.Nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handler) writeJourney(w http.ResponseWriter, ctx context.Context, op string, j *models.Journey, err error) {
	if err != nil {
		h.logFailure(ctx, op, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromJourney(j))
}

// logFailure logs server-side failures at error level and rejected requests
// at info level.
func (h *Handler) logFailure(ctx context.Context, op string, err error, attrs ...any) {
	args := append([]any{
		"operation", op,
		"request_id", requestcontext.RequestID(ctx),
		"user_id", requestcontext.UserID(ctx),
		"error", err,
	}, attrs...)
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeUnavailable:
		h.logger.ErrorContext(ctx, "journey request failed", args...)
	default:
		h.logger.InfoContext(ctx, "journey request rejected", args...)
	}
}
