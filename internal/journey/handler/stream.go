package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"onboarding/internal/journey/models"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/httputil"
	"onboarding/pkg/requestcontext"
)

const journeyEvent = "journey"

// HandleEvents handles GET /v1/journey/events. It streams every committed
// version of the caller's journey as Server-Sent Events, starting with the
// stored document when one exists. Versions never go backwards on a stream.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming not supported"))
		return
	}

	// Subscribe before reading so no commit between the two is missed.
	docs, unsubscribe := h.feed.Subscribe(ctx, userID)
	defer unsubscribe()

	current, err := h.service.GetJourney(ctx, userID)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		h.logFailure(ctx, "stream", err)
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var last int64
	if current != nil {
		if err := writeJourneyEvent(w, current); err != nil {
			return
		}
		last = current.Version
	}
	flusher.Flush()

	h.logger.InfoContext(ctx, "journey stream opened",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
	)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closing:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case j, ok := <-docs:
			if !ok {
				return
			}
			if j.Version <= last {
				continue
			}
			if err := writeJourneyEvent(w, j); err != nil {
				return
			}
			last = j.Version
			flusher.Flush()
		}
	}
}

func writeJourneyEvent(w http.ResponseWriter, j *models.Journey) error {
	data, err := json.Marshal(FromJourney(j))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", j.Version, journeyEvent, data)
	return err
}
