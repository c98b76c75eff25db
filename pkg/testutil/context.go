package testutil

import (
	"net/http"

	"github.com/google/uuid"

	"onboarding/pkg/requestcontext"
)

// WithUserID marks the request as authenticated for userID, as RequireAuth
// does after validating a bearer token.
func WithUserID(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithRequestID sets the request id normally assigned by the router.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
