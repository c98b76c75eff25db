package metadata

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/mssola/useragent"

	"onboarding/pkg/requestcontext"
)

// ClientMetadata copies client IP, User-Agent, device label, request id and
// request time into the context. Apply after chi's RequestID middleware.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua, DeviceLabel(ua))
		ctx = requestcontext.WithRequestID(ctx, middleware.GetReqID(ctx))
		ctx = requestcontext.WithTime(ctx, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DeviceLabel summarises a User-Agent as "<browser> on <os>".
func DeviceLabel(userAgent string) string {
	if userAgent == "" {
		return "unknown"
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	os := ua.OSInfo().Name
	switch {
	case ua.Bot():
		return "bot"
	case browser == "" && os == "":
		return "unknown"
	case os == "":
		return browser
	case browser == "":
		return os
	}
	label := browser + " on " + os
	if ua.Mobile() {
		label += " (mobile)"
	}
	return label
}

// ClientIPFromRequest extracts the real client IP, honouring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}
	return ""
}
