package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"

	appErrors "github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/pkg/logger"
)

const TraceHeader = "X-Trace-ID"

// RequestID assigns a trace id, echoes it back, and records the request
// metadata that logs and audit entries pick up downstream. Mount it after
// chi's RealIP, when that is enabled, so RemoteAddr is the client address.
func RequestID(lg *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(TraceHeader)
			if traceID == "" {
				traceID = middleware.GetReqID(r.Context())
			}
			if traceID == "" {
				traceID = uuid.NewString()
			}

			ctx := appErrors.ContextWithRequestMeta(r.Context(), appErrors.RequestMeta{
				TraceID:   traceID,
				IPAddress: clientIP(r),
				UserAgent: r.UserAgent(),
			})
			ctx = logger.NewContext(ctx, lg.With("trace_id", traceID))

			w.Header().Set(TraceHeader, traceID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
