package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/facetcraft/nyp-backend/pkg/logger"
)

// routeIDParams are the path parameters copied onto the access log line so
// a request can be joined with the engine logs of the same thread.
var routeIDParams = map[string]string{
	"negotiationId": "negotiation_id",
	"commitmentId":  "commitment_id",
	"productId":     "product_id",
	"userId":        "target_user_id",
}

// Logging writes one access line per request once the response is done.
// Server errors log at warn so they stand out from ordinary traffic.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if logg == nil {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)

			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.statusCode(),
				"bytes":       rec.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					fields["route"] = pattern
				}
				for param, field := range routeIDParams {
					if v := rctx.URLParam(param); v != "" {
						fields[field] = v
					}
				}
			}
			if replayed := rec.Header().Get(replayHeader); replayed != "" {
				fields["idempotent_replay"] = true
			}

			ctx := logg.WithFields(r.Context(), fields)
			if rec.statusCode() >= http.StatusInternalServerError {
				logg.Warn(ctx, "request.complete")
				return
			}
			logg.Info(ctx, "request.complete")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) statusCode() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
