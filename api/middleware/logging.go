package middleware

import (
	"net/http"
	"time"

	"github.com/angelmondragon/cred30-backend/pkg/logger"
)

// statusRecorder remembers the status and body size a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// Logging writes one line per request. Money-moving routes are tagged so a
// refused debit or a replayed idempotency key can be traced by route pattern.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			pattern := routePattern(r)
			_, moneyRoute := routeTTL(r.Method, pattern)

			fields := map[string]any{
				"method":      r.Method,
				"route":       pattern,
				"status":      rec.status,
				"bytes":       rec.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
				"money_route": moneyRoute,
			}
			if key := r.Header.Get(idempotencyHeader); key != "" && moneyRoute {
				fields["idempotency_key"] = key
			}
			ctx := logg.WithFields(r.Context(), fields)

			if rec.status >= http.StatusBadRequest {
				logg.Warn(ctx, "request.failed")
				return
			}
			logg.Info(ctx, "request.complete")
		})
	}
}
