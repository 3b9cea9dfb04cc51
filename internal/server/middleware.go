// Request logging, request IDs and HTTP metrics.

package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maruel/ksid"
	"github.com/zheng93775/house-keeper/internal/server/ipgeo"
	"github.com/zheng93775/house-keeper/internal/server/reqctx"
)

// statusRecorder captures the status code and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
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
	s.size += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// loggingMiddleware assigns a request ID, resolves the client country,
// records metrics and logs every request once it completes.
func loggingMiddleware(next http.Handler, geo *ipgeo.Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rid := ksid.NewID().String()
		ip := reqctx.GetClientIP(r)
		country := geo.CountryCode(ip)

		ctx := reqctx.WithRequestID(r.Context(), rid)
		ctx = reqctx.WithCountryCode(ctx, country)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", rid)
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		d := time.Since(start)
		route := routeLabel(r)
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(d.Seconds())

		level := slog.LevelInfo
		switch {
		case rec.status >= 500:
			level = slog.LevelError
		case !strings.HasPrefix(r.URL.Path, "/api/"):
			level = slog.LevelDebug
		}
		slog.Log(ctx, level, "http",
			"rid", rid,
			"m", r.Method,
			"p", r.URL.Path,
			"s", rec.status,
			"size", rec.size,
			"d", d.Round(time.Millisecond),
			"ip", ip,
			"cc", country,
		)
	})
}

// routeLabel returns the matched ServeMux pattern to keep metric
// cardinality bounded.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	return r.Pattern
}
