package docstore

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeper_docstore_operations_total",
		Help: "Document store operations by operation and result",
	}, []string{"op", "result"})

	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "housekeeper_docstore_operation_duration_seconds",
		Help:    "Document store operation latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
	}, []string{"op"})

	versionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "housekeeper_docstore_version_conflicts_total",
		Help: "Versioned updates rejected because the presented version was stale",
	})
)

func observe(op string, start time.Time, errp *error) {
	result := "ok"
	if err := *errp; err != nil {
		var perr *ParseError
		switch {
		case errors.Is(err, ErrNotFound):
			result = "not_found"
		case errors.As(err, &perr):
			result = "parse_error"
		default:
			result = "error"
		}
	}
	opsTotal.WithLabelValues(op, result).Inc()
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
