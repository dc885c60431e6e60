// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts served requests.
	// Labels: route (mux pattern), method, code
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskboard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "code"},
	)

	// HTTPDuration tracks request latency.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taskboard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// PositionOps counts position manager operations.
	// Labels: op (move, reorder, create, delete, normalize), result (ok, noop, error)
	PositionOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskboard",
			Subsystem: "kanban",
			Name:      "position_operations_total",
			Help:      "Total number of kanban position operations",
		},
		[]string{"op", "result"},
	)

	// RowsShifted counts task rows rewritten by position operations.
	RowsShifted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskboard",
			Subsystem: "kanban",
			Name:      "rows_shifted_total",
			Help:      "Total number of task rows whose column or position was rewritten",
		},
		[]string{"op"},
	)

	// BoardCache counts board snapshot cache outcomes.
	// Labels: result (hit, miss, stale, error)
	BoardCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskboard",
			Subsystem: "board_cache",
			Name:      "lookups_total",
			Help:      "Total number of board snapshot cache lookups",
		},
		[]string{"result"},
	)

	// AttachmentBytes counts uploaded attachment bytes.
	AttachmentBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskboard",
			Subsystem: "attachments",
			Name:      "uploaded_bytes_total",
			Help:      "Total number of attachment bytes stored",
		},
	)
)

// ObservePosition records the outcome of one position operation.
func ObservePosition(op string, rows int, err error) {
	switch {
	case err != nil:
		PositionOps.WithLabelValues(op, "error").Inc()
	case rows == 0:
		PositionOps.WithLabelValues(op, "noop").Inc()
	default:
		PositionOps.WithLabelValues(op, "ok").Inc()
		RowsShifted.WithLabelValues(op).Add(float64(rows))
	}
}
