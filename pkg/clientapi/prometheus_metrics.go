package clientapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/migalabs/vprice/pkg/utils"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	clientAPIMetricsName = "clientapi"

	chunkResultOK         = "ok"
	reasonRateLimited     = "rate_limited"
	reasonHTTPStatus      = "http_status"
	reasonDecode          = "decode"
	reasonContextCanceled = "context_cancelled"
	reasonTransport       = "transport"
)

var (
	chunkRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: strings.ToLower(utils.CliName),
			Subsystem: clientAPIMetricsName,
			Name:      "chunk_requests_total",
			Help:      "Total number of validator chunk requests grouped by result.",
		},
		[]string{"source", "result"},
	)

	chunkRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: strings.ToLower(utils.CliName),
			Subsystem: clientAPIMetricsName,
			Name:      "chunk_request_duration_seconds",
			Help:      "Time spent requesting a validator chunk, rate limiting excluded.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	chunkRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: strings.ToLower(utils.CliName),
			Subsystem: clientAPIMetricsName,
			Name:      "validator_records_total",
			Help:      "Total number of validator records received.",
		},
		[]string{"source"},
	)

	rewardRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: strings.ToLower(utils.CliName),
			Subsystem: clientAPIMetricsName,
			Name:      "reward_requests_total",
			Help:      "Total number of execution layer balance requests grouped by result.",
		},
		[]string{"result"},
	)
)

// Collectors returns the metrics of this module so a caller can push or serve them.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		chunkRequests,
		chunkRequestDuration,
		chunkRecords,
		rewardRequests,
	}
}

func recordChunk(source string, err error, elapsed time.Duration, records int) {
	result := chunkResultOK
	if err != nil {
		result = failureReason(err)
	}
	chunkRequests.WithLabelValues(source, result).Inc()
	chunkRequestDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	chunkRecords.WithLabelValues(source).Add(float64(records))
}

// failureReason classifies a chunk error. Throttling is only labelled, it
// is handled like any other failure.
func failureReason(err error) string {
	var statusErr *HTTPStatusError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &statusErr):
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return reasonRateLimited
		}
		return reasonHTTPStatus
	case errors.Is(err, ErrMalformedResponse), errors.As(err, &syntaxErr):
		return reasonDecode
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return reasonContextCanceled
	default:
		return reasonTransport
	}
}
