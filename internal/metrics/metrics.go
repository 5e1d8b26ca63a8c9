// Package metrics holds the Prometheus collectors of the API server and the
// echo middleware that feeds the request collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anonto42/circle/backend/internal/apperrors"
	"github.com/anonto42/circle/backend/pkg/logging"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circle_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "circle_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	// Social graph and engagement
	FollowOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circle_follow_operations_total",
			Help: "Follow and unfollow calls by outcome",
		},
		[]string{"operation", "outcome"}, // follow|unfollow, ok|conflict|not_found|error
	)

	LikeToggles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circle_like_toggles_total",
			Help: "Like toggles by resulting state",
		},
		[]string{"state"}, // liked|unliked
	)

	// Media ingest
	MediaUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circle_media_uploads_total",
			Help: "Media uploads by storage driver, kind and outcome",
		},
		[]string{"driver", "kind", "outcome"},
	)

	MediaUploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "circle_media_upload_bytes",
			Help:    "Size of accepted media uploads",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 6), // 16KiB .. 16MiB
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circle_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func RecordFollow(operation, outcome string) {
	FollowOperations.WithLabelValues(operation, outcome).Inc()
}

func RecordLikeToggle(liked bool) {
	state := "unliked"
	if liked {
		state = "liked"
	}
	LikeToggles.WithLabelValues(state).Inc()
}

func RecordMediaUpload(driver, kind string, size int64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else {
		MediaUploadBytes.Observe(float64(size))
	}
	MediaUploads.WithLabelValues(driver, kind, outcome).Inc()
}

// SetCircuitBreakerState publishes a breaker state (0 closed, 1 half-open, 2 open).
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Middleware records count and latency per route template.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				var ae *apperrors.Error
				if errors.As(err, &ae) {
					status = apperrors.StatusCode(ae.Kind)
				} else if errors.As(err, &he) {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			endpoint := c.Path()
			if endpoint == "" {
				endpoint = "unmatched"
			}
			RecordAPIRequest(c.Request().Method, endpoint, strconv.Itoa(status), time.Since(start))
			return err
		}
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Info().Str("addr", addr).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
