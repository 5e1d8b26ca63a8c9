package media

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/anonto42/circle/backend/internal/metrics"
	"github.com/anonto42/circle/backend/pkg/logging"
)

// BreakerSettings tunes WithCircuitBreaker.
type BreakerSettings struct {
	// ConsecutiveFailures that open the circuit. Default: 5
	ConsecutiveFailures uint32
	// Timeout before an open circuit lets a probe through. Default: 30s
	Timeout time.Duration
}

// breakerUploader rejects uploads fast while the remote host keeps failing.
type breakerUploader struct {
	next Uploader
	cb   *gobreaker.CircuitBreaker[string]
}

// WithCircuitBreaker wraps a remote uploader. While the circuit is open,
// Upload returns gobreaker.ErrOpenState without calling the host.
func WithCircuitBreaker(next Uploader, s BreakerSettings) Uploader {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	name := "media-" + next.Name()
	metrics.SetCircuitBreakerState(name, 0)

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.SetCircuitBreakerState(name, stateValue(to))
		},
	})
	return &breakerUploader{next: next, cb: cb}
}

func (b *breakerUploader) Name() string { return b.next.Name() }

func (b *breakerUploader) Upload(ctx context.Context, obj Object) (string, error) {
	return b.cb.Execute(func() (string, error) {
		return b.next.Upload(ctx, obj)
	})
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
