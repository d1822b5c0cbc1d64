package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kieranpgray/coinbag/internal/domain/statements"
)

// BreakerSettings tunes the provider circuit breaker
type BreakerSettings struct {
	Name             string
	FailureThreshold int
	Cooldown         time.Duration

	// OnStateChange is called with the new state name ("closed",
	// "half-open", "open"). Optional.
	OnStateChange func(state string)
}

// Breaker trips after consecutive provider failures and fails fast until
// the cooldown expires. While open, calls return statements.ErrCircuitOpen
// without touching the provider.
type Breaker[T any] struct {
	cb     *gobreaker.CircuitBreaker[T]
	logger *slog.Logger
}

// NewBreaker creates a circuit breaker around a provider call returning T
func NewBreaker[T any](settings BreakerSettings, logger *slog.Logger) *Breaker[T] {
	threshold := settings.FailureThreshold
	if threshold <= 0 {
		threshold = 3
	}

	cb := gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1, // one probe in half-open
		Timeout:     settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if settings.OnStateChange != nil {
				settings.OnStateChange(to.String())
			}
		},
	})

	return &Breaker[T]{cb: cb, logger: logger}
}

// Execute runs fn through the breaker. Open-circuit rejections are mapped to
// statements.ErrCircuitOpen.
func (b *Breaker[T]) Execute(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	result, err := b.cb.Execute(func() (T, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%w: %v", statements.ErrCircuitOpen, err)
	}
	return result, err
}

// State returns the breaker's current state name
func (b *Breaker[T]) State() string {
	return b.cb.State().String()
}
