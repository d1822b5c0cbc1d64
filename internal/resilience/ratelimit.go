package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kieranpgray/coinbag/internal/domain/statements"
)

// UsageStore persists per-user call counts in fixed windows. Backed by the
// database so the quota holds across restarts and replicas.
type UsageStore interface {
	IncrementUsage(ctx context.Context, userID uuid.UUID, windowStart time.Time) (int, error)
}

// UserRateLimiter enforces a fixed-window hourly quota on AI-assisted
// extraction per user
type UserRateLimiter struct {
	store  UsageStore
	limit  int
	logger *slog.Logger
}

// NewUserRateLimiter creates a limiter allowing limit calls per user per hour
func NewUserRateLimiter(store UsageStore, limit int, logger *slog.Logger) *UserRateLimiter {
	if limit <= 0 {
		limit = 10
	}
	return &UserRateLimiter{store: store, limit: limit, logger: logger}
}

// Allow consumes one call from the user's current hourly window. Returns
// statements.ErrRateLimitExceeded once the quota is exhausted; the counter
// still increments so the window reflects attempts, not just successes.
func (l *UserRateLimiter) Allow(ctx context.Context, userID uuid.UUID) error {
	window := time.Now().UTC().Truncate(time.Hour)

	count, err := l.store.IncrementUsage(ctx, userID, window)
	if err != nil {
		return fmt.Errorf("failed to record quota usage: %w", err)
	}

	if count > l.limit {
		l.logger.Warn("hourly AI quota exhausted",
			"user_id", userID,
			"count", count,
			"limit", l.limit,
		)
		return fmt.Errorf("%w: %d calls this hour (limit %d)",
			statements.ErrRateLimitExceeded, count, l.limit)
	}
	return nil
}
