package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieranpgray/coinbag/internal/domain/statements"
)

type fakeUsageStore struct {
	counts     map[string]int
	err        error
	lastWindow time.Time
}

func (f *fakeUsageStore) IncrementUsage(_ context.Context, userID uuid.UUID, windowStart time.Time) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	key := userID.String() + windowStart.Format(time.RFC3339)
	f.counts[key]++
	f.lastWindow = windowStart
	return f.counts[key], nil
}

func TestUserRateLimiter_AllowsUpToLimit(t *testing.T) {
	store := &fakeUsageStore{}
	limiter := NewUserRateLimiter(store, 3, testLogger())
	userID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Allow(ctx, userID), "call %d within quota", i+1)
	}

	err := limiter.Allow(ctx, userID)
	require.ErrorIs(t, err, statements.ErrRateLimitExceeded)
}

func TestUserRateLimiter_QuotaIsPerUser(t *testing.T) {
	store := &fakeUsageStore{}
	limiter := NewUserRateLimiter(store, 1, testLogger())
	ctx := context.Background()

	require.NoError(t, limiter.Allow(ctx, uuid.New()))
	require.NoError(t, limiter.Allow(ctx, uuid.New()), "a second user has their own window")
}

func TestUserRateLimiter_WindowIsHourAligned(t *testing.T) {
	store := &fakeUsageStore{}
	limiter := NewUserRateLimiter(store, 5, testLogger())

	require.NoError(t, limiter.Allow(context.Background(), uuid.New()))

	assert.Equal(t, store.lastWindow, store.lastWindow.Truncate(time.Hour))
	assert.Equal(t, time.UTC, store.lastWindow.Location())
}

func TestUserRateLimiter_StoreError(t *testing.T) {
	store := &fakeUsageStore{err: errors.New("connection refused")}
	limiter := NewUserRateLimiter(store, 5, testLogger())

	err := limiter.Allow(context.Background(), uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, statements.ErrRateLimitExceeded)
}
