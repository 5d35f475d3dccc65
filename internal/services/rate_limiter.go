package services

import (
	"context"
	"time"

	"github.com/alimgiray/champions/pkg/logger"
	"github.com/sirupsen/logrus"
)

// QuotaUnknown is reported when the quota probe fails. It is non-zero so
// the crawl proceeds.
const QuotaUnknown = -1

// QuotaChecker reports the remaining search quota and its reset time
type QuotaChecker interface {
	CheckQuota(ctx context.Context) (int, time.Time, error)
}

// RateLimiter blocks the crawl while the search quota is exhausted
type RateLimiter struct {
	checker QuotaChecker
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewRateLimiter(checker QuotaChecker) *RateLimiter {
	return &RateLimiter{
		checker: checker,
		now:     time.Now,
		sleep:   Sleep,
	}
}

// CheckQuota probes the quota. A failed probe is logged and reported as
// QuotaUnknown instead of failing the crawl.
func (r *RateLimiter) CheckQuota(ctx context.Context) (int, time.Time) {
	remaining, resetAt, err := r.checker.CheckQuota(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to check rate limit, continuing")
		return QuotaUnknown, time.Time{}
	}
	return remaining, resetAt
}

// AwaitIfExhausted sleeps until resetAt when no quota is left
func (r *RateLimiter) AwaitIfExhausted(ctx context.Context, remaining int, resetAt time.Time) error {
	if remaining != 0 {
		return nil
	}

	wait := resetAt.Sub(r.now())
	if wait < 0 {
		wait = 0
	}

	logger.WithFields(logrus.Fields{
		"reset_at":     resetAt.UTC().Format(time.RFC3339),
		"wait_seconds": int(wait.Seconds()),
	}).Info("Rate limit reached, waiting until reset")

	return r.sleep(ctx, wait)
}

// Wait checks the quota and blocks if it is exhausted. Call it right
// before every search request.
func (r *RateLimiter) Wait(ctx context.Context) error {
	remaining, resetAt := r.CheckQuota(ctx)
	return r.AwaitIfExhausted(ctx, remaining, resetAt)
}

// Sleep pauses for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
