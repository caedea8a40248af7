package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ilyakochetov/shortly/internal/models"
)

type reaperRepository interface {
	FindExpiredBefore(ctx context.Context, t time.Time) ([]models.Link, error)
	DeleteMany(ctx context.Context, shortCodes []string) (int64, error)
}

// ExpiryReaper periodically removes links whose expiration instant has
// passed. It runs once per day at a fixed UTC time of day and relies on the
// repository's atomicity, so it is safe to run alongside request handling.
type ExpiryReaper struct {
	repo   reaperRepository
	logger *slog.Logger
	at     time.Duration
}

// NewExpiryReaper creates a reaper that sweeps daily at the given offset from
// UTC midnight.
func NewExpiryReaper(repo reaperRepository, logger *slog.Logger, at time.Duration) *ExpiryReaper {
	return &ExpiryReaper{
		repo:   repo,
		logger: logger,
		at:     at,
	}
}

// Sweep deletes all links that expired strictly before the current UTC time
// and returns the number of removed links. When nothing has expired it is a
// no-op.
func (r *ExpiryReaper) Sweep(ctx context.Context) (int64, error) {
	const op = "service.ExpiryReaper.Sweep"

	now := time.Now().UTC()

	links, err := r.repo.FindExpiredBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to find expired links: %w", op, err)
	}
	if len(links) == 0 {
		return 0, nil
	}

	shortCodes := make([]string, 0, len(links))
	for _, link := range links {
		shortCodes = append(shortCodes, link.ShortCode)
	}

	count, err := r.repo.DeleteMany(ctx, shortCodes)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to delete expired links: %w", op, err)
	}

	return count, nil
}

// Run executes Sweep on the reaper's schedule until ctx is cancelled.
// A failed sweep is logged and retried on the next tick; it never stops the
// loop.
func (r *ExpiryReaper) Run(ctx context.Context) error {
	const op = "service.ExpiryReaper.Run"

	for {
		timer := time.NewTimer(time.Until(r.nextSweep(time.Now().UTC())))

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		count, err := r.Sweep(ctx)
		if err != nil {
			r.logger.ErrorContext(ctx, "sweep failed",
				slog.String("op", op),
				slog.Any("err", err),
			)
			continue
		}

		if count > 0 {
			r.logger.InfoContext(ctx, "expired links removed",
				slog.String("op", op),
				slog.Int64("count", count),
			)
		}
	}
}

// nextSweep returns the first instant after now that falls on the configured
// UTC time of day.
func (r *ExpiryReaper) nextSweep(now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	next := midnight.Add(r.at)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}

	return next
}
