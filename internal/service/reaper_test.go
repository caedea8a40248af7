package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ilyakochetov/shortly/internal/models"
)

func setupExpiryReaper(t testing.TB) (*ExpiryReaper, *MockLinkRepository) {
	t.Helper()

	repoMock := new(MockLinkRepository)
	reaper := NewExpiryReaper(repoMock, slog.New(slog.NewTextHandler(io.Discard, nil)), 3*time.Hour)

	return reaper, repoMock
}

func TestExpiryReaper_Sweep(t *testing.T) {
	errUnknown := errors.New("unknown error")

	t.Run("find error", func(t *testing.T) {
		reaper, repoMock := setupExpiryReaper(t)

		repoMock.
			On("FindExpiredBefore", context.Background(), mock.AnythingOfType("time.Time")).
			Once().
			Return(nil, errUnknown)

		count, err := reaper.Sweep(context.Background())

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Zero(t, count)
		repoMock.AssertExpectations(t)
	})

	t.Run("nothing expired", func(t *testing.T) {
		reaper, repoMock := setupExpiryReaper(t)

		repoMock.
			On("FindExpiredBefore", context.Background(), mock.AnythingOfType("time.Time")).
			Once().
			Return([]models.Link{}, nil)

		count, err := reaper.Sweep(context.Background())

		assert.NoError(t, err)
		assert.Zero(t, count)
		repoMock.AssertNotCalled(t, "DeleteMany", mock.Anything, mock.Anything)
		repoMock.AssertExpectations(t)
	})

	t.Run("delete error", func(t *testing.T) {
		reaper, repoMock := setupExpiryReaper(t)

		repoMock.
			On("FindExpiredBefore", context.Background(), mock.AnythingOfType("time.Time")).
			Once().
			Return([]models.Link{
				{ShortCode: "abc123"},
			}, nil)
		repoMock.
			On("DeleteMany", context.Background(), []string{"abc123"}).
			Once().
			Return(int64(0), errUnknown)

		count, err := reaper.Sweep(context.Background())

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Zero(t, count)
		repoMock.AssertExpectations(t)
	})

	t.Run("success", func(t *testing.T) {
		reaper, repoMock := setupExpiryReaper(t)

		repoMock.
			On("FindExpiredBefore", context.Background(), mock.AnythingOfType("time.Time")).
			Once().
			Return([]models.Link{
				{ShortCode: "abc123"},
				{ShortCode: "def456"},
			}, nil)
		repoMock.
			On("DeleteMany", context.Background(), []string{"abc123", "def456"}).
			Once().
			Return(int64(2), nil)

		count, err := reaper.Sweep(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, int64(2), count)
		repoMock.AssertExpectations(t)
	})
}

func TestExpiryReaper_Run(t *testing.T) {
	t.Run("stops when context is cancelled", func(t *testing.T) {
		reaper, repoMock := setupExpiryReaper(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := reaper.Run(ctx)

		assert.NoError(t, err)
		repoMock.AssertNotCalled(t, "FindExpiredBefore", mock.Anything, mock.Anything)
	})
}

func TestExpiryReaper_NextSweep(t *testing.T) {
	reaper, _ := setupExpiryReaper(t)

	t.Run("before today's sweep time", func(t *testing.T) {
		now := time.Date(2025, time.March, 20, 1, 30, 0, 0, time.UTC)

		next := reaper.nextSweep(now)

		assert.Equal(t, time.Date(2025, time.March, 20, 3, 0, 0, 0, time.UTC), next)
	})

	t.Run("after today's sweep time", func(t *testing.T) {
		now := time.Date(2025, time.March, 20, 3, 0, 0, 0, time.UTC)

		next := reaper.nextSweep(now)

		assert.Equal(t, time.Date(2025, time.March, 21, 3, 0, 0, 0, time.UTC), next)
	})
}
