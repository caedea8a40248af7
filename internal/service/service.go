// Package service contains the core business logic for shortening links,
// resolving redirects, reporting analytics and reaping expired links.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/ilyakochetov/shortly/internal/database"
	"github.com/ilyakochetov/shortly/internal/models"
	"github.com/ilyakochetov/shortly/pkg/hashsum"
)

// maxAliasLength is the longest user-supplied alias accepted for a short code.
const maxAliasLength = 19

// maxRecentVisits caps the number of visit records returned by analytics.
const maxRecentVisits = 5

var (
	// ErrOriginalURLRequired is returned when a shorten request carries no original URL.
	ErrOriginalURLRequired = errors.New("original url is required")
	// ErrAliasTooLong is returned when a user-supplied alias exceeds maxAliasLength.
	ErrAliasTooLong = errors.New("alias is too long")
	// ErrAliasTaken is returned when a user-supplied alias is already assigned to another link.
	ErrAliasTaken = errors.New("alias is taken")
	// ErrMaxRetriesExceeded is returned when the maximum number of retries for generating a short code is exceeded.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")
)

type linkRepository interface {
	Create(ctx context.Context, shortCode, originalURL, digest string, expiresAt *time.Time) (*models.Link, error)
	GetByShortCode(ctx context.Context, shortCode string) (*models.Link, error)
	GetByDigest(ctx context.Context, digest string) (*models.Link, error)
	IncrementClicks(ctx context.Context, shortCode string) (*models.Link, error)
	RecordVisit(ctx context.Context, shortCode, ipAddress string) error
	RecentVisits(ctx context.Context, shortCode string, limit int) ([]models.Visit, error)
	Delete(ctx context.Context, shortCode string) error
}

// LinkService provides the shortening, redirect and analytics operations.
// It treats the repository as the single source of truth and keeps no
// writable state in memory.
type LinkService struct {
	repo            linkRepository
	logger          *slog.Logger
	shortCodeLength int
}

// NewLinkService creates a new LinkService with the provided repository,
// logger and generated short code length.
func NewLinkService(repo linkRepository, logger *slog.Logger, shortCodeLength int) *LinkService {
	return &LinkService{
		repo:            repo,
		logger:          logger,
		shortCodeLength: shortCodeLength,
	}
}

// Shorten creates a short code for the original URL, or returns the existing
// one when the same content was already shortened without an alias. The
// returned bool reports whether a new link was created.
//
// Requests carrying an alias skip content dedup entirely: each aliased call
// creates a fresh link, and only alias-free links are indexed by digest.
func (s *LinkService) Shorten(ctx context.Context, originalURL, alias string, expiresAt *time.Time) (*models.Link, bool, error) {
	const op = "service.LinkService.Shorten"

	if originalURL == "" {
		return nil, false, fmt.Errorf("%s: %w", op, ErrOriginalURLRequired)
	}

	digest := hashsum.SHA256Hex(originalURL)

	if alias != "" {
		// Rune count, to match the request validator's max tag.
		if utf8.RuneCountInString(alias) > maxAliasLength {
			return nil, false, fmt.Errorf("%s: %w", op, ErrAliasTooLong)
		}

		link, err := s.repo.Create(ctx, alias, originalURL, "", expiresAt)
		if err != nil {
			if errors.Is(err, database.ErrShortCodeExists) {
				return nil, false, fmt.Errorf("%s: %w", op, ErrAliasTaken)
			}

			return nil, false, fmt.Errorf("%s: failed to shorten url: %w", op, err)
		}

		return link, true, nil
	}

	link, err := s.repo.GetByDigest(ctx, digest)
	if err == nil {
		return link, false, nil
	}
	if !errors.Is(err, database.ErrLinkNotFound) {
		return nil, false, fmt.Errorf("%s: failed to look up digest: %w", op, err)
	}

	const maxRetries = 5
	length := s.shortCodeLength

	for i := 0; i < maxRetries; i++ {
		shortCode, err := gonanoid.New(length)
		if err != nil {
			return nil, false, fmt.Errorf("%s: failed to generate short code: %w", op, err)
		}

		link, err := s.repo.Create(ctx, shortCode, originalURL, digest, expiresAt)
		if err != nil {
			if errors.Is(err, database.ErrShortCodeExists) {
				length++
				continue
			}

			// A concurrent request shortened the same URL first; hand out
			// the winner's short code.
			if errors.Is(err, database.ErrDigestExists) {
				link, err := s.repo.GetByDigest(ctx, digest)
				if err != nil {
					return nil, false, fmt.Errorf("%s: failed to look up digest: %w", op, err)
				}

				return link, false, nil
			}

			return nil, false, fmt.Errorf("%s: failed to shorten url: %w", op, err)
		}

		return link, true, nil
	}

	return nil, false, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

// Resolve retrieves the link for the short code, atomically incrementing its
// click counter and appending a visit. A visit that cannot be recorded is
// logged and does not fail the redirect, so clicks may briefly run ahead of
// visits.
func (s *LinkService) Resolve(ctx context.Context, shortCode, ipAddress string) (*models.Link, error) {
	const op = "service.LinkService.Resolve"

	link, err := s.repo.IncrementClicks(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	if err := s.repo.RecordVisit(ctx, shortCode, ipAddress); err != nil {
		s.logger.ErrorContext(ctx, "failed to record visit",
			slog.String("op", op),
			slog.String("short_code", shortCode),
			slog.Any("err", err),
		)
	}

	return link, nil
}

// GetInfo retrieves the link for the short code without mutating it.
func (s *LinkService) GetInfo(ctx context.Context, shortCode string) (*models.Link, error) {
	const op = "service.LinkService.GetInfo"

	link, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get link info: %w", op, err)
	}

	return link, nil
}

// GetAnalytics retrieves the link together with its most recent visits,
// newest first, capped at maxRecentVisits.
func (s *LinkService) GetAnalytics(ctx context.Context, shortCode string) (*models.Link, []models.Visit, error) {
	const op = "service.LinkService.GetAnalytics"

	link, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to get link: %w", op, err)
	}

	visits, err := s.repo.RecentVisits(ctx, shortCode, maxRecentVisits)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to get recent visits: %w", op, err)
	}

	return link, visits, nil
}

// Remove deletes the link associated with the short code. Its digest entry is
// removed with it; visit records are kept.
func (s *LinkService) Remove(ctx context.Context, shortCode string) error {
	const op = "service.LinkService.Remove"

	if err := s.repo.Delete(ctx, shortCode); err != nil {
		return fmt.Errorf("%s: failed to remove link: %w", op, err)
	}

	return nil
}
