package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ilyakochetov/shortly/internal/database"
	"github.com/ilyakochetov/shortly/internal/models"
)

type linkRecord struct {
	ShortCode   string     `db:"short_code"`
	OriginalURL string     `db:"original_url"`
	ClickCount  int64      `db:"click_count"`
	CreatedAt   time.Time  `db:"created_at"`
	ExpiresAt   *time.Time `db:"expires_at"`
}

func (r *linkRecord) ToLink() *models.Link {
	return &models.Link{
		ShortCode:   r.ShortCode,
		OriginalURL: r.OriginalURL,
		ClickCount:  r.ClickCount,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

type visitRecord struct {
	ID        int64     `db:"id"`
	ShortCode string    `db:"short_code"`
	IPAddress string    `db:"ip_address"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *visitRecord) ToVisit() models.Visit {
	return models.Visit{
		ID:        r.ID,
		ShortCode: r.ShortCode,
		IPAddress: r.IPAddress,
		CreatedAt: r.CreatedAt,
	}
}

// LinkRepository provides access to links, their content digests and visits.
type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{
		db: db,
	}
}

// Create inserts a new link and, when digest is non-empty, its content digest
// entry in a single transaction. A short code that already exists surfaces as
// database.ErrShortCodeExists, an already-indexed digest as
// database.ErrDigestExists.
func (r *LinkRepository) Create(ctx context.Context, shortCode, originalURL, digest string, expiresAt *time.Time) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.Create"

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rec := new(linkRecord)
	query := `INSERT INTO links(short_code, original_url, expires_at)
		VALUES ($1, $2, $3)
		RETURNING *`

	if err := tx.GetContext(ctx, rec, query, shortCode, originalURL, expiresAt); err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to create link record: %w", op, err)
	}

	if digest != "" {
		query := `INSERT INTO link_hashes(hash, short_code)
			VALUES ($1, $2)`

		if _, err := tx.ExecContext(ctx, query, digest, shortCode); err != nil {
			if isUniqueViolationError(err) {
				return nil, fmt.Errorf("%s: %w", op, database.ErrDigestExists)
			}

			return nil, fmt.Errorf("%s: failed to create link hash record: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	return rec.ToLink(), nil
}

// GetByShortCode retrieves a link by its short code without mutating it.
func (r *LinkRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.GetByShortCode"

	rec := new(linkRecord)
	query := `SELECT * FROM links
		WHERE short_code = $1`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

// GetByDigest retrieves the link whose content digest matches the given digest.
func (r *LinkRepository) GetByDigest(ctx context.Context, digest string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.GetByDigest"

	rec := new(linkRecord)
	query := `SELECT l.* FROM links l
		JOIN link_hashes h ON h.short_code = l.short_code
		WHERE h.hash = $1`

	err := r.db.GetContext(ctx, rec, query, digest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get link record by digest: %w", op, err)
	}

	return rec.ToLink(), nil
}

// IncrementClicks atomically increments the click counter of a link and
// returns its updated state. Concurrent increments for the same short code
// serialize on the row, so no update is lost.
func (r *LinkRepository) IncrementClicks(ctx context.Context, shortCode string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.IncrementClicks"

	rec := new(linkRecord)
	query := `UPDATE links
		SET click_count = click_count + 1
		WHERE short_code = $1
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to increment clicks: %w", op, err)
	}

	return rec.ToLink(), nil
}

// RecordVisit appends a visit row for the given short code.
func (r *LinkRepository) RecordVisit(ctx context.Context, shortCode, ipAddress string) error {
	const op = "database.postgres.LinkRepository.RecordVisit"

	query := `INSERT INTO visits(short_code, ip_address)
		VALUES ($1, $2)`

	if _, err := r.db.ExecContext(ctx, query, shortCode, ipAddress); err != nil {
		return fmt.Errorf("%s: failed to record visit: %w", op, err)
	}

	return nil
}

// RecentVisits returns up to limit visits for the short code, newest first.
func (r *LinkRepository) RecentVisits(ctx context.Context, shortCode string, limit int) ([]models.Visit, error) {
	const op = "database.postgres.LinkRepository.RecentVisits"

	var recs []visitRecord
	query := `SELECT * FROM visits
		WHERE short_code = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &recs, query, shortCode, limit); err != nil {
		return nil, fmt.Errorf("%s: failed to get visit records: %w", op, err)
	}

	visits := make([]models.Visit, 0, len(recs))
	for _, rec := range recs {
		visits = append(visits, rec.ToVisit())
	}

	return visits, nil
}

// Delete removes a link by its short code. The content digest entry is removed
// in the same statement through the foreign key cascade.
func (r *LinkRepository) Delete(ctx context.Context, shortCode string) error {
	const op = "database.postgres.LinkRepository.Delete"

	query := `DELETE FROM links
		WHERE short_code = $1`

	res, err := r.db.ExecContext(ctx, query, shortCode)
	if err != nil {
		return fmt.Errorf("%s: failed to delete link record: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
	}

	return nil
}

// FindExpiredBefore returns all links whose expiration instant is strictly
// before t. Links without an expiration are never returned.
func (r *LinkRepository) FindExpiredBefore(ctx context.Context, t time.Time) ([]models.Link, error) {
	const op = "database.postgres.LinkRepository.FindExpiredBefore"

	var recs []linkRecord
	query := `SELECT * FROM links
		WHERE expires_at IS NOT NULL AND expires_at < $1`

	if err := r.db.SelectContext(ctx, &recs, query, t); err != nil {
		return nil, fmt.Errorf("%s: failed to get expired link records: %w", op, err)
	}

	links := make([]models.Link, 0, len(recs))
	for _, rec := range recs {
		links = append(links, *rec.ToLink())
	}

	return links, nil
}

// DeleteMany removes the links with the given short codes and returns the
// number of deleted rows. Digest entries follow through the cascade.
func (r *LinkRepository) DeleteMany(ctx context.Context, shortCodes []string) (int64, error) {
	const op = "database.postgres.LinkRepository.DeleteMany"

	if len(shortCodes) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`DELETE FROM links WHERE short_code IN (?)`, shortCodes)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to delete link records: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}

	return rowsAffected, nil
}
