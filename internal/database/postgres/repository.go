package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/shortlink/internal/database"
	"github.com/vadimbarashkov/shortlink/internal/models"
)

// shortIDLengthKey is the settings row that stores the escalated short
// identifier length between process restarts.
const shortIDLengthKey = "short_id_length"

type linkRecord struct {
	ShortID        string    `db:"short_id"`
	TargetURL      string    `db:"target_url"`
	CreatedAt      time.Time `db:"created_at"`
	LastAccessedAt time.Time `db:"last_accessed_at"`
}

func (r *linkRecord) ToLink() *models.Link {
	return &models.Link{
		ShortID:        r.ShortID,
		TargetURL:      r.TargetURL,
		CreatedAt:      r.CreatedAt,
		LastAccessedAt: r.LastAccessedAt,
	}
}

// LinkRepository is the durable store for short links, backed by PostgreSQL.
// It satisfies the backend contract consumed by the service layer.
type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{
		db: db,
	}
}

// Init verifies connectivity. Schema setup is handled by migrations at
// application startup, not here.
func (r *LinkRepository) Init(ctx context.Context) error {
	const op = "database.postgres.LinkRepository.Init"

	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return nil
}

// GetTargetURL resolves a short identifier to its target URL. A missing
// identifier is reported through the boolean, not as an error.
func (r *LinkRepository) GetTargetURL(ctx context.Context, shortID string) (string, bool, error) {
	const op = "database.postgres.LinkRepository.GetTargetURL"

	var targetURL string
	query := `SELECT target_url FROM links WHERE short_id = $1`

	err := r.db.GetContext(ctx, &targetURL, query, shortID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return targetURL, true, nil
}

// CreateShortLink inserts a new mapping. It fails fast with
// database.ErrShortIDExists when the identifier is already taken.
func (r *LinkRepository) CreateShortLink(ctx context.Context, shortID, targetURL string) error {
	const op = "database.postgres.LinkRepository.CreateShortLink"

	query := `INSERT INTO links(short_id, target_url) VALUES ($1, $2)`

	if _, err := r.db.ExecContext(ctx, query, shortID, targetURL); err != nil {
		if isUniqueViolationError(err) {
			return fmt.Errorf("%s: %w", op, database.ErrShortIDExists)
		}

		return fmt.Errorf("%s: failed to create link record: %w", op, err)
	}

	return nil
}

// CheckShortIDsExist returns the subset of the given identifiers that are
// already present in the store.
func (r *LinkRepository) CheckShortIDsExist(ctx context.Context, shortIDs []string) ([]string, error) {
	const op = "database.postgres.LinkRepository.CheckShortIDsExist"

	if len(shortIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT short_id FROM links WHERE short_id IN (?)`, shortIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var existing []string
	if err := r.db.SelectContext(ctx, &existing, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("%s: failed to check link records: %w", op, err)
	}

	return existing, nil
}

// UpdateLastAccessTime bumps last_accessed_at to the current time. Updating
// an unknown identifier is a no-op.
func (r *LinkRepository) UpdateLastAccessTime(ctx context.Context, shortID string) error {
	const op = "database.postgres.LinkRepository.UpdateLastAccessTime"

	query := `UPDATE links
		SET last_accessed_at = GREATEST(last_accessed_at, now())
		WHERE short_id = $1`

	if _, err := r.db.ExecContext(ctx, query, shortID); err != nil {
		return fmt.Errorf("%s: failed to update link record: %w", op, err)
	}

	return nil
}

// CleanUnusedLinks deletes every link whose last access is older than
// maxAgeDays days and returns the deleted identifiers so the caller can
// invalidate cache entries.
func (r *LinkRepository) CleanUnusedLinks(ctx context.Context, maxAgeDays int) ([]string, error) {
	const op = "database.postgres.LinkRepository.CleanUnusedLinks"

	var deleted []string
	query := `DELETE FROM links
		WHERE last_accessed_at < now() - $1 * interval '1 day'
		RETURNING short_id`

	if err := r.db.SelectContext(ctx, &deleted, query, maxAgeDays); err != nil {
		return nil, fmt.Errorf("%s: failed to delete link records: %w", op, err)
	}

	return deleted, nil
}

// GetLink retrieves the full link record, including timestamps.
func (r *LinkRepository) GetLink(ctx context.Context, shortID string) (*models.Link, bool, error) {
	const op = "database.postgres.LinkRepository.GetLink"

	rec := new(linkRecord)
	query := `SELECT short_id, target_url, created_at, last_accessed_at
		FROM links
		WHERE short_id = $1`

	err := r.db.GetContext(ctx, rec, query, shortID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return rec.ToLink(), true, nil
}

// ShortIDLength reads the persisted short identifier length. The boolean is
// false when no length has been persisted yet.
func (r *LinkRepository) ShortIDLength(ctx context.Context) (int, bool, error) {
	const op = "database.postgres.LinkRepository.ShortIDLength"

	var length int
	query := `SELECT value FROM settings WHERE key = $1`

	err := r.db.GetContext(ctx, &length, query, shortIDLengthKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("%s: failed to get settings record: %w", op, err)
	}

	return length, true, nil
}

// SaveShortIDLength persists the short identifier length with a set-if-greater
// policy, so concurrent escalations can never shrink the stored value.
func (r *LinkRepository) SaveShortIDLength(ctx context.Context, length int) error {
	const op = "database.postgres.LinkRepository.SaveShortIDLength"

	query := `INSERT INTO settings(key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET value = GREATEST(settings.value, EXCLUDED.value)`

	if _, err := r.db.ExecContext(ctx, query, shortIDLengthKey, length); err != nil {
		return fmt.Errorf("%s: failed to save settings record: %w", op, err)
	}

	return nil
}
