package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nestscout/nestscout/internal/listing"
)

// --- Comparisons ---

// UpsertComparison stores the score for (listing, user), overwriting any
// earlier score for the same pair.
func (s *Store) UpsertComparison(ctx context.Context, c *listing.Comparison) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listing_comparisons (listing_id, user_id, match_score, comparison_summary, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(listing_id, user_id) DO UPDATE SET
			match_score = excluded.match_score,
			comparison_summary = excluded.comparison_summary,
			updated_at = excluded.updated_at`,
		c.ListingID, c.UserID, c.Score, c.Summary, formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting comparison %s/%s: %w", c.ListingID, c.UserID, err)
	}
	return nil
}

// GetComparison returns the user's score for a listing.
func (s *Store) GetComparison(ctx context.Context, listingID, userID string) (*listing.Comparison, error) {
	var c listing.Comparison
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT listing_id, user_id, match_score, comparison_summary, updated_at
		FROM listing_comparisons WHERE listing_id = ? AND user_id = ?`, listingID, userID,
	).Scan(&c.ListingID, &c.UserID, &c.Score, &c.Summary, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}

// ListComparisons returns the user's scores keyed by listing id.
func (s *Store) ListComparisons(ctx context.Context, userID string) (map[string]listing.Comparison, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT listing_id, user_id, match_score, comparison_summary, updated_at
		FROM listing_comparisons WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]listing.Comparison)
	for rows.Next() {
		var c listing.Comparison
		var updatedAt string
		if err := rows.Scan(&c.ListingID, &c.UserID, &c.Score, &c.Summary, &updatedAt); err != nil {
			return nil, err
		}
		if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		out[c.ListingID] = c
	}
	return out, rows.Err()
}

// --- Preferences ---

// GetPreference returns the user's dream apartment description.
func (s *Store) GetPreference(ctx context.Context, userID string) (*listing.Preference, error) {
	var p listing.Preference
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, dream_apartment_description, updated_at
		FROM user_preferences WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.Description, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &p, nil
}

// SetPreference creates or replaces the user's description.
func (s *Store) SetPreference(ctx context.Context, p *listing.Preference) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, dream_apartment_description, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			dream_apartment_description = excluded.dream_apartment_description,
			updated_at = excluded.updated_at`,
		p.UserID, p.Description, formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving preference: %w", err)
	}
	return nil
}

// DeletePreference removes the user's description together with every match
// score computed from it, and returns how many scores were removed.
func (s *Store) DeletePreference(ctx context.Context, userID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning clear transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_preferences WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("deleting preference: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM listing_comparisons WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting comparisons: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing clear: %w", err)
	}
	return n, nil
}
