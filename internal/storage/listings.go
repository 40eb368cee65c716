package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nestscout/nestscout/internal/listing"
)

const listingColumns = `id, user_id, catalog_id, source_url, raw_content, images, enrichment_status,
	enrichment_error, retry_count, saved_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// SaveListing inserts a new listing in pending state. Saving a source URL the
// user already saved returns a *ConflictError naming the existing listing.
func (s *Store) SaveListing(ctx context.Context, l *listing.Listing) error {
	if l.ID == "" {
		return errors.New("listing id is required")
	}
	now := time.Now().UTC()
	if l.SavedAt.IsZero() {
		l.SavedAt = now
	}
	l.UpdatedAt = now
	if l.Status == "" {
		l.Status = listing.StatusPending
	}
	if l.Images == nil {
		l.Images = []string{}
	}
	images, err := marshalJSON(l.Images)
	if err != nil {
		return fmt.Errorf("encoding images: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM listings WHERE user_id = ? AND source_url = ?`, l.UserID, l.SourceURL).Scan(&existing)
	switch {
	case err == nil:
		return &ConflictError{ExistingID: existing}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("checking existing listing: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.UserID, l.CatalogID, l.SourceURL, l.RawContent, images, string(l.Status),
		l.EnrichmentError, l.RetryCount, formatTime(l.SavedAt), formatTime(l.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting listing: %w", err)
	}
	return tx.Commit()
}

func scanListing(row rowScanner) (*listing.Listing, error) {
	var l listing.Listing
	var images, status, savedAt, updatedAt string
	if err := row.Scan(&l.ID, &l.UserID, &l.CatalogID, &l.SourceURL, &l.RawContent, &images, &status,
		&l.EnrichmentError, &l.RetryCount, &savedAt, &updatedAt); err != nil {
		return nil, err
	}
	l.Status = listing.Status(status)
	if err := json.Unmarshal([]byte(images), &l.Images); err != nil {
		return nil, fmt.Errorf("decoding images of listing %s: %w", l.ID, err)
	}
	var err error
	if l.SavedAt, err = parseTime(savedAt); err != nil {
		return nil, fmt.Errorf("parsing saved_at: %w", err)
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &l, nil
}

// GetListing returns a listing by id.
func (s *Store) GetListing(ctx context.Context, id string) (*listing.Listing, error) {
	l, err := scanListing(s.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ListListings returns the user's listings, newest first. An empty status
// returns every listing.
func (s *Store) ListListings(ctx context.Context, userID string, status listing.Status) ([]listing.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND enrichment_status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY saved_at DESC, id ASC`
	return s.queryListings(ctx, query, args...)
}

func (s *Store) queryListings(ctx context.Context, query string, args ...any) ([]listing.Listing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []listing.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// DeleteListing removes a user's listing with its metadata and comparisons.
func (s *Store) DeleteListing(ctx context.Context, userID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting listing: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM listing_metadata WHERE listing_id = ?`, id); err != nil {
		return fmt.Errorf("deleting metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM listing_comparisons WHERE listing_id = ?`, id); err != nil {
		return fmt.Errorf("deleting comparisons: %w", err)
	}
	return tx.Commit()
}

// SetListingStatus moves a listing to status and records errMsg as its
// enrichment error (cleared when errMsg is empty). The move must be allowed
// by listing.CanTransition.
func (s *Store) SetListingStatus(ctx context.Context, id string, status listing.Status, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning status transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT enrichment_status FROM listings WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !listing.CanTransition(listing.Status(current), status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE listings SET enrichment_status = ?, enrichment_error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, formatTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	return tx.Commit()
}

// ResetListing puts a done or failed listing back to pending and counts the
// reset in retry_count.
func (s *Store) ResetListing(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE listings SET enrichment_status = 'pending', enrichment_error = '', retry_count = retry_count + 1, updated_at = ?
		WHERE id = ? AND enrichment_status IN ('done', 'failed')`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("resetting listing: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		if _, getErr := s.GetListing(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: cannot reset listing %s", ErrInvalidTransition, id)
	}
	return nil
}

// ListRetryable returns failed listings reset fewer than maxResets times and
// listings stuck in processing since before stuckBefore.
func (s *Store) ListRetryable(ctx context.Context, maxResets int, stuckBefore time.Time) ([]listing.Listing, error) {
	return s.queryListings(ctx, `SELECT `+listingColumns+` FROM listings
		WHERE retry_count < ?
		  AND (enrichment_status = 'failed' OR (enrichment_status = 'processing' AND updated_at < ?))
		ORDER BY updated_at ASC`,
		maxResets, formatTime(stuckBefore),
	)
}

const metadataColumns = `listing_id, price, currency, address, latitude, longitude, size_sqm, size_unit,
	rooms, bedrooms, bathrooms, beds_single, beds_double, furnishing, condo_fees, listing_type,
	student_friendly, floor_type, natural_light, noise_level, renovation_state, pet_friendly, balcony,
	vibe_tags, evidence, updated_at`

// UpsertMetadata writes the whole metadata row for a listing, replacing any
// previous row.
func (s *Store) UpsertMetadata(ctx context.Context, m *listing.Metadata) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	tags := m.VibeTags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := marshalJSON(tags)
	if err != nil {
		return fmt.Errorf("encoding vibe tags: %w", err)
	}
	evidence := m.Evidence
	if evidence == nil {
		evidence = map[string]string{}
	}
	evidenceJSON, err := marshalJSON(evidence)
	if err != nil {
		return fmt.Errorf("encoding evidence: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO listing_metadata (`+metadataColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET
			price = excluded.price, currency = excluded.currency, address = excluded.address,
			latitude = excluded.latitude, longitude = excluded.longitude,
			size_sqm = excluded.size_sqm, size_unit = excluded.size_unit,
			rooms = excluded.rooms, bedrooms = excluded.bedrooms, bathrooms = excluded.bathrooms,
			beds_single = excluded.beds_single, beds_double = excluded.beds_double,
			furnishing = excluded.furnishing, condo_fees = excluded.condo_fees,
			listing_type = excluded.listing_type, student_friendly = excluded.student_friendly,
			floor_type = excluded.floor_type, natural_light = excluded.natural_light,
			noise_level = excluded.noise_level, renovation_state = excluded.renovation_state,
			pet_friendly = excluded.pet_friendly, balcony = excluded.balcony,
			vibe_tags = excluded.vibe_tags, evidence = excluded.evidence, updated_at = excluded.updated_at`,
		m.ListingID, nullFloat(m.Price), m.Currency, m.Address, nullFloat(m.Latitude), nullFloat(m.Longitude),
		nullFloat(m.SizeSqm), m.SizeUnit, nullInt(m.Rooms), nullInt(m.Bedrooms), nullInt(m.Bathrooms),
		nullInt(m.BedsSingle), nullInt(m.BedsDouble), m.Furnishing, nullFloat(m.CondoFees), m.ListingType,
		m.StudentFriendly, m.FloorType, m.NaturalLight, m.NoiseLevel, m.RenovationState,
		nullBool(m.PetFriendly), nullBool(m.Balcony), tagsJSON, evidenceJSON, formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting metadata for %s: %w", m.ListingID, err)
	}
	return nil
}

// metadataRow holds the nullable and encoded columns of a metadata row
// while it is scanned.
type metadataRow struct {
	price, lat, lon, size, condoFees sql.NullFloat64
	rooms, bedrooms, bathrooms       sql.NullInt64
	bedsSingle, bedsDouble           sql.NullInt64
	pets, balcony                    sql.NullBool
	tags, evidence, updatedAt        string
}

// dest returns scan targets in metadataColumns order.
func (r *metadataRow) dest(m *listing.Metadata) []any {
	return []any{
		&m.ListingID, &r.price, &m.Currency, &m.Address, &r.lat, &r.lon, &r.size, &m.SizeUnit,
		&r.rooms, &r.bedrooms, &r.bathrooms, &r.bedsSingle, &r.bedsDouble, &m.Furnishing, &r.condoFees,
		&m.ListingType, &m.StudentFriendly, &m.FloorType, &m.NaturalLight, &m.NoiseLevel,
		&m.RenovationState, &r.pets, &r.balcony, &r.tags, &r.evidence, &r.updatedAt,
	}
}

func (r *metadataRow) apply(m *listing.Metadata) error {
	m.Price = floatPtr(r.price)
	m.Latitude = floatPtr(r.lat)
	m.Longitude = floatPtr(r.lon)
	m.SizeSqm = floatPtr(r.size)
	m.Rooms = intPtr(r.rooms)
	m.Bedrooms = intPtr(r.bedrooms)
	m.Bathrooms = intPtr(r.bathrooms)
	m.BedsSingle = intPtr(r.bedsSingle)
	m.BedsDouble = intPtr(r.bedsDouble)
	m.CondoFees = floatPtr(r.condoFees)
	m.PetFriendly = boolPtr(r.pets)
	m.Balcony = boolPtr(r.balcony)
	if err := json.Unmarshal([]byte(r.tags), &m.VibeTags); err != nil {
		return fmt.Errorf("decoding vibe tags: %w", err)
	}
	if err := json.Unmarshal([]byte(r.evidence), &m.Evidence); err != nil {
		return fmt.Errorf("decoding evidence: %w", err)
	}
	t, err := parseTime(r.updatedAt)
	if err != nil {
		return fmt.Errorf("parsing metadata updated_at: %w", err)
	}
	m.UpdatedAt = t
	return nil
}

// GetMetadata returns the metadata row of a listing.
func (s *Store) GetMetadata(ctx context.Context, listingID string) (*listing.Metadata, error) {
	var m listing.Metadata
	var r metadataRow
	err := s.db.QueryRowContext(ctx, `SELECT `+metadataColumns+` FROM listing_metadata WHERE listing_id = ?`, listingID).
		Scan(r.dest(&m)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.apply(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListCandidates returns the user's done listings that have metadata,
// newest first.
func (s *Store) ListCandidates(ctx context.Context, userID string) ([]listing.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.user_id, l.catalog_id, l.source_url, l.raw_content, l.images, l.enrichment_status,
			l.enrichment_error, l.retry_count, l.saved_at, l.updated_at,
			m.listing_id, m.price, m.currency, m.address, m.latitude, m.longitude, m.size_sqm, m.size_unit,
			m.rooms, m.bedrooms, m.bathrooms, m.beds_single, m.beds_double, m.furnishing, m.condo_fees,
			m.listing_type, m.student_friendly, m.floor_type, m.natural_light, m.noise_level,
			m.renovation_state, m.pet_friendly, m.balcony, m.vibe_tags, m.evidence, m.updated_at
		FROM listings l
		JOIN listing_metadata m ON m.listing_id = l.id
		WHERE l.user_id = ? AND l.enrichment_status = 'done'
		ORDER BY l.saved_at DESC, l.id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []listing.Candidate
	for rows.Next() {
		var l listing.Listing
		var m listing.Metadata
		var r metadataRow
		var images, status, savedAt, updatedAt string

		dest := []any{&l.ID, &l.UserID, &l.CatalogID, &l.SourceURL, &l.RawContent, &images, &status,
			&l.EnrichmentError, &l.RetryCount, &savedAt, &updatedAt}
		if err := rows.Scan(append(dest, r.dest(&m)...)...); err != nil {
			return nil, err
		}
		if err := r.apply(&m); err != nil {
			return nil, err
		}
		l.Status = listing.Status(status)
		if err := json.Unmarshal([]byte(images), &l.Images); err != nil {
			return nil, fmt.Errorf("decoding images of listing %s: %w", l.ID, err)
		}
		if l.SavedAt, err = parseTime(savedAt); err != nil {
			return nil, fmt.Errorf("parsing saved_at: %w", err)
		}
		if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		out = append(out, listing.Candidate{Listing: l, Metadata: &m})
	}
	return out, rows.Err()
}
