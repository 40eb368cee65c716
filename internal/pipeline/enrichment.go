// Package pipeline runs the enrichment of a saved listing: structured
// extraction, best-effort geocoding and the status lifecycle around them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nestscout/nestscout/internal/geocode"
	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/textproc"
)

// ContentBudget is the rune budget for listing text sent to extraction.
const ContentBudget = 15000

// ErrEnrichmentFailed marks a run that ended with the listing in the failed
// state. The listing record carries the cause.
var ErrEnrichmentFailed = errors.New("enrichment failed")

// Store is the persistence the enricher needs.
type Store interface {
	GetListing(ctx context.Context, id string) (*listing.Listing, error)
	SetListingStatus(ctx context.Context, id string, status listing.Status, errMsg string) error
	UpsertMetadata(ctx context.Context, m *listing.Metadata) error
}

// Extractor turns listing text and images into metadata.
type Extractor interface {
	ExtractListing(ctx context.Context, text string, imageURLs []string) (*listing.Metadata, error)
}

// Geocoder resolves a free-form address to coordinates.
type Geocoder interface {
	ResolveAddress(ctx context.Context, address string) (*geocode.Place, error)
}

// Enricher orchestrates one enrichment run per listing.
type Enricher struct {
	store     Store
	extractor Extractor
	geocoder  Geocoder
}

// NewEnricher creates an Enricher. geocoder may be nil, in which case
// coordinates are never filled.
func NewEnricher(store Store, extractor Extractor, geocoder Geocoder) *Enricher {
	return &Enricher{
		store:     store,
		extractor: extractor,
		geocoder:  geocoder,
	}
}

// Enrich runs the pipeline for listingID:
//  1. Mark the listing processing
//  2. Normalize and truncate the raw content, then extract metadata
//  3. Geocode the extracted address (best-effort)
//  4. Upsert the metadata row and mark the listing done
//
// A failure in steps 2 or 4 marks the listing failed with the cause and
// returns an error wrapping ErrEnrichmentFailed. Errors loading the listing
// or recording the processing state are returned as-is and leave the
// listing untouched.
func (e *Enricher) Enrich(ctx context.Context, listingID string) error {
	start := time.Now()

	l, err := e.store.GetListing(ctx, listingID)
	if err != nil {
		return fmt.Errorf("loading listing %s: %w", listingID, err)
	}
	if err := e.store.SetListingStatus(ctx, l.ID, listing.StatusProcessing, ""); err != nil {
		return fmt.Errorf("marking listing %s processing: %w", l.ID, err)
	}

	text := textproc.Truncate(textproc.Normalize(l.RawContent), ContentBudget)
	md, err := e.extractor.ExtractListing(ctx, text, l.Images)
	if err != nil {
		return e.fail(ctx, l.ID, fmt.Errorf("extracting metadata: %w", err))
	}
	md.ListingID = l.ID

	if md.Address != "" && e.geocoder != nil {
		e.geocode(ctx, l.ID, md)
	}

	md.UpdatedAt = time.Now().UTC()
	if err := e.store.UpsertMetadata(ctx, md); err != nil {
		return e.fail(ctx, l.ID, fmt.Errorf("saving metadata: %w", err))
	}
	if err := e.store.SetListingStatus(ctx, l.ID, listing.StatusDone, ""); err != nil {
		return e.fail(ctx, l.ID, fmt.Errorf("marking done: %w", err))
	}

	slog.Info("listing enriched",
		"listing_id", l.ID,
		"geocoded", md.HasCoordinates(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// geocode fills the coordinates of md. Misses and lookup errors only leave
// the coordinates empty.
func (e *Enricher) geocode(ctx context.Context, listingID string, md *listing.Metadata) {
	place, err := e.geocoder.ResolveAddress(ctx, md.Address)
	switch {
	case errors.Is(err, geocode.ErrNotFound):
		slog.Info("address not geocoded", "listing_id", listingID, "address", md.Address)
		return
	case err != nil:
		slog.Warn("geocoding failed", "listing_id", listingID, "address", md.Address, "error", err)
		return
	}
	lat, lon := place.Lat, place.Lon
	md.Latitude = &lat
	md.Longitude = &lon
}

// fail records cause on the listing and returns the run's error. The status
// write survives cancellation of ctx so an aborted run is not left in
// processing.
func (e *Enricher) fail(ctx context.Context, listingID string, cause error) error {
	if err := e.store.SetListingStatus(context.WithoutCancel(ctx), listingID, listing.StatusFailed, cause.Error()); err != nil {
		slog.Error("recording enrichment failure", "listing_id", listingID, "error", err)
	}
	slog.Warn("enrichment failed", "listing_id", listingID, "error", cause)
	return fmt.Errorf("%w: listing %s: %w", ErrEnrichmentFailed, listingID, cause)
}
