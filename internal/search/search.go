// Package search answers free-text apartment queries over a user's enriched
// listings: it splits off a location phrase, geocodes it, parses the rest
// into filters and ranks the candidates.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nestscout/nestscout/internal/geocode"
	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/locphrase"
	"github.com/nestscout/nestscout/internal/rank"
)

// PhraseDetector finds a location phrase in a query.
type PhraseDetector interface {
	Extract(ctx context.Context, query string) locphrase.Result
}

// FilterParser turns query text into structured filters.
type FilterParser interface {
	ParseFilters(ctx context.Context, text string) (listing.Filters, error)
}

// PhraseResolver geocodes a colloquial location phrase.
type PhraseResolver interface {
	ResolvePhrase(ctx context.Context, phrase string) (*geocode.Place, error)
}

// Store provides a user's searchable listings and their match scores.
type Store interface {
	ListCandidates(ctx context.Context, userID string) ([]listing.Candidate, error)
	ListComparisons(ctx context.Context, userID string) (map[string]listing.Comparison, error)
}

// Location is a detected phrase plus the point it resolved to. Point is nil
// when the query has no location or geocoding found nothing.
type Location struct {
	locphrase.Result
	Point *rank.Reference `json:"point,omitempty"`
}

// Hit is one search result, with the user's match score when one exists.
type Hit struct {
	rank.Result
	MatchScore *int   `json:"match_score,omitempty"`
	Summary    string `json:"comparison_summary,omitempty"`
}

// Response is the outcome of a Search.
type Response struct {
	Query    string          `json:"query"`
	Location Location        `json:"location"`
	Filters  listing.Filters `json:"filters"`
	Results  []Hit           `json:"results"`
}

// Service chains location detection, geocoding, filter parsing and ranking.
type Service struct {
	phrases  PhraseDetector
	filters  FilterParser
	geocoder PhraseResolver
	store    Store
}

// NewService creates a Service. geocoder may be nil, which disables
// distance filtering.
func NewService(store Store, phrases PhraseDetector, filters FilterParser, geocoder PhraseResolver) *Service {
	return &Service{phrases: phrases, filters: filters, geocoder: geocoder, store: store}
}

// ResolveLocation detects a location phrase in query and geocodes it. It
// never fails; a miss leaves Point nil and the query intact.
func (s *Service) ResolveLocation(ctx context.Context, query string) Location {
	loc := Location{Result: s.phrases.Extract(ctx, query)}
	if !loc.HasLocation || s.geocoder == nil {
		return loc
	}

	place, err := s.geocoder.ResolvePhrase(ctx, loc.DetectedLocation)
	switch {
	case errors.Is(err, geocode.ErrNotFound):
		slog.Info("search location not found", "phrase", loc.DetectedLocation)
		return loc
	case err != nil:
		slog.Warn("search location lookup failed", "phrase", loc.DetectedLocation, "error", err)
		return loc
	}

	loc.Point = &rank.Reference{
		Lat:   place.Lat,
		Lon:   place.Lon,
		MaxKm: loc.DefaultDistanceKm,
		Name:  loc.DisplayName,
	}
	return loc
}

// ParseFilters turns the non-location part of a query into filters.
func (s *Service) ParseFilters(ctx context.Context, text string) (listing.Filters, error) {
	return s.filters.ParseFilters(ctx, text)
}

// RankListings filters and orders candidates.
func RankListings(candidates []listing.Candidate, f listing.Filters, ref *rank.Reference) []rank.Result {
	return rank.Rank(candidates, f, ref)
}

// Search runs a full query for userID. maxKm > 0 overrides the distance
// the query implied. A filter parsing failure degrades to no filters.
func (s *Service) Search(ctx context.Context, userID, query string, maxKm float64) (*Response, error) {
	start := time.Now()
	query = strings.TrimSpace(query)

	loc := s.ResolveLocation(ctx, query)
	if loc.Point != nil && maxKm > 0 {
		loc.Point.MaxKm = maxKm
	}

	filters, err := s.ParseFilters(ctx, loc.RemainingQuery)
	if err != nil {
		slog.Warn("filter parsing failed, searching without filters", "user_id", userID, "error", err)
		filters = listing.Filters{}
	}

	candidates, err := s.store.ListCandidates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing candidates: %w", err)
	}
	comparisons, err := s.store.ListComparisons(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing comparisons: %w", err)
	}

	ranked := RankListings(candidates, filters, loc.Point)
	hits := make([]Hit, len(ranked))
	for i, r := range ranked {
		hits[i] = Hit{Result: r}
		if c, ok := comparisons[r.Listing.ID]; ok {
			score := c.Score
			hits[i].MatchScore = &score
			hits[i].Summary = c.Summary
		}
	}

	slog.Info("search finished",
		"user_id", userID,
		"has_location", loc.Point != nil,
		"filters", filters.Count(),
		"candidates", len(candidates),
		"results", len(hits),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Response{Query: query, Location: loc, Filters: filters, Results: hits}, nil
}
