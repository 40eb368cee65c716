// Package compare scores a user's listings against their dream apartment
// description, one at a time or in paced batches.
package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/match"
	"github.com/nestscout/nestscout/internal/storage"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize = 3
	DefaultPause     = time.Second
)

// ErrNoPreference is returned when the user has no description to compare
// against. Nothing is scored or stored.
var ErrNoPreference = match.ErrNoPreference

// ErrNotEnriched is returned when comparing a listing that has no metadata yet.
var ErrNotEnriched = errors.New("listing is not enriched")

// Store is the persistence the orchestrator reads from.
type Store interface {
	GetListing(ctx context.Context, id string) (*listing.Listing, error)
	GetMetadata(ctx context.Context, listingID string) (*listing.Metadata, error)
	ListCandidates(ctx context.Context, userID string) ([]listing.Candidate, error)
}

// Preferences returns a user's description, "" when unset.
type Preferences interface {
	Get(ctx context.Context, userID string) (string, error)
}

// Scorer scores and stores one comparison.
type Scorer interface {
	Score(ctx context.Context, userID, description string, l listing.Listing, md *listing.Metadata) (*listing.Comparison, error)
}

// ListingResult is the outcome for one listing of a batch run.
type ListingResult struct {
	ListingID string `json:"listing_id"`
	Score     *int   `json:"match_score,omitempty"`
	Summary   string `json:"comparison_summary,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result summarizes a CompareAll run.
type Result struct {
	Compared int             `json:"compared"`
	Total    int             `json:"total"`
	Results  []ListingResult `json:"results"`
}

// Orchestrator drives the Scorer over a user's listings.
type Orchestrator struct {
	store     Store
	prefs     Preferences
	scorer    Scorer
	batchSize int
	pause     time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBatchSize sets how many listings are scored concurrently.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithPause sets the pause between consecutive batches.
func WithPause(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.pause = d
		}
	}
}

// New creates an Orchestrator.
func New(store Store, prefs Preferences, scorer Scorer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		prefs:     prefs,
		scorer:    scorer,
		batchSize: DefaultBatchSize,
		pause:     DefaultPause,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) description(ctx context.Context, userID string) (string, error) {
	desc, err := o.prefs.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("loading preference: %w", err)
	}
	if desc == "" {
		return "", ErrNoPreference
	}
	return desc, nil
}

// CompareListing scores one of the user's listings.
func (o *Orchestrator) CompareListing(ctx context.Context, userID, listingID string) (*listing.Comparison, error) {
	desc, err := o.description(ctx, userID)
	if err != nil {
		return nil, err
	}

	l, err := o.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("loading listing %s: %w", listingID, err)
	}
	if l.UserID != userID {
		return nil, fmt.Errorf("loading listing %s: %w", listingID, storage.ErrNotFound)
	}
	md, err := o.store.GetMetadata(ctx, listingID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotEnriched, listingID, l.Status)
	}
	if err != nil {
		return nil, fmt.Errorf("loading metadata %s: %w", listingID, err)
	}

	return o.scorer.Score(ctx, userID, desc, *l, md)
}

// CompareAll scores every enriched listing of the user. Listings are scored
// in batches; a batch runs concurrently and is awaited in full before the
// pause that precedes the next one. A listing's failure is recorded in its
// result and does not affect the others. If ctx ends between batches the
// partial result is returned with ctx's error.
func (o *Orchestrator) CompareAll(ctx context.Context, userID string) (*Result, error) {
	desc, err := o.description(ctx, userID)
	if err != nil {
		return nil, err
	}

	candidates, err := o.store.ListCandidates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing candidates: %w", err)
	}

	res := &Result{Total: len(candidates), Results: make([]ListingResult, 0, len(candidates))}
	start := time.Now()

	for i := 0; i < len(candidates); i += o.batchSize {
		if i > 0 {
			if err := o.sleep(ctx, o.pause); err != nil {
				return res, err
			}
		}
		batch := candidates[i:min(i+o.batchSize, len(candidates))]
		out := make([]ListingResult, len(batch))

		var g errgroup.Group
		for j, c := range batch {
			g.Go(func() error {
				out[j] = o.scoreOne(ctx, userID, desc, c)
				return nil
			})
		}
		g.Wait()

		for _, r := range out {
			if r.Error == "" {
				res.Compared++
			}
			res.Results = append(res.Results, r)
		}
	}

	slog.Info("comparison run finished",
		"user_id", userID,
		"compared", res.Compared,
		"total", res.Total,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (o *Orchestrator) scoreOne(ctx context.Context, userID, desc string, c listing.Candidate) ListingResult {
	r := ListingResult{ListingID: c.Listing.ID}
	cmp, err := o.scorer.Score(ctx, userID, desc, c.Listing, c.Metadata)
	if err != nil {
		slog.Warn("comparison failed", "listing_id", c.Listing.ID, "user_id", userID, "error", err)
		r.Error = err.Error()
		return r
	}
	score := cmp.Score
	r.Score = &score
	r.Summary = cmp.Summary
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
