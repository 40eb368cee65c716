// Package extract turns listing text and search queries into structured
// data with one inference call each.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nestscout/nestscout/internal/engine"
	"github.com/nestscout/nestscout/internal/lexicon"
	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/media"
)

const defaultTimeout = 30 * time.Second

// ErrEmptyContent is returned when there is no listing text to extract from.
var ErrEmptyContent = errors.New("empty listing content")

// ImageFetcher downloads listing images best-effort.
type ImageFetcher interface {
	FetchAll(ctx context.Context, urls []string) []media.Image
}

// Extractor runs enrichment-mode and filter-mode extraction.
type Extractor struct {
	engine      engine.Engine
	textModel   string
	visionModel string
	images      ImageFetcher
	lex         *lexicon.Lexicon
	timeout     time.Duration
}

// NewExtractor creates an Extractor. visionModel is used whenever at least
// one image was fetched; textModel otherwise.
func NewExtractor(eng engine.Engine, textModel, visionModel string, images ImageFetcher, lex *lexicon.Lexicon) *Extractor {
	if lex == nil {
		lex = lexicon.Default()
	}
	if visionModel == "" {
		visionModel = textModel
	}
	return &Extractor{
		engine:      eng,
		textModel:   textModel,
		visionModel: visionModel,
		images:      images,
		lex:         lex,
		timeout:     defaultTimeout,
	}
}

// SetTimeout bounds each inference call. Non-positive values are ignored.
func (e *Extractor) SetTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// ExtractListing extracts metadata from normalized, truncated listing text.
// Any inference failure or unrecognized output shape is returned as an error.
func (e *Extractor) ExtractListing(ctx context.Context, text string, imageURLs []string) (*listing.Metadata, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}

	var images []media.Image
	if e.images != nil && len(imageURLs) > 0 {
		images = e.images.FetchAll(ctx, imageURLs)
	}
	model := e.textModel
	if len(images) > 0 {
		model = e.visionModel
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.engine.Chat(ctx, model, buildListingPrompt(text, images), listingSchema.Raw())
	if err != nil {
		return nil, fmt.Errorf("extraction chat: %w", err)
	}

	var out rawListing
	if err := listingSchema.Decode(raw, &out); err != nil {
		slog.Debug("unrecognized extraction output", "response", raw)
		return nil, fmt.Errorf("parsing extraction: %w", err)
	}
	return out.metadata(), nil
}

// ParseFilters extracts a sparse filter object from a search query. An
// empty query yields empty filters without an inference call.
func (e *Extractor) ParseFilters(ctx context.Context, query string) (listing.Filters, error) {
	if strings.TrimSpace(query) == "" {
		return listing.Filters{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.engine.Chat(ctx, e.textModel, buildFiltersPrompt(query), filtersSchema.Raw())
	if err != nil {
		return listing.Filters{}, fmt.Errorf("filter chat: %w", err)
	}

	var out rawFilters
	if err := filtersSchema.Decode(raw, &out); err != nil {
		return listing.Filters{}, fmt.Errorf("parsing filters: %w", err)
	}
	return out.filters(e.lex), nil
}
