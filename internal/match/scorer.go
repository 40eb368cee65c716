// Package match scores listings against a user's dream apartment description.
package match

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nestscout/nestscout/internal/engine"
	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/llmjson"
	"github.com/nestscout/nestscout/internal/media"
	"github.com/nestscout/nestscout/internal/textproc"
)

const (
	// ContentBudget is the rune budget for listing text sent to scoring.
	ContentBudget = 6000

	defaultTimeout = 30 * time.Second
)

// ErrNoPreference is returned when the user has no dream apartment description.
var ErrNoPreference = errors.New("no dream apartment description set")

//go:embed schema.json
var schemaDoc []byte

var resultSchema = llmjson.MustCompile("match.json", schemaDoc)

// ImageFetcher downloads listing images best-effort.
type ImageFetcher interface {
	FetchAll(ctx context.Context, urls []string) []media.Image
}

// ComparisonStore persists scores keyed by (listing, user).
type ComparisonStore interface {
	UpsertComparison(ctx context.Context, c *listing.Comparison) error
}

// Scorer rates one listing against one description and stores the result.
type Scorer struct {
	engine      engine.Engine
	textModel   string
	visionModel string
	images      ImageFetcher
	store       ComparisonStore
	timeout     time.Duration
}

// NewScorer creates a Scorer. images may be nil to score on text only.
func NewScorer(eng engine.Engine, textModel, visionModel string, images ImageFetcher, store ComparisonStore) *Scorer {
	if visionModel == "" {
		visionModel = textModel
	}
	return &Scorer{
		engine:      eng,
		textModel:   textModel,
		visionModel: visionModel,
		images:      images,
		store:       store,
		timeout:     defaultTimeout,
	}
}

// SetTimeout bounds each inference call. Non-positive values are ignored.
func (s *Scorer) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Score compares l with description, upserts the comparison and returns it.
// A rerun for the same pair overwrites the previous score.
func (s *Scorer) Score(ctx context.Context, userID, description string, l listing.Listing, md *listing.Metadata) (*listing.Comparison, error) {
	if strings.TrimSpace(description) == "" {
		return nil, ErrNoPreference
	}

	content := textproc.Truncate(textproc.Normalize(l.RawContent), ContentBudget)

	var images []media.Image
	if s.images != nil && len(l.Images) > 0 {
		images = s.images.FetchAll(ctx, l.Images)
	}
	model := s.textModel
	if len(images) > 0 {
		model = s.visionModel
	}

	chatCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.engine.Chat(chatCtx, model, buildPrompt(description, content, md, images), resultSchema.Raw())
	if err != nil {
		return nil, fmt.Errorf("scoring chat: %w", err)
	}

	score, summary, err := parseResult(raw)
	if err != nil {
		slog.Debug("unparseable score response", "listing_id", l.ID, "response", raw)
		return nil, fmt.Errorf("parsing score: %w", err)
	}

	c := &listing.Comparison{
		ListingID: l.ID,
		UserID:    userID,
		Score:     score,
		Summary:   summary,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.UpsertComparison(ctx, c); err != nil {
		return nil, fmt.Errorf("storing comparison: %w", err)
	}
	slog.Debug("listing scored", "listing_id", l.ID, "user_id", userID, "score", score, "elapsed_ms", time.Since(start).Milliseconds())
	return c, nil
}

var leadingNumberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// parseResult decodes {score, summary}. The score may arrive as a number or
// a string such as "85" or "85/100"; it is rounded and clamped to [0,100].
func parseResult(raw string) (int, string, error) {
	var obj struct {
		Score   any    `json:"score"`
		Summary string `json:"summary"`
	}
	if err := resultSchema.Decode(raw, &obj); err != nil {
		return 0, "", err
	}

	var f float64
	switch v := obj.Score.(type) {
	case float64:
		f = v
	case string:
		m := leadingNumberRe.FindString(v)
		if m == "" {
			return 0, "", fmt.Errorf("score %q is not a number", v)
		}
		f, _ = strconv.ParseFloat(m, 64)
	default:
		return 0, "", fmt.Errorf("unexpected score type %T", obj.Score)
	}
	return clamp(int(math.Round(f))), strings.TrimSpace(obj.Summary), nil
}

func clamp(n int) int {
	return max(0, min(100, n))
}
