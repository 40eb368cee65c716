// Package locphrase detects "near X" style location phrases in search
// queries and splits them from the rest of the query.
package locphrase

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/nestscout/nestscout/internal/engine"
	"github.com/nestscout/nestscout/internal/lexicon"
	"github.com/nestscout/nestscout/internal/textproc"
)

const (
	// MinQueryLength is the shortest query worth inspecting.
	MinQueryLength = 8
	// DefaultDistanceKm is used when the query states no distance.
	DefaultDistanceKm = 1.5

	defaultTimeout = 30 * time.Second
)

// lineRe matches metro line identifiers such as "M1", "line 2" or "linea 3".
var lineRe = regexp.MustCompile(`(?i)\b(?:m[1-5]|lines?\s*\d+|linea\s*\d+)\b`)

// Result is the outcome of location detection.
type Result struct {
	HasLocation       bool    `json:"has_location"`
	DetectedLocation  string  `json:"detected_location,omitempty"`
	DisplayName       string  `json:"display_name,omitempty"`
	RemainingQuery    string  `json:"remaining_query"`
	DefaultDistanceKm float64 `json:"default_distance_km"`
	City              string  `json:"city,omitempty"`
}

// Extractor detects location phrases with a keyword gate in front of an
// inference call.
type Extractor struct {
	engine  engine.Engine
	model   string
	lex     *lexicon.Lexicon
	timeout time.Duration
}

// NewExtractor creates an Extractor. A nil lexicon selects the default one.
func NewExtractor(eng engine.Engine, model string, lex *lexicon.Lexicon) *Extractor {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Extractor{engine: eng, model: model, lex: lex, timeout: defaultTimeout}
}

// SetTimeout bounds the inference call. Non-positive values are ignored.
func (e *Extractor) SetTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// llmResult mirrors the JSON the model is asked to return.
type llmResult struct {
	HasLocation      bool     `json:"hasLocation"`
	DetectedLocation string   `json:"detectedLocation"`
	DisplayName      string   `json:"displayName"`
	RemainingQuery   string   `json:"remainingQuery"`
	DefaultDistance  *float64 `json:"defaultDistance"`
	City             string   `json:"city"`
}

// Extract inspects query for a location phrase. It never fails: inference
// errors degrade to "no location" with the query left intact.
func (e *Extractor) Extract(ctx context.Context, query string) Result {
	query = strings.TrimSpace(query)
	none := Result{RemainingQuery: query, DefaultDistanceKm: DefaultDistanceKm}

	if len([]rune(query)) < MinQueryLength || !e.HasLocationHint(query) {
		return none
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.engine.Chat(ctx, e.model, BuildPrompt(query), resultSchema.Raw())
	if err != nil {
		slog.Warn("location detection chat failed", "error", err)
		return none
	}

	var r llmResult
	if err := resultSchema.Decode(raw, &r); err != nil {
		slog.Warn("failed to decode location from LLM response", "error", err, "response", raw)
		return none
	}

	detected := strings.TrimSpace(r.DetectedLocation)
	if !r.HasLocation || detected == "" {
		return none
	}

	out := Result{
		HasLocation:       true,
		DetectedLocation:  detected,
		DisplayName:       strings.TrimSpace(r.DisplayName),
		RemainingQuery:    strings.TrimSpace(r.RemainingQuery),
		DefaultDistanceKm: DefaultDistanceKm,
		City:              strings.TrimSpace(r.City),
	}
	if r.DefaultDistance != nil && *r.DefaultDistance > 0 {
		out.DefaultDistanceKm = *r.DefaultDistance
	}
	if out.DisplayName == "" {
		out.DisplayName = detected
	}
	return out
}

// HasLocationHint reports whether query contains a location keyword, a
// metro line identifier or a station, university or landmark token.
func (e *Extractor) HasLocationHint(query string) bool {
	for _, k := range e.lex.LocationKeywords {
		if textproc.ContainsTerm(query, k) {
			return true
		}
	}
	return lineRe.MatchString(query) || e.lex.IsLandmarkTerm(query)
}
