// Package geocode turns addresses and colloquial location phrases into
// coordinates by trying ordered query variants against a Lookup.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nestscout/nestscout/internal/lexicon"
	"github.com/nestscout/nestscout/internal/textproc"
)

// ErrNotFound is returned when no variant of a query resolved.
var ErrNotFound = errors.New("location not found")

const (
	// DefaultPacing is the pause between consecutive address lookups.
	DefaultPacing = 500 * time.Millisecond
	// DefaultLookupTimeout bounds a single Lookup.Search call.
	DefaultLookupTimeout = 10 * time.Second
)

// Resolver resolves addresses and phrases through a cache and a Lookup.
type Resolver struct {
	lookup   Lookup
	cache    Cache
	variants *Variants
	pacing   time.Duration
	timeout  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPacing sets the pause between consecutive address lookups.
func WithPacing(d time.Duration) Option { return func(r *Resolver) { r.pacing = d } }

// WithLexicon replaces the default lexicon.
func WithLexicon(lex *lexicon.Lexicon) Option {
	return func(r *Resolver) { r.variants = NewVariants(lex) }
}

// WithLogger sets the logger used for lookup failures.
func WithLogger(l *slog.Logger) Option { return func(r *Resolver) { r.logger = l } }

// NewResolver creates a Resolver. A nil cache gets an unbounded MemoryCache.
func NewResolver(lookup Lookup, cache Cache, opts ...Option) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	r := &Resolver{
		lookup:   lookup,
		cache:    cache,
		variants: NewVariants(nil),
		pacing:   DefaultPacing,
		timeout:  DefaultLookupTimeout,
		sleep:    sleepCtx,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ResolveAddress geocodes a structured address, pacing lookups.
func (r *Resolver) ResolveAddress(ctx context.Context, address string) (*Place, error) {
	country := r.variants.detector.Detect(address)
	return r.resolve(ctx, address, r.variants.Address(country, address), r.pacing)
}

// ResolvePhrase geocodes a colloquial phrase such as "near Bocconi".
func (r *Resolver) ResolvePhrase(ctx context.Context, phrase string) (*Place, error) {
	return r.resolve(ctx, phrase, r.variants.Phrase(phrase), 0)
}

func (r *Resolver) resolve(ctx context.Context, original string, variants []string, pacing time.Duration) (*Place, error) {
	key := textproc.NormalizeKey(original)
	if key == "" {
		return nil, ErrNotFound
	}
	if e, ok := r.cache.Get(key); ok {
		if !e.Found {
			return nil, ErrNotFound
		}
		p := e.Place
		return &p, nil
	}

	var lastErr error
	failed := 0
	for i, q := range variants {
		if i > 0 && pacing > 0 {
			if err := r.sleep(ctx, pacing); err != nil {
				return nil, err
			}
		}

		lctx, cancel := context.WithTimeout(ctx, r.timeout)
		p, err := r.lookup.Search(lctx, q)
		cancel()
		if err != nil {
			r.logger.Warn("geocode lookup failed", "query", q, "error", err)
			lastErr = err
			failed++
			continue
		}
		if p != nil {
			r.cache.Add(key, Entry{Place: *p, Found: true})
			r.logger.Debug("geocoded", "query", original, "variant", q, "attempt", i+1)
			return p, nil
		}
	}

	if failed > 0 && failed == len(variants) {
		return nil, fmt.Errorf("geocoding %q: %w", original, lastErr)
	}
	// Only a miss where every lookup answered is cached as negative.
	if failed == 0 {
		r.cache.Add(key, Entry{})
	}
	return nil, ErrNotFound
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
