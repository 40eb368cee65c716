package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nestscout/nestscout/internal/compare"
	"github.com/nestscout/nestscout/internal/export"
	"github.com/nestscout/nestscout/internal/ingest"
	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/profile"
	"github.com/nestscout/nestscout/internal/search"
	"github.com/nestscout/nestscout/internal/storage"
)

// Enricher runs one enrichment inline.
type Enricher interface {
	Enrich(ctx context.Context, listingID string) error
}

// Comparer scores listings inline.
type Comparer interface {
	CompareListing(ctx context.Context, userID, listingID string) (*listing.Comparison, error)
	CompareAll(ctx context.Context, userID string) (*compare.Result, error)
}

// Searcher answers search queries.
type Searcher interface {
	ResolveLocation(ctx context.Context, query string) search.Location
	ParseFilters(ctx context.Context, text string) (listing.Filters, error)
	Search(ctx context.Context, userID, query string, maxKm float64) (*search.Response, error)
}

// AppDeps holds what the HTTP API needs. Enricher and Comparer are used for
// ?sync=true triggers; Search and Export may be nil to disable those routes.
type AppDeps struct {
	Store    *storage.Store
	Queue    *ingest.Queue
	Profile  *profile.Manager
	Enricher Enricher
	Comparer Comparer
	Search   Searcher
	Export   *export.Service
	Token    string
}

// NewAppHandler returns the HTTP API. /health is open; everything else
// needs the bearer token and a user id.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Use(RequireUser)

		r.Post("/listings", handleSaveListing(deps))
		r.Get("/listings", handleListListings(deps))
		r.Get("/listings/{id}", handleGetListing(deps))
		r.Delete("/listings/{id}", handleDeleteListing(deps))
		r.Post("/listings/{id}/enrich", handleEnrich(deps))

		r.Post("/compare", handleCompare(deps))

		r.Get("/preferences", handleGetPreference(deps))
		r.Put("/preferences", handlePutPreference(deps))
		r.Delete("/preferences", handleDeletePreference(deps))

		if deps.Search != nil {
			r.Get("/search", handleSearch(deps))
			r.Get("/search/location", handleResolveLocation(deps))
			r.Get("/search/filters", handleParseFilters(deps))
		}
		if deps.Export != nil {
			r.Get("/export.xlsx", handleExport(deps))
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
