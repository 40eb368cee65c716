package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nestscout/nestscout/internal/compare"
	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/pipeline"
	"github.com/nestscout/nestscout/internal/storage"
)

// SaveRequest is the body of POST /listings.
type SaveRequest struct {
	SourceURL  string   `json:"source_url"`
	RawContent string   `json:"raw_content"`
	Images     []string `json:"images"`
	CatalogID  string   `json:"catalog_id"`
}

// Validate checks a save request before anything is written.
func (req *SaveRequest) Validate() error {
	req.SourceURL = strings.TrimSpace(req.SourceURL)
	if req.SourceURL == "" {
		return errors.New("source_url is required")
	}
	if !isHTTPURL(req.SourceURL) {
		return errors.New("source_url must be an http(s) URL")
	}
	if strings.TrimSpace(req.RawContent) == "" {
		return errors.New("raw_content is required")
	}
	if len(req.Images) > listing.MaxImages {
		return errors.New("at most 2 images are accepted")
	}
	for _, img := range req.Images {
		if !isHTTPURL(img) {
			return errors.New("images must be http(s) URLs")
		}
	}
	return nil
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

type listingView struct {
	*listing.Listing
	Metadata   *listing.Metadata   `json:"metadata,omitempty"`
	Comparison *listing.Comparison `json:"comparison,omitempty"`
}

func handleSaveListing(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SaveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := req.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		l := &listing.Listing{
			ID:         uuid.New().String(),
			UserID:     userFrom(r.Context()),
			CatalogID:  req.CatalogID,
			SourceURL:  req.SourceURL,
			RawContent: req.RawContent,
			Images:     req.Images,
		}
		if err := deps.Store.SaveListing(r.Context(), l); err != nil {
			var conflict *storage.ConflictError
			if errors.As(err, &conflict) {
				writeJSON(w, http.StatusConflict, map[string]any{
					"error": map[string]any{
						"message": err.Error(),
						"type":    "conflict",
					},
					"existing_id": conflict.ExistingID,
				})
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save listing: %v", err)
			return
		}

		triggerEnrich(w, r, deps, l.ID, http.StatusCreated)
	}
}

// triggerEnrich runs or queues an enrichment and writes the response.
func triggerEnrich(w http.ResponseWriter, r *http.Request, deps AppDeps, id string, queuedCode int) {
	if isSync(r) && deps.Enricher != nil {
		err := deps.Enricher.Enrich(r.Context(), id)
		l, getErr := deps.Store.GetListing(r.Context(), id)
		if getErr != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load listing: %v", getErr)
			return
		}
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(l.Status)})
		case errors.Is(err, pipeline.ErrEnrichmentFailed):
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error": map[string]any{
					"message": l.EnrichmentError,
					"type":    "enrichment_failed",
				},
				"id":     id,
				"status": l.Status,
			})
		default:
			httpError(w, http.StatusInternalServerError, "api_error", "enrichment error: %v", err)
		}
		return
	}

	jobID, err := deps.Queue.SubmitEnrich(r.Context(), id)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "listing %s saved but enrichment was not queued: %v", id, err)
		return
	}
	writeJSON(w, queuedCode, map[string]string{"id": id, "status": string(listing.StatusPending), "job_id": jobID})
}

func handleListListings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status listing.Status
		if s := r.URL.Query().Get("status"); s != "" {
			st, err := listing.ParseStatus(s)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			status = st
		}

		ls, err := deps.Store.ListListings(r.Context(), userFrom(r.Context()), status)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list listings: %v", err)
			return
		}
		if ls == nil {
			ls = []listing.Listing{}
		}
		writeJSON(w, http.StatusOK, ls)
	}
}

// ownedListing loads a listing of the request's user, writing 404 otherwise.
func ownedListing(w http.ResponseWriter, r *http.Request, deps AppDeps) (*listing.Listing, bool) {
	id := chi.URLParam(r, "id")
	l, err := deps.Store.GetListing(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && l.UserID != userFrom(r.Context())) {
		httpError(w, http.StatusNotFound, "not_found", "listing not found")
		return nil, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get listing: %v", err)
		return nil, false
	}
	return l, true
}

func handleGetListing(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := ownedListing(w, r, deps)
		if !ok {
			return
		}
		view := listingView{Listing: l}

		md, err := deps.Store.GetMetadata(r.Context(), l.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get metadata: %v", err)
			return
		}
		view.Metadata = md

		c, err := deps.Store.GetComparison(r.Context(), l.ID, l.UserID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get comparison: %v", err)
			return
		}
		view.Comparison = c

		writeJSON(w, http.StatusOK, view)
	}
}

func handleDeleteListing(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteListing(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "listing not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete listing: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleEnrich(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := ownedListing(w, r, deps)
		if !ok {
			return
		}
		triggerEnrich(w, r, deps, l.ID, http.StatusAccepted)
	}
}

// CompareRequest is the body of POST /compare. An empty ListingID compares
// all of the user's enriched listings.
type CompareRequest struct {
	ListingID string `json:"listing_id"`
}

func handleCompare(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CompareRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}
		ctx := r.Context()
		userID := userFrom(ctx)

		desc, err := deps.Profile.Get(ctx, userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load preference: %v", err)
			return
		}
		if desc == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", compare.ErrNoPreference)
			return
		}

		if !isSync(r) || deps.Comparer == nil {
			jobID, err := deps.Queue.SubmitCompare(ctx, userID, req.ListingID)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to queue comparison: %v", err)
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "job_id": jobID})
			return
		}

		if req.ListingID != "" {
			c, err := deps.Comparer.CompareListing(ctx, userID, req.ListingID)
			if err != nil {
				compareError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, c)
			return
		}
		res, err := deps.Comparer.CompareAll(ctx, userID)
		if err != nil {
			compareError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func compareError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "listing not found")
	case errors.Is(err, compare.ErrNoPreference), errors.Is(err, compare.ErrNotEnriched):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusBadGateway, "api_error", "comparison failed: %v", err)
	}
}
