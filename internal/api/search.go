package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nestscout/nestscout/internal/profile"
)

func queryParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
		return "", false
	}
	return q, true
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := queryParam(w, r)
		if !ok {
			return
		}
		maxKm, err := parseFloatParam(r, "max_km")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		resp, err := deps.Search.Search(r.Context(), userFrom(r.Context()), q, maxKm)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleResolveLocation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := queryParam(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, deps.Search.ResolveLocation(r.Context(), q))
	}
}

func handleParseFilters(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := queryParam(w, r)
		if !ok {
			return
		}
		f, err := deps.Search.ParseFilters(r.Context(), q)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "filter parsing failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

// PreferenceRequest is the body of PUT /preferences.
type PreferenceRequest struct {
	Description string `json:"dream_apartment_description"`
}

func handleGetPreference(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		desc, err := deps.Profile.Get(r.Context(), userFrom(r.Context()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get preference: %v", err)
			return
		}
		if desc == "" {
			httpError(w, http.StatusNotFound, "not_found", "no dream apartment description set")
			return
		}
		writeJSON(w, http.StatusOK, PreferenceRequest{Description: desc})
	}
}

func handlePutPreference(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PreferenceRequest
		if !decodeBody(w, r, &req) {
			return
		}
		err := deps.Profile.Set(r.Context(), userFrom(r.Context()), req.Description)
		if errors.Is(err, profile.ErrEmptyDescription) || errors.Is(err, profile.ErrDescriptionTooLong) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to set preference: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func handleDeletePreference(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Profile.Clear(r.Context(), userFrom(r.Context()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear preference: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "comparisons_deleted": n})
	}
}

func handleExport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := deps.Export.ListingsXLSX(r.Context(), userFrom(r.Context()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "export failed: %v", err)
			return
		}
		name := fmt.Sprintf("nestscout-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, name))
		w.Write(data)
	}
}
