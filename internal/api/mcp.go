package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/nestscout/nestscout/internal/compare"
	"github.com/nestscout/nestscout/internal/ingest"
	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/profile"
	"github.com/nestscout/nestscout/internal/storage"
)

// MCPDeps holds dependencies for the MCP server. All tools act for UserID.
type MCPDeps struct {
	Store    *storage.Store
	Queue    *ingest.Queue
	Profile  *profile.Manager
	Comparer Comparer // optional; if nil, compare_listings queues a job
	Search   Searcher // optional; if nil, search tools return an error
	UserID   string
}

// NewMCPServer creates an MCP server with all nestscout tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"nestscout",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("nestscout: saved apartment listings, enriched with structured facts and scored against the user's dream apartment."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("search_listings",
			mcp.WithDescription("Search saved listings with a free-text query such as \"quiet 2 bedroom near Bocconi under 1200\"."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("max_km", mcp.Description("Override the search radius in km")),
		),
		mcpSearchListings(deps),
	)

	s.AddTool(
		mcp.NewTool("resolve_location",
			mcp.WithDescription("Detect a location phrase in a query and geocode it."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
		),
		mcpResolveLocation(deps),
	)

	s.AddTool(
		mcp.NewTool("parse_filters",
			mcp.WithDescription("Turn query text into structured listing filters."),
			mcp.WithString("text", mcp.Description("Query text without the location phrase"), mcp.Required()),
		),
		mcpParseFilters(deps),
	)

	s.AddTool(
		mcp.NewTool("save_listing",
			mcp.WithDescription("Save a scraped listing and queue its enrichment."),
			mcp.WithString("source_url", mcp.Description("URL of the ad"), mcp.Required()),
			mcp.WithString("raw_content", mcp.Description("Scraped text of the ad"), mcp.Required()),
			mcp.WithArray("images", mcp.Description("Up to 2 image URLs")),
		),
		mcpSaveListing(deps),
	)

	s.AddTool(
		mcp.NewTool("compare_listings",
			mcp.WithDescription("Score listings against the dream apartment description. Without listing_id, all enriched listings are scored."),
			mcp.WithString("listing_id", mcp.Description("Listing to score")),
		),
		mcpCompareListings(deps),
	)

	s.AddTool(
		mcp.NewTool("set_dream_apartment",
			mcp.WithDescription("Set the free-text dream apartment description used for match scores. An empty description clears it and its scores."),
			mcp.WithString("description", mcp.Description("Dream apartment description")),
		),
		mcpSetDreamApartment(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"user://dream-apartment",
			"Dream Apartment",
			mcp.WithResourceDescription("Current dream apartment description"),
			mcp.WithMIMEType("text/plain"),
		),
		mcpResourceDreamApartment(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"listings://recent",
			"Recent Listings",
			mcp.WithResourceDescription("Last 10 saved listings with their enrichment status"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpSearchListings(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Search == nil {
			return mcpError("search not available: no inference backend configured"), nil
		}
		query, err := req.RequireString("query")
		if err != nil || query == "" {
			return mcpError("query is required"), nil
		}
		maxKm := req.GetFloat("max_km", 0)
		if maxKm < 0 {
			maxKm = 0
		}

		resp, err := deps.Search.Search(ctx, deps.UserID, query, maxKm)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcpJSON(resp), nil
	}
}

func mcpResolveLocation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Search == nil {
			return mcpError("search not available: no inference backend configured"), nil
		}
		query, err := req.RequireString("query")
		if err != nil || query == "" {
			return mcpError("query is required"), nil
		}
		return mcpJSON(deps.Search.ResolveLocation(ctx, query)), nil
	}
}

func mcpParseFilters(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Search == nil {
			return mcpError("search not available: no inference backend configured"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		f, err := deps.Search.ParseFilters(ctx, text)
		if err != nil {
			return mcpError(fmt.Sprintf("filter parsing failed: %v", err)), nil
		}
		return mcpJSON(f), nil
	}
}

func mcpSaveListing(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sr := SaveRequest{
			SourceURL:  req.GetString("source_url", ""),
			RawContent: req.GetString("raw_content", ""),
			Images:     req.GetStringSlice("images", nil),
		}
		if err := sr.Validate(); err != nil {
			return mcpError(err.Error()), nil
		}

		l := &listing.Listing{
			ID:         uuid.New().String(),
			UserID:     deps.UserID,
			SourceURL:  sr.SourceURL,
			RawContent: sr.RawContent,
			Images:     sr.Images,
		}
		if err := deps.Store.SaveListing(ctx, l); err != nil {
			var conflict *storage.ConflictError
			if errors.As(err, &conflict) {
				return mcpError(fmt.Sprintf("already saved as listing %s", conflict.ExistingID)), nil
			}
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}

		if _, err := deps.Queue.SubmitEnrich(ctx, l.ID); err != nil {
			return mcpError(fmt.Sprintf("saved listing %s but failed to queue enrichment: %v", l.ID, err)), nil
		}
		return mcpText(fmt.Sprintf("Saved listing %s; enrichment queued", l.ID)), nil
	}
}

func mcpCompareListings(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		listingID := req.GetString("listing_id", "")

		if deps.Comparer == nil {
			desc, err := deps.Profile.Get(ctx, deps.UserID)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to load preference: %v", err)), nil
			}
			if desc == "" {
				return mcpError(compare.ErrNoPreference.Error()), nil
			}
			jobID, err := deps.Queue.SubmitCompare(ctx, deps.UserID, listingID)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to queue comparison: %v", err)), nil
			}
			return mcpText(fmt.Sprintf("Comparison queued as job %s", jobID)), nil
		}

		if listingID != "" {
			c, err := deps.Comparer.CompareListing(ctx, deps.UserID, listingID)
			if err != nil {
				return mcpError(fmt.Sprintf("comparison failed: %v", err)), nil
			}
			return mcpJSON(c), nil
		}
		res, err := deps.Comparer.CompareAll(ctx, deps.UserID)
		if err != nil {
			return mcpError(fmt.Sprintf("comparison failed: %v", err)), nil
		}
		return mcpJSON(res), nil
	}
}

func mcpSetDreamApartment(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		desc := req.GetString("description", "")
		err := deps.Profile.Set(ctx, deps.UserID, desc)
		if errors.Is(err, profile.ErrEmptyDescription) {
			n, err := deps.Profile.Clear(ctx, deps.UserID)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to clear description: %v", err)), nil
			}
			return mcpText(fmt.Sprintf("Cleared dream apartment description and %d match scores", n)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to set description: %v", err)), nil
		}
		return mcpText("Dream apartment description updated"), nil
	}
}

func mcpResourceDreamApartment(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		desc, err := deps.Profile.Get(ctx, deps.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to get description: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/plain",
				Text:     desc,
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ls, err := deps.Store.ListListings(ctx, deps.UserID, "")
		if err != nil {
			return nil, fmt.Errorf("failed to list listings: %w", err)
		}
		if len(ls) > 10 {
			ls = ls[:10]
		}

		type listingSummary struct {
			ID        string         `json:"id"`
			SourceURL string         `json:"source_url"`
			Status    listing.Status `json:"enrichment_status"`
			SavedAt   string         `json:"saved_at"`
		}

		summaries := make([]listingSummary, len(ls))
		for i, l := range ls {
			summaries[i] = listingSummary{
				ID:        l.ID,
				SourceURL: l.SourceURL,
				Status:    l.Status,
				SavedAt:   l.SavedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal listings: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
