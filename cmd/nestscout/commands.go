package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nestscout/nestscout/internal/api"
	"github.com/nestscout/nestscout/internal/config"
	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/search"
)

func syncQuery(sync bool) string {
	if sync {
		return "?sync=true"
	}
	return ""
}

// --- listings ---

var saveCmd = &cobra.Command{
	Use:   "save <source-url>",
	Short: "Save a listing and queue its enrichment",
	Long: `Save a scraped listing and queue its enrichment.

Examples:
  nestscout save https://ads.example/123 --content "Bilocale, Via Padova 20, Milano, 950 EUR"
  nestscout save https://ads.example/123 --file ./ad.txt --image https://img.example/1.jpg --sync`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, _ := cmd.Flags().GetString("content")
		file, _ := cmd.Flags().GetString("file")
		images, _ := cmd.Flags().GetStringSlice("image")
		sync, _ := cmd.Flags().GetBool("sync")

		if content == "" && file == "" {
			return fmt.Errorf("one of --content or --file is required")
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			content = string(data)
		}

		req := api.SaveRequest{SourceURL: args[0], RawContent: content, Images: images}
		if err := req.Validate(); err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSave(cmd.Context(), client, req, sync)
	},
}

func runSave(ctx context.Context, client *apiClient, req api.SaveRequest, sync bool) error {
	resp, err := client.post(ctx, "/listings"+syncQuery(sync), req)
	if err != nil {
		return err
	}
	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	if result["job_id"] != "" {
		printSuccess("Saved listing %s; enrichment queued as job %s", result["id"], result["job_id"])
		return nil
	}
	printSuccess("Saved listing %s (%s)", result["id"], result["status"])
	return nil
}

func init() {
	saveCmd.Flags().String("content", "", "scraped listing text")
	saveCmd.Flags().String("file", "", "file holding the scraped listing text")
	saveCmd.Flags().StringSlice("image", nil, "image URL (repeatable, at most 2)")
	saveCmd.Flags().Bool("sync", false, "enrich inline and wait for the outcome")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runList(cmd.Context(), client, status, os.Stdout)
	},
}

func runList(ctx context.Context, client *apiClient, status string, w io.Writer) error {
	path := "/listings"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	resp, err := client.get(ctx, path)
	if err != nil {
		return err
	}
	var ls []listing.Listing
	if err := decodeJSON(resp, &ls); err != nil {
		return err
	}
	if len(ls) == 0 {
		fmt.Fprintln(w, "No listings found.")
		return nil
	}
	for _, l := range ls {
		fmt.Fprintf(w, "%s  %-10s  %s  %s\n",
			colorize(colorCyan, l.ID),
			l.Status,
			l.SavedAt.Local().Format("2006-01-02 15:04"),
			l.SourceURL,
		)
		if l.EnrichmentError != "" {
			fmt.Fprintf(w, "    %s\n", colorize(colorRed, l.EnrichmentError))
		}
	}
	return nil
}

func init() {
	listCmd.Flags().String("status", "", "only listings in this enrichment status (pending, processing, done, failed)")
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a listing with its metadata and match score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/listings/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var view map[string]any
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		return printJSON(os.Stdout, view)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/listings/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted listing %s", args[0])
		return nil
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich <id>",
	Short: "Re-run enrichment for a listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, _ := cmd.Flags().GetBool("sync")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/listings/"+url.PathEscape(args[0])+"/enrich"+syncQuery(sync), nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Listing %s: %s", args[0], result["status"])
		return nil
	},
}

func init() {
	enrichCmd.Flags().Bool("sync", false, "enrich inline and wait for the outcome")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search saved listings with a free-text query",
	Long: `Search saved listings with a free-text query. Location phrases are
geocoded and used as a radius; the rest becomes structured filters.

Examples:
  nestscout search quiet 2 bedroom near Bocconi under 1200
  nestscout search bright flat near Porta Romana --max-km 3`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxKm, _ := cmd.Flags().GetFloat64("max-km")
		asJSON, _ := cmd.Flags().GetBool("json")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSearch(cmd.Context(), client, strings.Join(args, " "), maxKm, asJSON, os.Stdout)
	},
}

func runSearch(ctx context.Context, client *apiClient, query string, maxKm float64, asJSON bool, w io.Writer) error {
	params := url.Values{}
	params.Set("q", query)
	if maxKm > 0 {
		params.Set("max_km", strconv.FormatFloat(maxKm, 'f', -1, 64))
	}
	resp, err := client.get(ctx, "/search?"+params.Encode())
	if err != nil {
		return err
	}
	var res search.Response
	if err := decodeJSON(resp, &res); err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, res)
	}

	if res.Location.Point != nil {
		fmt.Fprintf(w, "Near %s (within %.1f km)\n", res.Location.Point.Name, res.Location.Point.MaxKm)
	} else if res.Location.HasLocation {
		fmt.Fprintf(w, "Location %q could not be resolved; ignoring distance\n", res.Location.DetectedLocation)
	}
	if n := res.Filters.Count(); n > 0 {
		fmt.Fprintf(w, "%d filter(s) applied\n", n)
	}
	if len(res.Results) == 0 {
		fmt.Fprintln(w, "No matching listings.")
		return nil
	}
	for _, h := range res.Results {
		line := h.Listing.SourceURL
		if h.Metadata != nil && h.Metadata.Address != "" {
			line = h.Metadata.Address
		}
		fmt.Fprintf(w, "%s  match %s  %s  %s\n",
			colorize(colorCyan, h.Listing.ID),
			formatScore(h.MatchScore),
			formatKm(h.DistanceKm),
			line,
		)
		if h.Summary != "" {
			fmt.Fprintf(w, "    %s\n", h.Summary)
		}
	}
	return nil
}

func init() {
	searchCmd.Flags().Float64("max-km", 0, "override the search radius in km")
	searchCmd.Flags().Bool("json", false, "print the raw JSON response")
}

// --- compare ---

var compareCmd = &cobra.Command{
	Use:   "compare [listing-id]",
	Short: "Score listings against the dream apartment description",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sync, _ := cmd.Flags().GetBool("sync")
		var req api.CompareRequest
		if len(args) == 1 {
			req.ListingID = args[0]
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/compare"+syncQuery(sync), req)
		if err != nil {
			return err
		}
		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if jobID, ok := result["job_id"].(string); ok {
			printSuccess("Comparison queued as job %s", jobID)
			return nil
		}
		return printJSON(os.Stdout, result)
	},
}

func init() {
	compareCmd.Flags().Bool("sync", false, "score inline and wait for the outcome")
}

// --- preferences ---

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage the dream apartment description",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the dream apartment description",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/preferences")
		if err != nil {
			return err
		}
		var pref api.PreferenceRequest
		if err := decodeJSON(resp, &pref); err != nil {
			return err
		}
		fmt.Println(pref.Description)
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <description>",
	Short: "Set the dream apartment description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/preferences", api.PreferenceRequest{Description: strings.Join(args, " ")})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Dream apartment description updated")
		return nil
	},
}

var prefsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the description and every match score computed from it",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/preferences")
		if err != nil {
			return err
		}
		var result struct {
			Deleted int `json:"comparisons_deleted"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Cleared description and %d match scores", result.Deleted)
		return nil
	},
}

func init() {
	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsCmd.AddCommand(prefsClearCmd)
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export listings as an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = fmt.Sprintf("nestscout-%s.xlsx", time.Now().Format("2006-01-02"))
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		n, err := runExport(cmd.Context(), client, output)
		if err != nil {
			return err
		}
		printSuccess("Exported %d bytes to %s", n, output)
		return nil
	},
}

func runExport(ctx context.Context, client *apiClient, output string) (int64, error) {
	resp, err := client.get(ctx, "/export.xlsx")
	if err != nil {
		return 0, err
	}
	if resp.StatusCode >= 400 {
		var discard any
		return 0, decodeJSON(resp, &discard)
	}
	defer resp.Body.Close()

	f, err := os.Create(output)
	if err != nil {
		return 0, fmt.Errorf("creating output file: %w", err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("writing %s: %w", output, err)
	}
	return n, nil
}

func init() {
	exportCmd.Flags().String("output", "", "output file path (default: nestscout-YYYY-MM-DD.xlsx)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.ValidKeys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
