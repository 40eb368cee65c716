package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/nestscout/nestscout/internal/api"
	"github.com/nestscout/nestscout/internal/compare"
	"github.com/nestscout/nestscout/internal/config"
	"github.com/nestscout/nestscout/internal/engine"
	"github.com/nestscout/nestscout/internal/export"
	"github.com/nestscout/nestscout/internal/extract"
	"github.com/nestscout/nestscout/internal/geocode"
	"github.com/nestscout/nestscout/internal/ingest"
	"github.com/nestscout/nestscout/internal/lexicon"
	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/locphrase"
	"github.com/nestscout/nestscout/internal/match"
	"github.com/nestscout/nestscout/internal/media"
	"github.com/nestscout/nestscout/internal/pipeline"
	"github.com/nestscout/nestscout/internal/profile"
	"github.com/nestscout/nestscout/internal/scheduler"
	"github.com/nestscout/nestscout/internal/search"
	"github.com/nestscout/nestscout/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the nestscout server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running nestscout server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show nestscout system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "nestscout.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// newLogger builds the process logger from log.level and log.format.
func newLogger(lc config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(lc.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// services is the wired application.
type services struct {
	handler http.Handler
	mcp     *server.MCPServer
	worker  *ingest.Worker
	sweeper *scheduler.Sweeper
}

// buildServices wires every component on top of an open store and engine.
func buildServices(cfg config.Config, store *storage.Store, eng engine.Engine, token string, logger *slog.Logger) (*services, error) {
	lex, err := lexicon.Load(cfg.Geocode.LexiconPath)
	if err != nil {
		return nil, fmt.Errorf("loading lexicon: %w", err)
	}

	cache, err := geocode.NewCache(cfg.Geocode.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating geocode cache: %w", err)
	}
	resolver := geocode.NewResolver(
		geocode.NewNominatim(cfg.Geocode.BaseURL, cfg.Geocode.UserAgent, cfg.Geocode.Email),
		cache,
		geocode.WithPacing(cfg.Geocode.Pacing),
		geocode.WithLexicon(lex),
		geocode.WithLogger(logger),
	)

	images := media.NewFetcher()
	extractor := extract.NewExtractor(eng, cfg.Inference.TextModel, cfg.Inference.VisionModel, images, lex)
	extractor.SetTimeout(cfg.Inference.Timeout)
	phrases := locphrase.NewExtractor(eng, cfg.Inference.TextModel, lex)
	phrases.SetTimeout(cfg.Inference.Timeout)
	scorer := match.NewScorer(eng, cfg.Inference.TextModel, cfg.Inference.VisionModel, images, store)
	scorer.SetTimeout(cfg.Inference.Timeout)

	profileMgr := profile.NewManager(store)
	comparer := compare.New(store, profileMgr, scorer,
		compare.WithBatchSize(cfg.Compare.BatchSize),
		compare.WithPause(cfg.Compare.Pause),
	)
	enricher := pipeline.NewEnricher(store, extractor, resolver)
	queue := ingest.NewQueue(store, cfg.Worker.MaxAttempts)
	searcher := search.NewService(store, phrases, extractor, resolver)

	appHandler := api.NewAppHandler(api.AppDeps{
		Store:    store,
		Queue:    queue,
		Profile:  profileMgr,
		Enricher: enricher,
		Comparer: comparer,
		Search:   searcher,
		Export:   export.NewService(store, logger),
		Token:    token,
	})
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:    store,
		Queue:    queue,
		Profile:  profileMgr,
		Comparer: comparer,
		Search:   searcher,
		UserID:   userID,
	})

	top := chi.NewRouter()
	top.With(api.BearerAuth(token)).Mount("/mcp", server.NewStreamableHTTPServer(mcpSrv))
	top.Mount("/", appHandler)

	return &services{
		handler: top,
		mcp:     mcpSrv,
		worker:  ingest.NewWorker(store, enricher, comparer, cfg.Worker.PollInterval),
		sweeper: scheduler.New(store, queue, scheduler.Config{
			Schedule:   cfg.Retry.Schedule,
			MaxResets:  cfg.Retry.MaxResets,
			StuckAfter: cfg.Retry.StuckAfter,
		}),
	}, nil
}

func detectEngine(cfg config.Config) (engine.Engine, error) {
	return engine.Detect(engine.DetectConfig{
		Backend:           cfg.Inference.Backend,
		OllamaBaseURL:     cfg.Ollama.BaseURL,
		OpenRouterAPIKey:  cfg.OpenRouter.APIKey,
		OpenRouterBaseURL: cfg.OpenRouter.BaseURL,
	})
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "nestscout version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	// Ensure API token exists in platform secret store.
	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("nestscout is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("nestscout is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Detect and check inference engine readiness.
	eng, err := detectEngine(cfg)
	if err != nil {
		return fmt.Errorf("detecting inference engine: %w", err)
	}
	models := []string{cfg.Inference.TextModel, cfg.Inference.VisionModel}
	if err := engine.EnsureReady(ctx, eng, models, os.Stderr); err != nil {
		return err
	}

	printStep("Opening storage in %s", cfg.Storage.DataDir)
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	svc, err := buildServices(cfg, store, eng, apiToken, logger)
	if err != nil {
		return err
	}

	go svc.worker.Run(ctx)

	if err := svc.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("starting retry sweeper: %w", err)
	}
	defer svc.sweeper.Stop()

	if cfg.Server.MCPEnabled {
		stdioSrv := server.NewStdioServer(svc.mcp)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)", "user_id", userID)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: svc.handler,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "nestscout listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("nestscout is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop nestscout (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to nestscout (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if eng, err := detectEngine(cfg); err != nil {
		printStatus("Inference", "misconfigured: %v", err)
	} else if eng.IsRunning(ctx) {
		printStatus("Inference", "%s reachable", cfg.Inference.Backend)
	} else {
		printStatus("Inference", "%s not reachable", cfg.Inference.Backend)
	}
	printStatus("Text model", "%s", cfg.Inference.TextModel)
	printStatus("Vision model", "%s", cfg.Inference.VisionModel)

	if running {
		if token, err := config.GetAPIToken(config.NewKeychain()); err == nil {
			c := &apiClient{baseURL: serverURL, token: token, user: userID, httpClient: client}
			if counts, err := statusCounts(ctx, c); err == nil {
				printStatus("Listings", "%s", counts)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// statusCounts summarizes the user's listings per enrichment status.
func statusCounts(ctx context.Context, client *apiClient) (string, error) {
	resp, err := client.get(ctx, "/listings")
	if err != nil {
		return "", err
	}
	var ls []listing.Listing
	if err := decodeJSON(resp, &ls); err != nil {
		return "", err
	}
	counts := make(map[listing.Status]int)
	for _, l := range ls {
		counts[l.Status]++
	}
	parts := []string{fmt.Sprintf("%d total", len(ls))}
	for _, st := range []listing.Status{listing.StatusPending, listing.StatusProcessing, listing.StatusDone, listing.StatusFailed} {
		if counts[st] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[st], st))
		}
	}
	return strings.Join(parts, ", "), nil
}
