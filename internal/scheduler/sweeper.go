// Package scheduler runs the periodic sweep that retries failed and stuck
// enrichments.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nestscout/nestscout/internal/listing"
	"github.com/robfig/cron/v3"
)

// Defaults for Config.
const (
	DefaultSchedule   = "@every 15m"
	DefaultMaxResets  = 3
	DefaultStuckAfter = 10 * time.Minute
)

// Store is the listing persistence the sweeper needs.
type Store interface {
	ListRetryable(ctx context.Context, maxResets int, stuckBefore time.Time) ([]listing.Listing, error)
	SetListingStatus(ctx context.Context, id string, status listing.Status, errMsg string) error
	ResetListing(ctx context.Context, id string) error
}

// Submitter queues an enrichment.
type Submitter interface {
	SubmitEnrich(ctx context.Context, listingID string) (string, error)
}

// Config controls the sweep. An empty Schedule disables it.
type Config struct {
	Schedule   string
	MaxResets  int
	StuckAfter time.Duration
}

// Sweeper wraps robfig/cron and owns the retry sweep.
type Sweeper struct {
	cron   *cron.Cron
	store  Store
	queue  Submitter
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Sweeper. Zero MaxResets and StuckAfter take the defaults.
func New(store Store, queue Submitter, cfg Config) *Sweeper {
	if cfg.MaxResets <= 0 {
		cfg.MaxResets = DefaultMaxResets
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = DefaultStuckAfter
	}
	logger := slog.Default()
	cl := cronLogger{logger}
	return &Sweeper{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		store:  store,
		queue:  queue,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
}

// Start registers the sweep and starts the scheduler. One sweep also runs
// immediately so failures from before a restart are picked up.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.cfg.Schedule == "" {
		s.logger.Info("retry sweeper disabled")
		return nil
	}
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling retry sweep %q: %w", s.cfg.Schedule, err)
	}

	s.cron.Start()
	s.logger.Info("retry sweeper started", "schedule", s.cfg.Schedule, "max_resets", s.cfg.MaxResets)

	go s.Sweep(ctx)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep resets every retryable listing to pending and queues its
// enrichment. A listing stuck in processing is first marked failed. It
// returns the number of listings queued; per-listing errors are logged.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stuckBefore := s.now().Add(-s.cfg.StuckAfter)
	ls, err := s.store.ListRetryable(ctx, s.cfg.MaxResets, stuckBefore)
	if err != nil {
		s.logger.Error("listing retryable listings", "error", err)
		return 0, fmt.Errorf("listing retryable listings: %w", err)
	}

	queued := 0
	for _, l := range ls {
		if err := s.retry(ctx, l); err != nil {
			s.logger.Warn("retry failed", "listing_id", l.ID, "status", l.Status, "error", err)
			continue
		}
		queued++
	}
	if len(ls) > 0 {
		s.logger.Info("retry sweep finished", "retryable", len(ls), "queued", queued)
	}
	return queued, nil
}

func (s *Sweeper) retry(ctx context.Context, l listing.Listing) error {
	if l.Status == listing.StatusProcessing {
		msg := fmt.Sprintf("stuck in processing since %s", l.UpdatedAt.Format(time.RFC3339))
		if err := s.store.SetListingStatus(ctx, l.ID, listing.StatusFailed, msg); err != nil {
			return fmt.Errorf("marking stuck listing failed: %w", err)
		}
	}
	if err := s.store.ResetListing(ctx, l.ID); err != nil {
		return err
	}
	if _, err := s.queue.SubmitEnrich(ctx, l.ID); err != nil {
		return err
	}
	return nil
}

// cronLogger routes robfig/cron's logging to slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
