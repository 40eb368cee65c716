package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nestscout/nestscout/internal/compare"
	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/pipeline"
	"github.com/nestscout/nestscout/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
	RequeueStaleJobs(ctx context.Context) (int64, error)
}

// Enricher runs one enrichment.
type Enricher interface {
	Enrich(ctx context.Context, listingID string) error
}

// Comparer scores listings against a user's preference.
type Comparer interface {
	CompareListing(ctx context.Context, userID, listingID string) (*listing.Comparison, error)
	CompareAll(ctx context.Context, userID string) (*compare.Result, error)
}

// Worker processes listing_enrich and listing_compare jobs from the SQLite
// job queue, one at a time.
type Worker struct {
	store    JobStore
	enricher Enricher
	comparer Comparer
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies. comparer may be
// nil, in which case compare jobs are left in the queue.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, enricher Enricher, comparer Comparer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		enricher: enricher,
		comparer: comparer,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run re-queues jobs a previous process left running, then polls for jobs
// until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if n, err := w.store.RequeueStaleJobs(ctx); err != nil {
		w.logger.Error("requeueing stale jobs", "error", err)
	} else if n > 0 {
		w.logger.Info("requeued stale jobs", "count", n)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

func (w *Worker) types() []string {
	if w.comparer == nil {
		return []string{storage.JobTypeEnrich}
	}
	return []string{storage.JobTypeEnrich, storage.JobTypeCompare}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
//
// A job whose work reached a recorded outcome (listing done or failed, or
// nothing left to do) is completed. Anything else is an infrastructure
// failure and goes back to the queue with backoff.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, w.types())
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	// Bookkeeping must land even when ctx ends mid-job.
	bctx := context.WithoutCancel(ctx)
	start := time.Now()

	if err := w.processJob(ctx, job); err != nil && !finished(err) {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(bctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	} else if err != nil {
		w.logger.Info("job finished without result", "job_id", job.ID, "type", job.Type, "reason", err)
	}

	if err := w.store.CompleteJob(bctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.logger.Debug("job completed", "job_id", job.ID, "type", job.Type, "elapsed_ms", time.Since(start).Milliseconds())
	return true, nil
}

// finished reports whether err is an outcome already recorded on the
// listing or a condition a retry cannot change.
func finished(err error) bool {
	return errors.Is(err, pipeline.ErrEnrichmentFailed) ||
		errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, storage.ErrInvalidTransition) ||
		errors.Is(err, compare.ErrNoPreference) ||
		errors.Is(err, compare.ErrNotEnriched)
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	switch job.Type {
	case storage.JobTypeEnrich:
		var p EnrichPayload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		if p.ListingID == "" {
			return errors.New("parsing payload: missing listing_id")
		}
		return w.enricher.Enrich(ctx, p.ListingID)

	case storage.JobTypeCompare:
		var p ComparePayload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		if p.UserID == "" {
			return errors.New("parsing payload: missing user_id")
		}
		if p.ListingID != "" {
			_, err := w.comparer.CompareListing(ctx, p.UserID, p.ListingID)
			return err
		}
		_, err := w.comparer.CompareAll(ctx, p.UserID)
		return err

	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}
