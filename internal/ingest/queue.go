// Package ingest runs enrichment and comparison requests through the durable
// SQLite job queue.
package ingest

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nestscout/nestscout/internal/storage"
	"github.com/oklog/ulid/v2"
)

// DefaultMaxAttempts is how often an infrastructure failure is retried.
const DefaultMaxAttempts = 3

// Enqueuer inserts a job row.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
}

// EnrichPayload is the payload of a listing_enrich job.
type EnrichPayload struct {
	ListingID string `json:"listing_id"`
}

// ComparePayload is the payload of a listing_compare job. An empty
// ListingID compares all of the user's enriched listings.
type ComparePayload struct {
	UserID    string `json:"user_id"`
	ListingID string `json:"listing_id,omitempty"`
}

// Queue submits jobs. Ids are ULIDs, so they sort by submission time.
type Queue struct {
	store       Enqueuer
	maxAttempts int

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewQueue creates a Queue. maxAttempts <= 0 selects DefaultMaxAttempts.
func NewQueue(store Enqueuer, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Queue{
		store:       store,
		maxAttempts: maxAttempts,
		entropy:     ulid.Monotonic(rand.Reader, 0),
	}
}

// SubmitEnrich queues enrichment of one listing and returns the job id.
// The job is committed before SubmitEnrich returns.
func (q *Queue) SubmitEnrich(ctx context.Context, listingID string) (string, error) {
	if listingID == "" {
		return "", errors.New("listing id is required")
	}
	return q.submit(ctx, storage.JobTypeEnrich, EnrichPayload{ListingID: listingID})
}

// SubmitCompare queues a comparison of one listing, or of all the user's
// listings when listingID is empty, and returns the job id.
func (q *Queue) SubmitCompare(ctx context.Context, userID, listingID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	return q.submit(ctx, storage.JobTypeCompare, ComparePayload{UserID: userID, ListingID: listingID})
}

func (q *Queue) submit(ctx context.Context, jobType string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding %s payload: %w", jobType, err)
	}
	job := storage.Job{
		ID:          q.newID(),
		Type:        jobType,
		PayloadJSON: string(data),
		MaxAttempts: q.maxAttempts,
	}
	if err := q.store.EnqueueJob(ctx, job); err != nil {
		return "", fmt.Errorf("enqueueing %s: %w", jobType, err)
	}
	return job.ID, nil
}

func (q *Queue) newID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ulid.MustNew(ulid.Now(), q.entropy).String()
}
