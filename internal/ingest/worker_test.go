package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nestscout/nestscout/internal/compare"
	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/pipeline"
	"github.com/nestscout/nestscout/internal/storage"
)

type mockEnricher struct {
	mu      sync.Mutex
	ids     []string
	enrichF func(ctx context.Context, id string) error
}

func (m *mockEnricher) Enrich(ctx context.Context, id string) error {
	m.mu.Lock()
	m.ids = append(m.ids, id)
	m.mu.Unlock()
	if m.enrichF != nil {
		return m.enrichF(ctx, id)
	}
	return nil
}

func (m *mockEnricher) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids...)
}

type mockComparer struct {
	single []string
	all    []string
	err    error
}

func (m *mockComparer) CompareListing(_ context.Context, userID, listingID string) (*listing.Comparison, error) {
	m.single = append(m.single, userID+"/"+listingID)
	if m.err != nil {
		return nil, m.err
	}
	return &listing.Comparison{ListingID: listingID, UserID: userID, Score: 60}, nil
}

func (m *mockComparer) CompareAll(_ context.Context, userID string) (*compare.Result, error) {
	m.all = append(m.all, userID)
	if m.err != nil {
		return nil, m.err
	}
	return &compare.Result{}, nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func jobStatus(t *testing.T, store *storage.Store, id string) *storage.Job {
	t.Helper()
	j, err := store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob(%s): %v", id, err)
	}
	return j
}

func TestQueue_SubmitEnrich(t *testing.T) {
	store := openTestStore(t)
	q := NewQueue(store, 0)
	ctx := context.Background()

	id, err := q.SubmitEnrich(ctx, "l-1")
	if err != nil {
		t.Fatalf("SubmitEnrich: %v", err)
	}
	j := jobStatus(t, store, id)
	if j.Type != storage.JobTypeEnrich || j.Status != "pending" {
		t.Errorf("job = %s/%s, want listing_enrich/pending", j.Type, j.Status)
	}
	if j.PayloadJSON != `{"listing_id":"l-1"}` {
		t.Errorf("payload = %s", j.PayloadJSON)
	}
	if j.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", j.MaxAttempts, DefaultMaxAttempts)
	}

	if _, err := q.SubmitEnrich(ctx, ""); err == nil {
		t.Error("expected error for empty listing id")
	}
}

func TestQueue_SubmitCompare(t *testing.T) {
	store := openTestStore(t)
	q := NewQueue(store, 5)
	ctx := context.Background()

	one, err := q.SubmitCompare(ctx, "u-1", "l-1")
	if err != nil {
		t.Fatalf("SubmitCompare: %v", err)
	}
	all, err := q.SubmitCompare(ctx, "u-1", "")
	if err != nil {
		t.Fatalf("SubmitCompare(all): %v", err)
	}

	if p := jobStatus(t, store, one).PayloadJSON; p != `{"user_id":"u-1","listing_id":"l-1"}` {
		t.Errorf("single payload = %s", p)
	}
	j := jobStatus(t, store, all)
	if j.PayloadJSON != `{"user_id":"u-1"}` || j.MaxAttempts != 5 {
		t.Errorf("all job = %s max=%d", j.PayloadJSON, j.MaxAttempts)
	}
	if _, err := q.SubmitCompare(ctx, "", ""); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestQueue_IDsAreOrdered(t *testing.T) {
	q := NewQueue(openTestStore(t), 0)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 20; i++ {
		id, err := q.SubmitEnrich(ctx, fmt.Sprintf("l-%d", i))
		if err != nil {
			t.Fatalf("SubmitEnrich: %v", err)
		}
		ids = append(ids, id)
	}
	if !sort.StringsAreSorted(ids) {
		t.Errorf("ids not monotonic: %v", ids)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestWorker_ProcessesEnrichJob(t *testing.T) {
	store := openTestStore(t)
	id, _ := NewQueue(store, 0).SubmitEnrich(context.Background(), "l-1")

	enricher := &mockEnricher{}
	w := NewWorker(store, enricher, &mockComparer{}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}
	if got := enricher.calls(); len(got) != 1 || got[0] != "l-1" {
		t.Errorf("enricher calls = %v, want [l-1]", got)
	}
	if s := jobStatus(t, store, id).Status; s != "completed" {
		t.Errorf("status = %q, want completed", s)
	}

	didWork, err = w.RunOnce(context.Background())
	if err != nil || didWork {
		t.Errorf("empty queue: didWork=%v err=%v", didWork, err)
	}
}

func TestWorker_EnrichmentFailureCompletesJob(t *testing.T) {
	store := openTestStore(t)
	id, _ := NewQueue(store, 0).SubmitEnrich(context.Background(), "l-1")

	enricher := &mockEnricher{enrichF: func(context.Context, string) error {
		return fmt.Errorf("%w: listing l-1: inference timeout", pipeline.ErrEnrichmentFailed)
	}}
	w := NewWorker(store, enricher, nil, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	j := jobStatus(t, store, id)
	if j.Status != "completed" || j.Attempts != 0 {
		t.Errorf("job = %s attempts=%d, want completed/0 (failure is on the listing)", j.Status, j.Attempts)
	}
}

func TestWorker_MissingListingCompletesJob(t *testing.T) {
	store := openTestStore(t)
	id, _ := NewQueue(store, 0).SubmitEnrich(context.Background(), "gone")

	w := NewWorker(store, &mockEnricher{enrichF: func(context.Context, string) error {
		return fmt.Errorf("loading listing gone: %w", storage.ErrNotFound)
	}}, nil, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if s := jobStatus(t, store, id).Status; s != "completed" {
		t.Errorf("status = %q, want completed", s)
	}
}

func TestWorker_InfrastructureErrorRetries(t *testing.T) {
	store := openTestStore(t)
	id, _ := NewQueue(store, 0).SubmitEnrich(context.Background(), "l-1")

	w := NewWorker(store, &mockEnricher{enrichF: func(context.Context, string) error {
		return errors.New("setting processing: database is locked")
	}}, nil, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false")
	}

	j := jobStatus(t, store, id)
	if j.Status != "pending" || j.Attempts != 1 {
		t.Errorf("after fail: status=%q attempts=%d, want pending/1", j.Status, j.Attempts)
	}
	if j.LastError != "setting processing: database is locked" {
		t.Errorf("LastError = %q", j.LastError)
	}
	if !j.RunAfter.After(time.Now()) {
		t.Errorf("RunAfter = %v, want a backoff in the future", j.RunAfter)
	}

	// backed off, so nothing is claimable yet
	if didWork, _ := w.RunOnce(context.Background()); didWork {
		t.Error("job claimed again before its backoff elapsed")
	}
}

func TestWorker_MaxAttemptsExceeded(t *testing.T) {
	store := openTestStore(t)
	id, _ := NewQueue(store, 1).SubmitEnrich(context.Background(), "l-1")

	w := NewWorker(store, &mockEnricher{enrichF: func(context.Context, string) error {
		return errors.New("permanent error")
	}}, nil, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if s := jobStatus(t, store, id).Status; s != "failed" {
		t.Errorf("final status = %q, want %q", s, "failed")
	}
}

func TestWorker_BadPayload(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	job := storage.Job{ID: "job-bad", Type: storage.JobTypeEnrich, PayloadJSON: `{"listing_id":`, MaxAttempts: 1}
	if err := store.EnqueueJob(ctx, job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	enricher := &mockEnricher{}
	w := NewWorker(store, enricher, nil, 0)
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(enricher.calls()) != 0 {
		t.Error("enricher should not run for a bad payload")
	}
	if s := jobStatus(t, store, "job-bad").Status; s != "failed" {
		t.Errorf("status = %q, want failed", s)
	}
}

func TestWorker_CompareJobs(t *testing.T) {
	store := openTestStore(t)
	q := NewQueue(store, 0)
	ctx := context.Background()
	one, _ := q.SubmitCompare(ctx, "u-1", "l-1")
	all, _ := q.SubmitCompare(ctx, "u-2", "")

	cmp := &mockComparer{}
	w := NewWorker(store, &mockEnricher{}, cmp, 0)
	for i := 0; i < 2; i++ {
		if _, err := w.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce %d: %v", i, err)
		}
	}

	if len(cmp.single) != 1 || cmp.single[0] != "u-1/l-1" {
		t.Errorf("single compares = %v", cmp.single)
	}
	if len(cmp.all) != 1 || cmp.all[0] != "u-2" {
		t.Errorf("compare-all runs = %v", cmp.all)
	}
	for _, id := range []string{one, all} {
		if s := jobStatus(t, store, id).Status; s != "completed" {
			t.Errorf("%s status = %q, want completed", id, s)
		}
	}
}

func TestWorker_CompareWithoutPreferenceCompletes(t *testing.T) {
	store := openTestStore(t)
	id, _ := NewQueue(store, 0).SubmitCompare(context.Background(), "u-1", "")

	w := NewWorker(store, &mockEnricher{}, &mockComparer{err: compare.ErrNoPreference}, 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if s := jobStatus(t, store, id).Status; s != "completed" {
		t.Errorf("status = %q, want completed", s)
	}
}

func TestWorker_NilComparerLeavesCompareJobs(t *testing.T) {
	store := openTestStore(t)
	id, _ := NewQueue(store, 0).SubmitCompare(context.Background(), "u-1", "")

	w := NewWorker(store, &mockEnricher{}, nil, 0)
	if didWork, _ := w.RunOnce(context.Background()); didWork {
		t.Error("compare job claimed without a comparer")
	}
	if s := jobStatus(t, store, id).Status; s != "pending" {
		t.Errorf("status = %q, want pending", s)
	}
}

func TestWorker_RunRequeuesStaleJobs(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, _ := NewQueue(store, 0).SubmitEnrich(ctx, "l-1")
	// Simulate a crash after the claim.
	if _, err := store.ClaimNextJob(ctx, []string{storage.JobTypeEnrich}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	enricher := &mockEnricher{enrichF: func(context.Context, string) error {
		cancel()
		return nil
	}}
	w := NewWorker(store, enricher, nil, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if got := enricher.calls(); len(got) != 1 {
		t.Errorf("enricher calls = %v, want one", got)
	}
	if s := jobStatus(t, store, id).Status; s != "completed" {
		t.Errorf("status = %q, want completed", s)
	}
}

func TestWorker_ManyJobs(t *testing.T) {
	store := openTestStore(t)
	q := NewQueue(store, 0)

	const goroutines = 5
	const jobsPerGoroutine = 10
	const total = goroutines * jobsPerGoroutine

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < jobsPerGoroutine; j++ {
				if _, err := q.SubmitEnrich(context.Background(), fmt.Sprintf("l-%d-%d", g, j)); err != nil {
					t.Errorf("SubmitEnrich: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	enricher := &mockEnricher{}
	w := NewWorker(store, enricher, nil, 0)

	ctx := context.Background()
	deadline := time.After(5 * time.Second)
	processed := 0
	for processed < total {
		select {
		case <-deadline:
			t.Fatalf("timed out after processing %d/%d jobs", processed, total)
		default:
		}
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce error at job %d: %v", processed, err)
		}
		if !didWork {
			t.Fatalf("queue drained early at %d/%d", processed, total)
		}
		processed++
	}

	seen := map[string]bool{}
	for _, id := range enricher.calls() {
		seen[id] = true
	}
	if len(seen) != total {
		t.Errorf("enriched %d distinct listings, want %d", len(seen), total)
	}
}
