package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/storage"
)

type mockQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (m *mockQueue) SubmitEnrich(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.ids = append(m.ids, id)
	return "job-" + id, nil
}

func (m *mockQueue) submitted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.ids...)
	sort.Strings(out)
	return out
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

// seed saves a listing and walks it through statuses.
func seed(t *testing.T, s *storage.Store, id string, path ...listing.Status) {
	t.Helper()
	ctx := context.Background()
	l := &listing.Listing{ID: id, UserID: "u-1", SourceURL: "https://ads.example/" + id, RawContent: "flat"}
	if err := s.SaveListing(ctx, l); err != nil {
		t.Fatalf("SaveListing(%s): %v", id, err)
	}
	for _, st := range path {
		if st == listing.StatusPending {
			if err := s.ResetListing(ctx, id); err != nil {
				t.Fatalf("ResetListing(%s): %v", id, err)
			}
			continue
		}
		if err := s.SetListingStatus(ctx, id, st, ""); err != nil {
			t.Fatalf("SetListingStatus(%s, %s): %v", id, st, err)
		}
	}
}

func status(t *testing.T, s *storage.Store, id string) *listing.Listing {
	t.Helper()
	l, err := s.GetListing(context.Background(), id)
	if err != nil {
		t.Fatalf("GetListing(%s): %v", id, err)
	}
	return l
}

func TestSweep(t *testing.T) {
	store := openTestStore(t)
	p, f, d := listing.StatusProcessing, listing.StatusFailed, listing.StatusDone
	seed(t, store, "l-failed", p, f)
	seed(t, store, "l-stuck", p)
	seed(t, store, "l-done", p, d)
	seed(t, store, "l-pending")
	seed(t, store, "l-exhausted", p, f, listing.StatusPending, p, f)

	q := &mockQueue{}
	sw := New(store, q, Config{Schedule: DefaultSchedule, MaxResets: 1})
	// Pretend the sweep runs an hour later so l-stuck counts as stuck.
	sw.now = func() time.Time { return time.Now().Add(time.Hour) }

	n, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 {
		t.Errorf("queued = %d, want 2", n)
	}
	got := q.submitted()
	if len(got) != 2 || got[0] != "l-failed" || got[1] != "l-stuck" {
		t.Errorf("submitted = %v, want [l-failed l-stuck]", got)
	}

	for _, id := range []string{"l-failed", "l-stuck"} {
		l := status(t, store, id)
		if l.Status != listing.StatusPending || l.RetryCount != 1 {
			t.Errorf("%s: status=%s retries=%d, want pending/1", id, l.Status, l.RetryCount)
		}
	}
	if l := status(t, store, "l-exhausted"); l.Status != listing.StatusFailed {
		t.Errorf("l-exhausted status = %s, want failed (no resets left)", l.Status)
	}
	if l := status(t, store, "l-done"); l.Status != listing.StatusDone {
		t.Errorf("l-done status = %s", l.Status)
	}
}

func TestSweep_RecentProcessingIsLeftAlone(t *testing.T) {
	store := openTestStore(t)
	seed(t, store, "l-busy", listing.StatusProcessing)

	q := &mockQueue{}
	n, err := New(store, q, Config{}).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 || len(q.submitted()) != 0 {
		t.Errorf("queued = %d, submitted = %v, want none", n, q.submitted())
	}
	if l := status(t, store, "l-busy"); l.Status != listing.StatusProcessing {
		t.Errorf("status = %s, want processing", l.Status)
	}
}

func TestSweep_SubmitErrorContinues(t *testing.T) {
	store := openTestStore(t)
	seed(t, store, "l-1", listing.StatusProcessing, listing.StatusFailed)

	q := &mockQueue{err: errors.New("database is locked")}
	n, err := New(store, q, Config{}).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("queued = %d, want 0", n)
	}
}

type failingStore struct{ Store }

func (failingStore) ListRetryable(context.Context, int, time.Time) ([]listing.Listing, error) {
	return nil, errors.New("no such table: listings")
}

func TestSweep_ListError(t *testing.T) {
	if _, err := New(failingStore{}, &mockQueue{}, Config{}).Sweep(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestStart_Disabled(t *testing.T) {
	q := &mockQueue{}
	sw := New(failingStore{}, q, Config{})
	if err := sw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sw.Stop()
}

func TestStart_BadSchedule(t *testing.T) {
	sw := New(failingStore{}, &mockQueue{}, Config{Schedule: "every so often"})
	if err := sw.Start(context.Background()); err == nil {
		t.Error("expected error for an invalid schedule")
	}
}

func TestStart_RunsImmediately(t *testing.T) {
	store := openTestStore(t)
	seed(t, store, "l-1", listing.StatusProcessing, listing.StatusFailed)

	q := &mockQueue{}
	sw := New(store, q, Config{Schedule: "@every 1h"})
	if err := sw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sw.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for len(q.submitted()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("startup sweep did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
