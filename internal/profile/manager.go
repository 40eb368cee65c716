// Package profile manages each user's dream apartment description, the
// free-text preference that listings are scored against.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/nestscout/nestscout/internal/listing"
	"github.com/nestscout/nestscout/internal/storage"
)

// MaxDescriptionLength bounds a description in runes.
const MaxDescriptionLength = 4000

var (
	// ErrEmptyDescription is returned when setting a blank description.
	ErrEmptyDescription = errors.New("dream apartment description is empty")
	// ErrDescriptionTooLong is returned when a description exceeds MaxDescriptionLength.
	ErrDescriptionTooLong = errors.New("dream apartment description is too long")
)

// PreferenceStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type PreferenceStore interface {
	GetPreference(ctx context.Context, userID string) (*listing.Preference, error)
	SetPreference(ctx context.Context, p *listing.Preference) error
	DeletePreference(ctx context.Context, userID string) (int64, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	description string
	loadedAt    time.Time
}

// Manager provides cached access to per-user descriptions. An absent
// description is cached too, as the empty string.
type Manager struct {
	store PreferenceStore
	clock Clock
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store PreferenceStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store PreferenceStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// Get returns the user's description, or "" when none is set.
func (m *Manager) Get(ctx context.Context, userID string) (string, error) {
	// Fast path: read lock for cache hit.
	m.mu.RLock()
	if e, ok := m.fresh(userID); ok {
		m.mu.RUnlock()
		return e.description, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if e, ok := m.fresh(userID); ok {
		return e.description, nil
	}

	var desc string
	p, err := m.store.GetPreference(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return "", fmt.Errorf("loading preference: %w", err)
	default:
		desc = p.Description
	}
	m.cache[userID] = cacheEntry{description: desc, loadedAt: m.clock.Now()}
	return desc, nil
}

func (m *Manager) fresh(userID string) (cacheEntry, bool) {
	e, ok := m.cache[userID]
	if !ok || !m.clock.Now().Before(e.loadedAt.Add(m.ttl)) {
		return cacheEntry{}, false
	}
	return e, true
}

// Set stores the user's description and invalidates the cached copy.
func (m *Manager) Set(ctx context.Context, userID, description string) error {
	description = strings.TrimSpace(description)
	if description == "" {
		return ErrEmptyDescription
	}
	if n := utf8.RuneCountInString(description); n > MaxDescriptionLength {
		return fmt.Errorf("%w: %d characters, limit is %d", ErrDescriptionTooLong, n, MaxDescriptionLength)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetPreference(ctx, &listing.Preference{UserID: userID, Description: description}); err != nil {
		return fmt.Errorf("saving preference: %w", err)
	}
	delete(m.cache, userID)
	return nil
}

// Clear removes the user's description and every score computed from it.
// It returns how many scores were removed.
func (m *Manager) Clear(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.store.DeletePreference(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("clearing preference: %w", err)
	}
	delete(m.cache, userID)
	return n, nil
}
