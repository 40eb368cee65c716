package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a listing with the same source URL is
	// already saved for the user. It is always wrapped in a *ConflictError.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition is returned when a status write is not allowed
	// from the listing's current state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ConflictError carries the id of the listing that already exists.
type ConflictError struct {
	ExistingID string
}

func (e *ConflictError) Error() string {
	return "listing already saved as " + e.ExistingID
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Job types handled by the ingest worker.
const (
	JobTypeEnrich  = "listing_enrich"
	JobTypeCompare = "listing_compare"
)

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
