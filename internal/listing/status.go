package listing

import (
	"fmt"
	"strings"
)

// Status is the enrichment lifecycle state of a listing.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// validTransitions lists, per state, the states a listing may move to.
// Writing the current state again is always allowed.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusDone, StatusFailed},
	StatusDone:       {StatusPending, StatusProcessing},
	StatusFailed:     {StatusPending, StatusProcessing},
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("unknown enrichment status %q", s)
	}
	return st, nil
}

// CanTransition reports whether a listing in state from may be moved to state to.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s is an end state of a single enrichment run.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}
