// Package registry correlates inference request IDs with the market each
// request was made about. An answer arrives as a separate invocation carrying
// only its request ID; the registry resolves it back to the subject exactly
// once, so repeated deliveries of the same answer cannot double-apply.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/OddsClaw/OddsClaw/internal/journal"
)

var (
	// ErrDuplicateRequest means the request ID is already registered.
	ErrDuplicateRequest = errors.New("registry: request already registered")
	// ErrUnknownRequest means the request ID was never registered.
	ErrUnknownRequest = errors.New("registry: unknown request")
	// ErrAlreadyProcessed means the request was resolved before.
	ErrAlreadyProcessed = errors.New("registry: request already processed")
)

type entry struct {
	subjectID string
	resolved  bool
}

// Registry is the in-memory request ledger. The journal keeps a durable
// shadow copy for audit; journal writes are best-effort and never block
// resolution.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	journal *journal.Journal
}

// New creates an empty Registry. The journal may be nil in tests.
func New(j *journal.Journal) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		journal: j,
	}
}

// Open registers a fresh request against its subject.
func (r *Registry) Open(requestID, subjectID string) error {
	if requestID == "" || subjectID == "" {
		return fmt.Errorf("registry: request and subject IDs are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[requestID]; ok {
		return ErrDuplicateRequest
	}
	r.entries[requestID] = &entry{subjectID: subjectID}

	if r.journal != nil {
		if err := r.journal.RecordRequest(requestID, subjectID); err != nil {
			slog.Warn("Failed to journal request", "requestID", requestID, "error", err)
		}
	}
	return nil
}

// Resolve returns the subject for a request ID and marks it processed.
// The first call wins; every later call for the same ID reports
// ErrAlreadyProcessed so duplicate answer deliveries become no-ops.
func (r *Registry) Resolve(requestID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[requestID]
	if !ok {
		return "", ErrUnknownRequest
	}
	if e.resolved {
		return e.subjectID, ErrAlreadyProcessed
	}
	e.resolved = true

	if r.journal != nil {
		if err := r.journal.MarkRequestResolved(requestID); err != nil {
			slog.Warn("Failed to journal request resolution", "requestID", requestID, "error", err)
		}
	}
	return e.subjectID, nil
}

// Subject looks up the subject without consuming the entry.
func (r *Registry) Subject(requestID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[requestID]
	if !ok {
		return "", false
	}
	return e.subjectID, true
}

// Outstanding counts registered requests that have not resolved yet.
func (r *Registry) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if !e.resolved {
			n++
		}
	}
	return n
}
