// Package store provides keyed storage for session records with atomic
// read-modify-write semantics per session id. Two backings implement the
// same contract: an in-memory map for tests and demos, and SQLite for
// durable deployments.
package store

import (
	"context"
	"errors"

	"github.com/speak2fill/speak2fill/internal/form"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Store is the session storage contract.
//
// Update runs mutate against the current record and persists the result as
// one atomic step: two Updates racing on the same id are serialized, and a
// mutation is never partially applied. If mutate returns an error the record
// is left exactly as it was.
type Store interface {
	// Create persists a new session together with its source image bytes.
	Create(ctx context.Context, s *form.Session, image []byte) error

	// Get returns a copy of the session, or ErrNotFound.
	Get(ctx context.Context, id string) (*form.Session, error)

	// Update atomically applies mutate to the session and returns the
	// updated copy, or ErrNotFound.
	Update(ctx context.Context, id string, mutate func(*form.Session) error) (*form.Session, error)

	// GetImage returns the original uploaded image bytes, or ErrNotFound.
	GetImage(ctx context.Context, id string) ([]byte, error)
}
