package engage

import (
	"context"
	"errors"

	"github.com/lurelab/lure/pkg/extract"
)

// ErrSessionNotFound is returned by Store.Load for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// CommitRequest is the atomic unit of persistence for one turn: the
// updated session snapshot plus the turn's delta. Implementations must
// apply it all-or-nothing; sessions are never deleted.
type CommitRequest struct {
	Session     *Session
	Inbound     Message
	Reply       Message
	NewFindings []extract.Finding
}

// Stats are the dashboard aggregates.
type Stats struct {
	TotalSessions     int64 `json:"total_sessions"`
	ActiveSessions    int64 `json:"active_sessions"`
	CompletedSessions int64 `json:"completed_sessions"`
	ScamsDetected     int64 `json:"scams_detected"`
	Findings          int64 `json:"findings"`
}

// Store is the session persistence contract the pipeline depends on.
// Implementations live under pkg/store.
type Store interface {
	// Load returns the session, or ErrSessionNotFound.
	Load(ctx context.Context, id string) (*Session, error)

	// Commit persists one turn atomically.
	Commit(ctx context.Context, req CommitRequest) error

	// Stats returns aggregate counts.
	Stats(ctx context.Context) (Stats, error)
}
