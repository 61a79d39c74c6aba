// Package memory is an in-process session store with the same commit
// semantics as the Postgres implementation. It backs tests and
// single-node development runs.
package memory

import (
	"context"
	"sync"

	"github.com/lurelab/lure/pkg/detect"
	"github.com/lurelab/lure/pkg/engage"
	"github.com/lurelab/lure/pkg/extract"
)

// Store keeps sessions in a map guarded by a mutex. Commits replace the
// stored snapshot wholesale, so a failed turn leaves no partial state.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*engage.Session
}

// New creates an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]*engage.Session)}
}

// Load implements engage.Store.
func (s *Store) Load(ctx context.Context, id string) (*engage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, engage.ErrSessionNotFound
	}
	return clone(sess), nil
}

// Commit implements engage.Store.
func (s *Store) Commit(ctx context.Context, req engage.CommitRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[req.Session.ID] = clone(req.Session)
	return nil
}

// Stats implements engage.Store.
func (s *Store) Stats(ctx context.Context) (engage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return engage.Stats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st engage.Stats
	for _, sess := range s.sessions {
		st.TotalSessions++
		if sess.Status == engage.StatusCompleted {
			st.CompletedSessions++
		} else {
			st.ActiveSessions++
		}
		if sess.Label == detect.LabelScam {
			st.ScamsDetected++
		}
		st.Findings += int64(len(sess.Findings))
	}
	return st, nil
}

func clone(sess *engage.Session) *engage.Session {
	cp := *sess
	cp.Messages = append([]engage.Message(nil), sess.Messages...)
	cp.Findings = append([]extract.Finding(nil), sess.Findings...)
	cp.Phases = append([]string(nil), sess.Phases...)
	return &cp
}
