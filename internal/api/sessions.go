package api

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/MJE43/guessrun/internal/effects"
	"github.com/MJE43/guessrun/internal/game"
	"github.com/MJE43/guessrun/internal/store"
)

// liveSession serializes access to one game session. Every field is
// guarded by mu.
type liveSession struct {
	mu       sync.Mutex
	id       string
	runID    string
	game     *game.Session
	recorder *store.Recorder
	feed     *feed
}

// beginRun assigns a fresh run id and transcript recorder.
func (ls *liveSession) beginRun(db store.DB, logger *log.Logger) {
	if ls.recorder != nil {
		ls.recorder.Flush(context.Background())
	}
	ls.runID = uuid.NewString()
	ls.recorder = nil
	if db != nil {
		ls.recorder = store.NewRecorder(db, ls.runID, 50, logger)
	}
}

func (ls *liveSession) onEvent(ev effects.Event) {
	if ls.recorder != nil {
		ls.recorder.Record(ev)
	}
	ls.feed.publish(ev)
}

func (ls *liveSession) close() {
	if ls.recorder != nil {
		ls.recorder.Flush(context.Background())
	}
	ls.feed.close()
}

type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*liveSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*liveSession)}
}

func (r *sessionRegistry) add(ls *liveSession) {
	r.mu.Lock()
	r.sessions[ls.id] = ls
	r.mu.Unlock()
}

func (r *sessionRegistry) get(id string) (*liveSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ls, ok := r.sessions[id]
	return ls, ok
}

func (r *sessionRegistry) remove(id string) (*liveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls, ok := r.sessions[id]
	delete(r.sessions, id)
	return ls, ok
}

func (r *sessionRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *sessionRegistry) all() []*liveSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*liveSession, 0, len(r.sessions))
	for _, ls := range r.sessions {
		out = append(out, ls)
	}
	return out
}

func (s *Server) newSession(req CreateSessionRequest) (*liveSession, error) {
	gameLogger := s.gameLogger
	if gameLogger == nil {
		gameLogger = log.New(io.Discard, "", 0)
	}
	tuning := s.tuning
	g, err := game.NewSession(game.Options{
		Tuning:         &tuning,
		Catalog:        s.catalog,
		Arcs:           s.arcs,
		Logger:         gameLogger,
		Seeds:          req.Seeds,
		StartingJokers: req.Jokers,
	})
	if err != nil {
		return nil, err
	}
	ls := &liveSession{id: uuid.NewString(), game: g, feed: newFeed()}
	g.Subscribe(ls.onEvent)
	return ls, nil
}
