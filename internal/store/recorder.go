package store

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/MJE43/guessrun/internal/effects"
)

// Recorder buffers session events and flushes them to the store in
// batches. Record is safe to call from a session listener.
type Recorder struct {
	db        DB
	runID     string
	logger    *log.Logger
	mu        sync.Mutex
	buffer    []EventRecord
	seq       int
	flushSize int
}

// NewRecorder creates a recorder for runID. flushSize bounds the buffer.
func NewRecorder(db DB, runID string, flushSize int, logger *log.Logger) *Recorder {
	if flushSize <= 0 {
		flushSize = 50
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		db:        db,
		runID:     runID,
		logger:    logger,
		buffer:    make([]EventRecord, 0, flushSize),
		flushSize: flushSize,
	}
}

// Record adds ev to the buffer and flushes when it is full.
func (r *Recorder) Record(ev effects.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	rec := EventRecord{
		RunID:     r.runID,
		Seq:       r.seq,
		Kind:      string(ev.Kind),
		Severity:  string(ev.Severity),
		Key:       ev.Key,
		Source:    ev.Source,
		CreatedAt: time.Now().UTC(),
	}
	if len(ev.Payload) > 0 {
		if raw, err := json.Marshal(ev.Payload); err == nil {
			rec.Payload = string(raw)
		}
	}
	r.buffer = append(r.buffer, rec)
	if len(r.buffer) >= r.flushSize {
		r.flushLocked(context.Background())
	}
}

// Flush writes any buffered events.
func (r *Recorder) Flush(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked(ctx)
}

func (r *Recorder) flushLocked(ctx context.Context) {
	if len(r.buffer) == 0 {
		return
	}
	if err := r.db.InsertEvents(ctx, r.runID, r.buffer); err != nil {
		r.logger.Printf("recorder: flush %d events for %s: %v", len(r.buffer), r.runID, err)
		if over := len(r.buffer) - 10*r.flushSize; over > 0 {
			r.buffer = append(r.buffer[:0], r.buffer[over:]...)
		}
		return
	}
	r.buffer = r.buffer[:0]
}
