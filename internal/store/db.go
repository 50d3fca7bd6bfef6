package store

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a slot does not exist.
var ErrNotFound = errors.New("store: not found")

// DB is the persistence port for save slots and run transcripts.
type DB interface {
	Close() error
	Migrate() error
	Ping(ctx context.Context) error
	SaveSlot(ctx context.Context, slot *Slot) error
	GetSlot(ctx context.Context, id string) (*Slot, error)
	ListSlots(ctx context.Context, query SlotsQuery) (*SlotsList, error)
	DeleteSlot(ctx context.Context, id string) error
	InsertEvents(ctx context.Context, runID string, events []EventRecord) error
	GetEvents(ctx context.Context, runID string, limit, offset int) ([]EventRecord, error)
	ExportEventsCSV(ctx context.Context, w io.Writer, runID string) error
}

// Slot is a named save. Data holds the compressed snapshot; the other
// fields are denormalized for listing.
type Slot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RunID     string    `json:"runId"`
	Level     int       `json:"level"`
	Round     int       `json:"round"`
	Cash      string    `json:"cash"`
	State     string    `json:"state"`
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SlotsQuery selects a page of slots, newest first.
type SlotsQuery struct {
	RunID   string `json:"runId,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
}

// SlotsList is a page of slots.
type SlotsList struct {
	Slots      []Slot `json:"slots"`
	TotalCount int    `json:"totalCount"`
	Page       int    `json:"page"`
	PerPage    int    `json:"perPage"`
	TotalPages int    `json:"totalPages"`
}

// EventRecord is one persisted transcript entry.
type EventRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"runId"`
	Seq       int       `json:"seq"`
	Kind      string    `json:"kind"`
	Severity  string    `json:"severity"`
	Key       string    `json:"key"`
	Source    string    `json:"source,omitempty"`
	Payload   string    `json:"payload,omitempty"` // JSON object
	CreatedAt time.Time `json:"createdAt"`
}
