package api

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/guessrun/internal/effects"
	"github.com/MJE43/guessrun/internal/engine"
	"github.com/MJE43/guessrun/internal/game"
)

// EngineError is a structured error response with context.
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e EngineError) Error() string {
	return e.Message
}

// Error types
const (
	ErrTypeValidation    = "validation_error"
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeInvalidSave   = "invalid_save"

	ErrTypeSessionNotFound = "session_not_found"
	ErrTypeSlotNotFound    = "slot_not_found"
	ErrTypeWrongState      = "wrong_state"

	ErrTypeEffectFailed = "effect_failed"

	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory groups error types for monitoring.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryGame       ErrorCategory = "game"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type.
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeInvalidParams, ErrTypeInvalidSave:
		return CategoryValidation
	case ErrTypeSessionNotFound, ErrTypeSlotNotFound, ErrTypeWrongState, ErrTypeEffectFailed:
		return CategoryGame
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information.
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// CreateSessionRequest opens a session. Seeds pin the random stream;
// Start begins the first run immediately.
type CreateSessionRequest struct {
	Seeds  *engine.Seeds `json:"seeds,omitempty"`
	Jokers []string      `json:"jokers,omitempty"`
	Start  bool          `json:"start"`
}

// SessionResponse identifies a session and its current view.
type SessionResponse struct {
	ID    string    `json:"id"`
	RunID string    `json:"runId,omitempty"`
	View  game.View `json:"view"`
}

// ActionResponse is returned by every gameplay action. Rejected moves
// report OK=false with the status key in Error.
type ActionResponse struct {
	OK    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
	View  game.View `json:"view"`
}

// GuessRequest carries either raw input or a number.
type GuessRequest struct {
	Input *string `json:"input,omitempty"`
	Guess *int    `json:"guess,omitempty"`
}

// IndexRequest selects a shop offer or owned script.
type IndexRequest struct {
	Index int `json:"index"`
}

// SellRequest selects an owned effect to sell.
type SellRequest struct {
	Kind  effects.Kind `json:"kind"`
	Index int          `json:"index"`
}

// AppRequest names a mini-app.
type AppRequest struct {
	App string `json:"app"`
}

// TradeRequest reports a trading session result.
type TradeRequest struct {
	Delta decimal.Decimal `json:"delta"`
}

// ScanRequest reports an antivirus scan score.
type ScanRequest struct {
	Score int `json:"score"`
}

// SlidersRequest sets the thermal calibration.
type SlidersRequest struct {
	Sliders [3]int `json:"sliders"`
}

// SaveRequest writes the session into a slot. An empty SlotID creates one.
type SaveRequest struct {
	SlotID string `json:"slotId,omitempty"`
	Name   string `json:"name"`
}

// LoadRequest restores a slot into the session.
type LoadRequest struct {
	SlotID string `json:"slotId"`
}

// CatalogEntry describes one effect template.
type CatalogEntry struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Price       string   `json:"price"`
	MaxQuantity int      `json:"maxQuantity,omitempty"`
	Triggers    []string `json:"triggers"`
	Traits      []string `json:"traits,omitempty"`
}

// CatalogResponse lists the effect catalog.
type CatalogResponse struct {
	Effects       []CatalogEntry `json:"effects"`
	EngineVersion string         `json:"engine_version"`
}
