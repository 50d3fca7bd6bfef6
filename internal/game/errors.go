package game

import "errors"

// Gameplay outcomes. These are reported to the player through the round
// status and returned so callers can branch; none of them mutate state.
var (
	ErrInvalidGuess      = errors.New("game: invalid guess")
	ErrWrongState        = errors.New("game: action not allowed in current state")
	ErrInsufficientFunds = errors.New("game: insufficient funds")
	ErrSlotsFull         = errors.New("game: no free slot")
	ErrSoldOut           = errors.New("game: item sold out")
	ErrLocked            = errors.New("game: app is locked")
	ErrNoSuchItem        = errors.New("game: no such item")
	ErrScriptRejected    = errors.New("game: script could not be used")
)

// StatusKey maps a gameplay error to the status message shown for it.
func StatusKey(err error) string {
	switch {
	case errors.Is(err, ErrInvalidGuess):
		return "invalid_guess"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrSlotsFull):
		return "slots_full"
	case errors.Is(err, ErrSoldOut):
		return "sold_out"
	case errors.Is(err, ErrLocked):
		return "app_locked"
	case errors.Is(err, ErrNoSuchItem):
		return "no_such_item"
	case errors.Is(err, ErrScriptRejected):
		return "script_rejected"
	}
	return "error"
}
