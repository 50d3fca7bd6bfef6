// Package state holds the plain run and round records shared by the effect
// registry and the round state machine. It carries no behavior that depends
// on owned effects.
package state

import (
	"github.com/shopspring/decimal"
)

// GameState is the run's position in the round state machine.
type GameState string

const (
	StateIdle            GameState = "IDLE"
	StatePlaying         GameState = "PLAYING"
	StateWon             GameState = "WON"
	StateLostRound       GameState = "LOST_ROUND"
	StateBrowser         GameState = "BROWSER"
	StateShop            GameState = "SHOP"
	StateTrading         GameState = "TRADING"
	StateAntivirus       GameState = "ANTIVIRUS"
	StateSystemMonitor   GameState = "SYSTEM_MONITOR"
	StateLevelTransition GameState = "LEVEL_TRANSITION"
	StateArcIntro        GameState = "ARC_INTRO"
	StateGameOver        GameState = "GAME_OVER"
)

// DefaultSliders is the neutral thermal calibration.
var DefaultSliders = [3]int{50, 50, 50}

// Round is the state of a single guessing round. A new Round replaces the
// previous one at every round start.
type Round struct {
	MysteryNumber    int    `json:"mysteryNumber"`
	AbsoluteMin      int    `json:"absoluteMin"`
	AbsoluteMax      int    `json:"absoluteMax"`
	Min              int    `json:"min"`
	Max              int    `json:"max"`
	Attempts         int    `json:"attempts"`
	MaxAttempts      int    `json:"maxAttempts"`
	BurningThreshold int    `json:"burningThreshold"`
	History          []int  `json:"history"`
	BossEffect       string `json:"bossEffect,omitempty"`

	FirewallUsedThisRound bool    `json:"firewallUsedThisRound"`
	ReverseGuessed        bool    `json:"reverseGuessed"`
	QuantumChanged        bool    `json:"quantumChanged"`
	NextGuessBonus        float64 `json:"nextGuessBonus"`

	// Hint is the localization key of the last miss hint.
	Hint string `json:"hint,omitempty"`
	// Status is the transient message shown for this round.
	Status string `json:"status,omitempty"`
	// Gain is the cash won this round, zero until WON.
	Gain decimal.Decimal `json:"gain"`
}

// AttemptsLeft reports the remaining attempt budget.
func (r *Round) AttemptsLeft() int {
	if left := r.MaxAttempts - r.Attempts; left > 0 {
		return left
	}
	return 0
}

// InBounds reports whether guess lies inside the live bounds.
func (r *Round) InBounds(guess int) bool {
	return guess >= r.Min && guess <= r.Max
}

// Run is the meta state that survives across rounds and levels.
type Run struct {
	Cash      decimal.Decimal `json:"cash"`
	Rent      decimal.Decimal `json:"rent"`
	Level     int             `json:"level"`
	Round     int             `json:"round"`
	MaxRounds int             `json:"maxRounds"`
	State     GameState       `json:"gameState"`

	ArcQueue            []string `json:"arcQueue"`
	CurrentArc          string   `json:"currentArc"`
	MonthInArc          int      `json:"monthInArc"`
	MonthBossPersistent string   `json:"monthBossPersistent,omitempty"`
	MonthBossAnnounced  bool     `json:"monthBossAnnounced"`
	BossBlocked         bool     `json:"bossBlocked"`
	TutorialDone        bool     `json:"tutorialDone"`

	TradingUnlocked       bool `json:"tradingUnlocked"`
	AntivirusUnlocked     bool `json:"antivirusUnlocked"`
	AntivirusUnlockLevel  int  `json:"antivirusUnlockLevel"`
	SystemMonitorUnlocked bool `json:"systemMonitorUnlocked"`

	SystemSliders [3]int `json:"systemSliders"`
	Heat          int    `json:"heat"`
	RerollCount   int    `json:"rerollCount"`
	ActiveApp     string `json:"activeApp,omitempty"`
}

// NewRun returns a run at level 1, round 1 with the given starting cash
// and rent.
func NewRun(cash, rent decimal.Decimal, maxRounds int) *Run {
	return &Run{
		Cash:          cash,
		Rent:          rent,
		Level:         1,
		Round:         1,
		MaxRounds:     maxRounds,
		State:         StateIdle,
		SystemSliders: DefaultSliders,
	}
}

// FinalRound reports whether the current round closes the level.
func (r *Run) FinalRound() bool {
	return r.Round >= r.MaxRounds
}

// AddCash adds an integral amount of cash.
func (r *Run) AddCash(n int64) {
	r.Cash = r.Cash.Add(decimal.NewFromInt(n))
}
