package game

import (
	"strings"

	"github.com/MJE43/guessrun/internal/effects"
	"github.com/MJE43/guessrun/internal/state"
)

// OwnedView is an owned effect as shown to the player.
type OwnedView struct {
	ID       string       `json:"id"`
	Kind     effects.Kind `json:"kind"`
	Quantity int          `json:"quantity"`
	Modifier float64      `json:"modifier"`
}

// View is the player-facing projection of a session. Hidden information
// (the mystery number, bounds under a blind boss) is left out.
type View struct {
	State     state.GameState `json:"state"`
	Cash      string          `json:"cash"`
	Rent      string          `json:"rent"`
	Level     int             `json:"level"`
	Round     int             `json:"round"`
	MaxRounds int             `json:"maxRounds"`

	Min           *int   `json:"min,omitempty"`
	Max           *int   `json:"max,omitempty"`
	Attempts      int    `json:"attempts"`
	MaxAttempts   int    `json:"maxAttempts"`
	AttemptsLeft  int    `json:"attemptsLeft"`
	History       []int  `json:"history"`
	Hint          string `json:"hint,omitempty"`
	Burning       bool   `json:"burning"`
	Status        string `json:"status,omitempty"`
	BossEffect    string `json:"bossEffect,omitempty"`
	MysteryNumber *int   `json:"mysteryNumber,omitempty"`
	Gain          string `json:"gain,omitempty"`

	Jokers     []OwnedView `json:"jokers"`
	Scripts    []OwnedView `json:"scripts"`
	Shop       []ShopItem  `json:"shop,omitempty"`
	RerollCost string      `json:"rerollCost,omitempty"`

	CurrentArc string          `json:"currentArc"`
	MonthInArc int             `json:"monthInArc"`
	Unlocked   map[string]bool `json:"unlocked"`
	ActiveApp  string          `json:"activeApp,omitempty"`
	Heat       int             `json:"heat"`
	Sliders    [3]int          `json:"sliders"`

	Log []effects.Event `json:"log"`
}

// View builds the current projection.
func (s *Session) View() View {
	r, run := s.round, s.run
	v := View{
		State:        run.State,
		Cash:         run.Cash.String(),
		Rent:         run.Rent.String(),
		Level:        run.Level,
		Round:        run.Round,
		MaxRounds:    run.MaxRounds,
		Attempts:     r.Attempts,
		MaxAttempts:  r.MaxAttempts,
		AttemptsLeft: r.AttemptsLeft(),
		History:      append([]int{}, r.History...),
		Hint:         r.Hint,
		Status:       r.Status,
		BossEffect:   r.BossEffect,
		Jokers:       owned(s.jokers),
		Scripts:      owned(s.scripts),
		CurrentArc:   run.CurrentArc,
		MonthInArc:   run.MonthInArc,
		Unlocked: map[string]bool{
			AppTrading:       run.TradingUnlocked,
			AppAntivirus:     run.AntivirusUnlocked,
			AppSystemMonitor: run.SystemMonitorUnlocked,
		},
		ActiveApp: run.ActiveApp,
		Heat:      run.Heat,
		Sliders:   run.SystemSliders,
		Log:       append([]effects.Event{}, s.roundLog...),
	}
	v.Burning = strings.HasSuffix(r.Hint, "_burning")
	if r.BossEffect != BossBlind {
		lo, hi := r.Min, r.Max
		v.Min, v.Max = &lo, &hi
	}
	switch run.State {
	case state.StateWon, state.StateLostRound, state.StateGameOver:
		n := r.MysteryNumber
		v.MysteryNumber = &n
	}
	if !r.Gain.IsZero() {
		v.Gain = r.Gain.String()
	}
	if run.State == state.StateShop || run.State == state.StateBrowser {
		v.Shop = append([]ShopItem{}, s.offers...)
		v.RerollCost = s.shop.RerollCost(run.RerollCount).String()
	}
	return v
}

func owned(list []*effects.Instance) []OwnedView {
	out := make([]OwnedView, 0, len(list))
	for _, inst := range list {
		ov := OwnedView{ID: inst.TemplateID, Quantity: inst.Count(), Modifier: inst.Modifier}
		if t := inst.Template(); t != nil {
			ov.Kind = t.Kind
		}
		out = append(out, ov)
	}
	return out
}
