package game

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MJE43/guessrun/internal/effects"
	"github.com/MJE43/guessrun/internal/state"
)

// MakeGuessInput parses raw player input and submits it as a guess.
func (s *Session) MakeGuessInput(raw string) error {
	if s.run.State != state.StatePlaying {
		return ErrWrongState
	}
	guess, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		s.reject(ErrInvalidGuess)
		return ErrInvalidGuess
	}
	return s.MakeGuess(guess)
}

// MakeGuess submits a guess for the current round. Out-of-bounds guesses
// are rejected without consuming an attempt.
func (s *Session) MakeGuess(guess int) error {
	if s.run.State != state.StatePlaying {
		return ErrWrongState
	}
	if !s.round.InBounds(guess) {
		s.reject(ErrInvalidGuess)
		return ErrInvalidGuess
	}

	s.round.History = append(s.round.History, guess)
	hc := s.hookContext()
	hc.Guess = guess
	s.emit(effects.Broadcast(effects.OnGuess, s.jokers, hc)...)

	tol, events := effects.Dispatch(effects.GetTolerance, 0, s.jokers, hc)
	s.emit(events...)
	tolerance := max(0, int(math.Floor(tol)))

	if abs(guess-s.round.MysteryNumber) <= tolerance {
		s.handleWin(hc)
	} else {
		s.handleMiss(hc)
	}
	return nil
}

// reject reports a gameplay error through the round status.
func (s *Session) reject(err error) {
	s.status(effects.KindStatus, effects.SeverityError, StatusKey(err), nil)
}

func (s *Session) handleMiss(hc *effects.HookContext) {
	r := s.round
	guess := hc.Guess

	if !r.FirewallUsedThisRound && effects.HasTrait(s.jokers, effects.TraitMissShield) {
		r.FirewallUsedThisRound = true
		s.status(effects.KindStatus, effects.SeveritySuccess, "firewall_blocked", map[string]any{"guess": guess})
		return
	}

	r.Attempts++
	s.emit(effects.Broadcast(effects.OnMiss, s.jokers, hc)...)

	if r.Attempts >= r.MaxAttempts {
		s.run.State = state.StateLostRound
		s.emit(effects.Broadcast(effects.OnLostRound, s.jokers, hc)...)
		s.status(effects.KindStatus, effects.SeverityError, "round_lost", map[string]any{"number": r.MysteryNumber})
		return
	}

	hint := "hint_higher"
	if guess < r.MysteryNumber {
		r.Min = max(r.Min, guess+1)
	} else {
		r.Max = min(r.Max, guess-1)
		hint = "hint_lower"
	}
	if abs(guess-r.MysteryNumber) <= r.BurningThreshold && r.BossEffect != BossMeltdown {
		hint += "_burning"
	}
	r.Hint = hint
	s.status(effects.KindHint, effects.SeverityWarn, hint, map[string]any{
		"guess": guess, "attemptsLeft": r.AttemptsLeft(),
	})
}

func (s *Session) handleWin(hc *effects.HookContext) {
	r := s.round
	s.run.State = state.StateWon
	r.Attempts++

	base := s.tuning.GainFor(r.Attempts) + r.NextGuessBonus
	r.NextGuessBonus = 0
	gain, events := effects.Dispatch(effects.CalculateGain, base, s.jokers, hc)
	s.emit(events...)
	s.emit(effects.Broadcast(effects.OnWin, s.jokers, hc)...)

	r.Gain = decimal.NewFromFloat(math.Floor(gain))
	s.run.Cash = s.run.Cash.Add(r.Gain)
	s.status(effects.KindStatus, effects.SeveritySuccess, "round_won", map[string]any{
		"gain": r.Gain.String(), "attempts": r.Attempts,
	})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
