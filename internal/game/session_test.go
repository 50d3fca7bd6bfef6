package game

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MJE43/guessrun/internal/effects"
	"github.com/MJE43/guessrun/internal/engine"
	"github.com/MJE43/guessrun/internal/state"
)

var testSeeds = engine.Seeds{Server: "test-server-seed", Client: "test-client-seed"}

func newSession(t *testing.T, jokers ...string) *Session {
	t.Helper()
	seeds := testSeeds
	s, err := NewSession(Options{Seeds: &seeds, StartingJokers: jokers})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.StartRun()
	return s
}

// rig pins the current round to known values.
func rig(s *Session, mystery, lo, hi, maxAttempts int) {
	r := s.round
	r.MysteryNumber = mystery
	r.AbsoluteMin, r.AbsoluteMax = lo, hi
	r.Min, r.Max = lo, hi
	r.MaxAttempts = maxAttempts
	r.Attempts = 0
	r.BossEffect = ""
	r.BurningThreshold = s.tuning.BurningThreshold(hi - lo + 1)
}

func cashIs(t *testing.T, s *Session, want int64) {
	t.Helper()
	if !s.run.Cash.Equal(decimal.NewFromInt(want)) {
		t.Errorf("cash = %s, want %d", s.run.Cash, want)
	}
}

func TestNewSessionRejectsUnknownStartingJoker(t *testing.T) {
	if _, err := NewSession(Options{StartingJokers: []string{"nope"}}); err == nil {
		t.Fatal("expected error for unknown starting joker")
	}
	bad := DefaultTuning()
	bad.GainTable = nil
	if _, err := NewSession(Options{Tuning: &bad}); err == nil {
		t.Fatal("expected error for invalid tuning")
	}
}

func TestStartRun(t *testing.T) {
	s := newSession(t, "seed_money")

	if s.State() != state.StatePlaying {
		t.Fatalf("state = %s, want PLAYING", s.State())
	}
	if s.run.Level != 1 || s.run.Round != 1 {
		t.Errorf("level/round = %d/%d, want 1/1", s.run.Level, s.run.Round)
	}
	cashIs(t, s, 10+10)
	if len(s.run.ArcQueue) != 10 || s.run.ArcQueue[0] != "tutorial" {
		t.Errorf("arc queue = %v", s.run.ArcQueue)
	}
	if s.round.Status != "round_start" {
		t.Errorf("status = %q, want round_start", s.round.Status)
	}
}

func TestRoundRangeInvariants(t *testing.T) {
	s := newSession(t, "overclock", "offset_driver", "even_steven")
	for i := 0; i < 200; i++ {
		s.StartRound()
		r := s.round
		if r.MysteryNumber < r.AbsoluteMin || r.MysteryNumber > r.AbsoluteMax {
			t.Fatalf("mystery %d outside [%d,%d]", r.MysteryNumber, r.AbsoluteMin, r.AbsoluteMax)
		}
		if r.AbsoluteMin != 100 || r.AbsoluteMax != 249 {
			t.Fatalf("bounds = [%d,%d], want [100,249]", r.AbsoluteMin, r.AbsoluteMax)
		}
		if r.MysteryNumber%2 != 0 {
			t.Fatalf("mystery %d violates even constraint", r.MysteryNumber)
		}
		size := r.AbsoluteMax - r.AbsoluteMin + 1
		if want := max(1, size*5/100); r.BurningThreshold != want {
			t.Fatalf("burning threshold = %d, want %d", r.BurningThreshold, want)
		}
	}
}

func TestWinScenario(t *testing.T) {
	s := newSession(t)
	rig(s, 12, 0, 99, 7)

	for _, g := range []int{50, 25, 12} {
		if err := s.MakeGuess(g); err != nil {
			t.Fatalf("MakeGuess(%d): %v", g, err)
		}
	}
	if s.State() != state.StateWon {
		t.Fatalf("state = %s, want WON", s.State())
	}
	if s.round.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", s.round.Attempts)
	}
	want := int64(s.tuning.GainTable[2])
	if !s.round.Gain.Equal(decimal.NewFromInt(want)) {
		t.Errorf("gain = %s, want %d", s.round.Gain, want)
	}
	cashIs(t, s, 10+want)
	if got := s.round.History; len(got) != 3 || got[0] != 50 || got[2] != 12 {
		t.Errorf("history = %v", got)
	}
}

func TestLossScenario(t *testing.T) {
	s := newSession(t)
	rig(s, 40, 0, 99, 1)

	if err := s.MakeGuess(39); err != nil {
		t.Fatal(err)
	}
	if s.State() != state.StateLostRound {
		t.Fatalf("state = %s, want LOST_ROUND", s.State())
	}
	if s.round.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", s.round.Attempts)
	}
}

func TestMissHints(t *testing.T) {
	tests := []struct {
		name  string
		boss  string
		guess int
		want  string
	}{
		{"far_low", "", 10, "hint_higher"},
		{"far_high", "", 90, "hint_lower"},
		{"burning", "", 42, "hint_lower_burning"},
		{"meltdown_suppresses_burning", BossMeltdown, 42, "hint_lower"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t)
			rig(s, 40, 0, 99, 7)
			s.round.BossEffect = tt.boss

			if err := s.MakeGuess(tt.guess); err != nil {
				t.Fatal(err)
			}
			if s.round.Hint != tt.want {
				t.Errorf("hint = %q, want %q", s.round.Hint, tt.want)
			}
			if s.round.Attempts != 1 {
				t.Errorf("attempts = %d, want 1", s.round.Attempts)
			}
			if s.round.MysteryNumber < s.round.Min || s.round.MysteryNumber > s.round.Max {
				t.Errorf("bounds [%d,%d] excluded the number", s.round.Min, s.round.Max)
			}
		})
	}
}

func TestToleranceWin(t *testing.T) {
	for _, g := range []int{38, 42} {
		s := newSession(t, "fuzzy_logic")
		s.jokers[0].Quantity = 2
		rig(s, 40, 0, 99, 7)
		s.round.Attempts = 2

		if err := s.MakeGuess(g); err != nil {
			t.Fatal(err)
		}
		if s.State() != state.StateWon {
			t.Fatalf("guess %d: state = %s, want WON", g, s.State())
		}
		if s.round.Attempts != 3 {
			t.Errorf("guess %d: attempts = %d, want 3", g, s.round.Attempts)
		}
	}
}

func TestInvalidGuessConsumesNothing(t *testing.T) {
	s := newSession(t)
	rig(s, 40, 10, 50, 7)

	tests := []struct {
		name string
		call func() error
	}{
		{"below", func() error { return s.MakeGuess(9) }},
		{"above", func() error { return s.MakeGuess(51) }},
		{"not_a_number", func() error { return s.MakeGuessInput("forty") }},
		{"empty", func() error { return s.MakeGuessInput("  ") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrInvalidGuess) {
				t.Fatalf("err = %v, want ErrInvalidGuess", err)
			}
			if s.round.Attempts != 0 || len(s.round.History) != 0 {
				t.Errorf("attempts=%d history=%v, want untouched", s.round.Attempts, s.round.History)
			}
			if s.round.Status != "invalid_guess" {
				t.Errorf("status = %q", s.round.Status)
			}
		})
	}

	if err := s.MakeGuessInput(" 40 "); err != nil {
		t.Fatalf("MakeGuessInput: %v", err)
	}
	if s.State() != state.StateWon {
		t.Errorf("state = %s, want WON", s.State())
	}
}

func TestWrongState(t *testing.T) {
	s := newSession(t)
	rig(s, 40, 0, 99, 7)
	if err := s.OpenShop(); !errors.Is(err, ErrWrongState) {
		t.Errorf("OpenShop while playing: %v", err)
	}
	if err := s.NextAction(); !errors.Is(err, ErrWrongState) {
		t.Errorf("NextAction while playing: %v", err)
	}
	if err := s.MakeGuess(40); err != nil {
		t.Fatal(err)
	}
	before := s.round.Attempts
	if err := s.MakeGuess(40); !errors.Is(err, ErrWrongState) {
		t.Errorf("MakeGuess after win: %v", err)
	}
	if s.round.Attempts != before {
		t.Error("wrong-state guess mutated the round")
	}
}

func TestFirewallAbsorbsFirstMiss(t *testing.T) {
	s := newSession(t, "firewall")
	rig(s, 40, 0, 99, 7)

	_ = s.MakeGuess(10)
	if s.round.Attempts != 0 || !s.round.FirewallUsedThisRound {
		t.Fatalf("first miss: attempts=%d used=%v", s.round.Attempts, s.round.FirewallUsedThisRound)
	}
	if s.round.Status != "firewall_blocked" {
		t.Errorf("status = %q", s.round.Status)
	}
	_ = s.MakeGuess(10)
	if s.round.Attempts != 1 {
		t.Errorf("second miss: attempts = %d, want 1", s.round.Attempts)
	}
}

func TestBroadcastPayouts(t *testing.T) {
	s := newSession(t, "tip_jar", "insurance")
	rig(s, 40, 0, 99, 2)

	_ = s.MakeGuess(1)
	_ = s.MakeGuess(2)
	if s.State() != state.StateLostRound {
		t.Fatalf("state = %s", s.State())
	}
	cashIs(t, s, 10+1+1+5)
	if s.round.Status != "round_lost" {
		t.Errorf("status = %q, want round_lost", s.round.Status)
	}
}

func TestWinThenBrowserThenNextRound(t *testing.T) {
	s := newSession(t)
	rig(s, 40, 0, 99, 7)
	_ = s.MakeGuess(40)

	if err := s.NextAction(); err != nil {
		t.Fatal(err)
	}
	if s.State() != state.StateBrowser {
		t.Fatalf("state = %s, want BROWSER", s.State())
	}
	if len(s.Shop()) == 0 {
		t.Error("shop was not generated on entering the browser")
	}
	if err := s.OpenShop(); err != nil {
		t.Fatal(err)
	}
	if err := s.NextAction(); err != nil {
		t.Fatal(err)
	}
	if s.State() != state.StatePlaying || s.run.Round != 2 {
		t.Errorf("state=%s round=%d, want PLAYING round 2", s.State(), s.run.Round)
	}
}

func TestLostRoundGoesStraightToNextRound(t *testing.T) {
	s := newSession(t)
	rig(s, 40, 0, 99, 1)
	_ = s.MakeGuess(1)
	if err := s.NextAction(); err != nil {
		t.Fatal(err)
	}
	if s.State() != state.StatePlaying || s.run.Round != 2 {
		t.Errorf("state=%s round=%d", s.State(), s.run.Round)
	}
}

func TestRentSettlement(t *testing.T) {
	tests := []struct {
		name      string
		jokers    []string
		win       bool
		wantState state.GameState
		wantCash  int64
	}{
		{"paid", nil, true, state.StateLevelTransition, 10 + 50 - 25},
		{"discounted", []string{"landlord_friend"}, true, state.StateLevelTransition, 10 + 50 - 20},
		{"evicted", nil, false, state.StateGameOver, 10},
		{"debt", []string{"credit_line"}, false, state.StateLevelTransition, 10 - 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t, tt.jokers...)
			s.run.Round = s.run.MaxRounds
			rig(s, 40, 0, 99, 1)
			if tt.win {
				_ = s.MakeGuess(40)
			} else {
				_ = s.MakeGuess(41)
			}
			if err := s.NextAction(); err != nil {
				t.Fatal(err)
			}
			if s.State() != tt.wantState {
				t.Fatalf("state = %s, want %s", s.State(), tt.wantState)
			}
			cashIs(t, s, tt.wantCash)
		})
	}
}

func finishLevel(t *testing.T, s *Session) {
	t.Helper()
	s.run.Round = s.run.MaxRounds
	rig(s, 40, 0, 99, 7)
	s.run.Cash = decimal.NewFromInt(1000)
	_ = s.MakeGuess(40)
	if err := s.NextAction(); err != nil {
		t.Fatal(err)
	}
	if s.State() != state.StateLevelTransition {
		t.Fatalf("state = %s, want LEVEL_TRANSITION", s.State())
	}
}

func TestLevelTransitionAndArcIntro(t *testing.T) {
	s := newSession(t, "promoter")

	finishLevel(t, s)
	if !s.run.TutorialDone || s.run.CurrentArc != StandardArcID {
		t.Fatalf("after tutorial: done=%v arc=%s", s.run.TutorialDone, s.run.CurrentArc)
	}
	cash := s.run.Cash
	if err := s.NextAction(); err != nil {
		t.Fatal(err)
	}
	if s.run.Level != 2 || s.run.Round != 1 || s.State() != state.StatePlaying {
		t.Fatalf("level=%d round=%d state=%s", s.run.Level, s.run.Round, s.State())
	}
	if !s.run.Rent.Equal(decimal.NewFromInt(25 + 15)) {
		t.Errorf("rent = %s, want 40", s.run.Rent)
	}
	if want := cash.Add(decimal.NewFromInt(4)); !s.run.Cash.Equal(want) {
		t.Errorf("cash = %s, want %s after promoter", s.run.Cash, want)
	}

	finishLevel(t, s)
	story := s.run.CurrentArc
	if story == StandardArcID {
		t.Fatal("expected a story arc after the filler")
	}
	if err := s.NextAction(); err != nil {
		t.Fatal(err)
	}
	if s.State() != state.StateArcIntro {
		t.Fatalf("state = %s, want ARC_INTRO for %s", s.State(), story)
	}
	if err := s.NextAction(); err != nil {
		t.Fatal(err)
	}
	if s.State() != state.StatePlaying {
		t.Errorf("state = %s, want PLAYING", s.State())
	}
}

func TestThermalOverheatForfeitsAttempt(t *testing.T) {
	s := newSession(t)
	s.run.SystemMonitorUnlocked = true
	s.run.SystemSliders = [3]int{0, 0, 0}

	s.StartRound()
	if s.run.Heat != 0 {
		t.Errorf("heat = %d, want reset to 0", s.run.Heat)
	}
	if s.round.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 forfeited", s.round.Attempts)
	}

	s.run.SystemSliders = s.tuning.ThermalTarget
	s.StartRound()
	if s.run.Heat != 0 || s.round.Attempts != 0 {
		t.Errorf("calibrated: heat=%d attempts=%d", s.run.Heat, s.round.Attempts)
	}
}

func TestSubscribeAndTranscript(t *testing.T) {
	s := newSession(t, "sonar")
	var got []effects.Event
	cancel := s.Subscribe(func(ev effects.Event) { got = append(got, ev) })

	rig(s, 40, 0, 99, 7)
	_ = s.MakeGuess(90)
	if len(got) == 0 {
		t.Fatal("listener saw no events")
	}
	var sonar bool
	for _, ev := range got {
		if ev.Key == "sonar_ping" {
			sonar = ev.LogOnly()
		}
	}
	if !sonar {
		t.Error("sonar_ping missing or not log-only")
	}
	if s.round.Status != "hint_lower" {
		t.Errorf("log-only event leaked into status: %q", s.round.Status)
	}

	cancel()
	n := len(got)
	_ = s.MakeGuess(80)
	if len(got) != n {
		t.Error("listener called after cancel")
	}
	if len(s.Transcript()) > s.tuning.TranscriptSize {
		t.Errorf("transcript grew past %d", s.tuning.TranscriptSize)
	}
}

func TestSameSeedsSameRun(t *testing.T) {
	a, b := newSession(t), newSession(t)
	for i := 0; i < 5; i++ {
		if a.round.MysteryNumber != b.round.MysteryNumber {
			t.Fatalf("round %d: %d != %d", i, a.round.MysteryNumber, b.round.MysteryNumber)
		}
		a.StartRound()
		b.StartRound()
	}
	for i := range a.run.ArcQueue {
		if a.run.ArcQueue[i] != b.run.ArcQueue[i] {
			t.Fatalf("arc queues differ: %v vs %v", a.run.ArcQueue, b.run.ArcQueue)
		}
	}
}

func TestViewHidesInformation(t *testing.T) {
	s := newSession(t)
	rig(s, 40, 0, 99, 7)

	v := s.View()
	if v.MysteryNumber != nil {
		t.Error("mystery number visible while playing")
	}
	if v.Min == nil || *v.Min != 0 || *v.Max != 99 {
		t.Errorf("bounds = %v/%v", v.Min, v.Max)
	}

	s.round.BossEffect = BossBlind
	if v := s.View(); v.Min != nil || v.Max != nil {
		t.Error("bounds visible under blind boss")
	}

	_ = s.MakeGuess(42)
	if v := s.View(); !v.Burning {
		t.Error("burning hint not reported")
	}
	_ = s.MakeGuess(40)
	if v := s.View(); v.MysteryNumber == nil || *v.MysteryNumber != 40 {
		t.Error("mystery number hidden after the round ended")
	}
}
