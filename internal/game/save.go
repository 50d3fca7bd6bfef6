package game

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/guessrun/internal/effects"
	"github.com/MJE43/guessrun/internal/engine"
	"github.com/MJE43/guessrun/internal/state"
)

// SaveVersion is the snapshot layout written by ToSaveData.
const SaveVersion = 1

// SavedEffect is the persisted identity of an owned effect. Behavior is
// re-attached from the catalog on restore.
type SavedEffect struct {
	ID       string  `json:"id"`
	Quantity int     `json:"quantity"`
	Modifier float64 `json:"modifier"`
}

// Snapshot is the serializable form of a session.
type Snapshot struct {
	Version int `json:"version"`

	Seeds  engine.Seeds `json:"seeds"`
	Nonce  uint64       `json:"nonce"`
	Cursor uint64       `json:"cursor"`

	Cash      decimal.Decimal `json:"cash"`
	Rent      decimal.Decimal `json:"rent"`
	Level     int             `json:"level"`
	Round     int             `json:"round"`
	MaxRounds int             `json:"maxRounds,omitempty"`
	GameState state.GameState `json:"gameState"`

	MysteryNumber         int             `json:"mysteryNumber"`
	AbsoluteMin           int             `json:"absoluteMin"`
	AbsoluteMax           int             `json:"absoluteMax"`
	Min                   int             `json:"min"`
	Max                   int             `json:"max"`
	Attempts              int             `json:"attempts"`
	MaxAttempts           int             `json:"maxAttempts"`
	BurningThreshold      int             `json:"burningThreshold"`
	History               []int           `json:"history,omitempty"`
	BossEffect            string          `json:"bossEffect,omitempty"`
	FirewallUsedThisRound bool            `json:"firewallUsedThisRound,omitempty"`
	ReverseGuessed        bool            `json:"reverseGuessed,omitempty"`
	QuantumChanged        bool            `json:"quantumChanged,omitempty"`
	NextGuessBonus        float64         `json:"nextGuessBonus,omitempty"`
	Hint                  string          `json:"hint,omitempty"`
	Gain                  decimal.Decimal `json:"gain"`

	Jokers  []SavedEffect `json:"jokers"`
	Scripts []SavedEffect `json:"scripts"`
	Shop    []ShopItem    `json:"shop,omitempty"`

	ArcQueue            []string `json:"arcQueue"`
	CurrentArc          string   `json:"currentArc"`
	MonthInArc          int      `json:"monthInArc"`
	MonthBossPersistent string   `json:"monthBossPersistent,omitempty"`
	MonthBossAnnounced  bool     `json:"monthBossAnnounced,omitempty"`
	BossBlocked         bool     `json:"bossBlocked,omitempty"`
	TutorialDone        bool     `json:"tutorialDone,omitempty"`

	TradingUnlocked       bool  `json:"tradingUnlocked,omitempty"`
	AntivirusUnlocked     bool  `json:"antivirusUnlocked,omitempty"`
	AntivirusUnlockLevel  int   `json:"antivirusUnlockLevel,omitempty"`
	SystemMonitorUnlocked bool  `json:"systemMonitorUnlocked,omitempty"`
	SystemSliders         []int `json:"systemSliders,omitempty"`
	Heat                  int   `json:"heat,omitempty"`
	RerollCount           int   `json:"rerollCount,omitempty"`
}

// ToSaveData captures the session. It returns nil before the first run.
func (s *Session) ToSaveData() *Snapshot {
	if s.rng == nil || s.run.State == state.StateIdle {
		return nil
	}
	seeds, nonce, cursor := s.rng.State()
	run, r := s.run, s.round
	return &Snapshot{
		Version: SaveVersion,
		Seeds:   seeds,
		Nonce:   nonce,
		Cursor:  cursor,

		Cash:      run.Cash,
		Rent:      run.Rent,
		Level:     run.Level,
		Round:     run.Round,
		MaxRounds: run.MaxRounds,
		GameState: run.State,

		MysteryNumber:         r.MysteryNumber,
		AbsoluteMin:           r.AbsoluteMin,
		AbsoluteMax:           r.AbsoluteMax,
		Min:                   r.Min,
		Max:                   r.Max,
		Attempts:              r.Attempts,
		MaxAttempts:           r.MaxAttempts,
		BurningThreshold:      r.BurningThreshold,
		History:               append([]int{}, r.History...),
		BossEffect:            r.BossEffect,
		FirewallUsedThisRound: r.FirewallUsedThisRound,
		ReverseGuessed:        r.ReverseGuessed,
		QuantumChanged:        r.QuantumChanged,
		NextGuessBonus:        r.NextGuessBonus,
		Hint:                  r.Hint,
		Gain:                  r.Gain,

		Jokers:  saved(s.jokers),
		Scripts: saved(s.scripts),
		Shop:    append([]ShopItem{}, s.offers...),

		ArcQueue:            append([]string{}, run.ArcQueue...),
		CurrentArc:          run.CurrentArc,
		MonthInArc:          run.MonthInArc,
		MonthBossPersistent: run.MonthBossPersistent,
		MonthBossAnnounced:  run.MonthBossAnnounced,
		BossBlocked:         run.BossBlocked,
		TutorialDone:        run.TutorialDone,

		TradingUnlocked:       run.TradingUnlocked,
		AntivirusUnlocked:     run.AntivirusUnlocked,
		AntivirusUnlockLevel:  run.AntivirusUnlockLevel,
		SystemMonitorUnlocked: run.SystemMonitorUnlocked,
		SystemSliders:         append([]int{}, run.SystemSliders[:]...),
		Heat:                  run.Heat,
		RerollCount:           run.RerollCount,
	}
}

func saved(list []*effects.Instance) []SavedEffect {
	out := make([]SavedEffect, 0, len(list))
	for _, inst := range list {
		out = append(out, SavedEffect{ID: inst.TemplateID, Quantity: inst.Count(), Modifier: inst.Modifier})
	}
	return out
}

var restorable = map[state.GameState]state.GameState{
	state.StatePlaying:         state.StatePlaying,
	state.StateWon:             state.StateWon,
	state.StateLostRound:       state.StateLostRound,
	state.StateBrowser:         state.StateBrowser,
	state.StateShop:            state.StateShop,
	state.StateTrading:         state.StateBrowser,
	state.StateAntivirus:       state.StateBrowser,
	state.StateSystemMonitor:   state.StateBrowser,
	state.StateLevelTransition: state.StateLevelTransition,
	state.StateArcIntro:        state.StateArcIntro,
	state.StateGameOver:        state.StateGameOver,
}

// LoadFromSaveData replaces the session with snap. It reports false and
// leaves the session untouched when snap is nil or malformed. Effects whose
// ids are no longer in the catalog are dropped; mini-app states resume in
// the browser.
func (s *Session) LoadFromSaveData(snap *Snapshot) bool {
	if snap == nil || snap.Version < 1 || snap.Version > SaveVersion {
		return false
	}
	if snap.Seeds.Server == "" || snap.Seeds.Client == "" {
		return false
	}
	if snap.Level < 1 || snap.Round < 1 || snap.MaxAttempts < 0 || snap.Attempts < 0 {
		return false
	}
	st, ok := restorable[snap.GameState]
	if !ok {
		return false
	}
	if snap.GameState == state.StatePlaying && !playable(snap) {
		return false
	}

	rng := engine.NewSource(snap.Seeds, snap.Nonce, snap.Cursor)

	maxRounds := snap.MaxRounds
	if maxRounds < 1 {
		maxRounds = s.tuning.MaxRounds
	}
	run := state.NewRun(snap.Cash, snap.Rent, maxRounds)
	run.Level = snap.Level
	run.Round = snap.Round
	run.State = st
	run.TutorialDone = snap.TutorialDone
	run.TradingUnlocked = snap.TradingUnlocked
	run.AntivirusUnlocked = snap.AntivirusUnlocked
	run.AntivirusUnlockLevel = snap.AntivirusUnlockLevel
	run.SystemMonitorUnlocked = snap.SystemMonitorUnlocked
	run.Heat = snap.Heat
	run.RerollCount = snap.RerollCount
	if len(snap.SystemSliders) == len(run.SystemSliders) {
		copy(run.SystemSliders[:], snap.SystemSliders)
	}

	for _, id := range snap.ArcQueue {
		if _, known := s.arcs.Lookup(id); known {
			run.ArcQueue = append(run.ArcQueue, id)
		}
	}
	if len(run.ArcQueue) == 0 {
		run.ArcQueue = s.arcs.BuildQueue(false, rng)
	}
	run.CurrentArc = snap.CurrentArc
	if _, known := s.arcs.Lookup(run.CurrentArc); !known {
		run.CurrentArc = run.ArcQueue[0]
	}
	run.MonthInArc = max(1, snap.MonthInArc)
	if _, known := s.arcs.Boss(snap.MonthBossPersistent); known {
		run.MonthBossPersistent = snap.MonthBossPersistent
	}
	run.MonthBossAnnounced = snap.MonthBossAnnounced
	run.BossBlocked = snap.BossBlocked

	round := &state.Round{
		MysteryNumber:         snap.MysteryNumber,
		AbsoluteMin:           snap.AbsoluteMin,
		AbsoluteMax:           snap.AbsoluteMax,
		Min:                   snap.Min,
		Max:                   snap.Max,
		Attempts:              snap.Attempts,
		MaxAttempts:           snap.MaxAttempts,
		BurningThreshold:      snap.BurningThreshold,
		History:               append([]int{}, snap.History...),
		BossEffect:            snap.BossEffect,
		FirewallUsedThisRound: snap.FirewallUsedThisRound,
		ReverseGuessed:        snap.ReverseGuessed,
		QuantumChanged:        snap.QuantumChanged,
		NextGuessBonus:        snap.NextGuessBonus,
		Hint:                  snap.Hint,
		Gain:                  snap.Gain,
	}

	var offers []ShopItem
	for _, item := range snap.Shop {
		if _, known := s.catalog.Lookup(item.ID); known {
			offers = append(offers, item)
		}
	}

	s.rng = rng
	s.run = run
	s.round = round
	s.jokers = s.restoreEffects(snap.Jokers, effects.Passive)
	s.scripts = s.restoreEffects(snap.Scripts, effects.Consumable)
	s.offers = offers
	s.transcript, s.roundLog = nil, nil
	for _, app := range s.apps {
		app.Halt()
	}
	s.status(effects.KindSystem, effects.SeverityInfo, "save_loaded", map[string]any{
		"level": run.Level, "round": run.Round,
	})
	return true
}

// playable reports whether an in-progress round can accept another guess:
// the live bounds sit inside the absolute range and still hold the answer.
func playable(snap *Snapshot) bool {
	if snap.MaxAttempts < 1 || snap.Attempts >= snap.MaxAttempts {
		return false
	}
	return snap.AbsoluteMin <= snap.Min && snap.Min <= snap.MysteryNumber &&
		snap.MysteryNumber <= snap.Max && snap.Max <= snap.AbsoluteMax
}

// restoreEffects re-attaches catalog behavior. Unknown ids and entries of
// the wrong kind are dropped.
func (s *Session) restoreEffects(list []SavedEffect, kind effects.Kind) []*effects.Instance {
	var out []*effects.Instance
	for _, se := range list {
		t, ok := s.catalog.Lookup(se.ID)
		if !ok || t.Kind != kind {
			s.logger.Printf("dropping stale effect %q from save", se.ID)
			continue
		}
		inst, _ := s.catalog.Instantiate(se.ID, max(1, se.Quantity), se.Modifier)
		out = append(out, inst)
	}
	return out
}
