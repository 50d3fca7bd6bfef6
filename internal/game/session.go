package game

import (
	"fmt"
	"io"
	"log"

	"github.com/shopspring/decimal"

	"github.com/MJE43/guessrun/internal/effects"
	"github.com/MJE43/guessrun/internal/engine"
	"github.com/MJE43/guessrun/internal/state"
)

// Options configures a Session. Zero fields take defaults.
type Options struct {
	Tuning    *Tuning
	Catalog   *effects.Catalog
	Arcs      []*Arc
	Shop      ShopSystem
	Trading   MiniApp
	Antivirus MiniApp
	Thermal   ThermalMonitor
	Logger    *log.Logger

	// Seeds fixes the random stream; nil draws fresh seeds per run.
	Seeds *engine.Seeds
	// StartingJokers are granted at run start, before onRunStart fires.
	StartingJokers []string
}

// Session is the run context of one player. Every method runs to
// completion synchronously; a Session must not be used from two goroutines
// at once.
type Session struct {
	tuning  Tuning
	catalog *effects.Catalog
	arcs    *ArcScheduler
	ranges  *RangeGenerator
	shop    ShopSystem
	apps    map[string]MiniApp
	thermal ThermalMonitor
	logger  *log.Logger

	seeds    *engine.Seeds
	starting []string

	run     *state.Run
	round   *state.Round
	jokers  []*effects.Instance
	scripts []*effects.Instance
	offers  []ShopItem
	rng     *engine.Source

	transcript []effects.Event
	roundLog   []effects.Event
	listeners  map[int]func(effects.Event)
	nextSub    int
}

// NewSession creates an idle session. Call StartRun to begin.
func NewSession(opts Options) (*Session, error) {
	t := DefaultTuning()
	if opts.Tuning != nil {
		t = *opts.Tuning
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}

	cat := opts.Catalog
	if cat == nil {
		cat = effects.DefaultCatalog()
	}
	arcDefs := opts.Arcs
	if arcDefs == nil {
		arcDefs = DefaultArcs()
	}
	arcs, err := NewArcScheduler(arcDefs)
	if err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}
	for _, id := range opts.StartingJokers {
		if _, ok := cat.Lookup(id); !ok {
			return nil, fmt.Errorf("game: unknown starting joker %q", id)
		}
	}

	s := &Session{
		tuning:   t,
		catalog:  cat,
		arcs:     arcs,
		ranges:   NewRangeGenerator(t),
		shop:     opts.Shop,
		thermal:  opts.Thermal,
		logger:   opts.Logger,
		seeds:    opts.Seeds,
		starting: opts.StartingJokers,
		apps: map[string]MiniApp{
			AppTrading:       opts.Trading,
			AppAntivirus:     opts.Antivirus,
			AppSystemMonitor: &idleApp{},
		},
		listeners: make(map[int]func(effects.Event)),
	}
	if s.shop == nil {
		s.shop = NewStandardShop(t)
	}
	if s.thermal == nil {
		s.thermal = targetThermal{target: t.ThermalTarget}
	}
	if s.apps[AppTrading] == nil {
		s.apps[AppTrading] = &idleApp{}
	}
	if s.apps[AppAntivirus] == nil {
		s.apps[AppAntivirus] = &idleApp{}
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard, "", 0)
	}

	s.run = state.NewRun(decimal.Zero, decimal.Zero, t.MaxRounds)
	s.round = &state.Round{History: []int{}}
	return s, nil
}

// Catalog returns the catalog the session instantiates effects from.
func (s *Session) Catalog() *effects.Catalog { return s.catalog }

// Run returns the live run record. Callers must treat it as read-only.
func (s *Session) Run() *state.Run { return s.run }

// Round returns the live round record. Callers must treat it as read-only.
func (s *Session) Round() *state.Round { return s.round }

// State returns the current state machine position.
func (s *Session) State() state.GameState { return s.run.State }

// Jokers returns the owned passives in acquisition order.
func (s *Session) Jokers() []*effects.Instance { return s.jokers }

// Scripts returns the owned consumables in acquisition order.
func (s *Session) Scripts() []*effects.Instance { return s.scripts }

// Shop returns the current offers.
func (s *Session) Shop() []ShopItem { return s.offers }

// Transcript returns the persistent event log, oldest first.
func (s *Session) Transcript() []effects.Event { return s.transcript }

// RoundLog returns the events emitted during the current round.
func (s *Session) RoundLog() []effects.Event { return s.roundLog }

// Subscribe registers fn for every emitted event and returns a function
// that removes it. fn runs synchronously inside the emitting call.
func (s *Session) Subscribe(fn func(effects.Event)) func() {
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	return func() { delete(s.listeners, id) }
}

func (s *Session) hookContext() *effects.HookContext {
	return &effects.HookContext{
		Run:   s.run,
		Round: s.round,
		Rand:  s.rng,
		Owned: s.jokers,
	}
}

// emit records ev in the transcript and round log; non-log events also
// become the round status.
func (s *Session) emit(events ...effects.Event) {
	for _, ev := range events {
		if ev.Severity == "" {
			ev.Severity = effects.SeverityInfo
		}
		s.transcript = append(s.transcript, ev)
		if n := s.tuning.TranscriptSize; n > 0 && len(s.transcript) > n {
			s.transcript = s.transcript[len(s.transcript)-n:]
		}
		s.roundLog = append(s.roundLog, ev)
		if !ev.LogOnly() {
			s.round.Status = ev.Key
		}
		s.logger.Printf("%s %s %s source=%s payload=%v", ev.Kind, ev.Severity, ev.Key, ev.Source, ev.Payload)
		for _, fn := range s.listeners {
			fn(ev)
		}
	}
}

func (s *Session) status(kind effects.EventKind, sev effects.Severity, key string, payload map[string]any) {
	s.emit(effects.Event{Kind: kind, Severity: sev, Key: key, Payload: payload})
}

// StartRun resets the run, lays out the arc queue and starts the first
// round.
func (s *Session) StartRun() {
	seeds := engine.RandomSeeds()
	if s.seeds != nil {
		seeds = *s.seeds
	}
	s.rng = engine.NewSource(seeds, 0, 0)

	s.run = state.NewRun(
		decimal.NewFromInt(s.tuning.StartingCash),
		decimal.NewFromInt(s.tuning.BaseRent),
		s.tuning.MaxRounds,
	)
	s.round = &state.Round{History: []int{}}
	s.jokers, s.scripts, s.offers = nil, nil, nil
	s.transcript, s.roundLog = nil, nil

	for _, id := range s.starting {
		if inst, ok := s.catalog.Instantiate(id, 1, 0); ok {
			s.jokers = append(s.jokers, inst)
		}
	}

	s.arcs.Start(s.run, s.rng)
	s.logger.Printf("run started seeds=%s/%s arcs=%v", seeds.Server, seeds.Client, s.run.ArcQueue)

	s.emit(effects.Broadcast(effects.OnRunStart, s.jokers, s.hookContext())...)
	s.StartRound()
}

// StartRound is the entry action of every round: it applies the thermal
// penalty, regenerates the range, fires onRoundStart and resolves the boss.
func (s *Session) StartRound() {
	forfeit := s.applyThermal()

	s.round = &state.Round{History: []int{}, MaxAttempts: s.tuning.BaseAttempts}
	s.roundLog = nil
	s.run.State = state.StatePlaying
	s.run.ActiveApp = ""

	hc := s.hookContext()
	rr, events := s.ranges.Generate(s.jokers, hc)
	s.round.AbsoluteMin, s.round.AbsoluteMax = rr.Min, rr.Max
	s.round.Min, s.round.Max = rr.Min, rr.Max
	s.round.MysteryNumber = rr.MysteryNumber
	s.round.BurningThreshold = rr.BurningThreshold
	if rr.Conflict {
		s.logger.Printf("rng constraints conflict, fallback picked %d", rr.MysteryNumber)
	}
	s.emit(events...)

	s.emit(effects.Broadcast(effects.OnRoundStart, s.jokers, hc)...)

	boss, announce := s.arcs.ResolveBoss(s.run, s.jokers)
	if boss != nil {
		s.round.BossEffect = boss.Effect
		if boss.Effect == BossSqueeze {
			s.round.MaxAttempts = max(1, s.round.MaxAttempts-1)
		}
	}
	if forfeit && s.round.MaxAttempts > 1 {
		s.round.Attempts = 1
		s.status(effects.KindSystem, effects.SeverityWarn, "overheat_forfeit", map[string]any{"heat": s.tuning.OverheatLimit})
	}

	if boss != nil && announce {
		s.status(effects.KindBoss, effects.SeverityWarn, "boss_"+boss.ID, map[string]any{
			"name": boss.NameKey, "description": boss.DescKey, "effect": boss.Effect,
		})
		return
	}
	s.status(effects.KindStatus, effects.SeverityInfo, "round_start", map[string]any{
		"level": s.run.Level, "round": s.run.Round, "min": s.round.Min, "max": s.round.Max,
	})
}

// applyThermal accrues overheat from uncalibrated sliders once the system
// monitor is unlocked. It reports whether the limit was hit.
func (s *Session) applyThermal() bool {
	if !s.run.SystemMonitorUnlocked {
		return false
	}
	s.run.Heat += s.thermal.Overheat(s.run.SystemSliders, s.run.Level)
	if s.run.Heat < s.tuning.OverheatLimit {
		return false
	}
	s.run.Heat = 0
	return true
}

// NextAction advances out of a resolved round, the browser, a level
// transition or an arc intro.
func (s *Session) NextAction() error {
	switch s.run.State {
	case state.StateWon, state.StateLostRound:
		if s.run.FinalRound() {
			s.settleRent()
			return nil
		}
		if s.run.State == state.StateWon {
			s.enterBrowser()
			return nil
		}
		s.run.Round++
		s.StartRound()
	case state.StateBrowser, state.StateShop:
		s.run.Round++
		s.StartRound()
	case state.StateLevelTransition:
		s.startLevel()
	case state.StateArcIntro:
		s.StartRound()
	default:
		return ErrWrongState
	}
	return nil
}

func (s *Session) enterBrowser() {
	s.run.State = state.StateBrowser
	s.run.RerollCount = 0
	s.offers = s.shop.Generate(s.catalog, s.jokers, s.scripts, s.hookContext())
	s.status(effects.KindStatus, effects.SeverityInfo, "browser_open", nil)
}

// settleRent charges rent at the end of a level. Without a debt-tolerant
// passive, a short purse ends the run.
func (s *Session) settleRent() {
	due, events := effects.Dispatch(effects.CalculateRent, s.run.Rent.InexactFloat64(), s.jokers, s.hookContext())
	s.emit(events...)
	rent := decimal.NewFromFloat(due).Floor()
	if rent.IsNegative() {
		rent = decimal.Zero
	}

	if s.run.Cash.LessThan(rent) && !effects.HasTrait(s.jokers, effects.TraitDebtTolerant) {
		s.run.State = state.StateGameOver
		s.status(effects.KindEconomy, effects.SeverityError, "rent_unpaid", map[string]any{
			"rent": rent.String(), "cash": s.run.Cash.String(),
		})
		return
	}

	s.run.Cash = s.run.Cash.Sub(rent)
	s.status(effects.KindEconomy, effects.SeverityInfo, "rent_paid", map[string]any{"rent": rent.String()})

	if arc, ok := s.arcs.Lookup(s.run.CurrentArc); ok {
		if ev, has := arc.MonthEvents[s.run.MonthInArc]; has && ev.Outro != "" {
			s.status(effects.KindLog, effects.SeverityInfo, ev.Outro, nil)
		}
	}
	if done := s.arcs.Advance(s.run, s.rng); done != nil && done.ID != StandardArcID {
		s.status(effects.KindSystem, effects.SeveritySuccess, "arc_complete", map[string]any{
			"arc": done.ID, "unlock": string(done.Unlock),
		})
	}
	s.run.State = state.StateLevelTransition
}

// startLevel opens the next month. A fresh story arc shows its intro first.
func (s *Session) startLevel() {
	s.run.Level++
	s.run.Round = 1
	s.run.Rent = s.run.Rent.Add(decimal.NewFromInt(s.tuning.RentStep))
	s.round = &state.Round{History: []int{}}
	s.roundLog = nil

	if !s.run.AntivirusUnlocked && s.run.AntivirusUnlockLevel > 0 && s.run.Level >= s.run.AntivirusUnlockLevel {
		s.run.AntivirusUnlocked = true
		s.status(effects.KindSystem, effects.SeveritySuccess, "antivirus_unlocked", nil)
	}

	s.emit(effects.Broadcast(effects.OnLevelStart, s.jokers, s.hookContext())...)

	arc, _ := s.arcs.Lookup(s.run.CurrentArc)
	if arc != nil {
		if ev, has := arc.MonthEvents[s.run.MonthInArc]; has && ev.Intro != "" {
			s.status(effects.KindLog, effects.SeverityInfo, ev.Intro, nil)
		}
	}
	if arc != nil && arc.ID != StandardArcID && s.run.MonthInArc == 1 && len(arc.IntroSequence) > 0 {
		s.run.State = state.StateArcIntro
		s.status(effects.KindStatus, effects.SeverityInfo, "arc_intro", map[string]any{
			"arc": arc.ID, "sequence": arc.IntroSequence,
		})
		return
	}
	s.StartRound()
}
