package game

import (
	"fmt"

	"github.com/MJE43/guessrun/internal/effects"
	"github.com/MJE43/guessrun/internal/engine"
	"github.com/MJE43/guessrun/internal/state"
)

// Boss effect tags understood by the round rules.
const (
	BossMeltdown  = "meltdown"  // no burning qualifier on hints
	BossBlind     = "blind"     // live bounds hidden from the player
	BossSqueeze   = "squeeze"   // one attempt fewer
	BossInflation = "inflation" // shop prices raised
)

// Boss perturbs the rules of the rounds it is active in.
type Boss struct {
	ID      string `json:"id" yaml:"id"`
	NameKey string `json:"nameKey" yaml:"name_key"`
	DescKey string `json:"descKey" yaml:"desc_key"`
	Effect  string `json:"effect" yaml:"effect"`
	// Persistent bosses hold for every round of their arc.
	Persistent bool `json:"persistent" yaml:"persistent"`
}

// Unlock is the long-run reward granted when an arc completes.
type Unlock string

const (
	UnlockNone          Unlock = ""
	UnlockTrading       Unlock = "trading"
	UnlockAntivirus     Unlock = "antivirus"
	UnlockSystemMonitor Unlock = "system_monitor"
)

// MonthEvent carries the narrative keys shown around one month.
type MonthEvent struct {
	Intro string `json:"intro,omitempty" yaml:"intro"`
	Outro string `json:"outro,omitempty" yaml:"outro"`
}

// Arc is a multi-month story chapter.
type Arc struct {
	ID            string             `json:"id" yaml:"id"`
	Duration      int                `json:"duration" yaml:"duration"`
	IntroSequence []string           `json:"introSequence,omitempty" yaml:"intro_sequence"`
	MonthEvents   map[int]MonthEvent `json:"monthEvents,omitempty" yaml:"month_events"`
	Bosses        map[int]*Boss      `json:"bosses,omitempty" yaml:"bosses"`
	Unlock        Unlock             `json:"unlock,omitempty" yaml:"unlock"`
	Tutorial      bool               `json:"tutorial,omitempty" yaml:"tutorial"`
}

// StandardArcID is the queue sentinel for filler arcs.
const StandardArcID = "standard"

// StandardArc is the neutral one-month filler.
var StandardArc = &Arc{ID: StandardArcID, Duration: 1}

// DefaultArcs returns the stock story arcs.
func DefaultArcs() []*Arc {
	return []*Arc{
		{
			ID: "tutorial", Duration: 1, Tutorial: true,
			IntroSequence: []string{"tutorial_intro_1", "tutorial_intro_2", "tutorial_intro_3"},
		},
		{
			ID: "ransomware", Duration: 2, Unlock: UnlockAntivirus,
			IntroSequence: []string{"ransomware_intro_1", "ransomware_intro_2"},
			MonthEvents:   map[int]MonthEvent{2: {Intro: "ransomware_month2", Outro: "ransomware_outro"}},
			Bosses: map[int]*Boss{
				1: {ID: "cryptolocker", NameKey: "boss_cryptolocker", DescKey: "boss_cryptolocker_desc", Effect: BossBlind, Persistent: true},
			},
		},
		{
			ID: "audit", Duration: 2, Unlock: UnlockTrading,
			IntroSequence: []string{"audit_intro_1"},
			Bosses: map[int]*Boss{
				2: {ID: "auditor", NameKey: "boss_auditor", DescKey: "boss_auditor_desc", Effect: BossSqueeze},
			},
		},
		{
			ID: "overclock", Duration: 2, Unlock: UnlockSystemMonitor,
			IntroSequence: []string{"overclock_intro_1"},
			Bosses: map[int]*Boss{
				1: {ID: "meltdown", NameKey: "boss_meltdown", DescKey: "boss_meltdown_desc", Effect: BossMeltdown},
				2: {ID: "thermal_runaway", NameKey: "boss_thermal_runaway", DescKey: "boss_thermal_runaway_desc", Effect: BossMeltdown},
			},
		},
		{
			ID: "inflation", Duration: 1,
			IntroSequence: []string{"inflation_intro_1"},
			Bosses: map[int]*Boss{
				1: {ID: "central_bank", NameKey: "boss_central_bank", DescKey: "boss_central_bank_desc", Effect: BossInflation, Persistent: true},
			},
		},
	}
}

// ArcScheduler owns the arc catalog and the queue rules.
type ArcScheduler struct {
	arcs     map[string]*Arc
	bosses   map[string]*Boss
	tutorial *Arc
	story    []*Arc
}

// NewArcScheduler indexes arcs. At most one may be the tutorial.
func NewArcScheduler(arcs []*Arc) (*ArcScheduler, error) {
	s := &ArcScheduler{
		arcs:   map[string]*Arc{StandardArcID: StandardArc},
		bosses: make(map[string]*Boss),
	}
	for _, a := range arcs {
		if a == nil || a.ID == "" || a.ID == StandardArcID {
			return nil, fmt.Errorf("arcs: invalid arc definition")
		}
		if _, dup := s.arcs[a.ID]; dup {
			return nil, fmt.Errorf("arcs: duplicate arc %s", a.ID)
		}
		if a.Duration < 1 {
			return nil, fmt.Errorf("arcs: %s has duration %d", a.ID, a.Duration)
		}
		s.arcs[a.ID] = a
		for _, b := range a.Bosses {
			if b != nil {
				s.bosses[b.ID] = b
			}
		}
		if a.Tutorial {
			if s.tutorial != nil {
				return nil, fmt.Errorf("arcs: more than one tutorial")
			}
			s.tutorial = a
			continue
		}
		s.story = append(s.story, a)
	}
	return s, nil
}

// Lookup returns the arc for id, including the standard filler.
func (s *ArcScheduler) Lookup(id string) (*Arc, bool) {
	a, ok := s.arcs[id]
	return a, ok
}

// Boss returns a boss by id.
func (s *ArcScheduler) Boss(id string) (*Boss, bool) {
	b, ok := s.bosses[id]
	return b, ok
}

// BuildQueue lays out [tutorial,] standard, arc, standard, arc, ..., standard
// with the story arcs shuffled.
func (s *ArcScheduler) BuildQueue(includeTutorial bool, rng *engine.Source) []string {
	story := make([]*Arc, len(s.story))
	copy(story, s.story)
	rng.Shuffle(len(story), func(i, j int) { story[i], story[j] = story[j], story[i] })

	queue := make([]string, 0, 2*len(story)+2)
	if includeTutorial && s.tutorial != nil {
		queue = append(queue, s.tutorial.ID)
	}
	for _, a := range story {
		queue = append(queue, StandardArcID, a.ID)
	}
	return append(queue, StandardArcID)
}

// Start lays out a fresh queue on run and enters its first arc.
func (s *ArcScheduler) Start(run *state.Run, rng *engine.Source) {
	run.ArcQueue = s.BuildQueue(true, rng)
	s.enter(run)
}

func (s *ArcScheduler) enter(run *state.Run) {
	run.CurrentArc = run.ArcQueue[0]
	run.MonthInArc = 1
	run.MonthBossPersistent = ""
	run.MonthBossAnnounced = false
	run.BossBlocked = false
}

// Advance moves the run one month forward. When the current arc runs out
// its unlock is recorded, it is popped, and the next arc is entered; an
// exhausted queue is rebuilt without the tutorial. It returns the arc that
// completed, if any.
func (s *ArcScheduler) Advance(run *state.Run, rng *engine.Source) *Arc {
	cur, ok := s.arcs[run.CurrentArc]
	if !ok {
		cur = StandardArc
	}

	run.MonthInArc++
	if run.MonthInArc <= cur.Duration {
		return nil
	}

	s.applyUnlock(run, cur)
	if cur.Tutorial {
		run.TutorialDone = true
	}
	if len(run.ArcQueue) > 0 {
		run.ArcQueue = run.ArcQueue[1:]
	}
	if len(run.ArcQueue) == 0 {
		run.ArcQueue = s.BuildQueue(false, rng)
	}
	s.enter(run)
	return cur
}

func (s *ArcScheduler) applyUnlock(run *state.Run, a *Arc) {
	switch a.Unlock {
	case UnlockTrading:
		run.TradingUnlocked = true
	case UnlockAntivirus:
		if !run.AntivirusUnlocked && run.AntivirusUnlockLevel == 0 {
			// available one month after the level that completed the arc
			run.AntivirusUnlockLevel = run.Level + 2
		}
	case UnlockSystemMonitor:
		run.SystemMonitorUnlocked = true
	}
}

// ResolveBoss decides which boss, if any, rules the current round, and
// whether it should be announced. Persistent bosses are picked once per
// arc and announced once; other bosses only appear on the final round of
// their month. A boss-immune passive blocks bosses for the rest of the arc.
func (s *ArcScheduler) ResolveBoss(run *state.Run, owned []*effects.Instance) (*Boss, bool) {
	if run.BossBlocked {
		return nil, false
	}
	if effects.HasTrait(owned, effects.TraitBossImmune) {
		run.BossBlocked = true
		return nil, false
	}

	if run.MonthBossPersistent != "" {
		b, ok := s.bosses[run.MonthBossPersistent]
		if !ok {
			return nil, false
		}
		announce := !run.MonthBossAnnounced
		run.MonthBossAnnounced = true
		return b, announce
	}

	arc, ok := s.arcs[run.CurrentArc]
	if !ok {
		return nil, false
	}
	b := arc.Bosses[run.MonthInArc]
	if b == nil {
		return nil, false
	}
	if b.Persistent {
		run.MonthBossPersistent = b.ID
		run.MonthBossAnnounced = true
		return b, true
	}
	if run.FinalRound() {
		return b, true
	}
	return nil, false
}
