package game

import (
	"math"

	"github.com/MJE43/guessrun/internal/effects"
)

// RoundRange is the generated interval and hidden number for a round.
type RoundRange struct {
	Min              int
	Max              int
	MysteryNumber    int
	BurningThreshold int
	// Conflict is set when no candidate satisfied every constraint.
	Conflict bool
}

// RangeGenerator folds the range triggers and draws the mystery number.
type RangeGenerator struct {
	tuning Tuning
}

// NewRangeGenerator creates a generator for the given tuning.
func NewRangeGenerator(t Tuning) *RangeGenerator {
	return &RangeGenerator{tuning: t}
}

// Generate computes the round interval and picks the mystery number by
// rejection sampling against rng_validation. Sampling is bounded: after
// MaxRngDraws rejections the interval is scanned from a random offset for
// an accepted candidate, and failing that the candidate most constraints
// accept wins. hc.Rand must be set.
func (g *RangeGenerator) Generate(owned []*effects.Instance, hc *effects.HookContext) (RoundRange, []effects.Event) {
	sizeV, events := effects.Dispatch(effects.GetMaxRange, float64(g.tuning.BaseRange), owned, hc)
	minV, more := effects.Dispatch(effects.GetMinRange, float64(g.tuning.BaseOffset), owned, hc)
	events = append(events, more...)

	rangeSize := max(1, int(math.Floor(sizeV)))
	minStart := int(math.Floor(minV))

	rr := RoundRange{
		Min:              minStart,
		Max:              minStart + rangeSize - 1,
		BurningThreshold: g.tuning.BurningThreshold(rangeSize),
	}
	if hc.Round != nil {
		hc.Round.AbsoluteMin, hc.Round.AbsoluteMax = rr.Min, rr.Max
	}

	for i := 0; i < g.tuning.MaxRngDraws; i++ {
		candidate := minStart + hc.Rand.Intn(rangeSize)
		if effects.CheckConstraints(effects.RngValidation, candidate, owned, hc) {
			rr.MysteryNumber = candidate
			return rr, events
		}
	}

	candidate, ok := g.scan(minStart, rangeSize, owned, hc)
	rr.MysteryNumber = candidate
	if !ok {
		rr.Conflict = true
		events = append(events, effects.Event{
			Kind:     effects.KindSystem,
			Severity: effects.SeverityWarn,
			Key:      "rng_conflict",
			Payload:  map[string]any{"min": rr.Min, "max": rr.Max, "picked": candidate},
		})
	}
	return rr, events
}

func (g *RangeGenerator) scan(minStart, rangeSize int, owned []*effects.Instance, hc *effects.HookContext) (int, bool) {
	start := hc.Rand.Intn(rangeSize)
	limit := min(rangeSize, g.tuning.MaxRngScan)

	best, bestVotes := minStart+start, -1
	for i := 0; i < limit; i++ {
		candidate := minStart + (start+i)%rangeSize
		passed, total := effects.ConstraintVotes(effects.RngValidation, candidate, owned, hc)
		if passed == total {
			return candidate, true
		}
		if passed > bestVotes {
			best, bestVotes = candidate, passed
		}
	}
	return best, false
}
