package game

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the numeric knobs of the rules. Zero values in a loaded file
// keep the defaults.
type Tuning struct {
	BaseRange    int     `yaml:"base_range"`
	BaseOffset   int     `yaml:"base_offset"`
	BaseAttempts int     `yaml:"base_attempts"`
	BurningRatio float64 `yaml:"burning_ratio"`
	GainTable    []int   `yaml:"gain_table"`

	MaxRounds    int   `yaml:"max_rounds"`
	StartingCash int64 `yaml:"starting_cash"`
	BaseRent     int64 `yaml:"base_rent"`
	RentStep     int64 `yaml:"rent_step"`

	BaseJokerSlots int     `yaml:"base_joker_slots"`
	ScriptSlots    int     `yaml:"script_slots"`
	ShopPassives   int     `yaml:"shop_passives"`
	ShopScripts    int     `yaml:"shop_scripts"`
	RerollBase     int64   `yaml:"reroll_base"`
	SellRatio      float64 `yaml:"sell_ratio"`
	InflationRatio float64 `yaml:"inflation_ratio"`
	ScanPayout     float64 `yaml:"scan_payout"`

	OverheatLimit  int    `yaml:"overheat_limit"`
	ThermalTarget  [3]int `yaml:"thermal_target"`
	MaxRngDraws    int    `yaml:"max_rng_draws"`
	MaxRngScan     int    `yaml:"max_rng_scan"`
	TranscriptSize int    `yaml:"transcript_size"`
}

// DefaultTuning returns the stock rules.
func DefaultTuning() Tuning {
	return Tuning{
		BaseRange:    100,
		BaseOffset:   0,
		BaseAttempts: 7,
		BurningRatio: 0.05,
		GainTable:    []int{50, 40, 30, 25, 20, 15, 10},

		MaxRounds:    3,
		StartingCash: 10,
		BaseRent:     25,
		RentStep:     15,

		BaseJokerSlots: 5,
		ScriptSlots:    3,
		ShopPassives:   3,
		ShopScripts:    2,
		RerollBase:     5,
		SellRatio:      0.5,
		InflationRatio: 1.5,
		ScanPayout:     0.1,

		OverheatLimit:  100,
		ThermalTarget:  [3]int{40, 60, 50},
		MaxRngDraws:    10000,
		MaxRngScan:     100000,
		TranscriptSize: 200,
	}
}

// LoadTuning reads a YAML tuning file over the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Validate rejects tunings that cannot produce a playable round.
func (t Tuning) Validate() error {
	switch {
	case t.BaseRange < 1:
		return fmt.Errorf("base_range must be positive, got %d", t.BaseRange)
	case t.BaseAttempts < 1:
		return fmt.Errorf("base_attempts must be positive, got %d", t.BaseAttempts)
	case len(t.GainTable) == 0:
		return fmt.Errorf("gain_table must not be empty")
	case t.MaxRounds < 1:
		return fmt.Errorf("max_rounds must be positive, got %d", t.MaxRounds)
	case t.MaxRngDraws < 1 || t.MaxRngScan < 1:
		return fmt.Errorf("rng limits must be positive")
	}
	return nil
}

// GainFor is the base payout for a win on the given attempt (1-based).
// Later attempts than the table covers pay its last entry.
func (t Tuning) GainFor(attempts int) float64 {
	i := attempts - 1
	if i < 0 {
		i = 0
	}
	if i >= len(t.GainTable) {
		i = len(t.GainTable) - 1
	}
	return float64(t.GainTable[i])
}

// BurningThreshold is the distance under which a miss is "burning".
func (t Tuning) BurningThreshold(rangeSize int) int {
	return max(1, int(math.Floor(float64(rangeSize)*t.BurningRatio)))
}
