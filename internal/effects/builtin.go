package effects

import (
	"math"

	"github.com/shopspring/decimal"
)

// Builtin returns the stock content pack. Each call builds fresh templates.
func Builtin() []*Template {
	return []*Template{
		// range shapers
		{
			ID: "overclock", Kind: Passive, Price: price(6),
			Trigger: GetMaxRange,
			Execute: func(_ *HookContext, v float64, _ *Instance) Result { return Fold(v + 50) },
		},
		{
			ID: "offset_driver", Kind: Passive, Price: price(4), MaxQuantity: 3,
			Trigger: GetMinRange,
			Execute: func(_ *HookContext, v float64, _ *Instance) Result { return Fold(v + 100) },
		},
		{
			ID: "even_steven", Kind: Passive, Price: price(5), MaxQuantity: 1,
			Trigger: RngValidation,
			Execute: func(_ *HookContext, v float64, _ *Instance) Result {
				return Accept(int(v)%2 == 0)
			},
		},
		{
			ID: "decimator", Kind: Passive, Price: price(7), MaxQuantity: 1,
			Trigger: RngValidation,
			Execute: func(_ *HookContext, v float64, _ *Instance) Result {
				return Accept(int(v)%10 == 0)
			},
		},

		// payout
		{
			ID: "lucky_charm", Kind: Passive, Price: price(4),
			Trigger: CalculateGain,
			Execute: func(_ *HookContext, v float64, _ *Instance) Result { return Fold(v + 10) },
		},
		{
			ID: "doubler", Kind: Passive, Price: price(8), MaxQuantity: 1,
			Trigger: CalculateGain,
			Execute: func(_ *HookContext, v float64, _ *Instance) Result { return Fold(v * 2) },
		},
		{
			ID: "learning_ai", Kind: Passive, Price: price(7), MaxQuantity: 1,
			Trigger: CalculateGain,
			Execute: func(_ *HookContext, v float64, inst *Instance) Result {
				return Fold(v * (1 + inst.Modifier))
			},
			Hooks: map[Trigger]HookFunc{
				OnWin: func(_ *HookContext, _ float64, inst *Instance) Result {
					inst.Modifier = math.Round((inst.Modifier+0.1)*100) / 100
					return Log("learning_ai_upgrade").With("modifier", inst.Modifier)
				},
			},
		},
		{
			ID: "collector", Kind: Passive, Price: price(5), MaxQuantity: 1,
			Trigger: CalculateGain,
			Execute: func(_ *HookContext, v float64, inst *Instance) Result {
				return Fold(v + inst.Modifier)
			},
			Hooks: map[Trigger]HookFunc{
				OnBuy: func(hc *HookContext, _ float64, inst *Instance) Result {
					if hc.ItemID == inst.TemplateID {
						return Pass()
					}
					inst.Modifier++
					return Log("collector_grew").With("bonus", inst.Modifier)
				},
			},
		},

		// economy
		{
			ID: "landlord_friend", Kind: Passive, Price: price(6), MaxQuantity: 1,
			Trigger: CalculateRent,
			Execute: func(_ *HookContext, v float64, _ *Instance) Result { return Fold(v * 0.8) },
		},
		{
			ID: "coupon", Kind: Passive, Price: price(3), MaxQuantity: 2,
			Trigger: CalculateShopPrice,
			Execute: func(_ *HookContext, v float64, _ *Instance) Result {
				return Fold(math.Max(1, v-1))
			},
		},
		{
			ID: "extra_slot", Kind: Passive, Price: price(5), MaxQuantity: 2,
			Trigger: GetMaxJokerSlots,
			Execute: func(_ *HookContext, v float64, _ *Instance) Result { return Fold(v + 1) },
		},
		{
			ID: "seed_money", Kind: Passive, Price: price(3), MaxQuantity: 1,
			Trigger: OnRunStart,
			Execute: func(hc *HookContext, _ float64, _ *Instance) Result {
				hc.Run.AddCash(10)
				return Say("seed_money_paid").With("amount", 10)
			},
		},
		{
			ID: "promoter", Kind: Passive, Price: price(5), MaxQuantity: 1,
			Trigger: OnLevelStart,
			Execute: func(hc *HookContext, _ float64, _ *Instance) Result {
				bonus := int64(hc.Run.Level * 2)
				hc.Run.AddCash(bonus)
				return Log("promoter_bonus").With("amount", bonus)
			},
		},
		{
			ID: "insurance", Kind: Passive, Price: price(4), MaxQuantity: 1,
			Trigger: OnLostRound,
			Execute: func(hc *HookContext, _ float64, _ *Instance) Result {
				hc.Run.AddCash(5)
				return Say("insurance_paid").With("amount", 5)
			},
		},
		{
			ID: "tip_jar", Kind: Passive, Price: price(3),
			Trigger: OnMiss,
			Execute: func(hc *HookContext, _ float64, _ *Instance) Result {
				hc.Run.AddCash(1)
				return Log("tip_jar_tip")
			},
		},
		{
			ID: "pawn_shop", Kind: Passive, Price: price(4), MaxQuantity: 1,
			Trigger: OnSell,
			Execute: func(hc *HookContext, _ float64, _ *Instance) Result {
				hc.Run.AddCash(2)
				return Log("pawn_shop_bonus").With("item", hc.ItemID)
			},
		},
		{
			ID: "script_kiddie", Kind: Passive, Price: price(5), MaxQuantity: 1,
			Trigger: OnScriptUse,
			Execute: func(hc *HookContext, _ float64, _ *Instance) Result {
				hc.Round.NextGuessBonus += 5
				return Log("script_kiddie_bonus")
			},
		},

		// round rules
		{
			ID: "fuzzy_logic", Kind: Passive, Price: price(6), MaxQuantity: 3,
			Trigger: GetTolerance,
			Execute: func(_ *HookContext, v float64, _ *Instance) Result { return Fold(v + 1) },
		},
		{
			ID: "patience", Kind: Passive, Price: price(6), MaxQuantity: 2,
			Trigger: OnRoundStart,
			Execute: func(hc *HookContext, _ float64, _ *Instance) Result {
				hc.Round.MaxAttempts++
				return Log("patience_attempt")
			},
		},
		{
			ID: "sonar", Kind: Passive, Price: price(4), MaxQuantity: 1,
			Trigger: OnGuess,
			Execute: func(hc *HookContext, _ float64, _ *Instance) Result {
				d := hc.Guess - hc.Round.MysteryNumber
				if d < 0 {
					d = -d
				}
				return Log("sonar_ping").With("far", d > hc.Round.BurningThreshold*4)
			},
		},
		{
			ID: "firewall", Kind: Passive, Price: price(5), MaxQuantity: 1,
			Traits: TraitMissShield,
		},
		{
			ID: "credit_line", Kind: Passive, Price: price(6), MaxQuantity: 1,
			Traits: TraitDebtTolerant,
		},
		{
			ID: "antiboss", Kind: Passive, Price: price(9), MaxQuantity: 1,
			Traits: TraitBossImmune,
		},

		// scripts
		{
			ID: "bonus_chip", Kind: Consumable, Price: price(3),
			Trigger: Use,
			Execute: func(hc *HookContext, _ float64, _ *Instance) Result {
				hc.Round.NextGuessBonus += 25
				return Say("bonus_chip_used").With("bonus", 25)
			},
		},
		{
			ID: "extra_life", Kind: Consumable, Price: price(4),
			Trigger: Use,
			Execute: func(hc *HookContext, _ float64, _ *Instance) Result {
				hc.Round.MaxAttempts++
				return Say("extra_life_used")
			},
		},
		{
			ID: "binary_probe", Kind: Consumable, Price: price(4),
			Trigger: Use,
			Execute: func(hc *HookContext, _ float64, _ *Instance) Result {
				r := hc.Round
				mid := r.Min + (r.Max-r.Min)/2
				if r.MysteryNumber <= mid {
					r.Max = mid
				} else {
					r.Min = mid + 1
				}
				return Say("binary_probe_used").With("min", r.Min).With("max", r.Max)
			},
		},
		{
			ID: "quantum_flip", Kind: Consumable, Price: price(5),
			Trigger: Use,
			Execute: quantumFlip,
		},
		{
			ID: "reverse", Kind: Consumable, Price: price(3),
			Trigger: Use,
			Execute: func(hc *HookContext, _ float64, _ *Instance) Result {
				if hc.Round.ReverseGuessed {
					return Accept(false).Say("reverse_spent")
				}
				hc.Round.ReverseGuessed = true
				if hc.Round.MysteryNumber%2 == 0 {
					return Say("reverse_even")
				}
				return Say("reverse_odd")
			},
		},
		{
			ID: "boss_pass", Kind: Consumable, Price: price(8),
			Trigger: Use,
			Execute: func(hc *HookContext, _ float64, _ *Instance) Result {
				hc.Run.BossBlocked = true
				hc.Round.BossEffect = ""
				return Say("boss_pass_used")
			},
		},
	}
}

// quantumFlip redraws the mystery number inside the live bounds, once per
// round, honoring rng_validation.
func quantumFlip(hc *HookContext, _ float64, _ *Instance) Result {
	r := hc.Round
	if r.QuantumChanged {
		return Accept(false).Say("quantum_spent")
	}
	size := r.Max - r.Min + 1
	for i := 0; i < quantumDraws; i++ {
		c := r.Min + hc.Rand.Intn(size)
		if hc.Valid(c) {
			r.MysteryNumber = c
			r.QuantumChanged = true
			return Say("quantum_flipped")
		}
	}
	return Accept(false).Say("quantum_failed")
}

const quantumDraws = 256

// DefaultCatalog returns a catalog of the builtin pack.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(Builtin()...)
	if err != nil {
		panic(err)
	}
	return c
}

func price(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}
