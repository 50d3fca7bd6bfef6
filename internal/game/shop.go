package game

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/guessrun/internal/effects"
)

// ShopItem is one offer in the shop.
type ShopItem struct {
	ID    string          `json:"id"`
	Kind  effects.Kind    `json:"kind"`
	Price decimal.Decimal `json:"price"`
	Sold  bool            `json:"sold"`
}

// ShopSystem filters the catalog into offers and enforces capacity. The
// session owns cash and the owned-instance lists.
type ShopSystem interface {
	Generate(cat *effects.Catalog, jokers, scripts []*effects.Instance, hc *effects.HookContext) []ShopItem
	CanBuy(tmpl *effects.Template, jokers, scripts []*effects.Instance, hc *effects.HookContext) error
	RerollCost(rerolls int) decimal.Decimal
}

// StandardShop is the stock shop.
type StandardShop struct {
	tuning Tuning
}

// NewStandardShop creates a shop for the given tuning.
func NewStandardShop(t Tuning) *StandardShop {
	return &StandardShop{tuning: t}
}

// Generate draws distinct passives and consumables that are not maxed out.
func (s *StandardShop) Generate(cat *effects.Catalog, jokers, scripts []*effects.Instance, hc *effects.HookContext) []ShopItem {
	var items []ShopItem
	pick := func(pool []*effects.Template, n int) {
		open := make([]*effects.Template, 0, len(pool))
		for _, t := range pool {
			if !maxedOut(t, jokers, scripts) {
				open = append(open, t)
			}
		}
		for i := 0; i < n && len(open) > 0; i++ {
			j := hc.Rand.Intn(len(open))
			t := open[j]
			open = append(open[:j], open[j+1:]...)
			items = append(items, ShopItem{ID: t.ID, Kind: t.Kind, Price: s.Price(t, jokers, hc)})
		}
	}
	pick(cat.Passives(), s.tuning.ShopPassives)
	pick(cat.Consumables(), s.tuning.ShopScripts)
	return items
}

// Price is the template price folded through calculateShopPrice, raised
// under an inflation boss and floored at zero.
func (s *StandardShop) Price(t *effects.Template, jokers []*effects.Instance, hc *effects.HookContext) decimal.Decimal {
	base := t.Price.InexactFloat64()
	if hc.Round != nil && hc.Round.BossEffect == BossInflation {
		base *= s.tuning.InflationRatio
	}
	v, _ := effects.Dispatch(effects.CalculateShopPrice, base, jokers, hc)
	return decimal.NewFromFloat(math.Max(0, math.Floor(v)))
}

// CanBuy checks quantity caps and slot capacity.
func (s *StandardShop) CanBuy(t *effects.Template, jokers, scripts []*effects.Instance, hc *effects.HookContext) error {
	if maxedOut(t, jokers, scripts) {
		return ErrSoldOut
	}
	if t.Kind == effects.Consumable {
		if len(scripts) >= s.tuning.ScriptSlots {
			return ErrSlotsFull
		}
		return nil
	}
	if find(jokers, t.ID) != nil {
		return nil // stacks onto the owned instance
	}
	slots, _ := effects.Dispatch(effects.GetMaxJokerSlots, float64(s.tuning.BaseJokerSlots), jokers, hc)
	if len(jokers) >= int(math.Floor(slots)) {
		return ErrSlotsFull
	}
	return nil
}

// RerollCost grows by one for every reroll in the current visit.
func (s *StandardShop) RerollCost(rerolls int) decimal.Decimal {
	return decimal.NewFromInt(s.tuning.RerollBase + int64(rerolls))
}

func maxedOut(t *effects.Template, jokers, scripts []*effects.Instance) bool {
	if t.MaxQuantity <= 0 {
		return false
	}
	return ownedCount(t, jokers, scripts) >= t.MaxQuantity
}

func ownedCount(t *effects.Template, jokers, scripts []*effects.Instance) int {
	if t.Kind == effects.Consumable {
		n := 0
		for _, inst := range scripts {
			if inst.TemplateID == t.ID {
				n++
			}
		}
		return n
	}
	if inst := find(jokers, t.ID); inst != nil {
		return inst.Count()
	}
	return 0
}

func find(owned []*effects.Instance, id string) *effects.Instance {
	for _, inst := range owned {
		if inst.TemplateID == id {
			return inst
		}
	}
	return nil
}
