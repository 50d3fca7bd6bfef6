package game

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/guessrun/internal/effects"
	"github.com/MJE43/guessrun/internal/state"
)

// OpenShop moves from the browser into the shop.
func (s *Session) OpenShop() error {
	if s.run.State != state.StateBrowser {
		return ErrWrongState
	}
	s.run.State = state.StateShop
	s.status(effects.KindStatus, effects.SeverityInfo, "shop_open", nil)
	return nil
}

// BuyItem buys the offer at index. Passives already owned stack onto the
// existing instance; every consumable takes its own slot.
func (s *Session) BuyItem(index int) error {
	if s.run.State != state.StateShop {
		return ErrWrongState
	}
	if index < 0 || index >= len(s.offers) || s.offers[index].Sold {
		s.reject(ErrNoSuchItem)
		return ErrNoSuchItem
	}
	item := &s.offers[index]
	tmpl, ok := s.catalog.Lookup(item.ID)
	if !ok {
		s.reject(ErrNoSuchItem)
		return ErrNoSuchItem
	}
	if s.run.Cash.LessThan(item.Price) {
		s.reject(ErrInsufficientFunds)
		return ErrInsufficientFunds
	}
	hc := s.hookContext()
	if err := s.shop.CanBuy(tmpl, s.jokers, s.scripts, hc); err != nil {
		s.reject(err)
		return err
	}

	s.run.Cash = s.run.Cash.Sub(item.Price)
	item.Sold = true
	if tmpl.Kind == effects.Consumable {
		s.scripts = append(s.scripts, effects.NewInstance(tmpl))
	} else if inst := find(s.jokers, tmpl.ID); inst != nil {
		inst.Quantity = inst.Count() + 1
	} else {
		s.jokers = append(s.jokers, effects.NewInstance(tmpl))
	}

	hc.Owned = s.jokers
	hc.ItemID = tmpl.ID
	s.emit(effects.Broadcast(effects.OnBuy, s.jokers, hc)...)
	s.status(effects.KindEconomy, effects.SeveritySuccess, "item_bought", map[string]any{
		"id": tmpl.ID, "price": item.Price.String(),
	})
	return nil
}

// SellItem sells one unit of an owned passive or consumable for a share of
// its catalog price. onSell fires while the item is still owned.
func (s *Session) SellItem(kind effects.Kind, index int) error {
	if s.run.State != state.StateBrowser && s.run.State != state.StateShop {
		return ErrWrongState
	}
	list := &s.jokers
	if kind == effects.Consumable {
		list = &s.scripts
	}
	if index < 0 || index >= len(*list) {
		s.reject(ErrNoSuchItem)
		return ErrNoSuchItem
	}
	inst := (*list)[index]
	tmpl := inst.Template()
	if tmpl == nil {
		s.reject(ErrNoSuchItem)
		return ErrNoSuchItem
	}

	refund := decimal.NewFromFloat(math.Floor(tmpl.Price.InexactFloat64() * s.tuning.SellRatio))
	hc := s.hookContext()
	hc.ItemID = tmpl.ID
	s.emit(effects.Broadcast(effects.OnSell, s.jokers, hc)...)

	s.run.Cash = s.run.Cash.Add(refund)
	if inst.Count() > 1 {
		inst.Quantity = inst.Count() - 1
	} else {
		*list = append((*list)[:index:index], (*list)[index+1:]...)
	}
	s.status(effects.KindEconomy, effects.SeverityInfo, "item_sold", map[string]any{
		"id": tmpl.ID, "refund": refund.String(),
	})
	return nil
}

// RerollShop pays to replace the current offers. The cost grows with every
// reroll until the next browser visit.
func (s *Session) RerollShop() error {
	if s.run.State != state.StateShop {
		return ErrWrongState
	}
	cost := s.shop.RerollCost(s.run.RerollCount)
	if s.run.Cash.LessThan(cost) {
		s.reject(ErrInsufficientFunds)
		return ErrInsufficientFunds
	}
	s.run.Cash = s.run.Cash.Sub(cost)
	s.run.RerollCount++
	s.offers = s.shop.Generate(s.catalog, s.jokers, s.scripts, s.hookContext())
	s.status(effects.KindEconomy, effects.SeverityInfo, "shop_rerolled", map[string]any{"cost": cost.String()})
	return nil
}

// RerollCost is the price of the next reroll.
func (s *Session) RerollCost() decimal.Decimal {
	return s.shop.RerollCost(s.run.RerollCount)
}

// UseScript activates the consumable at index. A script whose hooks reject
// the activation stays owned.
func (s *Session) UseScript(index int) error {
	if s.run.State != state.StatePlaying {
		return ErrWrongState
	}
	if index < 0 || index >= len(s.scripts) {
		s.reject(ErrNoSuchItem)
		return ErrNoSuchItem
	}
	inst := s.scripts[index]
	hc := s.hookContext()
	hc.ItemID = inst.TemplateID

	ok, events := effects.Activate(inst, hc)
	s.emit(events...)
	if !ok {
		if len(events) == 0 {
			s.reject(ErrScriptRejected)
		}
		return ErrScriptRejected
	}

	s.scripts = append(s.scripts[:index:index], s.scripts[index+1:]...)
	s.emit(effects.Broadcast(effects.OnScriptUse, s.jokers, hc)...)
	s.status(effects.KindLog, effects.SeverityInfo, "script_used", map[string]any{"id": inst.TemplateID})
	return nil
}
