package effects

// Trigger names a decision point in the round and run lifecycle.
type Trigger string

// Fold triggers thread a running value through every owned instance.
const (
	CalculateGain      Trigger = "calculateGain"
	GetMaxRange        Trigger = "getMaxRange"
	GetMinRange        Trigger = "getMinRange"
	CalculateRent      Trigger = "calculateRent"
	CalculateShopPrice Trigger = "calculateShopPrice"
	GetMaxJokerSlots   Trigger = "getMaxJokerSlots"
	GetTolerance       Trigger = "getTolerance"
	RngValidation      Trigger = "rng_validation"
)

// Broadcast triggers run for side effects and messages only.
const (
	OnRoundStart Trigger = "onRoundStart"
	OnWin        Trigger = "onWin"
	OnMiss       Trigger = "onMiss"
	OnGuess      Trigger = "onGuess"
	OnBuy        Trigger = "onBuy"
	OnSell       Trigger = "onSell"
	OnScriptUse  Trigger = "onScriptUse"
	OnRunStart   Trigger = "onRunStart"
	OnLostRound  Trigger = "onLostRound"
	OnLevelStart Trigger = "onLevelStart"
)

// Use fires only on the consumable being activated.
const Use Trigger = "use"

var foldTriggers = map[Trigger]bool{
	CalculateGain:      true,
	GetMaxRange:        true,
	GetMinRange:        true,
	CalculateRent:      true,
	CalculateShopPrice: true,
	GetMaxJokerSlots:   true,
	GetTolerance:       true,
	RngValidation:      true,
}

var broadcastTriggers = map[Trigger]bool{
	OnRoundStart: true,
	OnWin:        true,
	OnMiss:       true,
	OnGuess:      true,
	OnBuy:        true,
	OnSell:       true,
	OnScriptUse:  true,
	OnRunStart:   true,
	OnLostRound:  true,
	OnLevelStart: true,
}

// IsFold reports whether t threads a value.
func (t Trigger) IsFold() bool {
	return foldTriggers[t]
}

// Known reports whether t is a trigger the state machine ever fires.
func (t Trigger) Known() bool {
	return foldTriggers[t] || broadcastTriggers[t] || t == Use
}
