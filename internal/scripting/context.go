package scripting

import (
	"github.com/dop251/goja"
	"github.com/shopspring/decimal"

	"github.com/MJE43/guessrun/internal/effects"
)

// injectConstants sets trigger names on the runtime so packs do not have to
// spell them.
func injectConstants(vm *goja.Runtime) {
	triggers := map[string]effects.Trigger{
		"CALCULATE_GAIN":       effects.CalculateGain,
		"GET_MAX_RANGE":        effects.GetMaxRange,
		"GET_MIN_RANGE":        effects.GetMinRange,
		"CALCULATE_RENT":       effects.CalculateRent,
		"CALCULATE_SHOP_PRICE": effects.CalculateShopPrice,
		"GET_MAX_JOKER_SLOTS":  effects.GetMaxJokerSlots,
		"GET_TOLERANCE":        effects.GetTolerance,
		"RNG_VALIDATION":       effects.RngValidation,
		"ON_ROUND_START":       effects.OnRoundStart,
		"ON_WIN":               effects.OnWin,
		"ON_MISS":              effects.OnMiss,
		"ON_GUESS":             effects.OnGuess,
		"ON_BUY":               effects.OnBuy,
		"ON_SELL":              effects.OnSell,
		"ON_SCRIPT_USE":        effects.OnScriptUse,
		"ON_RUN_START":         effects.OnRunStart,
		"ON_LOST_ROUND":        effects.OnLostRound,
		"ON_LEVEL_START":       effects.OnLevelStart,
		"USE":                  effects.Use,
	}
	for name, trig := range triggers {
		vm.Set(name, string(trig))
	}
}

// contextObject is the JS view of a HookContext. Writable fields are read
// back after the hook returns; only changed values are applied.
type contextObject struct {
	obj *goja.Object
	hc  *effects.HookContext

	cash                  float64
	attempts, maxAttempts int
	min, max, mystery     int
	bonus                 float64
}

func newContextObject(rt *goja.Runtime, hc *effects.HookContext) *contextObject {
	c := &contextObject{obj: rt.NewObject(), hc: hc}
	if hc == nil {
		return c
	}

	c.obj.Set("guess", hc.Guess)
	c.obj.Set("item", hc.ItemID)
	c.obj.Set("owned", len(hc.Owned))

	if run := hc.Run; run != nil {
		c.cash = run.Cash.InexactFloat64()
		c.obj.Set("cash", c.cash)
		c.obj.Set("level", run.Level)
		c.obj.Set("round", run.Round)
		c.obj.Set("maxRounds", run.MaxRounds)
	}
	if r := hc.Round; r != nil {
		c.attempts, c.maxAttempts = r.Attempts, r.MaxAttempts
		c.min, c.max, c.mystery = r.Min, r.Max, r.MysteryNumber
		c.bonus = r.NextGuessBonus
		c.obj.Set("attempts", c.attempts)
		c.obj.Set("maxAttempts", c.maxAttempts)
		c.obj.Set("min", c.min)
		c.obj.Set("max", c.max)
		c.obj.Set("absoluteMin", r.AbsoluteMin)
		c.obj.Set("absoluteMax", r.AbsoluteMax)
		c.obj.Set("mysteryNumber", c.mystery)
		c.obj.Set("nextGuessBonus", c.bonus)
		c.obj.Set("burningThreshold", r.BurningThreshold)
		c.obj.Set("boss", r.BossEffect)
		c.obj.Set("history", append([]int(nil), r.History...))
	}

	c.obj.Set("random", func(call goja.FunctionCall) goja.Value {
		if hc.Rand == nil {
			return rt.ToValue(0)
		}
		return rt.ToValue(hc.Rand.Intn(int(call.Argument(0).ToInteger())))
	})
	c.obj.Set("valid", func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(hc.Valid(int(call.Argument(0).ToInteger())))
	})
	return c
}

// sync applies the hook's writes back to the run and round.
func (c *contextObject) sync() {
	hc := c.hc
	if hc == nil {
		return
	}
	if run := hc.Run; run != nil {
		if v := toFloat64(c.obj.Get("cash")); v != c.cash {
			run.Cash = decimal.NewFromFloat(v)
		}
	}
	if r := hc.Round; r != nil {
		if v := toInt(c.obj.Get("attempts")); v != c.attempts {
			r.Attempts = v
		}
		if v := toInt(c.obj.Get("maxAttempts")); v != c.maxAttempts {
			r.MaxAttempts = v
		}
		if v := toInt(c.obj.Get("min")); v != c.min {
			r.Min = v
		}
		if v := toInt(c.obj.Get("max")); v != c.max {
			r.Max = v
		}
		if v := toInt(c.obj.Get("mysteryNumber")); v != c.mystery {
			r.MysteryNumber = v
		}
		if v := toFloat64(c.obj.Get("nextGuessBonus")); v != c.bonus {
			r.NextGuessBonus = v
		}
	}
}

func instanceObject(rt *goja.Runtime, inst *effects.Instance) *goja.Object {
	obj := rt.NewObject()
	if inst == nil {
		return obj
	}
	obj.Set("id", inst.TemplateID)
	obj.Set("quantity", inst.Count())
	obj.Set("modifier", inst.Modifier)
	return obj
}

func syncInstance(obj *goja.Object, inst *effects.Instance) {
	if inst == nil {
		return
	}
	inst.Modifier = toFloat64(obj.Get("modifier"))
}

// resultFrom maps a hook's return value: a number folds, a boolean is a
// constraint verdict, an object may carry value/valid/message/logOnly/payload.
func resultFrom(v goja.Value) effects.Result {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return effects.Pass()
	}
	switch x := v.Export().(type) {
	case int64:
		return effects.Fold(float64(x))
	case float64:
		return effects.Fold(x)
	case bool:
		return effects.Accept(x)
	case map[string]any:
		return resultFromMap(x)
	}
	return effects.Pass()
}

func resultFromMap(m map[string]any) effects.Result {
	res := effects.Pass()
	if n, ok := number(m["value"]); ok {
		res = effects.Fold(n)
	}
	if b, ok := m["valid"].(bool); ok {
		res = effects.Accept(b)
	}
	if msg, ok := m["message"].(string); ok && msg != "" {
		if logOnly, _ := m["logOnly"].(bool); logOnly {
			res = res.Log(msg)
		} else {
			res = res.Say(msg)
		}
		if payload, ok := m["payload"].(map[string]any); ok {
			for k, v := range payload {
				res = res.With(k, v)
			}
		}
	}
	return res
}

// --- Conversion helpers ---

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toFloat64(v goja.Value) float64 {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	return v.ToFloat()
}

func toInt(v goja.Value) int {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	return int(v.ToInteger())
}

func toString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
