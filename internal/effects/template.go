package effects

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/guessrun/internal/engine"
	"github.com/MJE43/guessrun/internal/state"
)

// Kind distinguishes permanent passives from single-use consumables.
type Kind string

const (
	Passive    Kind = "passive"
	Consumable Kind = "consumable"
)

// Trait flags capabilities the state machine checks directly instead of
// folding a value.
type Trait uint8

const (
	// TraitMissShield absorbs the first miss of every round.
	TraitMissShield Trait = 1 << iota
	// TraitDebtTolerant lets rent settlement drive cash negative.
	TraitDebtTolerant
	// TraitBossImmune cancels boss selection for the rest of the arc segment.
	TraitBossImmune
)

// HookContext is the mutable view a hook receives. Hooks mutate Run and
// Round directly; the registry never applies economic effects itself.
type HookContext struct {
	Run   *state.Run
	Round *state.Round
	Rand  *engine.Source
	Owned []*Instance

	// Guess is set for onGuess, onMiss and onWin.
	Guess int
	// ItemID is set for onBuy, onSell and onScriptUse.
	ItemID string
}

// Valid reports whether every owned instance accepts candidate as a
// mystery number.
func (hc *HookContext) Valid(candidate int) bool {
	return CheckConstraints(RngValidation, candidate, hc.Owned, hc)
}

// HookFunc is the behavior attached to a trigger.
type HookFunc func(hc *HookContext, value float64, inst *Instance) Result

type resultKind uint8

const (
	resultNone resultKind = iota
	resultValue
	resultVerdict
)

// Result is what a hook hands back to the registry.
type Result struct {
	kind    resultKind
	value   float64
	ok      bool
	key     string
	logOnly bool
	payload map[string]any
}

// Fold replaces the running value.
func Fold(v float64) Result { return Result{kind: resultValue, value: v} }

// Accept is a constraint verdict.
func Accept(ok bool) Result { return Result{kind: resultVerdict, ok: ok} }

// Pass leaves the running value untouched.
func Pass() Result { return Result{} }

// Say emits a status message.
func Say(key string) Result { return Result{key: key} }

// Log emits a transcript-only message.
func Log(key string) Result { return Result{key: key, logOnly: true} }

// Say attaches a status message to r.
func (r Result) Say(key string) Result {
	r.key, r.logOnly = key, false
	return r
}

// Log attaches a transcript-only message to r.
func (r Result) Log(key string) Result {
	r.key, r.logOnly = key, true
	return r
}

// With adds a payload field to the attached message.
func (r Result) With(k string, v any) Result {
	p := make(map[string]any, len(r.payload)+1)
	for kk, vv := range r.payload {
		p[kk] = vv
	}
	p[k] = v
	r.payload = p
	return r
}

// Value returns the folded value, if any.
func (r Result) Value() (float64, bool) { return r.value, r.kind == resultValue }

// Verdict returns the constraint verdict; results without one accept.
func (r Result) Verdict() bool { return r.kind != resultVerdict || r.ok }

// Message returns the attached message key.
func (r Result) Message() (string, bool) { return r.key, r.key != "" }

// Template is an immutable catalog entry.
type Template struct {
	ID          string
	Kind        Kind
	Price       decimal.Decimal
	MaxQuantity int // 0 means unbounded
	Traits      Trait

	// Trigger/Execute is the single-hook path; it fires before Hooks.
	Trigger Trigger
	Execute HookFunc
	Hooks   map[Trigger]HookFunc
}

// Has reports whether the template carries trait t.
func (t *Template) Has(tr Trait) bool {
	return t.Traits&tr != 0
}

// Handles reports whether the template responds to trig.
func (t *Template) Handles(trig Trigger) bool {
	return len(t.firings(trig)) > 0
}

// firings lists the functions to run for trig in firing order.
func (t *Template) firings(trig Trigger) []HookFunc {
	var fns []HookFunc
	if t.Execute != nil && t.Trigger == trig {
		fns = append(fns, t.Execute)
	}
	if fn, ok := t.Hooks[trig]; ok && fn != nil {
		fns = append(fns, fn)
	}
	return fns
}

// Instance is an owned copy of a template.
type Instance struct {
	TemplateID string  `json:"id"`
	Quantity   int     `json:"quantity"`
	Modifier   float64 `json:"modifier,omitempty"`

	tmpl *Template
}

// NewInstance creates a single owned unit of t.
func NewInstance(t *Template) *Instance {
	return &Instance{TemplateID: t.ID, Quantity: 1, tmpl: t}
}

// Template returns the behavior attached to the instance.
func (i *Instance) Template() *Template {
	return i.tmpl
}

// Count is the stack size; a zero quantity counts as one.
func (i *Instance) Count() int {
	if i.Quantity <= 0 {
		return 1
	}
	return i.Quantity
}

// HasTrait reports whether any owned instance carries tr.
func HasTrait(owned []*Instance, tr Trait) bool {
	for _, inst := range owned {
		if inst.tmpl != nil && inst.tmpl.Has(tr) {
			return true
		}
	}
	return false
}
