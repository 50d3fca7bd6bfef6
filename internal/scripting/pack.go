package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dop251/goja"
	"github.com/shopspring/decimal"

	"github.com/MJE43/guessrun/internal/effects"
)

var traitNames = map[string]effects.Trait{
	"missShield":   effects.TraitMissShield,
	"debtTolerant": effects.TraitDebtTolerant,
	"bossImmune":   effects.TraitBossImmune,
}

// templateFrom converts a register({...}) argument into a template.
func (vm *VM) templateFrom(def goja.Value) (*effects.Template, error) {
	if def == nil || goja.IsUndefined(def) || goja.IsNull(def) {
		return nil, fmt.Errorf("register() needs an effect definition")
	}
	obj := def.ToObject(vm.runtime)

	id := toString(obj.Get("id"))
	if id == "" {
		return nil, fmt.Errorf("effect definition is missing an id")
	}

	tmpl := &effects.Template{
		ID:          id,
		Kind:        effects.Kind(toString(obj.Get("kind"))),
		Price:       decimal.NewFromFloat(toFloat64(obj.Get("price"))),
		MaxQuantity: toInt(obj.Get("maxQuantity")),
	}
	if tmpl.Kind == "" {
		tmpl.Kind = effects.Passive
	}

	if traits := obj.Get("traits"); traits != nil && !goja.IsUndefined(traits) && !goja.IsNull(traits) {
		names, ok := traits.Export().([]any)
		if !ok {
			return nil, fmt.Errorf("%s: traits must be an array", id)
		}
		for _, n := range names {
			name, _ := n.(string)
			tr, ok := traitNames[name]
			if !ok {
				return nil, fmt.Errorf("%s: unknown trait %q", id, name)
			}
			tmpl.Traits |= tr
		}
	}

	if exec := obj.Get("execute"); exec != nil && !goja.IsUndefined(exec) {
		fn, ok := goja.AssertFunction(exec)
		if !ok {
			return nil, fmt.Errorf("%s: execute is not a function", id)
		}
		tmpl.Trigger = effects.Trigger(toString(obj.Get("trigger")))
		if tmpl.Trigger == "" {
			return nil, fmt.Errorf("%s: execute without trigger", id)
		}
		tmpl.Execute = vm.hook(id, tmpl.Trigger, fn)
	}

	if hooks := obj.Get("hooks"); hooks != nil && !goja.IsUndefined(hooks) && !goja.IsNull(hooks) {
		hobj := hooks.ToObject(vm.runtime)
		tmpl.Hooks = make(map[effects.Trigger]effects.HookFunc)
		for _, name := range hobj.Keys() {
			fn, ok := goja.AssertFunction(hobj.Get(name))
			if !ok {
				return nil, fmt.Errorf("%s: hook %s is not a function", id, name)
			}
			trig := effects.Trigger(name)
			tmpl.Hooks[trig] = vm.hook(id, trig, fn)
		}
	}

	return tmpl, nil
}

// LoadPack evaluates one pack and returns its templates.
func LoadPack(name, source string) ([]*effects.Template, error) {
	return NewVM(name).Execute(source)
}

// LoadDir loads every *.js pack in dir in file name order.
func LoadDir(dir string) ([]*effects.Template, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.js"))
	if err != nil {
		return nil, fmt.Errorf("scripting: list packs: %w", err)
	}
	sort.Strings(paths)

	var out []*effects.Template
	for _, p := range paths {
		src, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("scripting: read %s: %w", p, err)
		}
		defs, err := LoadPack(filepath.Base(p), string(src))
		if err != nil {
			return nil, fmt.Errorf("scripting: %w", err)
		}
		out = append(out, defs...)
	}
	return out, nil
}
