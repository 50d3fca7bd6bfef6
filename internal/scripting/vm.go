// Package scripting loads effect templates written in JavaScript. A pack
// calls register({...}) once per effect; the definitions become ordinary
// catalog templates whose hooks call back into the pack's runtime.
package scripting

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/MJE43/guessrun/internal/effects"
)

// LogEntry represents a single log message from a pack.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// EffectError is raised (as a panic) when a scripted hook fails. A broken
// hook is an authoring bug, so it propagates instead of being skipped.
type EffectError struct {
	Pack    string
	ID      string
	Trigger effects.Trigger
	Err     error
}

func (e *EffectError) Error() string {
	return fmt.Sprintf("scripting: %s/%s on %s: %v", e.Pack, e.ID, e.Trigger, e.Err)
}

func (e *EffectError) Unwrap() error { return e.Err }

const (
	packInitTimeout = 2 * time.Second
	hookCallTimeout = 250 * time.Millisecond
)

// dispatch serializes script execution across every loaded pack, since a
// hook can reach another pack's hooks through ctx.valid.
var dispatch struct {
	mu sync.Mutex

	ownerMu sync.Mutex
	owner   *effects.HookContext
}

// VM wraps one goja runtime per pack. Hook calls are serialized; a nested
// call made from inside a running hook for the same dispatch runs inline.
type VM struct {
	name    string
	runtime *goja.Runtime

	// active is only touched while dispatch.mu is held.
	active bool

	logs    []LogEntry
	logsMu  sync.Mutex
	maxLogs int

	defs []*effects.Template
}

// NewVM creates a sandboxed runtime for a pack.
func NewVM(name string) *VM {
	vm := &VM{
		name:    name,
		runtime: goja.New(),
		maxLogs: 200,
	}
	vm.injectGlobalFunctions()
	injectConstants(vm.runtime)
	return vm
}

func (vm *VM) injectGlobalFunctions() {
	vm.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		vm.appendLog(strings.Join(parts, " "))
		return goja.Undefined()
	})

	console := vm.runtime.NewObject()
	console.Set("log", vm.runtime.Get("log"))
	vm.runtime.Set("console", console)

	vm.runtime.Set("register", func(call goja.FunctionCall) goja.Value {
		def := call.Argument(0)
		tmpl, err := vm.templateFrom(def)
		if err != nil {
			panic(vm.runtime.NewGoError(err))
		}
		vm.defs = append(vm.defs, tmpl)
		return goja.Undefined()
	})

	// Block dangerous globals.
	vm.runtime.Set("require", goja.Undefined())
	vm.runtime.Set("fetch", goja.Undefined())
	vm.runtime.Set("XMLHttpRequest", goja.Undefined())
	vm.runtime.Set("eval", goja.Undefined())
	vm.runtime.Set("Function", goja.Undefined())
}

// Execute runs pack source and returns the templates it registered.
func (vm *VM) Execute(source string) ([]*effects.Template, error) {
	dispatch.mu.Lock()
	defer dispatch.mu.Unlock()

	vm.defs = nil
	err := vm.withTimeout(packInitTimeout, func() error {
		if _, err := vm.runtime.RunString(source); err != nil {
			return fmt.Errorf("pack %s: %w", vm.name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(vm.defs) == 0 {
		return nil, fmt.Errorf("pack %s registered no effects", vm.name)
	}
	return vm.defs, nil
}

// Logs returns a copy of the pack's log buffer.
func (vm *VM) Logs() []LogEntry {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	out := make([]LogEntry, len(vm.logs))
	copy(out, vm.logs)
	return out
}

func (vm *VM) appendLog(msg string) {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	if len(vm.logs) >= vm.maxLogs {
		vm.logs = vm.logs[1:]
	}
	vm.logs = append(vm.logs, LogEntry{Time: time.Now(), Message: msg})
}

// hook adapts a JS function into a HookFunc.
func (vm *VM) hook(id string, trig effects.Trigger, fn goja.Callable) effects.HookFunc {
	return func(hc *effects.HookContext, value float64, inst *effects.Instance) effects.Result {
		var res effects.Result
		err := vm.enter(hc, func() error {
			ctx := newContextObject(vm.runtime, hc)
			instObj := instanceObject(vm.runtime, inst)
			out, err := fn(goja.Undefined(), ctx.obj, vm.runtime.ToValue(value), instObj)
			if err != nil {
				return err
			}
			ctx.sync()
			syncInstance(instObj, inst)
			res = resultFrom(out)
			return nil
		})
		if err != nil {
			panic(&EffectError{Pack: vm.name, ID: id, Trigger: trig, Err: err})
		}
		return res
	}
}

// enter serializes hook calls. The outermost call for a dispatch takes the
// shared lock; nested calls for the same context run inline, arming the
// timeout only on a runtime that is not already executing.
func (vm *VM) enter(hc *effects.HookContext, fn func() error) error {
	dispatch.ownerMu.Lock()
	nested := hc != nil && dispatch.owner == hc
	dispatch.ownerMu.Unlock()
	if nested {
		if vm.active {
			return fn()
		}
		return vm.run(fn)
	}

	dispatch.mu.Lock()
	defer dispatch.mu.Unlock()

	dispatch.ownerMu.Lock()
	dispatch.owner = hc
	dispatch.ownerMu.Unlock()
	defer func() {
		dispatch.ownerMu.Lock()
		dispatch.owner = nil
		dispatch.ownerMu.Unlock()
	}()

	return vm.run(fn)
}

func (vm *VM) run(fn func() error) error {
	vm.active = true
	defer func() { vm.active = false }()
	return vm.withTimeout(hookCallTimeout, fn)
}

func (vm *VM) withTimeout(timeout time.Duration, fn func() error) error {
	vm.runtime.ClearInterrupt()
	timer := time.AfterFunc(timeout, func() {
		vm.runtime.Interrupt("script execution timeout")
	})
	defer timer.Stop()

	if err := fn(); err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			return fmt.Errorf("script timed out: %w", err)
		}
		return err
	}
	return nil
}
