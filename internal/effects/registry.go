package effects

// Dispatch runs trig over owned in list order, once per unit of quantity.
// For fold triggers the value is threaded through every firing; for
// broadcast triggers the initial value is returned untouched. Messages are
// returned as events for the caller to project.
//
// A hook that panics is a programmer error and is not recovered here.
func Dispatch(trig Trigger, initial float64, owned []*Instance, hc *HookContext) (float64, []Event) {
	value := initial
	var events []Event

	for _, inst := range owned {
		t := inst.tmpl
		if t == nil {
			continue
		}
		fns := t.firings(trig)
		if len(fns) == 0 {
			continue
		}
		for n := 0; n < inst.Count(); n++ {
			for _, fn := range fns {
				res := fn(hc, value, inst)
				if trig.IsFold() {
					if v, ok := res.Value(); ok {
						value = v
					}
				}
				if ev, ok := eventFrom(res, t.ID); ok {
					events = append(events, ev)
				}
			}
		}
	}

	return value, events
}

// Broadcast fires a side-effect-only trigger.
func Broadcast(trig Trigger, owned []*Instance, hc *HookContext) []Event {
	_, events := Dispatch(trig, 0, owned, hc)
	return events
}

// CheckConstraints AND-folds boolean verdicts for candidate. Instances that
// do not implement trig are trivially satisfied.
func CheckConstraints(trig Trigger, candidate int, owned []*Instance, hc *HookContext) bool {
	for _, inst := range owned {
		t := inst.tmpl
		if t == nil {
			continue
		}
		for n := 0; n < inst.Count(); n++ {
			for _, fn := range t.firings(trig) {
				if !fn(hc, float64(candidate), inst).Verdict() {
					return false
				}
			}
		}
	}
	return true
}

// ConstraintVotes counts how many firings accept candidate.
func ConstraintVotes(trig Trigger, candidate int, owned []*Instance, hc *HookContext) (passed, total int) {
	for _, inst := range owned {
		t := inst.tmpl
		if t == nil {
			continue
		}
		for n := 0; n < inst.Count(); n++ {
			for _, fn := range t.firings(trig) {
				total++
				if fn(hc, float64(candidate), inst).Verdict() {
					passed++
				}
			}
		}
	}
	return passed, total
}

func eventFrom(res Result, source string) (Event, bool) {
	key, ok := res.Message()
	if !ok {
		return Event{}, false
	}
	kind := KindStatus
	if res.logOnly {
		kind = KindLog
	}
	return Event{
		Kind:     kind,
		Severity: SeverityInfo,
		Key:      key,
		Source:   source,
		Payload:  res.payload,
	}, true
}

// Activate fires the use trigger of one consumable unit. It reports false
// when any firing rejects, in which case the caller keeps the consumable.
func Activate(inst *Instance, hc *HookContext) (bool, []Event) {
	t := inst.tmpl
	if t == nil || !t.Handles(Use) {
		return false, nil
	}
	ok := true
	var events []Event
	for _, fn := range t.firings(Use) {
		res := fn(hc, 0, inst)
		if !res.Verdict() {
			ok = false
		}
		if ev, has := eventFrom(res, t.ID); has {
			events = append(events, ev)
		}
	}
	return ok, events
}
