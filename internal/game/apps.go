package game

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/MJE43/guessrun/internal/effects"
	"github.com/MJE43/guessrun/internal/state"
)

// App names accepted by OpenApp.
const (
	AppTrading       = "trading"
	AppAntivirus     = "antivirus"
	AppSystemMonitor = "system_monitor"
)

// MiniApp is a side game hosted outside the rules core. The core only
// starts and halts it and applies the outcomes it reports.
type MiniApp interface {
	Start(run *state.Run)
	Halt()
}

// ThermalMonitor reports how far the system sliders are from calibrated.
type ThermalMonitor interface {
	Overheat(sliders [3]int, level int) int
}

// idleApp is the default MiniApp. It only tracks whether a session is open.
type idleApp struct {
	mu     sync.Mutex
	active bool
}

func (a *idleApp) Start(*state.Run) {
	a.mu.Lock()
	a.active = true
	a.mu.Unlock()
}

func (a *idleApp) Halt() {
	a.mu.Lock()
	a.active = false
	a.mu.Unlock()
}

// Active reports whether a session is open.
func (a *idleApp) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// targetThermal measures the summed slider distance from a fixed target.
type targetThermal struct {
	target [3]int
}

func (t targetThermal) Overheat(sliders [3]int, _ int) int {
	heat := 0
	for i := range sliders {
		d := sliders[i] - t.target[i]
		if d < 0 {
			d = -d
		}
		heat += d
	}
	return heat
}

var appStates = map[string]state.GameState{
	AppTrading:       state.StateTrading,
	AppAntivirus:     state.StateAntivirus,
	AppSystemMonitor: state.StateSystemMonitor,
}

func (s *Session) unlocked(name string) bool {
	switch name {
	case AppTrading:
		return s.run.TradingUnlocked
	case AppAntivirus:
		return s.run.AntivirusUnlocked
	case AppSystemMonitor:
		return s.run.SystemMonitorUnlocked
	}
	return false
}

// OpenApp enters a mini-app from the browser.
func (s *Session) OpenApp(name string) error {
	if s.run.State != state.StateBrowser {
		return ErrWrongState
	}
	st, ok := appStates[name]
	if !ok {
		s.reject(ErrNoSuchItem)
		return ErrNoSuchItem
	}
	if !s.unlocked(name) {
		s.reject(ErrLocked)
		return ErrLocked
	}
	s.apps[name].Start(s.run)
	s.run.State = st
	s.run.ActiveApp = name
	s.status(effects.KindSystem, effects.SeverityInfo, "app_open", map[string]any{"app": name})
	return nil
}

// CloseApp leaves a mini-app or the shop and returns to the browser. An
// open mini-app session is always halted.
func (s *Session) CloseApp() error {
	switch s.run.State {
	case state.StateShop, state.StateTrading, state.StateAntivirus, state.StateSystemMonitor:
	default:
		return ErrWrongState
	}
	if app, ok := s.apps[s.run.ActiveApp]; ok {
		app.Halt()
	}
	s.run.ActiveApp = ""
	s.run.State = state.StateBrowser
	s.status(effects.KindStatus, effects.SeverityInfo, "browser_open", nil)
	return nil
}

// ApplyTradeResult books the profit or loss of a trading session.
func (s *Session) ApplyTradeResult(delta decimal.Decimal) error {
	if s.run.State != state.StateTrading {
		return ErrWrongState
	}
	delta = delta.Floor()
	s.run.Cash = s.run.Cash.Add(delta)
	sev := effects.SeveritySuccess
	if delta.IsNegative() {
		sev = effects.SeverityWarn
	}
	s.status(effects.KindEconomy, sev, "trade_settled", map[string]any{"delta": delta.String()})
	return nil
}

// ApplyScanScore pays out an antivirus scan.
func (s *Session) ApplyScanScore(score int) error {
	if s.run.State != state.StateAntivirus {
		return ErrWrongState
	}
	payout := int64(math.Floor(float64(max(0, score)) * s.tuning.ScanPayout))
	s.run.AddCash(payout)
	s.status(effects.KindEconomy, effects.SeveritySuccess, "scan_complete", map[string]any{
		"score": score, "payout": payout,
	})
	return nil
}

// SetSliders stores a thermal calibration. Values are clamped to 0..100.
func (s *Session) SetSliders(sliders [3]int) error {
	if s.run.State != state.StateSystemMonitor {
		return ErrWrongState
	}
	for i, v := range sliders {
		sliders[i] = min(100, max(0, v))
	}
	s.run.SystemSliders = sliders
	s.status(effects.KindLog, effects.SeverityInfo, "sliders_set", map[string]any{
		"sliders": sliders, "overheat": s.thermal.Overheat(sliders, s.run.Level),
	})
	return nil
}
