package effects

// EventKind classifies an event for its consumers.
type EventKind string

const (
	KindStatus  EventKind = "status"
	KindLog     EventKind = "log"
	KindHint    EventKind = "hint"
	KindBoss    EventKind = "boss"
	KindEconomy EventKind = "economy"
	KindSystem  EventKind = "system"
)

// Severity is the presentation weight of an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarn    Severity = "warn"
	SeverityError   Severity = "error"
)

// Event is a structured message. Key is a localization key; the transcript
// records every event, the round status only shows non-log events.
type Event struct {
	Kind     EventKind      `json:"kind"`
	Severity Severity       `json:"severity"`
	Key      string         `json:"key"`
	Source   string         `json:"source,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// LogOnly reports whether the event stays out of the status projection.
func (e Event) LogOnly() bool {
	return e.Kind == KindLog
}
