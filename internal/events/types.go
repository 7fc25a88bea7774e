package events

// Event enumerates high-level topics inside the signal core.
type Event string

const (
	EventSignal          Event = "signal.evaluated"
	EventPositionOpened  Event = "position.opened"
	EventPositionClosed  Event = "position.closed"
	EventPositionUpdated Event = "position.marked"
	EventLedgerSnapshot  Event = "ledger.snapshot"
	EventCycleCompleted  Event = "cycle.completed"
	EventRiskAlert       Event = "risk_alert"
)

// All lists every topic, for subscribers that forward everything.
var All = []Event{
	EventSignal,
	EventPositionOpened,
	EventPositionClosed,
	EventPositionUpdated,
	EventLedgerSnapshot,
	EventCycleCompleted,
	EventRiskAlert,
}

// Envelope tags a payload with its topic when several topics share one stream.
type Envelope struct {
	Event   Event `json:"event"`
	Payload any   `json:"payload"`
}
