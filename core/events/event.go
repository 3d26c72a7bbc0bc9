package events

// Event represents a structured state change emitted by the settlement
// engines.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (metrics, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
// Engines fall back to it when no emitter is wired.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
