package agent

// EventType identifies the kind of message a turn emits to the sink.
type EventType string

const (
	EventThinking  EventType = "thinking"
	EventText      EventType = "text"
	EventSQL       EventType = "sql"
	EventExecuting EventType = "executing"
	EventResult    EventType = "result"
	EventSummary   EventType = "summary"
	EventError     EventType = "error"
)

// Event is the unit delivered to a MessageSink. Content carries
// human-readable text; Data carries structured payloads such as the
// execution result attached to a result event.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
	Data    any       `json:"data,omitempty"`
}

// MessageSink receives every event a turn produces, in emission order.
// Send is fire-and-forget; the transport renders events however it likes
// (terminal REPL, WebSocket push) without the session knowing which.
type MessageSink interface {
	Send(event Event)
}

// SinkFunc adapts a function to the MessageSink interface.
type SinkFunc func(event Event)

func (f SinkFunc) Send(event Event) { f(event) }
