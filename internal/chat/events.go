// Package chat implements the real-time agent chat session engine: one
// session per WebSocket connection, a single in-flight generation per
// session, and token-by-token streaming of model output back to the client.
package chat

// EventKind identifies an outbound protocol event.
type EventKind string

const (
	// EventChatStarted acknowledges a successful start_chat command.
	EventChatStarted EventKind = "chat_started"
	// EventStatus carries an informational progress update.
	EventStatus EventKind = "status"
	// EventToken carries one text fragment of the streamed response.
	EventToken EventKind = "token"
	// EventToolStart announces a tool invocation before it is dispatched.
	EventToolStart EventKind = "tool_start"
	// EventStreamEnd is the terminal event of a generation attempt.
	EventStreamEnd EventKind = "stream_end"
	// EventError reports a caller/input error. Non-fatal to the session.
	EventError EventKind = "error"
)

// Event is one outbound protocol message. Only the fields for the given
// kind are populated.
type Event struct {
	Kind         EventKind `json:"event"`
	Status       string    `json:"status,omitempty"`
	Token        string    `json:"token,omitempty"`
	Name         string    `json:"name,omitempty"`
	Message      string    `json:"message,omitempty"`
	TurnComplete *bool     `json:"turn_complete,omitempty"`
}

// ChatStartedEvent acknowledges a bind.
func ChatStartedEvent() Event {
	return Event{Kind: EventChatStarted}
}

// StatusEvent carries a progress update.
func StatusEvent(status string) Event {
	return Event{Kind: EventStatus, Status: status}
}

// TokenEvent carries one streamed text fragment.
func TokenEvent(token string) Event {
	return Event{Kind: EventToken, Token: token}
}

// ToolStartEvent announces a tool invocation.
func ToolStartEvent(name string) Event {
	return Event{Kind: EventToolStart, Name: name}
}

// StreamEndEvent terminates a generation attempt.
func StreamEndEvent(turnComplete bool) Event {
	return Event{Kind: EventStreamEnd, TurnComplete: &turnComplete}
}

// ErrorEvent reports a caller error.
func ErrorEvent(message string) Event {
	return Event{Kind: EventError, Message: message}
}
