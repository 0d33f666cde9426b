package chat

import "errors"

var (
	// ErrDuplicateConnection is returned by Open when the connection ID is
	// already registered.
	ErrDuplicateConnection = errors.New("connection already registered")

	// ErrSessionNotFound is returned when no session exists for a connection ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAgentNotFound is returned by Bind when the referenced agent does not exist.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrUnauthorized is returned by Bind when the agent is not visible to the user.
	ErrUnauthorized = errors.New("agent not accessible to user")

	// ErrSessionNotBound is returned by Submit before a successful start_chat.
	ErrSessionNotBound = errors.New("no active chat session")

	// ErrEmptyMessage is returned by Submit for blank or whitespace-only text.
	ErrEmptyMessage = errors.New("message cannot be empty")
)
