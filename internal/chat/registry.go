package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/agentdesk/internal/auth"
	"github.com/ashureev/agentdesk/internal/provider"
	"github.com/ashureev/agentdesk/internal/store"
)

// Registry owns the mapping from connection IDs to sessions. It is safe for
// concurrent use by the WebSocket handlers and generation tasks.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	repo   store.Repository
	authz  auth.Authorizer
	logger *slog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(repo store.Repository, authz auth.Authorizer, logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		repo:     repo,
		authz:    authz,
		logger:   logger,
	}
}

// Open creates an unbound session for a new connection.
func (r *Registry) Open(connID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[connID]; exists {
		return nil, ErrDuplicateConnection
	}
	sess := newSession(connID)
	r.sessions[connID] = sess
	return sess, nil
}

// Get returns the session for a connection ID.
func (r *Registry) Get(connID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[connID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Bind attaches a connection's session to an agent on behalf of a user,
// checking visibility and replaying the stored conversation history. Binding
// an already-bound session switches it to the new agent; a generation still
// running under the old binding is cancelled first. On failure the session
// keeps its previous binding.
func (r *Registry) Bind(ctx context.Context, connID, agentID, userID string) error {
	sess, err := r.Get(connID)
	if err != nil {
		return err
	}

	agent, err := r.repo.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("look up agent %s: %w", agentID, err)
	}
	if agent == nil {
		return ErrAgentNotFound
	}

	allowed, err := r.authz.CanAccessAgent(ctx, userID, agentID)
	if err != nil {
		return fmt.Errorf("authorize user %s for agent %s: %w", userID, agentID, err)
	}
	if !allowed {
		return ErrUnauthorized
	}

	turns, err := r.repo.LoadHistory(ctx, agentID, userID)
	if err != nil {
		return fmt.Errorf("load history for agent %s: %w", agentID, err)
	}
	history := make([]provider.Message, 0, len(turns))
	for _, t := range turns {
		history = append(history, provider.Message{Role: string(t.Role), Content: t.Content})
	}

	if pg := sess.takePending(); pg != nil {
		pg.cancel()
		<-pg.done
	}

	sess.bind(userID, agent, history)
	r.logger.Info("chat session bound",
		"conn_id", connID,
		"agent_id", agentID,
		"user_id", userID,
		"history_turns", len(history),
	)
	return nil
}

// Close cancels any in-flight generation for the connection, waits for it to
// finish tearing down, and removes the session. Closing an unknown
// connection is a no-op.
func (r *Registry) Close(connID string) {
	r.mu.Lock()
	sess, ok := r.sessions[connID]
	delete(r.sessions, connID)
	r.mu.Unlock()
	if !ok {
		return
	}

	if pg := sess.takePending(); pg != nil {
		pg.cancel()
		<-pg.done
	}
	r.logger.Info("chat session closed", "conn_id", connID)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
