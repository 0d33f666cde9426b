package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/provider"
)

// Session is the per-connection chat state. A session starts unbound; a
// successful start_chat binds it to an agent and a user and loads the
// conversation history. At most one generation attempt is pending at a time.
type Session struct {
	ConnID string

	mu      sync.Mutex
	userID  string
	agent   *domain.Agent
	history []provider.Message
	pending *pendingGeneration
}

// pendingGeneration is one in-flight generation attempt. cancel aborts it;
// done is closed by the attempt's goroutine once it has fully torn down,
// including the persist-or-discard decision.
type pendingGeneration struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	userText  string
	startedAt time.Time
	done      chan struct{}
}

func newSession(connID string) *Session {
	return &Session{ConnID: connID}
}

// bind attaches the session to an agent on behalf of a user and installs the
// replayed history. Re-binding replaces the previous binding.
func (s *Session) bind(userID string, agent *domain.Agent, history []provider.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.agent = agent
	s.history = history
}

// binding returns the current agent and user, or ok=false when unbound.
func (s *Session) binding() (agent *domain.Agent, userID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agent == nil {
		return nil, "", false
	}
	return s.agent, s.userID, true
}

// beginAttempt snapshots the history as the prompt context for a new attempt,
// appends the user message to the session history, and installs the attempt
// as pending. The superseded previous attempt, if any, is returned so the
// caller can cancel it; it is not waited on.
func (s *Session) beginAttempt(userText string) (*pendingGeneration, []provider.Message, *pendingGeneration) {
	ctx, cancel := context.WithCancel(context.Background())
	pg := &pendingGeneration{
		id:        uuid.NewString(),
		ctx:       ctx,
		cancel:    cancel,
		userText:  userText,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prompt := make([]provider.Message, len(s.history))
	copy(prompt, s.history)

	s.history = append(s.history, provider.Message{Role: string(domain.TurnRoleUser), Content: userText})

	prev := s.pending
	s.pending = pg
	return pg, prompt, prev
}

// completeAttempt records the assistant reply in the session history and
// clears the pending reference, but only if the attempt is still the current
// one. A superseded attempt finds a different pending ID and leaves the
// session untouched.
func (s *Session) completeAttempt(pg *pendingGeneration, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.id != pg.id {
		return
	}
	s.history = append(s.history, provider.Message{Role: string(domain.TurnRoleAssistant), Content: assistantText})
	s.pending = nil
}

// clearAttempt drops the pending reference if the attempt still owns it.
func (s *Session) clearAttempt(pg *pendingGeneration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil && s.pending.id == pg.id {
		s.pending = nil
	}
}

// takePending detaches and returns the current pending attempt, if any.
func (s *Session) takePending() *pendingGeneration {
	s.mu.Lock()
	defer s.mu.Unlock()
	pg := s.pending
	s.pending = nil
	return pg
}
