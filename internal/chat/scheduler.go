package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/provider"
	"github.com/ashureev/agentdesk/internal/store"
	"github.com/ashureev/agentdesk/internal/tools"
)

const (
	// statusReceived is emitted as soon as a message is accepted.
	statusReceived = "Message received, processing..."
	// statusGenerating is emitted when the model stream is about to start.
	statusGenerating = "Generating response..."

	// timeoutApology replaces the response when the deadline expires.
	timeoutApology = "I'm sorry, but I'm taking too long to respond. Let me try a simpler answer: How can I help you today?"
	// failureApology replaces the response when the model backend errors.
	failureApology = "I'm sorry, but I'm having trouble responding right now. Please try again later."

	// persistTimeout bounds the final turn write, which runs detached from
	// the generation context so a disconnect after completion cannot lose
	// an already-finished response.
	persistTimeout = 10 * time.Second
)

// attempt outcomes, decided when the fragment stream ends.
type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeTimedOut
	outcomeFailed
	outcomeCancelled
)

// Scheduler runs generation attempts. Each session has at most one attempt
// in flight; submitting a new message cancels the previous attempt without
// waiting for it. Every attempt that is not cancelled ends with exactly one
// persisted assistant turn and exactly one stream_end event, even when the
// deadline expires or the model backend fails.
type Scheduler struct {
	registry   *Registry
	repo       store.Repository
	provider   provider.Provider
	dispatcher *tools.Dispatcher
	emitter    *Emitter
	transcript *TranscriptLogger
	timeout    time.Duration
	logger     *slog.Logger
}

// NewScheduler wires a scheduler. transcript may be nil to disable
// transcript logging.
func NewScheduler(
	registry *Registry,
	repo store.Repository,
	prov provider.Provider,
	dispatcher *tools.Dispatcher,
	emitter *Emitter,
	transcript *TranscriptLogger,
	timeout time.Duration,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		registry:   registry,
		repo:       repo,
		provider:   prov,
		dispatcher: dispatcher,
		emitter:    emitter,
		transcript: transcript,
		timeout:    timeout,
		logger:     logger,
	}
}

// Submit accepts one user message on a bound session. It persists the user
// turn, supersedes any running attempt, and starts a new generation task
// before returning. Validation failures are returned synchronously and leave
// the session's pending attempt untouched.
func (s *Scheduler) Submit(ctx context.Context, connID, userText string) error {
	sess, err := s.registry.Get(connID)
	if err != nil {
		return err
	}
	agent, userID, ok := sess.binding()
	if !ok {
		return ErrSessionNotBound
	}
	if strings.TrimSpace(userText) == "" {
		return ErrEmptyMessage
	}

	userTurn := &domain.Turn{
		AgentID: agent.AgentID,
		UserID:  userID,
		Role:    domain.TurnRoleUser,
		Content: userText,
	}
	if _, err := s.repo.SaveTurn(ctx, userTurn); err != nil {
		return err
	}
	s.logTranscript(sess, agent, userID, domain.TurnRoleUser, userText)

	s.emitter.Emit(connID, StatusEvent(statusReceived))

	pg, prompt, prev := sess.beginAttempt(userText)
	if prev != nil {
		// Fire-and-forget: the superseded task notices at its next
		// fragment boundary and discards its output.
		prev.cancel()
		s.logger.Info("generation superseded", "conn_id", connID, "agent_id", agent.AgentID)
	}

	go s.run(sess, agent, userID, pg, prompt)
	return nil
}

// run executes one generation attempt to completion. It is the only place
// that persists assistant turns and emits stream_end.
func (s *Scheduler) run(sess *Session, agent *domain.Agent, userID string, pg *pendingGeneration, prompt []provider.Message) {
	defer close(pg.done)
	defer pg.cancel()

	runCtx, cancelRun := context.WithTimeout(pg.ctx, s.timeout)
	defer cancelRun()

	s.emitter.Emit(sess.ConnID, StatusEvent(statusGenerating))

	req := provider.Request{
		SystemPrompt: agent.SystemPrompt,
		Tools:        s.dispatcher.Definitions(agent.Tools),
		History:      prompt,
		UserText:     pg.userText,
	}

	var buf strings.Builder
	var records []domain.ToolCallRecord
	result := outcomeCompleted

	for frag, err := range s.provider.Generate(runCtx, req) {
		if err != nil {
			result = s.classify(sess.ConnID, runCtx, pg, err)
			break
		}
		if frag.IsToolCall() {
			s.emitter.Emit(sess.ConnID, ToolStartEvent(frag.ToolCall.Name))
			records = append(records, s.dispatcher.Invoke(runCtx, frag.ToolCall.Name, frag.ToolCall.Args))
		} else if frag.Text != "" {
			buf.WriteString(frag.Text)
			s.emitter.Emit(sess.ConnID, TokenEvent(frag.Text))
		}
		if pg.ctx.Err() != nil {
			result = outcomeCancelled
			break
		}
		if runCtx.Err() != nil {
			result = outcomeTimedOut
			break
		}
	}

	// Re-check after the stream ends: a supersession or disconnect that
	// raced the final fragment still discards the attempt.
	if result != outcomeCancelled && pg.ctx.Err() != nil {
		result = outcomeCancelled
	}

	if result == outcomeCancelled {
		s.logger.Info("generation discarded", "conn_id", sess.ConnID, "agent_id", agent.AgentID)
		sess.clearAttempt(pg)
		return
	}

	finalText := buf.String()
	switch result {
	case outcomeTimedOut:
		s.logger.Warn("generation timed out", "conn_id", sess.ConnID, "agent_id", agent.AgentID, "timeout", s.timeout)
		finalText = timeoutApology
		s.emitter.Emit(sess.ConnID, TokenEvent(finalText))
	case outcomeFailed:
		finalText = failureApology
		s.emitter.Emit(sess.ConnID, TokenEvent(finalText))
	}

	turn := &domain.Turn{
		AgentID:    agent.AgentID,
		UserID:     userID,
		Role:       domain.TurnRoleAssistant,
		Content:    finalText,
		Elapsed:    time.Since(pg.startedAt),
		ToolCalls:  records,
		TokenCount: domain.EstimateTokens(finalText),
	}

	persistCtx, cancelPersist := context.WithTimeout(context.Background(), persistTimeout)
	defer cancelPersist()
	if _, err := s.repo.SaveTurn(persistCtx, turn); err != nil {
		s.logger.Error("failed to persist assistant turn",
			"conn_id", sess.ConnID,
			"agent_id", agent.AgentID,
			"error", err,
		)
	}
	s.logTranscript(sess, agent, userID, domain.TurnRoleAssistant, finalText)

	s.emitter.Emit(sess.ConnID, StreamEndEvent(true))
	sess.completeAttempt(pg, finalText)

	s.logger.Info("generation finished",
		"conn_id", sess.ConnID,
		"agent_id", agent.AgentID,
		"elapsed", turn.Elapsed,
		"tokens", turn.TokenCount,
		"tool_calls", len(records),
	)
}

// classify maps a mid-stream error to an attempt outcome. Cancellation of
// the attempt context wins over the deadline so a superseded attempt is
// never mistaken for a timeout.
func (s *Scheduler) classify(connID string, runCtx context.Context, pg *pendingGeneration, err error) outcome {
	if pg.ctx.Err() != nil {
		return outcomeCancelled
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return outcomeTimedOut
	}
	s.logger.Error("generation failed", "conn_id", connID, "error", err)
	return outcomeFailed
}

func (s *Scheduler) logTranscript(sess *Session, agent *domain.Agent, userID string, role domain.TurnRole, content string) {
	if s.transcript == nil {
		return
	}
	s.transcript.Log(TranscriptEntry{
		Timestamp: time.Now().UTC(),
		ConnID:    sess.ConnID,
		AgentID:   agent.AgentID,
		UserID:    userID,
		Role:      string(role),
		Content:   content,
	})
}
