package chat

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/agentdesk/internal/auth"
	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/provider"
	"github.com/ashureev/agentdesk/internal/tools"
)

// memRepo is an in-memory Repository for engine tests.
type memRepo struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	agents map[string]*domain.Agent
	turns  []*domain.Turn
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:  make(map[string]*domain.User),
		agents: make(map[string]*domain.Agent),
	}
}

func (m *memRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID], nil
}

func (m *memRepo) UpsertUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *user
	m.users[user.UserID] = &u
	return nil
}

func (m *memRepo) GetAgent(_ context.Context, agentID string) (*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agents[agentID], nil
}

func (m *memRepo) CreateAgent(_ context.Context, agent *domain.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := *agent
	m.agents[agent.AgentID] = &a
	return nil
}

func (m *memRepo) ListAgentsForOwner(_ context.Context, ownerID string) ([]*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Agent
	for _, a := range m.agents {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) SaveTurn(_ context.Context, turn *domain.Turn) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if turn.TurnID == "" {
		turn.TurnID = uuid.NewString()
	}
	turn.CreatedAt = time.Now()
	saved := *turn
	m.turns = append(m.turns, &saved)
	return turn.TurnID, nil
}

func (m *memRepo) LoadHistory(_ context.Context, agentID, ownerID string) ([]*domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent := m.agents[agentID]
	if agent == nil || agent.OwnerID != ownerID {
		return nil, nil
	}
	var out []*domain.Turn
	for _, t := range m.turns {
		if t.AgentID == agentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memRepo) Ping(context.Context) error { return nil }
func (m *memRepo) Close() error               { return nil }

// turnsByRole returns saved turns with the given role, in save order.
func (m *memRepo) turnsByRole(role domain.TurnRole) []*domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Turn
	for _, t := range m.turns {
		if t.Role == role {
			out = append(out, t)
		}
	}
	return out
}

// providerFunc adapts a function to the Provider interface.
type providerFunc func(ctx context.Context, req provider.Request) iter.Seq2[provider.Fragment, error]

func (f providerFunc) Generate(ctx context.Context, req provider.Request) iter.Seq2[provider.Fragment, error] {
	return f(ctx, req)
}

// textProvider yields the given text fragments and stops.
func textProvider(fragments ...string) provider.Provider {
	return providerFunc(func(_ context.Context, _ provider.Request) iter.Seq2[provider.Fragment, error] {
		return func(yield func(provider.Fragment, error) bool) {
			for _, text := range fragments {
				if !yield(provider.Fragment{Text: text}, nil) {
					return
				}
			}
		}
	})
}

// blockingProvider blocks until the context is cancelled, then yields the
// context error.
func blockingProvider() provider.Provider {
	return providerFunc(func(ctx context.Context, _ provider.Request) iter.Seq2[provider.Fragment, error] {
		return func(yield func(provider.Fragment, error) bool) {
			<-ctx.Done()
			yield(provider.Fragment{}, ctx.Err())
		}
	})
}

// eventRecorder is a Sink that captures decoded events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Send(_ context.Context, payload []byte) error {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) count(kind EventKind) int {
	n := 0
	for _, ev := range r.snapshot() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// waitFor blocks until an event matching the predicate has been recorded.
func (r *eventRecorder) waitFor(t *testing.T, desc string, match func(Event) bool) Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range r.snapshot() {
			if match(ev) {
				return ev
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for event: %s (got %+v)", desc, r.snapshot())
	return Event{}
}

func (r *eventRecorder) waitForKind(t *testing.T, kind EventKind) Event {
	t.Helper()
	return r.waitFor(t, string(kind), func(ev Event) bool { return ev.Kind == kind })
}

// testEngine bundles a wired chat engine against in-memory dependencies.
type testEngine struct {
	repo      *memRepo
	emitter   *Emitter
	registry  *Registry
	scheduler *Scheduler
	recorder  *eventRecorder

	connID  string
	agentID string
	userID  string
}

type engineOption func(*engineConfig)

type engineConfig struct {
	timeout    time.Duration
	dispatcher *tools.Dispatcher
	agentTools []string
}

func withTimeout(d time.Duration) engineOption {
	return func(c *engineConfig) { c.timeout = d }
}

func withDispatcher(d *tools.Dispatcher, agentTools []string) engineOption {
	return func(c *engineConfig) {
		c.dispatcher = d
		c.agentTools = agentTools
	}
}

// newTestEngine wires a full engine with one open, bound session.
func newTestEngine(t *testing.T, prov provider.Provider, opts ...engineOption) *testEngine {
	t.Helper()

	ec := engineConfig{
		timeout:    5 * time.Second,
		dispatcher: tools.NewDispatcher(),
	}
	for _, opt := range opts {
		opt(&ec)
	}

	repo := newMemRepo()
	logger := slog.Default()

	userID := "user-" + uuid.NewString()[:8]
	agentID := "agent-" + uuid.NewString()[:8]
	seedUserAndAgent(t, repo, userID, agentID, ec.agentTools)

	emitter := NewEmitter(logger)
	registry := NewRegistry(repo, auth.NewStoreAuthorizer(repo), logger)
	scheduler := NewScheduler(registry, repo, prov, ec.dispatcher, emitter, nil, ec.timeout, logger)

	connID := uuid.NewString()
	if _, err := registry.Open(connID); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	recorder := &eventRecorder{}
	emitter.Attach(connID, recorder)

	if err := registry.Bind(context.Background(), connID, agentID, userID); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	return &testEngine{
		repo:      repo,
		emitter:   emitter,
		registry:  registry,
		scheduler: scheduler,
		recorder:  recorder,
		connID:    connID,
		agentID:   agentID,
		userID:    userID,
	}
}

func seedUserAndAgent(t *testing.T, repo *memRepo, userID, agentID string, agentTools []string) {
	t.Helper()
	now := time.Now()
	if err := repo.UpsertUser(context.Background(), &domain.User{
		UserID:    userID,
		Username:  "tester",
		Role:      domain.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	if err := repo.CreateAgent(context.Background(), &domain.Agent{
		AgentID:      agentID,
		Name:         "helper",
		SystemPrompt: "You are a helpful assistant.",
		Tools:        agentTools,
		OwnerID:      userID,
		CreatedAt:    now,
	}); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}
}

// fakeTool is a scripted tool implementation.
type fakeTool struct {
	name   string
	result string
	err    error

	mu    sync.Mutex
	calls []map[string]any
}

func (f *fakeTool) Name() string                { return f.name }
func (f *fakeTool) Description() string         { return "test tool" }
func (f *fakeTool) Parameters() json.RawMessage { return nil }

func (f *fakeTool) invocations() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.calls...)
}

func (f *fakeTool) Invoke(_ context.Context, args map[string]any) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

// waitUntil polls a condition until it holds or the deadline passes.
func waitUntil(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}
