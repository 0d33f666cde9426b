package chat

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ashureev/agentdesk/internal/auth"
	"github.com/ashureev/agentdesk/internal/domain"
)

func newTestRegistry(t *testing.T) (*Registry, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	return NewRegistry(repo, auth.NewStoreAuthorizer(repo), slog.Default()), repo
}

func TestOpenRejectsDuplicateConnection(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	if _, err := reg.Open("conn-1"); err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if _, err := reg.Open("conn-1"); !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("second Open = %v, want ErrDuplicateConnection", err)
	}
}

func TestBindUnknownAgent(t *testing.T) {
	t.Parallel()

	reg, repo := newTestRegistry(t)
	seedUserAndAgent(t, repo, "user-1", "agent-1", nil)

	if _, err := reg.Open("conn-1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	err := reg.Bind(context.Background(), "conn-1", "no-such-agent", "user-1")
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("Bind = %v, want ErrAgentNotFound", err)
	}

	sess, _ := reg.Get("conn-1")
	if _, _, bound := sess.binding(); bound {
		t.Fatal("failed bind must leave the session unbound")
	}
}

func TestBindDeniesForeignAgent(t *testing.T) {
	t.Parallel()

	reg, repo := newTestRegistry(t)
	seedUserAndAgent(t, repo, "owner-1", "agent-1", nil)
	now := time.Now()
	if err := repo.UpsertUser(context.Background(), &domain.User{
		UserID: "intruder", Username: "x", Role: domain.RoleUser,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	if _, err := reg.Open("conn-1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	err := reg.Bind(context.Background(), "conn-1", "agent-1", "intruder")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Bind = %v, want ErrUnauthorized", err)
	}
}

func TestBindAllowsAdminOnForeignAgent(t *testing.T) {
	t.Parallel()

	reg, repo := newTestRegistry(t)
	seedUserAndAgent(t, repo, "owner-1", "agent-1", nil)
	now := time.Now()
	if err := repo.UpsertUser(context.Background(), &domain.User{
		UserID: "boss", Username: "boss", Role: domain.RoleAdmin,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	if _, err := reg.Open("conn-1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := reg.Bind(context.Background(), "conn-1", "agent-1", "boss"); err != nil {
		t.Fatalf("admin Bind failed: %v", err)
	}
}

func TestBindOnUnknownConnection(t *testing.T) {
	t.Parallel()

	reg, repo := newTestRegistry(t)
	seedUserAndAgent(t, repo, "user-1", "agent-1", nil)

	err := reg.Bind(context.Background(), "ghost", "agent-1", "user-1")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Bind = %v, want ErrSessionNotFound", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	if _, err := reg.Open("conn-1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	reg.Close("conn-1")
	reg.Close("conn-1")
	reg.Close("never-opened")

	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d sessions", reg.Len())
	}
}
