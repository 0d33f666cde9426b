// Package auth implements the agent visibility policy.
package auth

import (
	"context"
	"fmt"

	"github.com/ashureev/agentdesk/internal/store"
)

// Authorizer decides whether a user may bind a chat session to an agent.
type Authorizer interface {
	// CanAccessAgent reports whether userID may chat with agentID.
	// A missing agent is not an authorization error; callers resolve the
	// agent first and treat absence separately.
	CanAccessAgent(ctx context.Context, userID, agentID string) (bool, error)
}

// StoreAuthorizer applies the role/ownership policy against the repository:
// admins may access any agent, everyone else only agents they own.
type StoreAuthorizer struct {
	repo store.Repository
}

// NewStoreAuthorizer creates an Authorizer backed by the repository.
func NewStoreAuthorizer(repo store.Repository) *StoreAuthorizer {
	return &StoreAuthorizer{repo: repo}
}

// CanAccessAgent reports whether userID may chat with agentID.
func (a *StoreAuthorizer) CanAccessAgent(ctx context.Context, userID, agentID string) (bool, error) {
	agent, err := a.repo.GetAgent(ctx, agentID)
	if err != nil {
		return false, fmt.Errorf("load agent: %w", err)
	}
	if agent == nil {
		return false, nil
	}
	if agent.OwnerID == userID {
		return true, nil
	}

	user, err := a.repo.GetUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	return user != nil && user.IsAdmin(), nil
}
