// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Repository defines the interface for persisting users, agents and chat turns.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns (nil, nil) if absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// GetAgent retrieves an agent configuration by ID. Returns (nil, nil) if absent.
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)

	// CreateAgent persists a new agent configuration.
	CreateAgent(ctx context.Context, agent *domain.Agent) error

	// ListAgentsForOwner returns all agents owned by the given user.
	ListAgentsForOwner(ctx context.Context, ownerID string) ([]*domain.Agent, error)

	// SaveTurn persists a chat turn and returns its assigned turn ID.
	// The store assigns the creation timestamp; per-agent replay order is
	// insertion order.
	SaveTurn(ctx context.Context, turn *domain.Turn) (string, error)

	// LoadHistory returns all turns for an agent visible to the given owner,
	// oldest first. Agents not owned by ownerID yield an empty history.
	LoadHistory(ctx context.Context, agentID, ownerID string) ([]*domain.Turn, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
