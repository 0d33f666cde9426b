// Package api provides HTTP handlers for the agentdesk REST API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ashureev/agentdesk/internal/auth"
	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/identity"
	"github.com/ashureev/agentdesk/internal/store"
)

const maxRequestBodySize = 64 * 1024

// Handler serves agent management and history endpoints.
type Handler struct {
	repo  store.Repository
	authz auth.Authorizer
}

// NewHandler creates a new Handler.
func NewHandler(repo store.Repository, authz auth.Authorizer) *Handler {
	return &Handler{repo: repo, authz: authz}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes registers the agent management routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/agents", func(r chi.Router) {
		r.Get("/", h.ListAgents)
		r.Post("/", h.CreateAgent)
		r.Get("/{agentID}", h.GetAgent)
		r.Get("/{agentID}/history", h.GetHistory)
	})
}

// ListAgents returns the agents owned by the requesting user.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	agents, err := h.repo.ListAgentsForOwner(r.Context(), userID)
	if err != nil {
		slog.Error("failed to list agents", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	if agents == nil {
		agents = []*domain.Agent{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

type createAgentRequest struct {
	Name         string   `json:"name"`
	SystemPrompt string   `json:"system_prompt"`
	Tools        []string `json:"tools"`
}

// CreateAgent registers a new agent owned by the requesting user.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		Error(w, http.StatusBadRequest, "name is required")
		return
	}

	agent := &domain.Agent{
		AgentID:      uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		SystemPrompt: req.SystemPrompt,
		Tools:        req.Tools,
		OwnerID:      userID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.repo.CreateAgent(r.Context(), agent); err != nil {
		slog.Error("failed to create agent", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create agent")
		return
	}

	slog.Info("agent created", "agent_id", agent.AgentID, "owner_id", userID, "tools", len(agent.Tools))
	JSON(w, http.StatusCreated, agent)
}

// GetAgent returns one agent if it is visible to the requesting user.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	agentID := chi.URLParam(r, "agentID")

	agent, ok := h.visibleAgent(w, r, userID, agentID)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, agent)
}

// GetHistory returns the stored conversation for an agent, oldest first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	agentID := chi.URLParam(r, "agentID")

	if _, ok := h.visibleAgent(w, r, userID, agentID); !ok {
		return
	}

	turns, err := h.repo.LoadHistory(r.Context(), agentID, userID)
	if err != nil {
		slog.Error("failed to load history", "agent_id", agentID, "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if turns == nil {
		turns = []*domain.Turn{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"turns": turns})
}

// visibleAgent loads an agent and enforces visibility, writing the error
// response itself when the agent is missing or hidden.
func (h *Handler) visibleAgent(w http.ResponseWriter, r *http.Request, userID, agentID string) (*domain.Agent, bool) {
	agent, err := h.repo.GetAgent(r.Context(), agentID)
	if err != nil {
		slog.Error("failed to load agent", "agent_id", agentID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load agent")
		return nil, false
	}
	if agent == nil {
		Error(w, http.StatusNotFound, "agent not found")
		return nil, false
	}

	allowed, err := h.authz.CanAccessAgent(r.Context(), userID, agentID)
	if err != nil {
		slog.Error("authorization check failed", "agent_id", agentID, "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "authorization check failed")
		return nil, false
	}
	if !allowed {
		// Hide existence from unauthorized callers.
		Error(w, http.StatusNotFound, "agent not found")
		return nil, false
	}
	return agent, true
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"status": "healthy",
		"checks": map[string]string{"api": "ok"},
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("health check failed", "error", err)
		status["status"] = "degraded"
		status["checks"].(map[string]string)["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		status["checks"].(map[string]string)["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
