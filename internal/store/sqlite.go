package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		agent_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		system_prompt TEXT NOT NULL,
		tools_json TEXT,
		owner_id TEXT NOT NULL REFERENCES users(user_id),
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_agents_owner ON agents(owner_id);

	CREATE TABLE IF NOT EXISTS turns (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		turn_id TEXT NOT NULL UNIQUE,
		agent_id TEXT NOT NULL REFERENCES agents(agent_id),
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		elapsed_ms INTEGER,
		tool_calls_json TEXT,
		token_count INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_agent ON turns(agent_id, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT user_id, username, role, created_at, updated_at FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var role string
	var createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &role, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.Role = domain.Role(role)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, role, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		role = excluded.role,
		updated_at = excluded.updated_at`

	role := user.Role
	if role == "" {
		role = domain.RoleUser
	}

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, string(role),
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent configuration by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	query := `SELECT agent_id, name, system_prompt, tools_json, owner_id, created_at
		FROM agents WHERE agent_id = ?`

	row := s.db.QueryRowContext(ctx, query, agentID)

	agent, err := scanAgent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}
	return agent, nil
}

// CreateAgent persists a new agent configuration.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	if agent.AgentID == "" {
		agent.AgentID = uuid.NewString()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now()
	}

	var toolsJSON interface{}
	if len(agent.Tools) > 0 {
		data, err := json.Marshal(agent.Tools)
		if err != nil {
			return fmt.Errorf("marshal agent tools: %w", err)
		}
		toolsJSON = string(data)
	}

	query := `INSERT INTO agents (agent_id, name, system_prompt, tools_json, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		agent.AgentID, agent.Name, agent.SystemPrompt, toolsJSON,
		agent.OwnerID, agent.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

// ListAgentsForOwner returns all agents owned by the given user.
func (s *SQLiteStore) ListAgentsForOwner(ctx context.Context, ownerID string) ([]*domain.Agent, error) {
	query := `SELECT agent_id, name, system_prompt, tools_json, owner_id, created_at
		FROM agents WHERE owner_id = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var agents []*domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

func scanAgent(scan func(dest ...any) error) (*domain.Agent, error) {
	var agent domain.Agent
	var toolsJSON sql.NullString
	var createdAt int64

	if err := scan(&agent.AgentID, &agent.Name, &agent.SystemPrompt, &toolsJSON,
		&agent.OwnerID, &createdAt); err != nil {
		return nil, err
	}

	if toolsJSON.Valid && toolsJSON.String != "" {
		if err := json.Unmarshal([]byte(toolsJSON.String), &agent.Tools); err != nil {
			return nil, fmt.Errorf("unmarshal agent tools: %w", err)
		}
	}
	agent.CreatedAt = time.Unix(createdAt, 0)
	return &agent, nil
}

// SaveTurn persists a chat turn and returns its assigned turn ID.
// Retries with exponential backoff on SQLITE_BUSY since turn writes race
// across sessions.
func (s *SQLiteStore) SaveTurn(ctx context.Context, turn *domain.Turn) (string, error) {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		id, err := s.saveTurnOnce(ctx, turn)
		if err == nil {
			return id, nil
		}
		lastErr = err

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		break
	}
	return "", fmt.Errorf("save turn: %w", lastErr)
}

func (s *SQLiteStore) saveTurnOnce(ctx context.Context, turn *domain.Turn) (string, error) {
	turnID := turn.TurnID
	if turnID == "" {
		turnID = uuid.NewString()
	}
	createdAt := time.Now()

	var toolCallsJSON interface{}
	if len(turn.ToolCalls) > 0 {
		data, err := json.Marshal(turn.ToolCalls)
		if err != nil {
			return "", fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCallsJSON = string(data)
	}

	query := `INSERT INTO turns (turn_id, agent_id, user_id, role, content,
		elapsed_ms, tool_calls_json, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		turnID, turn.AgentID, turn.UserID, string(turn.Role), turn.Content,
		turn.Elapsed.Milliseconds(), toolCallsJSON, turn.TokenCount,
		createdAt.UnixNano(),
	)
	if err != nil {
		return "", err
	}

	turn.TurnID = turnID
	turn.CreatedAt = createdAt
	return turnID, nil
}

// LoadHistory returns all turns for an agent visible to the given owner,
// oldest first. The join enforces that users only read history for agents
// they own.
func (s *SQLiteStore) LoadHistory(ctx context.Context, agentID, ownerID string) ([]*domain.Turn, error) {
	query := `
		SELECT t.turn_id, t.agent_id, t.user_id, t.role, t.content,
		       t.elapsed_ms, t.tool_calls_json, t.token_count, t.created_at
		FROM turns t
		JOIN agents a ON a.agent_id = t.agent_id
		WHERE t.agent_id = ? AND a.owner_id = ?
		ORDER BY t.seq ASC`

	rows, err := s.db.QueryContext(ctx, query, agentID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var turns []*domain.Turn
	for rows.Next() {
		var turn domain.Turn
		var role string
		var elapsedMs sql.NullInt64
		var toolCallsJSON sql.NullString
		var tokenCount sql.NullInt64
		var createdAt int64

		if err := rows.Scan(&turn.TurnID, &turn.AgentID, &turn.UserID, &role,
			&turn.Content, &elapsedMs, &toolCallsJSON, &tokenCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}

		turn.Role = domain.TurnRole(role)
		turn.Elapsed = time.Duration(elapsedMs.Int64) * time.Millisecond
		turn.TokenCount = int(tokenCount.Int64)
		turn.CreatedAt = time.Unix(0, createdAt)
		if toolCallsJSON.Valid && toolCallsJSON.String != "" {
			if err := json.Unmarshal([]byte(toolCallsJSON.String), &turn.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		turns = append(turns, &turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return turns, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
