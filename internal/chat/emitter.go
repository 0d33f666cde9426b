package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Sink is the outbound half of one client connection. Send must deliver the
// payload as a single text message.
type Sink interface {
	Send(ctx context.Context, payload []byte) error
}

const emitTimeout = 10 * time.Second

// Emitter delivers events to connections. Writes to the same connection are
// serialized through a per-connection mutex, so events arrive in the order
// they were emitted. Emitting to a detached or broken connection logs and
// drops the event instead of failing the caller; generation tasks keep
// running to completion even when nobody is listening anymore.
type Emitter struct {
	mu    sync.RWMutex
	conns map[string]*emitterConn

	logger *slog.Logger
}

type emitterConn struct {
	mu   sync.Mutex
	sink Sink
}

// NewEmitter creates an emitter with no attached connections.
func NewEmitter(logger *slog.Logger) *Emitter {
	return &Emitter{
		conns:  make(map[string]*emitterConn),
		logger: logger,
	}
}

// Attach registers the sink for a connection ID, replacing any previous one.
func (e *Emitter) Attach(connID string, sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns[connID] = &emitterConn{sink: sink}
}

// Detach removes the connection. Subsequent emits to it are dropped.
func (e *Emitter) Detach(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, connID)
}

// Emit sends one event to the connection. Best effort: a missing connection
// or a failed write is logged at debug level and otherwise ignored.
func (e *Emitter) Emit(connID string, ev Event) {
	e.mu.RLock()
	conn, ok := e.conns[connID]
	e.mu.RUnlock()
	if !ok {
		e.logger.Debug("event dropped, connection detached", "conn_id", connID, "event", ev.Kind)
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		e.logger.Error("failed to encode event", "conn_id", connID, "event", ev.Kind, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if err := conn.sink.Send(ctx, payload); err != nil {
		e.logger.Debug("event write failed", "conn_id", connID, "event", ev.Kind, "error", err)
	}
}
