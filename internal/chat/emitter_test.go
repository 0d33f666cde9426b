package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
)

func TestEmitterPreservesEventOrder(t *testing.T) {
	t.Parallel()

	emitter := NewEmitter(slog.Default())
	recorder := &eventRecorder{}
	emitter.Attach("conn-1", recorder)

	for i := 0; i < 100; i++ {
		emitter.Emit("conn-1", TokenEvent(fmt.Sprintf("t%03d", i)))
	}

	events := recorder.snapshot()
	if len(events) != 100 {
		t.Fatalf("expected 100 events, got %d", len(events))
	}
	for i, ev := range events {
		if want := fmt.Sprintf("t%03d", i); ev.Token != want {
			t.Fatalf("event %d out of order: got %q, want %q", i, ev.Token, want)
		}
	}
}

func TestEmitToDetachedConnectionIsDropped(t *testing.T) {
	t.Parallel()

	emitter := NewEmitter(slog.Default())
	recorder := &eventRecorder{}
	emitter.Attach("conn-1", recorder)
	emitter.Detach("conn-1")

	emitter.Emit("conn-1", TokenEvent("late"))
	emitter.Emit("never-attached", TokenEvent("ghost"))

	if got := recorder.snapshot(); len(got) != 0 {
		t.Fatalf("detached connection must not receive events, got %+v", got)
	}
}

type failingSink struct{}

func (failingSink) Send(context.Context, []byte) error {
	return errors.New("connection reset")
}

func TestEmitSurvivesBrokenSink(t *testing.T) {
	t.Parallel()

	emitter := NewEmitter(slog.Default())
	emitter.Attach("conn-1", failingSink{})

	// Must not panic or block.
	emitter.Emit("conn-1", StreamEndEvent(true))
}
