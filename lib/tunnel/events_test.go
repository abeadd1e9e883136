package tunnel

import (
	"context"
	"sync"
	"testing"

	"github.com/go-i2p/wgmobile/lib/backend"
	apperrors "github.com/go-i2p/wgmobile/lib/errors"
	wgtest "github.com/go-i2p/wgmobile/lib/testutil"
)

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		typ  EventType
		want string
	}{
		{EventInitialized, "initialized"},
		{EventConnected, "connected"},
		{EventDisconnected, "disconnected"},
		{EventStateChanged, "state_changed"},
		{EventError, "error"},
		{EventType(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestEmitterDropsWhenFull(t *testing.T) {
	drops := 0
	e := newEventEmitter(2, func() { drops++ })

	for i := 0; i < 5; i++ {
		e.emitSimple(EventConnected, backend.StateUp, "up")
	}
	if e.droppedEvents() != 3 || drops != 3 {
		t.Errorf("dropped = %d (hook %d), want 3", e.droppedEvents(), drops)
	}

	e.close()
	e.close()
	e.emitSimple(EventConnected, backend.StateUp, "after close")

	n := 0
	for range e.channel() {
		n++
	}
	if n != 2 {
		t.Errorf("received %d events, want 2", n)
	}
}

func TestEmitterSetsTimestamp(t *testing.T) {
	e := newEventEmitter(1, nil)
	e.emitError(apperrors.Busy("connect"), "busy")
	ev := <-e.channel()
	if ev.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
	if ev.Type != EventError || !apperrors.IsBusy(ev.Error) {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestSubscribeReceivesLifecycleEvents(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	var mu sync.Mutex
	var got []EventType
	unsubscribe := c.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
	})

	_ = c.Initialize(ctx)
	_ = c.Connect(ctx, wgtest.ValidRawConfig(t))
	_ = c.Disconnect(ctx)
	_ = c.Disconnect(ctx)

	unsubscribe()
	unsubscribe()
	_ = c.Connect(ctx, wgtest.ValidRawConfig(t))

	mu.Lock()
	defer mu.Unlock()
	want := []EventType{
		EventInitialized,
		EventStateChanged, // backend pushes UP
		EventConnected,
		EventStateChanged, // backend pushes DOWN
		EventDisconnected,
	}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestEventsChannelAndClose(t *testing.T) {
	c, _ := newController(t, WithEventBufferSize(10))
	ctx := context.Background()

	_ = c.Initialize(ctx)
	_ = c.Connect(ctx, wgtest.ValidRawConfig(t))
	c.Close()

	var types []EventType
	for ev := range c.Events() {
		types = append(types, ev.Type)
	}
	if len(types) != 3 || types[0] != EventInitialized || types[2] != EventConnected {
		t.Errorf("events = %v", types)
	}
	if c.DroppedEventCount() != 0 {
		t.Errorf("DroppedEventCount() = %d", c.DroppedEventCount())
	}
}

func TestSubscriberCanReenter(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	var statuses []Status
	c.Subscribe(func(ev Event) {
		if ev.Type == EventConnected {
			statuses = append(statuses, c.Status(ctx))
			if err := c.Disconnect(ctx); !apperrors.IsBusy(err) {
				t.Errorf("re-entrant Disconnect() error = %v, want busy", err)
			}
		}
	})

	_ = c.Initialize(ctx)
	if err := c.Connect(ctx, wgtest.ValidRawConfig(t)); err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 1 || !statuses[0].IsConnected {
		t.Errorf("statuses = %+v", statuses)
	}
}
