package action

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/typepilot/internal/infrastructure/mqtt"
)

const hotkeyTopic = "typepilot/hotkey/desktop"

type mockSubscriber struct {
	mu       sync.Mutex
	handlers map[string]mqtt.MessageHandler
	err      error
}

func (m *mockSubscriber) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = make(map[string]mqtt.MessageHandler)
	}
	m.handlers[topic] = h
	return nil
}

func (m *mockSubscriber) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *mockSubscriber) handler(topic string) mqtt.MessageHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[topic]
}

// orderedBus delivers every message on one goroutine, in publish order,
// the way the MQTT client does with ordered delivery.
type orderedBus struct {
	mockSubscriber
	deliveries chan [2]string
}

func newOrderedBus(t *testing.T) *orderedBus {
	t.Helper()
	b := &orderedBus{deliveries: make(chan [2]string, 32)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-b.deliveries:
				if h := b.handler(d[0]); h != nil {
					_ = h(d[0], []byte(d[1]))
				}
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return b
}

func (b *orderedBus) publish(topic, payload string) {
	b.deliveries <- [2]string{topic, payload}
}

func recvAction(t *testing.T, ch <-chan Action) Action {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched action")
		return ""
	}
}

// ─── Resolution ─────────────────────────────────────────────────────────────

func TestHotkeySource(t *testing.T) {
	sub := &mockSubscriber{}
	got := make(chan Action, 8)
	var bindingsCalls int

	src := NewHotkeySource(sub, "desktop",
		func(context.Context) (Bindings, error) {
			bindingsCalls++
			return DefaultBindings(), nil
		},
		func(_ context.Context, target string, a Action) error {
			if target != "desktop" {
				t.Errorf("target = %q, want desktop", target)
			}
			got <- a
			return nil
		},
	)

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	h := sub.handler(hotkeyTopic)
	if h == nil {
		t.Fatal("hotkey topic not subscribed")
	}

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"combo", `{"combo":"Alt+Ctrl+X"}`, false},
		{"explicit action", `{"action":"toggle_overlay"}`, false},
		{"unbound combo", `{"combo":"ctrl+q"}`, true},
		{"unknown action", `{"action":"resume"}`, true},
		{"empty message", `{}`, true},
		{"not json", `ctrl+alt+x`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h(hotkeyTopic, []byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Errorf("handler error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if a := recvAction(t, got); a != Stop {
		t.Errorf("first dispatched = %v, want stop", a)
	}
	if a := recvAction(t, got); a != ToggleOverlay {
		t.Errorf("second dispatched = %v, want toggle-overlay", a)
	}
	if bindingsCalls != 2 {
		t.Errorf("bindings read %d times, want 2 (once per combo delivery)", bindingsCalls)
	}

	if err := src.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if sub.handler(hotkeyTopic) != nil {
		t.Error("hotkey topic still subscribed after Stop()")
	}
	select {
	case a := <-got:
		t.Errorf("unexpected extra dispatch %v", a)
	default:
	}
}

func TestHotkeySource_SubscribeError(t *testing.T) {
	sub := &mockSubscriber{err: mqtt.ErrNotConnected}
	src := NewHotkeySource(sub, "desktop", nil, nil)

	if err := src.Start(context.Background()); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
	if err := src.Stop(); err != nil {
		t.Errorf("Stop() after failed Start error = %v", err)
	}
}

func TestHotkeySource_StopWithoutStart(t *testing.T) {
	src := NewHotkeySource(&mockSubscriber{}, "desktop", nil, nil)
	if err := src.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

// ─── Dispatch ordering ──────────────────────────────────────────────────────

// An action whose handling waits on a reply delivered by the same bus
// goroutine must still complete.
func TestHotkeySource_HandlerCanWaitOnBusReply(t *testing.T) {
	bus := newOrderedBus(t)
	const replyTopic = "typepilot/engine/response/req-1"

	replied := make(chan struct{}, 1)
	if err := bus.Subscribe(replyTopic, 1, func(string, []byte) error {
		replied <- struct{}{}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	results := make(chan error, 1)
	src := NewHotkeySource(bus, "desktop", nil, func(ctx context.Context, _ string, a Action) error {
		if a != Pause {
			t.Errorf("action = %v, want pause", a)
		}
		bus.publish(replyTopic, `{"ok":true}`)
		select {
		case <-replied:
			results <- nil
			return nil
		case <-time.After(time.Second):
			err := errors.New("reply never delivered")
			results <- err
			return err
		case <-ctx.Done():
			results <- ctx.Err()
			return ctx.Err()
		}
	})
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = src.Stop() })

	bus.publish(hotkeyTopic, `{"action":"pause"}`)

	select {
	case err := <-results:
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestHotkeySource_PreservesOrder(t *testing.T) {
	sub := &mockSubscriber{}
	got := make(chan Action, 8)
	src := NewHotkeySource(sub, "desktop", nil, func(_ context.Context, _ string, a Action) error {
		got <- a
		return nil
	})
	if err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = src.Stop() })

	h := sub.handler(hotkeyTopic)
	for _, p := range []string{`{"action":"start"}`, `{"action":"pause"}`, `{"action":"pause"}`, `{"action":"stop"}`} {
		if err := h(hotkeyTopic, []byte(p)); err != nil {
			t.Fatalf("handler(%s) error = %v", p, err)
		}
	}

	want := []Action{Start, Pause, Pause, Stop}
	for i, w := range want {
		if a := recvAction(t, got); a != w {
			t.Errorf("dispatch %d = %v, want %v", i, a, w)
		}
	}
}

func TestHotkeySource_QueueFull(t *testing.T) {
	sub := &mockSubscriber{}
	entered := make(chan struct{}, 1)
	gate := make(chan struct{})
	src := NewHotkeySource(sub, "desktop", nil, func(ctx context.Context, _ string, _ Action) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
		}
		return nil
	})
	if err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		close(gate)
		_ = src.Stop()
	})

	h := sub.handler(hotkeyTopic)
	msg := []byte(`{"action":"pause"}`)
	if err := h(hotkeyTopic, msg); err != nil {
		t.Fatal(err)
	}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first action")
	}

	for i := 0; i < hotkeyQueueSize; i++ {
		if err := h(hotkeyTopic, msg); err != nil {
			t.Fatalf("delivery %d error = %v", i, err)
		}
	}
	if err := h(hotkeyTopic, msg); !errors.Is(err, ErrHotkeyQueueFull) {
		t.Errorf("overflow delivery error = %v, want ErrHotkeyQueueFull", err)
	}
}

func TestHotkeySource_ContextCancelStopsWorker(t *testing.T) {
	sub := &mockSubscriber{}
	src := NewHotkeySource(sub, "desktop", nil, func(context.Context, string, Action) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	if err := src.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	stopped := make(chan struct{})
	go func() {
		_ = src.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() blocked after context cancel")
	}
}
