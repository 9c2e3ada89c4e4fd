package action

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/typepilot/internal/infrastructure/mqtt"
)

// hotkeyQoS is the MQTT QoS for hotkey deliveries.
const hotkeyQoS = 1

// hotkeyDispatchTimeout bounds the handler call for a single hotkey.
const hotkeyDispatchTimeout = 10 * time.Second

// hotkeyQueueSize is how many resolved hotkeys may wait for the worker.
const hotkeyQueueSize = 16

// Subscriber is the part of the MQTT client the hotkey source needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// BindingsFunc returns the current hotkey bindings. It is called per
// delivery so edits to the settings file apply without a restart.
type BindingsFunc func(ctx context.Context) (Bindings, error)

// Handler receives every resolved action.
type Handler func(ctx context.Context, target string, a Action) error

// Logger is the logging interface used by the hotkey source.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// HotkeyMessage is the payload on typepilot/hotkey/{target}. The listener
// sends either the raw combo or an already-resolved action.
type HotkeyMessage struct {
	Combo  string `json:"combo,omitempty"`
	Action string `json:"action,omitempty"`
}

// HotkeySource turns MQTT hotkey deliveries into Actions for one target.
//
// The MQTT client delivers messages on a single ordered goroutine, and
// handling an action can wait on an engine reply that arrives through
// the same client. Deliveries are therefore only resolved on the MQTT
// goroutine; a worker runs the handler in arrival order.
type HotkeySource struct {
	sub      Subscriber
	target   string
	bindings BindingsFunc
	handler  Handler
	logger   Logger

	queue chan Action

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	done    chan struct{}
}

// NewHotkeySource creates a source for target. Nothing is subscribed until Start.
func NewHotkeySource(sub Subscriber, target string, bindings BindingsFunc, handler Handler) *HotkeySource {
	return &HotkeySource{
		sub:      sub,
		target:   target,
		bindings: bindings,
		handler:  handler,
		logger:   noopLogger{},
		queue:    make(chan Action, hotkeyQueueSize),
	}
}

// SetLogger sets the logger. Must be called before Start.
func (s *HotkeySource) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Start starts the dispatch worker and subscribes to the target's hotkey
// topic. ctx is the parent of every dispatch; cancelling it stops the worker.
func (s *HotkeySource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx, s.quit, s.done)

	if err := s.sub.Subscribe(mqtt.Topics{}.Hotkey(s.target), hotkeyQoS, s.handle); err != nil {
		s.stopWorker()
		return fmt.Errorf("subscribing to hotkeys: %w", err)
	}
	return nil
}

// Stop unsubscribes from the hotkey topic and waits for the action being
// dispatched, if any. Queued actions that have not started are dropped.
func (s *HotkeySource) Stop() error {
	err := s.sub.Unsubscribe(mqtt.Topics{}.Hotkey(s.target))
	s.stopWorker()
	return err
}

func (s *HotkeySource) stopWorker() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.quit)
	done := s.done
	s.mu.Unlock()
	<-done
}

func (s *HotkeySource) run(ctx context.Context, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case a := <-s.queue:
			s.dispatch(ctx, a)
		}
	}
}

func (s *HotkeySource) dispatch(ctx context.Context, a Action) {
	ctx, cancel := context.WithTimeout(ctx, hotkeyDispatchTimeout)
	defer cancel()
	if err := s.handler(ctx, s.target, a); err != nil {
		s.logger.Debug("hotkey action failed", "target", s.target, "action", a, "error", err)
	}
}

// handle runs on the MQTT delivery goroutine and must not block.
func (s *HotkeySource) handle(_ string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), hotkeyDispatchTimeout)
	defer cancel()

	a, err := s.resolve(ctx, payload)
	if err != nil {
		return err
	}

	select {
	case s.queue <- a:
		return nil
	default:
		s.logger.Warn("hotkey queue full, delivery dropped", "target", s.target, "action", a)
		return fmt.Errorf("%w: %s", ErrHotkeyQueueFull, a)
	}
}

func (s *HotkeySource) resolve(ctx context.Context, payload []byte) (Action, error) {
	var msg HotkeyMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", fmt.Errorf("decoding hotkey message: %w", err)
	}

	if msg.Action != "" {
		return Parse(msg.Action)
	}
	if msg.Combo == "" {
		return "", fmt.Errorf("%w: empty hotkey message", ErrInvalidCombo)
	}

	bindings, err := s.bindings(ctx)
	if err != nil {
		return "", fmt.Errorf("loading hotkey bindings: %w", err)
	}
	a, ok := bindings.Resolve(msg.Combo)
	if !ok {
		return "", fmt.Errorf("%w: %q is not bound", ErrInvalidCombo, msg.Combo)
	}
	return a, nil
}
