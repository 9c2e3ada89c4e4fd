package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nerrad567/typepilot/internal/infrastructure/mqtt"
	"github.com/nerrad567/typepilot/internal/session"
)

// sessionFanout delivers every session update to each publisher in turn.
type sessionFanout []session.Publisher

// SessionUpdated implements session.Publisher.
func (f sessionFanout) SessionUpdated(s session.Session) {
	for _, p := range f {
		p.SessionUpdated(s)
	}
}

// retainedPublisher is the part of the MQTT client the mirror uses.
type retainedPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

type mirrorLogger interface {
	Warn(msg string, args ...any)
}

// sessionMirror publishes the latest session of each target as a retained
// MQTT message on typepilot/core/session/{target}, so bus-side listeners
// see the current session without a websocket.
//
// SessionUpdated never blocks: updates are coalesced per target and the
// newest one is published by Run.
type sessionMirror struct {
	bus    retainedPublisher
	logger mirrorLogger

	mu      sync.Mutex
	pending map[string]session.Session
	wake    chan struct{}
}

func newSessionMirror(bus retainedPublisher, logger mirrorLogger) *sessionMirror {
	return &sessionMirror{
		bus:     bus,
		logger:  logger,
		pending: make(map[string]session.Session),
		wake:    make(chan struct{}, 1),
	}
}

// SessionUpdated implements session.Publisher.
func (m *sessionMirror) SessionUpdated(s session.Session) {
	m.mu.Lock()
	if prev, ok := m.pending[s.Target]; ok && prev.ID == s.ID && prev.Revision > s.Revision {
		m.mu.Unlock()
		return
	}
	m.pending[s.Target] = s
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run publishes pending updates until ctx is cancelled, then flushes
// whatever is left.
func (m *sessionMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.flush()
			return
		case <-m.wake:
			m.flush()
		}
	}
}

func (m *sessionMirror) flush() {
	m.mu.Lock()
	batch := m.pending
	m.pending = make(map[string]session.Session, len(batch))
	m.mu.Unlock()

	for target, s := range batch {
		payload, err := json.Marshal(s)
		if err != nil {
			m.logger.Warn("encoding session mirror", "session_id", s.ID, "error", err)
			continue
		}
		if err := m.bus.Publish(mqtt.Topics{}.CoreSession(target), payload, 1, true); err != nil {
			m.logger.Warn("publishing session mirror", "target", target, "error", err)
		}
	}
}
