package observer

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/typepilot/internal/api"
	"github.com/nerrad567/typepilot/internal/delivery"
	"github.com/nerrad567/typepilot/internal/orchestrator"
	"github.com/nerrad567/typepilot/internal/session"
)

// maxFinishedSessions is how many finished sessions the projection keeps,
// the same bound the core applies per target.
const maxFinishedSessions = 20

// State is a copy of everything an observer knows about one target.
type State struct {
	Target     string
	Connected  bool
	Sessions   []session.Session // oldest first
	Reviews    []delivery.Review // oldest first
	Overlay    bool
	Generating bool
	LastNotice *orchestrator.Notice
}

// Active returns the session that is not yet finished, if any.
func (s State) Active() (session.Session, bool) {
	for i := len(s.Sessions) - 1; i >= 0; i-- {
		if !s.Sessions[i].Status.Terminal() {
			return s.Sessions[i], true
		}
	}
	return session.Session{}, false
}

type trackedSession struct {
	session.Session
	// epoch is the connection the entry was last updated on.
	epoch uint64
}

// Projection is the observer's read model of one target.
type Projection struct {
	mu         sync.RWMutex
	target     string
	epoch      uint64
	connected  bool
	sessions   map[string]trackedSession
	reviews    map[string]delivery.Review
	overlay    bool
	generating bool
	notice     *orchestrator.Notice
}

// NewProjection creates an empty projection for target.
func NewProjection(target string) *Projection {
	return &Projection{
		target:   target,
		overlay:  true,
		sessions: make(map[string]trackedSession),
		reviews:  make(map[string]delivery.Review),
	}
}

// Connected marks the start of a new connection. Entries updated on
// earlier connections are replaced by the next session snapshot.
func (p *Projection) Connected() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epoch++
	p.connected = true
}

// Disconnected marks the projection as possibly stale.
func (p *Projection) Disconnected() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
}

// setTarget records the target the core resolved for this connection.
func (p *Projection) setTarget(target string) {
	if target == "" {
		return
	}
	p.mu.Lock()
	p.target = target
	p.mu.Unlock()
}

// State returns a copy of the projection.
func (p *Projection) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := State{
		Target:     p.target,
		Connected:  p.connected,
		Sessions:   make([]session.Session, 0, len(p.sessions)),
		Reviews:    make([]delivery.Review, 0, len(p.reviews)),
		Overlay:    p.overlay,
		Generating: p.generating,
	}
	for _, ts := range p.sessions {
		st.Sessions = append(st.Sessions, ts.Session)
	}
	sort.Slice(st.Sessions, func(i, j int) bool {
		if !st.Sessions[i].CreatedAt.Equal(st.Sessions[j].CreatedAt) {
			return st.Sessions[i].CreatedAt.Before(st.Sessions[j].CreatedAt)
		}
		return st.Sessions[i].ID < st.Sessions[j].ID
	})
	for _, r := range p.reviews {
		st.Reviews = append(st.Reviews, r)
	}
	sort.Slice(st.Reviews, func(i, j int) bool {
		return st.Reviews[i].CreatedAt.Before(st.Reviews[j].CreatedAt)
	})
	if p.notice != nil {
		n := *p.notice
		st.LastNotice = &n
	}
	return st
}

// ApplySnapshot replaces the state of channel with a snapshot payload.
// Sessions already updated by an event on the current connection survive
// when their revision is newer than the snapshot's.
func (p *Projection) ApplySnapshot(channel string, payload json.RawMessage) error {
	switch channel {
	case api.ChannelSession:
		var snap api.SessionSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return fmt.Errorf("decoding session snapshot: %w", err)
		}
		p.replaceSessions(snap.Sessions)

	case api.ChannelReview:
		var snap api.ReviewSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return fmt.Errorf("decoding review snapshot: %w", err)
		}
		p.mu.Lock()
		p.reviews = make(map[string]delivery.Review, len(snap.Reviews))
		for _, r := range snap.Reviews {
			p.reviews[r.ID] = r
		}
		p.mu.Unlock()

	case api.ChannelOverlay:
		var st api.OverlayState
		if err := json.Unmarshal(payload, &st); err != nil {
			return fmt.Errorf("decoding overlay snapshot: %w", err)
		}
		p.mu.Lock()
		p.overlay = st.Visible
		p.mu.Unlock()

	case api.ChannelGeneration:
		var st api.GenerationState
		if err := json.Unmarshal(payload, &st); err != nil {
			return fmt.Errorf("decoding generation snapshot: %w", err)
		}
		p.mu.Lock()
		p.generating = st.Generating
		p.mu.Unlock()
	}
	return nil
}

func (p *Projection) replaceSessions(sessions []session.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[string]trackedSession, len(sessions))
	for _, s := range sessions {
		next[s.ID] = trackedSession{Session: s, epoch: p.epoch}
	}
	for id, old := range p.sessions {
		if old.epoch != p.epoch {
			continue
		}
		if cur, ok := next[id]; !ok || old.Revision > cur.Revision {
			next[id] = old
		}
	}
	p.sessions = next
}

// ApplyEvent folds one event into the projection. It reports whether the
// projection changed.
func (p *Projection) ApplyEvent(eventType string, payload json.RawMessage) (bool, error) {
	switch eventType {
	case api.EventSessionUpdated:
		var s session.Session
		if err := json.Unmarshal(payload, &s); err != nil {
			return false, fmt.Errorf("decoding session event: %w", err)
		}
		return p.mergeSession(s), nil

	case api.EventReviewPending:
		var r delivery.Review
		if err := json.Unmarshal(payload, &r); err != nil {
			return false, fmt.Errorf("decoding review event: %w", err)
		}
		p.mu.Lock()
		p.reviews[r.ID] = r
		p.mu.Unlock()
		return true, nil

	case api.EventReviewResolved:
		var res api.ReviewResolution
		if err := json.Unmarshal(payload, &res); err != nil {
			return false, fmt.Errorf("decoding review resolution: %w", err)
		}
		p.mu.Lock()
		_, had := p.reviews[res.Review.ID]
		delete(p.reviews, res.Review.ID)
		p.mu.Unlock()
		return had, nil

	case api.EventOverlayToggled:
		var st api.OverlayState
		if err := json.Unmarshal(payload, &st); err != nil {
			return false, fmt.Errorf("decoding overlay event: %w", err)
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		changed := p.overlay != st.Visible
		p.overlay = st.Visible
		return changed, nil

	case api.EventGenerationStarted, api.EventGenerationFinished:
		p.mu.Lock()
		defer p.mu.Unlock()
		generating := eventType == api.EventGenerationStarted
		changed := p.generating != generating
		p.generating = generating
		return changed, nil

	case api.EventNotice:
		var n orchestrator.Notice
		if err := json.Unmarshal(payload, &n); err != nil {
			return false, fmt.Errorf("decoding notice: %w", err)
		}
		p.mu.Lock()
		p.notice = &n
		p.mu.Unlock()
		return true, nil
	}
	return false, nil
}

// mergeSession keeps the incoming session unless a newer revision is known.
func (p *Projection) mergeSession(s session.Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.sessions[s.ID]; ok && cur.Revision >= s.Revision {
		return false
	}
	p.sessions[s.ID] = trackedSession{Session: s, epoch: p.epoch}
	if s.Status.Terminal() {
		p.pruneFinished()
	}
	return true
}

// pruneFinished drops the oldest finished sessions beyond
// maxFinishedSessions. Caller holds mu.
func (p *Projection) pruneFinished() {
	var finished []trackedSession
	for _, ts := range p.sessions {
		if ts.Status.Terminal() {
			finished = append(finished, ts)
		}
	}
	if len(finished) <= maxFinishedSessions {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].CreatedAt.Before(finished[j].CreatedAt)
	})
	for _, ts := range finished[:len(finished)-maxFinishedSessions] {
		delete(p.sessions, ts.ID)
	}
}
