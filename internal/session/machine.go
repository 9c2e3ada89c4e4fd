package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// maxTextChars bounds a single session's text.
	maxTextChars = 100_000

	commandBuffer   = 32
	telemetryBuffer = 256

	// Progress for an engine session id we have not been told about yet is
	// held until the start acknowledgement arrives.
	maxPendingSessions = 8
	maxPendingEvents   = 64

	// retainTerminal is how many finished sessions per target stay in memory.
	retainTerminal = 20

	defaultEngineTimeout = 5 * time.Second
	persistTimeout       = 2 * time.Second
)

// Config holds the machine's timing parameters.
type Config struct {
	Countdown     time.Duration
	EngineTimeout time.Duration
}

type entry struct {
	sess      Session
	stopTimer func() bool
	starting  bool
}

// Machine is the single writer of session state.
type Machine struct {
	cfg       Config
	engine    Engine
	publisher Publisher
	repo      Repository
	metrics   MetricsWriter
	logger    Logger

	commands  chan func()
	telemetry chan ProgressEvent
	done      chan struct{}
	runOnce   sync.Once

	// Owned by the actor goroutine.
	entries  map[string]*entry
	byEngine map[string]string
	active   map[string]string
	pending  map[string][]ProgressEvent
	starting int
	epochs   map[string]uint64

	viewMu     sync.RWMutex
	views      map[string]Session
	viewEpochs map[string]uint64

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) func() bool
	newID     func() string
}

// NewMachine creates a session machine. publisher, repo and logger may be nil.
// The machine does nothing until Run is called.
func NewMachine(cfg Config, engine Engine, publisher Publisher, repo Repository, logger Logger) *Machine {
	if cfg.EngineTimeout <= 0 {
		cfg.EngineTimeout = defaultEngineTimeout
	}
	if cfg.Countdown < 0 {
		cfg.Countdown = 0
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Machine{
		cfg:        cfg,
		engine:     engine,
		publisher:  publisher,
		repo:       repo,
		logger:     logger,
		commands:   make(chan func(), commandBuffer),
		telemetry:  make(chan ProgressEvent, telemetryBuffer),
		done:       make(chan struct{}),
		entries:    make(map[string]*entry),
		byEngine:   make(map[string]string),
		active:     make(map[string]string),
		pending:    make(map[string][]ProgressEvent),
		epochs:     make(map[string]uint64),
		views:      make(map[string]Session),
		viewEpochs: make(map[string]uint64),
		now:        func() time.Time { return time.Now().UTC() },
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		newID: uuid.NewString,
	}
}

// SetMetrics attaches a telemetry writer. Must be called before Run.
func (m *Machine) SetMetrics(w MetricsWriter) {
	m.metrics = w
}

// Run processes commands and telemetry until ctx is cancelled.
// On exit any live session is stopped. Run may only be called once.
func (m *Machine) Run(ctx context.Context) error {
	started := false
	m.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("session: machine already ran")
	}
	defer close(m.done)
	defer m.shutdown()

	for {
		select {
		case cmd := <-m.commands:
			cmd()
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case cmd := <-m.commands:
			cmd()
		case ev := <-m.telemetry:
			m.drainCommands()
			m.applyProgress(ev)
		}
	}
}

func (m *Machine) drainCommands() {
	for {
		select {
		case cmd := <-m.commands:
			cmd()
		default:
			return
		}
	}
}

// call runs fn on the actor and waits for it. Once accepted, fn always
// completes even if ctx is cancelled.
func (m *Machine) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case m.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrNotRunning
	}

	select {
	case <-finished:
		return nil
	case <-m.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrNotRunning
		}
	}
}

// post queues an internal event from a timer or engine goroutine.
func (m *Machine) post(fn func()) {
	select {
	case m.commands <- fn:
	case <-m.done:
	}
}

// ─── Commands ───────────────────────────────────────────────────────────────

// Start creates a session in countdown for target. A target may have at most
// one live session; a second Start returns ErrSessionActive.
func (m *Machine) Start(ctx context.Context, target, text string, profile SpeedProfile) (Session, error) {
	if err := validateStart(target, text, profile); err != nil {
		return Session{}, err
	}

	var (
		out Session
		err error
	)
	if callErr := m.call(ctx, func() { out, err = m.start(target, text, profile) }); callErr != nil {
		return Session{}, callErr
	}
	return out, err
}

// StartAtEpoch is Start for deliveries that were requested earlier, such as
// a finished generation. It fails with ErrStoppedSince when target has seen a
// panic stop since epoch was read from StopEpoch. The check and the start
// happen in one actor turn.
func (m *Machine) StartAtEpoch(ctx context.Context, target, text string, profile SpeedProfile, epoch uint64) (Session, error) {
	if err := validateStart(target, text, profile); err != nil {
		return Session{}, err
	}

	var (
		out Session
		err error
	)
	callErr := m.call(ctx, func() {
		if current := m.epochs[target]; current != epoch {
			m.logger.Info("deferred start dropped after stop",
				"target", target, "epoch", epoch, "current_epoch", current)
			err = fmt.Errorf("%w: epoch %d, now %d", ErrStoppedSince, epoch, current)
			return
		}
		out, err = m.start(target, text, profile)
	})
	if callErr != nil {
		return Session{}, callErr
	}
	return out, err
}

func validateStart(target, text string, profile SpeedProfile) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("%w: target is required", ErrValidation)
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if n := utf8.RuneCountInString(text); n > maxTextChars {
		return fmt.Errorf("%w: %d characters (max %d)", ErrTextTooLong, n, maxTextChars)
	}
	return profile.Validate()
}

func (m *Machine) start(target, text string, profile SpeedProfile) (Session, error) {
	if id, ok := m.active[target]; ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionActive, id)
	}

	now := m.now()
	endsAt := now.Add(m.cfg.Countdown)
	e := &entry{sess: Session{
		ID:              m.newID(),
		Target:          target,
		Text:            text,
		Profile:         profile,
		Status:          StatusCountdown,
		TotalChars:      utf8.RuneCountInString(text),
		CreatedAt:       now,
		CountdownEndsAt: &endsAt,
	}}
	id := e.sess.ID
	m.entries[id] = e
	m.active[target] = id
	m.commit(e)

	m.logger.Info("session countdown started",
		"session_id", id,
		"target", target,
		"profile", profile.String(),
		"chars", e.sess.TotalChars,
	)

	e.stopTimer = m.afterFunc(m.cfg.Countdown, func() {
		m.post(func() { m.countdownElapsed(id) })
	})
	return e.sess, nil
}

// Pause pauses a typing session.
func (m *Machine) Pause(ctx context.Context, id string) (Result, error) {
	var (
		res Result
		err error
	)
	if callErr := m.call(ctx, func() { res, err = m.pause(id) }); callErr != nil {
		return Result{}, callErr
	}
	return res, err
}

// Resume resumes a paused session.
func (m *Machine) Resume(ctx context.Context, id string) (Result, error) {
	var (
		res Result
		err error
	)
	if callErr := m.call(ctx, func() { res, err = m.resume(id) }); callErr != nil {
		return Result{}, callErr
	}
	return res, err
}

// TogglePause pauses or resumes the target's live session.
func (m *Machine) TogglePause(ctx context.Context, target string) (Result, error) {
	var (
		res Result
		err error
	)
	callErr := m.call(ctx, func() {
		id, ok := m.active[target]
		if !ok {
			res = m.stale("toggle-pause", "", "no active session")
			res.Effect = EffectIgnored
			return
		}
		switch m.entries[id].sess.Status {
		case StatusPaused:
			res, err = m.resume(id)
		default:
			res, err = m.pause(id)
		}
	})
	if callErr != nil {
		return Result{}, callErr
	}
	return res, err
}

// Stop stops the session's target. Unknown or finished sessions are stale.
func (m *Machine) Stop(ctx context.Context, id string) (Result, error) {
	var (
		res Result
		err error
	)
	callErr := m.call(ctx, func() {
		e, ok := m.entries[id]
		if !ok || e.sess.Status.Terminal() {
			res = m.stale("stop", id, "session not live")
			return
		}
		_, err = m.stopAll(e.sess.Target)
		res = Result{SessionID: id, Status: e.sess.Status}
	})
	if callErr != nil {
		return Result{}, callErr
	}
	return res, err
}

// StopAll is the panic stop: every live session on target becomes stopped
// with progress 0 and the engine is told to stop, even when nothing is live.
// An engine error is returned but local state is stopped regardless.
func (m *Machine) StopAll(ctx context.Context, target string) (StopResult, error) {
	var (
		res StopResult
		err error
	)
	if callErr := m.call(ctx, func() { res, err = m.stopAll(target) }); callErr != nil {
		return StopResult{Target: target}, callErr
	}
	return res, err
}

// HandleProgress queues an engine progress event. Intermediate progress is
// dropped when the buffer is full since a later event supersedes it; final
// events (completed, stopped, error) wait for room.
func (m *Machine) HandleProgress(ev ProgressEvent) {
	switch ev.Status {
	case EngineStatusCompleted, EngineStatusStopped, EngineStatusError:
	default:
		if ev.Progress < 100 {
			select {
			case m.telemetry <- ev:
			case <-m.done:
			default:
				m.logger.Warn("telemetry buffer full, progress dropped", "engine_session_id", ev.SessionID)
			}
			return
		}
	}

	select {
	case m.telemetry <- ev:
	case <-m.done:
	}
}

// ─── Views ──────────────────────────────────────────────────────────────────

// Snapshot returns every known session for target, oldest first.
func (m *Machine) Snapshot(target string) []Session {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()

	out := make([]Session, 0, len(m.views))
	for _, s := range m.views {
		if s.Target == target {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Get returns a session by id.
func (m *Machine) Get(id string) (Session, bool) {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	s, ok := m.views[id]
	return s, ok
}

// Active returns the target's live session, if any.
func (m *Machine) Active(target string) (Session, bool) {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	for _, s := range m.views {
		if s.Target == target && !s.Status.Terminal() {
			return s, true
		}
	}
	return Session{}, false
}

// StopEpoch returns how many panic stops target has seen.
func (m *Machine) StopEpoch(target string) uint64 {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	return m.viewEpochs[target]
}

// ─── Actor internals ────────────────────────────────────────────────────────

func (m *Machine) engineContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.cfg.EngineTimeout)
}

func (m *Machine) stale(command, id, reason string) Result {
	m.logger.Info("stale session command ignored",
		"command", command,
		"session_id", id,
		"reason", reason,
	)
	return Result{SessionID: id, Stale: true, Reason: reason}
}

func (m *Machine) pause(id string) (Result, error) {
	e, ok := m.entries[id]
	if !ok || e.sess.Status.Terminal() {
		return m.stale("pause", id, "session not live"), nil
	}

	res := Result{SessionID: id, Status: e.sess.Status, Effect: EffectIgnored}
	switch e.sess.Status {
	case StatusPaused:
		res.Reason = "already paused"
		return res, nil
	case StatusCountdown:
		res.Reason = "countdown cannot be paused"
		return res, nil
	}

	ctx, cancel := m.engineContext()
	defer cancel()
	if err := m.engine.Pause(ctx, e.sess.EngineID); err != nil {
		m.logger.Error("engine pause failed", "session_id", id, "error", err)
		return res, fmt.Errorf("%w: pause: %w", ErrEngine, err)
	}

	e.sess.Status = StatusPaused
	m.commit(e)
	m.logger.Info("session paused", "session_id", id, "progress", e.sess.Progress)
	return Result{SessionID: id, Status: StatusPaused, Effect: EffectPaused}, nil
}

func (m *Machine) resume(id string) (Result, error) {
	e, ok := m.entries[id]
	if !ok || e.sess.Status.Terminal() {
		return m.stale("resume", id, "session not live"), nil
	}

	res := Result{SessionID: id, Status: e.sess.Status, Effect: EffectIgnored}
	if e.sess.Status != StatusPaused {
		res.Reason = "not paused"
		return res, nil
	}

	ctx, cancel := m.engineContext()
	defer cancel()
	if err := m.engine.Resume(ctx, e.sess.EngineID); err != nil {
		m.logger.Error("engine resume failed", "session_id", id, "error", err)
		return res, fmt.Errorf("%w: resume: %w", ErrEngine, err)
	}

	e.sess.Status = StatusTyping
	m.commit(e)
	m.logger.Info("session resumed", "session_id", id, "progress", e.sess.Progress)
	return Result{SessionID: id, Status: StatusTyping, Effect: EffectResumed}, nil
}

func (m *Machine) stopAll(target string) (StopResult, error) {
	now := m.now()
	var stopped []string
	for id, e := range m.entries {
		if e.sess.Target != target || e.sess.Status.Terminal() {
			continue
		}
		if e.stopTimer != nil {
			e.stopTimer()
			e.stopTimer = nil
		}
		e.sess.Status = StatusStopped
		e.sess.Progress = 0
		e.sess.EndedAt = &now
		m.finish(e)
		stopped = append(stopped, id)
	}
	sort.Strings(stopped)

	m.epochs[target]++
	epoch := m.epochs[target]
	m.viewMu.Lock()
	m.viewEpochs[target] = epoch
	m.viewMu.Unlock()

	res := StopResult{Target: target, Stopped: stopped, Epoch: epoch}
	m.logger.Info("stop all", "target", target, "stopped", len(stopped), "epoch", epoch)

	ctx, cancel := m.engineContext()
	defer cancel()
	if err := m.engine.StopAll(ctx); err != nil {
		m.logger.Error("engine stop all failed", "target", target, "error", err)
		return res, fmt.Errorf("%w: stop all: %w", ErrEngine, err)
	}
	return res, nil
}

func (m *Machine) countdownElapsed(id string) {
	e, ok := m.entries[id]
	if !ok || e.sess.Status != StatusCountdown || e.starting {
		return
	}
	e.stopTimer = nil
	e.starting = true
	m.starting++

	text, profile := e.sess.Text, e.sess.Profile
	go func() {
		ctx, cancel := m.engineContext()
		defer cancel()
		engineID, err := m.engine.StartSession(ctx, text, profile)
		m.post(func() { m.engineStarted(id, engineID, err) })
	}()
}

func (m *Machine) engineStarted(id, engineID string, startErr error) {
	defer func() {
		if m.starting == 0 {
			clear(m.pending)
		}
	}()

	e, ok := m.entries[id]
	if ok && e.starting {
		e.starting = false
		m.starting--
	}

	if !ok || e.sess.Status != StatusCountdown {
		if startErr == nil {
			// Stopped while the engine was starting.
			m.logger.Warn("engine session started after stop, stopping it",
				"session_id", id, "engine_session_id", engineID)
			ctx, cancel := m.engineContext()
			defer cancel()
			if err := m.engine.StopAll(ctx); err != nil {
				m.logger.Error("engine stop all failed", "error", err)
			}
		}
		return
	}

	now := m.now()
	if startErr != nil {
		e.sess.Status = StatusFailed
		e.sess.LastError = startErr.Error()
		e.sess.EndedAt = &now
		m.finish(e)
		m.logger.Error("engine refused session", "session_id", id, "error", startErr)
		return
	}

	e.sess.Status = StatusTyping
	e.sess.EngineID = engineID
	e.sess.StartedTypingAt = &now
	m.byEngine[engineID] = id
	m.commit(e)
	m.logger.Info("session typing", "session_id", id, "engine_session_id", engineID)

	buffered := m.pending[engineID]
	delete(m.pending, engineID)
	for _, ev := range buffered {
		m.applyProgress(ev)
	}
}

func (m *Machine) applyProgress(ev ProgressEvent) {
	id, ok := m.byEngine[ev.SessionID]
	if !ok {
		m.bufferProgress(ev)
		return
	}
	e, ok := m.entries[id]
	if !ok || e.sess.Status.Terminal() {
		m.logger.Debug("progress for finished session dropped", "engine_session_id", ev.SessionID)
		return
	}
	s := &e.sess
	now := m.now()

	switch ev.Status {
	case EngineStatusError:
		s.Status = StatusFailed
		s.LastError = ev.Error
		if s.LastError == "" {
			s.LastError = "engine reported an error"
		}
		s.EndedAt = &now
		m.finish(e)
		return
	case EngineStatusStopped:
		s.Status = StatusStopped
		s.Progress = 0
		s.EndedAt = &now
		m.finish(e)
		return
	}

	// Progress is frozen while paused. An explicit completed event still
	// finishes a paused session: the engine ran out of text before the pause
	// reached it, and no later event will arrive.
	progress := min(max(ev.Progress, 0), 100)
	completed := ev.Status == EngineStatusCompleted ||
		(progress >= 100 && s.Status == StatusTyping)
	if completed {
		s.Status = StatusCompleted
		s.Progress = 100
		s.CharsTyped = s.TotalChars
		if ev.CurrentWPM > 0 {
			s.CurrentWPM = ev.CurrentWPM
		}
		s.EndedAt = &now
		m.finish(e)
		m.logger.Info("session completed", "session_id", s.ID, "chars", s.TotalChars)
		return
	}

	if s.Status != StatusTyping {
		m.logger.Debug("progress while not typing dropped", "session_id", s.ID, "status", s.Status)
		return
	}
	if progress < s.Progress || (progress == s.Progress && ev.CharsTyped <= s.CharsTyped) {
		m.logger.Debug("out-of-order progress dropped",
			"session_id", s.ID, "progress", progress, "current", s.Progress)
		return
	}

	s.Progress = progress
	s.CharsTyped = min(max(ev.CharsTyped, 0), s.TotalChars)
	s.CurrentWPM = ev.CurrentWPM
	m.commit(e)

	if m.metrics != nil {
		m.metrics.WriteSessionProgress(s.Target, s.ID, s.Progress, s.CharsTyped, s.CurrentWPM)
	}
}

func (m *Machine) bufferProgress(ev ProgressEvent) {
	if m.starting == 0 {
		m.logger.Debug("progress for unknown engine session dropped", "engine_session_id", ev.SessionID)
		return
	}
	queued, known := m.pending[ev.SessionID]
	if (!known && len(m.pending) >= maxPendingSessions) || len(queued) >= maxPendingEvents {
		return
	}
	m.pending[ev.SessionID] = append(queued, ev)
}

// commit publishes the entry's current state.
func (m *Machine) commit(e *entry) {
	e.sess.Revision++
	e.sess.UpdatedAt = m.now()
	snap := e.sess

	m.viewMu.Lock()
	m.views[snap.ID] = snap
	m.viewMu.Unlock()

	if m.publisher != nil {
		m.publisher.SessionUpdated(snap)
	}
}

// finish commits a terminal entry and records its outcome.
func (m *Machine) finish(e *entry) {
	s := e.sess
	if m.active[s.Target] == s.ID {
		delete(m.active, s.Target)
	}
	if e.starting {
		e.starting = false
		m.starting--
	}
	m.commit(e)
	s = e.sess

	if m.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := m.repo.Save(ctx, s); err != nil {
			m.logger.Error("saving session record failed", "session_id", s.ID, "error", err)
		}
		cancel()
	}
	if m.metrics != nil {
		m.metrics.WriteSessionOutcome(s.Target, string(s.Status), s.TotalChars, s.CharsTyped, s.TypingDuration(m.now()))
	}
	m.prune(s.Target)
}

// prune drops the oldest finished sessions beyond retainTerminal.
func (m *Machine) prune(target string) {
	var finished []*entry
	for _, e := range m.entries {
		if e.sess.Target == target && e.sess.Status.Terminal() && !e.starting {
			finished = append(finished, e)
		}
	}
	if len(finished) <= retainTerminal {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].sess.CreatedAt.Before(finished[j].sess.CreatedAt)
	})

	m.viewMu.Lock()
	defer m.viewMu.Unlock()
	for _, e := range finished[:len(finished)-retainTerminal] {
		delete(m.entries, e.sess.ID)
		delete(m.views, e.sess.ID)
		if e.sess.EngineID != "" {
			delete(m.byEngine, e.sess.EngineID)
		}
	}
}

// shutdown stops anything still live when the actor exits.
func (m *Machine) shutdown() {
	now := m.now()
	live := false
	for _, e := range m.entries {
		if e.stopTimer != nil {
			e.stopTimer()
			e.stopTimer = nil
		}
		if e.sess.Status.Terminal() {
			continue
		}
		live = true
		e.sess.Status = StatusStopped
		e.sess.Progress = 0
		e.sess.LastError = "core shutting down"
		e.sess.EndedAt = &now
		m.finish(e)
	}
	if !live {
		return
	}

	ctx, cancel := m.engineContext()
	defer cancel()
	if err := m.engine.StopAll(ctx); err != nil {
		m.logger.Error("engine stop all on shutdown failed", "error", err)
	}
}
