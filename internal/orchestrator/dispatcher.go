package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/typepilot/internal/action"
	"github.com/nerrad567/typepilot/internal/capture"
	"github.com/nerrad567/typepilot/internal/delivery"
	"github.com/nerrad567/typepilot/internal/generation"
	"github.com/nerrad567/typepilot/internal/session"
	"github.com/nerrad567/typepilot/internal/settings"
)

// Sessions is the session state machine. Satisfied by *session.Machine.
type Sessions interface {
	Start(ctx context.Context, target, text string, profile session.SpeedProfile) (session.Session, error)
	TogglePause(ctx context.Context, target string) (session.Result, error)
	StopAll(ctx context.Context, target string) (session.StopResult, error)
	StopEpoch(target string) uint64
}

// TextResolver captures source text. Satisfied by *capture.Resolver.
type TextResolver interface {
	ResolveText(ctx context.Context, a action.Action, in capture.Input) (capture.Capture, error)
}

// Generator runs the generation pipeline. Satisfied by *generation.Pipeline.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (generation.Result, error)
}

// Router delivers generated text. Satisfied by *delivery.Router.
type Router interface {
	Route(ctx context.Context, rt delivery.Route) (delivery.Delivery, error)
	Confirm(ctx context.Context, id, editedText string, pasteMode bool) (delivery.Delivery, error)
	Reject(id string) error
}

// Notifier broadcasts orchestration events to observers. Implementations
// must not block.
type Notifier interface {
	Notice(n Notice)
	Generation(ev GenerationEvent)
	OverlayToggled(target string, visible bool)
}

// Logger is the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopNotifier struct{}

func (noopNotifier) Notice(Notice)               {}
func (noopNotifier) Generation(GenerationEvent)  {}
func (noopNotifier) OverlayToggled(string, bool) {}

// Notice is a user-visible message about a failed or refused trigger.
type Notice struct {
	Kind    Kind          `json:"kind"`
	Target  string        `json:"target"`
	Action  action.Action `json:"action,omitempty"`
	Message string        `json:"message"`
	At      time.Time     `json:"at"`
}

// Generation phases and outcomes.
const (
	PhaseStarted  = "started"
	PhaseFinished = "finished"

	GenerationDelivered  = "delivered"
	GenerationFailed     = "failed"
	GenerationSuppressed = "suppressed"
	GenerationCancelled  = "cancelled"
)

// GenerationEvent reports a background generation's progress.
type GenerationEvent struct {
	ID       string             `json:"id"`
	Target   string             `json:"target"`
	Phase    string             `json:"phase"`
	Outcome  string             `json:"outcome,omitempty"`
	Delivery *delivery.Delivery `json:"delivery,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Trigger is one delivery from a trigger source.
type Trigger struct {
	// Target defaults to the dispatcher's target when empty.
	Target string
	Action action.Action
	Input  capture.Input
	// Origin names the trigger source for logs: "hotkey", "api", "observer".
	Origin string
}

// Outcome reports what Dispatch did synchronously.
type Outcome struct {
	Action    action.Action `json:"action"`
	Target    string        `json:"target"`
	Debounced bool          `json:"debounced,omitempty"`

	Source         capture.Source      `json:"source,omitempty"`
	Session        *session.Session    `json:"session,omitempty"`
	Pause          *session.Result     `json:"pause,omitempty"`
	Stop           *session.StopResult `json:"stop,omitempty"`
	GenerationID   string              `json:"generation_id,omitempty"`
	OverlayVisible *bool               `json:"overlay_visible,omitempty"`
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Sessions  Sessions
	Capture   TextResolver
	Settings  settings.Provider
	Generator Generator
	Router    Router
	Notifier  Notifier
	Debouncer *action.Debouncer
	Logger    Logger
}

type inflight struct {
	id     string
	cancel context.CancelFunc
}

// Dispatcher runs actions for one or more targets. Safe for concurrent use.
type Dispatcher struct {
	target string
	deps   Deps
	now    func() time.Time

	// base parents every background generation; Close cancels it.
	base       context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	mu         sync.Mutex
	generating map[string]inflight
	overlay    map[string]bool
}

// NewDispatcher creates a dispatcher whose default target is target.
func NewDispatcher(target string, deps Deps) *Dispatcher {
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Debouncer == nil {
		deps.Debouncer = action.NewDebouncer(0)
	}
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		target:     target,
		deps:       deps,
		now:        time.Now,
		base:       base,
		cancelBase: cancel,
		generating: make(map[string]inflight),
		overlay:    make(map[string]bool),
	}
}

// Close cancels in-flight generations and waits for them to finish. It is
// the only path that cancels a generation call.
func (d *Dispatcher) Close() {
	d.cancelBase()
	d.wg.Wait()
}

// HandleAction adapts Dispatch to action.Handler for hotkey sources.
func (d *Dispatcher) HandleAction(ctx context.Context, target string, a action.Action) error {
	_, err := d.Dispatch(ctx, Trigger{Target: target, Action: a, Origin: "hotkey"})
	return err
}

// Dispatch runs one trigger. Generate returns once the generation has been
// queued; its result is delivered in the background.
func (d *Dispatcher) Dispatch(ctx context.Context, t Trigger) (Outcome, error) {
	if t.Target == "" {
		t.Target = d.target
	}
	out := Outcome{Action: t.Action, Target: t.Target}

	if !t.Action.Valid() {
		err := fmt.Errorf("%w: %q", action.ErrUnknownAction, t.Action)
		d.report(t.Target, t.Action, err)
		return out, err
	}
	if !d.deps.Debouncer.Allow(t.Target, t.Action) {
		d.deps.Logger.Debug("trigger debounced", "action", t.Action, "target", t.Target, "origin", t.Origin)
		out.Debounced = true
		return out, nil
	}

	d.deps.Logger.Info("dispatching action", "action", t.Action, "target", t.Target, "origin", t.Origin)

	var err error
	switch t.Action {
	case action.Stop:
		err = d.stop(ctx, t, &out)
	case action.Pause:
		err = d.togglePause(ctx, t, &out)
	case action.Start:
		err = d.start(ctx, t, &out)
	case action.Generate:
		err = d.generate(ctx, t, &out)
	case action.ToggleOverlay:
		visible := d.toggleOverlay(t.Target)
		out.OverlayVisible = &visible
	}

	if err != nil {
		d.report(t.Target, t.Action, err)
	}
	return out, err
}

// stop is the panic stop. A generation already running is left to finish
// or time out; its result is dropped by the stop epoch check.
func (d *Dispatcher) stop(ctx context.Context, t Trigger, out *Outcome) error {
	res, err := d.deps.Sessions.StopAll(ctx, t.Target)
	out.Stop = &res
	return err
}

func (d *Dispatcher) togglePause(ctx context.Context, t Trigger, out *Outcome) error {
	res, err := d.deps.Sessions.TogglePause(ctx, t.Target)
	if err != nil {
		return err
	}
	if res.Stale {
		d.deps.Logger.Debug("pause ignored", "target", t.Target, "reason", res.Reason)
	}
	out.Pause = &res
	return nil
}

func (d *Dispatcher) start(ctx context.Context, t Trigger, out *Outcome) error {
	captured, err := d.deps.Capture.ResolveText(ctx, t.Action, t.Input)
	if err != nil {
		return err
	}
	snap, err := d.deps.Settings.Snapshot(ctx)
	if err != nil {
		return err
	}

	s, err := d.deps.Sessions.Start(ctx, t.Target, captured.Text, snap.Profile)
	if err != nil {
		return err
	}
	out.Source = captured.Source
	out.Session = &s
	return nil
}

func (d *Dispatcher) generate(ctx context.Context, t Trigger, out *Outcome) error {
	id := uuid.NewString()
	genCtx, cancel := context.WithCancel(d.base)

	// Reserve the target before touching the clipboard so a duplicate
	// trigger is refused without side effects.
	d.mu.Lock()
	if _, busy := d.generating[t.Target]; busy {
		d.mu.Unlock()
		cancel()
		return ErrGenerationInProgress
	}
	d.generating[t.Target] = inflight{id: id, cancel: cancel}
	d.mu.Unlock()

	epoch := d.deps.Sessions.StopEpoch(t.Target)

	captured, err := d.deps.Capture.ResolveText(ctx, t.Action, t.Input)
	if err != nil {
		d.release(t.Target, id)
		return err
	}
	snap, err := d.deps.Settings.Snapshot(ctx)
	if err != nil {
		d.release(t.Target, id)
		return err
	}

	out.Source = captured.Source
	out.GenerationID = id
	d.deps.Notifier.Generation(GenerationEvent{ID: id, Target: t.Target, Phase: PhaseStarted})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.release(t.Target, id)
		d.runGeneration(genCtx, id, t.Target, captured.Text, snap, epoch)
	}()
	return nil
}

func (d *Dispatcher) runGeneration(ctx context.Context, id, target, text string, snap settings.Snapshot, epoch uint64) {
	finished := GenerationEvent{ID: id, Target: target, Phase: PhaseFinished}

	res, err := d.deps.Generator.Generate(ctx, generation.Request{
		Target:     target,
		SourceText: text,
		Settings:   snap.Generation,
	})
	if err != nil {
		finished.Outcome = GenerationFailed
		if Classify(err) == KindStale {
			finished.Outcome = GenerationCancelled
		}
		finished.Error = err.Error()
		d.deps.Notifier.Generation(finished)
		d.report(target, action.Generate, err)
		return
	}

	if current := d.deps.Sessions.StopEpoch(target); current != epoch {
		d.deps.Logger.Info("discarding generation result after stop",
			"generation_id", id, "target", target, "epoch", epoch, "current_epoch", current)
		finished.Outcome = GenerationSuppressed
		d.deps.Notifier.Generation(finished)
		return
	}

	del, err := d.deps.Router.Route(ctx, delivery.Route{
		Target:     target,
		Text:       res.Text,
		Humanized:  res.Humanized,
		Profile:    snap.Profile,
		ReviewMode: snap.Generation.ReviewModeEnabled,
		PasteMode:  snap.Generation.PasteModeEnabled,
		StopEpoch:  epoch,
	})
	if errors.Is(err, session.ErrStoppedSince) {
		d.deps.Logger.Info("discarding generation result after stop",
			"generation_id", id, "target", target, "epoch", epoch, "error", err)
		finished.Outcome = GenerationSuppressed
		d.deps.Notifier.Generation(finished)
		return
	}
	if err != nil {
		finished.Outcome = GenerationFailed
		finished.Error = err.Error()
		d.deps.Notifier.Generation(finished)
		d.report(target, action.Generate, err)
		return
	}

	d.deps.Logger.Info("generation delivered", "generation_id", id, "target", target, "outcome", del.Outcome)
	finished.Outcome = GenerationDelivered
	finished.Delivery = &del
	d.deps.Notifier.Generation(finished)
}

// Generating reports whether a generation is running for target.
func (d *Dispatcher) Generating(target string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.generating[target]
	return ok
}

func (d *Dispatcher) release(target, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if g, ok := d.generating[target]; ok && g.id == id {
		g.cancel()
		delete(d.generating, target)
	}
}

// ─── Reviews ────────────────────────────────────────────────────────────────

// ConfirmReview delivers a pending review using the paste setting in force
// now.
func (d *Dispatcher) ConfirmReview(ctx context.Context, id, editedText string) (delivery.Delivery, error) {
	snap, err := d.deps.Settings.Snapshot(ctx)
	if err != nil {
		d.report(d.target, "", err)
		return delivery.Delivery{}, err
	}
	del, err := d.deps.Router.Confirm(ctx, id, editedText, snap.Generation.PasteModeEnabled)
	if err != nil {
		d.report(d.target, "", err)
		return delivery.Delivery{}, err
	}
	return del, nil
}

// RejectReview discards a pending review.
func (d *Dispatcher) RejectReview(id string) error {
	return d.deps.Router.Reject(id)
}

// ─── Overlay ────────────────────────────────────────────────────────────────

// OverlayVisible reports the overlay visibility for target. Overlays start
// visible.
func (d *Dispatcher) OverlayVisible(target string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	hidden := d.overlay[target]
	return !hidden
}

func (d *Dispatcher) toggleOverlay(target string) bool {
	d.mu.Lock()
	d.overlay[target] = !d.overlay[target]
	visible := !d.overlay[target]
	d.mu.Unlock()

	d.deps.Notifier.OverlayToggled(target, visible)
	return visible
}

// ─── Notices ────────────────────────────────────────────────────────────────

func (d *Dispatcher) report(target string, a action.Action, err error) {
	kind := Classify(err)
	switch {
	case kind == KindStale:
		d.deps.Logger.Debug("stale command ignored", "target", target, "action", a, "error", err)
		return
	case !kind.UserVisible():
		d.deps.Logger.Error("action failed", "target", target, "action", a, "error", err)
		return
	}

	d.deps.Logger.Warn("action refused", "target", target, "action", a, "kind", kind, "error", err)
	d.deps.Notifier.Notice(Notice{
		Kind:    kind,
		Target:  target,
		Action:  a,
		Message: err.Error(),
		At:      d.now(),
	})
}
