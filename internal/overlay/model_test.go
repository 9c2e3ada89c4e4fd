package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nerrad567/typepilot/internal/api"
	"github.com/nerrad567/typepilot/internal/delivery"
	"github.com/nerrad567/typepilot/internal/observer"
	"github.com/nerrad567/typepilot/internal/orchestrator"
	"github.com/nerrad567/typepilot/internal/session"
)

type fakeSource struct {
	mu       sync.Mutex
	state    observer.State
	updates  chan observer.State
	actions  []string
	reply    json.RawMessage
	replyErr error
}

func newFakeSource(st observer.State) *fakeSource {
	return &fakeSource{state: st, updates: make(chan observer.State, 1)}
}

func (f *fakeSource) State() observer.State          { return f.state }
func (f *fakeSource) Updates() <-chan observer.State { return f.updates }

func (f *fakeSource) Command(_ context.Context, action, _ string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return f.reply, f.replyErr
}

func connectedState() observer.State {
	return observer.State{Target: "desk", Connected: true, Overlay: true}
}

func typing(progress int) session.Session {
	return session.Session{
		ID:         "s-1",
		Target:     "desk",
		Profile:    session.Medium,
		Status:     session.StatusTyping,
		Progress:   progress,
		CharsTyped: 5,
		TotalChars: 11,
		CurrentWPM: 58,
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// ─── Update Tests ──────────────────────────────────────────────────

func TestNew_UsesCurrentState(t *testing.T) {
	st := connectedState()
	st.Sessions = []session.Session{typing(45)}
	m := New(newFakeSource(st))

	if !m.state.Connected || len(m.state.Sessions) != 1 {
		t.Errorf("initial state = %+v", m.state)
	}
	if m.Init() == nil {
		t.Error("Init() should start listening for updates")
	}
}

func TestStateMsg_ReplacesState(t *testing.T) {
	m := New(newFakeSource(observer.State{}))

	st := connectedState()
	st.Generating = true
	updated, cmd := m.Update(stateMsg(st))
	model := updated.(Model)

	if !model.state.Generating || !model.state.Connected {
		t.Errorf("state = %+v", model.state)
	}
	if cmd == nil {
		t.Error("expected the overlay to keep listening for updates")
	}
}

func TestKeys_SendCommands(t *testing.T) {
	tests := []struct {
		name string
		key  tea.KeyMsg
		want string
	}{
		{"p toggles pause", runes("p"), api.CommandTogglePause},
		{"space toggles pause", tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, api.CommandTogglePause},
		{"s stops", runes("s"), api.CommandStopAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource(connectedState())
			src.reply = json.RawMessage(`{}`)
			m := New(src)

			_, cmd := m.Update(tt.key)
			if cmd == nil {
				t.Fatal("expected a command")
			}
			msg := cmd()
			done, ok := msg.(commandDoneMsg)
			if !ok {
				t.Fatalf("msg = %T, want commandDoneMsg", msg)
			}
			if done.action != tt.want || len(src.actions) != 1 || src.actions[0] != tt.want {
				t.Errorf("sent %v, want %s", src.actions, tt.want)
			}
		})
	}
}

func TestKeys_DisconnectedDoesNotSend(t *testing.T) {
	src := newFakeSource(observer.State{Overlay: true})
	m := New(src)

	updated, _ := m.Update(runes("s"))
	model := updated.(Model)

	if len(src.actions) != 0 {
		t.Errorf("sent %v while disconnected", src.actions)
	}
	if !model.feedbackErr || model.feedback == "" {
		t.Errorf("feedback = %q (err %v)", model.feedback, model.feedbackErr)
	}
}

func TestKeys_Quit(t *testing.T) {
	m := New(newFakeSource(connectedState()))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c should quit")
	}
}

func TestCommandDone_Feedback(t *testing.T) {
	tests := []struct {
		name    string
		msg     commandDoneMsg
		want    string
		wantErr bool
	}{
		{
			name: "paused",
			msg:  commandDoneMsg{action: api.CommandTogglePause, reply: json.RawMessage(`{"effect":"paused"}`)},
			want: "paused",
		},
		{
			name: "ignored",
			msg:  commandDoneMsg{action: api.CommandTogglePause, reply: json.RawMessage(`{"effect":"ignored"}`)},
			want: "nothing to pause",
		},
		{
			name: "stopped",
			msg:  commandDoneMsg{action: api.CommandStopAll, reply: json.RawMessage(`{"target":"desk"}`)},
			want: "stopped",
		},
		{
			name:    "core error",
			msg:     commandDoneMsg{action: api.CommandStopAll, err: &observer.CommandError{Message: "insufficient permissions"}},
			want:    "insufficient permissions",
			wantErr: true,
		},
		{
			name:    "transport error",
			msg:     commandDoneMsg{action: api.CommandTogglePause, err: observer.ErrNotConnected},
			want:    observer.ErrNotConnected.Error(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(newFakeSource(connectedState()))
			updated, cmd := m.Update(tt.msg)
			model := updated.(Model)

			if model.feedback != tt.want || model.feedbackErr != tt.wantErr {
				t.Errorf("feedback = %q (err %v), want %q (err %v)", model.feedback, model.feedbackErr, tt.want, tt.wantErr)
			}
			if cmd == nil {
				t.Error("expected feedback expiry to be scheduled")
			}
		})
	}
}

func TestClearFeedback_OnlyLatest(t *testing.T) {
	m := New(newFakeSource(connectedState()))
	updated, _ := m.Update(commandDoneMsg{action: api.CommandStopAll, err: errors.New("first")})
	updated, _ = updated.(Model).Update(commandDoneMsg{action: api.CommandStopAll, err: errors.New("second")})

	stale, _ := updated.(Model).Update(clearFeedbackMsg{seq: 1})
	if stale.(Model).feedback != "second" {
		t.Errorf("an old expiry cleared newer feedback: %q", stale.(Model).feedback)
	}

	cleared, _ := stale.(Model).Update(clearFeedbackMsg{seq: 2})
	if cleared.(Model).feedback != "" {
		t.Errorf("feedback = %q, want cleared", cleared.(Model).feedback)
	}
}

// ─── View Tests ────────────────────────────────────────────────────

func TestView(t *testing.T) {
	active := connectedState()
	active.Sessions = []session.Session{typing(45)}
	active.Reviews = []delivery.Review{{ID: "r-1"}}
	active.LastNotice = &orchestrator.Notice{Kind: orchestrator.KindNoText, Message: "nothing selected"}

	finished := connectedState()
	done := typing(100)
	done.Status = session.StatusCompleted
	done.CharsTyped = 11
	finished.Sessions = []session.Session{done}

	hidden := connectedState()
	hidden.Overlay = false
	hidden.Sessions = []session.Session{typing(45)}

	tests := []struct {
		name    string
		state   observer.State
		want    []string
		notWant []string
	}{
		{"idle", connectedState(), []string{"TypePilot", "desk", "idle"}, []string{"reconnecting"}},
		{"active", active, []string{"TYPING", "medium", "5/11 chars", "58 wpm", "1 awaiting review", "nothing selected"}, nil},
		{"finished", finished, []string{"last session completed", "11/11 chars"}, []string{"TYPING"}},
		{"hidden", hidden, []string{"hidden"}, []string{"TYPING"}},
		{"disconnected", observer.State{Overlay: true}, []string{"reconnecting", "default"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := New(newFakeSource(tt.state)).View()
			for _, want := range tt.want {
				if !strings.Contains(view, want) {
					t.Errorf("view missing %q:\n%s", want, view)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(view, notWant) {
					t.Errorf("view should not contain %q:\n%s", notWant, view)
				}
			}
		})
	}
}
