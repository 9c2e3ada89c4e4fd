// Package overlay is the terminal observer surface: a small always-on view
// of the active typing session with pause and stop controls.
//
// The overlay holds no authority over sessions. It renders the projection
// kept by an observer.Client and forwards key presses as commands; the
// session only changes on screen once the core publishes the change.
package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nerrad567/typepilot/internal/api"
	"github.com/nerrad567/typepilot/internal/observer"
	"github.com/nerrad567/typepilot/internal/session"
)

const (
	commandTimeout = 5 * time.Second
	barWidth       = 36
	feedbackTTL    = 4 * time.Second
)

// Source is the observer connection the overlay renders.
// Satisfied by *observer.Client.
type Source interface {
	State() observer.State
	Updates() <-chan observer.State
	Command(ctx context.Context, action, sessionID string) (json.RawMessage, error)
}

// stateMsg carries a new projection from the observer.
type stateMsg observer.State

// commandDoneMsg reports the core's reply to a key press.
type commandDoneMsg struct {
	action string
	reply  json.RawMessage
	err    error
}

// clearFeedbackMsg expires the feedback line.
type clearFeedbackMsg struct{ seq int }

// Model is the root bubbletea model of the overlay.
type Model struct {
	src   Source
	state observer.State

	keys keyMap
	help help.Model
	bar  progress.Model
	spin spinner.Model

	feedback    string
	feedbackErr bool
	feedbackSeq int

	width int
}

// New creates a Model rendering src.
func New(src Source) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle

	return Model{
		src:   src,
		state: src.State(),
		keys:  defaultKeys(),
		help:  help.New(),
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
		spin:  sp,
	}
}

// Init starts listening for projection updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForState(m.src.Updates()), m.spin.Tick)
}

// waitForState blocks until the observer publishes a new projection.
func waitForState(updates <-chan observer.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-updates
		if !ok {
			return nil
		}
		return stateMsg(st)
	}
}

// commandCmd sends one control command to the core.
func commandCmd(src Source, action string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		reply, err := src.Command(ctx, action, "")
		return commandDoneMsg{action: action, reply: reply, err: err}
	}
}

func clearFeedbackCmd(seq int) tea.Cmd {
	return tea.Tick(feedbackTTL, func(time.Time) tea.Msg {
		return clearFeedbackMsg{seq: seq}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case stateMsg:
		m.state = observer.State(msg)
		return m, waitForState(m.src.Updates())

	case commandDoneMsg:
		return m.handleCommandDone(msg)

	case clearFeedbackMsg:
		if msg.seq == m.feedbackSeq {
			m.feedback = ""
			m.feedbackErr = false
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Pause):
		if !m.state.Connected {
			return m.setFeedback("not connected to the core", true)
		}
		return m, commandCmd(m.src, api.CommandTogglePause)

	case key.Matches(msg, m.keys.Stop):
		if !m.state.Connected {
			return m.setFeedback("not connected to the core", true)
		}
		return m, commandCmd(m.src, api.CommandStopAll)
	}
	return m, nil
}

func (m Model) handleCommandDone(msg commandDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		var cmdErr *observer.CommandError
		if errors.As(msg.err, &cmdErr) {
			return m.setFeedback(cmdErr.Message, true)
		}
		return m.setFeedback(msg.err.Error(), true)
	}

	if msg.action == api.CommandStopAll {
		return m.setFeedback("stopped", false)
	}

	var res session.Result
	if err := json.Unmarshal(msg.reply, &res); err != nil {
		return m.setFeedback("unreadable reply from the core", true)
	}
	if res.Stale || res.Effect == session.EffectIgnored {
		return m.setFeedback("nothing to pause", false)
	}
	return m.setFeedback(string(res.Effect), false)
}

func (m Model) setFeedback(text string, isErr bool) (tea.Model, tea.Cmd) {
	m.feedbackSeq++
	m.feedback = text
	m.feedbackErr = isErr
	return m, clearFeedbackCmd(m.feedbackSeq)
}

// View renders the overlay.
func (m Model) View() string {
	st := m.state

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if !st.Overlay {
		b.WriteString(dimStyle.Render("hidden · toggle with the overlay hotkey"))
		return frameStyle.Render(b.String())
	}

	if sess, ok := st.Active(); ok {
		b.WriteString(m.renderSession(sess))
	} else if n := len(st.Sessions); n > 0 {
		last := st.Sessions[n-1]
		b.WriteString(dimStyle.Render(fmt.Sprintf("last session %s · %d/%d chars", last.Status, last.CharsTyped, last.TotalChars)))
	} else {
		b.WriteString(dimStyle.Render("idle"))
	}

	if st.Generating {
		b.WriteString("\n")
		b.WriteString(m.spin.View() + " generating")
	}
	if n := len(st.Reviews); n > 0 {
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(fmt.Sprintf("%d awaiting review", n)))
	}
	if st.LastNotice != nil {
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(st.LastNotice.Message))
	}
	if m.feedback != "" {
		b.WriteString("\n")
		if m.feedbackErr {
			b.WriteString(errorStyle.Render(m.feedback))
		} else {
			b.WriteString(dimStyle.Render(m.feedback))
		}
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return frameStyle.Render(b.String())
}

func (m Model) renderHeader() string {
	dot := onlineDotStyle.Render("●")
	if !m.state.Connected {
		dot = offlineDotStyle.Render("●") + dimStyle.Render(" reconnecting")
	}
	target := m.state.Target
	if target == "" {
		target = "default"
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("TypePilot"),
		dimStyle.Render(" · "+target+" "),
		dot,
	)
}

func (m Model) renderSession(sess session.Session) string {
	var b strings.Builder
	b.WriteString(statusStyle.Render(strings.ToUpper(string(sess.Status))))
	b.WriteString(dimStyle.Render(" · " + sess.Profile.Name))

	if sess.Status == session.StatusCountdown && sess.CountdownEndsAt != nil {
		left := time.Until(*sess.CountdownEndsAt).Round(time.Second)
		if left < 0 {
			left = 0
		}
		b.WriteString(dimStyle.Render(fmt.Sprintf(" · starts in %s", left)))
	}
	b.WriteString("\n")

	b.WriteString(m.bar.ViewAs(float64(sess.Progress) / 100))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d/%d chars", sess.CharsTyped, sess.TotalChars)))
	if sess.CurrentWPM > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf(" · %.0f wpm", sess.CurrentWPM)))
	}
	return b.String()
}

// Run shows the overlay until the user closes it or ctx is cancelled.
func Run(ctx context.Context, src Source) error {
	p := tea.NewProgram(New(src), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running overlay: %w", err)
	}
	return nil
}
