package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/typepilot/internal/auth"
	"github.com/nerrad567/typepilot/internal/delivery"
	"github.com/nerrad567/typepilot/internal/infrastructure/config"
	"github.com/nerrad567/typepilot/internal/infrastructure/logging"
	"github.com/nerrad567/typepilot/internal/orchestrator"
	"github.com/nerrad567/typepilot/internal/session"
)

// wireMessage is WSMessage as a client decodes it.
type wireMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	EventType string          `json:"event_type"`
	Target    string          `json:"target"`
	Payload   json.RawMessage `json:"payload"`
}

func testHub() *Hub {
	return NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, logging.Discard())
}

func mockClient(hub *Hub, target string, buffer int, channels ...string) *WSClient {
	subs := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		subs[ch] = struct{}{}
	}
	return &WSClient{
		hub:           hub,
		send:          make(chan []byte, buffer),
		subscriptions: subs,
		target:        target,
	}
}

func receive(t *testing.T, client *WSClient) wireMessage {
	t.Helper()
	select {
	case data, ok := <-client.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return wireMessage{}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := testHub()
	client := mockClient(hub, testTarget, wsSendBufferSize, ChannelSession)
	hub.Register(client)

	hub.SessionUpdated(typingSession("s-1", testTarget))

	msg := receive(t, client)
	if msg.Type != WSTypeEvent || msg.Channel != ChannelSession || msg.EventType != EventSessionUpdated {
		t.Errorf("message = %+v", msg)
	}
	var s session.Session
	if err := json.Unmarshal(msg.Payload, &s); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if s.ID != "s-1" || s.Revision != 3 {
		t.Errorf("session = %+v", s)
	}
}

func TestHub_Filtering(t *testing.T) {
	hub := testHub()
	otherChannel := mockClient(hub, testTarget, wsSendBufferSize, ChannelNotice)
	otherTarget := mockClient(hub, "laptop", wsSendBufferSize, ChannelSession)
	hub.Register(otherChannel)
	hub.Register(otherTarget)

	hub.SessionUpdated(typingSession("s-1", testTarget))

	select {
	case <-otherChannel.send:
		t.Error("client on another channel should not receive the event")
	case <-otherTarget.send:
		t.Error("client on another target should not receive the event")
	case <-time.After(100 * time.Millisecond):
		// no message
	}
}

func TestHub_PublisherEvents(t *testing.T) {
	hub := testHub()
	client := mockClient(hub, testTarget, wsSendBufferSize,
		ChannelReview, ChannelNotice, ChannelOverlay, ChannelGeneration)
	hub.Register(client)

	review := delivery.Review{ID: "r-1", Target: testTarget, Text: "draft"}
	hub.ReviewPending(review)
	hub.ReviewResolved(review, delivery.ResolutionConfirmed)
	hub.Notice(orchestrator.Notice{Kind: orchestrator.KindNoText, Target: testTarget, Message: "nothing to type"})
	hub.OverlayToggled(testTarget, false)
	hub.Generation(orchestrator.GenerationEvent{ID: "g-1", Target: testTarget, Phase: orchestrator.PhaseStarted})
	hub.Generation(orchestrator.GenerationEvent{ID: "g-1", Target: testTarget, Phase: orchestrator.PhaseFinished})

	want := []string{
		EventReviewPending, EventReviewResolved, EventNotice,
		EventOverlayToggled, EventGenerationStarted, EventGenerationFinished,
	}
	for _, eventType := range want {
		if msg := receive(t, client); msg.EventType != eventType {
			t.Errorf("event_type = %q, want %q", msg.EventType, eventType)
		}
	}
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	hub := testHub()
	slow := mockClient(hub, testTarget, 1, ChannelSession)
	hub.Register(slow)

	hub.SessionUpdated(typingSession("s-1", testTarget))
	hub.SessionUpdated(typingSession("s-1", testTarget)) // buffer full

	if hub.ClientCount() != 0 {
		t.Fatalf("client count = %d, want slow client dropped", hub.ClientCount())
	}
	<-slow.send // the buffered message
	if _, ok := <-slow.send; ok {
		t.Error("send channel should be closed after disconnect")
	}

	// Later broadcasts must not panic on the closed channel.
	hub.SessionUpdated(typingSession("s-1", testTarget))
}

func TestHub_ClientCount(t *testing.T) {
	hub := testHub()
	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := mockClient(hub, testTarget, wsSendBufferSize)
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client) // idempotent
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

// ─── WebSocket Connection Tests ────────────────────────────────────

// connectWebSocket gets a ticket as a surface holding role and connects.
func connectWebSocket(t *testing.T, f *fixture, role auth.Role, query string) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(f.router)
	t.Cleanup(ts.Close)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/auth/ws-ticket", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, role))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ws-ticket request failed: %v", err)
	}
	defer resp.Body.Close()

	var ticket struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		t.Fatalf("decode ticket response: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=" + ticket.Ticket + query
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) wireMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wireMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func subscribe(t *testing.T, ws *websocket.Conn, id string, channels ...string) {
	t.Helper()
	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      id,
		Payload: WSSubscribePayload{Channels: channels},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if resp := readMessage(t, ws); resp.Type != WSTypeResponse || resp.ID != id {
		t.Fatalf("subscribe response = %+v", resp)
	}
}

func TestWebSocket_SubscribeSendsSnapshot(t *testing.T) {
	f := testServer(t)
	ws := connectWebSocket(t, f, auth.RoleObserver, "")

	subscribe(t, ws, "sub-1", ChannelSession, ChannelOverlay, ChannelNotice)

	snap := readMessage(t, ws)
	if snap.Type != WSTypeSnapshot || snap.Channel != ChannelSession || snap.Target != testTarget {
		t.Fatalf("first message after subscribe = %+v", snap)
	}
	var sessions SessionSnapshot
	if err := json.Unmarshal(snap.Payload, &sessions); err != nil {
		t.Fatalf("snapshot payload: %v", err)
	}
	if len(sessions.Sessions) != 1 || sessions.Sessions[0].ID != "s-1" || sessions.Sessions[0].Revision != 3 {
		t.Errorf("snapshot = %+v", sessions)
	}

	overlay := readMessage(t, ws)
	if overlay.Type != WSTypeSnapshot || overlay.Channel != ChannelOverlay {
		t.Errorf("second snapshot = %+v", overlay)
	}

	// Notice has no state, so the next frame is a live event.
	f.srv.Hub().SessionUpdated(typingSession("s-1", testTarget))
	if ev := readMessage(t, ws); ev.Type != WSTypeEvent || ev.EventType != EventSessionUpdated {
		t.Errorf("event = %+v", ev)
	}
}

func TestWebSocket_TargetParameter(t *testing.T) {
	f := testServer(t)
	ws := connectWebSocket(t, f, auth.RoleObserver, "&target=laptop")

	subscribe(t, ws, "sub-1", ChannelSession)

	snap := readMessage(t, ws)
	var sessions SessionSnapshot
	if err := json.Unmarshal(snap.Payload, &sessions); err != nil {
		t.Fatalf("snapshot payload: %v", err)
	}
	if snap.Target != "laptop" || len(sessions.Sessions) != 1 || sessions.Sessions[0].ID != "s-2" {
		t.Errorf("snapshot = %+v / %+v", snap, sessions)
	}
}

func TestWebSocket_Commands(t *testing.T) {
	tests := []struct {
		name     string
		payload  WSCommandPayload
		wantType string
		check    func(t *testing.T, f *fixture, msg wireMessage)
	}{
		{
			name:     "pause",
			payload:  WSCommandPayload{Action: CommandPause, SessionID: "s-1"},
			wantType: WSTypeResponse,
			check: func(t *testing.T, _ *fixture, msg wireMessage) {
				var res session.Result
				if err := json.Unmarshal(msg.Payload, &res); err != nil {
					t.Fatalf("payload: %v", err)
				}
				if res.Status != session.StatusPaused || res.Stale {
					t.Errorf("result = %+v", res)
				}
			},
		},
		{
			name:     "unknown session is stale",
			payload:  WSCommandPayload{Action: CommandStop, SessionID: "ghost"},
			wantType: WSTypeResponse,
			check: func(t *testing.T, _ *fixture, msg wireMessage) {
				var res session.Result
				if err := json.Unmarshal(msg.Payload, &res); err != nil {
					t.Fatalf("payload: %v", err)
				}
				if !res.Stale {
					t.Errorf("result = %+v, want stale", res)
				}
			},
		},
		{
			name:     "other target is stale",
			payload:  WSCommandPayload{Action: CommandPause, SessionID: "s-2"},
			wantType: WSTypeResponse,
			check: func(t *testing.T, f *fixture, msg wireMessage) {
				var res session.Result
				if err := json.Unmarshal(msg.Payload, &res); err != nil {
					t.Fatalf("payload: %v", err)
				}
				if !res.Stale {
					t.Errorf("result = %+v, want stale", res)
				}
				if len(f.sessions.Calls()) != 0 {
					t.Errorf("machine called for another target's session: %v", f.sessions.Calls())
				}
			},
		},
		{
			name:     "stop-all",
			payload:  WSCommandPayload{Action: CommandStopAll},
			wantType: WSTypeResponse,
			check: func(t *testing.T, f *fixture, _ wireMessage) {
				trig := f.dispatcher.lastTrigger(t)
				if trig.Target != testTarget || trig.Origin != "observer" {
					t.Errorf("trigger = %+v", trig)
				}
			},
		},
		{
			name:     "toggle-pause",
			payload:  WSCommandPayload{Action: CommandTogglePause},
			wantType: WSTypeResponse,
			check: func(t *testing.T, f *fixture, _ wireMessage) {
				if calls := f.sessions.Calls(); len(calls) != 1 || calls[0] != "toggle:"+testTarget {
					t.Errorf("calls = %v", calls)
				}
			},
		},
		{
			name:     "missing session id",
			payload:  WSCommandPayload{Action: CommandResume},
			wantType: WSTypeError,
			check: func(t *testing.T, _ *fixture, msg wireMessage) {
				var e WSErrorPayload
				if err := json.Unmarshal(msg.Payload, &e); err != nil {
					t.Fatalf("payload: %v", err)
				}
				if e.Kind != orchestrator.KindValidation {
					t.Errorf("kind = %q, want validation", e.Kind)
				}
			},
		},
		{
			name:     "unknown action",
			payload:  WSCommandPayload{Action: "explode"},
			wantType: WSTypeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testServer(t)
			ws := connectWebSocket(t, f, auth.RoleController, "")

			if err := ws.WriteJSON(WSMessage{Type: WSTypeCommand, ID: "cmd-1", Payload: tt.payload}); err != nil {
				t.Fatalf("write command: %v", err)
			}
			msg := readMessage(t, ws)
			if msg.Type != tt.wantType || msg.ID != "cmd-1" {
				t.Fatalf("reply = %+v, want type %s", msg, tt.wantType)
			}
			if tt.check != nil {
				tt.check(t, f, msg)
			}
		})
	}
}

func TestWebSocket_ObserverCannotCommand(t *testing.T) {
	f := testServer(t)
	ws := connectWebSocket(t, f, auth.RoleObserver, "")

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeCommand,
		ID:      "cmd-1",
		Payload: WSCommandPayload{Action: CommandStop, SessionID: "s-1"},
	}); err != nil {
		t.Fatalf("write command: %v", err)
	}
	if msg := readMessage(t, ws); msg.Type != WSTypeError {
		t.Errorf("reply type = %s, want error", msg.Type)
	}
	if calls := f.sessions.Calls(); len(calls) != 0 {
		t.Errorf("observer command reached the machine: %v", calls)
	}
}

func TestWebSocket_PingAndBadInput(t *testing.T) {
	f := testServer(t)
	ws := connectWebSocket(t, f, auth.RoleObserver, "")

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if resp := readMessage(t, ws); resp.Type != WSTypePong || resp.ID != "ping-1" {
		t.Errorf("pong = %+v", resp)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write invalid message: %v", err)
	}
	if resp := readMessage(t, ws); resp.Type != WSTypeError {
		t.Errorf("invalid JSON reply type = %s, want error", resp.Type)
	}

	if err := ws.WriteJSON(WSMessage{Type: "unknown_type", ID: "x"}); err != nil {
		t.Fatalf("write unknown type: %v", err)
	}
	if resp := readMessage(t, ws); resp.Type != WSTypeError {
		t.Errorf("unknown type reply = %s, want error", resp.Type)
	}
}

func TestWebSocket_Unsubscribe(t *testing.T) {
	f := testServer(t)
	ws := connectWebSocket(t, f, auth.RoleObserver, "")

	subscribe(t, ws, "sub-1", ChannelNotice)
	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "unsub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelNotice}},
	}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	if resp := readMessage(t, ws); resp.Type != WSTypeResponse || resp.ID != "unsub-1" {
		t.Errorf("unsubscribe response = %+v", resp)
	}
}

func TestWebSocket_TicketRequired(t *testing.T) {
	f := testServer(t)
	ts := httptest.NewServer(f.router)
	defer ts.Close()
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	for _, url := range []string{base, base + "?ticket=invalid-ticket"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Fatalf("expected error connecting to %s", url)
		}
		if resp != nil && resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	}
}

func TestWebSocket_StopAllEngineFailure(t *testing.T) {
	f := testServer(t)
	f.dispatcher.err = fmt.Errorf("%w: stop all: %w", session.ErrEngine, errors.New("request timed out"))
	f.dispatcher.outcome = orchestrator.Outcome{
		Stop: &session.StopResult{Target: testTarget, Stopped: []string{"s-1"}, Epoch: 3},
	}
	ws := connectWebSocket(t, f, auth.RoleController, "")

	if err := ws.WriteJSON(WSMessage{Type: WSTypeCommand, ID: "cmd-1", Payload: WSCommandPayload{Action: CommandStopAll}}); err != nil {
		t.Fatalf("write command: %v", err)
	}
	msg := readMessage(t, ws)
	if msg.Type != WSTypeError || msg.ID != "cmd-1" {
		t.Fatalf("reply = %+v, want error", msg)
	}

	var e struct {
		Kind   orchestrator.Kind   `json:"kind"`
		Result *session.StopResult `json:"result"`
	}
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if e.Kind != orchestrator.KindUpstreamFatal {
		t.Errorf("kind = %q, want upstream-fatal", e.Kind)
	}
	if e.Result == nil || len(e.Result.Stopped) != 1 || e.Result.Epoch != 3 {
		t.Errorf("result = %+v, want the local stop result", e.Result)
	}
}
