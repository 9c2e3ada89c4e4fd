package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/typepilot/internal/infrastructure/config"
)

// mockWriter records points instead of sending them.
type mockWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (m *mockWriter) WritePoint(p *write.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, p)
}

func (m *mockWriter) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
}

func newTestClient() (*Client, *mockWriter) {
	w := &mockWriter{}
	return &Client{writeAPI: w, connected: true}, w
}

func tagValue(p *write.Point, key string) string {
	for _, tag := range p.TagList() {
		if tag.Key == key {
			return tag.Value
		}
	}
	return ""
}

func fieldValue(p *write.Point, key string) any {
	for _, f := range p.FieldList() {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

// ─── Connection ─────────────────────────────────────────────────────

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(context.Background(), config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Token:   "token",
		Org:     "typepilot",
		Bucket:  "telemetry",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClose(t *testing.T) {
	c, w := newTestClient()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}

	// Second close and later writes are no-ops.
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	c.WriteSessionProgress("desktop", "s1", 10, 5, 60)
	c.Flush()
	if len(w.points) != 0 || w.flushes != 1 {
		t.Errorf("writes after Close: points=%d flushes=%d", len(w.points), w.flushes)
	}
}

func TestClose_Nil(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on empty client error = %v", err)
	}
}

// ─── Writes ─────────────────────────────────────────────────────────

func TestWriteSessionProgress(t *testing.T) {
	c, w := newTestClient()

	c.WriteSessionProgress("desktop", "sess-1", 42, 120, 61.5)

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != measurementSessionProgress {
		t.Errorf("measurement = %q", p.Name())
	}
	if tagValue(p, "target") != "desktop" {
		t.Errorf("target tag = %q", tagValue(p, "target"))
	}
	if tagValue(p, "session_id") != "" {
		t.Error("session_id must not be a tag")
	}
	if fieldValue(p, "session_id") != "sess-1" {
		t.Errorf("session_id field = %v", fieldValue(p, "session_id"))
	}
	if fieldValue(p, "wpm") != 61.5 {
		t.Errorf("wpm field = %v", fieldValue(p, "wpm"))
	}
}

func TestWriteSessionOutcome(t *testing.T) {
	c, w := newTestClient()

	c.WriteSessionOutcome("desktop", "completed", 11, 11, 2500*time.Millisecond)

	p := w.points[0]
	if p.Name() != measurementSessionOutcome {
		t.Errorf("measurement = %q", p.Name())
	}
	if tagValue(p, "status") != "completed" {
		t.Errorf("status tag = %q", tagValue(p, "status"))
	}
	if fieldValue(p, "typing_seconds") != 2.5 {
		t.Errorf("typing_seconds = %v, want 2.5", fieldValue(p, "typing_seconds"))
	}
}

func TestWriteGeneration(t *testing.T) {
	c, w := newTestClient()

	c.WriteGeneration("desktop", "upstream_transient", 1500*time.Millisecond, false, 0)

	p := w.points[0]
	if tagValue(p, "outcome") != "upstream_transient" {
		t.Errorf("outcome tag = %q", tagValue(p, "outcome"))
	}
	if fieldValue(p, "latency_ms") != int64(1500) {
		t.Errorf("latency_ms = %v, want 1500", fieldValue(p, "latency_ms"))
	}
	if fieldValue(p, "humanized") != false {
		t.Errorf("humanized = %v, want false", fieldValue(p, "humanized"))
	}
}

func TestWriteErrorsReachCallback(t *testing.T) {
	c, _ := newTestClient()

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	errs := make(chan error, 1)
	go c.handleWriteErrors(errs)
	errs <- errors.New("bucket not found")
	close(errs)

	select {
	case err := <-got:
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}
