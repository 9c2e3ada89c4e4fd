package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// ─── Mocks ──────────────────────────────────────────────────────────────────

type mockGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	block   bool
	calls   int
	prompts []Prompt
}

func (g *mockGenerator) Generate(ctx context.Context, prompt Prompt, _ Settings) (string, error) {
	g.mu.Lock()
	g.calls++
	g.prompts = append(g.prompts, prompt)
	block, text, err := g.block, g.text, g.err
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return text, err
}

type mockHumanizer struct {
	text  string
	err   error
	calls int
}

func (h *mockHumanizer) Humanize(_ context.Context, _ string, _ int, _ Tone, _ RewriteStyle) (string, error) {
	h.calls++
	return h.text, h.err
}

type mockLearning struct {
	mu      sync.Mutex
	entries [][2]string
	err     error
}

func (l *mockLearning) RecordTopic(_ context.Context, question, answer string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, [2]string{question, answer})
	return l.err
}

func (l *mockLearning) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type mockMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *mockMetrics) WriteGeneration(_ string, outcome string, _ time.Duration, _ bool, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func settingsWith(mutate func(*Settings)) Settings {
	s := DefaultSettings()
	if mutate != nil {
		mutate(&s)
	}
	return s
}

// ─── Generate ───────────────────────────────────────────────────────────────

func TestPipeline_GenerateWithLearning(t *testing.T) {
	gen := &mockGenerator{text: "The moon's gravity."}
	learn := &mockLearning{}
	metrics := &mockMetrics{}
	p := NewPipeline(Config{}, gen, nil, learn, nil)
	p.SetMetrics(metrics)

	res, err := p.Generate(context.Background(), Request{
		Target:     "desktop",
		SourceText: "What causes tides?",
		Settings:   DefaultSettings(),
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.Text != "The moon's gravity." || res.Humanized {
		t.Errorf("Generate() = %+v", res)
	}

	p.Wait()
	if learn.count() != 1 || learn.entries[0][0] != "What causes tides?" || learn.entries[0][1] != "The moon's gravity." {
		t.Errorf("learning entries = %v", learn.entries)
	}
	if len(metrics.outcomes) != 1 || metrics.outcomes[0] != "ok" {
		t.Errorf("metrics outcomes = %v", metrics.outcomes)
	}
}

func TestPipeline_LearningDisabledOrFailing(t *testing.T) {
	gen := &mockGenerator{text: "answer"}

	learn := &mockLearning{}
	p := NewPipeline(Config{}, gen, nil, learn, nil)
	_, err := p.Generate(context.Background(), Request{
		SourceText: "q",
		Settings:   settingsWith(func(s *Settings) { s.LearningModeEnabled = false }),
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	p.Wait()
	if learn.count() != 0 {
		t.Errorf("recorded %d topics with learning disabled", learn.count())
	}

	failing := &mockLearning{err: errors.New("disk full")}
	p = NewPipeline(Config{}, gen, nil, failing, nil)
	res, err := p.Generate(context.Background(), Request{SourceText: "q", Settings: DefaultSettings()})
	p.Wait()
	if err != nil || res.Text != "answer" {
		t.Errorf("Generate() = %+v, %v; learning failure must not affect the result", res, err)
	}
}

func TestPipeline_Humanizer(t *testing.T) {
	tests := []struct {
		name          string
		humanizer     *mockHumanizer
		wantText      string
		wantHumanized bool
	}{
		{"rewrites", &mockHumanizer{text: "tides come from the moon"}, "tides come from the moon", true},
		{"failure falls back", &mockHumanizer{err: ErrServiceUnavailable}, "The moon's gravity.", false},
		{"blank reply falls back", &mockHumanizer{text: "  "}, "The moon's gravity.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{text: "The moon's gravity."}
			p := NewPipeline(Config{}, gen, tt.humanizer, nil, nil)
			res, err := p.Generate(context.Background(), Request{
				SourceText: "What causes tides?",
				Settings:   settingsWith(func(s *Settings) { s.HumanizerEnabled = true }),
			})
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if res.Text != tt.wantText || res.Humanized != tt.wantHumanized {
				t.Errorf("Generate() = %+v, want %q humanized=%v", res, tt.wantText, tt.wantHumanized)
			}
		})
	}

	t.Run("disabled", func(t *testing.T) {
		h := &mockHumanizer{text: "rewritten"}
		p := NewPipeline(Config{}, &mockGenerator{text: "original"}, h, nil, nil)
		res, _ := p.Generate(context.Background(), Request{SourceText: "q", Settings: DefaultSettings()})
		if h.calls != 0 || res.Text != "original" {
			t.Errorf("humanizer called %d times, result %+v", h.calls, res)
		}
	})
}

func TestPipeline_Errors(t *testing.T) {
	tests := []struct {
		name        string
		gen         *mockGenerator
		req         Request
		wantErr     error
		wantCalls   int
		wantOutcome string
	}{
		{
			name:        "empty source",
			gen:         &mockGenerator{text: "x"},
			req:         Request{SourceText: " \n ", Settings: DefaultSettings()},
			wantErr:     ErrEmptySource,
			wantOutcome: "invalid",
		},
		{
			name:        "invalid settings",
			gen:         &mockGenerator{text: "x"},
			req:         Request{SourceText: "q", Settings: settingsWith(func(s *Settings) { s.Tone = "shouty" })},
			wantErr:     ErrInvalidRequest,
			wantOutcome: "invalid",
		},
		{
			name:        "rate limited is not retried",
			gen:         &mockGenerator{err: ErrRateLimited},
			req:         Request{SourceText: "q", Settings: DefaultSettings()},
			wantErr:     ErrRateLimited,
			wantCalls:   1,
			wantOutcome: "rate_limited",
		},
		{
			name:        "service unavailable",
			gen:         &mockGenerator{err: ErrServiceUnavailable},
			req:         Request{SourceText: "q", Settings: DefaultSettings()},
			wantErr:     ErrServiceUnavailable,
			wantCalls:   1,
			wantOutcome: "unavailable",
		},
		{
			name:        "blank answer",
			gen:         &mockGenerator{text: "   "},
			req:         Request{SourceText: "q", Settings: DefaultSettings()},
			wantErr:     ErrMalformedResponse,
			wantCalls:   1,
			wantOutcome: "malformed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := &mockMetrics{}
			p := NewPipeline(Config{}, tt.gen, nil, nil, nil)
			p.SetMetrics(metrics)

			_, err := p.Generate(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Generate() error = %v, want %v", err, tt.wantErr)
			}
			if tt.gen.calls != tt.wantCalls {
				t.Errorf("generator called %d times, want %d", tt.gen.calls, tt.wantCalls)
			}
			if len(metrics.outcomes) != 1 || metrics.outcomes[0] != tt.wantOutcome {
				t.Errorf("metrics outcomes = %v, want [%s]", metrics.outcomes, tt.wantOutcome)
			}
		})
	}
}

func TestPipeline_Timeout(t *testing.T) {
	p := NewPipeline(Config{Timeout: 20 * time.Millisecond}, &mockGenerator{block: true}, nil, nil, nil)

	start := time.Now()
	_, err := p.Generate(context.Background(), Request{SourceText: "q", Settings: DefaultSettings()})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Generate() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestPipeline_CallerCancelled(t *testing.T) {
	p := NewPipeline(Config{Timeout: time.Minute}, &mockGenerator{block: true}, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := p.Generate(ctx, Request{SourceText: "q", Settings: DefaultSettings()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Generate() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("cancellation reported as timeout")
	}
}
