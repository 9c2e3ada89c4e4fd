package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout          = 60 * time.Second
	defaultHumanizerTimeout = 30 * time.Second
	defaultLearningTimeout  = 5 * time.Second

	tracerName = "github.com/nerrad567/typepilot/internal/generation"
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt, settings Settings) (string, error)
}

// Humanizer rewrites generated text to read as if a person wrote it.
type Humanizer interface {
	Humanize(ctx context.Context, text string, gradeLevel int, tone Tone, style RewriteStyle) (string, error)
}

// LearningStore records question/answer pairs when learning mode is on.
type LearningStore interface {
	RecordTopic(ctx context.Context, question, answer string) error
}

// MetricsWriter records generation telemetry. Satisfied by *influxdb.Client.
type MetricsWriter interface {
	WriteGeneration(target, outcome string, latency time.Duration, humanized bool, chars int)
}

// Logger is the logging interface used by the pipeline.
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

// Request is one generation to run.
type Request struct {
	// Target is the automation target the result will be delivered to.
	// Used for telemetry only.
	Target     string
	SourceText string
	Settings   Settings
}

// Result is the text to deliver.
type Result struct {
	Text      string `json:"text"`
	Humanized bool   `json:"humanized"`
}

// Config bounds the pipeline's upstream calls.
type Config struct {
	Timeout          time.Duration
	HumanizerTimeout time.Duration
	LearningTimeout  time.Duration
}

// Pipeline runs generation requests. Safe for concurrent use.
type Pipeline struct {
	cfg       Config
	generator Generator
	humanizer Humanizer
	learning  LearningStore
	metrics   MetricsWriter
	logger    Logger
	tracer    trace.Tracer

	// background tracks learning writes still in flight.
	background sync.WaitGroup
}

// NewPipeline creates a pipeline. humanizer and learning may be nil, in which
// case the matching settings toggles are ignored.
func NewPipeline(cfg Config, generator Generator, humanizer Humanizer, learning LearningStore, logger Logger) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HumanizerTimeout <= 0 {
		cfg.HumanizerTimeout = defaultHumanizerTimeout
	}
	if cfg.LearningTimeout <= 0 {
		cfg.LearningTimeout = defaultLearningTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Pipeline{
		cfg:       cfg,
		generator: generator,
		humanizer: humanizer,
		learning:  learning,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// SetMetrics enables generation telemetry.
func (p *Pipeline) SetMetrics(m MetricsWriter) {
	p.metrics = m
}

// Generate runs one request through generation, optional humanization and
// optional learning capture. Upstream failures are returned unretried.
func (p *Pipeline) Generate(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "generation.generate", trace.WithAttributes(
		attribute.String("typepilot.target", req.Target),
		attribute.String("generation.response_type", string(req.Settings.ResponseType)),
		attribute.Bool("generation.humanizer", req.Settings.HumanizerEnabled),
	))
	defer span.End()

	res, err := p.generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.record(req.Target, outcomeFor(err), started, Result{})
		return Result{}, err
	}

	span.SetAttributes(
		attribute.Int("generation.chars", len(res.Text)),
		attribute.Bool("generation.humanized", res.Humanized),
	)
	p.record(req.Target, "ok", started, res)
	return res, nil
}

func (p *Pipeline) generate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.SourceText) == "" {
		return Result{}, ErrEmptySource
	}
	settings := req.Settings.Normalize()
	if err := settings.Validate(); err != nil {
		return Result{}, err
	}

	prompt := BuildPrompt(req.SourceText, settings)

	genCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	text, err := p.generator.Generate(genCtx, prompt, settings)
	timedOut := errors.Is(genCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()
	if err != nil {
		if timedOut {
			return Result{}, fmt.Errorf("%w after %s", ErrTimeout, p.cfg.Timeout)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("%w: empty answer", ErrMalformedResponse)
	}

	res := Result{Text: text}
	if settings.HumanizerEnabled && p.humanizer != nil {
		res = p.humanize(ctx, text, settings)
	}

	if settings.LearningModeEnabled && p.learning != nil {
		p.recordTopic(prompt.User, res.Text)
	}
	return res, nil
}

// humanize never fails: on error the original text is kept.
func (p *Pipeline) humanize(ctx context.Context, text string, settings Settings) Result {
	ctx, span := p.tracer.Start(ctx, "generation.humanize")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.HumanizerTimeout)
	defer cancel()

	out, err := p.humanizer.Humanize(ctx, text, settings.GradeLevel, settings.Tone, settings.RewriteStyle)
	if err == nil && strings.TrimSpace(out) == "" {
		err = fmt.Errorf("%w: empty answer", ErrMalformedResponse)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("humanizer failed, using original text", "error", err)
		return Result{Text: text}
	}
	return Result{Text: out, Humanized: true}
}

// recordTopic writes in the background with its own deadline, detached from
// the request context.
func (p *Pipeline) recordTopic(question, answer string) {
	p.background.Add(1)
	go func() {
		defer p.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.LearningTimeout)
		defer cancel()
		if err := p.learning.RecordTopic(ctx, question, answer); err != nil {
			p.logger.Warn("recording learning topic failed", "error", err)
		}
	}()
}

// Wait blocks until background learning writes have finished.
func (p *Pipeline) Wait() {
	p.background.Wait()
}

func (p *Pipeline) record(target, outcome string, started time.Time, res Result) {
	if p.metrics == nil {
		return
	}
	p.metrics.WriteGeneration(target, outcome, time.Since(started), res.Humanized, len(res.Text))
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "unavailable"
	}
}
