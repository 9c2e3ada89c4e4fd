package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// tokensPerTier scales the completion budget with the requested length.
const tokensPerTier = 400

// OpenAIConfig configures the chat completions adapter.
type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

// OpenAIGenerator implements Generator against an OpenAI-compatible chat
// completions endpoint. The SDK's own retries are disabled.
type OpenAIGenerator struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAIGenerator creates the adapter.
func NewOpenAIGenerator(cfg OpenAIConfig, opts ...option.RequestOption) *OpenAIGenerator {
	base := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		base = append(base, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	return &OpenAIGenerator{
		client:    openai.NewClient(append(base, opts...)...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Generate sends prompt as a system/user message pair.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt Prompt, settings Settings) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
	}
	if budget := g.tokenBudget(settings); budget > 0 {
		params.MaxCompletionTokens = openai.Int(int64(budget))
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty message content", ErrMalformedResponse)
	}
	return text, nil
}

// tokenBudget is the configured cap, reduced for short answers.
func (g *OpenAIGenerator) tokenBudget(settings Settings) int {
	if settings.ResponseType == LongForm || g.maxTokens <= 0 {
		return g.maxTokens
	}
	return min(g.maxTokens, settings.LengthTier*tokensPerTier)
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		// 5xx, bad credentials or an unknown model: retrying cannot help.
		return fmt.Errorf("%w: status %d: %w", ErrServiceUnavailable, apiErr.StatusCode, err)
	}
	if strings.Contains(err.Error(), "unmarshal") || strings.Contains(err.Error(), "invalid character") {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
}
