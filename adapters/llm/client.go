package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"gostudio/internal"
)

// Config holds LLM adapter configuration
type Config struct {
	Model       string        // e.g., "gpt-4.1-mini"
	APIKey      string        // OpenAI API key
	BaseURL     string        // Optional override (default: https://api.openai.com/v1)
	Temperature float64       // 0.0-1.0, lower = more deterministic
	MaxTokens   int           // Max tokens in response
	MaxRetries  int           // Retries on 429 and 5xx answers
	Timeout     time.Duration // Request timeout
}

// Usage is the token accounting reported with a completion
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// OpenAIClient calls the chat-completions API through the OpenAI SDK
type OpenAIClient struct {
	client      openai.Client
	temperature float64
}

// newOpenAIClient creates a client from config
func newOpenAIClient(config Config) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("missing OpenAI API key")
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(max(config.MaxRetries, 0)),
	}
	if baseURL := strings.TrimSpace(config.BaseURL); baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		temperature: config.Temperature,
	}, nil
}

// ChatCompletion sends one system and one user message and returns the content of
// the first choice. jsonMode asks the model for a JSON object.
func (c *OpenAIClient) ChatCompletion(ctx context.Context, model, system, prompt string, maxTokens int, jsonMode bool) (string, *Usage, error) {
	if strings.TrimSpace(model) == "" {
		return "", nil, fmt.Errorf("missing model")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}
	if jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", nil, fmt.Errorf("openai http %d: %w", apiErr.StatusCode, err)
		}
		return "", nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", nil, fmt.Errorf("openai response missing choices")
	}

	usage := &Usage{
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
	}
	internal.DefaultLogger.Debug("[LLM] %s answered in %v (%d tokens)", model, time.Since(start), usage.TotalTokens)
	return completion.Choices[0].Message.Content, usage, nil
}
