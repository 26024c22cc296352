package llm

import (
	"context"
	"fmt"

	"gostudio/ports"
)

// instructions per task; every answer must be a single JSON object
var instructions = map[ports.ReasoningTask]string{
	ports.TaskDomainInference: `You classify the business domain of a tabular dataset from its profile.
Respond with a JSON object: {"domain": string, "confidence": number between 0 and 1, "reasoning": string}.
Base the answer only on the column names, roles and statistics you are given.`,

	ports.TaskDatasetSummary: `You write a short executive summary of a profiled dataset for a business user.
Respond with a JSON object: {"headline": string, "highlights": [string, ...]}.
Use at most eight highlights. Mention data-quality risks such as missing values and duplicates.`,

	ports.TaskFinalAnswer: `You answer a business question using ranked statistical drivers.
Respond with a JSON object: {"narrative": string, "evidence": [string, ...]}.
Only cite drivers, p-values and effect sizes present in the input. Do not claim causation.`,
}

// OpenAIReasoner implements ports.Reasoner with the chat-completions API in JSON mode
type OpenAIReasoner struct {
	config Config
	client *OpenAIClient
}

// NewOpenAIReasoner creates a reasoner; it fails when no API key is configured
func NewOpenAIReasoner(config Config) (*OpenAIReasoner, error) {
	client, err := newOpenAIClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	if config.Model == "" {
		config.Model = "gpt-4.1-mini"
	}
	return &OpenAIReasoner{config: config, client: client}, nil
}

// Reason sends the task instructions and the JSON input, returning the model's JSON
func (r *OpenAIReasoner) Reason(ctx context.Context, req ports.ReasoningRequest) (string, error) {
	system, ok := instructions[req.Task]
	if !ok {
		return "", fmt.Errorf("unknown reasoning task %q", req.Task)
	}
	content, _, err := r.client.ChatCompletion(ctx, r.config.Model, system, req.Input, r.config.MaxTokens, true)
	if err != nil {
		return "", err
	}
	return content, nil
}
