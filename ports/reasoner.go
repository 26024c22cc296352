package ports

import "context"

// ReasoningTask names what the collaborator is asked to produce
type ReasoningTask string

const (
	TaskDomainInference ReasoningTask = "domain_inference"
	TaskDatasetSummary  ReasoningTask = "dataset_summary"
	TaskFinalAnswer     ReasoningTask = "final_answer"
)

// ReasoningRequest carries a task and its JSON-encoded input
type ReasoningRequest struct {
	Task  ReasoningTask
	Input string
}

// Reasoner is the language-model collaborator. It returns a JSON document whose
// shape depends on the task; callers validate it and never trust it blindly.
type Reasoner interface {
	Reason(ctx context.Context, req ReasoningRequest) (string, error)
}
