package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"gostudio/domain/core"
	"gostudio/domain/profile"
	"gostudio/domain/ranking"
	"gostudio/domain/session"
	"gostudio/internal"
	"gostudio/ports"
)

// errNoReasoner means the service runs on templates only
var errNoReasoner = errors.New("no reasoning collaborator configured")

// Service asks the reasoning collaborator for narrative artifacts and validates
// what comes back. Any failure falls back to a deterministic template, so callers
// always get a usable artifact.
type Service struct {
	reasoner ports.Reasoner // nil runs on templates only
	timeout  time.Duration
	logger   *internal.Logger
}

// NewService creates a reasoning service; reasoner may be nil
func NewService(reasoner ports.Reasoner, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		reasoner: reasoner,
		timeout:  timeout,
		logger:   internal.DefaultLogger,
	}
}

// ============================================================================
// TASKS
// ============================================================================

// InferDomain classifies the business domain of the profiled dataset
func (s *Service) InferDomain(ctx context.Context, p *profile.Profile) session.DomainInsight {
	res, err := s.call(ctx, ports.TaskDomainInference, newProfileView(p))
	if err == nil {
		var insight session.DomainInsight
		if insight, err = parseDomain(res); err == nil {
			return insight
		}
		s.reject(ports.TaskDomainInference, err)
	}
	return fallbackDomain(p)
}

// SummarizeDataset writes the executive summary shown after profiling
func (s *Service) SummarizeDataset(ctx context.Context, p *profile.Profile, domain session.DomainInsight) session.DatasetSummary {
	input := struct {
		Profile profileView `json:"profile"`
		Domain  string      `json:"domain"`
	}{newProfileView(p), domain.Domain}

	res, err := s.call(ctx, ports.TaskDatasetSummary, input)
	if err == nil {
		var summary session.DatasetSummary
		if summary, err = parseSummary(res); err == nil {
			return summary
		}
		s.reject(ports.TaskDatasetSummary, err)
	}
	return fallbackSummary(p, domain)
}

// Answer narrates the ranked drivers as an answer to goal
func (s *Service) Answer(ctx context.Context, goal string, r *ranking.Ranking) session.Answer {
	input := struct {
		Goal       string                `json:"goal"`
		Target     string                `json:"target"`
		TargetType string                `json:"target_type"`
		Drivers    []driverView          `json:"top_drivers"`
		Flags      []ranking.QualityFlag `json:"data_quality_flags"`
	}{Goal: goal}
	if r != nil {
		input.Target, input.TargetType, input.Flags = r.Target, string(r.TargetType), r.Flags
		for _, d := range r.Top(5) {
			input.Drivers = append(input.Drivers, newDriverView(d))
		}
	}

	res, err := s.call(ctx, ports.TaskFinalAnswer, input)
	if err == nil {
		var answer session.Answer
		if answer, err = parseAnswer(res); err == nil {
			return answer
		}
		s.reject(ports.TaskFinalAnswer, err)
	}
	return fallbackAnswer(r)
}

// call runs one task and returns the parsed JSON document
func (s *Service) call(ctx context.Context, task ports.ReasoningTask, input any) (gjson.Result, error) {
	if s.reasoner == nil {
		s.logger.Debug("[Reasoning] %s: using template", task)
		return gjson.Result{}, errNoReasoner
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return gjson.Result{}, s.fail(task, fmt.Errorf("encoding input: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out, err := s.reasoner.Reason(ctx, ports.ReasoningRequest{Task: task, Input: string(raw)})
	if err != nil {
		return gjson.Result{}, s.fail(task, err)
	}
	out = stripFences(out)
	if !gjson.Valid(out) {
		return gjson.Result{}, s.fail(task, fmt.Errorf("response is not valid JSON"))
	}
	s.logger.Debug("[Reasoning] %s answered in %v", task, time.Since(start))
	return gjson.Parse(out), nil
}

func (s *Service) fail(task ports.ReasoningTask, cause error) error {
	err := &core.ReasoningCollaboratorError{Task: string(task), Cause: cause}
	s.logger.Warn("[Reasoning] %v; falling back to template", err)
	return err
}

func (s *Service) reject(task ports.ReasoningTask, cause error) {
	s.fail(task, fmt.Errorf("malformed response: %w", cause))
}

// stripFences removes a markdown code fence around a JSON answer
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ============================================================================
// RESPONSE VALIDATION
// ============================================================================

func parseDomain(res gjson.Result) (session.DomainInsight, error) {
	domain, err := requireString(res, "domain")
	if err != nil {
		return session.DomainInsight{}, err
	}
	confidence := res.Get("confidence")
	if confidence.Type != gjson.Number {
		return session.DomainInsight{}, fmt.Errorf("confidence must be a number")
	}
	if c := confidence.Float(); c < 0 || c > 1 {
		return session.DomainInsight{}, fmt.Errorf("confidence %.3f is outside [0, 1]", c)
	}
	reasoning, err := requireString(res, "reasoning")
	if err != nil {
		return session.DomainInsight{}, err
	}
	return session.DomainInsight{Domain: domain, Confidence: confidence.Float(), Reasoning: reasoning}, nil
}

func parseSummary(res gjson.Result) (session.DatasetSummary, error) {
	headline, err := requireString(res, "headline")
	if err != nil {
		return session.DatasetSummary{}, err
	}
	highlights, err := requireStrings(res, "highlights")
	if err != nil {
		return session.DatasetSummary{}, err
	}
	return session.DatasetSummary{Headline: headline, Highlights: highlights}, nil
}

func parseAnswer(res gjson.Result) (session.Answer, error) {
	narrative, err := requireString(res, "narrative")
	if err != nil {
		return session.Answer{}, err
	}
	evidence, err := requireStrings(res, "evidence")
	if err != nil {
		return session.Answer{}, err
	}
	return session.Answer{Narrative: narrative, Evidence: evidence}, nil
}

func requireString(res gjson.Result, path string) (string, error) {
	v := res.Get(path)
	if v.Type != gjson.String || strings.TrimSpace(v.Str) == "" {
		return "", fmt.Errorf("%s must be a non-empty string", path)
	}
	return strings.TrimSpace(v.Str), nil
}

func requireStrings(res gjson.Result, path string) ([]string, error) {
	v := res.Get(path)
	if !v.IsArray() {
		return nil, fmt.Errorf("%s must be an array", path)
	}
	items := v.Array()
	out := make([]string, 0, len(items))
	for i, item := range items {
		if item.Type != gjson.String {
			return nil, fmt.Errorf("%s[%d] must be a string", path, i)
		}
		out = append(out, item.Str)
	}
	return out, nil
}
