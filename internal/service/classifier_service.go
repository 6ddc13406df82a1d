package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/llm"
	"github.com/spec-kit/ticket-triage/internal/recovery"
)

const classifierSystemPrompt = `You are an expert AI assistant that processes technical support tickets.

Your job is to:
1. Summarize the issue.
2. Estimate its priority.
3. Provide helpful notes and resource links for human moderators.
4. List relevant technical skills required.

IMPORTANT:
- Respond with *only* valid raw JSON.
- Do NOT include markdown, code fences, comments, or any extra formatting.
- The format must be a raw JSON object.

Repeat: Do not wrap your output in markdown or code fences.`

const classifierPromptTemplate = `You are a ticket triage agent. Only return a strict JSON object with no extra text, headers, or markdown.

Analyze the following support ticket and provide a JSON object with:

- summary: A short 1-2 sentence summary of the issue.
- priority: One of "low", "medium", or "high".
- helpfulNotes: A detailed technical explanation that a moderator can use to solve this issue. Include useful external links or resources if possible.
- relatedSkills: An array of relevant skills required to solve the issue (e.g., ["React", "MongoDB"]).

Respond ONLY in this JSON format and do not include any other text or markdown in the answer:

{
"summary": "Short summary of the ticket",
"priority": "high",
"helpfulNotes": "Here are useful tips...",
"relatedSkills": ["React", "Node.js"]
}

---

Ticket information:

- Title: %s
- Description: %s`

// ClassificationReason says which part of classification failed.
type ClassificationReason string

const (
	ReasonModelError          ClassificationReason = "model_error"
	ReasonUnrecoverableOutput ClassificationReason = "unrecoverable_output"
	ReasonMissingFields       ClassificationReason = "missing_fields"
)

// ClassificationError is the only error Classify returns.
type ClassificationError struct {
	Reason ClassificationReason
	Err    error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("failed to process AI response (%s): %v", e.Reason, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Transient reports whether the model call failed in a way a later attempt
// may not.
func (e *ClassificationError) Transient() bool {
	return e.Reason == ReasonModelError && llm.IsTransient(e.Err)
}

// TicketInput is the text the model classifies.
type TicketInput struct {
	Title       string
	Description string
}

// ClassifierService asks the model for a ticket classification and turns
// its reply into a validated result.
type ClassifierService struct {
	model    llm.Client
	recovery *recovery.Engine
	logger   *zap.Logger
}

// ClassifierDependencies bundles collaborators.
type ClassifierDependencies struct {
	Model    llm.Client
	Recovery *recovery.Engine
	Logger   *zap.Logger
}

// NewClassifierService creates the service.
func NewClassifierService(deps ClassifierDependencies) *ClassifierService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := deps.Recovery
	if engine == nil {
		engine = recovery.New(logger)
	}
	return &ClassifierService{model: deps.Model, recovery: engine, logger: logger}
}

// Classify makes one model call and validates the recovered JSON.
func (s *ClassifierService) Classify(ctx context.Context, in TicketInput) (*domain.ClassificationResult, error) {
	resp, err := s.model.Generate(ctx, llm.Request{
		System: classifierSystemPrompt,
		Prompt: classifierPrompt(in),
	})
	if err != nil {
		return nil, &ClassificationError{Reason: ReasonModelError, Err: err}
	}
	if len(resp.Outputs) == 0 {
		return nil, &ClassificationError{Reason: ReasonUnrecoverableOutput, Err: errors.New("model returned no output")}
	}

	first := resp.Outputs[0]
	if _, ok := first.(llm.Unrecognized); ok {
		s.logger.Warn("unexpected model output shape")
	}
	raw := llm.Text(first)
	s.logger.Debug("raw model response", zap.String("model", resp.Model), zap.String("raw", raw))

	value, err := s.recovery.Recover(raw)
	if err != nil {
		return nil, &ClassificationError{Reason: ReasonUnrecoverableOutput, Err: err}
	}
	// a JSON string holding the object, one level deep
	if inner, ok := value.(string); ok {
		if value, err = s.recovery.Recover(inner); err != nil {
			return nil, &ClassificationError{Reason: ReasonUnrecoverableOutput, Err: err}
		}
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, &ClassificationError{
			Reason: ReasonUnrecoverableOutput,
			Err:    fmt.Errorf("recovered %T, want a JSON object", value),
		}
	}
	return validateClassification(obj)
}

func classifierPrompt(in TicketInput) string {
	return fmt.Sprintf(classifierPromptTemplate, in.Title, in.Description)
}

func validateClassification(obj map[string]any) (*domain.ClassificationResult, error) {
	var missing []string
	summary, ok := obj["summary"].(string)
	if !ok {
		missing = append(missing, "summary")
	}
	notes, ok := obj["helpfulNotes"].(string)
	if !ok {
		missing = append(missing, "helpfulNotes")
	}
	if len(missing) > 0 {
		return nil, &ClassificationError{
			Reason: ReasonMissingFields,
			Err:    fmt.Errorf("missing or non-string fields: %s", strings.Join(missing, ", ")),
		}
	}

	priority, _ := obj["priority"].(string)
	skills := []string{}
	if list, ok := obj["relatedSkills"].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				skills = append(skills, strings.TrimSpace(s))
			}
		}
	}

	return &domain.ClassificationResult{
		Summary:       summary,
		Priority:      domain.ParsePriority(priority),
		HelpfulNotes:  notes,
		RelatedSkills: skills,
	}, nil
}
