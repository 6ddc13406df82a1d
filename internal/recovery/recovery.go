// Package recovery turns unreliable model output into JSON.
//
// An Engine runs an ordered list of stages. Each stage rewrites the working
// text it receives from the previous stage and a standard JSON parse is tried
// on the result; the first stage whose output parses wins. The default
// stages go from least to most aggressive so that output which is already
// valid is never touched by a rewrite:
//
//	direct   the raw text as is
//	extract  greedy span from the first '{' to the last '}'
//	clean    fence stripping, key quoting, quote normalization,
//	         trailing-comma removal and unescaping, in that order
//	repair   first '{' to last '}' of the cleaned text
package recovery

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ReceivedPrefixLen bounds how much of the raw text an Error keeps.
const ReceivedPrefixLen = 200

// Stage is one step of the cascade. Rewrite must be pure.
type Stage struct {
	Name    string
	Rewrite func(string) string
}

// Attempt records why a stage's output did not parse.
type Attempt struct {
	Stage string
	Err   error
}

// Error is returned when no stage produced parseable JSON.
type Error struct {
	// Received is at most ReceivedPrefixLen runes of the raw input.
	Received string
	Attempts []Attempt
}

func (e *Error) Error() string {
	return fmt.Sprintf("unable to parse AI response as JSON. Received: %s...", e.Received)
}

// DefaultStages returns the standard cascade.
func DefaultStages() []Stage {
	return []Stage{
		{Name: "direct", Rewrite: func(s string) string { return s }},
		{Name: "extract", Rewrite: ExtractObject},
		{Name: "clean", Rewrite: Clean},
		{Name: "repair", Rewrite: ExtractObject},
	}
}

// Engine runs a recovery cascade.
type Engine struct {
	stages []Stage
	logger *zap.Logger
}

// New builds an Engine. With no stages it uses DefaultStages.
func New(logger *zap.Logger, stages ...Stage) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	return &Engine{stages: stages, logger: logger}
}

// Recover parses raw into a JSON value (map[string]any, []any, string,
// float64, bool or nil).
func (e *Engine) Recover(raw string) (any, error) {
	value, _, err := e.run(raw)
	return value, err
}

// Decode recovers raw and unmarshals the recovered JSON into v.
func (e *Engine) Decode(raw string, v any) error {
	_, text, err := e.run(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("decode recovered json: %w", err)
	}
	return nil
}

func (e *Engine) run(raw string) (any, string, error) {
	working := raw
	attempts := make([]Attempt, 0, len(e.stages))
	tried := map[string]bool{}

	for _, stage := range e.stages {
		working = stage.Rewrite(working)
		if tried[working] {
			continue
		}
		tried[working] = true

		var value any
		err := json.Unmarshal([]byte(working), &value)
		if err == nil {
			if len(attempts) > 0 {
				e.logger.Debug("recovered model json", zap.String("stage", stage.Name), zap.Int("failed_stages", len(attempts)))
			}
			return value, working, nil
		}
		attempts = append(attempts, Attempt{Stage: stage.Name, Err: err})
		e.logger.Debug("json stage failed", zap.String("stage", stage.Name), zap.Error(err))
	}

	recErr := &Error{Received: truncate(raw, ReceivedPrefixLen), Attempts: attempts}
	e.logger.Warn("json recovery failed",
		zap.String("received", recErr.Received),
		zap.Int("stages", len(attempts)))
	return nil, "", recErr
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
