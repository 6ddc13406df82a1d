// Package llm is the generative-model client used for ticket classification.
//
// Providers translate a Request into their wire format and return the raw
// output units of the first candidate as Output values; callers normalize a
// unit with Text.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/config"
)

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("llm: api key is empty")

// Client generates model output for a prompt.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Request is a single-turn prompt with an optional system instruction.
type Request struct {
	System string
	Prompt string
}

// Response holds the output units of the first candidate.
type Response struct {
	Model   string
	Outputs []Output
}

// ProviderError is returned when the model API answers with a non-200 status.
type ProviderError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the request may succeed if repeated.
func (e *ProviderError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= http.StatusInternalServerError
}

// IsTransient reports whether err is a rate limit, a server error, a timeout
// or a network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// New builds the provider named in cfg.
func New(cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: cfg.Timeout()}

	switch cfg.Provider {
	case "", "gemini":
		return NewGemini(httpClient, cfg.Endpoint, cfg.Model, cfg.APIKey, logger), nil
	case "openai":
		return NewOpenAI(httpClient, cfg.Endpoint, cfg.Model, cfg.APIKey, logger), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// postJSON marshals body, POSTs it and returns the response. Non-200
// answers become a *ProviderError and the body is closed.
func postJSON(ctx context.Context, httpClient *http.Client, endpoint string, headers map[string]string, body any, prefix string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", prefix, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: new request: %w", prefix, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: send request: %w", prefix, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readProviderError(resp)
	}
	return resp, nil
}

// decodeBody reads a JSON response body into T and closes it.
func decodeBody[T any](resp *http.Response, prefix string) (*T, error) {
	defer resp.Body.Close()
	out := new(T)
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", prefix, err)
	}
	return out, nil
}

// readProviderError understands the {"error":{"message","status"|"type"}}
// bodies both providers send and falls back to the raw body.
func readProviderError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wire struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Error.Message != "" {
		status := wire.Error.Status
		if status == "" {
			status = wire.Error.Type
		}
		return &ProviderError{StatusCode: resp.StatusCode, Status: status, Message: wire.Error.Message}
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
