package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel    = "gpt-4o-mini"
)

// OpenAI implements Client for any chat-completions compatible API.
type OpenAI struct {
	httpClient *http.Client
	endpoint   string
	model      string
	apiKey     string
	logger     *zap.Logger
}

var _ Client = (*OpenAI)(nil)

// NewOpenAI builds a chat-completions client. endpoint is the full
// completions URL.
func NewOpenAI(httpClient *http.Client, endpoint, model, apiKey string, logger *zap.Logger) *OpenAI {
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	if model == "" || model == DefaultGeminiModel {
		model = defaultOpenAIModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAI{
		httpClient: httpClient,
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
		logger:     logger,
	}
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      json.RawMessage `json:"message"`
		FinishReason string          `json:"finish_reason"`
	} `json:"choices"`
}

// Generate sends one chat completion.
func (o *OpenAI) Generate(ctx context.Context, req Request) (*Response, error) {
	wire := openaiRequest{Model: o.model}
	if req.System != "" {
		wire.Messages = append(wire.Messages, openaiMessage{Role: "system", Content: req.System})
	}
	wire.Messages = append(wire.Messages, openaiMessage{Role: "user", Content: req.Prompt})

	start := time.Now()
	resp, err := postJSON(ctx, o.httpClient, o.endpoint, map[string]string{"Authorization": "Bearer " + o.apiKey}, wire, "llm/openai")
	if err != nil {
		o.logger.Warn("openai request failed", zap.String("model", o.model), zap.Error(err))
		return nil, err
	}
	body, err := decodeBody[openaiResponse](resp, "llm/openai")
	if err != nil {
		return nil, err
	}

	out := &Response{Model: o.model}
	if body.Model != "" {
		out.Model = body.Model
	}
	if len(body.Choices) > 0 && len(body.Choices[0].Message) > 0 {
		out.Outputs = append(out.Outputs, DecodeOutput(body.Choices[0].Message))
	}
	o.logger.Debug("openai response",
		zap.String("model", out.Model),
		zap.Int("outputs", len(out.Outputs)),
		zap.Int64("duration_ms", elapsedMS(start)))
	return out, nil
}
