package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel    = "gemini-1.5-flash-8b"
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
)

// Gemini implements Client for the generateContent REST API.
type Gemini struct {
	httpClient *http.Client
	endpoint   string
	model      string
	apiKey     string
	logger     *zap.Logger
}

var _ Client = (*Gemini)(nil)

// NewGemini builds a Gemini client. Empty endpoint and model fall back to
// the public API and DefaultGeminiModel.
func NewGemini(httpClient *http.Client, endpoint, model, apiKey string, logger *zap.Logger) *Gemini {
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gemini{
		httpClient: httpClient,
		endpoint:   strings.TrimRight(endpoint, "/"),
		model:      model,
		apiKey:     apiKey,
		logger:     logger,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []json.RawMessage `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
}

// Generate sends one generateContent call.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	wire := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if req.System != "" {
		wire.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	start := time.Now()
	url := fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, g.model)
	resp, err := postJSON(ctx, g.httpClient, url, map[string]string{"x-goog-api-key": g.apiKey}, wire, "llm/gemini")
	if err != nil {
		g.logger.Warn("gemini request failed", zap.String("model", g.model), zap.Error(err))
		return nil, err
	}
	body, err := decodeBody[geminiResponse](resp, "llm/gemini")
	if err != nil {
		return nil, err
	}

	out := &Response{Model: g.model}
	if body.ModelVersion != "" {
		out.Model = body.ModelVersion
	}
	if len(body.Candidates) > 0 {
		for _, part := range body.Candidates[0].Content.Parts {
			out.Outputs = append(out.Outputs, DecodeOutput(part))
		}
	}
	g.logger.Debug("gemini response",
		zap.String("model", out.Model),
		zap.Int("outputs", len(out.Outputs)),
		zap.Int64("duration_ms", elapsedMS(start)))
	return out, nil
}
