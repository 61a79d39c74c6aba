package persona

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lurelab/lure/pkg/core"
)

const (
	// GroqDefaultBaseURL is the Groq API endpoint (OpenAI-compatible).
	GroqDefaultBaseURL = "https://api.groq.com/openai/v1"

	// GroqDefaultModel balances latency against staying in character.
	GroqDefaultModel = "llama-3.3-70b-versatile"
)

// GroqProvider implements Provider against Groq's OpenAI-compatible
// chat completions API.
type GroqProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// GroqOption configures a GroqProvider.
type GroqOption func(*GroqProvider)

// WithGroqBaseURL overrides the API endpoint.
func WithGroqBaseURL(u string) GroqOption {
	return func(p *GroqProvider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithGroqModel overrides the model.
func WithGroqModel(m string) GroqOption {
	return func(p *GroqProvider) { p.model = m }
}

// WithGroqHTTPClient overrides the HTTP client.
func WithGroqHTTPClient(c *http.Client) GroqOption {
	return func(p *GroqProvider) { p.httpClient = c }
}

// NewGroq creates a Groq-backed provider.
func NewGroq(apiKey string, opts ...GroqOption) *GroqProvider {
	p := &GroqProvider{
		apiKey:     apiKey,
		baseURL:    GroqDefaultBaseURL,
		model:      GroqDefaultModel,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *GroqProvider) Name() string {
	return "groq"
}

type groqChatRequest struct {
	Model       string            `json:"model"`
	Messages    []groqChatMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

type groqChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Reply implements Provider.
func (p *GroqProvider) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	body := groqChatRequest{
		Model:       p.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, groqChatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.History {
		role := "user"
		if m.Role == RoleDecoy {
			role = "assistant"
		}
		body.Messages = append(body.Messages, groqChatMessage{Role: role, Content: m.Text})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", core.NewProviderError("groq", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", core.NewProviderError("groq", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", core.NewProviderError("groq", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", core.NewProviderError("groq", err)
	}

	var parsed groqChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", core.NewProviderError("groq", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err))
	}
	if resp.StatusCode != http.StatusOK {
		msg := "request failed"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", core.NewProviderError("groq", fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}
	if len(parsed.Choices) == 0 {
		return "", core.NewProviderError("groq", fmt.Errorf("empty choices"))
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", core.NewProviderError("groq", fmt.Errorf("empty completion"))
	}
	return text, nil
}
