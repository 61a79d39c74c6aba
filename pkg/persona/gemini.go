package persona

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/lurelab/lure/pkg/core"
)

// GeminiDefaultModel is the default Gemini model.
const GeminiDefaultModel = "gemini-2.0-flash"

// GeminiProvider implements Provider on the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed provider.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if model == "" {
		model = GeminiDefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Reply implements Provider.
func (p *GeminiProvider) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	contents := make([]*genai.Content, 0, len(req.History))
	for _, m := range req.History {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleDecoy {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return "", core.NewProviderError("gemini", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", core.NewProviderError("gemini", fmt.Errorf("empty completion"))
	}
	return text, nil
}
