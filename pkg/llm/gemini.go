package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiClient holds the Gemini AI client.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a new Gemini client. Call Close on shutdown.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Complete asks Gemini for JSON output. Gemini has no strict-schema mode here, so
// the reflected schema is appended to the prompt instead.
func (g *GeminiClient) Complete(ctx context.Context, system, prompt string, schema any) (string, error) {
	model := g.client.GenerativeModel(g.model)
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	if schema != nil {
		model.ResponseMIMEType = "application/json"
		encoded, err := json.Marshal(schema)
		if err != nil {
			return "", fmt.Errorf("failed to encode response schema: %w", err)
		}
		prompt = prompt + "\n\nRespond only with JSON matching this schema:\n" + string(encoded)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		log.Errorf("Error generating content with Gemini: %v", err)
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		log.Warn("Gemini returned no candidates or content.")
		return "", errors.New("gemini API returned no content")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini API returned non-text content")
	}

	log.Debugf("Gemini raw response (%d bytes)", sb.Len())
	return StripFences(sb.String()), nil
}

// Close releases the underlying Gemini client.
func (g *GeminiClient) Close() error {
	log.Info("Closing Gemini AI service client.")
	return g.client.Close()
}
