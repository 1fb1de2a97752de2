package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/leofalp/chatkeeper/internal/utils"
	"github.com/leofalp/chatkeeper/providers/ai"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.0-flash"
)

var (
	// ErrMissingAPIKey is returned by SendMessage when no API key is configured.
	ErrMissingAPIKey = errors.New("GEMINI_API_KEY is not set")
	// ErrEmptyReply is returned when the response carries no reply text,
	// including prompts rejected by the safety filters.
	ErrEmptyReply = errors.New("gemini: response has no reply text")
)

// GeminiProvider implements the ai.Provider interface for Google's Gemini API.
type GeminiProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates a new Gemini provider instance with default values from environment.
// Environment variables:
//   - GEMINI_API_KEY: API key for authentication
//   - GEMINI_API_BASE_URL: Base URL for API (optional, defaults to Google's API)
func New() *GeminiProvider {
	apiKey := os.Getenv("GEMINI_API_KEY")
	baseURL := os.Getenv("GEMINI_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &GeminiProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

// WithAPIKey sets the API key for the provider.
func (p *GeminiProvider) WithAPIKey(apiKey string) ai.Provider {
	p.apiKey = apiKey
	return p
}

// WithBaseURL sets the base URL for the API.
func (p *GeminiProvider) WithBaseURL(baseURL string) ai.Provider {
	p.baseURL = baseURL
	return p
}

// WithHttpClient sets a custom HTTP client.
func (p *GeminiProvider) WithHttpClient(httpClient *http.Client) ai.Provider {
	p.client = httpClient
	return p
}

// SendMessage implements the ai.Provider interface.
// It sends a chat request to the Gemini API and returns the response.
func (p *GeminiProvider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	model := request.Model
	if model == "" {
		model = DefaultModel
	}

	if p.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)
	geminiReq := requestToGemini(request)

	slog.DebugContext(ctx, "gemini request",
		"model", model,
		"contents", len(geminiReq.Contents),
		"system_instruction", geminiReq.SystemInstruction != nil,
	)

	// Gemini authenticates with its own header rather than a Bearer token.
	httpResponse, resp, err := utils.DoPostSync[generateContentResponse](
		ctx,
		p.client,
		url,
		"",
		geminiReq,
		utils.HeaderOption{Key: "x-goog-api-key", Value: p.apiKey},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("gemini: empty response: %s", httpResponse.Status)
	}

	result := geminiToGeneric(*resp)
	if result.Model == "" {
		result.Model = model
	}
	if result.Content == "" {
		if result.Refusal != "" {
			return result, fmt.Errorf("%w: prompt blocked: %s", ErrEmptyReply, result.Refusal)
		}
		return result, fmt.Errorf("%w: finish reason %s", ErrEmptyReply, result.FinishReason)
	}
	return result, nil
}
