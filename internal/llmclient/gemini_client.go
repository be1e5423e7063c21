// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/kanakapalli/nova-act/api/schemas"
	"github.com/kanakapalli/nova-act/internal/config"
)

var (
	// ErrNoCandidates is returned when the API answers without any candidate.
	ErrNoCandidates = errors.New("gemini API returned no candidates")
	// ErrBlocked is returned when the prompt or the candidate was blocked by a safety filter.
	ErrBlocked = errors.New("gemini API blocked the request")
	// ErrEmptyContent is returned when the candidate carries no text.
	ErrEmptyContent = errors.New("gemini API returned empty content")
)

// GeminiClient implements schemas.LLMClient on top of the genai SDK. Each
// Generate call performs exactly one request; retry policy belongs to callers.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
	config  config.LLMModelConfig
}

// NewGeminiClient initializes the client. Endpoint, when set, overrides the API base URL.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("Gemini model name is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{},
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	// A zero rate means unlimited.
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}

	return &GeminiClient{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.APITimeout,
		limiter: limiter,
		logger:  logger.Named("llm_client.gemini"),
		config:  cfg,
	}, nil
}

// Generate sends the prompts to the model and returns the text of the first candidate.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	startTime := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.UserPrompt), c.buildGenerateConfig(req))
	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("Gemini request failed", zap.Duration("duration", duration), zap.Error(err))
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text, err := c.extractText(resp)
	if err != nil {
		c.logger.Warn("Gemini returned an unusable response", zap.Duration("duration", duration), zap.Error(err))
		return "", err
	}

	fields := []zap.Field{zap.Duration("duration", duration), zap.Int("response_bytes", len(text))}
	if u := resp.UsageMetadata; u != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", u.PromptTokenCount),
			zap.Int32("completion_tokens", u.CandidatesTokenCount),
			zap.Int32("total_tokens", u.TotalTokenCount),
		)
	}
	c.logger.Debug("LLM generation complete (Gemini)", fields...)
	return text, nil
}

// buildGenerateConfig maps request options onto the SDK config. Zero-valued
// options fall back to the configured defaults.
func (c *GeminiClient) buildGenerateConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	temperature := float32(req.Options.Temperature)
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	}

	topP := float32(req.Options.TopP)
	if topP == 0 {
		topP = c.config.TopP
	}
	if topP > 0 {
		gc.TopP = genai.Ptr(topP)
	}

	maxTokens := req.Options.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	if maxTokens > 0 {
		gc.MaxOutputTokens = int32(maxTokens)
	}

	// Thinking tokens count against MaxOutputTokens on 2.5 models, and a small
	// output budget can be spent entirely on them. -1 leaves the model default.
	if c.config.ThinkingBudget >= 0 {
		gc.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(c.config.ThinkingBudget))}
	}

	if req.Options.ForceJSONFormat {
		gc.ResponseMIMEType = "application/json"
	}
	if req.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	return gc
}

func (c *GeminiClient) extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w (prompt: %s)", ErrBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", ErrNoCandidates
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		switch candidate.FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
			return "", fmt.Errorf("%w (reason: %s)", ErrBlocked, candidate.FinishReason)
		}
		return "", fmt.Errorf("%w (reason: %s)", ErrEmptyContent, candidate.FinishReason)
	}

	var text string
	for _, part := range candidate.Content.Parts {
		if part != nil && !part.Thought {
			text += part.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("%w (reason: %s)", ErrEmptyContent, candidate.FinishReason)
	}
	return text, nil
}

// Close releases client resources. The genai client holds none beyond its HTTP client.
func (c *GeminiClient) Close() error {
	return nil
}
