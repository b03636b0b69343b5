package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gumshoe/internal/logging"
	"gumshoe/internal/types"
)

// GeminiClient implements Generator and Classifier on the Gemini
// generateContent API over raw HTTP.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// GeminiConfig configures the client.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewGeminiClient creates a client with the given config, filling defaults.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &GeminiClient{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name identifies the client in errors and logs.
func (c *GeminiClient) Name() string { return "gemini" }

// Generate renders the instruction set and user message into a reply.
func (c *GeminiClient) Generate(ctx context.Context, pc PromptContext) (string, error) {
	out, err := c.generateContent(ctx, generatorSystemPrompt, buildGeneratorPrompt(pc), false)
	return out, wrapTimeout(c.Name(), err)
}

// Classify classifies one raw submission, degrading to the default on
// non-timeout failures.
func (c *GeminiClient) Classify(ctx context.Context, content string,
	openRequests []types.EvidenceRequest) (types.EvidenceClassification, error) {

	raw, err := c.generateContent(ctx, classifierSystemPrompt, buildClassifierPrompt(content, openRequests), true)
	if err != nil {
		if werr := wrapTimeout(c.Name(), err); werr != err {
			return types.DefaultClassification(), werr
		}
		logging.CollaboratorWarn("[Gemini] classification failed, using default: %v", err)
		return types.DefaultClassification(), nil
	}
	return parseClassification(raw), nil
}

func (c *GeminiClient) generateContent(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()

	if c.apiKey == "" {
		return "", fmt.Errorf("API key not configured")
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: userPrompt}}},
		},
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		GenerationConfig:  &geminiGenCfg{Temperature: 0.1, MaxOutputTokens: 2048},
	}
	if jsonMode {
		reqBody.GenerationConfig.ResponseMimeType = "application/json"
	}

	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}

		url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var parsed geminiResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if parsed.Error != nil {
			return "", fmt.Errorf("API error: %s", parsed.Error.Message)
		}
		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("no candidates returned")
		}

		var out strings.Builder
		for _, part := range parsed.Candidates[0].Content.Parts {
			out.WriteString(part.Text)
		}
		logging.Collaborator("[Gemini] generateContent: finished in %v response_len=%d", time.Since(startTime), out.Len())
		return strings.TrimSpace(out.String()), nil
	}

	logging.CollaboratorError("[Gemini] generateContent: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}
