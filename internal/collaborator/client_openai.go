package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"gumshoe/internal/logging"
	"gumshoe/internal/types"
)

const generatorSystemPrompt = `You are a calm, methodical troubleshooting assistant.
Follow the provided instruction block exactly: stay in the stated phase, pursue the
stated objective, and use the stated tone. Ask for the open evidence requests by
their labels, including how to obtain each item. Never invent evidence the user
has not provided.`

const classifierSystemPrompt = `You classify a user's troubleshooting submission.
Respond with a single JSON object and nothing else, with these fields:
  category: one of symptoms, timeline, changes, configuration, scope, metrics, environment
  verdict: one of partial, complete, over_complete
  form: one of free_text, document
  relation: one of supportive, refuting, neutral, absence
  intent: one of answering, volunteering, asking, declining
  key_findings: array of short factual strings extracted from the submission
  has_temporal_marker: boolean, true if the submission anchors an event in time
  temporal_marker: the marker text when has_temporal_marker is true
Use "absence" when the user reports that requested data does not exist.`

// OpenAIClient implements Generator and Classifier on any OpenAI-compatible
// chat completions endpoint.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// OpenAIConfig configures the client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewOpenAIClient creates a client with the given config, filling defaults.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &OpenAIClient{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name identifies the client in errors and logs.
func (c *OpenAIClient) Name() string { return "openai" }

// Generate renders the instruction set and user message into a reply.
func (c *OpenAIClient) Generate(ctx context.Context, pc PromptContext) (string, error) {
	out, err := c.complete(ctx, generatorSystemPrompt, buildGeneratorPrompt(pc), false)
	return out, wrapTimeout(c.Name(), err)
}

// Classify classifies one raw submission. Model failures other than timeouts
// degrade to the default classification.
func (c *OpenAIClient) Classify(ctx context.Context, content string,
	openRequests []types.EvidenceRequest) (types.EvidenceClassification, error) {

	raw, err := c.complete(ctx, classifierSystemPrompt, buildClassifierPrompt(content, openRequests), true)
	if err != nil {
		if werr := wrapTimeout(c.Name(), err); werr != err {
			return types.DefaultClassification(), werr
		}
		logging.CollaboratorWarn("[OpenAI] classification failed, using default: %v", err)
		return types.DefaultClassification(), nil
	}
	return parseClassification(raw), nil
}

// complete sends one chat completion request with rate limiting and a retry
// loop for 429s.
func (c *OpenAIClient) complete(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	// Auto-apply timeout if context has no deadline (centralized timeout handling)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.CollaboratorDebug("[OpenAI] complete: model=%s system_len=%d user_len=%d", c.model, len(systemPrompt), len(userPrompt))

	if c.apiKey == "" {
		logging.CollaboratorError("[OpenAI] complete: API key not configured")
		return "", fmt.Errorf("API key not configured")
	}

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   2048,
		Temperature: 0.1,
	}
	if jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	// Retry loop for rate limits
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

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
			// Some providers reject response_format; retry once without it.
			if jsonMode && reqBody.ResponseFormat != nil && resp.StatusCode == http.StatusBadRequest &&
				strings.Contains(string(body), "response_format") {
				reqBody.ResponseFormat = nil
				lastErr = fmt.Errorf("request rejected json mode, retrying without it")
				continue
			}
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var parsed openAIResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if parsed.Error != nil {
			return "", fmt.Errorf("API error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return "", fmt.Errorf("no completion returned")
		}

		out := strings.TrimSpace(parsed.Choices[0].Message.Content)
		logging.Collaborator("[OpenAI] complete: finished in %v response_len=%d", time.Since(startTime), len(out))
		return out, nil
	}

	logging.CollaboratorError("[OpenAI] complete: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// buildGeneratorPrompt flattens the prompt context into one user message.
func buildGeneratorPrompt(pc PromptContext) string {
	var b strings.Builder

	is := pc.Instructions
	fmt.Fprintf(&b, "INSTRUCTIONS\nphase: %s\nmode: %s\nobjective: %s\ntone: %s\n",
		is.Phase, is.Mode, is.Objective, is.Tone)
	if is.Escalation != "" {
		fmt.Fprintf(&b, "escalation: %s\n", is.Escalation)
	}

	if len(is.OpenRequests) > 0 {
		b.WriteString("\nOPEN EVIDENCE REQUESTS\n")
		for _, r := range is.OpenRequests {
			fmt.Fprintf(&b, "- [%s] %s (critical=%v)\n", r.Category, r.Label, r.Critical)
			for _, cmd := range r.Guidance.Commands {
				fmt.Fprintf(&b, "    command: %s\n", cmd)
			}
		}
	}

	if len(is.FocusHypotheses) > 0 {
		b.WriteString("\nWORKING HYPOTHESES\n")
		for _, h := range is.FocusHypotheses {
			fmt.Fprintf(&b, "- %s (likelihood %.2f, %s)\n", h.Statement, h.Likelihood, h.Status)
		}
	}

	if len(is.NextActions) > 0 {
		b.WriteString("\nNEXT ACTIONS\n")
		for _, a := range is.NextActions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	if len(pc.SimilarPrior) > 0 {
		b.WriteString("\nSIMILAR PRIOR EVIDENCE\n")
		for _, hit := range pc.SimilarPrior {
			fmt.Fprintf(&b, "- (%.2f) %s\n", hit.Score, hit.Content)
		}
	}

	// Recent transcript, newest last.
	if n := len(pc.Transcript); n > 0 {
		b.WriteString("\nRECENT CONVERSATION\n")
		start := n - 6
		if start < 0 {
			start = 0
		}
		for _, m := range pc.Transcript[start:] {
			fmt.Fprintf(&b, "%s: %s\n", m.Author, m.Content)
		}
	}

	fmt.Fprintf(&b, "\nUSER MESSAGE\n%s\n", pc.UserMessage)
	return b.String()
}

// buildClassifierPrompt frames the submission and the open requests for the
// classifier.
func buildClassifierPrompt(content string, openRequests []types.EvidenceRequest) string {
	var b strings.Builder
	if len(openRequests) > 0 {
		b.WriteString("OPEN REQUESTS\n")
		for _, r := range openRequests {
			fmt.Fprintf(&b, "- id=%s [%s] %s\n", r.ID, r.Category, r.Label)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "SUBMISSION\n%s\n", content)
	return b.String()
}
