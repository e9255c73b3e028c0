package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/revlab-dev/revpanel/internal/agents"
	"github.com/revlab-dev/revpanel/internal/diff"
	"github.com/revlab-dev/revpanel/internal/model"
)

// Default endpoints for the OpenAI-compatible providers.
const (
	openAIBaseURL     = "https://api.openai.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	ollamaBaseURL     = "http://127.0.0.1:11434/v1"
)

// OpenAI talks to any chat-completions endpoint speaking the OpenAI wire
// format. OpenRouter and Ollama differ only in base URL and key handling.
type OpenAI struct {
	provider string
	baseURL  string
	apiKey   string
	model    string
	client   *http.Client
}

func newOpenAI(provider string, opts Options) (*OpenAI, error) {
	o := &OpenAI{
		provider: provider,
		baseURL:  strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		model:    opts.Model,
		client:   &http.Client{},
	}

	if o.baseURL == "" {
		switch provider {
		case "openrouter":
			o.baseURL = openRouterBaseURL
		case "ollama":
			o.baseURL = ollamaBaseURL
		default:
			o.baseURL = openAIBaseURL
		}
	}

	if o.apiKey == "" {
		switch provider {
		case "openrouter":
			o.apiKey = os.Getenv("OPENROUTER_API_KEY")
		case "ollama":
			// Local endpoint, no key required.
		default:
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if o.apiKey == "" && provider != "ollama" {
		return nil, fmt.Errorf("%s: API key is not set", provider)
	}

	return o, nil
}

func (o *OpenAI) Name() string { return o.provider }

func (o *OpenAI) Analyze(ctx context.Context, doc *diff.Document, def agents.Definition, reviewCtx string) ([]model.Finding, error) {
	var findings []model.Finding
	for _, chunk := range doc.Chunks(maxPromptChars) {
		found, err := o.analyzeChunk(ctx, chunk, def, reviewCtx)
		if err != nil {
			return nil, err
		}
		findings = append(findings, found...)
	}
	return findings, nil
}

func (o *OpenAI) analyzeChunk(ctx context.Context, diffText string, def agents.Definition, reviewCtx string) ([]model.Finding, error) {
	body := chatRequest{
		Model:       o.model,
		Temperature: def.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: def.RolePrompt},
			{Role: "user", Content: buildUserPrompt(diffText, def, reviewCtx)},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Provider: o.provider, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	var content string
	err = retryWithBackoff(ctx, 3, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if o.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
		}

		httpResp, err := o.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		switch {
		case httpResp.StatusCode == http.StatusTooManyRequests:
			return &rateLimitError{}
		case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
			return &authError{message: string(respBody)}
		case httpResp.StatusCode != http.StatusOK:
			return fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(respBody))
		}

		var result chatResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		if len(result.Choices) == 0 {
			return fmt.Errorf("response contained no choices")
		}
		content = result.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		// Deadline expiry must stay recognizable so the orchestrator can
		// distinguish a timeout from a failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Provider: o.provider, Err: err}
	}

	findings, err := parseFindings(content, def)
	if err != nil {
		return nil, &Error{Provider: o.provider, Err: err}
	}
	return findings, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}
