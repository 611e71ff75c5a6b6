package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/normanking/kubegate/internal/logging"
)

const (
	defaultLLMTimeout = 30 * time.Second
	maxErrorBodySize  = 4 * 1024

	systemPrompt = `You are a Kubernetes operations assistant. A kubectl command failed.
Decide whether a corrected command could satisfy the user's intent.
Respond with a single JSON object:
{"can_retry": bool, "retry_command": "the corrected command or empty", "reason": "one sentence"}
Never suggest a command that does something different from the intent.`
)

// LLMConfig configures the model-backed advisor. Endpoint must speak
// the OpenAI chat-completions protocol.
type LLMConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// LLMAdvisor asks a chat model what to do about a failure. The model's
// answer is advice only; the gateway still re-classifies and
// re-checks any suggested command.
type LLMAdvisor struct {
	config LLMConfig
	client *http.Client
	log    *logging.Logger
}

func NewLLMAdvisor(cfg LLMConfig) *LLMAdvisor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultLLMTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	return &LLMAdvisor{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logging.Global().WithComponent("advisor"),
	}
}

func (a *LLMAdvisor) Analyze(ctx context.Context, fc FailureContext) (*Analysis, error) {
	if a.config.Endpoint == "" {
		return nil, fmt.Errorf("advisor endpoint not configured")
	}

	chatReq := chatRequest{
		Model:       a.config.Model,
		MaxTokens:   a.config.MaxTokens,
		Temperature: a.config.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(fc)},
		},
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.config.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, fmt.Errorf("advisor error (status %d): %s", resp.StatusCode, string(errBody))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	analysis, err := parseAnalysis(chatResp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	a.log.Debug("model verdict for attempt %d: can_retry=%v", fc.Attempt, analysis.CanRetry)
	return analysis, nil
}

func buildUserPrompt(fc FailureContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Intent: %s\n", fc.Intent)
	fmt.Fprintf(&b, "Failed command (attempt %d): %s\n", fc.Attempt, fc.Command)
	fmt.Fprintf(&b, "Error: %s\n", fc.ErrorText)
	if len(fc.History) > 0 {
		b.WriteString("Earlier attempts:\n")
		for i, rec := range fc.History {
			fmt.Fprintf(&b, "  %d. %s -> code %d: %s\n", i+1, rec.Command, rec.ReturnCode, rec.Error)
		}
	}
	return b.String()
}

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parseAnalysis accepts either a bare JSON object or one wrapped in a
// markdown code fence, which some models emit regardless of
// instructions.
func parseAnalysis(content string) (*Analysis, error) {
	payload := strings.TrimSpace(content)
	if m := fencedJSONRe.FindStringSubmatch(payload); m != nil {
		payload = m[1]
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(payload), &analysis); err != nil {
		return nil, fmt.Errorf("advisor returned unparseable analysis: %w", err)
	}
	if analysis.CanRetry && strings.TrimSpace(analysis.RetryCommand) == "" {
		return nil, fmt.Errorf("advisor said retry but gave no command")
	}
	return &analysis, nil
}

// Chat protocol types, OpenAI-compatible.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}
