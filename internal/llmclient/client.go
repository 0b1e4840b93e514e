// Package llmclient is a thin chat-completion client over an
// OpenAI-compatible endpoint, supporting plain text completion and
// function-calling turns, with retry/backoff and per-call timeouts.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/policywatch/collector/internal/config"
	"github.com/policywatch/collector/internal/telemetry"
	"github.com/policywatch/collector/internal/types"
)

// metrics is nil until SetMetrics is called; every recording site below is
// nil-safe so callers/tests that skip telemetry wiring are unaffected.
var metrics *telemetry.Metrics

// SetMetrics wires the process-wide Prometheus instruments. Call once at
// startup, before the client is ever invoked concurrently.
func SetMetrics(m *telemetry.Metrics) { metrics = m }

// Message is one chat-conversation entry. Role is "system", "user",
// "assistant", or "tool". ToolCallID is set only on tool-role messages,
// echoing the call they answer; ToolCalls is set only on assistant
// messages that invoked tools.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is one function-calling invocation the assistant asked for.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-serialized arguments
}

// ToolSpec describes one callable tool to the LLM: name, description, and
// a JSON-schema for its arguments.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// AssistantMessage is the result of one complete_with_tools turn.
type AssistantMessage struct {
	Content   string
	ToolCalls []ToolCall
}

type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	timeout    time.Duration
}

func New(cfg config.LLMConfig) *Client {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      cfg.Model,
		maxRetries: retries,
		timeout:    timeout,
	}
}

// wire-format request/response structs, mirroring factories.go's OpenAIProvider.

type wireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function wireToolCallFunction `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatChoice struct {
	Message wireMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// CompleteText issues a single-shot text completion. Used by homepage
// navigation, summarization, and ranking.
func (c *Client) CompleteText(ctx context.Context, system, user string) (string, error) {
	const phase = "complete_text"
	if metrics != nil {
		metrics.LLMCalls.WithLabelValues(phase).Inc()
	}
	req := chatRequest{
		Model: c.model,
		Messages: []wireMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		if metrics != nil {
			metrics.LLMFailures.WithLabelValues(phase).Inc()
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		if metrics != nil {
			metrics.LLMFailures.WithLabelValues(phase).Inc()
		}
		return "", types.NewTaxonomyError(types.KindLLMContract, "empty choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteWithTools issues one chat turn that may contain text and/or
// zero-or-more tool invocations.
func (c *Client) CompleteWithTools(ctx context.Context, messages []Message, tools []ToolSpec) (AssistantMessage, error) {
	const phase = "complete_with_tools"
	if metrics != nil {
		metrics.LLMCalls.WithLabelValues(phase).Inc()
	}
	req := chatRequest{
		Model:      c.model,
		Messages:   toWireMessages(messages),
		Tools:      toWireTools(tools),
		ToolChoice: "auto",
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		if metrics != nil {
			metrics.LLMFailures.WithLabelValues(phase).Inc()
		}
		return AssistantMessage{}, err
	}
	if len(resp.Choices) == 0 {
		if metrics != nil {
			metrics.LLMFailures.WithLabelValues(phase).Inc()
		}
		return AssistantMessage{}, types.NewTaxonomyError(types.KindLLMContract, "empty choices", nil)
	}
	m := resp.Choices[0].Message
	out := AssistantMessage{Content: m.Content}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return out, nil
}

func toWireMessages(messages []Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireToolCallFunction{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []ToolSpec) []wireTool {
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// do performs the HTTP round-trip with exponential backoff on retriable
// statuses (connection errors, 429, 5xx), at most maxRetries attempts,
// mirroring the teacher's HTTPClient.DoJSON retry loop.
func (c *Client) do(ctx context.Context, req chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewTaxonomyError(types.KindInternal, "marshal request", err)
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	tries := c.maxRetries
	for attempt := 0; attempt < tries; attempt++ {
		out, retriable, err := c.attempt(ctx, body)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retriable || attempt == tries-1 {
			return nil, lastErr
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, lastErr
}

// attempt performs one HTTP round-trip and classifies any failure as
// retriable or permanent.
func (c *Client) attempt(ctx context.Context, body []byte) (*chatResponse, bool, error) {
	ctxCall, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctxCall, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, false, types.NewTaxonomyError(types.KindInternal, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, true, types.NewTaxonomyError(types.KindTransientNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, false, types.NewTaxonomyError(types.KindLLMContract, "decode response", err)
		}
		return &out, false, nil
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, types.NewTaxonomyError(types.KindRateLimited, resp.Status, fmt.Errorf("%s", string(b)))
	case resp.StatusCode >= 500:
		return nil, true, types.NewTaxonomyError(types.KindTransientNetwork, resp.Status, fmt.Errorf("%s", string(b)))
	default:
		return nil, false, types.NewTaxonomyError(types.KindInternal, resp.Status, fmt.Errorf("%s", string(b)))
	}
}
