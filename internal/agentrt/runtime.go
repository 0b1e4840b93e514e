// Package agentrt implements the generic tool-calling loop shared by every
// section-crawl agent: it drives an LLM/tool dialogue, reports progress,
// honors cancellation, and prunes oversized historical tool results.
package agentrt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/policywatch/collector/internal/llmclient"
	"github.com/policywatch/collector/internal/types"
)

// TerminationReason is why a Run returned.
type TerminationReason string

const (
	Finished        TerminationReason = "finished"
	ExhaustedTurns  TerminationReason = "exhausted_turns"
	Cancelled       TerminationReason = "cancelled"
	LLMFailed       TerminationReason = "llm_failed"
)

const pruneThresholdChars = 2000

// ToolExecutor dispatches one tool call and returns its JSON-serializable
// result as a string. It must never panic; shape/dispatch failures are
// surfaced as a JSON error object, not a Go error, so the loop can hand
// them back to the LLM as a tool_usage message per §7.
type ToolExecutor func(ctx context.Context, name string, argsJSON string) string

// ProgressEvent is reported to Spec.OnProgress at each turn boundary.
type ProgressEvent struct {
	Kind   string // "llm_call", "tool_call", "pruned"
	Detail string
}

type Spec struct {
	SystemPrompt    string
	SeedUserMessage string
	Tools           []llmclient.ToolSpec
	MaxTurns        int
	EnablePruning   bool
	CancelSignal    <-chan struct{}
	OnProgress      func(turn int, event ProgressEvent)
	ToolExecutor    ToolExecutor
}

type Result struct {
	Messages    []llmclient.Message
	TurnCount   int
	FinalText   string
	Termination TerminationReason
}

// ToolCaller is the subset of llmclient.Client the runtime depends on,
// narrowed so tests can supply a fake.
type ToolCaller interface {
	CompleteWithTools(ctx context.Context, messages []llmclient.Message, tools []llmclient.ToolSpec) (llmclient.AssistantMessage, error)
}

type Runtime struct {
	llm ToolCaller
}

func New(llm ToolCaller) *Runtime {
	return &Runtime{llm: llm}
}

// toolMeta tracks the tool name behind each message index, since the
// OpenAI wire format does not echo the function name on tool-role
// messages; the pruning rule needs it to find the right browse_page
// result to shrink.
type toolMeta struct {
	messageIndex int
	toolName     string
}

// Run drives the loop described in §4.3. It never returns a Go error for
// LLM/tool failures that have a defined degrade path; it returns one only
// for calling-convention mistakes (nil executor) the caller must fix.
func (r *Runtime) Run(ctx context.Context, spec Spec) (Result, error) {
	if spec.ToolExecutor == nil {
		return Result{}, types.NewTaxonomyError(types.KindInternal, "nil tool executor", nil)
	}
	maxTurns := spec.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 15
	}

	messages := []llmclient.Message{
		{Role: "system", Content: spec.SystemPrompt},
		{Role: "user", Content: spec.SeedUserMessage},
	}
	var toolMessages []toolMeta
	consecutiveEmptyBrowses := 0

	report := func(turn int, ev ProgressEvent) {
		if spec.OnProgress != nil {
			spec.OnProgress(turn, ev)
		}
	}

	turn := 0
	for ; turn < maxTurns; turn++ {
		if isCancelled(spec.CancelSignal) {
			return Result{Messages: messages, TurnCount: turn, Termination: Cancelled}, nil
		}

		report(turn, ProgressEvent{Kind: "llm_call"})
		assistant, err := r.llm.CompleteWithTools(ctx, messages, spec.Tools)
		if err != nil {
			return Result{Messages: messages, TurnCount: turn, Termination: LLMFailed}, nil
		}
		messages = append(messages, llmclient.Message{
			Role:      "assistant",
			Content:   assistant.Content,
			ToolCalls: assistant.ToolCalls,
		})

		if len(assistant.ToolCalls) == 0 {
			return Result{Messages: messages, TurnCount: turn + 1, FinalText: assistant.Content, Termination: Finished}, nil
		}

		batchSaveSucceeded := false
		finishedThisTurn := false
		for _, tc := range assistant.ToolCalls {
			if isCancelled(spec.CancelSignal) {
				return Result{Messages: messages, TurnCount: turn + 1, Termination: Cancelled}, nil
			}

			report(turn, ProgressEvent{Kind: "tool_call", Detail: tc.Name})

			var resultJSON string
			if tc.Name == "finish" {
				resultJSON = `{}`
				finishedThisTurn = true
			} else {
				resultJSON = spec.ToolExecutor(ctx, tc.Name, tc.Arguments)
			}

			messages = append(messages, llmclient.Message{Role: "tool", Content: resultJSON, ToolCallID: tc.ID})
			toolMessages = append(toolMessages, toolMeta{messageIndex: len(messages) - 1, toolName: tc.Name})

			if tc.Name == "browse_page" {
				if browsePageYieldedNothing(resultJSON) {
					consecutiveEmptyBrowses++
				} else {
					consecutiveEmptyBrowses = 0
				}
			}
			if (tc.Name == "save_results_batch" || tc.Name == "save_result") && toolSaveSucceeded(resultJSON) {
				batchSaveSucceeded = true
			}
		}

		if finishedThisTurn {
			return Result{Messages: messages, TurnCount: turn + 1, Termination: Finished}, nil
		}

		if spec.EnablePruning && batchSaveSucceeded {
			if prune(messages, toolMessages) {
				report(turn, ProgressEvent{Kind: "pruned"})
			}
		}

		if consecutiveEmptyBrowses >= 2 {
			messages = append(messages, llmclient.Message{
				Role:    "user",
				Content: "Several pages in a row produced no new in-window items. If this section looks exhausted, call finish.",
			})
			consecutiveEmptyBrowses = 0
		}
	}

	return Result{Messages: messages, TurnCount: turn, Termination: ExhaustedTurns}, nil
}

func isCancelled(sig <-chan struct{}) bool {
	if sig == nil {
		return false
	}
	select {
	case <-sig:
		return true
	default:
		return false
	}
}

// prune finds the most recent browse_page tool result exceeding the size
// threshold and replaces only its content with a short placeholder. It
// never alters an assistant message, never removes a message, and never
// reorders anything, satisfying the §4.3/§8 pruning invariant.
func prune(messages []llmclient.Message, toolMessages []toolMeta) bool {
	for i := len(toolMessages) - 1; i >= 0; i-- {
		tm := toolMessages[i]
		if tm.toolName != "browse_page" {
			continue
		}
		if len(messages[tm.messageIndex].Content) <= pruneThresholdChars {
			continue
		}
		messages[tm.messageIndex].Content = fmt.Sprintf("[pruned: earlier browse_page output, %d chars, omitted]", len(messages[tm.messageIndex].Content))
		return true
	}
	return false
}

func toolSaveSucceeded(resultJSON string) bool {
	var v map[string]any
	if err := json.Unmarshal([]byte(resultJSON), &v); err != nil {
		return false
	}
	if accepted, ok := v["accepted"]; ok {
		if b, ok := accepted.(bool); ok {
			return b
		}
	}
	if count, ok := v["accepted_count"]; ok {
		if f, ok := count.(float64); ok {
			return f > 0
		}
	}
	return false
}

func browsePageYieldedNothing(resultJSON string) bool {
	var v map[string]any
	if err := json.Unmarshal([]byte(resultJSON), &v); err != nil {
		return true
	}
	if status, ok := v["status"].(string); ok && status != "success" {
		return true
	}
	cands, ok := v["candidates"].([]any)
	if !ok {
		return true
	}
	return len(cands) == 0
}

// ErrorToolResult formats a tool_usage-classified error as the JSON object
// the Agent Runtime hands back to the LLM, per §7: tool faults never
// abort the runtime, they become a tool message.
func ErrorToolResult(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}
