package agentrt

import (
	"context"
	"strings"
	"testing"

	"github.com/policywatch/collector/internal/llmclient"
)

// scriptedLLM replays a fixed sequence of assistant turns, one per call.
type scriptedLLM struct {
	turns []llmclient.AssistantMessage
	calls int
}

func (s *scriptedLLM) CompleteWithTools(ctx context.Context, messages []llmclient.Message, tools []llmclient.ToolSpec) (llmclient.AssistantMessage, error) {
	if s.calls >= len(s.turns) {
		return llmclient.AssistantMessage{}, nil
	}
	m := s.turns[s.calls]
	s.calls++
	return m, nil
}

func echoExecutor(bigResult string) ToolExecutor {
	return func(ctx context.Context, name, argsJSON string) string {
		if name == "browse_page" {
			return bigResult
		}
		return `{"accepted": true}`
	}
}

func TestRunFinishesOnNoToolCalls(t *testing.T) {
	llm := &scriptedLLM{turns: []llmclient.AssistantMessage{
		{Content: "all done"},
	}}
	rt := New(llm)
	res, err := rt.Run(context.Background(), Spec{
		SystemPrompt:    "sys",
		SeedUserMessage: "go",
		MaxTurns:        5,
		ToolExecutor:    echoExecutor(`{}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Termination != Finished {
		t.Errorf("expected Finished, got %v", res.Termination)
	}
	if res.FinalText != "all done" {
		t.Errorf("unexpected final text %q", res.FinalText)
	}
}

func TestRunExhaustsTurns(t *testing.T) {
	loopTurn := llmclient.AssistantMessage{
		ToolCalls: []llmclient.ToolCall{{ID: "1", Name: "browse_page", Arguments: "{}"}},
	}
	turns := make([]llmclient.AssistantMessage, 3)
	for i := range turns {
		turns[i] = loopTurn
	}
	llm := &scriptedLLM{turns: turns}
	rt := New(llm)
	res, err := rt.Run(context.Background(), Spec{
		SystemPrompt: "sys", SeedUserMessage: "go", MaxTurns: 3,
		ToolExecutor: echoExecutor(`{"status":"success","candidates":[{"title":"a"}]}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Termination != ExhaustedTurns {
		t.Errorf("expected ExhaustedTurns, got %v", res.Termination)
	}
	if res.TurnCount != 3 {
		t.Errorf("expected 3 turns, got %d", res.TurnCount)
	}
}

func TestRunRespectsCancelSignal(t *testing.T) {
	llm := &scriptedLLM{turns: []llmclient.AssistantMessage{
		{ToolCalls: []llmclient.ToolCall{{ID: "1", Name: "browse_page", Arguments: "{}"}}},
	}}
	cancel := make(chan struct{})
	close(cancel)
	rt := New(llm)
	res, err := rt.Run(context.Background(), Spec{
		SystemPrompt: "sys", SeedUserMessage: "go", MaxTurns: 5,
		CancelSignal: cancel,
		ToolExecutor: echoExecutor(`{}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Termination != Cancelled {
		t.Errorf("expected Cancelled, got %v", res.Termination)
	}
}

func TestPruningOnlyMutatesToolContent(t *testing.T) {
	big := strings.Repeat("x", pruneThresholdChars+1)
	llm := &scriptedLLM{turns: []llmclient.AssistantMessage{
		{ToolCalls: []llmclient.ToolCall{
			{ID: "1", Name: "browse_page", Arguments: "{}"},
			{ID: "2", Name: "save_results_batch", Arguments: "{}"},
		}},
		{Content: "done"},
	}}
	rt := New(llm)

	calls := 0
	executor := func(ctx context.Context, name, argsJSON string) string {
		calls++
		if name == "browse_page" {
			return `{"status":"success","candidates":[{"title":"a"},{"title":"b"}],"text":"` + big + `"}`
		}
		return `{"accepted_count": 2}`
	}

	res, err := rt.Run(context.Background(), Spec{
		SystemPrompt: "sys", SeedUserMessage: "go", MaxTurns: 5,
		EnablePruning: true,
		ToolExecutor:  executor,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Termination != Finished {
		t.Fatalf("expected Finished, got %v", res.Termination)
	}

	roles := []string{}
	for _, m := range res.Messages {
		roles = append(roles, m.Role)
	}
	wantRoles := []string{"system", "user", "assistant", "tool", "tool", "assistant"}
	if len(roles) != len(wantRoles) {
		t.Fatalf("message count changed: got %d want %d (%v)", len(roles), len(wantRoles), roles)
	}
	for i := range roles {
		if roles[i] != wantRoles[i] {
			t.Errorf("role[%d] = %q, want %q", i, roles[i], wantRoles[i])
		}
	}

	browseMsg := res.Messages[3]
	if browseMsg.Role != "tool" || len(browseMsg.Content) >= pruneThresholdChars {
		t.Errorf("expected browse_page tool result pruned, got len=%d content=%q", len(browseMsg.Content), browseMsg.Content)
	}
	if browseMsg.ToolCallID != "1" {
		t.Errorf("pruning must not alter call id, got %q", browseMsg.ToolCallID)
	}
}
