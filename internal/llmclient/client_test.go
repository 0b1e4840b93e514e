package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/policywatch/collector/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New(config.LLMConfig{BaseURL: srv.URL, Model: "gpt-5", Timeout: 2 * time.Second, MaxRetries: 2})
	return c, srv
}

func TestCompleteTextHappyPath(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	})
	defer srv.Close()

	got, err := c.CompleteText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestCompleteTextRetriesOn500ThenSucceeds(t *testing.T) {
	calls := 0
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	})
	defer srv.Close()

	got, err := c.CompleteText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatal(err)
	}
	if got != "ok" || calls != 2 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestCompleteWithToolsParsesToolCalls(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"browse_page","arguments":"{\"url\":\"https://x\"}"}}]}}]}`))
	})
	defer srv.Close()

	msg, err := c.CompleteWithTools(context.Background(), []Message{{Role: "user", Content: "go"}}, []ToolSpec{{Name: "browse_page"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Name != "browse_page" {
		t.Errorf("unexpected tool calls: %+v", msg.ToolCalls)
	}
}

func TestCompleteTextPermanentErrorNotRetried(t *testing.T) {
	calls := 0
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	})
	defer srv.Close()

	_, err := c.CompleteText(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected no retry on 400, got %d calls", calls)
	}
}
