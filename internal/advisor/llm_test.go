package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func chatServer(t *testing.T, replyContent string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if len(req.Messages) < 2 {
			t.Errorf("expected system+user messages, got %d", len(req.Messages))
		}

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": replyContent}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestLLMAdvisorParsesBareJSON(t *testing.T) {
	srv := chatServer(t, `{"can_retry": true, "retry_command": "kubectl get pods -n prod", "reason": "wrong namespace"}`)
	defer srv.Close()

	a := NewLLMAdvisor(LLMConfig{Endpoint: srv.URL, Model: "test-model"})
	analysis, err := a.Analyze(context.Background(), FailureContext{
		Intent:    "list the pods",
		Command:   "kubectl get pods",
		ErrorText: "No resources found",
		Attempt:   1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !analysis.CanRetry || analysis.RetryCommand != "kubectl get pods -n prod" {
		t.Errorf("unexpected analysis: %+v", analysis)
	}
}

func TestLLMAdvisorParsesFencedJSON(t *testing.T) {
	srv := chatServer(t, "Here is my analysis:\n```json\n{\"can_retry\": false, \"reason\": \"nothing to fix\"}\n```")
	defer srv.Close()

	a := NewLLMAdvisor(LLMConfig{Endpoint: srv.URL})
	analysis, err := a.Analyze(context.Background(), FailureContext{Command: "kubectl get pods", Attempt: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if analysis.CanRetry {
		t.Error("expected can_retry=false")
	}
	if analysis.Reason != "nothing to fix" {
		t.Errorf("unexpected reason: %q", analysis.Reason)
	}
}

func TestLLMAdvisorRejectsGarbage(t *testing.T) {
	srv := chatServer(t, "I think you should probably try again with a different namespace.")
	defer srv.Close()

	a := NewLLMAdvisor(LLMConfig{Endpoint: srv.URL})
	if _, err := a.Analyze(context.Background(), FailureContext{Command: "kubectl get pods"}); err == nil {
		t.Error("expected error for unparseable content")
	}
}

func TestLLMAdvisorRejectsRetryWithoutCommand(t *testing.T) {
	srv := chatServer(t, `{"can_retry": true, "retry_command": "", "reason": "try again"}`)
	defer srv.Close()

	a := NewLLMAdvisor(LLMConfig{Endpoint: srv.URL})
	if _, err := a.Analyze(context.Background(), FailureContext{Command: "kubectl get pods"}); err == nil {
		t.Error("expected error when retry has no command")
	}
}

func TestLLMAdvisorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewLLMAdvisor(LLMConfig{Endpoint: srv.URL})
	if _, err := a.Analyze(context.Background(), FailureContext{Command: "kubectl get pods"}); err == nil {
		t.Error("expected error on HTTP failure")
	}
}

func TestLLMAdvisorRequiresEndpoint(t *testing.T) {
	a := NewLLMAdvisor(LLMConfig{})
	if _, err := a.Analyze(context.Background(), FailureContext{Command: "kubectl get pods"}); err == nil {
		t.Error("expected error without endpoint")
	}
}
