package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func completionBody(content string, promptTokens, completionTokens int) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
		},
	}
	encoded, _ := json.Marshal(payload)
	return string(encoded)
}

func TestCompleteJSONReturnsContentAndUsage(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat["type"] != "json_object" {
			t.Errorf("expected json response format, got %v", req.ResponseFormat)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(`[{"start":1.0,"end":2.0}]`, 1200, 40)))
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:         "key",
		BaseURL:        server.URL,
		Model:          "test-model",
		CostPerMTokIn:  3.0,
		CostPerMTokOut: 15.0,
	})

	content, usage, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if content != `[{"start":1.0,"end":2.0}]` {
		t.Fatalf("unexpected content: %q", content)
	}
	if gotAuth != "Bearer key" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if usage.PromptTokens != 1200 || usage.CompletionTokens != 40 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
	wantCost := 1200.0/1e6*3.0 + 40.0/1e6*15.0
	if diff := usage.CostUSD - wantCost; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("unexpected cost: got %v want %v", usage.CostUSD, wantCost)
	}
	if usage.Requests != 1 {
		t.Fatalf("expected one request recorded, got %d", usage.Requests)
	}
}

func TestCompleteJSONRetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(completionBody(`{"ok":true}`, 10, 5)))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "key", BaseURL: server.URL, Model: "m"},
		WithRetryBackoff(time.Millisecond, 10*time.Millisecond),
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)

	content, _, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("unexpected content: %q", content)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(slept) != 2 {
		t.Fatalf("expected 2 retry sleeps, got %d", len(slept))
	}
}

func TestCompleteJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "bad", BaseURL: server.URL, Model: "m"},
		WithSleeper(func(time.Duration) {}),
	)

	_, _, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected single call, got %d", calls)
	}
	if !strings.Contains(err.Error(), "http 401") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestCompleteJSONHonorsRetryAfter(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "2")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(completionBody(`{"ok":true}`, 1, 1)))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "key", BaseURL: server.URL, Model: "m"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)

	if _, _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Fatalf("expected Retry-After sleep of 2s, got %v", slept)
	}
}

func TestDecodeLLMJSONHandlesFencesAndProse(t *testing.T) {
	type adRange struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	}

	cases := []struct {
		name    string
		payload string
	}{
		{"plain", `[{"start":10,"end":25}]`},
		{"fenced", "```json\n[{\"start\":10,\"end\":25}]\n```"},
		{"prose", "Here are the detected segments: [{\"start\":10,\"end\":25}] as requested."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ranges []adRange
			if err := DecodeLLMJSON(tc.payload, &ranges); err != nil {
				t.Fatalf("DecodeLLMJSON: %v", err)
			}
			if len(ranges) != 1 || ranges[0].Start != 10 || ranges[0].End != 25 {
				t.Fatalf("unexpected ranges: %+v", ranges)
			}
		})
	}

	var target any
	if err := DecodeLLMJSON("not json at all", &target); err == nil {
		t.Fatal("expected error for unparsable payload")
	}
	if err := DecodeLLMJSON("   ", &target); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestUsageAdd(t *testing.T) {
	total := Usage{}
	total.Add(Usage{PromptTokens: 10, CompletionTokens: 2, Requests: 1, CostUSD: 0.01})
	total.Add(Usage{PromptTokens: 5, CompletionTokens: 3, Requests: 1, CostUSD: 0.02})
	if total.PromptTokens != 15 || total.CompletionTokens != 5 || total.Requests != 2 {
		t.Fatalf("unexpected totals: %+v", total)
	}
}
