package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"mock_interview_backend/internal/config"
	"mock_interview_backend/internal/model"

	"github.com/tidwall/gjson"
)

// TestAggregateScore verifies the mean over scored answers and nil for none.
func TestAggregateScore(t *testing.T) {
	if got := AggregateScore(nil); got != nil {
		t.Fatalf("expected nil, got %v", *got)
	}
	got := AggregateScore([]float64{80, 60, 100})
	if got == nil || *got != 80 {
		t.Fatalf("expected 80, got %v", got)
	}
	got = AggregateScore([]float64{70, 90})
	if got == nil || *got != 80 {
		t.Fatalf("expected 80, got %v", got)
	}
}

// TestParseEvaluationJSON verifies fenced model output is parsed.
func TestParseEvaluationJSON(t *testing.T) {
	text := "```json\n{\"score\": 72.5, \"is_correct\": true, \"feedback\": \"good\", \"breakdown\": {\"clarity\": 80, \"note\": \"x\"}, \"confidence\": 0.8}\n```"
	result, err := parseEvaluationJSON(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.Score != 72.5 || result.Feedback != "good" || result.Confidence != 0.8 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.IsCorrect == nil || !*result.IsCorrect {
		t.Fatalf("expected is_correct true")
	}
	if len(result.Breakdown) != 1 || result.Breakdown["clarity"] != 80 {
		t.Fatalf("unexpected breakdown %v", result.Breakdown)
	}
}

// TestParseEvaluationJSONRejectsMissingScore verifies malformed output is an error.
func TestParseEvaluationJSONRejectsMissingScore(t *testing.T) {
	for _, text := range []string{`not json`, `{"feedback":"ok"}`, `{"score":"high"}`} {
		if _, err := parseEvaluationJSON(text); err == nil {
			t.Fatalf("expected error for %q", text)
		}
	}
}

// TestNormalizeResult verifies clamping and inferred correctness.
func TestNormalizeResult(t *testing.T) {
	r := normalizeResult(&EvaluationResult{Score: 140, Confidence: 3}, "x")
	if r.Score != 100 || r.Confidence != 1 || r.Provider != "x" {
		t.Fatalf("unexpected result %+v", r)
	}
	if r.IsCorrect == nil || !*r.IsCorrect {
		t.Fatalf("expected inferred correct")
	}

	r = normalizeResult(&EvaluationResult{Score: -5, Provider: "kept"}, "x")
	if r.Score != 0 || r.Provider != "kept" {
		t.Fatalf("unexpected result %+v", r)
	}
	if r.IsCorrect == nil || *r.IsCorrect {
		t.Fatalf("expected inferred incorrect")
	}
}

// TestProvisionalEvaluation verifies the placeholder is flagged.
func TestProvisionalEvaluation(t *testing.T) {
	r := ProvisionalEvaluation(QuestionView{Type: model.QuestionAssignment})
	if !r.IsProvisional || r.Provider != "provisional" {
		t.Fatalf("unexpected provisional result %+v", r)
	}
	if r.Metadata["question_type"] != string(model.QuestionAssignment) {
		t.Fatalf("unexpected metadata %v", r.Metadata)
	}
}

// TestMockFollowUp verifies the template picks the first object key.
func TestMockFollowUp(t *testing.T) {
	if got := MockFollowUp(json.RawMessage(`{"cache":"lru","ttl":5}`)); got != "Can you elaborate more on cache?" {
		t.Fatalf("unexpected follow-up %q", got)
	}
	if got := MockFollowUp(json.RawMessage(`"plain text"`)); got != "Can you elaborate more on your answer?" {
		t.Fatalf("unexpected follow-up %q", got)
	}
}

// TestFlattenAnswer verifies well-known keys win over a full walk.
func TestFlattenAnswer(t *testing.T) {
	if got := flattenAnswer(json.RawMessage(`{"answer":"B","extra":"ignored"}`)); got != "B" {
		t.Fatalf("unexpected flatten %q", got)
	}
	if got := flattenAnswer(json.RawMessage(`{"steps":["one",2,true]}`)); got != "one 2 true" {
		t.Fatalf("unexpected flatten %q", got)
	}
}

// TestHeuristicEvaluatorObjective verifies exact matching ignores case and spacing.
func TestHeuristicEvaluatorObjective(t *testing.T) {
	ev := NewHeuristicEvaluator()
	q := QuestionView{Type: model.QuestionObjective, ExpectedAnswer: json.RawMessage(`{"answer":"O(n log n)"}`)}

	r, err := ev.Evaluate(context.Background(), q, json.RawMessage(`{"answer":"o(n LOG n)"}`), EvaluationContext{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if r.Score != 100 || r.IsCorrect == nil || !*r.IsCorrect {
		t.Fatalf("expected correct, got %+v", r)
	}

	r, err = ev.Evaluate(context.Background(), q, json.RawMessage(`"O(n^2)"`), EvaluationContext{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if r.Score != 0 || *r.IsCorrect {
		t.Fatalf("expected incorrect, got %+v", r)
	}
}

// TestHeuristicEvaluatorLength verifies open answers are scored by length.
func TestHeuristicEvaluatorLength(t *testing.T) {
	ev := NewHeuristicEvaluator()
	q := QuestionView{Type: model.QuestionMultiTurn}
	cases := []struct {
		words int
		want  float64
	}{
		{3, 30},
		{15, 60},
		{40, 80},
	}
	for _, c := range cases {
		answer, _ := json.Marshal(map[string]string{"text": strings.Repeat("word ", c.words)})
		r, err := ev.Evaluate(context.Background(), q, answer, EvaluationContext{})
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if r.Score != c.want {
			t.Fatalf("%d words: expected %v, got %v", c.words, c.want, r.Score)
		}
	}
}

// TestHeuristicEvaluatorCancelled verifies a done context is honoured.
func TestHeuristicEvaluatorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHeuristicEvaluator().Evaluate(ctx, QuestionView{}, json.RawMessage(`"x"`), EvaluationContext{}); err == nil {
		t.Fatalf("expected context error")
	}
}

// TestNewEvaluatorUnknownProvider verifies unsupported providers are rejected.
func TestNewEvaluatorUnknownProvider(t *testing.T) {
	cfg := &config.Config{Evaluator: config.EvaluatorConfig{Provider: "oracle"}}
	if _, err := NewEvaluator(context.Background(), cfg); err == nil {
		t.Fatalf("expected error")
	}
}

// TestEvaluatorServiceReloadFallsBack verifies a broken provider config degrades to heuristic.
func TestEvaluatorServiceReloadFallsBack(t *testing.T) {
	cfg := &config.Config{Evaluator: config.EvaluatorConfig{Provider: "openai"}}
	svc := NewEvaluatorService(cfg)
	ev, _ := svc.Current()
	if ev.Name() != "heuristic" {
		t.Fatalf("expected heuristic fallback, got %s", ev.Name())
	}
}

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIEvaluator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	ev, err := NewOpenAIEvaluator(config.EvaluatorConfig{
		BaseURL:        srv.URL + "/v1/",
		APIKey:         "test-key",
		Model:          "test-model",
		TimeoutSeconds: 5,
	})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	return ev
}

func chatCompletion(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(body)
}

// TestOpenAIEvaluatorEvaluate verifies the request shape and parsed result.
func TestOpenAIEvaluatorEvaluate(t *testing.T) {
	ev := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		body, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(body, "model").String() != "test-model" {
			t.Errorf("unexpected model in %s", body)
		}
		if gjson.GetBytes(body, "response_format.type").String() != "json_object" {
			t.Errorf("expected json mode")
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatCompletion(`{"score": 88, "feedback": "solid", "confidence": 0.9}`))
	})

	r, err := ev.Evaluate(context.Background(), QuestionView{Prompt: "Explain channels"}, json.RawMessage(`"they pass values"`), EvaluationContext{SessionTitle: "Go"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if r.Score != 88 || r.Provider != "openai" || r.Metadata["model"] != "test-model" {
		t.Fatalf("unexpected result %+v", r)
	}
}

// TestOpenAIEvaluatorServerError verifies retries end in an error.
func TestOpenAIEvaluatorServerError(t *testing.T) {
	var hits int32
	ev := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error":{"message":"upstream down"}}`)
	})

	_, err := ev.Evaluate(context.Background(), QuestionView{}, json.RawMessage(`"x"`), EvaluationContext{})
	if err == nil || !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits)
	}
}

// TestOpenAIEvaluatorFollowUp verifies plain text replies are trimmed.
func TestOpenAIEvaluatorFollowUp(t *testing.T) {
	ev := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(body, "response_format").Exists() {
			t.Errorf("follow-up must not request json mode")
		}
		io.WriteString(w, chatCompletion("  What about backpressure?\n"))
	})

	text, err := ev.FollowUp(context.Background(), QuestionView{Prompt: "Design a queue"}, json.RawMessage(`"use kafka"`))
	if err != nil {
		t.Fatalf("follow up: %v", err)
	}
	if text != "What about backpressure?" {
		t.Fatalf("unexpected follow-up %q", text)
	}
}

// TestNewOpenAIEvaluatorRequiresKey verifies configuration validation.
func TestNewOpenAIEvaluatorRequiresKey(t *testing.T) {
	if _, err := NewOpenAIEvaluator(config.EvaluatorConfig{BaseURL: "http://x", Model: "m"}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
