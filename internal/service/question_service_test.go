package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/repository"
	"mock_interview_backend/internal/util"
	"mock_interview_backend/pkg/cache"
)

// memoryCache is an in-process QuestionCache.
type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
	hits  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (c *memoryCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.items[key]
	if !ok {
		return cache.ErrMiss
	}
	c.hits++
	return json.Unmarshal(data, dest)
}

func (c *memoryCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[key] = data
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

func newQuestionFixture(t *testing.T) (*sessionFixture, *QuestionService, *memoryCache) {
	t.Helper()
	f := newSessionFixture(t)
	c := newMemoryCache()
	return f, NewQuestionService(repository.NewQuestionRepository(f.db), NewDisabledQuestionIndex(), c), c
}

// TestQuestionCreateDefaultsAndValidation verifies defaults and rejected payloads.
func TestQuestionCreateDefaultsAndValidation(t *testing.T) {
	f, svc, _ := newQuestionFixture(t)
	ctx := context.Background()

	q, err := svc.Create(ctx, f.interviewer, QuestionRequest{
		Category:       "  sql ",
		Prompt:         "What is an index?",
		ExpectedAnswer: json.RawMessage(`{"answer":"a lookup structure"}`),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if q.Category != "sql" || q.Difficulty != model.DifficultyMedium || q.QuestionType != model.QuestionObjective || q.MaxScore != 100 {
		t.Fatalf("unexpected defaults %+v", q)
	}
	if q.CreatedBy == nil || *q.CreatedBy != f.interviewer.UserID {
		t.Fatalf("expected creator recorded")
	}

	if _, err := svc.Create(ctx, f.candidate, QuestionRequest{Category: "x", Prompt: "y"}); !errors.Is(err, util.ErrForbidden) {
		t.Fatalf("candidate: expected forbidden, got %v", err)
	}
	bad := []QuestionRequest{
		{Category: "x", Prompt: "y", Difficulty: "brutal"},
		{Category: "x", Prompt: "y", QuestionType: "essay"},
		{Category: "x", Prompt: "y", Options: json.RawMessage(`{nope`)},
		{Category: " ", Prompt: "y"},
	}
	for _, req := range bad {
		if _, err := svc.Create(ctx, f.interviewer, req); !errors.Is(err, util.ErrInvalidArgument) {
			t.Fatalf("%+v: expected invalid argument, got %v", req, err)
		}
	}
}

// TestQuestionGetUsesCacheAndUpdateInvalidates verifies read-through caching.
func TestQuestionGetUsesCacheAndUpdateInvalidates(t *testing.T) {
	f, svc, c := newQuestionFixture(t)
	ctx := context.Background()
	id := f.questions[0].ID

	if _, err := svc.Get(ctx, id); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := svc.Get(ctx, id); err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.hits != 1 {
		t.Fatalf("expected one cache hit, got %d", c.hits)
	}

	prompt := "rewritten prompt"
	if _, err := svc.Update(ctx, f.interviewer, id, QuestionUpdateRequest{Prompt: &prompt}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Prompt != prompt {
		t.Fatalf("expected fresh prompt after update, got %q", got.Prompt)
	}
}

// TestQuestionDeleteKeepsSessionsReadable verifies soft delete leaves sessions intact.
func TestQuestionDeleteKeepsSessionsReadable(t *testing.T) {
	f, svc, _ := newQuestionFixture(t)
	ctx := context.Background()
	session := f.startedSession(t, 1)
	id := f.questions[0].ID

	if err := svc.Delete(ctx, f.interviewer, id); !errors.Is(err, util.ErrForbidden) {
		t.Fatalf("interviewer delete: expected forbidden, got %v", err)
	}
	if err := svc.Delete(ctx, f.admin, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, id); !errors.Is(err, util.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	f.submit(t, session.ID, id, `{"answer":"yes"}`)
	f.evaluator.scores = []float64{100}
	if _, err := f.svc.EvaluateAnswer(ctx, f.candidate, session.ID, EvaluateAnswerRequest{QuestionID: id}); err != nil {
		t.Fatalf("evaluate deleted question: %v", err)
	}
}

// TestQuestionListFilters verifies filters and enum validation.
func TestQuestionListFilters(t *testing.T) {
	f, svc, _ := newQuestionFixture(t)
	ctx := context.Background()
	if _, err := svc.Create(ctx, f.interviewer, QuestionRequest{Category: "design", Prompt: "Design a cache", Difficulty: model.DifficultyHard, QuestionType: model.QuestionMultiTurn}); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, total, err := svc.List(ctx, QuestionListQuery{Difficulty: model.DifficultyHard})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(list) != 1 || list[0].Category != "design" {
		t.Fatalf("unexpected list %d %+v", total, list)
	}
	if _, total, err := svc.List(ctx, QuestionListQuery{Category: "golang"}); err != nil || total != 3 {
		t.Fatalf("category list: total=%d err=%v", total, err)
	}
	if _, _, err := svc.List(ctx, QuestionListQuery{QuestionType: "essay"}); !errors.Is(err, util.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

// TestQuestionSearchDisabled verifies search reports the missing vector index.
func TestQuestionSearchDisabled(t *testing.T) {
	_, svc, _ := newQuestionFixture(t)
	if _, err := svc.Search(context.Background(), "goroutines", 5); !errors.Is(err, util.ErrVectorSearchUnavailable) {
		t.Fatalf("expected vector search unavailable, got %v", err)
	}
}
