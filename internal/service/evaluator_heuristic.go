package service

import (
	"context"
	"encoding/json"
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/util"
	"strings"

	"github.com/tidwall/gjson"
)

// HeuristicEvaluator 本地评分：客观题比对参考答案，其余按作答篇幅估分
type HeuristicEvaluator struct{}

func NewHeuristicEvaluator() *HeuristicEvaluator {
	return &HeuristicEvaluator{}
}

func (e *HeuristicEvaluator) Name() string {
	return util.EvaluatorHeuristic
}

func (e *HeuristicEvaluator) Evaluate(ctx context.Context, q QuestionView, answer json.RawMessage, ectx EvaluationContext) (*EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if q.Type == model.QuestionObjective {
		if expected := gjson.GetBytes(q.ExpectedAnswer, "answer"); expected.Exists() {
			return e.compareObjective(expected.String(), flattenAnswer(answer)), nil
		}
	}

	words := len(strings.Fields(flattenAnswer(answer)))
	var score float64
	var feedback string
	switch {
	case words < 10:
		score = 30
		feedback = "The answer is very brief. Explain your reasoning and give a concrete example."
	case words < 30:
		score = 60
		feedback = "A reasonable start. Add more detail on how and why your approach works."
	default:
		score = 80
		feedback = "A detailed answer. Make sure every part of the question is addressed."
	}

	return normalizeResult(&EvaluationResult{
		Score:      score,
		Feedback:   feedback,
		Reasoning:  "length-based estimate",
		Confidence: 0.4,
		Metadata: map[string]interface{}{
			"word_count": words,
		},
	}, e.Name()), nil
}

func (e *HeuristicEvaluator) compareObjective(expected, given string) *EvaluationResult {
	correct := normalizeAnswer(expected) == normalizeAnswer(given)
	score := 0.0
	feedback := "Incorrect. Expected: " + expected
	if correct {
		score = 100
		feedback = "Correct."
	}
	return normalizeResult(&EvaluationResult{
		Score:      score,
		IsCorrect:  util.BoolPtr(correct),
		Feedback:   feedback,
		Reasoning:  "exact match against the reference answer",
		Confidence: 0.95,
	}, e.Name())
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func (e *HeuristicEvaluator) FollowUp(ctx context.Context, q QuestionView, answer json.RawMessage) (string, error) {
	return MockFollowUp(answer), nil
}
