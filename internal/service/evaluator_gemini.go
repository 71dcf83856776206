package service

import (
	"context"
	"encoding/json"
	"mock_interview_backend/internal/util"
	"strings"
)

type GeminiEvaluator struct {
	Gemini      *GeminiClient
	Model       string
	Temperature float32
}

func NewGeminiEvaluator(client *GeminiClient, model string, temperature float64) *GeminiEvaluator {
	return &GeminiEvaluator{
		Gemini:      client,
		Model:       model,
		Temperature: float32(temperature),
	}
}

func (e *GeminiEvaluator) Name() string {
	return util.EvaluatorGemini
}

func (e *GeminiEvaluator) Evaluate(ctx context.Context, q QuestionView, answer json.RawMessage, ectx EvaluationContext) (*EvaluationResult, error) {
	text, err := e.Gemini.Generate(ctx, e.Model, evaluationSystemPrompt, buildEvaluationPrompt(q, answer, ectx), e.Temperature, true)
	if err != nil {
		return nil, err
	}

	result, err := parseEvaluationJSON(text)
	if err != nil {
		return nil, err
	}
	result.Metadata = map[string]interface{}{"model": e.Model}
	return normalizeResult(result, e.Name()), nil
}

func (e *GeminiEvaluator) FollowUp(ctx context.Context, q QuestionView, answer json.RawMessage) (string, error) {
	text, err := e.Gemini.Generate(ctx, e.Model, followUpSystemPrompt, buildFollowUpPrompt(q, answer), 0.7, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
