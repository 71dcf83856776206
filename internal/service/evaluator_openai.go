package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mock_interview_backend/internal/config"
	"mock_interview_backend/internal/util"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// OpenAIEvaluator OpenAI 兼容的 chat/completions 接口（Groq、OpenRouter、OpenAI）
type OpenAIEvaluator struct {
	Client      *resty.Client
	Model       string
	Temperature float64
}

func NewOpenAIEvaluator(cfg config.EvaluatorConfig) (*OpenAIEvaluator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("evaluator api_key is not configured")
	}
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, errors.New("evaluator base_url and model are required")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout()).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		})

	return &OpenAIEvaluator{
		Client:      client,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
	}, nil
}

func (e *OpenAIEvaluator) Name() string {
	return util.EvaluatorOpenAI
}

func (e *OpenAIEvaluator) chat(ctx context.Context, system, user string, temperature float64, jsonMode bool) (string, error) {
	body := map[string]interface{}{
		"model": e.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": temperature,
		"max_tokens":  1024,
	}
	if jsonMode {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	resp, err := e.Client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		msg := gjson.Get(resp.String(), "error.message").String()
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("llm api error (status %d): %s", resp.StatusCode(), msg)
	}

	text := gjson.Get(resp.String(), "choices.0.message.content").String()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("no response from LLM")
	}
	return text, nil
}

func (e *OpenAIEvaluator) Evaluate(ctx context.Context, q QuestionView, answer json.RawMessage, ectx EvaluationContext) (*EvaluationResult, error) {
	text, err := e.chat(ctx, evaluationSystemPrompt, buildEvaluationPrompt(q, answer, ectx), e.Temperature, true)
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

func (e *OpenAIEvaluator) FollowUp(ctx context.Context, q QuestionView, answer json.RawMessage) (string, error) {
	text, err := e.chat(ctx, followUpSystemPrompt, buildFollowUpPrompt(q, answer), 0.7, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
