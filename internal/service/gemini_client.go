package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mock_interview_backend/internal/config"
	"mock_interview_backend/pkg/logger"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiClient 在 genai 客户端外包一层重试、指数退避与熔断
type GeminiClient struct {
	Client         *genai.Client
	EmbeddingModel string
	RequestTimeout time.Duration
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration

	mu                sync.Mutex
	consecutiveErrors int
	breakerMax        int
}

func NewGeminiClient(ctx context.Context, cfg config.GeminiConfig, timeout time.Duration) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api_key is not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiClient{
		Client:         client,
		EmbeddingModel: cfg.EmbeddingModel,
		RequestTimeout: timeout,
		MaxRetries:     2,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       4 * time.Second,
		breakerMax:     5,
	}, nil
}

func (c *GeminiClient) breakerOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consecutiveErrors >= c.breakerMax {
		return fmt.Errorf("circuit breaker open: too many consecutive errors (%d)", c.consecutiveErrors)
	}
	return nil
}

func (c *GeminiClient) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.consecutiveErrors = 0
		return
	}
	c.consecutiveErrors++
}

// ResetCircuitBreaker 手动恢复
func (c *GeminiClient) ResetCircuitBreaker() {
	c.record(nil)
}

// retry 对可重试错误按退避重试 fn
func (c *GeminiClient) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := c.breakerOpen(); err != nil {
		return err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			logger.Log.Debug("Retrying gemini call", zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-timeoutCtx.Done():
				c.record(timeoutCtx.Err())
				return fmt.Errorf("%s: context done during retry: %w", op, timeoutCtx.Err())
			}
		}

		err := fn(timeoutCtx)
		if err == nil {
			c.record(nil)
			return nil
		}
		lastErr = err

		if !isRetryableGeminiError(err) {
			c.record(err)
			return fmt.Errorf("%s failed: %w", op, err)
		}
	}

	c.record(lastErr)
	return fmt.Errorf("%s: max retries (%d) exceeded: %w", op, c.MaxRetries, lastErr)
}

func (c *GeminiClient) backoff(attempt int) time.Duration {
	delay := c.BaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

func isRetryableGeminiError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	case 400, 401, 403, 404:
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "temporary failure") ||
		strings.Contains(msg, "EOF")
}

// Generate 生成文本，jsonMode 要求模型输出 JSON
func (c *GeminiClient) Generate(ctx context.Context, model, system, prompt string, temperature float32, jsonMode bool) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt cannot be empty")
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(temperature),
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	if jsonMode {
		genConfig.ResponseMIMEType = "application/json"
	}

	var text string
	err := c.retry(ctx, "GenerateContent", func(ctx context.Context) error {
		result, err := c.Client.Models.GenerateContent(ctx, model, genai.Text(prompt), genConfig)
		if err != nil {
			return err
		}
		if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
			return errors.New("no candidates in response")
		}
		text = result.Text()
		return nil
	})
	return text, err
}

// Embed 生成文本向量
func (c *GeminiClient) Embed(ctx context.Context, text string, dimensions int) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.New("text for embedding cannot be empty")
	}
	if len(trimmed) > 10000 {
		trimmed = trimmed[:10000]
	}

	content := []*genai.Content{genai.NewContentFromText(trimmed, genai.RoleUser)}
	embedConfig := &genai.EmbedContentConfig{}
	if dimensions > 0 {
		embedConfig.OutputDimensionality = genai.Ptr(int32(dimensions))
	}

	var values []float32
	err := c.retry(ctx, "EmbedContent", func(ctx context.Context) error {
		result, err := c.Client.Models.EmbedContent(ctx, c.EmbeddingModel, content, embedConfig)
		if err != nil {
			return err
		}
		if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
			return errors.New("no embeddings returned")
		}
		for i, v := range result.Embeddings[0].Values {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return fmt.Errorf("invalid embedding value at index %d", i)
			}
		}
		values = result.Embeddings[0].Values
		return nil
	})
	return values, err
}
