package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mock_interview_backend/internal/config"
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/util"
	"mock_interview_backend/pkg/logger"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// QuestionView 评估器看到的题目快照
type QuestionView struct {
	ID             uint               `json:"id"`
	Category       string             `json:"category"`
	Difficulty     model.Difficulty   `json:"difficulty"`
	Type           model.QuestionType `json:"questionType"`
	Prompt         string             `json:"prompt"`
	Options        json.RawMessage    `json:"options,omitempty"`
	ExpectedAnswer json.RawMessage    `json:"expectedAnswer,omitempty"`
	Explanation    string             `json:"explanation,omitempty"`
	MaxScore       float64            `json:"maxScore"`
}

func NewQuestionView(q *model.Question) QuestionView {
	return QuestionView{
		ID:             q.ID,
		Category:       q.Category,
		Difficulty:     q.Difficulty,
		Type:           q.QuestionType,
		Prompt:         q.Prompt,
		Options:        json.RawMessage(q.Options),
		ExpectedAnswer: json.RawMessage(q.ExpectedAnswer),
		Explanation:    q.Explanation,
		MaxScore:       q.MaxScore,
	}
}

type EvaluationContext struct {
	SessionID      uint     `json:"sessionId"`
	SessionTitle   string   `json:"sessionTitle"`
	ProcessingTime *float64 `json:"processingTime,omitempty"`
}

type EvaluationResult struct {
	Score         float64                `json:"score"`
	IsCorrect     *bool                  `json:"isCorrect,omitempty"`
	Feedback      string                 `json:"feedback"`
	Reasoning     string                 `json:"reasoning,omitempty"`
	Breakdown     map[string]float64     `json:"breakdown,omitempty"`
	Confidence    float64                `json:"confidence"`
	Provider      string                 `json:"provider"`
	IsProvisional bool                   `json:"isProvisional"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Evaluator 外部评分服务
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, q QuestionView, answer json.RawMessage, ectx EvaluationContext) (*EvaluationResult, error)
	FollowUp(ctx context.Context, q QuestionView, answer json.RawMessage) (string, error)
}

const passingScore = 60

const evaluationSystemPrompt = "You are an expert technical interviewer evaluating candidate responses. " +
	"Provide a detailed evaluation with a numerical score and feedback. Respond with a single JSON object only."

const followUpSystemPrompt = "You are an expert technical interviewer. " +
	"Generate one relevant follow-up question based on the candidate's answer. Reply with the question text only."

func buildEvaluationPrompt(q QuestionView, answer json.RawMessage, ectx EvaluationContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Interview: %s\n", ectx.SessionTitle)
	fmt.Fprintf(&sb, "Category: %s\nDifficulty: %s\nQuestion type: %s\n\n", q.Category, q.Difficulty, q.Type)
	fmt.Fprintf(&sb, "Question:\n%s\n\n", q.Prompt)
	if len(q.Options) > 0 {
		fmt.Fprintf(&sb, "Options:\n%s\n\n", string(q.Options))
	}
	if len(q.ExpectedAnswer) > 0 {
		fmt.Fprintf(&sb, "Reference answer:\n%s\n\n", string(q.ExpectedAnswer))
	}
	if q.Explanation != "" {
		fmt.Fprintf(&sb, "Explanation:\n%s\n\n", q.Explanation)
	}
	fmt.Fprintf(&sb, "Candidate answer:\n%s\n\n", string(answer))
	if ectx.ProcessingTime != nil {
		fmt.Fprintf(&sb, "Time taken: %.0f seconds\n\n", *ectx.ProcessingTime)
	}
	sb.WriteString(`Return STRICTLY this JSON:
{
  "score": <number 0-100>,
  "is_correct": <true|false>,
  "feedback": "<feedback for the candidate>",
  "reasoning": "<why this score>",
  "breakdown": {"relevance": <0-100>, "accuracy": <0-100>, "clarity": <0-100>, "completeness": <0-100>},
  "confidence": <number 0-1>
}`)
	return sb.String()
}

func buildFollowUpPrompt(q QuestionView, answer json.RawMessage) string {
	return fmt.Sprintf("Original question:\n%s\n\nCandidate answer:\n%s\n\nAsk one follow-up question that probes the weakest part of the answer.",
		q.Prompt, string(answer))
}

// stripCodeFence 去掉模型偶尔包裹的 ```json 代码块
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseEvaluationJSON 解析模型返回的评分 JSON
func parseEvaluationJSON(text string) (*EvaluationResult, error) {
	text = stripCodeFence(text)
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("evaluator returned non-JSON content")
	}

	score := gjson.Get(text, "score")
	if !score.Exists() || score.Type != gjson.Number {
		return nil, fmt.Errorf("evaluator response has no numeric score")
	}

	result := &EvaluationResult{
		Score:      score.Float(),
		Feedback:   gjson.Get(text, "feedback").String(),
		Reasoning:  gjson.Get(text, "reasoning").String(),
		Confidence: gjson.Get(text, "confidence").Float(),
		Breakdown:  map[string]float64{},
	}
	if v := gjson.Get(text, "is_correct"); v.IsBool() {
		result.IsCorrect = util.BoolPtr(v.Bool())
	}
	gjson.Get(text, "breakdown").ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.Number {
			result.Breakdown[key.String()] = value.Float()
		}
		return true
	})
	return result, nil
}

// normalizeResult 分数截断到 [0,100]，缺省正确性按及格线推断
func normalizeResult(r *EvaluationResult, provider string) *EvaluationResult {
	if math.IsNaN(r.Score) {
		r.Score = 0
	}
	r.Score = math.Max(0, math.Min(100, r.Score))
	if r.Confidence < 0 || r.Confidence > 1 || math.IsNaN(r.Confidence) {
		r.Confidence = math.Max(0, math.Min(1, r.Confidence))
	}
	if r.IsCorrect == nil {
		r.IsCorrect = util.BoolPtr(r.Score >= passingScore)
	}
	if r.Provider == "" {
		r.Provider = provider
	}
	return r
}

// ProvisionalEvaluation 评估服务不可用时返回给调用方的占位结果，不落库
func ProvisionalEvaluation(q QuestionView) *EvaluationResult {
	score := 75.0
	return &EvaluationResult{
		Score:    score,
		Feedback: "This is a provisional evaluation. The evaluation service is unavailable; retry later for real feedback.",
		Breakdown: map[string]float64{
			"relevance":    score * 0.9,
			"accuracy":     score * 0.8,
			"clarity":      score * 0.95,
			"completeness": score * 0.85,
		},
		Confidence:    0.7,
		Provider:      "provisional",
		IsProvisional: true,
		Metadata: map[string]interface{}{
			"is_mock":       true,
			"question_type": string(q.Type),
		},
	}
}

// MockFollowUp 追问生成失败时的模板问题
func MockFollowUp(answer json.RawMessage) string {
	subject := "your answer"
	parsed := gjson.ParseBytes(answer)
	if parsed.IsObject() {
		parsed.ForEach(func(key, _ gjson.Result) bool {
			subject = key.String()
			return false
		})
	}
	return fmt.Sprintf("Can you elaborate more on %s?", subject)
}

// flattenAnswer 把任意 JSON 答案拼成纯文本
func flattenAnswer(answer json.RawMessage) string {
	parsed := gjson.ParseBytes(answer)
	for _, key := range []string{"answer", "text", "content"} {
		if v := parsed.Get(key); v.Type == gjson.String {
			return v.String()
		}
	}

	var parts []string
	var walk func(r gjson.Result)
	walk = func(r gjson.Result) {
		switch {
		case r.IsObject() || r.IsArray():
			r.ForEach(func(_, v gjson.Result) bool {
				walk(v)
				return true
			})
		case r.Type == gjson.String, r.Type == gjson.Number, r.Type == gjson.True, r.Type == gjson.False:
			parts = append(parts, r.String())
		}
	}
	walk(parsed)
	return strings.Join(parts, " ")
}

// NewEvaluator 按配置创建评估器
func NewEvaluator(ctx context.Context, cfg *config.Config) (Evaluator, error) {
	switch cfg.Evaluator.Provider {
	case util.EvaluatorOpenAI:
		return NewOpenAIEvaluator(cfg.Evaluator)
	case util.EvaluatorGemini:
		client, err := NewGeminiClient(ctx, cfg.Gemini, cfg.Evaluator.Timeout())
		if err != nil {
			return nil, err
		}
		return NewGeminiEvaluator(client, cfg.Gemini.Model, cfg.Evaluator.Temperature), nil
	case util.EvaluatorHeuristic, "":
		return NewHeuristicEvaluator(), nil
	}
	return nil, fmt.Errorf("unsupported evaluator provider %q", cfg.Evaluator.Provider)
}

// EvaluatorService 持有当前评估器，配置热更新时整体替换
type EvaluatorService struct {
	mu        sync.RWMutex
	evaluator Evaluator
	settings  config.EvaluatorConfig
}

func NewEvaluatorService(cfg *config.Config) *EvaluatorService {
	s := &EvaluatorService{}
	s.Reload(cfg)
	return s
}

func NewStaticEvaluatorService(ev Evaluator, settings config.EvaluatorConfig) *EvaluatorService {
	return &EvaluatorService{evaluator: ev, settings: settings}
}

func (s *EvaluatorService) Current() (Evaluator, config.EvaluatorConfig) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evaluator, s.settings
}

// Reload 创建失败时退回启发式评估器，保证评分接口可用
func (s *EvaluatorService) Reload(cfg *config.Config) {
	ev, err := NewEvaluator(context.Background(), cfg)
	if err != nil {
		logger.Log.Warn("Evaluator unavailable, falling back to heuristic",
			zap.String("provider", cfg.Evaluator.Provider), zap.Error(err))
		ev = NewHeuristicEvaluator()
	}

	s.mu.Lock()
	s.evaluator = ev
	s.settings = cfg.Evaluator
	s.mu.Unlock()

	logger.Log.Info("Evaluator configured", zap.String("provider", ev.Name()))
}
