package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/repository"
	"mock_interview_backend/internal/util"
	"mock_interview_backend/pkg/cache"
	"mock_interview_backend/pkg/logger"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// QuestionCache 题目缓存，由 cache.Store 实现
type QuestionCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

const questionCacheTTL = 10 * time.Minute

type QuestionService struct {
	QuestionRepo *repository.QuestionRepository
	Index        *QuestionIndex
	Cache        QuestionCache
}

func NewQuestionService(questionRepo *repository.QuestionRepository, index *QuestionIndex, c QuestionCache) *QuestionService {
	return &QuestionService{
		QuestionRepo: questionRepo,
		Index:        index,
		Cache:        c,
	}
}

type QuestionRequest struct {
	Category       string                 `json:"category" binding:"required"`
	Difficulty     model.Difficulty       `json:"difficulty"`
	QuestionType   model.QuestionType     `json:"questionType"`
	Prompt         string                 `json:"prompt" binding:"required"`
	Options        json.RawMessage        `json:"options" swaggertype:"object"`
	ExpectedAnswer json.RawMessage        `json:"expectedAnswer" swaggertype:"object"`
	Explanation    string                 `json:"explanation"`
	MaxScore       *float64               `json:"maxScore"`
	TimeLimit      *int                   `json:"timeLimit"`
	Metadata       map[string]interface{} `json:"metadata"`
}

type QuestionUpdateRequest struct {
	Category       *string                `json:"category"`
	Difficulty     *model.Difficulty      `json:"difficulty"`
	QuestionType   *model.QuestionType    `json:"questionType"`
	Prompt         *string                `json:"prompt"`
	Options        json.RawMessage        `json:"options" swaggertype:"object"`
	ExpectedAnswer json.RawMessage        `json:"expectedAnswer" swaggertype:"object"`
	Explanation    *string                `json:"explanation"`
	MaxScore       *float64               `json:"maxScore"`
	TimeLimit      *int                   `json:"timeLimit"`
	Metadata       map[string]interface{} `json:"metadata"`
}

type QuestionListQuery struct {
	Category     string
	Difficulty   model.Difficulty
	QuestionType model.QuestionType
	Skip         int
	Limit        int
}

func questionCacheKey(id uint) string {
	return fmt.Sprintf("question:%d", id)
}

// optionalJSON 空值返回 nil，非法 JSON 返回 InvalidArgument
func optionalJSON(raw json.RawMessage, field string) (datatypes.JSON, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%s must be valid JSON: %w", field, util.ErrInvalidArgument)
	}
	return datatypes.JSON(trimmed), nil
}

func (s *QuestionService) Create(ctx context.Context, actor Actor, req QuestionRequest) (*model.Question, error) {
	if !actor.canEditQuestions() {
		return nil, util.ErrForbidden
	}

	q := &model.Question{
		Category:     strings.TrimSpace(req.Category),
		Difficulty:   req.Difficulty,
		QuestionType: req.QuestionType,
		Prompt:       strings.TrimSpace(req.Prompt),
		Explanation:  req.Explanation,
		MaxScore:     100,
		TimeLimit:    req.TimeLimit,
		Metadata:     datatypes.JSONMap(req.Metadata),
		CreatedBy:    &actor.UserID,
	}
	if q.Difficulty == "" {
		q.Difficulty = model.DifficultyMedium
	}
	if q.QuestionType == "" {
		q.QuestionType = model.QuestionObjective
	}
	if req.MaxScore != nil {
		q.MaxScore = *req.MaxScore
	}
	if err := validateQuestion(q); err != nil {
		return nil, err
	}

	var err error
	if q.Options, err = optionalJSON(req.Options, "options"); err != nil {
		return nil, err
	}
	if q.ExpectedAnswer, err = optionalJSON(req.ExpectedAnswer, "expectedAnswer"); err != nil {
		return nil, err
	}

	if err := s.QuestionRepo.Create(q); err != nil {
		return nil, err
	}
	s.reindex(ctx, q)
	return q, nil
}

func validateQuestion(q *model.Question) error {
	switch {
	case q.Category == "" || q.Prompt == "":
		return fmt.Errorf("category and prompt are required: %w", util.ErrInvalidArgument)
	case !q.Difficulty.Valid():
		return fmt.Errorf("unknown difficulty %q: %w", q.Difficulty, util.ErrInvalidArgument)
	case !q.QuestionType.Valid():
		return fmt.Errorf("unknown question type %q: %w", q.QuestionType, util.ErrInvalidArgument)
	case q.MaxScore <= 0:
		return fmt.Errorf("maxScore must be positive: %w", util.ErrInvalidArgument)
	}
	return nil
}

// reindex 向量索引失败不影响题目写入
func (s *QuestionService) reindex(ctx context.Context, q *model.Question) {
	if !s.Index.Enabled() {
		return
	}
	if err := s.Index.Index(ctx, q); err != nil {
		logger.Log.Warn("Question embedding failed", zap.Uint("question_id", q.ID), zap.Error(err))
	}
}

func (s *QuestionService) Get(ctx context.Context, id uint) (*model.Question, error) {
	if s.Cache != nil {
		var cached model.Question
		err := s.Cache.GetJSON(ctx, questionCacheKey(id), &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			logger.Log.Debug("Question cache read failed", zap.Error(err))
		}
	}

	q, err := s.QuestionRepo.FindByID(id)
	if err != nil {
		return nil, notFound(err, "question")
	}
	if s.Cache != nil {
		if err := s.Cache.SetJSON(ctx, questionCacheKey(id), q, questionCacheTTL); err != nil {
			logger.Log.Debug("Question cache write failed", zap.Error(err))
		}
	}
	return q, nil
}

func (s *QuestionService) List(ctx context.Context, query QuestionListQuery) ([]model.Question, int64, error) {
	if query.Difficulty != "" && !query.Difficulty.Valid() {
		return nil, 0, fmt.Errorf("unknown difficulty %q: %w", query.Difficulty, util.ErrInvalidArgument)
	}
	if query.QuestionType != "" && !query.QuestionType.Valid() {
		return nil, 0, fmt.Errorf("unknown question type %q: %w", query.QuestionType, util.ErrInvalidArgument)
	}
	skip, limit := util.ClampPage(query.Skip, query.Limit)
	return s.QuestionRepo.List(repository.QuestionFilter{
		Category:     query.Category,
		Difficulty:   query.Difficulty,
		QuestionType: query.QuestionType,
		Skip:         skip,
		Limit:        limit,
	})
}

func (s *QuestionService) Update(ctx context.Context, actor Actor, id uint, req QuestionUpdateRequest) (*model.Question, error) {
	if !actor.canEditQuestions() {
		return nil, util.ErrForbidden
	}
	q, err := s.QuestionRepo.FindByID(id)
	if err != nil {
		return nil, notFound(err, "question")
	}

	fields := map[string]interface{}{}
	if req.Category != nil {
		q.Category = strings.TrimSpace(*req.Category)
		fields["category"] = q.Category
	}
	if req.Difficulty != nil {
		q.Difficulty = *req.Difficulty
		fields["difficulty"] = q.Difficulty
	}
	if req.QuestionType != nil {
		q.QuestionType = *req.QuestionType
		fields["question_type"] = q.QuestionType
	}
	if req.Prompt != nil {
		q.Prompt = strings.TrimSpace(*req.Prompt)
		fields["prompt"] = q.Prompt
	}
	if req.Explanation != nil {
		fields["explanation"] = *req.Explanation
	}
	if req.MaxScore != nil {
		q.MaxScore = *req.MaxScore
		fields["max_score"] = q.MaxScore
	}
	if req.TimeLimit != nil {
		fields["time_limit"] = *req.TimeLimit
	}
	if req.Metadata != nil {
		fields["metadata"] = datatypes.JSONMap(req.Metadata)
	}
	if err := validateQuestion(q); err != nil {
		return nil, err
	}
	if options, err := optionalJSON(req.Options, "options"); err != nil {
		return nil, err
	} else if options != nil {
		fields["options"] = options
	}
	if expected, err := optionalJSON(req.ExpectedAnswer, "expectedAnswer"); err != nil {
		return nil, err
	} else if expected != nil {
		fields["correct_answer"] = expected
	}

	if len(fields) > 0 {
		if err := s.QuestionRepo.UpdateFields(id, fields); err != nil {
			return nil, err
		}
	}
	s.invalidate(ctx, id)

	updated, err := s.QuestionRepo.FindByID(id)
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, updated)
	return updated, nil
}

// Delete 软删除，已引用该题的会话仍可读取与评分
func (s *QuestionService) Delete(ctx context.Context, actor Actor, id uint) error {
	if !actor.IsSuperuser {
		return util.ErrForbidden
	}
	if _, err := s.QuestionRepo.FindByID(id); err != nil {
		return notFound(err, "question")
	}
	if err := s.QuestionRepo.Delete(id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	if err := s.Index.Remove(id); err != nil {
		logger.Log.Warn("Question embedding removal failed", zap.Uint("question_id", id), zap.Error(err))
	}
	return nil
}

func (s *QuestionService) Search(ctx context.Context, query string, limit int) ([]repository.QuestionMatch, error) {
	return s.Index.Search(ctx, query, limit)
}

func (s *QuestionService) invalidate(ctx context.Context, id uint) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Delete(ctx, questionCacheKey(id)); err != nil {
		logger.Log.Debug("Question cache delete failed", zap.Error(err))
	}
}
