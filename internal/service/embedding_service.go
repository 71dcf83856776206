package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/repository"
	"mock_interview_backend/internal/util"
	"mock_interview_backend/pkg/logger"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Embedder 文本向量化，GeminiClient 实现
type Embedder interface {
	Embed(ctx context.Context, text string, dimensions int) ([]float32, error)
}

// QuestionIndex 题目向量索引（pgvector），未启用时搜索返回 ErrVectorSearchUnavailable
type QuestionIndex struct {
	Repo         *repository.EmbeddingRepository
	QuestionRepo *repository.QuestionRepository
	Embedder     Embedder
	Model        string
	Dimensions   int
	enabled      bool
}

func NewQuestionIndex(repo *repository.EmbeddingRepository, questionRepo *repository.QuestionRepository, embedder Embedder, model string, dimensions int) *QuestionIndex {
	return &QuestionIndex{
		Repo:         repo,
		QuestionRepo: questionRepo,
		Embedder:     embedder,
		Model:        model,
		Dimensions:   dimensions,
		enabled:      repo != nil && embedder != nil,
	}
}

// NewDisabledQuestionIndex 非 postgres 或未配置 Gemini 时使用
func NewDisabledQuestionIndex() *QuestionIndex {
	return &QuestionIndex{}
}

func (i *QuestionIndex) Enabled() bool {
	return i != nil && i.enabled
}

func questionText(q *model.Question) string {
	parts := []string{q.Category, string(q.Difficulty), string(q.QuestionType), q.Prompt}
	if q.Explanation != "" {
		parts = append(parts, q.Explanation)
	}
	return strings.Join(parts, "\n")
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Index 内容未变化时跳过
func (i *QuestionIndex) Index(ctx context.Context, q *model.Question) error {
	if !i.Enabled() {
		return nil
	}

	text := questionText(q)
	hash := contentHash(text)
	existing, err := i.Repo.FindByQuestionID(q.ID)
	if err == nil && existing.ContentHash == hash && existing.Model == i.Model {
		return nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	values, err := i.Embedder.Embed(ctx, text, i.Dimensions)
	if err != nil {
		return fmt.Errorf("embed question %d: %w", q.ID, err)
	}
	return i.Repo.Upsert(&model.QuestionEmbedding{
		QuestionID:  q.ID,
		Model:       i.Model,
		ContentHash: hash,
		Embedding:   pgvector.NewVector(values),
		UpdatedAt:   time.Now(),
	})
}

func (i *QuestionIndex) Remove(questionID uint) error {
	if !i.Enabled() {
		return nil
	}
	return i.Repo.Delete(questionID)
}

// Search 与查询文本语义最接近的题目
func (i *QuestionIndex) Search(ctx context.Context, query string, limit int) ([]repository.QuestionMatch, error) {
	if !i.Enabled() {
		return nil, util.ErrVectorSearchUnavailable
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", util.ErrInvalidArgument)
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	values, err := i.Embedder.Embed(ctx, query, i.Dimensions)
	if err != nil {
		logger.Log.Warn("Query embedding failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", util.ErrVectorSearchUnavailable, err)
	}
	return i.Repo.Search(pgvector.NewVector(values), limit)
}

// Backfill 为所有题目补齐向量，返回本次处理的数量
func (i *QuestionIndex) Backfill(ctx context.Context, pause time.Duration) (int, error) {
	if !i.Enabled() {
		return 0, util.ErrVectorSearchUnavailable
	}
	questions, err := i.QuestionRepo.FindAll()
	if err != nil {
		return 0, err
	}

	logger.Log.Info("开始补齐题目向量", zap.Int("count", len(questions)))
	indexed := 0
	for idx := range questions {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		if err := i.Index(ctx, &questions[idx]); err != nil {
			logger.Log.Warn("题目向量生成失败", zap.Uint("question_id", questions[idx].ID), zap.Error(err))
			continue
		}
		indexed++
		// 避免触发 API 限流
		if pause > 0 {
			time.Sleep(pause)
		}
	}
	logger.Log.Info("题目向量补齐完成", zap.Int("indexed", indexed), zap.Int("total", len(questions)))
	return indexed, nil
}
