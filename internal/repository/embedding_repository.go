package repository

import (
	"mock_interview_backend/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EmbeddingRepository struct {
	DB *gorm.DB
}

func NewEmbeddingRepository(db *gorm.DB) *EmbeddingRepository {
	return &EmbeddingRepository{DB: db}
}

func (r *EmbeddingRepository) Upsert(e *model.QuestionEmbedding) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"model", "content_hash", "embedding", "updated_at"}),
	}).Create(e).Error
}

func (r *EmbeddingRepository) FindByQuestionID(questionID uint) (*model.QuestionEmbedding, error) {
	var e model.QuestionEmbedding
	err := r.DB.First(&e, "question_id = ?", questionID).Error
	return &e, err
}

func (r *EmbeddingRepository) Delete(questionID uint) error {
	return r.DB.Delete(&model.QuestionEmbedding{}, "question_id = ?", questionID).Error
}

type QuestionMatch struct {
	model.Question
	Distance float64 `json:"distance"`
}

// Search 余弦距离最近的题目
func (r *EmbeddingRepository) Search(embedding pgvector.Vector, topK int) ([]QuestionMatch, error) {
	var matches []QuestionMatch

	err := r.DB.Raw(`
        SELECT q.*, e.embedding <=> ? AS distance
        FROM question_embeddings e
        JOIN questions q ON q.id = e.question_id
        WHERE q.deleted_at IS NULL
        ORDER BY e.embedding <=> ?
        LIMIT ?
    `, embedding, embedding, topK).Scan(&matches).Error

	return matches, err
}
