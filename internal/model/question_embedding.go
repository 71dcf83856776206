package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// QuestionEmbedding 题目向量，仅在 postgres + pgvector 下迁移
type QuestionEmbedding struct {
	QuestionID  uint            `gorm:"primaryKey;autoIncrement:false" json:"questionId"`
	Model       string          `gorm:"size:100" json:"model"`
	ContentHash string          `gorm:"size:64" json:"contentHash"`
	Embedding   pgvector.Vector `gorm:"type:vector(768)" json:"-"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (QuestionEmbedding) TableName() string {
	return "question_embeddings"
}
