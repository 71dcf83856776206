package model

import (
	"time"

	"gorm.io/datatypes"
)

// InterviewResponse 每个 (session, question) 至多一条，由唯一索引保证
// swagger:model InterviewResponse
type InterviewResponse struct {
	ID             uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID      uint              `gorm:"not null;uniqueIndex:idx_session_question" json:"sessionId"`
	QuestionID     uint              `gorm:"not null;uniqueIndex:idx_session_question;index" json:"questionId"`
	Question       *Question         `gorm:"foreignKey:QuestionID" json:"question,omitempty"`
	UserAnswer     datatypes.JSON    `gorm:"not null" json:"userAnswer" swaggertype:"object"`
	AnswerVersion  uint              `gorm:"not null;default:1" json:"answerVersion"` // 每次改答加一
	IsCorrect      *bool             `json:"isCorrect"`
	Score          *float64          `json:"score"`
	Feedback       datatypes.JSONMap `json:"feedback,omitempty" swaggertype:"object"`
	Confidence     *float64          `json:"confidence,omitempty"`
	ProcessingTime *float64          `json:"processingTime,omitempty"` // 秒
	EvaluatedAt    *time.Time        `json:"evaluatedAt,omitempty"`
	EvaluatedBy    string            `gorm:"size:50" json:"evaluatedBy,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

func (InterviewResponse) TableName() string {
	return "interview_responses"
}

func (r *InterviewResponse) Scored() bool {
	return r.Score != nil
}
