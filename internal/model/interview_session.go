package model

import (
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

const (
	StatusDraft      SessionStatus = "draft"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusCancelled  SessionStatus = "cancelled"
	StatusAbandoned  SessionStatus = "abandoned"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusCompleted, StatusCancelled, StatusAbandoned:
		return true
	}
	return false
}

// Closed 已取消或已放弃，不再参与完成判定
func (s SessionStatus) Closed() bool {
	return s == StatusCancelled || s == StatusAbandoned
}

// SessionQuestionTable 会话与题目的关联表
const SessionQuestionTable = "interview_session_questions"

// swagger:model InterviewSession
type InterviewSession struct {
	BaseModel
	Title         string              `gorm:"size:200;not null" json:"title"`
	Description   string              `gorm:"type:text" json:"description,omitempty"`
	Status        SessionStatus       `gorm:"size:20;index;not null;default:draft" json:"status"`
	CandidateID   uint                `gorm:"index;not null" json:"candidateId"`
	Candidate     *User               `gorm:"foreignKey:CandidateID" json:"candidate,omitempty"`
	InterviewerID *uint               `gorm:"index" json:"interviewerId,omitempty"`
	Interviewer   *User               `gorm:"foreignKey:InterviewerID" json:"interviewer,omitempty"`
	CreatedBy     uint                `gorm:"index" json:"createdBy"`
	Questions     []Question          `gorm:"many2many:interview_session_questions;" json:"questions,omitempty"`
	Responses     []InterviewResponse `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"responses,omitempty"`
	Score         *float64            `json:"score"`
	Feedback      datatypes.JSONMap   `json:"feedback,omitempty" swaggertype:"object"`
	ScheduledAt   *time.Time          `json:"scheduledAt,omitempty"`
	TimeLimit     *int                `json:"timeLimit,omitempty"` // 分钟
	Metadata      datatypes.JSONMap   `json:"metadata,omitempty" swaggertype:"object"`
	StartedAt     *time.Time          `json:"startedAt,omitempty"`
	CompletedAt   *time.Time          `json:"completedAt,omitempty"`
}

func (InterviewSession) TableName() string {
	return "interview_sessions"
}

func (s *InterviewSession) IsCandidate(userID uint) bool {
	return s.CandidateID == userID
}

func (s *InterviewSession) IsInterviewer(userID uint) bool {
	return s.InterviewerID != nil && *s.InterviewerID == userID
}
