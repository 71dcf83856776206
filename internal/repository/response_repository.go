package repository

import (
	"mock_interview_backend/internal/model"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResponseRepository struct {
	DB *gorm.DB
}

func NewResponseRepository(db *gorm.DB) *ResponseRepository {
	return &ResponseRepository{DB: db}
}

func (r *ResponseRepository) WithTx(tx *gorm.DB) *ResponseRepository {
	return &ResponseRepository{DB: tx}
}

func (r *ResponseRepository) FindByPair(sessionID, questionID uint) (*model.InterviewResponse, error) {
	var resp model.InterviewResponse
	err := r.DB.Where("session_id = ? AND question_id = ?", sessionID, questionID).First(&resp).Error
	return &resp, err
}

// Upsert 唯一索引 (session_id, question_id) 冲突时覆盖答案并递增版本
func (r *ResponseRepository) Upsert(resp *model.InterviewResponse) error {
	if resp.AnswerVersion == 0 {
		resp.AnswerVersion = 1
	}
	updates := clause.AssignmentColumns([]string{"user_answer", "processing_time", "updated_at"})
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "answer_version"},
		Value:  gorm.Expr("interview_responses.answer_version + 1"),
	})
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "question_id"}},
		DoUpdates: updates,
	}).Create(resp).Error
}

func (r *ResponseRepository) UpdateAnswer(id uint, answer datatypes.JSON, processingTime *float64) error {
	return r.DB.Model(&model.InterviewResponse{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"user_answer":     answer,
			"answer_version":  gorm.Expr("answer_version + 1"),
			"processing_time": processingTime,
			"updated_at":      time.Now(),
		}).Error
}

type EvaluationFields struct {
	Score       float64
	IsCorrect   bool
	Feedback    datatypes.JSONMap
	Confidence  *float64
	EvaluatedBy string
	EvaluatedAt time.Time
}

// SaveEvaluation 仅在尚未评分且答案仍是被评估的版本时写入，返回受影响行数
func (r *ResponseRepository) SaveEvaluation(id, answerVersion uint, f EvaluationFields) (int64, error) {
	result := r.DB.Model(&model.InterviewResponse{}).
		Where("id = ? AND answer_version = ? AND score IS NULL", id, answerVersion).
		Updates(map[string]interface{}{
			"score":        f.Score,
			"is_correct":   f.IsCorrect,
			"feedback":     f.Feedback,
			"confidence":   f.Confidence,
			"evaluated_by": f.EvaluatedBy,
			"evaluated_at": f.EvaluatedAt,
		})
	return result.RowsAffected, result.Error
}

func (r *ResponseRepository) CountBySession(sessionID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.InterviewResponse{}).Where("session_id = ?", sessionID).Count(&count).Error
	return count, err
}

// ScoresBySession 已评分作答的分数
func (r *ResponseRepository) ScoresBySession(sessionID uint) ([]float64, error) {
	var scores []float64
	err := r.DB.Model(&model.InterviewResponse{}).
		Where("session_id = ? AND score IS NOT NULL", sessionID).
		Order("id ASC").
		Pluck("score", &scores).Error
	return scores, err
}
