package repository

import (
	"mock_interview_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionRepository struct {
	DB *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) WithTx(tx *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: tx}
}

// Create 写入会话及题目关联，不回写题目本身
func (r *SessionRepository) Create(session *model.InterviewSession) error {
	return r.DB.Omit("Questions.*").Create(session).Error
}

func (r *SessionRepository) FindByID(id uint) (*model.InterviewSession, error) {
	var s model.InterviewSession
	err := r.DB.First(&s, id).Error
	return &s, err
}

// LockByID SELECT ... FOR UPDATE，需在事务内调用；sqlite 方言忽略行锁
func (r *SessionRepository) LockByID(id uint) (*model.InterviewSession, error) {
	var s model.InterviewSession
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error
	return &s, err
}

func (r *SessionRepository) FindWithDetails(id uint) (*model.InterviewSession, error) {
	var s model.InterviewSession
	err := r.DB.
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Unscoped().Order("questions.id ASC") }).
		Preload("Responses", func(db *gorm.DB) *gorm.DB { return db.Order("interview_responses.id ASC") }).
		Preload("Candidate").
		Preload("Interviewer").
		First(&s, id).Error
	return &s, err
}

func (r *SessionRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	return r.DB.Model(&model.InterviewSession{}).Where("id = ?", id).Updates(fields).Error
}

// CountQuestions 直接统计关联表，不受题目软删除影响
func (r *SessionRepository) CountQuestions(sessionID uint) (int64, error) {
	var count int64
	err := r.DB.Table(model.SessionQuestionTable).
		Where("interview_session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

func (r *SessionRepository) HasQuestion(sessionID, questionID uint) (bool, error) {
	var count int64
	err := r.DB.Table(model.SessionQuestionTable).
		Where("interview_session_id = ? AND question_id = ?", sessionID, questionID).
		Count(&count).Error
	return count > 0, err
}

type sessionQuestionCount struct {
	InterviewSessionID uint
	Total              int64
}

func (r *SessionRepository) CountQuestionsBySessions(ids []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	var rows []sessionQuestionCount
	err := r.DB.Table(model.SessionQuestionTable).
		Select("interview_session_id, COUNT(*) AS total").
		Where("interview_session_id IN ?", ids).
		Group("interview_session_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.InterviewSessionID] = row.Total
	}
	return counts, nil
}

func (r *SessionRepository) ReplaceQuestions(session *model.InterviewSession, questions []model.Question) error {
	return r.DB.Model(session).Omit("Questions.*").Association("Questions").Replace(questions)
}

type SessionFilter struct {
	Status        model.SessionStatus
	CandidateID   *uint
	InterviewerID *uint
	Skip          int
	Limit         int
}

// List 按条件分页，预加载作答记录用于生成摘要
func (r *SessionRepository) List(filter SessionFilter) ([]model.InterviewSession, int64, error) {
	query := r.DB.Model(&model.InterviewSession{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CandidateID != nil {
		query = query.Where("candidate_id = ?", *filter.CandidateID)
	}
	if filter.InterviewerID != nil {
		query = query.Where("interviewer_id = ?", *filter.InterviewerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var sessions []model.InterviewSession
	err := query.
		Preload("Responses").
		Order("created_at DESC, id DESC").
		Offset(filter.Skip).
		Limit(filter.Limit).
		Find(&sessions).Error
	return sessions, total, err
}

// Delete 物理删除会话、作答记录与题目关联
func (r *SessionRepository) Delete(session *model.InterviewSession) error {
	if err := r.DB.Where("session_id = ?", session.ID).Delete(&model.InterviewResponse{}).Error; err != nil {
		return err
	}
	if err := r.DB.Model(session).Association("Questions").Clear(); err != nil {
		return err
	}
	return r.DB.Unscoped().Delete(session).Error
}
