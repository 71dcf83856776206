package repository

import (
	"mock_interview_backend/internal/model"

	"gorm.io/gorm"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) WithTx(tx *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: tx}
}

func (r *QuestionRepository) Create(q *model.Question) error {
	return r.DB.Create(q).Error
}

func (r *QuestionRepository) FindByID(id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.First(&q, id).Error
	return &q, err
}

// FindByIDUnscoped 包含已软删除的题目，评分时题目可能已下架
func (r *QuestionRepository) FindByIDUnscoped(id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.Unscoped().First(&q, id).Error
	return &q, err
}

func (r *QuestionRepository) FindByIDs(ids []uint) ([]model.Question, error) {
	var questions []model.Question
	if len(ids) == 0 {
		return questions, nil
	}
	err := r.DB.Where("id IN ?", ids).Order("id ASC").Find(&questions).Error
	return questions, err
}

type QuestionFilter struct {
	Category     string
	Difficulty   model.Difficulty
	QuestionType model.QuestionType
	Skip         int
	Limit        int
}

func (r *QuestionRepository) List(filter QuestionFilter) ([]model.Question, int64, error) {
	query := r.DB.Model(&model.Question{})
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Difficulty != "" {
		query = query.Where("difficulty = ?", filter.Difficulty)
	}
	if filter.QuestionType != "" {
		query = query.Where("question_type = ?", filter.QuestionType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var questions []model.Question
	err := query.Order("id ASC").Offset(filter.Skip).Limit(filter.Limit).Find(&questions).Error
	return questions, total, err
}

func (r *QuestionRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	return r.DB.Model(&model.Question{}).Where("id = ?", id).Updates(fields).Error
}

func (r *QuestionRepository) Delete(id uint) error {
	return r.DB.Delete(&model.Question{}, id).Error
}

// FindAll 批量遍历，用于向量回填
func (r *QuestionRepository) FindAll() ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.Order("id ASC").Find(&questions).Error
	return questions, err
}
