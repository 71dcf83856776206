package database

import (
	"encoding/json"
	"fmt"
	"log"
	"mock_interview_backend/internal/config"
	"mock_interview_backend/internal/model"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type seedQuestion struct {
	Category       string                 `yaml:"category"`
	Difficulty     string                 `yaml:"difficulty"`
	QuestionType   string                 `yaml:"question_type"`
	Prompt         string                 `yaml:"prompt"`
	Options        map[string]interface{} `yaml:"options"`
	ExpectedAnswer map[string]interface{} `yaml:"expected_answer"`
	Explanation    string                 `yaml:"explanation"`
	TimeLimit      *int                   `yaml:"time_limit"`
}

type seedFile struct {
	Questions []seedQuestion `yaml:"questions"`
}

// LoadSeedQuestions 读取题库种子文件
func LoadSeedQuestions(path string) ([]model.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	questions := make([]model.Question, 0, len(file.Questions))
	for i, q := range file.Questions {
		question := model.Question{
			Category:     q.Category,
			Difficulty:   model.Difficulty(q.Difficulty),
			QuestionType: model.QuestionType(q.QuestionType),
			Prompt:       q.Prompt,
			Explanation:  q.Explanation,
			MaxScore:     100,
			TimeLimit:    q.TimeLimit,
		}
		if !question.Difficulty.Valid() || !question.QuestionType.Valid() || question.Prompt == "" {
			return nil, fmt.Errorf("seed question #%d is invalid", i+1)
		}
		if question.Options, err = toJSON(q.Options); err != nil {
			return nil, err
		}
		if question.ExpectedAnswer, err = toJSON(q.ExpectedAnswer); err != nil {
			return nil, err
		}
		questions = append(questions, question)
	}
	return questions, nil
}

func toJSON(v map[string]interface{}) (datatypes.JSON, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// SeedQuestions 题库为空或 force 时导入，按 prompt 去重
func SeedQuestions(db *gorm.DB, path string, force bool) (int, error) {
	var count int64
	if err := db.Model(&model.Question{}).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 && !force {
		return 0, nil
	}

	questions, err := LoadSeedQuestions(path)
	if err != nil {
		return 0, err
	}

	created := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		for i := range questions {
			var exists int64
			if err := tx.Model(&model.Question{}).Where("prompt = ?", questions[i].Prompt).Count(&exists).Error; err != nil {
				return err
			}
			if exists > 0 {
				continue
			}
			if err := tx.Create(&questions[i]).Error; err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Printf("Seeded %d interview questions", created)
	return created, nil
}

// EnsureAdmin 不存在超级管理员且配置了密码时创建
func EnsureAdmin(db *gorm.DB, cfg *config.AdminConfig) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}

	var count int64
	if err := db.Model(&model.User{}).Where("is_superuser = ?", true).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := &model.User{
		Email:       cfg.Email,
		Username:    cfg.Username,
		FullName:    "Administrator",
		Password:    string(hashed),
		Role:        model.RoleInterviewer,
		IsActive:    true,
		IsSuperuser: true,
	}
	if err := db.Create(admin).Error; err != nil {
		return err
	}

	log.Printf("Created superuser %s", cfg.Email)
	return nil
}
