package model

import (
	"gorm.io/datatypes"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

type QuestionType string

const (
	QuestionObjective  QuestionType = "objective"
	QuestionMultiTurn  QuestionType = "multi_turn"
	QuestionAssignment QuestionType = "assignment"
)

func (t QuestionType) Valid() bool {
	return t == QuestionObjective || t == QuestionMultiTurn || t == QuestionAssignment
}

// swagger:model Question
type Question struct {
	BaseModel
	Category       string            `gorm:"size:100;index;not null" json:"category"`
	Difficulty     Difficulty        `gorm:"size:20;index;not null;default:medium" json:"difficulty"`
	QuestionType   QuestionType      `gorm:"size:20;index;not null;default:objective" json:"questionType"`
	Prompt         string            `gorm:"type:text;not null" json:"prompt"`
	Options        datatypes.JSON    `json:"options,omitempty" swaggertype:"object"`
	ExpectedAnswer datatypes.JSON    `gorm:"column:correct_answer" json:"expectedAnswer,omitempty" swaggertype:"object"`
	Explanation    string            `gorm:"type:text" json:"explanation,omitempty"`
	MaxScore       float64           `gorm:"default:100" json:"maxScore"`
	TimeLimit      *int              `json:"timeLimit,omitempty"` // 秒
	Metadata       datatypes.JSONMap `json:"metadata,omitempty" swaggertype:"object"`
	CreatedBy      *uint             `gorm:"index" json:"createdBy,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}
