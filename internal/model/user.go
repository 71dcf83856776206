package model

import (
	"time"
)

type UserRole string

const (
	RoleCandidate   UserRole = "candidate"
	RoleInterviewer UserRole = "interviewer"
)

func (r UserRole) Valid() bool {
	return r == RoleCandidate || r == RoleInterviewer
}

// swagger:model User
type User struct {
	BaseModel
	Email       string     `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Username    string     `gorm:"size:50;index" json:"username"`
	FullName    string     `gorm:"size:100" json:"fullName"`
	AvatarURL   string     `gorm:"size:255" json:"avatarUrl,omitempty"`
	Password    string     `gorm:"size:100;not null" json:"-"`
	Role        UserRole   `gorm:"size:20;not null;default:candidate" json:"role"`
	IsActive    bool       `gorm:"default:true" json:"isActive"`
	IsSuperuser bool       `gorm:"default:false" json:"isSuperuser"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
}

func (User) TableName() string {
	return "users"
}
