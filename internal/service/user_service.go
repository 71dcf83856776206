package service

import (
	"errors"
	"fmt"
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/repository"
	"mock_interview_backend/internal/util"
	"mock_interview_backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserService 管理员维护账号
type UserService struct {
	UserRepo *repository.UserRepository
}

func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{
		UserRepo: userRepo,
	}
}

type UserListQuery struct {
	Role     model.UserRole
	IsActive *bool
	Skip     int
	Limit    int
}

// AdminUserUpdate 仅更新非空字段
type AdminUserUpdate struct {
	FullName    *string         `json:"fullName"`
	Role        *model.UserRole `json:"role"`
	IsActive    *bool           `json:"isActive"`
	IsSuperuser *bool           `json:"isSuperuser"`
	Password    *string         `json:"password" binding:"omitempty,min=6"`
}

func (s *UserService) GetUsers(actor Actor, query UserListQuery) ([]model.User, int64, error) {
	if !actor.IsSuperuser {
		return nil, 0, util.ErrForbidden
	}
	if query.Role != "" && !query.Role.Valid() {
		return nil, 0, fmt.Errorf("unknown role %q: %w", query.Role, util.ErrInvalidArgument)
	}
	skip, limit := util.ClampPage(query.Skip, query.Limit)
	return s.UserRepo.List(repository.UserFilter{
		Role:     query.Role,
		IsActive: query.IsActive,
		Skip:     skip,
		Limit:    limit,
	})
}

// UpdateUser 管理员不能取消自己的管理员权限或停用自己
func (s *UserService) UpdateUser(actor Actor, id uint, req AdminUserUpdate) (*model.User, error) {
	if !actor.IsSuperuser {
		return nil, util.ErrForbidden
	}
	if _, err := s.UserRepo.FindByID(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrUserNotFound
		}
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.FullName != nil {
		fields["full_name"] = *req.FullName
	}
	if req.Role != nil {
		if !req.Role.Valid() {
			return nil, fmt.Errorf("unknown role %q: %w", *req.Role, util.ErrInvalidArgument)
		}
		fields["role"] = *req.Role
	}
	if req.IsActive != nil {
		if id == actor.UserID && !*req.IsActive {
			return nil, fmt.Errorf("cannot deactivate yourself: %w", util.ErrInvalidArgument)
		}
		fields["is_active"] = *req.IsActive
	}
	if req.IsSuperuser != nil {
		if id == actor.UserID && !*req.IsSuperuser {
			return nil, fmt.Errorf("cannot revoke your own admin rights: %w", util.ErrInvalidArgument)
		}
		fields["is_superuser"] = *req.IsSuperuser
	}
	if req.Password != nil {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		fields["password"] = string(hashedPassword)
	}

	if len(fields) > 0 {
		if err := s.UserRepo.UpdateFields(id, fields); err != nil {
			return nil, err
		}
		logger.Log.Info("User updated by admin", zap.Uint("user_id", id), zap.Uint("admin_id", actor.UserID))
	}
	return s.UserRepo.FindByID(id)
}
