package service

import (
	"errors"
	"fmt"
	"mock_interview_backend/internal/config"
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/repository"
	"mock_interview_backend/internal/util"
	"mock_interview_backend/pkg/logger"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	UserRepo *repository.UserRepository
	Cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Cfg:      cfg,
	}
}

type RegisterRequest struct {
	Email    string         `json:"email" binding:"required,email"`
	Username string         `json:"username" binding:"required"`
	FullName string         `json:"fullName"`
	Password string         `json:"password" binding:"required,min=6"`
	Role     model.UserRole `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenPair RefreshToken 通过 HttpOnly cookie 下发，不出现在响应体中
type TokenPair struct {
	AccessToken  string      `json:"accessToken"`
	TokenType    string      `json:"tokenType"`
	ExpiresIn    int64       `json:"expiresIn"` // 秒
	RefreshToken string      `json:"-"`
	User         *model.User `json:"user"`
}

func (s *AuthService) Register(req RegisterRequest) (*model.User, error) {
	role := req.Role
	if role == "" {
		role = model.RoleCandidate
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", role, util.ErrInvalidArgument)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	_, err := s.UserRepo.FindByEmail(email)
	if err == nil {
		return nil, util.ErrEmailRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:    email,
		Username: strings.TrimSpace(req.Username),
		FullName: req.FullName,
		Password: string(hashedPassword),
		Role:     role,
		IsActive: true,
	}
	if err := s.UserRepo.Create(user); err != nil {
		return nil, err
	}
	logger.Log.Info("User registered", zap.Uint("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}

func (s *AuthService) Login(req LoginRequest) (*TokenPair, error) {
	user, err := s.UserRepo.FindByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, util.ErrUserInactive
	}

	if err := s.UserRepo.UpdateLastLogin(user.ID); err != nil {
		logger.Log.Warn("Failed to update last login", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	return s.issueTokens(user)
}

// Refresh 使用刷新令牌换发新的令牌对
func (s *AuthService) Refresh(refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, util.ErrInvalidCredentials
	}
	claims, err := util.ParseJWT(refreshToken, s.Cfg.JWT.Secret)
	if err != nil || claims.TokenType != util.TokenTypeRefresh {
		return nil, util.ErrInvalidCredentials
	}

	user, err := s.UserRepo.FindByID(claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, util.ErrUserInactive
	}
	return s.issueTokens(user)
}

func (s *AuthService) issueTokens(user *model.User) (*TokenPair, error) {
	access, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}
	refresh, err := util.GenerateRefreshToken(user, s.Cfg.JWT.Secret, s.Cfg.JWT.RefreshExpireTime)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.Cfg.JWT.ExpireTime.Seconds()),
		RefreshToken: refresh,
		User:         user,
	}, nil
}

func (s *AuthService) GetCurrentUser(userID uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
