package util

import "errors"

var (
	ErrNotFound                = errors.New("resource not found")
	ErrInvalidState            = errors.New("invalid state")
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrForbidden               = errors.New("forbidden")
	ErrEvaluationUnavailable   = errors.New("evaluation service unavailable")
	ErrEvaluationInProgress    = errors.New("evaluation already in progress")
	ErrTooManyEvaluations      = errors.New("too many evaluation attempts")
	ErrVectorSearchUnavailable = errors.New("vector search unavailable")

	ErrUserNotFound       = errors.New("用户不存在")
	ErrEmailRegistered    = errors.New("该邮箱已被注册")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is inactive")
)
