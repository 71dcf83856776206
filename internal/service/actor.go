package service

import (
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/util"
)

// Actor 当前请求的操作者
type Actor struct {
	UserID      uint
	Role        model.UserRole
	IsSuperuser bool
}

func ActorFromClaims(claims *util.Claims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role, IsSuperuser: claims.IsSuperuser}
}

func ActorFromUser(user *model.User) Actor {
	return Actor{UserID: user.ID, Role: user.Role, IsSuperuser: user.IsSuperuser}
}

// 以下权限判断中超级管理员一律放行

func (a Actor) canView(s *model.InterviewSession) bool {
	return a.IsSuperuser || s.IsCandidate(a.UserID) || s.IsInterviewer(a.UserID)
}

// 面试官不能代替候选人作答
func (a Actor) canSubmit(s *model.InterviewSession) bool {
	return a.IsSuperuser || s.IsCandidate(a.UserID)
}

func (a Actor) canManage(s *model.InterviewSession) bool {
	return a.IsSuperuser || s.IsInterviewer(a.UserID)
}

func (a Actor) canAbandon(s *model.InterviewSession) bool {
	return a.IsSuperuser || s.IsCandidate(a.UserID)
}

func (a Actor) canCreateSession() bool {
	return a.IsSuperuser || a.Role == model.RoleInterviewer
}

func (a Actor) canEditQuestions() bool {
	return a.IsSuperuser || a.Role == model.RoleInterviewer
}
