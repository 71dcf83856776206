package controller

import (
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/service"
	"mock_interview_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

// UserController 管理员用户管理
type UserController struct {
	UserService *service.UserService
}

func NewUserController(userService *service.UserService) *UserController {
	return &UserController{UserService: userService}
}

// @Summary 用户列表
// @Tags 管理员
// @Produce json
// @Security BearerAuth
// @Param role query string false "角色" Enums(candidate, interviewer)
// @Param isActive query bool false "是否启用"
// @Param skip query int false "跳过条数" default(0)
// @Param limit query int false "每页数量" default(100)
// @Success 200 {object} util.Response{data=util.PageResponse{list=[]model.User}}
// @Router /api/admin/users [get]
func (c *UserController) GetUsers(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	skip, limit, ok := pageParams(ctx)
	if !ok {
		return
	}

	var isActive *bool
	if v := ctx.Query("isActive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			util.BadRequest(ctx, "invalid isActive")
			return
		}
		isActive = &b
	}

	users, total, err := c.UserService.GetUsers(actor, service.UserListQuery{
		Role:     model.UserRole(ctx.Query("role")),
		IsActive: isActive,
		Skip:     skip,
		Limit:    limit,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: users, Total: total, Skip: skip, Limit: limit})
}

// @Summary 修改用户
// @Description 角色、启用状态、管理员标志、重置密码
// @Tags 管理员
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Param body body service.AdminUserUpdate true "修改内容"
// @Success 200 {object} util.Response{data=model.User}
// @Router /api/admin/users/{id} [patch]
func (c *UserController) UpdateUser(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req service.AdminUserUpdate
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.UserService.UpdateUser(actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, user)
}
