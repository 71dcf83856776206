package controller

import (
	"mock_interview_backend/internal/service"
	"mock_interview_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

const refreshCookieName = "refresh_token"

type AuthController struct {
	AuthService *service.AuthService
	IsRelease   bool // 是否为生产环境
}

func NewAuthController(authService *service.AuthService, isRelease bool) *AuthController {
	return &AuthController{
		AuthService: authService,
		IsRelease:   isRelease,
	}
}

func (c *AuthController) setRefreshCookie(ctx *gin.Context, token string, maxAge int) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(refreshCookieName, token, maxAge, "/api/auth", "", c.IsRelease, true)
}

// Register godoc
// @Summary 注册新用户
// @Description 角色为 candidate 或 interviewer，默认 candidate
// @Tags 认证
// @Accept  json
// @Produce  json
// @Param   body body service.RegisterRequest true "用户注册信息"
// @Success 201 {object} util.Response{data=model.User} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 409 {object} util.Response "邮箱已被注册"
// @Router /api/auth/register [post]
func (c *AuthController) Register(ctx *gin.Context) {
	var req service.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.AuthService.Register(req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, user)
}

// Login godoc
// @Summary 用户登录
// @Description 返回访问令牌，刷新令牌写入 HttpOnly cookie
// @Tags 认证
// @Accept  json
// @Produce  json
// @Param   body body service.LoginRequest true "登录信息"
// @Success 200 {object} util.Response{data=service.TokenPair}
// @Failure 401 {object} util.Response "邮箱或密码错误"
// @Router /api/auth/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req service.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	tokens, err := c.AuthService.Login(req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	c.setRefreshCookie(ctx, tokens.RefreshToken, int(c.AuthService.Cfg.JWT.RefreshExpireTime.Seconds()))
	util.Success(ctx, tokens)
}

// Refresh godoc
// @Summary 刷新访问令牌
// @Tags 认证
// @Produce  json
// @Success 200 {object} util.Response{data=service.TokenPair}
// @Failure 401 {object} util.Response
// @Router /api/auth/refresh [post]
func (c *AuthController) Refresh(ctx *gin.Context) {
	token, _ := ctx.Cookie(refreshCookieName)
	tokens, err := c.AuthService.Refresh(token)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	c.setRefreshCookie(ctx, tokens.RefreshToken, int(c.AuthService.Cfg.JWT.RefreshExpireTime.Seconds()))
	util.Success(ctx, tokens)
}

// Logout godoc
// @Summary 退出登录
// @Tags 认证
// @Produce  json
// @Success 200 {object} util.Response
// @Router /api/auth/logout [post]
func (c *AuthController) Logout(ctx *gin.Context) {
	c.setRefreshCookie(ctx, "", -1)
	util.Success(ctx, gin.H{"message": "Successfully logged out"})
}

// Me godoc
// @Summary 当前用户
// @Tags 认证
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=model.User}
// @Router /api/auth/me [get]
func (c *AuthController) Me(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	user, err := c.AuthService.GetCurrentUser(actor.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, user)
}
