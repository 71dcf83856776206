package middleware

import (
	"mock_interview_backend/internal/config"
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/util"
	"mock_interview_backend/pkg/logger"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserLoader 按 ID 读取用户，UserRepository 实现
type UserLoader interface {
	FindByID(id uint) (*model.User, error)
}

// AuthMiddleware 校验访问令牌并加载用户；停用账号直接拒绝
func AuthMiddleware(cfg *config.Config, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		// websocket 无法设置请求头
		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, cfg.JWT.Secret)
		if err != nil || claims.TokenType != util.TokenTypeAccess {
			logger.Log.Debug("JWT rejected", zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		user, err := users.FindByID(claims.UserID)
		if err != nil || !user.IsActive {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		// 角色与管理员标志以数据库为准，令牌签发后的变更立即生效
		claims.Role = user.Role
		claims.IsSuperuser = user.IsSuperuser
		c.Set("user", claims)
		c.Set("currentUser", user)
		c.Next()
	}
}

// RoleMiddleware 超级管理员直接放行
func RoleMiddleware(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		hasRole := user.IsSuperuser
		for _, role := range roles {
			if user.Role == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}
		if !user.IsSuperuser {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
