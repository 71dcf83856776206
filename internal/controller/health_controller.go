package controller

import (
	"context"
	"mock_interview_backend/internal/util"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Pinger redis 等依赖的连通性检查
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	DB    *gorm.DB
	Redis Pinger
}

func NewHealthController(db *gorm.DB, redis Pinger) *HealthController {
	return &HealthController{DB: db, Redis: redis}
}

// @Summary 健康检查
// @Description 检查数据库与 Redis 状态，Redis 不可用时服务降级但仍返回 200
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	// 检查数据库连接
	sqlDB, err := c.DB.DB()
	if err != nil {
		util.InternalServerError(ctx)
		return
	}

	if err := sqlDB.Ping(); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	status := "ok"
	redisStatus := "disabled"
	if c.Redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		if err := c.Redis.Ping(pingCtx); err != nil {
			redisStatus = "down"
			status = "degraded"
		} else {
			redisStatus = "up"
		}
	}

	util.Success(ctx, gin.H{
		"status": status,
		"components": gin.H{
			"database": "up",
			"redis":    redisStatus,
		},
	})
}
