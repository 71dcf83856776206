package controller

import (
	"mock_interview_backend/internal/service"
	"mock_interview_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

// parseID 解析路径参数中的 ID，失败时已写入 400 响应
func parseID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// currentActor 未登录时已写入 401 响应
func currentActor(ctx *gin.Context) (service.Actor, bool) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return service.Actor{}, false
	}
	return service.ActorFromClaims(claims), true
}

// pageParams skip/limit 查询参数，非法值返回 false 并写入 400 响应
func pageParams(ctx *gin.Context) (int, int, bool) {
	skip, limit := 0, util.DefaultPageLimit
	if s := ctx.Query("skip"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			util.BadRequest(ctx, "invalid skip")
			return 0, 0, false
		}
		skip = v
	}
	if l := ctx.Query("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 {
			util.BadRequest(ctx, "invalid limit")
			return 0, 0, false
		}
		limit = v
	}
	skip, limit = util.ClampPage(skip, limit)
	return skip, limit, true
}
