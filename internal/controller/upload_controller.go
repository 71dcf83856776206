package controller

import (
	"mock_interview_backend/internal/service"
	"mock_interview_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type UploadController struct {
	UploadService *service.UploadService
}

func NewUploadController(uploadService *service.UploadService) *UploadController {
	return &UploadController{UploadService: uploadService}
}

type DeleteAttachmentRequest struct {
	Key string `json:"key" binding:"required"`
}

// @Summary 上传答题附件
// @Description 支持音视频、图片、文本与 PDF；音视频返回时长，PDF 返回前几页文本
// @Tags 上传
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param sessionId formData int true "会话ID"
// @Param file formData file true "附件"
// @Success 201 {object} util.Response{data=service.AnswerAttachment}
// @Router /api/uploads/answers [post]
func (c *UploadController) UploadAnswer(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	sessionID, err := strconv.ParseUint(ctx.PostForm("sessionId"), 10, 32)
	if err != nil || sessionID == 0 {
		util.BadRequest(ctx, "invalid sessionId")
		return
	}
	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}

	attachment, err := c.UploadService.UploadAnswer(ctx.Request.Context(), actor, uint(sessionID), file)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, attachment)
}

// @Summary 删除答题附件
// @Tags 上传
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body DeleteAttachmentRequest true "附件 key"
// @Success 200 {object} util.Response
// @Router /api/uploads/answers [delete]
func (c *UploadController) DeleteAnswer(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	var req DeleteAttachmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.UploadService.DeleteAnswer(ctx.Request.Context(), actor, req.Key); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"message": "Attachment deleted successfully"})
}
