package controller

import (
	"errors"
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/service"
	"mock_interview_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SessionController struct {
	SessionService *service.SessionService
	Hub            *service.SessionHub
}

func NewSessionController(sessionService *service.SessionService, hub *service.SessionHub) *SessionController {
	return &SessionController{SessionService: sessionService, Hub: hub}
}

// @Summary 创建面试会话
// @Description 面试官或管理员创建草稿会话，题目 ID 重复时自动去重
// @Tags 面试会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateSessionRequest true "会话信息"
// @Success 201 {object} util.Response{data=model.InterviewSession}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response "候选人、面试官或题目不存在"
// @Router /api/sessions [post]
func (c *SessionController) CreateSession(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	var req service.CreateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session, err := c.SessionService.Create(ctx.Request.Context(), actor, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, session)
}

// @Summary 会话列表
// @Description 非管理员只能按自己的 ID 过滤
// @Tags 面试会话
// @Produce json
// @Security BearerAuth
// @Param status query string false "状态" Enums(draft, in_progress, completed, cancelled, abandoned)
// @Param candidateId query int false "候选人ID"
// @Param interviewerId query int false "面试官ID"
// @Param skip query int false "跳过条数" default(0)
// @Param limit query int false "每页数量" default(100)
// @Success 200 {object} util.Response{data=util.PageResponse{list=[]service.SessionSummary}}
// @Router /api/sessions [get]
func (c *SessionController) ListSessions(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	skip, limit, ok := pageParams(ctx)
	if !ok {
		return
	}
	candidateID, err := util.ParseUintPtr(ctx.Query("candidateId"))
	if err != nil {
		util.BadRequest(ctx, "invalid candidateId")
		return
	}
	interviewerID, err := util.ParseUintPtr(ctx.Query("interviewerId"))
	if err != nil {
		util.BadRequest(ctx, "invalid interviewerId")
		return
	}

	summaries, total, err := c.SessionService.List(ctx.Request.Context(), actor, service.SessionListQuery{
		Status:        model.SessionStatus(ctx.Query("status")),
		CandidateID:   candidateID,
		InterviewerID: interviewerID,
		Skip:          skip,
		Limit:         limit,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: summaries, Total: total, Skip: skip, Limit: limit})
}

// @Summary 会话详情
// @Tags 面试会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response{data=model.InterviewSession}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/sessions/{id} [get]
func (c *SessionController) GetSession(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	session, err := c.SessionService.Get(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// @Summary 更新会话信息
// @Description 题目集合仅在草稿状态可修改
// @Tags 面试会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param body body service.UpdateSessionRequest true "更新内容"
// @Success 200 {object} util.Response{data=model.InterviewSession}
// @Failure 409 {object} util.Response "会话已开始"
// @Router /api/sessions/{id} [put]
func (c *SessionController) UpdateSession(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req service.UpdateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session, err := c.SessionService.Update(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// @Summary 删除会话
// @Tags 面试会话
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id} [delete]
func (c *SessionController) DeleteSession(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	if err := c.SessionService.Delete(ctx.Request.Context(), actor, id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"message": "Session deleted successfully"})
}

// @Summary 开始面试
// @Tags 面试会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response{data=model.InterviewSession}
// @Failure 400 {object} util.Response "会话没有题目"
// @Failure 409 {object} util.Response "会话不是草稿状态"
// @Router /api/sessions/{id}/start [post]
func (c *SessionController) StartSession(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	session, err := c.SessionService.Start(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// @Summary 提交答案
// @Description 同一题目重复提交会覆盖未评分的答案；全部题目作答后会话自动完成
// @Tags 面试会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param body body service.SubmitAnswerRequest true "答案"
// @Success 200 {object} util.Response{data=service.SubmitAnswerResult}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response "题目不属于该会话"
// @Failure 409 {object} util.Response "会话未进行中或答案已评分"
// @Router /api/sessions/{id}/submit-answer [post]
func (c *SessionController) SubmitAnswer(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req service.SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.SessionService.SubmitAnswer(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 评估答案
// @Description 评估服务不可用时返回 202 与临时评估结果，答案保持未评分
// @Tags 面试会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param body body service.EvaluateAnswerRequest true "题目"
// @Success 200 {object} util.Response{data=service.EvaluationOutcome}
// @Success 202 {object} util.Response{data=service.EvaluationOutcome} "临时评估结果"
// @Failure 404 {object} util.Response "尚未作答"
// @Failure 409 {object} util.Response "已评分或正在评估"
// @Failure 429 {object} util.Response "评估次数过多"
// @Router /api/sessions/{id}/evaluate [post]
func (c *SessionController) EvaluateAnswer(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req service.EvaluateAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	outcome, err := c.SessionService.EvaluateAnswer(ctx.Request.Context(), actor, id, req)
	if errors.Is(err, util.ErrEvaluationUnavailable) && outcome != nil {
		util.Accepted(ctx, "evaluation service unavailable, provisional result returned", outcome)
		return
	}
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, outcome)
}

// @Summary 生成追问
// @Tags 面试会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param body body service.FollowUpRequest true "题目"
// @Success 200 {object} util.Response{data=service.FollowUpResult}
// @Router /api/sessions/{id}/follow-up [post]
func (c *SessionController) FollowUp(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req service.FollowUpRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.SessionService.FollowUp(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 取消会话
// @Tags 面试会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response{data=model.InterviewSession}
// @Router /api/sessions/{id}/cancel [post]
func (c *SessionController) CancelSession(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	session, err := c.SessionService.Cancel(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// @Summary 放弃会话
// @Tags 面试会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response{data=model.InterviewSession}
// @Router /api/sessions/{id}/abandon [post]
func (c *SessionController) AbandonSession(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	session, err := c.SessionService.Abandon(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// @Summary 会话统计
// @Tags 面试会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionSummary}
// @Router /api/sessions/{id}/summary [get]
func (c *SessionController) GetSummary(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	summary, err := c.SessionService.Summary(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}

// @Summary 会话事件推送
// @Description WebSocket，令牌通过 token 查询参数传递
// @Tags 面试会话
// @Param id path int true "会话ID"
// @Param token query string true "访问令牌"
// @Router /api/sessions/{id}/events [get]
func (c *SessionController) Events(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	// 复用详情接口的权限判断
	if _, err := c.SessionService.Get(ctx.Request.Context(), actor, id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	service.ServeWs(c.Hub, ctx.Writer, ctx.Request, id, actor.UserID)
}
