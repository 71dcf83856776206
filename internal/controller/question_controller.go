package controller

import (
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/service"
	"mock_interview_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type QuestionController struct {
	QuestionService *service.QuestionService
}

func NewQuestionController(questionService *service.QuestionService) *QuestionController {
	return &QuestionController{QuestionService: questionService}
}

// @Summary 题目列表
// @Tags 题库
// @Produce json
// @Security BearerAuth
// @Param category query string false "分类"
// @Param difficulty query string false "难度" Enums(easy, medium, hard)
// @Param questionType query string false "题型" Enums(objective, multi_turn, assignment)
// @Param skip query int false "跳过条数" default(0)
// @Param limit query int false "每页数量" default(100)
// @Success 200 {object} util.Response{data=util.PageResponse{list=[]model.Question}}
// @Router /api/questions [get]
func (c *QuestionController) ListQuestions(ctx *gin.Context) {
	skip, limit, ok := pageParams(ctx)
	if !ok {
		return
	}

	questions, total, err := c.QuestionService.List(ctx.Request.Context(), service.QuestionListQuery{
		Category:     ctx.Query("category"),
		Difficulty:   model.Difficulty(ctx.Query("difficulty")),
		QuestionType: model.QuestionType(ctx.Query("questionType")),
		Skip:         skip,
		Limit:        limit,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: questions, Total: total, Skip: skip, Limit: limit})
}

// @Summary 语义搜索题目
// @Description 需要 postgres + pgvector 并开启向量搜索
// @Tags 题库
// @Produce json
// @Security BearerAuth
// @Param q query string true "查询文本"
// @Param limit query int false "返回条数" default(10)
// @Success 200 {object} util.Response{data=[]repository.QuestionMatch}
// @Failure 503 {object} util.Response "向量搜索未启用"
// @Router /api/questions/search [get]
func (c *QuestionController) SearchQuestions(ctx *gin.Context) {
	limit := 10
	if l := ctx.Query("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 {
			util.BadRequest(ctx, "invalid limit")
			return
		}
		limit = v
	}

	matches, err := c.QuestionService.Search(ctx.Request.Context(), ctx.Query("q"), limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, matches)
}

// @Summary 题目详情
// @Tags 题库
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Success 200 {object} util.Response{data=model.Question}
// @Router /api/questions/{id} [get]
func (c *QuestionController) GetQuestion(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	question, err := c.QuestionService.Get(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, question)
}

// @Summary 创建题目
// @Tags 题库
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.QuestionRequest true "题目"
// @Success 201 {object} util.Response{data=model.Question}
// @Router /api/questions [post]
func (c *QuestionController) CreateQuestion(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	var req service.QuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	question, err := c.QuestionService.Create(ctx.Request.Context(), actor, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, question)
}

// @Summary 更新题目
// @Tags 题库
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Param body body service.QuestionUpdateRequest true "题目"
// @Success 200 {object} util.Response{data=model.Question}
// @Router /api/questions/{id} [put]
func (c *QuestionController) UpdateQuestion(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req service.QuestionUpdateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	question, err := c.QuestionService.Update(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, question)
}

// @Summary 删除题目
// @Tags 题库
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/questions/{id} [delete]
func (c *QuestionController) DeleteQuestion(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	if err := c.QuestionService.Delete(ctx.Request.Context(), actor, id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"message": "Question deleted successfully"})
}
