package app

import (
	"mock_interview_backend/docs"
	"mock_interview_backend/internal/config"
	"mock_interview_backend/internal/middleware"
	"mock_interview_backend/internal/model"
	"mock_interview_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要登录的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg, repos.user))
	{
		authGroup.GET("/auth/me", c.auth.Me)

		a.registerQuestionRoutes(authGroup, c)
		a.registerSessionRoutes(authGroup, c)

		authGroup.POST("/uploads/answers", c.upload.UploadAnswer)
		authGroup.DELETE("/uploads/answers", c.upload.DeleteAnswer)
	}

	// 3. 管理员相关接口
	a.registerAdminRoutes(router, c, repos, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)

		auth := public.Group("/auth")
		auth.POST("/register", c.auth.Register)
		auth.POST("/login", c.auth.Login)
		auth.POST("/refresh", c.auth.Refresh)
		auth.POST("/logout", c.auth.Logout)
	}
}

func (a *App) registerQuestionRoutes(rg *gin.RouterGroup, c *controllers) {
	questions := rg.Group("/questions")
	{
		questions.GET("", c.question.ListQuestions)
		questions.GET("/search", c.question.SearchQuestions)
		questions.GET("/:id", c.question.GetQuestion)

		// 题库维护
		editors := questions.Group("")
		editors.Use(middleware.RoleMiddleware(model.RoleInterviewer))
		editors.POST("", c.question.CreateQuestion)
		editors.PUT("/:id", c.question.UpdateQuestion)

		questions.DELETE("/:id", middleware.AdminMiddleware(), c.question.DeleteQuestion)
	}
}

// registerSessionRoutes 参与者校验在 service 层完成
func (a *App) registerSessionRoutes(rg *gin.RouterGroup, c *controllers) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", middleware.RoleMiddleware(model.RoleInterviewer), c.session.CreateSession)
		sessions.GET("", c.session.ListSessions)
		sessions.GET("/:id", c.session.GetSession)
		sessions.PUT("/:id", c.session.UpdateSession)
		sessions.DELETE("/:id", middleware.AdminMiddleware(), c.session.DeleteSession)

		sessions.POST("/:id/start", c.session.StartSession)
		sessions.POST("/:id/submit-answer", c.session.SubmitAnswer)
		sessions.POST("/:id/evaluate", c.session.EvaluateAnswer)
		sessions.POST("/:id/follow-up", c.session.FollowUp)
		sessions.POST("/:id/cancel", c.session.CancelSession)
		sessions.POST("/:id/abandon", c.session.AbandonSession)
		sessions.GET("/:id/summary", c.session.GetSummary)
		sessions.GET("/:id/events", c.session.Events)
	}
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg, repos.user), middleware.AdminMiddleware())
	{
		admin.GET("/users", c.user.GetUsers)
		admin.PATCH("/users/:id", c.user.UpdateUser)
	}
}
