package app

import (
	"context"
	"log"
	"mock_interview_backend/internal/config"
	"mock_interview_backend/internal/controller"
	"mock_interview_backend/internal/repository"
	"mock_interview_backend/internal/service"
	"mock_interview_backend/pkg/cache"
	"mock_interview_backend/pkg/configwatcher"
	"mock_interview_backend/pkg/database"
	"mock_interview_backend/pkg/logger"
	"mock_interview_backend/pkg/monitoring"
	"mock_interview_backend/pkg/security"
	"mock_interview_backend/pkg/tracing"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configDir = "configs"

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Cache           *cache.Store
	repos           *repositories
	services        *services
	tracer          *sdktrace.TracerProvider
	stopWatcher     context.CancelFunc
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user      *repository.UserRepository
	question  *repository.QuestionRepository
	session   *repository.SessionRepository
	response  *repository.ResponseRepository
	embedding *repository.EmbeddingRepository
}

type services struct {
	auth       *service.AuthService
	user       *service.UserService
	storage    *service.StorageService
	upload     *service.UploadService
	evaluators *service.EvaluatorService
	index      *service.QuestionIndex
	question   *service.QuestionService
	session    *service.SessionService
	hub        *service.SessionHub
}

type controllers struct {
	auth     *controller.AuthController
	user     *controller.UserController
	question *controller.QuestionController
	session  *controller.SessionController
	upload   *controller.UploadController
	health   *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:      repository.NewUserRepository(db),
		question:  repository.NewQuestionRepository(db),
		session:   repository.NewSessionRepository(db),
		response:  repository.NewResponseRepository(db),
		embedding: repository.NewEmbeddingRepository(db),
	}
}

// initQuestionIndex 仅 postgres + pgvector 且配置了 Gemini 时启用
func (a *App) initQuestionIndex(repos *repositories, cfg *config.Config) *service.QuestionIndex {
	if !cfg.VectorSearch.Enabled {
		return service.NewDisabledQuestionIndex()
	}
	if cfg.Database.Driver != "postgres" {
		logger.Log.Warn("Vector search requires postgres, disabled", zap.String("driver", cfg.Database.Driver))
		return service.NewDisabledQuestionIndex()
	}

	gemini, err := service.NewGeminiClient(context.Background(), cfg.Gemini, cfg.Evaluator.Timeout())
	if err != nil {
		logger.Log.Warn("Embedding client unavailable, vector search disabled", zap.Error(err))
		return service.NewDisabledQuestionIndex()
	}
	return service.NewQuestionIndex(repos.embedding, repos.question, gemini, cfg.Gemini.EmbeddingModel, cfg.VectorSearch.Dimensions)
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.user = service.NewUserService(repos.user)
	s.upload = service.NewUploadService(s.storage, repos.session, cfg.Storage.MaxSizeMB)
	s.evaluators = service.NewEvaluatorService(cfg)
	s.index = a.initQuestionIndex(repos, cfg)

	s.hub = service.NewSessionHub(rdb)
	go s.hub.Run()

	// redis 不可用时不加锁、不计数、不缓存
	var guard service.EvaluationGuard
	var questionCache service.QuestionCache
	if a.Cache != nil {
		guard = a.Cache
		questionCache = a.Cache
	}

	s.question = service.NewQuestionService(repos.question, s.index, questionCache)
	s.session = service.NewSessionService(
		repos.session,
		repos.response,
		repos.question,
		repos.user,
		db,
		s.evaluators,
		guard,
		s.hub,
	)

	a.RegisterConfigCallback(logger.Reload)
	a.RegisterConfigCallback(s.evaluators.Reload)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	var pinger controller.Pinger
	if a.Cache != nil {
		pinger = a.Cache
	}

	return &controllers{
		auth:     controller.NewAuthController(s.auth, a.Config.IsRelease()),
		user:     controller.NewUserController(s.user),
		question: controller.NewQuestionController(s.question),
		session:  controller.NewSessionController(s.session, s.hub),
		upload:   controller.NewUploadController(s.upload),
		health:   controller.NewHealthController(db, pinger),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// seed 导入种子题库并确保存在超级管理员
func (a *App) seed(cfg *config.Config) {
	if cfg.Seed.QuestionsFile != "" {
		if _, err := os.Stat(cfg.Seed.QuestionsFile); err == nil {
			if _, err := database.SeedQuestions(a.DB, cfg.Seed.QuestionsFile, cfg.ForceSeed); err != nil {
				logger.Log.Error("Failed to seed questions", zap.Error(err))
			}
		} else if cfg.ForceSeed {
			logger.Log.Warn("Seed file not found", zap.String("file", cfg.Seed.QuestionsFile))
		}
	}

	if err := database.EnsureAdmin(a.DB, &cfg.Admin); err != nil {
		logger.Log.Error("Failed to ensure admin account", zap.Error(err))
	}
}

// startBackgroundTasks 配置热更新，向量索引补齐
func (a *App) startBackgroundTasks(s *services) {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopWatcher = cancel

	go func() {
		err := configwatcher.WatchConfig(ctx, filepath.Join(configDir, "config.yaml"), func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		})
		if err != nil {
			logger.Log.Warn("Config watcher stopped", zap.Error(err))
		}
	}()

	if s.index.Enabled() {
		go func() {
			n, err := s.index.Backfill(ctx, 200*time.Millisecond)
			if err != nil {
				logger.Log.Warn("Embedding backfill failed", zap.Error(err))
				return
			}
			logger.Log.Info("Embedding backfill finished", zap.Int("indexed", n))
		}()
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	migrate := !cfg.IsRelease() || cfg.ForceMigrate
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}

	if cfg.MigrateOnly {
		return app
	}

	app.seed(cfg)

	// redis 为可选依赖
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Warn("Redis unavailable, running without lock, cache and cross-instance events", zap.Error(err))
	} else {
		app.Redis = rdb
		app.Cache = cache.NewStore(rdb, "mock_interview:")
	}

	repos := app.initRepositories(db)
	app.repos = repos
	services := app.initServices(repos, cfg, db, app.Redis)
	app.services = services
	controllers := app.initControllers(services, db)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Error("Failed to initialize tracing", zap.Error(err))
		} else {
			app.tracer = tp
		}
	}

	if cfg.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if a.stopWatcher != nil {
		a.stopWatcher()
	}

	// 关闭 WebSocket 连接
	if a.services != nil && a.services.hub != nil {
		a.services.hub.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Cache != nil {
		a.Cache.Close()
	}

	log.Println("Server exiting")
}
