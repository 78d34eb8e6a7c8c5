package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"video_quiz_backend/internal/config"
	"video_quiz_backend/internal/controller"
	"video_quiz_backend/internal/repository"
	"video_quiz_backend/internal/service"
	"video_quiz_backend/internal/util"
	"video_quiz_backend/pkg/configwatcher"
	"video_quiz_backend/pkg/database"
	"video_quiz_backend/pkg/logger"
	"video_quiz_backend/pkg/monitoring"
	"video_quiz_backend/pkg/security"
	"video_quiz_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configFile = "configs/config.yaml"

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
	tracer          *sdktrace.TracerProvider
	cancel          context.CancelFunc
}

type repositories struct {
	video   *repository.VideoRepository
	quizRun *repository.QuizRunRepository
	qaCache *repository.QAAnswerCache
}

type services struct {
	settings   *service.PipelineSettings
	sessions   *service.SessionStore
	ai         *service.AIService
	storage    *service.StorageService
	youtube    *service.YouTubeTranscriptService
	video      *service.VideoService
	generation *service.QuestionGenerationService
	evaluation *service.EvaluationService
	quiz       *service.QuizService
	qa         *service.QAService
}

type controllers struct {
	video  *controller.VideoController
	quiz   *controller.QuizController
	qa     *controller.QAController
	health *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	repos := &repositories{
		video:   repository.NewVideoRepository(db),
		quizRun: repository.NewQuizRunRepository(db),
	}
	if rdb != nil {
		repos.qaCache = repository.NewQAAnswerCache(rdb)
	}
	return repos
}

func (a *App) initServices(ctx context.Context, repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.settings = service.NewPipelineSettings(cfg.Pipeline)
	s.sessions = service.NewSessionStore(repos.quizRun, repos.video)
	s.sessions.SetLimits(cfg.Session.MaxSessions, time.Duration(cfg.Session.IdleTTLMinutes)*time.Minute)
	s.ai = service.NewAIService(cfg.AI)
	s.storage = service.NewStorageService(ctx, &cfg.Storage)
	s.youtube = service.NewYouTubeTranscriptService(cfg.YouTube.Language, time.Duration(cfg.AI.TimeoutSeconds)*time.Second)
	s.video = service.NewVideoService(repos.video, s.storage, s.youtube, s.sessions, s.settings)
	s.generation = service.NewQuestionGenerationService(s.ai, s.settings)
	s.evaluation = service.NewEvaluationService(s.ai, s.settings)
	s.quiz = service.NewQuizService(repos.video, repos.quizRun, s.sessions, s.generation, s.evaluation)

	// 未启用 Redis 时不缓存问答结果
	var cache service.AnswerCache
	if repos.qaCache != nil {
		cache = repos.qaCache
	}
	s.qa = service.NewQAService(s.ai, s.video, cache, s.settings)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		video:  controller.NewVideoController(s.video),
		quiz:   controller.NewQuizController(s.quiz),
		qa:     controller.NewQAController(s.qa),
		health: controller.NewHealthController(db, rdb),
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

// startBackgroundTasks 监听配置文件，出题与判分参数热更新
func (a *App) startBackgroundTasks(ctx context.Context, s *services) {
	a.RegisterConfigCallback(func(cfg *config.Config) {
		if err := s.settings.Update(cfg.Pipeline); err != nil {
			logger.Log.Error("Rejected pipeline config update", zap.Error(err))
			return
		}
		logger.Log.Info("Pipeline config updated")
	})

	go func() {
		err := configwatcher.WatchConfig(ctx, configFile, func(cfg *config.Config) {
			for _, callback := range a.configCallbacks {
				callback(cfg)
			}
		})
		if err != nil {
			logger.Log.Warn("Config hot reload disabled", zap.Error(err))
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	if err := logger.InitLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// release 模式下默认不自动迁移，需通过 --migrate 显式开启
	if cfg.Server.Mode != gin.ReleaseMode || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config: cfg,
		DB:     db,
		cancel: cancel,
	}
	if cfg.MigrateOnly {
		return app
	}

	if cfg.Redis.Enabled {
		rdb, err := database.InitRedis(ctx, &cfg.Redis)
		if err != nil {
			logger.Log.Warn("Redis unavailable, QA cache disabled", zap.Error(err))
		} else {
			app.Redis = rdb
		}
	}

	// 没有 ffmpeg 时只能上传字幕文件
	if version, err := util.GetFFmpegVersion(); err != nil {
		logger.Log.Warn("FFmpeg not found, embedded subtitle extraction disabled", zap.Error(err))
	} else {
		logger.Log.Info("FFmpeg detected", zap.String("version", version))
	}

	repos := app.initRepositories(db, app.Redis)
	services := app.initServices(ctx, repos, cfg)
	app.services = services
	controllers := app.initControllers(services, db, app.Redis)

	// 监控初始化
	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("video-quiz-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(router, controllers)

	if services.storage.IsLocal() {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(ctx, services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	// 停止配置监听等后台任务
	a.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}
