package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"learning_progress_backend/internal/config"
	"learning_progress_backend/internal/controller"
	"learning_progress_backend/internal/repository"
	"learning_progress_backend/internal/service"
	"learning_progress_backend/pkg/configwatcher"
	"learning_progress_backend/pkg/database"
	"learning_progress_backend/pkg/identity"
	"learning_progress_backend/pkg/lock"
	"learning_progress_backend/pkg/logger"
	"learning_progress_backend/pkg/monitoring"
	"learning_progress_backend/pkg/security"
	"learning_progress_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)

	cron   *cron.Cron
	tracer *sdktrace.TracerProvider
	stop   chan struct{}
}

type repositories struct {
	content     *repository.ContentRepository
	tracks      *repository.LessonTrackRepository
	aggregates  *repository.AggregateRepository
	enrollments *repository.EnrollmentRepository
	cohorts     *repository.CohortRepository
}

type services struct {
	eligibility *service.EligibilityService
	rollup      *service.RollupService
	dispatcher  *service.RollupDispatcher
	attempt     *service.AttemptService
	enrollment  *service.EnrollmentService
	tracking    *service.TrackingService
	report      *service.ReportService
	repair      *service.RepairService
}

type controllers struct {
	tracking   *controller.TrackingController
	enrollment *controller.EnrollmentController
	report     *controller.ReportController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		content:     repository.NewContentRepository(db),
		tracks:      repository.NewLessonTrackRepository(db),
		aggregates:  repository.NewAggregateRepository(db),
		enrollments: repository.NewEnrollmentRepository(db),
		cohorts:     repository.NewCohortRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}
	tracking := cfg.Tracking
	storeTimeout := tracking.StoreTimeout()

	// 未启用 Redis 时退化为进程内锁，只适用于单实例部署
	locker := lock.New(rdb, tracking.LockTTL(), tracking.LockWait())

	s.eligibility = service.NewEligibilityService(repos.content, repos.tracks, repos.aggregates)
	s.rollup = service.NewRollupService(db, repos.content, repos.tracks, repos.aggregates, locker, storeTimeout)
	s.dispatcher = service.NewRollupDispatcher(s.rollup, tracking)
	s.attempt = service.NewAttemptService(db, repos.content, repos.tracks, repos.enrollments, s.eligibility, s.dispatcher, locker, tracking)
	s.enrollment = service.NewEnrollmentService(db, repos.content, repos.enrollments, repos.tracks, repos.aggregates, s.eligibility, storeTimeout)
	s.tracking = service.NewTrackingService(repos.content, repos.tracks, repos.aggregates, s.eligibility, storeTimeout)

	// 接口值不能持有 nil 的 *identity.Client
	var directory service.LearnerDirectory
	if cfg.Identity.BaseURL != "" {
		directory = identity.NewClient(cfg.Identity)
	}
	s.report = service.NewReportService(repos.content, repos.tracks, repos.aggregates, repos.enrollments, repos.cohorts, directory, storeTimeout)
	s.repair = service.NewRepairService(repos.content, repos.enrollments, repos.tracks, s.rollup, storeTimeout)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		tracking:   controller.NewTrackingController(s.attempt, s.tracking),
		enrollment: controller.NewEnrollmentController(s.enrollment),
		report:     controller.NewReportController(s.report, s.repair),
		health:     controller.NewHealthController(db, rdb, s.dispatcher),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 定时重算最近有变更的学员进度
func (a *App) startBackgroundTasks(s *services, cfg *config.Config) {
	if cfg.Tracking.RepairCron == "" {
		return
	}

	a.cron = cron.New()
	_, err := a.cron.AddFunc(cfg.Tracking.RepairCron, func() {
		processed, err := s.repair.RecalculateActive(context.Background())
		if err != nil {
			logger.Log.Error("Scheduled repair failed", zap.Int("processed", processed), zap.Error(err))
			logger.Report(err, map[string]interface{}{"job": "repair"})
			return
		}
		logger.Log.Info("Scheduled repair finished", zap.Int("processed", processed))
	})
	if err != nil {
		logger.Log.Error("Invalid repair cron, scheduled repair disabled",
			zap.String("repair_cron", cfg.Tracking.RepairCron), zap.Error(err))
		a.cron = nil
		return
	}
	a.cron.Start()
}

// watchConfig 配置文件变更时依次执行已注册的回调
func (a *App) watchConfig(configPath string) {
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		a.services.dispatcher.SetMode(newCfg.Tracking.RollupMode)
	})

	go func() {
		err := configwatcher.WatchConfig(configPath, func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		}, a.stop)
		if err != nil {
			logger.Log.Warn("Config watcher disabled", zap.String("path", configPath), zap.Error(err))
		}
	}()
}

// New 用已建立的连接装配应用，测试直接传入 sqlite
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *App {
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		stop:   make(chan struct{}),
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers)

	return app
}

func NewApp(cfg *config.Config, configDir string) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if cfg.ForceMigrate || cfg.Server.Mode == "debug" {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Log.Info("Database migrated")
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := New(cfg, db, rdb)
	if cfg.MigrateOnly {
		return app
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("learning-progress", cfg.Tracing)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.startBackgroundTasks(app.services, cfg)
	app.watchConfig(filepath.Join(configDir, "config.yaml"))

	return app
}

// Close 释放后台资源；汇总队列会先执行完
func (a *App) Close() {
	select {
	case <-a.stop:
		return
	default:
		close(a.stop)
	}

	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if a.services != nil {
		a.services.dispatcher.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	// 请求处理完后再排空汇总队列
	a.Close()

	logger.Log.Info("Server exiting")
}
