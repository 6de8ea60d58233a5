package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"taskmanager/internal/api/auth"
	"taskmanager/internal/api/middleware"
	"taskmanager/internal/config"
	"taskmanager/internal/model"
	"taskmanager/internal/pkg/mail"
	"taskmanager/internal/pkg/metrics"
	"taskmanager/internal/pkg/ratelimit"
	"taskmanager/internal/pkg/tokenstore"
	"taskmanager/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端以及 Gin 路由引擎。
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *gorm.DB
	rdb     *redis.Client
	router  *gin.Engine
	auth    *auth.Handler
	tasks   TaskService
	limiter middleware.Limiter
}

// TaskService 是任务相关接口的服务层，便于测试替换。
type TaskService interface {
	List(ctx context.Context, userID uint, filters service.TaskFilters) (*service.TaskPage, error)
	Create(ctx context.Context, userID uint, in service.TaskInput) (*model.Task, error)
	Get(ctx context.Context, userID, taskID uint) (*model.Task, error)
	Update(ctx context.Context, userID, taskID uint, in service.TaskInput) (*model.Task, error)
	Share(ctx context.Context, ownerID uint, taskIDs []uint, username string) (int, error)
	Delete(ctx context.Context, userID, taskID uint) error
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 初始化服务层与 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.Task{}, &model.SharedTask{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	mailer := mail.NewEmailNotifier(&cfg.Email, logger)
	tokens := tokenstore.New(rdb)
	users := service.NewUserService(db, mailer, logger, cfg.App.OTPTTL)
	tasks := service.NewTaskService(db, logger)

	// 初始化 Prometheus 指标
	metrics.InitMetrics()

	var limiter middleware.Limiter
	if cfg.App.AuthRateLimit > 0 {
		limiter = ratelimit.NewRedisRateLimiter(rdb, "taskmanager:ratelimit:auth:",
			cfg.App.AuthRateLimit, cfg.App.AuthRateBurst, nil)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		rdb:     rdb,
		router:  r,
		auth:    auth.NewHandler(users, tokens, cfg.Security.JWTSecret, cfg.App.TokenTTL, logger),
		tasks:   tasks,
		limiter: limiter,
	}
	s.registerRoutes(tokens)
	return s, nil
}

// Run 启动 HTTP 服务器并开始监听请求。
func (s *Server) Run() error {
	s.logger.Info("api server listening", slog.String("addr", s.cfg.App.HTTPAddr))
	return s.router.Run(s.cfg.App.HTTPAddr)
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes(tokens middleware.TokenChecker) {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	v1 := s.router.Group("/api/v1")

	public := v1.Group("/auth")
	if s.limiter != nil {
		public.Use(middleware.AuthRateLimit(s.limiter, s.logger))
	}
	public.POST("/register", s.auth.Register)
	public.POST("/verify-email", s.auth.VerifyEmail)
	public.POST("/resend-code", s.auth.ResendCode)
	public.POST("/login", s.auth.Login)
	public.POST("/forgot-password", s.auth.ForgotPassword)
	public.POST("/reset-password", s.auth.ResetPassword)

	authMW := middleware.AuthMiddleware(s.cfg.Security.JWTSecret, tokens)

	account := v1.Group("/auth")
	account.Use(authMW)
	account.GET("/profile", s.auth.Profile)
	account.PUT("/update-profile", s.auth.UpdateProfile)
	account.PUT("/change-password", s.auth.ChangePassword)
	account.POST("/logout", s.auth.Logout)

	tasks := v1.Group("/tasks")
	tasks.Use(authMW)
	tasks.GET("", s.handleListTasks)
	tasks.POST("", s.handleCreateTask)
	tasks.GET("/:id", s.handleGetTask)
	tasks.PUT("/:id", s.handleUpdateTask)
	tasks.POST("/share", s.handleShareTasks)
	tasks.DELETE("/:id", s.handleDeleteTask)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
