package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"unitrack/api/internal/config"
	"unitrack/api/internal/middleware"
	"unitrack/api/internal/security"
	"unitrack/api/internal/service"
)

type HandlerSet struct {
	log    zerolog.Logger
	cfg    *config.AppConfig
	auth   *service.AuthService
	tasks  *service.TaskService
	users  middleware.UserFinder
	tokens *security.TokenService
	db     *pgxpool.Pool
	cache  *redis.Client
}

func NewHandlerSet(
	log zerolog.Logger,
	cfg *config.AppConfig,
	auth *service.AuthService,
	tasks *service.TaskService,
	users middleware.UserFinder,
	tokens *security.TokenService,
	db *pgxpool.Pool,
	cache *redis.Client,
) HandlerSet {
	return HandlerSet{
		log:    log,
		cfg:    cfg,
		auth:   auth,
		tasks:  tasks,
		users:  users,
		tokens: tokens,
		db:     db,
		cache:  cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	authGate := middleware.Auth(h.tokens, h.users, h.log)

	users := router.Group("/users")
	{
		users.POST("/register", h.RegisterUser)
		users.POST("/login", h.Login)
		users.POST("/refresh-token", h.RefreshToken)
		users.POST("/forgot-password", h.ForgotPassword)
		users.POST("/reset-password/:token", h.ResetPassword)

		protected := users.Group("", authGate)
		protected.GET("/profile", h.Profile)
		protected.POST("/logout", h.Logout)
		protected.POST("/notifications/toggle", h.ToggleNotifications)
	}

	tasks := router.Group("/tasks", authGate)
	{
		tasks.GET("", h.ListTasks)
		tasks.POST("/add", h.CreateTask)
		tasks.GET("/:id", h.GetTask)
		tasks.PUT("/update/:id", h.UpdateTask)
		tasks.DELETE("/:id", h.DeleteTask)

		tasks.POST("/:id/files", h.UploadTaskFiles)
		tasks.GET("/:id/files/:fileId", h.DownloadTaskFile)
		tasks.DELETE("/:id/files/:fileId", h.DeleteTaskFile)
	}
}
