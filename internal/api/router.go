package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/doclens/internal/api/admin"
	"github.com/liliang-cn/doclens/internal/api/chat"
	"github.com/liliang-cn/doclens/internal/api/listen"
	"github.com/liliang-cn/doclens/internal/api/middleware"
	"github.com/liliang-cn/doclens/internal/api/upload"
	"github.com/liliang-cn/doclens/internal/service"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
	Logger       *zap.Logger
	// Metrics serves /metrics when set
	Metrics http.Handler
}

// Services are the handlers' dependencies
type Services struct {
	Chat   *service.ChatService
	Upload *service.UploadService
	Listen *service.ListenService
	Admin  *service.AdminService
}

// SetupRouter sets up the Gin router
func SetupRouter(services Services, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	// Conversation, upload and listen API (API key when configured)
	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.Auth(cfg.APIKey))
	chat.NewHandler(services.Chat).RegisterRoutes(apiGroup)
	upload.NewHandler(services.Upload).RegisterRoutes(apiGroup)
	listen.NewHandler(services.Listen, cfg.AllowOrigins, logger).RegisterRoutes(apiGroup)

	adminGroup := apiGroup.Group("/admin")
	admin.NewHandler(services.Admin).RegisterRoutes(adminGroup)

	return r
}
