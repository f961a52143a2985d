// Package api 提供HTTP和WebSocket入口
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfunc/ai-imposter/internal/config"
	apperrors "github.com/wfunc/ai-imposter/internal/errors"
	"github.com/wfunc/ai-imposter/internal/game"
	"github.com/wfunc/ai-imposter/internal/identity"
	"github.com/wfunc/ai-imposter/internal/middleware"
	ws "github.com/wfunc/ai-imposter/internal/websocket"
)

// ModelLister 可用模型列表
type ModelLister interface {
	Models() []string
}

// Deps 路由依赖
type Deps struct {
	Config   *config.Config
	Sessions *game.SessionManager
	Models   ModelLister
	Hub      *ws.Hub
	Identity *identity.Manager
	Logger   *zap.Logger
}

// Router API路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	sessions *game.SessionManager
	models   ModelLister
	hub      *ws.Hub
	identity *identity.Manager
	upgrader websocket.Upgrader
	log      *zap.Logger
	started  time.Time
}

// NewRouter 创建路由器
func NewRouter(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	if deps.Config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery(deps.Logger))
	engine.Use(middleware.RequestLogger())
	engine.Use(cors.New(corsConfig(deps.Config.Security.CORSOrigins)))

	wsCfg := deps.Config.WebSocket
	r := &Router{
		engine:   engine,
		cfg:      deps.Config,
		sessions: deps.Sessions,
		models:   deps.Models,
		hub:      deps.Hub,
		identity: deps.Identity,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    wsCfg.ReadBufferSize,
			WriteBufferSize:   wsCfg.WriteBufferSize,
			EnableCompression: wsCfg.EnableCompression,
			CheckOrigin:       originChecker(deps.Config.Security.CORSOrigins),
		},
		log:     deps.Logger,
		started: time.Now(),
	}
	r.setupRoutes()
	return r
}

// corsConfig 允许携带cookie的跨域请求
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Origin", "Authorization", middleware.TokenHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || contains(origins, "*") {
		// 通配时回显请求的 Origin，cookie 才能生效
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || contains(origins, origin)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	player := middleware.PlayerIdentity(r.identity, r.cfg.Security.CookieName)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/models", r.listModels)
		v1.POST("/identity", player, r.issueIdentity)

		games := v1.Group("/games")
		games.Use(player)
		{
			games.POST("", r.createGame)
			games.GET("/:id", r.getGame)
		}
	}

	r.engine.GET("/ws/games/:id", player, r.gameWebSocket)

	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	r.engine.NoRoute(func(c *gin.Context) {
		writeError(c, apperrors.New(apperrors.ErrNotFound, "接口不存在"))
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"sessions": r.sessions.Count(),
		"clients":  r.hub.GetOnlineCount(),
		"uptime":   time.Since(r.started).Round(time.Second).String(),
	})
}

// Handler 暴露给 http.Server
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// writeError 统一的错误响应，内部错误不返回细节
func writeError(c *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.ErrInternal)
	}
	public := &apperrors.AppError{Code: appErr.Code, Message: appErr.Message}
	if !apperrors.IsInternal(appErr) {
		public.Details = appErr.Details
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus(), apperrors.NewErrorResponse(public, c.GetString(middleware.ContextRequestID)))
}
