package bootstrap

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"liar-game/internal/domain"
	httpHandler "liar-game/internal/handler/http"
	wsHandler "liar-game/internal/handler/websocket"
	"liar-game/internal/middleware"
	"liar-game/internal/repository"
	"liar-game/internal/service"
)

// RouterDeps 是组装路由需要的全部组件
type RouterDeps struct {
	Log               *logrus.Logger
	Resolver          middleware.PrincipalResolver
	Limiter           repository.RateLimitRepository
	RateLimit         middleware.RateLimitRule
	CORSAllowedOrigin string

	Auth  *httpHandler.AuthHandler
	Users *httpHandler.UserHandler
	Rooms *httpHandler.RoomHandler
	// WS 为 nil 时不注册 WebSocket 路由
	WS *wsHandler.WebSocketHandler
}

var (
	memberAccess = service.AccessPolicy{MinTier: domain.TierMember}
	adminAccess  = service.AccessPolicy{Roles: []domain.Role{domain.RoleAdmin}}
)

// NewRouter 创建 Gin Engine 并注册所有路由。每条路由的访问要求在注册时显式给出。
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(deps.Log))
	router.Use(CORSMiddleware(deps.CORSAllowedOrigin))

	apiLimit := deps.RateLimit
	apiLimit.Name = "api"
	authLimit := deps.RateLimit
	authLimit.Name = "auth"

	api := router.Group("/api", middleware.Identity(deps.Resolver, false))

	authRoutes := api.Group("/auth", middleware.RateLimit(deps.Limiter, authLimit))
	{
		authRoutes.POST("/register", deps.Auth.Register)
		authRoutes.POST("/login", deps.Auth.Login)
	}

	limited := api.Group("", middleware.RateLimit(deps.Limiter, apiLimit))

	userRoutes := limited.Group("/users", middleware.Authorize(memberAccess))
	{
		userRoutes.GET("/me", deps.Users.Me)
		userRoutes.DELETE("/me", deps.Users.DeleteMe)
	}

	roomRoutes := limited.Group("/rooms")
	{
		roomRoutes.GET("", deps.Rooms.ListRooms)
		roomRoutes.GET("/code/:code", deps.Rooms.GetRoomByCode)
		roomRoutes.GET("/:id", deps.Rooms.GetRoom)

		roomRoutes.POST("", middleware.Authorize(memberAccess), deps.Rooms.CreateRoom)
		roomRoutes.POST("/join", middleware.Authorize(memberAccess), deps.Rooms.JoinRoom)
		roomRoutes.POST("/:id/leave", middleware.Authorize(memberAccess), deps.Rooms.LeaveRoom)
		roomRoutes.POST("/:id/status", middleware.Authorize(memberAccess), deps.Rooms.ChangeStatus)
	}

	adminRoutes := limited.Group("/admin", middleware.Authorize(adminAccess))
	{
		adminRoutes.GET("/users", deps.Users.ListUsers)
		adminRoutes.PATCH("/users/:id", deps.Users.UpdateUser)
		adminRoutes.DELETE("/users/:id", deps.Users.DeleteUser)
	}

	if deps.WS != nil {
		wsRoutes := router.Group("/ws", middleware.Identity(deps.Resolver, true), middleware.Authorize(memberAccess))
		wsRoutes.GET("/rooms/:id", deps.WS.HandleConnection)
	}

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	return router
}

// RequestIDMiddleware 为每个请求生成或透传 X-Request-ID
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// CORSMiddleware 允许配置的前端来源跨域访问
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()

		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
			"request_id":  c.GetString("request_id"),
		})

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
			return
		}
		switch {
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
