package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"sdsim/internal/microservices/http-api/middleware"
	"sdsim/internal/microservices/http-api/service"
	"sdsim/internal/microservices/websocket"
)

// RouterConfig wires the admin API. Hub, Auth, Login and Sim are optional.
type RouterConfig struct {
	Sessions service.SessionService
	Sim      service.SimService
	Hub      *websocket.Hub
	Auth     middleware.TokenValidator
	Login    service.AuthService
	Logger   *slog.Logger
}

// NewRouter builds the admin API:
//
//	GET /health
//	POST /auth/login
//	GET /sessions
//	GET /sessions/:id/progress
//	GET /sessions/:id/history?limit=n
//	POST /sim/step
//	GET /ws/telemetry?session=id
//
// Everything but /health and /auth/login sits behind AuthMiddleware when Auth
// is set. /auth/login exists only when Login is set, /sim/step only when Sim is.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	var observers ObserverCounter
	if cfg.Hub != nil {
		observers = cfg.Hub
	}
	sessions := NewSessionHandler(cfg.Sessions, observers)
	r.GET("/health", sessions.Health)
	if cfg.Login != nil {
		r.POST("/auth/login", NewAuthHandler(cfg.Login).Login)
	}

	protected := r.Group("")
	if cfg.Auth != nil {
		protected.Use(middleware.AuthMiddleware(cfg.Auth))
	}
	sessions.RegisterRoutes(protected.Group("/sessions"))
	if cfg.Sim != nil {
		NewSimHandler(cfg.Sim).RegisterRoutes(protected.Group("/sim"))
	}
	if cfg.Hub != nil {
		protected.GET("/ws/telemetry", websocket.WSHandler(cfg.Hub))
	}
	return r
}
