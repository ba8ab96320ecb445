package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"upforit/config"
	"upforit/internal/handler"
	"upforit/internal/middleware"
	"upforit/internal/services"
	"upforit/internal/transport/httpdto"
	"upforit/internal/websocket"
	"upforit/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Auth          *handler.AuthHandler
	Users         *handler.UserHandler
	Conversations *handler.ConversationHandler
	Messages      *handler.MessageHandler
	Crews         *handler.CrewHandler
	Socket        *websocket.Handler
}

// HealthFunc reports whether the backing stores answer.
type HealthFunc func(ctx context.Context) error

func New(cfg *config.Config, l *logger.Logger) *Server {
	switch cfg.AppMode {
	case ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Engine exposes the router, mainly for httptest.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) SetupRoutes(h *Handlers, authService *services.AuthService, health HealthFunc) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if health != nil {
			if err := health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	if h.Auth != nil && s.config.AppMode != ReleaseMode {
		s.engine.POST("/v1/auth/dev-token", h.Auth.DevToken)
	}
	if h.Socket != nil {
		// authenticated by the token query parameter
		s.engine.GET("/v1/ws", h.Socket.Connect)
	}

	v1 := s.engine.Group("/v1", middleware.AuthMiddleware(authService))

	me := v1.Group("/me")
	{
		me.GET("", h.Users.GetProfile)
		me.PUT("", h.Users.UpdateProfile)
		me.GET("/badge", h.Users.Badge)
		me.POST("/push-tokens", h.Users.RegisterPushToken)
		me.DELETE("/push-tokens", h.Users.UnregisterPushToken)
		me.POST("/avatar/presign", h.Users.PresignAvatar)
		me.POST("/avatar/confirm", h.Users.ConfirmAvatar)
	}

	conversations := v1.Group("/conversations")
	{
		conversations.GET("", h.Conversations.List)
		conversations.POST("/direct", h.Conversations.StartDirect)
		conversations.POST("/group", h.Conversations.CreateGroup)
		conversations.GET("/:id", h.Conversations.Get)
		conversations.POST("/:id/open", h.Conversations.Open)
		conversations.POST("/:id/close", h.Conversations.Close)
		conversations.POST("/:id/read", h.Conversations.MarkRead)
		conversations.GET("/:id/messages", h.Messages.List)
		conversations.POST("/:id/messages", h.Messages.Send)
	}

	v1.POST("/messages/direct", h.Messages.SendDirect)

	crews := v1.Group("/crews")
	{
		crews.POST("", h.Crews.Create)
		crews.GET("", h.Crews.List)
		crews.DELETE("/:id", h.Crews.Delete)
		crews.POST("/:id/join", h.Crews.Join)
		crews.POST("/:id/leave", h.Crews.Leave)
		crews.GET("/:id/members", h.Crews.Members)
		crews.GET("/:id/availability/:date", h.Crews.GetAvailability)
		crews.PUT("/:id/availability/:date", h.Crews.SetAvailability)
		crews.POST("/:id/availability/:date/poke", h.Crews.Poke)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.logger.Errorf("Error in starting the server: %s", err)
		return err
	case <-ctx.Done():
	}

	s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		return err
	}

	s.logger.Infof("Server stopped gracefully")
	return nil
}
