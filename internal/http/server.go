// Package http provides the HTTP API for hydrochat.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/verdantlabs/hydrochat/internal/chat"
	"github.com/verdantlabs/hydrochat/internal/config"
	"github.com/verdantlabs/hydrochat/internal/ingest"
)

// Server provides the chat and ingestion endpoints.
type Server struct {
	echo   *echo.Echo
	chat   *chat.Service
	ingest *ingest.Service
	logger *zap.Logger
	config config.ServerConfig
}

// NewServer creates the HTTP server.
func NewServer(chatSvc *chat.Service, ingestSvc *ingest.Service, cfg config.ServerConfig, logger *zap.Logger) (*Server, error) {
	if chatSvc == nil {
		return nil, fmt.Errorf("chat service is required")
	}
	if ingestSvc == nil {
		return nil, fmt.Errorf("ingest service is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:   e,
		chat:   chatSvc,
		ingest: ingestSvc,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/chat", s.handleChat)
	v1.POST("/chat/stream", s.handleChatStream)
	v1.POST("/documents", s.handleIngest)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
