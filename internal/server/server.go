// Package server provides the optional HTTP API for the
// network-survey-agent. It wires the Gin engine with zap request logging
// and panic recovery, and mounts versioned handlers under /api/v1.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/netsweep/network-survey-agent/internal/config"
)

// RegisterHandlersFn mounts API routes on the /api/v1 group.
type RegisterHandlersFn func(router *gin.RouterGroup)

type Server struct {
	cfg  *config.Configuration
	http *http.Server
	log  *zap.SugaredLogger
}

func NewServer(cfg *config.Configuration, registerHandlers RegisterHandlersFn) *Server {
	if cfg.Server.ServerMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logger())
	engine.Use(ginzap.RecoveryWithZap(zap.L().Named("http"), true))

	api := engine.Group("/api/v1")
	registerHandlers(api)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
			Handler: engine,
		},
		log: zap.S().Named("server"),
	}
}

// Start serves until the listener fails or Stop is called. It returns
// http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.log.Infow("http server starting", "addr", s.http.Addr, "mode", s.cfg.Server.ServerMode)
	return s.http.ListenAndServe()
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Infow("http server stopping")
	return s.http.Shutdown(ctx)
}

// logger records one structured line per request with status and latency.
func logger() gin.HandlerFunc {
	log := zap.S().Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"query", c.Request.URL.RawQuery,
			"ip", c.ClientIP(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		}
		if len(c.Errors) > 0 {
			log.Errorw("request failed", append(fields, "errors", c.Errors.String())...)
			return
		}
		log.Infow("request", fields...)
	}
}
