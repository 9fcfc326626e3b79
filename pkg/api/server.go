// Package api is the HTTP surface over the topic registry: topic CRUD and
// streaming, expert preset management, and saved workflow files.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/oasis/pkg/config"
	"github.com/codeready-toolchain/oasis/pkg/registry"
	"github.com/codeready-toolchain/oasis/pkg/storage"
	"github.com/codeready-toolchain/oasis/pkg/version"
)

// Server wires the HTTP handlers to their collaborators.
type Server struct {
	registry  *registry.Registry
	presets   *config.PresetStore
	workflows *storage.WorkflowStore

	httpServer *http.Server
}

// NewServer builds the server and its router.
func NewServer(addr string, reg *registry.Registry, presets *config.PresetStore, workflows *storage.WorkflowStore) *Server {
	s := &Server{
		registry:  reg,
		presets:   presets,
		workflows: workflows,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", s.healthHandler)

	v1 := r.Group("/api/v1", ownerIdentity())
	{
		v1.POST("/topics", s.createTopicHandler)
		v1.GET("/topics", s.listTopicsHandler)
		v1.GET("/topics/:id", s.getTopicHandler)
		v1.GET("/topics/:id/stream", s.streamTopicHandler)
		v1.GET("/topics/:id/conclusion", s.waitConclusionHandler)
		v1.POST("/topics/:id/cancel", s.cancelTopicHandler)
		v1.DELETE("/topics/:id", s.purgeTopicHandler)
		v1.DELETE("/topics", s.purgeAllHandler)

		v1.GET("/experts", s.listExpertsHandler)
		v1.POST("/experts", s.createExpertHandler)
		v1.PUT("/experts/:tag", s.updateExpertHandler)
		v1.DELETE("/experts/:tag", s.deleteExpertHandler)

		v1.GET("/workflows", s.listWorkflowsHandler)
		v1.GET("/workflows/:name", s.getWorkflowHandler)
		v1.PUT("/workflows/:name", s.saveWorkflowHandler)
		v1.DELETE("/workflows/:name", s.deleteWorkflowHandler)
	}
	return r
}

// Start runs the HTTP listener until it fails or Stop is called.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr, "version", version.Get())
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs one line per request with slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": version.Get(),
	})
}
