package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/oasis/pkg/registry"
)

// CreateTopicRequest is the POST /api/v1/topics body.
type CreateTopicRequest struct {
	Question string `json:"question" binding:"required"`
	Schedule string `json:"schedule" binding:"required"`

	MaxRounds  int    `json:"max_rounds"`
	Discussion *bool  `json:"discussion"`
	OnComplete string `json:"on_complete"`
}

// createTopicHandler handles POST /api/v1/topics.
func (s *Server) createTopicHandler(c *gin.Context) {
	var req CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	topicID, err := s.registry.Create(registry.CreateRequest{
		Question:     req.Question,
		Owner:        owner(c),
		ScheduleYAML: req.Schedule,
		MaxRounds:    req.MaxRounds,
		Discussion:   req.Discussion,
		OnComplete:   req.OnComplete,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"topic_id": topicID})
}

// listTopicsHandler handles GET /api/v1/topics.
func (s *Server) listTopicsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"topics": s.registry.List(owner(c))})
}

// getTopicHandler handles GET /api/v1/topics/:id.
func (s *Server) getTopicHandler(c *gin.Context) {
	detail, err := s.registry.Get(c.Param("id"), owner(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// cancelTopicHandler handles POST /api/v1/topics/:id/cancel.
func (s *Server) cancelTopicHandler(c *gin.Context) {
	if err := s.registry.Cancel(c.Param("id"), owner(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

// purgeTopicHandler handles DELETE /api/v1/topics/:id.
func (s *Server) purgeTopicHandler(c *gin.Context) {
	if err := s.registry.Purge(c.Param("id"), owner(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "purged"})
}

// purgeAllHandler handles DELETE /api/v1/topics.
func (s *Server) purgeAllHandler(c *gin.Context) {
	count := s.registry.PurgeAll(owner(c))
	c.JSON(http.StatusOK, gin.H{"purged": count})
}

// waitConclusionHandler handles GET /api/v1/topics/:id/conclusion. It blocks
// until the topic is terminal or the timeout query parameter elapses.
func (s *Server) waitConclusionHandler(c *gin.Context) {
	timeout := 60 * time.Second
	if v := c.Query("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timeout: must be a positive duration"})
			return
		}
		timeout = d
	}

	conclusion, err := s.registry.WaitConclusion(c.Request.Context(), c.Param("id"), owner(c), timeout)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conclusion": conclusion})
}
