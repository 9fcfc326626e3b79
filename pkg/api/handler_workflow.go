package api

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// SaveWorkflowRequest is the PUT /api/v1/workflows/:name body.
type SaveWorkflowRequest struct {
	Schedule string `json:"schedule" binding:"required"`
}

// listWorkflowsHandler handles GET /api/v1/workflows.
func (s *Server) listWorkflowsHandler(c *gin.Context) {
	infos, err := s.workflows.List(owner(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": infos})
}

// getWorkflowHandler handles GET /api/v1/workflows/:name.
func (s *Server) getWorkflowHandler(c *gin.Context) {
	source, err := s.workflows.Get(owner(c), c.Param("name"))
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "schedule": source})
}

// saveWorkflowHandler handles PUT /api/v1/workflows/:name. The schedule is
// validated before it is stored.
func (s *Server) saveWorkflowHandler(c *gin.Context) {
	var req SaveWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.workflows.Save(owner(c), c.Param("name"), req.Schedule); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// deleteWorkflowHandler handles DELETE /api/v1/workflows/:name.
func (s *Server) deleteWorkflowHandler(c *gin.Context) {
	if err := s.workflows.Delete(owner(c), c.Param("name")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
