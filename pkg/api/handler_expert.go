package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/oasis/pkg/config"
)

// ExpertRequest is the create/update body for user expert presets.
type ExpertRequest struct {
	Tag         string  `json:"tag"`
	Name        string  `json:"name" binding:"required"`
	Persona     string  `json:"persona"`
	Temperature float64 `json:"temperature"`
}

// listExpertsHandler handles GET /api/v1/experts: public presets plus the
// caller's own.
func (s *Server) listExpertsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"experts": s.presets.List(owner(c))})
}

// createExpertHandler handles POST /api/v1/experts.
func (s *Server) createExpertHandler(c *gin.Context) {
	var req ExpertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	preset, err := s.presets.Add(owner(c), config.Preset{
		Tag:         req.Tag,
		Name:        req.Name,
		Persona:     req.Persona,
		Temperature: req.Temperature,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, preset)
}

// updateExpertHandler handles PUT /api/v1/experts/:tag.
func (s *Server) updateExpertHandler(c *gin.Context) {
	var req ExpertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	preset, err := s.presets.Update(owner(c), c.Param("tag"), config.Preset{
		Name:        req.Name,
		Persona:     req.Persona,
		Temperature: req.Temperature,
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, preset)
}

// deleteExpertHandler handles DELETE /api/v1/experts/:tag.
func (s *Server) deleteExpertHandler(c *gin.Context) {
	if err := s.presets.Delete(owner(c), c.Param("tag")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
