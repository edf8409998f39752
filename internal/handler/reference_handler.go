package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mehdifatimi/formation-api/internal/service"
	"github.com/mehdifatimi/formation-api/pkg/response"
)

// ReferenceHandler serves trainer/city/track dropdown listings.
type ReferenceHandler struct {
	references *service.ReferenceService
}

// NewReferenceHandler constructs ReferenceHandler.
func NewReferenceHandler(references *service.ReferenceService) *ReferenceHandler {
	return &ReferenceHandler{references: references}
}

// Trainers godoc
// @Summary List trainers
// @Tags References
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /formateurs [get]
func (h *ReferenceHandler) Trainers(c *gin.Context) {
	trainers, err := h.references.Trainers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trainers, nil)
}

// Cities godoc
// @Summary List cities
// @Tags References
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /villes [get]
func (h *ReferenceHandler) Cities(c *gin.Context) {
	cities, err := h.references.Cities(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cities, nil)
}

// Tracks godoc
// @Summary List tracks
// @Tags References
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /filieres [get]
func (h *ReferenceHandler) Tracks(c *gin.Context) {
	tracks, err := h.references.Tracks(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tracks, nil)
}
