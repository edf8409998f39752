package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mehdifatimi/formation-api/internal/models"
	"github.com/mehdifatimi/formation-api/internal/service"
	appErrors "github.com/mehdifatimi/formation-api/pkg/errors"
	"github.com/mehdifatimi/formation-api/pkg/response"
)

// ParticipantHandler exposes participant and enrollment endpoints.
type ParticipantHandler struct {
	participants *service.ParticipantService
}

// NewParticipantHandler constructs ParticipantHandler.
func NewParticipantHandler(participants *service.ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{participants: participants}
}

// List godoc
// @Summary List participants
// @Tags Participants
// @Produce json
// @Param search query string false "Search by name or email"
// @Param payment_status query string false "Filter by payment status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /participants [get]
func (h *ParticipantHandler) List(c *gin.Context) {
	var filter models.ParticipantFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.PaymentStatus = models.PaymentStatus(c.Query("payment_status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	participants, pagination, err := h.participants.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, participants, pagination)
}

// Get godoc
// @Summary Get participant detail
// @Tags Participants
// @Produce json
// @Param id path string true "Participant ID"
// @Success 200 {object} response.Envelope
// @Router /participants/{id} [get]
func (h *ParticipantHandler) Get(c *gin.Context) {
	participant, err := h.participants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, participant, nil)
}

// Create godoc
// @Summary Create participant
// @Tags Participants
// @Accept json
// @Produce json
// @Param payload body service.ParticipantRequest true "Participant payload"
// @Success 201 {object} response.Envelope
// @Router /participants [post]
func (h *ParticipantHandler) Create(c *gin.Context) {
	var req service.ParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	participant, err := h.participants.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, participant)
}

// Update godoc
// @Summary Update participant
// @Tags Participants
// @Accept json
// @Produce json
// @Param id path string true "Participant ID"
// @Param payload body service.ParticipantRequest true "Participant payload"
// @Success 200 {object} response.Envelope
// @Router /participants/{id} [put]
func (h *ParticipantHandler) Update(c *gin.Context) {
	var req service.ParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	participant, err := h.participants.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, participant, nil)
}

// Delete godoc
// @Summary Delete participant
// @Tags Participants
// @Produce json
// @Param id path string true "Participant ID"
// @Success 204
// @Router /participants/{id} [delete]
func (h *ParticipantHandler) Delete(c *gin.Context) {
	if err := h.participants.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListEnrollments godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param formation_id query string false "Filter by formation"
// @Param participant_id query string false "Filter by participant"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *ParticipantHandler) ListEnrollments(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.FormationID = c.Query("formation_id")
	filter.ParticipantID = c.Query("participant_id")
	filter.Status = models.EnrollmentStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	enrollments, pagination, err := h.participants.ListEnrollments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Attach godoc
// @Summary Enroll participant into formation
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Participant ID"
// @Param payload body service.AttachRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /participants/{id}/formations [post]
func (h *ParticipantHandler) Attach(c *gin.Context) {
	var req service.AttachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.participants.Attach(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Detach godoc
// @Summary Remove participant from formation
// @Tags Enrollments
// @Produce json
// @Param id path string true "Participant ID"
// @Param formationId path string true "Formation ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /participants/{id}/formations/{formationId} [delete]
func (h *ParticipantHandler) Detach(c *gin.Context) {
	if err := h.participants.Detach(c.Request.Context(), c.Param("id"), c.Param("formationId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateEnrollmentStatus godoc
// @Summary Update enrollment status
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Participant ID"
// @Param formationId path string true "Formation ID"
// @Param payload body service.EnrollmentStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /participants/{id}/formations/{formationId} [put]
func (h *ParticipantHandler) UpdateEnrollmentStatus(c *gin.Context) {
	var req service.EnrollmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.participants.UpdateEnrollmentStatus(c.Request.Context(), c.Param("id"), c.Param("formationId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Progress godoc
// @Summary Participant progress overview
// @Tags Participants
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /participants/progress [get]
func (h *ParticipantHandler) Progress(c *gin.Context) {
	progress, err := h.participants.Progress(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}
