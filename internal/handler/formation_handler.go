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

// FormationHandler exposes formation lifecycle endpoints.
type FormationHandler struct {
	formations *service.FormationService
	reports    *service.ReportService
}

// NewFormationHandler constructs FormationHandler.
func NewFormationHandler(formations *service.FormationService, reports *service.ReportService) *FormationHandler {
	return &FormationHandler{formations: formations, reports: reports}
}

// List godoc
// @Summary List formations
// @Tags Formations
// @Produce json
// @Param statut query string false "Filter by status"
// @Param niveau query string false "Filter by level"
// @Param formateur_id query string false "Filter by trainer"
// @Param search query string false "Search in title"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /formations [get]
func (h *FormationHandler) List(c *gin.Context) {
	var filter models.FormationFilter
	filter.Statut = models.FormationStatus(c.Query("statut"))
	filter.Niveau = models.FormationLevel(c.Query("niveau"))
	filter.FormateurID = c.Query("formateur_id")
	filter.VilleID = c.Query("ville_id")
	filter.FiliereID = c.Query("filiere_id")
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	formations, pagination, err := h.formations.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formations, pagination)
}

// PendingValidations godoc
// @Summary List formations awaiting validation
// @Tags Formations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /formations/pending-validations [get]
func (h *FormationHandler) PendingValidations(c *gin.Context) {
	formations, err := h.formations.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formations, nil)
}

// Get godoc
// @Summary Get formation detail
// @Tags Formations
// @Produce json
// @Param id path string true "Formation ID"
// @Success 200 {object} response.Envelope
// @Router /formations/{id} [get]
func (h *FormationHandler) Get(c *gin.Context) {
	formation, err := h.formations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formation, nil)
}

// Create godoc
// @Summary Create formation
// @Tags Formations
// @Accept json
// @Produce json
// @Param payload body service.FormationRequest true "Formation payload"
// @Success 201 {object} response.Envelope
// @Router /formations [post]
func (h *FormationHandler) Create(c *gin.Context) {
	var req service.FormationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	formation, err := h.formations.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, formation)
}

// Update godoc
// @Summary Update formation
// @Tags Formations
// @Accept json
// @Produce json
// @Param id path string true "Formation ID"
// @Param payload body service.FormationRequest true "Formation payload"
// @Success 200 {object} response.Envelope
// @Router /formations/{id} [put]
func (h *FormationHandler) Update(c *gin.Context) {
	var req service.FormationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	formation, err := h.formations.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formation, nil)
}

// Validate godoc
// @Summary Approve a pending formation
// @Tags Formations
// @Accept json
// @Produce json
// @Param id path string true "Formation ID"
// @Param payload body service.ValidateFormationRequest false "Approval comment"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /formations/{id}/validate [post]
func (h *FormationHandler) Validate(c *gin.Context) {
	var req service.ValidateFormationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	formation, err := h.formations.Validate(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formation, nil)
}

// Reject godoc
// @Summary Reject a pending formation
// @Tags Formations
// @Accept json
// @Produce json
// @Param id path string true "Formation ID"
// @Param payload body service.RejectFormationRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /formations/{id}/reject [post]
func (h *FormationHandler) Reject(c *gin.Context) {
	var req service.RejectFormationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	formation, err := h.formations.Reject(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formation, nil)
}

// UpdateStatus godoc
// @Summary Move formation along the operational axis
// @Tags Formations
// @Accept json
// @Produce json
// @Param id path string true "Formation ID"
// @Param payload body service.UpdateFormationStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /formations/{id}/status [put]
func (h *FormationHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateFormationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	formation, err := h.formations.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formation, nil)
}

// Delete godoc
// @Summary Delete formation
// @Tags Formations
// @Produce json
// @Param id path string true "Formation ID"
// @Success 204
// @Router /formations/{id} [delete]
func (h *FormationHandler) Delete(c *gin.Context) {
	if err := h.formations.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportAttendance godoc
// @Summary Export attendance sheet
// @Tags Formations
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Formation ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /formations/{id}/attendance-sheet [get]
func (h *FormationHandler) ExportAttendance(c *gin.Context) {
	format := service.ReportFormat(c.DefaultQuery("format", "csv"))
	report, err := h.reports.AttendanceSheet(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+report.FileName)
	c.Data(http.StatusOK, report.ContentType, report.Content)
}
