package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type timetableService interface {
	List(ctx context.Context, schoolID string, filter models.TimetableFilter) ([]models.Timetable, *models.Pagination, error)
	Get(ctx context.Context, schoolID, id string) (*models.Timetable, error)
	Create(ctx context.Context, schoolID string, req dto.CreateTimetableRequest) (*models.Timetable, error)
	Rename(ctx context.Context, schoolID, id string, req dto.RenameTimetableRequest) (*models.Timetable, error)
	Activate(ctx context.Context, schoolID, id string) (*models.Timetable, error)
	GetActive(ctx context.Context, schoolID, academicYearID string) (*models.Timetable, error)
	Delete(ctx context.Context, schoolID, id string) error
}

// TimetableHandler manages timetable endpoints.
type TimetableHandler struct {
	service timetableService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc timetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// List godoc
// @Summary List timetables
// @Tags Timetables
// @Produce json
// @Param academicYearId query string false "Filter by academic year"
// @Param active query bool false "Filter by active flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	filter := models.TimetableFilter{AcademicYearID: c.Query("academicYearId")}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be true or false"))
			return
		}
		filter.IsActive = &active
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	items, pagination, err := h.service.List(c.Request.Context(), schoolID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	timetable, err := h.service.Get(c.Request.Context(), schoolID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}

// Create godoc
// @Summary Create timetable
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.CreateTimetableRequest true "Timetable payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables [post]
func (h *TimetableHandler) Create(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateTimetableRequest
	if !bindJSON(c, &req) {
		return
	}
	timetable, err := h.service.Create(c.Request.Context(), schoolID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, timetable)
}

// Rename godoc
// @Summary Rename timetable
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.RenameTimetableRequest true "New name"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id} [patch]
func (h *TimetableHandler) Rename(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	var req dto.RenameTimetableRequest
	if !bindJSON(c, &req) {
		return
	}
	timetable, err := h.service.Rename(c.Request.Context(), schoolID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}

// Activate godoc
// @Summary Activate timetable
// @Description Deactivates the other timetables of the same academic year.
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/activate [post]
func (h *TimetableHandler) Activate(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	timetable, err := h.service.Activate(c.Request.Context(), schoolID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}

// GetActive godoc
// @Summary Get active timetable
// @Tags Timetables
// @Produce json
// @Param academicYearId query string false "Academic year, latest when omitted"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/active [get]
func (h *TimetableHandler) GetActive(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	timetable, err := h.service.GetActive(c.Request.Context(), schoolID, c.Query("academicYearId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}

// Delete godoc
// @Summary Delete timetable
// @Tags Timetables
// @Param id path string true "Timetable ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), schoolID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
