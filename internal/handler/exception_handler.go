package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type exceptionService interface {
	Upsert(ctx context.Context, schoolID, slotID string, date time.Time, req dto.UpsertExceptionRequest) (*models.SlotException, error)
	ResolveOccurrence(ctx context.Context, schoolID, slotID string, date time.Time) (*models.Occurrence, error)
	ListForSlot(ctx context.Context, schoolID, slotID string, from, to *time.Time) ([]models.SlotException, error)
	Delete(ctx context.Context, schoolID, slotID string, date time.Time) error
	DayOccurrences(ctx context.Context, schoolID, timetableID string, date time.Time, filter models.SlotFilter) ([]models.Occurrence, error)
}

// ExceptionHandler exposes single-date exceptions and resolved occurrences.
type ExceptionHandler struct {
	service exceptionService
}

// NewExceptionHandler constructs the handler.
func NewExceptionHandler(svc exceptionService) *ExceptionHandler {
	return &ExceptionHandler{service: svc}
}

// Upsert godoc
// @Summary Create or replace the exception of a slot on a date
// @Tags Exceptions
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param date path string true "Date (YYYY-MM-DD)"
// @Param payload body dto.UpsertExceptionRequest true "Exception payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /slots/{id}/exceptions/{date} [put]
func (h *ExceptionHandler) Upsert(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}
	var req dto.UpsertExceptionRequest
	if !bindJSON(c, &req) {
		return
	}
	exception, err := h.service.Upsert(c.Request.Context(), schoolID, c.Param("id"), date, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exception, nil)
}

// List godoc
// @Summary List exceptions of a slot
// @Tags Exceptions
// @Produce json
// @Param id path string true "Slot ID"
// @Param from query string false "First date (YYYY-MM-DD)"
// @Param to query string false "Last date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /slots/{id}/exceptions [get]
func (h *ExceptionHandler) List(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	from, ok := optionalDateQuery(c, "from")
	if !ok {
		return
	}
	to, ok := optionalDateQuery(c, "to")
	if !ok {
		return
	}
	items, err := h.service.ListForSlot(c.Request.Context(), schoolID, c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Delete godoc
// @Summary Rescind the exception of a slot on a date
// @Tags Exceptions
// @Param id path string true "Slot ID"
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 204
// @Router /slots/{id}/exceptions/{date} [delete]
func (h *ExceptionHandler) Delete(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), schoolID, c.Param("id"), date); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Resolve godoc
// @Summary Resolve what happens for a slot on a date
// @Tags Exceptions
// @Produce json
// @Param id path string true "Slot ID"
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /slots/{id}/occurrences/{date} [get]
func (h *ExceptionHandler) Resolve(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}
	occurrence, err := h.service.ResolveOccurrence(c.Request.Context(), schoolID, c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occurrence, nil)
}

// DayOccurrences godoc
// @Summary Effective schedule of a timetable on a date
// @Tags Exceptions
// @Produce json
// @Param id path string true "Timetable ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param classId query string false "Filter by class"
// @Param groupId query string false "Filter by student group"
// @Param teacherId query string false "Filter by teacher"
// @Param roomId query string false "Filter by room"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/occurrences [get]
func (h *ExceptionHandler) DayOccurrences(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	date, ok := optionalDateQuery(c, "date")
	if !ok {
		return
	}
	if date == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date is required"))
		return
	}
	filter, ok := slotFilterFromQuery(c)
	if !ok {
		return
	}
	filter.DayOfWeek = nil
	occurrences, err := h.service.DayOccurrences(c.Request.Context(), schoolID, c.Param("id"), *date, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occurrences, nil, map[string]interface{}{"date": date.Format("2006-01-02")})
}
