package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type slotService interface {
	Get(ctx context.Context, schoolID, slotID string) (*models.TimetableSlot, error)
	List(ctx context.Context, schoolID, timetableID string, filter models.SlotFilter) ([]models.TimetableSlot, error)
	Create(ctx context.Context, schoolID, timetableID string, req dto.CreateSlotRequest) (*models.TimetableSlot, error)
	Update(ctx context.Context, schoolID, slotID string, req dto.UpdateSlotRequest) (*models.TimetableSlot, error)
	Delete(ctx context.Context, schoolID, slotID string) error
}

// SlotHandler manages recurring slot endpoints.
type SlotHandler struct {
	service slotService
}

// NewSlotHandler constructs the handler.
func NewSlotHandler(svc slotService) *SlotHandler {
	return &SlotHandler{service: svc}
}

// List godoc
// @Summary List slots of a timetable
// @Tags Slots
// @Produce json
// @Param id path string true "Timetable ID"
// @Param classId query string false "Filter by class"
// @Param groupId query string false "Filter by student group"
// @Param teacherId query string false "Filter by teacher"
// @Param roomId query string false "Filter by room"
// @Param dayOfWeek query int false "Filter by day, Monday is 0"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	filter, ok := slotFilterFromQuery(c)
	if !ok {
		return
	}
	slots, err := h.service.List(c.Request.Context(), schoolID, c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Create godoc
// @Summary Create slot
// @Description Rejected with 409 and the conflicting slots when a teacher, class or room is double-booked.
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.CreateSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/{id}/slots [post]
func (h *SlotHandler) Create(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateSlotRequest
	if !bindJSON(c, &req) {
		return
	}
	slot, err := h.service.Create(c.Request.Context(), schoolID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Get godoc
// @Summary Get slot
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /slots/{id} [get]
func (h *SlotHandler) Get(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	slot, err := h.service.Get(c.Request.Context(), schoolID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Update godoc
// @Summary Update slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.UpdateSlotRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /slots/{id} [patch]
func (h *SlotHandler) Update(c *gin.Context) {
	schoolID, ok := schoolFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateSlotRequest
	if !bindJSON(c, &req) {
		return
	}
	slot, err := h.service.Update(c.Request.Context(), schoolID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Delete godoc
// @Summary Delete slot
// @Tags Slots
// @Param id path string true "Slot ID"
// @Success 204
// @Router /slots/{id} [delete]
func (h *SlotHandler) Delete(c *gin.Context) {
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
