package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type fakeExceptionService struct {
	err          error
	lastDate     time.Time
	lastFrom     *time.Time
	lastTo       *time.Time
	lastFilter   models.SlotFilter
	lastRequest  dto.UpsertExceptionRequest
	upsertCalled bool
}

func (f *fakeExceptionService) Upsert(ctx context.Context, schoolID, slotID string, date time.Time, req dto.UpsertExceptionRequest) (*models.SlotException, error) {
	f.upsertCalled = true
	f.lastDate = date
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.SlotException{ID: "exc-1", SlotID: slotID, Date: date, Type: models.ExceptionType(req.Type)}, nil
}

func (f *fakeExceptionService) ResolveOccurrence(ctx context.Context, schoolID, slotID string, date time.Time) (*models.Occurrence, error) {
	f.lastDate = date
	if f.err != nil {
		return nil, f.err
	}
	return &models.Occurrence{SlotID: slotID, Date: date, Cancelled: true}, nil
}

func (f *fakeExceptionService) ListForSlot(ctx context.Context, schoolID, slotID string, from, to *time.Time) ([]models.SlotException, error) {
	f.lastFrom, f.lastTo = from, to
	return []models.SlotException{}, f.err
}

func (f *fakeExceptionService) Delete(ctx context.Context, schoolID, slotID string, date time.Time) error {
	f.lastDate = date
	return f.err
}

func (f *fakeExceptionService) DayOccurrences(ctx context.Context, schoolID, timetableID string, date time.Time, filter models.SlotFilter) ([]models.Occurrence, error) {
	f.lastDate = date
	f.lastFilter = filter
	return []models.Occurrence{}, f.err
}

func slotDateParams(date string) []gin.Param {
	return []gin.Param{{Key: "id", Value: "slot-1"}, {Key: "date", Value: date}}
}

func TestExceptionHandlerUpsert(t *testing.T) {
	svc := &fakeExceptionService{}
	handler := NewExceptionHandler(svc)
	body := map[string]interface{}{"type": "ROOM_CHANGE", "new_room_id": "room-2"}
	c, rec := newHandlerContext(http.MethodPut, "/slots/slot-1/exceptions/2025-03-10", body, "school-1", slotDateParams("2025-03-10")...)

	handler.Upsert(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-03-10", svc.lastDate.Format("2006-01-02"))
	assert.Equal(t, "ROOM_CHANGE", svc.lastRequest.Type)
	require.NotNil(t, svc.lastRequest.NewRoomID)
	assert.Equal(t, "room-2", *svc.lastRequest.NewRoomID)
}

func TestExceptionHandlerRejectsMalformedDate(t *testing.T) {
	svc := &fakeExceptionService{}
	handler := NewExceptionHandler(svc)
	c, rec := newHandlerContext(http.MethodPut, "/slots/slot-1/exceptions/10-03-2025", map[string]interface{}{"type": "CANCELLED"}, "school-1", slotDateParams("10-03-2025")...)

	handler.Upsert(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, svc.upsertCalled)
}

func TestExceptionHandlerUpsertNonOccurrence(t *testing.T) {
	handler := NewExceptionHandler(&fakeExceptionService{err: appErrors.Clone(appErrors.ErrValidation, "slot does not occur on 2025-03-11")})
	c, rec := newHandlerContext(http.MethodPut, "/slots/slot-1/exceptions/2025-03-11", map[string]interface{}{"type": "CANCELLED"}, "school-1", slotDateParams("2025-03-11")...)

	handler.Upsert(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "slot does not occur on 2025-03-11", decodeEnvelope(t, rec).Error.Message)
}

func TestExceptionHandlerListRange(t *testing.T) {
	svc := &fakeExceptionService{}
	handler := NewExceptionHandler(svc)
	c, rec := newHandlerContext(http.MethodGet, "/slots/slot-1/exceptions?from=2025-03-01", nil, "school-1", gin.Param{Key: "id", Value: "slot-1"})

	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastFrom)
	assert.Equal(t, "2025-03-01", svc.lastFrom.Format("2006-01-02"))
	assert.Nil(t, svc.lastTo)
}

func TestExceptionHandlerResolve(t *testing.T) {
	handler := NewExceptionHandler(&fakeExceptionService{})
	c, rec := newHandlerContext(http.MethodGet, "/slots/slot-1/occurrences/2025-03-10", nil, "school-1", slotDateParams("2025-03-10")...)

	handler.Resolve(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decodeEnvelope(t, rec).Data), `"cancelled":true`)
}

func TestExceptionHandlerDeleteMissing(t *testing.T) {
	handler := NewExceptionHandler(&fakeExceptionService{err: appErrors.Clone(appErrors.ErrNotFound, "slot exception not found")})
	c, rec := newHandlerContext(http.MethodDelete, "/slots/slot-1/exceptions/2025-03-10", nil, "school-1", slotDateParams("2025-03-10")...)

	handler.Delete(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExceptionHandlerDayOccurrences(t *testing.T) {
	svc := &fakeExceptionService{}
	handler := NewExceptionHandler(svc)

	c, rec := newHandlerContext(http.MethodGet, "/timetables/tt-1/occurrences", nil, "school-1", gin.Param{Key: "id", Value: "tt-1"})
	handler.DayOccurrences(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newHandlerContext(http.MethodGet, "/timetables/tt-1/occurrences?date=2025-03-10&classId=class-1&dayOfWeek=4", nil, "school-1", gin.Param{Key: "id", Value: "tt-1"})
	handler.DayOccurrences(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "class-1", svc.lastFilter.ClassID)
	assert.Nil(t, svc.lastFilter.DayOfWeek)
	assert.Equal(t, "2025-03-10", decodeEnvelope(t, rec).Meta["date"])
}
