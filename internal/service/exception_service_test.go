package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/timeofday"
)

type exceptionServiceFixture struct {
	svc        *ExceptionService
	exceptions *exceptionStoreStub
	slots      *slotStoreStub
}

func newExceptionServiceFixture(refs referenceStub, slots ...models.TimetableSlot) exceptionServiceFixture {
	if len(slots) == 0 {
		slots = []models.TimetableSlot{mondaySlot()}
	}
	store := &slotStoreStub{items: slots}
	exceptions := newExceptionStoreStub()
	timetables := newTimetableRepoStub(&models.Timetable{ID: "tt-1", SchoolID: testSchool, AcademicYearID: "ay-1"})
	svc := NewExceptionService(exceptions, store, timetables, newAcademicYearStub(testAcademicYear()), refs, NewMetricsService(), nil, zap.NewNop())
	return exceptionServiceFixture{svc: svc, exceptions: exceptions, slots: store}
}

func TestExceptionServiceMovedOccurrence(t *testing.T) {
	f := newExceptionServiceFixture(referenceStub{})
	ctx := context.Background()

	_, err := f.svc.Upsert(ctx, testSchool, "slot-s", day("2025-03-10"), dto.UpsertExceptionRequest{
		Type:         "MOVED",
		NewRoomID:    strPtr("room-r2"),
		NewStartTime: strPtr("10:00"),
		NewEndTime:   strPtr("11:00"),
	})
	require.NoError(t, err)

	moved, err := f.svc.ResolveOccurrence(ctx, testSchool, "slot-s", day("2025-03-10"))
	require.NoError(t, err)
	assert.Equal(t, timeofday.MustParse("10:00"), moved.StartTime)
	assert.Equal(t, timeofday.MustParse("11:00"), moved.EndTime)
	assert.Equal(t, "room-r2", *moved.RoomID)

	regular, err := f.svc.ResolveOccurrence(ctx, testSchool, "slot-s", day("2025-03-17"))
	require.NoError(t, err)
	assert.Equal(t, timeofday.MustParse("08:00"), regular.StartTime)
	assert.Equal(t, timeofday.MustParse("09:00"), regular.EndTime)
	assert.Equal(t, "room-r1", *regular.RoomID)
	assert.Nil(t, regular.ExceptionID)
}

func TestExceptionServiceCancelledAndRoomChange(t *testing.T) {
	f := newExceptionServiceFixture(referenceStub{})
	ctx := context.Background()

	_, err := f.svc.Upsert(ctx, testSchool, "slot-s", day("2025-03-10"), dto.UpsertExceptionRequest{Type: "CANCELLED"})
	require.NoError(t, err)
	_, err = f.svc.Upsert(ctx, testSchool, "slot-s", day("2025-03-17"), dto.UpsertExceptionRequest{Type: "ROOM_CHANGE", NewRoomID: strPtr("room-r2")})
	require.NoError(t, err)

	cancelled, err := f.svc.ResolveOccurrence(ctx, testSchool, "slot-s", day("2025-03-10"))
	require.NoError(t, err)
	assert.True(t, cancelled.Cancelled)

	relocated, err := f.svc.ResolveOccurrence(ctx, testSchool, "slot-s", day("2025-03-17"))
	require.NoError(t, err)
	assert.False(t, relocated.Cancelled)
	assert.Equal(t, "room-r2", *relocated.RoomID)
	assert.Equal(t, timeofday.MustParse("08:00"), relocated.StartTime)
	assert.Equal(t, "teacher-t", relocated.TeacherID)
}

func TestExceptionServiceUpsertTwiceKeepsOneRow(t *testing.T) {
	f := newExceptionServiceFixture(referenceStub{})
	ctx := context.Background()

	first, err := f.svc.Upsert(ctx, testSchool, "slot-s", day("2025-03-10"), dto.UpsertExceptionRequest{Type: "CANCELLED"})
	require.NoError(t, err)
	second, err := f.svc.Upsert(ctx, testSchool, "slot-s", day("2025-03-10"), dto.UpsertExceptionRequest{Type: "ROOM_CHANGE", NewRoomID: strPtr("room-r2")})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	items, err := f.svc.ListForSlot(ctx, testSchool, "slot-s", nil, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ExceptionRoomChange, items[0].Type)
	assert.Equal(t, "room-r2", *items[0].NewRoomID)
}

func TestExceptionServiceRejectsNonOccurrenceDates(t *testing.T) {
	weekA := mondaySlot()
	weekA.WeekPattern = models.WeekPatternA
	f := newExceptionServiceFixture(referenceStub{}, weekA)
	ctx := context.Background()

	for _, raw := range []string{"2025-03-11", "2025-07-07", "2025-03-17"} {
		_, err := f.svc.Upsert(ctx, testSchool, "slot-s", day(raw), dto.UpsertExceptionRequest{Type: "CANCELLED"})
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, appErrors.ErrValidation), raw)

		_, err = f.svc.ResolveOccurrence(ctx, testSchool, "slot-s", day(raw))
		assert.True(t, errors.Is(err, appErrors.ErrValidation), raw)
	}
	assert.Empty(t, f.exceptions.items)
}

func TestExceptionServicePayloadRules(t *testing.T) {
	f := newExceptionServiceFixture(referenceStub{})
	cases := map[string]dto.UpsertExceptionRequest{
		"room change without room": {Type: "ROOM_CHANGE"},
		"room change with teacher": {Type: "ROOM_CHANGE", NewRoomID: strPtr("room-r2"), NewTeacherID: strPtr("teacher-u")},
		"empty move":               {Type: "MOVED"},
		"move with half a time":    {Type: "MOVED", NewStartTime: strPtr("10:00")},
		"move with reversed time":  {Type: "MOVED", NewStartTime: strPtr("11:00"), NewEndTime: strPtr("10:00")},
		"cancellation with room":   {Type: "CANCELLED", NewRoomID: strPtr("room-r2")},
		"unknown type":             {Type: "POSTPONED"},
	}
	for name, req := range cases {
		_, err := f.svc.Upsert(context.Background(), testSchool, "slot-s", day("2025-03-10"), req)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, appErrors.ErrValidation), name)
	}
	assert.Empty(t, f.exceptions.items)
}

func TestExceptionServiceUnknownRoomAndSlot(t *testing.T) {
	f := newExceptionServiceFixture(referenceStub{missing: map[string]bool{"room-x": true}})
	ctx := context.Background()

	_, err := f.svc.Upsert(ctx, testSchool, "slot-s", day("2025-03-10"), dto.UpsertExceptionRequest{Type: "ROOM_CHANGE", NewRoomID: strPtr("room-x")})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.Upsert(ctx, testSchool, "slot-missing", day("2025-03-10"), dto.UpsertExceptionRequest{Type: "CANCELLED"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.ResolveOccurrence(ctx, "school-2", "slot-s", day("2025-03-10"))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestExceptionServiceDelete(t *testing.T) {
	f := newExceptionServiceFixture(referenceStub{})
	ctx := context.Background()

	_, err := f.svc.Upsert(ctx, testSchool, "slot-s", day("2025-03-10"), dto.UpsertExceptionRequest{Type: "CANCELLED"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, testSchool, "slot-s", day("2025-03-10")))

	occurrence, err := f.svc.ResolveOccurrence(ctx, testSchool, "slot-s", day("2025-03-10"))
	require.NoError(t, err)
	assert.False(t, occurrence.Cancelled)

	err = f.svc.Delete(ctx, testSchool, "slot-s", day("2025-03-10"))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestExceptionServiceListRange(t *testing.T) {
	f := newExceptionServiceFixture(referenceStub{})
	ctx := context.Background()

	for _, raw := range []string{"2025-03-17", "2025-03-03", "2025-03-10"} {
		_, err := f.svc.Upsert(ctx, testSchool, "slot-s", day(raw), dto.UpsertExceptionRequest{Type: "CANCELLED"})
		require.NoError(t, err)
	}

	from, to := day("2025-03-05"), day("2025-03-31")
	items, err := f.svc.ListForSlot(ctx, testSchool, "slot-s", &from, &to)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2025-03-10", items[0].Date.Format(dateLayout))
	assert.Equal(t, "2025-03-17", items[1].Date.Format(dateLayout))

	_, err = f.svc.ListForSlot(ctx, testSchool, "slot-s", &to, &from)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestExceptionServiceDayOccurrences(t *testing.T) {
	late := existingSlot("slot-late", "teacher-t", models.ClassTarget("class-c1"), "", 0, "10:00", "11:00", models.WeekPatternAll)
	early := existingSlot("slot-early", "teacher-u", models.ClassTarget("class-c1"), "", 0, "08:00", "09:00", models.WeekPatternAll)
	weekB := existingSlot("slot-b", "teacher-v", models.ClassTarget("class-c1"), "", 0, "12:00", "13:00", models.WeekPatternB)
	tuesday := existingSlot("slot-tue", "teacher-t", models.ClassTarget("class-c1"), "", 1, "08:00", "09:00", models.WeekPatternAll)
	f := newExceptionServiceFixture(referenceStub{}, late, early, weekB, tuesday)
	ctx := context.Background()

	_, err := f.svc.Upsert(ctx, testSchool, "slot-early", day("2025-03-10"), dto.UpsertExceptionRequest{
		Type:         "MOVED",
		NewStartTime: strPtr("13:00"),
		NewEndTime:   strPtr("14:00"),
	})
	require.NoError(t, err)

	occurrences, err := f.svc.DayOccurrences(ctx, testSchool, "tt-1", day("2025-03-10"), models.SlotFilter{})
	require.NoError(t, err)
	require.Len(t, occurrences, 2)
	assert.Equal(t, "slot-late", occurrences[0].SlotID)
	assert.Equal(t, "slot-early", occurrences[1].SlotID)
	assert.Equal(t, timeofday.MustParse("13:00"), occurrences[1].StartTime)

	occurrences, err = f.svc.DayOccurrences(ctx, testSchool, "tt-1", day("2025-03-17"), models.SlotFilter{TeacherID: "teacher-v"})
	require.NoError(t, err)
	require.Len(t, occurrences, 1)
	assert.Equal(t, "slot-b", occurrences[0].SlotID)
}

func TestExceptionServiceDayOccurrencesFiltersResolvedTeacherAndRoom(t *testing.T) {
	math := existingSlot("slot-math", "teacher-t", models.ClassTarget("class-c1"), "room-r1", 0, "08:00", "09:00", models.WeekPatternAll)
	art := existingSlot("slot-art", "teacher-u", models.ClassTarget("class-c1"), "room-r1", 0, "09:00", "10:00", models.WeekPatternAll)
	f := newExceptionServiceFixture(referenceStub{}, math, art)
	ctx := context.Background()
	date := day("2025-03-10")

	_, err := f.svc.Upsert(ctx, testSchool, "slot-math", date, dto.UpsertExceptionRequest{Type: "MOVED", NewTeacherID: strPtr("teacher-sub")})
	require.NoError(t, err)
	_, err = f.svc.Upsert(ctx, testSchool, "slot-art", date, dto.UpsertExceptionRequest{Type: "ROOM_CHANGE", NewRoomID: strPtr("room-r9")})
	require.NoError(t, err)

	substitute, err := f.svc.DayOccurrences(ctx, testSchool, "tt-1", date, models.SlotFilter{TeacherID: "teacher-sub"})
	require.NoError(t, err)
	require.Len(t, substitute, 1)
	assert.Equal(t, "slot-math", substitute[0].SlotID)

	original, err := f.svc.DayOccurrences(ctx, testSchool, "tt-1", date, models.SlotFilter{TeacherID: "teacher-t"})
	require.NoError(t, err)
	assert.Empty(t, original)

	newRoom, err := f.svc.DayOccurrences(ctx, testSchool, "tt-1", date, models.SlotFilter{RoomID: "room-r9"})
	require.NoError(t, err)
	require.Len(t, newRoom, 1)
	assert.Equal(t, "slot-art", newRoom[0].SlotID)

	oldRoom, err := f.svc.DayOccurrences(ctx, testSchool, "tt-1", date, models.SlotFilter{RoomID: "room-r1"})
	require.NoError(t, err)
	require.Len(t, oldRoom, 1)
	assert.Equal(t, "slot-math", oldRoom[0].SlotID)

	nextWeek, err := f.svc.DayOccurrences(ctx, testSchool, "tt-1", day("2025-03-17"), models.SlotFilter{TeacherID: "teacher-t"})
	require.NoError(t, err)
	require.Len(t, nextWeek, 1)
	assert.Equal(t, "slot-math", nextWeek[0].SlotID)
}
