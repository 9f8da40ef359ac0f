package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/timeofday"
)

var slotColumnNames = []string{"id", "timetable_id", "class_id", "group_id", "subject_id", "teacher_id", "room_id", "day_of_week", "start_minute", "end_minute", "week_pattern", "start_date", "end_date", "created_at", "updated_at"}

func TestTimetableSlotRepositoryListByDayExcludesSlot(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableSlotRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(slotColumnNames).
		AddRow("slot-2", "tt-1", nil, "group-1", "sub-1", "teacher-1", "room-1", 0, 540, 600, "A", nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_slots WHERE timetable_id = $1 AND day_of_week = $2 AND id <> $3 ORDER BY start_minute ASC, id ASC")).
		WithArgs("tt-1", 0, "slot-1").
		WillReturnRows(rows)

	slots, err := repo.ListByDay(context.Background(), nil, "tt-1", 0, "slot-1")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, models.GroupTarget("group-1"), slots[0].Target)
	assert.Equal(t, timeofday.MustParse("09:00"), slots[0].StartTime)
	assert.Equal(t, models.WeekPatternA, slots[0].WeekPattern)
	assert.Equal(t, "room-1", slots[0].Room())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableSlotRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableSlotRepository(db)

	day := 2
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_slots WHERE timetable_id = $1 AND teacher_id = $2 AND day_of_week = $3 ORDER BY day_of_week ASC, start_minute ASC, id ASC")).
		WithArgs("tt-1", "teacher-1", 2).
		WillReturnRows(sqlmock.NewRows(slotColumnNames))

	slots, err := repo.List(context.Background(), "tt-1", models.SlotFilter{TeacherID: "teacher-1", DayOfWeek: &day})
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableSlotRepositoryCreateSplitsTarget(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableSlotRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_slots")).
		WithArgs(sqlmock.AnyArg(), "tt-1", "class-1", nil, "sub-1", "teacher-1", nil, 0, 540, 600, "ALL", nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	slot := &models.TimetableSlot{
		TimetableID: "tt-1",
		Target:      models.ClassTarget("class-1"),
		SubjectID:   "sub-1",
		TeacherID:   "teacher-1",
		DayOfWeek:   0,
		StartTime:   timeofday.MustParse("09:00"),
		EndTime:     timeofday.MustParse("10:00"),
		WeekPattern: models.WeekPatternAll,
	}
	require.NoError(t, repo.Create(context.Background(), nil, slot))
	assert.NotEmpty(t, slot.ID)
	assert.False(t, slot.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
