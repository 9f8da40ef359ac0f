package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/timeofday"
)

const slotColumns = "id, timetable_id, class_id, group_id, subject_id, teacher_id, room_id, day_of_week, start_minute, end_minute, week_pattern, start_date, end_date, created_at, updated_at"

// slotRow mirrors the timetable_slots columns; the class/group pair collapses into models.SlotTarget.
type slotRow struct {
	ID          string     `db:"id"`
	TimetableID string     `db:"timetable_id"`
	ClassID     *string    `db:"class_id"`
	GroupID     *string    `db:"group_id"`
	SubjectID   string     `db:"subject_id"`
	TeacherID   string     `db:"teacher_id"`
	RoomID      *string    `db:"room_id"`
	DayOfWeek   int        `db:"day_of_week"`
	StartMinute int        `db:"start_minute"`
	EndMinute   int        `db:"end_minute"`
	WeekPattern string     `db:"week_pattern"`
	StartDate   *time.Time `db:"start_date"`
	EndDate     *time.Time `db:"end_date"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

func newSlotRow(slot *models.TimetableSlot) slotRow {
	row := slotRow{
		ID:          slot.ID,
		TimetableID: slot.TimetableID,
		SubjectID:   slot.SubjectID,
		TeacherID:   slot.TeacherID,
		RoomID:      slot.RoomID,
		DayOfWeek:   slot.DayOfWeek,
		StartMinute: int(slot.StartTime),
		EndMinute:   int(slot.EndTime),
		WeekPattern: string(slot.WeekPattern),
		StartDate:   slot.StartDate,
		EndDate:     slot.EndDate,
		CreatedAt:   slot.CreatedAt,
		UpdatedAt:   slot.UpdatedAt,
	}
	switch slot.Target.Kind {
	case models.SlotTargetClass:
		id := slot.Target.ID
		row.ClassID = &id
	case models.SlotTargetGroup:
		id := slot.Target.ID
		row.GroupID = &id
	}
	return row
}

func (row slotRow) toModel() models.TimetableSlot {
	slot := models.TimetableSlot{
		ID:          row.ID,
		TimetableID: row.TimetableID,
		SubjectID:   row.SubjectID,
		TeacherID:   row.TeacherID,
		RoomID:      row.RoomID,
		DayOfWeek:   row.DayOfWeek,
		StartTime:   timeofday.Minute(row.StartMinute),
		EndTime:     timeofday.Minute(row.EndMinute),
		WeekPattern: models.WeekPattern(row.WeekPattern),
		StartDate:   row.StartDate,
		EndDate:     row.EndDate,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.ClassID != nil {
		slot.Target = models.ClassTarget(*row.ClassID)
	} else if row.GroupID != nil {
		slot.Target = models.GroupTarget(*row.GroupID)
	}
	return slot
}

func slotsFromRows(rows []slotRow) []models.TimetableSlot {
	slots := make([]models.TimetableSlot, 0, len(rows))
	for _, row := range rows {
		slots = append(slots, row.toModel())
	}
	return slots
}

// TimetableSlotRepository persists recurring weekly slots.
type TimetableSlotRepository struct {
	db *sqlx.DB
}

// NewTimetableSlotRepository builds repository.
func NewTimetableSlotRepository(db *sqlx.DB) *TimetableSlotRepository {
	return &TimetableSlotRepository{db: db}
}

func (r *TimetableSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads a slot by id.
func (r *TimetableSlotRepository) FindByID(ctx context.Context, id string) (*models.TimetableSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_slots WHERE id = $1", slotColumns)
	var row slotRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	slot := row.toModel()
	return &slot, nil
}

// List returns the slots of a timetable ordered by day then start time.
func (r *TimetableSlotRepository) List(ctx context.Context, timetableID string, filter models.SlotFilter) ([]models.TimetableSlot, error) {
	base := "FROM timetable_slots WHERE timetable_id = $1"
	args := []interface{}{timetableID}
	var conditions []string

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.GroupID != "" {
		conditions = append(conditions, fmt.Sprintf("group_id = $%d", len(args)+1))
		args = append(args, filter.GroupID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.RoomID != "" {
		conditions = append(conditions, fmt.Sprintf("room_id = $%d", len(args)+1))
		args = append(args, filter.RoomID)
	}
	if filter.DayOfWeek != nil {
		conditions = append(conditions, fmt.Sprintf("day_of_week = $%d", len(args)+1))
		args = append(args, *filter.DayOfWeek)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY day_of_week ASC, start_minute ASC, id ASC", slotColumns, base)
	var rows []slotRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list timetable slots: %w", err)
	}
	return slotsFromRows(rows), nil
}

// ListByDay returns every slot of the timetable on the weekday except excludeID.
func (r *TimetableSlotRepository) ListByDay(ctx context.Context, exec sqlx.ExtContext, timetableID string, dayOfWeek int, excludeID string) ([]models.TimetableSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_slots WHERE timetable_id = $1 AND day_of_week = $2", slotColumns)
	args := []interface{}{timetableID, dayOfWeek}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	query += " ORDER BY start_minute ASC, id ASC"

	var rows []slotRow
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list timetable slots by day: %w", err)
	}
	return slotsFromRows(rows), nil
}

// Create inserts a slot.
func (r *TimetableSlotRepository) Create(ctx context.Context, exec sqlx.ExtContext, slot *models.TimetableSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `INSERT INTO timetable_slots (id, timetable_id, class_id, group_id, subject_id, teacher_id, room_id, day_of_week, start_minute, end_minute, week_pattern, start_date, end_date, created_at, updated_at)
VALUES (:id, :timetable_id, :class_id, :group_id, :subject_id, :teacher_id, :room_id, :day_of_week, :start_minute, :end_minute, :week_pattern, :start_date, :end_date, :created_at, :updated_at)`
	row := newSlotRow(slot)
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, &row); err != nil {
		return fmt.Errorf("create timetable slot: %w", err)
	}
	return nil
}

// Update overwrites every mutable column of a slot.
func (r *TimetableSlotRepository) Update(ctx context.Context, exec sqlx.ExtContext, slot *models.TimetableSlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE timetable_slots SET class_id = :class_id, group_id = :group_id, subject_id = :subject_id, teacher_id = :teacher_id, room_id = :room_id, day_of_week = :day_of_week, start_minute = :start_minute, end_minute = :end_minute, week_pattern = :week_pattern, start_date = :start_date, end_date = :end_date, updated_at = :updated_at WHERE id = :id`
	row := newSlotRow(slot)
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, &row)
	if err != nil {
		return fmt.Errorf("update timetable slot: %w", err)
	}
	return requireAffected(result, "update timetable slot")
}

// Delete removes a slot; its exceptions cascade.
func (r *TimetableSlotRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM timetable_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete timetable slot: %w", err)
	}
	return requireAffected(result, "delete timetable slot")
}
