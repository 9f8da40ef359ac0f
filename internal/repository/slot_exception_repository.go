package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const (
	exceptionColumns = "id, slot_id, exception_date, type, new_room_id, new_teacher_id, new_start_minute, new_end_minute, note, created_at, updated_at"
	dateLayout       = "2006-01-02"
)

// SlotExceptionRepository persists single-date overrides of slots.
type SlotExceptionRepository struct {
	db *sqlx.DB
}

// NewSlotExceptionRepository builds repository.
func NewSlotExceptionRepository(db *sqlx.DB) *SlotExceptionRepository {
	return &SlotExceptionRepository{db: db}
}

func (r *SlotExceptionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Upsert writes the exception for (slot, date) in one statement. An existing row keeps its id and
// creation time; every other column takes the new values.
func (r *SlotExceptionRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, exception *models.SlotException) error {
	if exception.ID == "" {
		exception.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	exception.CreatedAt = now
	exception.UpdatedAt = now

	const query = `
INSERT INTO slot_exceptions (id, slot_id, exception_date, type, new_room_id, new_teacher_id, new_start_minute, new_end_minute, note, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (slot_id, exception_date) DO UPDATE
SET type = EXCLUDED.type,
    new_room_id = EXCLUDED.new_room_id,
    new_teacher_id = EXCLUDED.new_teacher_id,
    new_start_minute = EXCLUDED.new_start_minute,
    new_end_minute = EXCLUDED.new_end_minute,
    note = EXCLUDED.note,
    updated_at = EXCLUDED.updated_at
RETURNING id, created_at`

	row := r.exec(exec).QueryRowxContext(ctx, query,
		exception.ID,
		exception.SlotID,
		exception.Date.Format(dateLayout),
		exception.Type,
		exception.NewRoomID,
		exception.NewTeacherID,
		exception.NewStartTime,
		exception.NewEndTime,
		exception.Note,
		exception.CreatedAt,
		exception.UpdatedAt,
	)
	if err := row.Scan(&exception.ID, &exception.CreatedAt); err != nil {
		return fmt.Errorf("upsert slot exception: %w", err)
	}
	return nil
}

// FindBySlotAndDate loads the exception for a slot on a date.
func (r *SlotExceptionRepository) FindBySlotAndDate(ctx context.Context, slotID string, date time.Time) (*models.SlotException, error) {
	query := fmt.Sprintf("SELECT %s FROM slot_exceptions WHERE slot_id = $1 AND exception_date = $2", exceptionColumns)
	var exception models.SlotException
	if err := r.db.GetContext(ctx, &exception, query, slotID, date.Format(dateLayout)); err != nil {
		return nil, err
	}
	return &exception, nil
}

// ListBySlot returns the exceptions of a slot ordered by date, optionally bounded (inclusive).
func (r *SlotExceptionRepository) ListBySlot(ctx context.Context, slotID string, from, to *time.Time) ([]models.SlotException, error) {
	query := fmt.Sprintf("SELECT %s FROM slot_exceptions WHERE slot_id = $1", exceptionColumns)
	args := []interface{}{slotID}
	if from != nil {
		query += fmt.Sprintf(" AND exception_date >= $%d", len(args)+1)
		args = append(args, from.Format(dateLayout))
	}
	if to != nil {
		query += fmt.Sprintf(" AND exception_date <= $%d", len(args)+1)
		args = append(args, to.Format(dateLayout))
	}
	query += " ORDER BY exception_date ASC"

	var exceptions []models.SlotException
	if err := r.db.SelectContext(ctx, &exceptions, query, args...); err != nil {
		return nil, fmt.Errorf("list slot exceptions: %w", err)
	}
	return exceptions, nil
}

// ListDates returns the dates the slot has exceptions on, ordered, reading through exec when given.
func (r *SlotExceptionRepository) ListDates(ctx context.Context, exec sqlx.ExtContext, slotID string) ([]time.Time, error) {
	var dates []time.Time
	if err := sqlx.SelectContext(ctx, r.exec(exec), &dates, `SELECT exception_date FROM slot_exceptions WHERE slot_id = $1 ORDER BY exception_date ASC`, slotID); err != nil {
		return nil, fmt.Errorf("list slot exception dates: %w", err)
	}
	return dates, nil
}

// ListForDate returns the exceptions of the given slots on one date.
func (r *SlotExceptionRepository) ListForDate(ctx context.Context, slotIDs []string, date time.Time) ([]models.SlotException, error) {
	if len(slotIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM slot_exceptions WHERE exception_date = ? AND slot_id IN (?)", exceptionColumns), date.Format(dateLayout), slotIDs)
	if err != nil {
		return nil, fmt.Errorf("build slot exceptions query: %w", err)
	}
	var exceptions []models.SlotException
	if err := r.db.SelectContext(ctx, &exceptions, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list slot exceptions for date: %w", err)
	}
	return exceptions, nil
}

// Delete removes the exception of a slot on a date.
func (r *SlotExceptionRepository) Delete(ctx context.Context, slotID string, date time.Time) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM slot_exceptions WHERE slot_id = $1 AND exception_date = $2`, slotID, date.Format(dateLayout))
	if err != nil {
		return fmt.Errorf("delete slot exception: %w", err)
	}
	return requireAffected(result, "delete slot exception")
}
