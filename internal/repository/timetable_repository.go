package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const timetableColumns = "id, school_id, academic_year_id, name, is_active, created_at, updated_at"

// TimetableRepository persists timetables and their activation state.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns timetables of a school with optional filters and pagination.
func (r *TimetableRepository) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error) {
	base := "FROM timetables WHERE school_id = $1"
	args := []interface{}{filter.SchoolID}
	var conditions []string

	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", timetableColumns, base, size, offset)
	var timetables []models.Timetable
	if err := r.db.SelectContext(ctx, &timetables, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list timetables: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count timetables: %w", err)
	}
	return timetables, total, nil
}

// FindByID loads a timetable by id.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	query := fmt.Sprintf("SELECT %s FROM timetables WHERE id = $1", timetableColumns)
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, id); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// LockByID loads a timetable holding a row lock until the surrounding transaction ends.
func (r *TimetableRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Timetable, error) {
	query := fmt.Sprintf("SELECT %s FROM timetables WHERE id = $1 FOR UPDATE", timetableColumns)
	var timetable models.Timetable
	if err := sqlx.GetContext(ctx, r.exec(exec), &timetable, query, id); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// FindActive returns the active timetable for a school. Without an academic year it picks the latest year.
func (r *TimetableRepository) FindActive(ctx context.Context, schoolID, academicYearID string) (*models.Timetable, error) {
	var (
		query string
		args  []interface{}
	)
	if academicYearID != "" {
		query = fmt.Sprintf("SELECT %s FROM timetables WHERE school_id = $1 AND academic_year_id = $2 AND is_active = TRUE", timetableColumns)
		args = []interface{}{schoolID, academicYearID}
	} else {
		query = `SELECT t.id, t.school_id, t.academic_year_id, t.name, t.is_active, t.created_at, t.updated_at
FROM timetables t JOIN academic_years y ON y.id = t.academic_year_id
WHERE t.school_id = $1 AND t.is_active = TRUE ORDER BY y.start_date DESC LIMIT 1`
		args = []interface{}{schoolID}
	}
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, args...); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// Create inserts a timetable.
func (r *TimetableRepository) Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = now
	}
	timetable.UpdatedAt = now

	const query = `INSERT INTO timetables (id, school_id, academic_year_id, name, is_active, created_at, updated_at) VALUES (:id, :school_id, :academic_year_id, :name, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, timetable); err != nil {
		return fmt.Errorf("create timetable: %w", err)
	}
	return nil
}

// UpdateName renames a timetable.
func (r *TimetableRepository) UpdateName(ctx context.Context, id, name string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE timetables SET name = $1, updated_at = $2 WHERE id = $3`, name, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("rename timetable: %w", err)
	}
	return requireAffected(result, "rename timetable")
}

// SetActive deactivates every sibling of the timetable in its school and academic year, then activates it.
// exec must be a transaction so no reader observes the intermediate state.
func (r *TimetableRepository) SetActive(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	target := r.exec(exec)
	now := time.Now().UTC()

	var locked []string
	if err := sqlx.SelectContext(ctx, target, &locked, `SELECT id FROM timetables WHERE school_id = $1 AND academic_year_id = $2 ORDER BY id FOR UPDATE`, timetable.SchoolID, timetable.AcademicYearID); err != nil {
		return fmt.Errorf("lock sibling timetables: %w", err)
	}

	if _, err := target.ExecContext(ctx, `UPDATE timetables SET is_active = FALSE, updated_at = $1 WHERE school_id = $2 AND academic_year_id = $3 AND is_active = TRUE AND id <> $4`, now, timetable.SchoolID, timetable.AcademicYearID, timetable.ID); err != nil {
		return fmt.Errorf("deactivate sibling timetables: %w", err)
	}

	result, err := target.ExecContext(ctx, `UPDATE timetables SET is_active = TRUE, updated_at = $1 WHERE id = $2`, now, timetable.ID)
	if err != nil {
		return fmt.Errorf("activate timetable: %w", err)
	}
	if err := requireAffected(result, "activate timetable"); err != nil {
		return err
	}
	timetable.IsActive = true
	timetable.UpdatedAt = now
	return nil
}

// CountSlots returns the number of slots owned by the timetable.
func (r *TimetableRepository) CountSlots(ctx context.Context, exec sqlx.ExtContext, id string) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, `SELECT COUNT(*) FROM timetable_slots WHERE timetable_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count timetable slots: %w", err)
	}
	return count, nil
}

// Delete removes a timetable.
func (r *TimetableRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM timetables WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}
	return requireAffected(result, "delete timetable")
}

func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
