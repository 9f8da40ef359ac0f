package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

var referenceTables = map[models.ReferenceKind]string{
	models.ReferenceTeacher: "teachers",
	models.ReferenceClass:   "classes",
	models.ReferenceGroup:   "student_groups",
	models.ReferenceRoom:    "rooms",
	models.ReferenceSubject: "subjects",
}

// ReferenceRepository answers existence checks for entities referenced by slots.
type ReferenceRepository struct {
	db *sqlx.DB
}

// NewReferenceRepository constructs repository.
func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// Exists reports whether the referenced row exists inside the school.
func (r *ReferenceRepository) Exists(ctx context.Context, kind models.ReferenceKind, schoolID, id string) (bool, error) {
	table, ok := referenceTables[kind]
	if !ok {
		return false, fmt.Errorf("unknown reference kind %q", kind)
	}
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE id = $1 AND school_id = $2 LIMIT 1", table)
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, id, schoolID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check %s reference: %w", kind, err)
	}
	return true, nil
}
