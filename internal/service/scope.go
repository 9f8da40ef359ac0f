package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type timetableFinder interface {
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
}

type slotFinder interface {
	FindByID(ctx context.Context, id string) (*models.TimetableSlot, error)
}

type academicYearReader interface {
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
}

type referenceChecker interface {
	Exists(ctx context.Context, kind models.ReferenceKind, schoolID, id string) (bool, error)
}

// storageError logs a storage failure and hides it behind an internal error carrying message.
func storageError(logger *zap.Logger, err error, message string) error {
	logger.Error(message, zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// lookupError maps a failed read onto the API error for the entity. An id PostgreSQL cannot parse matches no row.
func lookupError(logger *zap.Logger, err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) || database.IsInvalidTextRepresentation(err) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return storageError(logger, err, "failed to load "+entity)
}

// findScopedTimetable loads a timetable owned by the school. Timetables of other schools are reported as missing.
func findScopedTimetable(ctx context.Context, logger *zap.Logger, repo timetableFinder, schoolID, id string) (*models.Timetable, error) {
	timetable, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(logger, err, "timetable")
	}
	if timetable.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	return timetable, nil
}

// findScopedSlot loads a slot together with its timetable, both owned by the school.
func findScopedSlot(ctx context.Context, logger *zap.Logger, slots slotFinder, timetables timetableFinder, schoolID, slotID string) (*models.TimetableSlot, *models.Timetable, error) {
	slot, err := slots.FindByID(ctx, slotID)
	if err != nil {
		return nil, nil, lookupError(logger, err, "slot")
	}
	timetable, err := timetables.FindByID(ctx, slot.TimetableID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, nil, lookupError(logger, err, "timetable")
	}
	if timetable.SchoolID != schoolID {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
	}
	return slot, timetable, nil
}

func findScopedAcademicYear(ctx context.Context, logger *zap.Logger, repo academicYearReader, schoolID, id string) (*models.AcademicYear, error) {
	year, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(logger, err, "academic year")
	}
	if year.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
	}
	return year, nil
}

type reference struct {
	kind models.ReferenceKind
	id   string
}

// ensureReferences fails with NotFound for the first reference missing from the school.
func ensureReferences(ctx context.Context, logger *zap.Logger, checker referenceChecker, schoolID string, refs ...reference) error {
	for _, ref := range refs {
		if ref.id == "" {
			continue
		}
		ok, err := checker.Exists(ctx, ref.kind, schoolID, ref.id)
		if err != nil {
			if database.IsInvalidTextRepresentation(err) {
				return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", ref.kind))
			}
			logger.Error("reference check failed", zap.String("kind", string(ref.kind)), zap.Error(err))
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to check %s", ref.kind))
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", ref.kind))
		}
	}
	return nil
}

func targetReference(target models.SlotTarget) reference {
	if target.Kind == models.SlotTargetGroup {
		return reference{kind: models.ReferenceGroup, id: target.ID}
	}
	return reference{kind: models.ReferenceClass, id: target.ID}
}

// ParseDate reads a YYYY-MM-DD calendar date as UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	date, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", raw))
	}
	return date, nil
}
