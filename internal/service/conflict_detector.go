package service

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/timeofday"
)

type slotDayReader interface {
	ListByDay(ctx context.Context, exec sqlx.ExtContext, timetableID string, dayOfWeek int, excludeID string) ([]models.TimetableSlot, error)
}

// ConflictDetector finds the existing slots a candidate would double-book.
type ConflictDetector struct {
	slots   slotDayReader
	metrics *MetricsService
}

// NewConflictDetector constructs the detector.
func NewConflictDetector(slots slotDayReader, metrics *MetricsService) *ConflictDetector {
	return &ConflictDetector{slots: slots, metrics: metrics}
}

// Detect scans the candidate's timetable and weekday through exec, skipping excludeID. An empty result
// means the candidate can be written; only storage failures are returned as errors.
func (d *ConflictDetector) Detect(ctx context.Context, exec sqlx.ExtContext, candidate models.TimetableSlot, excludeID string) ([]models.SlotConflict, error) {
	existing, err := d.slots.ListByDay(ctx, exec, candidate.TimetableID, candidate.DayOfWeek, excludeID)
	if err != nil {
		return nil, err
	}
	conflicts := FindConflicts(candidate, existing)
	d.metrics.RecordSlotConflicts(conflicts)
	return conflicts, nil
}

// FindConflicts compares a candidate against slots of the same timetable and weekday. Conflicts are
// grouped by dimension (teacher, class, room) and keep the order of existing within each group.
func FindConflicts(candidate models.TimetableSlot, existing []models.TimetableSlot) []models.SlotConflict {
	var teacher, target, rooms []models.SlotConflict
	for _, other := range existing {
		if other.ID == candidate.ID && candidate.ID != "" {
			continue
		}
		if other.DayOfWeek != candidate.DayOfWeek {
			continue
		}
		if !candidate.WeekPattern.ConflictsWith(other.WeekPattern) {
			continue
		}
		if !timeofday.Overlaps(candidate.StartTime, candidate.EndTime, other.StartTime, other.EndTime) {
			continue
		}
		if other.TeacherID == candidate.TeacherID {
			teacher = append(teacher, newSlotConflict(models.ConflictTeacher, candidate.TeacherID, other))
		}
		if other.Target == candidate.Target {
			target = append(target, newSlotConflict(models.ConflictClass, candidate.Target.ID, other))
		}
		if room := candidate.Room(); room != "" && other.Room() == room {
			rooms = append(rooms, newSlotConflict(models.ConflictRoom, room, other))
		}
	}
	conflicts := append(teacher, target...)
	return append(conflicts, rooms...)
}

func newSlotConflict(dimension models.ConflictDimension, resourceID string, other models.TimetableSlot) models.SlotConflict {
	return models.SlotConflict{
		Dimension:         dimension,
		ConflictingSlotID: other.ID,
		ResourceID:        resourceID,
		DayOfWeek:         other.DayOfWeek,
		StartTime:         other.StartTime,
		EndTime:           other.EndTime,
		WeekPattern:       other.WeekPattern,
	}
}
