package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/timeofday"
)

type slotExceptionRepository interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, exception *models.SlotException) error
	FindBySlotAndDate(ctx context.Context, slotID string, date time.Time) (*models.SlotException, error)
	ListBySlot(ctx context.Context, slotID string, from, to *time.Time) ([]models.SlotException, error)
	ListForDate(ctx context.Context, slotIDs []string, date time.Time) ([]models.SlotException, error)
	Delete(ctx context.Context, slotID string, date time.Time) error
}

type slotLister interface {
	FindByID(ctx context.Context, id string) (*models.TimetableSlot, error)
	List(ctx context.Context, timetableID string, filter models.SlotFilter) ([]models.TimetableSlot, error)
}

// ExceptionService overlays single-date changes on recurring slots.
type ExceptionService struct {
	exceptions slotExceptionRepository
	slots      slotLister
	timetables timetableFinder
	years      academicYearReader
	refs       referenceChecker
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewExceptionService wires exception dependencies.
func NewExceptionService(
	exceptions slotExceptionRepository,
	slots slotLister,
	timetables timetableFinder,
	years academicYearReader,
	refs referenceChecker,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *ExceptionService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExceptionService{
		exceptions: exceptions,
		slots:      slots,
		timetables: timetables,
		years:      years,
		refs:       refs,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
	}
}

// Upsert creates or replaces the exception of a slot on a date the slot actually occurs on.
func (s *ExceptionService) Upsert(ctx context.Context, schoolID, slotID string, date time.Time, req dto.UpsertExceptionRequest) (*models.SlotException, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exception payload")
	}
	exception, err := buildException(slotID, date, req)
	if err != nil {
		return nil, err
	}

	slot, year, err := s.loadSlotYear(ctx, schoolID, slotID)
	if err != nil {
		return nil, err
	}
	if !OccursOn(*slot, *year, date) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot does not occur on %s", date.Format(dateLayout)))
	}

	var teacherID, roomID string
	if exception.NewTeacherID != nil {
		teacherID = *exception.NewTeacherID
	}
	if exception.NewRoomID != nil {
		roomID = *exception.NewRoomID
	}
	if err := ensureReferences(ctx, s.logger, s.refs, schoolID,
		reference{kind: models.ReferenceRoom, id: roomID},
		reference{kind: models.ReferenceTeacher, id: teacherID},
	); err != nil {
		return nil, err
	}

	if err := s.exceptions.Upsert(ctx, nil, exception); err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "referenced entity not found")
		}
		return nil, storageError(s.logger, err, "failed to save slot exception")
	}
	s.metrics.RecordExceptionWrite(exception.Type)
	return exception, nil
}

// ResolveOccurrence returns what happens for the slot on the date after applying its exception.
func (s *ExceptionService) ResolveOccurrence(ctx context.Context, schoolID, slotID string, date time.Time) (*models.Occurrence, error) {
	slot, year, err := s.loadSlotYear(ctx, schoolID, slotID)
	if err != nil {
		return nil, err
	}
	if !OccursOn(*slot, *year, date) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot does not occur on %s", date.Format(dateLayout)))
	}

	exception, err := s.exceptions.FindBySlotAndDate(ctx, slot.ID, date)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, storageError(s.logger, err, "failed to load slot exception")
		}
		exception = nil
	}
	occurrence := Resolve(*slot, date, exception)
	return &occurrence, nil
}

// ListForSlot returns the exceptions of a slot ordered by date within the optional inclusive range.
func (s *ExceptionService) ListForSlot(ctx context.Context, schoolID, slotID string, from, to *time.Time) ([]models.SlotException, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	slot, _, err := findScopedSlot(ctx, s.logger, s.slots, s.timetables, schoolID, slotID)
	if err != nil {
		return nil, err
	}
	items, err := s.exceptions.ListBySlot(ctx, slot.ID, from, to)
	if err != nil {
		return nil, storageError(s.logger, err, "failed to list slot exceptions")
	}
	return items, nil
}

// Delete rescinds the exception of a slot on a date.
func (s *ExceptionService) Delete(ctx context.Context, schoolID, slotID string, date time.Time) error {
	slot, _, err := findScopedSlot(ctx, s.logger, s.slots, s.timetables, schoolID, slotID)
	if err != nil {
		return err
	}
	if err := s.exceptions.Delete(ctx, slot.ID, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "slot exception not found")
		}
		return storageError(s.logger, err, "failed to delete slot exception")
	}
	return nil
}

// DayOccurrences builds the effective schedule of a timetable on a date ordered by start time.
// Cancelled occurrences are kept and flagged.
func (s *ExceptionService) DayOccurrences(ctx context.Context, schoolID, timetableID string, date time.Time, filter models.SlotFilter) ([]models.Occurrence, error) {
	timetable, err := findScopedTimetable(ctx, s.logger, s.timetables, schoolID, timetableID)
	if err != nil {
		return nil, err
	}
	year, err := findScopedAcademicYear(ctx, s.logger, s.years, schoolID, timetable.AcademicYearID)
	if err != nil {
		return nil, err
	}

	// teacher and room filters apply to the resolved occurrence
	day := models.DayOfWeek(date)
	slots, err := s.slots.List(ctx, timetable.ID, models.SlotFilter{ClassID: filter.ClassID, GroupID: filter.GroupID, DayOfWeek: &day})
	if err != nil {
		return nil, storageError(s.logger, err, "failed to list slots")
	}

	occurring := make([]models.TimetableSlot, 0, len(slots))
	ids := make([]string, 0, len(slots))
	for _, slot := range slots {
		if OccursOn(slot, *year, date) {
			occurring = append(occurring, slot)
			ids = append(ids, slot.ID)
		}
	}

	exceptions, err := s.exceptions.ListForDate(ctx, ids, date)
	if err != nil {
		return nil, storageError(s.logger, err, "failed to list slot exceptions")
	}
	bySlot := make(map[string]*models.SlotException, len(exceptions))
	for i := range exceptions {
		bySlot[exceptions[i].SlotID] = &exceptions[i]
	}

	occurrences := make([]models.Occurrence, 0, len(occurring))
	for _, slot := range occurring {
		occ := Resolve(slot, date, bySlot[slot.ID])
		if filter.TeacherID != "" && occ.TeacherID != filter.TeacherID {
			continue
		}
		if filter.RoomID != "" && (occ.RoomID == nil || *occ.RoomID != filter.RoomID) {
			continue
		}
		occurrences = append(occurrences, occ)
	}
	sort.SliceStable(occurrences, func(i, j int) bool {
		if occurrences[i].StartTime != occurrences[j].StartTime {
			return occurrences[i].StartTime < occurrences[j].StartTime
		}
		return occurrences[i].SlotID < occurrences[j].SlotID
	})
	return occurrences, nil
}

func (s *ExceptionService) loadSlotYear(ctx context.Context, schoolID, slotID string) (*models.TimetableSlot, *models.AcademicYear, error) {
	slot, timetable, err := findScopedSlot(ctx, s.logger, s.slots, s.timetables, schoolID, slotID)
	if err != nil {
		return nil, nil, err
	}
	year, err := findScopedAcademicYear(ctx, s.logger, s.years, schoolID, timetable.AcademicYearID)
	if err != nil {
		return nil, nil, err
	}
	return slot, year, nil
}

// buildException checks the payload against its type: CANCELLED carries no overrides, ROOM_CHANGE carries
// only a room, MOVED carries at least one override and new times come as an ordered pair.
func buildException(slotID string, date time.Time, req dto.UpsertExceptionRequest) (*models.SlotException, error) {
	exception := &models.SlotException{
		SlotID:       slotID,
		Date:         models.DateOnly(date),
		Type:         models.ExceptionType(req.Type),
		NewRoomID:    req.NewRoomID,
		NewTeacherID: req.NewTeacherID,
		Note:         req.Note,
	}
	if !exception.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "type must be one of CANCELLED, MOVED, ROOM_CHANGE")
	}

	if (req.NewStartTime == nil) != (req.NewEndTime == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "new_start_time and new_end_time must be given together")
	}
	if req.NewStartTime != nil {
		start, err := timeofday.Parse(*req.NewStartTime)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		end, err := timeofday.Parse(*req.NewEndTime)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		if end <= start {
			return nil, appErrors.Clone(appErrors.ErrValidation, "new_end_time must be after new_start_time")
		}
		exception.NewStartTime = &start
		exception.NewEndTime = &end
	}

	hasTime := exception.NewStartTime != nil
	switch exception.Type {
	case models.ExceptionCancelled:
		if exception.NewRoomID != nil || exception.NewTeacherID != nil || hasTime {
			return nil, appErrors.Clone(appErrors.ErrValidation, "a cancellation cannot carry overrides")
		}
	case models.ExceptionRoomChange:
		if exception.NewRoomID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "new_room_id is required for ROOM_CHANGE")
		}
		if exception.NewTeacherID != nil || hasTime {
			return nil, appErrors.Clone(appErrors.ErrValidation, "ROOM_CHANGE only overrides the room")
		}
	case models.ExceptionMoved:
		if exception.NewRoomID == nil && exception.NewTeacherID == nil && !hasTime {
			return nil, appErrors.Clone(appErrors.ErrValidation, "MOVED requires a new room, teacher or time")
		}
	}
	return exception, nil
}
