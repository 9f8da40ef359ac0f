package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
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

type slotRepository interface {
	FindByID(ctx context.Context, id string) (*models.TimetableSlot, error)
	List(ctx context.Context, timetableID string, filter models.SlotFilter) ([]models.TimetableSlot, error)
	Create(ctx context.Context, exec sqlx.ExtContext, slot *models.TimetableSlot) error
	Update(ctx context.Context, exec sqlx.ExtContext, slot *models.TimetableSlot) error
	Delete(ctx context.Context, id string) error
}

type timetableLocker interface {
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Timetable, error)
}

type slotExceptionDates interface {
	ListDates(ctx context.Context, exec sqlx.ExtContext, slotID string) ([]time.Time, error)
}

type slotConflictDetector interface {
	Detect(ctx context.Context, exec sqlx.ExtContext, candidate models.TimetableSlot, excludeID string) ([]models.SlotConflict, error)
}

// exclusion constraints of timetable_slots mapped to the resource they protect.
var exclusionDimensions = map[string]models.ConflictDimension{
	"timetable_slots_teacher_excl": models.ConflictTeacher,
	"timetable_slots_class_excl":   models.ConflictClass,
	"timetable_slots_group_excl":   models.ConflictClass,
	"timetable_slots_room_excl":    models.ConflictRoom,
}

// SlotService manages recurring slots behind the conflict gate.
type SlotService struct {
	slots      slotRepository
	timetables timetableLocker
	years      academicYearReader
	refs       referenceChecker
	detector   slotConflictDetector
	exceptions slotExceptionDates
	tx         txProvider
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSlotService wires slot dependencies.
func NewSlotService(
	slots slotRepository,
	timetables timetableLocker,
	years academicYearReader,
	refs referenceChecker,
	detector slotConflictDetector,
	exceptions slotExceptionDates,
	tx txProvider,
	cache *CacheService,
	validate *validator.Validate,
	logger *zap.Logger,
) *SlotService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{
		slots:      slots,
		timetables: timetables,
		years:      years,
		refs:       refs,
		detector:   detector,
		exceptions: exceptions,
		tx:         tx,
		cache:      cache,
		validator:  validate,
		logger:     logger,
	}
}

// Get returns a slot of the school.
func (s *SlotService) Get(ctx context.Context, schoolID, slotID string) (*models.TimetableSlot, error) {
	slot, _, err := findScopedSlot(ctx, s.logger, s.slots, s.timetables, schoolID, slotID)
	return slot, err
}

// List returns the slots of a timetable ordered by day and start time.
func (s *SlotService) List(ctx context.Context, schoolID, timetableID string, filter models.SlotFilter) ([]models.TimetableSlot, error) {
	if _, err := findScopedTimetable(ctx, s.logger, s.timetables, schoolID, timetableID); err != nil {
		return nil, err
	}
	if filter.DayOfWeek != nil && (*filter.DayOfWeek < 0 || *filter.DayOfWeek > 6) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dayOfWeek must be between 0 and 6")
	}

	cacheable := filter == (models.SlotFilter{})
	var key string
	if cacheable {
		key = s.cache.VersionedKey(ctx, slotListScope(timetableID), "all")
		var cached []models.TimetableSlot
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached, nil
		}
	}

	slots, err := s.slots.List(ctx, timetableID, filter)
	if err != nil {
		return nil, storageError(s.logger, err, "failed to list slots")
	}
	if cacheable {
		_ = s.cache.Set(ctx, key, slots, 0)
	}
	return slots, nil
}

// Create validates the draft and persists it when no resource is double-booked.
func (s *SlotService) Create(ctx context.Context, schoolID, timetableID string, req dto.CreateSlotRequest) (*models.TimetableSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	timetable, err := findScopedTimetable(ctx, s.logger, s.timetables, schoolID, timetableID)
	if err != nil {
		return nil, err
	}

	target, err := models.NewSlotTarget(req.ClassID, req.GroupID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	start, err := timeofday.Parse(req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	end, err := timeofday.Parse(req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	pattern := models.WeekPattern(req.WeekPattern)
	if pattern == "" {
		pattern = models.WeekPatternAll
	}

	slot := &models.TimetableSlot{
		TimetableID: timetable.ID,
		Target:      target,
		SubjectID:   req.SubjectID,
		TeacherID:   req.TeacherID,
		RoomID:      req.RoomID,
		DayOfWeek:   *req.DayOfWeek,
		StartTime:   start,
		EndTime:     end,
		WeekPattern: pattern,
	}
	if slot.StartDate, err = parseOptionalDate(req.StartDate); err != nil {
		return nil, err
	}
	if slot.EndDate, err = parseOptionalDate(req.EndDate); err != nil {
		return nil, err
	}

	if err := s.validateSlot(ctx, schoolID, timetable, slot); err != nil {
		return nil, err
	}
	if err := s.write(ctx, slot, "", nil, s.slots.Create); err != nil {
		return nil, err
	}
	s.logger.Info("slot created", zap.String("slot_id", slot.ID), zap.String("timetable_id", slot.TimetableID))
	return slot, nil
}

// Update merges the patch onto the stored slot and re-runs the conflict gate without the slot itself.
func (s *SlotService) Update(ctx context.Context, schoolID, slotID string, req dto.UpdateSlotRequest) (*models.TimetableSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	current, timetable, err := findScopedSlot(ctx, s.logger, s.slots, s.timetables, schoolID, slotID)
	if err != nil {
		return nil, err
	}

	merged, err := applySlotUpdate(*current, req)
	if err != nil {
		return nil, err
	}
	if err := s.validateSlot(ctx, schoolID, timetable, &merged); err != nil {
		return nil, err
	}

	var guard func(context.Context, sqlx.ExtContext) error
	if recurrenceChanged(*current, merged) {
		year, err := findScopedAcademicYear(ctx, s.logger, s.years, schoolID, timetable.AcademicYearID)
		if err != nil {
			return nil, err
		}
		guard = func(ctx context.Context, exec sqlx.ExtContext) error {
			return s.ensureExceptionsStillOccur(ctx, exec, merged, *year)
		}
	}
	if err := s.write(ctx, &merged, merged.ID, guard, s.slots.Update); err != nil {
		return nil, err
	}
	return &merged, nil
}

// ensureExceptionsStillOccur rejects a change that would leave exceptions on dates the slot no longer occurs on.
func (s *SlotService) ensureExceptionsStillOccur(ctx context.Context, exec sqlx.ExtContext, slot models.TimetableSlot, year models.AcademicYear) error {
	if s.exceptions == nil {
		return nil
	}
	dates, err := s.exceptions.ListDates(ctx, exec, slot.ID)
	if err != nil {
		return storageError(s.logger, err, "failed to check slot exceptions")
	}
	var stranded []string
	for _, date := range dates {
		if !OccursOn(slot, year, date) {
			stranded = append(stranded, date.Format(dateLayout))
		}
	}
	if len(stranded) == 0 {
		return nil
	}
	conflict := appErrors.Clone(appErrors.ErrConflict, "slot has exceptions on dates it would no longer occur on")
	return appErrors.WithDetails(conflict, map[string]interface{}{"exception_dates": stranded})
}

// recurrenceChanged reports whether the set of dates the slot occurs on may differ.
func recurrenceChanged(before, after models.TimetableSlot) bool {
	return before.DayOfWeek != after.DayOfWeek ||
		before.WeekPattern != after.WeekPattern ||
		!sameDate(before.StartDate, after.StartDate) ||
		!sameDate(before.EndDate, after.EndDate)
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Delete removes a slot and, through the foreign key, its exceptions.
func (s *SlotService) Delete(ctx context.Context, schoolID, slotID string) error {
	slot, _, err := findScopedSlot(ctx, s.logger, s.slots, s.timetables, schoolID, slotID)
	if err != nil {
		return err
	}
	if err := s.slots.Delete(ctx, slot.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return storageError(s.logger, err, "failed to delete slot")
	}
	s.invalidate(ctx, slot.TimetableID)
	return nil
}

func (s *SlotService) validateSlot(ctx context.Context, schoolID string, timetable *models.Timetable, slot *models.TimetableSlot) error {
	if slot.DayOfWeek < 0 || slot.DayOfWeek > 6 {
		return appErrors.Clone(appErrors.ErrValidation, "day_of_week must be between 0 and 6")
	}
	if !slot.StartTime.Valid() || !slot.EndTime.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "slot times must fall within a day")
	}
	if slot.EndTime <= slot.StartTime {
		return appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	if !slot.WeekPattern.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "week_pattern must be one of ALL, A, B")
	}
	if slot.StartDate != nil && slot.EndDate != nil && slot.EndDate.Before(*slot.StartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "start_date must not be after end_date")
	}
	if slot.StartDate != nil || slot.EndDate != nil {
		year, err := findScopedAcademicYear(ctx, s.logger, s.years, schoolID, timetable.AcademicYearID)
		if err != nil {
			return err
		}
		if slot.StartDate != nil && !year.Contains(*slot.StartDate) {
			return appErrors.Clone(appErrors.ErrValidation, "start_date must fall within the academic year")
		}
		if slot.EndDate != nil && !year.Contains(*slot.EndDate) {
			return appErrors.Clone(appErrors.ErrValidation, "end_date must fall within the academic year")
		}
	}

	return ensureReferences(ctx, s.logger, s.refs, schoolID,
		reference{kind: models.ReferenceTeacher, id: slot.TeacherID},
		reference{kind: models.ReferenceSubject, id: slot.SubjectID},
		targetReference(slot.Target),
		reference{kind: models.ReferenceRoom, id: slot.Room()},
	)
}

// write runs lock, detection, the optional guard and persistence in one transaction so concurrent writers
// of a timetable cannot both pass the conflict scan.
func (s *SlotService) write(ctx context.Context, slot *models.TimetableSlot, excludeID string, guard func(context.Context, sqlx.ExtContext) error, persist func(context.Context, sqlx.ExtContext, *models.TimetableSlot) error) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return storageError(s.logger, err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.timetables.LockByID(ctx, tx, slot.TimetableID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
			return err
		}
		err = storageError(s.logger, err, "failed to lock timetable")
		return err
	}

	var conflicts []models.SlotConflict
	conflicts, err = s.detector.Detect(ctx, tx, *slot, excludeID)
	if err != nil {
		err = storageError(s.logger, err, "failed to check slot conflicts")
		return err
	}
	if len(conflicts) > 0 {
		err = newSlotConflictError(conflicts)
		return err
	}
	if guard != nil {
		if err = guard(ctx, tx); err != nil {
			return err
		}
	}

	if err = persist(ctx, tx, slot); err != nil {
		err = s.translateWriteError(err)
		return err
	}
	if err = tx.Commit(); err != nil {
		err = s.translateWriteError(err)
		return err
	}

	s.invalidate(ctx, slot.TimetableID)
	return nil
}

func (s *SlotService) translateWriteError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "slot not found")
	}
	if violation, ok := database.AsViolation(err); ok {
		switch violation.Code {
		case database.CodeExclusionViolation:
			conflict := models.SlotConflict{Dimension: exclusionDimensions[violation.Constraint]}
			return newSlotConflictError([]models.SlotConflict{conflict})
		case database.CodeForeignKeyViolation:
			return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "referenced entity not found")
		case database.CodeCheckViolation:
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "slot violates a storage constraint")
		}
	}
	return storageError(s.logger, err, "failed to save slot")
}

func (s *SlotService) invalidate(ctx context.Context, timetableID string) {
	_ = s.cache.Retire(ctx, slotListScope(timetableID))
}

func slotListScope(timetableID string) string {
	return fmt.Sprintf("timetable:%s:slots", timetableID)
}

func newSlotConflictError(conflicts []models.SlotConflict) *appErrors.Error {
	conflictErr := &models.SlotConflictError{Message: "slot conflicts with existing slots", Conflicts: conflicts}
	dims := conflictErr.Dimensions()
	names := make([]string, 0, len(dims))
	for _, d := range dims {
		if d != "" {
			names = append(names, string(d))
		}
	}
	message := "slot conflicts with an existing slot"
	if len(names) > 0 {
		message = fmt.Sprintf("slot double-books %s", strings.Join(names, ", "))
	}
	wrapped := appErrors.Wrap(conflictErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, message)
	return appErrors.WithDetails(wrapped, conflicts)
}

func applySlotUpdate(slot models.TimetableSlot, req dto.UpdateSlotRequest) (models.TimetableSlot, error) {
	if req.ClassID != nil || req.GroupID != nil {
		var classID, groupID string
		if req.ClassID != nil {
			classID = *req.ClassID
		}
		if req.GroupID != nil {
			groupID = *req.GroupID
		}
		target, err := models.NewSlotTarget(classID, groupID)
		if err != nil {
			return slot, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		slot.Target = target
	}
	if req.SubjectID != nil {
		slot.SubjectID = *req.SubjectID
	}
	if req.TeacherID != nil {
		slot.TeacherID = *req.TeacherID
	}
	if req.RoomID != nil {
		if *req.RoomID == "" {
			slot.RoomID = nil
		} else {
			room := *req.RoomID
			slot.RoomID = &room
		}
	}
	if req.DayOfWeek != nil {
		slot.DayOfWeek = *req.DayOfWeek
	}
	if req.StartTime != nil {
		start, err := timeofday.Parse(*req.StartTime)
		if err != nil {
			return slot, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		slot.StartTime = start
	}
	if req.EndTime != nil {
		end, err := timeofday.Parse(*req.EndTime)
		if err != nil {
			return slot, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		slot.EndTime = end
	}
	if req.WeekPattern != nil {
		slot.WeekPattern = models.WeekPattern(*req.WeekPattern)
	}
	var err error
	if req.StartDate != nil {
		if slot.StartDate, err = parseOptionalDate(clearable(*req.StartDate)); err != nil {
			return slot, err
		}
	}
	if req.EndDate != nil {
		if slot.EndDate, err = parseOptionalDate(clearable(*req.EndDate)); err != nil {
			return slot, err
		}
	}
	return slot, nil
}

func clearable(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	date, err := ParseDate(*raw)
	if err != nil {
		return nil, err
	}
	return &date, nil
}
