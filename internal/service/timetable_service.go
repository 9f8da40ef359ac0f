package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type timetableRepository interface {
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error)
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Timetable, error)
	FindActive(ctx context.Context, schoolID, academicYearID string) (*models.Timetable, error)
	Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	UpdateName(ctx context.Context, id, name string) error
	SetActive(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	CountSlots(ctx context.Context, exec sqlx.ExtContext, id string) (int, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

// TimetableService manages timetables and which one is active per academic year.
type TimetableService struct {
	repo      timetableRepository
	years     academicYearReader
	tx        txProvider
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimetableService constructs the service.
func NewTimetableService(repo timetableRepository, years academicYearReader, tx txProvider, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{repo: repo, years: years, tx: tx, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// List returns timetables of the school with pagination metadata.
func (s *TimetableService) List(ctx context.Context, schoolID string, filter models.TimetableFilter) ([]models.Timetable, *models.Pagination, error) {
	filter.SchoolID = schoolID
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, storageError(s.logger, err, "failed to list timetables")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return items, pagination, nil
}

// Get returns a timetable of the school.
func (s *TimetableService) Get(ctx context.Context, schoolID, id string) (*models.Timetable, error) {
	return findScopedTimetable(ctx, s.logger, s.repo, schoolID, id)
}

// Create registers an inactive timetable, or an active one when requested, in a single transaction.
func (s *TimetableService) Create(ctx context.Context, schoolID string, req dto.CreateTimetableRequest) (timetable *models.Timetable, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}
	if _, err := findScopedAcademicYear(ctx, s.logger, s.years, schoolID, req.AcademicYearID); err != nil {
		return nil, err
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	timetable = &models.Timetable{SchoolID: schoolID, AcademicYearID: req.AcademicYearID, Name: req.Name}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storageError(s.logger, err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.Create(ctx, tx, timetable); err != nil {
		err = s.translateWriteError(err, "failed to create timetable")
		return nil, err
	}
	if req.Activate {
		if err = s.repo.SetActive(ctx, tx, timetable); err != nil {
			err = s.translateWriteError(err, "failed to activate timetable")
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		err = s.translateWriteError(err, "failed to create timetable")
		return nil, err
	}

	if timetable.IsActive {
		s.afterActivation(ctx, timetable)
	}
	return timetable, nil
}

// Rename changes the name of a timetable.
func (s *TimetableService) Rename(ctx context.Context, schoolID, id string, req dto.RenameTimetableRequest) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}
	timetable, err := findScopedTimetable(ctx, s.logger, s.repo, schoolID, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateName(ctx, timetable.ID, req.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, storageError(s.logger, err, "failed to rename timetable")
	}
	timetable.Name = req.Name
	timetable.UpdatedAt = time.Now().UTC()
	if timetable.IsActive {
		s.invalidateActive(ctx, schoolID)
	}
	return timetable, nil
}

// Activate makes the timetable the only active one of its school and academic year.
func (s *TimetableService) Activate(ctx context.Context, schoolID, id string) (timetable *models.Timetable, err error) {
	timetable, err = findScopedTimetable(ctx, s.logger, s.repo, schoolID, id)
	if err != nil {
		return nil, err
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storageError(s.logger, err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.SetActive(ctx, tx, timetable); err != nil {
		err = s.translateWriteError(err, "failed to activate timetable")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = s.translateWriteError(err, "failed to activate timetable")
		return nil, err
	}

	s.afterActivation(ctx, timetable)
	return timetable, nil
}

// GetActive returns the active timetable of an academic year, or of the latest year when none is given.
func (s *TimetableService) GetActive(ctx context.Context, schoolID, academicYearID string) (*models.Timetable, error) {
	key := s.cache.VersionedKey(ctx, activeTimetableScope(schoolID), activeTimetableName(academicYearID))
	var cached models.Timetable
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	timetable, err := s.repo.FindActive(ctx, schoolID, academicYearID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "active timetable not found")
		}
		return nil, storageError(s.logger, err, "failed to load active timetable")
	}
	_ = s.cache.Set(ctx, key, timetable, 0)
	return timetable, nil
}

// Delete removes an inactive timetable that no longer owns slots. The checks run under the timetable's row
// lock, which activation and slot writers also take.
func (s *TimetableService) Delete(ctx context.Context, schoolID, id string) (err error) {
	timetable, err := findScopedTimetable(ctx, s.logger, s.repo, schoolID, id)
	if err != nil {
		return err
	}
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

	locked, err := s.repo.LockByID(ctx, tx, timetable.ID)
	if err != nil {
		err = s.translateDeleteError(err, "failed to lock timetable")
		return err
	}
	if locked.IsActive {
		err = appErrors.Clone(appErrors.ErrConflict, "active timetable cannot be deleted")
		return err
	}
	var count int
	if count, err = s.repo.CountSlots(ctx, tx, locked.ID); err != nil {
		err = s.translateDeleteError(err, "failed to count timetable slots")
		return err
	}
	if count > 0 {
		err = appErrors.Clone(appErrors.ErrConflict, "timetable still has slots")
		return err
	}
	if err = s.repo.Delete(ctx, tx, locked.ID); err != nil {
		err = s.translateDeleteError(err, "failed to delete timetable")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = s.translateDeleteError(err, "failed to delete timetable")
		return err
	}

	_ = s.cache.Retire(ctx, slotListScope(locked.ID))
	return nil
}

func (s *TimetableService) translateDeleteError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	if database.IsForeignKeyViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "timetable still has slots")
	}
	return storageError(s.logger, err, message)
}

func (s *TimetableService) translateWriteError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	if database.IsUniqueViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "another timetable is already active for the academic year")
	}
	if database.IsForeignKeyViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "academic year not found")
	}
	return storageError(s.logger, err, message)
}

func (s *TimetableService) afterActivation(ctx context.Context, timetable *models.Timetable) {
	s.invalidateActive(ctx, timetable.SchoolID)
	s.metrics.RecordActivation()
	s.logger.Info("timetable activated",
		zap.String("timetable_id", timetable.ID),
		zap.String("school_id", timetable.SchoolID),
		zap.String("academic_year_id", timetable.AcademicYearID),
	)
}

func (s *TimetableService) invalidateActive(ctx context.Context, schoolID string) {
	_ = s.cache.Retire(ctx, activeTimetableScope(schoolID))
}

func activeTimetableScope(schoolID string) string {
	return fmt.Sprintf("timetable:active:%s", schoolID)
}

func activeTimetableName(academicYearID string) string {
	if academicYearID == "" {
		return "latest"
	}
	return academicYearID
}
