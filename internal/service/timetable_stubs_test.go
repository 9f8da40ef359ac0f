package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const testSchool = "school-1"

func testAcademicYear() *models.AcademicYear {
	return &models.AcademicYear{
		ID:        "ay-1",
		SchoolID:  testSchool,
		Name:      "2024/2025",
		StartDate: time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
}

type academicYearStub struct {
	items map[string]*models.AcademicYear
}

func newAcademicYearStub(years ...*models.AcademicYear) *academicYearStub {
	stub := &academicYearStub{items: make(map[string]*models.AcademicYear)}
	for _, y := range years {
		stub.items[y.ID] = y
	}
	return stub
}

func (s *academicYearStub) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *year
	return &clone, nil
}

type referenceStub struct {
	missing map[string]bool
	err     error
}

func (s referenceStub) Exists(ctx context.Context, kind models.ReferenceKind, schoolID, id string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return !s.missing[id], nil
}

type timetableRepoStub struct {
	mu         sync.Mutex
	items      map[string]*models.Timetable
	slotCounts map[string]int
	lockCalls  int
	onLock     func(*models.Timetable)
	nextID     int
	createErr  error
	activeErr  error
}

func newTimetableRepoStub(timetables ...*models.Timetable) *timetableRepoStub {
	stub := &timetableRepoStub{items: make(map[string]*models.Timetable), slotCounts: make(map[string]int)}
	for _, tt := range timetables {
		stub.items[tt.ID] = tt
	}
	return stub
}

func (s *timetableRepoStub) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.Timetable
	for _, tt := range s.items {
		if tt.SchoolID != filter.SchoolID {
			continue
		}
		if filter.AcademicYearID != "" && tt.AcademicYearID != filter.AcademicYearID {
			continue
		}
		if filter.IsActive != nil && tt.IsActive != *filter.IsActive {
			continue
		}
		items = append(items, *tt)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, len(items), nil
}

func (s *timetableRepoStub) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *tt
	return &clone, nil
}

func (s *timetableRepoStub) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Timetable, error) {
	s.mu.Lock()
	s.lockCalls++
	if tt, ok := s.items[id]; ok && s.onLock != nil {
		s.onLock(tt)
	}
	s.mu.Unlock()
	return s.FindByID(ctx, id)
}

func (s *timetableRepoStub) FindActive(ctx context.Context, schoolID, academicYearID string) (*models.Timetable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tt := range s.items {
		if tt.SchoolID == schoolID && tt.IsActive && (academicYearID == "" || tt.AcademicYearID == academicYearID) {
			clone := *tt
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *timetableRepoStub) Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	timetable.ID = fmt.Sprintf("tt-new-%d", s.nextID)
	clone := *timetable
	s.items[timetable.ID] = &clone
	return nil
}

func (s *timetableRepoStub) UpdateName(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	tt.Name = name
	return nil
}

func (s *timetableRepoStub) SetActive(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	if s.activeErr != nil {
		return s.activeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tt := range s.items {
		if tt.SchoolID == timetable.SchoolID && tt.AcademicYearID == timetable.AcademicYearID {
			tt.IsActive = tt.ID == timetable.ID
		}
	}
	timetable.IsActive = true
	return nil
}

func (s *timetableRepoStub) CountSlots(ctx context.Context, exec sqlx.ExtContext, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slotCounts[id], nil
}

func (s *timetableRepoStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	return nil
}

func (s *timetableRepoStub) activeCount(schoolID, yearID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, tt := range s.items {
		if tt.SchoolID == schoolID && tt.AcademicYearID == yearID && tt.IsActive {
			count++
		}
	}
	return count
}

type slotStoreStub struct {
	items     []models.TimetableSlot
	nextID    int
	createErr error
	listCalls int
}

func (s *slotStoreStub) FindByID(ctx context.Context, id string) (*models.TimetableSlot, error) {
	for _, slot := range s.items {
		if slot.ID == id {
			clone := slot
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *slotStoreStub) List(ctx context.Context, timetableID string, filter models.SlotFilter) ([]models.TimetableSlot, error) {
	s.listCalls++
	var result []models.TimetableSlot
	for _, slot := range s.items {
		if slot.TimetableID != timetableID {
			continue
		}
		if filter.DayOfWeek != nil && slot.DayOfWeek != *filter.DayOfWeek {
			continue
		}
		if filter.TeacherID != "" && slot.TeacherID != filter.TeacherID {
			continue
		}
		if filter.ClassID != "" && slot.Target.ClassID() != filter.ClassID {
			continue
		}
		result = append(result, slot)
	}
	return result, nil
}

func (s *slotStoreStub) ListByDay(ctx context.Context, exec sqlx.ExtContext, timetableID string, dayOfWeek int, excludeID string) ([]models.TimetableSlot, error) {
	var result []models.TimetableSlot
	for _, slot := range s.items {
		if slot.TimetableID == timetableID && slot.DayOfWeek == dayOfWeek && slot.ID != excludeID {
			result = append(result, slot)
		}
	}
	return result, nil
}

func (s *slotStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, slot *models.TimetableSlot) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	slot.ID = fmt.Sprintf("slot-new-%d", s.nextID)
	s.items = append(s.items, *slot)
	return nil
}

func (s *slotStoreStub) Update(ctx context.Context, exec sqlx.ExtContext, slot *models.TimetableSlot) error {
	for i := range s.items {
		if s.items[i].ID == slot.ID {
			s.items[i] = *slot
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *slotStoreStub) Delete(ctx context.Context, id string) error {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type exceptionStoreStub struct {
	items  map[string]models.SlotException
	nextID int
}

func newExceptionStoreStub() *exceptionStoreStub {
	return &exceptionStoreStub{items: make(map[string]models.SlotException)}
}

func exceptionKey(slotID string, date time.Time) string {
	return slotID + "|" + date.Format(dateLayout)
}

func (s *exceptionStoreStub) Upsert(ctx context.Context, exec sqlx.ExtContext, exception *models.SlotException) error {
	key := exceptionKey(exception.SlotID, exception.Date)
	if existing, ok := s.items[key]; ok {
		exception.ID = existing.ID
		exception.CreatedAt = existing.CreatedAt
	} else {
		s.nextID++
		exception.ID = fmt.Sprintf("exc-%d", s.nextID)
		exception.CreatedAt = time.Now().UTC()
	}
	s.items[key] = *exception
	return nil
}

func (s *exceptionStoreStub) FindBySlotAndDate(ctx context.Context, slotID string, date time.Time) (*models.SlotException, error) {
	exception, ok := s.items[exceptionKey(slotID, date)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &exception, nil
}

func (s *exceptionStoreStub) ListBySlot(ctx context.Context, slotID string, from, to *time.Time) ([]models.SlotException, error) {
	var result []models.SlotException
	for _, exception := range s.items {
		if exception.SlotID != slotID {
			continue
		}
		if from != nil && exception.Date.Before(*from) {
			continue
		}
		if to != nil && exception.Date.After(*to) {
			continue
		}
		result = append(result, exception)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (s *exceptionStoreStub) ListDates(ctx context.Context, exec sqlx.ExtContext, slotID string) ([]time.Time, error) {
	var dates []time.Time
	for _, exception := range s.items {
		if exception.SlotID == slotID {
			dates = append(dates, exception.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (s *exceptionStoreStub) ListForDate(ctx context.Context, slotIDs []string, date time.Time) ([]models.SlotException, error) {
	var result []models.SlotException
	for _, id := range slotIDs {
		if exception, ok := s.items[exceptionKey(id, date)]; ok {
			result = append(result, exception)
		}
	}
	return result, nil
}

func (s *exceptionStoreStub) Delete(ctx context.Context, slotID string, date time.Time) error {
	key := exceptionKey(slotID, date)
	if _, ok := s.items[key]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, key)
	return nil
}
