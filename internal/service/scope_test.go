package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

var malformedUUID = &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "T1"`}

type failingTimetableFinder struct{ err error }

func (f failingTimetableFinder) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	return nil, f.err
}

type failingSlotFinder struct{ err error }

func (f failingSlotFinder) FindByID(ctx context.Context, id string) (*models.TimetableSlot, error) {
	return nil, f.err
}

func TestEnsureReferencesMalformedIDIsNotFound(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "sqlmock")
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM teachers WHERE id = $1 AND school_id = $2 LIMIT 1")).
		WithArgs("T1", testSchool).
		WillReturnError(malformedUUID)

	err = ensureReferences(context.Background(), zap.NewNop(), repository.NewReferenceRepository(db), testSchool,
		reference{kind: models.ReferenceTeacher, id: "T1"},
	)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, 404, appErr.Status)
	assert.Equal(t, "teacher not found", appErr.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureReferencesLogsStorageFailures(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)

	err := ensureReferences(context.Background(), zap.New(core), referenceStub{err: errors.New("connection reset")}, testSchool,
		reference{kind: models.ReferenceRoom, id: "room-1"},
	)

	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "reference check failed", logs.All()[0].Message)
}

func TestScopedLookupsTreatMalformedIDsAsMissing(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.ErrorLevel)
	logger := zap.New(core)

	_, err := findScopedTimetable(ctx, logger, failingTimetableFinder{err: malformedUUID}, testSchool, "not-a-uuid")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, _, err = findScopedSlot(ctx, logger, failingSlotFinder{err: malformedUUID}, newTimetableRepoStub(), testSchool, "not-a-uuid")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Equal(t, 0, logs.Len())

	_, err = findScopedTimetable(ctx, logger, failingTimetableFinder{err: errors.New("connection reset")}, testSchool, "tt-1")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed to load timetable", logs.All()[0].Message)
}

func TestTimetableServiceLogsStorageFailures(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	tx, mock := newTxProviderMock(t)
	metrics := NewMetricsService()
	cache := NewCacheService(newMemoryCache(), metrics, time.Minute, zap.NewNop(), true)
	svc := NewTimetableService(newTimetableRepoStub(), newAcademicYearStub(testAcademicYear()), tx, cache, metrics, nil, zap.New(core))

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := svc.Create(context.Background(), testSchool, dto.CreateTimetableRequest{AcademicYearID: "ay-1", Name: "Draft"})
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed to begin transaction", logs.All()[0].Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}
