package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "timetable", nil)
	ctx := context.Background()

	var dest map[string]string
	err := repo.Get(ctx, "timetable:active:school-1:latest", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(ctx, "timetable:tt-1:slots", []string{"slot-1"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "timetable:active:school-1:*"))
	gen, err := repo.Incr(ctx, "gen:timetable:active:school-1")
	assert.NoError(t, err)
	assert.Zero(t, gen)
	assert.NoError(t, repo.Close())
}

func TestCacheRepositoryKeyPrefix(t *testing.T) {
	assert.Equal(t, "sma:timetable:tt-1:slots", NewCacheRepository(nil, "sma", nil).key("timetable:tt-1:slots"))
	assert.Equal(t, "timetable:tt-1:slots", NewCacheRepository(nil, "", nil).key("timetable:tt-1:slots"))
}
