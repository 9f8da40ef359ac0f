package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// CacheService fronts read-mostly timetable lookups. A nil or disabled service behaves as a permanent miss,
// and cache failures never fail the request that triggered them.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get decodes the entry into dest and reports whether it was found.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Set stores value for ttl, or for the default TTL when ttl is not positive.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate drops every entry matching pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// VersionedKey names an entry of scope under the scope's current generation. Callers must build the key
// before loading the value they will store, so a fill that races Retire lands in a retired generation.
func (s *CacheService) VersionedKey(ctx context.Context, scope, name string) string {
	return fmt.Sprintf("%s:g%d:%s", scope, s.generation(ctx, scope), name)
}

// Retire advances the generation of scope and drops the entries stored under it.
func (s *CacheService) Retire(ctx context.Context, scope string) error {
	if !s.Enabled() {
		return nil
	}
	if _, err := s.repo.Incr(ctx, generationKey(scope)); err != nil {
		s.logger.Warn("cache generation bump failed", zap.String("scope", scope), zap.Error(err))
		return err
	}
	return s.Invalidate(ctx, scope+":*")
}

func (s *CacheService) generation(ctx context.Context, scope string) int64 {
	if !s.Enabled() {
		return 0
	}
	var gen int64
	if err := s.repo.Get(ctx, generationKey(scope), &gen); err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache generation read failed", zap.String("scope", scope), zap.Error(err))
	}
	return gen
}

// generationKey lives outside scope so pattern invalidation never resets it.
func generationKey(scope string) string {
	return "gen:" + scope
}
