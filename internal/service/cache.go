// internal/service/cache.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dangerclosesec/coursehub/internal/cache"
	"github.com/dangerclosesec/coursehub/internal/domain"
)

// CacheService stores JSON-encoded values in a cache.Store.
type CacheService struct {
	store cache.Store
	ttl   time.Duration
	close func()
}

// CacheConfig holds configuration for the cache service
type CacheConfig struct {
	TTL         time.Duration
	CleanupFreq time.Duration
}

// NewCacheService creates an in-process cache service.
func NewCacheService(config CacheConfig) *CacheService {
	c := cache.NewInMemoryCache(config.TTL, config.CleanupFreq)
	c.StartCleanup(context.Background())

	return &CacheService{
		store: c,
		ttl:   config.TTL,
		close: c.StopCleanup,
	}
}

// NewCacheServiceWithStore wraps an existing store such as Redis.
func NewCacheServiceWithStore(store cache.Store, ttl time.Duration) *CacheService {
	return &CacheService{store: store, ttl: ttl, close: func() {}}
}

// Set stores a value in the cache
func (s *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	if key == "" {
		return domain.ErrInvalidInput
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling cache value: %w", err)
	}
	return s.store.Set(ctx, key, data, s.ttl)
}

// Get decodes the cached value into result. A miss returns domain.ErrNotFound.
func (s *CacheService) Get(ctx context.Context, key string, result interface{}) error {
	if key == "" {
		return domain.ErrInvalidInput
	}

	data, found, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("reading cache: %w", err)
	}
	if !found {
		return domain.ErrNotFound
	}

	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("unmarshaling cached value: %w", err)
	}
	return nil
}

// GetOrSet retrieves a value from cache or sets it if not found
func (s *CacheService) GetOrSet(ctx context.Context, key string, result interface{}, fetchFunc func() (interface{}, error)) error {
	err := s.Get(ctx, key, result)
	if err == nil {
		return nil
	}
	if err != domain.ErrNotFound {
		return fmt.Errorf("getting from cache: %w", err)
	}

	value, err := fetchFunc()
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling value: %w", err)
	}
	if err := s.store.Set(ctx, key, data, s.ttl); err != nil {
		return fmt.Errorf("storing in cache: %w", err)
	}

	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("assigning fetched value: %w", err)
	}
	return nil
}

// Delete removes a value from the cache
func (s *CacheService) Delete(ctx context.Context, key string) error {
	if key == "" {
		return domain.ErrInvalidInput
	}
	return s.store.Delete(ctx, key)
}

// Close stops the cleanup routine
func (s *CacheService) Close() {
	s.close()
}
