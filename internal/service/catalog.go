// internal/service/catalog.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/payments"
	"github.com/dangerclosesec/coursehub/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CourseFinder looks up courses by id.
type CourseFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Course, error)
}

// CatalogService owns the mapping from Stripe prices to courses.
type CatalogService struct {
	repo     repository.CourseProductRepositoryIface
	courses  CourseFinder
	cache    *CacheService
	gateway  payments.Gateway
	logger   *slog.Logger
	validate *validator.Validate
}

func NewCatalogService(
	repo repository.CourseProductRepositoryIface,
	courses CourseFinder,
	cache *CacheService,
	gateway payments.Gateway,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		repo:     repo,
		courses:  courses,
		cache:    cache,
		gateway:  gateway,
		logger:   logger,
		validate: validator.New(),
	}
}

func priceCacheKey(priceID string) string {
	return "price:" + priceID
}

// Resolve maps a price id to its course product. Inactive products still
// resolve so that sessions paid before a deactivation can be fulfilled.
func (s *CatalogService) Resolve(ctx context.Context, priceID string) (*model.CourseProduct, error) {
	if priceID == "" {
		return nil, domain.ErrUnknownPrice
	}

	var product model.CourseProduct
	err := s.cache.GetOrSet(ctx, priceCacheKey(priceID), &product, func() (interface{}, error) {
		return s.repo.FindByPriceID(ctx, priceID)
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

type UpsertProductInput struct {
	PriceID    string    `json:"price_id" validate:"required,startswith=price_"`
	CourseID   uuid.UUID `json:"course_id" validate:"required"`
	UnitAmount int64     `json:"unit_amount" validate:"gte=0"`
	Currency   string    `json:"currency" validate:"omitempty,len=3"`
	Active     bool      `json:"active"`
}

func (s *CatalogService) Upsert(ctx context.Context, input UpsertProductInput) (*model.CourseProduct, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	if _, err := s.courses.FindByID(ctx, input.CourseID); err != nil {
		return nil, err
	}

	product := &model.CourseProduct{
		StripePriceID: input.PriceID,
		CourseID:      input.CourseID,
		Active:        input.Active,
		UnitAmount:    input.UnitAmount,
		Currency:      input.Currency,
	}
	if err := s.repo.Upsert(ctx, product); err != nil {
		return nil, err
	}
	if err := s.cache.Delete(ctx, priceCacheKey(input.PriceID)); err != nil {
		s.logger.Warn("failed to invalidate price cache", "price_id", input.PriceID, "error", err)
	}
	return product, nil
}

func (s *CatalogService) List(ctx context.Context) ([]*model.CourseProduct, error) {
	return s.repo.List(ctx)
}

func (s *CatalogService) Deactivate(ctx context.Context, priceID string) error {
	if err := s.repo.Deactivate(ctx, priceID); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, priceCacheKey(priceID)); err != nil {
		s.logger.Warn("failed to invalidate price cache", "price_id", priceID, "error", err)
	}
	return nil
}

type SyncResult struct {
	Imported int      `json:"imported"`
	Skipped  []string `json:"skipped,omitempty"`
}

// Sync imports active Stripe prices whose metadata carries a course_id.
func (s *CatalogService) Sync(ctx context.Context, dryRun bool) (*SyncResult, error) {
	if s.gateway == nil {
		return nil, domain.ErrPaymentsDisabled
	}

	prices, err := s.gateway.ListCoursePrices(ctx)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	for _, p := range prices {
		courseID, err := uuid.Parse(p.Metadata[payments.MetaCourseID])
		if err != nil {
			s.logger.Warn("skipping price with invalid course_id", "price_id", p.ID, "course_id", p.Metadata[payments.MetaCourseID])
			result.Skipped = append(result.Skipped, p.ID)
			continue
		}

		if dryRun {
			s.logger.Info("would import price (dry run)", "price_id", p.ID, "course_id", courseID)
			result.Imported++
			continue
		}

		_, err = s.Upsert(ctx, UpsertProductInput{
			PriceID:    p.ID,
			CourseID:   courseID,
			UnitAmount: p.UnitAmount,
			Currency:   p.Currency,
			Active:     p.Active,
		})
		if err != nil {
			if errors.Is(err, domain.ErrCourseNotFound) || errors.Is(err, domain.ErrInvalidInput) {
				s.logger.Warn("skipping price", "price_id", p.ID, "error", err)
				result.Skipped = append(result.Skipped, p.ID)
				continue
			}
			return nil, fmt.Errorf("importing price %s: %w", p.ID, err)
		}
		result.Imported++
	}

	s.logger.Info("catalog sync completed", "imported", result.Imported, "skipped", len(result.Skipped), "dry_run", dryRun)
	return result, nil
}
