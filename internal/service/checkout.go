// internal/service/checkout.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/payments"
	"github.com/dangerclosesec/coursehub/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type CheckoutService struct {
	store      *repository.Store
	products   repository.CourseProductRepositoryIface
	gateway    payments.Gateway
	successURL string
	cancelURL  string
	logger     *slog.Logger
	validate   *validator.Validate
}

func NewCheckoutService(
	store *repository.Store,
	products repository.CourseProductRepositoryIface,
	gateway payments.Gateway,
	successURL, cancelURL string,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		store:      store,
		products:   products,
		gateway:    gateway,
		successURL: successURL,
		cancelURL:  cancelURL,
		logger:     logger,
		validate:   validator.New(),
	}
}

type CheckoutInput struct {
	CourseID uuid.UUID `json:"course_id" validate:"required"`
	Seats    int       `json:"seats" validate:"omitempty,min=1,max=1000"`
	TeamName string    `json:"team_name" validate:"omitempty,max=200"`
	// AccountID tops up an existing team account.
	AccountID       *uuid.UUID `json:"account_id"`
	EnrollPurchaser bool       `json:"enroll_purchaser"`
}

type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CreateCheckoutSession opens a Stripe Checkout session for the course's
// active price and records the purchase as pending.
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, actor Actor, input CheckoutInput) (*CheckoutResult, error) {
	if actor.UserID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	if s.gateway == nil {
		return nil, domain.ErrPaymentsDisabled
	}
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	if input.Seats == 0 {
		input.Seats = 1
	}

	course, err := s.store.Courses.FindByID(ctx, input.CourseID)
	if err != nil {
		return nil, err
	}
	if course.Status != model.CoursePublished {
		return nil, domain.ErrCourseNotFound
	}
	product, err := s.products.FindActiveByCourse(ctx, course.ID)
	if err != nil {
		return nil, err
	}

	purchaseType := model.PurchasePersonal
	if input.Seats > 1 || input.AccountID != nil || input.TeamName != "" {
		purchaseType = model.PurchaseTeam
	}
	metadata := map[string]string{
		payments.MetaUserID:       actor.UserID.String(),
		payments.MetaCourseID:     course.ID.String(),
		payments.MetaSeats:        strconv.Itoa(input.Seats),
		payments.MetaPurchaseType: string(purchaseType),
	}
	if input.TeamName != "" {
		metadata[payments.MetaTeamName] = input.TeamName
	}
	if input.AccountID != nil {
		if _, err := requireOwner(ctx, s.store, actor, *input.AccountID); err != nil {
			return nil, err
		}
		metadata[payments.MetaAccountID] = input.AccountID.String()
	}
	if input.EnrollPurchaser {
		metadata[payments.MetaEnrollPurchaser] = "true"
	}

	var customerID string
	if account, err := s.store.Accounts.FindPersonalByUser(ctx, actor.UserID); err == nil {
		customerID = account.StripeCustomerID
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payments.CheckoutParams{
		PriceID:       product.StripePriceID,
		Quantity:      int64(input.Seats),
		CustomerEmail: actor.Email,
		CustomerID:    customerID,
		Metadata:      metadata,
		SuccessURL:    s.successURL,
		CancelURL:     s.cancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating checkout session: %w", err)
	}

	userID := actor.UserID
	if _, err := s.store.Purchases.CreateIfAbsent(ctx, &model.Purchase{
		StripeCheckoutSessionID: session.ID,
		Status:                  model.PurchasePending,
		Type:                    purchaseType,
		UserID:                  &userID,
		Email:                   normalizeEmail(actor.Email),
		AmountTotal:             product.UnitAmount * int64(input.Seats),
		Currency:                product.Currency,
	}); err != nil {
		return nil, err
	}

	s.logger.Info("checkout session created",
		"session_id", session.ID,
		"course_id", course.ID,
		"user_id", actor.UserID,
		"seats", input.Seats,
		"type", purchaseType,
	)
	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}
