// Package payments adapts Stripe to the shapes the purchase flow needs.
package payments

import (
	"context"
	"strings"
)

// Stripe event types the purchase flow reacts to.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncFailed    = "checkout.session.async_payment_failed"
	EventCheckoutExpired        = "checkout.session.expired"
	EventChargeRefunded         = "charge.refunded"
)

// Checkout session metadata keys.
const (
	MetaUserID          = "user_id"
	MetaCourseID        = "course_id"
	MetaSeats           = "seats"
	MetaPurchaseType    = "purchase_type"
	MetaTeamName        = "team_name"
	MetaAccountID       = "account_id"
	MetaEnrollPurchaser = "enroll_purchaser"
)

const PaymentStatusUnpaid = "unpaid"

// Checkout session statuses.
const (
	SessionOpen     = "open"
	SessionComplete = "complete"
	SessionExpired  = "expired"
)

type LineItem struct {
	PriceID  string `json:"price_id"`
	Quantity int64  `json:"quantity"`
}

// Session is the subset of a Stripe checkout session used for fulfillment.
type Session struct {
	ID                string            `json:"id"`
	Status            string            `json:"status,omitempty"`
	PaymentStatus     string            `json:"payment_status"`
	PaymentIntentID   string            `json:"payment_intent_id,omitempty"`
	CustomerID        string            `json:"customer_id,omitempty"`
	CustomerEmail     string            `json:"customer_email,omitempty"`
	ClientReferenceID string            `json:"client_reference_id,omitempty"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	LineItems         []LineItem        `json:"line_items,omitempty"`
	// LineItemsLoaded is false for webhook payloads, which never carry
	// line items; the full session has to be fetched to learn them.
	LineItemsLoaded bool `json:"line_items_loaded"`
}

func (s *Session) Meta(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(s.Metadata[key])
}

// Event is a verified webhook event.
type Event struct {
	ID      string
	Type    string
	Created int64
	Raw     []byte

	// Session is set for checkout.session.* events.
	Session *Session
	// PaymentIntentID is set for charge events.
	PaymentIntentID string
	// FullyRefunded is set on charge.refunded once the whole amount is back.
	FullyRefunded bool
}

type CheckoutParams struct {
	PriceID       string
	Quantity      int64
	CustomerEmail string
	CustomerID    string
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Price struct {
	ID         string
	Active     bool
	UnitAmount int64
	Currency   string
	Metadata   map[string]string
}

//go:generate mockgen -source=./payments.go -destination=../mocks/mock_gateway.go -package=mocks Gateway

// Gateway is the Stripe API surface used by the services.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	// FindSessionByPaymentIntent returns domain.ErrNotFound when no
	// checkout session created the payment intent.
	FindSessionByPaymentIntent(ctx context.Context, paymentIntentID string) (*Session, error)
	ListCoursePrices(ctx context.Context) ([]Price, error)
}
