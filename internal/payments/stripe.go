package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeGateway implements Gateway with the Stripe API client.
type StripeGateway struct {
	sc *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{sc: client.New(secretKey, nil)}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(p.Quantity)},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: p.Metadata,
		},
	}
	params.Context = ctx
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if userID := p.Metadata[MetaUserID]; userID != "" {
		params.ClientReferenceID = stripe.String(userID)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating checkout session: %w", err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// GetSession fetches a checkout session with its line items expanded.
func (g *StripeGateway) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")

	s, err := g.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("fetching checkout session %s: %w", sessionID, err)
	}
	return SessionFromStripe(s), nil
}

func (g *StripeGateway) FindSessionByPaymentIntent(ctx context.Context, paymentIntentID string) (*Session, error) {
	params := &stripe.CheckoutSessionListParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := g.sc.CheckoutSessions.List(params)
	for iter.Next() {
		return g.GetSession(ctx, iter.CheckoutSession().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing checkout sessions for %s: %w", paymentIntentID, err)
	}
	return nil, domain.ErrNotFound
}

// ListCoursePrices returns active prices whose metadata names a course.
func (g *StripeGateway) ListCoursePrices(ctx context.Context) ([]Price, error) {
	params := &stripe.PriceListParams{Active: stripe.Bool(true)}
	params.Context = ctx

	var prices []Price
	iter := g.sc.Prices.List(params)
	for iter.Next() {
		p := iter.Price()
		if strings.TrimSpace(p.Metadata[MetaCourseID]) == "" {
			continue
		}
		prices = append(prices, Price{
			ID:         p.ID,
			Active:     p.Active,
			UnitAmount: p.UnitAmount,
			Currency:   string(p.Currency),
			Metadata:   p.Metadata,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing prices: %w", err)
	}
	return prices, nil
}

// SessionFromStripe converts a Stripe checkout session.
func SessionFromStripe(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:                s.ID,
		Status:            string(s.Status),
		PaymentStatus:     string(s.PaymentStatus),
		CustomerEmail:     s.CustomerEmail,
		ClientReferenceID: s.ClientReferenceID,
		AmountTotal:       s.AmountTotal,
		Currency:          string(s.Currency),
		Metadata:          s.Metadata,
	}
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.LineItems != nil {
		out.LineItemsLoaded = true
		for _, li := range s.LineItems.Data {
			if li.Price == nil {
				continue
			}
			out.LineItems = append(out.LineItems, LineItem{PriceID: li.Price.ID, Quantity: li.Quantity})
		}
	}
	return out
}

// WebhookVerifier checks Stripe-Signature headers.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	return &WebhookVerifier{secret: secret, tolerance: tolerance}
}

func (v *WebhookVerifier) Enabled() bool {
	return v != nil && strings.TrimSpace(v.secret) != ""
}

// ParseEvent verifies the signature and decodes the objects the purchase
// flow needs.
func (v *WebhookVerifier) ParseEvent(payload []byte, sigHeader string) (*Event, error) {
	if !v.Enabled() {
		return nil, domain.ErrPaymentsDisabled
	}

	evt, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	out := &Event{
		ID:      evt.ID,
		Type:    string(evt.Type),
		Created: evt.Created,
		Raw:     payload,
	}
	if evt.Data == nil {
		return out, nil
	}

	switch {
	case strings.HasPrefix(out.Type, "checkout.session."):
		var s stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: checkout session payload: %v", domain.ErrInvalidInput, err)
		}
		out.Session = SessionFromStripe(&s)
	case strings.HasPrefix(out.Type, "charge."):
		var c stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &c); err != nil {
			return nil, fmt.Errorf("%w: charge payload: %v", domain.ErrInvalidInput, err)
		}
		if c.PaymentIntent != nil {
			out.PaymentIntentID = c.PaymentIntent.ID
		}
		out.FullyRefunded = c.Refunded
	}
	return out, nil
}
