// internal/service/purchase.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dangerclosesec/coursehub/internal/audit"
	"github.com/dangerclosesec/coursehub/internal/cache"
	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/email/mailer"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/payments"
	"github.com/dangerclosesec/coursehub/internal/repository"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Outcome summarizes what handling an event or session did.
type Outcome string

const (
	OutcomeFulfilled        Outcome = "fulfilled"
	OutcomeAlreadyFulfilled Outcome = "already_fulfilled"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeAwaitingPayment  Outcome = "awaiting_payment"
	OutcomeFailed           Outcome = "failed"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeRefunded         Outcome = "refunded"
	OutcomeExpired          Outcome = "expired"
)

type ReconcileResult struct {
	Outcome    Outcome    `json:"outcome"`
	SessionID  string     `json:"session_id,omitempty"`
	PurchaseID *uuid.UUID `json:"purchase_id,omitempty"`
	AccountID  *uuid.UUID `json:"account_id,omitempty"`
	Enrolled   int        `json:"enrolled"`
	Invited    int        `json:"invited"`
	Reason     string     `json:"reason,omitempty"`
}

// PriceResolver maps Stripe price ids to course products.
type PriceResolver interface {
	Resolve(ctx context.Context, priceID string) (*model.CourseProduct, error)
}

type PurchaseDeps struct {
	Store       *repository.Store
	Prices      PriceResolver
	Invitations *InvitationService
	// Gateway may be nil when Stripe is not configured; sessions are then
	// fulfilled from webhook metadata alone.
	Gateway  payments.Gateway
	Locker   cache.Locker
	LockTTL  time.Duration
	Notifier mailer.Notifier
	Audit    *audit.Logger
	BaseURL  string
	Logger   *slog.Logger
}

// PurchaseService turns Stripe checkout sessions into seats, enrollments and
// invitations.
type PurchaseService struct {
	store       *repository.Store
	prices      PriceResolver
	invitations *InvitationService
	gateway     payments.Gateway
	locker      cache.Locker
	lockTTL     time.Duration
	notifier    mailer.Notifier
	audit       *audit.Logger
	baseURL     string
	logger      *slog.Logger
	now         func() time.Time
}

func NewPurchaseService(deps PurchaseDeps) *PurchaseService {
	s := &PurchaseService{
		store:       deps.Store,
		prices:      deps.Prices,
		invitations: deps.Invitations,
		gateway:     deps.Gateway,
		locker:      deps.Locker,
		lockTTL:     deps.LockTTL,
		notifier:    deps.Notifier,
		audit:       deps.Audit,
		baseURL:     deps.BaseURL,
		logger:      deps.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.locker == nil {
		s.locker = cache.NewMutexLocker()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 30 * time.Second
	}
	if s.audit == nil {
		s.audit = audit.NewLogger(s.logger)
	}
	return s
}

func purchaseLockKey(sessionID string) string {
	return "purchase:" + sessionID
}

// HandleEvent is the single entry point for verified Stripe webhooks. Each
// event id is processed at most once; an event whose handling failed is
// retried on redelivery.
func (s *PurchaseService) HandleEvent(ctx context.Context, evt *payments.Event) (*ReconcileResult, error) {
	if evt == nil || evt.ID == "" {
		return nil, fmt.Errorf("%w: event id is required", domain.ErrInvalidInput)
	}

	stored, fresh, err := s.store.Events.Record(ctx, &model.StripeEvent{
		ID:      evt.ID,
		Type:    evt.Type,
		Payload: datatypes.JSON(evt.Raw),
	})
	if err != nil {
		return nil, err
	}
	if !fresh && stored.ProcessedAt != nil {
		sessionID := ""
		if evt.Session != nil {
			sessionID = evt.Session.ID
		}
		_ = s.audit.Record(ctx, s.store.Logs, audit.Entry{
			SessionID: sessionID,
			EventID:   evt.ID,
			Action:    model.ActionEventDuplicate,
			Detail:    map[string]interface{}{"type": evt.Type},
		})
		return &ReconcileResult{Outcome: OutcomeDuplicate, SessionID: sessionID}, nil
	}

	result, err := s.dispatch(ctx, evt)
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	if markErr := s.store.Events.MarkProcessed(ctx, evt.ID, errMsg); markErr != nil {
		s.logger.ErrorContext(ctx, "failed to mark stripe event processed", "event_id", evt.ID, "error", markErr)
		if err == nil {
			err = markErr
		}
	}
	return result, err
}

func (s *PurchaseService) dispatch(ctx context.Context, evt *payments.Event) (*ReconcileResult, error) {
	switch evt.Type {
	case payments.EventCheckoutCompleted, payments.EventCheckoutAsyncSucceeded:
		if evt.Session == nil {
			return nil, fmt.Errorf("%w: %s without a session", domain.ErrInvalidInput, evt.Type)
		}
		return s.ReconcileSession(ctx, evt.Session, evt.ID)
	case payments.EventCheckoutAsyncFailed:
		if evt.Session == nil {
			return nil, fmt.Errorf("%w: %s without a session", domain.ErrInvalidInput, evt.Type)
		}
		return s.markTerminal(ctx, evt.Session, model.PurchaseFailed, evt.ID, "async payment failed")
	case payments.EventCheckoutExpired:
		if evt.Session == nil {
			return nil, fmt.Errorf("%w: %s without a session", domain.ErrInvalidInput, evt.Type)
		}
		return s.markTerminal(ctx, evt.Session, model.PurchaseExpired, evt.ID, "")
	case payments.EventChargeRefunded:
		if !evt.FullyRefunded {
			s.logger.InfoContext(ctx, "ignoring partial refund", "event_id", evt.ID, "payment_intent", evt.PaymentIntentID)
			return &ReconcileResult{Outcome: OutcomeIgnored, Reason: "partial refund"}, nil
		}
		return s.RefundByPaymentIntent(ctx, evt.PaymentIntentID, evt.ID)
	}

	s.logger.DebugContext(ctx, "ignoring stripe event", "event_id", evt.ID, "type", evt.Type)
	return &ReconcileResult{Outcome: OutcomeIgnored, Reason: "unhandled event type"}, nil
}

// purchaseItem is one course bought in a session.
type purchaseItem struct {
	CourseID uuid.UUID
	Quantity int
}

// resolveItems maps line items to courses, summing quantities per course.
// Sessions without line items fall back to the course_id and seats
// metadata.
func (s *PurchaseService) resolveItems(ctx context.Context, sess *payments.Session) ([]purchaseItem, error) {
	var items []purchaseItem
	index := make(map[uuid.UUID]int)
	add := func(courseID uuid.UUID, qty int) {
		if qty < 1 {
			qty = 1
		}
		if i, ok := index[courseID]; ok {
			items[i].Quantity += qty
			return
		}
		index[courseID] = len(items)
		items = append(items, purchaseItem{CourseID: courseID, Quantity: qty})
	}

	for _, li := range sess.LineItems {
		if s.prices == nil {
			return nil, domain.ErrUnknownPrice
		}
		product, err := s.prices.Resolve(ctx, li.PriceID)
		if err != nil {
			return nil, fmt.Errorf("resolving price %s: %w", li.PriceID, err)
		}
		add(product.CourseID, int(li.Quantity))
	}
	if len(items) > 0 {
		return items, nil
	}

	courseID, err := uuid.Parse(sess.Meta(payments.MetaCourseID))
	if err != nil {
		return nil, domain.ErrNoLineItems
	}
	seats, _ := strconv.Atoi(sess.Meta(payments.MetaSeats))
	add(courseID, seats)
	return items, nil
}

// isFulfillmentError reports errors that make a paid session impossible to
// fulfill. They fail the purchase instead of being retried.
func isFulfillmentError(err error) bool {
	return errors.Is(err, domain.ErrUnknownPrice) ||
		errors.Is(err, domain.ErrNoLineItems) ||
		errors.Is(err, domain.ErrCourseNotFound) ||
		errors.Is(err, domain.ErrPurchaserUnresolved)
}

type AccountDecisionInput struct {
	Metadata       map[string]string
	TotalQuantity  int
	PurchaserEmail string
}

type AccountDecision struct {
	Type model.PurchaseType
	// ExplicitAccountID names a team to top up. It is honored only when the
	// purchaser owns that team.
	ExplicitAccountID *uuid.UUID
	TeamName          string
	EnrollPurchaser   bool
}

// DecideAccount chooses between a personal and a team purchase.
func DecideAccount(in AccountDecisionInput) AccountDecision {
	meta := func(k string) string { return strings.TrimSpace(in.Metadata[k]) }

	d := AccountDecision{Type: model.PurchasePersonal}
	if id, err := uuid.Parse(meta(payments.MetaAccountID)); err == nil && id != uuid.Nil {
		d.Type = model.PurchaseTeam
		d.ExplicitAccountID = &id
	}
	if strings.EqualFold(meta(payments.MetaPurchaseType), string(model.PurchaseTeam)) || in.TotalQuantity > 1 {
		d.Type = model.PurchaseTeam
	}

	if d.Type == model.PurchasePersonal {
		d.EnrollPurchaser = true
		return d
	}

	d.TeamName = meta(payments.MetaTeamName)
	if d.TeamName == "" {
		d.TeamName = normalizeEmail(in.PurchaserEmail) + " Team"
	}
	d.EnrollPurchaser = strings.EqualFold(meta(payments.MetaEnrollPurchaser), "true")
	return d
}

// loadPurchaseTx upserts the purchase row for the session and locks it.
func (s *PurchaseService) loadPurchaseTx(ctx context.Context, tx *repository.Store, sess *payments.Session, eventID string) (*model.Purchase, error) {
	created, err := tx.Purchases.CreateIfAbsent(ctx, &model.Purchase{
		StripeCheckoutSessionID: sess.ID,
		Status:                  model.PurchasePending,
	})
	if err != nil {
		return nil, err
	}
	purchase, err := tx.Purchases.FindBySessionIDForUpdate(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.audit.Record(ctx, tx.Logs, audit.Entry{
			PurchaseID: &purchase.ID,
			SessionID:  sess.ID,
			EventID:    eventID,
			Action:     model.ActionPurchaseRecorded,
		}); err != nil {
			return nil, err
		}
	}
	return purchase, nil
}

// absorbSession copies what the session knows into empty purchase fields.
func absorbSession(p *model.Purchase, sess *payments.Session) {
	if p.StripePaymentIntentID == "" {
		p.StripePaymentIntentID = sess.PaymentIntentID
	}
	if p.StripeCustomerID == "" {
		p.StripeCustomerID = sess.CustomerID
	}
	if p.Email == "" {
		p.Email = normalizeEmail(sess.CustomerEmail)
	}
	if sess.AmountTotal > 0 {
		p.AmountTotal = sess.AmountTotal
	}
	if sess.Currency != "" {
		p.Currency = sess.Currency
	}
}

// fulfillment carries what fulfillTx did to the post-commit notifications.
type fulfillment struct {
	account *model.Account
	email   string
	team    bool
	items   []mailer.ReceiptItem
	mails   []*pendingMail
}

// ReconcileSession fulfills a checkout session. It is safe to call any
// number of times for the same session: the per-session lock, the purchase
// row lock and the terminal states make every call after the first a
// no-op.
func (s *PurchaseService) ReconcileSession(ctx context.Context, sess *payments.Session, eventID string) (*ReconcileResult, error) {
	return s.reconcile(ctx, sess, eventID, false)
}

// reconcile does the work of ReconcileSession. With retryFailed a failed
// purchase whose session is paid is reopened and fulfilled again.
func (s *PurchaseService) reconcile(ctx context.Context, sess *payments.Session, eventID string, retryFailed bool) (*ReconcileResult, error) {
	if sess == nil || sess.ID == "" {
		return nil, fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}

	release, err := s.locker.Acquire(ctx, purchaseLockKey(sess.ID), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	if !sess.LineItemsLoaded && sess.PaymentStatus != payments.PaymentStatusUnpaid && s.gateway != nil {
		full, err := s.gateway.GetSession(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		sess = full
	}

	items, itemsErr := s.resolveItems(ctx, sess)
	if itemsErr != nil && !isFulfillmentError(itemsErr) {
		return nil, itemsErr
	}

	result := &ReconcileResult{SessionID: sess.ID}
	var done *fulfillment
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		purchase, err := s.loadPurchaseTx(ctx, tx, sess, eventID)
		if err != nil {
			return err
		}
		result.PurchaseID = &purchase.ID

		if retryFailed && purchase.Status == model.PurchaseFailed && sess.PaymentStatus != payments.PaymentStatusUnpaid {
			if err := s.audit.Record(ctx, tx.Logs, audit.Entry{
				PurchaseID: &purchase.ID,
				SessionID:  sess.ID,
				EventID:    eventID,
				Action:     model.ActionRetried,
				Detail:     map[string]interface{}{"previous_reason": purchase.FailureReason},
			}); err != nil {
				return err
			}
			purchase.Status = model.PurchasePending
			purchase.FailureReason = ""
		}

		if purchase.Status.Terminal() {
			result.Outcome = OutcomeIgnored
			if purchase.Status == model.PurchaseFulfilled {
				result.Outcome = OutcomeAlreadyFulfilled
			}
			result.AccountID = purchase.AccountID
			return s.audit.Record(ctx, tx.Logs, audit.Entry{
				PurchaseID: &purchase.ID,
				SessionID:  sess.ID,
				EventID:    eventID,
				Action:     model.ActionAlreadyTerminal,
				Detail:     map[string]interface{}{"status": string(purchase.Status)},
			})
		}

		absorbSession(purchase, sess)

		if sess.PaymentStatus == payments.PaymentStatusUnpaid {
			result.Outcome = OutcomeAwaitingPayment
			if purchase.Status.CanTransition(model.PurchaseAwaitingPayment) {
				purchase.Status = model.PurchaseAwaitingPayment
			}
			if err := tx.Purchases.Update(ctx, purchase); err != nil {
				return err
			}
			return s.audit.Record(ctx, tx.Logs, audit.Entry{
				PurchaseID: &purchase.ID,
				SessionID:  sess.ID,
				EventID:    eventID,
				Action:     model.ActionAwaitingPayment,
			})
		}

		if itemsErr != nil {
			return s.failTx(ctx, tx, purchase, eventID, itemsErr, result)
		}

		done, err = s.fulfillTx(ctx, tx, purchase, sess, items, eventID, result)
		if isFulfillmentError(err) {
			done = nil
			return s.failTx(ctx, tx, purchase, eventID, err, result)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if done != nil {
		s.notify(ctx, sess.ID, done)
	}
	return result, nil
}

func (s *PurchaseService) failTx(ctx context.Context, tx *repository.Store, purchase *model.Purchase, eventID string, cause error, result *ReconcileResult) error {
	purchase.Status = model.PurchaseFailed
	purchase.FailureReason = cause.Error()
	if err := tx.Purchases.Update(ctx, purchase); err != nil {
		return err
	}
	result.Outcome = OutcomeFailed
	result.Reason = cause.Error()
	s.logger.WarnContext(ctx, "purchase failed", "session_id", purchase.StripeCheckoutSessionID, "error", cause)
	return s.audit.Record(ctx, tx.Logs, audit.Entry{
		PurchaseID: &purchase.ID,
		SessionID:  purchase.StripeCheckoutSessionID,
		EventID:    eventID,
		Action:     model.ActionFailed,
		Detail:     map[string]interface{}{"reason": cause.Error()},
	})
}

// resolvePurchaser finds the paying user: metadata user_id, then the client
// reference id, then the user recorded at checkout, then the personal
// account matching the customer email. uuid.Nil means a guest.
func (s *PurchaseService) resolvePurchaser(ctx context.Context, tx *repository.Store, sess *payments.Session, purchase *model.Purchase) (uuid.UUID, string, error) {
	email := normalizeEmail(sess.CustomerEmail)
	if email == "" {
		email = purchase.Email
	}

	candidates := []string{sess.Meta(payments.MetaUserID), strings.TrimSpace(sess.ClientReferenceID)}
	if purchase.UserID != nil {
		candidates = append(candidates, purchase.UserID.String())
	}
	for _, raw := range candidates {
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			continue
		}
		if email == "" {
			if personal, err := tx.Accounts.FindPersonalByUser(ctx, id); err == nil {
				email = personal.Email
			}
		}
		return id, email, nil
	}

	if email == "" {
		return uuid.Nil, "", domain.ErrPurchaserUnresolved
	}
	personal, err := tx.Accounts.FindPersonalByEmail(ctx, email)
	if err == nil {
		return personal.PrimaryOwnerUserID, email, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return uuid.Nil, "", err
	}
	return uuid.Nil, email, nil
}

// applyDecision returns the account that receives the seats.
func (s *PurchaseService) applyDecision(ctx context.Context, tx *repository.Store, userID uuid.UUID, email, customerID string, d AccountDecision) (*model.Account, error) {
	if userID == uuid.Nil {
		name := email
		if d.Type == model.PurchaseTeam {
			name = d.TeamName
		}
		return findOrCreateUnclaimed(ctx, tx, email, name)
	}

	personal, err := ensurePersonalAccount(ctx, tx, userID, email)
	if err != nil {
		return nil, err
	}
	if customerID != "" && personal.StripeCustomerID == "" {
		personal.StripeCustomerID = customerID
		if err := tx.Accounts.Update(ctx, personal); err != nil {
			return nil, err
		}
	}
	if d.Type == model.PurchasePersonal {
		return personal, nil
	}

	if d.ExplicitAccountID != nil {
		account, err := requireOwner(ctx, tx, Actor{UserID: userID}, *d.ExplicitAccountID)
		switch {
		case err == nil && !account.IsPersonalAccount:
			return account, nil
		case err == nil, errors.Is(err, domain.ErrNotAccountOwner), errors.Is(err, domain.ErrAccountNotFound):
			s.logger.WarnContext(ctx, "ignoring account_id the purchaser cannot top up",
				"account_id", d.ExplicitAccountID.String(), "user_id", userID)
		default:
			return nil, err
		}
	}
	return findOrCreateTeam(ctx, tx, userID, email, d.TeamName)
}

func (s *PurchaseService) fulfillTx(
	ctx context.Context,
	tx *repository.Store,
	purchase *model.Purchase,
	sess *payments.Session,
	items []purchaseItem,
	eventID string,
	result *ReconcileResult,
) (*fulfillment, error) {
	courses := make(map[uuid.UUID]*model.Course, len(items))
	total := 0
	for _, item := range items {
		course, err := tx.Courses.FindByID(ctx, item.CourseID)
		if err != nil {
			return nil, err
		}
		courses[item.CourseID] = course
		total += item.Quantity
	}

	userID, email, err := s.resolvePurchaser(ctx, tx, sess, purchase)
	if err != nil {
		return nil, err
	}

	decision := DecideAccount(AccountDecisionInput{
		Metadata:       sess.Metadata,
		TotalQuantity:  total,
		PurchaserEmail: email,
	})
	account, err := s.applyDecision(ctx, tx, userID, email, sess.CustomerID, decision)
	if err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, tx.Logs, audit.Entry{
		PurchaseID: &purchase.ID,
		SessionID:  sess.ID,
		EventID:    eventID,
		Action:     model.ActionAccountResolved,
		Detail: map[string]interface{}{
			"account_id": account.ID.String(),
			"type":       string(decision.Type),
			"guest":      userID == uuid.Nil,
		},
	}); err != nil {
		return nil, err
	}

	done := &fulfillment{account: account, email: email, team: decision.Type == model.PurchaseTeam}
	for _, item := range items {
		created, err := tx.Purchases.CreateGrant(ctx, &model.SeatGrant{
			PurchaseID: purchase.ID,
			CourseID:   item.CourseID,
			AccountID:  account.ID,
			Quantity:   item.Quantity,
		})
		if err != nil {
			return nil, err
		}
		if created {
			if _, err := tx.Seats.AddSeats(ctx, account.ID, item.CourseID, item.Quantity); err != nil {
				return nil, err
			}
		}
		if err := s.audit.Record(ctx, tx.Logs, audit.Entry{
			PurchaseID: &purchase.ID,
			SessionID:  sess.ID,
			EventID:    eventID,
			Action:     model.ActionSeatsGranted,
			Detail: map[string]interface{}{
				"course_id": item.CourseID.String(),
				"seats":     item.Quantity,
				"new_grant": created,
			},
		}); err != nil {
			return nil, err
		}
		done.items = append(done.items, mailer.ReceiptItem{CourseTitle: courses[item.CourseID].Title, Seats: item.Quantity})
	}

	if decision.EnrollPurchaser {
		for _, item := range items {
			if userID != uuid.Nil {
				_, created, err := enrollTx(ctx, tx, userID, item.CourseID, account.ID, enrollOpts{purchaseID: &purchase.ID})
				if err != nil {
					return nil, err
				}
				if created {
					result.Enrolled++
				}
				if err := s.audit.Record(ctx, tx.Logs, audit.Entry{
					PurchaseID: &purchase.ID,
					SessionID:  sess.ID,
					EventID:    eventID,
					Action:     model.ActionEnrolled,
					Detail:     map[string]interface{}{"user_id": userID.String(), "course_id": item.CourseID.String(), "new": created},
				}); err != nil {
					return nil, err
				}
				continue
			}

			if s.invitations == nil {
				continue
			}
			_, mail, err := s.invitations.createInvitationTx(ctx, tx, account, courses[item.CourseID], email, nil, &purchase.ID, "")
			if errors.Is(err, domain.ErrInvitationExists) || errors.Is(err, domain.ErrAlreadyEnrolled) {
				s.logger.InfoContext(ctx, "guest already invited", "email", email, "course_id", item.CourseID)
				continue
			}
			if err != nil {
				return nil, err
			}
			result.Invited++
			done.mails = append(done.mails, mail)
			if err := s.audit.Record(ctx, tx.Logs, audit.Entry{
				PurchaseID: &purchase.ID,
				SessionID:  sess.ID,
				EventID:    eventID,
				Action:     model.ActionInvited,
				Detail:     map[string]interface{}{"email": email, "course_id": item.CourseID.String()},
			}); err != nil {
				return nil, err
			}
		}
	}

	now := s.now()
	accountID := account.ID
	purchase.AccountID = &accountID
	purchase.Type = decision.Type
	purchase.Email = email
	if userID != uuid.Nil {
		uid := userID
		purchase.UserID = &uid
	}
	purchase.Status = model.PurchaseFulfilled
	purchase.FulfilledAt = &now
	purchase.FailureReason = ""
	if err := tx.Purchases.Update(ctx, purchase); err != nil {
		return nil, err
	}

	result.Outcome = OutcomeFulfilled
	result.AccountID = &accountID
	if err := s.audit.Record(ctx, tx.Logs, audit.Entry{
		PurchaseID: &purchase.ID,
		SessionID:  sess.ID,
		EventID:    eventID,
		Action:     model.ActionFulfilled,
		Detail:     map[string]interface{}{"account_id": accountID.String(), "enrolled": result.Enrolled, "invited": result.Invited},
	}); err != nil {
		return nil, err
	}
	return done, nil
}

// notify sends the receipt and invitation emails. Failures are logged; the
// purchase is already fulfilled.
func (s *PurchaseService) notify(ctx context.Context, sessionID string, done *fulfillment) {
	if s.invitations != nil {
		s.invitations.send(ctx, done.mails...)
	}
	if s.notifier == nil || done.email == "" {
		return
	}
	err := s.notifier.SendPurchaseReceipt(ctx, mailer.PurchaseReceiptData{
		Email:        done.email,
		SessionID:    sessionID,
		AccountName:  done.account.Name,
		Team:         done.team,
		Items:        done.items,
		DashboardURL: s.baseURL + "/dashboard",
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send purchase receipt", "session_id", sessionID, "error", err)
	}
}

// markTerminal moves a purchase to failed or expired when the state machine
// allows it.
func (s *PurchaseService) markTerminal(ctx context.Context, sess *payments.Session, status model.PurchaseStatus, eventID, reason string) (*ReconcileResult, error) {
	release, err := s.locker.Acquire(ctx, purchaseLockKey(sess.ID), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &ReconcileResult{SessionID: sess.ID}
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		purchase, err := s.loadPurchaseTx(ctx, tx, sess, eventID)
		if err != nil {
			return err
		}
		result.PurchaseID = &purchase.ID

		if !purchase.Status.CanTransition(status) {
			result.Outcome = OutcomeIgnored
			result.Reason = "purchase is " + string(purchase.Status)
			return s.audit.Record(ctx, tx.Logs, audit.Entry{
				PurchaseID: &purchase.ID,
				SessionID:  sess.ID,
				EventID:    eventID,
				Action:     model.ActionAlreadyTerminal,
				Detail:     map[string]interface{}{"status": string(purchase.Status), "wanted": string(status)},
			})
		}

		absorbSession(purchase, sess)
		purchase.Status = status
		action := model.ActionExpired
		result.Outcome = OutcomeExpired
		if status == model.PurchaseFailed {
			purchase.FailureReason = reason
			action = model.ActionFailed
			result.Outcome = OutcomeFailed
			result.Reason = reason
		}
		if err := tx.Purchases.Update(ctx, purchase); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx.Logs, audit.Entry{
			PurchaseID: &purchase.ID,
			SessionID:  sess.ID,
			EventID:    eventID,
			Action:     action,
			Detail:     map[string]interface{}{"reason": reason},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RefundByPaymentIntent refunds the purchase that created the payment
// intent. A purchase this service has not seen yet is looked up in Stripe
// so that a late completion event finds it already refunded.
func (s *PurchaseService) RefundByPaymentIntent(ctx context.Context, paymentIntentID, eventID string) (*ReconcileResult, error) {
	if paymentIntentID == "" {
		return &ReconcileResult{Outcome: OutcomeIgnored, Reason: "charge has no payment intent"}, nil
	}

	purchase, err := s.store.Purchases.FindByPaymentIntent(ctx, paymentIntentID)
	if err == nil {
		return s.RefundSession(ctx, &payments.Session{
			ID:              purchase.StripeCheckoutSessionID,
			PaymentIntentID: paymentIntentID,
		}, eventID)
	}
	if !errors.Is(err, domain.ErrPurchaseNotFound) {
		return nil, err
	}

	if s.gateway == nil {
		s.logger.WarnContext(ctx, "refund for unknown payment intent", "payment_intent", paymentIntentID)
		return &ReconcileResult{Outcome: OutcomeIgnored, Reason: "unknown payment intent"}, nil
	}
	sess, err := s.gateway.FindSessionByPaymentIntent(ctx, paymentIntentID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "refund for payment intent without checkout session", "payment_intent", paymentIntentID)
		return &ReconcileResult{Outcome: OutcomeIgnored, Reason: "unknown payment intent"}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.RefundSession(ctx, sess, eventID)
}

// RefundSession marks the session's purchase refunded, creating the row if
// needed. A fulfilled purchase loses its enrollments, pending invitations
// and seat grants; pool totals never drop below the seats in use.
func (s *PurchaseService) RefundSession(ctx context.Context, sess *payments.Session, eventID string) (*ReconcileResult, error) {
	if sess == nil || sess.ID == "" {
		return nil, fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}

	release, err := s.locker.Acquire(ctx, purchaseLockKey(sess.ID), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &ReconcileResult{SessionID: sess.ID}
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		purchase, err := s.loadPurchaseTx(ctx, tx, sess, eventID)
		if err != nil {
			return err
		}
		result.PurchaseID = &purchase.ID
		result.AccountID = purchase.AccountID

		if !purchase.Status.CanTransition(model.PurchaseRefunded) {
			result.Outcome = OutcomeIgnored
			result.Reason = "purchase is " + string(purchase.Status)
			return nil
		}

		if purchase.Status == model.PurchaseFulfilled {
			if err := s.revokePurchaseTx(ctx, tx, purchase, eventID); err != nil {
				return err
			}
		}

		absorbSession(purchase, sess)
		purchase.Status = model.PurchaseRefunded
		if err := tx.Purchases.Update(ctx, purchase); err != nil {
			return err
		}
		result.Outcome = OutcomeRefunded
		return s.audit.Record(ctx, tx.Logs, audit.Entry{
			PurchaseID: &purchase.ID,
			SessionID:  sess.ID,
			EventID:    eventID,
			Action:     model.ActionRefunded,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PurchaseService) revokePurchaseTx(ctx context.Context, tx *repository.Store, purchase *model.Purchase, eventID string) error {
	enrollments, err := tx.Enrollments.ListByPurchase(ctx, purchase.ID)
	if err != nil {
		return err
	}
	for _, e := range enrollments {
		if e.Status != model.EnrollmentActive {
			continue
		}
		if err := revokeEnrollmentTx(ctx, tx, e); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx.Logs, audit.Entry{
			PurchaseID: &purchase.ID,
			SessionID:  purchase.StripeCheckoutSessionID,
			EventID:    eventID,
			Action:     model.ActionEnrollmentRevoked,
			Detail:     map[string]interface{}{"user_id": e.UserID.String(), "course_id": e.CourseID.String()},
		}); err != nil {
			return err
		}
	}

	invitations, err := tx.Invitations.ListPendingByPurchase(ctx, purchase.ID)
	if err != nil {
		return err
	}
	for _, inv := range invitations {
		if err := revokeInvitationTx(ctx, tx, inv); err != nil {
			return err
		}
	}

	grants, err := tx.Purchases.GrantsForPurchase(ctx, purchase.ID)
	if err != nil {
		return err
	}
	for _, g := range grants {
		if g.Revoked {
			continue
		}
		pool, err := tx.Seats.FindPoolForUpdate(ctx, g.AccountID, g.CourseID)
		if err != nil && !errors.Is(err, domain.ErrSeatPoolNotFound) {
			return err
		}
		if pool != nil {
			pool.TotalSeats -= g.Quantity
			if pool.TotalSeats < pool.UsedSeats {
				pool.TotalSeats = pool.UsedSeats
			}
			if err := tx.Seats.Save(ctx, pool); err != nil {
				return err
			}
		}
		g.Revoked = true
		if err := tx.Purchases.UpdateGrant(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// Replay fetches a session from Stripe and reconciles it again. A purchase
// that failed to fulfill, e.g. on a price missing from the catalog, is
// retried once Stripe reports the session paid.
func (s *PurchaseService) Replay(ctx context.Context, sessionID string) (*ReconcileResult, error) {
	if s.gateway == nil {
		return nil, domain.ErrPaymentsDisabled
	}
	sess, err := s.gateway.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "replaying checkout session", "session_id", sessionID)
	return s.reconcile(ctx, sess, "", true)
}

type PurchaseInspection struct {
	Purchase *model.Purchase           `json:"purchase"`
	Grants   []*model.SeatGrant        `json:"grants"`
	Logs     []model.ReconciliationLog `json:"logs"`
}

// Inspect returns a purchase with its seat grants and reconciliation log.
func (s *PurchaseService) Inspect(ctx context.Context, sessionID string) (*PurchaseInspection, error) {
	purchase, err := s.store.Purchases.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	grants, err := s.store.Purchases.GrantsForPurchase(ctx, purchase.ID)
	if err != nil {
		return nil, err
	}
	logs, _, err := s.store.Logs.Query(ctx, repository.QueryParams{SessionID: sessionID, Limit: 200})
	if err != nil {
		return nil, err
	}
	return &PurchaseInspection{Purchase: purchase, Grants: grants, Logs: logs}, nil
}
