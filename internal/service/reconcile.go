// internal/service/reconcile.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/payments"
	"github.com/dangerclosesec/coursehub/internal/repository"
)

// ReconciliationService periodically re-checks purchases that never got a
// terminal webhook against Stripe.
type ReconciliationService struct {
	store       *repository.Store
	purchases   *PurchaseService
	gateway     payments.Gateway
	interval    time.Duration
	staleAge    time.Duration
	batchSize   int
	dryRun      bool // If true, only log what would be done
	logger      *slog.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

func NewReconciliationService(
	store *repository.Store,
	purchases *PurchaseService,
	gateway payments.Gateway,
	interval, staleAge time.Duration,
	logger *slog.Logger,
) *ReconciliationService {
	if interval == 0 {
		interval = 15 * time.Minute
	}
	if staleAge == 0 {
		staleAge = 30 * time.Minute
	}

	return &ReconciliationService{
		store:       store,
		purchases:   purchases,
		gateway:     gateway,
		interval:    interval,
		staleAge:    staleAge,
		batchSize:   100,
		logger:      logger,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start begins the periodic sweep
func (s *ReconciliationService) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		defer close(s.stoppedChan)

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				_, err := s.Sweep(ctx)
				if errors.Is(err, domain.ErrPaymentsDisabled) {
					_, err = s.ExpireInvitations(ctx)
				}
				if err != nil {
					s.logger.Error("reconciliation sweep failed", "error", err)
				}
				cancel()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit
func (s *ReconciliationService) Stop() {
	close(s.stopChan)
	<-s.stoppedChan
}

func (s *ReconciliationService) SetBatchSize(size int) {
	if size > 0 {
		s.batchSize = size
	}
}

func (s *ReconciliationService) SetDryRun(dryRun bool) {
	s.dryRun = dryRun
}

type SweepResult struct {
	Checked   int `json:"checked"`
	Fulfilled int `json:"fulfilled"`
	Expired   int `json:"expired"`
	Open      int `json:"open"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`

	InvitationsExpired int `json:"invitations_expired"`
}

var errInvitationSettled = errors.New("invitation no longer pending")

// ExpireInvitations closes one batch of pending invitations past their
// expiry and releases the seats they held.
func (s *ReconciliationService) ExpireInvitations(ctx context.Context) (int, error) {
	expired, err := s.store.Invitations.ListExpiredPending(ctx, time.Now().UTC(), s.batchSize)
	if err != nil {
		return 0, err
	}
	if s.dryRun {
		s.logger.Info("would expire invitations (dry run)", "count", len(expired))
		return len(expired), nil
	}

	n := 0
	for _, inv := range expired {
		err := s.store.Transaction(ctx, func(tx *repository.Store) error {
			current, err := tx.Invitations.FindByID(ctx, inv.ID)
			if err != nil {
				return err
			}
			// Accepted or revoked since the listing.
			if current.Status != model.InvitationPending {
				return errInvitationSettled
			}
			return expireInvitationTx(ctx, tx, current)
		})
		if errors.Is(err, errInvitationSettled) {
			continue
		}
		if err != nil {
			s.logger.Error("failed to expire invitation", "invitation_id", inv.ID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		s.logger.Info("expired invitations", "count", n)
	}
	return n, nil
}

// Sweep reconciles one batch of stale pending and awaiting_payment
// purchases.
func (s *ReconciliationService) Sweep(ctx context.Context) (*SweepResult, error) {
	if s.gateway == nil {
		return nil, domain.ErrPaymentsDisabled
	}

	stale, err := s.store.Purchases.FindStale(ctx, time.Now().UTC().Add(-s.staleAge), s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetching stale purchases: %w", err)
	}
	s.logger.Info("reconciling stale purchases", "count", len(stale), "dry_run", s.dryRun)

	result := &SweepResult{}
	result.InvitationsExpired, err = s.ExpireInvitations(ctx)
	if err != nil {
		return nil, fmt.Errorf("expiring invitations: %w", err)
	}

	for _, p := range stale {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		sess, err := s.gateway.GetSession(ctx, p.StripeCheckoutSessionID)
		if err != nil {
			s.logger.Error("failed to fetch checkout session",
				"session_id", p.StripeCheckoutSessionID,
				"error", err,
			)
			result.Errors++
			continue
		}

		if s.dryRun {
			s.logger.Info("would reconcile purchase (dry run)",
				"session_id", sess.ID,
				"purchase_status", p.Status,
				"session_status", sess.Status,
				"payment_status", sess.PaymentStatus,
			)
			continue
		}

		var res *ReconcileResult
		switch sess.Status {
		case payments.SessionExpired:
			res, err = s.purchases.markTerminal(ctx, sess, model.PurchaseExpired, "", "session expired")
		case payments.SessionComplete:
			res, err = s.purchases.ReconcileSession(ctx, sess, "")
		default:
			result.Open++
			continue
		}
		if err != nil {
			s.logger.Error("failed to reconcile purchase", "session_id", sess.ID, "error", err)
			result.Errors++
			continue
		}

		switch res.Outcome {
		case OutcomeFulfilled:
			result.Fulfilled++
		case OutcomeExpired:
			result.Expired++
		case OutcomeFailed:
			result.Failed++
		}
	}

	s.logger.Info("reconciliation sweep completed",
		"checked", result.Checked,
		"fulfilled", result.Fulfilled,
		"expired", result.Expired,
		"errors", result.Errors,
	)
	return result, nil
}
