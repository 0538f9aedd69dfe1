// internal/service/invitations.go
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/email/mailer"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// TokenHasher derives the stored form of invitation tokens.
type TokenHasher struct {
	key []byte
}

func NewTokenHasher(key string) *TokenHasher {
	return &TokenHasher{key: []byte(key)}
}

// NewToken returns a random URL-safe token.
func (h *TokenHasher) NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating invitation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hash is a keyed BLAKE2b-256 of the token, hex encoded.
func (h *TokenHasher) Hash(token string) (string, error) {
	key := h.key
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	mac, err := blake2b.New256(key)
	if err != nil {
		return "", fmt.Errorf("initializing token hash: %w", err)
	}
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

type InvitationService struct {
	store    *repository.Store
	hasher   *TokenHasher
	notifier mailer.Notifier
	ttl      time.Duration
	baseURL  string
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewInvitationService(
	store *repository.Store,
	hasher *TokenHasher,
	notifier mailer.Notifier,
	ttl time.Duration,
	baseURL string,
	logger *slog.Logger,
) *InvitationService {
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	return &InvitationService{
		store:    store,
		hasher:   hasher,
		notifier: notifier,
		ttl:      ttl,
		baseURL:  baseURL,
		logger:   logger,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type InviteInput struct {
	AccountID uuid.UUID `json:"-" validate:"required"`
	CourseID  uuid.UUID `json:"course_id" validate:"required"`
	Email     string    `json:"email" validate:"required,email"`
}

// pendingMail is an invitation email to send once its transaction commits.
type pendingMail struct {
	data mailer.CourseInvitationData
}

func (s *InvitationService) acceptURL(token string) string {
	return s.baseURL + "/invitations/accept?token=" + url.QueryEscape(token)
}

// createInvitationTx reserves a seat and stores a pending invitation. The
// returned mail must be sent after commit.
func (s *InvitationService) createInvitationTx(
	ctx context.Context,
	tx *repository.Store,
	account *model.Account,
	course *model.Course,
	email string,
	invitedBy, purchaseID *uuid.UUID,
	inviterName string,
) (*model.CourseInvitation, *pendingMail, error) {
	email = normalizeEmail(email)

	existing, err := tx.Invitations.FindPending(ctx, email, course.ID, account.ID)
	switch {
	case err == nil && existing.Expired(s.now()):
		if err := expireInvitationTx(ctx, tx, existing); err != nil {
			return nil, nil, err
		}
	case err == nil:
		return nil, nil, domain.ErrInvitationExists
	case !errors.Is(err, domain.ErrInvitationNotFound):
		return nil, nil, err
	}

	if personal, err := tx.Accounts.FindPersonalByEmail(ctx, email); err == nil {
		if e, err := tx.Enrollments.Find(ctx, personal.PrimaryOwnerUserID, course.ID); err == nil && e.Status == model.EnrollmentActive {
			return nil, nil, domain.ErrAlreadyEnrolled
		}
	}

	if err := tx.Seats.Reserve(ctx, account.ID, course.ID); err != nil {
		return nil, nil, err
	}

	token, err := s.hasher.NewToken()
	if err != nil {
		return nil, nil, err
	}
	hash, err := s.hasher.Hash(token)
	if err != nil {
		return nil, nil, err
	}

	inv := &model.CourseInvitation{
		Email:      email,
		CourseID:   course.ID,
		AccountID:  account.ID,
		InvitedBy:  invitedBy,
		PurchaseID: purchaseID,
		TokenHash:  hash,
		Status:     model.InvitationPending,
		ExpiresAt:  s.now().Add(s.ttl),
	}
	if err := tx.Invitations.Create(ctx, inv); err != nil {
		return nil, nil, err
	}

	return inv, &pendingMail{data: mailer.CourseInvitationData{
		Email:       email,
		CourseTitle: course.Title,
		AccountName: account.Name,
		InviterName: inviterName,
		AcceptURL:   s.acceptURL(token),
		ExpiresAt:   inv.ExpiresAt,
	}}, nil
}

func (s *InvitationService) send(ctx context.Context, mails ...*pendingMail) {
	if s.notifier == nil {
		return
	}
	for _, m := range mails {
		if m == nil {
			continue
		}
		if err := s.notifier.SendCourseInvitation(ctx, m.data); err != nil {
			s.logger.Error("failed to send invitation email", "email", m.data.Email, "error", err)
		}
	}
}

// Invite reserves a seat of a team account for email and mails the
// invitation.
func (s *InvitationService) Invite(ctx context.Context, actor Actor, input InviteInput) (*model.CourseInvitation, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}

	var (
		inv  *model.CourseInvitation
		mail *pendingMail
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		account, err := requireOwner(ctx, tx, actor, input.AccountID)
		if err != nil {
			return err
		}
		if account.IsPersonalAccount {
			return domain.ErrPersonalAccountSeats
		}
		course, err := tx.Courses.FindByID(ctx, input.CourseID)
		if err != nil {
			return err
		}

		var invitedBy *uuid.UUID
		if actor.UserID != uuid.Nil {
			id := actor.UserID
			invitedBy = &id
		}
		inv, mail, err = s.createInvitationTx(ctx, tx, account, course, input.Email, invitedBy, nil, actor.Email)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invitation created", "invitation_id", inv.ID, "account_id", inv.AccountID, "course_id", inv.CourseID)
	s.send(ctx, mail)
	return inv, nil
}

// RevokeInvitation cancels a pending invitation and frees its seat.
func (s *InvitationService) RevokeInvitation(ctx context.Context, actor Actor, invitationID uuid.UUID) error {
	return s.store.Transaction(ctx, func(tx *repository.Store) error {
		inv, err := tx.Invitations.FindByID(ctx, invitationID)
		if err != nil {
			return err
		}
		if _, err := requireOwner(ctx, tx, actor, inv.AccountID); err != nil {
			return err
		}
		if inv.Status != model.InvitationPending {
			return domain.ErrInvitationUsed
		}
		return revokeInvitationTx(ctx, tx, inv)
	})
}

func revokeInvitationTx(ctx context.Context, tx *repository.Store, inv *model.CourseInvitation) error {
	inv.Status = model.InvitationRevoked
	if err := tx.Invitations.Update(ctx, inv); err != nil {
		return err
	}
	return tx.Seats.Release(ctx, inv.AccountID, inv.CourseID)
}

// expireInvitationTx closes an invitation past its expiry and gives its seat
// back to the pool.
func expireInvitationTx(ctx context.Context, tx *repository.Store, inv *model.CourseInvitation) error {
	inv.Status = model.InvitationExpired
	if err := tx.Invitations.Update(ctx, inv); err != nil {
		return err
	}
	return tx.Seats.Release(ctx, inv.AccountID, inv.CourseID)
}

// acceptTx turns a pending invitation into an enrollment on its reserved seat.
func (s *InvitationService) acceptTx(ctx context.Context, tx *repository.Store, actor Actor, inv *model.CourseInvitation) (*model.CourseEnrollment, error) {
	if _, err := ensurePersonalAccount(ctx, tx, actor.UserID, actor.Email); err != nil {
		return nil, err
	}

	account, err := tx.Accounts.FindByID(ctx, inv.AccountID)
	if err != nil {
		return nil, err
	}
	role := model.RoleMember
	if account.Unclaimed() && normalizeEmail(account.Email) == normalizeEmail(actor.Email) {
		if _, err := claimAccounts(ctx, tx, actor.UserID, actor.Email); err != nil {
			return nil, err
		}
		role = model.RoleOwner
	} else if account.PrimaryOwnerUserID == actor.UserID {
		role = model.RoleOwner
	}
	if err := tx.Accounts.AddMember(ctx, &model.AccountMembership{
		AccountID: inv.AccountID, UserID: actor.UserID, Role: role,
	}); err != nil {
		return nil, err
	}

	enrollment, _, err := enrollTx(ctx, tx, actor.UserID, inv.CourseID, inv.AccountID, enrollOpts{
		purchaseID: inv.PurchaseID,
		seatHeld:   true,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	userID := actor.UserID
	inv.Status = model.InvitationAccepted
	inv.AcceptedAt = &now
	inv.AcceptedBy = &userID
	if err := tx.Invitations.Update(ctx, inv); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// AcceptInvitation redeems an invitation token for the signed-in user.
func (s *InvitationService) AcceptInvitation(ctx context.Context, actor Actor, token string) (*model.CourseEnrollment, error) {
	if actor.UserID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", domain.ErrInvalidInput)
	}
	hash, err := s.hasher.Hash(token)
	if err != nil {
		return nil, err
	}

	var (
		enrollment *model.CourseEnrollment
		expired    bool
	)
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		inv, err := tx.Invitations.FindByTokenHash(ctx, hash)
		if err != nil {
			return err
		}
		if inv.Status == model.InvitationExpired {
			return domain.ErrInvitationExpired
		}
		if inv.Status != model.InvitationPending {
			return domain.ErrInvitationUsed
		}
		if inv.Expired(s.now()) {
			// Commit the expiry so the seat goes back to the pool.
			expired = true
			return expireInvitationTx(ctx, tx, inv)
		}
		if normalizeEmail(inv.Email) != normalizeEmail(actor.Email) {
			return domain.ErrInvitationEmail
		}

		enrollment, err = s.acceptTx(ctx, tx, actor, inv)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, domain.ErrInvitationExpired
	}

	s.logger.Info("invitation accepted", "user_id", actor.UserID, "course_id", enrollment.CourseID)
	return enrollment, nil
}

// ConsumePendingInvitations runs on sign-in: guest accounts opened for the
// user's email are claimed and every unexpired pending invitation becomes
// an enrollment.
func (s *InvitationService) ConsumePendingInvitations(ctx context.Context, actor Actor) ([]*model.CourseEnrollment, error) {
	if actor.UserID == uuid.Nil || actor.Email == "" {
		return nil, domain.ErrUnauthorized
	}

	var enrollments []*model.CourseEnrollment
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := ensurePersonalAccount(ctx, tx, actor.UserID, actor.Email); err != nil {
			return err
		}
		if _, err := claimAccounts(ctx, tx, actor.UserID, actor.Email); err != nil {
			return err
		}

		pending, err := tx.Invitations.ListPendingByEmail(ctx, actor.Email)
		if err != nil {
			return err
		}
		now := s.now()
		for _, inv := range pending {
			if inv.Expired(now) {
				if err := expireInvitationTx(ctx, tx, inv); err != nil {
					return err
				}
				continue
			}
			e, err := s.acceptTx(ctx, tx, actor, inv)
			if err != nil {
				return fmt.Errorf("accepting invitation %s: %w", inv.ID, err)
			}
			enrollments = append(enrollments, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(enrollments) > 0 {
		s.logger.Info("pending invitations consumed", "user_id", actor.UserID, "count", len(enrollments))
	}
	return enrollments, nil
}
