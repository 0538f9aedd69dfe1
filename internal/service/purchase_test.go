package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dangerclosesec/coursehub/internal/cache"
	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/email/mailer"
	"github.com/dangerclosesec/coursehub/internal/mocks"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/payments"
	"github.com/dangerclosesec/coursehub/internal/repository"
	"github.com/dangerclosesec/coursehub/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type purchaseEnv struct {
	store       *repository.Store
	purchases   *service.PurchaseService
	invitations *service.InvitationService
}

func newPurchaseEnv(t *testing.T, store *repository.Store, gateway payments.Gateway, notifier mailer.Notifier, prices service.PriceResolver) *purchaseEnv {
	t.Helper()
	inv := service.NewInvitationService(store, service.NewTokenHasher("test-key"), notifier, time.Hour, "https://lms.test", discardLogger())
	ps := service.NewPurchaseService(service.PurchaseDeps{
		Store:       store,
		Prices:      prices,
		Invitations: inv,
		Gateway:     gateway,
		Notifier:    notifier,
		BaseURL:     "https://lms.test",
		Logger:      discardLogger(),
	})
	return &purchaseEnv{store: store, purchases: ps, invitations: inv}
}

func personalSession(id string, buyer uuid.UUID, courseID uuid.UUID) *payments.Session {
	return &payments.Session{
		ID:              id,
		PaymentStatus:   "paid",
		PaymentIntentID: "pi_" + id,
		CustomerEmail:   "Buyer@Example.com",
		AmountTotal:     4900,
		Currency:        "usd",
		Metadata: map[string]string{
			payments.MetaUserID:   buyer.String(),
			payments.MetaCourseID: courseID.String(),
		},
	}
}

func TestReconcileSession_PersonalPurchase(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	course, _, _ := seedCourse(t, store, 2)
	env := newPurchaseEnv(t, store, nil, nil, nil)
	buyer := uuid.New()
	sess := personalSession("cs_personal", buyer, course.ID)

	res, err := env.purchases.ReconcileSession(ctx, sess, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeFulfilled, res.Outcome)
	assert.Equal(t, 1, res.Enrolled)
	require.NotNil(t, res.AccountID)
	assert.Equal(t, buyer, *res.AccountID, "personal account id equals the user id")

	p := pool(t, store, buyer, course.ID)
	assert.Equal(t, 1, p.TotalSeats)
	assert.Equal(t, 1, p.UsedSeats)

	e, err := store.Enrollments.Find(ctx, buyer, course.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentActive, e.Status)
	require.NotNil(t, e.PurchaseID)
	assert.Equal(t, *res.PurchaseID, *e.PurchaseID)

	purchase, err := store.Purchases.FindBySessionID(ctx, "cs_personal")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseFulfilled, purchase.Status)
	assert.Equal(t, model.PurchasePersonal, purchase.Type)
	assert.Equal(t, "buyer@example.com", purchase.Email)
	assert.Equal(t, "pi_cs_personal", purchase.StripePaymentIntentID)
	assert.NotNil(t, purchase.FulfilledAt)

	t.Run("replay is a no-op", func(t *testing.T) {
		again, err := env.purchases.ReconcileSession(ctx, sess, "evt_2")
		require.NoError(t, err)
		assert.Equal(t, service.OutcomeAlreadyFulfilled, again.Outcome)

		p := pool(t, store, buyer, course.ID)
		assert.Equal(t, 1, p.TotalSeats)
		assert.Equal(t, 1, p.UsedSeats)
	})
}

func TestHandleEvent_DuplicateEventIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)
	env := newPurchaseEnv(t, store, nil, nil, nil)
	buyer := uuid.New()

	evt := &payments.Event{
		ID:      "evt_dup",
		Type:    payments.EventCheckoutCompleted,
		Raw:     []byte(`{"id":"evt_dup"}`),
		Session: personalSession("cs_dup", buyer, course.ID),
	}

	first, err := env.purchases.HandleEvent(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeFulfilled, first.Outcome)

	second, err := env.purchases.HandleEvent(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeDuplicate, second.Outcome)

	logs, _, err := store.Logs.Query(ctx, repository.QueryParams{SessionID: "cs_dup", Action: model.ActionEventDuplicate})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestHandleEvent_IgnoresUnknownTypes(t *testing.T) {
	store := newStore(t)
	env := newPurchaseEnv(t, store, nil, nil, nil)

	res, err := env.purchases.HandleEvent(context.Background(), &payments.Event{ID: "evt_x", Type: "customer.created"})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeIgnored, res.Outcome)
}

func TestReconcileSession_TeamPurchaseFromLineItems(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)

	products := mocks.NewMockCourseProductRepositoryIface(ctrl)
	products.EXPECT().
		FindByPriceID(gomock.Any(), "price_team").
		Return(&model.CourseProduct{StripePriceID: "price_team", CourseID: course.ID, Active: true}, nil).
		Times(1)
	catalog := service.NewCatalogService(products, store.Courses, newCache(t), nil, discardLogger())

	env := newPurchaseEnv(t, store, nil, nil, catalog)
	buyer := uuid.New()
	sess := &payments.Session{
		ID:              "cs_team",
		PaymentStatus:   "paid",
		CustomerEmail:   "lead@example.com",
		LineItemsLoaded: true,
		LineItems:       []payments.LineItem{{PriceID: "price_team", Quantity: 5}},
		Metadata: map[string]string{
			payments.MetaUserID:   buyer.String(),
			payments.MetaTeamName: "Acme Corp",
		},
	}

	res, err := env.purchases.ReconcileSession(ctx, sess, "")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeFulfilled, res.Outcome)
	assert.Equal(t, 0, res.Enrolled, "team purchasers are not enrolled unless asked")

	team, err := store.Accounts.FindByID(ctx, *res.AccountID)
	require.NoError(t, err)
	assert.False(t, team.IsPersonalAccount)
	assert.Equal(t, "Acme Corp", team.Name)
	assert.Equal(t, buyer, team.PrimaryOwnerUserID)

	m, err := store.Accounts.FindMembership(ctx, team.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, m.Role)

	p := pool(t, store, team.ID, course.ID)
	assert.Equal(t, 5, p.TotalSeats)
	assert.Equal(t, 0, p.UsedSeats)

	_, err = store.Accounts.FindPersonalByUser(ctx, buyer)
	assert.NoError(t, err, "the purchaser still gets a personal account")

	_, err = store.Enrollments.Find(ctx, buyer, course.ID)
	assert.ErrorIs(t, err, domain.ErrEnrollmentNotFound)
}

func TestHandleEvent_ConcurrentDeliveriesGrantSeatsOnce(t *testing.T) {
	for _, tc := range []struct {
		name   string
		shared bool
	}{
		{"shared locker", true},
		{"independent lockers", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			course, _, _ := seedCourse(t, store, 1)
			catalog := service.NewCatalogService(store.Products, store.Courses, newCache(t), nil, discardLogger())
			_, err := catalog.Upsert(ctx, service.UpsertProductInput{PriceID: "price_team", CourseID: course.ID, Active: true})
			require.NoError(t, err)

			invitations := service.NewInvitationService(store, service.NewTokenHasher("test-key"), nil, time.Hour, "https://lms.test", discardLogger())
			shared := cache.NewMutexLocker()
			newReplica := func() *service.PurchaseService {
				deps := service.PurchaseDeps{
					Store:       store,
					Prices:      catalog,
					Invitations: invitations,
					BaseURL:     "https://lms.test",
					Logger:      discardLogger(),
				}
				if tc.shared {
					deps.Locker = shared
				}
				return service.NewPurchaseService(deps)
			}
			replicas := []*service.PurchaseService{newReplica(), newReplica()}

			buyer := uuid.New()
			session := func() *payments.Session {
				return &payments.Session{
					ID:              "cs_race",
					PaymentStatus:   "paid",
					CustomerEmail:   "lead@example.com",
					LineItemsLoaded: true,
					LineItems:       []payments.LineItem{{PriceID: "price_team", Quantity: 5}},
					Metadata: map[string]string{
						payments.MetaUserID:   buyer.String(),
						payments.MetaTeamName: "Race Co",
					},
				}
			}

			const deliveries = 6
			results := make([]*service.ReconcileResult, deliveries)
			errs := make([]error, deliveries)
			var wg sync.WaitGroup
			for i := 0; i < deliveries; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = replicas[i%len(replicas)].HandleEvent(ctx, &payments.Event{
						ID:      fmt.Sprintf("evt_race_%d", i),
						Type:    payments.EventCheckoutCompleted,
						Session: session(),
					})
				}(i)
			}
			wg.Wait()

			fulfilled := 0
			var accountID uuid.UUID
			for i := range results {
				require.NoError(t, errs[i])
				switch results[i].Outcome {
				case service.OutcomeFulfilled:
					fulfilled++
					require.NotNil(t, results[i].AccountID)
					accountID = *results[i].AccountID
				default:
					assert.Equal(t, service.OutcomeAlreadyFulfilled, results[i].Outcome)
				}
			}
			require.Equal(t, 1, fulfilled)

			purchase, err := store.Purchases.FindBySessionID(ctx, "cs_race")
			require.NoError(t, err)
			assert.Equal(t, model.PurchaseFulfilled, purchase.Status)

			grants, err := store.Purchases.GrantsForPurchase(ctx, purchase.ID)
			require.NoError(t, err)
			require.Len(t, grants, 1)
			assert.Equal(t, 5, grants[0].Quantity)

			assert.Equal(t, 5, pool(t, store, accountID, course.ID).TotalSeats)
		})
	}
}

func TestReconcileSession_TopUpOnlyForOwnedTeams(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)
	env := newPurchaseEnv(t, store, nil, nil, nil)

	buyer := userActor(t, store, "buyer@example.com")
	owned := teamWithSeats(t, store, buyer, course.ID, 1)
	stranger := userActor(t, store, "stranger@example.com")
	foreign := teamWithSeats(t, store, stranger, course.ID, 1)

	topUp := func(id string, accountID uuid.UUID) *service.ReconcileResult {
		res, err := env.purchases.ReconcileSession(ctx, &payments.Session{
			ID:            id,
			PaymentStatus: "paid",
			CustomerEmail: buyer.Email,
			Metadata: map[string]string{
				payments.MetaUserID:    buyer.UserID.String(),
				payments.MetaCourseID:  course.ID.String(),
				payments.MetaSeats:     "3",
				payments.MetaAccountID: accountID.String(),
			},
		}, "")
		require.NoError(t, err)
		require.Equal(t, service.OutcomeFulfilled, res.Outcome)
		return res
	}

	res := topUp("cs_owned", owned.ID)
	assert.Equal(t, owned.ID, *res.AccountID)
	assert.Equal(t, 4, pool(t, store, owned.ID, course.ID).TotalSeats)

	res = topUp("cs_foreign", foreign.ID)
	assert.Equal(t, owned.ID, *res.AccountID, "falls back to the purchaser's own team")
	assert.Equal(t, 1, pool(t, store, foreign.ID, course.ID).TotalSeats)
	assert.Equal(t, 7, pool(t, store, owned.ID, course.ID).TotalSeats)
}

func TestReconcileSession_GuestCheckoutIsClaimedOnSignIn(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)

	notifier := mocks.NewMockNotifier(ctrl)
	notifier.EXPECT().
		SendCourseInvitation(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d mailer.CourseInvitationData) error {
			assert.Equal(t, "guest@example.com", d.Email)
			assert.Equal(t, course.Title, d.CourseTitle)
			assert.Contains(t, d.AcceptURL, "https://lms.test/invitations/accept?token=")
			return nil
		})
	notifier.EXPECT().
		SendPurchaseReceipt(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d mailer.PurchaseReceiptData) error {
			assert.Equal(t, "cs_guest", d.SessionID)
			assert.False(t, d.Team)
			require.Len(t, d.Items, 1)
			assert.Equal(t, 1, d.Items[0].Seats)
			return nil
		})

	env := newPurchaseEnv(t, store, nil, notifier, nil)
	res, err := env.purchases.ReconcileSession(ctx, &payments.Session{
		ID:            "cs_guest",
		PaymentStatus: "paid",
		CustomerEmail: "Guest@Example.com",
		Metadata:      map[string]string{payments.MetaCourseID: course.ID.String()},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeFulfilled, res.Outcome)
	assert.Equal(t, 1, res.Invited)
	assert.Equal(t, 0, res.Enrolled)

	holding, err := store.Accounts.FindByID(ctx, *res.AccountID)
	require.NoError(t, err)
	assert.True(t, holding.Unclaimed())
	assert.Equal(t, "guest@example.com", holding.Email)
	assert.Equal(t, 1, pool(t, store, holding.ID, course.ID).UsedSeats, "the invitation holds the seat")

	user := service.Actor{UserID: uuid.New(), Email: "guest@example.com"}
	enrollments, err := env.invitations.ConsumePendingInvitations(ctx, user)
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, holding.ID, enrollments[0].AccountID)
	assert.Equal(t, course.ID, enrollments[0].CourseID)

	claimed, err := store.Accounts.FindByID(ctx, holding.ID)
	require.NoError(t, err)
	assert.Equal(t, user.UserID, claimed.PrimaryOwnerUserID)
	assert.Equal(t, 1, pool(t, store, holding.ID, course.ID).UsedSeats, "accepting reuses the reserved seat")
}

func TestReconcileSession_UnknownPriceFailsPurchase(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := newStore(t)
	products := mocks.NewMockCourseProductRepositoryIface(ctrl)
	products.EXPECT().FindByPriceID(gomock.Any(), "price_bogus").Return(nil, domain.ErrUnknownPrice)
	catalog := service.NewCatalogService(products, store.Courses, newCache(t), nil, discardLogger())
	env := newPurchaseEnv(t, store, nil, nil, catalog)

	sess := &payments.Session{
		ID:              "cs_bogus",
		PaymentStatus:   "paid",
		CustomerEmail:   "x@example.com",
		LineItemsLoaded: true,
		LineItems:       []payments.LineItem{{PriceID: "price_bogus", Quantity: 1}},
	}
	res, err := env.purchases.ReconcileSession(ctx, sess, "")
	require.NoError(t, err, "a purchase that can never be fulfilled is not retried")
	assert.Equal(t, service.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, domain.ErrUnknownPrice.Error())

	purchase, err := store.Purchases.FindBySessionID(ctx, "cs_bogus")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseFailed, purchase.Status)
	assert.NotEmpty(t, purchase.FailureReason)
}

func TestReplay_RetriesPurchaseFailedOnMissingPrice(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)
	catalog := service.NewCatalogService(store.Products, store.Courses, newCache(t), nil, discardLogger())
	gateway := mocks.NewMockGateway(ctrl)
	env := newPurchaseEnv(t, store, gateway, nil, catalog)

	buyer := uuid.New()
	sess := &payments.Session{
		ID:              "cs_late_price",
		PaymentStatus:   "paid",
		CustomerEmail:   "late@example.com",
		LineItemsLoaded: true,
		LineItems:       []payments.LineItem{{PriceID: "price_late", Quantity: 1}},
		Metadata:        map[string]string{payments.MetaUserID: buyer.String()},
	}

	res, err := env.purchases.ReconcileSession(ctx, sess, "evt_late")
	require.NoError(t, err)
	require.Equal(t, service.OutcomeFailed, res.Outcome)

	t.Run("webhook redelivery leaves it failed", func(t *testing.T) {
		again, err := env.purchases.ReconcileSession(ctx, sess, "evt_late_2")
		require.NoError(t, err)
		assert.Equal(t, service.OutcomeIgnored, again.Outcome)
	})

	_, err = catalog.Upsert(ctx, service.UpsertProductInput{PriceID: "price_late", CourseID: course.ID, Active: true})
	require.NoError(t, err)

	gateway.EXPECT().GetSession(gomock.Any(), "cs_late_price").Return(sess, nil).Times(2)

	res, err = env.purchases.Replay(ctx, "cs_late_price")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeFulfilled, res.Outcome)
	assert.Equal(t, 1, res.Enrolled)

	purchase, err := store.Purchases.FindBySessionID(ctx, "cs_late_price")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseFulfilled, purchase.Status)
	assert.Empty(t, purchase.FailureReason)

	e, err := store.Enrollments.Find(ctx, buyer, course.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentActive, e.Status)

	res, err = env.purchases.Replay(ctx, "cs_late_price")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeAlreadyFulfilled, res.Outcome)
	assert.Equal(t, 1, pool(t, store, buyer, course.ID).TotalSeats)
}

func TestReplay_DoesNotReopenUnpaidFailure(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)
	gateway := mocks.NewMockGateway(ctrl)
	env := newPurchaseEnv(t, store, gateway, nil, nil)

	sess := personalSession("cs_async_failed", uuid.New(), course.ID)
	sess.PaymentStatus = payments.PaymentStatusUnpaid
	sess.LineItemsLoaded = true
	_, err := env.purchases.HandleEvent(ctx, &payments.Event{
		ID:      "evt_async_failed",
		Type:    payments.EventCheckoutAsyncFailed,
		Raw:     []byte(`{"id":"evt_async_failed"}`),
		Session: sess,
	})
	require.NoError(t, err)

	gateway.EXPECT().GetSession(gomock.Any(), "cs_async_failed").Return(sess, nil)
	res, err := env.purchases.Replay(ctx, "cs_async_failed")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeIgnored, res.Outcome)

	purchase, err := store.Purchases.FindBySessionID(ctx, "cs_async_failed")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseFailed, purchase.Status)
}

func TestReconcileSession_AwaitingPaymentThenPaid(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)
	env := newPurchaseEnv(t, store, nil, nil, nil)
	buyer := uuid.New()

	sess := personalSession("cs_async", buyer, course.ID)
	sess.PaymentStatus = payments.PaymentStatusUnpaid

	res, err := env.purchases.ReconcileSession(ctx, sess, "")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeAwaitingPayment, res.Outcome)

	purchase, err := store.Purchases.FindBySessionID(ctx, "cs_async")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseAwaitingPayment, purchase.Status)
	_, err = store.Seats.FindPool(ctx, buyer, course.ID)
	assert.ErrorIs(t, err, domain.ErrSeatPoolNotFound)

	sess.PaymentStatus = "paid"
	res, err = env.purchases.HandleEvent(ctx, &payments.Event{
		ID:      "evt_async_ok",
		Type:    payments.EventCheckoutAsyncSucceeded,
		Session: sess,
	})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeFulfilled, res.Outcome)
}

func TestHandleEvent_AsyncFailureAndExpiry(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)
	env := newPurchaseEnv(t, store, nil, nil, nil)
	buyer := uuid.New()

	res, err := env.purchases.HandleEvent(ctx, &payments.Event{
		ID:      "evt_failed",
		Type:    payments.EventCheckoutAsyncFailed,
		Session: &payments.Session{ID: "cs_failed"},
	})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeFailed, res.Outcome)

	res, err = env.purchases.HandleEvent(ctx, &payments.Event{
		ID:      "evt_expired",
		Type:    payments.EventCheckoutExpired,
		Session: &payments.Session{ID: "cs_expired"},
	})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeExpired, res.Outcome)

	late, err := env.purchases.ReconcileSession(ctx, personalSession("cs_expired", buyer, course.ID), "")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeIgnored, late.Outcome, "an expired session is never fulfilled")

	purchase, err := store.Purchases.FindBySessionID(ctx, "cs_expired")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseExpired, purchase.Status)
}

func TestRefund_RevokesFulfilledPurchase(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)
	env := newPurchaseEnv(t, store, nil, nil, nil)
	buyer := uuid.New()
	sess := personalSession("cs_refund", buyer, course.ID)

	_, err := env.purchases.ReconcileSession(ctx, sess, "")
	require.NoError(t, err)

	t.Run("partial refunds keep access", func(t *testing.T) {
		res, err := env.purchases.HandleEvent(ctx, &payments.Event{
			ID:              "evt_partial",
			Type:            payments.EventChargeRefunded,
			PaymentIntentID: sess.PaymentIntentID,
		})
		require.NoError(t, err)
		assert.Equal(t, service.OutcomeIgnored, res.Outcome)

		e, err := store.Enrollments.Find(ctx, buyer, course.ID)
		require.NoError(t, err)
		assert.Equal(t, model.EnrollmentActive, e.Status)
	})

	res, err := env.purchases.HandleEvent(ctx, &payments.Event{
		ID:              "evt_refund",
		Type:            payments.EventChargeRefunded,
		PaymentIntentID: sess.PaymentIntentID,
		FullyRefunded:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeRefunded, res.Outcome)

	e, err := store.Enrollments.Find(ctx, buyer, course.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentRevoked, e.Status)

	p := pool(t, store, buyer, course.ID)
	assert.Equal(t, 0, p.TotalSeats)
	assert.Equal(t, 0, p.UsedSeats)

	grants, err := store.Purchases.GrantsForPurchase(ctx, *res.PurchaseID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.True(t, grants[0].Revoked)

	late, err := env.purchases.ReconcileSession(ctx, sess, "")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeIgnored, late.Outcome)
}

func TestRefund_TeamPoolNeverDropsBelowUsedSeats(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)
	env := newPurchaseEnv(t, store, nil, nil, nil)
	enrollments := service.NewEnrollmentService(store, nil, discardLogger())

	buyer := userActor(t, store, "lead@example.com")
	res, err := env.purchases.ReconcileSession(ctx, &payments.Session{
		ID:              "cs_team_refund",
		PaymentStatus:   "paid",
		PaymentIntentID: "pi_team_refund",
		CustomerEmail:   buyer.Email,
		Metadata: map[string]string{
			payments.MetaUserID:   buyer.UserID.String(),
			payments.MetaCourseID: course.ID.String(),
			payments.MetaSeats:    "3",
		},
	}, "")
	require.NoError(t, err)
	team := *res.AccountID

	member := uuid.New()
	_, err = enrollments.Enroll(ctx, buyer, service.EnrollInput{UserID: member, CourseID: course.ID, AccountID: team})
	require.NoError(t, err)

	_, err = env.purchases.RefundByPaymentIntent(ctx, "pi_team_refund", "")
	require.NoError(t, err)

	p := pool(t, store, team, course.ID)
	assert.Equal(t, 1, p.UsedSeats)
	assert.Equal(t, 1, p.TotalSeats, "seats in use are not taken away")
}

func TestRefund_BeforeCompletionWins(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)
	buyer := uuid.New()
	sess := personalSession("cs_early", buyer, course.ID)
	sess.LineItemsLoaded = true

	gateway := mocks.NewMockGateway(ctrl)
	gateway.EXPECT().FindSessionByPaymentIntent(gomock.Any(), "pi_cs_early").Return(sess, nil)
	env := newPurchaseEnv(t, store, gateway, nil, nil)

	res, err := env.purchases.RefundByPaymentIntent(ctx, "pi_cs_early", "evt_r")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeRefunded, res.Outcome)

	late, err := env.purchases.ReconcileSession(ctx, sess, "evt_c")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeIgnored, late.Outcome)

	_, err = store.Enrollments.Find(ctx, buyer, course.ID)
	assert.ErrorIs(t, err, domain.ErrEnrollmentNotFound)
}

func TestRefund_UnknownPaymentIntentWithoutGateway(t *testing.T) {
	store := newStore(t)
	env := newPurchaseEnv(t, store, nil, nil, nil)

	res, err := env.purchases.RefundByPaymentIntent(context.Background(), "pi_nobody", "")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeIgnored, res.Outcome)
}

func TestReplayAndInspect(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)
	buyer := uuid.New()
	sess := personalSession("cs_replay", buyer, course.ID)
	sess.LineItemsLoaded = true

	gateway := mocks.NewMockGateway(ctrl)
	gateway.EXPECT().GetSession(gomock.Any(), "cs_replay").Return(sess, nil)
	env := newPurchaseEnv(t, store, gateway, nil, nil)

	res, err := env.purchases.Replay(ctx, "cs_replay")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeFulfilled, res.Outcome)

	inspection, err := env.purchases.Inspect(ctx, "cs_replay")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseFulfilled, inspection.Purchase.Status)
	assert.Len(t, inspection.Grants, 1)

	actions := make([]string, 0, len(inspection.Logs))
	for _, l := range inspection.Logs {
		actions = append(actions, l.Action)
	}
	assert.Contains(t, actions, model.ActionSeatsGranted)
	assert.Contains(t, actions, model.ActionEnrolled)
	assert.Contains(t, actions, model.ActionFulfilled)

	_, err = newPurchaseEnv(t, store, nil, nil, nil).purchases.Replay(ctx, "cs_replay")
	assert.ErrorIs(t, err, domain.ErrPaymentsDisabled)

	_, err = env.purchases.Inspect(ctx, "cs_missing")
	assert.ErrorIs(t, err, domain.ErrPurchaseNotFound)
}

func TestDecideAccount(t *testing.T) {
	teamID := uuid.New()

	tests := []struct {
		name   string
		input  service.AccountDecisionInput
		expect service.AccountDecision
	}{
		{
			name:   "single seat is personal",
			input:  service.AccountDecisionInput{TotalQuantity: 1, PurchaserEmail: "a@example.com"},
			expect: service.AccountDecision{Type: model.PurchasePersonal, EnrollPurchaser: true},
		},
		{
			name:   "several seats make a team",
			input:  service.AccountDecisionInput{TotalQuantity: 3, PurchaserEmail: "A@Example.com"},
			expect: service.AccountDecision{Type: model.PurchaseTeam, TeamName: "a@example.com Team"},
		},
		{
			name: "purchase_type team with name and enrollment",
			input: service.AccountDecisionInput{
				TotalQuantity: 1,
				Metadata: map[string]string{
					payments.MetaPurchaseType:    "team",
					payments.MetaTeamName:        "Acme",
					payments.MetaEnrollPurchaser: "true",
				},
			},
			expect: service.AccountDecision{Type: model.PurchaseTeam, TeamName: "Acme", EnrollPurchaser: true},
		},
		{
			name: "explicit account",
			input: service.AccountDecisionInput{
				TotalQuantity:  1,
				PurchaserEmail: "a@example.com",
				Metadata:       map[string]string{payments.MetaAccountID: teamID.String()},
			},
			expect: service.AccountDecision{Type: model.PurchaseTeam, ExplicitAccountID: &teamID, TeamName: "a@example.com Team"},
		},
		{
			name: "unparseable account id is ignored",
			input: service.AccountDecisionInput{
				TotalQuantity: 1,
				Metadata:      map[string]string{payments.MetaAccountID: "acct_123"},
			},
			expect: service.AccountDecision{Type: model.PurchasePersonal, EnrollPurchaser: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, service.DecideAccount(tt.input))
		})
	}
}
