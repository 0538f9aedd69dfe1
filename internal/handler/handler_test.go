package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dangerclosesec/coursehub/internal/auth"
	"github.com/dangerclosesec/coursehub/internal/email/mailer"
	"github.com/dangerclosesec/coursehub/internal/handler"
	"github.com/dangerclosesec/coursehub/internal/payments"
	"github.com/dangerclosesec/coursehub/internal/repository"
	"github.com/dangerclosesec/coursehub/internal/service"
	"github.com/dangerclosesec/coursehub/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const webhookSecret = "whsec_handler_test"

type envOptions struct {
	gateway  payments.Gateway
	notifier mailer.Notifier
}

type testEnv struct {
	t      *testing.T
	store  *repository.Store
	tokens *auth.TokenManager
	router http.Handler
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv wires the full router over an in-memory database.
func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	logger := discardLogger()
	store := repository.NewStore(testutil.NewDB(t))
	tokens := auth.NewTokenManager("handler-test-secret", time.Hour)

	cacheSvc := service.NewCacheService(service.CacheConfig{TTL: time.Minute, CleanupFreq: time.Minute})
	t.Cleanup(cacheSvc.Close)

	catalog := service.NewCatalogService(store.Products, store.Courses, cacheSvc, opts.gateway, logger)
	invitations := service.NewInvitationService(store, service.NewTokenHasher("test-key"), opts.notifier, time.Hour, "https://lms.test", logger)
	purchases := service.NewPurchaseService(service.PurchaseDeps{
		Store:       store,
		Prices:      catalog,
		Invitations: invitations,
		Gateway:     opts.gateway,
		Notifier:    opts.notifier,
		BaseURL:     "https://lms.test",
		Logger:      logger,
	})
	enrollments := service.NewEnrollmentService(store, nil, logger)
	seats := service.NewSeatService(store, logger)

	h := handler.Handlers{
		Webhook:  handler.NewWebhookHandler(payments.NewWebhookVerifier(webhookSecret, 5*time.Minute), purchases, logger),
		Checkout: handler.NewCheckoutHandler(service.NewCheckoutService(store, store.Products, opts.gateway, "https://lms.test/ok", "https://lms.test/cancel", logger), logger),
		Courses:  handler.NewCourseHandler(service.NewCourseService(store, logger), logger),
		Learner:  handler.NewLearnerHandler(enrollments, invitations, service.NewProgressService(store, 70, logger), logger),
		Team:     handler.NewTeamHandler(seats, invitations, enrollments, logger),
		Admin: handler.NewAdminHandler(handler.AdminDeps{
			Purchases: purchases,
			Reconcile: service.NewReconciliationService(store, purchases, opts.gateway, time.Hour, time.Minute, logger),
			Catalog:   catalog,
			Seats:     seats,
			Logs:      store.Logs,
			Logger:    logger,
		}),
	}

	return &testEnv{
		t:      t,
		store:  store,
		tokens: tokens,
		router: handler.NewRouter(h, handler.RouterConfig{Tokens: tokens, Logger: logger}),
	}
}

type user struct {
	ID    uuid.UUID
	Email string
	Token string
}

func (e *testEnv) newUser(email string) user {
	e.t.Helper()
	id := uuid.New()
	token, err := e.tokens.Generate(id.String(), email, auth.RoleAuthenticated)
	require.NoError(e.t, err)
	return user{ID: id, Email: email, Token: token}
}

func (e *testEnv) serviceToken() string {
	e.t.Helper()
	token, err := e.tokens.Generate("service", "", auth.RoleServiceRole)
	require.NoError(e.t, err)
	return token
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postWebhook(payload string) *httptest.ResponseRecorder {
	e.t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// data decodes the data field of a successful response into dst.
func data(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var env struct {
		Ok   bool            `json:"ok"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.True(t, env.Ok, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	assert.False(t, body.Ok)
	return body.Error
}

func completedSessionEvent(eventID, sessionID string, meta map[string]string, email string) string {
	m, _ := json.Marshal(meta)
	return fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {
			"id": %q,
			"object": "checkout.session",
			"status": "complete",
			"payment_status": "paid",
			"payment_intent": "pi_%s",
			"customer_details": {"email": %q},
			"amount_total": 4900,
			"currency": "usd",
			"metadata": %s
		}}
	}`, eventID, sessionID, sessionID, email, m)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	rec := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestWebhook_Rejections(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	t.Run("bad signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
		req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid signature", errorMessage(t, rec))
	})

	t.Run("oversized body", func(t *testing.T) {
		big := bytes.Repeat([]byte("a"), 1<<20+1)
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(big))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		h := handler.NewWebhookHandler(payments.NewWebhookVerifier("", 0), nil, discardLogger())
		rec := httptest.NewRecorder()
		h.HandleStripe(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestWebhook_UnhandledEventIsAcknowledged(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	rec := env.postWebhook(`{"id":"evt_other","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Received bool                    `json:"received"`
		Result   service.ReconcileResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Received)
	assert.Equal(t, service.OutcomeIgnored, body.Result.Outcome)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/checkout"},
		{http.MethodPost, "/api/courses"},
		{http.MethodGet, "/api/me/enrollments"},
		{http.MethodPost, "/api/invitations/accept"},
		{http.MethodGet, "/api/accounts/" + uuid.NewString() + "/seats"},
		{http.MethodGet, "/api/admin/reconciliation-logs"},
	} {
		rec := env.do(tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}
