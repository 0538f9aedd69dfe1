package payments

import (
	"testing"
	"time"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testSecret = "whsec_test"

func sign(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header, signed.Payload
}

func TestParseEvent_CheckoutSession(t *testing.T) {
	v := NewWebhookVerifier(testSecret, 5*time.Minute)
	header, body := sign(t, `{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {
			"id": "cs_1",
			"object": "checkout.session",
			"status": "complete",
			"payment_status": "paid",
			"payment_intent": "pi_1",
			"customer": "cus_1",
			"customer_details": {"email": "buyer@example.com"},
			"client_reference_id": "u1",
			"amount_total": 4900,
			"currency": "usd",
			"metadata": {"course_id": "c1", "seats": "3"}
		}}
	}`)

	evt, err := v.ParseEvent(body, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, EventCheckoutCompleted, evt.Type)
	require.NotNil(t, evt.Session)
	assert.Equal(t, "cs_1", evt.Session.ID)
	assert.Equal(t, "paid", evt.Session.PaymentStatus)
	assert.Equal(t, SessionComplete, evt.Session.Status)
	assert.Equal(t, "pi_1", evt.Session.PaymentIntentID)
	assert.Equal(t, "cus_1", evt.Session.CustomerID)
	assert.Equal(t, "buyer@example.com", evt.Session.CustomerEmail)
	assert.Equal(t, "3", evt.Session.Meta(MetaSeats))
	assert.False(t, evt.Session.LineItemsLoaded)
}

func TestParseEvent_Charge(t *testing.T) {
	v := NewWebhookVerifier(testSecret, 5*time.Minute)
	header, body := sign(t, `{
		"id": "evt_2",
		"object": "event",
		"type": "charge.refunded",
		"data": {"object": {"id": "ch_1", "object": "charge", "payment_intent": "pi_9", "refunded": true}}
	}`)

	evt, err := v.ParseEvent(body, header)
	require.NoError(t, err)
	assert.Equal(t, "pi_9", evt.PaymentIntentID)
	assert.True(t, evt.FullyRefunded)
	assert.Nil(t, evt.Session)
}

func TestParseEvent_Rejections(t *testing.T) {
	v := NewWebhookVerifier(testSecret, 5*time.Minute)
	_, body := sign(t, `{"id": "evt_3", "type": "checkout.session.completed"}`)

	_, err := v.ParseEvent(body, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	disabled := NewWebhookVerifier("", time.Minute)
	_, err = disabled.ParseEvent(body, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, domain.ErrPaymentsDisabled)
}

func TestSessionMetaTrimsAndHandlesNil(t *testing.T) {
	s := &Session{}
	assert.Empty(t, s.Meta(MetaUserID))
	s.Metadata = map[string]string{MetaTeamName: "  Acme  "}
	assert.Equal(t, "Acme", s.Meta(MetaTeamName))
}
