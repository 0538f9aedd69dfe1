package model

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestPurchaseStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to PurchaseStatus
		want     bool
	}{
		{PurchasePending, PurchaseFulfilled, true},
		{PurchasePending, PurchaseAwaitingPayment, true},
		{PurchaseAwaitingPayment, PurchaseFulfilled, true},
		{PurchaseAwaitingPayment, PurchasePending, false},
		{PurchaseFulfilled, PurchaseRefunded, true},
		{PurchaseFulfilled, PurchaseFailed, false},
		{PurchaseRefunded, PurchaseFulfilled, false},
		{PurchaseExpired, PurchaseFulfilled, false},
		{PurchasePending, PurchasePending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.False(t, PurchasePending.Terminal())
	assert.False(t, PurchaseAwaitingPayment.Terminal())
	assert.True(t, PurchaseRefunded.Terminal())
}

func TestCourseSeatAvailable(t *testing.T) {
	assert.Equal(t, 3, CourseSeat{TotalSeats: 5, UsedSeats: 2}.Available())
	assert.Equal(t, 0, CourseSeat{TotalSeats: 2, UsedSeats: 2}.Available())
	assert.Equal(t, 0, CourseSeat{TotalSeats: 1, UsedSeats: 4}.Available())
}

func TestReconciliationLogSchema(t *testing.T) {
	s, err := schema.Parse(&ReconciliationLog{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	field := s.LookUpField("Detail")
	require.NotNil(t, field)
	assert.NotEmpty(t, field.DataType)
}

func TestModelsParse(t *testing.T) {
	cache := &sync.Map{}
	for _, m := range All() {
		_, err := schema.Parse(m, cache, schema.NamingStrategy{})
		assert.NoError(t, err, "%T", m)
	}
}

func TestInvitationExpired(t *testing.T) {
	now := time.Now()
	inv := CourseInvitation{ExpiresAt: now.Add(-time.Minute)}
	assert.True(t, inv.Expired(now))
	inv.ExpiresAt = now.Add(time.Hour)
	assert.False(t, inv.Expired(now))
}
