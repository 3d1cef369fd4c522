package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDraftOrder_TotalMustMatchLines(t *testing.T) {
	lines := []SnapshotLine{
		{ProductID: "A", Quantity: 2, UnitPrice: 1000, Subtotal: 2000},
		{ProductID: "B", Quantity: 1, UnitPrice: 2500, Subtotal: 2500},
	}
	now := time.Now()

	order, err := NewDraftOrder("o1", "pi_1", "c1", nil, 4500, "usd", lines, now)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, int64(4500), order.TotalAmount)
	assert.Len(t, order.Lines, 2)

	_, err = NewDraftOrder("o2", "pi_2", "c1", nil, 4000, "usd", lines, now)
	assert.ErrorIs(t, err, ErrDraftTotalMismatch)
}

func TestNewDraftOrder_SnapshotIsCopied(t *testing.T) {
	lines := []SnapshotLine{{ProductID: "A", Quantity: 1, UnitPrice: 100, Subtotal: 100}}

	order, err := NewDraftOrder("o1", "pi_1", "c1", nil, 100, "usd", lines, time.Now())
	require.NoError(t, err)

	lines[0].Quantity = 50
	assert.Equal(t, 1, order.Lines[0].Quantity)
}

func TestOrderStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		allowed  bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusFailed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusPending, false},
		{OrderStatusPaid, OrderStatusFailed, false},
		{OrderStatusFailed, OrderStatusPaid, false},
		{OrderStatusCancelled, OrderStatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderStatus_IsValid(t *testing.T) {
	assert.True(t, OrderStatusPaid.IsValid())
	assert.False(t, OrderStatus("shipped").IsValid())
}
