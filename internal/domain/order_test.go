package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_Terminal(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderStatusPending, false},
		{OrderStatusWaiting, false},
		{OrderStatusProcessing, false},
		{OrderStatusSettled, true},
		{OrderStatusExpired, true},
		{OrderStatusRefunded, true},
		{OrderStatusFailed, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.Terminal(), "OrderStatus(%q).Terminal()", tt.status)
	}
}

func TestOrderStatus_IsReachableFrom(t *testing.T) {
	tests := []struct {
		name string
		prev OrderStatus
		next OrderStatus
		want bool
	}{
		{"pending to waiting is valid", OrderStatusPending, OrderStatusWaiting, true},
		{"pending to expired is valid", OrderStatusPending, OrderStatusExpired, true},
		{"pending to settled is invalid", OrderStatusPending, OrderStatusSettled, false},
		{"waiting to processing is valid", OrderStatusWaiting, OrderStatusProcessing, true},
		{"processing to settled is valid", OrderStatusProcessing, OrderStatusSettled, true},
		{"processing to waiting is invalid", OrderStatusProcessing, OrderStatusWaiting, false},
		{"settled to anything is invalid (terminal)", OrderStatusSettled, OrderStatusProcessing, false},
		{"replayed identical status is always reachable", OrderStatusProcessing, OrderStatusProcessing, true},
		{"unknown prev status has no edges", OrderStatus("bogus"), OrderStatusWaiting, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.next.IsReachableFrom(tt.prev))
		})
	}
}
