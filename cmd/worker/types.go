package main

import (
	"context"

	"github.com/imrishuroy/go-footwear-checkout/internal/orders"
	"github.com/imrishuroy/go-footwear-checkout/internal/payment"
)

// OrderReader reads and conditionally updates orders.
type OrderReader interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID string, expected, newStatus orders.PaymentStatus) error
}

// Refunder issues refunds with the payment provider.
type Refunder interface {
	Refund(ctx context.Context, paymentID string, amountMinor int64) (*payment.Refund, error)
}

// ClaimNotes annotates payment claims.
type ClaimNotes interface {
	AddNote(ctx context.Context, key, note string) error
}
