// Package payment is the boundary to the external payment processor.
package payment

import (
	"context"
	"errors"
)

// ErrInvalidSignature is returned by Verify when the proof was not signed by the provider.
var ErrInvalidSignature = errors.New("payment signature invalid")

// Intent is a provider-side order the client pays against.
type Intent struct {
	ID          string            `json:"intent_id"`
	ClientToken string            `json:"client_token"`
	AmountMinor int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"-"`
}

// Proof is what the checkout widget hands back after a successful payment.
type Proof struct {
	IntentID  string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

// Verification is a proof the provider has vouched for, together with the amount the
// intent was created for.
type Verification struct {
	IntentID    string
	PaymentID   string
	Signature   string
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
}

// Refund describes a refund accepted by the provider.
type Refund struct {
	ID          string `json:"id"`
	PaymentID   string `json:"payment_id"`
	AmountMinor int64  `json:"amount"`
	Status      string `json:"status"`
}

// Gateway is implemented by payment providers.
type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error)
	Verify(ctx context.Context, proof Proof) (*Verification, error)
	Refund(ctx context.Context, paymentID string, amountMinor int64) (*Refund, error)
}
