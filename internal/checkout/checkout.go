// Package checkout sequences a client checkout: address selection, payment intent, and
// the final commit through the order ledger.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/imrishuroy/go-footwear-checkout/internal/addresses"
	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
	"github.com/imrishuroy/go-footwear-checkout/internal/ledger"
	"github.com/imrishuroy/go-footwear-checkout/internal/orders"
	"github.com/imrishuroy/go-footwear-checkout/internal/payment"
)

// Metric names recorded for every completed checkout attempt.
const (
	MetricCompleted = "CheckoutCompleted"
	MetricRejected  = "CheckoutRejected"
	MetricFailed    = "CheckoutFailed"
)

// ErrNotServiceable marks a delivery address the courier cannot reach.
var ErrNotServiceable = fmt.Errorf("%w: delivery is not available for this pincode", apperr.ErrValidation)

// AddressBook resolves an address owned by the customer.
type AddressBook interface {
	Get(ctx context.Context, userID, addressID string) (*addresses.Address, error)
}

// Courier answers whether a postal code can be delivered to.
type Courier interface {
	Serviceable(ctx context.Context, pincode string) (bool, error)
}

// Ledger prices carts and commits orders.
type Ledger interface {
	Quote(ctx context.Context, lines []ledger.LineRequest) ([]orders.LineItem, error)
	Commit(ctx context.Context, req ledger.CommitRequest) (*ledger.Outcome, error)
}

// IntentCreator opens a payment with the provider.
type IntentCreator interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*payment.Intent, error)
}

// Counter records outcome metrics.
type Counter interface {
	Count(ctx context.Context, name string, dims map[string]string) error
}

// Options tunes the orchestrator.
type Options struct {
	Currency    string
	MaxAttempts int
	BaseDelay   time.Duration
}

// Service is the checkout orchestrator.
type Service struct {
	book    AddressBook
	courier Courier
	ledger  Ledger
	gateway IntentCreator
	metrics Counter

	currency    string
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// New returns a Service. courier and metrics may be nil.
func New(book AddressBook, courier Courier, l Ledger, gw IntentCreator, metrics Counter, opts Options) *Service {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 100 * time.Millisecond
	}
	return &Service{
		book:        book,
		courier:     courier,
		ledger:      l,
		gateway:     gw,
		metrics:     metrics,
		currency:    opts.Currency,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		sleep:       sleepCtx,
	}
}

// StartRequest is the input to Start.
type StartRequest struct {
	CustomerID string
	AddressID  string
	Items      []ledger.LineRequest
}

// Start validates the cart against the catalog, checks that the address can be delivered
// to, and opens a payment intent for the server-computed total. Nothing is persisted, so a
// failure here is safe to retry from scratch.
func (s *Service) Start(ctx context.Context, req StartRequest) (*payment.Intent, error) {
	addr, err := s.book.Get(ctx, req.CustomerID, req.AddressID)
	if err != nil {
		return nil, err
	}
	if err := s.checkServiceable(ctx, addr.PostalCode); err != nil {
		return nil, err
	}

	items, err := s.ledger.Quote(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	total := orders.SumItems(items)

	intent, err := s.gateway.CreateIntent(ctx, total, s.currency, map[string]string{
		"customer_id": req.CustomerID,
		"address_id":  addr.AddressID,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[checkout] intent=%s customer=%s amount=%d", intent.ID, req.CustomerID, total)
	return intent, nil
}

func (s *Service) checkServiceable(ctx context.Context, pincode string) error {
	if s.courier == nil {
		return nil
	}
	ok, err := s.courier.Serviceable(ctx, pincode)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pincode %s: %w", pincode, ErrNotServiceable)
	}
	return nil
}

// CompleteRequest is the input to Complete.
type CompleteRequest struct {
	CustomerID        string
	AddressID         string
	Items             []ledger.LineRequest
	Proof             payment.Proof
	ClaimedTotalMinor int64
}

// Complete commits the paid cart. The address is re-read so the order captures its
// current contents. Transient faults are retried with exponential backoff; rejections
// are returned as they are.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (*ledger.Outcome, error) {
	addr, err := s.book.Get(ctx, req.CustomerID, req.AddressID)
	if err != nil {
		return nil, err
	}
	commit := ledger.CommitRequest{
		CustomerID:        req.CustomerID,
		Address:           Snapshot(addr),
		Items:             req.Items,
		Proof:             req.Proof,
		ClaimedTotalMinor: req.ClaimedTotalMinor,
		Currency:          s.currency,
	}

	var out *ledger.Outcome
	for attempt := 1; ; attempt++ {
		out, err = s.ledger.Commit(ctx, commit)
		if err == nil || !apperr.Retryable(err) || attempt >= s.maxAttempts {
			break
		}
		delay := s.baseDelay << (attempt - 1)
		log.Printf("[checkout] commit attempt %d/%d for payment %s failed, retrying in %s: %v",
			attempt, s.maxAttempts, req.Proof.PaymentID, delay, err)
		if serr := s.sleep(ctx, delay); serr != nil {
			err = apperr.Unavailable("commit order", serr)
			break
		}
	}

	var rej *ledger.Rejection
	switch {
	case err == nil:
		s.count(ctx, MetricCompleted, map[string]string{"Replayed": fmt.Sprint(out.Replayed)})
		return out, nil
	case errors.As(err, &rej):
		s.count(ctx, MetricRejected, map[string]string{"Reason": string(rej.Reason)})
	default:
		log.Printf("[checkout] ERROR commit customer=%s payment=%s: %v", req.CustomerID, req.Proof.PaymentID, err)
		s.count(ctx, MetricFailed, nil)
	}
	return nil, err
}

func (s *Service) count(ctx context.Context, name string, dims map[string]string) {
	if s.metrics == nil {
		return
	}
	if err := s.metrics.Count(ctx, name, dims); err != nil {
		log.Printf("[checkout] metric %s: %v", name, err)
	}
}

// Snapshot copies the address fields an order keeps.
func Snapshot(a *addresses.Address) orders.AddressSnapshot {
	return orders.AddressSnapshot{
		AddressID:  a.AddressID,
		FullName:   a.FullName,
		Phone:      a.Phone,
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
