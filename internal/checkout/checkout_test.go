package checkout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-footwear-checkout/internal/addresses"
	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
	"github.com/imrishuroy/go-footwear-checkout/internal/ledger"
	"github.com/imrishuroy/go-footwear-checkout/internal/orders"
	"github.com/imrishuroy/go-footwear-checkout/internal/payment"
)

type fakeBook map[string]addresses.Address

func (b fakeBook) Get(_ context.Context, userID, addressID string) (*addresses.Address, error) {
	a, ok := b[addressID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if a.UserID != userID {
		return nil, apperr.ErrForbidden
	}
	return &a, nil
}

type fakeCourier struct {
	serviceable map[string]bool
	err         error
}

func (c *fakeCourier) Serviceable(_ context.Context, pincode string) (bool, error) {
	return c.serviceable[pincode], c.err
}

type fakeLedger struct {
	quote     []orders.LineItem
	quoteErr  error
	commitErr []error
	commits   []ledger.CommitRequest
}

func (l *fakeLedger) Quote(context.Context, []ledger.LineRequest) ([]orders.LineItem, error) {
	return l.quote, l.quoteErr
}

func (l *fakeLedger) Commit(_ context.Context, req ledger.CommitRequest) (*ledger.Outcome, error) {
	l.commits = append(l.commits, req)
	if n := len(l.commits); n <= len(l.commitErr) && l.commitErr[n-1] != nil {
		return nil, l.commitErr[n-1]
	}
	return &ledger.Outcome{Order: &orders.Order{OrderID: "o1", Address: req.Address}}, nil
}

type fakeIntents struct {
	amount   int64
	metadata map[string]string
}

func (f *fakeIntents) CreateIntent(_ context.Context, amountMinor int64, currency string, metadata map[string]string) (*payment.Intent, error) {
	f.amount = amountMinor
	f.metadata = metadata
	return &payment.Intent{ID: "order_1", ClientToken: "key", AmountMinor: amountMinor, Currency: currency}, nil
}

type countedMetric struct {
	name string
	dims map[string]string
}

type fakeCounter struct{ metrics []countedMetric }

func (c *fakeCounter) Count(_ context.Context, name string, dims map[string]string) error {
	c.metrics = append(c.metrics, countedMetric{name, dims})
	return nil
}

type fixture struct {
	svc     *Service
	ledger  *fakeLedger
	intents *fakeIntents
	courier *fakeCourier
	metrics *fakeCounter
	sleeps  []time.Duration
}

func newFixture() *fixture {
	f := &fixture{
		ledger: &fakeLedger{quote: []orders.LineItem{
			{ProductID: "p1", Size: 9, Quantity: 2, UnitPriceMinor: 32500},
		}},
		intents: &fakeIntents{},
		courier: &fakeCourier{serviceable: map[string]bool{"452001": true}},
		metrics: &fakeCounter{},
	}
	book := fakeBook{
		"a1": {AddressID: "a1", UserID: "c1", FullName: "Asha", City: "Indore", PostalCode: "452001"},
		"a2": {AddressID: "a2", UserID: "c1", PostalCode: "999999"},
	}
	f.svc = New(book, f.courier, f.ledger, f.intents, f.metrics, Options{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond})
	f.svc.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	return f
}

var cart = []ledger.LineRequest{{ProductID: "p1", Size: 9, Quantity: 2}}

func TestStart_CreatesIntentForServerTotal(t *testing.T) {
	f := newFixture()

	intent, err := f.svc.Start(context.Background(), StartRequest{CustomerID: "c1", AddressID: "a1", Items: cart})
	require.NoError(t, err)
	assert.Equal(t, "order_1", intent.ID)
	assert.Equal(t, int64(65000), f.intents.amount)
	assert.Equal(t, "INR", intent.Currency)
	assert.Equal(t, map[string]string{"customer_id": "c1", "address_id": "a1"}, f.intents.metadata)
}

func TestStart_Failures(t *testing.T) {
	tests := []struct {
		name    string
		req     StartRequest
		setup   func(f *fixture)
		wantErr error
	}{
		{"foreign address", StartRequest{CustomerID: "c2", AddressID: "a1", Items: cart}, nil, apperr.ErrForbidden},
		{"missing address", StartRequest{CustomerID: "c1", AddressID: "zz", Items: cart}, nil, apperr.ErrNotFound},
		{"not serviceable", StartRequest{CustomerID: "c1", AddressID: "a2", Items: cart}, nil, ErrNotServiceable},
		{
			"courier down",
			StartRequest{CustomerID: "c1", AddressID: "a1", Items: cart},
			func(f *fixture) { f.courier.err = apperr.Unavailable("courier", errors.New("timeout")) },
			apperr.ErrUnavailable,
		},
		{
			"quote rejected",
			StartRequest{CustomerID: "c1", AddressID: "a1", Items: cart},
			func(f *fixture) { f.ledger.quoteErr = &ledger.Rejection{Reason: ledger.ReasonInsufficientStock} },
			nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			if tc.setup != nil {
				tc.setup(f)
			}
			_, err := f.svc.Start(context.Background(), tc.req)
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			assert.Zero(t, f.intents.amount, "no intent should be created")
		})
	}
}

func TestComplete_UsesFreshAddressSnapshot(t *testing.T) {
	f := newFixture()

	out, err := f.svc.Complete(context.Background(), CompleteRequest{
		CustomerID: "c1",
		AddressID:  "a1",
		Items:      cart,
		Proof:      payment.Proof{IntentID: "order_1", PaymentID: "pay_1", Signature: "sig"},
	})
	require.NoError(t, err)
	assert.Equal(t, "o1", out.Order.OrderID)
	require.Len(t, f.ledger.commits, 1)
	assert.Equal(t, "Indore", f.ledger.commits[0].Address.City)
	assert.Equal(t, "INR", f.ledger.commits[0].Currency)
	assert.Equal(t, []countedMetric{{MetricCompleted, map[string]string{"Replayed": "false"}}}, f.metrics.metrics)
}

func TestComplete_RetriesStorageFaults(t *testing.T) {
	f := newFixture()
	fault := apperr.Storage("transact write order", errors.New("throttled"))
	f.ledger.commitErr = []error{fault, fault, nil}

	out, err := f.svc.Complete(context.Background(), CompleteRequest{CustomerID: "c1", AddressID: "a1", Items: cart})
	require.NoError(t, err)
	assert.NotNil(t, out.Order)
	assert.Len(t, f.ledger.commits, 3)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, f.sleeps)
}

func TestComplete_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture()
	fault := apperr.Storage("transact write order", errors.New("throttled"))
	f.ledger.commitErr = []error{fault, fault, fault, fault}

	_, err := f.svc.Complete(context.Background(), CompleteRequest{CustomerID: "c1", AddressID: "a1", Items: cart})
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.Len(t, f.ledger.commits, 3)
	require.Len(t, f.metrics.metrics, 1)
	assert.Equal(t, MetricFailed, f.metrics.metrics[0].name)
}

func TestComplete_NeverRetriesRejections(t *testing.T) {
	f := newFixture()
	f.ledger.commitErr = []error{&ledger.Rejection{Reason: ledger.ReasonAmountMismatch, Message: "paid 50000 but order totals 65000"}}

	_, err := f.svc.Complete(context.Background(), CompleteRequest{CustomerID: "c1", AddressID: "a1", Items: cart})
	var rej *ledger.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ledger.ReasonAmountMismatch, rej.Reason)
	assert.Len(t, f.ledger.commits, 1)
	assert.Empty(t, f.sleeps)
	assert.Equal(t, []countedMetric{{MetricRejected, map[string]string{"Reason": "AmountMismatch"}}}, f.metrics.metrics)
}

func TestComplete_StopsWhenContextEnds(t *testing.T) {
	f := newFixture()
	f.ledger.commitErr = []error{apperr.Storage("op", errors.New("boom")), nil}
	f.svc.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	_, err := f.svc.Complete(context.Background(), CompleteRequest{CustomerID: "c1", AddressID: "a1", Items: cart})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.ledger.commits, 1)
}

func TestComplete_AddressNotOwned(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Complete(context.Background(), CompleteRequest{CustomerID: "c9", AddressID: "a1", Items: cart})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Empty(t, f.ledger.commits, fmt.Sprintf("commits: %v", f.ledger.commits))
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}
