package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
	"github.com/imrishuroy/go-footwear-checkout/internal/aws"
	"github.com/imrishuroy/go-footwear-checkout/internal/catalog"
	"github.com/imrishuroy/go-footwear-checkout/internal/dynamotest"
	"github.com/imrishuroy/go-footwear-checkout/internal/idempotency"
	"github.com/imrishuroy/go-footwear-checkout/internal/orders"
	"github.com/imrishuroy/go-footwear-checkout/internal/payment"
)

const testSecret = "gateway-secret"

type fakeIntent struct {
	amount   int64
	customer string
}

// fakeGateway verifies proofs with the same signature scheme as the provider.
type fakeGateway struct {
	mu      sync.Mutex
	intents map[string]fakeIntent
	err     error
}

func (g *fakeGateway) CreateIntent(_ context.Context, amountMinor int64, currency string, metadata map[string]string) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("order_%d", len(g.intents)+1)
	g.intents[id] = fakeIntent{amount: amountMinor, customer: metadata["customer_id"]}
	return &payment.Intent{ID: id, ClientToken: "key", AmountMinor: amountMinor, Currency: currency}, nil
}

func (g *fakeGateway) Verify(_ context.Context, proof payment.Proof) (*payment.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	if proof.Signature != payment.Sign(testSecret, proof.IntentID, proof.PaymentID) {
		return nil, payment.ErrInvalidSignature
	}
	in, ok := g.intents[proof.IntentID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &payment.Verification{
		IntentID:    proof.IntentID,
		PaymentID:   proof.PaymentID,
		Signature:   proof.Signature,
		AmountMinor: in.amount,
		Currency:    "INR",
		Metadata:    map[string]string{"customer_id": in.customer},
	}, nil
}

func (g *fakeGateway) Refund(context.Context, string, int64) (*payment.Refund, error) {
	return &payment.Refund{}, nil
}

type recordedEvents struct {
	mu     sync.Mutex
	events []aws.OrderEvent
}

func (r *recordedEvents) PublishOrderEvent(_ context.Context, ev aws.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	ledger  *Ledger
	catalog *catalog.Store
	orders  *orders.Store
	gateway *fakeGateway
	events  *recordedEvents
	fake    *dynamotest.Fake
}

func newHarness(t *testing.T, products ...catalog.Product) *harness {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable("products", "product_id")
	fake.CreateTable("orders", "order_id")
	fake.CreateTable("payment-claims", "idempotency_key")
	for _, p := range products {
		item, err := attributevalue.MarshalMap(p)
		if err != nil {
			t.Fatalf("marshal product: %v", err)
		}
		fake.Seed("products", item)
	}
	h := &harness{
		catalog: catalog.NewStore(fake, "products"),
		orders:  orders.NewStore(fake, "orders"),
		gateway: &fakeGateway{intents: map[string]fakeIntent{}},
		events:  &recordedEvents{},
		fake:    fake,
	}
	claims := idempotency.NewStore(fake, "payment-claims", 0)
	h.ledger = New(h.catalog, h.orders, claims, h.gateway, h.events)
	return h
}

func product(t *testing.T, id string, price int64, sizes, quantities []int) catalog.Product {
	t.Helper()
	p, err := catalog.NewProduct("Shoe "+id, catalog.CategoryCasual, price, 0, sizes, quantities)
	if err != nil {
		t.Fatalf("new product: %v", err)
	}
	p.ProductID = id
	return p
}

// pay creates an intent for amount and returns a provider-signed proof for paymentID.
func (h *harness) pay(t *testing.T, customer string, amount int64, paymentID string) payment.Proof {
	t.Helper()
	intent, err := h.gateway.CreateIntent(context.Background(), amount, "INR", map[string]string{"customer_id": customer})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	return payment.Proof{
		IntentID:  intent.ID,
		PaymentID: paymentID,
		Signature: payment.Sign(testSecret, intent.ID, paymentID),
	}
}

func (h *harness) quantity(t *testing.T, productID string, size int) int {
	t.Helper()
	p, err := h.catalog.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return p.Quantity(size)
}

func wantRejection(t *testing.T, err error, reason Reason) *Rejection {
	t.Helper()
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected rejection %s, got %v", reason, err)
	}
	if rej.Reason != reason {
		t.Fatalf("expected rejection %s, got %s", reason, rej.Reason)
	}
	return rej
}

func TestCommit_ReservesAndPersists(t *testing.T) {
	h := newHarness(t, product(t, "p9", 32500, []int{9}, []int{5}))
	ctx := context.Background()

	out, err := h.ledger.Commit(ctx, CommitRequest{
		CustomerID: "c1",
		Address:    orders.AddressSnapshot{AddressID: "a1", PostalCode: "452001"},
		Items:      []LineRequest{{ProductID: "p9", Size: 9, Quantity: 2}},
		Proof:      h.pay(t, "c1", 65000, "pay_1"),
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if out.Replayed {
		t.Fatalf("first commit reported as replay")
	}
	o := out.Order
	if o.Status != orders.StatusCreated || o.PaymentStatus != orders.PaymentCompleted {
		t.Fatalf("unexpected statuses %s/%s", o.Status, o.PaymentStatus)
	}
	if o.TotalAmountMinor != 65000 || o.Items[0].UnitPriceMinor != 32500 || o.Currency != "INR" {
		t.Fatalf("unexpected pricing %+v", o)
	}
	if got := h.quantity(t, "p9", 9); got != 3 {
		t.Fatalf("expected 3 left, got %d", got)
	}
	stored, err := h.orders.Get(ctx, o.OrderID)
	if err != nil || stored.Payment.PaymentID != "pay_1" || stored.Address.PostalCode != "452001" {
		t.Fatalf("order not persisted as committed: %+v %v", stored, err)
	}
	if ev := h.events.types(); len(ev) != 1 || ev[0] != aws.EventOrderCreated {
		t.Fatalf("expected one order.created event, got %v", ev)
	}
}

func TestCommit_AmountMismatch(t *testing.T) {
	tests := []struct {
		name    string
		paid    int64
		claimed int64
	}{
		{"client claims less", 65000, 50000},
		{"payment for less", 50000, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, product(t, "p1", 65000, []int{8}, []int{4}))

			_, err := h.ledger.Commit(context.Background(), CommitRequest{
				CustomerID:        "c1",
				Items:             []LineRequest{{ProductID: "p1", Size: 8, Quantity: 1}},
				Proof:             h.pay(t, "c1", tc.paid, "pay_x"),
				ClaimedTotalMinor: tc.claimed,
			})
			wantRejection(t, err, ReasonAmountMismatch)
			if h.fake.Len("orders") != 0 {
				t.Fatalf("order created despite mismatch")
			}
			if got := h.quantity(t, "p1", 8); got != 4 {
				t.Fatalf("stock touched: %d", got)
			}
		})
	}
}

func TestCommit_IdempotentOnPaymentID(t *testing.T) {
	h := newHarness(t, product(t, "p1", 1000, []int{7}, []int{10}))
	ctx := context.Background()
	req := CommitRequest{
		CustomerID: "c1",
		Items:      []LineRequest{{ProductID: "p1", Size: 7, Quantity: 3}},
		Proof:      h.pay(t, "c1", 3000, "pay_same"),
	}

	first, err := h.ledger.Commit(ctx, req)
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	second, err := h.ledger.Commit(ctx, req)
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if !second.Replayed || second.Order.OrderID != first.Order.OrderID {
		t.Fatalf("expected replay of %s, got %+v", first.Order.OrderID, second)
	}
	if h.fake.Len("orders") != 1 {
		t.Fatalf("expected exactly one order, got %d", h.fake.Len("orders"))
	}
	if got := h.quantity(t, "p1", 7); got != 7 {
		t.Fatalf("stock decremented more than once: %d", got)
	}
}

func TestCommit_ConcurrentRetriesOfOnePayment(t *testing.T) {
	h := newHarness(t, product(t, "p1", 1000, []int{7}, []int{20}))
	req := CommitRequest{
		CustomerID: "c1",
		Items:      []LineRequest{{ProductID: "p1", Size: 7, Quantity: 2}},
		Proof:      h.pay(t, "c1", 2000, "pay_dup"),
	}

	const callers = 5
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := h.ledger.Commit(context.Background(), req)
			if err != nil {
				t.Errorf("commit %d: %v", i, err)
				return
			}
			ids[i] = out.Order.OrderID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("callers saw different orders: %v", ids)
		}
	}
	if h.fake.Len("orders") != 1 {
		t.Fatalf("expected one order, got %d", h.fake.Len("orders"))
	}
	if got := h.quantity(t, "p1", 7); got != 18 {
		t.Fatalf("expected stock 18, got %d", got)
	}
}

func TestCommit_LastUnitGoesToOneCustomer(t *testing.T) {
	h := newHarness(t, product(t, "p1", 5000, []int{7, 8}, []int{1, 0}))
	proofs := []payment.Proof{
		h.pay(t, "c1", 5000, "pay_a"),
		h.pay(t, "c2", 5000, "pay_b"),
	}
	customers := []string{"c1", "c2"}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := range proofs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.ledger.Commit(context.Background(), CommitRequest{
				CustomerID: customers[i],
				Items:      []LineRequest{{ProductID: "p1", Size: 7, Quantity: 1}},
				Proof:      proofs[i],
			})
			mu.Lock()
			defer mu.Unlock()
			var rej *Rejection
			switch {
			case err == nil:
				ok++
			case errors.As(err, &rej) && rej.Reason == ReasonInsufficientStock:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok != 1 || rejected != 1 {
		t.Fatalf("expected one order and one InsufficientStock, got %d/%d", ok, rejected)
	}
	if h.fake.Len("orders") != 1 {
		t.Fatalf("expected one order")
	}
	if got := h.quantity(t, "p1", 7); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestCommit_FailedReservationReleasesEarlierLines(t *testing.T) {
	h := newHarness(t,
		product(t, "a", 1000, []int{8}, []int{5}),
		product(t, "b", 2000, []int{9}, []int{1}),
	)

	_, err := h.ledger.Commit(context.Background(), CommitRequest{
		CustomerID: "c1",
		Items: []LineRequest{
			{ProductID: "a", Size: 8, Quantity: 2},
			{ProductID: "b", Size: 9, Quantity: 2},
		},
		Proof: h.pay(t, "c1", 6000, "pay_1"),
	})
	rej := wantRejection(t, err, ReasonInsufficientStock)
	if rej.Item == nil || rej.Item.ProductID != "b" || rej.Item.Quantity != 2 {
		t.Fatalf("expected offending item b, got %+v", rej.Item)
	}
	if got := h.quantity(t, "a", 8); got != 5 {
		t.Fatalf("earlier reservation not released: %d", got)
	}
	if got := h.quantity(t, "b", 9); got != 1 {
		t.Fatalf("unexpected stock for b: %d", got)
	}
	if h.fake.Len("orders") != 0 || h.fake.Len("payment-claims") != 0 {
		t.Fatalf("rejected commit left records behind")
	}
}

func TestCommit_StorageFaultReleasesStock(t *testing.T) {
	h := newHarness(t, product(t, "p1", 1000, []int{10}, []int{3}))
	h.fake.FailNext("TransactWriteItems", errors.New("throttled"))

	_, err := h.ledger.Commit(context.Background(), CommitRequest{
		CustomerID: "c1",
		Items:      []LineRequest{{ProductID: "p1", Size: 10, Quantity: 3}},
		Proof:      h.pay(t, "c1", 3000, "pay_1"),
	})
	if !errors.Is(err, apperr.ErrStorage) || !apperr.Retryable(err) {
		t.Fatalf("expected retryable storage fault, got %v", err)
	}
	if got := h.quantity(t, "p1", 10); got != 3 {
		t.Fatalf("stock not released after fault: %d", got)
	}
}

func TestCommit_Rejections(t *testing.T) {
	deleted := product(t, "gone", 1000, []int{8}, []int{3})
	deleted.Deleted = true

	tests := []struct {
		name   string
		item   LineRequest
		proof  func(h *harness) payment.Proof
		reason Reason
	}{
		{
			name: "forged signature",
			item: LineRequest{ProductID: "p1", Size: 8, Quantity: 1},
			proof: func(h *harness) payment.Proof {
				p := h.pay(t, "c1", 1000, "pay_1")
				p.Signature = payment.Sign("not-the-secret", p.IntentID, p.PaymentID)
				return p
			},
			reason: ReasonPaymentVerificationFailed,
		},
		{
			name: "payment made by another customer",
			item: LineRequest{ProductID: "p1", Size: 8, Quantity: 1},
			proof: func(h *harness) payment.Proof {
				return h.pay(t, "someone-else", 1000, "pay_1")
			},
			reason: ReasonPaymentVerificationFailed,
		},
		{
			name:   "size not offered",
			item:   LineRequest{ProductID: "p1", Size: 11, Quantity: 1},
			proof:  func(h *harness) payment.Proof { return h.pay(t, "c1", 1000, "pay_1") },
			reason: ReasonSizeNotOffered,
		},
		{
			name:   "deleted product",
			item:   LineRequest{ProductID: "gone", Size: 8, Quantity: 1},
			proof:  func(h *harness) payment.Proof { return h.pay(t, "c1", 1000, "pay_1") },
			reason: ReasonProductUnavailable,
		},
		{
			name:   "unknown product",
			item:   LineRequest{ProductID: "nope", Size: 8, Quantity: 1},
			proof:  func(h *harness) payment.Proof { return h.pay(t, "c1", 1000, "pay_1") },
			reason: ReasonProductUnavailable,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, product(t, "p1", 1000, []int{8}, []int{3}), deleted)
			_, err := h.ledger.Commit(context.Background(), CommitRequest{
				CustomerID: "c1",
				Items:      []LineRequest{tc.item},
				Proof:      tc.proof(h),
			})
			wantRejection(t, err, tc.reason)
			if h.fake.Len("orders") != 0 || h.quantity(t, "p1", 8) != 3 {
				t.Fatalf("rejected commit changed state")
			}
		})
	}
}

func TestCommit_GatewayOutageIsRetryable(t *testing.T) {
	h := newHarness(t, product(t, "p1", 1000, []int{8}, []int{3}))
	proof := h.pay(t, "c1", 1000, "pay_1")
	h.gateway.err = apperr.Unavailable("fetch intent", errors.New("503"))

	_, err := h.ledger.Commit(context.Background(), CommitRequest{
		CustomerID: "c1",
		Items:      []LineRequest{{ProductID: "p1", Size: 8, Quantity: 1}},
		Proof:      proof,
	})
	var rej *Rejection
	if errors.As(err, &rej) || !apperr.Retryable(err) {
		t.Fatalf("expected retryable fault, got %v", err)
	}
}

func TestCommit_ValidatesInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.Commit(context.Background(), CommitRequest{CustomerID: "c1"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func commitOne(t *testing.T, h *harness, productID string, size, qty int, price int64) *orders.Order {
	t.Helper()
	out, err := h.ledger.Commit(context.Background(), CommitRequest{
		CustomerID: "c1",
		Items:      []LineRequest{{ProductID: productID, Size: size, Quantity: qty}},
		Proof:      h.pay(t, "c1", price*int64(qty), "pay_"+productID),
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return out.Order
}

func TestUpdateStatus_CancelRestoresStockOnce(t *testing.T) {
	h := newHarness(t, product(t, "p1", 1000, []int{9}, []int{4}))
	ctx := context.Background()
	o := commitOne(t, h, "p1", 9, 3, 1000)

	if _, err := h.ledger.UpdateStatus(ctx, o.OrderID, orders.StatusProcessing); err != nil {
		t.Fatalf("processing: %v", err)
	}
	got, err := h.ledger.UpdateStatus(ctx, o.OrderID, orders.StatusCancelled)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != orders.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if q := h.quantity(t, "p1", 9); q != 4 {
		t.Fatalf("expected stock restored to 4, got %d", q)
	}

	// A repeated cancel is a no-op and must not release again.
	if _, err := h.ledger.UpdateStatus(ctx, o.OrderID, orders.StatusCancelled); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if q := h.quantity(t, "p1", 9); q != 4 {
		t.Fatalf("stock released twice: %d", q)
	}

	ev := h.events.types()
	want := []string{aws.EventOrderCreated, aws.EventOrderStatusChanged, aws.EventOrderCancelled}
	if len(ev) != len(want) {
		t.Fatalf("expected events %v, got %v", want, ev)
	}
	for i := range want {
		if ev[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, ev)
		}
	}
}

func TestUpdateStatus_ConcurrentCancelsReleaseOnce(t *testing.T) {
	h := newHarness(t, product(t, "p1", 1000, []int{9}, []int{4}))
	o := commitOne(t, h, "p1", 9, 2, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.ledger.UpdateStatus(context.Background(), o.OrderID, orders.StatusCancelled); err != nil {
				t.Errorf("cancel: %v", err)
			}
		}()
	}
	wg.Wait()

	if q := h.quantity(t, "p1", 9); q != 4 {
		t.Fatalf("expected stock 4 after concurrent cancels, got %d", q)
	}
}

func TestUpdateStatus_DeliveredIsTerminal(t *testing.T) {
	h := newHarness(t, product(t, "p1", 1000, []int{9}, []int{4}))
	ctx := context.Background()
	o := commitOne(t, h, "p1", 9, 1, 1000)

	// Skipping forward is allowed.
	if _, err := h.ledger.UpdateStatus(ctx, o.OrderID, orders.StatusShipped); err != nil {
		t.Fatalf("shipped: %v", err)
	}
	if _, err := h.ledger.UpdateStatus(ctx, o.OrderID, orders.StatusProcessing); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected backwards move to be refused, got %v", err)
	}
	if _, err := h.ledger.UpdateStatus(ctx, o.OrderID, orders.StatusDelivered); err != nil {
		t.Fatalf("delivered: %v", err)
	}
	for _, to := range []orders.Status{orders.StatusCancelled, orders.StatusInTransit, orders.StatusCreated} {
		if _, err := h.ledger.UpdateStatus(ctx, o.OrderID, to); !errors.Is(err, ErrInvalidTransition) || !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("delivered -> %s: expected invalid transition, got %v", to, err)
		}
	}
	got, _ := h.ledger.Order(ctx, o.OrderID)
	if got.Status != orders.StatusDelivered {
		t.Fatalf("expected delivered, got %s", got.Status)
	}
	if q := h.quantity(t, "p1", 9); q != 3 {
		t.Fatalf("delivered order released stock: %d", q)
	}
}

func TestUpdateStatus_UnknownOrder(t *testing.T) {
	h := newHarness(t)
	if _, err := h.ledger.UpdateStatus(context.Background(), "missing", orders.StatusShipped); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrdersReadHelpers(t *testing.T) {
	h := newHarness(t,
		product(t, "a", 1000, []int{8}, []int{5}),
		product(t, "b", 1000, []int{8}, []int{5}),
	)
	ctx := context.Background()
	commitOne(t, h, "a", 8, 1, 1000)
	commitOne(t, h, "b", 8, 1, 1000)

	mine, err := h.ledger.Orders(ctx, "c1")
	if err != nil || len(mine) != 2 {
		t.Fatalf("orders: %d %v", len(mine), err)
	}
	none, err := h.ledger.Orders(ctx, "c2")
	if err != nil || len(none) != 0 {
		t.Fatalf("other customer sees orders: %d %v", len(none), err)
	}
	all, err := h.ledger.AllOrders(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("all orders: %d %v", len(all), err)
	}
}

func TestQuote(t *testing.T) {
	discounted := product(t, "sale", 99900, []int{8, 9}, []int{1, 4})
	discounted.DiscountPercent = 15
	h := newHarness(t, discounted)
	ctx := context.Background()

	items, err := h.ledger.Quote(ctx, []LineRequest{{ProductID: "sale", Size: 9, Quantity: 2}})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	// 99900 * 0.85 = 84915
	if items[0].UnitPriceMinor != 84915 || orders.SumItems(items) != 169830 {
		t.Fatalf("unexpected quote %+v", items)
	}

	_, err = h.ledger.Quote(ctx, []LineRequest{{ProductID: "sale", Size: 8, Quantity: 2}})
	wantRejection(t, err, ReasonInsufficientStock)

	if _, err := h.ledger.Quote(ctx, nil); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for empty cart, got %v", err)
	}
	if q := h.quantity(t, "sale", 9); q != 4 {
		t.Fatalf("quote reserved stock: %d", q)
	}
}
