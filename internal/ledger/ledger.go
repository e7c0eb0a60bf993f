// Package ledger turns a verified payment and a cart into a durable order and committed
// stock decrements, and drives the order status state machine afterwards.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
	"github.com/imrishuroy/go-footwear-checkout/internal/aws"
	"github.com/imrishuroy/go-footwear-checkout/internal/catalog"
	"github.com/imrishuroy/go-footwear-checkout/internal/idempotency"
	"github.com/imrishuroy/go-footwear-checkout/internal/orders"
	"github.com/imrishuroy/go-footwear-checkout/internal/payment"
)

// ErrInvalidTransition is returned when an operator asks for a status change the state
// machine does not allow.
var ErrInvalidTransition = fmt.Errorf("invalid status transition: %w", apperr.ErrConflict)

// Catalog is the part of the catalog store the ledger needs.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	ReserveStock(ctx context.Context, productID string, size, qty int) error
	ReleaseStock(ctx context.Context, productID string, size, qty int) error
}

// OrderStore is the part of the orders store the ledger needs.
type OrderStore interface {
	CreateWithPaymentClaim(ctx context.Context, claimsTable string, claim idempotency.IdempotencyRecord, order orders.Order) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]orders.Order, error)
	ListAll(ctx context.Context) ([]orders.Order, error)
	UpdateStatus(ctx context.Context, orderID string, expected, newStatus orders.Status) error
	Cancel(ctx context.Context, orderID string, expected orders.Status) error
}

// Claims is the payment claim table.
type Claims interface {
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	NewRecord(key, orderID, customerID string) idempotency.IdempotencyRecord
	TableName() string
}

// Events receives order lifecycle events.
type Events interface {
	PublishOrderEvent(ctx context.Context, ev aws.OrderEvent) error
}

// LineRequest is a cart line as submitted by the client. Any client-side price is ignored.
type LineRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Size      int    `json:"size" validate:"required,shoesize"`
	Quantity  int    `json:"quantity" validate:"required,gte=1,lte=10"`
}

// CommitRequest carries everything Commit needs.
type CommitRequest struct {
	CustomerID string
	Address    orders.AddressSnapshot
	Items      []LineRequest
	Proof      payment.Proof
	// ClaimedTotalMinor is the total the client displayed. Zero means not supplied.
	ClaimedTotalMinor int64
	Currency          string
}

// Outcome is a committed order. Replayed is set when the payment had already been turned
// into an order by an earlier call.
type Outcome struct {
	Order    *orders.Order
	Replayed bool
}

// Ledger is the single authority for creating orders and moving them through their states.
type Ledger struct {
	catalog Catalog
	orders  OrderStore
	claims  Claims
	gateway payment.Gateway
	events  Events
	newID   func() string
	nowFunc func() time.Time
}

// New returns a Ledger. events may be nil when no queue is configured.
func New(cat Catalog, store OrderStore, claims Claims, gw payment.Gateway, events Events) *Ledger {
	return &Ledger{
		catalog: cat,
		orders:  store,
		claims:  claims,
		gateway: gw,
		events:  events,
		newID:   uuid.NewString,
		nowFunc: time.Now,
	}
}

// Commit verifies the payment proof, prices the cart, reserves stock for every line and
// persists the order together with the payment claim. Business outcomes are returned as
// *Rejection; retrying with the same payment id returns the order created the first time.
func (l *Ledger) Commit(ctx context.Context, req CommitRequest) (*Outcome, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	v, err := l.gateway.Verify(ctx, req.Proof)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) || errors.Is(err, apperr.ErrNotFound) {
			log.Printf("[ledger] payment verification failed customer=%s payment=%s: %v", req.CustomerID, req.Proof.PaymentID, err)
			return nil, reject(ReasonPaymentVerificationFailed, nil, err.Error())
		}
		return nil, err
	}
	if owner := v.Metadata["customer_id"]; owner != "" && owner != req.CustomerID {
		log.Printf("[ledger] payment %s belongs to customer %s, presented by %s", v.PaymentID, owner, req.CustomerID)
		return nil, reject(ReasonPaymentVerificationFailed, nil, "payment was made for a different customer")
	}

	if existing, err := l.claimedOrder(ctx, v.PaymentID, req.CustomerID); err != nil || existing != nil {
		if err != nil {
			return nil, err
		}
		return &Outcome{Order: existing, Replayed: true}, nil
	}

	items, err := l.price(ctx, req.Items, false)
	if err != nil {
		return nil, err
	}
	total := orders.SumItems(items)
	if total != v.AmountMinor {
		log.Printf("[ledger] amount mismatch payment=%s paid=%d computed=%d", v.PaymentID, v.AmountMinor, total)
		return nil, reject(ReasonAmountMismatch, nil, fmt.Sprintf("paid %d but order totals %d", v.AmountMinor, total))
	}
	if req.ClaimedTotalMinor != 0 && req.ClaimedTotalMinor != total {
		log.Printf("[ledger] amount mismatch payment=%s claimed=%d computed=%d", v.PaymentID, req.ClaimedTotalMinor, total)
		return nil, reject(ReasonAmountMismatch, nil, fmt.Sprintf("cart shows %d but order totals %d", req.ClaimedTotalMinor, total))
	}
	currency := v.Currency
	if currency == "" {
		currency = req.Currency
	} else if req.Currency != "" && req.Currency != currency {
		return nil, reject(ReasonAmountMismatch, nil, fmt.Sprintf("paid in %s, cart in %s", currency, req.Currency))
	}

	reserved, err := l.reserve(ctx, items)
	if err != nil {
		return nil, err
	}

	order := orders.Order{
		OrderID:          l.newID(),
		CustomerID:       req.CustomerID,
		Address:          req.Address,
		Items:            items,
		TotalAmountMinor: total,
		Currency:         currency,
		Payment: orders.PaymentRef{
			IntentID:  v.IntentID,
			PaymentID: v.PaymentID,
			Signature: v.Signature,
		},
		PaymentStatus: orders.PaymentCompleted,
		Status:        orders.StatusCreated,
		CreatedAt:     l.nowFunc().UTC(),
	}
	order.UpdatedAt = order.CreatedAt
	claim := l.claims.NewRecord(v.PaymentID, order.OrderID, req.CustomerID)

	err = l.orders.CreateWithPaymentClaim(ctx, l.claims.TableName(), claim, order)
	if errors.Is(err, orders.ErrDuplicatePayment) {
		// A concurrent call with the same payment won the claim.
		l.release(ctx, reserved)
		existing, cerr := l.claimedOrder(ctx, v.PaymentID, req.CustomerID)
		if cerr != nil {
			return nil, cerr
		}
		if existing == nil {
			return nil, fmt.Errorf("payment %s claimed but no order found: %w", v.PaymentID, apperr.ErrConflict)
		}
		return &Outcome{Order: existing, Replayed: true}, nil
	}
	if err != nil {
		l.release(ctx, reserved)
		return nil, err
	}

	log.Printf("[ledger] committed order=%s customer=%s payment=%s total=%d", order.OrderID, order.CustomerID, v.PaymentID, total)
	l.publish(ctx, aws.OrderEvent{
		Type:        aws.EventOrderCreated,
		OrderID:     order.OrderID,
		CustomerID:  order.CustomerID,
		PaymentID:   v.PaymentID,
		AmountMinor: total,
		Status:      string(order.Status),
	})
	return &Outcome{Order: &order}, nil
}

func validateRequest(req CommitRequest) error {
	if req.CustomerID == "" {
		return apperr.Validation("customer id is required")
	}
	if len(req.Items) == 0 {
		return apperr.Validation("cart is empty")
	}
	for i, it := range req.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return apperr.Validation("item %d: product id and a positive quantity are required", i)
		}
	}
	if req.Proof.IntentID == "" || req.Proof.PaymentID == "" || req.Proof.Signature == "" {
		return apperr.Validation("payment proof is incomplete")
	}
	return nil
}

// claimedOrder returns the order already committed for paymentID, or nil.
func (l *Ledger) claimedOrder(ctx context.Context, paymentID, customerID string) (*orders.Order, error) {
	rec, err := l.claims.Get(ctx, paymentID)
	if err != nil || rec == nil {
		return nil, err
	}
	o, err := l.orders.Get(ctx, rec.OrderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		return nil, fmt.Errorf("payment %s: %w", paymentID, apperr.ErrForbidden)
	}
	return o, nil
}

// Quote prices lines at current catalog prices without reserving anything. Lines that
// could not be fulfilled right now are rejected the same way Commit would reject them.
func (l *Ledger) Quote(ctx context.Context, lines []LineRequest) ([]orders.LineItem, error) {
	if len(lines) == 0 {
		return nil, apperr.Validation("cart is empty")
	}
	return l.price(ctx, lines, true)
}

// price resolves each line against the catalog and captures the current unit price.
// checkStock adds an advisory stock check; the authoritative one is the reservation.
func (l *Ledger) price(ctx context.Context, lines []LineRequest, checkStock bool) ([]orders.LineItem, error) {
	items := make([]orders.LineItem, 0, len(lines))
	for _, line := range lines {
		p, err := l.catalog.GetProduct(ctx, line.ProductID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, reject(ReasonProductUnavailable, &line, "product does not exist")
		}
		if err != nil {
			return nil, err
		}
		if !p.Purchasable() {
			return nil, reject(ReasonProductUnavailable, &line, "product is not available")
		}
		if !p.Offers(line.Size) {
			return nil, reject(ReasonSizeNotOffered, &line, fmt.Sprintf("size %d is not offered", line.Size))
		}
		if checkStock && p.Quantity(line.Size) < line.Quantity {
			return nil, reject(ReasonInsufficientStock, &line, fmt.Sprintf("only %d left in size %d", p.Quantity(line.Size), line.Size))
		}
		items = append(items, orders.LineItem{
			ProductID:      p.ProductID,
			Name:           p.Name,
			Size:           line.Size,
			Quantity:       line.Quantity,
			UnitPriceMinor: p.UnitPriceMinor(),
		})
	}
	return items, nil
}

// reserve takes stock for every item. On the first failure every earlier reservation is
// released before returning.
func (l *Ledger) reserve(ctx context.Context, items []orders.LineItem) ([]orders.LineItem, error) {
	reserved := make([]orders.LineItem, 0, len(items))
	for _, it := range items {
		err := l.catalog.ReserveStock(ctx, it.ProductID, it.Size, it.Quantity)
		if err == nil {
			reserved = append(reserved, it)
			continue
		}
		l.release(ctx, reserved)

		line := &LineRequest{ProductID: it.ProductID, Size: it.Size, Quantity: it.Quantity}
		switch {
		case errors.Is(err, catalog.ErrInsufficientStock):
			return nil, reject(ReasonInsufficientStock, line, "not enough stock for the requested quantity")
		case errors.Is(err, catalog.ErrSizeNotOffered):
			return nil, reject(ReasonSizeNotOffered, line, fmt.Sprintf("size %d is not offered", it.Size))
		case errors.Is(err, apperr.ErrNotFound):
			return nil, reject(ReasonProductUnavailable, line, "product does not exist")
		}
		return nil, err
	}
	return reserved, nil
}

// release returns stock for items. It runs detached from ctx cancellation so an abandoned
// request still gives its stock back. Failures are logged; there is nothing else to do.
func (l *Ledger) release(ctx context.Context, items []orders.LineItem) {
	ctx = context.WithoutCancel(ctx)
	for _, it := range items {
		if err := l.catalog.ReleaseStock(ctx, it.ProductID, it.Size, it.Quantity); err != nil {
			log.Printf("[ledger] ERROR release stock product=%s size=%d qty=%d: %v", it.ProductID, it.Size, it.Quantity, err)
		}
	}
}

func (l *Ledger) publish(ctx context.Context, ev aws.OrderEvent) {
	if l.events == nil {
		return
	}
	ev.OccurredAt = l.nowFunc().UTC()
	if err := l.events.PublishOrderEvent(ctx, ev); err != nil {
		log.Printf("[ledger] publish %s for order %s: %v", ev.Type, ev.OrderID, err)
	}
}
