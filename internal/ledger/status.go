package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/imrishuroy/go-footwear-checkout/internal/aws"
	"github.com/imrishuroy/go-footwear-checkout/internal/orders"
)

// UpdateStatus moves an order to status to. Requests for the current status are no-ops.
// Cancelling releases the order's stock; only the caller whose conditional write wins
// does so, so concurrent or repeated cancels release at most once.
func (l *Ledger) UpdateStatus(ctx context.Context, orderID string, to orders.Status) (*orders.Order, error) {
	// One re-read is allowed when a concurrent writer changes the status under us.
	for attempt := 0; attempt < 2; attempt++ {
		o, err := l.orders.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status == to {
			return o, nil
		}
		if !orders.CanTransition(o.Status, to) {
			return nil, fmt.Errorf("order %s from %s to %s: %w", orderID, o.Status, to, ErrInvalidTransition)
		}

		from := o.Status
		if to == orders.StatusCancelled {
			err = l.orders.Cancel(ctx, orderID, from)
		} else {
			err = l.orders.UpdateStatus(ctx, orderID, from, to)
		}
		if errors.Is(err, orders.ErrStatusMismatch) {
			continue
		}
		if err != nil {
			return nil, err
		}

		o.Status = to
		log.Printf("[ledger] order=%s status %s -> %s", orderID, from, to)
		if to == orders.StatusCancelled {
			if !o.StockReleased {
				l.release(ctx, o.Items)
			}
			o.StockReleased = true
			l.publish(ctx, aws.OrderEvent{
				Type:        aws.EventOrderCancelled,
				OrderID:     o.OrderID,
				CustomerID:  o.CustomerID,
				PaymentID:   o.Payment.PaymentID,
				AmountMinor: o.TotalAmountMinor,
				Status:      string(to),
			})
		} else {
			l.publish(ctx, aws.OrderEvent{
				Type:       aws.EventOrderStatusChanged,
				OrderID:    o.OrderID,
				CustomerID: o.CustomerID,
				Status:     string(to),
			})
		}
		return o, nil
	}
	return nil, fmt.Errorf("order %s: %w", orderID, orders.ErrStatusMismatch)
}

// Order returns a single order.
func (l *Ledger) Order(ctx context.Context, orderID string) (*orders.Order, error) {
	return l.orders.Get(ctx, orderID)
}

// Orders returns the customer's orders, newest first.
func (l *Ledger) Orders(ctx context.Context, customerID string) ([]orders.Order, error) {
	return l.orders.ListByCustomer(ctx, customerID)
}

// AllOrders returns every order for the admin console.
func (l *Ledger) AllOrders(ctx context.Context) ([]orders.Order, error) {
	return l.orders.ListAll(ctx)
}
