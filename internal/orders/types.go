package orders

import (
	"fmt"
	"strings"
	"time"
)

// Status is the fulfillment status of an order.
type Status string

const (
	StatusCreated    Status = "created"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusInTransit  Status = "in_transit"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// fulfillment is the forward-only path an order travels.
var fulfillment = []Status{StatusCreated, StatusProcessing, StatusShipped, StatusInTransit, StatusDelivered}

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// ParseStatus accepts the enumerated statuses. "in transit" is accepted for in_transit.
func ParseStatus(s string) (Status, error) {
	norm := Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_"))
	switch norm {
	case StatusCreated, StatusProcessing, StatusShipped, StatusInTransit, StatusDelivered, StatusCancelled:
		return norm, nil
	}
	return "", fmt.Errorf("invalid order status %q", s)
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) rank() int {
	for i, st := range fulfillment {
		if st == s {
			return i
		}
	}
	return -1
}

// CanTransition reports whether an operator may move an order from -> to. Fulfillment only
// moves forward (skipping steps is allowed) and cancellation is possible until delivery.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	fr, tr := from.rank(), to.rank()
	return fr >= 0 && tr > fr
}

// AddressSnapshot is a copy of the delivery address taken at order time.
type AddressSnapshot struct {
	AddressID  string `dynamodbav:"address_id" json:"address_id"`
	FullName   string `dynamodbav:"full_name" json:"full_name"`
	Phone      string `dynamodbav:"phone" json:"phone"`
	Street     string `dynamodbav:"street" json:"street"`
	City       string `dynamodbav:"city" json:"city"`
	State      string `dynamodbav:"state" json:"state"`
	PostalCode string `dynamodbav:"postal_code" json:"postal_code"`
	Country    string `dynamodbav:"country" json:"country"`
}

// LineItem captures the price paid at order time.
type LineItem struct {
	ProductID      string `dynamodbav:"product_id" json:"product_id"`
	Name           string `dynamodbav:"name" json:"name"`
	Size           int    `dynamodbav:"size" json:"size"`
	Quantity       int    `dynamodbav:"quantity" json:"quantity"`
	UnitPriceMinor int64  `dynamodbav:"unit_price_minor" json:"unit_price"`
}

// SubtotalMinor is UnitPriceMinor × Quantity.
func (li LineItem) SubtotalMinor() int64 {
	return li.UnitPriceMinor * int64(li.Quantity)
}

// SumItems totals the captured line prices.
func SumItems(items []LineItem) int64 {
	var total int64
	for _, it := range items {
		total += it.SubtotalMinor()
	}
	return total
}

// PaymentRef links the order to the provider's records.
type PaymentRef struct {
	IntentID  string `dynamodbav:"intent_id" json:"razorpay_order_id"`
	PaymentID string `dynamodbav:"payment_id" json:"razorpay_payment_id"`
	Signature string `dynamodbav:"signature" json:"razorpay_signature"`
}

// Order represents the item stored in the orders table.
type Order struct {
	OrderID          string          `dynamodbav:"order_id" json:"id"`             // PK
	CustomerID       string          `dynamodbav:"customer_id" json:"customer_id"` // GSI customer_id-index
	Address          AddressSnapshot `dynamodbav:"address" json:"address"`
	Items            []LineItem      `dynamodbav:"items" json:"items"`
	TotalAmountMinor int64           `dynamodbav:"total_amount_minor" json:"total_amount"`
	Currency         string          `dynamodbav:"currency" json:"currency"`
	Payment          PaymentRef      `dynamodbav:"payment" json:"payment"`
	PaymentStatus    PaymentStatus   `dynamodbav:"payment_status" json:"payment_status"`
	Status           Status          `dynamodbav:"status" json:"order_status"`
	StockReleased    bool            `dynamodbav:"stock_released,omitempty" json:"-"`
	CreatedAt        time.Time       `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `dynamodbav:"updated_at" json:"updated_at"`
}

// Validate enforces that the stored total equals the sum of the captured line items.
func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return fmt.Errorf("order has no items")
	}
	if sum := SumItems(o.Items); sum != o.TotalAmountMinor {
		return fmt.Errorf("total %d does not match items sum %d", o.TotalAmountMinor, sum)
	}
	return nil
}
