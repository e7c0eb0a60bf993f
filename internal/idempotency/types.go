package idempotency

import "time"

// StatusDone marks a claim whose order has been committed.
const StatusDone = "DONE"

// IdempotencyRecord is the shape persisted in the payment claims table. The key is the
// provider payment id, which makes "one order per payment" a uniqueness constraint.
type IdempotencyRecord struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	CustomerID     string    `dynamodbav:"customer_id,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at,omitempty"` // TTL epoch seconds, zero keeps the record
	Note           string    `dynamodbav:"note,omitempty"`
}
