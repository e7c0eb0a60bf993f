package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-footwear-checkout/internal/aws"
	"github.com/imrishuroy/go-footwear-checkout/internal/orders"
)

// Processor consumes order events and refunds payments of cancelled orders.
type Processor struct {
	orders   OrderReader
	refunder Refunder
	claims   ClaimNotes
}

// NewProcessor wires the processor to its stores and the payment provider.
func NewProcessor(o OrderReader, r Refunder, claims ClaimNotes) *Processor {
	return &Processor{orders: o, refunder: r, claims: claims}
}

// Handle processes a batch and reports the messages that failed so only those are
// redelivered. After enough receives a failing message moves to the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			log.Printf("[worker] message %s failed: %v", rec.MessageId, err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev aws.OrderEvent
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if ev.OrderID == "" {
		return errors.New("event without order_id")
	}

	switch ev.Type {
	case aws.EventOrderCancelled:
		return p.refund(ctx, ev.OrderID)
	default:
		log.Printf("[worker] ignoring %s for order=%s", ev.Type, ev.OrderID)
		return nil
	}
}

// refund returns the full order amount for a cancelled, paid order. Redelivered events
// for an order that is already refunded are acknowledged without calling the provider.
func (p *Processor) refund(ctx context.Context, orderID string) error {
	o, err := p.orders.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("fetch order: %w", err)
	}
	if o.Status != orders.StatusCancelled {
		log.Printf("[worker] order=%s is %s, not refunding", orderID, o.Status)
		return nil
	}
	if o.PaymentStatus != orders.PaymentCompleted {
		log.Printf("[worker] order=%s payment is %s, nothing to refund", orderID, o.PaymentStatus)
		return nil
	}

	r, err := p.refunder.Refund(ctx, o.Payment.PaymentID, o.TotalAmountMinor)
	if err != nil {
		return fmt.Errorf("refund payment %s: %w", o.Payment.PaymentID, err)
	}
	log.Printf("[worker] refunded order=%s payment=%s refund=%s", orderID, o.Payment.PaymentID, r.ID)

	err = p.orders.UpdatePaymentStatus(ctx, orderID, orders.PaymentCompleted, orders.PaymentRefunded)
	if errors.Is(err, orders.ErrStatusMismatch) {
		log.Printf("[worker] order=%s payment already moved on", orderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark order refunded: %w", err)
	}

	if err := p.claims.AddNote(ctx, o.Payment.PaymentID, "refunded "+r.ID); err != nil {
		log.Printf("[worker] note refund on claim %s: %v", o.Payment.PaymentID, err)
	}
	return nil
}
