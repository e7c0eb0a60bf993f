package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-footwear-checkout/internal/aws"
	"github.com/imrishuroy/go-footwear-checkout/internal/config"
	"github.com/imrishuroy/go-footwear-checkout/internal/idempotency"
	"github.com/imrishuroy/go-footwear-checkout/internal/orders"
	"github.com/imrishuroy/go-footwear-checkout/internal/payment"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	gateway := payment.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayBaseURL,
		&http.Client{Timeout: 10 * time.Second})
	p := NewProcessor(
		orders.NewStore(clients.DynamoDB, cfg.OrdersTable),
		gateway,
		idempotency.NewStore(clients.DynamoDB, cfg.PaymentClaimsTable, 0),
	)

	// RUN_LOCAL=true processes one event taken from LOCAL_SQS_BODY and exits.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"type":"order.cancelled","order_id":"local-order-1"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		}
		resp, err := p.Handle(context.Background(), event)
		if err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		if len(resp.BatchItemFailures) > 0 {
			log.Fatalf("local event failed")
		}
		log.Printf("local event processed")
		return
	}

	lambda.Start(p.Handle)
}
