package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-footwear-checkout/internal/accounts"
	"github.com/imrishuroy/go-footwear-checkout/internal/addresses"
	"github.com/imrishuroy/go-footwear-checkout/internal/auth"
	"github.com/imrishuroy/go-footwear-checkout/internal/aws"
	"github.com/imrishuroy/go-footwear-checkout/internal/catalog"
	"github.com/imrishuroy/go-footwear-checkout/internal/checkout"
	"github.com/imrishuroy/go-footwear-checkout/internal/config"
	"github.com/imrishuroy/go-footwear-checkout/internal/courier"
	"github.com/imrishuroy/go-footwear-checkout/internal/handlers"
	"github.com/imrishuroy/go-footwear-checkout/internal/idempotency"
	"github.com/imrishuroy/go-footwear-checkout/internal/ledger"
	"github.com/imrishuroy/go-footwear-checkout/internal/orders"
	"github.com/imrishuroy/go-footwear-checkout/internal/payment"
)

func setupRouter(cfg config.Config, hc handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	corsCfg.AddAllowHeaders("Authorization")
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsCfg.AllowOrigins = []string{"http://localhost:5173"}
	}
	r.Use(cors.New(corsCfg))

	handlers.RegisterRoutes(r, hc)
	return r
}

func buildHandlerConfig(cfg config.Config, clients *aws.AWSClients) handlers.HandlerConfig {
	httpClient := &http.Client{Timeout: 10 * time.Second}

	catalogStore := catalog.NewStore(clients.DynamoDB, cfg.ProductsTable)
	addressStore := addresses.NewStore(clients.DynamoDB, cfg.AddressesTable)
	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
	claims := idempotency.NewStore(clients.DynamoDB, cfg.PaymentClaimsTable, 0)
	gateway := payment.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayBaseURL, httpClient)

	var publisher ledger.Events
	if cfg.OrderEventsQueue != "" {
		publisher = aws.NewPublisher(clients.SQS, cfg.OrderEventsQueue)
	} else {
		log.Printf("[api] ORDER_EVENTS_QUEUE_URL not set, order events are not published")
	}

	// Left as nil interfaces when unconfigured; a typed nil pointer would pass the nil checks.
	var checkoutCourier checkout.Courier
	var routesCourier handlers.Courier
	if cfg.DelhiveryAPIKey != "" {
		d := courier.NewDelhivery(cfg.DelhiveryAPIKey, cfg.DelhiveryBaseURL, httpClient)
		checkoutCourier = d
		routesCourier = d
	} else {
		log.Printf("[api] DELHIVERY_API_KEY not set, pincode checks are skipped")
	}

	l := ledger.New(catalogStore, orderStore, claims, gateway, publisher)
	svc := checkout.New(addressStore, checkoutCourier, l, gateway,
		aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace),
		checkout.Options{Currency: cfg.Currency, MaxAttempts: cfg.CommitMaxAttempts})

	return handlers.HandlerConfig{
		Accounts:      accounts.NewStore(clients.DynamoDB, cfg.AccountsTable),
		Catalog:       catalogStore,
		Addresses:     addressStore,
		Ledger:        l,
		Checkout:      svc,
		Courier:       routesCourier,
		Customers:     auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL, "token"),
		Admins:        auth.NewIssuer(cfg.AdminJWTSecret, cfg.TokenTTL, "admin_token"),
		SecureCookies: !cfg.RunLocal,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	r := setupRouter(cfg, buildHandlerConfig(cfg, clients))

	// RUN_LOCAL=true serves HTTP directly for development.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
