// Package config loads service settings from the environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full set of runtime settings for the API and the worker.
type Config struct {
	RunLocal bool
	Port     string

	ProductsTable      string
	AddressesTable     string
	OrdersTable        string
	PaymentClaimsTable string
	AccountsTable      string
	OrderEventsQueue   string
	MetricsNamespace   string

	JWTSecret      string
	AdminJWTSecret string
	TokenTTL       time.Duration

	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayBaseURL   string
	Currency          string

	DelhiveryAPIKey  string
	DelhiveryBaseURL string

	CommitMaxAttempts int
	AllowedOrigins    []string
}

var (
	apiRequired = []string{
		"PRODUCTS_TABLE", "ADDRESSES_TABLE", "ORDERS_TABLE", "PAYMENT_CLAIMS_TABLE",
		"ACCOUNTS_TABLE", "JWT_SECRET", "ADMIN_JWT_SECRET", "RAZORPAY_KEY_ID", "RAZORPAY_KEY_SECRET",
	}
	workerRequired = []string{
		"ORDERS_TABLE", "PAYMENT_CLAIMS_TABLE", "RAZORPAY_KEY_ID", "RAZORPAY_KEY_SECRET",
	}
)

// Load reads the API settings from the environment. A missing .env file is not an error.
func Load() (Config, error) {
	return load(apiRequired)
}

// LoadWorker reads the subset the refund worker needs.
func LoadWorker() (Config, error) {
	return load(workerRequired)
}

func load(requiredKeys []string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		RunLocal:           os.Getenv("RUN_LOCAL") == "true",
		Port:               getenv("PORT", "8080"),
		ProductsTable:      os.Getenv("PRODUCTS_TABLE"),
		AddressesTable:     os.Getenv("ADDRESSES_TABLE"),
		OrdersTable:        os.Getenv("ORDERS_TABLE"),
		PaymentClaimsTable: os.Getenv("PAYMENT_CLAIMS_TABLE"),
		AccountsTable:      os.Getenv("ACCOUNTS_TABLE"),
		OrderEventsQueue:   os.Getenv("ORDER_EVENTS_QUEUE_URL"),
		MetricsNamespace:   getenv("METRICS_NAMESPACE", "Footwear/Checkout"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		AdminJWTSecret:     os.Getenv("ADMIN_JWT_SECRET"),
		RazorpayKeyID:      os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:  os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayBaseURL:    getenv("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
		Currency:           getenv("CURRENCY", "INR"),
		DelhiveryAPIKey:    os.Getenv("DELHIVERY_API_KEY"),
		DelhiveryBaseURL:   getenv("DELHIVERY_BASE_URL", "https://track.delhivery.com"),
	}

	var errs []error

	attempts, err := strconv.Atoi(getenv("COMMIT_MAX_ATTEMPTS", "3"))
	if err != nil || attempts < 1 {
		errs = append(errs, fmt.Errorf("COMMIT_MAX_ATTEMPTS must be a positive integer"))
	}
	cfg.CommitMaxAttempts = attempts

	ttl, err := time.ParseDuration(getenv("TOKEN_TTL", "72h"))
	if err != nil {
		errs = append(errs, fmt.Errorf("TOKEN_TTL: %w", err))
	}
	cfg.TokenTTL = ttl

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	values := map[string]string{
		"PRODUCTS_TABLE":       cfg.ProductsTable,
		"ADDRESSES_TABLE":      cfg.AddressesTable,
		"ORDERS_TABLE":         cfg.OrdersTable,
		"PAYMENT_CLAIMS_TABLE": cfg.PaymentClaimsTable,
		"ACCOUNTS_TABLE":       cfg.AccountsTable,
		"JWT_SECRET":           cfg.JWTSecret,
		"ADMIN_JWT_SECRET":     cfg.AdminJWTSecret,
		"RAZORPAY_KEY_ID":      cfg.RazorpayKeyID,
		"RAZORPAY_KEY_SECRET":  cfg.RazorpayKeySecret,
	}
	required := make(map[string]string, len(requiredKeys))
	for _, key := range requiredKeys {
		required[key] = values[key]
	}
	for _, key := range sortedKeys(required) {
		if required[key] == "" {
			errs = append(errs, fmt.Errorf("%s is not set", key))
		}
	}

	if len(errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
