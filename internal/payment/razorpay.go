package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
)

// Razorpay talks to the Razorpay Orders and Payments REST API.
type Razorpay struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
}

// NewRazorpay returns a client. A nil httpClient gets a 10s timeout default.
func NewRazorpay(keyID, keySecret, baseURL string, httpClient *http.Client) *Razorpay {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Razorpay{
		keyID:      keyID,
		keySecret:  keySecret,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type razorpayOrder struct {
	ID       string            `json:"id,omitempty"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Status   string            `json:"status,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateIntent creates a provider order for amountMinor. The client token is the public
// key id the checkout widget is initialised with.
func (r *Razorpay) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error) {
	if amountMinor <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}
	req := razorpayOrder{
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  metadata["receipt"],
		Notes:    metadata,
	}
	var out razorpayOrder
	if err := r.do(ctx, http.MethodPost, "/v1/orders", req, &out); err != nil {
		return nil, err
	}
	return &Intent{
		ID:          out.ID,
		ClientToken: r.keyID,
		AmountMinor: out.Amount,
		Currency:    out.Currency,
		Metadata:    out.Notes,
	}, nil
}

// Verify checks the HMAC-SHA256 signature over "intentID|paymentID" and then reads the
// intent back from the provider, so the attested amount never comes from the client.
func (r *Razorpay) Verify(ctx context.Context, proof Proof) (*Verification, error) {
	if proof.IntentID == "" || proof.PaymentID == "" || proof.Signature == "" {
		return nil, ErrInvalidSignature
	}
	expected := Sign(r.keySecret, proof.IntentID, proof.PaymentID)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(proof.Signature))) {
		return nil, ErrInvalidSignature
	}

	var order razorpayOrder
	if err := r.do(ctx, http.MethodGet, "/v1/orders/"+proof.IntentID, nil, &order); err != nil {
		return nil, err
	}
	return &Verification{
		IntentID:    proof.IntentID,
		PaymentID:   proof.PaymentID,
		Signature:   proof.Signature,
		AmountMinor: order.Amount,
		Currency:    order.Currency,
		Metadata:    order.Notes,
	}, nil
}

// Refund refunds amountMinor of a captured payment. Zero refunds the full amount.
func (r *Razorpay) Refund(ctx context.Context, paymentID string, amountMinor int64) (*Refund, error) {
	body := map[string]int64{}
	if amountMinor > 0 {
		body["amount"] = amountMinor
	}
	var out Refund
	if err := r.do(ctx, http.MethodPost, "/v1/payments/"+paymentID+"/refund", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sign computes the signature Razorpay attaches to a successful payment.
func Sign(secret, intentID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(intentID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (r *Razorpay) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(r.keyID, r.keySecret)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return apperr.Unavailable("razorpay "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperr.Unavailable("razorpay read body", err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return apperr.Unavailable("razorpay "+path, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("razorpay %s: %w", path, apperr.ErrNotFound)
	case resp.StatusCode >= 400:
		var perr razorpayError
		_ = json.Unmarshal(raw, &perr)
		return fmt.Errorf("razorpay %s: status %d %s: %w", path, resp.StatusCode, perr.Error.Description, apperr.ErrValidation)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode razorpay response: %w", err)
		}
	}
	return nil
}
