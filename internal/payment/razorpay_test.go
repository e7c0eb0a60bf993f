package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
)

type fakeRazorpay struct {
	orders  map[string]razorpayOrder
	refunds int
	status  int
}

func (f *fakeRazorpay) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "shh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/orders":
			var in razorpayOrder
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				t.Errorf("decode: %v", err)
			}
			in.ID = "order_test_1"
			in.Status = "created"
			f.orders[in.ID] = in
			_ = json.NewEncoder(w).Encode(in)
		case r.Method == http.MethodGet && len(r.URL.Path) > len("/v1/orders/"):
			o, ok := f.orders[r.URL.Path[len("/v1/orders/"):]]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"id does not exist"}}`))
				return
			}
			_ = json.NewEncoder(w).Encode(o)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/payments/pay_1/refund":
			f.refunds++
			_, _ = w.Write([]byte(`{"id":"rfnd_1","payment_id":"pay_1","amount":65000,"status":"processed"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}
}

func newTestGateway(t *testing.T) (*Razorpay, *fakeRazorpay) {
	t.Helper()
	fake := &fakeRazorpay{orders: map[string]razorpayOrder{}}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return NewRazorpay("rzp_test_key", "shh", srv.URL, srv.Client()), fake
}

func TestCreateIntentAndVerify(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	intent, err := gw.CreateIntent(ctx, 65000, "INR", map[string]string{"customer_id": "c1"})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.ID != "order_test_1" || intent.ClientToken != "rzp_test_key" || intent.AmountMinor != 65000 {
		t.Fatalf("unexpected intent %+v", intent)
	}

	proof := Proof{
		IntentID:  intent.ID,
		PaymentID: "pay_1",
		Signature: Sign("shh", intent.ID, "pay_1"),
	}
	v, err := gw.Verify(ctx, proof)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.AmountMinor != 65000 || v.Metadata["customer_id"] != "c1" {
		t.Fatalf("unexpected verification %+v", v)
	}
}

func TestVerify_RejectsForgedSignature(t *testing.T) {
	gw, _ := newTestGateway(t)

	tests := []Proof{
		{IntentID: "order_test_1", PaymentID: "pay_1", Signature: Sign("wrong-secret", "order_test_1", "pay_1")},
		{IntentID: "order_test_1", PaymentID: "pay_2", Signature: Sign("shh", "order_test_1", "pay_1")},
		{IntentID: "order_test_1", PaymentID: "pay_1"},
	}
	for _, proof := range tests {
		if _, err := gw.Verify(context.Background(), proof); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("proof %+v: expected ErrInvalidSignature, got %v", proof, err)
		}
	}
}

func TestProviderOutageIsRetryable(t *testing.T) {
	gw, fake := newTestGateway(t)
	fake.status = http.StatusServiceUnavailable

	_, err := gw.CreateIntent(context.Background(), 100, "INR", nil)
	if !apperr.Retryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestRefund(t *testing.T) {
	gw, fake := newTestGateway(t)

	r, err := gw.Refund(context.Background(), "pay_1", 0)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if r.ID != "rfnd_1" || r.Status != "processed" || fake.refunds != 1 {
		t.Fatalf("unexpected refund %+v", r)
	}
}
