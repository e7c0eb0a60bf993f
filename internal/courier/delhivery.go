// Package courier checks whether a postal code can be delivered to.
package courier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
)

// Delhivery queries the Delhivery pin-code serviceability endpoint.
type Delhivery struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewDelhivery returns a client. A nil httpClient gets a 5s timeout default.
func NewDelhivery(apiKey, baseURL string, httpClient *http.Client) *Delhivery {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Delhivery{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type pinCodeResponse struct {
	DeliveryCodes []json.RawMessage `json:"delivery_codes"`
}

// Serviceable reports whether the courier delivers to pincode.
func (d *Delhivery) Serviceable(ctx context.Context, pincode string) (bool, error) {
	pincode = strings.TrimSpace(pincode)
	if pincode == "" {
		return false, apperr.Validation("pincode is required")
	}

	u := d.baseURL + "/c/api/pin-codes/json/?filter_codes=" + url.QueryEscape(pincode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, apperr.Unavailable("delhivery pin-codes", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, apperr.Unavailable("delhivery pin-codes", fmt.Errorf("status %d", resp.StatusCode))
	}

	var out pinCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, apperr.Unavailable("decode pin-codes", err)
	}
	return len(out.DeliveryCodes) > 0, nil
}
