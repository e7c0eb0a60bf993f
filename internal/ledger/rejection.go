package ledger

import "fmt"

// Reason classifies why an order was not committed.
type Reason string

const (
	ReasonPaymentVerificationFailed Reason = "PaymentVerificationFailed"
	ReasonAmountMismatch            Reason = "AmountMismatch"
	ReasonInsufficientStock         Reason = "InsufficientStock"
	ReasonSizeNotOffered            Reason = "SizeNotOffered"
	ReasonProductUnavailable        Reason = "ProductUnavailable"
)

// Rejection is an expected business outcome, not a fault. Item is the offending line when
// the rejection is about one.
type Rejection struct {
	Reason  Reason       `json:"reason"`
	Message string       `json:"message"`
	Item    *LineRequest `json:"item,omitempty"`
}

func (r *Rejection) Error() string {
	if r.Item != nil {
		return fmt.Sprintf("%s: %s (product %s size %d qty %d)", r.Reason, r.Message, r.Item.ProductID, r.Item.Size, r.Item.Quantity)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

func reject(reason Reason, item *LineRequest, msg string) *Rejection {
	r := &Rejection{Reason: reason, Message: msg}
	if item != nil {
		cp := *item
		r.Item = &cp
	}
	return r
}
