package validation

import (
	"github.com/imrishuroy/go-footwear-checkout/internal/ledger"
	"github.com/imrishuroy/go-footwear-checkout/internal/payment"
)

// SignupRequest is the payload for POST /auth/signup and POST /admin/signup.
type SignupRequest struct {
	FullName string `json:"fullName" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Mobile   string `json:"mobile" validate:"required,numeric,len=10"`
	Password string `json:"password" validate:"required,min=8,max=72"` // bcrypt ignores bytes past 72
}

// LoginRequest is the payload for POST /auth/login and POST /admin/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AddressRequest is the payload for POST /addresses.
type AddressRequest struct {
	FullName   string `json:"fullName" validate:"required,max=100"`
	Phone      string `json:"phone" validate:"required,numeric,min=10,max=13"`
	Street     string `json:"street" validate:"required,max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"required,max=100"`
	PostalCode string `json:"postalCode" validate:"required,pincode"`
	Country    string `json:"country" validate:"required,max=60"`
	IsDefault  bool   `json:"isDefault"`
}

// AddressUpdateRequest is the payload for PUT /addresses/:id. Omitted fields are kept.
type AddressUpdateRequest struct {
	FullName   string `json:"fullName" validate:"omitempty,max=100"`
	Phone      string `json:"phone" validate:"omitempty,numeric,min=10,max=13"`
	Street     string `json:"street" validate:"omitempty,max=200"`
	City       string `json:"city" validate:"omitempty,max=100"`
	State      string `json:"state" validate:"omitempty,max=100"`
	PostalCode string `json:"postalCode" validate:"omitempty,pincode"`
	Country    string `json:"country" validate:"omitempty,max=60"`
	IsDefault  *bool  `json:"isDefault"`
}

// PincodeRequest is the payload for POST /delivery/check-pincode.
type PincodeRequest struct {
	Pincode string `json:"pincode" validate:"required,pincode"`
}

// StartCheckoutRequest is the payload for POST /checkout/start.
type StartCheckoutRequest struct {
	AddressID string               `json:"addressId" validate:"required"`
	Items     []ledger.LineRequest `json:"items" validate:"required,min=1,max=20,dive"`
}

// CompleteCheckoutRequest is the payload for POST /checkout/complete. TotalAmount is the
// total the client displayed, in minor units; it is only compared, never trusted.
type CompleteCheckoutRequest struct {
	PaymentProof payment.Proof        `json:"paymentProof" validate:"required"`
	AddressID    string               `json:"addressId" validate:"required"`
	Items        []ledger.LineRequest `json:"items" validate:"required,min=1,max=20,dive"`
	TotalAmount  int64                `json:"totalAmount" validate:"gte=0"`
}

// StatusRequest is the payload for POST /admin/orders/:id/status.
type StatusRequest struct {
	Status string `json:"status" validate:"required,orderstatus"`
}

// ProductRequest is the payload for POST /admin/products and PUT /admin/products/:id.
// Sizes and Quantities are index-aligned.
type ProductRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Category        string `json:"category" validate:"required,oneof=sports casual formal boots sandals"`
	Price           int64  `json:"price" validate:"required,gt=0"`
	DiscountPercent int    `json:"discountPercent" validate:"gte=0,lte=100"`
	Sizes           []int  `json:"sizes" validate:"required,min=1,unique,dive,shoesize"`
	Quantities      []int  `json:"quantities" validate:"required,min=1,dive,gte=0"`
	Available       *bool  `json:"available"`
}

// AvailabilityRequest is the payload for PUT /admin/products/:id/availability.
type AvailabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

// StockRequest is the payload for PUT /admin/products/:id/stock.
type StockRequest struct {
	Size     int  `json:"size" validate:"required,shoesize"`
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}
