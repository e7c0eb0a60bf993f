package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-footwear-checkout/internal/orders"
)

// Shoe sizes accepted by the catalog (UK sizing).
const (
	MinShoeSize = 3
	MaxShoeSize = 15
)

// New returns a configured validator with the storefront's custom tags registered:
//
//	shoesize    integer between MinShoeSize and MaxShoeSize
//	pincode     six-digit Indian postal code, first digit non-zero
//	orderstatus one of the enumerated order statuses
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report errors with JSON field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("shoesize", validShoeSize)
	_ = v.RegisterValidation("pincode", validPincode)
	_ = v.RegisterValidation("orderstatus", validOrderStatus)

	v.RegisterStructValidation(productStructValidation, ProductRequest{})

	return v
}

func validShoeSize(fl validatorv10.FieldLevel) bool {
	size := fl.Field().Int()
	return size >= MinShoeSize && size <= MaxShoeSize
}

func validPincode(fl validatorv10.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 6 || s[0] == '0' {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validOrderStatus(fl validatorv10.FieldLevel) bool {
	_, err := orders.ParseStatus(fl.Field().String())
	return err == nil
}

// productStructValidation verifies every offered size has exactly one quantity.
func productStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(ProductRequest)
	if len(req.Sizes) != len(req.Quantities) {
		sl.ReportError(req.Quantities, "quantities", "Quantities", "len_match_sizes", "")
	}
}
