package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Category values offered by the store.
type Category string

const (
	CategorySports  Category = "sports"
	CategoryCasual  Category = "casual"
	CategoryFormal  Category = "formal"
	CategoryBoots   Category = "boots"
	CategorySandals Category = "sandals"
)

// Product is the item stored in the products table.
//
// Stock is keyed by size so reservations address a size directly instead of by position.
// Sizes keeps the display order.
type Product struct {
	ProductID       string         `dynamodbav:"product_id" json:"id"` // PK
	Name            string         `dynamodbav:"name" json:"name"`
	Category        Category       `dynamodbav:"category" json:"category"`
	PriceMinor      int64          `dynamodbav:"price_minor" json:"price_minor"`
	DiscountPercent int            `dynamodbav:"discount_percent" json:"discount_percent"`
	Sizes           []int          `dynamodbav:"sizes" json:"sizes"`
	Stock           map[string]int `dynamodbav:"stock" json:"stock"`
	Available       bool           `dynamodbav:"available" json:"available"`
	Deleted         bool           `dynamodbav:"deleted,omitempty" json:"deleted,omitempty"`
	CreatedAt       time.Time      `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `dynamodbav:"updated_at" json:"updated_at"`
}

// SizeKey is the stock map key for a size.
func SizeKey(size int) string { return strconv.Itoa(size) }

// Offers reports whether size has a stock counter.
func (p *Product) Offers(size int) bool {
	_, ok := p.Stock[SizeKey(size)]
	return ok
}

// Quantity returns the stock for size, zero when the size is not offered.
func (p *Product) Quantity(size int) int {
	return p.Stock[SizeKey(size)]
}

// Quantities returns stock counts index-aligned with Sizes.
func (p *Product) Quantities() []int {
	out := make([]int, len(p.Sizes))
	for i, s := range p.Sizes {
		out[i] = p.Stock[SizeKey(s)]
	}
	return out
}

// Purchasable is false for soft-deleted or unavailable products.
func (p *Product) Purchasable() bool {
	return p.Available && !p.Deleted
}

// UnitPriceMinor applies the discount to the list price, rounding half up to a whole minor unit.
func (p *Product) UnitPriceMinor() int64 {
	price := decimal.NewFromInt(p.PriceMinor)
	factor := decimal.NewFromInt(int64(100 - p.DiscountPercent)).Div(decimal.NewFromInt(100))
	return price.Mul(factor).Round(0).IntPart()
}

// Validate checks the size/stock invariant: every offered size has exactly one
// non-negative counter and there are no counters for sizes that are not offered.
func (p *Product) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.PriceMinor <= 0 {
		return fmt.Errorf("price must be positive")
	}
	if p.DiscountPercent < 0 || p.DiscountPercent > 100 {
		return fmt.Errorf("discount must be between 0 and 100")
	}
	if len(p.Sizes) == 0 {
		return fmt.Errorf("at least one size is required")
	}
	if len(p.Sizes) != len(p.Stock) {
		return fmt.Errorf("sizes (%d) and stock entries (%d) differ", len(p.Sizes), len(p.Stock))
	}
	seen := map[int]bool{}
	for _, s := range p.Sizes {
		if s <= 0 {
			return fmt.Errorf("size %d is not valid", s)
		}
		if seen[s] {
			return fmt.Errorf("size %d listed twice", s)
		}
		seen[s] = true
		q, ok := p.Stock[SizeKey(s)]
		if !ok {
			return fmt.Errorf("size %d has no stock entry", s)
		}
		if q < 0 {
			return fmt.Errorf("size %d has negative stock", s)
		}
	}
	return nil
}

// NewProduct builds a product from index-aligned sizes and quantities.
func NewProduct(name string, category Category, priceMinor int64, discount int, sizes, quantities []int) (Product, error) {
	if len(sizes) != len(quantities) {
		return Product{}, fmt.Errorf("sizes (%d) and quantities (%d) differ in length", len(sizes), len(quantities))
	}
	stock := make(map[string]int, len(sizes))
	for i, s := range sizes {
		stock[SizeKey(s)] = quantities[i]
	}
	p := Product{
		Name:            name,
		Category:        category,
		PriceMinor:      priceMinor,
		DiscountPercent: discount,
		Sizes:           append([]int(nil), sizes...),
		Stock:           stock,
		Available:       true,
	}
	sort.Ints(p.Sizes)
	return p, p.Validate()
}
