// internal/domain/cart/entity.go
package cart

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxQuantity caps the quantity of a single line item
const MaxQuantity = 9999

// LineItem is one distinct purchasable unit in a cart. Name, price and image
// are denormalized when the item is added and never re-checked on read.
type LineItem struct {
	ProductID   int64  `json:"product_id"`
	VariationID *int64 `json:"variation_id,omitempty"`
	Name        string `json:"name"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Image       string `json:"image,omitempty"`
	Attributes  string `json:"attributes,omitempty"`
}

// SameItem reports whether two line items share product, variation and attributes
func (li LineItem) SameItem(other LineItem) bool {
	if li.ProductID != other.ProductID || li.Attributes != other.Attributes {
		return false
	}
	if li.VariationID == nil || other.VariationID == nil {
		return li.VariationID == nil && other.VariationID == nil
	}
	return *li.VariationID == *other.VariationID
}

// Validate checks the fields required to put an item in a cart
func (li LineItem) Validate() error {
	if li.ProductID <= 0 {
		return fmt.Errorf("%w: product_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(li.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(li.UnitPrice) == "" {
		return fmt.Errorf("%w: unit_price is required", ErrInvalidInput)
	}
	if _, err := parsePrice(li.UnitPrice); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if li.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	if li.Quantity > MaxQuantity {
		return fmt.Errorf("%w: quantity must be at most %d", ErrInvalidInput, MaxQuantity)
	}
	return nil
}

// Totals holds the aggregates derived from a cart on every read
type Totals struct {
	Total     string `json:"total"`
	ItemCount int    `json:"item_count"`
	LineCount int    `json:"line_count"`
}

// CartResponse is the shape returned by every cart endpoint
type CartResponse struct {
	Items []LineItem `json:"items"`
	Totals
}

// NewCartResponse pairs items with their recomputed totals
func NewCartResponse(items []LineItem) *CartResponse {
	if items == nil {
		items = []LineItem{}
	}
	return &CartResponse{
		Items:  items,
		Totals: CalculateTotals(items),
	}
}

// AddItemRequest represents add to cart request
type AddItemRequest struct {
	ProductID   int64  `json:"product_id" binding:"required,min=1"`
	VariationID *int64 `json:"variation_id"`
	Name        string `json:"name" binding:"required"`
	UnitPrice   string `json:"unit_price" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,min=1,max=9999"`
	Image       string `json:"image"`
	Attributes  string `json:"attributes"`
}

// LineItem converts the request into the stored model. A zero variation_id
// means no variation.
func (r *AddItemRequest) LineItem() LineItem {
	variationID := r.VariationID
	if variationID != nil && *variationID == 0 {
		variationID = nil
	}

	return LineItem{
		ProductID:   r.ProductID,
		VariationID: variationID,
		Name:        strings.TrimSpace(r.Name),
		UnitPrice:   strings.TrimSpace(r.UnitPrice),
		Quantity:    r.Quantity,
		Image:       r.Image,
		Attributes:  r.Attributes,
	}
}

// UpdateQuantityRequest represents update cart item request.
// Quantity has no binding floor so the store reports values below 1 itself.
type UpdateQuantityRequest struct {
	Quantity   *int    `json:"quantity" binding:"required"`
	Attributes *string `json:"attributes"`
}

// CartEvent is published after every successful cart mutation
type CartEvent struct {
	Type    string `json:"type"`
	CartKey string `json:"cart_key"`
}

// Cart event types
const (
	EventUpdated = "updated"
	EventCleared = "cleared"
)

// parsePrice accepts plain decimal strings such as "10", "5.5" or "19.99"
func parsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, "eE") {
		return decimal.Zero, fmt.Errorf("unit_price %q is not a decimal", raw)
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unit_price %q is not a decimal", raw)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("unit_price %q must not be negative", raw)
	}
	return price, nil
}
