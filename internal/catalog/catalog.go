// Package catalog defines the read-only collaborator surfaces the cart
// engine consumes: the product/variant catalog and the delivery-slot
// availability service. Both are owned by other systems; the engine only
// holds snapshots of what they return.
package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog snapshot a line item carries.
type Product struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	BasePrice       decimal.Decimal  `json:"basePrice"`
	DiscountedPrice *decimal.Decimal `json:"discountedPrice,omitempty"`
}

// Variant is a purchasable configuration of a product, e.g. a size.
type Variant struct {
	ID              string           `json:"id"`
	Label           string           `json:"label"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discountedPrice,omitempty"`
}

// Flavor further differentiates a product without changing its price.
type Flavor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Slot is a reserved delivery window as returned by the availability
// service. Date carries calendar-date precision only.
type Slot struct {
	Date        time.Time `json:"date"`
	SlotID      string    `json:"slotId"`
	DisplayTime string    `json:"displayTime"`
}

// ProductSource resolves catalog identities. Lookups are assumed cached by
// the implementation; the engine calls them synchronously.
type ProductSource interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetVariant(ctx context.Context, productID, variantID string) (*Variant, error)
}

// SlotSource finds replacement delivery slots. A nil slot with a nil error
// means no slot is available after the given date.
type SlotSource interface {
	FindNextAvailableSlot(ctx context.Context, after time.Time, excludeSlotID string) (*Slot, error)
}
