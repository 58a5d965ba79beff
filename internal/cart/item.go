// Package cart implements the shopping-cart consistency engine: the active
// and saved-for-later collections, identity resolution for candidate
// additions, derived pricing, and persistence into durable storage.
package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/ovenfresh/storefront-cart/internal/catalog"
	"github.com/shopspring/decimal"
)

// ItemKind discriminates deal-priced line items from standard ones.
type ItemKind int

const (
	ItemKindStandard ItemKind = iota
	ItemKindDeal
)

// ComboSelection is an add-on bundled onto a line item with its own
// quantity and pricing.
type ComboSelection struct {
	AddOnID         string           `json:"addOnId" validate:"required"`
	Quantity        int              `json:"quantity" validate:"gt=0"`
	UnitPrice       *decimal.Decimal `json:"unitPrice,omitempty"`
	ListPrice       decimal.Decimal  `json:"listPrice"`
	DiscountedPrice *decimal.Decimal `json:"discountedPrice,omitempty"`
	DiscountPercent float64          `json:"discountPercent,omitempty"`
}

// DeliverySlot is a reserved fulfillment window. Date carries calendar-date
// precision only; PinCode records the serviceability area the slot was
// booked against.
type DeliverySlot struct {
	Date        time.Time `json:"date"`
	SlotID      string    `json:"slotId"`
	DisplayTime string    `json:"displayTime"`
	PinCode     string    `json:"pinCode,omitempty"`
}

// Expired reports whether the slot's date is more than one full calendar
// day in the past. A slot dated yesterday, today, or in the future is
// never expired: the one-day grace absorbs timezone and client-clock skew
// instead of discarding a valid reservation.
func (s *DeliverySlot) Expired(now time.Time) bool {
	if s == nil || s.Date.IsZero() {
		return false
	}
	return daysBetween(s.Date, now) < -1
}

// daysBetween returns the signed calendar-day difference a-b, ignoring
// time-of-day on both sides.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	at := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bt := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(at.Sub(bt) / (24 * time.Hour))
}

// Deal is the promotional override attached to a deal line item. The item
// stays in the cart only while the aggregate cart value meets Threshold.
type Deal struct {
	ID        string          `json:"id"`
	Threshold decimal.Decimal `json:"threshold"`
	Price     decimal.Decimal `json:"price"`
}

// LineItem is one purchasable configuration and quantity in the active
// cart. TotalPrice is a derived cache; ComputeTotal is the source of truth.
type LineItem struct {
	ID          uuid.UUID
	Product     catalog.Product
	Variant     *catalog.Variant
	Flavor      *catalog.Flavor
	Tier        string
	Combos      []ComboSelection
	Slot        *DeliverySlot
	CakeMessage string
	Quantity    int
	TotalPrice  decimal.Decimal
	AddedAt     time.Time

	// Deal is nil for standard items; non-nil marks a deal item with
	// quantity pinned to 1.
	Deal *Deal
}

// Kind reports the item's variant tag.
func (li *LineItem) Kind() ItemKind {
	if li.Deal != nil {
		return ItemKindDeal
	}
	return ItemKindStandard
}

// Name is the display name used in user-facing notices.
func (li *LineItem) Name() string {
	name := li.Product.Name
	if li.Variant != nil && li.Variant.Label != "" {
		name += " (" + li.Variant.Label + ")"
	}
	return name
}

// SavedItem is a line item parked outside the active cart. Saved items are
// exempt from duplicate detection, pricing recomputation, slot expiry, and
// deal eligibility passes.
type SavedItem struct {
	LineItem
	SavedAt time.Time
}
