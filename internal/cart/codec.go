package cart

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ovenfresh/storefront-cart/internal/catalog"
	"github.com/shopspring/decimal"
)

// The durable layout is two independently-keyed JSON arrays, one per
// collection. Calendar dates are written as date-only strings; timestamps
// as RFC 3339. Decoding accepts both forms so payloads written by older
// builds round-trip unchanged.

const storedSlotDateFormat = "2006-01-02"

type storedSlot struct {
	Date        string `json:"date"`
	SlotID      string `json:"slotId,omitempty"`
	DisplayTime string `json:"displayTime,omitempty"`
	PinCode     string `json:"pinCode,omitempty"`
}

type storedItem struct {
	ID          string           `json:"id"`
	Product     catalog.Product  `json:"product"`
	Variant     *catalog.Variant `json:"variant,omitempty"`
	Flavor      *catalog.Flavor  `json:"flavor,omitempty"`
	Tier        string           `json:"tier,omitempty"`
	Combos      []ComboSelection `json:"comboSelections,omitempty"`
	Slot        *storedSlot      `json:"deliverySlot,omitempty"`
	CakeMessage string           `json:"cakeMessage,omitempty"`
	Quantity    int              `json:"quantity"`
	TotalPrice  decimal.Decimal  `json:"totalPrice"`
	AddedAt     string           `json:"addedAt"`

	IsDealItem    bool             `json:"isDealItem,omitempty"`
	DealID        string           `json:"dealId,omitempty"`
	DealThreshold *decimal.Decimal `json:"dealThreshold,omitempty"`
	DealPrice     *decimal.Decimal `json:"dealPrice,omitempty"`

	SavedAt string `json:"savedAt,omitempty"`
}

// EncodeActive serializes the active collection for durable storage.
func EncodeActive(items []LineItem) (string, error) {
	stored := make([]storedItem, len(items))
	for i := range items {
		stored[i] = toStored(&items[i], "")
	}
	return marshalStored(stored)
}

// EncodeSaved serializes the saved-for-later collection.
func EncodeSaved(items []SavedItem) (string, error) {
	stored := make([]storedItem, len(items))
	for i := range items {
		stored[i] = toStored(&items[i].LineItem, items[i].SavedAt.UTC().Format(time.RFC3339))
	}
	return marshalStored(stored)
}

func marshalStored(stored []storedItem) (string, error) {
	raw, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("encode cart collection: %w", err)
	}
	return string(raw), nil
}

// DecodeActive parses a durable payload back into line items.
func DecodeActive(raw string) ([]LineItem, error) {
	stored, err := unmarshalStored(raw)
	if err != nil {
		return nil, err
	}
	items := make([]LineItem, len(stored))
	for i := range stored {
		item, _, err := fromStored(&stored[i])
		if err != nil {
			return nil, err
		}
		items[i] = item
	}
	return items, nil
}

// DecodeSaved parses a durable payload back into saved items.
func DecodeSaved(raw string) ([]SavedItem, error) {
	stored, err := unmarshalStored(raw)
	if err != nil {
		return nil, err
	}
	items := make([]SavedItem, len(stored))
	for i := range stored {
		item, savedAt, err := fromStored(&stored[i])
		if err != nil {
			return nil, err
		}
		items[i] = SavedItem{LineItem: item, SavedAt: savedAt}
	}
	return items, nil
}

func unmarshalStored(raw string) ([]storedItem, error) {
	var stored []storedItem
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("decode cart collection: %w", err)
	}
	return stored, nil
}

func toStored(li *LineItem, savedAt string) storedItem {
	clone := cloneItem(li)
	item := storedItem{
		ID:          clone.ID.String(),
		Product:     clone.Product,
		Variant:     clone.Variant,
		Flavor:      clone.Flavor,
		Tier:        clone.Tier,
		Combos:      clone.Combos,
		CakeMessage: clone.CakeMessage,
		Quantity:    clone.Quantity,
		TotalPrice:  clone.TotalPrice,
		AddedAt:     clone.AddedAt.UTC().Format(time.RFC3339),
		SavedAt:     savedAt,
	}
	if clone.Slot != nil {
		item.Slot = &storedSlot{
			Date:        clone.Slot.Date.Format(storedSlotDateFormat),
			SlotID:      clone.Slot.SlotID,
			DisplayTime: clone.Slot.DisplayTime,
			PinCode:     clone.Slot.PinCode,
		}
	}
	if clone.Deal != nil {
		threshold := clone.Deal.Threshold
		price := clone.Deal.Price
		item.IsDealItem = true
		item.DealID = clone.Deal.ID
		item.DealThreshold = &threshold
		item.DealPrice = &price
	}
	return item
}

func fromStored(stored *storedItem) (LineItem, time.Time, error) {
	id, err := uuid.Parse(stored.ID)
	if err != nil {
		return LineItem{}, time.Time{}, fmt.Errorf("parse item id %q: %w", stored.ID, err)
	}
	addedAt, err := parseTimestamp(stored.AddedAt)
	if err != nil {
		return LineItem{}, time.Time{}, fmt.Errorf("parse addedAt: %w", err)
	}

	item := LineItem{
		ID:          id,
		Product:     stored.Product,
		Variant:     stored.Variant,
		Flavor:      stored.Flavor,
		Tier:        stored.Tier,
		Combos:      stored.Combos,
		CakeMessage: stored.CakeMessage,
		Quantity:    stored.Quantity,
		TotalPrice:  stored.TotalPrice,
		AddedAt:     addedAt,
	}
	if stored.Slot != nil {
		date, err := parseSlotDate(stored.Slot.Date)
		if err != nil {
			return LineItem{}, time.Time{}, fmt.Errorf("parse slot date: %w", err)
		}
		item.Slot = &DeliverySlot{
			Date:        date,
			SlotID:      stored.Slot.SlotID,
			DisplayTime: stored.Slot.DisplayTime,
			PinCode:     stored.Slot.PinCode,
		}
	}
	if stored.IsDealItem {
		deal := Deal{ID: stored.DealID}
		if stored.DealThreshold != nil {
			deal.Threshold = *stored.DealThreshold
		}
		if stored.DealPrice != nil {
			deal.Price = *stored.DealPrice
		}
		item.Deal = &deal
	}

	var savedAt time.Time
	if stored.SavedAt != "" {
		savedAt, err = parseTimestamp(stored.SavedAt)
		if err != nil {
			return LineItem{}, time.Time{}, fmt.Errorf("parse savedAt: %w", err)
		}
	}
	return item, savedAt, nil
}

func parseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, value)
}

func parseSlotDate(value string) (time.Time, error) {
	if date, err := time.Parse(storedSlotDateFormat, value); err == nil {
		return date, nil
	}
	// Older payloads stored full timestamps; reduce them to the date.
	stamp, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := stamp.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// CloneItems deep-copies a line item collection. The clone is structural,
// not a serialize-then-parse round trip, so it stays correct even if the
// wire format changes.
func CloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	for i := range items {
		out[i] = cloneItem(&items[i])
	}
	return out
}

// CloneSaved deep-copies a saved-item collection.
func CloneSaved(items []SavedItem) []SavedItem {
	if items == nil {
		return nil
	}
	out := make([]SavedItem, len(items))
	for i := range items {
		out[i] = SavedItem{LineItem: cloneItem(&items[i].LineItem), SavedAt: items[i].SavedAt}
	}
	return out
}

func cloneItem(li *LineItem) LineItem {
	clone := *li
	clone.Product = cloneProduct(li.Product)
	if li.Variant != nil {
		variant := *li.Variant
		variant.DiscountedPrice = cloneDecimal(li.Variant.DiscountedPrice)
		clone.Variant = &variant
	}
	if li.Flavor != nil {
		flavor := *li.Flavor
		clone.Flavor = &flavor
	}
	if li.Combos != nil {
		clone.Combos = make([]ComboSelection, len(li.Combos))
		for i, sel := range li.Combos {
			sel.UnitPrice = cloneDecimal(sel.UnitPrice)
			sel.DiscountedPrice = cloneDecimal(sel.DiscountedPrice)
			clone.Combos[i] = sel
		}
	}
	if li.Slot != nil {
		slot := *li.Slot
		clone.Slot = &slot
	}
	if li.Deal != nil {
		deal := *li.Deal
		clone.Deal = &deal
	}
	return clone
}

func cloneProduct(p catalog.Product) catalog.Product {
	p.DiscountedPrice = cloneDecimal(p.DiscountedPrice)
	return p
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	copied := *d
	return &copied
}
