package cart

import (
	"fmt"
	"sort"
	"strings"
)

// Verdict classifies a candidate addition against the active collection.
type Verdict int

const (
	// VerdictDistinct means no active item shares the candidate's identity.
	VerdictDistinct Verdict = iota
	// VerdictExactDuplicate means an active item matches on all seven keys.
	VerdictExactDuplicate
	// VerdictSlotVariant means an active item matches on everything except
	// its delivery slot.
	VerdictSlotVariant
)

const slotDateKeyFormat = "2006-01-02"

// identityKey is the 7-field tuple deciding whether two non-deal line
// items represent the same purchase intent.
type identityKey struct {
	productRef  string
	variantRef  string
	flavorRef   string
	tier        string
	comboKey    string
	slotDateKey string
	slotIDKey   string
	hasSlotDate bool
	hasSlotID   bool
}

func identityOf(li *LineItem) identityKey {
	key := identityKey{
		productRef: li.Product.ID,
		tier:       li.Tier,
		comboKey:   comboKey(li.Combos),
	}
	if li.Variant != nil {
		key.variantRef = li.Variant.ID
	}
	if li.Flavor != nil {
		key.flavorRef = li.Flavor.ID
	}
	if li.Slot != nil {
		if !li.Slot.Date.IsZero() {
			key.slotDateKey = li.Slot.Date.Format(slotDateKeyFormat)
			key.hasSlotDate = true
		}
		// Slot identity falls back to the display time when the slot id
		// is missing.
		switch {
		case li.Slot.SlotID != "":
			key.slotIDKey = li.Slot.SlotID
			key.hasSlotID = true
		case li.Slot.DisplayTime != "":
			key.slotIDKey = li.Slot.DisplayTime
			key.hasSlotID = true
		}
	}
	return key
}

// comboKey normalizes combo selections to (addOnId, quantity) pairs sorted
// by addOnId then quantity. Price fields never participate in identity.
func comboKey(combos []ComboSelection) string {
	if len(combos) == 0 {
		return ""
	}
	pairs := make([]string, len(combos))
	sorted := make([]ComboSelection, len(combos))
	copy(sorted, combos)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].AddOnID != sorted[j].AddOnID {
			return sorted[i].AddOnID < sorted[j].AddOnID
		}
		return sorted[i].Quantity < sorted[j].Quantity
	})
	for i, sel := range sorted {
		pairs[i] = fmt.Sprintf("%s:%d", sel.AddOnID, sel.Quantity)
	}
	return strings.Join(pairs, "|")
}

func (k identityKey) baseEqual(other identityKey) bool {
	return k.productRef == other.productRef &&
		k.variantRef == other.variantRef &&
		k.flavorRef == other.flavorRef &&
		k.tier == other.tier &&
		k.comboKey == other.comboKey
}

// slotEqual applies the lenient tie-break: a missing key counts as "not
// necessarily different" only when it is missing on both sides; any
// asymmetry counts as different.
func (k identityKey) slotEqual(other identityKey) bool {
	if k.hasSlotDate != other.hasSlotDate || k.hasSlotID != other.hasSlotID {
		return false
	}
	if k.hasSlotDate && k.slotDateKey != other.slotDateKey {
		return false
	}
	if k.hasSlotID && k.slotIDKey != other.slotIDKey {
		return false
	}
	return true
}

// Classify resolves a non-deal candidate against the active collection.
// The second return is the colliding item for the non-distinct verdicts.
// Deal candidates never enter identity resolution; they collide on deal id
// alone (handled by the Store).
func Classify(candidate *LineItem, active []LineItem) (Verdict, *LineItem) {
	if candidate.Kind() == ItemKindDeal {
		return VerdictDistinct, nil
	}
	candidateKey := identityOf(candidate)

	var slotVariant *LineItem
	for i := range active {
		item := &active[i]
		if item.Kind() == ItemKindDeal {
			continue
		}
		existingKey := identityOf(item)
		if !candidateKey.baseEqual(existingKey) {
			continue
		}
		if candidateKey.slotEqual(existingKey) {
			return VerdictExactDuplicate, item
		}
		if slotVariant == nil {
			slotVariant = item
		}
	}
	if slotVariant != nil {
		return VerdictSlotVariant, slotVariant
	}
	return VerdictDistinct, nil
}
