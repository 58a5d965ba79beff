package cart

// RepairDuplicates collapses items that violate the uniqueness invariants:
// non-deal items sharing the full identity tuple are merged into the
// earliest-added one with quantities summed, and extra items for an
// already-present deal id are dropped. Such items can only enter storage
// through an older build; the pass is idempotent, so re-running it on a
// clean collection returns it unchanged.
func RepairDuplicates(items []LineItem) ([]LineItem, int) {
	if len(items) < 2 {
		return items, 0
	}

	kept := make([]LineItem, 0, len(items))
	dealSeen := map[string]struct{}{}
	merged := 0

	for i := range items {
		item := &items[i]

		if item.Kind() == ItemKindDeal {
			if _, ok := dealSeen[item.Deal.ID]; ok {
				merged++
				continue
			}
			dealSeen[item.Deal.ID] = struct{}{}
			kept = append(kept, *item)
			continue
		}

		key := identityOf(item)
		collided := false
		for j := range kept {
			existing := &kept[j]
			if existing.Kind() == ItemKindDeal {
				continue
			}
			existingKey := identityOf(existing)
			if key.baseEqual(existingKey) && key.slotEqual(existingKey) {
				existing.Quantity += item.Quantity
				existing.TotalPrice = ComputeTotal(existing)
				merged++
				collided = true
				break
			}
		}
		if !collided {
			kept = append(kept, *item)
		}
	}

	return kept, merged
}
