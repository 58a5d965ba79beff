package cart

import "github.com/shopspring/decimal"

// ComputeTotal derives a line item's total from its current fields:
// unit price times quantity plus the attached combo bundle. It is pure and
// is re-invoked wholesale on any mutation that could affect the total;
// cached totals are never patched incrementally.
func ComputeTotal(li *LineItem) decimal.Decimal {
	unit := unitPrice(li)
	total := unit.Mul(decimal.NewFromInt(int64(li.Quantity)))
	return total.Add(comboTotal(li.Combos))
}

// unitPrice selects the per-unit price: the deal override for deal items,
// otherwise the first defined of variant discounted price, product
// discounted price, product base price.
func unitPrice(li *LineItem) decimal.Decimal {
	switch li.Kind() {
	case ItemKindDeal:
		return li.Deal.Price
	default:
		if li.Variant != nil && li.Variant.DiscountedPrice != nil {
			return *li.Variant.DiscountedPrice
		}
		if li.Product.DiscountedPrice != nil {
			return *li.Product.DiscountedPrice
		}
		return li.Product.BasePrice
	}
}

func comboTotal(combos []ComboSelection) decimal.Decimal {
	sum := decimal.Zero
	for _, sel := range combos {
		sum = sum.Add(comboUnitPrice(sel).Mul(decimal.NewFromInt(int64(sel.Quantity))))
	}
	return sum
}

// comboUnitPrice prefers a precomputed unit price; otherwise the
// discounted price applies only when the selection carries an actual
// discount, else the list price.
func comboUnitPrice(sel ComboSelection) decimal.Decimal {
	if sel.UnitPrice != nil {
		return *sel.UnitPrice
	}
	if sel.DiscountedPrice != nil {
		if sel.DiscountPercent > 0 || sel.DiscountedPrice.LessThan(sel.ListPrice) {
			return *sel.DiscountedPrice
		}
	}
	return sel.ListPrice
}
