package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/tabsplit/internal/models"
)

// DefaultTipPercent is the tip added on top of every diner's discounted
// subtotal.
const DefaultTipPercent = 10

var hundred = decimal.NewFromInt(100)

// PersonItem is one line of a diner's breakdown.
type PersonItem struct {
	Description string
	Amount      decimal.Decimal // This diner's share of the item
	Shared      bool
}

// PersonSplit is one diner's calculated share of the bill.
type PersonSplit struct {
	DinerID string
	Name    string

	// Subtotal is Σ full unit price × quantity + Σ per-share prices.
	Subtotal decimal.Decimal

	// Discount is this diner's proportional part of the aggregate discount.
	Discount decimal.Decimal

	// Tip is tipPercent of (Subtotal - Discount).
	Tip decimal.Decimal

	// Total = Subtotal - Discount + Tip.
	Total decimal.Decimal

	Items []PersonItem
}

// Bill is the calculated split of a whole session.
type Bill struct {
	Splits   []PersonSplit
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tip      decimal.Decimal
	Total    decimal.Decimal

	// Unassigned is the value of catalog units no diner has taken yet.
	Unassigned decimal.Decimal
}

// DiscountFor returns the aggregate discount on subtotal: subtotal ×
// percentage / 100, limited to the cap when the cap is positive. The
// percentage is clamped to [0, 100].
func DiscountFor(subtotal decimal.Decimal, d models.Discount) decimal.Decimal {
	pct := d.Percentage
	if pct.IsNegative() {
		pct = decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		pct = hundred
	}
	amount := subtotal.Mul(pct).Div(hundred)
	if d.Cap.IsPositive() && amount.GreaterThan(d.Cap) {
		amount = d.Cap
	}
	return amount
}

// CalculateSplit computes how much each diner owes.
// Algorithm:
//   - subtotal_i from the diner's line items
//   - aggregate discount = DiscountFor(Σ subtotal_i), spread in proportion to
//     subtotal_i (the last diner with a subtotal absorbs rounding)
//   - total_i = (subtotal_i - discount_i) × (1 + tipPercent/100)
func CalculateSplit(s models.Session, tipPercent decimal.Decimal) Bill {
	bill := Bill{Splits: make([]PersonSplit, len(s.Diners))}

	last := -1
	for i, diner := range s.Diners {
		split := PersonSplit{DinerID: diner.ID, Name: diner.Name, Subtotal: decimal.Zero}
		for _, item := range diner.SelectedItems {
			amount := item.Amount()
			split.Subtotal = split.Subtotal.Add(amount)
			split.Items = append(split.Items, PersonItem{
				Description: item.Name,
				Amount:      amount,
				Shared:      item.Kind == models.KindShared,
			})
		}
		if split.Subtotal.IsPositive() {
			last = i
		}
		bill.Subtotal = bill.Subtotal.Add(split.Subtotal)
		bill.Splits[i] = split
	}

	bill.Discount = DiscountFor(bill.Subtotal, s.Discount())
	allocated := decimal.Zero
	rate := tipPercent.Div(hundred)

	for i := range bill.Splits {
		split := &bill.Splits[i]
		switch {
		case !split.Subtotal.IsPositive():
			split.Discount = decimal.Zero
		case i == last:
			split.Discount = bill.Discount.Sub(allocated)
		default:
			split.Discount = bill.Discount.Mul(split.Subtotal).Div(bill.Subtotal)
			allocated = allocated.Add(split.Discount)
		}
		net := split.Subtotal.Sub(split.Discount)
		split.Tip = net.Mul(rate)
		split.Total = net.Add(split.Tip)

		bill.Tip = bill.Tip.Add(split.Tip)
		bill.Total = bill.Total.Add(split.Total)
	}

	bill.Unassigned = s.AvailableProducts.Value()
	return bill
}
