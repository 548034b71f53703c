package cart

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
)

// Round2 rounds half-up to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// CustomizationTotal sums the price adjustments of the customizations.
func CustomizationTotal(customizations []Customization) decimal.Decimal {
	total := decimal.Zero
	for _, c := range customizations {
		total = total.Add(c.PriceAdjustment)
	}
	return total
}

// EffectivePrice is base price less the percentage discount plus customizations, rounded once.
func EffectivePrice(basePrice, discountPercent, customizationTotal decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(clampPercent(discountPercent).Div(hundred))
	return Round2(basePrice.Mul(factor).Add(customizationTotal))
}

// LineTotal prices a line: effective price plus undiscounted add-ons, per unit of quantity.
func LineTotal(item LineItem) decimal.Decimal {
	qty := decimal.NewFromInt(int64(item.Quantity))
	total := item.EffectiveUnitPrice.Mul(qty)
	for _, addOn := range item.AddOns {
		total = total.Add(addOn.Price.Mul(qty))
	}
	return total
}

// Totals derives the cart total and item count from the lines.
func Totals(items []LineItem) (decimal.Decimal, int) {
	total := decimal.Zero
	count := 0
	for _, item := range items {
		total = total.Add(LineTotal(item))
		count += item.Quantity
	}
	return Round2(total), count
}

func clampPercent(p decimal.Decimal) decimal.Decimal {
	switch {
	case p.IsNegative():
		return decimal.Zero
	case p.GreaterThan(hundred):
		return hundred
	default:
		return p
	}
}

func (i *LineItem) reprice() {
	i.CustomizationTotal = CustomizationTotal(i.Customizations)
	i.EffectiveUnitPrice = EffectivePrice(i.BasePrice, i.DiscountPercent, i.CustomizationTotal)
}

func (s *CartState) recompute() {
	s.Total, s.ItemCount = Totals(s.Items)
}
