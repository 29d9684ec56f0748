package orders

import "github.com/shopspring/decimal"

type Pricing struct {
	TaxRate     decimal.Decimal
	ShippingFee decimal.Decimal
}

func DefaultPricing() Pricing {
	return Pricing{
		TaxRate:     decimal.NewFromFloat(0.10),
		ShippingFee: decimal.NewFromInt(10),
	}
}

type Totals struct {
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	ShippingFee decimal.Decimal
	Total       decimal.Decimal
}

// Compute derives tax and total from an item subtotal. Tax is rounded half
// up to cents.
func (p Pricing) Compute(subtotal decimal.Decimal) Totals {
	tax := subtotal.Mul(p.TaxRate).Round(2)
	return Totals{
		Subtotal:    subtotal,
		Tax:         tax,
		ShippingFee: p.ShippingFee,
		Total:       subtotal.Add(tax).Add(p.ShippingFee),
	}
}
