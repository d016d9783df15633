package order

import (
	"github.com/shopspring/decimal"

	"github.com/safar/storefront-core/internal/config"
	"github.com/safar/storefront-core/internal/models"
)

// Pricer turns a subtotal into the full breakdown. Tax, shipping and
// discount are adjustments on top of the item subtotal; none of them reads
// catalog state.
type Pricer struct {
	TaxRate          decimal.Decimal
	ShippingFlat     decimal.Decimal
	FreeShippingOver decimal.Decimal
}

func NewPricer(cfg config.OrderConfig) Pricer {
	return Pricer{
		TaxRate:          cfg.TaxRate,
		ShippingFlat:     cfg.ShippingFlat,
		FreeShippingOver: cfg.FreeShippingOver,
	}
}

func (p Pricer) Price(subtotal, discount decimal.Decimal) models.Pricing {
	tax := subtotal.Mul(p.TaxRate).Round(2)

	shipping := p.ShippingFlat
	if p.FreeShippingOver.IsPositive() && subtotal.GreaterThanOrEqual(p.FreeShippingOver) {
		shipping = decimal.Zero
	}

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	return models.Pricing{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    subtotal.Add(tax).Add(shipping).Sub(discount),
	}
}
