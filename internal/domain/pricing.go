package domain

// PricingPolicy carries the configured rates used to compute order totals.
// Monetary fields are minor currency units; TaxBasisPoints is the tax rate in
// hundredths of a percent (1800 = 18%).
type PricingPolicy struct {
	TaxBasisPoints        int64
	FreeShippingThreshold int64
	FlatShippingFee       int64
}

// ComputeTotals derives the totals for a set of order items under the policy,
// optionally applying a coupon. Totals are computed once at order creation and
// never silently recomputed.
func ComputeTotals(items []OrderItem, coupon *Coupon, policy PricingPolicy) OrderTotals {
	var subtotal int64
	for _, item := range items {
		subtotal += int64(item.Quantity) * item.UnitPrice
	}

	tax := subtotal * policy.TaxBasisPoints / 10000

	shipping := policy.FlatShippingFee
	if subtotal >= policy.FreeShippingThreshold {
		shipping = 0
	}

	discount := int64(0)
	if coupon != nil {
		discount = coupon.DiscountFor(subtotal)
	}

	return OrderTotals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    subtotal + tax + shipping - discount,
	}
}

// DiscountFor returns the discount the coupon grants for the given subtotal.
// The discount is zero below the minimum order amount, clamped to the
// configured maximum, and never exceeds the subtotal itself.
func (c Coupon) DiscountFor(subtotal int64) int64 {
	if subtotal < c.MinOrderAmount {
		return 0
	}

	var discount int64
	switch c.Type {
	case DiscountTypePercentage:
		discount = subtotal * c.Value / 100
	case DiscountTypeFixed:
		discount = c.Value
	default:
		return 0
	}

	if c.MaxDiscount > 0 && discount > c.MaxDiscount {
		discount = c.MaxDiscount
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}
