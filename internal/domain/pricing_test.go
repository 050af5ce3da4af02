package domain

import "testing"

var testPolicy = PricingPolicy{
	TaxBasisPoints:        1800,
	FreeShippingThreshold: 100000,
	FlatShippingFee:       5000,
}

func itemsWorth(amounts ...int64) []OrderItem {
	items := make([]OrderItem, 0, len(amounts))
	for _, amount := range amounts {
		items = append(items, OrderItem{ProductID: "p", Quantity: 1, UnitPrice: amount, Total: amount})
	}
	return items
}

func TestComputeTotalsInvariant(t *testing.T) {
	cases := []struct {
		name   string
		items  []OrderItem
		coupon *Coupon
	}{
		{name: "no coupon below free shipping", items: itemsWorth(20000, 15000)},
		{name: "no coupon above free shipping", items: itemsWorth(80000, 40000)},
		{name: "percentage coupon", items: itemsWorth(50000), coupon: &Coupon{Type: DiscountTypePercentage, Value: 10}},
		{name: "fixed coupon", items: itemsWorth(50000), coupon: &Coupon{Type: DiscountTypeFixed, Value: 7500}},
		{name: "capped coupon", items: itemsWorth(200000), coupon: &Coupon{Type: DiscountTypePercentage, Value: 50, MaxDiscount: 10000}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			totals := ComputeTotals(tc.items, tc.coupon, testPolicy)
			if got := totals.Subtotal + totals.Tax + totals.Shipping - totals.Discount; got != totals.Total {
				t.Fatalf("total %d does not equal subtotal+tax+shipping-discount %d", totals.Total, got)
			}
		})
	}
}

func TestComputeTotalsTaxAndShipping(t *testing.T) {
	totals := ComputeTotals(itemsWorth(50000), nil, testPolicy)
	if totals.Subtotal != 50000 {
		t.Fatalf("subtotal = %d, want 50000", totals.Subtotal)
	}
	if totals.Tax != 9000 {
		t.Fatalf("tax = %d, want 9000", totals.Tax)
	}
	if totals.Shipping != 5000 {
		t.Fatalf("shipping = %d, want flat fee 5000", totals.Shipping)
	}

	free := ComputeTotals(itemsWorth(100000), nil, testPolicy)
	if free.Shipping != 0 {
		t.Fatalf("shipping = %d at threshold, want 0", free.Shipping)
	}
}

func TestCouponDiscountFor(t *testing.T) {
	cases := []struct {
		name     string
		coupon   Coupon
		subtotal int64
		want     int64
	}{
		{
			name:     "below minimum order amount",
			coupon:   Coupon{Type: DiscountTypePercentage, Value: 20, MinOrderAmount: 50000},
			subtotal: 40000,
			want:     0,
		},
		{
			name:     "percentage applied",
			coupon:   Coupon{Type: DiscountTypePercentage, Value: 20},
			subtotal: 50000,
			want:     10000,
		},
		{
			name:     "percentage clamped to max",
			coupon:   Coupon{Type: DiscountTypePercentage, Value: 20, MaxDiscount: 4000},
			subtotal: 50000,
			want:     4000,
		},
		{
			name:     "fixed amount",
			coupon:   Coupon{Type: DiscountTypeFixed, Value: 2500},
			subtotal: 50000,
			want:     2500,
		},
		{
			name:     "fixed amount never exceeds subtotal",
			coupon:   Coupon{Type: DiscountTypeFixed, Value: 90000},
			subtotal: 50000,
			want:     50000,
		},
		{
			name:     "unknown type yields nothing",
			coupon:   Coupon{Type: DiscountType("bogus"), Value: 20},
			subtotal: 50000,
			want:     0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.coupon.DiscountFor(tc.subtotal); got != tc.want {
				t.Fatalf("DiscountFor(%d) = %d, want %d", tc.subtotal, got, tc.want)
			}
		})
	}
}
