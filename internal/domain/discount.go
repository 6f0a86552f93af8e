package domain

// ComputeDiscount returns the discount a coupon grants on an order amount.
// Amounts are whole IDR; percentage math uses integer division so fractions
// round down. The result is capped at MaximumDiscount (percentage coupons)
// and at the order amount, so the final price can never go negative.
func ComputeDiscount(c *Coupon, orderAmount int64) int64 {
	var discount int64
	switch c.Type {
	case DiscountPercentage:
		discount = orderAmount * c.Value / 100
		if c.MaximumDiscount > 0 && discount > c.MaximumDiscount {
			discount = c.MaximumDiscount
		}
	case DiscountFixed:
		discount = c.Value
	}
	if discount > orderAmount {
		discount = orderAmount
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}
