package orders

type Pricing struct {
	FreeShippingThreshold int64
	ShippingFee           int64
	Currency              string
}

func DefaultPricing() Pricing {
	return Pricing{FreeShippingThreshold: 50000, ShippingFee: 5000, Currency: "XAF"}
}

type Quote struct {
	Subtotal int64  `json:"subtotal"`
	Shipping int64  `json:"shipping"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

// Quote applies free shipping from the threshold upward, inclusive.
func (p Pricing) Quote(subtotal int64) Quote {
	shipping := p.ShippingFee
	if subtotal >= p.FreeShippingThreshold {
		shipping = 0
	}
	return Quote{Subtotal: subtotal, Shipping: shipping, Total: subtotal + shipping, Currency: p.Currency}
}
