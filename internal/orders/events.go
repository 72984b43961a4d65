package orders

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderFulfillable   = "OrderFulfillable"
	EventOrderHeld          = "OrderHeld"
)

// ---- Payload tipe per event ----

type ItemPayload struct {
	ProductID      string  `json:"product_id"`
	Qty            int     `json:"qty"`
	UnitPrice      int64   `json:"unit_price"`
	PrescriptionID *string `json:"prescription_id,omitempty"`
}

type OrderPlacedPayload struct {
	OrderID       string        `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	ExternalID    string        `json:"external_id"`
	UserID        string        `json:"user_id"`
	Status        Status        `json:"status"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Items         []ItemPayload `json:"items"`
	Total         int64         `json:"total"`
	Currency      string        `json:"currency"`
}

type StatusChangedPayload struct {
	OrderID       string        `json:"order_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
}

type FulfillmentPayload struct {
	OrderID string `json:"order_id"`
	// AwaitingPrescription lists order lines whose prescription is not verified.
	AwaitingPrescription []string `json:"awaiting_prescription,omitempty"`
	Reason               string   `json:"reason,omitempty"` // e.g. PRESCRIPTION_PENDING
}

func placedPayload(o *Order) OrderPlacedPayload {
	items := make([]ItemPayload, 0, len(o.Items))
	for _, it := range o.Items {
		ip := ItemPayload{ProductID: it.ProductID.String(), Qty: it.Quantity, UnitPrice: it.UnitPrice}
		if it.PrescriptionID != nil {
			s := it.PrescriptionID.String()
			ip.PrescriptionID = &s
		}
		items = append(items, ip)
	}
	p := OrderPlacedPayload{
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		ExternalID:  o.ExternalID,
		UserID:      o.UserID.String(),
		Status:      o.Status,
		Items:       items,
		Total:       o.TotalAmount,
		Currency:    o.Currency,
	}
	if o.Payment != nil {
		p.PaymentMethod = o.Payment.Method
	}
	return p
}
