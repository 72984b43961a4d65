package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound             = errors.New("order not found")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
	ErrInvalidTransition    = errors.New("invalid order status transition")
	ErrPaymentSettled       = errors.New("payment already settled")
	ErrIdempotencyConflict  = errors.New("external id already used by another customer")
	ErrProductUnavailable   = errors.New("product is no longer available")
)

// ShippingAddress is copied into the order, never referenced.
type ShippingAddress struct {
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"required,max=100"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,min=6,max=32"`
	Address    string `json:"address" validate:"required,max=255"`
	City       string `json:"city" validate:"required,max=100"`
	PostalCode string `json:"postal_code,omitempty" validate:"omitempty,max=20"`
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	ExternalID      string          `json:"external_id"`
	UserID          uuid.UUID       `json:"user_id"`
	OrderNumber     string          `json:"order_number"`
	Subtotal        int64           `json:"subtotal"`
	ShippingAmount  int64           `json:"shipping_amount"`
	TotalAmount     int64           `json:"total_amount"`
	Currency        string          `json:"currency"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	Status          Status          `json:"status"`
	FulfillmentHold bool            `json:"fulfillment_hold"`
	Items           []Item          `json:"items"`
	Payment         *Payment        `json:"payment,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Item prices are frozen at checkout.
type Item struct {
	ID             uuid.UUID  `json:"id"`
	OrderID        uuid.UUID  `json:"order_id"`
	ProductID      uuid.UUID  `json:"product_id"`
	ProductName    string     `json:"product_name"`
	PrescriptionID *uuid.UUID `json:"prescription_id,omitempty"`
	Quantity       int        `json:"quantity"`
	UnitPrice      int64      `json:"unit_price"`
	TotalPrice     int64      `json:"total_price"`
}

type Payment struct {
	ID            uuid.UUID     `json:"id"`
	OrderID       uuid.UUID     `json:"order_id"`
	Method        PaymentMethod `json:"payment_method"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`
	Status        PaymentStatus `json:"status"`
	TransactionID *string       `json:"transaction_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Cancellable reports whether the customer may still cancel.
func (o *Order) Cancellable() bool { return CanTransition(o.Status, StatusCancelled) }

// Reprice recomputes line totals and amounts from the items' unit prices.
func (o *Order) Reprice(p Pricing) {
	var subtotal int64
	for i := range o.Items {
		o.Items[i].TotalPrice = o.Items[i].UnitPrice * int64(o.Items[i].Quantity)
		subtotal += o.Items[i].TotalPrice
	}
	q := p.Quote(subtotal)
	o.Subtotal, o.ShippingAmount, o.TotalAmount, o.Currency = q.Subtotal, q.Shipping, q.Total, q.Currency
	if o.Payment != nil {
		o.Payment.Amount = q.Total
		o.Payment.Currency = q.Currency
	}
}

// NewOrderNumber builds the customer-facing reference, e.g. CMD-20250301-1A2B3C4D.
func NewOrderNumber(at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("CMD-%s-%s", at.UTC().Format("20060102"), strings.ToUpper(id.String()[:8]))
}

type Shortage struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.ProductID, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }
