package cart

import (
	"errors"

	"github.com/ariefcatur/go-pharmacy-store/internal/catalog"
	"github.com/google/uuid"
)

var (
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrProductUnavailable = errors.New("product is not available")
	ErrLineNotFound       = errors.New("product is not in the cart")
)

// Line is a persisted cart row joined with the live product.
type Line struct {
	ID             uuid.UUID       `json:"id"`
	ProductID      uuid.UUID       `json:"product_id"`
	Quantity       int             `json:"quantity"`
	PrescriptionID *uuid.UUID      `json:"prescription_id,omitempty"`
	Product        catalog.Product `json:"product"`
}

// Subtotal uses the current product price, never a stored one.
func (l Line) Subtotal() int64 { return l.Product.Price * int64(l.Quantity) }

type Cart struct {
	UserID uuid.UUID `json:"user_id"`
	Lines  []Line    `json:"lines"`
}

func (c *Cart) TotalItems() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) TotalPrice() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.Subtotal()
	}
	return total
}

func (c *Cart) IsEmpty() bool { return len(c.Lines) == 0 }

func (c *Cart) Find(productID uuid.UUID) (Line, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return Line{}, false
}
