package bulkimport

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-pharmacy-store/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Status string

const (
	StatusFound           Status = "found"
	StatusNotFound        Status = "not_found"
	StatusOutOfStock      Status = "out_of_stock"
	StatusInvalidQuantity Status = "invalid_quantity"
)

// Resolution is a row with its catalog match. Product fields are set for
// found and out_of_stock rows.
type Resolution struct {
	Row
	Status               Status     `json:"status"`
	ProductID            *uuid.UUID `json:"product_id,omitempty"`
	Name                 string     `json:"name,omitempty"`
	Price                int64      `json:"price,omitempty"`
	StockQuantity        int        `json:"stock_quantity"`
	RequiresPrescription bool       `json:"requires_prescription,omitempty"`
}

type ProductResolver interface {
	ResolveBySKU(ctx context.Context, skus []string) ([]catalog.Product, error)
}

type Resolver struct {
	products ProductResolver
}

func NewResolver(products ProductResolver) *Resolver {
	return &Resolver{products: products}
}

// Resolve looks every sku up in a single catalog query and classifies rows
// independently of each other.
func (r *Resolver) Resolve(ctx context.Context, rows []Row) ([]Resolution, error) {
	seen := make(map[string]bool, len(rows))
	skus := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.SKU != "" && !seen[row.SKU] {
			seen[row.SKU] = true
			skus = append(skus, row.SKU)
		}
	}

	bySKU := map[string]catalog.Product{}
	if len(skus) > 0 {
		found, err := r.products.ResolveBySKU(ctx, skus)
		if err != nil {
			return nil, fmt.Errorf("bulkimport: resolve skus: %w", err)
		}
		for _, p := range found {
			bySKU[p.SKU] = p
		}
	}

	out := make([]Resolution, 0, len(rows))
	for _, row := range rows {
		out = append(out, classify(row, bySKU))
	}
	return out, nil
}

func classify(row Row, bySKU map[string]catalog.Product) Resolution {
	res := Resolution{Row: row}
	p, ok := bySKU[row.SKU]
	if !ok {
		res.Status = StatusNotFound
		return res
	}
	id := p.ID
	res.ProductID = &id
	res.Name = p.NameFR
	res.Price = p.Price
	res.StockQuantity = p.StockQuantity
	res.RequiresPrescription = p.RequiresPrescription

	switch {
	case row.Quantity < 1:
		res.Status = StatusInvalidQuantity
	case p.StockQuantity < row.Quantity:
		res.Status = StatusOutOfStock
	default:
		res.Status = StatusFound
	}
	return res
}

// CartAdder is satisfied by *cart.Session.
type CartAdder interface {
	AddItem(ctx context.Context, productID uuid.UUID, qty int, prescriptionID *uuid.UUID) error
}

type RowError struct {
	Line  int    `json:"line"`
	SKU   string `json:"sku"`
	Error string `json:"error"`
}

type CommitResult struct {
	// Added counts product types, not units.
	Added  int        `json:"added"`
	Failed []RowError `json:"failed"`
}

// Commit adds the found rows to the cart one after another. A refused row is
// reported and the rest continue; only a missing user aborts the batch.
func Commit(ctx context.Context, c CartAdder, rows []Resolution) (CommitResult, error) {
	res := CommitResult{Failed: []RowError{}}
	for _, row := range rows {
		if row.Status != StatusFound || row.ProductID == nil {
			continue
		}
		if err := c.AddItem(ctx, *row.ProductID, row.Quantity, nil); err != nil {
			if errors.Is(err, identity.ErrAuthRequired) {
				return res, err
			}
			log.Debug().Err(err).Str("sku", row.SKU).Int("line", row.Line).Msg("bulkimport: row not added")
			res.Failed = append(res.Failed, RowError{Line: row.Line, SKU: row.SKU, Error: err.Error()})
			continue
		}
		res.Added++
	}
	return res, nil
}
