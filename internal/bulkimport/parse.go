// Package bulkimport turns a customer's CSV of (sku, quantity) pairs into
// catalog matches and, on request, cart lines.
package bulkimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const MaxRows = 500

var (
	ErrMissingColumn = errors.New("csv must have sku and quantity columns")
	ErrNoRows        = errors.New("csv has no rows with a sku")
	ErrTooManyRows   = errors.New("csv has too many rows")
)

// Row is one parsed line. Line is the 1-based line number in the file.
type Row struct {
	Line     int    `json:"line"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Parse reads a headed CSV. Header names are matched case-insensitively and
// may appear in any order. Rows without a sku are dropped; an unreadable
// quantity is kept as 0 so the row can be reported.
func Parse(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("bulkimport: read header: %w", err)
	}
	skuCol, qtyCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))) {
		case "sku":
			skuCol = i
		case "quantity", "qty":
			qtyCol = i
		}
	}
	if skuCol < 0 || qtyCol < 0 {
		return nil, ErrMissingColumn
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bulkimport: %w", err)
		}
		line, _ := cr.FieldPos(0)
		sku := field(rec, skuCol)
		if sku == "" {
			continue
		}
		if len(rows) == MaxRows {
			return nil, fmt.Errorf("%w: max %d", ErrTooManyRows, MaxRows)
		}
		rows = append(rows, Row{Line: line, SKU: sku, Quantity: quantity(field(rec, qtyCol))})
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows, nil
}

// quantity reads whole numbers written as "2", "2.0" or "1e1". Anything else
// is 0, which resolves as invalid_quantity.
func quantity(s string) int {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
