package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type ProductType string

const (
	TypePrescription  ProductType = "prescription"
	TypeOverCounter   ProductType = "over_counter"
	TypeMedicalDevice ProductType = "medical_device"
	TypeSupplement    ProductType = "supplement"
)

func (t ProductType) Valid() bool {
	switch t {
	case TypePrescription, TypeOverCounter, TypeMedicalDevice, TypeSupplement:
		return true
	}
	return false
}

var (
	ErrNotFound       = errors.New("product not found")
	ErrDuplicate      = errors.New("product with this sku or slug already exists")
	ErrInvalidProduct = errors.New("invalid product")
)

// Product prices are integer amounts in the store currency.
type Product struct {
	ID                   uuid.UUID   `json:"id"`
	SKU                  string      `json:"sku" validate:"required,max=64"`
	Slug                 string      `json:"slug" validate:"required,max=128"`
	NameFR               string      `json:"name_fr" validate:"required,max=255"`
	NameEN               string      `json:"name_en" validate:"required,max=255"`
	DescriptionFR        string      `json:"description_fr"`
	DescriptionEN        string      `json:"description_en"`
	Price                int64       `json:"price" validate:"min=0"`
	ComparePrice         *int64      `json:"compare_price,omitempty" validate:"omitempty,min=0"`
	StockQuantity        int         `json:"stock_quantity" validate:"min=0"`
	RequiresPrescription bool        `json:"requires_prescription"`
	Type                 ProductType `json:"type" validate:"oneof=prescription over_counter medical_device supplement"`
	Images               []string    `json:"images"`
	CategoryID           *uuid.UUID  `json:"category_id,omitempty"`
	Manufacturer         *string     `json:"manufacturer,omitempty"`
	ActiveIngredient     *string     `json:"active_ingredient,omitempty"`
	Dosage               *string     `json:"dosage,omitempty"`
	Featured             bool        `json:"featured"`
	IsActive             bool        `json:"is_active"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// Name returns the English name for "en", French otherwise.
func (p *Product) Name(lang string) string {
	if lang == "en" && p.NameEN != "" {
		return p.NameEN
	}
	return p.NameFR
}

func (p *Product) InStock(qty int) bool { return p.StockQuantity >= qty }

var validate = validator.New()

// Check validates the fields an admin write must carry.
func (p *Product) Check() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	return nil
}

type Category struct {
	ID       uuid.UUID `json:"id"`
	Slug     string    `json:"slug"`
	NameFR   string    `json:"name_fr"`
	NameEN   string    `json:"name_en"`
	IsActive bool      `json:"is_active"`
}

type Sort string

const (
	SortNewest    Sort = "newest"
	SortPriceAsc  Sort = "price_asc"
	SortPriceDesc Sort = "price_desc"
	SortName      Sort = "name"
)

type Filter struct {
	Search       string
	CategorySlug string
	Type         ProductType
	FeaturedOnly bool
	Sort         Sort
	Limit        int
	Offset       int
}

const (
	defaultLimit = 24
	maxLimit     = 100
)

func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
