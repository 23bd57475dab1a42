package domain

import "github.com/shopspring/decimal"

// Product is a scraped catalog item keyed by its canonical URL.
type Product struct {
	ID          int64            `json:"id,omitempty"` // Assigned by the store, zero before persistence
	URL         string           `json:"url"`
	Name        string           `json:"name"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Currency    *string          `json:"currency,omitempty"`
	ImageURL    *string          `json:"image_url,omitempty"`
	SKU         *string          `json:"sku,omitempty"`
	Brand       *string          `json:"brand,omitempty"`
	Categories  []Category       `json:"categories"`
}

// Overlay merges patch into base field by field. Optional fields set on patch
// replace the ones on base, nil fields leave base untouched. The URL of base
// is the identity and never changes.
func Overlay(base, patch Product) Product {
	out := base
	if patch.Name != "" {
		out.Name = patch.Name
	}
	out.Description = pick(base.Description, patch.Description)
	out.Currency = pick(base.Currency, patch.Currency)
	out.ImageURL = pick(base.ImageURL, patch.ImageURL)
	out.SKU = pick(base.SKU, patch.SKU)
	out.Brand = pick(base.Brand, patch.Brand)
	if patch.Price != nil {
		price := *patch.Price
		out.Price = &price
	}
	if patch.ID != 0 {
		out.ID = patch.ID
	}
	if len(patch.Categories) > 0 {
		out.Categories = append([]Category(nil), patch.Categories...)
	}
	return out
}

func pick(current, incoming *string) *string {
	if incoming == nil {
		return current
	}
	v := *incoming
	return &v
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
