package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Product is a single catalog row taken from a receipt or entered by hand.
type Product struct {
	// ID is the catalog key of the product.
	ID string `json:"id"`

	// Name is the display name printed on the receipt (e.g., "Pizza").
	Name string `json:"name"`

	// Price is the unit price.
	Price decimal.Decimal `json:"price"`

	// Quantity is the number of units. In the master catalog it is what the
	// receipt lists; in the available view it is what is left to assign.
	Quantity int `json:"quantity"`
}

// Catalog maps product IDs to products.
type Catalog map[string]Product

// IDs returns the catalog keys ordered by product name, then ID.
func (c Catalog) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := c[ids[i]], c[ids[j]]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return ids
}

// Clone returns an independent copy of the catalog. A nil catalog clones to
// an empty one.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for id, p := range c {
		out[id] = p
	}
	return out
}

// Value is Σ price × quantity over the catalog.
func (c Catalog) Value() decimal.Decimal {
	total := decimal.Zero
	for _, p := range c {
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(p.Quantity))))
	}
	return total
}
