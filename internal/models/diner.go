package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MaxDiners is the most diners a session may hold.
const MaxDiners = 20

// ErrUnknownItemKind is returned when a document carries a line item whose
// kind is neither full nor shared.
var ErrUnknownItemKind = errors.New("unknown line item kind")

// ItemKind discriminates the two line item variants.
type ItemKind string

const (
	// KindFull is whole-unit consumption by one diner.
	KindFull ItemKind = "full"
	// KindShared is one unit split evenly inside a share group.
	KindShared ItemKind = "shared"
)

// Diner is a participant of the bill.
type Diner struct {
	// ID is the unique identifier for the diner (UUID format).
	ID string `json:"id"`

	// Name is the display name entered by the user.
	Name string `json:"name"`

	// SelectedItems are the line items assigned to this diner, in the order
	// they were added.
	SelectedItems []LineItem `json:"selectedItems"`
}

// Clone returns an independent copy of the diner.
func (d Diner) Clone() Diner {
	items := make([]LineItem, len(d.SelectedItems))
	copy(items, d.SelectedItems)
	d.SelectedItems = items
	return d
}

// ItemIndex returns the position of the item with the given key, or -1.
func (d Diner) ItemIndex(key string) int {
	for i, item := range d.SelectedItems {
		if item.Key() == key {
			return i
		}
	}
	return -1
}

// LineItem is one entry of a diner's selection. Which price fields are
// meaningful depends on Kind:
//
//   - KindFull: UnitPrice and Quantity
//   - KindShared: PerShareBasePrice, SharedByCount and ShareGroupID, with
//     Quantity always 1
type LineItem struct {
	ProductID string
	Name      string
	Kind      ItemKind
	Quantity  int

	// UnitPrice is the product price for Full items.
	UnitPrice decimal.Decimal

	// PerShareBasePrice is product price / SharedByCount for Shared items.
	PerShareBasePrice decimal.Decimal
	SharedByCount     int
	ShareGroupID      string

	// ModifiedAt orders concurrent edits of the same item during
	// reconciliation.
	ModifiedAt time.Time
}

// FullKey is the reconciliation key of a Full item of the product.
func FullKey(productID string) string { return "full:" + productID }

// SharedKey is the reconciliation key of a Shared item of the share group.
func SharedKey(shareGroupID string) string { return "shared:" + shareGroupID }

// Key identifies the item inside a diner's selection: the share group for
// Shared items, the product for Full items.
func (li LineItem) Key() string {
	if li.Kind == KindShared {
		return SharedKey(li.ShareGroupID)
	}
	return FullKey(li.ProductID)
}

// Amount is what the item costs the diner before discount and tip.
func (li LineItem) Amount() decimal.Decimal {
	if li.Kind == KindShared {
		return li.PerShareBasePrice
	}
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// lineItemDoc is the wire shape of a LineItem. Pointer prices let each
// variant omit the other's fields.
type lineItemDoc struct {
	ProductID         string           `json:"productId"`
	Name              string           `json:"name"`
	Type              ItemKind         `json:"type"`
	Quantity          int              `json:"quantity"`
	UnitPrice         *decimal.Decimal `json:"unitPrice,omitempty"`
	PerShareBasePrice *decimal.Decimal `json:"perShareBasePrice,omitempty"`
	SharedByCount     int              `json:"sharedByCount,omitempty"`
	ShareGroupID      string           `json:"shareGroupId,omitempty"`
	ModifiedAt        time.Time        `json:"modifiedAt"`
}

// MarshalJSON encodes the variant-specific fields only.
func (li LineItem) MarshalJSON() ([]byte, error) {
	doc := lineItemDoc{
		ProductID:  li.ProductID,
		Name:       li.Name,
		Type:       li.Kind,
		Quantity:   li.Quantity,
		ModifiedAt: li.ModifiedAt,
	}
	switch li.Kind {
	case KindFull:
		price := li.UnitPrice
		doc.UnitPrice = &price
	case KindShared:
		price := li.PerShareBasePrice
		doc.PerShareBasePrice = &price
		doc.SharedByCount = li.SharedByCount
		doc.ShareGroupID = li.ShareGroupID
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownItemKind, li.Kind)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes either variant and rejects unknown kinds.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	var doc lineItemDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	item := LineItem{
		ProductID:  doc.ProductID,
		Name:       doc.Name,
		Kind:       doc.Type,
		Quantity:   doc.Quantity,
		ModifiedAt: doc.ModifiedAt,
	}
	switch doc.Type {
	case KindFull:
		if doc.UnitPrice != nil {
			item.UnitPrice = *doc.UnitPrice
		}
	case KindShared:
		if doc.PerShareBasePrice != nil {
			item.PerShareBasePrice = *doc.PerShareBasePrice
		}
		if doc.ShareGroupID == "" {
			return fmt.Errorf("shared item %q has no share group", doc.ProductID)
		}
		item.SharedByCount = doc.SharedByCount
		item.ShareGroupID = doc.ShareGroupID
		item.Quantity = 1
	default:
		return fmt.Errorf("%w: %q", ErrUnknownItemKind, doc.Type)
	}
	*li = item
	return nil
}
