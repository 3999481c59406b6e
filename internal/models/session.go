package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShareGroups maps a share group ID to the IDs of the diners sharing that
// unit, in join order and without duplicates.
type ShareGroups map[string][]string

// Clone returns an independent copy of the share groups.
func (g ShareGroups) Clone() ShareGroups {
	out := make(ShareGroups, len(g))
	for id, members := range g {
		out[id] = append([]string(nil), members...)
	}
	return out
}

// Discount is applied proportionally to each diner's pre-tip subtotal.
type Discount struct {
	// Percentage is in [0, 100].
	Percentage decimal.Decimal

	// Cap limits the aggregate discount. Zero means unlimited.
	Cap decimal.Decimal
}

// Session is the unit of remote persistence, keyed by a session identifier
// kept outside the document.
type Session struct {
	// Diners are the participants, in the order they were added.
	Diners []Diner `json:"comensales"`

	// AvailableProducts is MasterProducts minus what is allocated to diners.
	AvailableProducts Catalog `json:"availableProducts"`

	// MasterProducts is the reviewed receipt catalog.
	MasterProducts Catalog `json:"masterProductList"`

	// SharedInstances are the active share groups.
	SharedInstances ShareGroups `json:"activeSharedInstances"`

	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	DiscountCap        decimal.Decimal `json:"discountCap"`

	// LastUpdated increases on every mutation. It is both the dirty marker
	// for persistence and the ordering key for reconciliation.
	LastUpdated time.Time `json:"lastUpdated"`
}

// NewSession returns an empty session with allocated maps.
func NewSession() Session {
	return Session{
		Diners:            []Diner{},
		AvailableProducts: Catalog{},
		MasterProducts:    Catalog{},
		SharedInstances:   ShareGroups{},
	}
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	out.Diners = make([]Diner, len(s.Diners))
	for i, d := range s.Diners {
		out.Diners[i] = d.Clone()
	}
	out.AvailableProducts = s.AvailableProducts.Clone()
	out.MasterProducts = s.MasterProducts.Clone()
	out.SharedInstances = s.SharedInstances.Clone()
	return out
}

// Discount returns the discount configuration of the session.
func (s Session) Discount() Discount {
	return Discount{Percentage: s.DiscountPercentage, Cap: s.DiscountCap}
}

// DinerIndex returns the position of the diner with the given ID, or -1.
func (s Session) DinerIndex(id string) int {
	for i, d := range s.Diners {
		if d.ID == id {
			return i
		}
	}
	return -1
}
