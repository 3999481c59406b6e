package calculator

import "github.com/mmynk/tabsplit/internal/models"

// Availability derives the remaining quantity of every master product from
// the diners' selections.
//
// Full items subtract their quantity. Shared items subtract exactly one unit
// per distinct share group, no matter how many diners hold that group. Line
// items of products missing from master are ignored. Quantities are clamped
// at zero: reducers guard before allocating, but a reconciled snapshot may
// over-allocate and must not surface negative stock.
func Availability(master models.Catalog, diners []models.Diner) models.Catalog {
	available := master.Clone()
	seenGroups := make(map[string]struct{})

	for _, diner := range diners {
		for _, item := range diner.SelectedItems {
			product, ok := available[item.ProductID]
			if !ok {
				continue
			}
			switch item.Kind {
			case models.KindFull:
				product.Quantity -= item.Quantity
			case models.KindShared:
				if _, seen := seenGroups[item.ShareGroupID]; seen {
					continue
				}
				seenGroups[item.ShareGroupID] = struct{}{}
				product.Quantity--
			}
			available[item.ProductID] = product
		}
	}

	for id, product := range available {
		if product.Quantity < 0 {
			product.Quantity = 0
			available[id] = product
		}
	}
	return available
}

// ShareGroups rebuilds the active share groups from the diners' Shared
// items: every diner holding an item of a group is a member of it, in diner
// order.
func ShareGroups(diners []models.Diner) models.ShareGroups {
	groups := make(models.ShareGroups)
	for _, diner := range diners {
		for _, item := range diner.SelectedItems {
			if item.Kind != models.KindShared {
				continue
			}
			members := groups[item.ShareGroupID]
			if !contains(members, diner.ID) {
				groups[item.ShareGroupID] = append(members, diner.ID)
			}
		}
	}
	return groups
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
