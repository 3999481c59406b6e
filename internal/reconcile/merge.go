// Package reconcile merges a locally held session with a snapshot received
// from another device.
//
// The merge is last-writer-wins at line-item granularity:
//
//   - diners present on one side only are kept as they are
//   - diners present on both sides are merged item by item, keyed by share
//     group for Shared items and by product for Full items
//   - for a key present on both sides the item with the later ModifiedAt
//     wins whole; on equal timestamps the local item is kept
//   - keys present on one side only are kept
//
// There are no tombstones. A deletion on one side is undone by the other
// side's copy of the same key.
package reconcile

import (
	"github.com/mmynk/tabsplit/internal/calculator"
	"github.com/mmynk/tabsplit/internal/models"
)

// Merge reconciles local with remote and returns a new session. Neither
// input is modified.
//
// Session-wide fields (master catalog, discount) come from the side with the
// later LastUpdated, except that an empty master catalog never replaces a
// populated one. Share groups and availability are derived again from the
// merged diners.
func Merge(local, remote models.Session) models.Session {
	newer, older := remote, local
	if local.LastUpdated.After(remote.LastUpdated) {
		newer, older = local, remote
	}

	merged := models.NewSession()
	merged.LastUpdated = newer.LastUpdated
	merged.DiscountPercentage = newer.DiscountPercentage
	merged.DiscountCap = newer.DiscountCap
	if len(newer.MasterProducts) > 0 {
		merged.MasterProducts = newer.MasterProducts.Clone()
	} else {
		merged.MasterProducts = older.MasterProducts.Clone()
	}

	remoteDiners := make(map[string]models.Diner, len(remote.Diners))
	for _, d := range remote.Diners {
		remoteDiners[d.ID] = d
	}
	localIDs := make(map[string]struct{}, len(local.Diners))

	for _, ld := range local.Diners {
		localIDs[ld.ID] = struct{}{}
		if rd, ok := remoteDiners[ld.ID]; ok {
			merged.Diners = append(merged.Diners, mergeDiner(ld, rd))
			continue
		}
		merged.Diners = append(merged.Diners, ld.Clone())
	}
	for _, rd := range remote.Diners {
		if _, ok := localIDs[rd.ID]; !ok {
			merged.Diners = append(merged.Diners, rd.Clone())
		}
	}

	merged.SharedInstances = calculator.ShareGroups(merged.Diners)
	merged.AvailableProducts = calculator.Availability(merged.MasterProducts, merged.Diners)
	return merged
}

func mergeDiner(local, remote models.Diner) models.Diner {
	out := models.Diner{ID: local.ID, Name: local.Name, SelectedItems: []models.LineItem{}}
	if out.Name == "" {
		out.Name = remote.Name
	}

	remoteItems := make(map[string]models.LineItem, len(remote.SelectedItems))
	for _, item := range remote.SelectedItems {
		remoteItems[item.Key()] = item
	}
	localKeys := make(map[string]struct{}, len(local.SelectedItems))

	for _, item := range local.SelectedItems {
		key := item.Key()
		localKeys[key] = struct{}{}
		if ri, ok := remoteItems[key]; ok && ri.ModifiedAt.After(item.ModifiedAt) {
			out.SelectedItems = append(out.SelectedItems, ri)
			continue
		}
		out.SelectedItems = append(out.SelectedItems, item)
	}
	for _, item := range remote.SelectedItems {
		if _, ok := localKeys[item.Key()]; !ok {
			out.SelectedItems = append(out.SelectedItems, item)
		}
	}
	return out
}
