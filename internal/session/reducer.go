package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/tabsplit/internal/calculator"
	"github.com/mmynk/tabsplit/internal/models"
	"github.com/mmynk/tabsplit/internal/numparse"
	"github.com/mmynk/tabsplit/internal/reconcile"
)

const (
	notFoundNotice   = "The shared session does not exist anymore. A new session was started on this device."
	extractionNotice = "The receipt could not be read"
	loadNotice       = "The shared session could not be loaded"
)

// Reducer is the transition function. Now and NewID are its only sources of
// non-determinism.
type Reducer struct {
	Now   func() time.Time
	NewID func() string
}

// NewReducer returns a Reducer using the wall clock and random UUIDs.
func NewReducer() Reducer {
	return Reducer{Now: time.Now, NewID: uuid.NewString}
}

// Reduce applies the action to s. It returns s itself when the action does
// not apply.
func (r Reducer) Reduce(s State, a Action) State {
	next, ok := r.reduce(s, a)
	if !ok {
		return s
	}
	next.Version = s.Version + 1
	return next
}

func (r Reducer) reduce(s State, a Action) (State, bool) {
	switch a := a.(type) {
	case AddDiner:
		return r.addDiner(s, a)
	case RemoveDiner:
		return r.removeDiner(s, a)
	case AddFullItem:
		return r.addFullItem(s, a)
	case ShareItem:
		return r.shareItem(s, a)
	case JoinShare:
		return r.joinShare(s, a)
	case RemoveItem:
		return r.removeItem(s, a)
	case ClearDinerItems:
		return r.clearDinerItems(s, a)
	case ApplyDiscount:
		return r.applyDiscount(s, a)
	case LoadSnapshot:
		return r.loadSnapshot(s, a)
	case SyncSnapshot:
		return r.syncSnapshot(s, a)
	case SetProductsForReview:
		next := s
		next.Review = a.Products.Clone()
		next.Step = StepReviewing
		next.Notice = ""
		return next, true
	case SetProductsAndAdvance:
		return r.setProductsAndAdvance(s, a)
	case UpsertReviewProduct:
		return r.upsertReviewProduct(s, a)
	case DeleteReviewProduct:
		if _, ok := s.Review[a.ProductID]; !ok {
			return s, false
		}
		next := s
		next.Review = s.Review.Clone()
		delete(next.Review, a.ProductID)
		return next, true
	case EditProducts:
		if s.Step != StepAssigning {
			return s, false
		}
		next := s
		next.Step = StepReviewing
		next.Review = s.Session.MasterProducts.Clone()
		return next, true
	case ResetSession:
		return NewState(r.NewID()), true
	case BeginExtraction:
		if s.Step != StepLanding {
			return s, false
		}
		next := s
		next.Step = StepLoading
		next.Notice = ""
		return next, true
	case ExtractionFailed:
		if s.Step != StepLoading {
			return s, false
		}
		next := s
		next.Step = StepLanding
		next.Notice = extractionNotice
		if a.Err != "" {
			next.Notice += ": " + a.Err
		}
		return next, true
	case BeginManualEntry:
		if s.Step != StepLanding {
			return s, false
		}
		next := s
		next.Step = StepReviewing
		next.Review = models.Catalog{}
		next.Notice = ""
		return next, true
	case BeginSessionLoad:
		if a.SessionID == "" {
			return s, false
		}
		next := NewState(a.SessionID)
		next.Shared = true
		next.Step = StepLoadingSession
		return next, true
	case SessionNotFound:
		if a.SessionID != s.SessionID || s.Step != StepLoadingSession {
			return s, false
		}
		next := NewState(r.NewID())
		next.Notice = notFoundNotice
		return next, true
	case LoadFailed:
		if a.SessionID != s.SessionID || s.Step != StepLoadingSession {
			return s, false
		}
		next := s
		next.Sync.Status = SyncError
		next.Sync.Err = a.Err
		next.Notice = loadNotice + ": " + a.Err
		return next, true
	case Publish:
		if s.Shared {
			return s, false
		}
		next, now := r.edit(s)
		next.Shared = true
		return r.commit(next, now), true
	case SaveStarted:
		if !s.Shared || s.Sync.Status == SyncSaving {
			return s, false
		}
		next := s
		next.Sync.Status = SyncSaving
		next.Sync.InFlight = a.Snapshot
		if a.Snapshot.IsZero() {
			next.Sync.InFlight = s.Session.LastUpdated
		}
		next.Sync.Err = ""
		return next, true
	case SaveSucceeded:
		next := s
		next.Sync.Status = SyncSaved
		next.Sync.LastSaved = latest(s.Sync.LastSaved, a.Saved)
		next.Sync.LastApplied = latest(s.Sync.LastApplied, a.Saved)
		next.Sync.InFlight = time.Time{}
		next.Sync.Failed = nil
		next.Sync.Err = ""
		return next, true
	case SaveFailed:
		payload := a.Payload.Clone()
		next := s
		next.Sync.Status = SyncError
		next.Sync.InFlight = time.Time{}
		next.Sync.Failed = &payload
		next.Sync.Err = a.Err
		return next, true
	case DismissNotice:
		if s.Notice == "" {
			return s, false
		}
		next := s
		next.Notice = ""
		return next, true
	}
	return s, false
}

// edit returns a copy of s whose session can be mutated in place, and the
// timestamp the mutation will carry.
func (r Reducer) edit(s State) (State, time.Time) {
	next := s
	next.Session = s.Session.Clone()
	return next, r.stamp(s.Session.LastUpdated)
}

// commit derives availability and stamps the session.
func (r Reducer) commit(next State, now time.Time) State {
	next.Session.AvailableProducts = calculator.Availability(next.Session.MasterProducts, next.Session.Diners)
	next.Session.LastUpdated = now
	return next
}

// stamp returns the current time, forced strictly after prev.
func (r Reducer) stamp(prev time.Time) time.Time {
	now := r.Now().UTC()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}

func (r Reducer) addDiner(s State, a AddDiner) (State, bool) {
	name := strings.TrimSpace(a.Name)
	if name == "" || len(s.Session.Diners) >= models.MaxDiners {
		return s, false
	}
	next, now := r.edit(s)
	next.Session.Diners = append(next.Session.Diners, models.Diner{
		ID:            r.NewID(),
		Name:          name,
		SelectedItems: []models.LineItem{},
	})
	return r.commit(next, now), true
}

func (r Reducer) removeDiner(s State, a RemoveDiner) (State, bool) {
	i := s.Session.DinerIndex(a.DinerID)
	if i < 0 {
		return s, false
	}
	next, now := r.edit(s)
	for _, item := range s.Session.Diners[i].SelectedItems {
		if item.Kind == models.KindShared {
			leaveGroup(&next.Session, a.DinerID, item.ShareGroupID, now)
		}
	}
	i = next.Session.DinerIndex(a.DinerID)
	next.Session.Diners = append(next.Session.Diners[:i], next.Session.Diners[i+1:]...)
	return r.commit(next, now), true
}

func (r Reducer) addFullItem(s State, a AddFullItem) (State, bool) {
	i := s.Session.DinerIndex(a.DinerID)
	product, known := s.Session.MasterProducts[a.ProductID]
	if i < 0 || !known || s.Session.AvailableProducts[a.ProductID].Quantity <= 0 {
		return s, false
	}
	next, now := r.edit(s)
	diner := &next.Session.Diners[i]
	if j := diner.ItemIndex(models.FullKey(a.ProductID)); j >= 0 {
		diner.SelectedItems[j].Quantity++
		diner.SelectedItems[j].ModifiedAt = now
	} else {
		diner.SelectedItems = append(diner.SelectedItems, models.LineItem{
			ProductID:  product.ID,
			Name:       product.Name,
			Kind:       models.KindFull,
			Quantity:   1,
			UnitPrice:  product.Price,
			ModifiedAt: now,
		})
	}
	return r.commit(next, now), true
}

func (r Reducer) shareItem(s State, a ShareItem) (State, bool) {
	product, known := s.Session.MasterProducts[a.ProductID]
	if !known || s.Session.AvailableProducts[a.ProductID].Quantity < 1 {
		return s, false
	}
	var members []string
	for _, id := range a.DinerIDs {
		if s.Session.DinerIndex(id) >= 0 && !contains(members, id) {
			members = append(members, id)
		}
	}
	if len(members) < 1 {
		return s, false
	}

	next, now := r.edit(s)
	group := r.NewID()
	perShare := product.Price.Div(decimal.NewFromInt(int64(len(members))))
	for _, id := range members {
		diner := &next.Session.Diners[next.Session.DinerIndex(id)]
		diner.SelectedItems = append(diner.SelectedItems, models.LineItem{
			ProductID:         product.ID,
			Name:              product.Name,
			Kind:              models.KindShared,
			Quantity:          1,
			PerShareBasePrice: perShare,
			SharedByCount:     len(members),
			ShareGroupID:      group,
			ModifiedAt:        now,
		})
	}
	next.Session.SharedInstances[group] = members
	return r.commit(next, now), true
}

func (r Reducer) joinShare(s State, a JoinShare) (State, bool) {
	members, ok := s.Session.SharedInstances[a.ShareGroupID]
	i := s.Session.DinerIndex(a.DinerID)
	if !ok || i < 0 || contains(members, a.DinerID) {
		return s, false
	}
	template, ok := groupItem(s.Session, a.ShareGroupID)
	if !ok {
		return s, false
	}

	next, now := r.edit(s)
	template.ModifiedAt = now
	next.Session.Diners[i].SelectedItems = append(next.Session.Diners[i].SelectedItems, template)
	next.Session.SharedInstances[a.ShareGroupID] = append(append([]string(nil), members...), a.DinerID)
	repriceGroup(&next.Session, a.ShareGroupID, now)
	return r.commit(next, now), true
}

func (r Reducer) removeItem(s State, a RemoveItem) (State, bool) {
	i := s.Session.DinerIndex(a.DinerID)
	if i < 0 {
		return s, false
	}
	j := s.Session.Diners[i].ItemIndex(a.Key)
	if j < 0 {
		return s, false
	}
	item := s.Session.Diners[i].SelectedItems[j]

	next, now := r.edit(s)
	if item.Kind == models.KindShared {
		leaveGroup(&next.Session, a.DinerID, item.ShareGroupID, now)
	} else {
		dropItem(&next.Session.Diners[i], a.Key)
	}
	return r.commit(next, now), true
}

func (r Reducer) clearDinerItems(s State, a ClearDinerItems) (State, bool) {
	i := s.Session.DinerIndex(a.DinerID)
	if i < 0 || len(s.Session.Diners[i].SelectedItems) == 0 {
		return s, false
	}
	next, now := r.edit(s)
	for _, item := range s.Session.Diners[i].SelectedItems {
		if item.Kind == models.KindShared {
			leaveGroup(&next.Session, a.DinerID, item.ShareGroupID, now)
		}
	}
	next.Session.Diners[i].SelectedItems = []models.LineItem{}
	return r.commit(next, now), true
}

func (r Reducer) applyDiscount(s State, a ApplyDiscount) (State, bool) {
	pct := numparse.Coerce(a.Percentage)
	limit := numparse.Coerce(a.Cap)
	if pct.Equal(s.Session.DiscountPercentage) && limit.Equal(s.Session.DiscountCap) {
		return s, false
	}
	next, now := r.edit(s)
	next.Session.DiscountPercentage = pct
	next.Session.DiscountCap = limit
	return r.commit(next, now), true
}

func (r Reducer) setProductsAndAdvance(s State, a SetProductsAndAdvance) (State, bool) {
	if len(a.Products) == 0 {
		return s, false
	}
	next, now := r.edit(s)
	sess := &next.Session
	sess.MasterProducts = a.Products.Clone()

	for i := range sess.Diners {
		kept := []models.LineItem{}
		for _, item := range sess.Diners[i].SelectedItems {
			product, ok := sess.MasterProducts[item.ProductID]
			if !ok {
				continue
			}
			if item.Kind == models.KindFull && (!item.UnitPrice.Equal(product.Price) || item.Name != product.Name) {
				item.UnitPrice = product.Price
				item.Name = product.Name
				item.ModifiedAt = now
			}
			kept = append(kept, item)
		}
		sess.Diners[i].SelectedItems = kept
	}
	sess.SharedInstances = calculator.ShareGroups(sess.Diners)
	for group := range sess.SharedInstances {
		repriceGroup(sess, group, now)
	}

	next.Step = StepAssigning
	next.Review = models.Catalog{}
	next.Notice = ""
	return r.commit(next, now), true
}

func (r Reducer) upsertReviewProduct(s State, a UpsertReviewProduct) (State, bool) {
	p := a.Product
	p.Name = strings.TrimSpace(p.Name)
	if s.Step != StepReviewing || p.Name == "" || !p.Price.IsPositive() || p.Quantity <= 0 {
		return s, false
	}
	if p.ID == "" {
		p.ID = r.NewID()
	}
	next := s
	next.Review = s.Review.Clone()
	next.Review[p.ID] = p
	return next, true
}

func (r Reducer) loadSnapshot(s State, a LoadSnapshot) (State, bool) {
	if a.SessionID == "" {
		return s, false
	}
	base := s
	if a.SessionID != s.SessionID {
		base = NewState(a.SessionID)
	}
	base.Shared = true

	next := r.applyRemote(base, a.Snapshot)
	next.Step = stepFor(next.Session)
	next.Review = models.Catalog{}
	next.Notice = ""
	clearLoadError(&next)
	return next, true
}

func (r Reducer) syncSnapshot(s State, a SyncSnapshot) (State, bool) {
	at := a.Snapshot.LastUpdated
	if !s.Shared || a.SessionID != s.SessionID {
		return s, false
	}
	if !at.After(s.Sync.LastApplied) || at.Equal(s.Sync.InFlight) {
		return s, false
	}
	next := r.applyRemote(s, a.Snapshot)
	if next.Step == StepLoadingSession {
		next.Step = stepFor(next.Session)
		next.Notice = ""
		clearLoadError(&next)
	}
	return next, true
}

// clearLoadError drops an error left by LoadFailed. Save errors, which
// carry a payload, are kept.
func clearLoadError(s *State) {
	if s.Sync.Status == SyncError && s.Sync.Failed == nil {
		s.Sync.Status = SyncIdle
		s.Sync.Err = ""
	}
}

// applyRemote reconciles snap into base. When base had unsaved changes the
// merge is stamped fresh so it is pushed; otherwise it counts as saved and is
// not written back.
func (r Reducer) applyRemote(base State, snap models.Session) State {
	wasDirty := base.Dirty()
	merged := reconcile.Merge(base.Session, snap)

	next := base
	next.Sync.LastApplied = latest(base.Sync.LastApplied, snap.LastUpdated)
	if wasDirty {
		merged.LastUpdated = r.stamp(merged.LastUpdated)
	} else {
		next.Sync.LastSaved = latest(base.Sync.LastSaved, merged.LastUpdated)
	}
	next.Session = merged
	return next
}

func stepFor(s models.Session) Step {
	if len(s.MasterProducts) == 0 {
		return StepReviewing
	}
	return StepAssigning
}

// leaveGroup takes the diner out of the share group. An emptied group is
// deleted along with every item still pointing at it; otherwise the
// remaining members are repriced.
func leaveGroup(sess *models.Session, dinerID, group string, now time.Time) {
	key := models.SharedKey(group)
	if i := sess.DinerIndex(dinerID); i >= 0 {
		dropItem(&sess.Diners[i], key)
	}

	var members []string
	for _, id := range sess.SharedInstances[group] {
		if id != dinerID {
			members = append(members, id)
		}
	}
	if len(members) == 0 {
		delete(sess.SharedInstances, group)
		for i := range sess.Diners {
			dropItem(&sess.Diners[i], key)
		}
		return
	}
	sess.SharedInstances[group] = members
	repriceGroup(sess, group, now)
}

// repriceGroup sets every member's share to price / members.
func repriceGroup(sess *models.Session, group string, now time.Time) {
	members := sess.SharedInstances[group]
	item, ok := groupItem(*sess, group)
	if len(members) == 0 || !ok {
		return
	}
	price := item.PerShareBasePrice.Mul(decimal.NewFromInt(int64(item.SharedByCount)))
	if product, known := sess.MasterProducts[item.ProductID]; known {
		price = product.Price
	}
	perShare := price.Div(decimal.NewFromInt(int64(len(members))))

	key := models.SharedKey(group)
	for _, id := range members {
		i := sess.DinerIndex(id)
		if i < 0 {
			continue
		}
		j := sess.Diners[i].ItemIndex(key)
		if j < 0 {
			continue
		}
		li := &sess.Diners[i].SelectedItems[j]
		li.PerShareBasePrice = perShare
		li.SharedByCount = len(members)
		li.ModifiedAt = now
	}
}

// groupItem returns any line item of the share group.
func groupItem(sess models.Session, group string) (models.LineItem, bool) {
	key := models.SharedKey(group)
	for _, d := range sess.Diners {
		if j := d.ItemIndex(key); j >= 0 {
			return d.SelectedItems[j], true
		}
	}
	return models.LineItem{}, false
}

func dropItem(d *models.Diner, key string) {
	if j := d.ItemIndex(key); j >= 0 {
		d.SelectedItems = append(d.SelectedItems[:j], d.SelectedItems[j+1:]...)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
