package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/tabsplit/internal/calculator"
	"github.com/mmynk/tabsplit/internal/models"
)

var epoch = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

// testReducer returns a reducer with a clock advancing one second per call
// and sequential IDs.
func testReducer() Reducer {
	tick := 0
	ids := 0
	return Reducer{
		Now: func() time.Time {
			tick++
			return epoch.Add(time.Duration(tick) * time.Second)
		},
		NewID: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	}
}

func catalog(products ...models.Product) models.Catalog {
	c := models.Catalog{}
	for _, p := range products {
		c[p.ID] = p
	}
	return c
}

func product(id, name string, price int64, qty int) models.Product {
	return models.Product{ID: id, Name: name, Price: decimal.NewFromInt(price), Quantity: qty}
}

// assigning returns a state in the assigning step with the given catalog and
// diners, plus the IDs of the diners in order.
func assigning(t *testing.T, r Reducer, products models.Catalog, names ...string) (State, []string) {
	t.Helper()
	s := r.Reduce(NewState("s1"), SetProductsAndAdvance{Products: products})
	require.Equal(t, StepAssigning, s.Step)
	var ids []string
	for _, n := range names {
		s = r.Reduce(s, AddDiner{Name: n})
		ids = append(ids, s.Session.Diners[len(s.Session.Diners)-1].ID)
	}
	return s, ids
}

func item(t *testing.T, s State, dinerID, key string) models.LineItem {
	t.Helper()
	i := s.Session.DinerIndex(dinerID)
	require.GreaterOrEqual(t, i, 0)
	j := s.Session.Diners[i].ItemIndex(key)
	require.GreaterOrEqual(t, j, 0, "item %s of %s", key, dinerID)
	return s.Session.Diners[i].SelectedItems[j]
}

func onlyGroup(t *testing.T, s State) string {
	t.Helper()
	require.Len(t, s.Session.SharedInstances, 1)
	for id := range s.Session.SharedInstances {
		return id
	}
	return ""
}

func TestAddDiner(t *testing.T) {
	r := testReducer()
	s := NewState("s1")

	next := r.Reduce(s, AddDiner{Name: "  Ana "})
	require.Len(t, next.Session.Diners, 1)
	assert.Equal(t, "Ana", next.Session.Diners[0].Name)
	assert.NotEmpty(t, next.Session.Diners[0].ID)
	assert.Equal(t, s.Version+1, next.Version)
	assert.True(t, next.Session.LastUpdated.After(s.Session.LastUpdated))
	assert.Empty(t, s.Session.Diners, "input state must not change")

	blank := r.Reduce(next, AddDiner{Name: "   "})
	assert.Equal(t, next.Version, blank.Version)
}

func TestAddDinerLimit(t *testing.T) {
	r := testReducer()
	s := NewState("s1")
	for i := 0; i < models.MaxDiners; i++ {
		s = r.Reduce(s, AddDiner{Name: fmt.Sprintf("d%d", i)})
	}
	require.Len(t, s.Session.Diners, models.MaxDiners)

	next := r.Reduce(s, AddDiner{Name: "one too many"})
	assert.Len(t, next.Session.Diners, models.MaxDiners)
	assert.Equal(t, s.Version, next.Version)
}

func TestAddFullItem(t *testing.T) {
	r := testReducer()
	s, ids := assigning(t, r, catalog(product("beer", "Beer", 1500, 2)), "Ana")

	s = r.Reduce(s, AddFullItem{DinerID: ids[0], ProductID: "beer"})
	s = r.Reduce(s, AddFullItem{DinerID: ids[0], ProductID: "beer"})
	li := item(t, s, ids[0], models.FullKey("beer"))
	assert.Equal(t, 2, li.Quantity)
	assert.True(t, li.UnitPrice.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, 0, s.Session.AvailableProducts["beer"].Quantity)

	exhausted := r.Reduce(s, AddFullItem{DinerID: ids[0], ProductID: "beer"})
	assert.Equal(t, s.Version, exhausted.Version)
	assert.Equal(t, 2, item(t, exhausted, ids[0], models.FullKey("beer")).Quantity)
}

func TestAddFullItemUnknown(t *testing.T) {
	r := testReducer()
	s, ids := assigning(t, r, catalog(product("beer", "Beer", 1500, 2)), "Ana")

	assert.Equal(t, s.Version, r.Reduce(s, AddFullItem{DinerID: "nobody", ProductID: "beer"}).Version)
	assert.Equal(t, s.Version, r.Reduce(s, AddFullItem{DinerID: ids[0], ProductID: "wine"}).Version)
}

func TestSharePizza(t *testing.T) {
	r := testReducer()
	s, ids := assigning(t, r, catalog(product("pizza", "Pizza", 10000, 1)), "A", "B")

	s = r.Reduce(s, ShareItem{ProductID: "pizza", DinerIDs: ids})
	group := onlyGroup(t, s)
	assert.Equal(t, ids, s.Session.SharedInstances[group])

	for _, id := range ids {
		li := item(t, s, id, models.SharedKey(group))
		assert.True(t, li.PerShareBasePrice.Equal(decimal.NewFromInt(5000)), li.PerShareBasePrice.String())
		assert.Equal(t, 2, li.SharedByCount)
		assert.Equal(t, 1, li.Quantity)
	}
	assert.Equal(t, 0, s.Session.AvailableProducts["pizza"].Quantity)

	again := r.Reduce(s, ShareItem{ProductID: "pizza", DinerIDs: ids})
	assert.Equal(t, s.Version, again.Version, "no unit left to share")
}

func TestShareItemIgnoresUnknownAndDuplicateDiners(t *testing.T) {
	r := testReducer()
	s, ids := assigning(t, r, catalog(product("pizza", "Pizza", 9000, 1)), "A", "B")

	s = r.Reduce(s, ShareItem{ProductID: "pizza", DinerIDs: []string{ids[0], "ghost", ids[0], ids[1]}})
	group := onlyGroup(t, s)
	assert.Equal(t, ids, s.Session.SharedInstances[group])
	assert.True(t, item(t, s, ids[1], models.SharedKey(group)).PerShareBasePrice.Equal(decimal.NewFromInt(4500)))

	none := r.Reduce(s, ShareItem{ProductID: "pizza", DinerIDs: []string{"ghost"}})
	assert.Equal(t, s.Version, none.Version)
}

func TestShareThenRemoveAllRestoresOneUnit(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("%d diners", n), func(t *testing.T) {
			r := testReducer()
			names := make([]string, n)
			for i := range names {
				names[i] = fmt.Sprintf("d%d", i)
			}
			s, ids := assigning(t, r, catalog(product("nachos", "Nachos", 7000, 3)), names...)

			s = r.Reduce(s, ShareItem{ProductID: "nachos", DinerIDs: ids})
			group := onlyGroup(t, s)
			assert.Equal(t, 2, s.Session.AvailableProducts["nachos"].Quantity)

			for _, id := range ids {
				s = r.Reduce(s, RemoveItem{DinerID: id, Key: models.SharedKey(group)})
				assert.GreaterOrEqual(t, s.Session.AvailableProducts["nachos"].Quantity, 0)
			}
			assert.Equal(t, 3, s.Session.AvailableProducts["nachos"].Quantity)
			assert.Empty(t, s.Session.SharedInstances)
			for _, d := range s.Session.Diners {
				assert.Empty(t, d.SelectedItems)
			}
		})
	}
}

func TestRemoveThenRejoinRestoresPrice(t *testing.T) {
	r := testReducer()
	s, ids := assigning(t, r, catalog(product("pizza", "Pizza", 10000, 1)), "A", "B", "C")

	s = r.Reduce(s, ShareItem{ProductID: "pizza", DinerIDs: ids})
	group := onlyGroup(t, s)
	before := item(t, s, ids[0], models.SharedKey(group)).PerShareBasePrice

	s = r.Reduce(s, RemoveItem{DinerID: ids[2], Key: models.SharedKey(group)})
	assert.True(t, item(t, s, ids[0], models.SharedKey(group)).PerShareBasePrice.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, 2, item(t, s, ids[1], models.SharedKey(group)).SharedByCount)

	s = r.Reduce(s, JoinShare{ShareGroupID: group, DinerID: ids[2]})
	for _, id := range ids {
		li := item(t, s, id, models.SharedKey(group))
		assert.True(t, li.PerShareBasePrice.Equal(before), "%s: %s != %s", id, li.PerShareBasePrice, before)
		assert.Equal(t, 3, li.SharedByCount)
	}
	assert.Equal(t, []string{ids[0], ids[1], ids[2]}, s.Session.SharedInstances[group])
	assert.Equal(t, 0, s.Session.AvailableProducts["pizza"].Quantity)
}

func TestJoinShareIgnoresMembers(t *testing.T) {
	r := testReducer()
	s, ids := assigning(t, r, catalog(product("pizza", "Pizza", 10000, 1)), "A", "B")
	s = r.Reduce(s, ShareItem{ProductID: "pizza", DinerIDs: ids[:1]})
	group := onlyGroup(t, s)

	assert.Equal(t, s.Version, r.Reduce(s, JoinShare{ShareGroupID: group, DinerID: ids[0]}).Version)
	assert.Equal(t, s.Version, r.Reduce(s, JoinShare{ShareGroupID: "missing", DinerID: ids[1]}).Version)
}

func TestRemoveDinerLeavesGroups(t *testing.T) {
	r := testReducer()
	s, ids := assigning(t, r,
		catalog(product("pizza", "Pizza", 9000, 1), product("beer", "Beer", 1000, 4)),
		"A", "B", "C")
	s = r.Reduce(s, ShareItem{ProductID: "pizza", DinerIDs: ids})
	s = r.Reduce(s, AddFullItem{DinerID: ids[2], ProductID: "beer"})
	group := onlyGroup(t, s)

	s = r.Reduce(s, RemoveDiner{DinerID: ids[2]})
	require.Len(t, s.Session.Diners, 2)
	assert.Equal(t, ids[:2], s.Session.SharedInstances[group])
	for _, id := range ids[:2] {
		li := item(t, s, id, models.SharedKey(group))
		assert.True(t, li.PerShareBasePrice.Equal(decimal.NewFromInt(4500)))
		assert.Equal(t, 2, li.SharedByCount)
	}
	assert.Equal(t, 4, s.Session.AvailableProducts["beer"].Quantity)
	assert.Equal(t, 0, s.Session.AvailableProducts["pizza"].Quantity)

	s = r.Reduce(s, RemoveDiner{DinerID: ids[0]})
	s = r.Reduce(s, RemoveDiner{DinerID: ids[1]})
	assert.Empty(t, s.Session.SharedInstances)
	assert.Equal(t, 1, s.Session.AvailableProducts["pizza"].Quantity)
}

func TestClearDinerItems(t *testing.T) {
	r := testReducer()
	s, ids := assigning(t, r,
		catalog(product("pizza", "Pizza", 8000, 1), product("beer", "Beer", 1000, 4)),
		"A", "B")
	s = r.Reduce(s, ShareItem{ProductID: "pizza", DinerIDs: ids})
	s = r.Reduce(s, AddFullItem{DinerID: ids[0], ProductID: "beer"})
	group := onlyGroup(t, s)

	s = r.Reduce(s, ClearDinerItems{DinerID: ids[0]})
	assert.Empty(t, s.Session.Diners[0].SelectedItems)
	assert.True(t, item(t, s, ids[1], models.SharedKey(group)).PerShareBasePrice.Equal(decimal.NewFromInt(8000)))
	assert.Equal(t, 4, s.Session.AvailableProducts["beer"].Quantity)

	assert.Equal(t, s.Version, r.Reduce(s, ClearDinerItems{DinerID: ids[0]}).Version)
}

func TestAvailabilityNeverNegative(t *testing.T) {
	r := testReducer()
	s, ids := assigning(t, r,
		catalog(product("a", "A", 100, 1), product("b", "B", 200, 2)),
		"x", "y", "z")

	actions := []Action{
		AddFullItem{DinerID: ids[0], ProductID: "a"},
		AddFullItem{DinerID: ids[1], ProductID: "a"},
		ShareItem{ProductID: "a", DinerIDs: ids},
		ShareItem{ProductID: "b", DinerIDs: ids[1:]},
		ShareItem{ProductID: "b", DinerIDs: ids[:1]},
		ShareItem{ProductID: "b", DinerIDs: ids},
		AddFullItem{DinerID: ids[2], ProductID: "b"},
		RemoveDiner{DinerID: ids[1]},
		AddFullItem{DinerID: ids[2], ProductID: "b"},
		AddFullItem{DinerID: ids[2], ProductID: "b"},
	}
	for _, a := range actions {
		s = r.Reduce(s, a)
		for id, p := range s.Session.AvailableProducts {
			assert.GreaterOrEqual(t, p.Quantity, 0, "%s after %T", id, a)
		}
		assert.Equal(t, calculator.Availability(s.Session.MasterProducts, s.Session.Diners), s.Session.AvailableProducts)
	}
}

func TestApplyDiscount(t *testing.T) {
	r := testReducer()
	s, _ := assigning(t, r, catalog(product("a", "A", 100, 1)))

	s = r.Reduce(s, ApplyDiscount{Percentage: "10", Cap: "1.500"})
	assert.True(t, s.Session.DiscountPercentage.Equal(decimal.NewFromInt(10)))
	assert.True(t, s.Session.DiscountCap.Equal(decimal.NewFromInt(1500)))

	same := r.Reduce(s, ApplyDiscount{Percentage: "10", Cap: "1500"})
	assert.Equal(t, s.Version, same.Version)

	junk := r.Reduce(s, ApplyDiscount{Percentage: "ten", Cap: ""})
	assert.True(t, junk.Session.DiscountPercentage.IsZero())
	assert.True(t, junk.Session.DiscountCap.IsZero())
}

func TestDiscountCapScenario(t *testing.T) {
	r := testReducer()
	s, ids := assigning(t, r,
		catalog(product("steak", "Steak", 3000, 1), product("salad", "Salad", 1000, 1)),
		"A", "B")
	s = r.Reduce(s, AddFullItem{DinerID: ids[0], ProductID: "steak"})
	s = r.Reduce(s, AddFullItem{DinerID: ids[1], ProductID: "salad"})
	s = r.Reduce(s, ApplyDiscount{Percentage: "50", Cap: "500"})

	bill := calculator.CalculateSplit(s.Session, decimal.NewFromInt(calculator.DefaultTipPercent))
	assert.True(t, bill.Discount.Equal(decimal.NewFromInt(500)), bill.Discount.String())
	assert.True(t, bill.Splits[0].Discount.Equal(decimal.NewFromInt(375)))
	assert.True(t, bill.Splits[1].Discount.Equal(decimal.NewFromInt(125)))
}

func TestSetProductsAndAdvanceRepricesSelections(t *testing.T) {
	r := testReducer()
	s, ids := assigning(t, r,
		catalog(product("pizza", "Pizza", 10000, 1), product("beer", "Beer", 1000, 2)),
		"A", "B")
	s = r.Reduce(s, ShareItem{ProductID: "pizza", DinerIDs: ids})
	s = r.Reduce(s, AddFullItem{DinerID: ids[0], ProductID: "beer"})
	group := onlyGroup(t, s)

	s = r.Reduce(s, EditProducts{})
	require.Equal(t, StepReviewing, s.Step)
	assert.Equal(t, s.Session.MasterProducts, s.Review)

	s = r.Reduce(s, DeleteReviewProduct{ProductID: "beer"})
	s = r.Reduce(s, UpsertReviewProduct{Product: product("pizza", "Pizza", 12000, 1)})
	s = r.Reduce(s, SetProductsAndAdvance{Products: s.Review})

	require.Equal(t, StepAssigning, s.Step)
	assert.Len(t, s.Session.Diners[0].SelectedItems, 1, "beer left the catalog")
	assert.True(t, item(t, s, ids[1], models.SharedKey(group)).PerShareBasePrice.Equal(decimal.NewFromInt(6000)))
	assert.NotContains(t, s.Session.AvailableProducts, "beer")
}

func TestReviewProductValidation(t *testing.T) {
	r := testReducer()
	s := r.Reduce(NewState("s1"), BeginManualEntry{})
	require.Equal(t, StepReviewing, s.Step)

	s = r.Reduce(s, UpsertReviewProduct{Product: models.Product{Name: "Fries", Price: decimal.NewFromInt(2500), Quantity: 1}})
	require.Len(t, s.Review, 1)
	for id, p := range s.Review {
		assert.Equal(t, id, p.ID)
	}

	for _, bad := range []models.Product{
		{Name: " ", Price: decimal.NewFromInt(1), Quantity: 1},
		{Name: "Free", Price: decimal.Zero, Quantity: 1},
		{Name: "None", Price: decimal.NewFromInt(1), Quantity: 0},
	} {
		assert.Equal(t, s.Version, r.Reduce(s, UpsertReviewProduct{Product: bad}).Version, bad.Name)
	}

	assert.Equal(t, s.Version, r.Reduce(s, SetProductsAndAdvance{Products: models.Catalog{}}).Version)
}

func TestExtractionSteps(t *testing.T) {
	r := testReducer()
	s := r.Reduce(NewState("s1"), BeginExtraction{})
	require.Equal(t, StepLoading, s.Step)

	failed := r.Reduce(s, ExtractionFailed{Err: "timeout"})
	assert.Equal(t, StepLanding, failed.Step)
	assert.Contains(t, failed.Notice, "timeout")
	assert.Empty(t, r.Reduce(failed, DismissNotice{}).Notice)

	ok := r.Reduce(s, SetProductsForReview{Products: catalog(product("a", "A", 100, 1))})
	assert.Equal(t, StepReviewing, ok.Step)
	assert.Len(t, ok.Review, 1)
}

func TestSessionLoad(t *testing.T) {
	r := testReducer()
	local, _ := assigning(t, r, catalog(product("a", "A", 100, 1)), "Ana")

	s := r.Reduce(local, BeginSessionLoad{SessionID: "remote"})
	require.Equal(t, StepLoadingSession, s.Step)
	assert.True(t, s.Shared)
	assert.Empty(t, s.Session.Diners)

	missing := r.Reduce(s, SessionNotFound{SessionID: "remote"})
	assert.Equal(t, StepLanding, missing.Step)
	assert.NotEqual(t, "remote", missing.SessionID)
	assert.False(t, missing.Shared)
	assert.NotEmpty(t, missing.Notice)

	snap := local.Session.Clone()
	loaded := r.Reduce(s, LoadSnapshot{SessionID: "remote", Snapshot: snap})
	assert.Equal(t, StepAssigning, loaded.Step)
	assert.Equal(t, "remote", loaded.SessionID)
	require.Len(t, loaded.Session.Diners, 1)
	assert.False(t, loaded.Dirty(), "a loaded snapshot is already persisted")
	assert.False(t, loaded.NeedsSave())
	assert.Equal(t, snap.LastUpdated, loaded.Sync.LastApplied)

	empty := r.Reduce(s, LoadSnapshot{SessionID: "remote", Snapshot: models.NewSession()})
	assert.Equal(t, StepReviewing, empty.Step)
}

func TestSessionLoadFailure(t *testing.T) {
	r := testReducer()
	s := r.Reduce(NewState("local"), BeginSessionLoad{SessionID: "remote"})

	assert.Equal(t, s.Version, r.Reduce(s, LoadFailed{SessionID: "other", Err: "x"}).Version)

	failed := r.Reduce(s, LoadFailed{SessionID: "remote", Err: "connection refused"})
	assert.Equal(t, StepLoadingSession, failed.Step)
	assert.Equal(t, SyncError, failed.Sync.Status)
	assert.Contains(t, failed.Notice, "connection refused")
	assert.False(t, failed.NeedsSave())

	snap := models.NewSession()
	snap.MasterProducts = catalog(product("a", "A", 100, 1))
	snap.LastUpdated = epoch.Add(time.Hour)

	// A feed notification completes the load
	synced := r.Reduce(failed, SyncSnapshot{SessionID: "remote", Snapshot: snap})
	assert.Equal(t, StepAssigning, synced.Step)
	assert.Equal(t, SyncIdle, synced.Sync.Status)
	assert.Empty(t, synced.Notice)

	loaded := r.Reduce(failed, LoadSnapshot{SessionID: "remote", Snapshot: snap})
	assert.Equal(t, SyncIdle, loaded.Sync.Status)
	assert.Empty(t, loaded.Sync.Err)
}

func TestSaveStartedDefaultsToCurrentSnapshot(t *testing.T) {
	r := testReducer()
	s, _ := assigning(t, r, catalog(product("a", "A", 100, 1)), "Ana")
	s = r.Reduce(s, Publish{})

	saving := r.Reduce(s, SaveStarted{})
	assert.Equal(t, s.Session.LastUpdated, saving.Sync.InFlight)
}

func TestResetSession(t *testing.T) {
	r := testReducer()
	s, _ := assigning(t, r, catalog(product("a", "A", 100, 1)), "Ana")
	s.Shared = true

	reset := r.Reduce(s, ResetSession{})
	assert.Equal(t, StepLanding, reset.Step)
	assert.False(t, reset.Shared)
	assert.NotEqual(t, s.SessionID, reset.SessionID)
	assert.Empty(t, reset.Session.Diners)
	assert.Greater(t, reset.Version, s.Version)
}

// shared returns a published, saved session with one diner.
func shared(t *testing.T, r Reducer) State {
	t.Helper()
	s, _ := assigning(t, r, catalog(product("pizza", "Pizza", 10000, 2)), "Ana")
	s = r.Reduce(s, Publish{})
	require.True(t, s.NeedsSave())
	s = r.Reduce(s, SaveStarted{Snapshot: s.Session.LastUpdated})
	s = r.Reduce(s, SaveSucceeded{Saved: s.Sync.InFlight})
	require.False(t, s.Dirty())
	return s
}

func TestSaveFlow(t *testing.T) {
	r := testReducer()
	s, _ := assigning(t, r, catalog(product("a", "A", 100, 1)), "Ana")
	assert.False(t, s.NeedsSave(), "local sessions are never saved")
	assert.Equal(t, s.Version, r.Reduce(s, SaveStarted{Snapshot: s.Session.LastUpdated}).Version)

	s = r.Reduce(s, Publish{})
	require.True(t, s.NeedsSave())

	saving := r.Reduce(s, SaveStarted{Snapshot: s.Session.LastUpdated})
	assert.Equal(t, SyncSaving, saving.Sync.Status)
	assert.False(t, saving.NeedsSave())
	assert.Equal(t, saving.Version, r.Reduce(saving, SaveStarted{Snapshot: s.Session.LastUpdated}).Version,
		"only one save in flight")

	done := r.Reduce(saving, SaveSucceeded{Saved: s.Session.LastUpdated})
	assert.Equal(t, SyncSaved, done.Sync.Status)
	assert.False(t, done.Dirty())
	assert.Equal(t, s.Session.LastUpdated, done.Sync.LastApplied)
}

func TestSaveFailureWaitsForNextMutation(t *testing.T) {
	r := testReducer()
	s := shared(t, r)
	s = r.Reduce(s, AddDiner{Name: "Ben"})
	s = r.Reduce(s, SaveStarted{Snapshot: s.Session.LastUpdated})

	failed := r.Reduce(s, SaveFailed{Payload: s.Session, Err: "unavailable"})
	assert.Equal(t, SyncError, failed.Sync.Status)
	require.NotNil(t, failed.Sync.Failed)
	assert.Len(t, failed.Sync.Failed.Diners, 2)
	assert.True(t, failed.Dirty())
	assert.False(t, failed.NeedsSave(), "no automatic retry")

	edited := r.Reduce(failed, AddDiner{Name: "Cleo"})
	assert.True(t, edited.NeedsSave())

	retried := r.Reduce(failed, SaveStarted{Snapshot: failed.Sync.Failed.LastUpdated})
	retried = r.Reduce(retried, SaveSucceeded{Saved: failed.Sync.Failed.LastUpdated})
	assert.Nil(t, retried.Sync.Failed)
	assert.False(t, retried.Dirty())
}

func TestSyncSnapshotMonotonic(t *testing.T) {
	r := testReducer()
	s := shared(t, r)

	remote := s.Session.Clone()
	remote.Diners = append(remote.Diners, models.Diner{ID: "ben", Name: "Ben", SelectedItems: []models.LineItem{}})
	remote.LastUpdated = s.Session.LastUpdated.Add(time.Minute)

	applied := r.Reduce(s, SyncSnapshot{SessionID: s.SessionID, Snapshot: remote})
	require.Len(t, applied.Session.Diners, 2)
	assert.Equal(t, remote.LastUpdated, applied.Sync.LastApplied)
	assert.False(t, applied.Dirty(), "a clean merge is not written back")

	stale := remote.Clone()
	stale.Diners = stale.Diners[:1]
	stale.LastUpdated = remote.LastUpdated
	assert.Equal(t, applied.Version, r.Reduce(applied, SyncSnapshot{SessionID: s.SessionID, Snapshot: stale}).Version)

	other := r.Reduce(applied, SyncSnapshot{SessionID: "other", Snapshot: remote})
	assert.Equal(t, applied.Version, other.Version)
}

func TestSyncSnapshotIgnoresOwnEcho(t *testing.T) {
	r := testReducer()
	s := shared(t, r)
	s = r.Reduce(s, AddDiner{Name: "Ben"})
	s = r.Reduce(s, SaveStarted{Snapshot: s.Session.LastUpdated})

	echo := r.Reduce(s, SyncSnapshot{SessionID: s.SessionID, Snapshot: s.Session.Clone()})
	assert.Equal(t, s.Version, echo.Version)

	done := r.Reduce(s, SaveSucceeded{Saved: s.Session.LastUpdated})
	late := r.Reduce(done, SyncSnapshot{SessionID: s.SessionID, Snapshot: s.Session.Clone()})
	assert.Equal(t, done.Version, late.Version)
}

func TestSyncSnapshotWhileDirtyPushesMerge(t *testing.T) {
	r := testReducer()
	s := shared(t, r)
	ana := s.Session.Diners[0].ID

	local := r.Reduce(s, AddFullItem{DinerID: ana, ProductID: "pizza"})
	require.True(t, local.Dirty())

	remote := s.Session.Clone()
	remote.Diners = append(remote.Diners, models.Diner{ID: "ben", Name: "Ben", SelectedItems: []models.LineItem{}})
	remote.LastUpdated = local.Session.LastUpdated.Add(time.Minute)

	merged := r.Reduce(local, SyncSnapshot{SessionID: s.SessionID, Snapshot: remote})
	require.Len(t, merged.Session.Diners, 2)
	assert.Equal(t, 1, item(t, merged, ana, models.FullKey("pizza")).Quantity)
	assert.True(t, merged.Session.LastUpdated.After(remote.LastUpdated))
	assert.True(t, merged.NeedsSave())
	assert.Equal(t, 1, merged.Session.AvailableProducts["pizza"].Quantity)
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	r := testReducer()
	s, ids := assigning(t, r, catalog(product("pizza", "Pizza", 10000, 1)), "A", "B")
	s = r.Reduce(s, ShareItem{ProductID: "pizza", DinerIDs: ids})
	group := onlyGroup(t, s)
	before := s.Session.Clone()

	r.Reduce(s, RemoveItem{DinerID: ids[0], Key: models.SharedKey(group)})
	r.Reduce(s, RemoveDiner{DinerID: ids[1]})
	r.Reduce(s, ApplyDiscount{Percentage: "5"})

	assert.Equal(t, before, s.Session)
}
