package session

import (
	"time"

	"github.com/mmynk/tabsplit/internal/models"
)

// Action is a named state transition. The set of actions is closed.
type Action interface {
	action()
}

// AddDiner appends a diner. Ignored when the name is blank or the session
// already holds models.MaxDiners diners.
type AddDiner struct{ Name string }

// RemoveDiner removes a diner, leaving every share group it belonged to and
// returning its units to the pool.
type RemoveDiner struct{ DinerID string }

// AddFullItem gives the diner one more unit of the product. Ignored when no
// unit is available.
type AddFullItem struct{ DinerID, ProductID string }

// ShareItem splits one unit of the product evenly among the diners, in a new
// share group.
type ShareItem struct {
	ProductID string
	DinerIDs  []string
}

// JoinShare adds a diner to an existing share group and reprices every
// member.
type JoinShare struct{ ShareGroupID, DinerID string }

// RemoveItem removes the line item with the given key (LineItem.Key) from the
// diner. For Shared items the diner leaves the share group.
type RemoveItem struct{ DinerID, Key string }

// ClearDinerItems empties a diner's selection.
type ClearDinerItems struct{ DinerID string }

// ApplyDiscount sets the discount from user input. Unparseable values are 0.
type ApplyDiscount struct{ Percentage, Cap string }

// LoadSnapshot installs the remote document of a shared session at start-up,
// reconciled with whatever is held locally.
type LoadSnapshot struct {
	SessionID string
	Snapshot  models.Session
}

// SyncSnapshot reconciles a change-feed notification. Ignored unless it is
// for the current session and strictly newer than the last one applied.
type SyncSnapshot struct {
	SessionID string
	Snapshot  models.Session
}

// SetProductsForReview opens the review step with the given catalog.
type SetProductsForReview struct{ Products models.Catalog }

// SetProductsAndAdvance makes the catalog the master product list and opens
// the assigning step.
type SetProductsAndAdvance struct{ Products models.Catalog }

// UpsertReviewProduct adds or replaces a product of the review catalog.
// Ignored when the name is blank or price or quantity are not positive.
type UpsertReviewProduct struct{ Product models.Product }

// DeleteReviewProduct drops a product from the review catalog.
type DeleteReviewProduct struct{ ProductID string }

// EditProducts returns from assigning to review with the master catalog.
type EditProducts struct{}

// ResetSession discards everything and starts a new local-only session.
type ResetSession struct{}

// BeginExtraction moves from landing to loading while a receipt is read.
type BeginExtraction struct{}

// ExtractionFailed returns to landing with the error as notice.
type ExtractionFailed struct{ Err string }

// BeginManualEntry opens an empty review catalog.
type BeginManualEntry struct{}

// BeginSessionLoad discards local state and waits for a shared session.
type BeginSessionLoad struct{ SessionID string }

// SessionNotFound abandons a shared session that does not exist remotely.
type SessionNotFound struct{ SessionID string }

// Publish gives a local-only session a remote copy.
type Publish struct{}

// SaveStarted marks a save of the snapshot stamped Snapshot as in flight. A
// zero Snapshot means the current session. Ignored while another save runs;
// the caller must check Store.Dispatch's result before saving.
type SaveStarted struct{ Snapshot time.Time }

// SaveSucceeded records a persisted snapshot.
type SaveSucceeded struct{ Saved time.Time }

// SaveFailed records a failed save and keeps its payload for one retry.
type SaveFailed struct {
	Payload models.Session
	Err     string
}

// LoadFailed reports that a shared session could not be fetched. The
// session stays in loading_session until a retry or a feed notification.
type LoadFailed struct {
	SessionID string
	Err       string
}

// DismissNotice clears the notice.
type DismissNotice struct{}

func (AddDiner) action()              {}
func (RemoveDiner) action()           {}
func (AddFullItem) action()           {}
func (ShareItem) action()             {}
func (JoinShare) action()             {}
func (RemoveItem) action()            {}
func (ClearDinerItems) action()       {}
func (ApplyDiscount) action()         {}
func (LoadSnapshot) action()          {}
func (SyncSnapshot) action()          {}
func (SetProductsForReview) action()  {}
func (SetProductsAndAdvance) action() {}
func (UpsertReviewProduct) action()   {}
func (DeleteReviewProduct) action()   {}
func (EditProducts) action()          {}
func (ResetSession) action()          {}
func (BeginExtraction) action()       {}
func (ExtractionFailed) action()      {}
func (BeginManualEntry) action()      {}
func (BeginSessionLoad) action()      {}
func (SessionNotFound) action()       {}
func (Publish) action()               {}
func (SaveStarted) action()           {}
func (SaveSucceeded) action()         {}
func (SaveFailed) action()            {}
func (DismissNotice) action()         {}
func (LoadFailed) action()            {}
