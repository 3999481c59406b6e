// Package session holds the bill-splitting state of one device and the pure
// transition function that changes it.
//
// Every change goes through Reducer.Reduce with an Action. Reduce never
// mutates the state it is given: it returns a new State, or the same State
// when the action does not apply (unknown diner, nothing left to assign,
// duplicate save, ...). Store serialises dispatches from the UI, the change
// feed and the sync coordinator.
package session

import (
	"time"

	"github.com/mmynk/tabsplit/internal/models"
)

// Step is the screen the presentation layer shows.
type Step string

const (
	StepLanding        Step = "landing"
	StepLoading        Step = "loading"
	StepReviewing      Step = "reviewing"
	StepAssigning      Step = "assigning"
	StepLoadingSession Step = "loading_session"
)

// SyncStatus is the persistence state of the session.
type SyncStatus string

const (
	SyncIdle   SyncStatus = "idle"
	SyncSaving SyncStatus = "saving"
	SyncSaved  SyncStatus = "saved"
	SyncError  SyncStatus = "error"
)

// SyncState tracks what the remote copy has seen.
type SyncState struct {
	Status SyncStatus

	// LastSaved is the LastUpdated of the newest snapshot known to be
	// persisted, whether written by this device or applied from the feed.
	LastSaved time.Time

	// LastApplied is the LastUpdated of the newest remote snapshot applied
	// or written. Feed notifications not strictly newer are ignored.
	LastApplied time.Time

	// InFlight is the LastUpdated of the snapshot being saved. Its echo on
	// the change feed is ignored.
	InFlight time.Time

	// Failed is the payload of the last failed save, kept for one retry.
	Failed *models.Session
	Err    string
}

// State is everything one device knows about the bill.
type State struct {
	Step Step

	// SessionID keys the remote document.
	SessionID string

	// Shared is set once the session has a remote copy. Local-only sessions
	// are never saved.
	Shared bool

	Session models.Session

	// Review is the catalog being edited before assignment starts.
	Review models.Catalog

	Sync SyncState

	// Notice is a message for the user (not found, extraction failed, ...).
	Notice string

	// Version increases on every effective transition.
	Version uint64
}

// NewState returns the landing state of a local-only session.
func NewState(sessionID string) State {
	return State{
		Step:      StepLanding,
		SessionID: sessionID,
		Session:   models.NewSession(),
		Review:    models.Catalog{},
		Sync:      SyncState{Status: SyncIdle},
	}
}

// Dirty reports whether the session changed since it was last persisted.
func (s State) Dirty() bool {
	return s.Session.LastUpdated.After(s.Sync.LastSaved)
}

// NeedsSave reports whether a save should start now. After a failure only a
// newer mutation starts another save; the failed payload waits for a manual
// retry.
func (s State) NeedsSave() bool {
	if !s.Shared || !s.Dirty() || s.Sync.Status == SyncSaving {
		return false
	}
	if s.Sync.Status == SyncError && s.Sync.Failed != nil {
		return s.Session.LastUpdated.After(s.Sync.Failed.LastUpdated)
	}
	return true
}
