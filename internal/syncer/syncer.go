// Package syncer keeps a session store and its remote copy in step.
//
// It watches the store and saves every mutation of a shared session, one
// save at a time, and follows the change feed of the current session. A
// failed save is kept for a single manual Retry.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmynk/tabsplit/internal/gateway"
	"github.com/mmynk/tabsplit/internal/models"
	"github.com/mmynk/tabsplit/internal/session"
)

var (
	// ErrNothingToRetry is returned by Retry when no save or load failed.
	ErrNothingToRetry = errors.New("nothing to retry")

	// ErrSaveInFlight is returned by Retry while another save runs.
	ErrSaveInFlight = errors.New("a save is already in progress")
)

// Remote is the session gateway as seen by the syncer.
type Remote interface {
	FetchSession(ctx context.Context, id string) (models.Session, error)
	UpsertSession(ctx context.Context, id string, s models.Session) error
	Subscribe(ctx context.Context, id string, onChange func(models.Session)) (gateway.Subscription, error)
}

// Syncer saves and follows the session held by a store.
type Syncer struct {
	store  *session.Store
	remote Remote
	ctx    context.Context
	cancel context.CancelFunc

	unsubscribe func()
	saves       sync.WaitGroup

	mu       sync.Mutex
	followed string
	sub      gateway.Subscription
	closed   bool
}

// New starts syncing store with remote. The feed subscription lives until
// ctx ends or Close is called; saves already started always complete.
func New(ctx context.Context, store *session.Store, remote Remote) *Syncer {
	ctx, cancel := context.WithCancel(ctx)
	s := &Syncer{
		store:  store,
		remote: remote,
		ctx:    ctx,
		cancel: cancel,
	}
	s.unsubscribe = store.Subscribe(s.observe)
	s.observe(store.State())
	return s
}

// observe runs after every transition, possibly on several goroutines at
// once. It acts on the store's current state, not on st, so a listener that
// runs late cannot follow or save a session that has since been replaced.
func (s *Syncer) observe(session.State) {
	s.follow(s.feedTarget)
	if !s.store.State().NeedsSave() {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.saves.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.saves.Done()
		s.save()
	}()
}

// feedTarget is the session whose feed should be followed: the current one
// when shared, none otherwise.
func (s *Syncer) feedTarget() string {
	st := s.store.State()
	if !st.Shared {
		return ""
	}
	return st.SessionID
}

// save persists the current session if this call wins SaveStarted.
func (s *Syncer) save() {
	st, ok := s.store.Dispatch(session.SaveStarted{})
	if !ok {
		return
	}
	s.upsert(st.SessionID, st.Session)
}

func (s *Syncer) upsert(id string, payload models.Session) error {
	ctx := context.WithoutCancel(s.ctx)
	err := s.remote.UpsertSession(ctx, id, payload)

	if s.store.State().SessionID != id {
		// The session was reset or replaced while saving
		return err
	}
	if err != nil {
		slog.Warn("Session save failed", "session_id", id, "error", err)
		s.store.Dispatch(session.SaveFailed{Payload: payload, Err: err.Error()})
		return err
	}
	slog.Debug("Session saved", "session_id", id, "last_updated", payload.LastUpdated)
	s.store.Dispatch(session.SaveSucceeded{Saved: payload.LastUpdated})
	return nil
}

// Load replaces the local session with the shared session id and fetches
// its document.
func (s *Syncer) Load(ctx context.Context, id string) error {
	s.store.Dispatch(session.BeginSessionLoad{SessionID: id})
	return s.fetch(ctx, id)
}

func (s *Syncer) fetch(ctx context.Context, id string) error {
	snap, err := s.remote.FetchSession(ctx, id)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		slog.Info("Shared session not found", "session_id", id)
		s.store.Dispatch(session.SessionNotFound{SessionID: id})
		return err
	case err != nil:
		slog.Warn("Session load failed", "session_id", id, "error", err)
		s.store.Dispatch(session.LoadFailed{SessionID: id, Err: err.Error()})
		return err
	}
	s.store.Dispatch(session.LoadSnapshot{SessionID: id, Snapshot: snap})
	return nil
}

// Retry resubmits the payload of the last failed save, or fetches again a
// session whose load failed.
func (s *Syncer) Retry(ctx context.Context) error {
	st := s.store.State()
	if st.Sync.Status != session.SyncError {
		return ErrNothingToRetry
	}
	if st.Sync.Failed == nil {
		if st.Step != session.StepLoadingSession {
			return ErrNothingToRetry
		}
		return s.fetch(ctx, st.SessionID)
	}

	payload := st.Sync.Failed.Clone()
	next, ok := s.store.Dispatch(session.SaveStarted{Snapshot: payload.LastUpdated})
	if !ok {
		return ErrSaveInFlight
	}
	if err := s.upsert(next.SessionID, payload); err != nil {
		return fmt.Errorf("retry save: %w", err)
	}
	return nil
}

// Follow subscribes to the change feed of id, closing the previous
// subscription. An empty id only closes.
func (s *Syncer) Follow(id string) {
	s.follow(func() string { return id })
}

// follow resolves target under the lock, so concurrent callers settle on
// the last target resolved.
func (s *Syncer) follow(target func() string) {
	s.mu.Lock()
	id := target()
	if s.closed || id == s.followed {
		s.mu.Unlock()
		return
	}
	prev := s.sub
	s.sub = nil
	s.followed = id
	s.mu.Unlock()

	// Close waits for the last notification, which may dispatch
	if prev != nil {
		prev.Close()
	}
	if id == "" {
		return
	}

	sub, err := s.remote.Subscribe(s.ctx, id, func(snap models.Session) {
		s.store.Dispatch(session.SyncSnapshot{SessionID: id, Snapshot: snap})
	})
	if err != nil {
		slog.Warn("Failed to follow session", "session_id", id, "error", err)
		return
	}

	s.mu.Lock()
	if s.closed || s.followed != id {
		s.mu.Unlock()
		sub.Close()
		return
	}
	s.sub = sub
	s.mu.Unlock()
}

// Close stops following the feed and waits for running saves.
func (s *Syncer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	s.unsubscribe()
	s.cancel()
	if sub != nil {
		sub.Close()
	}
	s.saves.Wait()
	return nil
}
