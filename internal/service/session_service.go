package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mmynk/tabsplit/internal/api"
	"github.com/mmynk/tabsplit/internal/feed"
	"github.com/mmynk/tabsplit/internal/metrics"
	"github.com/mmynk/tabsplit/internal/middleware"
	"github.com/mmynk/tabsplit/internal/models"
	"github.com/mmynk/tabsplit/internal/storage"
)

// SessionService implements the Connect SessionService
type SessionService struct {
	store   storage.Store
	broker  feed.Broker
	metrics *metrics.Metrics
}

var _ api.SessionServiceHandler = (*SessionService)(nil)

// NewSessionService creates a new SessionService with the given storage
// backend and change feed.
func NewSessionService(store storage.Store, broker feed.Broker, m *metrics.Metrics) *SessionService {
	return &SessionService{store: store, broker: broker, metrics: m}
}

// GetSession returns the stored document of a session.
func (s *SessionService) GetSession(ctx context.Context, req *connect.Request[api.GetSessionRequest]) (*connect.Response[api.GetSessionResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}

	rec, err := s.store.GetSession(ctx, req.Msg.SessionID)
	if errors.Is(err, storage.ErrNotFound) {
		s.metrics.SessionLoads.WithLabelValues(metrics.ResultNotFound).Inc()
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	if err != nil {
		s.metrics.SessionLoads.WithLabelValues(metrics.ResultError).Inc()
		slog.Error("GetSession failed", "session_id", req.Msg.SessionID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	doc, err := api.EncodeDocument(rec.Session)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	s.metrics.SessionLoads.WithLabelValues(metrics.ResultOK).Inc()

	return connect.NewResponse(&api.GetSessionResponse{
		SessionID: rec.ID,
		Document:  doc,
		UpdatedBy: rec.UpdatedBy,
		UpdatedAt: rec.UpdatedAt,
	}), nil
}

// UpsertSession overwrites the document of a session and notifies its
// watchers.
func (s *SessionService) UpsertSession(ctx context.Context, req *connect.Request[api.UpsertSessionRequest]) (*connect.Response[api.UpsertSessionResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}

	session, err := api.DecodeDocument(req.Msg.Document)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	deviceID := middleware.GetDeviceID(ctx)
	if err := s.store.UpsertSession(ctx, req.Msg.SessionID, session, deviceID); err != nil {
		s.metrics.SessionSaves.WithLabelValues(metrics.ResultError).Inc()
		slog.Error("UpsertSession failed", "session_id", req.Msg.SessionID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	s.metrics.SessionSaves.WithLabelValues(metrics.ResultOK).Inc()

	// The write already succeeded; watchers catch up on their next fetch
	if err := s.broker.Publish(ctx, req.Msg.SessionID, session); err != nil {
		slog.Warn("Failed to publish session change", "session_id", req.Msg.SessionID, "error", err)
	}

	slog.Debug("Session saved",
		"session_id", req.Msg.SessionID,
		"device_id", deviceID,
		"diners", len(session.Diners),
		"last_updated", session.LastUpdated,
	)

	return connect.NewResponse(&api.UpsertSessionResponse{
		SessionID:   req.Msg.SessionID,
		LastUpdated: session.LastUpdated,
	}), nil
}

// WatchSession streams the current document, if any, then every document
// written to the session until the client goes away.
func (s *SessionService) WatchSession(ctx context.Context, req *connect.Request[api.WatchSessionRequest], stream *connect.ServerStream[api.WatchSessionResponse]) error {
	if err := validateMsg(req.Msg); err != nil {
		return err
	}
	id := req.Msg.SessionID

	sub, err := s.broker.Subscribe(ctx, id)
	if err != nil {
		return connect.NewError(connect.CodeUnavailable, fmt.Errorf("failed to subscribe: %w", err))
	}
	defer sub.Close()

	s.metrics.ActiveWatchers.Inc()
	defer s.metrics.ActiveWatchers.Dec()

	rec, err := s.store.GetSession(ctx, id)
	switch {
	case err == nil:
		if err := s.send(stream, id, rec.Session); err != nil {
			return err
		}
	case !errors.Is(err, storage.ErrNotFound):
		return connect.NewError(connect.CodeInternal, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case session, ok := <-sub.C():
			if !ok {
				return connect.NewError(connect.CodeUnavailable, errors.New("change feed closed"))
			}
			if err := s.send(stream, id, session); err != nil {
				return err
			}
			s.metrics.Notifications.Inc()
		}
	}
}

func (s *SessionService) send(stream *connect.ServerStream[api.WatchSessionResponse], id string, session models.Session) error {
	doc, err := api.EncodeDocument(session)
	if err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}
	return stream.Send(&api.WatchSessionResponse{SessionID: id, Document: doc})
}

// CreateSession mints the ID of a new shared session. Nothing is stored
// until the first upsert.
func (s *SessionService) CreateSession(ctx context.Context, req *connect.Request[api.CreateSessionRequest]) (*connect.Response[api.CreateSessionResponse], error) {
	id := uuid.NewString()
	slog.Info("Session created", "session_id", id, "device_id", middleware.GetDeviceID(ctx))
	return connect.NewResponse(&api.CreateSessionResponse{SessionID: id}), nil
}
