package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/tabsplit/internal/api"
	"github.com/mmynk/tabsplit/internal/models"
)

// Subscription is a live watch of one session.
type Subscription interface {
	// Close stops the watch and waits for the last onChange call to return.
	Close() error
}

type watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe watches a session and calls onChange with every document the
// server sends, starting with the current one. Dropped streams are reopened
// until the subscription is closed or ctx ends. onChange runs on the
// subscription's goroutine.
func (c *Client) Subscribe(ctx context.Context, id string, onChange func(models.Session)) (Subscription, error) {
	if id == "" {
		return nil, errors.New("session id required")
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &watcher{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		c.watchLoop(ctx, id, onChange)
	}()
	return sub, nil
}

func (s *watcher) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

func (c *Client) watchLoop(ctx context.Context, id string, onChange func(models.Session)) {
	for {
		err := c.watchOnce(ctx, id, onChange)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("Session watch dropped", "session_id", id, "error", err, "retry_in", c.reconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) watchOnce(ctx context.Context, id string, onChange func(models.Session)) error {
	stream, err := c.watch.WatchSession(ctx, connect.NewRequest(&api.WatchSessionRequest{SessionID: id}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		s, err := api.DecodeDocument(stream.Msg().Document)
		if err != nil {
			slog.Warn("Skipping malformed session document", "session_id", id, "error", err)
			continue
		}
		onChange(s)
	}
	if err := stream.Err(); err != nil {
		return err
	}
	return errors.New("stream ended")
}
