// Package feed delivers session documents to every client watching a
// session. The server publishes after each successful upsert; watchers see
// the newest document, older undelivered ones may be skipped.
package feed

import (
	"context"
	"errors"

	"github.com/mmynk/tabsplit/internal/models"
)

// ErrClosed is returned when publishing or subscribing on a closed broker.
var ErrClosed = errors.New("feed closed")

// subscriptionBuffer bounds the documents queued for one slow watcher.
const subscriptionBuffer = 8

// Broker fans session documents out to subscribers.
type Broker interface {
	Publish(ctx context.Context, sessionID string, s models.Session) error
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
	Close() error
}

// Subscription is a stream of documents for one session. C is closed after
// Close, or when the subscription context ends.
type Subscription interface {
	C() <-chan models.Session
	Close() error
}

// offer queues s, dropping the oldest queued document when ch is full.
func offer(ch chan models.Session, s models.Session) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
