package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmynk/tabsplit/internal/models"
)

// Ensure RedisBroker implements Broker
var _ Broker = (*RedisBroker)(nil)

// ChannelPrefix namespaces the pub/sub channel of each session.
const ChannelPrefix = "tabsplit:session:"

// RedisBroker is a Broker shared by every server instance through Redis
// pub/sub.
type RedisBroker struct {
	client     *redis.Client
	ownsClient bool
}

// NewRedis connects to the Redis server at url (redis://host:port/db).
func NewRedis(url string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBroker{client: client, ownsClient: true}, nil
}

// NewRedisWithClient wraps an existing client. The caller keeps ownership.
func NewRedisWithClient(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func channel(sessionID string) string {
	return ChannelPrefix + sessionID
}

// Publish sends the document on the session channel.
func (b *RedisBroker) Publish(ctx context.Context, sessionID string, s models.Session) error {
	data, err := models.MarshalDocument(s)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channel(sessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish session: %w", err)
	}
	return nil
}

// Subscribe listens on the session channel until ctx ends or Close.
func (b *RedisBroker) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := b.client.Subscribe(subCtx, channel(sessionID))

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		cancel: cancel,
		ch:     make(chan models.Session, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	go sub.run(subCtx, sessionID)
	return sub, nil
}

// Close closes the client if the broker created it.
func (b *RedisBroker) Close() error {
	if !b.ownsClient {
		return nil
	}
	return b.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	ch     chan models.Session
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) run(ctx context.Context, sessionID string) {
	defer close(s.done)
	defer close(s.ch)
	defer s.pubsub.Close()

	msgs := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			doc, err := models.UnmarshalDocument([]byte(msg.Payload))
			if err != nil {
				slog.Warn("Dropping malformed session notification", "session_id", sessionID, "error", err)
				continue
			}
			offer(s.ch, doc)
		}
	}
}

func (s *redisSubscription) C() <-chan models.Session { return s.ch }

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}
