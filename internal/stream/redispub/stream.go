// Package redispub carries price row-change events over a Redis pub/sub
// channel, standing in for the durable store's native change feed.
package redispub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/interfaces"
	"github.com/bobmcallan/coindex/internal/models"
)

// DefaultChannel is the pub/sub channel for price events.
const DefaultChannel = "prices.events"

const (
	healthInterval = 30 * time.Second
	pingTimeout    = 5 * time.Second
)

// Publisher emits price events on the channel. One publisher is shared by
// all writers.
type Publisher struct {
	client  *redis.Client
	channel string
	logger  *common.Logger
}

// NewPublisher creates a publisher on the given channel.
func NewPublisher(client *redis.Client, channel string, logger *common.Logger) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// Publish marshals the event and fires it on the channel. Pub/sub is
// fire-and-forget: subscribers that are offline miss the event and repair
// via a full reload on reconnect.
func (p *Publisher) Publish(ctx context.Context, event models.PriceEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal price event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish price event: %w", err)
	}
	return nil
}

// Subscriber is one connection-scoped subscription to the price event
// channel. Create one per consumer; it is not shared.
type Subscriber struct {
	client  *redis.Client
	channel string
	logger  *common.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	quit   chan struct{}
}

// NewSubscriber creates a subscriber for the given channel.
func NewSubscriber(client *redis.Client, channel string, logger *common.Logger) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Subscriber{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// Subscribe blocks until the subscription handshake completes, then
// returns the event channel. The channel closes when the stream drops or
// Unsubscribe is called. Subscribe may be called again after Unsubscribe.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan models.PriceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pubsub != nil {
		return nil, fmt.Errorf("already subscribed to %s", s.channel)
	}

	ps := s.client.Subscribe(ctx, s.channel)

	// Receive blocks until the server confirms the subscription, so the
	// caller knows the handshake completed before any reload.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	quit := make(chan struct{})
	out := make(chan models.PriceEvent, 64)
	s.pubsub = ps
	s.quit = quit

	go s.forward(ps, out, quit)

	return out, nil
}

// forward decodes raw messages into price events until the pub/sub
// channel closes, a health check fails, or Unsubscribe fires.
func (s *Subscriber) forward(ps *redis.PubSub, out chan<- models.PriceEvent, quit <-chan struct{}) {
	defer close(out)

	// go-redis keeps the message channel open across network drops and
	// resubscribes silently, so a broken transport never surfaces there.
	// Periodic pings make the drop observable: a failed ping closes the
	// event channel and the consumer resubscribes and reloads.
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	raw := ps.Channel()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), pingTimeout)
			err := ps.Ping(pingCtx)
			cancel()
			if err != nil {
				s.logger.Warn().Err(err).Str("channel", s.channel).Msg("Price stream health check failed, dropping subscription")
				return
			}
		case msg, ok := <-raw:
			if !ok {
				return
			}
			var event models.PriceEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn().Err(err).Msg("Dropping malformed price event")
				continue
			}
			select {
			case out <- event:
			case <-quit:
				return
			}
		}
	}
}

// Unsubscribe stops delivery. It is safe to call multiple times; no
// events are forwarded after it returns.
func (s *Subscriber) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pubsub == nil {
		return nil
	}

	close(s.quit)
	err := s.pubsub.Close()
	s.pubsub = nil
	s.quit = nil
	if err != nil {
		return fmt.Errorf("failed to close subscription: %w", err)
	}
	return nil
}

// Compile-time checks
var (
	_ interfaces.PricePublisher = (*Publisher)(nil)
	_ interfaces.PriceStream    = (*Subscriber)(nil)
)
