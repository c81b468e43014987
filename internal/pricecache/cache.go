// Package pricecache maintains a connection-scoped, in-memory mirror of
// the crypto_prices table, fed by the price change stream. The cache is a
// lagging, best-effort view: anything needing an authoritative price must
// read the durable store directly.
package pricecache

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/interfaces"
	"github.com/bobmcallan/coindex/internal/models"
)

// State is the cache's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateSubscribing  State = "subscribing"
	StateConnected    State = "connected"
)

// Reader is the slice of the price store the cache needs for its
// authoritative reloads.
type Reader interface {
	ListPrices(ctx context.Context) ([]*models.PriceRecord, error)
}

// Cache merges the price change stream into a local mapping keyed by
// symbol and tracks the last observed percentage delta per symbol.
type Cache struct {
	reader Reader
	stream interfaces.PriceStream
	logger *common.Logger

	mu     sync.RWMutex
	prices map[string]models.PriceRecord
	deltas map[string]float64
	state  State

	closeMu sync.Mutex
	closed  bool
	done    chan struct{}
}

// New creates a cache over the given store reader and stream. Nothing is
// loaded until Subscribe.
func New(reader Reader, stream interfaces.PriceStream, logger *common.Logger) *Cache {
	return &Cache{
		reader: reader,
		stream: stream,
		logger: logger,
		prices: make(map[string]models.PriceRecord),
		deltas: make(map[string]float64),
		state:  StateDisconnected,
	}
}

// Subscribe establishes the stream subscription. It blocks only until the
// subscribe handshake completes; the authoritative initial load runs in
// the background so event delivery is never stalled behind it.
func (c *Cache) Subscribe(ctx context.Context) error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return context.Canceled
	}
	c.done = make(chan struct{})
	done := c.done
	c.closeMu.Unlock()

	c.setState(StateSubscribing)

	ch, err := c.stream.Subscribe(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.setState(StateConnected)
	go c.reload(ctx)
	go c.run(ctx, ch, done)

	return nil
}

// Unsubscribe tears down the subscription. Safe to call multiple times;
// no events are merged after it returns.
func (c *Cache) Unsubscribe() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	done := c.done
	c.closeMu.Unlock()

	err := c.stream.Unsubscribe()
	if done != nil {
		<-done
	}
	c.setState(StateDisconnected)
	return err
}

// GetPrice returns the cached record for a symbol. Defined in every
// connection state; returns false rather than blocking while not
// connected.
func (c *Cache) GetPrice(symbol string) (models.PriceRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.prices[symbol]
	return rec, ok
}

// GetPriceChange returns the last observed percentage delta for a symbol,
// or zero when none has been seen.
func (c *Cache) GetPriceChange(symbol string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deltas[symbol]
}

// Len returns the number of cached symbols.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}

// State returns the current connection state.
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Cache) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// run consumes stream events until Unsubscribe. A dropped stream triggers
// resubscription with exponential backoff; every reconnect performs a
// fresh authoritative reload because the stream guarantees nothing about
// delivery during the outage.
func (c *Cache) run(ctx context.Context, ch <-chan models.PriceEvent, done chan struct{}) {
	defer close(done)

	for {
		for event := range ch {
			c.apply(event)
		}

		// Stream closed: either we unsubscribed, or the connection dropped.
		if c.isClosed() || ctx.Err() != nil {
			return
		}

		c.setState(StateSubscribing)
		c.logger.Warn().Msg("Price stream dropped, resubscribing")

		next, err := c.resubscribe(ctx)
		if err != nil {
			c.setState(StateDisconnected)
			c.logger.Error().Err(err).Msg("Price stream resubscribe abandoned")
			return
		}

		c.setState(StateConnected)
		go c.reload(ctx)
		ch = next
	}
}

// resubscribe retries the stream handshake with exponential backoff until
// it succeeds, the context is cancelled, or the cache is unsubscribed.
func (c *Cache) resubscribe(ctx context.Context) (<-chan models.PriceEvent, error) {
	var ch <-chan models.PriceEvent

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry until cancelled

	operation := func() error {
		if c.isClosed() {
			return backoff.Permanent(context.Canceled)
		}
		// A dropped stream can leave the subscription half-open, and
		// Subscribe refuses to stack a second one on top of it. Reset
		// before every attempt.
		c.stream.Unsubscribe()
		next, err := c.stream.Subscribe(ctx)
		if err != nil {
			return err
		}
		if c.isClosed() {
			c.stream.Unsubscribe()
			return backoff.Permanent(context.Canceled)
		}
		ch = next
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return ch, nil
}

// reload replaces the local view with the durable store's current state.
// Runs in its own goroutine so it never stalls event delivery. Records
// already updated by a newer stream event are left alone.
func (c *Cache) reload(ctx context.Context) {
	prices, err := c.reader.ListPrices(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Price cache reload failed")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range prices {
		existing, ok := c.prices[rec.Symbol]
		if ok && existing.UpdatedAt.After(rec.UpdatedAt) {
			continue
		}
		c.prices[rec.Symbol] = *rec
	}
}

// apply merges one stream event. The merge is atomic with respect to the
// event: readers see either the pre- or post-merge state, never a partial
// one.
func (c *Cache) apply(event models.PriceEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch event.Kind {
	case models.PriceEventDelete:
		symbol := event.Record.Symbol
		if symbol == "" && event.Before != nil {
			symbol = event.Before.Symbol
		}
		delete(c.prices, symbol)
		delete(c.deltas, symbol)

	case models.PriceEventCreate, models.PriceEventUpdate:
		rec := event.Record
		if old, ok := c.prices[rec.Symbol]; ok && old.PriceUSD > 0 {
			c.deltas[rec.Symbol] = (rec.PriceUSD - old.PriceUSD) / old.PriceUSD * 100
		}
		// First sighting: no prior record, no delta to report.
		c.prices[rec.Symbol] = rec
	}
}

func (c *Cache) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}
