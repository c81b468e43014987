package pricecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/models"
)

type fakeReader struct {
	mu     sync.Mutex
	prices []*models.PriceRecord
	err    error
	calls  int
}

func (f *fakeReader) ListPrices(ctx context.Context) ([]*models.PriceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*models.PriceRecord, len(f.prices))
	copy(out, f.prices)
	return out, nil
}

func (f *fakeReader) set(prices ...*models.PriceRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices = prices
}

type fakeStream struct {
	mu           sync.Mutex
	current      chan models.PriceEvent
	active       bool
	subscribes   int
	unsubscribes int
	err          error
}

func (f *fakeStream) Subscribe(ctx context.Context) (<-chan models.PriceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	if f.err != nil {
		return nil, f.err
	}
	// Like the real transport: a dropped connection still counts as
	// subscribed until Unsubscribe resets it.
	if f.active {
		return nil, errors.New("already subscribed")
	}
	f.active = true
	f.current = make(chan models.PriceEvent, 16)
	return f.current, nil
}

func (f *fakeStream) Unsubscribe() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes++
	if f.current != nil {
		close(f.current)
		f.current = nil
	}
	f.active = false
	return nil
}

func (f *fakeStream) push(event models.PriceEvent) {
	f.mu.Lock()
	ch := f.current
	f.mu.Unlock()
	ch <- event
}

// drop simulates the stream connection dying: the event channel closes
// but the subscription stays registered until Unsubscribe.
func (f *fakeStream) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.current)
	f.current = nil
}

func (f *fakeStream) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

func (f *fakeStream) unsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribes
}

func record(symbol string, price float64) *models.PriceRecord {
	return &models.PriceRecord{
		Symbol:    symbol,
		PriceUSD:  price,
		UpdatedAt: time.Now().UTC(),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestSubscribeLoadsExistingPrices(t *testing.T) {
	reader := &fakeReader{}
	reader.set(record("BTC", 40000), record("ETH", 2500))
	stream := &fakeStream{}
	cache := New(reader, stream, common.NewSilentLogger())

	require.NoError(t, cache.Subscribe(context.Background()))
	defer cache.Unsubscribe()

	waitFor(t, func() bool { return cache.Len() == 2 })

	btc, ok := cache.GetPrice("BTC")
	require.True(t, ok)
	require.Equal(t, 40000.0, btc.PriceUSD)
	require.Equal(t, 0.0, cache.GetPriceChange("BTC"))
	require.Equal(t, StateConnected, cache.State())
}

func TestSubscribeErrorLeavesDisconnected(t *testing.T) {
	stream := &fakeStream{err: errors.New("redis down")}
	cache := New(&fakeReader{}, stream, common.NewSilentLogger())

	err := cache.Subscribe(context.Background())
	require.Error(t, err)
	require.Equal(t, StateDisconnected, cache.State())
}

func TestUpdateRecordsPercentDelta(t *testing.T) {
	reader := &fakeReader{}
	reader.set(record("BTC", 40000))
	stream := &fakeStream{}
	cache := New(reader, stream, common.NewSilentLogger())

	require.NoError(t, cache.Subscribe(context.Background()))
	defer cache.Unsubscribe()

	waitFor(t, func() bool { return cache.Len() == 1 })

	stream.push(models.PriceEvent{
		Kind:   models.PriceEventUpdate,
		Record: *record("BTC", 44000),
	})

	waitFor(t, func() bool {
		rec, ok := cache.GetPrice("BTC")
		return ok && rec.PriceUSD == 44000
	})
	require.InDelta(t, 10.0, cache.GetPriceChange("BTC"), 1e-9)
}

func TestFirstSightingHasZeroDelta(t *testing.T) {
	stream := &fakeStream{}
	cache := New(&fakeReader{}, stream, common.NewSilentLogger())

	require.NoError(t, cache.Subscribe(context.Background()))
	defer cache.Unsubscribe()

	stream.push(models.PriceEvent{
		Kind:   models.PriceEventCreate,
		Record: *record("SOL", 95),
	})

	waitFor(t, func() bool {
		_, ok := cache.GetPrice("SOL")
		return ok
	})
	require.Equal(t, 0.0, cache.GetPriceChange("SOL"))
}

func TestDeleteRemovesEntry(t *testing.T) {
	reader := &fakeReader{}
	reader.set(record("BTC", 40000))
	stream := &fakeStream{}
	cache := New(reader, stream, common.NewSilentLogger())

	require.NoError(t, cache.Subscribe(context.Background()))
	defer cache.Unsubscribe()

	waitFor(t, func() bool { return cache.Len() == 1 })

	stream.push(models.PriceEvent{
		Kind:   models.PriceEventDelete,
		Record: models.PriceRecord{Symbol: "BTC"},
		Before: record("BTC", 40000),
	})

	waitFor(t, func() bool {
		_, ok := cache.GetPrice("BTC")
		return !ok
	})
	require.Equal(t, 0.0, cache.GetPriceChange("BTC"))
}

func TestLookupsWorkWhileDisconnected(t *testing.T) {
	cache := New(&fakeReader{}, &fakeStream{}, common.NewSilentLogger())

	_, ok := cache.GetPrice("BTC")
	require.False(t, ok)
	require.Equal(t, 0.0, cache.GetPriceChange("BTC"))
	require.Equal(t, StateDisconnected, cache.State())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	stream := &fakeStream{}
	cache := New(&fakeReader{}, stream, common.NewSilentLogger())

	require.NoError(t, cache.Subscribe(context.Background()))
	require.NoError(t, cache.Unsubscribe())
	require.NoError(t, cache.Unsubscribe())
	require.Equal(t, StateDisconnected, cache.State())
}

func TestReconnectReloadsFromStore(t *testing.T) {
	reader := &fakeReader{}
	reader.set(record("BTC", 40000))
	stream := &fakeStream{}
	cache := New(reader, stream, common.NewSilentLogger())

	require.NoError(t, cache.Subscribe(context.Background()))
	defer cache.Unsubscribe()

	waitFor(t, func() bool { return cache.Len() == 1 })

	// Rows written while the stream is down only arrive via the reload.
	reader.set(record("BTC", 41000), record("ETH", 2600))
	stream.drop()

	waitFor(t, func() bool { return stream.subscribeCount() >= 2 })
	waitFor(t, func() bool {
		rec, ok := cache.GetPrice("ETH")
		return ok && rec.PriceUSD == 2600
	})
	require.Equal(t, StateConnected, cache.State())

	// The reconnect only succeeds if the half-open subscription was
	// reset first; the stream refuses to stack a second one.
	require.GreaterOrEqual(t, stream.unsubscribeCount(), 1)
}
