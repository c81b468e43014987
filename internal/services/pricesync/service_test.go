package pricesync

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/coindex/internal/basket"
	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/interfaces"
	"github.com/bobmcallan/coindex/internal/models"
)

type mockClient struct {
	quotes map[string]models.MarketQuote
	err    error
	calls  int
}

func (m *mockClient) GetMarkets(ctx context.Context, ids []string) (map[string]models.MarketQuote, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.quotes, nil
}

func (m *mockClient) Passthrough(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return nil, errors.New("not implemented")
}

type mockPriceStore struct {
	mu         sync.Mutex
	upserts    map[string]models.PriceRecord
	failSymbol string
}

func newMockPriceStore() *mockPriceStore {
	return &mockPriceStore{upserts: make(map[string]models.PriceRecord)}
}

func (m *mockPriceStore) UpsertPrice(ctx context.Context, rec *models.PriceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Symbol == m.failSymbol {
		return errors.New("write refused")
	}
	m.upserts[rec.Symbol] = *rec
	return nil
}

func (m *mockPriceStore) GetPrice(ctx context.Context, symbol string) (*models.PriceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.upserts[symbol]
	if !ok {
		return nil, errors.New("not found")
	}
	return &rec, nil
}

func (m *mockPriceStore) ListPrices(ctx context.Context) ([]*models.PriceRecord, error) {
	return nil, nil
}

func (m *mockPriceStore) DeletePrice(ctx context.Context, symbol string) error {
	return nil
}

type mockStorage struct {
	prices *mockPriceStore
}

func (m *mockStorage) PriceStore() interfaces.PriceStore     { return m.prices }
func (m *mockStorage) AccountStore() interfaces.AccountStore { return nil }
func (m *mockStorage) AlertStore() interfaces.AlertStore     { return nil }
func (m *mockStorage) Close() error                          { return nil }

type mockValuation struct {
	triggered chan struct{}
}

func (m *mockValuation) RevalueAll(ctx context.Context) []models.AccountResult {
	m.triggered <- struct{}{}
	return nil
}

func fullQuotes() map[string]models.MarketQuote {
	return map[string]models.MarketQuote{
		"bitcoin":     {PriceUSD: 40000, Change24h: 2.0, HasChange: true},
		"ethereum":    {PriceUSD: 2500, Change24h: -1.0, HasChange: true},
		"solana":      {PriceUSD: 95, Change24h: 4.0, HasChange: true},
		"binancecoin": {PriceUSD: 310, Change24h: 0.5, HasChange: true},
		"ripple":      {PriceUSD: 0.52, Change24h: 1.2, HasChange: true},
		"cardano":     {PriceUSD: 0.45, Change24h: -0.3, HasChange: true},
	}
}

func newTestService(client *mockClient, storage *mockStorage, valuation interfaces.ValuationService) *Service {
	svc := NewService(common.NewSilentLogger(), client, storage, valuation)
	svc.now = func() time.Time {
		return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestRunCycleWritesAllRowsWithOneTimestamp(t *testing.T) {
	client := &mockClient{quotes: fullQuotes()}
	storage := &mockStorage{prices: newMockPriceStore()}
	svc := newTestService(client, storage, nil)

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Prices, len(basket.Constituents)+1)

	cycle := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	require.Equal(t, cycle, result.Timestamp)
	for _, rec := range result.Prices {
		require.Equal(t, cycle, rec.UpdatedAt, "row %s must carry the cycle timestamp", rec.Symbol)
	}

	require.Len(t, storage.prices.upserts, len(basket.Constituents)+1)
	btc := storage.prices.upserts["BTC"]
	require.Equal(t, 40000.0, btc.PriceUSD)
}

func TestRunCycleIncludesBasketRow(t *testing.T) {
	client := &mockClient{quotes: fullQuotes()}
	storage := &mockStorage{prices: newMockPriceStore()}
	svc := newTestService(client, storage, nil)

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	basketRec, ok := storage.prices.upserts[basket.BasketSymbol]
	require.True(t, ok)

	bySymbol := make(map[string]models.MarketQuote)
	for id, q := range fullQuotes() {
		sym, _ := basket.SymbolFor(id)
		bySymbol[sym] = q
	}
	wantPrice, wantChange := basket.Valuation(bySymbol)
	require.Equal(t, wantPrice, basketRec.PriceUSD)
	require.Equal(t, wantChange, basketRec.PriceChange24h)
}

func TestRunCycleToleratesOmittedAssets(t *testing.T) {
	quotes := fullQuotes()
	delete(quotes, "solana")
	client := &mockClient{quotes: quotes}
	storage := &mockStorage{prices: newMockPriceStore()}
	svc := newTestService(client, storage, nil)

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Prices, len(basket.Constituents))

	_, wroteSOL := storage.prices.upserts["SOL"]
	require.False(t, wroteSOL, "omitted asset must not be written")
	_, wroteBasket := storage.prices.upserts[basket.BasketSymbol]
	require.True(t, wroteBasket)
}

func TestRunCycleAbortsWhenUpstreamDown(t *testing.T) {
	client := &mockClient{err: errors.New("connection refused")}
	storage := &mockStorage{prices: newMockPriceStore()}
	svc := newTestService(client, storage, nil)

	_, err := svc.RunCycle(context.Background())
	require.ErrorIs(t, err, common.ErrUpstreamUnavailable)
	require.Empty(t, storage.prices.upserts, "no rows may be written when the fetch fails")
}

func TestRunCycleFailsOnAnyUpsertFailure(t *testing.T) {
	client := &mockClient{quotes: fullQuotes()}
	storage := &mockStorage{prices: newMockPriceStore()}
	storage.prices.failSymbol = "ETH"
	svc := newTestService(client, storage, nil)

	_, err := svc.RunCycle(context.Background())
	require.ErrorIs(t, err, common.ErrPersistence)
}

func TestRunCycleTriggersRevaluation(t *testing.T) {
	client := &mockClient{quotes: fullQuotes()}
	storage := &mockStorage{prices: newMockPriceStore()}
	valuation := &mockValuation{triggered: make(chan struct{}, 1)}
	svc := newTestService(client, storage, valuation)

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	select {
	case <-valuation.triggered:
	case <-time.After(2 * time.Second):
		t.Fatal("revaluation was not triggered")
	}
}

func TestRunCycleSkipsRevaluationOnFailure(t *testing.T) {
	client := &mockClient{err: errors.New("connection refused")}
	storage := &mockStorage{prices: newMockPriceStore()}
	valuation := &mockValuation{triggered: make(chan struct{}, 1)}
	svc := newTestService(client, storage, valuation)

	_, err := svc.RunCycle(context.Background())
	require.Error(t, err)

	select {
	case <-valuation.triggered:
		t.Fatal("revaluation must not run after a failed cycle")
	case <-time.After(50 * time.Millisecond):
	}
}
