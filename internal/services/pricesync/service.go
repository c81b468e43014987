// Package pricesync runs the price synchronization cycle: one batched
// provider fetch, the basket valuation, and idempotent upserts into the
// price store under a single cycle timestamp.
package pricesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bobmcallan/coindex/internal/basket"
	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/interfaces"
	"github.com/bobmcallan/coindex/internal/models"
)

const revalueTimeout = 2 * time.Minute

// Service implements interfaces.SyncService.
type Service struct {
	logger    *common.Logger
	client    interfaces.MarketDataClient
	storage   interfaces.StorageManager
	valuation interfaces.ValuationService

	// now is injectable for tests
	now func() time.Time
}

// NewService creates the sync service. The valuation service is optional;
// when present it is triggered fire-and-forget after each successful cycle.
func NewService(logger *common.Logger, client interfaces.MarketDataClient, storage interfaces.StorageManager, valuation interfaces.ValuationService) *Service {
	return &Service{
		logger:    logger,
		client:    client,
		storage:   storage,
		valuation: valuation,
		now:       time.Now,
	}
}

// RunCycle executes one sync cycle. Every row written in the cycle carries
// the same timestamp, taken at cycle start, so readers can tell which rows
// belong to the same refresh. The cycle succeeds only if every upsert
// succeeded; re-running after a partial failure is safe because upserts
// are idempotent per symbol.
func (s *Service) RunCycle(ctx context.Context) (*models.SyncResult, error) {
	start := s.now().UTC()

	quotes, err := s.client.GetMarkets(ctx, basket.ProviderIDs())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUpstreamUnavailable, err)
	}

	// Re-key provider ids to exchange symbols. Assets the provider omitted
	// stay absent; their stored rows keep the previous cycle's values.
	bySymbol := make(map[string]models.MarketQuote, len(quotes))
	for id, quote := range quotes {
		symbol, ok := basket.SymbolFor(id)
		if !ok {
			s.logger.Warn().Str("id", id).Msg("Provider returned unrequested asset, skipping")
			continue
		}
		bySymbol[symbol] = quote
	}

	records := make([]models.PriceRecord, 0, len(bySymbol)+1)
	for _, c := range basket.Constituents {
		quote, ok := bySymbol[c.Symbol]
		if !ok {
			continue
		}
		records = append(records, models.PriceRecord{
			Symbol:         c.Symbol,
			PriceUSD:       quote.PriceUSD,
			PriceChange24h: quote.Change24h,
			MarketCap:      quote.MarketCap,
			Volume24h:      quote.Volume24h,
			UpdatedAt:      start,
		})
	}

	basketPrice, basketChange := basket.Valuation(bySymbol)
	records = append(records, models.PriceRecord{
		Symbol:         basket.BasketSymbol,
		PriceUSD:       basketPrice,
		PriceChange24h: basketChange,
		UpdatedAt:      start,
	})

	if err := s.upsertAll(ctx, records); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("records", len(records)).
		Float64("basket_price", basketPrice).
		Time("cycle", start).
		Msg("Price sync cycle completed")

	s.triggerRevaluation()

	return &models.SyncResult{Prices: records, Timestamp: start}, nil
}

// upsertAll writes all records concurrently. Any failure fails the cycle;
// rows that did commit are left in place for the next cycle to overwrite.
func (s *Service) upsertAll(ctx context.Context, records []models.PriceRecord) error {
	store := s.storage.PriceStore()

	var wg sync.WaitGroup
	errs := make([]error, len(records))

	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := records[i]
			if err := store.UpsertPrice(ctx, &rec); err != nil {
				errs[i] = fmt.Errorf("upsert %s: %w", rec.Symbol, err)
			}
		}(i)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return nil
}

// triggerRevaluation kicks the portfolio revaluation batch in the
// background. The sync cycle's outcome never depends on it.
func (s *Service) triggerRevaluation() {
	if s.valuation == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), revalueTimeout)
		defer cancel()

		results := s.valuation.RevalueAll(ctx)
		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			s.logger.Warn().Int("failed", failed).Int("total", len(results)).Msg("Portfolio revaluation finished with failures")
		}
	}()
}

// Compile-time check
var _ interfaces.SyncService = (*Service)(nil)
