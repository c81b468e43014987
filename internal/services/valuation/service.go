// Package valuation recomputes derived portfolio values for active
// accounts from the latest stored prices.
package valuation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/interfaces"
	"github.com/bobmcallan/coindex/internal/models"
)

// Service implements interfaces.ValuationService.
type Service struct {
	logger  *common.Logger
	storage interfaces.StorageManager

	// now is injectable for tests
	now func() time.Time
}

func NewService(logger *common.Logger, storage interfaces.StorageManager) *Service {
	return &Service{
		logger:  logger,
		storage: storage,
		now:     time.Now,
	}
}

// RevalueAll revalues every active account against one snapshot of the
// price table. Each account is an independent task; an account that fails
// carries its error in the result and never aborts the batch.
func (s *Service) RevalueAll(ctx context.Context) []models.AccountResult {
	accounts, err := s.storage.AccountStore().ListActiveAccounts(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list accounts for revaluation")
		return nil
	}
	if len(accounts) == 0 {
		return nil
	}

	prices, err := s.storage.PriceStore().ListPrices(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load prices for revaluation")
		results := make([]models.AccountResult, len(accounts))
		for i, account := range accounts {
			results[i] = models.AccountResult{
				AccountID: account.ID,
				Err:       fmt.Errorf("load prices: %w", err),
			}
		}
		return results
	}

	priceMap := make(map[string]*models.PriceRecord, len(prices))
	for _, rec := range prices {
		priceMap[rec.Symbol] = rec
	}

	at := s.now().UTC()
	results := make([]models.AccountResult, len(accounts))

	var wg sync.WaitGroup
	for i := range accounts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.revalue(ctx, accounts[i], priceMap, at)
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.logger.Info().
		Int("accounts", len(results)).
		Int("failed", failed).
		Msg("Portfolio revaluation completed")

	return results
}

// revalue computes one account's total and 24h dollar change. Holdings
// with no stored price are skipped and reported, not treated as zero.
func (s *Service) revalue(ctx context.Context, account *models.Account, prices map[string]*models.PriceRecord, at time.Time) models.AccountResult {
	result := models.AccountResult{AccountID: account.ID}

	var total, change float64
	for _, holding := range account.Holdings {
		rec, ok := prices[holding.Symbol]
		if !ok {
			result.SkippedSymbols = append(result.SkippedSymbols, holding.Symbol)
			continue
		}
		value := holding.Quantity * rec.PriceUSD
		total += value
		change += value * rec.PriceChange24h / 100
	}

	if err := s.storage.AccountStore().UpdateValuation(ctx, account.ID, total, change, at); err != nil {
		result.Err = fmt.Errorf("update valuation: %w", err)
		return result
	}

	result.TotalValueUSD = total
	return result
}

// Compile-time check
var _ interfaces.ValuationService = (*Service)(nil)
