package surrealdb

import (
	"context"
	"fmt"

	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/interfaces"
	"github.com/bobmcallan/coindex/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// PriceStore persists one crypto_prices row per symbol. Every committed
// write is published on the change stream so connected clients see it.
type PriceStore struct {
	db        *surrealdb.DB
	logger    *common.Logger
	publisher interfaces.PricePublisher
}

func NewPriceStore(db *surrealdb.DB, logger *common.Logger, publisher interfaces.PricePublisher) *PriceStore {
	return &PriceStore{
		db:        db,
		logger:    logger,
		publisher: publisher,
	}
}

func (s *PriceStore) GetPrice(ctx context.Context, symbol string) (*models.PriceRecord, error) {
	rec, err := surrealdb.Select[models.PriceRecord](ctx, s.db, surrealmodels.NewRecordID("crypto_prices", symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to select price: %w", err)
	}
	if rec == nil || rec.Symbol == "" {
		return nil, fmt.Errorf("%w: price for %s", common.ErrNotFound, symbol)
	}
	return rec, nil
}

func (s *PriceStore) ListPrices(ctx context.Context) ([]*models.PriceRecord, error) {
	sql := "SELECT * FROM crypto_prices"

	results, err := surrealdb.Query[[]models.PriceRecord](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}

	var prices []*models.PriceRecord
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			prices = append(prices, &(*results)[0].Result[i])
		}
	}
	return prices, nil
}

// UpsertPrice writes the complete record keyed by symbol. The row becomes
// visible to readers only as a whole; a partially-populated row is never
// written. On success the change is published as a create or update event.
func (s *PriceStore) UpsertPrice(ctx context.Context, rec *models.PriceRecord) error {
	if rec.Symbol == "" {
		return fmt.Errorf("price record has no symbol")
	}

	existing, _ := surrealdb.Select[models.PriceRecord](ctx, s.db, surrealmodels.NewRecordID("crypto_prices", rec.Symbol))

	sql := "UPSERT $rid CONTENT $data"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("crypto_prices", rec.Symbol), "data": rec}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.PriceRecord](ctx, s.db, sql, vars)
		if err == nil {
			s.publishChange(ctx, existing, rec)
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to upsert price after retries: %w", lastErr)
}

// DeletePrice removes a symbol's row and publishes the delete with the old
// row state. The sync cycle never calls this; it exists for operator cleanup.
func (s *PriceStore) DeletePrice(ctx context.Context, symbol string) error {
	existing, _ := surrealdb.Select[models.PriceRecord](ctx, s.db, surrealmodels.NewRecordID("crypto_prices", symbol))

	sql := "DELETE $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("crypto_prices", symbol)}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to delete price: %w", err)
	}

	if s.publisher != nil && existing != nil && existing.Symbol != "" {
		event := models.PriceEvent{
			Kind:   models.PriceEventDelete,
			Record: models.PriceRecord{Symbol: symbol},
			Before: existing,
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to publish price delete event")
		}
	}
	return nil
}

func (s *PriceStore) publishChange(ctx context.Context, existing, rec *models.PriceRecord) {
	if s.publisher == nil {
		return
	}

	kind := models.PriceEventUpdate
	if existing == nil || existing.Symbol == "" {
		kind = models.PriceEventCreate
	}

	event := models.PriceEvent{Kind: kind, Record: *rec}
	if err := s.publisher.Publish(ctx, event); err != nil {
		// The durable write already committed; subscribers repair missed
		// events with a full reload on reconnect.
		s.logger.Warn().Err(err).Str("symbol", rec.Symbol).Msg("Failed to publish price change event")
	}
}

// Compile-time check
var _ interfaces.PriceStore = (*PriceStore)(nil)
