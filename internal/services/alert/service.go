// Package alert evaluates active price alerts against stored prices and
// records a notification for each hit.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/interfaces"
	"github.com/bobmcallan/coindex/internal/models"
)

// fallbackPrices covers symbols with no stored row yet, so alert
// evaluation stays usable before the first sync cycle completes.
var fallbackPrices = map[string]float64{
	"BTC": 43000,
	"ETH": 2600,
	"SOL": 98,
	"BNB": 315,
	"XRP": 0.55,
	"ADA": 0.48,
}

// Service implements interfaces.AlertService.
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

// Evaluate checks every active alert (all users when userID is empty)
// against the latest stored price, falling back to the static table for
// symbols not yet synced. Each hit writes one notification and
// deactivates the alert, unless dryRun is set.
func (s *Service) Evaluate(ctx context.Context, userID string, dryRun bool) (*models.AlertEvaluation, error) {
	alerts, err := s.storage.AlertStore().ListActiveAlerts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list alerts: %v", common.ErrPersistence, err)
	}

	evaluation := &models.AlertEvaluation{}
	for _, a := range alerts {
		evaluation.Evaluated++

		price, ok, err := s.currentPrice(ctx, a.Symbol)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.Warn().Str("symbol", a.Symbol).Msg("No price available for alert, skipping")
			continue
		}

		if !conditionMet(a, price) {
			continue
		}
		evaluation.Triggered++

		if dryRun {
			continue
		}
		if err := s.fire(ctx, a, price); err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Str("user_id", userID).
		Bool("dry_run", dryRun).
		Int("evaluated", evaluation.Evaluated).
		Int("triggered", evaluation.Triggered).
		Msg("Alert evaluation completed")

	return evaluation, nil
}

// currentPrice reads the stored price for symbol. Only a missing row falls
// back to the static table; any other read failure aborts the evaluation so
// alerts are never judged against fabricated prices during a store outage.
func (s *Service) currentPrice(ctx context.Context, symbol string) (float64, bool, error) {
	rec, err := s.storage.PriceStore().GetPrice(ctx, symbol)
	if err == nil {
		return rec.PriceUSD, true, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return 0, false, fmt.Errorf("%w: read price for %s: %v", common.ErrPersistence, symbol, err)
	}
	price, ok := fallbackPrices[symbol]
	return price, ok, nil
}

func conditionMet(a *models.PriceAlert, price float64) bool {
	switch a.Condition {
	case models.AlertAbove:
		return price > a.TargetPrice
	case models.AlertBelow:
		return price < a.TargetPrice
	default:
		return false
	}
}

// fire writes the notification and deactivates the alert. Done in that
// order so a crash between the two re-notifies rather than losing the hit.
func (s *Service) fire(ctx context.Context, a *models.PriceAlert, price float64) error {
	now := s.now().UTC()
	notification := &models.Notification{
		ID:     uuid.New().String(),
		UserID: a.UserID,
		Type:   "price_alert",
		Title:  fmt.Sprintf("%s price alert", a.Symbol),
		Message: fmt.Sprintf("%s is now $%.2f, %s your target of $%.2f",
			a.Symbol, price, a.Condition, a.TargetPrice),
		CreatedAt: now,
	}

	if err := s.storage.AlertStore().SaveNotification(ctx, notification); err != nil {
		return fmt.Errorf("%w: save notification: %v", common.ErrPersistence, err)
	}
	if err := s.storage.AlertStore().MarkTriggered(ctx, a.ID, now); err != nil {
		return fmt.Errorf("%w: mark alert triggered: %v", common.ErrPersistence, err)
	}
	return nil
}

// Compile-time check
var _ interfaces.AlertService = (*Service)(nil)
