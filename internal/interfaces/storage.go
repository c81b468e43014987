package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/coindex/internal/models"
)

// StorageManager coordinates all storage backends
type StorageManager interface {
	PriceStore() PriceStore
	AccountStore() AccountStore
	AlertStore() AlertStore

	// Lifecycle
	Close() error
}

// PriceStore persists the latest price per symbol. The crypto_prices
// table is the single source of truth for current prices; client-side
// caches are hints only.
type PriceStore interface {
	// UpsertPrice writes the record keyed by symbol, creating or replacing
	// the single row for it, and publishes the row change on the stream
	// after the write commits.
	UpsertPrice(ctx context.Context, rec *models.PriceRecord) error

	// GetPrice returns the stored record for a symbol.
	GetPrice(ctx context.Context, symbol string) (*models.PriceRecord, error)

	// ListPrices returns all stored records.
	ListPrices(ctx context.Context) ([]*models.PriceRecord, error)

	// DeletePrice removes a symbol's row. Not part of the sync cycle
	// (which never deletes); used by operator cleanup.
	DeletePrice(ctx context.Context, symbol string) error
}

// AccountStore persists accounts and their derived valuation fields.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
	ListActiveAccounts(ctx context.Context) ([]*models.Account, error)

	// UpdateValuation writes only the derived valuation fields.
	UpdateValuation(ctx context.Context, id string, totalUSD, change24hUSD float64, at time.Time) error
}

// AlertStore persists price alerts and the notifications they produce.
type AlertStore interface {
	SaveAlert(ctx context.Context, alert *models.PriceAlert) error
	ListActiveAlerts(ctx context.Context, userID string) ([]*models.PriceAlert, error)

	// MarkTriggered deactivates an alert and stamps its trigger time.
	MarkTriggered(ctx context.Context, id string, at time.Time) error

	SaveNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
}
