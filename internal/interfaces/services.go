package interfaces

import (
	"context"

	"github.com/bobmcallan/coindex/internal/models"
)

// SyncService runs one price synchronization cycle: fetch spot prices,
// compute the basket valuation, and upsert everything into the price store
// under a single cycle timestamp.
type SyncService interface {
	// RunCycle executes one cycle. It succeeds only if every upsert
	// succeeded; a partial write is reported as a failure (re-running is
	// safe, upserts are idempotent per symbol).
	RunCycle(ctx context.Context) (*models.SyncResult, error)
}

// ValuationService recomputes derived portfolio valuations from current
// holdings and the latest stored prices.
type ValuationService interface {
	// RevalueAll revalues every active account. Each account is an
	// independent task; failures are collected per account and never abort
	// the batch.
	RevalueAll(ctx context.Context) []models.AccountResult
}

// AlertService evaluates active price alerts against stored prices.
type AlertService interface {
	// Evaluate checks active alerts (all users when userID is empty) and
	// writes one notification per hit unless dryRun is set.
	Evaluate(ctx context.Context, userID string, dryRun bool) (*models.AlertEvaluation, error)
}
