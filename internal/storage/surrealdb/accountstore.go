package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/interfaces"
	"github.com/bobmcallan/coindex/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// AccountStore persists accounts and their derived valuation fields.
type AccountStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewAccountStore(db *surrealdb.DB, logger *common.Logger) *AccountStore {
	return &AccountStore{
		db:     db,
		logger: logger,
	}
}

func (s *AccountStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	account, err := surrealdb.Select[models.Account](ctx, s.db, surrealmodels.NewRecordID("accounts", id))
	if err != nil {
		return nil, fmt.Errorf("failed to select account: %w", err)
	}
	if account == nil || account.ID == "" {
		return nil, fmt.Errorf("account not found: %s", id)
	}
	return account, nil
}

func (s *AccountStore) SaveAccount(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		return fmt.Errorf("account has no id")
	}

	sql := "UPSERT $rid CONTENT $data"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("accounts", account.ID), "data": account}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.Account](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to save account after retries: %w", lastErr)
}

func (s *AccountStore) ListActiveAccounts(ctx context.Context) ([]*models.Account, error) {
	sql := "SELECT * FROM accounts WHERE active = true"

	results, err := surrealdb.Query[[]models.Account](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}

	var accounts []*models.Account
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			accounts = append(accounts, &(*results)[0].Result[i])
		}
	}
	return accounts, nil
}

// UpdateValuation writes only the derived valuation fields, leaving
// holdings untouched.
func (s *AccountStore) UpdateValuation(ctx context.Context, id string, totalUSD, change24hUSD float64, at time.Time) error {
	sql := "UPDATE $rid SET total_value_usd = $total, change_24h_usd = $change, valued_at = $at"
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("accounts", id),
		"total":  totalUSD,
		"change": change24hUSD,
		"at":     at,
	}

	if _, err := surrealdb.Query[[]models.Account](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to update valuation for account %s: %w", id, err)
	}
	return nil
}

// Compile-time check
var _ interfaces.AccountStore = (*AccountStore)(nil)
