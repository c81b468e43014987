package models

import (
	"time"
)

// Holding is a quantity of a single asset held by an account.
type Holding struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
}

// Account holds an investment account with its derived valuation fields.
// TotalValueUSD, Change24hUSD and ValuedAt are recomputed by the
// revaluation batch after each price sync; clients never edit them.
type Account struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Active        bool      `json:"active"`
	Holdings      []Holding `json:"holdings"`
	TotalValueUSD float64   `json:"total_value_usd"`
	Change24hUSD  float64   `json:"change_24h_usd"`
	ValuedAt      time.Time `json:"valued_at"`
}

// AccountResult is the outcome of revaluing one account. Failures are
// collected per account rather than aborting the batch.
type AccountResult struct {
	AccountID      string   `json:"account_id"`
	TotalValueUSD  float64  `json:"total_value_usd"`
	SkippedSymbols []string `json:"skipped_symbols,omitempty"`
	Err            error    `json:"-"`
}
