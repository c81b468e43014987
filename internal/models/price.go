// Package models defines data structures for coindex
package models

import (
	"time"
)

// PriceRecord is one row of the crypto_prices table: the latest known
// price for a tradable symbol, including the synthetic basket symbol.
// There is at most one row per symbol; writes are upserts keyed on it.
type PriceRecord struct {
	Symbol         string    `json:"symbol"`
	PriceUSD       float64   `json:"price_usd"`
	PriceChange24h float64   `json:"price_change_24h"`
	MarketCap      float64   `json:"market_cap,omitempty"`
	Volume24h      float64   `json:"volume_24h,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MarketQuote is a normalized per-asset quote from the market-data
// provider, before it is turned into a PriceRecord.
type MarketQuote struct {
	PriceUSD  float64 `json:"price_usd"`
	Change24h float64 `json:"change_24h"`
	MarketCap float64 `json:"market_cap"`
	Volume24h float64 `json:"volume_24h"`
	HasChange bool    `json:"has_change"`
}

// SyncResult summarizes one completed price sync cycle.
type SyncResult struct {
	Prices    []PriceRecord `json:"prices"`
	Timestamp time.Time     `json:"timestamp"`
}

// PriceEventKind identifies the type of row change carried by a PriceEvent.
type PriceEventKind string

const (
	PriceEventCreate PriceEventKind = "create"
	PriceEventUpdate PriceEventKind = "update"
	PriceEventDelete PriceEventKind = "delete"
)

// PriceEvent is a single row-level change on the crypto_prices table,
// published on the change stream after the write commits. Record holds the
// new row state; Before is populated for deletes only. Delivery is
// at-least-once, ordered per symbol in write order.
type PriceEvent struct {
	Kind   PriceEventKind `json:"kind"`
	Record PriceRecord    `json:"record"`
	Before *PriceRecord   `json:"before,omitempty"`
}
