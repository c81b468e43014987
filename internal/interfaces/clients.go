// Package interfaces defines service contracts for coindex
package interfaces

import (
	"context"
	"net/url"

	"github.com/bobmcallan/coindex/internal/models"
)

// MarketDataClient fetches spot prices from the external market-data
// provider and normalizes provider payloads into MarketQuote records.
type MarketDataClient interface {
	// GetMarkets issues one batched fetch for the given provider asset ids
	// and returns a quote per id found in the response. Ids the provider
	// omits are absent from the map; a zero-filled entry is never returned.
	GetMarkets(ctx context.Context, ids []string) (map[string]models.MarketQuote, error)

	// Passthrough performs a raw GET of a provider path and returns the
	// response body. Used by the read proxy; the caller is responsible for
	// allow-listing paths.
	Passthrough(ctx context.Context, path string, query url.Values) ([]byte, error)
}
