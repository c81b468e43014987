// Package basket computes the synthetic basket-index valuation from
// per-asset market quotes and the fixed constituent weights.
package basket

import (
	"sort"

	"github.com/bobmcallan/coindex/internal/models"
)

const (
	// BasketSymbol is the synthetic symbol the basket record is stored under.
	BasketSymbol = "CX10"

	// ScaleFactor normalizes the weighted-average constituent price to a
	// target base of roughly $100 at reference weights.
	ScaleFactor = 0.0041

	// FallbackPrice is published when no constituent price is available.
	// A degraded valuation is preferable to failing the whole cycle.
	FallbackPrice = 100.0

	// WeightSetVersion identifies the weight table below. Bump it whenever
	// Weights or ScaleFactor change so historical basket prices remain
	// attributable to the weight set that produced them.
	WeightSetVersion = 1
)

// Constituent pairs a provider asset id with its exchange symbol.
type Constituent struct {
	ProviderID string
	Symbol     string
}

// Constituents is the fixed ordered list of basket assets. The order is
// the order ids are requested from the provider.
var Constituents = []Constituent{
	{ProviderID: "bitcoin", Symbol: "BTC"},
	{ProviderID: "ethereum", Symbol: "ETH"},
	{ProviderID: "solana", Symbol: "SOL"},
	{ProviderID: "binancecoin", Symbol: "BNB"},
	{ProviderID: "ripple", Symbol: "XRP"},
	{ProviderID: "cardano", Symbol: "ADA"},
}

// Weights maps constituent symbol to its basket weight. Weights sum to
// 0.90; the unallocated 0.10 represents the stable cash reserve.
var Weights = map[string]float64{
	"BTC": 0.35,
	"ETH": 0.25,
	"SOL": 0.10,
	"BNB": 0.08,
	"XRP": 0.07,
	"ADA": 0.05,
}

// orderedSymbols is the weight table's key set in a fixed order, so the
// weighted sums below accumulate identically regardless of map iteration
// order. Valuation must be reproducible bit-for-bit for the same inputs.
var orderedSymbols = func() []string {
	syms := make([]string, 0, len(Weights))
	for sym := range Weights {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}()

// ProviderIDs returns the ordered provider ids for the adapter fetch.
func ProviderIDs() []string {
	ids := make([]string, len(Constituents))
	for i, c := range Constituents {
		ids[i] = c.ProviderID
	}
	return ids
}

// SymbolFor resolves a provider id to its exchange symbol.
func SymbolFor(providerID string) (string, bool) {
	for _, c := range Constituents {
		if c.ProviderID == providerID {
			return c.Symbol, true
		}
	}
	return "", false
}

// Valuation computes the basket price and its 24h percentage change from
// the quotes present, keyed by constituent symbol. Assets missing from the
// map are excluded from both sums; assets present but without a known 24h
// change are excluded from the change sum only. With no constituent
// present at all the fixed fallback (FallbackPrice, 0) is returned.
func Valuation(quotes map[string]models.MarketQuote) (price, change24h float64) {
	var priceWeight, priceSum float64
	var changeWeight, changeSum float64

	for _, sym := range orderedSymbols {
		q, ok := quotes[sym]
		if !ok {
			continue
		}
		w := Weights[sym]
		priceWeight += w
		priceSum += w * q.PriceUSD
		if q.HasChange {
			changeWeight += w
			changeSum += w * q.Change24h
		}
	}

	if priceWeight == 0 {
		return FallbackPrice, 0
	}

	price = priceSum / priceWeight * ScaleFactor
	if changeWeight > 0 {
		change24h = changeSum / changeWeight
	}
	return price, change24h
}
