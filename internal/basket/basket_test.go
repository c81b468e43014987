package basket

import (
	"math"
	"testing"

	"github.com/bobmcallan/coindex/internal/models"
)

func TestValuation_EmptyQuotes(t *testing.T) {
	price, change := Valuation(map[string]models.MarketQuote{})

	if price != FallbackPrice {
		t.Errorf("price = %v, want %v", price, FallbackPrice)
	}
	if change != 0 {
		t.Errorf("change = %v, want 0", change)
	}
	if math.IsNaN(price) || math.IsNaN(change) {
		t.Fatal("fallback valuation produced NaN")
	}
}

func TestValuation_UnknownSymbolsIgnored(t *testing.T) {
	price, change := Valuation(map[string]models.MarketQuote{
		"DOGE": {PriceUSD: 0.1, Change24h: 50, HasChange: true},
	})

	if price != FallbackPrice || change != 0 {
		t.Errorf("got (%v, %v), want fallback (%v, 0)", price, change, FallbackPrice)
	}
}

func TestValuation_SingleConstituent(t *testing.T) {
	// With one constituent present its weight normalizes to 1, so the
	// basket price is just price * ScaleFactor.
	price, change := Valuation(map[string]models.MarketQuote{
		"BTC": {PriceUSD: 40000, Change24h: 2.5, HasChange: true},
	})

	if want := 40000 * ScaleFactor; price != want {
		t.Errorf("price = %v, want %v", price, want)
	}
	if change != 2.5 {
		t.Errorf("change = %v, want 2.5", change)
	}
}

func TestValuation_WeightedAverage(t *testing.T) {
	quotes := map[string]models.MarketQuote{
		"BTC": {PriceUSD: 40000, Change24h: 2, HasChange: true},
		"ETH": {PriceUSD: 2000, Change24h: -1, HasChange: true},
	}

	price, change := Valuation(quotes)

	wBTC, wETH := Weights["BTC"], Weights["ETH"]
	wantPrice := (wBTC*40000 + wETH*2000) / (wBTC + wETH) * ScaleFactor
	wantChange := (wBTC*2 + wETH*-1) / (wBTC + wETH)

	if math.Abs(price-wantPrice) > 1e-9 {
		t.Errorf("price = %v, want %v", price, wantPrice)
	}
	if math.Abs(change-wantChange) > 1e-9 {
		t.Errorf("change = %v, want %v", change, wantChange)
	}
}

func TestValuation_ChangeExcludedWhenUnknown(t *testing.T) {
	// ETH has no known 24h change: it contributes to the price sum but
	// must be excluded from the change sum.
	quotes := map[string]models.MarketQuote{
		"BTC": {PriceUSD: 40000, Change24h: 3, HasChange: true},
		"ETH": {PriceUSD: 2000},
	}

	_, change := Valuation(quotes)
	if math.Abs(change-3) > 1e-9 {
		t.Errorf("change = %v, want 3 (BTC only)", change)
	}
}

func TestValuation_PermutationInvariant(t *testing.T) {
	base := map[string]models.MarketQuote{
		"BTC": {PriceUSD: 43123.45, Change24h: 1.2, HasChange: true},
		"ETH": {PriceUSD: 2287.12, Change24h: -0.7, HasChange: true},
		"SOL": {PriceUSD: 98.76, Change24h: 5.4, HasChange: true},
		"ADA": {PriceUSD: 0.52, Change24h: 0.1, HasChange: true},
	}

	wantPrice, wantChange := Valuation(base)

	// Rebuild the map through several insertion orders; the result must be
	// identical bit-for-bit.
	orders := [][]string{
		{"ADA", "SOL", "ETH", "BTC"},
		{"ETH", "BTC", "ADA", "SOL"},
		{"SOL", "ADA", "BTC", "ETH"},
	}
	for _, order := range orders {
		permuted := make(map[string]models.MarketQuote, len(base))
		for _, sym := range order {
			permuted[sym] = base[sym]
		}
		price, change := Valuation(permuted)
		if price != wantPrice || change != wantChange {
			t.Errorf("order %v: got (%v, %v), want (%v, %v)", order, price, change, wantPrice, wantChange)
		}
	}
}

func TestWeightsMatchConstituents(t *testing.T) {
	if len(Weights) != len(Constituents) {
		t.Fatalf("weights has %d entries, constituents %d", len(Weights), len(Constituents))
	}
	var total float64
	for _, c := range Constituents {
		w, ok := Weights[c.Symbol]
		if !ok {
			t.Errorf("no weight for constituent %s", c.Symbol)
		}
		if w < 0 || w > 1 {
			t.Errorf("weight for %s out of range: %v", c.Symbol, w)
		}
		total += w
	}
	if total > 1 {
		t.Errorf("total weight %v exceeds 1", total)
	}
}
