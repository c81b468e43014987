package server

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// proxyAllowedEndpoints is the closed set of upstream paths the read proxy
// will forward. Anything else is refused without an upstream call.
var proxyAllowedEndpoints = map[string]bool{
	"/coins/markets": true,
	"/simple/price":  true,
	"/coins/list":    true,
}

// proxyForwardedParams are the only query parameters passed through to the
// provider.
var proxyForwardedParams = []string{"vs_currency", "ids", "order", "per_page", "page"}

// handleProxy handles GET /api/proxy: a rate-limited, allow-listed read
// proxy in front of the market-data provider. Upstream failures degrade to
// a static payload instead of an error status; callers check the "error"
// key.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		WriteError(w, http.StatusBadRequest, "endpoint query parameter is required")
		return
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	if !proxyAllowedEndpoints[endpoint] {
		WriteError(w, http.StatusForbidden, "Endpoint not allowed: "+endpoint)
		return
	}

	if !s.allowRequest(w, r) {
		return
	}

	query := url.Values{}
	for _, param := range proxyForwardedParams {
		if v := r.URL.Query().Get(param); v != "" {
			query.Set(param, v)
		}
	}

	body, err := s.app.MarketClient.Passthrough(r.Context(), endpoint, query)
	if err != nil {
		s.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Proxy upstream failed, serving static fallback")
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"error": "Market data provider unavailable, serving fallback data",
			"mock":  true,
			"data":  mockDataFor(endpoint),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", s.app.Config.Proxy.CacheMaxAge))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// allowRequest applies the shared fixed-window rate limit per client IP.
// Returns false after writing the 429 response. A limiter backend failure
// lets the request through; the proxy must not go down with Redis.
func (s *Server) allowRequest(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}

	decision, err := s.limiter.Allow(r.Context(), clientIP(r))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Rate limit check failed, allowing request")
		return true
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))

	if !decision.Allowed {
		retryAfter := int(time.Until(decision.Reset).Seconds()) + 1
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		WriteError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again later.")
		return false
	}
	return true
}

// clientIP resolves the caller's address, preferring the first entry of
// X-Forwarded-For when behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// mockDataFor returns the static fallback payload for an allowed endpoint.
func mockDataFor(endpoint string) interface{} {
	switch endpoint {
	case "/coins/markets":
		return []map[string]interface{}{
			{"id": "bitcoin", "symbol": "btc", "name": "Bitcoin", "current_price": 43000.0, "price_change_percentage_24h": 1.2},
			{"id": "ethereum", "symbol": "eth", "name": "Ethereum", "current_price": 2600.0, "price_change_percentage_24h": -0.4},
			{"id": "solana", "symbol": "sol", "name": "Solana", "current_price": 98.0, "price_change_percentage_24h": 2.1},
		}
	case "/simple/price":
		return map[string]map[string]float64{
			"bitcoin":  {"usd": 43000},
			"ethereum": {"usd": 2600},
			"solana":   {"usd": 98},
		}
	case "/coins/list":
		return []map[string]string{
			{"id": "bitcoin", "symbol": "btc", "name": "Bitcoin"},
			{"id": "ethereum", "symbol": "eth", "name": "Ethereum"},
			{"id": "solana", "symbol": "sol", "name": "Solana"},
		}
	default:
		return nil
	}
}
