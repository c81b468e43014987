package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/models"
)

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleVersion handles GET /api/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
		"uptime":  time.Since(s.app.StartupTime).Round(time.Second).String(),
	})
}

// handlePrices handles GET /api/prices — the latest stored record per
// symbol, as one snapshot read.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	prices, err := s.app.Storage.PriceStore().ListPrices(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list prices")
		WriteError(w, http.StatusInternalServerError, "Failed to load prices")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"prices": prices,
		"count":  len(prices),
	})
}

type priceLookupResponse struct {
	Price         models.PriceRecord `json:"price"`
	ChangePercent float64            `json:"change_percent"`
	Source        string             `json:"source"`
}

// handlePriceLookup handles GET /api/prices/{symbol}. Served from the
// stream-fed cache when it holds the row; otherwise the durable store
// answers, which also covers the window before the cache connects.
func (s *Server) handlePriceLookup(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	symbol := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/api/prices/"))
	if symbol == "" || strings.Contains(symbol, "/") {
		WriteError(w, http.StatusBadRequest, "Symbol is required")
		return
	}

	if cache := s.app.PriceCache; cache != nil {
		if rec, ok := cache.GetPrice(symbol); ok {
			WriteJSON(w, http.StatusOK, priceLookupResponse{
				Price:         rec,
				ChangePercent: cache.GetPriceChange(symbol),
				Source:        "cache",
			})
			return
		}
	}

	rec, err := s.app.Storage.PriceStore().GetPrice(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Price not found")
			return
		}
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to load price")
		WriteError(w, http.StatusInternalServerError, "Failed to load price")
		return
	}

	WriteJSON(w, http.StatusOK, priceLookupResponse{
		Price:  *rec,
		Source: "store",
	})
}
