package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/models"
)

type syncResponse struct {
	Success   bool                 `json:"success"`
	Prices    []models.PriceRecord `json:"prices"`
	Timestamp time.Time            `json:"timestamp"`
}

// handleSync handles POST /api/sync: one full sync cycle, invoked by the
// external cron as well as the in-process scheduler. Safe to re-run; a
// failed cycle leaves previously stored rows untouched.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	result, err := s.app.SyncService.RunCycle(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Price sync cycle failed")
		if errors.Is(err, common.ErrUpstreamUnavailable) {
			WriteError(w, StatusForError(err), "Market data provider unavailable")
			return
		}
		WriteError(w, StatusForError(err), "Price sync failed")
		return
	}

	WriteJSON(w, http.StatusOK, syncResponse{
		Success:   true,
		Prices:    result.Prices,
		Timestamp: result.Timestamp,
	})
}
