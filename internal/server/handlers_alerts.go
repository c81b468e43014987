package server

import (
	"net/http"
)

type alertEvaluateRequest struct {
	UserID string `json:"userId"`
	DryRun bool   `json:"dryRun"`
}

// handleAlertEvaluate handles POST /api/alerts/evaluate. Body is optional;
// an empty body evaluates every user's active alerts.
func (s *Server) handleAlertEvaluate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req alertEvaluateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if !DecodeJSON(w, r, &req) {
			return
		}
	}

	evaluation, err := s.app.AlertService.Evaluate(r.Context(), req.UserID, req.DryRun)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Alert evaluation failed")
		WriteError(w, StatusForError(err), "Alert evaluation failed")
		return
	}

	WriteJSON(w, http.StatusOK, evaluation)
}
