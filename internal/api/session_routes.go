package api

import (
	"errors"
	"net/http"

	"github.com/kjannette/trahn-autotrader/internal/trading"
)

type startSessionRequest struct {
	Assets   []string `json:"assets"`
	Duration float64  `json:"duration"`
	Unit     string   `json:"unit"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	unit, err := trading.ParseUnit(req.Unit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.orch.Start(s.sessionCtx, req.Assets, req.Duration, unit)
	switch {
	case errors.Is(err, trading.ErrSessionActive):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, session.Status())
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := s.orch.Status()
	if !ok {
		writeError(w, http.StatusNotFound, "no trading session has been started")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleStopSession only sets the stop signal. Workers finish their
// in-flight confirmations after the response is sent.
func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	stopped := s.orch.Stop()
	if stopped {
		s.logger.Info("stop requested over API")
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"stopped": stopped})
}
