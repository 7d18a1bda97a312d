package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	Ledger  string `json:"ledger"`
	Session string `json:"session"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ledgerStatus := "connected"
	if err := s.ledger.Ping(r.Context()); err != nil {
		ledgerStatus = "disconnected"
	}

	session := "idle"
	if st, ok := s.orch.Status(); ok && st.Running {
		session = "running"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  healthServices{Ledger: ledgerStatus, Session: session},
	})
}
