package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/models"
	"github.com/kjannette/trahn-autotrader/internal/trading"
)

const defaultTradeLimit = 100

type buyRequest struct {
	Asset    string  `json:"asset"`
	Quantity float64 `json:"quantity"`
}

// handleBuy blocks for the confirmation delay before it answers.
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.buyer.Buy(r.Context(), req.Asset, req.Quantity)
	switch {
	case errors.Is(err, trading.ErrUnknownAsset):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("buy failed", "asset", req.Asset, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	window := s.failedWindow
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid window %q, expected a duration such as 10m", v))
			return
		}
		window = d
	}

	trades, err := s.ledger.List(r.Context(), window)
	if err != nil {
		s.logger.Error("list trades failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}
	if limit := parseLimit(r, defaultTradeLimit); len(trades) > limit {
		trades = trades[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (s *Server) handleRecordTrade(w http.ResponseWriter, r *http.Request) {
	var rec models.TradeRecord
	if err := decodeBody(r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateRecord(rec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.ledger.Upsert(r.Context(), rec); err != nil {
		if errors.Is(err, ledger.ErrMissingID) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("record trade failed", "order_id", rec.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to record trade")
		return
	}

	stored, _, err := s.ledger.Get(r.Context(), rec.ID)
	if err != nil {
		s.logger.Error("read back trade failed", "order_id", rec.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to read trade")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleTradesByDay(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if !validateDate(date) {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}

	trades, err := s.ledger.ByDay(r.Context(), date)
	if err != nil {
		s.logger.Error("fetch trades by day failed", "date", date, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tradingDay": date, "trades": trades})
}

func (s *Server) handleTodaysChange(w http.ResponseWriter, r *http.Request) {
	sum, err := s.ledger.TodaysChange(r.Context())
	if err != nil {
		s.logger.Error("todays change failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to compute today's change")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// validateRecord checks the enumerated fields of an externally written
// record. The id is checked by the ledger.
func validateRecord(rec models.TradeRecord) error {
	switch strings.ToLower(rec.Type) {
	case string(models.SideBuy), string(models.SideSell):
	default:
		return fmt.Errorf("invalid type %q, expected buy|sell", rec.Type)
	}
	switch rec.Status {
	case models.StatusPending, models.StatusFilled, models.StatusFailed:
	default:
		return fmt.Errorf("invalid status %q, expected pending|filled|failed", rec.Status)
	}
	return nil
}
