package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kjannette/trahn-autotrader/internal/broker"
	"github.com/kjannette/trahn-autotrader/internal/models"
	"github.com/kjannette/trahn-autotrader/internal/strategy"
)

const (
	defaultInterval = "5minute"
	defaultSpan     = "day"
)

type accountResponse struct {
	Cash        string  `json:"cash"`
	BuyingPower float64 `json:"buyingPower"`
}

type positionResponse struct {
	models.Position
	Bid   float64 `json:"bidPrice"`
	Value float64 `json:"value"`
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"assets": s.orch.Catalog().All(),
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	raw, err := s.market.AccountCash(r.Context())
	if err != nil {
		s.brokerError(w, "account cash", err)
		return
	}
	cash, err := strategy.ParseCurrency(raw)
	if err != nil {
		s.brokerError(w, "account cash", err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{Cash: raw, BuyingPower: cash})
}

// handlePositions attaches the current bid to each position. A failed quote
// leaves the bid at zero rather than failing the listing.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.market.Positions(r.Context())
	if err != nil {
		s.brokerError(w, "positions", err)
		return
	}

	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		pr := positionResponse{Position: p}
		q, err := s.market.Quote(r.Context(), p.Symbol)
		if err != nil {
			s.logger.Warn("position quote failed", "asset", p.Symbol, "err", err)
		} else {
			pr.Bid = q.Bid
			pr.Value = strategy.OrderValue(p.Quantity, 8, q.Bid)
		}
		out = append(out, pr)
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": out})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	q, err := s.market.Quote(r.Context(), symbol)
	if err != nil {
		s.brokerError(w, "quote "+symbol, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleHistoricals(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = defaultInterval
	}
	span := r.URL.Query().Get("span")
	if span == "" {
		span = defaultSpan
	}
	if !broker.ValidInterval(interval) {
		writeError(w, http.StatusBadRequest, "interval must be one of "+strings.Join(broker.Intervals, ", "))
		return
	}
	if !broker.ValidSpan(span) {
		writeError(w, http.StatusBadRequest, "span must be one of "+strings.Join(broker.Spans, ", "))
		return
	}

	candles, err := s.market.Historicals(r.Context(), symbol, interval, span)
	if err != nil {
		s.brokerError(w, "historicals "+symbol, err)
		return
	}
	if candles == nil {
		candles = []models.Candle{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":   symbol,
		"interval": interval,
		"span":     span,
		"candles":  candles,
	})
}

// brokerError maps brokerage failures: unknown instruments are 404, anything
// else is an upstream failure.
func (s *Server) brokerError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, broker.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+": not found")
		return
	}
	s.logger.Error("brokerage request failed", "request", what, "err", err)
	writeError(w, http.StatusBadGateway, "brokerage request failed")
}
