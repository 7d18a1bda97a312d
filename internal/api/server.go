package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kjannette/trahn-autotrader/internal/broker"
	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/trading"
)

const (
	maxQueryLimit = 1000
	maxBodyBytes  = 64 << 10
)

var dateRegexp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Deps are the components the routes read from and drive.
type Deps struct {
	Market       broker.MarketData
	Ledger       *ledger.Ledger
	Orchestrator *trading.Orchestrator
	Buyer        *trading.Buyer
}

type Options struct {
	Port         int
	APIKey       string
	CORSOrigin   string
	FailedWindow time.Duration
	// WriteTimeout must cover the synchronous buy path's confirmation wait.
	WriteTimeout time.Duration
	// SessionContext bounds sessions started over HTTP. Request contexts
	// end with the response, so they are never used for sessions.
	SessionContext context.Context
	// Stream, when set, serves the websocket event feed.
	Stream http.Handler
	Logger *slog.Logger
}

type Server struct {
	market       broker.MarketData
	ledger       *ledger.Ledger
	orch         *trading.Orchestrator
	buyer        *trading.Buyer
	httpServer   *http.Server
	apiKey       string
	failedWindow time.Duration
	sessionCtx   context.Context
	logger       *slog.Logger
}

func NewServer(deps Deps, opts Options) *Server {
	if opts.FailedWindow <= 0 {
		opts.FailedWindow = ledger.DefaultFailedWindow
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 60 * time.Second
	}
	if opts.SessionContext == nil {
		opts.SessionContext = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		market:       deps.Market,
		ledger:       deps.Ledger,
		orch:         deps.Orchestrator,
		buyer:        deps.Buyer,
		apiKey:       opts.APIKey,
		failedWindow: opts.FailedWindow,
		sessionCtx:   opts.SessionContext,
		logger:       opts.Logger.With("component", "api"),
	}

	mux := http.NewServeMux()

	// Market routes
	mux.HandleFunc("GET /v1/assets", s.handleAssets)
	mux.HandleFunc("GET /v1/account", s.handleAccount)
	mux.HandleFunc("GET /v1/positions", s.handlePositions)
	mux.HandleFunc("GET /v1/quotes/{symbol}", s.handleQuote)
	mux.HandleFunc("GET /v1/historicals/{symbol}", s.handleHistoricals)

	// Session routes
	mux.HandleFunc("POST /v1/sessions", s.handleStartSession)
	mux.HandleFunc("GET /v1/sessions/current", s.handleSessionStatus)
	mux.HandleFunc("DELETE /v1/sessions/current", s.handleStopSession)

	// Order and ledger routes
	mux.HandleFunc("POST /v1/orders/buy", s.handleBuy)
	mux.HandleFunc("GET /v1/trades", s.handleListTrades)
	mux.HandleFunc("POST /v1/trades", s.handleRecordTrade)
	mux.HandleFunc("GET /v1/trades/day/{date}", s.handleTradesByDay)
	mux.HandleFunc("GET /v1/trades/todays-change", s.handleTodaysChange)

	if opts.Stream != nil {
		mux.Handle("GET /v1/stream", opts.Stream)
	}

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	handler := corsMiddleware(s.authMiddleware(mux), opts.CORSOrigin)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: opts.WriteTimeout,
	}

	return s
}

// Handler exposes the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	s.logger.Info("REST API server started",
		"addr", "http://localhost"+s.httpServer.Addr,
		"auth", boolLabel(s.apiKey != "", "bearer", "disabled"))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func validateDate(date string) bool {
	if !dateRegexp.MatchString(date) {
		return false
	}
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
