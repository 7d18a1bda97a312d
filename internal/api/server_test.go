package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kjannette/trahn-autotrader/internal/broker"
	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/models"
	"github.com/kjannette/trahn-autotrader/internal/trading"
)

type testEnv struct {
	server *Server
	paper  *broker.Paper
	ledger *ledger.Ledger
	orch   *trading.Orchestrator
}

func newTestEnv(t *testing.T, apiKey string) *testEnv {
	t.Helper()
	paper := broker.NewPaper(broker.PaperConfig{
		InitialCash: 1000,
		Holdings:    map[string]float64{"DOGE": 100},
		Prices:      map[string]float64{"DOGE": 0.1, "ETH": 2000},
		Seed:        7,
	})
	l := ledger.New(ledger.NewMemoryStore())

	params := trading.DefaultParams()
	params.IterationDelay = 5 * time.Millisecond
	params.ConfirmationDelay = 5 * time.Millisecond
	params.Stagger = time.Millisecond

	catalog := trading.NewCatalog(models.DefaultAssets())
	deps := trading.Deps{Broker: paper, Ledger: l}
	orch := trading.NewOrchestrator(catalog, deps, params)

	s := NewServer(Deps{
		Market:       paper,
		Ledger:       l,
		Orchestrator: orch,
		Buyer:        trading.NewBuyer(catalog, deps, params),
	}, Options{APIKey: apiKey})

	t.Cleanup(func() {
		orch.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		orch.Join(ctx)
	})
	return &testEnv{server: s, paper: paper, ledger: l, orch: orch}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "secret123")
	rr := env.do(t, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	got := decode[healthResponse](t, rr)
	if got.Services.Ledger != "connected" || got.Services.Session != "idle" {
		t.Fatalf("unexpected services %+v", got.Services)
	}
}

func TestRoutesRequireAuthWhenKeySet(t *testing.T) {
	env := newTestEnv(t, "secret123")
	if rr := env.do(t, http.MethodGet, "/v1/assets", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/assets", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rr.Code)
	}
}

func TestAssets(t *testing.T) {
	env := newTestEnv(t, "")
	rr := env.do(t, http.MethodGet, "/v1/assets", "")
	got := decode[struct {
		Assets []models.Asset `json:"assets"`
	}](t, rr)
	if len(got.Assets) != len(models.DefaultAssets()) {
		t.Fatalf("expected %d assets, got %d", len(models.DefaultAssets()), len(got.Assets))
	}
}

func TestAccount(t *testing.T) {
	env := newTestEnv(t, "")
	rr := env.do(t, http.MethodGet, "/v1/account", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	got := decode[accountResponse](t, rr)
	if got.Cash != "$1000.00" || got.BuyingPower != 1000 {
		t.Fatalf("unexpected account %+v", got)
	}
}

func TestPositionsCarryBid(t *testing.T) {
	env := newTestEnv(t, "")
	rr := env.do(t, http.MethodGet, "/v1/positions", "")
	got := decode[struct {
		Positions []positionResponse `json:"positions"`
	}](t, rr)
	if len(got.Positions) != 1 || got.Positions[0].Symbol != "DOGE" {
		t.Fatalf("unexpected positions %+v", got.Positions)
	}
	if got.Positions[0].Bid <= 0 || got.Positions[0].Bid >= 0.1 {
		t.Fatalf("expected bid just under 0.1, got %v", got.Positions[0].Bid)
	}
}

func TestQuote(t *testing.T) {
	env := newTestEnv(t, "")

	rr := env.do(t, http.MethodGet, "/v1/quotes/doge", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if q := decode[models.Quote](t, rr); q.Symbol != "DOGE" || q.Mark != 0.1 {
		t.Fatalf("unexpected quote %+v", q)
	}

	if rr := env.do(t, http.MethodGet, "/v1/quotes/NOPE", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown symbol, got %d", rr.Code)
	}
}

func TestHistoricals(t *testing.T) {
	env := newTestEnv(t, "")

	if rr := env.do(t, http.MethodGet, "/v1/historicals/DOGE?interval=2minute", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad interval, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/v1/historicals/DOGE?span=decade", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad span, got %d", rr.Code)
	}

	rr := env.do(t, http.MethodGet, "/v1/historicals/DOGE", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	got := decode[map[string]any](t, rr)
	if got["interval"] != defaultInterval || got["span"] != defaultSpan {
		t.Fatalf("expected default interval and span, got %v", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, "")

	if rr := env.do(t, http.MethodGet, "/v1/sessions/current", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any session, got %d", rr.Code)
	}

	rr := env.do(t, http.MethodPost, "/v1/sessions", `{"assets":["DOGE"],"duration":1,"unit":"hours"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	started := decode[trading.SessionStatus](t, rr)
	if started.ID == "" || len(started.Assets) != 1 {
		t.Fatalf("unexpected session %+v", started)
	}

	rr = env.do(t, http.MethodPost, "/v1/sessions", `{"assets":["ETH"],"duration":1,"unit":"hours"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 while running, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/v1/sessions/current", "")
	if st := decode[trading.SessionStatus](t, rr); st.ID != started.ID || !st.Running {
		t.Fatalf("unexpected status %+v", st)
	}

	rr = env.do(t, http.MethodDelete, "/v1/sessions/current", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if got := decode[map[string]bool](t, rr); !got["stopped"] {
		t.Fatalf("expected stopped=true, got %v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := env.orch.Join(ctx); err != nil {
		t.Fatalf("join: %v", err)
	}

	rr = env.do(t, http.MethodDelete, "/v1/sessions/current", "")
	if got := decode[map[string]bool](t, rr); got["stopped"] {
		t.Fatalf("expected stopped=false once finished, got %v", got)
	}
}

func TestStartSession_Validation(t *testing.T) {
	env := newTestEnv(t, "")
	cases := map[string]string{
		"bad unit":      `{"assets":["DOGE"],"duration":1,"unit":"days"}`,
		"unknown asset": `{"assets":["NOPE"],"duration":1,"unit":"hours"}`,
		"no assets":     `{"assets":[],"duration":1,"unit":"hours"}`,
		"zero duration": `{"assets":["DOGE"],"duration":0,"unit":"hours"}`,
		"empty body":    ``,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if rr := env.do(t, http.MethodPost, "/v1/sessions", body); rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestBuy(t *testing.T) {
	env := newTestEnv(t, "")

	rr := env.do(t, http.MethodPost, "/v1/orders/buy", `{"asset":"DOGE","quantity":10}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	res := decode[trading.BuyResult](t, rr)
	if res.Status != trading.BuyFilled || res.OrderID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	rec, ok, err := env.ledger.Get(context.Background(), res.OrderID)
	if err != nil || !ok || rec.Status != models.StatusFilled || rec.Type != "buy" {
		t.Fatalf("expected filled buy in ledger, got %+v ok=%v err=%v", rec, ok, err)
	}

	rr = env.do(t, http.MethodPost, "/v1/orders/buy", `{"asset":"DOGE","quantity":0.5}`)
	if res := decode[trading.BuyResult](t, rr); res.Status != trading.BuyInsufficientSize {
		t.Fatalf("expected insufficient_size, got %+v", res)
	}

	if rr := env.do(t, http.MethodPost, "/v1/orders/buy", `{"asset":"NOPE","quantity":1}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown asset, got %d", rr.Code)
	}
}

func TestRecordAndListTrades(t *testing.T) {
	env := newTestEnv(t, "")

	if rr := env.do(t, http.MethodPost, "/v1/trades", `{"type":"sell","crypto":"DOGE","status":"filled"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing id, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/v1/trades", `{"id":"x","type":"sell","status":"done"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", rr.Code)
	}

	body := `{"id":"ord-1","type":"sell","crypto":"DOGE","amount":"10","price":"$0.1","value":"$1","status":"pending"}`
	if rr := env.do(t, http.MethodPost, "/v1/trades", body); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	update := `{"id":"ord-1","type":"sell","crypto":"DOGE","amount":"99","price":"$5","value":"$495","status":"filled"}`
	rr := env.do(t, http.MethodPost, "/v1/trades", update)
	stored := decode[models.TradeRecord](t, rr)
	if stored.Status != models.StatusFilled || stored.Amount != "10" {
		t.Fatalf("expected only status to change, got %+v", stored)
	}

	rr = env.do(t, http.MethodGet, "/v1/trades?window=10m", "")
	list := decode[struct {
		Trades []models.TradeRecord `json:"trades"`
	}](t, rr)
	if len(list.Trades) != 1 || list.Trades[0].ID != "ord-1" {
		t.Fatalf("unexpected listing %+v", list.Trades)
	}

	if rr := env.do(t, http.MethodGet, "/v1/trades?window=soon", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad window, got %d", rr.Code)
	}

	day := ledger.TradingDay(time.Now())
	rr = env.do(t, http.MethodGet, "/v1/trades/day/"+day, "")
	byDay := decode[struct {
		Trades []models.TradeRecord `json:"trades"`
	}](t, rr)
	if len(byDay.Trades) != 1 {
		t.Fatalf("expected 1 trade on %s, got %d", day, len(byDay.Trades))
	}
	if rr := env.do(t, http.MethodGet, "/v1/trades/day/yesterday", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rr.Code)
	}
}

func TestTodaysChange(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	now := time.Now()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(env.ledger.Upsert(ctx, models.TradeRecord{ID: "s", Type: "sell", Asset: "DOGE", Amount: "10", Price: "$0.2", Status: models.StatusFilled, Time: now}))
	must(env.ledger.Upsert(ctx, models.TradeRecord{ID: "b", Type: "buy", Asset: "DOGE", Amount: "5", Price: "$0.2", Status: models.StatusFilled, Time: now}))

	rr := env.do(t, http.MethodGet, "/v1/trades/todays-change", "")
	got := decode[models.TradeSummary](t, rr)
	if got.FilledSells != 1 || got.FilledBuys != 1 {
		t.Fatalf("unexpected summary %+v", got)
	}
	if diff := got.Change - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected change 1.0, got %v", got.Change)
	}
}

func TestStreamRouteMountedWhenSet(t *testing.T) {
	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	s := NewServer(Deps{}, Options{Stream: stream})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/stream", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected stream handler, got %d", rr.Code)
	}

	bare := NewServer(Deps{}, Options{})
	rr = httptest.NewRecorder()
	bare.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/stream", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without stream, got %d", rr.Code)
	}
}
