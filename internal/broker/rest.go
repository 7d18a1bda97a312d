package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjannette/trahn-autotrader/internal/httputil"
	"github.com/kjannette/trahn-autotrader/internal/models"
)

// RESTClient talks to a JSON brokerage API with bearer-token auth.
type RESTClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      httputil.RetryConfig
	logger     *slog.Logger
}

type RESTOption func(*RESTClient)

func WithHTTPClient(hc *http.Client) RESTOption {
	return func(c *RESTClient) { c.httpClient = hc }
}

func WithRetry(r httputil.RetryConfig) RESTOption {
	return func(c *RESTClient) { c.retry = r }
}

func WithLogger(l *slog.Logger) RESTOption {
	return func(c *RESTClient) { c.logger = l }
}

func NewRESTClient(baseURL, token string, opts ...RESTOption) *RESTClient {
	c := &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.Logger = c.logger
	return c
}

// flexFloat decodes numbers the brokerage sends either as JSON numbers or as
// strings ("0.081234", "$12.50").
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	s = strings.TrimPrefix(s, "$")
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return fmt.Errorf("decode number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

type quoteJSON struct {
	Symbol    string    `json:"symbol"`
	MarkPrice flexFloat `json:"mark_price"`
	BidPrice  flexFloat `json:"bid_price"`
	AskPrice  flexFloat `json:"ask_price"`
	OpenPrice flexFloat `json:"open_price"`
	HighPrice flexFloat `json:"high_price"`
	LowPrice  flexFloat `json:"low_price"`
}

type positionJSON struct {
	Symbol    string    `json:"symbol"`
	Quantity  flexFloat `json:"quantity"`
	CostBasis flexFloat `json:"cost_basis"`
}

type orderJSON struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Quantity  flexFloat `json:"quantity"`
	Price     flexFloat `json:"price"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

func (o orderJSON) toModel() models.Order {
	return models.Order{
		ID:          o.ID,
		Symbol:      o.Symbol,
		Side:        models.Side(o.Side),
		Quantity:    float64(o.Quantity),
		Price:       float64(o.Price),
		State:       o.State,
		SubmittedAt: o.CreatedAt,
	}
}

type candleJSON struct {
	BeginsAt   time.Time `json:"begins_at"`
	OpenPrice  flexFloat `json:"open_price"`
	ClosePrice flexFloat `json:"close_price"`
	HighPrice  flexFloat `json:"high_price"`
	LowPrice   flexFloat `json:"low_price"`
	Volume     flexFloat `json:"volume"`
}

func (c *RESTClient) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	var q quoteJSON
	if err := c.get(ctx, "/quotes/"+url.PathEscape(symbol), &q); err != nil {
		return models.Quote{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	return models.Quote{
		Symbol:    symbol,
		Mark:      float64(q.MarkPrice),
		Bid:       float64(q.BidPrice),
		Ask:       float64(q.AskPrice),
		Open:      float64(q.OpenPrice),
		High:      float64(q.HighPrice),
		Low:       float64(q.LowPrice),
		FetchedAt: time.Now(),
	}, nil
}

func (c *RESTClient) Positions(ctx context.Context) ([]models.Position, error) {
	var body struct {
		Results []positionJSON `json:"results"`
	}
	if err := c.get(ctx, "/positions", &body); err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	out := make([]models.Position, 0, len(body.Results))
	for _, p := range body.Results {
		out = append(out, models.Position{
			Symbol:    p.Symbol,
			Quantity:  float64(p.Quantity),
			CostBasis: float64(p.CostBasis),
		})
	}
	return out, nil
}

func (c *RESTClient) Holdings(ctx context.Context, symbol string) (float64, error) {
	positions, err := c.Positions(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			return p.Quantity, nil
		}
	}
	return 0, nil
}

func (c *RESTClient) AccountCash(ctx context.Context) (string, error) {
	var body struct {
		Cash json.RawMessage `json:"cash"`
	}
	if err := c.get(ctx, "/account", &body); err != nil {
		return "", fmt.Errorf("account: %w", err)
	}
	return strings.Trim(string(body.Cash), `"`), nil
}

func (c *RESTClient) Historicals(ctx context.Context, symbol, interval, span string) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("interval", interval)
	q.Set("span", span)
	var body struct {
		DataPoints []candleJSON `json:"data_points"`
	}
	if err := c.get(ctx, "/historicals/"+url.PathEscape(symbol)+"?"+q.Encode(), &body); err != nil {
		return nil, fmt.Errorf("historicals %s: %w", symbol, err)
	}
	out := make([]models.Candle, len(body.DataPoints))
	for i, p := range body.DataPoints {
		out[i] = models.Candle{
			BeginsAt: p.BeginsAt,
			Open:     float64(p.OpenPrice),
			Close:    float64(p.ClosePrice),
			High:     float64(p.HighPrice),
			Low:      float64(p.LowPrice),
			Volume:   float64(p.Volume),
		}
	}
	return out, nil
}

func (c *RESTClient) SubmitSell(ctx context.Context, symbol string, quantity float64) (models.Order, error) {
	return c.submit(ctx, symbol, models.SideSell, quantity)
}

func (c *RESTClient) SubmitBuy(ctx context.Context, symbol string, quantity float64) (models.Order, error) {
	return c.submit(ctx, symbol, models.SideBuy, quantity)
}

func (c *RESTClient) submit(ctx context.Context, symbol string, side models.Side, quantity float64) (models.Order, error) {
	payload, err := json.Marshal(map[string]any{
		"symbol":   symbol,
		"side":     side,
		"quantity": strconv.FormatFloat(quantity, 'f', -1, 64),
		"type":     "market",
	})
	if err != nil {
		return models.Order{}, err
	}

	resp, err := httputil.Do(ctx, c.httpClient, httputil.NoRetry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("%w: %s %s: %v", ErrOrderRejected, side, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Order{}, fmt.Errorf("%w: %s %s: HTTP %d: %s",
			ErrOrderRejected, side, symbol, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var o orderJSON
	if err := json.NewDecoder(resp.Body).Decode(&o); err != nil {
		return models.Order{}, fmt.Errorf("%w: decode order: %v", ErrOrderRejected, err)
	}
	if o.ID == "" {
		return models.Order{}, fmt.Errorf("%w: %s %s: response carried no order id", ErrOrderRejected, side, symbol)
	}
	order := o.toModel()
	if order.Symbol == "" {
		order.Symbol = symbol
	}
	if order.Side == "" {
		order.Side = side
	}
	if order.Quantity == 0 {
		order.Quantity = quantity
	}
	return order, nil
}

func (c *RESTClient) PollOrder(ctx context.Context, orderID string) (models.Order, error) {
	var o orderJSON
	if err := c.get(ctx, "/orders/"+url.PathEscape(orderID), &o); err != nil {
		return models.Order{}, fmt.Errorf("poll order %s: %w", orderID, err)
	}
	if o.ID == "" {
		o.ID = orderID
	}
	return o.toModel(), nil
}

func (c *RESTClient) get(ctx context.Context, path string, out any) error {
	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func (c *RESTClient) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
