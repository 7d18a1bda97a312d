// Package external fetches reference market data from public price feeds.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/kjannette/trahn-autotrader/internal/httputil"
)

const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// coinIDs maps ticker symbols to CoinGecko coin ids.
var coinIDs = map[string]string{
	"BTC":  "bitcoin",
	"DOGE": "dogecoin",
	"ETH":  "ethereum",
	"SHIB": "shiba-inu",
	"XLM":  "stellar",
	"XTZ":  "tezos",
}

type CoinGeckoClient struct {
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

// NewCoinGeckoClient targets baseURL, or DefaultCoinGeckoURL when empty.
func NewCoinGeckoClient(baseURL string, logger *slog.Logger) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	return &CoinGeckoClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
			Logger:      logger,
		},
	}
}

// SpotPrices returns USD prices keyed by ticker symbol. Symbols without a
// known coin id are left out of the result.
func (c *CoinGeckoClient) SpotPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	bySymbol := make(map[string]string)
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(s)
		id, ok := coinIDs[s]
		if !ok {
			continue
		}
		if _, dup := bySymbol[s]; !dup {
			bySymbol[s] = id
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}
	sort.Strings(ids)

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	endpoint := c.baseURL + "/simple/price?" + q.Encode()

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("coingecko fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	}

	var data map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := make(map[string]float64, len(bySymbol))
	for sym, id := range bySymbol {
		if p, ok := data[id]; ok && p.USD > 0 {
			out[sym] = p.USD
		}
	}
	return out, nil
}
