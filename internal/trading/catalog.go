package trading

import (
	"fmt"
	"strings"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

// Catalog is the fixed set of tradable assets, keyed by upper-case symbol.
type Catalog struct {
	assets map[string]models.Asset
	order  []string
}

func NewCatalog(assets []models.Asset) *Catalog {
	c := &Catalog{assets: make(map[string]models.Asset, len(assets))}
	for _, a := range assets {
		a.Symbol = normalizeSymbol(a.Symbol)
		if a.Symbol == "" {
			continue
		}
		if _, dup := c.assets[a.Symbol]; !dup {
			c.order = append(c.order, a.Symbol)
		}
		c.assets[a.Symbol] = a
	}
	return c
}

func (c *Catalog) Lookup(symbol string) (models.Asset, bool) {
	a, ok := c.assets[normalizeSymbol(symbol)]
	return a, ok
}

// All returns the assets in configuration order.
func (c *Catalog) All() []models.Asset {
	out := make([]models.Asset, 0, len(c.order))
	for _, s := range c.order {
		out = append(out, c.assets[s])
	}
	return out
}

// Resolve maps requested symbols to assets, dropping duplicates and keeping
// the first-seen order.
func (c *Catalog) Resolve(symbols []string) ([]models.Asset, error) {
	seen := make(map[string]bool, len(symbols))
	var out []models.Asset
	for _, s := range symbols {
		s = normalizeSymbol(s)
		if s == "" || seen[s] {
			continue
		}
		a, ok := c.assets[s]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, s)
		}
		seen[s] = true
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, ErrNoAssets
	}
	return out, nil
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
