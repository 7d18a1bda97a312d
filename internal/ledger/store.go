package ledger

import (
	"context"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

// Store is the backing persistence of a Ledger. Implementations need not be
// safe for concurrent use; the Ledger serializes every call.
type Store interface {
	Find(ctx context.Context, id string) (models.TradeRecord, bool, error)
	Insert(ctx context.Context, rec models.TradeRecord) error
	UpdateStatus(ctx context.Context, id, status string) error
	// All returns every record in storage (append) order.
	All(ctx context.Context) ([]models.TradeRecord, error)
	Close() error
}

// Pinger is implemented by stores backed by an external service.
type Pinger interface {
	Ping(ctx context.Context) error
}
