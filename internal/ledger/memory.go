package ledger

import (
	"context"
	"fmt"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	records []models.TradeRecord
	index   map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

func (m *MemoryStore) Find(_ context.Context, id string) (models.TradeRecord, bool, error) {
	i, ok := m.index[id]
	if !ok {
		return models.TradeRecord{}, false, nil
	}
	return m.records[i], true, nil
}

func (m *MemoryStore) Insert(_ context.Context, rec models.TradeRecord) error {
	if _, ok := m.index[rec.ID]; ok {
		return fmt.Errorf("duplicate id %s", rec.ID)
	}
	m.index[rec.ID] = len(m.records)
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id, status string) error {
	i, ok := m.index[id]
	if !ok {
		return fmt.Errorf("no record %s", id)
	}
	m.records[i].Status = status
	return nil
}

func (m *MemoryStore) All(_ context.Context) ([]models.TradeRecord, error) {
	out := make([]models.TradeRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
