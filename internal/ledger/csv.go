package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

var csvHeader = []string{"id", "type", "crypto", "amount", "price", "value", "status", "time"}

// legacyClockLayouts are the clock-only times older ledgers wrote
// ("03:04 PM"). They are read as times on the current day.
var legacyClockLayouts = []string{"03:04 PM", "03:04PM", "3:04 PM", "3:04PM"}

// CSVStore keeps the ledger in a flat table keyed by id. Every write reads
// the whole file and rewrites it through a temp file and rename.
type CSVStore struct {
	path string
	now  func() time.Time
}

func NewCSVStore(path string) (*CSVStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	s := &CSVStore{path: path, now: time.Now}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(nil); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *CSVStore) Find(ctx context.Context, id string) (models.TradeRecord, bool, error) {
	all, err := s.All(ctx)
	if err != nil {
		return models.TradeRecord{}, false, err
	}
	for _, rec := range all {
		if rec.ID == id {
			return rec, true, nil
		}
	}
	return models.TradeRecord{}, false, nil
}

func (s *CSVStore) Insert(ctx context.Context, rec models.TradeRecord) error {
	all, err := s.All(ctx)
	if err != nil {
		return err
	}
	return s.write(append(all, rec))
}

func (s *CSVStore) UpdateStatus(ctx context.Context, id, status string) error {
	all, err := s.All(ctx)
	if err != nil {
		return err
	}
	found := false
	for i := range all {
		if all[i].ID == id {
			all[i].Status = status
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("no record %s", id)
	}
	return s.write(all)
}

func (s *CSVStore) All(_ context.Context) ([]models.TradeRecord, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var out []models.TradeRecord
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		out = append(out, models.TradeRecord{
			ID:     field(row, "id"),
			Type:   field(row, "type"),
			Asset:  field(row, "crypto"),
			Amount: field(row, "amount"),
			Price:  field(row, "price"),
			Value:  field(row, "value"),
			Status: field(row, "status"),
			Time:   s.parseTime(field(row, "time")),
		})
	}
	return out, nil
}

func (s *CSVStore) Close() error { return nil }

func (s *CSVStore) parseTime(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	now := s.now()
	for _, layout := range legacyClockLayouts {
		if t, err := time.ParseInLocation(layout, strings.ToUpper(v), now.Location()); err == nil {
			return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
		}
	}
	return time.Time{}
}

func (s *CSVStore) write(records []models.TradeRecord) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return err
	}
	for _, rec := range records {
		ts := ""
		if !rec.Time.IsZero() {
			ts = rec.Time.UTC().Format(time.RFC3339Nano)
		}
		if err := w.Write([]string{
			rec.ID, rec.Type, rec.Asset, rec.Amount,
			rec.Price, rec.Value, rec.Status, ts,
		}); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
