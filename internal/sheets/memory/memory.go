// Package memory is an in-process occurrence sheet, used when no
// spreadsheet is configured and in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ports "ricorrenti/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows []ports.Row
}

var _ ports.Exporter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendRow stores the row and returns a synthetic row reference.
func (s *Store) AppendRow(_ context.Context, row ports.Row) (string, error) {
	if row.TransactionID == 0 {
		return "", errors.New("row has no transaction id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// ExportedTransactionIDs implements sheets.ExportedLister
func (s *Store) ExportedTransactionIDs(_ context.Context) (map[int64]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[int64]struct{}, len(s.rows))
	for _, r := range s.rows {
		ids[r.TransactionID] = struct{}{}
	}
	return ids, nil
}

// Rows returns a copy of the stored rows in append order.
func (s *Store) Rows() []ports.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Row(nil), s.rows...)
}
