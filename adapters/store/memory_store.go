package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/anchor/core"
)

// MemoryStore is an in-memory implementation of the TransactionStore and
// CursorStore interfaces
type MemoryStore struct {
	transactions map[string]core.Transaction
	cursors      map[string]string
	mu           sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]core.Transaction),
		cursors:      make(map[string]string),
	}
}

// Find returns the transactions matching filter, oldest first
func (s *MemoryStore) Find(ctx context.Context, filter core.TransactionFilter) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []core.Transaction
	for _, tx := range s.transactions {
		if filter.Matches(tx) {
			result = append(result, tx)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return startedAt(result[i]).Before(startedAt(result[j])) ||
			(startedAt(result[i]).Equal(startedAt(result[j])) && result[i].ID < result[j].ID)
	})

	return result, nil
}

// Get returns a transaction by id
func (s *MemoryStore) Get(ctx context.Context, id string) (*core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", core.ErrNotFound, id)
	}
	return &tx, nil
}

// Update applies update to every transaction in ids, or to none of them
func (s *MemoryStore) Update(ctx context.Context, ids []string, update core.TransactionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.transactions[id]; !ok {
			return fmt.Errorf("%w: transaction %s", core.ErrNotFound, id)
		}
	}

	for _, id := range ids {
		tx := s.transactions[id]
		update.Apply(&tx)
		s.transactions[id] = tx
	}

	return nil
}

// Insert stores a new transaction, assigning an id if it has none
func (s *MemoryStore) Insert(ctx context.Context, tx *core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if _, exists := s.transactions[tx.ID]; exists {
		return fmt.Errorf("%w: transaction %s already exists", core.ErrInvalidInput, tx.ID)
	}
	if tx.StartedAt == nil {
		now := time.Now().UTC()
		tx.StartedAt = &now
	}

	s.transactions[tx.ID] = *tx
	return nil
}

// LoadCursor returns the last saved stream cursor for an account
func (s *MemoryStore) LoadCursor(ctx context.Context, accountID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cursors[accountID], nil
}

// SaveCursor records the stream cursor for an account
func (s *MemoryStore) SaveCursor(ctx context.Context, accountID, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[accountID] = cursor
	return nil
}

func startedAt(tx core.Transaction) time.Time {
	if tx.StartedAt == nil {
		return time.Time{}
	}
	return *tx.StartedAt
}
