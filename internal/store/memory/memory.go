// Package memory is the in-process store used in tests and as the default
// backend when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"cozyfin/internal/core"
	"cozyfin/internal/store"
)

var _ store.Store = (*Store)(nil)

type receipt struct {
	contentType string
	data        []byte
}

type Store struct {
	mu       sync.Mutex
	items    core.Ledger
	profiles map[core.UserID]core.Profile
	goal     core.Goal
	receipts map[string]receipt
}

func New() *Store {
	s := &Store{
		profiles: make(map[core.UserID]core.Profile),
		receipts: make(map[string]receipt),
		goal:     core.DefaultGoal(),
	}
	for _, p := range core.DefaultProfiles() {
		s.profiles[p.User] = p
	}
	return s
}

// Append stores the entry and returns its assigned ID.
func (s *Store) Append(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, tx)
	return tx.ID, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tx := range s.items {
		if tx.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			delete(s.receipts, id)
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *Store) List(_ context.Context, f core.Filter) (core.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Select(f).SortedNewestFirst(), nil
}

func (s *Store) Get(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.items {
		if tx.ID == id {
			return tx, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *Store) Profile(_ context.Context, user core.UserID) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[user]
	if !ok {
		return core.Profile{}, fmt.Errorf("profile %s: %w", user, core.ErrNotFound)
	}
	return p, nil
}

func (s *Store) SaveProfile(_ context.Context, p core.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.User] = p
	return nil
}

func (s *Store) Profiles(_ context.Context) ([]core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Profile, 0, len(s.profiles))
	for _, u := range core.AllUsers() {
		if p, ok := s.profiles[u]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) Goal(_ context.Context) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goal, nil
}

func (s *Store) SaveGoal(_ context.Context, g core.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goal = g
	return nil
}

func (s *Store) PutReceipt(_ context.Context, txID, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[txID] = receipt{contentType: contentType, data: append([]byte(nil), data...)}
	return nil
}

func (s *Store) GetReceipt(_ context.Context, txID string) (string, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[txID]
	if !ok {
		return "", nil, fmt.Errorf("receipt for %s: %w", txID, core.ErrNotFound)
	}
	return r.contentType, append([]byte(nil), r.data...), nil
}

func (s *Store) Close() error { return nil }
