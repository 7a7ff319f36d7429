package memory

import (
	"context"
	"sync"
	"time"

	"pointsystem/internal/model"
	"pointsystem/internal/repository"
)

// IDGenerator hands out increasing ids; *idgen.Snowflake satisfies it.
type IDGenerator interface {
	NextID() int64
}

// Store keeps accounts and history in process memory. It implements both
// repository.AccountStore and repository.HistoryStore. Values are copied in
// and out so callers never alias stored state.
type Store struct {
	mu       sync.RWMutex
	ids      IDGenerator
	accounts map[int64]*model.Account
	history  map[int64][]*model.PointTransaction
	nextRow  int64
}

func New(ids IDGenerator) *Store {
	return &Store{
		ids:      ids,
		accounts: make(map[int64]*model.Account),
		history:  make(map[int64][]*model.PointTransaction),
	}
}

func (s *Store) Get(_ context.Context, userID int64) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[userID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (s *Store) Create(_ context.Context, userID int64, at time.Time) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[userID]; ok {
		return nil, repository.ErrAccountExists
	}
	s.nextRow++
	account := &model.Account{
		ID:        s.nextRow,
		UserID:    userID,
		CreatedAt: at,
		UpdatedAt: at,
	}
	s.accounts[userID] = account
	cp := *account
	return &cp, nil
}

func (s *Store) Save(_ context.Context, userID, balance int64, at time.Time) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	account.Balance = balance
	account.UpdatedAt = at
	cp := *account
	return &cp, nil
}

func (s *Store) Append(_ context.Context, trans *model.PointTransaction) (*model.PointTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// ids are drawn under the store lock so append order and id order agree
	stored := *trans
	stored.ID = s.ids.NextID()
	s.history[stored.UserID] = append(s.history[stored.UserID], &stored)

	cp := stored
	return &cp, nil
}

func (s *Store) ListByUserID(_ context.Context, userID int64) ([]*model.PointTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[userID]
	out := make([]*model.PointTransaction, 0, len(entries))
	for _, e := range entries {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}
