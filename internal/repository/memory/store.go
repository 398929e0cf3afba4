// Package memory is an in-process repository.Store. It keeps the same
// locking and all-or-nothing guarantees as the Postgres store: records are
// locked per key in the global order, writes are staged in the unit of work
// and only applied on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/localcredits/backend/internal/lock"
	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
)

type Store struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]*models.Account
	transactions map[uuid.UUID]*models.Transaction
	holds        map[uuid.UUID]*models.Hold
	entries      []*models.LedgerEntry

	locks lock.KeyedMutex
	now   func() time.Time
}

func New() *Store {
	return &Store{
		accounts:     make(map[uuid.UUID]*models.Account),
		transactions: make(map[uuid.UUID]*models.Transaction),
		holds:        make(map[uuid.UUID]*models.Hold),
		now:          time.Now,
	}
}

var _ repository.Store = (*Store)(nil)

// PutAccount seeds or overwrites an account outside of any unit of work.
func (s *Store) PutAccount(a *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.ID] = &cp
}

// Accounts returns a snapshot of every account.
func (s *Store) Accounts() []*models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// Holds returns a snapshot of every hold.
func (s *Store) Holds() []*models.Hold {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Hold, 0, len(s.holds))
	for _, h := range s.holds {
		cp := *h
		out = append(out, &cp)
	}
	return out
}

var _ repository.Snapshotter = (*Store)(nil)

func (s *Store) Snapshot(context.Context) ([]*models.Account, []*models.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts := make([]*models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		cp := *a
		accounts = append(accounts, &cp)
	}
	holds := make([]*models.Hold, 0, len(s.holds))
	for _, h := range s.holds {
		cp := *h
		holds = append(holds, &cp)
	}
	return accounts, holds, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &unitOfWork{
		s:            s,
		held:         make(map[string]struct{}),
		accounts:     make(map[uuid.UUID]*models.Account),
		transactions: make(map[uuid.UUID]*models.Transaction),
		holds:        make(map[uuid.UUID]*models.Hold),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", repository.ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}
	return t.Clone(), nil
}

func (s *Store) ListTransactionsByAccount(_ context.Context, accountID uuid.UUID) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []*models.Transaction
	for _, t := range s.transactions {
		if t.IsParty(accountID) {
			list = append(list, t.Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (s *Store) GetHold(_ context.Context, id uuid.UUID) (*models.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holds[id]
	if !ok {
		return nil, fmt.Errorf("%w: hold %s", repository.ErrNotFound, id)
	}
	cp := *h
	return &cp, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []*models.LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].AccountID == accountID {
			cp := *s.entries[i]
			list = append(list, &cp)
		}
	}
	return list, nil
}

// unitOfWork stages writes until commit. A key is locked before its record is
// first read and stays locked until the unit finishes.
type unitOfWork struct {
	s       *Store
	held    map[string]struct{}
	unlocks []func()

	accounts     map[uuid.UUID]*models.Account
	transactions map[uuid.UUID]*models.Transaction
	holds        map[uuid.UUID]*models.Hold
	entries      []*models.LedgerEntry
}

var _ repository.Tx = (*unitOfWork)(nil)

func (u *unitOfWork) lock(key string) {
	if _, ok := u.held[key]; ok {
		return
	}
	u.unlocks = append(u.unlocks, u.s.locks.Lock(key))
	u.held[key] = struct{}{}
}

func (u *unitOfWork) release() {
	for i := len(u.unlocks) - 1; i >= 0; i-- {
		u.unlocks[i]()
	}
	u.unlocks = nil
}

func (u *unitOfWork) commit() {
	now := u.s.now()
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for id, a := range u.accounts {
		a.UpdatedAt = now
		u.s.accounts[id] = a
	}
	for id, t := range u.transactions {
		u.s.transactions[id] = t
	}
	for id, h := range u.holds {
		u.s.holds[id] = h
	}
	u.s.entries = append(u.s.entries, u.entries...)
}

func (u *unitOfWork) LockTransaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	u.lock("txn:" + id.String())
	if t, ok := u.transactions[id]; ok {
		return t.Clone(), nil
	}
	u.s.mu.RLock()
	t, ok := u.s.transactions[id]
	u.s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}
	return t.Clone(), nil
}

func (u *unitOfWork) InsertTransaction(_ context.Context, t *models.Transaction) error {
	u.lock("txn:" + t.ID.String())
	u.s.mu.RLock()
	_, exists := u.s.transactions[t.ID]
	u.s.mu.RUnlock()
	if _, staged := u.transactions[t.ID]; exists || staged {
		return fmt.Errorf("%w: transaction %s", repository.ErrDuplicate, t.ID)
	}
	now := u.s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	u.transactions[t.ID] = t.Clone()
	return nil
}

func (u *unitOfWork) UpdateTransaction(_ context.Context, t *models.Transaction) error {
	if _, ok := u.held["txn:"+t.ID.String()]; !ok {
		return fmt.Errorf("%w: transaction %s updated without lock", repository.ErrInvalidEntity, t.ID)
	}
	t.UpdatedAt = u.s.now()
	u.transactions[t.ID] = t.Clone()
	return nil
}

func (u *unitOfWork) LockAccounts(_ context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	out := make(map[uuid.UUID]*models.Account, len(ids))
	for _, id := range repository.SortedIDs(ids...) {
		u.lock("acct:" + id.String())
		if a, ok := u.accounts[id]; ok {
			cp := *a
			out[id] = &cp
			continue
		}
		u.s.mu.RLock()
		a, ok := u.s.accounts[id]
		u.s.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: account %s", repository.ErrNotFound, id)
		}
		cp := *a
		out[id] = &cp
	}
	return out, nil
}

func (u *unitOfWork) UpdateAccount(_ context.Context, a *models.Account) error {
	if _, ok := u.held["acct:"+a.ID.String()]; !ok {
		return fmt.Errorf("%w: account %s updated without lock", repository.ErrInvalidEntity, a.ID)
	}
	if a.Balance < 0 || a.Escrow < 0 {
		return fmt.Errorf("%w: account %s balance %d escrow %d", repository.ErrInvalidEntity, a.ID, a.Balance, a.Escrow)
	}
	cp := *a
	u.accounts[a.ID] = &cp
	return nil
}

func (u *unitOfWork) InsertHold(_ context.Context, h *models.Hold) error {
	u.lock("hold:" + h.ID.String())
	if _, ok := u.holds[h.ID]; ok {
		return fmt.Errorf("%w: hold %s", repository.ErrDuplicate, h.ID)
	}
	h.CreatedAt = u.s.now()
	cp := *h
	u.holds[h.ID] = &cp
	return nil
}

func (u *unitOfWork) LockHold(_ context.Context, id uuid.UUID) (*models.Hold, error) {
	u.lock("hold:" + id.String())
	if h, ok := u.holds[id]; ok {
		cp := *h
		return &cp, nil
	}
	u.s.mu.RLock()
	h, ok := u.s.holds[id]
	u.s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: hold %s", repository.ErrNotFound, id)
	}
	cp := *h
	return &cp, nil
}

func (u *unitOfWork) UpdateHold(_ context.Context, h *models.Hold) error {
	if _, ok := u.held["hold:"+h.ID.String()]; !ok {
		return fmt.Errorf("%w: hold %s updated without lock", repository.ErrInvalidEntity, h.ID)
	}
	cp := *h
	u.holds[h.ID] = &cp
	return nil
}

func (u *unitOfWork) InsertLedgerEntry(_ context.Context, e *models.LedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = u.s.now()
	cp := *e
	u.entries = append(u.entries, &cp)
	return nil
}
