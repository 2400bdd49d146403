package memory

import (
	"context"
	"crypto/ed25519"
	"sync"

	"github.com/code-payments/code-timelock/pkg/ledger"
)

type store struct {
	mu       sync.RWMutex
	accounts map[string]*ledger.Account
	slot     uint64
}

// New returns a new in memory ledger.Store
func New() ledger.Store {
	return &store{
		accounts: make(map[string]*ledger.Account),
	}
}

// Begin implements ledger.Store.Begin
func (s *store) Begin(_ context.Context) (ledger.Txn, error) {
	return &txn{
		store:  s,
		writes: make(map[string]*ledger.Account),
	}, nil
}

// Get implements ledger.Store.Get
func (s *store) Get(_ context.Context, address ed25519.PublicKey) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[string(address)]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return account.Clone(), nil
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[string]*ledger.Account)
	s.slot = 0
}

// txn buffers writes until commit. A nil entry is a pending delete.
type txn struct {
	store *store

	mu     sync.Mutex
	writes map[string]*ledger.Account
	done   bool
}

func (t *txn) Get(ctx context.Context, address ed25519.PublicKey) (*ledger.Account, error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil, ledger.ErrTxnDone
	}

	written, ok := t.writes[string(address)]
	t.mu.Unlock()

	if ok {
		if written == nil {
			return nil, ledger.ErrAccountNotFound
		}
		return written.Clone(), nil
	}

	return t.store.Get(ctx, address)
}

func (t *txn) Put(_ context.Context, account *ledger.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return ledger.ErrTxnDone
	}

	t.writes[string(account.Address)] = account.Clone()
	return nil
}

func (t *txn) Delete(_ context.Context, address ed25519.PublicKey) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return ledger.ErrTxnDone
	}

	t.writes[string(address)] = nil
	return nil
}

func (t *txn) Commit(_ context.Context) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return 0, ledger.ErrTxnDone
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	t.store.slot++
	slot := t.store.slot

	for key, account := range t.writes {
		if account == nil {
			delete(t.store.accounts, key)
			continue
		}

		account.Slot = slot
		t.store.accounts[key] = account
	}

	return slot, nil
}

func (t *txn) Rollback(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done = true
	t.writes = nil
	return nil
}
