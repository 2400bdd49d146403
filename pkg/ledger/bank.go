package ledger

import (
	"context"
	"crypto/ed25519"
	"sort"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	xrate "golang.org/x/time/rate"

	"github.com/code-payments/code-timelock/pkg/lock"
	"github.com/code-payments/code-timelock/pkg/metrics"
	"github.com/code-payments/code-timelock/pkg/rate"
	"github.com/code-payments/code-timelock/pkg/retry"
	"github.com/code-payments/code-timelock/pkg/retry/backoff"
	"github.com/code-payments/code-timelock/pkg/solana"
	sync_util "github.com/code-payments/code-timelock/pkg/sync"
)

const (
	metricsStructName = "ledger.Bank"

	subscriberBufferSize = 256

	maxConflictAttempts = 5
)

var (
	ErrRateLimited = errors.New("ledger: payer is rate limited")
)

// Bank executes transactions against a Store.
//
// Transactions touching disjoint sets of writable accounts run concurrently.
// Writable accounts are locked in-process, and additionally through a
// lock.Manager when one is provided, which allows multiple banks to share a
// Store.
type Bank struct {
	log   *logrus.Entry
	conf  *conf
	store Store
	locks lock.Manager
	clock Clock

	stripes  *sync_util.StripedLock
	limiter  rate.Limiter
	programs map[string]Program

	subscribersMu sync.RWMutex
	subscribers   map[*subscriber]struct{}
}

type subscriber struct {
	ctx context.Context
	ch  chan []AccountUpdate
}

// NewBank returns a Bank that runs the provided programs. locks may be nil,
// in which case the Bank must be the only writer to the store.
func NewBank(store Store, locks lock.Manager, clock Clock, configProvider ConfigProvider, programs ...Program) *Bank {
	conf := configProvider()
	ctx := context.Background()

	var limiter rate.Limiter = rate.NoLimiter{}
	if perSecond := conf.maxTransactionsPerPayer.Get(ctx); perSecond > 0 {
		limiter = rate.NewLocalRateLimiter(xrate.Limit(perSecond), rate.DefaultMaxKeys)
	}

	b := &Bank{
		log:         logrus.StandardLogger().WithField("type", "ledger/bank"),
		conf:        conf,
		store:       store,
		locks:       locks,
		clock:       clock,
		stripes:     sync_util.NewStripedLock(uint(conf.lockStripes.Get(ctx))),
		limiter:     limiter,
		programs:    make(map[string]Program),
		subscribers: make(map[*subscriber]struct{}),
	}

	for _, p := range programs {
		b.programs[string(p.ID())] = p
	}

	return b
}

// Rent returns the current rent parameters.
func (b *Bank) Rent(ctx context.Context) Rent {
	return Rent{
		LamportsPerByteYear: b.conf.lamportsPerByteYear.Get(ctx),
		ExemptionYears:      b.conf.rentExemptionYears.Get(ctx),
		StorageOverhead:     b.conf.accountStorageOverhead.Get(ctx),
	}
}

// GetAccount returns the committed state of an account.
//
// ErrAccountNotFound is returned if the account does not exist.
func (b *Bank) GetAccount(ctx context.Context, address ed25519.PublicKey) (*Account, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetAccount")
	defer tracer.End()

	account, err := b.store.Get(ctx, address)
	if err != nil && err != ErrAccountNotFound {
		tracer.OnError(err)
	}
	return account, err
}

// Subscribe returns a channel of committed account updates, in commit order.
// The channel is closed once ctx is done.
//
// Subscribers must keep up: commits block while a subscriber's buffer is full.
func (b *Bank) Subscribe(ctx context.Context) <-chan []AccountUpdate {
	s := &subscriber{
		ctx: ctx,
		ch:  make(chan []AccountUpdate, subscriberBufferSize),
	}

	b.subscribersMu.Lock()
	b.subscribers[s] = struct{}{}
	b.subscribersMu.Unlock()

	go func() {
		<-ctx.Done()

		b.subscribersMu.Lock()
		delete(b.subscribers, s)
		close(s.ch)
		b.subscribersMu.Unlock()
	}()

	return s.ch
}

func (b *Bank) publish(updates []AccountUpdate) {
	if len(updates) == 0 {
		return
	}

	b.subscribersMu.RLock()
	defer b.subscribersMu.RUnlock()

	for s := range b.subscribers {
		select {
		case s.ch <- updates:
		case <-s.ctx.Done():
		}
	}
}

// Airdrop credits lamports to an account, creating it if it does not exist.
// It is intended for tests and local clusters.
func (b *Bank) Airdrop(ctx context.Context, address ed25519.PublicKey, lamports uint64) (uint64, error) {
	unlock, err := b.lockAccounts(ctx, []ed25519.PublicKey{address})
	if err != nil {
		return 0, err
	}
	defer unlock()

	txn, err := b.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback(ctx)

	previous, err := txn.Get(ctx, address)
	switch err {
	case nil:
	case ErrAccountNotFound:
		previous = nil
	default:
		return 0, err
	}

	updated := previous.Clone()
	if updated == nil {
		updated = emptyAccount(address)
	}
	updated.Lamports += lamports

	if err := txn.Put(ctx, updated); err != nil {
		return 0, err
	}

	slot, err := txn.Commit(ctx)
	if err != nil {
		return 0, err
	}

	updated.Slot = slot
	b.publish([]AccountUpdate{{Slot: slot, Account: updated, Previous: previous}})
	return slot, nil
}

// Execute runs every instruction of the transaction and commits the result
// atomically, returning the commit slot.
//
// Failures of the transaction itself are returned as *solana.TransactionError,
// in which case no state was changed.
func (b *Bank) Execute(ctx context.Context, txn solana.Transaction) (slot uint64, err error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Execute")
	defer tracer.End()

	log := b.log.WithField("method", "Execute")
	if len(txn.Signatures) > 0 {
		log = log.WithField("signature", base58.Encode(txn.Signature()))
	}

	defer func() {
		if err != nil {
			tracer.OnError(err)
			log.WithError(err).Info("transaction rejected")
		} else {
			log.WithField("slot", slot).Debug("transaction committed")
		}
	}()

	if err := txn.VerifySignatures(); err != nil {
		return 0, solana.NewTransactionError(solana.TransactionErrorSignatureFailure)
	}
	if err := sanitize(txn.Message); err != nil {
		return 0, err
	}

	payer := base58.Encode(txn.Message.Accounts[0])
	allowed, err := b.limiter.Allow(payer)
	if err != nil {
		return 0, errors.Wrap(err, "error checking rate limit")
	}
	if !allowed {
		return 0, ErrRateLimited
	}

	var writable []ed25519.PublicKey
	for i, account := range txn.Message.Accounts {
		if txn.Message.IsWritable(i) {
			writable = append(writable, account)
		}
	}

	unlock, err := b.lockAccounts(ctx, writable)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var updates []AccountUpdate
	_, err = retry.Retry(
		func() error {
			slot, updates, err = b.run(ctx, log, txn)
			return err
		},
		retry.NotFatal(func(err error) bool { return !errors.Is(err, ErrConflict) }),
		retry.Limit(maxConflictAttempts),
		retry.Cancellable(ctx),
		retry.BackoffWithJitter(backoff.BinaryExponential(5*time.Millisecond), 250*time.Millisecond, 0.1),
	)
	if err != nil {
		return 0, err
	}

	b.publish(updates)
	return slot, nil
}

// run executes the transaction in a single store transaction.
func (b *Bank) run(ctx context.Context, log *logrus.Entry, txn solana.Transaction) (uint64, []AccountUpdate, error) {
	dbTxn, err := b.store.Begin(ctx)
	if err != nil {
		return 0, nil, errors.Wrap(err, "error starting store transaction")
	}
	defer dbTxn.Rollback(ctx)

	exec, err := b.load(ctx, dbTxn, txn.Message.Accounts)
	if err != nil {
		return 0, nil, err
	}
	exec.log = log

	for i := range txn.Message.Instructions {
		ix, err := txn.Message.Decompile(i)
		if err != nil {
			return 0, nil, solana.NewTransactionError(solana.TransactionErrorInvalidAccountIndex)
		}

		if err := exec.process(ix, 1); err != nil {
			return 0, nil, solana.TransactionErrorFromInstructionError(&solana.InstructionError{
				Index: i,
				Err:   err,
			})
		}
	}

	updates, err := exec.stage(ctx, dbTxn)
	if err != nil {
		return 0, nil, err
	}

	slot, err := dbTxn.Commit(ctx)
	if err != nil {
		return 0, nil, errors.Wrap(err, "error committing store transaction")
	}

	for i := range updates {
		updates[i].Slot = slot
		updates[i].Account.Slot = slot
	}
	return slot, updates, nil
}

func sanitize(m solana.Message) error {
	if len(m.Accounts) == 0 || m.Header.NumSignatures == 0 {
		return solana.NewTransactionError(solana.TransactionErrorSanitizeFailure)
	}

	seen := make(map[string]struct{}, len(m.Accounts))
	for _, account := range m.Accounts {
		if len(account) != ed25519.PublicKeySize {
			return solana.NewTransactionError(solana.TransactionErrorSanitizeFailure)
		}

		if _, ok := seen[string(account)]; ok {
			return solana.NewTransactionError(solana.TransactionErrorAccountLoadedTwice)
		}
		seen[string(account)] = struct{}{}
	}

	return nil
}

// LockName is the name of the lock.Manager lock guarding writes to an account.
func LockName(address ed25519.PublicKey) string {
	return base58.Encode(address)
}

// lockAccounts takes the in-process stripes and, when configured, the
// distributed locks of every account. Locks are taken in address order.
func (b *Bank) lockAccounts(ctx context.Context, accounts []ed25519.PublicKey) (func(), error) {
	keys := make([][]byte, len(accounts))
	for i, account := range accounts {
		keys[i] = account
	}
	unlockStripes := b.stripes.LockAll(keys...)

	if b.locks == nil {
		return unlockStripes, nil
	}

	names := make([]string, len(accounts))
	for i, account := range accounts {
		names[i] = LockName(account)
	}
	sort.Strings(names)

	lockCtx, cancel := context.WithTimeout(ctx, b.conf.lockTimeout.Get(ctx))
	defer cancel()

	var held []lock.DistributedLock
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Unlock(context.Background()); err != nil {
				b.log.WithError(err).Warn("failure releasing account lock")
			}
		}
		unlockStripes()
	}

	for _, name := range names {
		l, err := b.locks.Create(ctx, name)
		if err != nil {
			release()
			return nil, errors.Wrapf(err, "error creating lock for %s", name)
		}

		// Acquisition is bound to ctx rather than lockCtx so that the lock
		// outlives the timeout once acquired.
		acquired := make(chan error, 1)
		go func() {
			_, err := l.Acquire(ctx)
			acquired <- err
		}()

		select {
		case err := <-acquired:
			if err != nil {
				release()
				return nil, solana.NewTransactionError(solana.TransactionErrorAccountInUse)
			}
			held = append(held, l)
		case <-lockCtx.Done():
			// The pending acquisition may still succeed, so it is released
			// once it completes.
			go func() {
				if err := <-acquired; err == nil {
					_ = l.Unlock(context.Background())
				}
			}()
			release()
			return nil, solana.NewTransactionError(solana.TransactionErrorAccountInUse)
		}
	}

	return release, nil
}

// execution is the working state of a single transaction.
type execution struct {
	ctx      context.Context
	bank     *Bank
	log      *logrus.Entry
	now      time.Time
	rent     Rent
	maxDepth int

	// loaded holds the committed state of every account, nil if it does not
	// exist. accounts holds the working copies programs operate on.
	loaded   map[string]*Account
	accounts map[string]*Account
}

func (b *Bank) load(ctx context.Context, txn Txn, addresses []ed25519.PublicKey) (*execution, error) {
	exec := &execution{
		ctx:      ctx,
		bank:     b,
		log:      b.log,
		now:      b.clock.Now(),
		rent:     b.Rent(ctx),
		maxDepth: int(b.conf.maxCallDepth.Get(ctx)),
		loaded:   make(map[string]*Account, len(addresses)),
		accounts: make(map[string]*Account, len(addresses)),
	}

	for _, address := range addresses {
		account, err := txn.Get(ctx, address)
		switch err {
		case nil:
			exec.loaded[string(address)] = account
			exec.accounts[string(address)] = account.Clone()
		case ErrAccountNotFound:
			exec.loaded[string(address)] = nil
			exec.accounts[string(address)] = emptyAccount(address)
		default:
			return nil, errors.Wrapf(err, "error loading account %s", base58.Encode(address))
		}
	}

	return exec, nil
}

// process runs a single instruction in a new frame.
func (e *execution) process(ix solana.Instruction, depth int) error {
	program, ok := e.bank.programs[string(ix.Program)]
	if !ok {
		return solana.ErrUnsupportedProgramID
	}

	ic := &InvokeContext{
		exec: e,
		log: e.log.WithFields(logrus.Fields{
			"program": base58.Encode(ix.Program),
			"depth":   depth,
		}),
		programID:  ix.Program,
		data:       ix.Data,
		depth:      depth,
		privileges: make(map[string]privilege, len(ix.Accounts)),
	}

	for _, meta := range ix.Accounts {
		account, ok := e.accounts[string(meta.PublicKey)]
		if !ok {
			return solana.ErrMissingAccount
		}

		ic.accounts = append(ic.accounts, &AccountInfo{
			Account:    account,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
		})

		p := ic.privileges[string(meta.PublicKey)]
		p.signer = p.signer || meta.IsSigner
		p.writable = p.writable || meta.IsWritable
		ic.privileges[string(meta.PublicKey)] = p
	}

	ic.checkpoint()

	if err := program.Process(ic); err != nil {
		return err
	}

	return ic.verify()
}

// stage writes every changed account to the store transaction and returns the
// resulting updates.
func (e *execution) stage(ctx context.Context, txn Txn) ([]AccountUpdate, error) {
	keys := maps.Keys(e.accounts)
	sort.Strings(keys)

	var updates []AccountUpdate
	for _, key := range keys {
		post := e.accounts[key]
		pre := e.loaded[key]

		if pre == nil && !post.Exists() {
			continue
		}
		if pre != nil && equalState(pre, post) {
			continue
		}

		if post.Exists() && !e.rent.IsExempt(post.Lamports, len(post.Data)) {
			// Accounts that were already below the minimum may stay there,
			// which allows them to be drained.
			if pre == nil || e.rent.IsExempt(pre.Lamports, len(pre.Data)) {
				return nil, solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForRent)
			}
		}

		var err error
		if post.Exists() {
			err = txn.Put(ctx, post)
		} else {
			err = txn.Delete(ctx, post.Address)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error staging account %s", base58.Encode(post.Address))
		}

		updates = append(updates, AccountUpdate{
			Account:  post.Clone(),
			Previous: pre.Clone(),
		})
	}

	return updates, nil
}
