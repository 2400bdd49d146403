package timelock

import (
	"context"
	"crypto/ed25519"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-timelock/pkg/ledger"
	"github.com/code-payments/code-timelock/pkg/ledger/memory"
	"github.com/code-payments/code-timelock/pkg/solana"
	"github.com/code-payments/code-timelock/pkg/solana/memo"
	"github.com/code-payments/code-timelock/pkg/solana/system"
	"github.com/code-payments/code-timelock/pkg/solana/token"
)

const lockedAmount = 1000

type testEnv struct {
	ctx         context.Context
	bank        *ledger.Bank
	clock       *ledger.TestClock
	rent        ledger.Rent
	initializer ed25519.PrivateKey
	receiver    ed25519.PrivateKey
	minter      ed25519.PrivateKey
	mint        ed25519.PublicKey
	custody     ed25519.PublicKey
	destination ed25519.PublicKey
	tokens      *token.Client
}

func setup(t *testing.T) *testEnv {
	ctx := context.Background()
	clock := ledger.NewTestClock(time.Unix(1_700_000_000, 0))
	bank := ledger.NewBank(
		memory.New(),
		nil,
		clock,
		ledger.WithEnvConfigs(),
		system.NewProcessor(),
		token.NewProcessor(),
		token.NewAssociatedProcessor(),
		memo.NewProcessor(),
		NewProcessor(),
	)

	env := &testEnv{
		ctx:         ctx,
		bank:        bank,
		clock:       clock,
		rent:        bank.Rent(ctx),
		initializer: newPrivateKey(t),
		receiver:    newPrivateKey(t),
		minter:      newPrivateKey(t),
	}

	_, err := bank.Airdrop(ctx, public(env.initializer), 1_000_000_000)
	require.NoError(t, err)

	mint := newPrivateKey(t)
	require.NoError(t, env.execute(
		[]ed25519.PrivateKey{mint},
		system.CreateAccount(public(env.initializer), public(mint), token.ProgramKey, env.rent.MinimumBalance(token.MintSize), token.MintSize),
		token.InitializeMint(public(mint), public(env.minter), nil, 6),
	))
	env.mint = public(mint)
	env.tokens = token.NewClient(bank, env.mint)

	env.custody = env.createTokenAccount(t, public(env.initializer), lockedAmount)
	env.destination = env.createTokenAccount(t, public(env.receiver), 0)

	return env
}

// execute runs the instructions in a transaction paid for by the initializer.
func (e *testEnv) execute(signers []ed25519.PrivateKey, instructions ...solana.Instruction) error {
	txn := solana.NewTransaction(public(e.initializer), instructions...)
	return e.submit(txn, append([]ed25519.PrivateKey{e.initializer}, signers...)...)
}

func (e *testEnv) submit(txn solana.Transaction, signers ...ed25519.PrivateKey) error {
	if err := txn.Sign(signers...); err != nil {
		return err
	}
	_, err := e.bank.Execute(e.ctx, txn)
	return err
}

func (e *testEnv) createTokenAccount(t *testing.T, owner ed25519.PublicKey, amount uint64) ed25519.PublicKey {
	account := newPrivateKey(t)

	instructions := []solana.Instruction{
		system.CreateAccount(public(e.initializer), public(account), token.ProgramKey, e.rent.MinimumBalance(token.AccountSize), token.AccountSize),
		token.InitializeAccount3(public(account), e.mint, owner),
	}
	signers := []ed25519.PrivateKey{account}
	if amount > 0 {
		instructions = append(instructions, token.MintTo(e.mint, public(account), public(e.minter), amount))
		signers = append(signers, e.minter)
	}

	require.NoError(t, e.execute(signers, instructions...))
	return public(account)
}

func (e *testEnv) lockInstruction(t *testing.T, duration int64) solana.Instruction {
	address, bump, err := GetTimelockAddress(public(e.receiver))
	require.NoError(t, err)

	return NewLockInstruction(
		&LockInstructionAccounts{
			Timelock:    address,
			Initializer: public(e.initializer),
			Custody:     e.custody,
			Receiver:    public(e.receiver),
			Destination: e.destination,
		},
		&LockInstructionArgs{
			Bump:     bump,
			Duration: duration,
		},
	)
}

func (e *testEnv) lock(t *testing.T, duration int64) error {
	return e.execute(nil, e.lockInstruction(t, duration))
}

func (e *testEnv) unlockInstruction(t *testing.T) solana.Instruction {
	address, _, err := GetTimelockAddress(public(e.receiver))
	require.NoError(t, err)

	return NewUnlockInstruction(&UnlockInstructionAccounts{
		Timelock:    address,
		Custody:     e.custody,
		Receiver:    public(e.receiver),
		Destination: e.destination,
	})
}

func (e *testEnv) unlock(t *testing.T) error {
	txn := solana.NewTransaction(public(e.receiver), e.unlockInstruction(t))
	return e.submit(txn, e.receiver)
}

func (e *testEnv) balance(t *testing.T, account ed25519.PublicKey) uint64 {
	balance, err := e.tokens.GetBalance(e.ctx, account)
	require.NoError(t, err)
	return balance
}

func (e *testEnv) tokenAccount(t *testing.T, account ed25519.PublicKey) *token.Account {
	info, err := e.tokens.GetAccount(e.ctx, account)
	require.NoError(t, err)
	return info
}

func (e *testEnv) timelock(t *testing.T) (*TimelockAccount, ed25519.PublicKey) {
	state, address, err := GetTimelock(e.ctx, e.bank, public(e.receiver))
	require.NoError(t, err)
	return state, address
}

func (e *testEnv) requireNoTimelock(t *testing.T) {
	_, _, err := GetTimelock(e.ctx, e.bank, public(e.receiver))
	require.Equal(t, ErrTimelockAccountNotFound, err)
}

func TestProcessor_LockAndImmediateUnlock(t *testing.T) {
	env := setup(t)

	require.NoError(t, env.lock(t, 0))

	state, address := env.timelock(t)
	assert.EqualValues(t, public(env.receiver), state.Receiver)
	assert.EqualValues(t, public(env.initializer), state.Initializer)
	assert.EqualValues(t, env.custody, state.Custody)
	assert.EqualValues(t, env.destination, state.Destination)
	assert.Equal(t, env.clock.Now().Unix(), state.UnlockTime)
	assert.EqualValues(t, lockedAmount, state.Amount)

	custody := env.tokenAccount(t, env.custody)
	assert.EqualValues(t, address, custody.Owner)
	assert.EqualValues(t, address, custody.CloseAuthority)
	assert.EqualValues(t, lockedAmount, custody.Amount)

	require.NoError(t, env.unlock(t))

	assert.EqualValues(t, 0, env.balance(t, env.custody))
	assert.EqualValues(t, lockedAmount, env.balance(t, env.destination))
	env.requireNoTimelock(t)

	// The deposit funded by the initializer is returned to the receiver
	receiver, err := env.bank.GetAccount(env.ctx, public(env.receiver))
	require.NoError(t, err)
	assert.Equal(t, env.rent.MinimumBalance(TimelockAccountSize), receiver.Lamports)
}

func TestProcessor_UnlockBeforeUnlockTime(t *testing.T) {
	env := setup(t)

	require.NoError(t, env.lock(t, 50))
	before, _ := env.timelock(t)

	env.clock.Advance(time.Second)
	requireTimelockError(t, env.unlock(t), ErrNotYetUnlockable)

	after, _ := env.timelock(t)
	assert.Equal(t, before, after)
	assert.EqualValues(t, lockedAmount, env.balance(t, env.custody))
	assert.EqualValues(t, 0, env.balance(t, env.destination))

	// One second before the unlock time is still too early
	env.clock.Set(before.UnlockAt().Add(-time.Second))
	requireTimelockError(t, env.unlock(t), ErrNotYetUnlockable)

	env.clock.Set(before.UnlockAt().Add(time.Second))
	require.NoError(t, env.unlock(t))
	assert.EqualValues(t, 0, env.balance(t, env.custody))
	assert.EqualValues(t, lockedAmount, env.balance(t, env.destination))
}

func TestProcessor_UnlockAtUnlockTime(t *testing.T) {
	env := setup(t)

	require.NoError(t, env.lock(t, 50))
	state, _ := env.timelock(t)

	env.clock.Set(state.UnlockAt())
	require.NoError(t, env.unlock(t))
	assert.EqualValues(t, lockedAmount, env.balance(t, env.destination))
}

func TestProcessor_UnlockTwice(t *testing.T) {
	env := setup(t)

	require.NoError(t, env.lock(t, 0))
	require.NoError(t, env.unlock(t))

	requireTimelockError(t, env.unlock(t), ErrTimelockNotFound)
	assert.EqualValues(t, lockedAmount, env.balance(t, env.destination))
}

func TestProcessor_UnlockWithoutLock(t *testing.T) {
	env := setup(t)

	requireTimelockError(t, env.unlock(t), ErrTimelockNotFound)
}

func TestProcessor_UnlockUnauthorizedSigner(t *testing.T) {
	env := setup(t)

	require.NoError(t, env.lock(t, 0))
	env.clock.Advance(time.Hour)

	// Another identity presenting itself as the receiver
	attacker := newPrivateKey(t)
	ix := env.unlockInstruction(t)
	ix.Accounts[2].PublicKey = public(attacker)
	requireTimelockError(t, env.submit(solana.NewTransaction(public(attacker), ix), attacker), ErrUnauthorizedSigner)

	// The receiver, without a signature
	ix = env.unlockInstruction(t)
	ix.Accounts[2].IsSigner = false
	requireTimelockError(t, env.execute(nil, ix), ErrUnauthorizedSigner)

	// Neither attempt moved anything
	assert.EqualValues(t, lockedAmount, env.balance(t, env.custody))
	env.timelock(t)

	require.NoError(t, env.unlock(t))
}

func TestProcessor_UnlockDestination(t *testing.T) {
	env := setup(t)

	require.NoError(t, env.lock(t, 0))

	foreign := env.createTokenAccount(t, public(newPrivateKey(t)), 0)
	other := env.createTokenAccount(t, public(env.receiver), 0)

	// Only the destination recorded at lock time is accepted, even if another
	// account of the receiver holds the same mint.
	for _, destination := range []ed25519.PublicKey{foreign, other} {
		ix := env.unlockInstruction(t)
		ix.Accounts[3].PublicKey = destination
		requireTimelockError(t, env.submit(solana.NewTransaction(public(env.receiver), ix), env.receiver), ErrInvalidDestination)

		assert.EqualValues(t, lockedAmount, env.balance(t, env.custody))
		assert.EqualValues(t, 0, env.balance(t, destination))
	}
	env.timelock(t)

	require.NoError(t, env.unlock(t))
	assert.EqualValues(t, lockedAmount, env.balance(t, env.destination))
	assert.EqualValues(t, 0, env.balance(t, other))
}

func TestProcessor_UnlockCustodyMismatch(t *testing.T) {
	env := setup(t)

	require.NoError(t, env.lock(t, 0))

	other := env.createTokenAccount(t, public(env.initializer), 10)
	ix := env.unlockInstruction(t)
	ix.Accounts[1].PublicKey = other
	requireTimelockError(t, env.submit(solana.NewTransaction(public(env.receiver), ix), env.receiver), ErrCustodyAuthorityMismatch)
}

func TestProcessor_LockTwice(t *testing.T) {
	env := setup(t)

	require.NoError(t, env.lock(t, 100))
	before, _ := env.timelock(t)

	env.custody = env.createTokenAccount(t, public(env.initializer), 5)
	requireTimelockError(t, env.lock(t, 0), ErrAlreadyLocked)

	after, _ := env.timelock(t)
	assert.Equal(t, before, after)
	assert.EqualValues(t, 5, env.balance(t, env.custody))
	assert.EqualValues(t, public(env.initializer), env.tokenAccount(t, env.custody).Owner)
}

func TestProcessor_RelockAfterUnlock(t *testing.T) {
	env := setup(t)

	require.NoError(t, env.lock(t, 0))
	require.NoError(t, env.unlock(t))

	env.custody = env.createTokenAccount(t, public(env.initializer), 250)
	require.NoError(t, env.lock(t, 10))

	state, _ := env.timelock(t)
	assert.EqualValues(t, 250, state.Amount)
	assert.Equal(t, env.clock.Now().Unix()+10, state.UnlockTime)
}

func TestProcessor_LockAddressMismatch(t *testing.T) {
	env := setup(t)

	address, bump, err := GetTimelockAddress(public(env.receiver))
	require.NoError(t, err)

	// Wrong bump for the right address
	ix := env.lockInstruction(t, 0)
	ix.Data[8] = bump - 1
	requireTimelockError(t, env.execute(nil, ix), ErrAddressDerivationMismatch)

	// Address of another receiver
	other, _, err := GetTimelockAddress(public(newPrivateKey(t)))
	require.NoError(t, err)
	ix = env.lockInstruction(t, 0)
	ix.Accounts[0].PublicKey = other
	requireTimelockError(t, env.execute(nil, ix), ErrAddressDerivationMismatch)

	// An arbitrary address
	ix = env.lockInstruction(t, 0)
	ix.Accounts[0].PublicKey = public(newPrivateKey(t))
	requireTimelockError(t, env.execute(nil, ix), ErrAddressDerivationMismatch)

	_, err = env.bank.GetAccount(env.ctx, address)
	assert.Equal(t, ledger.ErrAccountNotFound, err)
	assert.EqualValues(t, public(env.initializer), env.tokenAccount(t, env.custody).Owner)
}

func TestProcessor_LockChecksAddressFirst(t *testing.T) {
	env := setup(t)

	payer := newPrivateKey(t)
	_, err := env.bank.Airdrop(env.ctx, public(payer), 1_000_000_000)
	require.NoError(t, err)

	// A tampered address is reported as such, even when the initializer
	// didn't sign and the duration is invalid.
	ix := env.lockInstruction(t, -1)
	ix.Accounts[0].PublicKey = public(newPrivateKey(t))
	ix.Accounts[1].IsSigner = false
	requireTimelockError(t, env.submit(solana.NewTransaction(public(payer), ix), payer), ErrAddressDerivationMismatch)
	env.requireNoTimelock(t)
}

func TestProcessor_LockPrefundedAddress(t *testing.T) {
	for _, tc := range []struct {
		name     string
		lamports func(rent ledger.Rent) uint64
	}{
		{"below rent", func(rent ledger.Rent) uint64 { return rent.MinimumBalance(0) }},
		{"above rent", func(rent ledger.Rent) uint64 { return rent.MinimumBalance(TimelockAccountSize) + 1 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := setup(t)

			address, _, err := GetTimelockAddress(public(env.receiver))
			require.NoError(t, err)

			// Someone else sends lamports to the address before it is locked
			funder := newPrivateKey(t)
			prefunded := tc.lamports(env.rent)
			_, err = env.bank.Airdrop(env.ctx, public(funder), 1_000_000_000)
			require.NoError(t, err)
			require.NoError(t, env.submit(solana.NewTransaction(public(funder), system.Transfer(public(funder), address, prefunded)), funder))

			require.NoError(t, env.lock(t, 0))

			state, _ := env.timelock(t)
			assert.EqualValues(t, env.custody, state.Custody)
			assert.EqualValues(t, address, env.tokenAccount(t, env.custody).Owner)

			account, err := env.bank.GetAccount(env.ctx, address)
			require.NoError(t, err)
			assert.EqualValues(t, ProgramKey, account.Owner)
			assert.Len(t, account.Data, TimelockAccountSize)
			assert.Equal(t, max(prefunded, env.rent.MinimumBalance(TimelockAccountSize)), account.Lamports)

			require.NoError(t, env.unlock(t))
			assert.EqualValues(t, lockedAmount, env.balance(t, env.destination))
		})
	}
}

func TestProcessor_LockDuration(t *testing.T) {
	env := setup(t)

	requireTimelockError(t, env.lock(t, -1), ErrInvalidDuration)
	requireTimelockError(t, env.lock(t, math.MaxInt64), ErrDurationOverflow)
	env.requireNoTimelock(t)

	require.NoError(t, env.lock(t, math.MaxInt64-env.clock.Now().Unix()))
	state, _ := env.timelock(t)
	assert.EqualValues(t, int64(math.MaxInt64), state.UnlockTime)
}

func TestProcessor_LockUnauthorizedSigner(t *testing.T) {
	env := setup(t)

	payer := newPrivateKey(t)
	_, err := env.bank.Airdrop(env.ctx, public(payer), 1_000_000_000)
	require.NoError(t, err)

	ix := env.lockInstruction(t, 0)
	ix.Accounts[1].IsSigner = false
	requireTimelockError(t, env.submit(solana.NewTransaction(public(payer), ix), payer), ErrUnauthorizedSigner)
	env.requireNoTimelock(t)
}

func TestProcessor_LockCustodyAuthorityMismatch(t *testing.T) {
	env := setup(t)

	// Custody owned by someone other than the initializer
	owner := newPrivateKey(t)
	env.custody = env.createTokenAccount(t, public(owner), 10)
	requireTimelockError(t, env.lock(t, 0), ErrCustodyAuthorityMismatch)

	// Custody that someone else can close
	env.custody = env.createTokenAccount(t, public(env.initializer), 10)
	require.NoError(t, env.execute(nil, token.SetAuthority(env.custody, public(env.initializer), public(owner), token.AuthorityTypeCloseAccount)))
	requireTimelockError(t, env.lock(t, 0), ErrCustodyAuthorityMismatch)

	// Custody that isn't a token account
	env.custody = public(env.initializer)
	requireTimelockError(t, env.lock(t, 0), ErrCustodyAuthorityMismatch)

	env.requireNoTimelock(t)
}

func TestProcessor_LockInvalidDestination(t *testing.T) {
	env := setup(t)
	custody := env.custody

	env.destination = env.createTokenAccount(t, public(newPrivateKey(t)), 0)
	requireTimelockError(t, env.lock(t, 0), ErrInvalidDestination)

	env.destination = custody
	requireTimelockError(t, env.lock(t, 0), ErrInvalidDestination)

	env.destination = public(env.receiver)
	requireTimelockError(t, env.lock(t, 0), ErrInvalidDestination)

	env.requireNoTimelock(t)
	assert.EqualValues(t, lockedAmount, env.balance(t, custody))
}

func TestProcessor_LockIsAtomic(t *testing.T) {
	env := setup(t)

	address, _, err := GetTimelockAddress(public(env.receiver))
	require.NoError(t, err)

	before, err := env.bank.GetAccount(env.ctx, public(env.initializer))
	require.NoError(t, err)

	// The trailing transfer fails because the lock already moved custody to
	// the timelock within the same transaction.
	err = env.execute(
		nil,
		env.lockInstruction(t, 0),
		token.Transfer(env.custody, env.destination, public(env.initializer), 1),
	)
	requireInstructionError(t, err, token.ErrorOwnerMismatch)

	_, err = env.bank.GetAccount(env.ctx, address)
	assert.Equal(t, ledger.ErrAccountNotFound, err)

	after, err := env.bank.GetAccount(env.ctx, public(env.initializer))
	require.NoError(t, err)
	assert.Equal(t, before.Lamports, after.Lamports)

	custody := env.tokenAccount(t, env.custody)
	assert.EqualValues(t, public(env.initializer), custody.Owner)
	assert.Empty(t, custody.CloseAuthority)
}

func TestProcessor_ConcurrentLock(t *testing.T) {
	env := setup(t)

	const workers = 8

	custodies := make([]ed25519.PublicKey, workers)
	for i := range custodies {
		custodies[i] = env.createTokenAccount(t, public(env.initializer), uint64(i+1))
	}

	address, bump, err := GetTimelockAddress(public(env.receiver))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range custodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			errs[i] = env.execute(nil, NewLockInstruction(
				&LockInstructionAccounts{
					Timelock:    address,
					Initializer: public(env.initializer),
					Custody:     custodies[i],
					Receiver:    public(env.receiver),
					Destination: env.destination,
				},
				&LockInstructionArgs{Bump: bump},
			))
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "more than one lock succeeded")
			winner = i
			continue
		}
		requireTimelockError(t, err, ErrAlreadyLocked)
	}
	require.NotEqual(t, -1, winner)

	state, _ := env.timelock(t)
	assert.EqualValues(t, custodies[winner], state.Custody)
	assert.EqualValues(t, winner+1, state.Amount)
}

func TestProcessor_ConcurrentUnlock(t *testing.T) {
	env := setup(t)

	require.NoError(t, env.lock(t, 0))

	const workers = 8

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range errs {
		txn := solana.NewTransaction(public(env.receiver), env.unlockInstruction(t))
		txn.SetBlockhash(solana.Blockhash{byte(i + 1)})

		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			errs[i] = env.submit(txn, env.receiver)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireTimelockError(t, err, ErrTimelockNotFound)
	}
	assert.Equal(t, 1, succeeded)
	assert.EqualValues(t, 0, env.balance(t, env.custody))
	assert.EqualValues(t, lockedAmount, env.balance(t, env.destination))
	env.requireNoTimelock(t)
}

func TestProcessor_Transactions(t *testing.T) {
	env := setup(t)

	// The receiver has no token account yet; the lock transaction creates
	// its associated account.
	receiver := newPrivateKey(t)
	txn, address, err := NewLockTransaction(&LockRequest{
		Initializer: public(env.initializer),
		Receiver:    public(receiver),
		Mint:        env.mint,
		Custody:     env.custody,
		Duration:    30*time.Second + 500*time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, env.submit(txn, env.initializer))

	state, stateAddress, err := GetTimelock(env.ctx, env.bank, public(receiver))
	require.NoError(t, err)
	assert.EqualValues(t, address, stateAddress)
	assert.Equal(t, env.clock.Now().Unix()+30, state.UnlockTime)

	ata, err := token.GetAssociatedAccount(public(receiver), env.mint)
	require.NoError(t, err)
	assert.EqualValues(t, ata, state.Destination)

	requireTimelockError(t, env.submit(NewUnlockTransaction(address, state), receiver), ErrNotYetUnlockable)

	env.clock.Advance(30 * time.Second)
	require.NoError(t, env.submit(NewUnlockTransaction(address, state), receiver))
	assert.EqualValues(t, lockedAmount, env.balance(t, ata))
}

func TestProcessor_TransactionWithMemo(t *testing.T) {
	env := setup(t)

	txn, _, err := NewLockTransaction(&LockRequest{
		Initializer: public(env.initializer),
		Receiver:    public(env.receiver),
		Mint:        env.mint,
		Custody:     env.custody,
		Duration:    time.Minute,
		Destination: env.destination,
		Memo:        "vesting tranche 1",
	})
	require.NoError(t, err)
	require.Len(t, txn.Message.Instructions, 2)

	decompiled, err := memo.DecompileMemo(txn.Message, 1)
	require.NoError(t, err)
	assert.Equal(t, "vesting tranche 1", string(decompiled.Data))
	require.Len(t, decompiled.Signers, 1)
	assert.EqualValues(t, public(env.initializer), decompiled.Signers[0])

	require.NoError(t, env.submit(txn, env.initializer))

	state, _, err := GetTimelock(env.ctx, env.bank, public(env.receiver))
	require.NoError(t, err)
	assert.EqualValues(t, env.destination, state.Destination)
}

func TestProcessor_InvalidInstruction(t *testing.T) {
	env := setup(t)

	ix := env.lockInstruction(t, 0)
	ix.Data = []byte{1, 2, 3}
	err := env.execute(nil, ix)
	requireInstructionError(t, err, solana.ErrInvalidInstructionData)

	ix = env.lockInstruction(t, 0)
	ix.Accounts = ix.Accounts[:4]
	err = env.execute(nil, ix)
	requireInstructionError(t, err, solana.ErrNotEnoughAccountKeys)
}

func requireTimelockError(t *testing.T, err error, expected TimelockError) {
	requireInstructionError(t, err, expected)

	var txErr *solana.TransactionError
	require.ErrorAs(t, err, &txErr)
	code := txErr.InstructionError().CustomError()
	require.NotNil(t, code)
	assert.EqualValues(t, expected, *code)
}

func requireInstructionError(t *testing.T, err error, expected error) {
	var txErr *solana.TransactionError
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, solana.TransactionErrorInstructionError, txErr.ErrorKey())
	assert.ErrorIs(t, err, expected)
}

func newPrivateKey(t *testing.T) ed25519.PrivateKey {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return priv
}

func public(key ed25519.PrivateKey) ed25519.PublicKey {
	return key.Public().(ed25519.PublicKey)
}
