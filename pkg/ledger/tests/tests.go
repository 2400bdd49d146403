package tests

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-timelock/pkg/ledger"
)

func RunTests(t *testing.T, s ledger.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s ledger.Store){
		testHappyPath,
		testDelete,
		testRollback,
		testReadYourWrites,
		testSlotsIncrease,
		testTxnDone,
		testInvalidAccount,
	} {
		tf(t, s)
		teardown()
	}
}

func testHappyPath(t *testing.T, s ledger.Store) {
	t.Run("testHappyPath", func(t *testing.T) {
		ctx := context.Background()

		expected := &ledger.Account{
			Address:  newKey(t),
			Owner:    newKey(t),
			Lamports: 1_000_000,
			Data:     []byte{1, 2, 3, 4},
		}

		_, err := s.Get(ctx, expected.Address)
		assert.Equal(t, ledger.ErrAccountNotFound, err)

		txn, err := s.Begin(ctx)
		require.NoError(t, err)

		_, err = txn.Get(ctx, expected.Address)
		assert.Equal(t, ledger.ErrAccountNotFound, err)

		require.NoError(t, txn.Put(ctx, expected))

		// Uncommitted writes are not visible outside the transaction
		_, err = s.Get(ctx, expected.Address)
		assert.Equal(t, ledger.ErrAccountNotFound, err)

		slot, err := txn.Commit(ctx)
		require.NoError(t, err)
		assert.True(t, slot > 0)

		actual, err := s.Get(ctx, expected.Address)
		require.NoError(t, err)
		assertEquivalentAccounts(t, expected, actual)
		assert.Equal(t, slot, actual.Slot)

		updated := actual.Clone()
		updated.Lamports = 1
		updated.Data = nil
		updated.Owner = ledger.SystemProgramID

		txn, err = s.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, txn.Put(ctx, updated))
		nextSlot, err := txn.Commit(ctx)
		require.NoError(t, err)

		actual, err = s.Get(ctx, expected.Address)
		require.NoError(t, err)
		assertEquivalentAccounts(t, updated, actual)
		assert.Equal(t, nextSlot, actual.Slot)
	})
}

func testDelete(t *testing.T, s ledger.Store) {
	t.Run("testDelete", func(t *testing.T) {
		ctx := context.Background()

		account := &ledger.Account{
			Address:  newKey(t),
			Owner:    ledger.SystemProgramID,
			Lamports: 10,
		}
		put(t, s, account)

		txn, err := s.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, txn.Delete(ctx, account.Address))

		_, err = txn.Get(ctx, account.Address)
		assert.Equal(t, ledger.ErrAccountNotFound, err)

		// Deleting a missing account is a no-op
		require.NoError(t, txn.Delete(ctx, newKey(t)))

		_, err = txn.Commit(ctx)
		require.NoError(t, err)

		_, err = s.Get(ctx, account.Address)
		assert.Equal(t, ledger.ErrAccountNotFound, err)
	})
}

func testRollback(t *testing.T, s ledger.Store) {
	t.Run("testRollback", func(t *testing.T) {
		ctx := context.Background()

		existing := &ledger.Account{
			Address:  newKey(t),
			Owner:    ledger.SystemProgramID,
			Lamports: 10,
		}
		put(t, s, existing)

		txn, err := s.Begin(ctx)
		require.NoError(t, err)

		created := &ledger.Account{
			Address:  newKey(t),
			Owner:    ledger.SystemProgramID,
			Lamports: 20,
		}
		require.NoError(t, txn.Put(ctx, created))
		require.NoError(t, txn.Delete(ctx, existing.Address))
		require.NoError(t, txn.Rollback(ctx))

		_, err = s.Get(ctx, created.Address)
		assert.Equal(t, ledger.ErrAccountNotFound, err)

		actual, err := s.Get(ctx, existing.Address)
		require.NoError(t, err)
		assertEquivalentAccounts(t, existing, actual)

		// Rollback after commit is a no-op
		txn, err = s.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, txn.Put(ctx, created))
		_, err = txn.Commit(ctx)
		require.NoError(t, err)
		require.NoError(t, txn.Rollback(ctx))

		actual, err = s.Get(ctx, created.Address)
		require.NoError(t, err)
		assertEquivalentAccounts(t, created, actual)
	})
}

func testReadYourWrites(t *testing.T, s ledger.Store) {
	t.Run("testReadYourWrites", func(t *testing.T) {
		ctx := context.Background()

		account := &ledger.Account{
			Address:  newKey(t),
			Owner:    newKey(t),
			Lamports: 5,
			Data:     make([]byte, 16),
		}

		txn, err := s.Begin(ctx)
		require.NoError(t, err)
		defer txn.Rollback(ctx)

		require.NoError(t, txn.Put(ctx, account))

		// Mutating the caller's copy must not affect the staged write
		account.Lamports = 6
		account.Data[0] = 1

		actual, err := txn.Get(ctx, account.Address)
		require.NoError(t, err)
		assert.EqualValues(t, 5, actual.Lamports)
		assert.EqualValues(t, 0, actual.Data[0])
	})
}

func testSlotsIncrease(t *testing.T, s ledger.Store) {
	t.Run("testSlotsIncrease", func(t *testing.T) {
		var last uint64
		for i := 0; i < 5; i++ {
			slot := put(t, s, &ledger.Account{
				Address:  newKey(t),
				Owner:    ledger.SystemProgramID,
				Lamports: uint64(i + 1),
			})
			assert.True(t, slot > last)
			last = slot
		}
	})
}

func testTxnDone(t *testing.T, s ledger.Store) {
	t.Run("testTxnDone", func(t *testing.T) {
		ctx := context.Background()

		txn, err := s.Begin(ctx)
		require.NoError(t, err)
		_, err = txn.Commit(ctx)
		require.NoError(t, err)

		_, err = txn.Commit(ctx)
		assert.Equal(t, ledger.ErrTxnDone, err)

		err = txn.Put(ctx, &ledger.Account{Address: newKey(t), Owner: ledger.SystemProgramID, Lamports: 1})
		assert.Equal(t, ledger.ErrTxnDone, err)

		_, err = txn.Get(ctx, newKey(t))
		assert.Equal(t, ledger.ErrTxnDone, err)
	})
}

func testInvalidAccount(t *testing.T, s ledger.Store) {
	t.Run("testInvalidAccount", func(t *testing.T) {
		ctx := context.Background()

		txn, err := s.Begin(ctx)
		require.NoError(t, err)
		defer txn.Rollback(ctx)

		err = txn.Put(ctx, &ledger.Account{Address: []byte{1, 2, 3}, Owner: ledger.SystemProgramID})
		assert.ErrorIs(t, err, ledger.ErrInvalidAccount)

		err = txn.Put(ctx, &ledger.Account{Address: newKey(t)})
		assert.ErrorIs(t, err, ledger.ErrInvalidAccount)
	})
}

func put(t *testing.T, s ledger.Store, account *ledger.Account) uint64 {
	ctx := context.Background()

	txn, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Put(ctx, account))

	slot, err := txn.Commit(ctx)
	require.NoError(t, err)
	return slot
}

func newKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}

func assertEquivalentAccounts(t *testing.T, obj1, obj2 *ledger.Account) {
	assert.EqualValues(t, obj1.Address, obj2.Address)
	assert.EqualValues(t, obj1.Owner, obj2.Owner)
	assert.Equal(t, obj1.Lamports, obj2.Lamports)
	assert.Equal(t, len(obj1.Data), len(obj2.Data))
	if len(obj1.Data) > 0 {
		assert.Equal(t, obj1.Data, obj2.Data)
	}
}
