package timelock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-timelock/pkg/solana"
	"github.com/code-payments/code-timelock/pkg/solana/system"
	"github.com/code-payments/code-timelock/pkg/solana/token"
)

func TestLockInstruction(t *testing.T) {
	accounts := &LockInstructionAccounts{
		Timelock:    public(newPrivateKey(t)),
		Initializer: public(newPrivateKey(t)),
		Custody:     public(newPrivateKey(t)),
		Receiver:    public(newPrivateKey(t)),
		Destination: public(newPrivateKey(t)),
	}
	args := &LockInstructionArgs{
		Bump:     254,
		Duration: 3600,
	}

	ix := NewLockInstruction(accounts, args)
	assert.EqualValues(t, ProgramKey, ix.Program)
	require.Len(t, ix.Data, LockInstructionSize)
	assert.Equal(t, []byte{21, 19, 208, 43, 237, 62, 255, 87}, ix.Data[:8])
	assert.Equal(t, []byte{254, 0x10, 0x0e, 0, 0, 0, 0, 0, 0}, ix.Data[8:])

	require.Len(t, ix.Accounts, 7)
	for i, expected := range []struct {
		signer   bool
		writable bool
	}{
		{false, true},
		{true, true},
		{false, true},
		{false, false},
		{false, false},
		{false, false},
		{false, false},
	} {
		assert.Equal(t, expected.signer, ix.Accounts[i].IsSigner, "account %d", i)
		assert.Equal(t, expected.writable, ix.Accounts[i].IsWritable, "account %d", i)
	}
	assert.EqualValues(t, token.ProgramKey, ix.Accounts[5].PublicKey)
	assert.EqualValues(t, system.ProgramKey[:], ix.Accounts[6].PublicKey)

	decodedArgs, decodedAccounts, err := LockInstructionFromInstruction(ix)
	require.NoError(t, err)
	assert.Equal(t, args, decodedArgs)
	assert.Equal(t, accounts, decodedAccounts)

	// Round trip through a compiled transaction
	txn := solana.NewTransaction(accounts.Initializer, ix)
	decompiled, err := txn.Message.Decompile(0)
	require.NoError(t, err)
	decodedArgs, decodedAccounts, err = LockInstructionFromInstruction(decompiled)
	require.NoError(t, err)
	assert.Equal(t, args, decodedArgs)
	assert.Equal(t, accounts, decodedAccounts)
}

func TestLockInstruction_Invalid(t *testing.T) {
	ix := NewLockInstruction(
		&LockInstructionAccounts{
			Timelock:    public(newPrivateKey(t)),
			Initializer: public(newPrivateKey(t)),
			Custody:     public(newPrivateKey(t)),
			Receiver:    public(newPrivateKey(t)),
			Destination: public(newPrivateKey(t)),
		},
		&LockInstructionArgs{Bump: 255, Duration: 1},
	)

	program := ix.Program
	ix.Program = token.ProgramKey
	_, _, err := LockInstructionFromInstruction(ix)
	assert.Equal(t, solana.ErrIncorrectProgram, err)
	ix.Program = program

	data := ix.Data
	ix.Data = data[:LockInstructionSize-1]
	_, _, err = LockInstructionFromInstruction(ix)
	assert.Equal(t, ErrInvalidInstructionData, err)

	ix.Data = NewUnlockInstruction(&UnlockInstructionAccounts{}).Data
	_, _, err = LockInstructionFromInstruction(ix)
	assert.Equal(t, ErrInvalidInstructionData, err)
	ix.Data = data

	ix.Accounts = ix.Accounts[:6]
	_, _, err = LockInstructionFromInstruction(ix)
	assert.Equal(t, solana.ErrNotEnoughAccountKeys, err)
}

func TestUnlockInstruction(t *testing.T) {
	accounts := &UnlockInstructionAccounts{
		Timelock:    public(newPrivateKey(t)),
		Custody:     public(newPrivateKey(t)),
		Receiver:    public(newPrivateKey(t)),
		Destination: public(newPrivateKey(t)),
	}

	ix := NewUnlockInstruction(accounts)
	assert.EqualValues(t, ProgramKey, ix.Program)
	assert.Equal(t, []byte{101, 155, 40, 21, 158, 189, 56, 203}, ix.Data)

	require.Len(t, ix.Accounts, 5)
	assert.True(t, ix.Accounts[2].IsSigner)
	for i := 0; i < 4; i++ {
		assert.True(t, ix.Accounts[i].IsWritable, "account %d", i)
	}
	assert.False(t, ix.Accounts[4].IsWritable)
	assert.EqualValues(t, token.ProgramKey, ix.Accounts[4].PublicKey)

	decoded, err := UnlockInstructionFromInstruction(ix)
	require.NoError(t, err)
	assert.Equal(t, accounts, decoded)

	ix.Data = append(ix.Data, 0)
	_, err = UnlockInstructionFromInstruction(ix)
	assert.Equal(t, ErrInvalidInstructionData, err)
	ix.Data = ix.Data[:UnlockInstructionSize]

	ix.Accounts = ix.Accounts[:4]
	_, err = UnlockInstructionFromInstruction(ix)
	assert.Equal(t, solana.ErrNotEnoughAccountKeys, err)
}
