package token

import (
	"crypto/ed25519"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-timelock/pkg/solana"
	"github.com/code-payments/code-timelock/pkg/solana/system"
)

func TestInitializeMint(t *testing.T) {
	keys := generateKeys(t, 3)

	ix := InitializeMint(keys[0], keys[1], nil, 6)
	assert.Len(t, ix.Data, 35)
	requireAccounts(t, ix,
		solana.NewAccountMeta(keys[0], false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	)

	decompiled, err := InitializeMintFromInstruction(ix)
	require.NoError(t, err)
	assert.Equal(t, &DecompiledInitializeMint{Mint: keys[0], MintAuthority: keys[1], Decimals: 6}, decompiled)

	ix = InitializeMint(keys[0], keys[1], keys[2], 9)
	assert.Len(t, ix.Data, 67)

	decompiled, err = InitializeMintFromInstruction(ix)
	require.NoError(t, err)
	assert.Equal(t, keys[2], decompiled.FreezeAuthority)
	assert.EqualValues(t, 9, decompiled.Decimals)

	// The freeze authority option flag must be 0 or 1
	ix.Data[34] = 2
	_, err = InitializeMintFromInstruction(ix)
	assert.Error(t, err)
}

func TestInitializeAccount(t *testing.T) {
	keys := generateKeys(t, 4)
	expected := &DecompiledInitializeAccount{Account: keys[0], Mint: keys[1], Owner: keys[2]}

	legacy := InitializeAccount(keys[0], keys[1], keys[2])
	assert.Equal(t, []byte{byte(CommandInitializeAccount)}, legacy.Data)
	requireAccounts(t, legacy,
		solana.NewAccountMeta(keys[0], false),
		solana.NewReadonlyAccountMeta(keys[1], false),
		solana.NewReadonlyAccountMeta(keys[2], false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	)

	decompiled, err := InitializeAccountFromInstruction(legacy)
	require.NoError(t, err)
	assert.Equal(t, expected, decompiled)

	// The owner is carried in the data rather than as an account
	v3 := InitializeAccount3(keys[0], keys[1], keys[2])
	assert.Equal(t, append([]byte{byte(CommandInitializeAccount3)}, keys[2]...), v3.Data)
	requireAccounts(t, v3,
		solana.NewAccountMeta(keys[0], false),
		solana.NewReadonlyAccountMeta(keys[1], false),
	)

	decompiled, err = InitializeAccountFromInstruction(v3)
	require.NoError(t, err)
	assert.Equal(t, expected, decompiled)

	invalid := InitializeAccount(keys[0], keys[1], keys[2])
	invalid.Accounts[3].PublicKey = keys[3]
	_, err = InitializeAccountFromInstruction(invalid)
	assert.ErrorContains(t, err, "invalid rent program")

	invalid.Accounts = invalid.Accounts[:2]
	_, err = InitializeAccountFromInstruction(invalid)
	assert.ErrorContains(t, err, "invalid number of accounts")

	v3.Data = v3.Data[:10]
	_, err = InitializeAccountFromInstruction(v3)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)
}

func TestSetAuthority(t *testing.T) {
	keys := generateKeys(t, 3)

	for _, newAuthority := range []ed25519.PublicKey{keys[2], nil} {
		ix := SetAuthority(keys[0], keys[1], newAuthority, AuthorityTypeCloseAccount)
		requireAccounts(t, ix,
			solana.NewAccountMeta(keys[0], false),
			solana.NewReadonlyAccountMeta(keys[1], true),
		)

		if newAuthority == nil {
			assert.Equal(t, []byte{byte(CommandSetAuthority), byte(AuthorityTypeCloseAccount), 0}, ix.Data)
		} else {
			assert.Equal(t, append([]byte{byte(CommandSetAuthority), byte(AuthorityTypeCloseAccount), 1}, newAuthority...), ix.Data)
		}

		decompiled, err := SetAuthorityFromInstruction(ix)
		require.NoError(t, err)
		assert.Equal(t, &DecompiledSetAuthority{
			Account:          keys[0],
			CurrentAuthority: keys[1],
			NewAuthority:     newAuthority,
			Type:             AuthorityTypeCloseAccount,
		}, decompiled)

		// A present flag without a key, or a missing flag with one
		corrupted := ix
		corrupted.Data = append([]byte{}, ix.Data...)
		corrupted.Data[2] ^= 1
		_, err = SetAuthorityFromInstruction(corrupted)
		assert.ErrorContains(t, err, "invalid data size")

		corrupted = ix
		corrupted.Accounts = ix.Accounts[:1]
		_, err = SetAuthorityFromInstruction(corrupted)
		assert.ErrorContains(t, err, "invalid number of accounts")
	}
}

func TestTransfer(t *testing.T) {
	keys := generateKeys(t, 3)

	ix := Transfer(keys[0], keys[1], keys[2], 123456789)
	assert.EqualValues(t, CommandTransfer, ix.Data[0])
	assert.EqualValues(t, 123456789, binary.LittleEndian.Uint64(ix.Data[1:]))
	requireAccounts(t, ix,
		solana.NewAccountMeta(keys[0], false),
		solana.NewAccountMeta(keys[1], false),
		solana.NewReadonlyAccountMeta(keys[2], true),
	)

	decompiled, err := TransferFromInstruction(ix)
	require.NoError(t, err)
	assert.Equal(t, &DecompiledTransfer{Source: keys[0], Destination: keys[1], Owner: keys[2], Amount: 123456789}, decompiled)

	truncated := ix
	truncated.Data = ix.Data[:1]
	_, err = TransferFromInstruction(truncated)
	assert.ErrorContains(t, err, "invalid instruction data size")

	truncated.Accounts = ix.Accounts[:2]
	_, err = TransferFromInstruction(truncated)
	assert.ErrorContains(t, err, "invalid number of accounts")
}

func TestMintTo(t *testing.T) {
	keys := generateKeys(t, 3)

	ix := MintTo(keys[0], keys[1], keys[2], 1000)
	assert.EqualValues(t, CommandMintTo, ix.Data[0])
	assert.EqualValues(t, 1000, binary.LittleEndian.Uint64(ix.Data[1:]))
	requireAccounts(t, ix,
		solana.NewAccountMeta(keys[0], false),
		solana.NewAccountMeta(keys[1], false),
		solana.NewReadonlyAccountMeta(keys[2], true),
	)

	decompiled, err := MintToFromInstruction(ix)
	require.NoError(t, err)
	assert.Equal(t, &DecompiledMintTo{Mint: keys[0], Destination: keys[1], Authority: keys[2], Amount: 1000}, decompiled)
}

func TestCloseAccount(t *testing.T) {
	keys := generateKeys(t, 3)

	ix := CloseAccount(keys[0], keys[1], keys[2])
	assert.Equal(t, []byte{byte(CommandCloseAccount)}, ix.Data)
	requireAccounts(t, ix,
		solana.NewAccountMeta(keys[0], false),
		solana.NewAccountMeta(keys[1], false),
		solana.NewReadonlyAccountMeta(keys[2], true),
	)

	decompiled, err := CloseAccountFromInstruction(ix)
	require.NoError(t, err)
	assert.Equal(t, &DecompiledCloseAccount{Account: keys[0], Destination: keys[1], Owner: keys[2]}, decompiled)

	extra := ix
	extra.Data = []byte{byte(CommandCloseAccount), 1}
	_, err = CloseAccountFromInstruction(extra)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	extra = ix
	extra.Accounts = ix.Accounts[:2]
	_, err = CloseAccountFromInstruction(extra)
	assert.ErrorContains(t, err, "invalid number of accounts")
}

func TestFromInstruction_WrongInstruction(t *testing.T) {
	keys := generateKeys(t, 4)

	decoders := map[string]func(solana.Instruction) error{
		"initialize_mint": func(ix solana.Instruction) error {
			_, err := InitializeMintFromInstruction(ix)
			return err
		},
		"initialize_account": func(ix solana.Instruction) error {
			_, err := InitializeAccountFromInstruction(ix)
			return err
		},
		"set_authority": func(ix solana.Instruction) error {
			_, err := SetAuthorityFromInstruction(ix)
			return err
		},
		"transfer": func(ix solana.Instruction) error {
			_, err := TransferFromInstruction(ix)
			return err
		},
		"mint_to": func(ix solana.Instruction) error {
			_, err := MintToFromInstruction(ix)
			return err
		},
		"close_account": func(ix solana.Instruction) error {
			_, err := CloseAccountFromInstruction(ix)
			return err
		},
	}

	// Every decoder rejects another command, an empty instruction, and a
	// foreign program.
	other := Transfer(keys[0], keys[1], keys[2], 1)
	other.Data[0] = byte(CommandApprove)
	for name, decode := range decoders {
		assert.Equal(t, solana.ErrIncorrectInstruction, decode(other), name)

		empty := other
		empty.Data = nil
		assert.Equal(t, solana.ErrIncorrectInstruction, decode(empty), name)

		foreign := other
		foreign.Program = keys[3]
		assert.Equal(t, solana.ErrIncorrectProgram, decode(foreign), name)
	}
}

func TestFromInstruction_Compiled(t *testing.T) {
	keys := generateKeys(t, 3)

	// Instructions survive compilation into a transaction with the payer
	// doubling as the source owner.
	txn := solana.NewTransaction(keys[2], Transfer(keys[0], keys[1], keys[2], 42))

	ix, err := txn.Message.Decompile(0)
	require.NoError(t, err)

	decompiled, err := TransferFromInstruction(ix)
	require.NoError(t, err)
	assert.Equal(t, &DecompiledTransfer{Source: keys[0], Destination: keys[1], Owner: keys[2], Amount: 42}, decompiled)
}

func requireAccounts(t *testing.T, ix solana.Instruction, expected ...solana.AccountMeta) {
	require.Equal(t, ProgramKey, ix.Program)
	require.Len(t, ix.Accounts, len(expected))
	for i := range expected {
		assert.Equal(t, expected[i].PublicKey, ix.Accounts[i].PublicKey, "account %d", i)
		assert.Equal(t, expected[i].IsSigner, ix.Accounts[i].IsSigner, "signer %d", i)
		assert.Equal(t, expected[i].IsWritable, ix.Accounts[i].IsWritable, "writable %d", i)
	}
}

func generateKeys(t *testing.T, amount int) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, amount)
	for i := range keys {
		pub, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		keys[i] = pub
	}
	return keys
}
