package token

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/code-payments/code-timelock/pkg/solana"
	"github.com/code-payments/code-timelock/pkg/solana/system"
)

// ProgramKey is the address of the token program.
//
// TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA
var ProgramKey = ed25519.PublicKey{6, 221, 246, 225, 215, 101, 161, 147, 217, 203, 225, 70, 206, 235, 121, 172, 28, 180, 133, 237, 95, 91, 55, 145, 58, 140, 245, 133, 126, 255, 0, 169}

type Command byte

const (
	CommandInitializeMint Command = iota
	CommandInitializeAccount
	CommandInitializeMultisig
	CommandTransfer
	CommandApprove
	CommandRevoke
	CommandSetAuthority
	CommandMintTo
	CommandBurn
	CommandCloseAccount
	CommandFreezeAccount
	CommandThawAccount
	CommandTransfer2
	CommandApprove2
	CommandMintTo2
	CommandBurn2
	CommandInitializeAccount2
	CommandSyncNative
	CommandInitializeAccount3
)

// InitializeMint initializes a mint created by the system program. The freeze
// authority is optional.
//
// Accounts: [writable] mint, [] rent sysvar.
func InitializeMint(mint, mintAuthority, freezeAuthority ed25519.PublicKey, decimals byte) solana.Instruction {
	data := append([]byte{byte(CommandInitializeMint), decimals}, mintAuthority...)
	data = appendOptionalKey(data, freezeAuthority)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	)
}

type DecompiledInitializeMint struct {
	Mint            ed25519.PublicKey
	MintAuthority   ed25519.PublicKey
	FreezeAuthority ed25519.PublicKey
	Decimals        byte
}

func InitializeMintFromInstruction(ix solana.Instruction) (*DecompiledInitializeMint, error) {
	if err := checkInstruction(ix, CommandInitializeMint, 2); err != nil {
		return nil, err
	}

	const fixed = 2 + ed25519.PublicKeySize
	if len(ix.Data) < fixed {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}

	freezeAuthority, err := readOptionalKey(ix.Data[fixed:])
	if err != nil {
		return nil, errors.Wrap(err, "invalid freeze authority")
	}

	return &DecompiledInitializeMint{
		Mint:            ix.Accounts[0].PublicKey,
		Decimals:        ix.Data[1],
		MintAuthority:   ed25519.PublicKey(ix.Data[2:fixed]),
		FreezeAuthority: freezeAuthority,
	}, nil
}

// InitializeAccount initializes a token account created by the system program.
//
// Accounts: [writable] account, [] mint, [] owner, [] rent sysvar.
func InitializeAccount(account, mint, owner ed25519.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		ProgramKey,
		[]byte{byte(CommandInitializeAccount)},
		solana.NewAccountMeta(account, false),
		solana.NewReadonlyAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(owner, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	)
}

// InitializeAccount3 is InitializeAccount with the owner in the instruction
// data and no rent sysvar.
//
// Accounts: [writable] account, [] mint.
func InitializeAccount3(account, mint, owner ed25519.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		ProgramKey,
		append([]byte{byte(CommandInitializeAccount3)}, owner...),
		solana.NewAccountMeta(account, false),
		solana.NewReadonlyAccountMeta(mint, false),
	)
}

type DecompiledInitializeAccount struct {
	Account ed25519.PublicKey
	Mint    ed25519.PublicKey
	Owner   ed25519.PublicKey
}

// InitializeAccountFromInstruction decodes either InitializeAccount or
// InitializeAccount3.
func InitializeAccountFromInstruction(ix solana.Instruction) (*DecompiledInitializeAccount, error) {
	if !bytes.Equal(ix.Program, ProgramKey) {
		return nil, solana.ErrIncorrectProgram
	}

	switch {
	case bytes.Equal(ix.Data, []byte{byte(CommandInitializeAccount)}):
		if len(ix.Accounts) != 4 {
			return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
		}
		if !bytes.Equal(system.RentSysVar, ix.Accounts[3].PublicKey) {
			return nil, errors.Errorf("invalid rent program")
		}

		return &DecompiledInitializeAccount{
			Account: ix.Accounts[0].PublicKey,
			Mint:    ix.Accounts[1].PublicKey,
			Owner:   ix.Accounts[2].PublicKey,
		}, nil
	case len(ix.Data) == 1+ed25519.PublicKeySize && ix.Data[0] == byte(CommandInitializeAccount3):
		if len(ix.Accounts) != 2 {
			return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
		}

		return &DecompiledInitializeAccount{
			Account: ix.Accounts[0].PublicKey,
			Mint:    ix.Accounts[1].PublicKey,
			Owner:   ed25519.PublicKey(ix.Data[1:]),
		}, nil
	default:
		return nil, solana.ErrIncorrectInstruction
	}
}

type AuthorityType byte

const (
	AuthorityTypeMintTokens AuthorityType = iota
	AuthorityTypeFreezeAccount
	AuthorityTypeAccountHolder
	AuthorityTypeCloseAccount
)

// SetAuthority replaces an authority of a mint or account. A nil
// newAuthority removes it.
//
// Accounts: [writable] mint or account, [signer] current authority.
func SetAuthority(account, currentAuthority, newAuthority ed25519.PublicKey, authorityType AuthorityType) solana.Instruction {
	return solana.NewInstruction(
		ProgramKey,
		appendOptionalKey([]byte{byte(CommandSetAuthority), byte(authorityType)}, newAuthority),
		solana.NewAccountMeta(account, false),
		solana.NewReadonlyAccountMeta(currentAuthority, true),
	)
}

type DecompiledSetAuthority struct {
	Account          ed25519.PublicKey
	CurrentAuthority ed25519.PublicKey
	NewAuthority     ed25519.PublicKey
	Type             AuthorityType
}

func SetAuthorityFromInstruction(ix solana.Instruction) (*DecompiledSetAuthority, error) {
	if err := checkInstruction(ix, CommandSetAuthority, 2); err != nil {
		return nil, err
	}

	if len(ix.Data) < 2 {
		return nil, errors.Errorf("invalid data size: %d", len(ix.Data))
	}

	newAuthority, err := readOptionalKey(ix.Data[2:])
	if err != nil {
		return nil, errors.Wrap(err, "invalid new authority")
	}

	return &DecompiledSetAuthority{
		Account:          ix.Accounts[0].PublicKey,
		CurrentAuthority: ix.Accounts[1].PublicKey,
		NewAuthority:     newAuthority,
		Type:             AuthorityType(ix.Data[1]),
	}, nil
}

// Transfer moves tokens between accounts of the same mint.
//
// Accounts: [writable] source, [writable] destination, [signer] source owner.
func Transfer(source, dest, owner ed25519.PublicKey, amount uint64) solana.Instruction {
	return solana.NewInstruction(
		ProgramKey,
		amountData(CommandTransfer, amount),
		solana.NewAccountMeta(source, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

type DecompiledTransfer struct {
	Source      ed25519.PublicKey
	Destination ed25519.PublicKey
	Owner       ed25519.PublicKey
	Amount      uint64
}

func TransferFromInstruction(ix solana.Instruction) (*DecompiledTransfer, error) {
	amount, err := readAmountInstruction(ix, CommandTransfer)
	if err != nil {
		return nil, err
	}

	return &DecompiledTransfer{
		Source:      ix.Accounts[0].PublicKey,
		Destination: ix.Accounts[1].PublicKey,
		Owner:       ix.Accounts[2].PublicKey,
		Amount:      amount,
	}, nil
}

// MintTo mints new tokens into an account.
//
// Accounts: [writable] mint, [writable] destination, [signer] mint authority.
func MintTo(mint, dest, authority ed25519.PublicKey, amount uint64) solana.Instruction {
	return solana.NewInstruction(
		ProgramKey,
		amountData(CommandMintTo, amount),
		solana.NewAccountMeta(mint, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(authority, true),
	)
}

type DecompiledMintTo struct {
	Mint        ed25519.PublicKey
	Destination ed25519.PublicKey
	Authority   ed25519.PublicKey
	Amount      uint64
}

func MintToFromInstruction(ix solana.Instruction) (*DecompiledMintTo, error) {
	amount, err := readAmountInstruction(ix, CommandMintTo)
	if err != nil {
		return nil, err
	}

	return &DecompiledMintTo{
		Mint:        ix.Accounts[0].PublicKey,
		Destination: ix.Accounts[1].PublicKey,
		Authority:   ix.Accounts[2].PublicKey,
		Amount:      amount,
	}, nil
}

// CloseAccount closes an empty token account, sending its lamports to dest.
// The signer is the owner, or the close authority when one is set.
//
// Accounts: [writable] account, [writable] destination, [signer] authority.
func CloseAccount(account, dest, owner ed25519.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		ProgramKey,
		[]byte{byte(CommandCloseAccount)},
		solana.NewAccountMeta(account, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

type DecompiledCloseAccount struct {
	Account     ed25519.PublicKey
	Destination ed25519.PublicKey
	Owner       ed25519.PublicKey
}

func CloseAccountFromInstruction(ix solana.Instruction) (*DecompiledCloseAccount, error) {
	if err := checkInstruction(ix, CommandCloseAccount, 3); err != nil {
		return nil, err
	}
	if len(ix.Data) != 1 {
		return nil, solana.ErrIncorrectInstruction
	}

	return &DecompiledCloseAccount{
		Account:     ix.Accounts[0].PublicKey,
		Destination: ix.Accounts[1].PublicKey,
		Owner:       ix.Accounts[2].PublicKey,
	}, nil
}

// checkInstruction validates the program, command and minimum account count.
// Additional accounts are permitted to leave room for multisig signers.
func checkInstruction(ix solana.Instruction, command Command, minAccounts int) error {
	if !bytes.Equal(ix.Program, ProgramKey) {
		return solana.ErrIncorrectProgram
	}
	if len(ix.Data) == 0 || ix.Data[0] != byte(command) {
		return solana.ErrIncorrectInstruction
	}
	if len(ix.Accounts) < minAccounts {
		return errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	return nil
}

func amountData(command Command, amount uint64) []byte {
	return binary.LittleEndian.AppendUint64([]byte{byte(command)}, amount)
}

// readAmountInstruction validates a three account instruction carrying only
// an amount, and returns the amount.
func readAmountInstruction(ix solana.Instruction, command Command) (uint64, error) {
	if err := checkInstruction(ix, command, 3); err != nil {
		return 0, err
	}
	if len(ix.Data) != 9 {
		return 0, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}
	return binary.LittleEndian.Uint64(ix.Data[1:]), nil
}

// appendOptionalKey appends a COption<Pubkey> as encoded in instruction data:
// a single flag byte, followed by the key only when present.
func appendOptionalKey(data []byte, key ed25519.PublicKey) []byte {
	if len(key) == 0 {
		return append(data, 0)
	}
	return append(append(data, 1), key...)
}

// readOptionalKey decodes the trailing COption<Pubkey> of instruction data,
// which must be the whole of b.
func readOptionalKey(b []byte) (ed25519.PublicKey, error) {
	switch {
	case len(b) == 1 && b[0] == 0:
		return nil, nil
	case len(b) == 1+ed25519.PublicKeySize && b[0] == 1:
		return ed25519.PublicKey(b[1:]), nil
	case len(b) == 0:
		return nil, errors.New("invalid data size: missing option")
	default:
		return nil, errors.Errorf("invalid data size: option %d with %d bytes", b[0], len(b)-1)
	}
}
