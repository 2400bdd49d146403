package system

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/code-payments/code-timelock/pkg/solana"
)

// ProgramKey is the address of the system program, 11111111111111111111111111111111
var ProgramKey [32]byte

// RentSysVar is the address of the rent sysvar. Programs read rent from the
// runtime, but instructions still carry the account where the token standard
// expects it.
//
// Current key: SysvarRent111111111111111111111111111111111
var RentSysVar = ed25519.PublicKey{6, 167, 213, 23, 25, 44, 92, 81, 33, 140, 201, 76, 61, 74, 241, 127, 88, 218, 238, 8, 155, 161, 253, 68, 227, 219, 217, 138, 0, 0, 0, 0}

// MaxPermittedDataLength is the largest account the system program will
// allocate.
const MaxPermittedDataLength = 10 * 1024 * 1024

const (
	commandCreateAccount uint32 = iota
	commandAssign
	commandTransfer

	commandAllocate uint32 = 8
)

// Instruction data is a little endian u32 command followed by fixed width
// arguments.
const (
	createAccountDataSize = 4 + 8 + 8 + ed25519.PublicKeySize
	assignDataSize        = 4 + ed25519.PublicKeySize
	transferDataSize      = 4 + 8
	allocateDataSize      = 4 + 8
)

// CreateAccount allocates size bytes at address, funded with lamports by the
// funder, and assigns it to owner. Both accounts sign.
func CreateAccount(funder, address, owner ed25519.PublicKey, lamports, size uint64) solana.Instruction {
	data := binary.LittleEndian.AppendUint32(make([]byte, 0, createAccountDataSize), commandCreateAccount)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	data = binary.LittleEndian.AppendUint64(data, size)
	data = append(data, owner...)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, true),
	)
}

type DecompiledCreateAccount struct {
	Funder  ed25519.PublicKey
	Address ed25519.PublicKey

	Lamports uint64
	Size     uint64
	Owner    ed25519.PublicKey
}

func CreateAccountFromInstruction(ix solana.Instruction) (*DecompiledCreateAccount, error) {
	if err := checkInstruction(ix, commandCreateAccount, 2, createAccountDataSize); err != nil {
		return nil, err
	}

	args := ix.Data[4:]
	return &DecompiledCreateAccount{
		Funder:   ix.Accounts[0].PublicKey,
		Address:  ix.Accounts[1].PublicKey,
		Lamports: binary.LittleEndian.Uint64(args),
		Size:     binary.LittleEndian.Uint64(args[8:]),
		Owner:    bytes.Clone(args[16:]),
	}, nil
}

// Assign changes the owner of a signing account.
func Assign(address, owner ed25519.PublicKey) solana.Instruction {
	data := binary.LittleEndian.AppendUint32(make([]byte, 0, assignDataSize), commandAssign)

	return solana.NewInstruction(
		ProgramKey[:],
		append(data, owner...),
		solana.NewAccountMeta(address, true),
	)
}

type DecompiledAssign struct {
	Address ed25519.PublicKey
	Owner   ed25519.PublicKey
}

func AssignFromInstruction(ix solana.Instruction) (*DecompiledAssign, error) {
	if err := checkInstruction(ix, commandAssign, 1, assignDataSize); err != nil {
		return nil, err
	}

	return &DecompiledAssign{
		Address: ix.Accounts[0].PublicKey,
		Owner:   bytes.Clone(ix.Data[4:]),
	}, nil
}

// Transfer moves lamports from a signing system account.
func Transfer(from, to ed25519.PublicKey, lamports uint64) solana.Instruction {
	data := binary.LittleEndian.AppendUint32(make([]byte, 0, transferDataSize), commandTransfer)

	return solana.NewInstruction(
		ProgramKey[:],
		binary.LittleEndian.AppendUint64(data, lamports),
		solana.NewAccountMeta(from, true),
		solana.NewAccountMeta(to, false),
	)
}

type DecompiledTransfer struct {
	From     ed25519.PublicKey
	To       ed25519.PublicKey
	Lamports uint64
}

func TransferFromInstruction(ix solana.Instruction) (*DecompiledTransfer, error) {
	if err := checkInstruction(ix, commandTransfer, 2, transferDataSize); err != nil {
		return nil, err
	}

	return &DecompiledTransfer{
		From:     ix.Accounts[0].PublicKey,
		To:       ix.Accounts[1].PublicKey,
		Lamports: binary.LittleEndian.Uint64(ix.Data[4:]),
	}, nil
}

// Allocate sizes the zeroed data of a signing system account that has none.
func Allocate(address ed25519.PublicKey, size uint64) solana.Instruction {
	data := binary.LittleEndian.AppendUint32(make([]byte, 0, allocateDataSize), commandAllocate)

	return solana.NewInstruction(
		ProgramKey[:],
		binary.LittleEndian.AppendUint64(data, size),
		solana.NewAccountMeta(address, true),
	)
}

type DecompiledAllocate struct {
	Address ed25519.PublicKey
	Size    uint64
}

func AllocateFromInstruction(ix solana.Instruction) (*DecompiledAllocate, error) {
	if err := checkInstruction(ix, commandAllocate, 1, allocateDataSize); err != nil {
		return nil, err
	}

	return &DecompiledAllocate{
		Address: ix.Accounts[0].PublicKey,
		Size:    binary.LittleEndian.Uint64(ix.Data[4:]),
	}, nil
}

func checkInstruction(ix solana.Instruction, command uint32, numAccounts, dataLen int) error {
	if !bytes.Equal(ix.Program, ProgramKey[:]) {
		return solana.ErrIncorrectProgram
	}

	if len(ix.Data) < 4 || binary.LittleEndian.Uint32(ix.Data) != command {
		return solana.ErrIncorrectInstruction
	}

	if len(ix.Accounts) != numAccounts {
		return errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	if len(ix.Data) != dataLen {
		return errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}

	return nil
}
