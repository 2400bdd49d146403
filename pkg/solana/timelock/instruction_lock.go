package timelock

import (
	"bytes"
	"crypto/ed25519"

	"github.com/code-payments/code-timelock/pkg/solana"
	"github.com/code-payments/code-timelock/pkg/solana/binary"
	"github.com/code-payments/code-timelock/pkg/solana/system"
	"github.com/code-payments/code-timelock/pkg/solana/token"
)

var ErrInvalidInstructionData = solana.ErrInvalidInstructionData

const (
	LockInstructionArgsSize = (1 + // bump
		8) // duration

	LockInstructionSize = (8 + // discriminator
		LockInstructionArgsSize) // args

	lockInstructionAccountsSize = 7
)

type LockInstructionArgs struct {
	Bump uint8
	// Duration is the lock duration in seconds.
	Duration int64
}

type LockInstructionAccounts struct {
	Timelock    ed25519.PublicKey
	Initializer ed25519.PublicKey
	Custody     ed25519.PublicKey
	Receiver    ed25519.PublicKey
	Destination ed25519.PublicKey
}

func NewLockInstruction(
	accounts *LockInstructionAccounts,
	args *LockInstructionArgs,
) solana.Instruction {
	var offset int

	data := make([]byte, LockInstructionSize)
	binary.PutDiscriminator(data, lockInstructionDiscriminator, &offset)
	binary.PutUint8(data[offset:], args.Bump, &offset)
	binary.PutInt64(data[offset:], args.Duration, &offset)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(accounts.Timelock, false),
		solana.NewAccountMeta(accounts.Initializer, true),
		solana.NewAccountMeta(accounts.Custody, false),
		solana.NewReadonlyAccountMeta(accounts.Receiver, false),
		solana.NewReadonlyAccountMeta(accounts.Destination, false),
		solana.NewReadonlyAccountMeta(token.ProgramKey, false),
		solana.NewReadonlyAccountMeta(system.ProgramKey[:], false),
	)
}

func LockInstructionArgsFromBinary(data []byte) (*LockInstructionArgs, error) {
	if len(data) != LockInstructionSize {
		return nil, ErrInvalidInstructionData
	}

	var offset int
	var discriminator []byte

	binary.GetDiscriminator(data, &discriminator, &offset)
	if !bytes.Equal(discriminator, lockInstructionDiscriminator) {
		return nil, ErrInvalidInstructionData
	}

	var args LockInstructionArgs
	binary.GetUint8(data[offset:], &args.Bump, &offset)
	binary.GetInt64(data[offset:], &args.Duration, &offset)

	return &args, nil
}

func LockInstructionFromInstruction(ix solana.Instruction) (*LockInstructionArgs, *LockInstructionAccounts, error) {
	if !bytes.Equal(ix.Program, ProgramKey) {
		return nil, nil, solana.ErrIncorrectProgram
	}

	args, err := LockInstructionArgsFromBinary(ix.Data)
	if err != nil {
		return nil, nil, err
	}

	if len(ix.Accounts) < lockInstructionAccountsSize {
		return nil, nil, solana.ErrNotEnoughAccountKeys
	}

	return args, &LockInstructionAccounts{
		Timelock:    ix.Accounts[0].PublicKey,
		Initializer: ix.Accounts[1].PublicKey,
		Custody:     ix.Accounts[2].PublicKey,
		Receiver:    ix.Accounts[3].PublicKey,
		Destination: ix.Accounts[4].PublicKey,
	}, nil
}
