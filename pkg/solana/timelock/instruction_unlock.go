package timelock

import (
	"bytes"
	"crypto/ed25519"

	"github.com/code-payments/code-timelock/pkg/solana"
	"github.com/code-payments/code-timelock/pkg/solana/binary"
	"github.com/code-payments/code-timelock/pkg/solana/token"
)

const (
	UnlockInstructionSize = 8 // discriminator

	unlockInstructionAccountsSize = 5
)

type UnlockInstructionAccounts struct {
	Timelock    ed25519.PublicKey
	Custody     ed25519.PublicKey
	Receiver    ed25519.PublicKey
	Destination ed25519.PublicKey
}

func NewUnlockInstruction(
	accounts *UnlockInstructionAccounts,
) solana.Instruction {
	var offset int

	data := make([]byte, UnlockInstructionSize)
	binary.PutDiscriminator(data, unlockInstructionDiscriminator, &offset)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(accounts.Timelock, false),
		solana.NewAccountMeta(accounts.Custody, false),
		solana.NewAccountMeta(accounts.Receiver, true),
		solana.NewAccountMeta(accounts.Destination, false),
		solana.NewReadonlyAccountMeta(token.ProgramKey, false),
	)
}

func UnlockInstructionFromInstruction(ix solana.Instruction) (*UnlockInstructionAccounts, error) {
	if !bytes.Equal(ix.Program, ProgramKey) {
		return nil, solana.ErrIncorrectProgram
	}

	if len(ix.Data) != UnlockInstructionSize || !bytes.Equal(ix.Data, unlockInstructionDiscriminator) {
		return nil, ErrInvalidInstructionData
	}

	if len(ix.Accounts) < unlockInstructionAccountsSize {
		return nil, solana.ErrNotEnoughAccountKeys
	}

	return &UnlockInstructionAccounts{
		Timelock:    ix.Accounts[0].PublicKey,
		Custody:     ix.Accounts[1].PublicKey,
		Receiver:    ix.Accounts[2].PublicKey,
		Destination: ix.Accounts[3].PublicKey,
	}, nil
}
