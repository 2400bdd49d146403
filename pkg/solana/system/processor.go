package system

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/code-payments/code-timelock/pkg/ledger"
	"github.com/code-payments/code-timelock/pkg/solana"
)

// Processor executes system program instructions within a ledger.Bank.
type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

// ID implements ledger.Program.ID
func (p *Processor) ID() ed25519.PublicKey {
	return ProgramKey[:]
}

// Process implements ledger.Program.Process
func (p *Processor) Process(ic *ledger.InvokeContext) error {
	data := ic.Data()
	if len(data) < 4 {
		return solana.ErrInvalidInstructionData
	}

	ix := ic.Instruction()

	switch binary.LittleEndian.Uint32(data) {
	case commandCreateAccount:
		return p.createAccount(ic, ix)
	case commandAssign:
		return p.assign(ic, ix)
	case commandTransfer:
		return p.transfer(ic, ix)
	case commandAllocate:
		return p.allocate(ic, ix)
	default:
		return solana.ErrInvalidInstructionData
	}
}

func (p *Processor) createAccount(ic *ledger.InvokeContext, ix solana.Instruction) error {
	if len(ic.Accounts()) < 2 {
		return solana.ErrNotEnoughAccountKeys
	}

	args, err := CreateAccountFromInstruction(ix)
	if err != nil {
		return solana.ErrInvalidInstructionData
	}

	funder, account := ic.Accounts()[0], ic.Accounts()[1]
	if !funder.IsSigner || !account.IsSigner {
		return solana.ErrMissingRequiredSignature
	}

	if account.Lamports > 0 || len(account.Data) > 0 || !account.IsOwnedBy(ProgramKey[:]) {
		ic.Log().WithField("account", account.String()).Info("create account: address already in use")
		return solana.ErrAccountAlreadyInUse
	}

	if args.Size > MaxPermittedDataLength {
		return solana.ErrInvalidArgument
	}

	if err := debit(funder, args.Lamports); err != nil {
		return err
	}

	account.Lamports += args.Lamports
	account.Data = make([]byte, args.Size)
	account.Owner = args.Owner

	return nil
}

func (p *Processor) assign(ic *ledger.InvokeContext, ix solana.Instruction) error {
	if len(ic.Accounts()) < 1 {
		return solana.ErrNotEnoughAccountKeys
	}

	args, err := AssignFromInstruction(ix)
	if err != nil {
		return solana.ErrInvalidInstructionData
	}

	account := ic.Accounts()[0]
	if bytes.Equal(account.Owner, args.Owner) {
		return nil
	}

	if !account.IsSigner {
		return solana.ErrMissingRequiredSignature
	}

	account.Owner = args.Owner
	return nil
}

func (p *Processor) allocate(ic *ledger.InvokeContext, ix solana.Instruction) error {
	if len(ic.Accounts()) < 1 {
		return solana.ErrNotEnoughAccountKeys
	}

	args, err := AllocateFromInstruction(ix)
	if err != nil {
		return solana.ErrInvalidInstructionData
	}

	account := ic.Accounts()[0]
	if !account.IsSigner {
		return solana.ErrMissingRequiredSignature
	}

	if len(account.Data) > 0 || !account.IsOwnedBy(ProgramKey[:]) {
		ic.Log().WithField("account", account.String()).Info("allocate: address already in use")
		return solana.ErrAccountAlreadyInUse
	}

	if args.Size > MaxPermittedDataLength {
		return solana.ErrInvalidArgument
	}

	account.Data = make([]byte, args.Size)
	return nil
}

func (p *Processor) transfer(ic *ledger.InvokeContext, ix solana.Instruction) error {
	if len(ic.Accounts()) < 2 {
		return solana.ErrNotEnoughAccountKeys
	}

	args, err := TransferFromInstruction(ix)
	if err != nil {
		return solana.ErrInvalidInstructionData
	}

	from, to := ic.Accounts()[0], ic.Accounts()[1]
	if !from.IsSigner {
		return solana.ErrMissingRequiredSignature
	}

	if err := debit(from, args.Lamports); err != nil {
		return err
	}
	to.Lamports += args.Lamports

	return nil
}

// debit removes lamports from an account that the system program is allowed
// to spend from: one that carries no data.
func debit(from *ledger.AccountInfo, lamports uint64) error {
	if len(from.Data) > 0 {
		return solana.ErrInvalidArgument
	}
	if from.Lamports < lamports {
		return solana.ErrInsufficientFunds
	}

	from.Lamports -= lamports
	return nil
}
