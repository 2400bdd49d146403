package memo

import (
	"bytes"
	"crypto/ed25519"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/code-payments/code-timelock/pkg/ledger"
	"github.com/code-payments/code-timelock/pkg/solana"
)

// ProgramKey is the address of the memo program.
//
// Current key: Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo
var ProgramKey = ed25519.PublicKey{5, 74, 83, 80, 248, 93, 200, 130, 214, 20, 165, 86, 114, 120, 138, 41, 109, 223, 30, 171, 171, 208, 166, 6, 120, 136, 73, 50, 244, 238, 246, 160}

// MaxMemoSize bounds the memo so that it fits in a transaction alongside a lock.
const MaxMemoSize = 566

// Instruction returns a memo instruction. Every signer must sign the
// transaction for it to be accepted.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/master/memo/program/src/processor.rs
func Instruction(data string, signers ...ed25519.PublicKey) solana.Instruction {
	accounts := make([]solana.AccountMeta, len(signers))
	for i, signer := range signers {
		accounts[i] = solana.NewReadonlyAccountMeta(signer, true)
	}

	return solana.NewInstruction(
		ProgramKey,
		[]byte(data),
		accounts...,
	)
}

type DecompiledMemo struct {
	Data    []byte
	Signers []ed25519.PublicKey
}

func DecompileMemo(m solana.Message, index int) (*DecompiledMemo, error) {
	ix, err := m.Decompile(index)
	if err != nil {
		return nil, errors.Wrapf(err, "instruction doesn't exist at %d", index)
	}

	if !bytes.Equal(ix.Program, ProgramKey) {
		return nil, solana.ErrIncorrectProgram
	}

	decompiled := &DecompiledMemo{Data: ix.Data}
	for _, account := range ix.Accounts {
		decompiled.Signers = append(decompiled.Signers, account.PublicKey)
	}
	return decompiled, nil
}

// Processor executes memo instructions within a ledger.Bank. Memos change no
// state; they are only validated.
type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

// ID implements ledger.Program.ID
func (p *Processor) ID() ed25519.PublicKey {
	return ProgramKey
}

// Process implements ledger.Program.Process
func (p *Processor) Process(ic *ledger.InvokeContext) error {
	for _, account := range ic.Accounts() {
		if !account.IsSigner {
			return solana.ErrMissingRequiredSignature
		}
	}

	data := ic.Data()
	if len(data) > MaxMemoSize || !utf8.Valid(data) {
		return solana.ErrInvalidInstructionData
	}

	return nil
}
