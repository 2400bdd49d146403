package solana

import (
	"bytes"
	"crypto/ed25519"
	"errors"
)

var (
	ErrIncorrectProgram     = errors.New("incorrect program")
	ErrIncorrectInstruction = errors.New("incorrect instruction")
)

// AccountMeta is an account referenced by an instruction along with the
// privileges the instruction requires of it.
type AccountMeta struct {
	PublicKey  ed25519.PublicKey
	IsSigner   bool
	IsWritable bool
	isPayer    bool
	isProgram  bool
}

// NewAccountMeta returns a writable AccountMeta.
func NewAccountMeta(pub ed25519.PublicKey, isSigner bool) AccountMeta {
	return AccountMeta{PublicKey: pub, IsSigner: isSigner, IsWritable: true}
}

// NewReadonlyAccountMeta returns a read-only AccountMeta.
func NewReadonlyAccountMeta(pub ed25519.PublicKey, isSigner bool) AccountMeta {
	return AccountMeta{PublicKey: pub, IsSigner: isSigner}
}

// compareAccountMeta orders accounts the way they appear in a compiled
// message: the payer, then signers, then writable accounts, with programs
// last. Ties are broken by key so compilation is deterministic.
//
// Reference: https://docs.solana.com/transaction#account-addresses-format
func compareAccountMeta(a, b AccountMeta) int {
	rank := func(m AccountMeta) int {
		switch {
		case m.isPayer:
			return 0
		case m.isProgram && !m.IsSigner && !m.IsWritable:
			return 5
		case m.IsSigner && m.IsWritable:
			return 1
		case m.IsSigner:
			return 2
		case m.IsWritable:
			return 3
		default:
			return 4
		}
	}

	if ra, rb := rank(a), rank(b); ra != rb {
		return ra - rb
	}
	return bytes.Compare(a.PublicKey, b.PublicKey)
}

// Instruction is an uncompiled instruction that references accounts by key.
type Instruction struct {
	Program  ed25519.PublicKey
	Accounts []AccountMeta
	Data     []byte
}

func NewInstruction(program ed25519.PublicKey, data []byte, accounts ...AccountMeta) Instruction {
	return Instruction{
		Program:  program,
		Data:     data,
		Accounts: accounts,
	}
}

// CompiledInstruction references its program and accounts by their index in
// the message account list.
type CompiledInstruction struct {
	ProgramIndex byte
	Accounts     []byte
	Data         []byte
}

// Decompile resolves a compiled instruction back into an Instruction using the
// account list and privileges of the message it belongs to.
func (m Message) Decompile(index int) (Instruction, error) {
	if index < 0 || index >= len(m.Instructions) {
		return Instruction{}, ErrIncorrectInstruction
	}

	c := m.Instructions[index]
	if int(c.ProgramIndex) >= len(m.Accounts) {
		return Instruction{}, ErrIncorrectProgram
	}

	ix := Instruction{
		Program:  m.Accounts[c.ProgramIndex],
		Accounts: make([]AccountMeta, 0, len(c.Accounts)),
		Data:     c.Data,
	}
	for _, i := range c.Accounts {
		if int(i) >= len(m.Accounts) {
			return Instruction{}, ErrIncorrectInstruction
		}

		ix.Accounts = append(ix.Accounts, AccountMeta{
			PublicKey:  m.Accounts[i],
			IsSigner:   m.IsSigner(int(i)),
			IsWritable: m.IsWritable(int(i)),
		})
	}

	return ix, nil
}
