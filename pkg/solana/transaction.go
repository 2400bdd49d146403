package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"slices"
	"strings"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
)

const (
	// MaxTransactionSize taken from: https://github.com/solana-labs/solana/blob/39b3ac6a8d29e14faa1de73d8b46d390ad41797b/sdk/src/packet.rs#L9-L13
	MaxTransactionSize = 1232
)

var (
	ErrSignatureMismatch = errors.New("transaction signature does not verify")
	ErrMissingSignatures = errors.New("transaction is missing signatures")
)

type Signature [ed25519.SignatureSize]byte
type Blockhash [sha256.Size]byte

// Header describes how the message account list is partitioned. Signers come
// first, writable accounts precede read-only ones within each partition.
type Header struct {
	NumSignatures     byte
	NumReadonlySigned byte
	NumReadOnly       byte
}

type Message struct {
	Header          Header
	Accounts        []ed25519.PublicKey
	RecentBlockhash Blockhash
	Instructions    []CompiledInstruction
}

type Transaction struct {
	Signatures []Signature
	Message    Message
}

// NewTransaction compiles the instructions into a legacy transaction with the
// payer as the first signer.
func NewTransaction(payer ed25519.PublicKey, instructions ...Instruction) Transaction {
	metas := []AccountMeta{{PublicKey: payer, IsSigner: true, IsWritable: true, isPayer: true}}
	for _, ix := range instructions {
		metas = append(metas, AccountMeta{PublicKey: ix.Program, isProgram: true})
		metas = append(metas, ix.Accounts...)
	}

	metas = mergeAccountMetas(metas)
	slices.SortFunc(metas, compareAccountMeta)

	var m Message
	for _, meta := range metas {
		m.Accounts = append(m.Accounts, meta.PublicKey)

		switch {
		case meta.IsSigner && !meta.IsWritable:
			m.Header.NumSignatures++
			m.Header.NumReadonlySigned++
		case meta.IsSigner:
			m.Header.NumSignatures++
		case !meta.IsWritable:
			m.Header.NumReadOnly++
		}
	}

	for _, ix := range instructions {
		compiled := CompiledInstruction{
			ProgramIndex: byte(m.indexOf(ix.Program)),
			Accounts:     make([]byte, len(ix.Accounts)),
			Data:         ix.Data,
		}
		for i, account := range ix.Accounts {
			compiled.Accounts[i] = byte(m.indexOf(account.PublicKey))
		}
		m.Instructions = append(m.Instructions, compiled)
	}

	// Unset keys, such as a zero value program id, are encoded as zeros.
	for i, key := range m.Accounts {
		if len(key) == 0 {
			m.Accounts[i] = make(ed25519.PublicKey, ed25519.PublicKeySize)
		}
	}

	return Transaction{
		Signatures: make([]Signature, m.Header.NumSignatures),
		Message:    m,
	}
}

// Signature returns the first signature, which identifies the transaction.
func (t *Transaction) Signature() []byte {
	return t.Signatures[0][:]
}

func (t *Transaction) String() string {
	var sb strings.Builder

	fmt.Fprintln(&sb, "Signatures:")
	for i, s := range t.Signatures {
		fmt.Fprintf(&sb, "  %d: %s\n", i, s)
	}

	h := t.Message.Header
	fmt.Fprintln(&sb, "Message:")
	fmt.Fprintf(&sb, "  Header: signatures=%d readonly_signed=%d readonly=%d\n", h.NumSignatures, h.NumReadonlySigned, h.NumReadOnly)
	fmt.Fprintln(&sb, "  Accounts:")
	for i, a := range t.Message.Accounts {
		fmt.Fprintf(&sb, "    %d: %s\n", i, base58.Encode(a))
	}
	fmt.Fprintln(&sb, "  Instructions:")
	for i, ix := range t.Message.Instructions {
		fmt.Fprintf(&sb, "    %d: program=%d accounts=%v data=%v\n", i, ix.ProgramIndex, ix.Accounts, ix.Data)
	}

	return sb.String()
}

func (t *Transaction) SetBlockhash(bh Blockhash) {
	t.Message.RecentBlockhash = bh
}

// Sign adds signatures from the provided keys. Keys may be passed in any
// order, but each must belong to a required signer.
func (t *Transaction) Sign(signers ...ed25519.PrivateKey) error {
	message := t.Message.Marshal()

	for _, signer := range signers {
		pub := signer.Public().(ed25519.PublicKey)

		i := t.Message.indexOf(pub)
		switch {
		case i < 0:
			return errors.Errorf("signing account %s is not in the account list", base58.Encode(pub))
		case i >= len(t.Signatures):
			return errors.Errorf("signing account %s is not in the list of signers", base58.Encode(pub))
		}

		copy(t.Signatures[i][:], ed25519.Sign(signer, message))
	}

	return nil
}

// VerifySignatures checks that every required signer produced a valid
// signature over the message.
func (t *Transaction) VerifySignatures() error {
	if len(t.Signatures) != int(t.Message.Header.NumSignatures) || len(t.Signatures) > len(t.Message.Accounts) {
		return ErrMissingSignatures
	}

	message := t.Message.Marshal()
	for i := range t.Signatures {
		if !ed25519.Verify(t.Message.Accounts[i], message, t.Signatures[i][:]) {
			return errors.Wrapf(ErrSignatureMismatch, "signer %s", base58.Encode(t.Message.Accounts[i]))
		}
	}

	return nil
}

// IsSigner reports whether the account at the provided index is required to
// sign the message.
func (m Message) IsSigner(index int) bool {
	return index >= 0 && index < int(m.Header.NumSignatures)
}

// IsWritable reports whether the account at the provided index is writable
// within the message.
func (m Message) IsWritable(index int) bool {
	if index < 0 || index >= len(m.Accounts) {
		return false
	}

	if m.IsSigner(index) {
		return index < int(m.Header.NumSignatures)-int(m.Header.NumReadonlySigned)
	}
	return index < len(m.Accounts)-int(m.Header.NumReadOnly)
}

func (m Message) indexOf(key ed25519.PublicKey) int {
	return slices.IndexFunc(m.Accounts, func(account ed25519.PublicKey) bool {
		return bytes.Equal(account, key)
	})
}

// mergeAccountMetas collapses repeated keys into the first occurrence, keeping
// the union of the privileges requested for it.
func mergeAccountMetas(metas []AccountMeta) []AccountMeta {
	merged := make([]AccountMeta, 0, len(metas))
	seen := make(map[string]int, len(metas))

	for _, meta := range metas {
		i, ok := seen[string(meta.PublicKey)]
		if !ok {
			seen[string(meta.PublicKey)] = len(merged)
			merged = append(merged, meta)
			continue
		}

		merged[i].IsSigner = merged[i].IsSigner || meta.IsSigner
		merged[i].IsWritable = merged[i].IsWritable || meta.IsWritable
		merged[i].isPayer = merged[i].isPayer || meta.isPayer
	}

	return merged
}
