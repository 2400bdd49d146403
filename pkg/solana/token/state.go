package token

import (
	"crypto/ed25519"

	"github.com/code-payments/code-timelock/pkg/solana/binary"
)

type AccountState byte

const (
	AccountStateUninitialized AccountState = iota
	AccountStateInitialized
	AccountStateFrozen
)

// Packed sizes of the token program's account layouts.
const (
	AccountSize = 165
	MintSize    = 82
)

// Optional fields are prefixed by a little endian u32 tag, 0 or 1.
const optionSize = 4

// Account is a token account. Delegate, IsNative and CloseAuthority are
// optional and nil when unset.
type Account struct {
	Mint   ed25519.PublicKey
	Owner  ed25519.PublicKey
	Amount uint64

	// DelegatedAmount is the part of Amount the delegate may transfer.
	Delegate        ed25519.PublicKey
	DelegatedAmount uint64

	State AccountState

	// IsNative is set on wrapped SOL accounts to their rent-exempt reserve.
	IsNative *uint64

	CloseAuthority ed25519.PublicKey
}

func (a *Account) Marshal() []byte {
	b := make([]byte, AccountSize)

	var offset int
	binary.PutKey32(b, a.Mint, &offset)
	binary.PutKey32(b[offset:], a.Owner, &offset)
	binary.PutUint64(b[offset:], a.Amount, &offset)
	binary.PutOptionalKey32(b[offset:], a.Delegate, &offset, optionSize)
	b[offset] = byte(a.State)
	offset++
	binary.PutOptionalUint64(b[offset:], a.IsNative, &offset, optionSize)
	binary.PutUint64(b[offset:], a.DelegatedAmount, &offset)
	binary.PutOptionalKey32(b[offset:], a.CloseAuthority, &offset, optionSize)

	return b
}

func (a *Account) Unmarshal(b []byte) bool {
	if len(b) != AccountSize {
		return false
	}

	var offset int
	binary.GetKey32(b, &a.Mint, &offset)
	binary.GetKey32(b[offset:], &a.Owner, &offset)
	binary.GetUint64(b[offset:], &a.Amount, &offset)
	binary.GetOptionalKey32(b[offset:], &a.Delegate, &offset, optionSize)
	a.State = AccountState(b[offset])
	offset++
	binary.GetOptionalUint64(b[offset:], &a.IsNative, &offset, optionSize)
	binary.GetUint64(b[offset:], &a.DelegatedAmount, &offset)
	binary.GetOptionalKey32(b[offset:], &a.CloseAuthority, &offset, optionSize)

	return true
}

// IsInitialized reports whether the account has been through
// InitializeAccount. Frozen accounts are initialized.
func (a *Account) IsInitialized() bool {
	return a.State != AccountStateUninitialized
}

// Mint describes a token. A nil MintAuthority means the supply is fixed.
type Mint struct {
	MintAuthority   ed25519.PublicKey
	FreezeAuthority ed25519.PublicKey

	Supply        uint64
	Decimals      byte
	IsInitialized bool
}

func (m *Mint) Marshal() []byte {
	b := make([]byte, MintSize)

	var offset int
	binary.PutOptionalKey32(b, m.MintAuthority, &offset, optionSize)
	binary.PutUint64(b[offset:], m.Supply, &offset)
	binary.PutUint8(b[offset:], m.Decimals, &offset)
	binary.PutBool(b[offset:], m.IsInitialized, &offset)
	binary.PutOptionalKey32(b[offset:], m.FreezeAuthority, &offset, optionSize)

	return b
}

func (m *Mint) Unmarshal(b []byte) bool {
	if len(b) != MintSize {
		return false
	}

	var offset int
	binary.GetOptionalKey32(b, &m.MintAuthority, &offset, optionSize)
	binary.GetUint64(b[offset:], &m.Supply, &offset)
	binary.GetUint8(b[offset:], &m.Decimals, &offset)
	binary.GetBool(b[offset:], &m.IsInitialized, &offset)
	binary.GetOptionalKey32(b[offset:], &m.FreezeAuthority, &offset, optionSize)

	return true
}
