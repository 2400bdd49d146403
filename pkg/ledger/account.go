package ledger

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
)

// SystemProgramID owns every account that has not been assigned to another
// program, including accounts that do not exist yet.
var SystemProgramID = ed25519.PublicKey(make([]byte, ed25519.PublicKeySize))

// Account is the committed state of a single address. An account with zero
// lamports does not exist.
type Account struct {
	Address  ed25519.PublicKey
	Owner    ed25519.PublicKey
	Lamports uint64
	Data     []byte

	// Slot is the commit slot that last modified the account.
	Slot uint64
}

func (a *Account) Exists() bool {
	return a != nil && a.Lamports > 0
}

func (a *Account) IsOwnedBy(program ed25519.PublicKey) bool {
	return bytes.Equal(a.Owner, program)
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}

	cloned := &Account{
		Address:  make(ed25519.PublicKey, len(a.Address)),
		Owner:    make(ed25519.PublicKey, len(a.Owner)),
		Lamports: a.Lamports,
		Slot:     a.Slot,
	}
	copy(cloned.Address, a.Address)
	copy(cloned.Owner, a.Owner)

	if a.Data != nil {
		cloned.Data = make([]byte, len(a.Data))
		copy(cloned.Data, a.Data)
	}

	return cloned
}

func (a *Account) Validate() error {
	if len(a.Address) != ed25519.PublicKeySize {
		return ErrInvalidAccount
	}
	if len(a.Owner) != ed25519.PublicKeySize {
		return ErrInvalidAccount
	}
	return nil
}

func (a *Account) String() string {
	return base58.Encode(a.Address)
}

// equalState reports whether two accounts hold the same owner, balance and
// data, ignoring the commit slot.
func equalState(a, b *Account) bool {
	return bytes.Equal(a.Owner, b.Owner) &&
		a.Lamports == b.Lamports &&
		bytes.Equal(a.Data, b.Data)
}

func emptyAccount(address ed25519.PublicKey) *Account {
	owner := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(owner, SystemProgramID)

	return &Account{
		Address: address,
		Owner:   owner,
	}
}

// AccountInfo is an account as seen by a program within a single
// instruction, along with the privileges the instruction grants on it.
//
// Accounts listed more than once in an instruction share the same underlying
// *Account.
type AccountInfo struct {
	*Account

	IsSigner   bool
	IsWritable bool
}

// AccountUpdate describes a committed change to an account. Account has zero
// lamports when the change closed it, and Previous is nil when the change
// created it.
type AccountUpdate struct {
	Slot     uint64
	Account  *Account
	Previous *Account
}
