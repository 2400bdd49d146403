package ledger

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-timelock/pkg/solana"
)

// Capability grants a program the right to sign for one of its derived
// addresses in cross-program invocations. It can only be obtained from
// InvokeContext.Authorize.
type Capability struct {
	programID ed25519.PublicKey
	address   ed25519.PublicKey
}

// Address is the derived address the capability signs for.
func (c Capability) Address() ed25519.PublicKey {
	return c.address
}

type privilege struct {
	signer   bool
	writable bool
}

// InvokeContext is the view a program has of the instruction it is
// processing.
type InvokeContext struct {
	exec *execution
	log  *logrus.Entry

	programID ed25519.PublicKey
	accounts  []*AccountInfo
	data      []byte
	depth     int

	// pre holds the state of each unique account at the last checkpoint,
	// which the ownership rules are checked against.
	pre        map[string]*Account
	privileges map[string]privilege
}

func (ic *InvokeContext) Context() context.Context {
	return ic.exec.ctx
}

func (ic *InvokeContext) ProgramID() ed25519.PublicKey {
	return ic.programID
}

// Accounts returns the instruction accounts, in instruction order.
func (ic *InvokeContext) Accounts() []*AccountInfo {
	return ic.accounts
}

func (ic *InvokeContext) Data() []byte {
	return ic.data
}

// Instruction rebuilds the instruction being processed, with the privileges
// each account holds in this frame.
func (ic *InvokeContext) Instruction() solana.Instruction {
	ix := solana.Instruction{
		Program:  ic.programID,
		Data:     ic.data,
		Accounts: make([]solana.AccountMeta, len(ic.accounts)),
	}
	for i, info := range ic.accounts {
		ix.Accounts[i] = solana.AccountMeta{
			PublicKey:  info.Address,
			IsSigner:   info.IsSigner,
			IsWritable: info.IsWritable,
		}
	}
	return ix
}

// Now returns the time of the transaction. It is constant for every
// instruction in the transaction.
func (ic *InvokeContext) Now() time.Time {
	return ic.exec.now
}

func (ic *InvokeContext) Rent() Rent {
	return ic.exec.rent
}

func (ic *InvokeContext) Log() *logrus.Entry {
	return ic.log
}

// Authorize returns the capability to sign for the address derived from the
// calling program and seeds.
func (ic *InvokeContext) Authorize(seeds ...[]byte) (Capability, error) {
	address, err := solana.CreateProgramAddress(ic.programID, seeds...)
	if err != nil {
		return Capability{}, solana.ErrInvalidSeeds
	}

	return Capability{
		programID: ic.programID,
		address:   address,
	}, nil
}

// Invoke processes ix as a nested instruction.
//
// Every account of ix must be an account of the current instruction. An
// account may be writable only if it is writable here. It may be a signer
// only if it is a signer here or one of caps, minted by this program, signs
// for it.
func (ic *InvokeContext) Invoke(ix solana.Instruction, caps ...Capability) error {
	if ic.depth+1 > ic.exec.maxDepth {
		return solana.ErrCallDepth
	}

	if _, ok := ic.privileges[string(ix.Program)]; !ok {
		return solana.ErrMissingAccount
	}

	for _, meta := range ix.Accounts {
		p, ok := ic.privileges[string(meta.PublicKey)]
		if !ok {
			return solana.ErrMissingAccount
		}

		if meta.IsWritable && !p.writable {
			ic.log.WithField("account", base58.Encode(meta.PublicKey)).Info("writable privilege escalated")
			return solana.ErrPrivilegeEscalation
		}

		if meta.IsSigner && !p.signer && !ic.covers(caps, meta.PublicKey) {
			ic.log.WithField("account", base58.Encode(meta.PublicKey)).Info("signer privilege escalated")
			return solana.ErrPrivilegeEscalation
		}
	}

	// Changes made so far are checked against this program's rights before
	// the callee sees them. The callee's changes are checked in its own frame.
	if err := ic.verify(); err != nil {
		return err
	}

	if err := ic.exec.process(ix, ic.depth+1); err != nil {
		return err
	}

	ic.checkpoint()
	return nil
}

func (ic *InvokeContext) covers(caps []Capability, address ed25519.PublicKey) bool {
	for _, c := range caps {
		if bytes.Equal(c.programID, ic.programID) && bytes.Equal(c.address, address) {
			return true
		}
	}
	return false
}

func (ic *InvokeContext) checkpoint() {
	ic.pre = make(map[string]*Account, len(ic.privileges))
	for _, info := range ic.accounts {
		key := string(info.Address)
		if _, ok := ic.pre[key]; !ok {
			ic.pre[key] = info.Account.Clone()
		}
	}
}

func (ic *InvokeContext) verify() error {
	var preTotal, postTotal uint64
	for key, pre := range ic.pre {
		post := ic.exec.accounts[key]

		if err := verifyAccount(ic.programID, pre, post, ic.privileges[key].writable); err != nil {
			ic.log.WithError(err).WithField("account", base58.Encode(pre.Address)).Info("account rule violated")
			return err
		}

		preTotal += pre.Lamports
		postTotal += post.Lamports
	}

	if preTotal != postTotal {
		return solana.ErrUnbalancedInstruction
	}

	return nil
}
