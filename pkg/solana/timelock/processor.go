package timelock

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-timelock/pkg/ledger"
	"github.com/code-payments/code-timelock/pkg/solana"
	"github.com/code-payments/code-timelock/pkg/solana/system"
	"github.com/code-payments/code-timelock/pkg/solana/token"
)

// Processor executes timelock program instructions within a ledger.Bank.
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
	data := ic.Data()

	switch {
	case bytes.HasPrefix(data, lockInstructionDiscriminator):
		return p.lock(ic)
	case bytes.HasPrefix(data, unlockInstructionDiscriminator):
		return p.unlock(ic)
	default:
		return ErrInvalidInstructionData
	}
}

func (p *Processor) lock(ic *ledger.InvokeContext) error {
	args, accounts, err := LockInstructionFromInstruction(ic.Instruction())
	if err != nil {
		return err
	}

	infos := ic.Accounts()
	timelockInfo, initializerInfo, custodyInfo := infos[0], infos[1], infos[2]
	if !bytes.Equal(infos[5].Address, token.ProgramKey) || !bytes.Equal(infos[6].Address, system.ProgramKey[:]) {
		return solana.ErrIncorrectProgramID
	}

	log := ic.Log().WithFields(logrus.Fields{
		"method":   "Lock",
		"timelock": base58.Encode(accounts.Timelock),
		"receiver": base58.Encode(accounts.Receiver),
	})

	expected, err := CreateTimelockAddress(accounts.Receiver, args.Bump)
	if err != nil || !bytes.Equal(expected, accounts.Timelock) {
		log.WithField("bump", args.Bump).Info("timelock address does not match derivation")
		return ErrAddressDerivationMismatch
	}

	if args.Duration < 0 {
		return ErrInvalidDuration
	}

	unlockTime, ok := checkedAdd(ic.Now().Unix(), args.Duration)
	if !ok {
		return ErrDurationOverflow
	}

	if !initializerInfo.IsSigner {
		return ErrUnauthorizedSigner
	}

	if timelockInfo.IsOwnedBy(ProgramKey) {
		return ErrAlreadyLocked
	}

	custody, err := loadTokenAccount(custodyInfo)
	if err != nil {
		return ErrCustodyAuthorityMismatch
	}
	if !bytes.Equal(custody.Owner, accounts.Initializer) {
		return ErrCustodyAuthorityMismatch
	}
	if len(custody.CloseAuthority) > 0 && !bytes.Equal(custody.CloseAuthority, accounts.Initializer) {
		return ErrCustodyAuthorityMismatch
	}

	if bytes.Equal(accounts.Custody, accounts.Destination) {
		return ErrInvalidDestination
	}
	if err := validateDestination(infos[4], accounts.Receiver, custody.Mint); err != nil {
		return err
	}

	capability, err := ic.Authorize(append(timelockSeeds(accounts.Receiver), []byte{args.Bump})...)
	if err != nil {
		return ErrAddressDerivationMismatch
	}

	if err := createTimelockAccount(ic, timelockInfo, accounts, capability); err != nil {
		return err
	}

	state := &TimelockAccount{
		Bump:        args.Bump,
		Receiver:    accounts.Receiver,
		Initializer: accounts.Initializer,
		Destination: accounts.Destination,
		Custody:     accounts.Custody,
		UnlockTime:  unlockTime,
		Amount:      custody.Amount,
	}
	timelockInfo.Data = state.Marshal()

	// The close authority moves first, while the initializer still owns the
	// custody account and can sign for it.
	for _, authorityType := range []token.AuthorityType{token.AuthorityTypeCloseAccount, token.AuthorityTypeAccountHolder} {
		err = ic.Invoke(token.SetAuthority(accounts.Custody, accounts.Initializer, accounts.Timelock, authorityType))
		if err != nil {
			return err
		}
	}

	log.WithFields(logrus.Fields{
		"amount":      state.Amount,
		"unlock_time": state.UnlockTime,
	}).Debug("locked")

	return nil
}

func (p *Processor) unlock(ic *ledger.InvokeContext) error {
	accounts, err := UnlockInstructionFromInstruction(ic.Instruction())
	if err != nil {
		return err
	}

	infos := ic.Accounts()
	timelockInfo, custodyInfo, receiverInfo := infos[0], infos[1], infos[2]
	if !bytes.Equal(infos[4].Address, token.ProgramKey) {
		return solana.ErrIncorrectProgramID
	}

	log := ic.Log().WithFields(logrus.Fields{
		"method":   "Unlock",
		"timelock": base58.Encode(accounts.Timelock),
		"receiver": base58.Encode(accounts.Receiver),
	})

	if !receiverInfo.IsSigner {
		return ErrUnauthorizedSigner
	}

	if !timelockInfo.Exists() || !timelockInfo.IsOwnedBy(ProgramKey) {
		return ErrTimelockNotFound
	}

	var state TimelockAccount
	if err := state.Unmarshal(timelockInfo.Data); err != nil {
		return ErrTimelockNotFound
	}

	if !bytes.Equal(state.Receiver, accounts.Receiver) {
		log.Info("unlock signed by an identity other than the receiver")
		return ErrUnauthorizedSigner
	}

	expected, err := CreateTimelockAddress(state.Receiver, state.Bump)
	if err != nil || !bytes.Equal(expected, accounts.Timelock) {
		return ErrAddressDerivationMismatch
	}

	if !state.IsUnlockable(ic.Now()) {
		log.WithField("unlock_time", state.UnlockTime).Debug("timelock hasn't unlocked yet")
		return ErrNotYetUnlockable
	}

	if !bytes.Equal(accounts.Custody, state.Custody) {
		return ErrCustodyAuthorityMismatch
	}
	custody, err := loadTokenAccount(custodyInfo)
	if err != nil || !bytes.Equal(custody.Owner, accounts.Timelock) {
		return ErrCustodyAuthorityMismatch
	}

	if !bytes.Equal(accounts.Destination, state.Destination) {
		log.WithField("destination", base58.Encode(accounts.Destination)).Info("unlock to a destination other than the recorded one")
		return ErrInvalidDestination
	}
	if err := validateDestination(infos[3], accounts.Receiver, custody.Mint); err != nil {
		return err
	}

	capability, err := ic.Authorize(append(timelockSeeds(state.Receiver), []byte{state.Bump})...)
	if err != nil {
		return ErrAddressDerivationMismatch
	}

	err = ic.Invoke(
		token.Transfer(accounts.Custody, accounts.Destination, accounts.Timelock, custody.Amount),
		capability,
	)
	if err != nil {
		return err
	}

	// Close the timelock, returning its deposit to the receiver. A later Lock
	// for the same receiver can recreate it.
	receiverInfo.Lamports += timelockInfo.Lamports
	timelockInfo.Lamports = 0
	timelockInfo.Data = nil
	timelockInfo.Owner = system.ProgramKey[:]

	log.WithField("amount", custody.Amount).Debug("unlocked")

	return nil
}

// createTimelockAccount creates the timelock account at its derived address.
//
// Anyone can send lamports to the address before it is locked. A funded
// system account without data is topped up to the rent minimum by the
// initializer, then allocated and assigned under the timelock capability.
func createTimelockAccount(ic *ledger.InvokeContext, info *ledger.AccountInfo, accounts *LockInstructionAccounts, capability ledger.Capability) error {
	minimum := ic.Rent().MinimumBalance(TimelockAccountSize)

	if info.Lamports == 0 {
		return ic.Invoke(
			system.CreateAccount(accounts.Initializer, accounts.Timelock, ProgramKey, minimum, TimelockAccountSize),
			capability,
		)
	}

	if !info.IsOwnedBy(system.ProgramKey[:]) || len(info.Data) > 0 {
		return ErrAlreadyLocked
	}

	if info.Lamports < minimum {
		err := ic.Invoke(system.Transfer(accounts.Initializer, accounts.Timelock, minimum-info.Lamports))
		if err != nil {
			return err
		}
	}

	if err := ic.Invoke(system.Allocate(accounts.Timelock, TimelockAccountSize), capability); err != nil {
		return err
	}
	return ic.Invoke(system.Assign(accounts.Timelock, ProgramKey), capability)
}

func loadTokenAccount(info *ledger.AccountInfo) (*token.Account, error) {
	if !info.IsOwnedBy(token.ProgramKey) {
		return nil, solana.ErrIncorrectProgramID
	}

	var account token.Account
	if !account.Unmarshal(info.Data) || !account.IsInitialized() {
		return nil, solana.ErrInvalidAccountData
	}

	return &account, nil
}

func validateDestination(info *ledger.AccountInfo, receiver, mint ed25519.PublicKey) error {
	destination, err := loadTokenAccount(info)
	if err != nil {
		return ErrInvalidDestination
	}
	if !bytes.Equal(destination.Owner, receiver) || !bytes.Equal(destination.Mint, mint) {
		return ErrInvalidDestination
	}
	return nil
}

// checkedAdd returns a+b, and false if the sum overflows.
func checkedAdd(a, b int64) (int64, bool) {
	sum := a + b
	if (sum > a) != (b > 0) {
		return sum, false
	}
	return sum, true
}
