package token

import (
	"bytes"
	"crypto/ed25519"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-timelock/pkg/ledger"
	"github.com/code-payments/code-timelock/pkg/solana"
)

// Processor executes token program instructions within a ledger.Bank. It
// supports single owner authorities only.
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
	ix := ic.Instruction()
	if len(ix.Data) == 0 {
		return ErrorInvalidInstruction
	}

	switch Command(ix.Data[0]) {
	case CommandInitializeMint:
		return p.initializeMint(ic, ix)
	case CommandInitializeAccount, CommandInitializeAccount3:
		return p.initializeAccount(ic, ix)
	case CommandTransfer:
		return p.transfer(ic, ix)
	case CommandSetAuthority:
		return p.setAuthority(ic, ix)
	case CommandMintTo:
		return p.mintTo(ic, ix)
	case CommandCloseAccount:
		return p.closeAccount(ic, ix)
	default:
		ic.Log().WithField("command", ix.Data[0]).Debug("unsupported token command")
		return ErrorInvalidInstruction
	}
}

func (p *Processor) initializeMint(ic *ledger.InvokeContext, ix solana.Instruction) error {
	args, err := InitializeMintFromInstruction(ix)
	if err != nil {
		return ErrorInvalidInstruction
	}

	info := ic.Accounts()[0]
	if !info.IsOwnedBy(ProgramKey) {
		return solana.ErrIncorrectProgramID
	}

	var mint Mint
	if !mint.Unmarshal(info.Data) {
		return solana.ErrInvalidAccountData
	}
	if mint.IsInitialized {
		return ErrorAlreadyInUse
	}
	if !ic.Rent().IsExempt(info.Lamports, len(info.Data)) {
		return ErrorNotRentExempt
	}

	mint = Mint{
		MintAuthority:   args.MintAuthority,
		Decimals:        args.Decimals,
		IsInitialized:   true,
		FreezeAuthority: args.FreezeAuthority,
	}
	info.Data = mint.Marshal()

	return nil
}

func (p *Processor) initializeAccount(ic *ledger.InvokeContext, ix solana.Instruction) error {
	args, err := InitializeAccountFromInstruction(ix)
	if err != nil {
		return ErrorInvalidInstruction
	}

	info := ic.Accounts()[0]
	if !info.IsOwnedBy(ProgramKey) {
		return solana.ErrIncorrectProgramID
	}

	var account Account
	if !account.Unmarshal(info.Data) {
		return solana.ErrInvalidAccountData
	}
	if account.IsInitialized() {
		return ErrorAlreadyInUse
	}
	if !ic.Rent().IsExempt(info.Lamports, len(info.Data)) {
		return ErrorNotRentExempt
	}

	if _, err := loadMint(ic.Accounts()[1]); err != nil {
		return err
	}

	account = Account{
		Mint:  args.Mint,
		Owner: args.Owner,
		State: AccountStateInitialized,
	}
	info.Data = account.Marshal()

	return nil
}

func (p *Processor) transfer(ic *ledger.InvokeContext, ix solana.Instruction) error {
	args, err := TransferFromInstruction(ix)
	if err != nil {
		return ErrorInvalidInstruction
	}

	sourceInfo, destInfo, authorityInfo := ic.Accounts()[0], ic.Accounts()[1], ic.Accounts()[2]

	source, err := loadAccount(sourceInfo)
	if err != nil {
		return err
	}
	dest, err := loadAccount(destInfo)
	if err != nil {
		return err
	}

	if source.State == AccountStateFrozen || dest.State == AccountStateFrozen {
		return ErrorAccountFrozen
	}
	if source.Amount < args.Amount {
		return ErrorInsufficientFunds
	}
	if !bytes.Equal(source.Mint, dest.Mint) {
		return ErrorMintMismatch
	}
	if err := validateOwner(source.Owner, authorityInfo); err != nil {
		ic.Log().WithFields(logrus.Fields{
			"source":    sourceInfo.String(),
			"authority": authorityInfo.String(),
		}).Debug("transfer rejected")
		return err
	}

	if bytes.Equal(sourceInfo.Address, destInfo.Address) {
		return nil
	}

	source.Amount -= args.Amount
	dest.Amount += args.Amount

	sourceInfo.Data = source.Marshal()
	destInfo.Data = dest.Marshal()

	return nil
}

func (p *Processor) mintTo(ic *ledger.InvokeContext, ix solana.Instruction) error {
	args, err := MintToFromInstruction(ix)
	if err != nil {
		return ErrorInvalidInstruction
	}

	mintInfo, destInfo, authorityInfo := ic.Accounts()[0], ic.Accounts()[1], ic.Accounts()[2]

	dest, err := loadAccount(destInfo)
	if err != nil {
		return err
	}
	if dest.State == AccountStateFrozen {
		return ErrorAccountFrozen
	}
	if !bytes.Equal(dest.Mint, mintInfo.Address) {
		return ErrorMintMismatch
	}

	mint, err := loadMint(mintInfo)
	if err != nil {
		return err
	}
	if len(mint.MintAuthority) == 0 {
		return ErrorFixedSupply
	}
	if err := validateOwner(mint.MintAuthority, authorityInfo); err != nil {
		return err
	}

	if math.MaxUint64-mint.Supply < args.Amount || math.MaxUint64-dest.Amount < args.Amount {
		return ErrorOverflow
	}

	mint.Supply += args.Amount
	dest.Amount += args.Amount

	mintInfo.Data = mint.Marshal()
	destInfo.Data = dest.Marshal()

	return nil
}

func (p *Processor) setAuthority(ic *ledger.InvokeContext, ix solana.Instruction) error {
	args, err := SetAuthorityFromInstruction(ix)
	if err != nil {
		return ErrorInvalidInstruction
	}

	info, authorityInfo := ic.Accounts()[0], ic.Accounts()[1]
	if !info.IsOwnedBy(ProgramKey) {
		return solana.ErrIncorrectProgramID
	}

	switch len(info.Data) {
	case AccountSize:
		account, err := loadAccount(info)
		if err != nil {
			return err
		}
		if account.State == AccountStateFrozen {
			return ErrorAccountFrozen
		}

		switch args.Type {
		case AuthorityTypeAccountHolder:
			if err := validateOwner(account.Owner, authorityInfo); err != nil {
				return err
			}
			if len(args.NewAuthority) == 0 {
				return ErrorInvalidInstruction
			}

			account.Owner = args.NewAuthority
			account.Delegate = nil
			account.DelegatedAmount = 0
		case AuthorityTypeCloseAccount:
			current := account.CloseAuthority
			if len(current) == 0 {
				current = account.Owner
			}
			if err := validateOwner(current, authorityInfo); err != nil {
				return err
			}

			account.CloseAuthority = args.NewAuthority
		default:
			return ErrorAuthorityTypeNotSupported
		}

		info.Data = account.Marshal()
	case MintSize:
		mint, err := loadMint(info)
		if err != nil {
			return err
		}

		switch args.Type {
		case AuthorityTypeMintTokens:
			if len(mint.MintAuthority) == 0 {
				return ErrorFixedSupply
			}
			if err := validateOwner(mint.MintAuthority, authorityInfo); err != nil {
				return err
			}

			mint.MintAuthority = args.NewAuthority
		case AuthorityTypeFreezeAccount:
			if len(mint.FreezeAuthority) == 0 {
				return ErrorMintCannotFreeze
			}
			if err := validateOwner(mint.FreezeAuthority, authorityInfo); err != nil {
				return err
			}

			mint.FreezeAuthority = args.NewAuthority
		default:
			return ErrorAuthorityTypeNotSupported
		}

		info.Data = mint.Marshal()
	default:
		return solana.ErrInvalidAccountData
	}

	return nil
}

func (p *Processor) closeAccount(ic *ledger.InvokeContext, ix solana.Instruction) error {
	if _, err := CloseAccountFromInstruction(ix); err != nil {
		return ErrorInvalidInstruction
	}

	info, destInfo, authorityInfo := ic.Accounts()[0], ic.Accounts()[1], ic.Accounts()[2]
	if bytes.Equal(info.Address, destInfo.Address) {
		return solana.ErrInvalidAccountData
	}

	account, err := loadAccount(info)
	if err != nil {
		return err
	}
	if account.Amount != 0 {
		return ErrorNonNativeHasBalance
	}

	authority := account.CloseAuthority
	if len(authority) == 0 {
		authority = account.Owner
	}
	if err := validateOwner(authority, authorityInfo); err != nil {
		return err
	}

	destInfo.Lamports += info.Lamports
	info.Lamports = 0
	info.Data = make([]byte, len(info.Data))

	return nil
}

func loadAccount(info *ledger.AccountInfo) (*Account, error) {
	if !info.IsOwnedBy(ProgramKey) {
		return nil, solana.ErrIncorrectProgramID
	}

	var account Account
	if !account.Unmarshal(info.Data) {
		return nil, solana.ErrInvalidAccountData
	}
	if !account.IsInitialized() {
		return nil, ErrorUninitializedState
	}

	return &account, nil
}

func loadMint(info *ledger.AccountInfo) (*Mint, error) {
	if !info.IsOwnedBy(ProgramKey) {
		return nil, ErrorInvalidMint
	}

	var mint Mint
	if !mint.Unmarshal(info.Data) || !mint.IsInitialized {
		return nil, ErrorInvalidMint
	}

	return &mint, nil
}

func validateOwner(expected ed25519.PublicKey, authority *ledger.AccountInfo) error {
	if !bytes.Equal(expected, authority.Address) {
		return ErrorOwnerMismatch
	}
	if !authority.IsSigner {
		return solana.ErrMissingRequiredSignature
	}
	return nil
}
