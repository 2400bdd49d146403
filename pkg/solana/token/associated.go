package token

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-timelock/pkg/ledger"
	"github.com/code-payments/code-timelock/pkg/solana"
	"github.com/code-payments/code-timelock/pkg/solana/system"
)

// AssociatedTokenAccountProgramKey derives one canonical token account per
// wallet and mint.
//
// Current key: ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL
var AssociatedTokenAccountProgramKey = ed25519.PublicKey{140, 151, 37, 143, 78, 36, 137, 241, 187, 61, 16, 41, 20, 142, 13, 131, 11, 90, 19, 153, 218, 255, 16, 132, 4, 142, 123, 216, 219, 233, 248, 89}

const (
	commandCreate byte = iota
	commandCreateIdempotent
)

// ErrorInvalidAssociatedOwner is returned by the idempotent create when the
// existing associated account is not owned by the wallet.
const ErrorInvalidAssociatedOwner = solana.CustomError(0)

// GetAssociatedAccount returns the associated token account of the wallet for
// the mint. The seeds are the wallet, the token program and the mint.
func GetAssociatedAccount(wallet, mint ed25519.PublicKey) (ed25519.PublicKey, error) {
	addr, _, err := associatedAddress(wallet, mint)
	return addr, err
}

func associatedAddress(wallet, mint ed25519.PublicKey) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(AssociatedTokenAccountProgramKey, wallet, ProgramKey, mint)
}

// CreateAssociatedTokenAccount creates and initializes the associated token
// account of the wallet, funded by the subsidizer. It fails if the account
// already exists.
func CreateAssociatedTokenAccount(subsidizer, wallet, mint ed25519.PublicKey) (solana.Instruction, ed25519.PublicKey, error) {
	return createAssociatedTokenAccount(commandCreate, subsidizer, wallet, mint)
}

// CreateAssociatedTokenAccountIdempotent is CreateAssociatedTokenAccount that
// succeeds without changes when the associated account already exists for the
// wallet.
func CreateAssociatedTokenAccountIdempotent(subsidizer, wallet, mint ed25519.PublicKey) (solana.Instruction, ed25519.PublicKey, error) {
	return createAssociatedTokenAccount(commandCreateIdempotent, subsidizer, wallet, mint)
}

func createAssociatedTokenAccount(command byte, subsidizer, wallet, mint ed25519.PublicKey) (solana.Instruction, ed25519.PublicKey, error) {
	addr, err := GetAssociatedAccount(wallet, mint)
	if err != nil {
		return solana.Instruction{}, nil, err
	}

	accounts := []solana.AccountMeta{
		solana.NewAccountMeta(subsidizer, true),
		solana.NewAccountMeta(addr, false),
		solana.NewReadonlyAccountMeta(wallet, false),
		solana.NewReadonlyAccountMeta(mint, false),
	}
	for _, program := range associatedPrograms() {
		accounts = append(accounts, solana.NewReadonlyAccountMeta(program, false))
	}

	return solana.NewInstruction(AssociatedTokenAccountProgramKey, []byte{command}, accounts...), addr, nil
}

// associatedPrograms are the trailing accounts of a create instruction.
func associatedPrograms() []ed25519.PublicKey {
	return []ed25519.PublicKey{system.ProgramKey[:], ProgramKey, system.RentSysVar}
}

type DecompiledCreateAssociatedAccount struct {
	Subsidizer ed25519.PublicKey
	Address    ed25519.PublicKey
	Owner      ed25519.PublicKey
	Mint       ed25519.PublicKey
	Idempotent bool
}

func CreateAssociatedAccountFromInstruction(ix solana.Instruction) (*DecompiledCreateAssociatedAccount, error) {
	if !bytes.Equal(ix.Program, AssociatedTokenAccountProgramKey) {
		return nil, solana.ErrIncorrectProgram
	}

	// Legacy clients send no data for a plain create.
	var idempotent bool
	switch {
	case len(ix.Data) == 0, bytes.Equal(ix.Data, []byte{commandCreate}):
	case bytes.Equal(ix.Data, []byte{commandCreateIdempotent}):
		idempotent = true
	default:
		return nil, solana.ErrIncorrectInstruction
	}

	programs := associatedPrograms()
	if len(ix.Accounts) != 4+len(programs) {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	for i, program := range programs {
		if actual := ix.Accounts[4+i].PublicKey; !bytes.Equal(actual, program) {
			return nil, errors.Errorf("unexpected program at account %d: %s", 4+i, base58.Encode(actual))
		}
	}

	return &DecompiledCreateAssociatedAccount{
		Subsidizer: ix.Accounts[0].PublicKey,
		Address:    ix.Accounts[1].PublicKey,
		Owner:      ix.Accounts[2].PublicKey,
		Mint:       ix.Accounts[3].PublicKey,
		Idempotent: idempotent,
	}, nil
}

// AssociatedProcessor executes associated token account program instructions
// within a ledger.Bank.
type AssociatedProcessor struct{}

func NewAssociatedProcessor() *AssociatedProcessor {
	return &AssociatedProcessor{}
}

// ID implements ledger.Program.ID
func (p *AssociatedProcessor) ID() ed25519.PublicKey {
	return AssociatedTokenAccountProgramKey
}

// Process implements ledger.Program.Process
func (p *AssociatedProcessor) Process(ic *ledger.InvokeContext) error {
	args, err := CreateAssociatedAccountFromInstruction(ic.Instruction())
	if err != nil {
		return solana.ErrInvalidInstructionData
	}

	log := ic.Log().WithFields(logrus.Fields{
		"method": "CreateAssociatedTokenAccount",
		"wallet": ic.Accounts()[2].String(),
	})

	expected, bump, err := associatedAddress(args.Owner, args.Mint)
	if err != nil || !bytes.Equal(expected, args.Address) {
		return solana.ErrInvalidSeeds
	}

	associated := ic.Accounts()[1]
	if args.Idempotent && associated.IsOwnedBy(ProgramKey) {
		var existing Account
		if existing.Unmarshal(associated.Data) && existing.IsInitialized() {
			if !bytes.Equal(existing.Owner, args.Owner) {
				return ErrorInvalidAssociatedOwner
			}
			if !bytes.Equal(existing.Mint, args.Mint) {
				return ErrorMintMismatch
			}

			log.Debug("Associated account already exists")
			return nil
		}
	}

	capability, err := ic.Authorize(args.Owner, ProgramKey, args.Mint, []byte{bump})
	if err != nil {
		return err
	}

	err = ic.Invoke(
		system.CreateAccount(args.Subsidizer, args.Address, ProgramKey, ic.Rent().MinimumBalance(AccountSize), AccountSize),
		capability,
	)
	if err != nil {
		return err
	}

	return ic.Invoke(InitializeAccount3(args.Address, args.Mint, args.Owner))
}
