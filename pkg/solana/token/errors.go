package token

// TokenError is a token program failure, numbered as the token standard
// numbers them so clients can decode custom instruction errors.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/error.rs
type TokenError uint32

const (
	ErrorNotRentExempt TokenError = iota
	ErrorInsufficientFunds
	ErrorInvalidMint
	ErrorMintMismatch
	ErrorOwnerMismatch
	ErrorFixedSupply
	ErrorAlreadyInUse
	ErrorInvalidNumberOfProvidedSigners
	ErrorInvalidNumberOfRequiredSigners
	ErrorUninitializedState
	ErrorNativeNotSupported
	ErrorNonNativeHasBalance
	ErrorInvalidInstruction
	ErrorInvalidState
	ErrorOverflow
	ErrorAuthorityTypeNotSupported
	ErrorMintCannotFreeze
	ErrorAccountFrozen
	ErrorMintDecimalsMismatch
)

var tokenErrorMessages = map[TokenError]string{
	ErrorNotRentExempt:                  "lamport balance below rent-exempt threshold",
	ErrorInsufficientFunds:              "insufficient funds",
	ErrorInvalidMint:                    "invalid mint",
	ErrorMintMismatch:                   "account not associated with this mint",
	ErrorOwnerMismatch:                  "owner does not match",
	ErrorFixedSupply:                    "fixed supply",
	ErrorAlreadyInUse:                   "already in use",
	ErrorInvalidNumberOfProvidedSigners: "invalid number of provided signers",
	ErrorInvalidNumberOfRequiredSigners: "invalid number of required signers",
	ErrorUninitializedState:             "state is uninitialized",
	ErrorNativeNotSupported:             "instruction does not support native tokens",
	ErrorNonNativeHasBalance:            "non-native account can only be closed if its balance is zero",
	ErrorInvalidInstruction:             "invalid instruction",
	ErrorInvalidState:                   "state is invalid for requested operation",
	ErrorOverflow:                       "operation overflowed",
	ErrorAuthorityTypeNotSupported:      "account does not support specified authority type",
	ErrorMintCannotFreeze:               "this token mint cannot freeze accounts",
	ErrorAccountFrozen:                  "account is frozen",
	ErrorMintDecimalsMismatch:           "the provided decimals value different from the mint decimals",
}

func (e TokenError) Error() string {
	if msg, ok := tokenErrorMessages[e]; ok {
		return "token: " + msg
	}
	return "token: unknown error"
}

// ProgramErrorCode implements solana.ProgramError
func (e TokenError) ProgramErrorCode() uint32 {
	return uint32(e)
}
