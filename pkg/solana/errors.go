package solana

import (
	"fmt"

	"github.com/pkg/errors"
)

// TransactionErrorKey is the string key of a transaction level failure, as
// reported by the runtime.
type TransactionErrorKey string

const (
	TransactionErrorAccountInUse             TransactionErrorKey = "AccountInUse"
	TransactionErrorAccountLoadedTwice       TransactionErrorKey = "AccountLoadedTwice"
	TransactionErrorAccountNotFound          TransactionErrorKey = "AccountNotFound"
	TransactionErrorProgramAccountNotFound   TransactionErrorKey = "ProgramAccountNotFound"
	TransactionErrorInstructionError         TransactionErrorKey = "InstructionError"
	TransactionErrorInvalidAccountIndex      TransactionErrorKey = "InvalidAccountIndex"
	TransactionErrorSignatureFailure         TransactionErrorKey = "SignatureFailure"
	TransactionErrorSanitizeFailure          TransactionErrorKey = "SanitizeFailure"
	TransactionErrorInsufficientFundsForRent TransactionErrorKey = "InsufficientFundsForRent"
)

func (k TransactionErrorKey) Error() string {
	return string(k)
}

// InstructionErrorKey is the string key of a builtin instruction failure.
// Program specific failures are reported as InstructionErrorCustom with a
// numeric code.
type InstructionErrorKey string

const InstructionErrorCustom InstructionErrorKey = "Custom"

func (k InstructionErrorKey) Error() string {
	return string(k)
}

// Builtin instruction failures raised by the runtime and the native programs.
// Each error is its own key.
var (
	ErrGenericError                error = InstructionErrorKey("GenericError")
	ErrInvalidArgument             error = InstructionErrorKey("InvalidArgument")
	ErrInvalidInstructionData      error = InstructionErrorKey("InvalidInstructionData")
	ErrInvalidAccountData          error = InstructionErrorKey("InvalidAccountData")
	ErrInsufficientFunds           error = InstructionErrorKey("InsufficientFunds")
	ErrIncorrectProgramID          error = InstructionErrorKey("IncorrectProgramId")
	ErrMissingRequiredSignature    error = InstructionErrorKey("MissingRequiredSignature")
	ErrUnbalancedInstruction       error = InstructionErrorKey("UnbalancedInstruction")
	ErrModifiedProgramID           error = InstructionErrorKey("ModifiedProgramId")
	ErrExternalAccountLamportSpend error = InstructionErrorKey("ExternalAccountLamportSpend")
	ErrExternalAccountDataModified error = InstructionErrorKey("ExternalAccountDataModified")
	ErrReadonlyLamportChange       error = InstructionErrorKey("ReadonlyLamportChange")
	ErrReadonlyDataModified        error = InstructionErrorKey("ReadonlyDataModified")
	ErrNotEnoughAccountKeys        error = InstructionErrorKey("NotEnoughAccountKeys")
	ErrUnsupportedProgramID        error = InstructionErrorKey("UnsupportedProgramId")
	ErrCallDepth                   error = InstructionErrorKey("CallDepth")
	ErrMissingAccount              error = InstructionErrorKey("MissingAccount")
	ErrInvalidSeeds                error = InstructionErrorKey("InvalidSeeds")
	ErrPrivilegeEscalation         error = InstructionErrorKey("PrivilegeEscalation")
	ErrAccountAlreadyInUse         error = InstructionErrorKey("AccountAlreadyInUse")
	ErrAccountNotFound             error = InstructionErrorKey("AccountNotFound")
)

// ProgramError is implemented by the numbered error codes of on-chain programs.
type ProgramError interface {
	error
	ProgramErrorCode() uint32
}

// CustomError is a program specific error code.
type CustomError int

func (c CustomError) Error() string {
	return fmt.Sprintf("custom program error: %x", int(c))
}

func (c CustomError) ProgramErrorCode() uint32 {
	return uint32(c)
}

// InstructionError is the failure of the instruction at Index, which aborts the
// whole transaction.
type InstructionError struct {
	Index int
	Err   error
}

func (i InstructionError) Error() string {
	return fmt.Sprintf("instruction %d failed: %v", i.Index, i.Err)
}

func (i InstructionError) Unwrap() error {
	return i.Err
}

// ErrorKey returns the key the runtime would report. Errors that are neither
// keys nor program errors are keyed by their message.
func (i InstructionError) ErrorKey() InstructionErrorKey {
	var key InstructionErrorKey
	switch {
	case i.Err == nil:
		return ""
	case i.CustomError() != nil:
		return InstructionErrorCustom
	case errors.As(i.Err, &key):
		return key
	default:
		return InstructionErrorKey(i.Err.Error())
	}
}

func (i InstructionError) JSONString() string {
	if ce := i.CustomError(); ce != nil {
		return fmt.Sprintf(`[%d, {"%s": %d}]`, i.Index, InstructionErrorCustom, *ce)
	}

	return fmt.Sprintf(`[%d, "%s"]`, i.Index, i.ErrorKey())
}

// CustomError returns the program error code carried by the instruction error,
// if any.
func (i InstructionError) CustomError() *CustomError {
	var pe ProgramError
	if errors.As(i.Err, &pe) {
		ce := CustomError(pe.ProgramErrorCode())
		return &ce
	}

	return nil
}

// TransactionError is the reason a transaction was rejected. Instruction
// failures carry the InstructionError that caused them.
type TransactionError struct {
	transactionError error
	instructionError *InstructionError
}

func NewTransactionError(key TransactionErrorKey) *TransactionError {
	return &TransactionError{
		transactionError: key,
	}
}

func TransactionErrorFromInstructionError(err *InstructionError) *TransactionError {
	return &TransactionError{
		transactionError: TransactionErrorInstructionError,
		instructionError: err,
	}
}

func (t TransactionError) Error() string {
	switch {
	case t.instructionError != nil:
		return t.instructionError.Error()
	case t.transactionError != nil:
		return t.transactionError.Error()
	default:
		return ""
	}
}

func (t TransactionError) Unwrap() error {
	if t.instructionError != nil {
		return *t.instructionError
	}

	return t.transactionError
}

func (t TransactionError) ErrorKey() TransactionErrorKey {
	if t.transactionError == nil {
		return ""
	}

	return TransactionErrorKey(t.transactionError.Error())
}

func (t TransactionError) InstructionError() *InstructionError {
	return t.instructionError
}

func (t TransactionError) JSONString() string {
	if t.instructionError != nil {
		return fmt.Sprintf(`{"%s": %s}`, TransactionErrorInstructionError, t.instructionError.JSONString())
	}

	return fmt.Sprintf(`"%s"`, t.ErrorKey())
}
