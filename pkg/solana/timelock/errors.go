package timelock

import "fmt"

// TimelockError is a timelock program failure. It is returned to clients as a
// custom instruction error carrying the numeric code.
type TimelockError uint32

const (
	// The lock duration pushes the unlock time past the representable range
	ErrDurationOverflow TimelockError = iota + 0x1770

	// Unlock was attempted before the unlock time
	ErrNotYetUnlockable

	// The lock duration is negative
	ErrInvalidDuration

	// A required signer is missing, or the wrong identity signed
	ErrUnauthorizedSigner

	// The supplied timelock address is not derived from the receiver and bump
	ErrAddressDerivationMismatch

	// A timelock already exists for the receiver
	ErrAlreadyLocked

	// The custody token account is not under the expected authority
	ErrCustodyAuthorityMismatch

	// The destination token account does not belong to the receiver or holds
	// another mint
	ErrInvalidDestination

	// The timelock account does not exist or is not a timelock
	ErrTimelockNotFound
)

var timelockErrorMessages = map[TimelockError]string{
	ErrDurationOverflow:          "duration caused overflow",
	ErrNotYetUnlockable:          "timelock hasn't unlocked yet",
	ErrInvalidDuration:           "duration must not be negative",
	ErrUnauthorizedSigner:        "unauthorized signer",
	ErrAddressDerivationMismatch: "timelock address does not match derivation",
	ErrAlreadyLocked:             "timelock already exists",
	ErrCustodyAuthorityMismatch:  "custody account authority mismatch",
	ErrInvalidDestination:        "invalid destination token account",
	ErrTimelockNotFound:          "timelock not found",
}

func (e TimelockError) Error() string {
	if msg, ok := timelockErrorMessages[e]; ok {
		return "timelock: " + msg
	}
	return fmt.Sprintf("timelock: unknown error %#x", uint32(e))
}

// ProgramErrorCode implements solana.ProgramError
func (e TimelockError) ProgramErrorCode() uint32 {
	return uint32(e)
}
