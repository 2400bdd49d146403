package timelock

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-timelock/pkg/solana/binary"
)

var ErrInvalidAccountData = errors.New("unexpected account data")

const TimelockAccountSize = (8 + // discriminator
	1 + // bump
	32 + // receiver
	32 + // initializer
	32 + // destination
	32 + // custody
	8 + // unlock_time
	8) // amount

// TimelockAccount is the state of a lock, stored at the receiver's timelock
// address. It is written once by Lock and removed by Unlock.
type TimelockAccount struct {
	Bump        uint8
	Receiver    ed25519.PublicKey
	Initializer ed25519.PublicKey
	// Destination is the receiver's token account the custody balance is
	// released to.
	Destination ed25519.PublicKey
	Custody     ed25519.PublicKey
	// UnlockTime is the unix timestamp, in seconds, from which Unlock is
	// permitted.
	UnlockTime int64
	// Amount is the custody balance at lock time. It is recorded for audit;
	// Unlock releases the balance custody holds at that time.
	Amount uint64
}

func (obj *TimelockAccount) UnlockAt() time.Time {
	return time.Unix(obj.UnlockTime, 0)
}

// IsUnlockable reports whether Unlock is permitted at the provided time.
func (obj *TimelockAccount) IsUnlockable(at time.Time) bool {
	return at.Unix() >= obj.UnlockTime
}

func (obj *TimelockAccount) Clone() *TimelockAccount {
	return &TimelockAccount{
		Bump:        obj.Bump,
		Receiver:    append(ed25519.PublicKey(nil), obj.Receiver...),
		Initializer: append(ed25519.PublicKey(nil), obj.Initializer...),
		Destination: append(ed25519.PublicKey(nil), obj.Destination...),
		Custody:     append(ed25519.PublicKey(nil), obj.Custody...),
		UnlockTime:  obj.UnlockTime,
		Amount:      obj.Amount,
	}
}

func (obj *TimelockAccount) String() string {
	return fmt.Sprintf(
		"TimelockAccount{bump=%d,receiver=%s,initializer=%s,destination=%s,custody=%s,unlock_time=%d,amount=%d}",
		obj.Bump,
		base58.Encode(obj.Receiver),
		base58.Encode(obj.Initializer),
		base58.Encode(obj.Destination),
		base58.Encode(obj.Custody),
		obj.UnlockTime,
		obj.Amount,
	)
}

func (obj *TimelockAccount) Marshal() []byte {
	data := make([]byte, TimelockAccountSize)

	var offset int
	binary.PutDiscriminator(data, timelockAccountDiscriminator, &offset)
	binary.PutUint8(data[offset:], obj.Bump, &offset)
	binary.PutKey32(data[offset:], obj.Receiver, &offset)
	binary.PutKey32(data[offset:], obj.Initializer, &offset)
	binary.PutKey32(data[offset:], obj.Destination, &offset)
	binary.PutKey32(data[offset:], obj.Custody, &offset)
	binary.PutInt64(data[offset:], obj.UnlockTime, &offset)
	binary.PutUint64(data[offset:], obj.Amount, &offset)

	return data
}

func (obj *TimelockAccount) Unmarshal(data []byte) error {
	if len(data) != TimelockAccountSize {
		return ErrInvalidAccountData
	}

	var offset int
	var discriminator []byte

	binary.GetDiscriminator(data, &discriminator, &offset)
	if !bytes.Equal(discriminator, timelockAccountDiscriminator) {
		return ErrInvalidAccountData
	}

	binary.GetUint8(data[offset:], &obj.Bump, &offset)
	binary.GetKey32(data[offset:], &obj.Receiver, &offset)
	binary.GetKey32(data[offset:], &obj.Initializer, &offset)
	binary.GetKey32(data[offset:], &obj.Destination, &offset)
	binary.GetKey32(data[offset:], &obj.Custody, &offset)
	binary.GetInt64(data[offset:], &obj.UnlockTime, &offset)
	binary.GetUint64(data[offset:], &obj.Amount, &offset)

	return nil
}
