package solana

import (
	"bytes"
	"crypto/ed25519"
	"io"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-timelock/pkg/solana/shortvec"
)

func (s Signature) String() string {
	return base58.Encode(s[:])
}

// Marshal returns the wire encoding of the transaction: a length prefixed list
// of signatures followed by the message.
func (t Transaction) Marshal() []byte {
	b := make([]byte, 0, MaxTransactionSize)
	b = appendLen(b, len(t.Signatures))
	for _, s := range t.Signatures {
		b = append(b, s[:]...)
	}
	return t.Message.appendTo(b)
}

func (t *Transaction) Unmarshal(b []byte) error {
	d := newDecoder(b)

	count, err := d.len("signatures")
	if err != nil {
		return err
	}

	t.Signatures = make([]Signature, count)
	for i := range t.Signatures {
		if err := d.read(t.Signatures[i][:], "signature"); err != nil {
			return errors.Wrapf(err, "index %d", i)
		}
	}

	return t.Message.decode(d)
}

// Marshal returns the bytes that each signer signs.
func (m Message) Marshal() []byte {
	return m.appendTo(nil)
}

func (m Message) appendTo(b []byte) []byte {
	b = append(b, m.Header.NumSignatures, m.Header.NumReadonlySigned, m.Header.NumReadOnly)

	b = appendLen(b, len(m.Accounts))
	for _, a := range m.Accounts {
		b = append(b, a...)
	}

	b = append(b, m.RecentBlockhash[:]...)

	b = appendLen(b, len(m.Instructions))
	for _, ix := range m.Instructions {
		b = append(b, ix.ProgramIndex)
		b = appendLen(b, len(ix.Accounts))
		b = append(b, ix.Accounts...)
		b = appendLen(b, len(ix.Data))
		b = append(b, ix.Data...)
	}

	return b
}

func (m *Message) Unmarshal(b []byte) error {
	return m.decode(newDecoder(b))
}

func (m *Message) decode(d *decoder) error {
	if d.Len() == 0 {
		return errors.New("empty message")
	}

	// The high bit of the first byte marks a versioned message.
	var header [3]byte
	if err := d.read(header[:], "header"); err != nil {
		return err
	}
	if header[0]&0x80 != 0 {
		return errors.New("versioned messages not supported")
	}
	m.Header = Header{
		NumSignatures:     header[0],
		NumReadonlySigned: header[1],
		NumReadOnly:       header[2],
	}

	count, err := d.len("accounts")
	if err != nil {
		return err
	}
	if int(m.Header.NumSignatures)+int(m.Header.NumReadOnly) > count {
		return errors.Errorf("header references more accounts than present: %d", count)
	}

	m.Accounts = make([]ed25519.PublicKey, count)
	for i := range m.Accounts {
		m.Accounts[i] = make(ed25519.PublicKey, ed25519.PublicKeySize)
		if err := d.read(m.Accounts[i], "account"); err != nil {
			return errors.Wrapf(err, "index %d", i)
		}
	}

	if err := d.read(m.RecentBlockhash[:], "recent blockhash"); err != nil {
		return err
	}

	count, err = d.len("instructions")
	if err != nil {
		return err
	}

	m.Instructions = make([]CompiledInstruction, count)
	for i := range m.Instructions {
		ix, err := d.instruction(len(m.Accounts))
		if err != nil {
			return errors.Wrapf(err, "instruction %d", i)
		}
		m.Instructions[i] = ix
	}

	return nil
}

type decoder struct {
	*bytes.Reader
}

func newDecoder(b []byte) *decoder {
	return &decoder{bytes.NewReader(b)}
}

func (d *decoder) len(field string) (int, error) {
	n, err := shortvec.ReadLen(d)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s length", field)
	}
	return n, nil
}

func (d *decoder) read(dst []byte, field string) error {
	if _, err := io.ReadFull(d, dst); err != nil {
		return errors.Wrapf(err, "failed to read %s", field)
	}
	return nil
}

// bytes reads a length prefixed byte string.
func (d *decoder) bytes(field string) ([]byte, error) {
	n, err := d.len(field)
	if err != nil {
		return nil, err
	}

	b := make([]byte, n)
	if err := d.read(b, field); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *decoder) instruction(numAccounts int) (CompiledInstruction, error) {
	var ix CompiledInstruction

	programIndex, err := d.ReadByte()
	if err != nil {
		return ix, errors.Wrap(err, "failed to read program index")
	}
	if int(programIndex) >= numAccounts {
		return ix, errors.Errorf("program index out of range: %d", programIndex)
	}
	ix.ProgramIndex = programIndex

	if ix.Accounts, err = d.bytes("accounts"); err != nil {
		return ix, err
	}
	for _, index := range ix.Accounts {
		if int(index) >= numAccounts {
			return ix, errors.Errorf("account index out of range: %d", index)
		}
	}

	if ix.Data, err = d.bytes("data"); err != nil {
		return ix, err
	}

	return ix, nil
}

// appendLen panics on lengths the wire format cannot represent. Such a
// transaction would exceed MaxTransactionSize many times over.
func appendLen(b []byte, n int) []byte {
	b, err := shortvec.AppendLen(b, n)
	if err != nil {
		panic(err)
	}
	return b
}
