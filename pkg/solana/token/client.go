package token

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-timelock/pkg/ledger"
)

var (
	ErrAccountNotFound = errors.New("token account not found")

	// ErrInvalidTokenAccount is returned for accounts that exist but are not
	// initialized token accounts of the expected mint.
	ErrInvalidTokenAccount = errors.New("invalid token account")
)

// AccountReader reads committed ledger accounts. *ledger.Bank implements it.
type AccountReader interface {
	GetAccount(ctx context.Context, address ed25519.PublicKey) (*ledger.Account, error)
}

// Client reads token accounts from the ledger. A client created without a
// mint accepts accounts of any mint.
type Client struct {
	accounts AccountReader
	mint     ed25519.PublicKey
}

func NewClient(accounts AccountReader, mint ed25519.PublicKey) *Client {
	return &Client{
		accounts: accounts,
		mint:     mint,
	}
}

// GetAccount returns the decoded token account at address.
func (c *Client) GetAccount(ctx context.Context, address ed25519.PublicKey) (*Account, error) {
	info, err := c.accounts.GetAccount(ctx, address)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return nil, ErrAccountNotFound
	case err != nil:
		return nil, errors.Wrap(err, "failed to get account")
	case !bytes.Equal(info.Owner, ProgramKey):
		return nil, ErrInvalidTokenAccount
	}

	var account Account
	switch {
	case !account.Unmarshal(info.Data), !account.IsInitialized():
		return nil, ErrInvalidTokenAccount
	case len(c.mint) > 0 && !bytes.Equal(c.mint, account.Mint):
		return nil, ErrInvalidTokenAccount
	}
	return &account, nil
}

func (c *Client) GetBalance(ctx context.Context, address ed25519.PublicKey) (uint64, error) {
	account, err := c.GetAccount(ctx, address)
	if err != nil {
		return 0, err
	}
	return account.Amount, nil
}
