package ports

import (
	"context"

	"github.com/layer-3/anchor/core"
)

// TransactionHandler receives ledger transactions in the order the ledger
// surfaces them. Returning an error stops the stream.
type TransactionHandler func(ctx context.Context, tx core.LedgerTransaction) error

// LedgerClient queries account state and streams account activity.
type LedgerClient interface {
	// LoadAccount returns core.ErrAccountNotFound when the account does not exist.
	LoadAccount(ctx context.Context, accountID string) (*core.LedgerAccount, error)

	// StreamTransactions blocks, delivering every transaction that touches
	// accountID after cursor, until ctx is done or handler fails.
	StreamTransactions(ctx context.Context, accountID, cursor string, handler TransactionHandler) error
}

// TomlFetcher fetches a domain's published stellar.toml.
type TomlFetcher interface {
	Fetch(ctx context.Context, domain string) (*core.StellarToml, error)
}
