package ports

import (
	"context"

	"github.com/layer-3/anchor/core"
)

// TransactionStore reads and writes SEP-24 transactions.
type TransactionStore interface {
	Find(ctx context.Context, filter core.TransactionFilter) ([]core.Transaction, error)

	// Get returns core.ErrNotFound when no transaction has the id.
	Get(ctx context.Context, id string) (*core.Transaction, error)

	// Update applies the same update to every id. It is all-or-nothing: if any
	// id is unknown nothing is written and core.ErrNotFound is returned.
	Update(ctx context.Context, ids []string, update core.TransactionUpdate) error

	Insert(ctx context.Context, tx *core.Transaction) error
}

// CursorStore persists per-account ledger stream cursors.
type CursorStore interface {
	// LoadCursor returns "" when no cursor was saved for the account.
	LoadCursor(ctx context.Context, accountID string) (string, error)
	SaveCursor(ctx context.Context, accountID, cursor string) error
}
