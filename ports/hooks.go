package ports

import (
	"context"

	"github.com/layer-3/anchor/core"
)

// AnchorHooks is the business logic an anchor plugs into the reconciliation
// engine. One implementation is chosen at process start.
type AnchorHooks interface {
	// IsDepositReceived reports whether the user's off-ledger deposit has arrived.
	IsDepositReceived(ctx context.Context, tx core.Transaction) (bool, error)

	// SendDeposit pays out a deposit on the ledger.
	SendDeposit(ctx context.Context, tx core.Transaction) error

	// IsWithdrawalComplete reports whether the off-ledger leg of a withdrawal has settled.
	IsWithdrawalComplete(ctx context.Context, tx core.Transaction) (bool, error)

	// SendWithdrawal starts the off-ledger leg of a withdrawal.
	SendWithdrawal(ctx context.Context, tx core.Transaction) error

	// ProcessWithdrawalReceived is called once the user's ledger payment for a
	// withdrawal has been matched.
	ProcessWithdrawalReceived(ctx context.Context, tx core.Transaction, payment core.ReceivedPayment) error

	// GetWithdrawAnchorAccountCursor returns where to resume streaming the
	// account. An empty cursor streams from the start.
	GetWithdrawAnchorAccountCursor(ctx context.Context, accountID string) (string, error)
}
