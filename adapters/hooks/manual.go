package hooks

import (
	"context"

	"go.uber.org/zap"

	"github.com/layer-3/anchor/core"
	"github.com/layer-3/anchor/ports"
)

// ManualHooks never confirms off-ledger activity on its own. Operators move
// transactions forward out of band; the reconciliation engine still matches
// incoming withdrawal payments and resumes streams from the cursor store.
type ManualHooks struct {
	cursors ports.CursorStore
	logger  *zap.Logger
}

// NewManualHooks creates hooks that only log
func NewManualHooks(cursors ports.CursorStore, logger *zap.Logger) *ManualHooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManualHooks{cursors: cursors, logger: logger}
}

func (h *ManualHooks) IsDepositReceived(ctx context.Context, tx core.Transaction) (bool, error) {
	return false, nil
}

func (h *ManualHooks) SendDeposit(ctx context.Context, tx core.Transaction) error {
	h.logger.Info("deposit awaiting manual payout",
		zap.String("transaction_id", tx.ID),
		zap.String("account", tx.StellarAccount),
		zap.String("amount_out", tx.AmountOut),
		zap.String("asset", tx.Asset().String()),
	)
	return nil
}

func (h *ManualHooks) IsWithdrawalComplete(ctx context.Context, tx core.Transaction) (bool, error) {
	return false, nil
}

func (h *ManualHooks) SendWithdrawal(ctx context.Context, tx core.Transaction) error {
	h.logger.Info("withdrawal awaiting manual payout",
		zap.String("transaction_id", tx.ID),
		zap.String("amount_out", tx.AmountOut),
		zap.String("asset", tx.Asset().String()),
	)
	return nil
}

func (h *ManualHooks) ProcessWithdrawalReceived(ctx context.Context, tx core.Transaction, payment core.ReceivedPayment) error {
	h.logger.Info("withdrawal payment received",
		zap.String("transaction_id", tx.ID),
		zap.String("from", payment.Source),
		zap.String("amount", payment.Amount.String()),
		zap.String("ledger_hash", payment.LedgerTransaction.Hash),
	)
	return nil
}

// GetWithdrawAnchorAccountCursor resumes from the last cursor the watcher saved.
func (h *ManualHooks) GetWithdrawAnchorAccountCursor(ctx context.Context, accountID string) (string, error) {
	if h.cursors == nil {
		return "", nil
	}
	return h.cursors.LoadCursor(ctx, accountID)
}
