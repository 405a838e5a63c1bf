package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/layer-3/anchor/adapters/ledger"
	"github.com/layer-3/anchor/core"
	"github.com/layer-3/anchor/ports"
)

// WithdrawalWatcher keeps one ledger stream open per withdraw anchor account
// that has pending withdrawals, and matches incoming payments to them.
type WithdrawalWatcher struct {
	store   ports.TransactionStore
	ledger  ports.LedgerClient
	hooks   ports.AnchorHooks
	events  ports.EventPublisher
	cursors ports.CursorStore
	metrics *SchedulerMetrics
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	streams map[string]*stream
	failed  map[string]error
	errs    chan error
	wg      sync.WaitGroup
}

type stream struct {
	cancel context.CancelFunc
}

// NewWithdrawalWatcher creates a watcher. cursors and metrics may be nil.
func NewWithdrawalWatcher(
	store ports.TransactionStore,
	ledger ports.LedgerClient,
	hooks ports.AnchorHooks,
	events ports.EventPublisher,
	cursors ports.CursorStore,
	metrics *SchedulerMetrics,
	logger *zap.Logger,
) *WithdrawalWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WithdrawalWatcher{
		store:   store,
		ledger:  ledger,
		hooks:   hooks,
		events:  events,
		cursors: cursors,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		streams: make(map[string]*stream),
		failed:  make(map[string]error),
		errs:    make(chan error, 16),
	}
}

// Errors delivers fatal stream failures: a missing withdraw anchor account
// or an ambiguous withdrawal match. The failed account is not retried.
func (w *WithdrawalWatcher) Errors() <-chan error {
	return w.errs
}

// Sync opens streams for accounts that gained pending withdrawals and closes
// streams for accounts that have none left. Streams live until ctx is done,
// they are closed by a later Sync or Stop is called.
func (w *WithdrawalWatcher) Sync(ctx context.Context) error {
	txs, err := w.store.Find(ctx, core.TransactionFilter{
		Kind:   core.KindWithdrawal,
		Status: core.StatusPendingUserTransferStart,
	})
	if err != nil {
		return fmt.Errorf("failed to find pending withdrawals: %w", err)
	}

	accounts := make(map[string]bool)
	for _, tx := range txs {
		if tx.WithdrawAnchorAccount != "" {
			accounts[tx.WithdrawAnchorAccount] = true
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for account := range accounts {
		if _, ok := w.streams[account]; ok {
			continue
		}
		if _, ok := w.failed[account]; ok {
			continue
		}
		w.start(ctx, account)
	}

	for account, s := range w.streams {
		if !accounts[account] {
			s.cancel()
			delete(w.streams, account)
			w.logger.Info("stopped withdrawal stream", zap.String("account", account))
		}
	}

	w.metrics.setWatched(len(w.streams))
	return nil
}

// start must be called with w.mu held.
func (w *WithdrawalWatcher) start(ctx context.Context, account string) {
	streamCtx, cancel := context.WithCancel(ctx)
	s := &stream{cancel: cancel}
	w.streams[account] = s
	w.logger.Info("started withdrawal stream", zap.String("account", account))

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer cancel()

		err := w.Watch(streamCtx, account)

		w.mu.Lock()
		defer w.mu.Unlock()

		if w.streams[account] == s {
			delete(w.streams, account)
			w.metrics.setWatched(len(w.streams))
		}

		switch {
		case streamCtx.Err() != nil:
		case errors.Is(err, core.ErrDistributionAccountMissing), errors.Is(err, core.ErrAmbiguousMatch):
			w.failed[account] = err
			w.logger.Error("withdrawal stream failed", zap.String("account", account), zap.Error(err))
			select {
			case w.errs <- err:
			default:
			}
		default:
			w.logger.Warn("withdrawal stream dropped, retrying on next sync", zap.String("account", account), zap.Error(err))
		}
	}()
}

// Stop closes every stream and waits for them to exit
func (w *WithdrawalWatcher) Stop() {
	w.mu.Lock()
	for account, s := range w.streams {
		s.cancel()
		delete(w.streams, account)
	}
	w.metrics.setWatched(0)
	w.mu.Unlock()

	w.wg.Wait()
}

// Watch streams one withdraw anchor account until ctx is done or the stream fails
func (w *WithdrawalWatcher) Watch(ctx context.Context, account string) error {
	if _, err := w.ledger.LoadAccount(ctx, account); err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			return fmt.Errorf("%w: %s", core.ErrDistributionAccountMissing, account)
		}
		return fmt.Errorf("failed to load withdraw anchor account %s: %w", account, err)
	}

	cursor, err := w.hooks.GetWithdrawAnchorAccountCursor(ctx, account)
	if err != nil {
		return fmt.Errorf("failed to get cursor for %s: %w", account, err)
	}

	return w.ledger.StreamTransactions(ctx, account, cursor, func(ctx context.Context, ltx core.LedgerTransaction) error {
		return w.handle(ctx, account, ltx)
	})
}

// handle processes one streamed ledger transaction. Returning an error drops
// the stream without saving the cursor, so the transaction is seen again when
// the stream restarts.
func (w *WithdrawalWatcher) handle(ctx context.Context, account string, ltx core.LedgerTransaction) error {
	if !ltx.Successful || ltx.Memo == "" {
		return w.saveCursor(ctx, account, ltx.PagingToken)
	}

	txs, err := w.store.Find(ctx, core.TransactionFilter{
		Kind:                  core.KindWithdrawal,
		Status:                core.StatusPendingUserTransferStart,
		WithdrawAnchorAccount: account,
		WithdrawMemo:          ltx.Memo,
	})
	if err != nil {
		return fmt.Errorf("failed to find withdrawal for memo %s: %w", ltx.Memo, err)
	}
	txs = withMemoType(txs, ltx.MemoType)
	switch len(txs) {
	case 0:
		return w.saveCursor(ctx, account, ltx.PagingToken)
	case 1:
	default:
		return fmt.Errorf("%w: %d pending withdrawals to %s share memo %s",
			core.ErrAmbiguousMatch, len(txs), account, ltx.Memo)
	}
	tx := txs[0]

	payment, source, ok, err := ledger.MatchWithdrawal(ltx, tx)
	if err != nil {
		w.logger.Warn("failed to decode ledger transaction",
			zap.String("hash", ltx.Hash),
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
		return w.saveCursor(ctx, account, ltx.PagingToken)
	}
	if !ok {
		return w.saveCursor(ctx, account, ltx.PagingToken)
	}

	received := core.ReceivedPayment{Amount: payment.Amount, Source: source, LedgerTransaction: ltx}
	if err := w.hooks.ProcessWithdrawalReceived(ctx, tx, received); err != nil {
		return fmt.Errorf("failed to process withdrawal %s: %w", tx.ID, err)
	}

	// The hook may already have moved the transaction on.
	current, err := w.store.Get(ctx, tx.ID)
	if err != nil {
		return fmt.Errorf("failed to reload withdrawal %s: %w", tx.ID, err)
	}

	hash := ltx.Hash
	amountIn := payment.Amount.String()
	update := core.TransactionUpdate{
		StellarTransactionID: &hash,
		From:                 &source,
		AmountIn:             &amountIn,
	}
	advance := current.Status == core.StatusPendingUserTransferStart
	if advance {
		status := core.StatusPendingAnchor
		update.Status = &status
	}
	if err := w.store.Update(ctx, []string{tx.ID}, update); err != nil {
		return fmt.Errorf("failed to update withdrawal %s: %w", tx.ID, err)
	}

	if advance {
		publishStatusChange(ctx, w.events, w.logger, *current, core.StatusPendingAnchor, w.now())
	}
	w.metrics.withdrawalMatched()
	w.logger.Info("matched withdrawal payment",
		zap.String("transaction_id", tx.ID),
		zap.String("hash", ltx.Hash),
		zap.String("from", source),
		zap.String("amount", amountIn),
	)

	return w.saveCursor(ctx, account, ltx.PagingToken)
}

// withMemoType keeps the withdrawals expecting memoType. A withdrawal with no
// memo type accepts any.
func withMemoType(txs []core.Transaction, memoType string) []core.Transaction {
	matched := txs[:0:0]
	for _, tx := range txs {
		if tx.WithdrawMemoType == "" || tx.WithdrawMemoType == memoType {
			matched = append(matched, tx)
		}
	}
	return matched
}

func (w *WithdrawalWatcher) saveCursor(ctx context.Context, account, cursor string) error {
	if w.cursors == nil || cursor == "" {
		return nil
	}
	if err := w.cursors.SaveCursor(ctx, account, cursor); err != nil {
		w.logger.Warn("failed to save stream cursor", zap.String("account", account), zap.Error(err))
	}
	return nil
}
