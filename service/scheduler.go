package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/layer-3/anchor/core"
	"github.com/layer-3/anchor/ports"
)

const (
	TaskPollDepositsReceived = "poll_deposits_received"
	TaskSendDeposits         = "send_deposits"
	TaskPollWithdrawalsSent  = "poll_withdrawals_sent"
	TaskSendWithdrawals      = "send_withdrawals"

	// DefaultConcurrency bounds the hook calls a single task runs at once
	DefaultConcurrency = 16
)

// Scheduler runs the polling reconciliation tasks
type Scheduler struct {
	store   ports.TransactionStore
	hooks   ports.AnchorHooks
	events  ports.EventPublisher
	watcher *WithdrawalWatcher
	metrics *SchedulerMetrics
	logger  *zap.Logger

	concurrency int
	now         func() time.Time
}

// NewScheduler creates a new scheduler. watcher and metrics may be nil.
func NewScheduler(
	store ports.TransactionStore,
	hooks ports.AnchorHooks,
	events ports.EventPublisher,
	watcher *WithdrawalWatcher,
	metrics *SchedulerMetrics,
	logger *zap.Logger,
	concurrency int,
) *Scheduler {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:       store,
		hooks:       hooks,
		events:      events,
		watcher:     watcher,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// PollDepositsReceived advances deposits whose off-ledger funds arrived to pending_anchor
func (s *Scheduler) PollDepositsReceived(ctx context.Context) error {
	return s.advance(ctx, TaskPollDepositsReceived,
		core.TransactionFilter{Kind: core.KindDeposit, Status: core.StatusPendingUserTransferStart},
		s.hooks.IsDepositReceived,
		core.StatusPendingAnchor,
	)
}

// SendDeposits hands every pending_anchor deposit to the payout hook
func (s *Scheduler) SendDeposits(ctx context.Context) error {
	return s.send(ctx, TaskSendDeposits,
		core.TransactionFilter{Kind: core.KindDeposit, Status: core.StatusPendingAnchor},
		s.hooks.SendDeposit,
	)
}

// PollWithdrawalsSent completes withdrawals whose off-ledger leg settled
func (s *Scheduler) PollWithdrawalsSent(ctx context.Context) error {
	return s.advance(ctx, TaskPollWithdrawalsSent,
		core.TransactionFilter{Kind: core.KindWithdrawal, Status: core.StatusPendingExternal},
		s.hooks.IsWithdrawalComplete,
		core.StatusCompleted,
	)
}

// SendWithdrawals hands every pending_anchor withdrawal to the payout hook
func (s *Scheduler) SendWithdrawals(ctx context.Context) error {
	return s.send(ctx, TaskSendWithdrawals,
		core.TransactionFilter{Kind: core.KindWithdrawal, Status: core.StatusPendingAnchor},
		s.hooks.SendWithdrawal,
	)
}

// RunAll runs the four polling tasks concurrently and waits for all of them
func (s *Scheduler) RunAll(ctx context.Context) error {
	tasks := []func(context.Context) error{
		s.PollDepositsReceived,
		s.SendDeposits,
		s.PollWithdrawalsSent,
		s.SendWithdrawals,
	}

	errs := make([]error, len(tasks))
	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			errs[i] = task(ctx)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Run ticks RunAll and the withdrawal watcher's Sync every interval until ctx
// is done or the watcher reports a fatal error.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var fatal <-chan error
	if s.watcher != nil {
		fatal = s.watcher.Errors()
		defer s.watcher.Stop()
	}

	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			return nil
		case err := <-fatal:
			return fmt.Errorf("withdrawal watcher stopped: %w", err)
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.RunAll(ctx); err != nil {
		s.logger.Error("reconciliation tasks failed", zap.Error(err))
	}
	if s.watcher != nil {
		if err := s.watcher.Sync(ctx); err != nil {
			s.logger.Error("failed to sync withdrawal streams", zap.Error(err))
		}
	}
}

func (s *Scheduler) advance(
	ctx context.Context,
	task string,
	filter core.TransactionFilter,
	check func(context.Context, core.Transaction) (bool, error),
	to core.Status,
) (err error) {
	start := time.Now()
	defer func() { s.metrics.observeTask(task, start, err) }()

	txs, err := s.store.Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("%s: failed to find transactions: %w", task, err)
	}
	if len(txs) == 0 {
		return nil
	}

	ready := make([]bool, len(txs))
	s.fanOut(ctx, task, txs, func(ctx context.Context, i int, tx core.Transaction) error {
		ok, err := check(ctx, tx)
		if err != nil {
			return err
		}
		ready[i] = ok
		return nil
	})

	var ids []string
	var moved []core.Transaction
	for i, tx := range txs {
		if !ready[i] {
			continue
		}
		if !core.CanTransition(tx.Status, to) {
			s.logger.Warn("skipping invalid status transition",
				zap.String("task", task),
				zap.String("transaction_id", tx.ID),
				zap.String("from", string(tx.Status)),
				zap.String("to", string(to)),
			)
			continue
		}
		ids = append(ids, tx.ID)
		moved = append(moved, tx)
	}
	if len(ids) == 0 {
		return nil
	}

	update := core.TransactionUpdate{Status: &to}
	if to == core.StatusCompleted {
		completedAt := s.now().UTC()
		update.CompletedAt = &completedAt
	}
	if err := s.store.Update(ctx, ids, update); err != nil {
		return fmt.Errorf("%s: failed to update %d transactions: %w", task, len(ids), err)
	}

	s.metrics.advanced(task, to, len(ids))
	for _, tx := range moved {
		publishStatusChange(ctx, s.events, s.logger, tx, to, s.now())
	}

	return nil
}

func (s *Scheduler) send(
	ctx context.Context,
	task string,
	filter core.TransactionFilter,
	send func(context.Context, core.Transaction) error,
) (err error) {
	start := time.Now()
	defer func() { s.metrics.observeTask(task, start, err) }()

	txs, err := s.store.Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("%s: failed to find transactions: %w", task, err)
	}

	s.fanOut(ctx, task, txs, func(ctx context.Context, _ int, tx core.Transaction) error {
		return send(ctx, tx)
	})

	return nil
}

// fanOut calls fn for every transaction with bounded concurrency. Failures
// are logged and counted; they never stop the other calls.
func (s *Scheduler) fanOut(
	ctx context.Context,
	task string,
	txs []core.Transaction,
	fn func(ctx context.Context, i int, tx core.Transaction) error,
) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, tx := range txs {
		g.Go(func() error {
			if err := fn(gctx, i, tx); err != nil {
				s.metrics.itemError(task)
				s.logger.Error("transaction hook failed",
					zap.String("task", task),
					zap.String("transaction_id", tx.ID),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	_ = g.Wait()
}

func publishStatusChange(ctx context.Context, events ports.EventPublisher, logger *zap.Logger, tx core.Transaction, to core.Status, at time.Time) {
	if events == nil {
		return
	}
	change := core.StatusChange{
		TransactionID: tx.ID,
		Kind:          tx.Kind,
		From:          tx.Status,
		To:            to,
		At:            at.UTC(),
	}
	if err := events.PublishStatusChange(ctx, change); err != nil {
		logger.Warn("failed to publish status change",
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
	}
}
