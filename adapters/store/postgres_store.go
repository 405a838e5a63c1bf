package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/layer-3/anchor/core"
)

//go:embed schema.sql
var schema string

const transactionsTable = "transactions"

var transactionColumns = []string{
	"id",
	"kind",
	"status",
	"status_eta",
	"more_info_url",
	"stellar_account",
	"account_memo",
	"asset_code",
	"asset_issuer",
	"amount_in",
	"amount_in_asset",
	"amount_out",
	"amount_out_asset",
	"amount_fee",
	"amount_fee_asset",
	"from_address",
	"to_address",
	"external_extra",
	"external_extra_text",
	"deposit_memo",
	"deposit_memo_type",
	"withdraw_anchor_account",
	"withdraw_memo",
	"withdraw_memo_type",
	"started_at",
	"completed_at",
	"stellar_transaction_id",
	"external_transaction_id",
	"message",
	"refunds",
	"required_info_message",
	"required_info_updates",
	"claimable_balance_id",
}

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements the TransactionStore interface for PostgreSQL
type PostgresStore struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPostgresStore creates a store backed by any executor that satisfies
// pgExecutor, usually a *pgxpool.Pool.
func NewPostgresStore(exec pgExecutor) *PostgresStore {
	return &PostgresStore{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Migrate creates the transactions table if it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.exec.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Find returns the transactions matching filter, oldest first
func (s *PostgresStore) Find(ctx context.Context, filter core.TransactionFilter) ([]core.Transaction, error) {
	query := s.builder.Select(transactionColumns...).From(transactionsTable)

	where := squirrel.Eq{}
	if filter.ID != "" {
		where["id"] = filter.ID
	}
	if filter.Kind != "" {
		where["kind"] = string(filter.Kind)
	}
	if filter.Status != "" {
		where["status"] = string(filter.Status)
	}
	if filter.StellarAccount != "" {
		where["stellar_account"] = filter.StellarAccount
	}
	if filter.WithdrawAnchorAccount != "" {
		where["withdraw_anchor_account"] = filter.WithdrawAnchorAccount
	}
	if filter.WithdrawMemo != "" {
		where["withdraw_memo"] = filter.WithdrawMemo
	}
	if len(where) > 0 {
		query = query.Where(where)
	}

	sql, args, err := query.OrderBy("started_at ASC", "id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build find sql: %w", err)
	}

	rows, err := s.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var result []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return result, nil
}

// Get returns a transaction by id
func (s *PostgresStore) Get(ctx context.Context, id string) (*core.Transaction, error) {
	sql, args, err := s.builder.Select(transactionColumns...).
		From(transactionsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build get sql: %w", err)
	}

	tx, err := scanTransaction(s.exec.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Update applies update to every transaction in ids inside one database
// transaction. If any id is missing nothing is written.
func (s *PostgresStore) Update(ctx context.Context, ids []string, update core.TransactionUpdate) error {
	ids = unique(ids)
	if len(ids) == 0 {
		return nil
	}

	values := updateValues(update)
	if len(values) == 0 {
		return nil
	}

	sql, args, err := s.builder.Update(transactionsTable).
		SetMap(values).
		Where(squirrel.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update sql: %w", err)
	}

	dbtx, err := s.exec.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	tag, err := dbtx.Exec(ctx, sql, args...)
	if err != nil {
		_ = dbtx.Rollback(ctx)
		return fmt.Errorf("failed to update transactions: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		_ = dbtx.Rollback(ctx)
		return fmt.Errorf("%w: %d of %d transactions", core.ErrNotFound, len(ids)-int(tag.RowsAffected()), len(ids))
	}

	if err := dbtx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit update: %w", err)
	}
	return nil
}

// Insert stores a new transaction, assigning an id if it has none
func (s *PostgresStore) Insert(ctx context.Context, tx *core.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.StartedAt == nil {
		now := time.Now().UTC()
		tx.StartedAt = &now
	}

	var refunds []byte
	if tx.Refunds != nil {
		var err error
		if refunds, err = json.Marshal(tx.Refunds); err != nil {
			return fmt.Errorf("failed to marshal refunds: %w", err)
		}
	}
	var requiredInfoUpdates []byte
	if len(tx.RequiredInfoUpdates) > 0 {
		requiredInfoUpdates = tx.RequiredInfoUpdates
	}

	sql, args, err := s.builder.Insert(transactionsTable).
		Columns(transactionColumns...).
		Values(
			tx.ID,
			string(tx.Kind),
			string(tx.Status),
			tx.StatusEta,
			tx.MoreInfoURL,
			tx.StellarAccount,
			tx.AccountMemo,
			tx.AssetCode,
			tx.AssetIssuer,
			tx.AmountIn,
			tx.AmountInAsset,
			tx.AmountOut,
			tx.AmountOutAsset,
			tx.AmountFee,
			tx.AmountFeeAsset,
			tx.From,
			tx.To,
			tx.ExternalExtra,
			tx.ExternalExtraText,
			tx.DepositMemo,
			tx.DepositMemoType,
			tx.WithdrawAnchorAccount,
			tx.WithdrawMemo,
			tx.WithdrawMemoType,
			tx.StartedAt,
			tx.CompletedAt,
			tx.StellarTransactionID,
			tx.ExternalTransactionID,
			tx.Message,
			refunds,
			tx.RequiredInfoMessage,
			requiredInfoUpdates,
			tx.ClaimableBalanceID,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert sql: %w", err)
	}

	if _, err := s.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func scanTransaction(row pgx.Row) (*core.Transaction, error) {
	var (
		tx                  core.Transaction
		kind, status        string
		refunds             []byte
		requiredInfoUpdates []byte
	)

	err := row.Scan(
		&tx.ID,
		&kind,
		&status,
		&tx.StatusEta,
		&tx.MoreInfoURL,
		&tx.StellarAccount,
		&tx.AccountMemo,
		&tx.AssetCode,
		&tx.AssetIssuer,
		&tx.AmountIn,
		&tx.AmountInAsset,
		&tx.AmountOut,
		&tx.AmountOutAsset,
		&tx.AmountFee,
		&tx.AmountFeeAsset,
		&tx.From,
		&tx.To,
		&tx.ExternalExtra,
		&tx.ExternalExtraText,
		&tx.DepositMemo,
		&tx.DepositMemoType,
		&tx.WithdrawAnchorAccount,
		&tx.WithdrawMemo,
		&tx.WithdrawMemoType,
		&tx.StartedAt,
		&tx.CompletedAt,
		&tx.StellarTransactionID,
		&tx.ExternalTransactionID,
		&tx.Message,
		&refunds,
		&tx.RequiredInfoMessage,
		&requiredInfoUpdates,
		&tx.ClaimableBalanceID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Kind = core.Kind(kind)
	tx.Status = core.Status(status)
	if len(refunds) > 0 {
		tx.Refunds = &core.Refunds{}
		if err := json.Unmarshal(refunds, tx.Refunds); err != nil {
			return nil, fmt.Errorf("failed to unmarshal refunds: %w", err)
		}
	}
	if len(requiredInfoUpdates) > 0 {
		tx.RequiredInfoUpdates = requiredInfoUpdates
	}

	return &tx, nil
}

func updateValues(u core.TransactionUpdate) map[string]any {
	values := make(map[string]any)
	if u.Status != nil {
		values["status"] = string(*u.Status)
	}
	if u.StellarTransactionID != nil {
		values["stellar_transaction_id"] = *u.StellarTransactionID
	}
	if u.ExternalTransactionID != nil {
		values["external_transaction_id"] = *u.ExternalTransactionID
	}
	if u.From != nil {
		values["from_address"] = *u.From
	}
	if u.AmountIn != nil {
		values["amount_in"] = *u.AmountIn
	}
	if u.CompletedAt != nil {
		values["completed_at"] = *u.CompletedAt
	}
	if u.Message != nil {
		values["message"] = *u.Message
	}
	return values
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
