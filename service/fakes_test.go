package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/anchor/core"
	"github.com/layer-3/anchor/ports"
)

type fakeLedger struct {
	mu       sync.Mutex
	accounts map[string]*core.LedgerAccount
	loadErr  error
	streams  map[string][]core.LedgerTransaction
	cursors  map[string][]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		accounts: make(map[string]*core.LedgerAccount),
		streams:  make(map[string][]core.LedgerTransaction),
		cursors:  make(map[string][]string),
	}
}

func (l *fakeLedger) addAccount(a *core.LedgerAccount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[a.AccountID] = a
}

func (l *fakeLedger) addTransaction(account string, tx core.LedgerTransaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streams[account] = append(l.streams[account], tx)
}

func (l *fakeLedger) LoadAccount(ctx context.Context, accountID string) (*core.LedgerAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	a, ok := l.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrAccountNotFound, accountID)
	}
	return a, nil
}

// StreamTransactions delivers every queued transaction after cursor, then
// blocks like a live stream until ctx is done.
func (l *fakeLedger) StreamTransactions(ctx context.Context, accountID, cursor string, handler ports.TransactionHandler) error {
	l.mu.Lock()
	l.cursors[accountID] = append(l.cursors[accountID], cursor)
	txs := append([]core.LedgerTransaction(nil), l.streams[accountID]...)
	l.mu.Unlock()

	for _, tx := range txs {
		if !after(tx.PagingToken, cursor) {
			continue
		}
		if err := handler(ctx, tx); err != nil {
			return err
		}
	}

	<-ctx.Done()
	return ctx.Err()
}

// after reports whether paging token is past cursor. Paging tokens are
// numeric, so "100" comes after "50".
func after(token, cursor string) bool {
	if cursor == "" {
		return true
	}
	t, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return false
	}
	c, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return false
	}
	return t > c
}

func (l *fakeLedger) streamCursors(account string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.cursors[account]...)
}

type fakeToml struct {
	tomls map[string]*core.StellarToml
}

func (f *fakeToml) Fetch(ctx context.Context, domain string) (*core.StellarToml, error) {
	t, ok := f.tomls[domain]
	if !ok {
		return nil, fmt.Errorf("%w: no stellar.toml for %s", core.ErrUnavailable, domain)
	}
	return t, nil
}

type fakeHooks struct {
	mu sync.Mutex

	depositsReceived    map[string]bool
	withdrawalsComplete map[string]bool
	failures            map[string]error

	sentDeposits    []string
	sentWithdrawals []string
	received        []core.ReceivedPayment

	onSendWithdrawal     func(ctx context.Context, tx core.Transaction) error
	onWithdrawalReceived func(ctx context.Context, tx core.Transaction) error

	cursor string
}

func newFakeHooks() *fakeHooks {
	return &fakeHooks{
		depositsReceived:    make(map[string]bool),
		withdrawalsComplete: make(map[string]bool),
		failures:            make(map[string]error),
	}
}

func (h *fakeHooks) IsDepositReceived(ctx context.Context, tx core.Transaction) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failures[tx.ID]; err != nil {
		return false, err
	}
	return h.depositsReceived[tx.ID], nil
}

func (h *fakeHooks) SendDeposit(ctx context.Context, tx core.Transaction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failures[tx.ID]; err != nil {
		return err
	}
	h.sentDeposits = append(h.sentDeposits, tx.ID)
	return nil
}

func (h *fakeHooks) IsWithdrawalComplete(ctx context.Context, tx core.Transaction) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failures[tx.ID]; err != nil {
		return false, err
	}
	return h.withdrawalsComplete[tx.ID], nil
}

func (h *fakeHooks) SendWithdrawal(ctx context.Context, tx core.Transaction) error {
	h.mu.Lock()
	h.sentWithdrawals = append(h.sentWithdrawals, tx.ID)
	fn := h.onSendWithdrawal
	h.mu.Unlock()
	if fn != nil {
		return fn(ctx, tx)
	}
	return nil
}

func (h *fakeHooks) ProcessWithdrawalReceived(ctx context.Context, tx core.Transaction, payment core.ReceivedPayment) error {
	h.mu.Lock()
	h.received = append(h.received, payment)
	fn := h.onWithdrawalReceived
	h.mu.Unlock()
	if fn != nil {
		return fn(ctx, tx)
	}
	return nil
}

func (h *fakeHooks) GetWithdrawAnchorAccountCursor(ctx context.Context, accountID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor, nil
}

func (h *fakeHooks) receivedPayments() []core.ReceivedPayment {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]core.ReceivedPayment(nil), h.received...)
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []core.StatusChange
}

func (p *recordingPublisher) PublishStatusChange(ctx context.Context, change core.StatusChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return nil
}

func (p *recordingPublisher) published() []core.StatusChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.StatusChange(nil), p.changes...)
}

// paymentTransaction builds a successful ledger transaction from client
// paying amount of asset to destination.
func paymentTransaction(t *testing.T, client *keypair.Full, destination string, asset txnbuild.Asset, amount, memo, pagingToken string) core.LedgerTransaction {
	t.Helper()

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: client.Address(), Sequence: 1},
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{Destination: destination, Amount: amount, Asset: asset},
		},
		BaseFee:       txnbuild.MinBaseFee,
		Memo:          txnbuild.MemoText(memo),
		Preconditions: txnbuild.Preconditions{TimeBounds: txnbuild.NewInfiniteTimeout()},
	})
	require.NoError(t, err)
	tx, err = tx.Sign(network.TestNetworkPassphrase, client)
	require.NoError(t, err)
	envelope, err := tx.Base64()
	require.NoError(t, err)
	hash, err := tx.HashHex(network.TestNetworkPassphrase)
	require.NoError(t, err)

	results := []xdr.OperationResult{{
		Code: xdr.OperationResultCodeOpInner,
		Tr: &xdr.OperationResultTr{
			Type:          xdr.OperationTypePayment,
			PaymentResult: &xdr.PaymentResult{Code: xdr.PaymentResultCodePaymentSuccess},
		},
	}}
	result, err := xdr.MarshalBase64(xdr.TransactionResult{
		FeeCharged: 100,
		Result: xdr.TransactionResultResult{
			Code:    xdr.TransactionResultCodeTxSuccess,
			Results: &results,
		},
	})
	require.NoError(t, err)

	return core.LedgerTransaction{
		ID:            hash,
		Hash:          hash,
		PagingToken:   pagingToken,
		Successful:    true,
		SourceAccount: client.Address(),
		Memo:          memo,
		MemoType:      "text",
		EnvelopeXDR:   envelope,
		ResultXDR:     result,
	}
}
