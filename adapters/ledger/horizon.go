package ledger

import (
	"context"
	"fmt"

	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"

	"github.com/layer-3/anchor/core"
	"github.com/layer-3/anchor/ports"
)

// HorizonClient implements the LedgerClient interface on top of a Horizon server
type HorizonClient struct {
	client horizonclient.ClientInterface
}

// NewHorizonClient creates a new ledger client
func NewHorizonClient(client horizonclient.ClientInterface) *HorizonClient {
	return &HorizonClient{client: client}
}

// LoadAccount fetches an account's signers and thresholds
func (h *HorizonClient) LoadAccount(ctx context.Context, accountID string) (*core.LedgerAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	account, err := h.client.AccountDetail(horizonclient.AccountRequest{AccountID: accountID})
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", core.ErrAccountNotFound, accountID)
		}
		return nil, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}

	signers := make([]core.Signer, 0, len(account.Signers))
	for _, s := range account.Signers {
		signers = append(signers, core.Signer{Key: s.Key, Type: s.Type, Weight: s.Weight})
	}

	return &core.LedgerAccount{
		AccountID:     account.AccountID,
		Signers:       signers,
		LowThreshold:  account.Thresholds.LowThreshold,
		MedThreshold:  account.Thresholds.MedThreshold,
		HighThreshold: account.Thresholds.HighThreshold,
	}, nil
}

// streamStart is the paging token before the first ledger entry. Horizon
// treats a missing cursor as "now".
const streamStart = "0"

// StreamTransactions follows the transactions of an account starting after
// cursor. An empty cursor streams from the start of the account's history
// rather than from now. It returns when ctx is cancelled, the stream fails or the handler
// returns an error.
func (h *HorizonClient) StreamTransactions(ctx context.Context, accountID, cursor string, handler ports.TransactionHandler) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cursor == "" {
		cursor = streamStart
	}

	var handlerErr error
	request := horizonclient.TransactionRequest{ForAccount: accountID, Cursor: cursor}
	err := h.client.StreamTransactions(streamCtx, request, func(tx hProtocol.Transaction) {
		if handlerErr != nil {
			return
		}
		if err := handler(streamCtx, toLedgerTransaction(tx)); err != nil {
			handlerErr = err
			cancel()
		}
	})

	if handlerErr != nil {
		return handlerErr
	}
	if err != nil {
		return fmt.Errorf("failed to stream transactions for %s: %w", accountID, err)
	}
	return ctx.Err()
}

func toLedgerTransaction(tx hProtocol.Transaction) core.LedgerTransaction {
	return core.LedgerTransaction{
		ID:            tx.ID,
		Hash:          tx.Hash,
		PagingToken:   tx.PT,
		Successful:    tx.Successful,
		SourceAccount: tx.Account,
		Memo:          tx.Memo,
		MemoType:      tx.MemoType,
		EnvelopeXDR:   tx.EnvelopeXdr,
		ResultXDR:     tx.ResultXdr,
		Raw:           tx,
	}
}
