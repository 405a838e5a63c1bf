package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the direction of a SEP-24 transaction.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
)

// Status is a SEP-24 transaction status.
type Status string

const (
	StatusIncomplete                   Status = "incomplete"
	StatusPendingUserTransferStart     Status = "pending_user_transfer_start"
	StatusPendingUserTransferComplete  Status = "pending_user_transfer_complete"
	StatusPendingExternal              Status = "pending_external"
	StatusPendingAnchor                Status = "pending_anchor"
	StatusPendingStellar               Status = "pending_stellar"
	StatusPendingTrust                 Status = "pending_trust"
	StatusPendingUser                  Status = "pending_user"
	StatusPendingCustomerInfoUpdate    Status = "pending_customer_info_update"
	StatusPendingTransactionInfoUpdate Status = "pending_transaction_info_update"
	StatusCompleted                    Status = "completed"
	StatusNoMarket                     Status = "no_market"
	StatusTooSmall                     Status = "too_small"
	StatusTooLarge                     Status = "too_large"
	StatusError                        Status = "error"
)

var transitions = map[Status][]Status{
	StatusIncomplete: {
		StatusPendingUserTransferStart,
		StatusPendingAnchor,
	},
	StatusPendingUserTransferStart: {
		StatusPendingUserTransferComplete,
		StatusPendingAnchor,
		StatusPendingExternal,
		StatusNoMarket,
		StatusTooSmall,
		StatusTooLarge,
		StatusPendingCustomerInfoUpdate,
		StatusPendingTransactionInfoUpdate,
	},
	StatusPendingUserTransferComplete: {
		StatusPendingAnchor,
		StatusPendingExternal,
		StatusCompleted,
	},
	StatusPendingAnchor: {
		StatusPendingStellar,
		StatusPendingExternal,
		StatusPendingTrust,
		StatusPendingUser,
		StatusPendingCustomerInfoUpdate,
		StatusPendingTransactionInfoUpdate,
		StatusCompleted,
	},
	StatusPendingStellar: {
		StatusPendingTrust,
		StatusCompleted,
	},
	StatusPendingExternal: {
		StatusPendingStellar,
		StatusCompleted,
	},
	StatusPendingTrust: {
		StatusPendingAnchor,
		StatusPendingStellar,
	},
	StatusPendingUser: {
		StatusPendingAnchor,
	},
	StatusPendingCustomerInfoUpdate: {
		StatusPendingUserTransferStart,
		StatusPendingAnchor,
	},
	StatusPendingTransactionInfoUpdate: {
		StatusPendingUserTransferStart,
		StatusPendingAnchor,
	},
}

// IsTerminal reports whether no further transitions leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether a transaction may move from one status to
// another. error is reachable from every non-terminal status.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusError {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Asset identifies a ledger asset.
type Asset struct {
	Code          string `json:"code"`
	Issuer        string `json:"issuer,omitempty"`
	DecimalPlaces int    `json:"decimal_places"`
}

// NativeAssetCode is the asset code used for the ledger's native asset.
const NativeAssetCode = "native"

// NewAsset returns an asset with the default seven decimal places.
func NewAsset(code, issuer string) Asset {
	return Asset{Code: code, Issuer: issuer, DecimalPlaces: 7}
}

// IsNative reports whether a is the native asset.
func (a Asset) IsNative() bool {
	return a.Code == NativeAssetCode && a.Issuer == ""
}

func (a Asset) String() string {
	if a.Issuer == "" {
		return a.Code
	}
	return fmt.Sprintf("%s:%s", a.Code, a.Issuer)
}

// RefundPayment is a single refund leg.
type RefundPayment struct {
	ID     string `json:"id"`
	IDType string `json:"id_type"`
	Amount string `json:"amount"`
	Fee    string `json:"fee"`
}

// Refunds records refunds issued against a transaction.
type Refunds struct {
	AmountRefunded string          `json:"amount_refunded"`
	AmountFee      string          `json:"amount_fee"`
	Payments       []RefundPayment `json:"payments"`
}

// Transaction is a SEP-24 deposit or withdrawal.
type Transaction struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Status      Status `json:"status"`
	StatusEta   int    `json:"status_eta,omitempty"`
	MoreInfoURL string `json:"more_info_url,omitempty"`

	// StellarAccount and AccountMemo identify the authenticated owner.
	StellarAccount string `json:"-"`
	AccountMemo    string `json:"-"`

	AssetCode   string `json:"-"`
	AssetIssuer string `json:"-"`

	AmountIn       string `json:"amount_in,omitempty"`
	AmountInAsset  string `json:"amount_in_asset,omitempty"`
	AmountOut      string `json:"amount_out,omitempty"`
	AmountOutAsset string `json:"amount_out_asset,omitempty"`
	AmountFee      string `json:"amount_fee,omitempty"`
	AmountFeeAsset string `json:"amount_fee_asset,omitempty"`

	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	ExternalExtra     string `json:"external_extra,omitempty"`
	ExternalExtraText string `json:"external_extra_text,omitempty"`

	DepositMemo           string `json:"deposit_memo,omitempty"`
	DepositMemoType       string `json:"deposit_memo_type,omitempty"`
	WithdrawAnchorAccount string `json:"withdraw_anchor_account,omitempty"`
	WithdrawMemo          string `json:"withdraw_memo,omitempty"`
	WithdrawMemoType      string `json:"withdraw_memo_type,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	StellarTransactionID  string `json:"stellar_transaction_id,omitempty"`
	ExternalTransactionID string `json:"external_transaction_id,omitempty"`

	Message             string          `json:"message,omitempty"`
	Refunds             *Refunds        `json:"refunds,omitempty"`
	RequiredInfoMessage string          `json:"required_info_message,omitempty"`
	RequiredInfoUpdates json.RawMessage `json:"required_info_updates,omitempty"`
	ClaimableBalanceID  string          `json:"claimable_balance_id,omitempty"`
}

// Asset returns the ledger asset the transaction moves.
func (t Transaction) Asset() Asset {
	return NewAsset(t.AssetCode, t.AssetIssuer)
}

// TransactionFilter selects transactions. Empty fields do not constrain.
type TransactionFilter struct {
	ID                    string
	Kind                  Kind
	Status                Status
	StellarAccount        string
	WithdrawAnchorAccount string
	WithdrawMemo          string
}

// Matches reports whether t satisfies every non-empty field of f.
func (f TransactionFilter) Matches(t Transaction) bool {
	switch {
	case f.ID != "" && t.ID != f.ID:
		return false
	case f.Kind != "" && t.Kind != f.Kind:
		return false
	case f.Status != "" && t.Status != f.Status:
		return false
	case f.StellarAccount != "" && t.StellarAccount != f.StellarAccount:
		return false
	case f.WithdrawAnchorAccount != "" && t.WithdrawAnchorAccount != f.WithdrawAnchorAccount:
		return false
	case f.WithdrawMemo != "" && t.WithdrawMemo != f.WithdrawMemo:
		return false
	}
	return true
}

// TransactionUpdate carries the fields to set on a batch of transactions.
// Nil fields are left untouched.
type TransactionUpdate struct {
	Status                *Status
	StellarTransactionID  *string
	ExternalTransactionID *string
	From                  *string
	AmountIn              *string
	CompletedAt           *time.Time
	Message               *string
}

// Apply writes the non-nil fields of u onto t.
func (u TransactionUpdate) Apply(t *Transaction) {
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.StellarTransactionID != nil {
		t.StellarTransactionID = *u.StellarTransactionID
	}
	if u.ExternalTransactionID != nil {
		t.ExternalTransactionID = *u.ExternalTransactionID
	}
	if u.From != nil {
		t.From = *u.From
	}
	if u.AmountIn != nil {
		t.AmountIn = *u.AmountIn
	}
	if u.CompletedAt != nil {
		completedAt := *u.CompletedAt
		t.CompletedAt = &completedAt
	}
	if u.Message != nil {
		t.Message = *u.Message
	}
}

// StatusChange is emitted whenever the reconciliation engine advances a transaction.
type StatusChange struct {
	TransactionID string    `json:"transaction_id"`
	Kind          Kind      `json:"kind"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	At            time.Time `json:"at"`
}
