package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPendingUserTransferStart, StatusPendingAnchor, true},
		{StatusPendingAnchor, StatusPendingExternal, true},
		{StatusPendingAnchor, StatusPendingStellar, true},
		{StatusPendingExternal, StatusCompleted, true},
		{StatusIncomplete, StatusError, true},
		{StatusPendingTrust, StatusError, true},
		{StatusCompleted, StatusError, false},
		{StatusError, StatusPendingAnchor, false},
		{StatusPendingUserTransferStart, StatusCompleted, false},
		{StatusIncomplete, StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransactionFilterMatches(t *testing.T) {
	tx := Transaction{
		ID:                    "tx-1",
		Kind:                  KindWithdrawal,
		Status:                StatusPendingUserTransferStart,
		WithdrawAnchorAccount: "GANCHOR",
		WithdrawMemo:          "42",
	}

	assert.True(t, TransactionFilter{}.Matches(tx))
	assert.True(t, TransactionFilter{Kind: KindWithdrawal, WithdrawMemo: "42"}.Matches(tx))
	assert.False(t, TransactionFilter{Kind: KindDeposit}.Matches(tx))
	assert.False(t, TransactionFilter{WithdrawAnchorAccount: "GOTHER"}.Matches(tx))
}

func TestTransactionUpdateApply(t *testing.T) {
	status := StatusCompleted
	hash := "abc"
	now := time.Unix(1700000000, 0)

	tx := Transaction{Status: StatusPendingExternal, Message: "keep"}
	TransactionUpdate{Status: &status, StellarTransactionID: &hash, CompletedAt: &now}.Apply(&tx)

	assert.Equal(t, StatusCompleted, tx.Status)
	assert.Equal(t, "abc", tx.StellarTransactionID)
	assert.Equal(t, "keep", tx.Message)
	if assert.NotNil(t, tx.CompletedAt) {
		assert.True(t, tx.CompletedAt.Equal(now))
	}
}

func TestIsValidHostname(t *testing.T) {
	assert.True(t, IsValidHostname("x.com"))
	assert.True(t, IsValidHostname("localhost"))
	assert.True(t, IsValidHostname("localhost:8000"))
	assert.False(t, IsValidHostname(""))
	assert.False(t, IsValidHostname("https://x.com"))
	assert.False(t, IsValidHostname("x.com/path"))
	assert.False(t, IsValidHostname("user@x.com"))
}

func TestAssetString(t *testing.T) {
	assert.Equal(t, "native", NewAsset(NativeAssetCode, "").String())
	assert.True(t, NewAsset(NativeAssetCode, "").IsNative())
	assert.Equal(t, "USD:GISSUER", NewAsset("USD", "GISSUER").String())
	assert.Equal(t, 7, NewAsset("USD", "GISSUER").DecimalPlaces)
}
