package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	"github.com/layer-3/anchor/core"
)

// stroopExp scales raw ledger amounts to units.
const stroopExp = -7

// ExtractPayment normalizes a payment-bearing operation. Strict-send path
// payments take their delivered amount from the operation result.
func ExtractPayment(op txnbuild.Operation, res xdr.OperationResult) (core.Payment, bool) {
	switch o := op.(type) {
	case *txnbuild.Payment:
		amount, err := decimal.NewFromString(o.Amount)
		if err != nil {
			return core.Payment{}, false
		}
		return newPayment(o.Destination, amount, o.Asset), true

	case *txnbuild.PathPaymentStrictReceive:
		amount, err := decimal.NewFromString(o.DestAmount)
		if err != nil {
			return core.Payment{}, false
		}
		return newPayment(o.Destination, amount, o.DestAsset), true

	case *txnbuild.PathPaymentStrictSend:
		tr, ok := res.GetTr()
		if !ok {
			return core.Payment{}, false
		}
		result, ok := tr.GetPathPaymentStrictSendResult()
		if !ok {
			return core.Payment{}, false
		}
		success, ok := result.GetSuccess()
		if !ok {
			return core.Payment{}, false
		}
		return newPayment(o.Destination, decimal.New(int64(success.Last.Amount), stroopExp), o.DestAsset), true
	}

	return core.Payment{}, false
}

func newPayment(destination string, amount decimal.Decimal, asset txnbuild.Asset) core.Payment {
	p := core.Payment{Destination: destination, Amount: amount}
	if asset == nil || asset.IsNative() {
		p.AssetCode = core.NativeAssetCode
		return p
	}
	p.AssetCode = asset.GetCode()
	p.AssetIssuer = asset.GetIssuer()
	return p
}

// MatchWithdrawal finds the first operation of a ledger transaction that pays
// the withdrawal's anchor account in the withdrawal's asset. It returns the
// payment and its source account.
func MatchWithdrawal(ltx core.LedgerTransaction, tx core.Transaction) (core.Payment, string, bool, error) {
	gtx, err := txnbuild.TransactionFromXDR(ltx.EnvelopeXDR)
	if err != nil {
		return core.Payment{}, "", false, fmt.Errorf("failed to decode envelope of %s: %w", ltx.Hash, err)
	}

	var inner *txnbuild.Transaction
	if t, ok := gtx.Transaction(); ok {
		inner = t
	} else if fb, ok := gtx.FeeBump(); ok {
		inner = fb.InnerTransaction()
	} else {
		return core.Payment{}, "", false, fmt.Errorf("unsupported envelope type for %s", ltx.Hash)
	}

	var result xdr.TransactionResult
	if err := xdr.SafeUnmarshalBase64(ltx.ResultXDR, &result); err != nil {
		return core.Payment{}, "", false, fmt.Errorf("failed to decode result of %s: %w", ltx.Hash, err)
	}
	results, ok := result.OperationResults()
	if !ok {
		return core.Payment{}, "", false, nil
	}

	ops := inner.Operations()
	if len(ops) != len(results) {
		return core.Payment{}, "", false, fmt.Errorf("transaction %s has %d operations but %d results", ltx.Hash, len(ops), len(results))
	}

	asset := tx.Asset()
	for i, op := range ops {
		payment, ok := ExtractPayment(op, results[i])
		if !ok {
			continue
		}
		destination, err := core.BaseAccount(payment.Destination)
		if err != nil || destination != tx.WithdrawAnchorAccount {
			continue
		}
		if payment.AssetCode != asset.Code || payment.AssetIssuer != asset.Issuer {
			continue
		}

		source := op.GetSourceAccount()
		if source == "" {
			source = inner.SourceAccount().AccountID
		}
		return payment, source, true, nil
	}

	return core.Payment{}, "", false, nil
}
