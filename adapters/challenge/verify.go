package challenge

import (
	"fmt"

	"github.com/stellar/go/keypair"

	"github.com/layer-3/anchor/core"
)

// VerifyThreshold checks the client signatures on a parsed challenge against
// the signers of an existing ledger account. The combined weight of distinct
// client signers must reach the account's medium threshold.
func VerifyThreshold(ch *core.Challenge, account *core.LedgerAccount, serverAccountID string) error {
	used := make(map[int]bool, len(ch.Signatures))

	serverIdx, ok := signatureIndex(ch, serverAccountID, used)
	if !ok {
		return invalid("transaction not signed by server")
	}
	used[serverIdx] = true

	if ch.ClientDomainAccountID != "" {
		idx, ok := signatureIndex(ch, ch.ClientDomainAccountID, used)
		if !ok {
			return invalid("transaction not signed by client domain signing key")
		}
		used[idx] = true
	}

	seen := make(map[string]bool, len(account.Signers))
	signers, weight := 0, int32(0)
	for _, signer := range account.Signers {
		if signer.Type != core.SignerTypeEd25519 || signer.Key == serverAccountID || seen[signer.Key] {
			continue
		}
		seen[signer.Key] = true

		idx, ok := signatureIndex(ch, signer.Key, used)
		if !ok {
			continue
		}
		used[idx] = true
		signers++
		weight += signer.Weight
	}

	if len(used) != len(ch.Signatures) {
		return invalid("transaction has unrecognized signatures")
	}
	if signers == 0 {
		return fmt.Errorf("%w: no account signers signed the challenge", core.ErrThresholdNotMet)
	}
	if weight < int32(account.MedThreshold) {
		return fmt.Errorf("%w: signers with weight %d do not meet threshold %d",
			core.ErrThresholdNotMet, weight, account.MedThreshold)
	}
	return nil
}

// VerifyMasterKey checks a challenge for an account that does not exist on
// the ledger. Only the account's master key may sign, alongside the server
// and the client domain key when present.
func VerifyMasterKey(ch *core.Challenge, serverAccountID string) error {
	want := 2
	if ch.ClientDomainAccountID != "" {
		want = 3
	}
	if len(ch.Signatures) != want {
		return invalid("there is more than one client signer on a challenge for an account that does not exist")
	}

	master, err := core.BaseAccount(ch.ClientAccountID)
	if err != nil {
		return invalid("invalid client account: %v", err)
	}

	signers := []string{serverAccountID, master}
	if ch.ClientDomainAccountID != "" {
		signers = append(signers, ch.ClientDomainAccountID)
	}

	distinct := make(map[string]bool, len(signers))
	for _, s := range signers {
		distinct[s] = true
	}
	if len(distinct) != len(signers) {
		return invalid("server, client and client domain signers must be distinct")
	}

	used := make(map[int]bool, want)
	for _, signer := range signers {
		idx, ok := signatureIndex(ch, signer, used)
		if !ok {
			return invalid("transaction not signed by %s", signer)
		}
		used[idx] = true
	}
	return nil
}

// signatureIndex finds an unused signature on ch produced by signer.
func signatureIndex(ch *core.Challenge, signer string, used map[int]bool) (int, bool) {
	kp, err := keypair.ParseAddress(signer)
	if err != nil {
		return -1, false
	}
	hint := kp.Hint()
	for i, sig := range ch.Signatures {
		if used[i] || sig.Hint != hint {
			continue
		}
		if kp.Verify(ch.Hash[:], sig.Signature) == nil {
			return i, true
		}
	}
	return -1, false
}
