package core

import "github.com/shopspring/decimal"

// SignerTypeEd25519 is the only signer type that can sign a challenge.
const SignerTypeEd25519 = "ed25519_public_key"

// Signer is a weighted signer registered on a ledger account.
type Signer struct {
	Key    string
	Type   string
	Weight int32
}

// LedgerAccount is the subset of ledger account state needed for challenge verification.
type LedgerAccount struct {
	AccountID     string
	Signers       []Signer
	LowThreshold  uint8
	MedThreshold  uint8
	HighThreshold uint8
}

// LedgerTransaction is a transaction surfaced by a ledger stream for an account.
type LedgerTransaction struct {
	ID            string
	Hash          string
	PagingToken   string
	Successful    bool
	SourceAccount string
	Memo          string
	MemoType      string
	EnvelopeXDR   string
	ResultXDR     string

	// Raw is the ledger client's native representation, passed through to hooks.
	Raw any
}

// Payment is a normalized payment extracted from any payment-bearing operation.
type Payment struct {
	Destination string
	Amount      decimal.Decimal
	AssetCode   string
	AssetIssuer string
}

// ReceivedPayment describes a matched incoming withdrawal payment.
type ReceivedPayment struct {
	Amount            decimal.Decimal
	Source            string
	LedgerTransaction LedgerTransaction
}

// StellarToml holds the fields read from a domain's stellar.toml.
type StellarToml struct {
	SigningKey string
}
