package core

import "time"

// ChallengeRequest is a caller's request for a web authentication challenge.
type ChallengeRequest struct {
	Account      string `form:"account" json:"account" binding:"required"`
	HomeDomain   string `form:"home_domain" json:"home_domain"`
	Memo         string `form:"memo" json:"memo"`
	ClientDomain string `form:"client_domain" json:"client_domain"`
}

// ChallengeResponse carries the server-signed challenge envelope.
type ChallengeResponse struct {
	Transaction       string `json:"transaction"`
	NetworkPassphrase string `json:"network_passphrase"`
}

// Signature is a decorated ledger signature.
type Signature struct {
	Hint      [4]byte
	Signature []byte
}

// DataEntry is a manage-data operation carried by a challenge.
type DataEntry struct {
	SourceAccount string
	Name          string
	Value         []byte
}

// Challenge is a parsed challenge envelope. It is never persisted: everything
// needed to redeem it travels inside the envelope bytes and signatures.
type Challenge struct {
	Envelope        string
	Hash            [32]byte
	ClientAccountID string
	HomeDomain      string
	Memo            *uint64

	// ClientDomain is empty when the challenge carries no client_domain operation.
	ClientDomain          string
	ClientDomainAccountID string

	MinTime    time.Time
	MaxTime    time.Time
	Operations []DataEntry
	Signatures []Signature
}

// SessionCredential is a validated session token.
type SessionCredential struct {
	Issuer  string
	Subject string
	ID      string

	// Account is always the base G... address, de-muxed if the subject was muxed.
	Account string

	// MuxedAccount is set only when the subject was an M... address.
	MuxedAccount string
	Memo         *uint64

	IssuedAt     time.Time
	ExpiresAt    time.Time
	ClientDomain string
}
