package challenge

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	"github.com/layer-3/anchor/core"
)

const (
	// DefaultTimeout is how long an issued challenge stays valid
	DefaultTimeout = 900 * time.Second

	nonceSize        = 48
	encodedNonceSize = 64

	homeDomainSuffix = " auth"
	webAuthDomainKey = "web_auth_domain"
	clientDomainKey  = "client_domain"
)

// BuildParams describes a challenge to build
type BuildParams struct {
	ServerKey         *keypair.Full
	ClientAccountID   string
	HomeDomain        string
	WebAuthDomain     string
	NetworkPassphrase string
	Timeout           time.Duration

	// ClientDomain and ClientSigningKey are set together or not at all.
	ClientDomain     string
	ClientSigningKey string

	Memo *uint64
	Now  time.Time
}

// ParseParams describes what a challenge must claim to be accepted
type ParseParams struct {
	ServerAccountID   string
	HomeDomains       []string
	WebAuthDomain     string
	NetworkPassphrase string
	Now               time.Time
}

// Build returns a base64 XDR challenge envelope signed by the server key.
func Build(p BuildParams) (string, error) {
	if p.ServerKey == nil {
		return "", fmt.Errorf("%w: server signing key is required", core.ErrInvalidInput)
	}
	if _, err := xdr.AddressToMuxedAccount(p.ClientAccountID); err != nil {
		return "", fmt.Errorf("%w: invalid account %q", core.ErrInvalidInput, p.ClientAccountID)
	}
	if p.Memo != nil && isMuxed(p.ClientAccountID) {
		return "", fmt.Errorf("%w: memo cannot be used with a muxed account", core.ErrInvalidInput)
	}
	if p.ClientDomain != "" && !strkey.IsValidEd25519PublicKey(p.ClientSigningKey) {
		return "", fmt.Errorf("%w: invalid client domain signing key", core.ErrInvalidInput)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	serverAccountID := p.ServerKey.Address()
	ops := []txnbuild.Operation{
		&txnbuild.ManageData{
			SourceAccount: p.ClientAccountID,
			Name:          p.HomeDomain + homeDomainSuffix,
			Value:         []byte(base64.StdEncoding.EncodeToString(nonce)),
		},
		&txnbuild.ManageData{
			SourceAccount: serverAccountID,
			Name:          webAuthDomainKey,
			Value:         []byte(p.WebAuthDomain),
		},
	}
	if p.ClientDomain != "" {
		ops = append(ops, &txnbuild.ManageData{
			SourceAccount: p.ClientSigningKey,
			Name:          clientDomainKey,
			Value:         []byte(p.ClientDomain),
		})
	}

	var memo txnbuild.Memo
	if p.Memo != nil {
		memo = txnbuild.MemoID(*p.Memo)
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: serverAccountID, Sequence: -1},
		IncrementSequenceNum: true,
		Operations:           ops,
		BaseFee:              txnbuild.MinBaseFee,
		Memo:                 memo,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimebounds(now.Unix(), now.Add(timeout).Unix()),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}

	tx, err = tx.Sign(p.NetworkPassphrase, p.ServerKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge: %w", err)
	}

	return tx.Base64()
}

// Parse decodes a challenge envelope and checks it is exactly what Build
// would have produced for one of the accepted home domains. Client
// signatures are not checked here.
func Parse(envelope string, p ParseParams) (*core.Challenge, error) {
	gtx, err := txnbuild.TransactionFromXDR(envelope)
	if err != nil {
		return nil, invalid("could not decode envelope: %v", err)
	}
	tx, ok := gtx.Transaction()
	if !ok {
		return nil, invalid("fee bump transactions are not challenges")
	}

	if tx.SourceAccount().AccountID != p.ServerAccountID {
		return nil, invalid("transaction source account is not the server account")
	}
	if tx.SourceAccount().Sequence != 0 {
		return nil, invalid("transaction sequence number must be 0")
	}

	bounds := tx.Timebounds()
	if bounds.MaxTime == txnbuild.TimeoutInfinite {
		return nil, invalid("transaction requires non-infinite timebounds")
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	if now.Unix() < bounds.MinTime || now.Unix() > bounds.MaxTime {
		return nil, invalid("transaction is not within range of the specified timebounds")
	}

	ops := tx.Operations()
	if len(ops) == 0 {
		return nil, invalid("transaction requires at least one manage_data operation")
	}

	first, ok := ops[0].(*txnbuild.ManageData)
	if !ok {
		return nil, invalid("operation type should be manage_data")
	}
	if first.SourceAccount == "" {
		return nil, invalid("operation should have a source account")
	}
	clientAccountID := first.SourceAccount
	if _, err := xdr.AddressToMuxedAccount(clientAccountID); err != nil {
		return nil, invalid("operation source account is not a valid account")
	}

	homeDomain, ok := matchHomeDomain(first.Name, p.HomeDomains)
	if !ok {
		return nil, invalid("operation key does not match any accepted home domain")
	}
	if len(first.Value) != encodedNonceSize {
		return nil, invalid("random nonce encoded as base64 should be %d bytes long", encodedNonceSize)
	}
	nonce, err := base64.StdEncoding.DecodeString(string(first.Value))
	if err != nil || len(nonce) != nonceSize {
		return nil, invalid("random nonce before encoding as base64 should be %d bytes long", nonceSize)
	}

	var memo *uint64
	switch m := tx.Memo().(type) {
	case nil:
	case txnbuild.MemoID:
		id := uint64(m)
		memo = &id
		if isMuxed(clientAccountID) {
			return nil, invalid("memo cannot be used with a muxed client account")
		}
	default:
		return nil, invalid("memo must be of type id")
	}

	entries := []core.DataEntry{{SourceAccount: first.SourceAccount, Name: first.Name, Value: first.Value}}
	var clientDomain, clientDomainAccountID string
	sawWebAuthDomain := false
	for _, op := range ops[1:] {
		md, ok := op.(*txnbuild.ManageData)
		if !ok {
			return nil, invalid("operation type should be manage_data")
		}
		if md.SourceAccount == "" {
			return nil, invalid("operation should have a source account")
		}

		switch {
		case md.Name == clientDomainKey:
			clientDomain = string(md.Value)
			clientDomainAccountID = md.SourceAccount
		case md.SourceAccount != p.ServerAccountID:
			return nil, invalid("subsequent operations are unrecognized")
		case md.Name == webAuthDomainKey:
			if string(md.Value) != p.WebAuthDomain {
				return nil, invalid("'web_auth_domain' operation value does not match %s", p.WebAuthDomain)
			}
			sawWebAuthDomain = true
		}

		entries = append(entries, core.DataEntry{SourceAccount: md.SourceAccount, Name: md.Name, Value: md.Value})
	}
	if p.WebAuthDomain != "" && !sawWebAuthDomain {
		return nil, invalid("'web_auth_domain' operation is missing")
	}

	hash, err := tx.Hash(p.NetworkPassphrase)
	if err != nil {
		return nil, invalid("could not hash transaction: %v", err)
	}

	signatures := make([]core.Signature, 0, len(tx.Signatures()))
	for _, sig := range tx.Signatures() {
		signatures = append(signatures, core.Signature{Hint: [4]byte(sig.Hint), Signature: sig.Signature})
	}

	challenge := &core.Challenge{
		Envelope:              envelope,
		Hash:                  hash,
		ClientAccountID:       clientAccountID,
		HomeDomain:            homeDomain,
		Memo:                  memo,
		ClientDomain:          clientDomain,
		ClientDomainAccountID: clientDomainAccountID,
		MinTime:               time.Unix(bounds.MinTime, 0).UTC(),
		MaxTime:               time.Unix(bounds.MaxTime, 0).UTC(),
		Operations:            entries,
		Signatures:            signatures,
	}

	if _, ok := signatureIndex(challenge, p.ServerAccountID, nil); !ok {
		return nil, invalid("transaction not signed by server")
	}

	return challenge, nil
}

func matchHomeDomain(key string, homeDomains []string) (string, bool) {
	for _, domain := range homeDomains {
		if key == domain+homeDomainSuffix {
			return domain, true
		}
	}
	return "", false
}

func isMuxed(address string) bool {
	return strings.HasPrefix(address, "M")
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrInvalidChallenge, fmt.Sprintf(format, args...))
}
