package service

import (
	"context"
	"testing"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/layer-3/anchor/adapters/challenge"
	"github.com/layer-3/anchor/adapters/tokenizer"
	"github.com/layer-3/anchor/core"
)

const (
	testHomeDomain    = "x.com"
	testWebAuthDomain = "auth.x.com"
)

type authFixture struct {
	server  *keypair.Full
	ledger  *fakeLedger
	toml    *fakeToml
	service *AuthService
}

func newAuthFixture(t *testing.T, mutate ...func(*AuthConfig)) *authFixture {
	t.Helper()

	server := keypair.MustRandom()
	cfg := AuthConfig{
		NetworkPassphrase: network.TestNetworkPassphrase,
		WebAuthDomain:     testWebAuthDomain,
		HomeDomains:       []string{testHomeDomain, "y.com"},
		SigningKey:        server,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	ledger := newFakeLedger()
	toml := &fakeToml{tomls: map[string]*core.StellarToml{}}
	tok := tokenizer.NewJWTTokenizer([]byte("secret"), "https://"+testWebAuthDomain+"/auth", 0)

	return &authFixture{
		server:  server,
		ledger:  ledger,
		toml:    toml,
		service: NewAuthService(cfg, ledger, toml, tok, zaptest.NewLogger(t)),
	}
}

func (f *authFixture) parse(t *testing.T, envelope string) *core.Challenge {
	t.Helper()
	ch, err := challenge.Parse(envelope, challenge.ParseParams{
		ServerAccountID:   f.server.Address(),
		HomeDomains:       []string{testHomeDomain, "y.com"},
		WebAuthDomain:     testWebAuthDomain,
		NetworkPassphrase: network.TestNetworkPassphrase,
	})
	require.NoError(t, err)
	return ch
}

func signEnvelope(t *testing.T, envelope string, signers ...*keypair.Full) string {
	t.Helper()
	gtx, err := txnbuild.TransactionFromXDR(envelope)
	require.NoError(t, err)
	tx, ok := gtx.Transaction()
	require.True(t, ok)
	tx, err = tx.Sign(network.TestNetworkPassphrase, signers...)
	require.NoError(t, err)
	out, err := tx.Base64()
	require.NoError(t, err)
	return out
}

func TestIssueChallenge(t *testing.T) {
	f := newAuthFixture(t)
	client := keypair.MustRandom()

	resp, err := f.service.IssueChallenge(context.Background(), core.ChallengeRequest{Account: client.Address()})
	require.NoError(t, err)
	assert.Equal(t, network.TestNetworkPassphrase, resp.NetworkPassphrase)

	ch := f.parse(t, resp.Transaction)
	assert.Equal(t, client.Address(), ch.ClientAccountID)
	assert.Equal(t, testHomeDomain, ch.HomeDomain, "first home domain is the default")
	assert.Empty(t, ch.ClientDomain)
	assert.Nil(t, ch.Memo)
}

func TestIssueChallengeRejectsInvalidRequests(t *testing.T) {
	client := keypair.MustRandom().Address()
	muxed, err := xdr.MuxedAccountFromAccountId(client, 3)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  core.ChallengeRequest
		cfg  func(*AuthConfig)
	}{
		{"bad account", core.ChallengeRequest{Account: "GBAD"}, nil},
		{"memo with muxed account", core.ChallengeRequest{Account: muxed.Address(), Memo: "1"}, nil},
		{"non numeric memo", core.ChallengeRequest{Account: client, Memo: "abc"}, nil},
		{"unknown home domain", core.ChallengeRequest{Account: client, HomeDomain: "z.com"}, nil},
		{"client domain not a hostname", core.ChallengeRequest{Account: client, ClientDomain: "https://wallet.com"}, nil},
		{"client domain unreachable", core.ChallengeRequest{Account: client, ClientDomain: "wallet.com"}, nil},
		{"client domain required", core.ChallengeRequest{Account: client}, func(c *AuthConfig) { c.ClientDomainRequired = true }},
		{"client domain denied", core.ChallengeRequest{Account: client, ClientDomain: "wallet.com"}, func(c *AuthConfig) {
			c.ClientDomainsAllowed = []string{"wallet.com"}
			c.ClientDomainsDenied = []string{"wallet.com"}
		}},
		{"client domain not allowed", core.ChallengeRequest{Account: client, ClientDomain: "wallet.com"}, func(c *AuthConfig) {
			c.ClientDomainsAllowed = []string{"other.com"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f *authFixture
			if tt.cfg != nil {
				f = newAuthFixture(t, tt.cfg)
			} else {
				f = newAuthFixture(t)
			}
			_, err := f.service.IssueChallenge(context.Background(), tt.req)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}
}

func TestIssueChallengeClientDomain(t *testing.T) {
	f := newAuthFixture(t)
	client := keypair.MustRandom()
	walletKey := keypair.MustRandom()
	f.toml.tomls["wallet.com"] = &core.StellarToml{SigningKey: walletKey.Address()}
	f.toml.tomls["nokey.com"] = &core.StellarToml{}
	f.toml.tomls["badkey.com"] = &core.StellarToml{SigningKey: "GNOTAKEY"}

	resp, err := f.service.IssueChallenge(context.Background(), core.ChallengeRequest{
		Account:      client.Address(),
		HomeDomain:   "y.com",
		ClientDomain: "wallet.com",
		Memo:         "99",
	})
	require.NoError(t, err)

	ch := f.parse(t, resp.Transaction)
	assert.Equal(t, "y.com", ch.HomeDomain)
	assert.Equal(t, "wallet.com", ch.ClientDomain)
	assert.Equal(t, walletKey.Address(), ch.ClientDomainAccountID)
	require.NotNil(t, ch.Memo)
	assert.Equal(t, uint64(99), *ch.Memo)

	for _, domain := range []string{"nokey.com", "badkey.com"} {
		_, err := f.service.IssueChallenge(context.Background(), core.ChallengeRequest{Account: client.Address(), ClientDomain: domain})
		assert.ErrorIs(t, err, core.ErrInvalidInput, domain)
	}

	_, err = f.service.IssueChallenge(context.Background(), core.ChallengeRequest{Account: client.Address(), ClientDomain: "missing.com"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.ErrorIs(t, err, core.ErrUnavailable)
}

func TestRedeemChallengeIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)
	client := keypair.MustRandom()

	resp, err := f.service.IssueChallenge(context.Background(), core.ChallengeRequest{Account: client.Address()})
	require.NoError(t, err)
	signed := signEnvelope(t, resp.Transaction, client)

	first, err := f.service.RedeemChallenge(context.Background(), signed)
	require.NoError(t, err)
	second, err := f.service.RedeemChallenge(context.Background(), signed)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRedeemChallengeThreshold(t *testing.T) {
	f := newAuthFixture(t)
	client := keypair.MustRandom()
	cosigner := keypair.MustRandom()
	heavy := keypair.MustRandom()

	f.ledger.addAccount(&core.LedgerAccount{
		AccountID: client.Address(),
		Signers: []core.Signer{
			{Key: client.Address(), Type: core.SignerTypeEd25519, Weight: 1},
			{Key: cosigner.Address(), Type: core.SignerTypeEd25519, Weight: 1},
			{Key: heavy.Address(), Type: core.SignerTypeEd25519, Weight: 2},
		},
		MedThreshold: 2,
	})

	resp, err := f.service.IssueChallenge(context.Background(), core.ChallengeRequest{Account: client.Address()})
	require.NoError(t, err)

	_, err = f.service.RedeemChallenge(context.Background(), signEnvelope(t, resp.Transaction, client))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.ErrorIs(t, err, core.ErrThresholdNotMet)

	_, err = f.service.RedeemChallenge(context.Background(), signEnvelope(t, resp.Transaction, client, cosigner))
	assert.NoError(t, err)

	_, err = f.service.RedeemChallenge(context.Background(), signEnvelope(t, resp.Transaction, heavy))
	assert.NoError(t, err)
}

func TestRedeemChallengeNonExistentAccount(t *testing.T) {
	f := newAuthFixture(t)
	client := keypair.MustRandom()
	walletKey := keypair.MustRandom()
	f.toml.tomls["wallet.com"] = &core.StellarToml{SigningKey: walletKey.Address()}

	plain, err := f.service.IssueChallenge(context.Background(), core.ChallengeRequest{Account: client.Address()})
	require.NoError(t, err)

	_, err = f.service.RedeemChallenge(context.Background(), signEnvelope(t, plain.Transaction, client))
	assert.NoError(t, err)

	_, err = f.service.RedeemChallenge(context.Background(), signEnvelope(t, plain.Transaction, client, keypair.MustRandom()))
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	withDomain, err := f.service.IssueChallenge(context.Background(), core.ChallengeRequest{Account: client.Address(), ClientDomain: "wallet.com"})
	require.NoError(t, err)

	_, err = f.service.RedeemChallenge(context.Background(), signEnvelope(t, withDomain.Transaction, client, walletKey))
	assert.NoError(t, err)

	_, err = f.service.RedeemChallenge(context.Background(), signEnvelope(t, withDomain.Transaction, client))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestRedeemChallengeRejectsTampering(t *testing.T) {
	f := newAuthFixture(t)
	other := newAuthFixture(t)
	client := keypair.MustRandom()

	resp, err := other.service.IssueChallenge(context.Background(), core.ChallengeRequest{Account: client.Address()})
	require.NoError(t, err)

	_, err = f.service.RedeemChallenge(context.Background(), signEnvelope(t, resp.Transaction, client))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.ErrorIs(t, err, core.ErrInvalidChallenge)
}

func TestRedeemChallengeExpired(t *testing.T) {
	f := newAuthFixture(t)
	client := keypair.MustRandom()

	f.service.now = func() time.Time { return time.Now().Add(-time.Hour) }
	resp, err := f.service.IssueChallenge(context.Background(), core.ChallengeRequest{Account: client.Address()})
	require.NoError(t, err)

	f.service.now = time.Now
	_, err = f.service.RedeemChallenge(context.Background(), signEnvelope(t, resp.Transaction, client))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestValidateToken(t *testing.T) {
	f := newAuthFixture(t)
	client := keypair.MustRandom()

	resp, err := f.service.IssueChallenge(context.Background(), core.ChallengeRequest{Account: client.Address(), Memo: "5"})
	require.NoError(t, err)
	token, err := f.service.RedeemChallenge(context.Background(), signEnvelope(t, resp.Transaction, client))
	require.NoError(t, err)

	cred, err := f.service.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, client.Address(), cred.Account)
	assert.Equal(t, client.Address()+":5", cred.Subject)

	_, err = f.service.ValidateToken(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrAuthRequired)

	_, err = f.service.ValidateToken(context.Background(), token+"x")
	assert.ErrorIs(t, err, core.ErrAuthRequired)
}
