package tokenizer

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/anchor/core"
)

var (
	testSecret = []byte("test-secret")
	testIssuer = "https://testanchor.stellar.org/auth"
	testStart  = time.Unix(1700000000, 0).UTC()
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueAndValidate(t *testing.T) {
	client := keypair.MustRandom()
	memo := uint64(1234)
	tok := newJWTTokenizer(testSecret, testIssuer, 0, fixedClock(testStart.Add(time.Hour)))

	challenge := &core.Challenge{
		ClientAccountID: client.Address(),
		Memo:            &memo,
		ClientDomain:    "wallet.example.com",
		MinTime:         testStart,
		Hash:            [32]byte{1, 2, 3},
	}

	token, err := tok.Issue(challenge)
	require.NoError(t, err)

	cred, err := tok.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, client.Address(), cred.Account)
	assert.Equal(t, client.Address()+":1234", cred.Subject)
	require.NotNil(t, cred.Memo)
	assert.Equal(t, memo, *cred.Memo)
	assert.Empty(t, cred.MuxedAccount)
	assert.Equal(t, testIssuer, cred.Issuer)
	assert.Equal(t, "wallet.example.com", cred.ClientDomain)
	assert.Equal(t, testStart.Unix(), cred.IssuedAt.Unix())
	assert.Equal(t, testStart.Add(DefaultTTL).Unix(), cred.ExpiresAt.Unix())
	assert.Len(t, cred.ID, 64)
}

func TestValidateMuxedSubject(t *testing.T) {
	client := keypair.MustRandom()
	muxed, err := xdr.MuxedAccountFromAccountId(client.Address(), 5)
	require.NoError(t, err)
	tok := newJWTTokenizer(testSecret, testIssuer, time.Hour, fixedClock(testStart))

	token, err := tok.Issue(&core.Challenge{ClientAccountID: muxed.Address(), MinTime: testStart})
	require.NoError(t, err)

	cred, err := tok.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, client.Address(), cred.Account)
	assert.Equal(t, muxed.Address(), cred.MuxedAccount)
	assert.Nil(t, cred.Memo)
}

func TestValidateRejectsExpiredAndFuture(t *testing.T) {
	client := keypair.MustRandom()
	issuer := newJWTTokenizer(testSecret, testIssuer, time.Hour, fixedClock(testStart))

	token, err := issuer.Issue(&core.Challenge{ClientAccountID: client.Address(), MinTime: testStart})
	require.NoError(t, err)

	late := newJWTTokenizer(testSecret, testIssuer, time.Hour, fixedClock(testStart.Add(2*time.Hour)))
	_, err = late.Validate(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
	assert.ErrorIs(t, err, core.ErrAuthRequired)

	early := newJWTTokenizer(testSecret, testIssuer, time.Hour, fixedClock(testStart.Add(-time.Minute)))
	_, err = early.Validate(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	client := keypair.MustRandom()
	token, err := newJWTTokenizer(testSecret, testIssuer, 0, fixedClock(testStart)).
		Issue(&core.Challenge{ClientAccountID: client.Address(), MinTime: testStart})
	require.NoError(t, err)

	_, err = newJWTTokenizer([]byte("other"), testIssuer, 0, fixedClock(testStart)).Validate(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestValidateClaims(t *testing.T) {
	account := keypair.MustRandom().Address()
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss": testIssuer,
			"sub": account,
			"iat": float64(testStart.Unix()),
			"exp": float64(testStart.Add(time.Hour).Unix()),
		}
	}

	tests := []struct {
		name   string
		mutate func(c jwt.MapClaims)
		ok     bool
	}{
		{"valid", func(c jwt.MapClaims) {}, true},
		{"missing iss", func(c jwt.MapClaims) { delete(c, "iss") }, false},
		{"missing sub", func(c jwt.MapClaims) { delete(c, "sub") }, false},
		{"missing iat", func(c jwt.MapClaims) { delete(c, "iat") }, false},
		{"missing exp", func(c jwt.MapClaims) { delete(c, "exp") }, false},
		{"non numeric iat", func(c jwt.MapClaims) { c["iat"] = "yesterday" }, false},
		{"memo", func(c jwt.MapClaims) { c["sub"] = account + ":7" }, true},
		{"two memos", func(c jwt.MapClaims) { c["sub"] = account + ":7:8" }, false},
		{"negative memo", func(c jwt.MapClaims) { c["sub"] = account + ":-1" }, false},
		{"bad account", func(c jwt.MapClaims) { c["sub"] = "GNOTANACCOUNT" }, false},
		{"bad muxed", func(c jwt.MapClaims) { c["sub"] = "MNOTMUXED" }, false},
		{"client domain", func(c jwt.MapClaims) { c["client_domain"] = "wallet.example.com" }, true},
		{"bad client domain", func(c jwt.MapClaims) { c["client_domain"] = "https://wallet.example.com" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			_, err := ValidateClaims(c, testStart.Add(time.Minute))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, core.ErrInvalidToken)
			}
		})
	}
}

func TestValidateClaimsTimeBounds(t *testing.T) {
	account := keypair.MustRandom().Address()
	claims := jwt.MapClaims{
		"iss": testIssuer,
		"sub": account,
		"iat": float64(testStart.Unix()),
		"exp": float64(testStart.Add(time.Hour).Unix()),
	}

	tests := []struct {
		name string
		now  time.Time
		ok   bool
	}{
		{"before iat", testStart.Add(-time.Second), false},
		{"at iat", testStart, true},
		{"at exp", testStart.Add(time.Hour), true},
		{"after exp", testStart.Add(time.Hour + time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateClaims(claims, tt.now)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, core.ErrInvalidToken)
			}
		})
	}
}

func TestValidateAtTokenBounds(t *testing.T) {
	challenge := &core.Challenge{ClientAccountID: keypair.MustRandom().Address(), MinTime: testStart}

	token, err := newJWTTokenizer(testSecret, testIssuer, time.Hour, fixedClock(testStart)).Issue(challenge)
	require.NoError(t, err)

	for _, now := range []time.Time{testStart, testStart.Add(time.Hour)} {
		_, err := newJWTTokenizer(testSecret, testIssuer, time.Hour, fixedClock(now)).Validate(token)
		assert.NoError(t, err, "now=%s", now)
	}
}
