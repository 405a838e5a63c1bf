package tokenizer

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stellar/go/strkey"

	"github.com/layer-3/anchor/core"
	"github.com/layer-3/anchor/ports"
)

// DefaultTTL is the lifetime of a session token
const DefaultTTL = 24 * time.Hour

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs
type JWTTokenizer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTTokenizer creates a new JWT tokenizer. issuer is the web auth endpoint URL.
func NewJWTTokenizer(secret []byte, issuer string, ttl time.Duration) ports.Tokenizer {
	return newJWTTokenizer(secret, issuer, ttl, time.Now)
}

func newJWTTokenizer(secret []byte, issuer string, ttl time.Duration, now func() time.Time) *JWTTokenizer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &JWTTokenizer{secret: secret, issuer: issuer, ttl: ttl, now: now}
}

// Issue converts a verified challenge to a signed session token
func (j *JWTTokenizer) Issue(challenge *core.Challenge) (string, error) {
	subject := challenge.ClientAccountID
	if challenge.Memo != nil {
		subject = fmt.Sprintf("%s:%d", subject, *challenge.Memo)
	}

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   subject,
			ID:        hex.EncodeToString(challenge.Hash[:]),
			IssuedAt:  jwt.NewNumericDate(challenge.MinTime),
			ExpiresAt: jwt.NewNumericDate(challenge.MinTime.Add(j.ttl)),
		},
		ClientDomain: challenge.ClientDomain,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// Validate checks a session token's signature and claims
func (j *JWTTokenizer) Validate(tokenStr string) (*core.SessionCredential, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}

	return ValidateClaims(claims, j.now())
}

// ValidateClaims checks already-decoded session claims at the given time
func ValidateClaims(claims jwt.MapClaims, now time.Time) (*core.SessionCredential, error) {
	issuer, err := claims.GetIssuer()
	if err != nil || issuer == "" {
		return nil, invalidToken("missing iss")
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, invalidToken("missing sub")
	}
	issuedAt, err := claims.GetIssuedAt()
	if err != nil || issuedAt == nil {
		return nil, invalidToken("missing or malformed iat")
	}
	expiresAt, err := claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return nil, invalidToken("missing or malformed exp")
	}

	if now.Before(issuedAt.Time) || now.After(expiresAt.Time) {
		return nil, invalidToken("token is not valid at this time")
	}

	cred := &core.SessionCredential{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}
	if id, ok := claims["jti"].(string); ok {
		cred.ID = id
	}

	if strings.HasPrefix(subject, "M") {
		account, err := core.BaseAccount(subject)
		if err != nil {
			return nil, invalidToken("malformed muxed account in sub")
		}
		cred.Account = account
		cred.MuxedAccount = subject
	} else {
		parts := strings.Split(subject, ":")
		if len(parts) > 2 {
			return nil, invalidToken("malformed sub")
		}
		if len(parts) == 2 {
			memo, err := strconv.ParseUint(parts[1], 10, 64)
			if err != nil {
				return nil, invalidToken("memo in sub is not a 64-bit unsigned integer")
			}
			cred.Memo = &memo
		}
		if !strkey.IsValidEd25519PublicKey(parts[0]) {
			return nil, invalidToken("account in sub is not a valid public key")
		}
		cred.Account = parts[0]
	}

	if raw, ok := claims["client_domain"]; ok {
		domain, ok := raw.(string)
		if !ok || !core.IsValidHostname(domain) {
			return nil, invalidToken("client_domain is not a valid hostname")
		}
		cred.ClientDomain = domain
	}

	return cred, nil
}

func invalidToken(reason string) error {
	return fmt.Errorf("%w: %s", core.ErrInvalidToken, reason)
}
