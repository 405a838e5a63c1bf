package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
	"go.uber.org/zap"

	"github.com/layer-3/anchor/adapters/challenge"
	"github.com/layer-3/anchor/core"
	"github.com/layer-3/anchor/ports"
)

// AuthConfig configures web authentication
type AuthConfig struct {
	NetworkPassphrase string
	WebAuthDomain     string

	// HomeDomains are the accepted home domains. The first one is used when
	// a request does not name one.
	HomeDomains []string
	SigningKey  *keypair.Full

	ChallengeTimeout time.Duration

	ClientDomainRequired bool
	ClientDomainsAllowed []string
	ClientDomainsDenied  []string
}

// AuthService handles authentication business logic
type AuthService struct {
	cfg       AuthConfig
	ledger    ports.LedgerClient
	toml      ports.TomlFetcher
	tokenizer ports.Tokenizer
	logger    *zap.Logger

	now func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	cfg AuthConfig,
	ledger ports.LedgerClient,
	toml ports.TomlFetcher,
	tokenizer ports.Tokenizer,
	logger *zap.Logger,
) *AuthService {
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = challenge.DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		cfg:       cfg,
		ledger:    ledger,
		toml:      toml,
		tokenizer: tokenizer,
		logger:    logger,
		now:       time.Now,
	}
}

// IssueChallenge builds a signed challenge for the requesting account
func (s *AuthService) IssueChallenge(ctx context.Context, req core.ChallengeRequest) (*core.ChallengeResponse, error) {
	if _, err := core.BaseAccount(req.Account); err != nil {
		return nil, fmt.Errorf("%w: 'account' is not a valid account", core.ErrInvalidInput)
	}

	var memo *uint64
	if req.Memo != "" {
		id, err := strconv.ParseUint(req.Memo, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid 'memo' value, expected a 64-bit integer", core.ErrInvalidInput)
		}
		if req.Account[0] == 'M' {
			return nil, fmt.Errorf("%w: 'memo' cannot be passed with a muxed client account", core.ErrInvalidInput)
		}
		memo = &id
	}

	homeDomain := req.HomeDomain
	if homeDomain == "" && len(s.cfg.HomeDomains) > 0 {
		homeDomain = s.cfg.HomeDomains[0]
	}
	if len(s.cfg.HomeDomains) > 0 && !slices.Contains(s.cfg.HomeDomains, homeDomain) {
		return nil, fmt.Errorf("%w: invalid 'home_domain' value, accepted values: %v", core.ErrInvalidInput, s.cfg.HomeDomains)
	}
	if !core.IsValidHostname(homeDomain) {
		return nil, fmt.Errorf("%w: 'home_domain' must be a valid hostname", core.ErrInvalidInput)
	}

	var clientSigningKey string
	if req.ClientDomain != "" {
		key, err := s.clientSigningKey(ctx, req.ClientDomain)
		if err != nil {
			return nil, err
		}
		clientSigningKey = key
	} else if s.cfg.ClientDomainRequired {
		return nil, fmt.Errorf("%w: 'client_domain' is required", core.ErrInvalidInput)
	}

	envelope, err := challenge.Build(challenge.BuildParams{
		ServerKey:         s.cfg.SigningKey,
		ClientAccountID:   req.Account,
		HomeDomain:        homeDomain,
		WebAuthDomain:     s.cfg.WebAuthDomain,
		NetworkPassphrase: s.cfg.NetworkPassphrase,
		Timeout:           s.cfg.ChallengeTimeout,
		ClientDomain:      req.ClientDomain,
		ClientSigningKey:  clientSigningKey,
		Memo:              memo,
		Now:               s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build challenge: %w", err)
	}

	return &core.ChallengeResponse{
		Transaction:       envelope,
		NetworkPassphrase: s.cfg.NetworkPassphrase,
	}, nil
}

func (s *AuthService) clientSigningKey(ctx context.Context, domain string) (string, error) {
	if !core.IsValidHostname(domain) {
		return "", fmt.Errorf("%w: 'client_domain' must be a valid hostname", core.ErrInvalidInput)
	}
	if slices.Contains(s.cfg.ClientDomainsDenied, domain) {
		return "", fmt.Errorf("%w: 'client_domain' value is denied", core.ErrInvalidInput)
	}
	if len(s.cfg.ClientDomainsAllowed) > 0 && !slices.Contains(s.cfg.ClientDomainsAllowed, domain) {
		return "", fmt.Errorf("%w: 'client_domain' value is not allowed", core.ErrInvalidInput)
	}

	toml, err := s.toml.Fetch(ctx, domain)
	if err != nil {
		s.logger.Warn("failed to fetch client domain stellar.toml", zap.String("client_domain", domain), zap.Error(err))
		return "", fmt.Errorf("%w: unable to fetch 'client_domain' SIGNING_KEY: %w", core.ErrInvalidInput, err)
	}
	if toml.SigningKey == "" {
		return "", fmt.Errorf("%w: SIGNING_KEY not present on 'client_domain' TOML", core.ErrInvalidInput)
	}
	if !strkey.IsValidEd25519PublicKey(toml.SigningKey) {
		return "", fmt.Errorf("%w: invalid SIGNING_KEY value on 'client_domain' TOML", core.ErrInvalidInput)
	}

	return toml.SigningKey, nil
}

// RedeemChallenge verifies a client-signed challenge and returns a session token
func (s *AuthService) RedeemChallenge(ctx context.Context, envelope string) (string, error) {
	serverAccountID := s.cfg.SigningKey.Address()

	ch, err := challenge.Parse(envelope, challenge.ParseParams{
		ServerAccountID:   serverAccountID,
		HomeDomains:       s.cfg.HomeDomains,
		WebAuthDomain:     s.cfg.WebAuthDomain,
		NetworkPassphrase: s.cfg.NetworkPassphrase,
		Now:               s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
	}

	accountID, err := core.BaseAccount(ch.ClientAccountID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}

	account, err := s.ledger.LoadAccount(ctx, accountID)
	switch {
	case errors.Is(err, core.ErrAccountNotFound):
		if err := challenge.VerifyMasterKey(ch, serverAccountID); err != nil {
			return "", fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
		}
	case err != nil:
		return "", fmt.Errorf("failed to load account: %w", err)
	default:
		if err := challenge.VerifyThreshold(ch, account, serverAccountID); err != nil {
			return "", fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
		}
	}

	token, err := s.tokenizer.Issue(ch)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.logger.Info("challenge redeemed",
		zap.String("account", ch.ClientAccountID),
		zap.String("home_domain", ch.HomeDomain),
		zap.String("client_domain", ch.ClientDomain),
	)

	return token, nil
}

// ValidateToken validates a session token
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*core.SessionCredential, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", core.ErrAuthRequired)
	}

	cred, err := s.tokenizer.Validate(token)
	if err != nil {
		if errors.Is(err, core.ErrAuthRequired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrAuthRequired, err)
	}

	return cred, nil
}
