package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a malformed or policy-violating request the caller can correct.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAuthRequired marks a missing, expired or malformed session credential.
	ErrAuthRequired = errors.New("authentication required")

	ErrInvalidToken     = fmt.Errorf("invalid token: %w", ErrAuthRequired)
	ErrInvalidChallenge = errors.New("invalid challenge")
	ErrThresholdNotMet  = errors.New("signers do not meet the account threshold")

	// ErrAmbiguousMatch is a data-integrity violation: more than one pending
	// withdrawal claims the same memo on the same anchor account.
	ErrAmbiguousMatch = errors.New("ambiguous withdrawal match")

	// ErrUnavailable is returned when an external discovery document cannot be fetched or parsed.
	ErrUnavailable = errors.New("unavailable")

	ErrAccountNotFound            = errors.New("ledger account not found")
	ErrDistributionAccountMissing = errors.New("withdraw anchor account does not exist on the ledger")
	ErrNotFound                   = errors.New("not found")
	ErrInvalidTransition          = errors.New("invalid status transition")
)
