package core

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// IsValidHostname reports whether s is a bare hostname, optionally with a
// port. Schemes, paths, credentials and whitespace are rejected.
func IsValidHostname(s string) bool {
	if s == "" {
		return false
	}
	return validate.Var(s, "hostname_rfc1123|hostname_port") == nil
}
