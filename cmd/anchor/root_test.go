package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRoot(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.Execute()
}

func TestMigrateRequiresDSN(t *testing.T) {
	err := runRoot(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.dsn is required")
}

func TestServeValidatesSecrets(t *testing.T) {
	err := runRoot(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sep10.jwt_secret is required")
}

func TestConfigFlagReachesSubcommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sep10:\n  jwt_secret: secret\n  signing_seed: not-a-seed\n  web_auth_domain: auth.example.com\n  home_domains: [example.com]\n"), 0o600))

	err := runRoot(t, "--config", path, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sep10.signing_seed")

	// A second command tree does not see the first one's configuration.
	err = runRoot(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sep10.jwt_secret is required")
}
