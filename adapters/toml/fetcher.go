package toml

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stellar/go/clients/stellartoml"

	"github.com/layer-3/anchor/core"
)

// DefaultTimeout bounds a single stellar.toml fetch
const DefaultTimeout = 11 * time.Second

// Fetcher reads the SIGNING_KEY published in a domain's stellar.toml
type Fetcher struct {
	timeout time.Duration
	useHTTP bool
}

// NewFetcher creates a new stellar.toml fetcher. useHTTP is for local development only.
func NewFetcher(timeout time.Duration, useHTTP bool) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{timeout: timeout, useHTTP: useHTTP}
}

// Fetch downloads and parses the stellar.toml of domain
func (f *Fetcher) Fetch(ctx context.Context, domain string) (*core.StellarToml, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	client := &stellartoml.Client{
		HTTP:    &http.Client{Transport: contextTransport{ctx: ctx}},
		UseHTTP: f.useHTTP,
	}

	resp, err := client.GetStellarToml(domain)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch stellar.toml for %s: %v", core.ErrUnavailable, domain, err)
	}

	return &core.StellarToml{SigningKey: resp.SigningKey}, nil
}

// contextTransport binds outgoing requests to ctx so the caller's deadline applies.
type contextTransport struct {
	ctx context.Context
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return http.DefaultTransport.RoundTrip(req.WithContext(t.ctx))
}
