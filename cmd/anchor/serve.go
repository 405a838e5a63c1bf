package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stellar/go/keypair"
	"go.uber.org/zap"

	"github.com/layer-3/anchor/adapters/tokenizer"
	"github.com/layer-3/anchor/adapters/toml"
	"github.com/layer-3/anchor/service"
	transport "github.com/layer-3/anchor/transport/http"
)

func serveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve web authentication and transaction lookups over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := c.cfg, c.log

			if err := cfg.Validate(true); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			signingKey, err := keypair.ParseFull(cfg.SEP10.SigningSeed)
			if err != nil {
				return fmt.Errorf("invalid sep10.signing_seed: %w", err)
			}

			infra, err := openInfra(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer infra.Close()

			issuer := cfg.SEP10.JWTIssuer
			if issuer == "" {
				issuer = "https://" + cfg.SEP10.WebAuthDomain + "/auth"
			}

			auth := service.NewAuthService(
				service.AuthConfig{
					NetworkPassphrase:    cfg.SEP10.NetworkPassphrase,
					WebAuthDomain:        cfg.SEP10.WebAuthDomain,
					HomeDomains:          cfg.SEP10.HomeDomains,
					SigningKey:           signingKey,
					ChallengeTimeout:     cfg.SEP10.ChallengeTimeout,
					ClientDomainRequired: cfg.SEP10.ClientDomainRequired,
					ClientDomainsAllowed: cfg.SEP10.ClientDomainsAllowed,
					ClientDomainsDenied:  cfg.SEP10.ClientDomainsDenied,
				},
				infra.ledger,
				toml.NewFetcher(cfg.SEP10.TomlTimeout, false),
				tokenizer.NewJWTTokenizer([]byte(cfg.SEP10.JWTSecret), issuer, cfg.SEP10.TokenTTL),
				log,
			)

			metrics, err := transport.NewHTTPMetrics(transport.HTTPMetricsOptions{Registerer: prometheus.DefaultRegisterer})
			if err != nil {
				return err
			}

			router := transport.SetupRouter(transport.Dependencies{
				Env:          cfg.App.Env,
				Logger:       log,
				Auth:         auth,
				Transactions: infra.transactions,
				Metrics:      metrics,
			})

			return listen(ctx, log, &http.Server{
				Addr:              cfg.Addr(),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			})
		},
	}
}

// listen runs srv until ctx is done, then shuts it down gracefully.
func listen(ctx context.Context, log *zap.Logger, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}
