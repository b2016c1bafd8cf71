// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/shearguard/internal/api"
	"github.com/tomtom215/shearguard/internal/auth"
	"github.com/tomtom215/shearguard/internal/config"
	"github.com/tomtom215/shearguard/internal/logging"
	"github.com/tomtom215/shearguard/internal/supervisor"
	"github.com/tomtom215/shearguard/internal/supervisor/services"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve predictions, model info and research submissions over HTTP.
Admin routes (retrain, rollback, reset, review) are mounted when
server.admin_username and a password or bcrypt hash are configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.withApp(cmd, kvRequired, func(a *app) error {
				return serve(ctx, c.cfg, a)
			})
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, a *app) error {
	if rec, err := a.orch.Init(ctx); err != nil {
		// Serve anyway: health reports degraded and predict answers 503
		// until an admin retrains or the data directory is fixed.
		logging.Error().Err(err).Msg("No usable model at startup")
	} else {
		logging.Info().Str("version", rec.Version).Float64("r2", rec.R2Score).Msg("Serving model")
	}

	routerCfg := api.RouterConfig{
		Middleware: api.MiddlewareConfig{
			CORSAllowedOrigins: cfg.Server.CORSOrigins,
			CORSMaxAge:         86400,
			RateLimitRequests:  cfg.Server.RateLimitRequests,
			RateLimitWindow:    cfg.Server.RateLimitWindow,
		},
	}
	if cfg.Server.AdminEnabled() {
		authn, err := auth.NewBasicAuthenticator(cfg.Server.AdminUsername, cfg.Server.AdminPassword, cfg.Server.AdminPasswordHash)
		if err != nil {
			return fmt.Errorf("admin credentials: %w", err)
		}
		routerCfg.Admin = authn
		routerCfg.Mutations = auth.NewMutationLimiter(cfg.Server.AdminMutationsPerHour)
	} else {
		logging.Warn().Msg("Admin credentials not configured; admin routes are disabled")
	}

	deps := api.HandlerDeps{
		Lifecycle:       a.orch,
		Predictor:       a.predictor,
		MutationTimeout: cfg.Server.RetrainTimeout,
	}
	if a.queue != nil {
		deps.Submissions = a.queue
	}
	if a.journal != nil {
		deps.Attempts = a.journal
	}
	handler := api.NewHandler(deps)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(handler, routerCfg),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	if a.db != nil {
		tree.AddMaintenanceService(services.NewKVGCService(a.db, cfg.KV.GCInterval))
	}

	logging.Info().Str("addr", server.Addr).Bool("admin", routerCfg.Admin != nil).Msg("HTTP server starting")
	err := tree.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("Services did not stop within the shutdown timeout")
	}
	logging.Info().Msg("Shut down")
	return err
}

func newHashPasswordCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash",
		Long: `Read one line from stdin and print a bcrypt hash for
server.admin_password_hash (env ADMIN_PASSWORD_HASH).`,
		Example: `  printf '%s' "$ADMIN_PASSWORD" | shearguard hash-password`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.stdout, hash)
			return err
		},
	}
}
