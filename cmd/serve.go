package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/internal/config"
	"github.com/xkilldash9x/infra-healer/internal/server"
)

// componentInitializer builds components. Swapped in tests.
type componentInitializer func(ctx context.Context, cfg config.Interface, logger *zap.Logger, mode componentMode) (*components, error)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the failure webhook server",
		Long: `Run the HTTP server that receives pipeline failure notifications.
Each accepted failure is triaged and remediated before the response is sent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				opts.cfg.ServerCfg.Addr = addr
			}
			return runServe(cmd.Context(), opts.cfg, opts.logger, initializeComponents)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

// runServe is the testable body of the serve command.
func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger, initFn componentInitializer) error {
	comps, err := initFn(ctx, cfg, logger, modeService)
	if comps != nil {
		defer comps.Shutdown(logger)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}

	logger.Info("Starting failure webhook server.",
		zap.String("addr", cfg.Server().Addr),
		zap.Bool("pull_requests", comps.SCM != nil),
		zap.Bool("audit_trail", comps.Store != nil),
		zap.Bool("auth", cfg.Server().AuthToken != ""))

	srv := server.NewServer(logger, cfg.Server(), comps.Healer)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	logger.Info("Server shut down cleanly.")
	return nil
}
