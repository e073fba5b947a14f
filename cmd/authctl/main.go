// Command authctl administers API tokens, JWTs and stored secrets directly
// against the configured secret store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/mcp-auth-gateway/app"
	"github.com/upb/mcp-auth-gateway/config"
	"github.com/upb/mcp-auth-gateway/internal/observability"
	"github.com/upb/mcp-auth-gateway/models"
	"go.uber.org/zap"
)

const (
	CliName     = "authctl"
	auditSource = "cli"

	auditEnqueueTimeout = 2 * time.Second
)

// loader builds the service graph a command runs against and returns its cleanup
type loader func(ctx context.Context, logLevel string) (*app.Dependencies, func(), error)

func main() {
	if err := newRootCmd(loadDependencies).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(load loader) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           CliName,
		Short:         "Manage MCP gateway API tokens and secrets",
		Long:          "authctl issues and revokes API tokens, mints JWTs and manages encrypted secrets in the gateway's secret store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "error", "log level for service diagnostics (debug, info, warn, error)")

	var withDeps depsRunner = func(fn func(cmd *cobra.Command, deps *app.Dependencies, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			deps, cleanup, err := load(cmd.Context(), logLevel)
			if err != nil {
				return err
			}
			defer cleanup()
			return fn(cmd, deps, args)
		}
	}

	root.AddCommand(newTokensCmd(withDeps))
	root.AddCommand(newSecretsCmd(withDeps))
	return root
}

type depsRunner func(fn func(cmd *cobra.Command, deps *app.Dependencies, args []string) error) func(*cobra.Command, []string) error

// loadDependencies reads the gateway configuration from the environment and
// wires the services without metrics or a cache sweeper.
func loadDependencies(ctx context.Context, logLevel string) (*app.Dependencies, func(), error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Observability.MetricsEnabled = false
	cfg.Auth.CacheSweepInterval = 0

	logger, err := observability.NewLogger(logLevel, "console")
	if err != nil {
		return nil, nil, err
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return deps, func() { _ = deps.Close(context.Background()) }, nil
}

// recordCLI writes an audit entry for an administrative action. The process
// exits right after the command, so with a running pipeline the entry is
// enqueued with backpressure instead of being dropped on a full buffer.
func recordCLI(ctx context.Context, deps *app.Dependencies, action models.AuditAction, resource string, success bool) {
	entry := models.NewAuditLog(action, auditSource, success).WithResource(resource)
	if user := os.Getenv("USER"); user != "" {
		entry.WithPrincipal(user)
	}
	if deps.Audit == nil {
		deps.Recorder.Record(entry)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, auditEnqueueTimeout)
	defer cancel()
	if err := deps.Audit.LogEventBlocking(ctx, entry); err != nil {
		deps.Logger.Warn("failed to record audit event",
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

func printf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
