package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/mcp-auth-gateway/app"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services"
	"github.com/upb/mcp-auth-gateway/services/tokens"
	"github.com/upb/mcp-auth-gateway/utils"
)

const (
	tokensCmdExample = `# Issue a token for user-1 valid for one day
authctl tokens create user-1 --role admin --scopes mcp:access,admin:secrets --expires-in 86400

# Mint a JWT
authctl tokens create-jwt user-1 --scopes mcp:access`
)

// principalFlags are shared by the commands that describe a principal
type principalFlags struct {
	username  string
	email     string
	role      string
	scopes    string
	expiresIn int64
}

func (f *principalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.username, "username", "", "username of the principal")
	cmd.Flags().StringVar(&f.email, "email", "", "email of the principal")
	cmd.Flags().StringVar(&f.role, "role", "", "role of the principal (user or admin)")
	cmd.Flags().StringVar(&f.scopes, "scopes", "", "comma-separated list of scopes")
	cmd.Flags().Int64Var(&f.expiresIn, "expires-in", 0, "seconds until the token expires (0 never expires)")
}

func (f *principalFlags) expiry() (*time.Duration, error) {
	if f.expiresIn < 0 {
		return nil, fmt.Errorf("--expires-in must not be negative")
	}
	if f.expiresIn == 0 {
		return nil, nil
	}
	d := time.Duration(f.expiresIn) * time.Second
	return &d, nil
}

func newTokensCmd(run depsRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tokens",
		Short:   "Manage API tokens and JWTs",
		Example: tokensCmdExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API tokens (masked)",
		Args:  cobra.NoArgs,
		RunE:  run(runTokensList),
	})

	var create principalFlags
	createCmd := &cobra.Command{
		Use:   "create <user-id>",
		Short: "Issue a new API token",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, deps *app.Dependencies, args []string) error {
			return runTokensCreate(cmd, deps, args[0], &create)
		}),
	}
	create.register(createCmd)
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke an API token",
		Args:  cobra.ExactArgs(1),
		RunE:  run(runTokensRevoke),
	})

	var jwtFlags principalFlags
	jwtCmd := &cobra.Command{
		Use:   "create-jwt <user-id>",
		Short: "Mint a signed JWT",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, deps *app.Dependencies, args []string) error {
			return runCreateJWT(cmd, deps, args[0], &jwtFlags)
		}),
	}
	jwtFlags.register(jwtCmd)
	cmd.AddCommand(jwtCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired API token records",
		Args:  cobra.NoArgs,
		RunE:  run(runTokensPurge),
	})

	return cmd
}

func runTokensList(cmd *cobra.Command, deps *app.Dependencies, _ []string) error {
	infos, err := deps.Issuer.ListAPITokens(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list tokens: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		printf(out, "No API tokens found.\n")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tUSER ID\tUSERNAME\tROLE\tSCOPES\tEXPIRES")
	for _, info := range infos {
		expires := "never"
		if info.ExpiresAt != nil {
			expires = info.ExpiresAt.Format(time.RFC3339)
			if info.Expired {
				expires += " (expired)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			info.Token, info.UserID, info.Username, info.Role, strings.Join(info.Scopes, ","), expires)
	}
	return w.Flush()
}

func runTokensCreate(cmd *cobra.Command, deps *app.Dependencies, userID string, f *principalFlags) error {
	scopes, err := utils.ParseScopes(f.scopes)
	if err != nil {
		return err
	}
	expiresIn, err := f.expiry()
	if err != nil {
		return err
	}

	token, err := deps.Issuer.IssueAPIToken(cmd.Context(), tokens.APITokenRequest{
		UserID:    userID,
		Username:  f.username,
		Email:     f.email,
		Role:      f.role,
		Scopes:    scopes,
		ExpiresIn: expiresIn,
	})
	recordCLI(cmd.Context(), deps, models.AuditActionTokenIssued, userID, err == nil)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	out := cmd.OutOrStdout()
	printf(out, "API token created successfully: %s\n", token)
	printf(out, "Keep this token secure! It will not be shown again.\n")
	return nil
}

func runTokensRevoke(cmd *cobra.Command, deps *app.Dependencies, args []string) error {
	token := args[0]
	ok, err := deps.Issuer.RevokeAPIToken(cmd.Context(), token)
	recordCLI(cmd.Context(), deps, models.AuditActionTokenRevoked, tokens.MaskToken(token), err == nil && ok)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to revoke token %s", tokens.MaskToken(token))
	}
	printf(cmd.OutOrStdout(), "API token revoked successfully.\n")
	return nil
}

func runCreateJWT(cmd *cobra.Command, deps *app.Dependencies, userID string, f *principalFlags) error {
	scopes, err := utils.ParseScopes(f.scopes)
	if err != nil {
		return err
	}
	expiresIn, err := f.expiry()
	if err != nil {
		return err
	}

	principal := models.NewPrincipal(userID, f.username, f.email, f.role, scopes)
	token, err := deps.Issuer.IssueJWT(tokens.ClaimsFor(principal), expiresIn)
	recordCLI(cmd.Context(), deps, models.AuditActionJWTIssued, userID, err == nil)
	if err != nil {
		if errors.Is(err, services.ErrJWTSecretMissing) {
			return fmt.Errorf("%w: set JWT_SECRET in the environment", err)
		}
		return fmt.Errorf("failed to create JWT: %w", err)
	}

	out := cmd.OutOrStdout()
	printf(out, "JWT token created successfully: %s\n", token)
	printf(out, "Keep this token secure! It will not be shown again.\n")
	return nil
}

func runTokensPurge(cmd *cobra.Command, deps *app.Dependencies, _ []string) error {
	n, err := deps.Issuer.PurgeExpiredAPITokens(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to purge tokens: %w", err)
	}
	printf(cmd.OutOrStdout(), "Purged %d expired API token(s).\n", n)
	return nil
}
