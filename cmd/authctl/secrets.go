package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/upb/mcp-auth-gateway/app"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services/secrets"
	"github.com/upb/mcp-auth-gateway/utils"
)

func newSecretsCmd(run depsRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage encrypted secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var listCreator string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List secrets without their values",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, deps *app.Dependencies, _ []string) error {
			return runSecretsList(cmd, deps, listCreator)
		}),
	}
	listCmd.Flags().StringVar(&listCreator, "creator-id", "", "only list secrets owned by this creator")
	cmd.AddCommand(listCmd)

	var getCreator string
	getCmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print a secret's value",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, deps *app.Dependencies, args []string) error {
			return runSecretsGet(cmd, deps, args[0], getCreator)
		}),
	}
	getCmd.Flags().StringVar(&getCreator, "creator-id", "", "creator that owns the secret")
	cmd.AddCommand(getCmd)

	var setCreator, description string
	setCmd := &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Create or update a secret",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(cmd *cobra.Command, deps *app.Dependencies, args []string) error {
			return runSecretsSet(cmd, deps, args[0], args[1], setCreator, description)
		}),
	}
	setCmd.Flags().StringVar(&setCreator, "creator-id", "", "creator that owns the secret")
	setCmd.Flags().StringVar(&description, "description", "", "description of the secret")
	cmd.AddCommand(setCmd)

	var deleteCreator string
	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, deps *app.Dependencies, args []string) error {
			return runSecretsDelete(cmd, deps, args[0], deleteCreator)
		}),
	}
	deleteCmd.Flags().StringVar(&deleteCreator, "creator-id", "", "creator that owns the secret")
	cmd.AddCommand(deleteCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "generate-key",
		Short: "Generate a new SECRETS_ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := secrets.GenerateKey()
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			out := cmd.OutOrStdout()
			printf(out, "Generated encryption key: %s\n", key)
			printf(out, "Add this key to your environment variables as SECRETS_ENCRYPTION_KEY\n")
			return nil
		},
	})

	return cmd
}

func runSecretsList(cmd *cobra.Command, deps *app.Dependencies, creatorID string) error {
	list, err := deps.Secrets.List(cmd.Context(), models.StringPtr(creatorID))
	if err != nil {
		return fmt.Errorf("failed to list secrets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		printf(out, "No secrets found.\n")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATOR ID\tDESCRIPTION")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Name, models.StringValue(s.CreatorID), models.StringValue(s.Description))
	}
	return w.Flush()
}

func runSecretsGet(cmd *cobra.Command, deps *app.Dependencies, name, creatorID string) error {
	value, found, err := deps.Secrets.Get(cmd.Context(), name, models.StringPtr(creatorID))
	if err != nil {
		return fmt.Errorf("failed to get secret: %w", err)
	}
	if !found {
		return fmt.Errorf("secret %q not found", name)
	}

	out := cmd.OutOrStdout()
	printf(out, "Secret '%s':\n", name)
	printf(out, "Value: %s\n", value)
	return nil
}

func runSecretsSet(cmd *cobra.Command, deps *app.Dependencies, name, value, creatorID, description string) error {
	if err := utils.ValidateSecretName(name); err != nil {
		return err
	}
	ok, err := deps.Secrets.Set(cmd.Context(), name, value, models.StringPtr(creatorID), models.StringPtr(description))
	recordCLI(cmd.Context(), deps, models.AuditActionSecretSet, name, err == nil && ok)
	if err != nil {
		return fmt.Errorf("failed to set secret %q: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("failed to set secret %q", name)
	}
	printf(cmd.OutOrStdout(), "Secret '%s' set successfully.\n", name)
	return nil
}

func runSecretsDelete(cmd *cobra.Command, deps *app.Dependencies, name, creatorID string) error {
	ok, err := deps.Secrets.Delete(cmd.Context(), name, models.StringPtr(creatorID))
	recordCLI(cmd.Context(), deps, models.AuditActionSecretDeleted, name, err == nil && ok)
	if err != nil {
		return fmt.Errorf("failed to delete secret %q: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("failed to delete secret %q", name)
	}
	printf(cmd.OutOrStdout(), "Secret '%s' deleted successfully.\n", name)
	return nil
}
