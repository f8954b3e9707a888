package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/glowcloud/glow/internal/client"
)

// newKeysCmd manages keys through a running gateway with an admin key.
func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys through a running gateway (admin key required)",
	}

	cmd.AddCommand(newKeysCreateCmd())
	cmd.AddCommand(newKeysListCmd())
	cmd.AddCommand(newKeysRevokeCmd())

	return cmd
}

func newKeysCreateCmd() *cobra.Command {
	var (
		flags      keyFlags
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a key (admin permission cannot be granted here)",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return clientCmd(func(ctx context.Context, c *client.Client, w io.Writer) error {
			created, err := c.CreateKey(ctx, client.CreateKeyParams{
				Name:          args[0],
				Permissions:   flags.permissions,
				BudgetSats:    optionalSats(flags.budget),
				BudgetPeriod:  flags.budgetPeriod(),
				MaxAmountSats: optionalSats(flags.maxAmount),
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(w, created)
			}
			fmt.Fprintln(w, "API Key created:")
			fmt.Fprintln(w)
			fmt.Fprintf(w, "  Key:         %s\n", created.Key)
			fmt.Fprintf(w, "  ID:          %s\n", created.ID)
			fmt.Fprintf(w, "  Permissions: %s\n", strings.Join(created.Permissions, ", "))
			fmt.Fprintln(w)
			fmt.Fprintln(w, "  Save this key now - it cannot be retrieved again.")
			return nil
		})(cmd, args)
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newKeysListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List active keys",
		Args:    cobra.NoArgs,
	}
	cmd.RunE = clientCmd(func(ctx context.Context, c *client.Client, w io.Writer) error {
		views, err := c.ListKeys(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(w, views)
		}
		if len(views) == 0 {
			fmt.Fprintln(w, "No active keys.")
			return nil
		}
		printKeyTable(w, views)
		return nil
	})
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newKeysRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a key",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return clientCmd(func(ctx context.Context, c *client.Client, w io.Writer) error {
			if err := c.RevokeKey(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(w, "Revoked API key %s\n", args[0])
			return nil
		})(cmd, args)
	}
	return cmd
}
