package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/glowcloud/glow/internal/budget"
	"github.com/glowcloud/glow/internal/model"
	"github.com/glowcloud/glow/internal/service"
	"github.com/glowcloud/glow/internal/store"
)

// The key commands operate on the database directly. They are the only way
// to mint an admin key and need no running server.
func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Provision API keys directly in the database",
		Long: `Create, list, and revoke API keys by writing to the gateway database directly.

This is the privileged provisioning path: it is the only way to create keys with
the admin permission. Use 'glow keys' to manage keys through a running gateway.`,
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// openKeyStore opens the configured database for a one-shot command.
func openKeyStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	st, err := openStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// keyFlags are shared by 'key create' and 'keys create'.
type keyFlags struct {
	permissions []string
	maxAmount   int64
	budget      int64
	period      string
}

func (f *keyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.permissions, "permissions", nil, "Comma-separated permissions (default balance,receive)")
	cmd.Flags().Int64Var(&f.maxAmount, "max-amount", 0, "Per-payment maximum in sats")
	cmd.Flags().Int64Var(&f.budget, "budget", 0, "Budget in sats per period")
	cmd.Flags().StringVar(&f.period, "period", "", "Budget period: daily, weekly or monthly")
}

func (f *keyFlags) budgetPeriod() *string {
	if f.period == "" {
		return nil
	}
	p := strings.ToLower(f.period)
	return &p
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		flags   keyFlags
		admin   bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new API key",
		Long:  "Generate a new API key. The raw key is shown once and cannot be retrieved again.",
		Example: `  glow key create ops --admin
  glow key create agent --permissions balance,send --budget 10000 --period daily --max-amount 5000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(cmd.OutOrStdout(), args[0], flags, admin, jsonOut)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant the admin permission")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runKeyCreate(w io.Writer, name string, flags keyFlags, admin, jsonOut bool) error {
	st, err := openKeyStore()
	if err != nil {
		return err
	}
	defer st.Close()

	perms := flags.permissions
	if admin {
		if len(perms) == 0 {
			for _, p := range model.AllPermissions {
				perms = append(perms, string(p))
			}
		} else {
			perms = append(perms, string(model.PermAdmin))
		}
	}

	raw, key, err := service.NewKeyService(st, nil).Provision(context.Background(), service.CreateKeyParams{
		Name:          name,
		Permissions:   perms,
		MaxAmountSats: optionalSats(flags.maxAmount),
		BudgetSats:    optionalSats(flags.budget),
		BudgetPeriod:  flags.budgetPeriod(),
	})
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(w, model.CreateKeyResponse{
			Key:           raw,
			ID:            key.ID,
			Name:          key.Name,
			Permissions:   []string(key.Permissions),
			BudgetSats:    key.BudgetSats,
			BudgetPeriod:  key.BudgetPeriod,
			MaxAmountSats: key.MaxAmountSats,
			CreatedAt:     key.CreatedAt,
		})
	}

	fmt.Fprintln(w, "API Key created:")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Key:         %s\n", raw)
	fmt.Fprintf(w, "  ID:          %s\n", key.ID)
	fmt.Fprintf(w, "  Name:        %s\n", key.Name)
	fmt.Fprintf(w, "  Permissions: %s\n", strings.Join(key.Permissions, ", "))
	if key.MaxAmountSats != nil {
		fmt.Fprintf(w, "  Max amount:  %d sats\n", *key.MaxAmountSats)
	}
	if key.HasBudget() {
		fmt.Fprintf(w, "  Budget:      %d sats %s\n", *key.BudgetSats, *key.BudgetPeriod)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List active API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(w io.Writer, jsonOutput bool) error {
	st, err := openKeyStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	keys, err := service.NewKeyService(st, nil).List(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	ledger := budget.NewLedger(st, budget.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	views := make([]model.KeyView, len(keys))
	for i := range keys {
		views[i] = model.KeyViewFrom(&keys[i])
		if keys[i].HasBudget() {
			status, err := ledger.Status(ctx, &keys[i])
			if err != nil {
				return fmt.Errorf("budget status: %w", err)
			}
			views[i].SpentSats = &status.SpentSats
			views[i].RemainingSats = status.RemainingSats
		}
	}

	if jsonOutput {
		return printJSON(w, views)
	}
	if len(views) == 0 {
		fmt.Fprintln(w, "No API keys configured. Use 'glow key create' to create one.")
		return nil
	}
	printKeyTable(w, views)
	return nil
}

// printKeyTable renders key views as a fixed-width table.
func printKeyTable(w io.Writer, views []model.KeyView) {
	fmt.Fprintf(w, "%-36s %-20s %-28s %-10s %-16s %-10s\n", "ID", "NAME", "PERMISSIONS", "MAX", "BUDGET", "REMAINING")
	fmt.Fprintf(w, "%-36s %-20s %-28s %-10s %-16s %-10s\n", "--", "----", "-----------", "---", "------", "---------")
	for _, k := range views {
		budgetCol := "-"
		if k.BudgetSats != nil && k.BudgetPeriod != nil {
			budgetCol = fmt.Sprintf("%d/%s", *k.BudgetSats, *k.BudgetPeriod)
		}
		fmt.Fprintf(w, "%-36s %-20s %-28s %-10s %-16s %-10s\n",
			k.ID, k.Name, strings.Join(k.Permissions, ","), formatSats(k.MaxAmountSats), budgetCol, formatSats(k.RemainingSats))
	}
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key by its id",
		Long:  "Deactivate an API key, preventing any further authenticated requests using that key. Revocation is permanent.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(cmd.OutOrStdout(), args[0])
		},
	}

	return cmd
}

func runKeyRevoke(w io.Writer, id string) error {
	st, err := openKeyStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := service.NewKeyService(st, nil).Revoke(context.Background(), id, ""); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no active API key with id %q", id)
		}
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Fprintf(w, "Revoked API key %s\n", id)
	return nil
}
