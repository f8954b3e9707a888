package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/glowcloud/glow/internal/client"
)

// clientCmd wraps a client call with a fresh client and a bounded context.
func clientCmd(fn func(ctx context.Context, c *client.Client, w io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, cancel := context.WithTimeout(parent, 2*time.Minute)
		defer cancel()
		return fn(ctx, c, cmd.OutOrStdout())
	}
}

func newHealthCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running gateway",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = clientCmd(func(ctx context.Context, c *client.Client, w io.Writer) error {
		h, err := c.Health(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(w, h)
		}
		fmt.Fprintf(w, "Status:           %s\n", h.Status)
		fmt.Fprintf(w, "Wallet connected: %t\n", h.WalletConnected)
		return nil
	})
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newBalanceCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the wallet balance",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = clientCmd(func(ctx context.Context, c *client.Client, w io.Writer) error {
		b, err := c.Balance(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(w, b)
		}
		fmt.Fprintf(w, "Balance:          %d sats\n", b.BalanceSats)
		fmt.Fprintf(w, "Pending incoming: %d sats\n", b.PendingIncomingSats)
		fmt.Fprintf(w, "Pending outgoing: %d sats\n", b.PendingOutgoingSats)
		fmt.Fprintf(w, "Max payable:      %d sats\n", b.MaxPayableSats)
		fmt.Fprintf(w, "Max receivable:   %d sats\n", b.MaxReceivableSats)
		return nil
	})
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newPaymentsCmd() *cobra.Command {
	var (
		offset     int
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "payments",
		Aliases: []string{"history"},
		Short:   "List wallet payments, newest first",
		Args:    cobra.NoArgs,
	}
	cmd.RunE = clientCmd(func(ctx context.Context, c *client.Client, w io.Writer) error {
		payments, err := c.Payments(ctx, offset, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(w, payments)
		}
		if len(payments) == 0 {
			fmt.Fprintln(w, "No payments.")
			return nil
		}
		fmt.Fprintf(w, "%-20s %-9s %-10s %12s %8s  %s\n", "CREATED", "DIRECTION", "STATUS", "AMOUNT", "FEE", "ID")
		for _, p := range payments {
			fmt.Fprintf(w, "%-20s %-9s %-10s %12d %8d  %s\n",
				p.CreatedAt.Local().Format("2006-01-02 15:04:05"), p.Direction, p.Status, p.AmountSats, p.FeeSats, p.ID)
		}
		return nil
	})
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of payments to skip")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum payments to return (1-100)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newReceiveCmd() *cobra.Command {
	var (
		amount      int64
		description string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Create a Lightning invoice",
		Example: `  glow receive --amount 2100 --description coffee
  glow receive            # any-amount invoice`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = clientCmd(func(ctx context.Context, c *client.Client, w io.Writer) error {
		inv, err := c.Receive(ctx, client.ReceiveParams{
			AmountSats:  optionalSats(amount),
			Description: description,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(w, inv)
		}
		fmt.Fprintln(w, inv.PaymentRequest)
		if inv.FeeSats > 0 {
			fmt.Fprintf(w, "\nReceive fee: %d sats\n", inv.FeeSats)
		}
		return nil
	})
	cmd.Flags().Int64Var(&amount, "amount", 0, "Invoice amount in sats (omit for any amount)")
	cmd.Flags().StringVar(&description, "description", "", "Invoice description")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newSendCmd() *cobra.Command {
	var (
		amount     int64
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "send <destination>",
		Short: "Pay an invoice, lightning address or LNURL",
		Long: `Send a payment from the wallet.

The amount is taken from the invoice when it carries one; --amount is required
for any-amount invoices and lightning addresses. The key's per-payment maximum
and budget are enforced before the payment leaves the wallet.`,
		Example: `  glow send lnbc21u1p...
  glow send alice@example.com --amount 1000`,
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return clientCmd(func(ctx context.Context, c *client.Client, w io.Writer) error {
			res, err := c.Send(ctx, client.SendParams{
				Destination: args[0],
				AmountSats:  optionalSats(amount),
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(w, res)
			}
			fmt.Fprintf(w, "Sent %d sats (%s)\n", res.AmountSats, res.Status)
			fmt.Fprintf(w, "Payment ID: %s\n", res.PaymentID)
			return nil
		})(cmd, args)
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "Amount in sats")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newBudgetCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show the calling key's limits and spend",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = clientCmd(func(ctx context.Context, c *client.Client, w io.Writer) error {
		b, err := c.Budget(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(w, b)
		}
		fmt.Fprintf(w, "Key:        %s\n", b.APIKeyID)
		fmt.Fprintf(w, "Max amount: %s\n", formatSats(b.MaxAmountSats))
		if b.BudgetSats == nil || b.BudgetPeriod == nil {
			fmt.Fprintln(w, "Budget:     unlimited")
			return nil
		}
		fmt.Fprintf(w, "Budget:     %d sats %s\n", *b.BudgetSats, *b.BudgetPeriod)
		if b.PeriodStart != nil {
			fmt.Fprintf(w, "Period:     since %s\n", b.PeriodStart.Local().Format(time.RFC3339))
		}
		fmt.Fprintf(w, "Spent:      %d sats\n", b.SpentSats)
		fmt.Fprintf(w, "Remaining:  %s sats\n", formatSats(b.RemainingSats))
		return nil
	})
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newSyncCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconnect the gateway's wallet (admin)",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = clientCmd(func(ctx context.Context, c *client.Client, w io.Writer) error {
		b, err := c.Sync(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(w, b)
		}
		fmt.Fprintf(w, "Wallet synced. Balance: %d sats\n", b.BalanceSats)
		return nil
	})
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
