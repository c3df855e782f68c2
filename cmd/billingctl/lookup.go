package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
)

var entitlementCmd = &cobra.Command{
	Use:   "entitlement",
	Short: "Inspect feature access",
}

var entitlementCheckCmd = &cobra.Command{
	Use:   "check <customer-id> <feature>",
	Short: "Show whether a customer may use a feature now",
	Long: `Evaluate a feature for a customer exactly as the API does, without
consuming anything.

Features: ai_messages, email_sends, calendar_syncs, email_campaigns`,
	Args: cobra.ExactArgs(2),
	RunE: runEntitlementCheck,
}

var usageCmd = &cobra.Command{
	Use:   "usage <customer-id>",
	Short: "Show a customer's usage in the current period",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsage,
}

var subscriptionCmd = &cobra.Command{
	Use:   "subscription",
	Short: "Inspect subscription records",
}

var subscriptionShowCmd = &cobra.Command{
	Use:   "show <customer-id>",
	Short: "Show a customer's subscription",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscriptionShow,
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Maintain the webhook event ledger",
}

var ledgerPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old webhook dedup markers",
	Long: `Delete webhook dedup markers older than --older-than.

Keep the window longer than the provider's redelivery period, or a late
retry is processed a second time. Redis markers expire on their own.`,
	Args: cobra.NoArgs,
	RunE: runLedgerPrune,
}

func init() {
	subscriptionShowCmd.Flags().Bool("history", false, "include the change history")
	ledgerPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "retention window")

	entitlementCmd.AddCommand(entitlementCheckCmd)
	subscriptionCmd.AddCommand(subscriptionShowCmd)
	ledgerCmd.AddCommand(ledgerPruneCmd)

	rootCmd.AddCommand(entitlementCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(subscriptionCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func runEntitlementCheck(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.Entitlements().Check(commandContext(cmd), args[0], models.Feature(args[1]))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, d)
	}

	fmt.Fprintf(out, "Customer:  %s\n", args[0])
	fmt.Fprintf(out, "Feature:   %s\n", d.Feature)
	fmt.Fprintf(out, "Plan:      %s (%s)\n", d.PlanName, d.PlanSlug)
	fmt.Fprintf(out, "Period:    %s\n", d.PeriodKey)
	fmt.Fprintf(out, "Usage:     %d / %s\n", d.CurrentUsage, formatLimit(d.Limit))
	fmt.Fprintf(out, "Allowed:   %t\n", d.Allowed)
	if d.Message != "" {
		fmt.Fprintf(out, "Message:   %s\n", d.Message)
	}
	return nil
}

func runUsage(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.Entitlements().Summary(commandContext(cmd), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, summary)
	}

	fmt.Fprintf(out, "%s on %s, period %s\n\n", summary.CustomerID, summary.PlanName, summary.PeriodKey)
	w := newTable(out)
	printTableHeader(w, "FEATURE", "USED", "LIMIT")
	for _, f := range summary.Features {
		fmt.Fprintf(w, "%s\t%d\t%s\n", f.Feature, f.Used, formatLimit(f.Limit))
	}
	return w.Flush()
}

func runSubscriptionShow(cmd *cobra.Command, args []string) error {
	withHistory, _ := cmd.Flags().GetBool("history")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	svc := a.SubscriptionService()
	view, err := svc.Get(ctx, args[0])
	if err != nil {
		return err
	}
	var history []*models.SubscriptionHistory
	if withHistory {
		if history, err = svc.History(ctx, args[0]); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, map[string]any{
			"subscription": view.Subscription,
			"plan":         view.Plan,
			"history":      history,
		})
	}

	sub := view.Subscription
	fmt.Fprintf(out, "Customer:        %s\n", sub.CustomerID)
	fmt.Fprintf(out, "Plan:            %s (%s)\n", view.Plan.Name, sub.PlanSlug)
	fmt.Fprintf(out, "Status:          %s\n", sub.Status)
	fmt.Fprintf(out, "Period:          %s .. %s\n", formatTime(sub.CurrentPeriodStart), formatTime(sub.CurrentPeriodEnd))
	fmt.Fprintf(out, "Cancel at end:   %t\n", sub.CancelAtPeriodEnd)
	fmt.Fprintf(out, "Canceled at:     %s\n", formatTime(sub.CanceledAt))
	if sub.ProviderSubscriptionID != nil {
		fmt.Fprintf(out, "Provider sub:    %s\n", *sub.ProviderSubscriptionID)
	}

	if withHistory {
		fmt.Fprintln(out)
		w := newTable(out)
		printTableHeader(w, "RECORDED", "PLAN", "STATUS")
		for _, h := range history {
			fmt.Fprintf(w, "%s\t%s\t%s\n", h.RecordedAt.UTC().Format(time.RFC3339), h.PlanSlug, h.Status)
		}
		return w.Flush()
	}
	return nil
}

func runLedgerPrune(cmd *cobra.Command, args []string) error {
	retention, _ := cmd.Flags().GetDuration("older-than")
	if retention <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Ledger.Prune(commandContext(cmd), retention)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d webhook event(s)\n", n)
	return nil
}
