package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michelrosettaa/FlowAi-sub000/internal/models"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Manage the plan catalog",
}

var plansSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create or replace plans from a YAML file",
	Long: `Validate a plan seed file and write every plan in it.

Plans missing from the file are left untouched. Set is_active: false to
stop offering a plan; existing subscribers keep it.`,
	Args: cobra.NoArgs,
	RunE: runPlansSeed,
}

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans and their limits",
	Args:  cobra.NoArgs,
	RunE:  runPlansList,
}

func init() {
	plansSeedCmd.Flags().StringP("file", "f", "config/plans.yaml", "plan seed file")
	plansListCmd.Flags().Bool("all", false, "include inactive plans")

	plansCmd.AddCommand(plansSeedCmd)
	plansCmd.AddCommand(plansListCmd)
	rootCmd.AddCommand(plansCmd)
}

func runPlansSeed(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.SeedCatalog(commandContext(cmd), file)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d plan(s) from %s\n", n, file)
	return nil
}

func runPlansList(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	plans, err := a.Plans.List(commandContext(cmd), !all)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, map[string]any{"plans": plans, "count": len(plans)})
	}
	if len(plans) == 0 {
		fmt.Fprintln(out, "No plans found")
		return nil
	}

	w := newTable(out)
	cols := []string{"SLUG", "NAME", "MONTHLY", "ANNUAL", "ACTIVE"}
	for _, f := range models.AllFeatures {
		cols = append(cols, string(f))
	}
	printTableHeader(w, cols...)
	for _, p := range plans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t", p.Slug, p.Name, formatCents(p.PriceMonthly), formatCents(p.PriceAnnual), p.IsActive)
		for _, f := range models.AllFeatures {
			fmt.Fprintf(w, "\t%s", formatLimit(p.Limit(f)))
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
