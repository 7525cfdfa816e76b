package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cairnhq/cairn/internal/eval"
)

var (
	destroyVars           map[string]string
	destroyProviderConfig map[string]string
	destroyAutoApprove    bool
	destroyParallelism    int
)

var destroyCmd = &cobra.Command{
	Use:   "destroy [dir]",
	Short: "Destroy all recorded resources",
	Long: `Tears down every resource recorded in state, in reverse dependency
order. Resources declared with prevent_destroy block the whole run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().StringToStringVar(&destroyVars, "var", nil, "Set input variables (format: name=value)")
	destroyCmd.Flags().StringToStringVar(&destroyProviderConfig, "provider-config", nil, "Provider settings (format: provider.key=value)")
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval")
	destroyCmd.Flags().IntVar(&destroyParallelism, "parallelism", 0, "Maximum concurrent operations")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	dir, err := resolveDir(args)
	if err != nil {
		return err
	}
	mod, err := mustLoad(dir)
	if err != nil {
		return err
	}

	store, err := newStore(ctx, dir)
	if err != nil {
		return err
	}
	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()

	snap, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if len(snap.Resources) == 0 {
		fmt.Println("Nothing to destroy. State is empty.")
		return nil
	}

	vars, err := eval.BuildVariables(mod, destroyVars)
	if err != nil {
		return err
	}

	eng, reg := newEngine(destroyProviderConfig, destroyParallelism)
	if err := loadStateProviders(reg, snap); err != nil {
		return err
	}

	plan, err := eng.PlanDestroy(ctx, mod, snap)
	if err != nil {
		return fmt.Errorf("destroy planning failed: %w", err)
	}

	fmt.Println("Cairn will destroy the following resources:")
	renderPlan(plan)
	renderPlanSummary(plan)

	if !destroyAutoApprove {
		if !confirm("\nDo you really want to destroy all resources?") {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	summary, err := eng.Apply(ctx, mod, plan, snap, vars, store, printApplyEvent)
	if summary != nil {
		fmt.Printf("\nDestroy complete. Resources: %d destroyed, %d failed, %d skipped.\n",
			summary.Applied, summary.Failed, summary.Skipped)
	}
	if err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}
	return nil
}
