package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cairnhq/cairn/internal/engine"
	"github.com/cairnhq/cairn/internal/eval"
)

var (
	applyVars           map[string]string
	applyProviderConfig map[string]string
	applyAutoApprove    bool
	applyParallelism    int
)

var applyCmd = &cobra.Command{
	Use:   "apply [dir]",
	Short: "Apply the changes needed to match the declarations",
	Long: `Calculates a plan and executes it: providers are invoked with bounded
parallelism in dependency order, every completed operation is persisted to
state immediately, and transient provider errors are retried with backoff.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringToStringVar(&applyVars, "var", nil, "Set input variables (format: name=value)")
	applyCmd.Flags().StringToStringVar(&applyProviderConfig, "provider-config", nil, "Provider settings (format: provider.key=value)")
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of the plan")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", 0, "Maximum concurrent operations")
}

func runApply(cmd *cobra.Command, args []string) error {
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

	vars, err := eval.BuildVariables(mod, applyVars)
	if err != nil {
		return err
	}

	eng, reg := newEngine(applyProviderConfig, applyParallelism)
	if err := loadStateProviders(reg, snap); err != nil {
		return err
	}

	plan, err := eng.Plan(ctx, mod, snap, vars)
	if err != nil {
		return fmt.Errorf("plan failed: %w", err)
	}

	if !plan.HasChanges() {
		fmt.Println("No changes. Infrastructure matches the declarations.")
		return nil
	}

	fmt.Println("Cairn will perform the following actions:")
	renderPlan(plan)
	renderPlanSummary(plan)

	if !applyAutoApprove {
		if !confirm("\nDo you want to perform these actions?") {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Printf("\nApplying %d change(s)...\n", len(plan.Changes))

	summary, err := eng.Apply(ctx, mod, plan, snap, vars, store, printApplyEvent)
	if summary != nil {
		fmt.Printf("\nApply complete. Resources: %d applied, %d unchanged, %d failed, %d skipped.\n",
			summary.Applied, summary.Unchanged, summary.Failed, summary.Skipped)
	}
	if err != nil {
		return fmt.Errorf("apply failed: %w", err)
	}

	if outputs := snap.Outputs; len(outputs) > 0 {
		fmt.Println("\nOutputs:")
		for _, k := range sortedKeys(outputs) {
			fmt.Printf("  %s = %s\n", k, formatValue(outputs[k]))
		}
	}
	return nil
}

func printApplyEvent(ev engine.ApplyEvent) {
	switch ev.Status {
	case "started":
		fmt.Printf("%s: %s...\n", ev.Address, ev.Action)
	case "completed":
		fmt.Printf("%s: %s complete (%.1fs)\n", ev.Address, ev.Action, ev.Duration.Seconds())
	case "failed":
		fmt.Printf("%s%s: %s failed: %v%s\n", colorRed, ev.Address, ev.Action, ev.Error, colorReset)
	case "skipped":
		fmt.Printf("%s%s: skipped (dependency failed or run cancelled)%s\n", colorYellow, ev.Address, colorReset)
	}
}
