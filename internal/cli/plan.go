package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cairnhq/cairn/internal/eval"
)

var (
	planVars           map[string]string
	planProviderConfig map[string]string
	planOutFile        string
)

var planCmd = &cobra.Command{
	Use:   "plan [dir]",
	Short: "Calculate the changes needed to match the declarations",
	Long: `Calculates an execution plan: the minimal set of create, update,
replace and destroy operations that would bring recorded state in line with
the declarations. Nothing is changed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringToStringVar(&planVars, "var", nil, "Set input variables (format: name=value)")
	planCmd.Flags().StringToStringVar(&planProviderConfig, "provider-config", nil, "Provider settings (format: provider.key=value)")
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write the plan as JSON to a file")
}

func runPlan(cmd *cobra.Command, args []string) error {
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
	snap, err := store.Load(ctx)
	if err != nil {
		return err
	}

	vars, err := eval.BuildVariables(mod, planVars)
	if err != nil {
		return err
	}

	eng, reg := newEngine(planProviderConfig, 0)
	if err := loadStateProviders(reg, snap); err != nil {
		return err
	}

	plan, err := eng.Plan(ctx, mod, snap, vars)
	if err != nil {
		return fmt.Errorf("plan failed: %w", err)
	}

	if !plan.HasChanges() {
		fmt.Println("No changes. Infrastructure matches the declarations.")
		renderPlanSummary(plan)
		return nil
	}

	fmt.Println("Cairn calculated the following actions:")
	renderPlan(plan)
	renderPlanSummary(plan)

	if planOutFile != "" {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		if err := os.WriteFile(planOutFile, data, 0o644); err != nil {
			return fmt.Errorf("failed to write plan file: %w", err)
		}
		fmt.Printf("\nPlan written to %s\n", planOutFile)
	}
	return nil
}
