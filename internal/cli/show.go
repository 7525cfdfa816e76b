package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [dir]",
	Short: "Show the recorded state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		dir, err := resolveDir(args)
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

		if len(snap.Resources) == 0 {
			fmt.Println("State is empty.")
			return nil
		}

		fmt.Printf("# state serial %d, lineage %s\n", snap.Serial, snap.Lineage)
		for _, rec := range snap.Resources {
			fmt.Printf("\nresource %q %q {\n", rec.Type, rec.Name)
			for _, k := range sortedKeys(rec.Inputs) {
				fmt.Printf("  %s = %s\n", k, formatValue(rec.Inputs[k]))
			}
			for _, k := range sortedKeys(rec.Outputs) {
				fmt.Printf("  %s = %s # provider-assigned\n", k, formatValue(rec.Outputs[k]))
			}
			if len(rec.Dependencies) > 0 {
				fmt.Printf("  # depends on: %v\n", rec.Dependencies)
			}
			fmt.Println("}")
		}

		if len(snap.Outputs) > 0 {
			fmt.Println("\nOutputs:")
			for _, k := range sortedKeys(snap.Outputs) {
				fmt.Printf("  %s = %s\n", k, formatValue(snap.Outputs[k]))
			}
		}
		return nil
	},
}
