package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var outputJSON bool

var outputCmd = &cobra.Command{
	Use:   "output [name]",
	Short: "Print module outputs from state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		dir, err := resolveDir(nil)
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

		if len(args) == 1 {
			value, ok := snap.Outputs[args[0]]
			if !ok {
				return fmt.Errorf("output %q not found in state", args[0])
			}
			if outputJSON {
				data, err := json.Marshal(value)
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			fmt.Println(formatValue(value))
			return nil
		}

		if outputJSON {
			data, err := json.MarshalIndent(snap.Outputs, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		for _, k := range sortedKeys(snap.Outputs) {
			fmt.Printf("%s = %s\n", k, formatValue(snap.Outputs[k]))
		}
		return nil
	},
}

func init() {
	outputCmd.Flags().BoolVar(&outputJSON, "json", false, "Print outputs as JSON")
}
