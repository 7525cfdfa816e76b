package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cairnhq/cairn/internal/graph"
	registry "github.com/cairnhq/cairn/internal/provider"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check declarations for structural errors",
	Long: `Parses the declarations and builds the resource graph without touching
providers or state. Catches duplicate addresses, references to undeclared
resources, unknown provider types, malformed expressions and dependency
cycles.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir(args)
	if err != nil {
		return err
	}
	mod, err := mustLoad(dir)
	if err != nil {
		return err
	}

	reg := registry.NewRegistry()
	g, err := graph.Build(mod, reg.Known)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration is valid: %d resource(s), %d variable(s), %d output(s).\n",
		len(g.Nodes()), len(mod.Variables), len(mod.Outputs))
	return nil
}
