package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cairnhq/cairn/internal/graph"
	registry "github.com/cairnhq/cairn/internal/provider"
)

var graphCmd = &cobra.Command{
	Use:   "graph [dir]",
	Short: "Print the resource dependency graph in DOT format",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		fmt.Print(g.DOT())
		return nil
	},
}
