package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshProviderConfig map[string]string

var refreshCmd = &cobra.Command{
	Use:   "refresh [dir]",
	Short: "Reconcile state with the resources providers actually observe",
	Long: `Re-reads every recorded resource from its provider. Records of
resources that vanished outside of cairn are dropped; drifted
provider-assigned attributes are refreshed in state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringToStringVar(&refreshProviderConfig, "provider-config", nil, "Provider settings (format: provider.key=value)")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	dir, err := resolveDir(args)
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
		fmt.Println("State is empty. Nothing to refresh.")
		return nil
	}

	eng, _ := newEngine(refreshProviderConfig, 0)
	drifts, err := eng.Refresh(ctx, snap, store)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	if len(drifts) == 0 {
		fmt.Println("State matches reality. No drift detected.")
		return nil
	}
	for _, d := range drifts {
		if d.Gone {
			fmt.Printf("%s%s: no longer exists, removed from state%s\n", colorRed, d.Address, colorReset)
			continue
		}
		fmt.Printf("%s%s: attributes drifted, state refreshed%s\n", colorYellow, d.Address, colorReset)
	}
	return nil
}
