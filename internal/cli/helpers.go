package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cairnhq/cairn/internal/config"
	"github.com/cairnhq/cairn/internal/engine"
	"github.com/cairnhq/cairn/internal/ir"
	registry "github.com/cairnhq/cairn/internal/provider"
	"github.com/cairnhq/cairn/internal/state"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
)

// resolveDir returns the declaration directory for a command: the first
// positional argument, or the working directory.
func resolveDir(args []string) (string, error) {
	if len(args) == 0 {
		return os.Getwd()
	}
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", args[0])
	}
	return abs, nil
}

// newStore constructs the state backend selected by the global flags.
func newStore(ctx context.Context, dir string) (state.Store, error) {
	switch rootBackend {
	case "", "local":
		return state.NewFileStore(filepath.Join(dir, ".cairn", "state.json")), nil
	case "s3":
		return state.NewS3Store(ctx, state.S3Config{
			Bucket:    rootBackendConfig["bucket"],
			Key:       rootBackendConfig["key"],
			Region:    rootBackendConfig["region"],
			Profile:   rootBackendConfig["profile"],
			LockTable: rootBackendConfig["lock_table"],
			Encrypt:   rootBackendConfig["encrypt"] == "true",
		})
	default:
		return nil, fmt.Errorf("unknown backend %q (expected local or s3)", rootBackend)
	}
}

// newEngine builds an engine wired with provider settings parsed from
// "provider.key=value" entries. The registry is returned alongside so
// commands can pre-load providers referenced only by state.
func newEngine(providerConfig map[string]string, parallelism int) (*engine.Engine, *registry.Registry) {
	reg := registry.NewRegistry()
	eng := engine.New(reg)
	if parallelism > 0 {
		eng.Parallelism = parallelism
	}

	settings := make(map[string]map[string]string)
	for key, value := range providerConfig {
		name, attr, found := strings.Cut(key, ".")
		if !found {
			continue
		}
		if settings[name] == nil {
			settings[name] = make(map[string]string)
		}
		settings[name][attr] = value
	}
	eng.ProviderSettings = settings
	return eng, reg
}

// loadStateProviders pre-loads providers referenced only by state records,
// needed when planning destroys of undeclared resources.
func loadStateProviders(reg *registry.Registry, snap *ir.State) error {
	seen := make(map[string]bool)
	for _, rec := range snap.Resources {
		if rec.Provider == "" || seen[rec.Provider] {
			continue
		}
		seen[rec.Provider] = true
		if err := reg.LoadProvider(rec.Provider); err != nil {
			return fmt.Errorf("failed to load provider %s: %w", rec.Provider, err)
		}
	}
	return nil
}

// renderPlan prints the full change list in declaration-file style.
func renderPlan(plan *ir.Plan) {
	for _, change := range plan.Changes {
		color := colorYellow
		switch change.Action {
		case ir.ActionCreate:
			color = colorGreen
		case ir.ActionDestroy:
			color = colorRed
		}

		fmt.Printf("\n%s  # %s will be %sd%s\n", color, change.Address, change.Action, colorReset)
		fmt.Printf("%s  %s resource %q %q {%s\n", color, change.Action.Symbol(), change.Type, change.Name, colorReset)

		switch change.Action {
		case ir.ActionDestroy:
			for _, k := range sortedKeys(change.Prior) {
				fmt.Printf("%s      - %s = %s%s\n", colorRed, k, formatValue(change.Prior[k]), colorReset)
			}
		default:
			renderAttributeDiffs(change.Diff)
		}
		fmt.Printf("%s    }%s\n", color, colorReset)
	}
}

func renderAttributeDiffs(diff map[string]*ir.AttributeDiff) {
	keys := make([]string, 0, len(diff))
	for k := range diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		d := diff[k]
		suffix := ""
		if d.ForcesReplacement {
			suffix = " # forces replacement"
		}
		switch d.Action {
		case ir.ActionCreate:
			fmt.Printf("%s      + %s = %s%s%s\n", colorGreen, k, formatValue(d.After), suffix, colorReset)
		case ir.ActionDestroy:
			fmt.Printf("%s      - %s = %s%s%s\n", colorRed, k, formatValue(d.Before), suffix, colorReset)
		default:
			fmt.Printf("%s      ~ %s = %s -> %s%s%s\n", colorYellow, k, formatValue(d.Before), formatValue(d.After), suffix, colorReset)
		}
	}
}

// renderPlanSummary prints the one-line totals for a plan.
func renderPlanSummary(plan *ir.Plan) {
	s := plan.Summary
	fmt.Printf("\nPlan: %d to create, %d to update, %d to replace, %d to destroy.\n",
		s.Create, s.Update, s.Replace, s.Destroy)
	if s.NoOp > 0 {
		fmt.Printf("%d resource(s) unchanged.\n", s.NoOp)
	}
	if s.Skipped > 0 {
		fmt.Printf("%d resource(s) skipped due to evaluation errors.\n", s.Skipped)
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	case map[string]any:
		parts := make([]string, 0, len(val))
		for _, k := range sortedKeys(val) {
			parts = append(parts, fmt.Sprintf("%s = %s", k, formatValue(val[k])))
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, formatValue(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// confirm prompts for interactive approval.
func confirm(prompt string) bool {
	fmt.Printf("%s (y/n): ", prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}

// mustLoad loads declarations and wraps failures uniformly.
func mustLoad(dir string) (*config.Module, error) {
	mod, err := config.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return mod, nil
}
