package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cairnhq/cairn/internal/ir"
	"github.com/cairnhq/cairn/internal/logging"
	"github.com/cairnhq/cairn/internal/state"
)

// Drift describes the difference between a state record and the resource
// the provider actually observed.
type Drift struct {
	Address string
	// Gone means the resource no longer exists outside of state.
	Gone bool
	// Observed holds the refreshed provider-assigned attributes.
	Observed map[string]any
}

// Refresh re-reads every recorded resource from its provider and reconciles
// state with reality: records of vanished resources are dropped, drifted
// outputs are refreshed. Returns what changed.
func (e *Engine) Refresh(ctx context.Context, snap *ir.State, store state.Store) ([]Drift, error) {
	var drifts []Drift

	// Walk a copy: pruning mutates snap.Resources.
	recs := make([]*ir.ResourceState, len(snap.Resources))
	copy(recs, snap.Resources)

	for _, rec := range recs {
		addr := rec.Address()
		if err := e.registry.LoadProvider(rec.Provider); err != nil {
			return drifts, err
		}
		prov, err := e.registry.Get(rec.Provider)
		if err != nil {
			return drifts, err
		}
		if err := prov.Configure(ctx, e.ProviderSettings[rec.Provider]); err != nil {
			return drifts, fmt.Errorf("failed to configure provider %s: %w", rec.Provider, err)
		}

		observed, err := prov.Read(ctx, rec.Type, rec.ID(), mergedPrior(rec))
		if err != nil {
			return drifts, fmt.Errorf("failed to refresh %s: %w", addr, err)
		}

		if observed == nil {
			logging.Info("resource vanished outside of cairn, dropping record", "address", addr)
			removeRecord(snap, addr)
			if err := store.Remove(ctx, addr); err != nil {
				return drifts, err
			}
			drifts = append(drifts, Drift{Address: addr, Gone: true})
			continue
		}

		if !attrsEqual(rec.Outputs, observed) {
			rec.Outputs = observed
			rec.AppliedAt = time.Now().UTC().Format(time.RFC3339)
			if err := store.Save(ctx, addr, rec); err != nil {
				return drifts, err
			}
			drifts = append(drifts, Drift{Address: addr, Observed: observed})
		}
	}
	return drifts, nil
}

func attrsEqual(a, b map[string]any) bool {
	diff := diffAttrs(a, b, nil, nil)
	return len(diff) == 0
}
