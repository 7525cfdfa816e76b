package ir

// Plan is a calculated set of changes, ordered so that every change appears
// after the changes it depends on. Destroys are appended in reverse
// dependency order.
type Plan struct {
	Metadata *PlanMetadata     `json:"metadata"`
	Changes  []*ResourceChange `json:"changes"`
	Summary  *PlanSummary      `json:"summary"`
}

type PlanMetadata struct {
	Timestamp string `json:"timestamp"`
}

// ResourceChange is a single planned action bound to a resource address.
type ResourceChange struct {
	Address  string `json:"address"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Action   Action `json:"action"`

	// Desired holds the fully resolved desired attribute set; nil for destroys.
	Desired map[string]any `json:"desired,omitempty"`
	// Prior holds the last-applied attribute set from state; nil for creates.
	Prior map[string]any `json:"prior,omitempty"`

	Diff map[string]*AttributeDiff `json:"diff,omitempty"`

	// CreateBeforeDestroy controls replacement ordering for this change.
	CreateBeforeDestroy bool `json:"create_before_destroy,omitempty"`
}

// AttributeDiff describes a single attribute transition.
type AttributeDiff struct {
	Before            any    `json:"before,omitempty"`
	After             any    `json:"after,omitempty"`
	ForcesReplacement bool   `json:"forces_replacement,omitempty"`
	Action            Action `json:"action"`
}

type PlanSummary struct {
	Create  int `json:"create"`
	Update  int `json:"update"`
	Replace int `json:"replace"`
	Destroy int `json:"destroy"`
	NoOp    int `json:"noop"`
	Skipped int `json:"skipped"`
}

// HasChanges reports whether applying the plan would have any side effect.
func (p *Plan) HasChanges() bool {
	return len(p.Changes) > 0
}
