package ir

import "fmt"

// StateVersion is the current on-disk state format version.
const StateVersion = 1

// State is the durable snapshot of everything the engine has applied. It is
// the diff baseline for the next planning cycle and the only entity that
// survives across runs.
type State struct {
	Version   int              `json:"version"`
	Serial    int              `json:"serial"`
	Lineage   string           `json:"lineage"`
	Resources []*ResourceState `json:"resources"`
	Outputs   map[string]any   `json:"outputs,omitempty"`
}

// ResourceState is the last-applied record for a single resource.
type ResourceState struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Provider string `json:"provider"`

	// Inputs is the attribute set the resource was last applied with.
	Inputs map[string]any `json:"inputs"`
	// Outputs holds provider-assigned attributes (ids, ARNs, endpoints).
	Outputs map[string]any `json:"outputs,omitempty"`

	Dependencies []string `json:"dependencies,omitempty"`
	AppliedAt    string   `json:"applied_at,omitempty"`
}

// NewState returns an empty state at the current format version.
func NewState() *State {
	return &State{Version: StateVersion}
}

// Address returns the record's resource address (type.name).
func (r *ResourceState) Address() string {
	return fmt.Sprintf("%s.%s", r.Type, r.Name)
}

// Resource returns the record for addr, or nil.
func (s *State) Resource(addr string) *ResourceState {
	for _, r := range s.Resources {
		if r.Address() == addr {
			return r
		}
	}
	return nil
}

// ID returns the provider-assigned identifier from the record's outputs.
func (r *ResourceState) ID() string {
	if r.Outputs == nil {
		return ""
	}
	if id, ok := r.Outputs["id"]; ok {
		return fmt.Sprintf("%v", id)
	}
	return ""
}

// Clone returns a deep copy of the state. Loaders hand copies to callers so
// that no two owners ever share mutable records.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		Version: s.Version,
		Serial:  s.Serial,
		Lineage: s.Lineage,
		Outputs: CopyValues(s.Outputs),
	}
	if len(s.Resources) > 0 {
		out.Resources = make([]*ResourceState, len(s.Resources))
		for i, r := range s.Resources {
			out.Resources[i] = r.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the record.
func (r *ResourceState) Clone() *ResourceState {
	if r == nil {
		return nil
	}
	return &ResourceState{
		Type:         r.Type,
		Name:         r.Name,
		Provider:     r.Provider,
		Inputs:       CopyValues(r.Inputs),
		Outputs:      CopyValues(r.Outputs),
		Dependencies: append([]string(nil), r.Dependencies...),
		AppliedAt:    r.AppliedAt,
	}
}

// CopyValues deep-copies a JSON-shaped attribute map (values are scalars,
// []any or map[string]any).
func CopyValues(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CopyValues(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = copyValue(e)
		}
		return out
	default:
		return val
	}
}
