package engine

import "fmt"

// PlanError is a policy violation discovered while calculating a plan:
// destroying a resource that other state records still depend on, or a
// change that would destroy a prevent_destroy resource.
type PlanError struct {
	Addr   string
	Reason string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("%s: %s", e.Addr, e.Reason)
}
