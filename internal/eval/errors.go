package eval

import "fmt"

// Error is an evaluation failure scoped to a single node. It never aborts a
// whole run: the owning node and its transitive dependents are skipped while
// independent parts of the graph proceed.
type Error struct {
	Addr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("evaluation failed for %s: %v", e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SkipError marks a node skipped because an upstream node failed to
// evaluate.
type SkipError struct {
	Addr     string
	Upstream string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("%s skipped: upstream %s failed evaluation", e.Addr, e.Upstream)
}
