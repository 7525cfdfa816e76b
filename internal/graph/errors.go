package graph

import (
	"fmt"
	"strings"
)

// ErrorKind classifies why a graph could not be built.
type ErrorKind string

const (
	DuplicateIdentifier ErrorKind = "duplicate identifier"
	UnknownProviderType ErrorKind = "unknown provider type"
	MalformedExpression ErrorKind = "malformed expression"
	UnknownReference    ErrorKind = "unknown reference"
	CyclicDependency    ErrorKind = "cyclic dependency"
)

// BuildError is fatal: it aborts a run before any provider call is made.
type BuildError struct {
	Kind   ErrorKind
	Addr   string
	Detail string
	// Cycle lists the addresses forming the cycle, for CyclicDependency.
	Cycle []string
}

func (e *BuildError) Error() string {
	switch e.Kind {
	case CyclicDependency:
		return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Cycle, " -> "))
	default:
		if e.Addr != "" {
			return fmt.Sprintf("%s at %s: %s", e.Kind, e.Addr, e.Detail)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
}
