package graph

import "errors"

// Errors returned by Graph methods. Callers match them with errors.Is.
var (
	// ErrNodeNotFound is returned when a node id is not in the graph.
	ErrNodeNotFound = errors.New("graph: node not found")

	// ErrPortNotFound is returned when a port name is not defined for the
	// node's kind.
	ErrPortNotFound = errors.New("graph: port not found")

	// ErrCycle is returned by Connect when the edge would close a cycle, and
	// by ExecutionOrder if the graph is somehow cyclic.
	ErrCycle = errors.New("graph: connection would create a cycle")

	// ErrParamsMismatch is returned when params of one kind are assigned to
	// a node of another kind.
	ErrParamsMismatch = errors.New("graph: params do not match node kind")

	// ErrUnknownKind is returned by ParseKind for an unrecognised name.
	ErrUnknownKind = errors.New("graph: unknown operation kind")
)
