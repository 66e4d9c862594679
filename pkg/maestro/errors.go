package maestro

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for workflow compilation and execution.
var (
	// ErrNilContext indicates Run() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrEmptyGraph indicates the workflow document has no nodes.
	ErrEmptyGraph = errors.New("workflow has no nodes")

	// ErrCycle indicates the workflow contains a dependency cycle.
	// Only returned under strict scheduling; the default scheduler
	// breaks cycles and keeps going.
	ErrCycle = errors.New("workflow contains a cycle")
)

// StructuralError reports the nodes a strict scheduling pass could not
// unblock.
type StructuralError struct {
	// Stuck lists the node ids caught in the cycle, in declaration order.
	Stuck []string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	return fmt.Sprintf("cycle involving nodes %s", strings.Join(e.Stuck, ", "))
}

// Unwrap returns ErrCycle for errors.Is support.
func (e *StructuralError) Unwrap() error {
	return ErrCycle
}

// NodeError wraps an error with node context.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// NodeType is the type of the node that failed.
	NodeType string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.NodeType, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}
