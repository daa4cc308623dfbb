package domain

import "fmt"

// DuplicateNodeError indicates a node id was added twice. Fatal at load time.
type DuplicateNodeError struct {
	ID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node id %q", e.ID)
}

// DanglingEdgeError indicates an edge referencing a node id that does not
// exist in the graph. Fatal at load time.
type DanglingEdgeError struct {
	From string
	To   string
	Type EdgeType
}

func (e *DanglingEdgeError) Error() string {
	return fmt.Sprintf("dangling %s edge %q -> %q", e.Type, e.From, e.To)
}

// NotFoundError indicates a requested node is absent from the graph.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("node %q not found", e.ID)
}

// ResolutionError indicates resolution for one identity failed. It isolates
// the failure to that identity; the batch continues.
type ResolutionError struct {
	IdentityID string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolution failed for identity %q: %v", e.IdentityID, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates an identity's per-run budget was exceeded. Findings
// computed before the deadline are retained and flagged incomplete.
type TimeoutError struct {
	IdentityID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("resolution timed out for identity %q", e.IdentityID)
}
