package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrFrozen       = errors.New("graph is frozen")
	ErrUnknownNode  = errors.New("unknown node")
	ErrUnknownParam = errors.New("unknown parameter")
	ErrInvalidNode  = errors.New("invalid node")
	ErrCycle        = errors.New("audio cycle")
	ErrConnection   = errors.New("invalid connection")
)

// CycleError reports an audio-rate cycle that does not pass through a Delay
// node. Path starts and ends with the same node.
type CycleError struct {
	Path []NodeID
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return "audio cycle without delay: " + strings.Join(parts, " -> ")
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// InvalidNodeError reports a node whose configuration or lifetime is invalid.
type InvalidNodeError struct {
	Node   NodeID
	Kind   Kind
	Reason string
}

func (e *InvalidNodeError) Error() string {
	return fmt.Sprintf("invalid %s node %d: %s", e.Kind, e.Node, e.Reason)
}

func (e *InvalidNodeError) Unwrap() error { return ErrInvalidNode }
