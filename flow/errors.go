// Package flow provides the reactive dataflow kernel: typed ports, signal
// buffers, connections, nodes with all/any firing rules, flows and sessions.
//
// A graph is built from ComputeNodes whose output ports are connected to
// downstream input ports. Submitting data to a node enqueues signals on its
// input buffers; when the node's firing rule is satisfied it consumes one
// signal per port and submits a job to the session's engine. Job results are
// pushed along connections, activating downstream nodes until the graph
// converges.
package flow

import (
	"errors"
	"fmt"
	"reflect"
)

// Sentinel errors for programmatic checks via errors.Is.
var (
	// ErrMissingInput indicates a free input port had no value in the map
	// passed to Flow.Call.
	ErrMissingInput = errors.New("free input port not provided")

	// ErrInvalidFiringMode indicates an attempt to set a firing mode outside
	// {FireAll, FireAny}.
	ErrInvalidFiringMode = errors.New("invalid firing mode")

	// ErrEmptySignalBuffer indicates a read from an input port whose signal
	// buffer holds no signals.
	ErrEmptySignalBuffer = errors.New("signal buffer is empty")

	// ErrNoSuchPort indicates a port lookup by name found nothing.
	ErrNoSuchPort = errors.New("no such port")

	// ErrPortIndex indicates a port index outside the node's port vector.
	ErrPortIndex = errors.New("port index out of range")
)

// TypeCheckError reports a value that does not satisfy a port's type
// predicate. It is raised synchronously from the call site that pushed or
// received the value, before the value enters the graph.
type TypeCheckError struct {
	// Port is the name of the port whose descriptor rejected the value.
	Port string

	// Want is the expected type.
	Want reflect.Type

	// Got is the offending value.
	Got any
}

// Error implements the error interface.
func (e *TypeCheckError) Error() string {
	return fmt.Sprintf("port %q: expect type %v, got %T (%v)", e.Port, e.Want, e.Got, e.Got)
}

// RangeCheckError reports a value outside a port's declared range.
type RangeCheckError struct {
	// Port is the name of the port whose descriptor rejected the value.
	Port string

	// Range is the declared range, typically an Interval.
	Range any

	// Got is the offending value.
	Got any
}

// Error implements the error interface.
func (e *RangeCheckError) Error() string {
	return fmt.Sprintf("port %q: expect range %v, got %v", e.Port, e.Range, e.Got)
}
