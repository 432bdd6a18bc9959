package flow

import "github.com/google/uuid"

// Connection is a directed edge from an output port to an input port.
// Equality is structural: two connections are equal when they join the same
// (source, target) pair.
type Connection struct {
	id     string
	source *OutputPort
	target *InputPort
	flow   *Flow
}

func newConnection(source *OutputPort, target *InputPort) *Connection {
	return &Connection{
		id:     uuid.NewString(),
		source: source,
		target: target,
		flow:   target.node.flow,
	}
}

// ID returns the connection's stable identifier.
func (c *Connection) ID() string { return c.id }

// Source returns the upstream output port.
func (c *Connection) Source() *OutputPort { return c.source }

// Target returns the downstream input port.
func (c *Connection) Target() *InputPort { return c.target }

// Flow returns the flow the connection is registered in.
func (c *Connection) Flow() *Flow { return c.flow }

// Equal reports structural equality on the (source, target) pair.
func (c *Connection) Equal(o *Connection) bool {
	if o == nil {
		return false
	}
	return c.source == o.source && c.target == o.target
}
