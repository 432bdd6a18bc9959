package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Nanguage/sunmao-core/flow/emit"
	"github.com/Nanguage/sunmao-core/flow/engine"
)

// FiringMode selects the node activation rule.
type FiringMode string

const (
	// FireAll fires once every input port holds a pending signal, consuming
	// one signal from each.
	FireAll FiringMode = "all"

	// FireAny fires as soon as any input port holds a signal; ports without
	// a signal contribute their predecessor's cache or their default.
	FireAny FiringMode = "any"
)

// Valid reports whether m is an accepted firing mode.
func (m FiringMode) Valid() bool { return m == FireAll || m == FireAny }

// fireFunc is the behavior hook invoked when the firing rule is satisfied.
// args holds one value per input data port, in port order.
type fireFunc func(ctx context.Context, args []any) error

// Node is a computation unit with fixed-arity input and output port vectors
// and a firing rule. Node is the structural half; ComputeNode attaches the
// callable and job submission.
//
// The node mutex guards all port state (buffers, connections, caches) of
// its own ports, so signal arrival and firing-rule evaluation are atomic
// per node: Activate re-evaluates buffer occupancy under the lock on every
// call, which is what prevents double-fires and missed fires when upstream
// ports push in rapid succession.
type Node struct {
	id   string
	name string
	flow *Flow

	mu      sync.Mutex
	inputs  []*InputPort
	outputs []*OutputPort
	mode    FiringMode
	jobIDs  []string

	fire  fireFunc
	clone func(target *Flow) (*Node, error)
}

// NodeOption configures node construction.
type NodeOption func(*nodeConfig)

type nodeConfig struct {
	flow    *Flow
	mode    FiringMode
	jobType engine.JobType
}

// WithFlow places the node (or flow element) in an explicit flow instead of
// the ambient session's current flow.
func WithFlow(f *Flow) NodeOption {
	return func(c *nodeConfig) { c.flow = f }
}

// WithFiringMode overrides the node's initial firing mode.
func WithFiringMode(m FiringMode) NodeOption {
	return func(c *nodeConfig) { c.mode = m }
}

// WithJobType overrides a compute node's job type.
func WithJobType(t engine.JobType) NodeOption {
	return func(c *nodeConfig) { c.jobType = t }
}

// NewNode builds a node from port blueprints and registers it in a flow
// (the ambient current flow unless WithFlow is given). Port vectors keep
// blueprint order; their length never changes after construction.
func NewNode(name string, inputs, outputs []Blueprint, opts ...NodeOption) (*Node, error) {
	cfg := nodeConfig{mode: FireAll}
	for _, opt := range opts {
		opt(&cfg)
	}
	n := &Node{}
	if err := n.init(name, inputs, outputs, cfg.mode); err != nil {
		return nil, err
	}
	n.attach(cfg.flow)
	return n, nil
}

// init populates the node in place so embedding types keep port back
// references pointing at themselves.
func (n *Node) init(name string, inputs, outputs []Blueprint, mode FiringMode) error {
	if mode == "" {
		mode = FireAll
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFiringMode, mode)
	}
	n.id = uuid.NewString()
	n.name = name
	n.mode = mode
	seen := map[string]bool{}
	for _, bp := range inputs {
		if err := bp.validate(); err != nil {
			return err
		}
		if seen[bp.Name] {
			return fmt.Errorf("duplicate input port name %q on node %q", bp.Name, name)
		}
		seen[bp.Name] = true
		n.inputs = append(n.inputs, bp.buildInput(n))
	}
	seen = map[string]bool{}
	for _, bp := range outputs {
		if err := bp.validate(); err != nil {
			return err
		}
		if seen[bp.Name] {
			return fmt.Errorf("duplicate output port name %q on node %q", bp.Name, name)
		}
		seen[bp.Name] = true
		n.outputs = append(n.outputs, bp.buildOutput(n))
	}
	return nil
}

// attach registers the node in f, or in the ambient current flow when f is
// nil.
func (n *Node) attach(f *Flow) {
	if f == nil {
		f = Current().CurrentFlow()
	}
	n.flow = f
	f.Add(n)
}

// ID returns the node's stable identifier.
func (n *Node) ID() string { return n.id }

// Name returns the node name used in flow-level "node.port" keys.
func (n *Node) Name() string { return n.name }

// Flow returns the owning flow.
func (n *Node) Flow() *Flow { return n.flow }

// Inputs returns the input port vector. The returned slice is a copy; the
// ports themselves are shared.
func (n *Node) Inputs() []*InputPort {
	out := make([]*InputPort, len(n.inputs))
	copy(out, n.inputs)
	return out
}

// Outputs returns the output port vector as a copy.
func (n *Node) Outputs() []*OutputPort {
	out := make([]*OutputPort, len(n.outputs))
	copy(out, n.outputs)
	return out
}

// In returns the i-th input port. It panics on an out-of-range index, like
// slice indexing.
func (n *Node) In(i int) *InputPort { return n.inputs[i] }

// Out returns the i-th output port.
func (n *Node) Out(i int) *OutputPort { return n.outputs[i] }

// Port looks a port up by name, searching inputs then outputs.
func (n *Node) Port(name string) (Port, error) {
	for _, in := range n.inputs {
		if in.name == name {
			return in, nil
		}
	}
	for _, out := range n.outputs {
		if out.name == name {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %q on node %q", ErrNoSuchPort, name, n.name)
}

// FiringMode returns the current firing mode.
func (n *Node) FiringMode() FiringMode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mode
}

// SetFiringMode switches the firing rule. Any accepted value clears every
// input port's signal buffer, preventing stale mixed-mode state.
func (n *Node) SetFiringMode(m FiringMode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFiringMode, m)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mode = m
	for _, in := range n.inputs {
		in.buffer = nil
	}
	return nil
}

// JobIDs returns the ids of all jobs this node has submitted.
func (n *Node) JobIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.jobIDs))
	copy(out, n.jobIDs)
	return out
}

// ClearPortCaches clears every output data port's cache.
func (n *Node) ClearPortCaches() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, out := range n.outputs {
		out.cache = nil
		out.hasCache = false
	}
}

// Activate evaluates the firing rule against the current signal buffers and
// fires at most once. Arrival of every signal is followed by an Activate
// call, so each "rule satisfied" transition fires exactly once.
func (n *Node) Activate(ctx context.Context) error {
	n.mu.Lock()
	args, missing, fired, err := n.collectLocked()
	n.mu.Unlock()
	if err != nil || !fired {
		return err
	}
	// Cache substitution reads other nodes' ports, so it happens outside
	// this node's lock.
	for _, m := range missing {
		args[m.idx] = m.port.FetchMissing()
	}
	if em := n.emitter(); em != nil {
		em.Emit(emit.Event{
			NodeID: n.id,
			FlowID: n.flowID(),
			Msg:    "node_fired",
			Meta:   map[string]any{"node": n.name, "mode": string(n.FiringMode())},
		})
	}
	if n.fire == nil {
		return nil
	}
	return n.fire(ctx, args)
}

// missingArg marks an argument slot to be filled by cache substitution
// after the node lock is released.
type missingArg struct {
	idx  int
	port *InputPort
}

// collectLocked applies the firing rule. On a fire it consumes one signal
// from every participating port and returns the argument list built from
// the data ports; exec ports consume a signal but contribute no argument.
// Payloads are validated before anything is consumed so a check failure
// leaves every buffer intact. Any-mode ports without a signal are returned
// as missing slots for the caller to substitute.
func (n *Node) collectLocked() ([]any, []missingArg, bool, error) {
	switch n.mode {
	case FireAll:
		for _, in := range n.inputs {
			if len(in.buffer) == 0 {
				return nil, nil, false, nil
			}
		}
		for _, in := range n.inputs {
			if in.desc != nil && in.buffer[0].HasData {
				if err := in.desc.Check(in.buffer[0].Data); err != nil {
					return nil, nil, false, err
				}
			}
		}
		var args []any
		for _, in := range n.inputs {
			sig, _ := in.popLocked()
			if in.desc == nil {
				continue
			}
			args = append(args, sig.Data)
		}
		return args, nil, true, nil

	case FireAny:
		have := false
		for _, in := range n.inputs {
			if len(in.buffer) > 0 {
				have = true
				break
			}
		}
		if !have {
			return nil, nil, false, nil
		}
		for _, in := range n.inputs {
			if in.desc != nil && len(in.buffer) > 0 && in.buffer[0].HasData {
				if err := in.desc.Check(in.buffer[0].Data); err != nil {
					return nil, nil, false, err
				}
			}
		}
		var args []any
		var missing []missingArg
		for _, in := range n.inputs {
			if len(in.buffer) > 0 {
				sig, _ := in.popLocked()
				if in.desc == nil {
					continue
				}
				args = append(args, sig.Data)
				continue
			}
			if in.desc == nil {
				continue
			}
			args = append(args, nil)
			missing = append(missing, missingArg{idx: len(args) - 1, port: in})
		}
		return args, missing, true, nil
	}
	return nil, nil, false, fmt.Errorf("%w: %q", ErrInvalidFiringMode, n.mode)
}

// ConnectWith connects the node's outIdx output port to other's inIdx input
// port and returns other, so calls chain:
//
//	a.ConnectWith(b, 0, 0)
func (n *Node) ConnectWith(other *Node, outIdx, inIdx int) (*Node, error) {
	if outIdx < 0 || outIdx >= len(n.outputs) {
		return nil, fmt.Errorf("%w: output %d of node %q", ErrPortIndex, outIdx, n.name)
	}
	if inIdx < 0 || inIdx >= len(other.inputs) {
		return nil, fmt.Errorf("%w: input %d of node %q", ErrPortIndex, inIdx, other.name)
	}
	if _, err := n.outputs[outIdx].ConnectWith(other.inputs[inIdx]); err != nil {
		return nil, err
	}
	return other, nil
}

// freeInputPorts returns input ports with no upstream connection.
func (n *Node) freeInputPorts() []*InputPort {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*InputPort
	for _, in := range n.inputs {
		if len(in.conns) == 0 {
			out = append(out, in)
		}
	}
	return out
}

// freeOutputPorts returns output ports with no downstream connection.
func (n *Node) freeOutputPorts() []*OutputPort {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*OutputPort
	for _, o := range n.outputs {
		if len(o.conns) == 0 {
			out = append(out, o)
		}
	}
	return out
}

// connections returns every connection touching the node.
func (n *Node) connections() []*Connection {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*Connection
	for _, in := range n.inputs {
		out = append(out, in.conns...)
	}
	for _, o := range n.outputs {
		out = append(out, o.conns...)
	}
	return out
}

func (n *Node) emitter() emit.Emitter {
	if n.flow == nil || n.flow.session == nil {
		return nil
	}
	return n.flow.session.Engine().Emitter()
}

func (n *Node) flowID() string {
	if n.flow == nil {
		return ""
	}
	return n.flow.id
}
