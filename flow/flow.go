package flow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Nanguage/sunmao-core/flow/engine"
)

// Element is anything a flow can own: nodes, connections, and auxiliary
// objects keyed by their stable id.
type Element interface {
	ID() string
}

// Flow is the owning container of nodes and connections. It keeps typed
// indexes plus a combined id set; Add and Remove are idempotent.
type Flow struct {
	id      string
	name    string
	session *Session

	mu     sync.Mutex
	order  []string
	nodes  map[string]*Node
	conns  map[string]*Connection
	others map[string]Element
	ids    map[string]struct{}
}

// FlowOption configures flow construction.
type FlowOption func(*flowConfig)

type flowConfig struct {
	name    string
	session *Session
}

// WithName names the flow; the default is "flow_" plus an id suffix.
func WithName(name string) FlowOption {
	return func(c *flowConfig) { c.name = name }
}

// WithSession places the flow in an explicit session instead of the ambient
// current one.
func WithSession(s *Session) FlowOption {
	return func(c *flowConfig) { c.session = s }
}

// NewFlow creates a flow, registers it with its session and makes it the
// session's current flow.
func NewFlow(opts ...FlowOption) *Flow {
	cfg := flowConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	id := uuid.NewString()
	name := cfg.name
	if name == "" {
		name = "flow_" + id[len(id)-8:]
	}
	f := &Flow{
		id:     id,
		name:   name,
		nodes:  map[string]*Node{},
		conns:  map[string]*Connection{},
		others: map[string]Element{},
		ids:    map[string]struct{}{},
	}
	sess := cfg.session
	if sess == nil {
		sess = Current()
	}
	f.session = sess
	sess.AddFlow(f)
	return f
}

// ID returns the flow's stable identifier.
func (f *Flow) ID() string { return f.id }

// Name returns the flow name.
func (f *Flow) Name() string { return f.name }

// Session returns the owning session.
func (f *Flow) Session() *Session { return f.session }

// Add registers an element; re-adding a registered element is a no-op.
func (f *Flow) Add(el Element) {
	if cn, ok := el.(*ComputeNode); ok {
		el = &cn.Node
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ids[el.ID()]; ok {
		return
	}
	switch v := el.(type) {
	case *Node:
		f.nodes[v.id] = v
	case *Connection:
		f.conns[v.id] = v
	default:
		f.others[el.ID()] = el
	}
	f.ids[el.ID()] = struct{}{}
	f.order = append(f.order, el.ID())
}

// Contains reports whether the element is registered.
func (f *Flow) Contains(el Element) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ids[el.ID()]
	return ok
}

// Remove unregisters an element; removing an unknown element is a no-op.
// Removing a node removes every connection touching it; removing a
// connection disconnects its endpoints.
func (f *Flow) Remove(el Element) {
	if cn, ok := el.(*ComputeNode); ok {
		el = &cn.Node
	}
	f.mu.Lock()
	if _, ok := f.ids[el.ID()]; !ok {
		f.mu.Unlock()
		return
	}
	delete(f.ids, el.ID())
	for i, id := range f.order {
		if id == el.ID() {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	switch v := el.(type) {
	case *Node:
		delete(f.nodes, v.id)
		f.mu.Unlock()
		for _, c := range v.connections() {
			f.Remove(c)
		}
		return
	case *Connection:
		delete(f.conns, v.id)
		f.mu.Unlock()
		v.source.Disconnect(v.target)
		return
	default:
		delete(f.others, el.ID())
	}
	f.mu.Unlock()
}

// Nodes returns the flow's nodes in insertion order.
func (f *Flow) Nodes() []*Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Node
	for _, id := range f.order {
		if n, ok := f.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Connections returns the flow's connections in insertion order.
func (f *Flow) Connections() []*Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Connection
	for _, id := range f.order {
		if c, ok := f.conns[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// FreeInputPorts returns every input port with an empty connection set:
// the graph's input surface.
func (f *Flow) FreeInputPorts() []*InputPort {
	var out []*InputPort
	for _, n := range f.Nodes() {
		out = append(out, n.freeInputPorts()...)
	}
	return out
}

// FreeOutputPorts returns every output port with an empty connection set:
// the graph's output surface.
func (f *Flow) FreeOutputPorts() []*OutputPort {
	var out []*OutputPort
	for _, n := range f.Nodes() {
		out = append(out, n.freeOutputPorts()...)
	}
	return out
}

// Call runs the whole graph: fill every free input port from inputs (keys
// are bare port names or "node.port" qualifiers; a missing key is an
// error), activate the owning nodes, drain the session's jobs and collect
// the free data output port caches keyed by "node.port".
func (f *Flow) Call(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	targets := map[*Node]struct{}{}
	for _, in := range f.FreeInputPorts() {
		if in.IsExec() {
			in.PutEmptySignal()
		} else {
			v, ok := inputs[in.Name()]
			if !ok {
				v, ok = inputs[in.Node().Name()+"."+in.Name()]
			}
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s", ErrMissingInput, in.Node().Name(), in.Name())
			}
			in.PutSignal(v)
		}
		targets[in.Node()] = struct{}{}
	}
	nodes := make([]*Node, 0, len(targets))
	for n := range targets {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].id < nodes[j].id })
	for _, n := range nodes {
		if err := n.Activate(ctx); err != nil {
			return nil, err
		}
	}
	if err := f.Join(ctx); err != nil {
		return nil, err
	}
	res := map[string]any{}
	for _, out := range f.FreeOutputPorts() {
		if out.IsExec() {
			continue
		}
		res[out.Node().Name()+"."+out.Name()] = out.CacheValue()
	}
	return res, nil
}

// Join blocks until none of this flow's nodes has a pending or running job.
func (f *Flow) Join(ctx context.Context, opts ...engine.WaitOption) error {
	eng := f.session.Engine()
	sel := func(e *engine.Engine) []*engine.Job {
		var waiting []*engine.Job
		for _, n := range f.Nodes() {
			for _, id := range n.JobIDs() {
				if j, ok := e.Job(id); ok {
					if st := j.Status(); st == engine.StatusPending || st == engine.StatusRunning {
						waiting = append(waiting, j)
					}
				}
			}
		}
		return waiting
	}
	opts = append([]engine.WaitOption{engine.WithSelect(sel)}, opts...)
	return eng.Wait(ctx, opts...)
}

// Enter makes the flow its session's current flow and returns a func that
// restores the previous one.
func (f *Flow) Enter() (restore func()) {
	prev := f.session.swapCurrentFlow(f)
	return func() { f.session.swapCurrentFlow(prev) }
}

// Copy deep-copies the node set, preserving per-node settings, and rewires
// the connections by port index. Signal buffers, caches and job history are
// not copied.
func (f *Flow) Copy() (*Flow, error) {
	out := NewFlow(WithSession(f.session))
	mapped := map[string]*Node{}
	for _, n := range f.Nodes() {
		if n.clone == nil {
			return nil, fmt.Errorf("node %q is not copyable", n.name)
		}
		nn, err := n.clone(out)
		if err != nil {
			return nil, err
		}
		mapped[n.id] = nn
	}
	for _, c := range f.Connections() {
		src := mapped[c.source.node.id]
		dst := mapped[c.target.node.id]
		if src == nil || dst == nil {
			continue
		}
		if _, err := src.outputs[c.source.Index()].ConnectWith(dst.inputs[c.target.Index()]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
