package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/Nanguage/sunmao-core/flow/emit"
)

// Signal is an activation token on an input port, optionally carrying a
// data payload. Signals are created by OutputPort pushes and by
// caller-initiated input fills; user code never constructs them directly.
type Signal struct {
	Data    any
	HasData bool
}

// Port is the common surface of the four port variants.
type Port interface {
	ID() string
	Name() string
	Node() *Node
}

// portBase carries the header shared by every port variant. Port state is
// guarded by the owning node's mutex; exported methods lock it, unexported
// *Locked methods expect it held.
type portBase struct {
	id   string
	name string
	node *Node
}

// ID returns the port's stable identifier.
func (p *portBase) ID() string { return p.id }

// Name returns the port name, unique within its side of the node.
func (p *portBase) Name() string { return p.name }

// Node returns the owning node.
func (p *portBase) Node() *Node { return p.node }

// InputPort is a typed endpoint receiving signals. A data input port
// (Descriptor != nil) validates consumed payloads; an exec input port
// carries bare activation signals.
//
// Connection cardinality is strict: an input port keeps at most one
// upstream connection, and connecting a new source replaces the old one.
type InputPort struct {
	portBase
	desc         *Descriptor
	conns        []*Connection
	buffer       []Signal
	lastProvider *OutputPort
}

// IsExec reports whether the port is signal-only.
func (p *InputPort) IsExec() bool { return p.desc == nil }

// Descriptor returns the port's value descriptor, nil for exec ports.
func (p *InputPort) Descriptor() *Descriptor { return p.desc }

// Connections returns a snapshot of the port's connection set.
func (p *InputPort) Connections() []*Connection {
	p.node.mu.Lock()
	defer p.node.mu.Unlock()
	out := make([]*Connection, len(p.conns))
	copy(out, p.conns)
	return out
}

// Index returns the port's position in the node's input vector.
func (p *InputPort) Index() int {
	for i, in := range p.node.inputs {
		if in == p {
			return i
		}
	}
	return -1
}

// PutSignal enqueues an activation signal carrying data. It does not
// activate the node; callers follow up with Node.Activate.
func (p *InputPort) PutSignal(data any) {
	p.put(nil, Signal{Data: data, HasData: true})
}

// PutEmptySignal enqueues a bare activation signal.
func (p *InputPort) PutEmptySignal() {
	p.put(nil, Signal{})
}

func (p *InputPort) put(provider *OutputPort, sig Signal) {
	p.node.mu.Lock()
	defer p.node.mu.Unlock()
	p.buffer = append(p.buffer, sig)
	p.lastProvider = provider
}

// GetSignal pops the oldest signal from the buffer.
func (p *InputPort) GetSignal() (Signal, bool) {
	p.node.mu.Lock()
	defer p.node.mu.Unlock()
	return p.popLocked()
}

func (p *InputPort) popLocked() (Signal, bool) {
	if len(p.buffer) == 0 {
		return Signal{}, false
	}
	sig := p.buffer[0]
	p.buffer = p.buffer[1:]
	return sig, true
}

// GetData pops one signal, validates its payload against the descriptor and
// returns the payload. Bare signals carry a nil payload through unchecked.
func (p *InputPort) GetData() (any, error) {
	p.node.mu.Lock()
	sig, ok := p.popLocked()
	p.node.mu.Unlock()
	if !ok {
		return nil, ErrEmptySignalBuffer
	}
	if sig.HasData {
		if err := p.desc.Check(sig.Data); err != nil {
			return nil, err
		}
	}
	return sig.Data, nil
}

// ClearSignalBuffer drops all queued signals.
func (p *InputPort) ClearSignalBuffer() {
	p.node.mu.Lock()
	defer p.node.mu.Unlock()
	p.buffer = nil
}

// BufferLen returns the number of queued signals.
func (p *InputPort) BufferLen() int {
	p.node.mu.Lock()
	defer p.node.mu.Unlock()
	return len(p.buffer)
}

// FetchMissing resolves a value for the port when it holds no signal: the
// last-signal provider's cache if that provider is a data port with a cache,
// otherwise the descriptor default, otherwise nil. The provider's cache is
// read outside this node's lock; it belongs to another node.
func (p *InputPort) FetchMissing() any {
	p.node.mu.Lock()
	prov := p.lastProvider
	p.node.mu.Unlock()
	if prov != nil && prov.desc != nil {
		if v, ok := prov.Cache(); ok {
			return v
		}
	}
	if p.desc != nil && p.desc.HasDefault {
		return p.desc.Default
	}
	return nil
}

// OutputPort is a typed endpoint pushing values (data port) or bare
// activation signals (exec port) to its connections.
type OutputPort struct {
	portBase
	desc      *Descriptor
	conns     []*Connection
	callbacks []func(any)
	cache     any
	hasCache  bool
	cachedAt  time.Time
	saveCache bool
}

// IsExec reports whether the port is signal-only.
func (p *OutputPort) IsExec() bool { return p.desc == nil }

// Descriptor returns the port's value descriptor, nil for exec ports.
func (p *OutputPort) Descriptor() *Descriptor { return p.desc }

// Connections returns a snapshot of the port's connection set in insertion
// order; pushes walk connections in this order.
func (p *OutputPort) Connections() []*Connection {
	p.node.mu.Lock()
	defer p.node.mu.Unlock()
	out := make([]*Connection, len(p.conns))
	copy(out, p.conns)
	return out
}

// Index returns the port's position in the node's output vector.
func (p *OutputPort) Index() int {
	for i, out := range p.node.outputs {
		if out == p {
			return i
		}
	}
	return -1
}

// OnPush registers a callback invoked with every pushed payload, before the
// value travels along connections.
func (p *OutputPort) OnPush(fn func(data any)) {
	p.node.mu.Lock()
	defer p.node.mu.Unlock()
	p.callbacks = append(p.callbacks, fn)
}

// Cache returns the most recently pushed validated value. The second result
// is false when caching is disabled, the port never pushed, or the cache was
// cleared.
func (p *OutputPort) Cache() (any, bool) {
	p.node.mu.Lock()
	defer p.node.mu.Unlock()
	return p.cache, p.hasCache
}

// CacheValue returns the cached value or nil when there is none.
func (p *OutputPort) CacheValue() any {
	v, _ := p.Cache()
	return v
}

// CacheTime returns when the cache was last written.
func (p *OutputPort) CacheTime() (time.Time, bool) {
	p.node.mu.Lock()
	defer p.node.mu.Unlock()
	return p.cachedAt, p.hasCache
}

// ClearCache drops the cached value.
func (p *OutputPort) ClearCache() {
	p.node.mu.Lock()
	defer p.node.mu.Unlock()
	p.cache = nil
	p.hasCache = false
}

// SetSaveCache toggles caching of pushed values. Caching is on by default.
func (p *OutputPort) SetSaveCache(save bool) {
	p.node.mu.Lock()
	defer p.node.mu.Unlock()
	p.saveCache = save
}

// Push validates data against the descriptor, caches it, invokes the push
// callbacks, and delivers one signal to every connected input port,
// activating each target node in turn. Exec ports reject payloads; use
// PushEmpty.
func (p *OutputPort) Push(ctx context.Context, data any) error {
	if p.IsExec() {
		return fmt.Errorf("exec port %q carries no payload; use PushEmpty", p.name)
	}
	return p.push(ctx, Signal{Data: data, HasData: true})
}

// PushEmpty delivers a bare activation signal to every connection.
func (p *OutputPort) PushEmpty(ctx context.Context) error {
	return p.push(ctx, Signal{})
}

func (p *OutputPort) push(ctx context.Context, sig Signal) error {
	if p.desc != nil && sig.HasData {
		if err := p.desc.Check(sig.Data); err != nil {
			return err
		}
	}
	p.node.mu.Lock()
	if p.desc != nil && p.saveCache && sig.HasData {
		p.cache = sig.Data
		p.hasCache = true
		p.cachedAt = time.Now()
	}
	cbs := make([]func(any), len(p.callbacks))
	copy(cbs, p.callbacks)
	conns := make([]*Connection, len(p.conns))
	copy(conns, p.conns)
	p.node.mu.Unlock()

	for _, cb := range cbs {
		cb(sig.Data)
	}
	if em := p.node.emitter(); em != nil {
		em.Emit(emit.Event{
			NodeID: p.node.id,
			FlowID: p.node.flowID(),
			Msg:    "port_push",
			Meta:   map[string]any{"port": p.name, "connections": len(conns)},
		})
	}

	// Connections are walked in insertion order; downstream activation is
	// depth-first along each edge.
	var firstErr error
	for _, c := range conns {
		c.target.put(p, sig)
		if err := c.target.node.Activate(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ConnectWith connects the output port to an input port. Connecting an
// already-connected pair is a no-op returning the existing connection.
// Because input cardinality is strict, a previous connection into the input
// port (from any source) is removed first.
func (p *OutputPort) ConnectWith(in *InputPort) (*Connection, error) {
	in.node.mu.Lock()
	for _, c := range in.conns {
		if c.source == p {
			in.node.mu.Unlock()
			return c, nil
		}
	}
	old := in.conns
	in.conns = nil
	in.node.mu.Unlock()
	for _, c := range old {
		c.source.removeConn(c)
		c.flow.Remove(c)
	}

	conn := newConnection(p, in)
	p.node.mu.Lock()
	p.conns = append(p.conns, conn)
	p.node.mu.Unlock()
	in.node.mu.Lock()
	in.conns = append(in.conns, conn)
	in.node.mu.Unlock()
	conn.flow.Add(conn)
	return conn, nil
}

// Disconnect removes the connection to in from both endpoints and from the
// owning flow. Disconnecting a pair that is not connected is a no-op.
func (p *OutputPort) Disconnect(in *InputPort) {
	var conn *Connection
	in.node.mu.Lock()
	kept := in.conns[:0]
	for _, c := range in.conns {
		if c.source == p {
			conn = c
		} else {
			kept = append(kept, c)
		}
	}
	in.conns = kept
	in.node.mu.Unlock()
	if conn == nil {
		return
	}
	p.removeConn(conn)
	conn.flow.Remove(conn)
}

func (p *OutputPort) removeConn(conn *Connection) {
	p.node.mu.Lock()
	defer p.node.mu.Unlock()
	kept := p.conns[:0]
	for _, c := range p.conns {
		if c != conn {
			kept = append(kept, c)
		}
	}
	p.conns = kept
}
