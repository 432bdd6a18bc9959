package flow

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Nanguage/sunmao-core/flow/engine"
)

var (
	sessionMu      sync.Mutex
	currentSession *Session
)

// Session is the root of the ambient execution context. It owns exactly one
// engine and a set of flows, one of which is current at any time.
//
// The first session created becomes the process-wide current session.
// Explicit session parameters (WithSession, WithFlow) are the primary API;
// the ambient pointer is syntactic sugar on top.
type Session struct {
	id string

	mu      sync.Mutex
	flows   map[string]*Flow
	current *Flow
	engine  *engine.Engine
}

// SessionOption configures session construction.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	engine   *engine.Engine
	settings *engine.Settings
}

// WithEngine attaches a pre-built engine to the session.
func WithEngine(e *engine.Engine) SessionOption {
	return func(c *sessionConfig) { c.engine = e }
}

// WithSettings builds the session's engine from explicit settings.
func WithSettings(s engine.Settings) SessionOption {
	return func(c *sessionConfig) { c.settings = &s }
}

// NewSession creates a session. If no current session exists yet, the new
// one becomes current.
func NewSession(opts ...SessionOption) *Session {
	cfg := sessionConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	eng := cfg.engine
	if eng == nil {
		settings := engine.DefaultSettings()
		if cfg.settings != nil {
			settings = *cfg.settings
		}
		eng = engine.New(settings)
	}
	s := &Session{
		id:     uuid.NewString(),
		flows:  map[string]*Flow{},
		engine: eng,
	}
	sessionMu.Lock()
	if currentSession == nil {
		currentSession = s
	}
	sessionMu.Unlock()
	return s
}

// Current returns the process-wide current session, creating one with
// default settings on first use.
func Current() *Session {
	sessionMu.Lock()
	s := currentSession
	sessionMu.Unlock()
	if s != nil {
		return s
	}
	return NewSession()
}

// SetCurrent makes s the current session and returns the previous one.
func SetCurrent(s *Session) *Session {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	prev := currentSession
	currentSession = s
	return prev
}

// Enter makes the session current and returns a func restoring the previous
// current session, for scoped use:
//
//	restore := sess.Enter()
//	defer restore()
func (s *Session) Enter() (restore func()) {
	prev := SetCurrent(s)
	return func() { SetCurrent(prev) }
}

// ID returns the session's stable identifier.
func (s *Session) ID() string { return s.id }

// Engine returns the session's job engine.
func (s *Session) Engine() *engine.Engine { return s.engine }

// AddFlow registers a flow and makes it current.
func (s *Session) AddFlow(f *Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[f.id] = f
	s.current = f
}

// Flows returns the registered flows.
func (s *Session) Flows() []*Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Flow, 0, len(s.flows))
	for _, f := range s.flows {
		out = append(out, f)
	}
	return out
}

// CurrentFlow returns the session's current flow, creating an empty one on
// first access.
func (s *Session) CurrentFlow() *Flow {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		return cur
	}
	return NewFlow(WithSession(s))
}

func (s *Session) swapCurrentFlow(f *Flow) *Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current
	s.current = f
	return prev
}

// Join drains the engine: it blocks until no job is running.
func (s *Session) Join(ctx context.Context, opts ...engine.WaitOption) error {
	return s.engine.Wait(ctx, opts...)
}
