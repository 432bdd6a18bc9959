package flow

import (
	"context"
	"testing"

	"github.com/Nanguage/sunmao-core/flow/engine"
)

func TestSession_CurrentAndEnter(t *testing.T) {
	s1 := NewSession()
	prev := SetCurrent(s1)
	defer SetCurrent(prev)

	if Current() != s1 {
		t.Fatal("Current did not return the set session")
	}

	s2 := NewSession()
	restore := s2.Enter()
	if Current() != s2 {
		t.Fatal("Enter did not make the session current")
	}
	restore()
	if Current() != s1 {
		t.Fatal("restore did not bring the previous session back")
	}
}

func TestSession_CurrentFlowLazy(t *testing.T) {
	s := NewSession()
	f := s.CurrentFlow()
	if f == nil {
		t.Fatal("CurrentFlow returned nil")
	}
	if s.CurrentFlow() != f {
		t.Fatal("CurrentFlow must be stable across calls")
	}
	if f.Session() != s {
		t.Fatal("lazily created flow not owned by the session")
	}
}

func TestSession_OwnsEngine(t *testing.T) {
	s := NewSession(WithSettings(engine.Settings{MaxThreads: 2, MaxProcesses: 1}))
	if got := s.Engine().Settings().MaxThreads; got != 2 {
		t.Fatalf("MaxThreads = %d, want 2", got)
	}
	eng := engine.New(engine.DefaultSettings())
	s2 := NewSession(WithEngine(eng))
	if s2.Engine() != eng {
		t.Fatal("WithEngine ignored")
	}
}

func TestSession_AmbientConstruction(t *testing.T) {
	s := NewSession()
	restore := s.Enter()
	defer restore()

	// Nodes built without WithFlow land in the ambient current flow.
	n, err := NewComputeNode(squareDef(engine.Local))
	if err != nil {
		t.Fatal(err)
	}
	if n.Flow().Session() != s {
		t.Fatal("ambient construction picked the wrong session")
	}
	job, err := n.Call(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Join(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := job.Result(); got != 16 {
		t.Fatalf("Result = %v, want 16", got)
	}
}
