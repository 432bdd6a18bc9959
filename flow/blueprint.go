package flow

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// Blueprint declares one port of a node: its name, whether it is an exec
// (signal-only) port, and for data ports the type/range/default of the
// values it carries. Node port vectors are built from blueprint lists at
// construction time and never change length afterwards.
//
// Blueprints are the contract with the node-declaration surface: anything
// that can produce an ordered list of blueprints (a function-introspection
// layer, a config file, hand-written code) can declare nodes.
type Blueprint struct {
	Name       string
	Exec       bool
	Type       reflect.Type
	Range      any
	Default    any
	HasDefault bool
}

// descriptor builds the value descriptor for a data-port blueprint.
func (bp Blueprint) descriptor() *Descriptor {
	if bp.Exec {
		return nil
	}
	return &Descriptor{
		Name:       bp.Name,
		Type:       bp.Type,
		Range:      bp.Range,
		Default:    bp.Default,
		HasDefault: bp.HasDefault,
	}
}

// validate checks blueprint-level invariants, in particular that a declared
// default satisfies the port's own descriptor.
func (bp Blueprint) validate() error {
	if bp.Name == "" {
		return fmt.Errorf("blueprint has empty port name")
	}
	if bp.Exec {
		return nil
	}
	if bp.HasDefault {
		if err := bp.descriptor().Check(bp.Default); err != nil {
			return fmt.Errorf("default for port %q rejected: %w", bp.Name, err)
		}
	}
	return nil
}

func (bp Blueprint) buildInput(n *Node) *InputPort {
	return &InputPort{
		portBase: portBase{id: uuid.NewString(), name: bp.Name, node: n},
		desc:     bp.descriptor(),
	}
}

func (bp Blueprint) buildOutput(n *Node) *OutputPort {
	return &OutputPort{
		portBase:  portBase{id: uuid.NewString(), name: bp.Name, node: n},
		desc:      bp.descriptor(),
		saveCache: true,
	}
}
