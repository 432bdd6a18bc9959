package flow

import (
	"errors"
	"reflect"
	"testing"
)

func TestDescriptor_Check(t *testing.T) {
	t.Run("registered type accepts instances", func(t *testing.T) {
		d := &Descriptor{Name: "a", Type: intType}
		if err := d.Check(3); err != nil {
			t.Fatalf("Check(3) = %v, want nil", err)
		}
	})

	t.Run("registered type rejects other types", func(t *testing.T) {
		d := &Descriptor{Name: "a", Type: intType}
		err := d.Check(1.0)
		var tce *TypeCheckError
		if !errors.As(err, &tce) {
			t.Fatalf("Check(1.0) = %v, want *TypeCheckError", err)
		}
		if tce.Port != "a" {
			t.Errorf("Port = %q, want %q", tce.Port, "a")
		}
	})

	t.Run("range violation", func(t *testing.T) {
		d := &Descriptor{Name: "a", Type: intType, Range: Interval{Lo: 0, Hi: 10}}
		if err := d.Check(10); err != nil {
			t.Fatalf("Check(10) = %v, want nil", err)
		}
		var rce *RangeCheckError
		if err := d.Check(11); !errors.As(err, &rce) {
			t.Fatalf("Check(11) = %v, want *RangeCheckError", err)
		}
	})

	t.Run("unregistered type always passes", func(t *testing.T) {
		type custom struct{ x int }
		d := &Descriptor{Name: "a", Type: reflect.TypeOf(custom{})}
		if err := d.Check("anything"); err != nil {
			t.Fatalf("Check on unregistered type = %v, want nil", err)
		}
	})

	t.Run("nil type disables validation", func(t *testing.T) {
		d := &Descriptor{Name: "a"}
		if err := d.Check(struct{}{}); err != nil {
			t.Fatalf("Check with nil type = %v, want nil", err)
		}
	})

	t.Run("float range", func(t *testing.T) {
		d := &Descriptor{Name: "f", Type: reflect.TypeOf(float64(0)), Range: Interval{Lo: -1, Hi: 1}}
		if err := d.Check(0.5); err != nil {
			t.Fatalf("Check(0.5) = %v, want nil", err)
		}
		var rce *RangeCheckError
		if err := d.Check(1.5); !errors.As(err, &rce) {
			t.Fatalf("Check(1.5) = %v, want *RangeCheckError", err)
		}
	})
}

func TestRegisterTypeChecker_Custom(t *testing.T) {
	type evens int
	evensType := reflect.TypeOf(evens(0))
	RegisterTypeChecker(evensType, func(v any) bool {
		n, ok := v.(evens)
		return ok && n%2 == 0
	})
	d := &Descriptor{Name: "e", Type: evensType}
	if err := d.Check(evens(4)); err != nil {
		t.Fatalf("Check(4) = %v, want nil", err)
	}
	if err := d.Check(evens(3)); err == nil {
		t.Fatal("Check(3) = nil, want type error")
	}
}

func TestBlueprint_DefaultValidated(t *testing.T) {
	bad := Blueprint{
		Name:       "a",
		Type:       intType,
		Range:      Interval{Lo: 0, Hi: 10},
		Default:    100,
		HasDefault: true,
	}
	if err := bad.validate(); err == nil {
		t.Fatal("validate() accepted a default outside the range")
	}
	good := bad
	good.Default = 5
	if err := good.validate(); err != nil {
		t.Fatalf("validate() = %v, want nil", err)
	}
}
