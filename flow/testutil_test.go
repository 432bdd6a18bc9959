package flow

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/Nanguage/sunmao-core/flow/engine"
)

var (
	intType = reflect.TypeOf(int(0))
	strType = reflect.TypeOf("")
)

// newTestSession builds an isolated session so tests do not share the
// ambient current session's engine state.
func newTestSession(t *testing.T, settings engine.Settings) *Session {
	t.Helper()
	return NewSession(WithSettings(settings))
}

// newTestFlow builds a session plus an explicit flow inside it.
func newTestFlow(t *testing.T) (*Session, *Flow) {
	t.Helper()
	sess := newTestSession(t, engine.DefaultSettings())
	f := NewFlow(WithSession(sess))
	return sess, f
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	panic(fmt.Sprintf("not a number: %T", v))
}

// addDef declares Add(a, b int in [0,100]) -> int in [0,200].
func addDef(jobType engine.JobType) Definition {
	return Definition{
		Name: "add",
		Inputs: []Blueprint{
			{Name: "a", Type: intType, Range: Interval{Lo: 0, Hi: 100}},
			{Name: "b", Type: intType, Range: Interval{Lo: 0, Hi: 100}},
		},
		Outputs: []Blueprint{
			{Name: "res", Type: intType, Range: Interval{Lo: 0, Hi: 200}},
		},
		Func: func(_ context.Context, args []any) (any, error) {
			return asInt(args[0]) + asInt(args[1]), nil
		},
		JobType: jobType,
	}
}

// squareDef declares Square(a) -> a*a with unconstrained ports.
func squareDef(jobType engine.JobType) Definition {
	return Definition{
		Name:    "square",
		Inputs:  []Blueprint{{Name: "a"}},
		Outputs: []Blueprint{{Name: "res"}},
		Func: func(_ context.Context, args []any) (any, error) {
			a := asInt(args[0])
			return a * a, nil
		},
		JobType: jobType,
	}
}

// sleepSquareDef is squareDef with a fixed delay, for parallelism tests.
func sleepSquareDef(jobType engine.JobType, d time.Duration) Definition {
	def := squareDef(jobType)
	def.Name = "sleep_square"
	def.Func = func(ctx context.Context, args []any) (any, error) {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		a := asInt(args[0])
		return a * a, nil
	}
	return def
}

// incDef declares Inc(a int) -> a+1.
func incDef(jobType engine.JobType) Definition {
	return Definition{
		Name:    "inc",
		Inputs:  []Blueprint{{Name: "a", Type: intType}},
		Outputs: []Blueprint{{Name: "res", Type: intType}},
		Func: func(_ context.Context, args []any) (any, error) {
			return asInt(args[0]) + 1, nil
		},
		JobType: jobType,
	}
}
