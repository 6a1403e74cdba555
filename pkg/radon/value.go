// Package radon implements the RADON scripting engine: a typed,
// CBOR-encoded stack machine that scores and reduces data retrieved
// from external sources during a data request's retrieval, aggregation,
// and tally stages. Execution is total — no RADON script ever panics or
// returns a Go error; every failure is captured as a typed RadonError
// value flowing through the same pipeline as a successful result.
package radon

import (
	"fmt"

	"github.com/witmesh/witnode/pkg/types"
)

// Value is an alias kept local to this package for brevity; callers
// outside radon use types.RadonValue directly.
type Value = types.RadonValue

func Array(items ...Value) Value    { return Value{Kind: types.RadonArray, Array: items} }
func Map(m map[string]Value) Value  { return Value{Kind: types.RadonMap, Map: m} }
func String(s string) Value         { return Value{Kind: types.RadonString, String: s} }
func Float(f float64) Value         { return Value{Kind: types.RadonFloat, Float: f} }
func Integer(i int64) Value         { return Value{Kind: types.RadonInteger, Integer: i} }
func Bytes(b []byte) Value          { return Value{Kind: types.RadonBytes, Bytes: b} }
func Boolean(b bool) Value          { return Value{Kind: types.RadonBoolean, Boolean: b} }

// Err builds a RadonError value — RADON's way of expressing a failure
// without breaking execution totality.
func Err(kind types.RadonErrorKind, args ...Value) Value {
	return Value{Kind: types.RadonError, Error: &types.RadonErrorValue{Kind: kind, Args: args}}
}

// IsError reports whether v is a RadonError value.
func IsError(v Value) bool {
	return v.Kind == types.RadonError
}

// Describe renders a Value for logging; named to avoid colliding with
// the RadonValue.String field carrying the string variant's payload.
func Describe(v Value) string {
	switch v.Kind {
	case types.RadonString:
		return v.String
	case types.RadonInteger:
		return fmt.Sprintf("%d", v.Integer)
	case types.RadonFloat:
		return fmt.Sprintf("%g", v.Float)
	case types.RadonBoolean:
		return fmt.Sprintf("%t", v.Boolean)
	case types.RadonBytes:
		return fmt.Sprintf("0x%x", v.Bytes)
	case types.RadonError:
		return fmt.Sprintf("RadonError(kind=%#x)", v.Error.Kind)
	default:
		return fmt.Sprintf("%v", v.Kind)
	}
}
