package radon

import (
	"github.com/witmesh/witnode/pkg/types"
)

// Call is a single script step, per spec.md §4.2's "Script form": a
// naked Opcode with no argument, or an Opcode paired with a single arg
// (itself a CBOR value — an Array value when an operator needs more
// than one logical parameter, e.g. StringSlice(start, end)). Its CBOR
// (de)serialization lives in cbor.go (MarshalCBOR/UnmarshalCBOR).
type Call struct {
	Op  Opcode
	Arg *Value
}

// Script is an ordered sequence of calls threaded through Apply,
// starting from an initial value.
type Script []Call

// Run executes a script against an initial value, folding each call in
// order. Execution never aborts early on error — once a RadonError
// value appears it is simply threaded through every remaining call
// (Apply is a no-op on an error input), so the final report always
// carries either a successful value or the first error encountered.
func (s Script) Run(initial Value) Value {
	v := initial
	for _, call := range s {
		v = Apply(v, call.Op, argsOf(call.Arg))
	}
	return v
}

// argsOf unpacks a Call's single wire-level Arg into the flat argument
// slice Apply's per-kind operator functions expect: a multi-parameter
// operator receives its parameters pre-split from an Array arg, a
// single-parameter operator receives a one-element slice, and a
// niladic operator (nil Arg) receives none.
func argsOf(arg *Value) []Value {
	if arg == nil {
		return nil
	}
	if arg.Kind == types.RadonArray {
		return arg.Array
	}
	return []Value{*arg}
}

// scriptFromValue interprets an Array value as a nested RAD script, the
// wire form Array's Map(mapper_script) operator argument takes: each
// element is either a RadonInteger (naked opcode) or a 2-element
// RadonArray [opcode, arg]. Malformed elements are skipped rather than
// aborting the whole script, consistent with RADON's total-evaluation
// discipline.
func scriptFromValue(v Value) Script {
	script := make(Script, 0, len(v.Array))
	for _, item := range v.Array {
		switch item.Kind {
		case types.RadonInteger:
			script = append(script, Call{Op: Opcode(item.Integer)})
		case types.RadonArray:
			if len(item.Array) != 2 || item.Array[0].Kind != types.RadonInteger {
				continue
			}
			arg := item.Array[1]
			script = append(script, Call{Op: Opcode(item.Array[0].Integer), Arg: &arg})
		}
	}
	return script
}

// RADRetrieve describes a single external data source consulted during
// the retrieval stage: a network request shaped by Kind plus the
// script applied to its response body before aggregation, recovered
// from the original retrieval-stage design (it did not survive the
// distilled specification's component list, but pkg/drpool needs a
// concrete source descriptor to invoke before it can aggregate
// anything).
type RADRetrieve struct {
	Kind   RetrievalKind
	URL    string
	Script Script
}

// RetrievalKind enumerates the supported source transports.
type RetrievalKind string

const (
	RetrieveHTTPGet RetrievalKind = "http_get"
	RetrieveRNG     RetrievalKind = "rng" // deterministic randomness source, no network call
)

// Retriever fetches the raw bytes a RADRetrieve descriptor names.
// Production wiring points this at net/http; tests substitute a fake.
type Retriever interface {
	Fetch(source RADRetrieve) ([]byte, error)
}

// RunRetrieval executes one source's script against the bytes Fetch
// returns, producing a Retrieval-stage report if the fetch itself
// fails (network errors are RADON-total too — they become
// RadonErrHTTPError values, not returned errors).
func RunRetrieval(r Retriever, source RADRetrieve) types.RadonReport {
	body, err := r.Fetch(source)
	if err != nil {
		return types.RadonReport{
			Stage:  types.RadonStageRetrieval,
			Result: Err(types.RadonErrHTTPError, String(err.Error())),
		}
	}
	result := source.Script.Run(Bytes(body))
	return types.RadonReport{Stage: types.RadonStageRetrieval, Result: result}
}

// RunAggregation reduces every witness's retrieval result into one
// value using the data request's aggregate reducer.
func RunAggregation(results []Value, reducer string) types.RadonReport {
	v, err := Reduce(results, reducer)
	if err != nil {
		v = Err(types.RadonErrUnsupportedOperator)
	}
	return types.RadonReport{Stage: types.RadonStageAggregation, Result: v}
}

// RunTally filters outliers, reduces the remainder to a consensus
// value, and reports which witnesses disagreed plus what fraction of
// reveals the consensus represents.
func RunTally(reveals []Value, filter, reducer string) types.RadonReport {
	if len(reveals) == 0 {
		return types.RadonReport{
			Stage:  types.RadonStageTally,
			Result: Err(types.RadonErrNoReveals),
		}
	}

	filtered, errVal := FilterArray(reveals, filter)
	if errVal != nil {
		return types.RadonReport{
			Stage:  types.RadonStageTally,
			Result: *errVal,
		}
	}
	if len(filtered) == 0 {
		return types.RadonReport{
			Stage:  types.RadonStageTally,
			Result: Err(types.RadonErrNoReveals),
		}
	}

	consensus, rerr := Reduce(filtered, reducer)
	if rerr != nil {
		return types.RadonReport{
			Stage:  types.RadonStageTally,
			Result: Err(types.RadonErrUnsupportedOperator),
		}
	}

	flags := LiarFlags(reveals, consensus)
	pct := float64(len(filtered)) / float64(len(reveals))

	return types.RadonReport{
		Stage:        types.RadonStageTally,
		Result:       consensus,
		LiarFlags:    flags,
		ConsensusPct: pct,
	}
}
