package radon

import "github.com/witmesh/witnode/pkg/types"

// FilterArray removes outliers from items before reduction. RADON
// defines a closed set of filters; witnode implements the mode filter,
// which keeps only the values matching the most frequent value —
// effectively a pre-reduction step that lets a later reducer run on a
// set with liars already excluded. Filters are total like every other
// RADON stage: failure surfaces as a RadonError value (non-nil errVal),
// not a Go error, so callers thread it through the pipeline exactly
// like any other result.
func FilterArray(items []Value, filter string) (filtered []Value, errVal *Value) {
	switch filter {
	case "mode":
		return filterMode(items)
	default:
		v := Err(types.RadonErrUnsupportedOperator)
		return nil, &v
	}
}

// filterMode keeps every element equal to the modal value; the rest are
// liars, reported separately by LiarFlags. Per spec.md §4.2/§8 scenario
// 5, a modal tie between distinct values is ambiguous and returns
// ModeTie carrying the tied values (plus their shared count); an empty
// input returns ModeEmpty.
func filterMode(items []Value) ([]Value, *Value) {
	if len(items) == 0 {
		v := Err(types.RadonErrModeEmpty)
		return nil, &v
	}

	counts := make(map[string]int)
	order := make([]string, 0, len(items))
	representative := make(map[string]Value, len(items))
	for _, v := range items {
		key := Describe(v)
		if counts[key] == 0 {
			order = append(order, key)
			representative[key] = v
		}
		counts[key]++
	}

	best := 0
	for _, c := range counts {
		if c > best {
			best = c
		}
	}

	var tied []Value
	for _, key := range order {
		if counts[key] == best {
			tied = append(tied, representative[key])
		}
	}
	if len(tied) > 1 {
		args := append(append([]Value(nil), tied...), Integer(int64(best)))
		v := Err(types.RadonErrModeTie, args...)
		return nil, &v
	}

	modal := tied[0]
	out := make([]Value, 0, len(items))
	for _, v := range items {
		if Describe(v) == Describe(modal) {
			out = append(out, v)
		}
	}
	return out, nil
}

// LiarFlags compares each witness's reveal against the consensus value
// produced by a filter+reduce pass, returning a positional vector: true
// where the witness disagreed (a "liar"), per the tally stage contract.
func LiarFlags(items []Value, consensus Value) []bool {
	flags := make([]bool, len(items))
	consensusKey := Describe(consensus)
	for i, v := range items {
		flags[i] = Describe(v) != consensusKey
	}
	return flags
}
