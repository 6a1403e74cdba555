package radon

import (
	"sort"

	"github.com/witmesh/witnode/pkg/types"
)

// Reduce collapses an array of homogeneous values to a single value
// using one of RADON's closed set of reducers, used both by the
// aggregation stage (combining witness retrievals) and the tally
// stage (combining witness reveals).
func Reduce(items []Value, reducer string) (Value, error) {
	if len(items) == 0 {
		return Err(types.RadonErrWrongArguments), nil
	}
	switch reducer {
	case "mode":
		return reduceMode(items), nil
	case "averageMean":
		return reduceAverageMean(items)
	case "averageMedian":
		return reduceAverageMedian(items)
	case "deviationStandard":
		return reduceDeviationStandard(items)
	case "hashConcatenate":
		return reduceHashConcatenate(items)
	default:
		return Err(types.RadonErrUnsupportedOperator), nil
	}
}

func reduceMode(items []Value) Value {
	counts := make(map[string]int)
	best := items[0]
	bestCount := 0
	for _, v := range items {
		key := Describe(v)
		counts[key]++
		if counts[key] > bestCount {
			bestCount = counts[key]
			best = v
		}
	}
	return best
}

func floatsOf(items []Value) ([]float64, bool) {
	out := make([]float64, len(items))
	for i, v := range items {
		switch v.Kind {
		case types.RadonFloat:
			out[i] = v.Float
		case types.RadonInteger:
			out[i] = float64(v.Integer)
		default:
			return nil, false
		}
	}
	return out, true
}

func reduceAverageMean(items []Value) (Value, error) {
	nums, ok := floatsOf(items)
	if !ok {
		return Err(types.RadonErrWrongArguments), nil
	}
	var sum float64
	for _, n := range nums {
		sum += n
	}
	return Float(sum / float64(len(nums))), nil
}

func reduceAverageMedian(items []Value) (Value, error) {
	nums, ok := floatsOf(items)
	if !ok {
		return Err(types.RadonErrWrongArguments), nil
	}
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return Float((sorted[mid-1] + sorted[mid]) / 2), nil
	}
	return Float(sorted[mid]), nil
}

func reduceDeviationStandard(items []Value) (Value, error) {
	nums, ok := floatsOf(items)
	if !ok {
		return Err(types.RadonErrWrongArguments), nil
	}
	var sum float64
	for _, n := range nums {
		sum += n
	}
	mean := sum / float64(len(nums))
	var variance float64
	for _, n := range nums {
		d := n - mean
		variance += d * d
	}
	variance /= float64(len(nums))
	return Float(sqrt(variance)), nil
}

// sqrt computes the square root by Newton iteration, kept explicit
// and auditable rather than calling math.Sqrt.
func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 40; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// reduceHashConcatenate concatenates every element's bytes, each first
// zero-padded (or truncated, if longer) to exactly 32 bytes, then
// SHA-256s the result. Fixed-width elements keep the digest independent
// of each source's raw byte length, which is what makes this reducer
// reproducible across witnesses; non-Bytes elements are rejected
// outright rather than coerced.
func reduceHashConcatenate(items []Value) (Value, error) {
	concat := make([]byte, 0, 32*len(items))
	for _, v := range items {
		if v.Kind != types.RadonBytes {
			return Err(types.RadonErrWrongArguments), nil
		}
		concat = append(concat, pad32(v.Bytes)...)
	}
	digest, err := Hash(concat, "sha256")
	if err != nil {
		return Err(types.RadonErrWrongArguments), nil
	}
	return Bytes(digest), nil
}

// pad32 zero-pads b on the left to 32 bytes, or truncates it to its
// first 32 bytes if it is already longer.
func pad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[:32]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
