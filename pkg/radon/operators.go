package radon

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/witmesh/witnode/pkg/types"
)

// Operator is a single RADON script instruction: it consumes the
// current value and any arguments and produces the next value. It
// never panics — any failure is folded into the returned RadonError.
type Operator func(v Value, args []Value) Value

// operatorsByKind holds the subset of operators valid for each value
// kind, mirroring RADON's typed operator surface (array ops only apply
// to RadonArray values, and so on).
var operatorsByKind = map[types.RadonValueKind]map[Opcode]Operator{
	types.RadonArray:   arrayOperators,
	types.RadonMap:     mapOperators,
	types.RadonString:  stringOperators,
	types.RadonFloat:   floatOperators,
	types.RadonInteger: integerOperators,
	types.RadonBytes:   bytesOperators,
	types.RadonBoolean: booleanOperators,
}

// Apply dispatches op against v using the operator table for v's kind.
// If v is already a RadonError, Apply is a no-op that returns v
// unchanged, letting errors propagate through the remaining script
// without special-casing every call site.
func Apply(v Value, op Opcode, args []Value) Value {
	if IsError(v) {
		return v
	}
	if op == OpIdentity {
		return v
	}
	table, ok := operatorsByKind[v.Kind]
	if !ok {
		return Err(types.RadonErrUnsupportedOperator)
	}
	fn, ok := table[op]
	if !ok {
		return Err(types.RadonErrUnsupportedOperator)
	}
	return fn(v, args)
}

var arrayOperators = map[Opcode]Operator{
	OpArrayLength: func(v Value, _ []Value) Value { return Integer(int64(len(v.Array))) },
	OpArrayGet: func(v Value, args []Value) Value {
		if len(args) != 1 || args[0].Kind != types.RadonInteger {
			return Err(types.RadonErrWrongArguments)
		}
		idx := int(args[0].Integer)
		if idx < 0 || idx >= len(v.Array) {
			return Err(types.RadonErrWrongArguments)
		}
		return v.Array[idx]
	},
	OpArrayMap: func(v Value, args []Value) Value {
		if len(args) != 1 || args[0].Kind != types.RadonArray {
			return Err(types.RadonErrWrongArguments)
		}
		mapper := scriptFromValue(args[0])
		out := make([]Value, len(v.Array))
		for i, e := range v.Array {
			out[i] = mapper.Run(e)
		}
		return Array(out...)
	},
	OpArrayFilter: func(v Value, args []Value) Value {
		if len(args) != 1 || args[0].Kind != types.RadonString {
			return Err(types.RadonErrWrongArguments)
		}
		filtered, errVal := FilterArray(v.Array, args[0].String)
		if errVal != nil {
			return *errVal
		}
		return Array(filtered...)
	},
	OpArrayReduce: func(v Value, args []Value) Value {
		if len(args) != 1 || args[0].Kind != types.RadonString {
			return Err(types.RadonErrWrongArguments)
		}
		result, err := Reduce(v.Array, args[0].String)
		if err != nil {
			return Err(types.RadonErrWrongArguments)
		}
		return result
	},
	OpArraySort: func(v Value, _ []Value) Value {
		sorted := append([]Value(nil), v.Array...)
		sort.Slice(sorted, func(i, j int) bool {
			return Describe(sorted[i]) < Describe(sorted[j])
		})
		return Array(sorted...)
	},
}

var mapOperators = map[Opcode]Operator{
	OpMapKeys: func(v Value, _ []Value) Value {
		keys := make([]Value, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, String(k))
		}
		return Array(keys...)
	},
	OpMapValues: func(v Value, _ []Value) Value {
		vals := make([]Value, 0, len(v.Map))
		for _, val := range v.Map {
			vals = append(vals, val)
		}
		return Array(vals...)
	},
	OpMapGetArray:   mapGetter(types.RadonArray),
	OpMapGetBoolean: mapGetter(types.RadonBoolean),
	OpMapGetBytes:   mapGetter(types.RadonBytes),
	OpMapGetFloat:   mapGetter(types.RadonFloat),
	OpMapGetInteger: mapGetter(types.RadonInteger),
	OpMapGetMap:     mapGetter(types.RadonMap),
	OpMapGetString:  mapGetter(types.RadonString),
}

// mapGetter builds a typed Map getter: it looks up args[0] (a string
// key) and requires the stored value to already be of kind want,
// matching RADON's one-typed-getter-per-variant Map surface (there is
// no untyped "get" — the script author states the expected type and a
// mismatch is a script error, not a silent coercion).
func mapGetter(want types.RadonValueKind) Operator {
	return func(v Value, args []Value) Value {
		if len(args) != 1 || args[0].Kind != types.RadonString {
			return Err(types.RadonErrWrongArguments)
		}
		val, ok := v.Map[args[0].String]
		if !ok || val.Kind != want {
			return Err(types.RadonErrWrongArguments)
		}
		return val
	}
}

var stringOperators = map[Opcode]Operator{
	OpStringLength:      func(v Value, _ []Value) Value { return Integer(int64(len(v.String))) },
	OpStringToLowerCase: func(v Value, _ []Value) Value { return stringLower(v) },
	OpStringToUpperCase: func(v Value, _ []Value) Value { return stringUpper(v) },
	OpStringAsFloat: func(v Value, _ []Value) Value {
		f, err := strconv.ParseFloat(v.String, 64)
		if err != nil {
			return Err(types.RadonErrWrongArguments)
		}
		return Float(f)
	},
	OpStringAsInteger: func(v Value, _ []Value) Value {
		n, err := strconv.ParseInt(v.String, 10, 64)
		if err != nil {
			return Err(types.RadonErrWrongArguments)
		}
		return Integer(n)
	},
	OpStringAsBoolean: func(v Value, _ []Value) Value {
		b, err := strconv.ParseBool(v.String)
		if err != nil {
			return Err(types.RadonErrWrongArguments)
		}
		return Boolean(b)
	},
	OpStringParseJSONMap:   func(v Value, _ []Value) Value { return parseJSONMap(v.String) },
	OpStringParseJSONArray: func(v Value, _ []Value) Value { return parseJSONArray(v.String) },
	OpStringParseXMLMap:    func(v Value, _ []Value) Value { return parseXMLMap(v.String) },
	OpStringMatch: func(v Value, args []Value) Value {
		if len(args) != 1 || args[0].Kind != types.RadonArray {
			return Err(types.RadonErrWrongArguments)
		}
		return matchValue(v, args[0])
	},
	OpStringSlice: func(v Value, args []Value) Value {
		if len(args) != 2 || args[0].Kind != types.RadonInteger || args[1].Kind != types.RadonInteger {
			return Err(types.RadonErrWrongArguments)
		}
		start, end := int(args[0].Integer), int(args[1].Integer)
		if start < 0 || end < start || end > len(v.String) {
			return Err(types.RadonErrWrongArguments)
		}
		return String(v.String[start:end])
	},
	OpStringSplit: func(v Value, args []Value) Value {
		if len(args) != 1 || args[0].Kind != types.RadonString {
			return Err(types.RadonErrWrongArguments)
		}
		parts := strings.Split(v.String, args[0].String)
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = String(p)
		}
		return Array(out...)
	},
	OpStringReplace: func(v Value, args []Value) Value {
		if len(args) != 2 || args[0].Kind != types.RadonString || args[1].Kind != types.RadonString {
			return Err(types.RadonErrWrongArguments)
		}
		return String(strings.ReplaceAll(v.String, args[0].String, args[1].String))
	},
}

func stringLower(v Value) Value {
	out := make([]byte, len(v.String))
	for i := 0; i < len(v.String); i++ {
		c := v.String[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return String(string(out))
}

func stringUpper(v Value) Value {
	out := make([]byte, len(v.String))
	for i := 0; i < len(v.String); i++ {
		c := v.String[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return String(string(out))
}

// matchValue implements Match(cases) for both String and Boolean
// inputs: cases is an Array of [pattern, result] pairs. The first pair
// whose pattern equals v (by value, via Describe) wins; if none match,
// the last pair is used as the default branch, mirroring the
// match-with-trailing-default idiom RADON scripts commonly use.
func matchValue(v Value, cases Value) Value {
	if len(cases.Array) == 0 {
		return Err(types.RadonErrWrongArguments)
	}
	key := Describe(v)
	for _, pair := range cases.Array {
		if pair.Kind != types.RadonArray || len(pair.Array) != 2 {
			return Err(types.RadonErrWrongArguments)
		}
		if Describe(pair.Array[0]) == key {
			return pair.Array[1]
		}
	}
	last := cases.Array[len(cases.Array)-1]
	if last.Kind != types.RadonArray || len(last.Array) != 2 {
		return Err(types.RadonErrWrongArguments)
	}
	return last.Array[1]
}

var floatOperators = map[Opcode]Operator{
	OpFloatAbsolute:  func(v Value, _ []Value) Value { return Float(math.Abs(v.Float)) },
	OpFloatNegate:    func(v Value, _ []Value) Value { return Float(-v.Float) },
	OpFloatAsString:  func(v Value, _ []Value) Value { return String(strconv.FormatFloat(v.Float, 'g', -1, 64)) },
	OpFloatAsInteger: func(v Value, _ []Value) Value { return Integer(int64(v.Float)) },
	OpFloatRound:     func(v Value, _ []Value) Value { return Integer(int64(math.Round(v.Float))) },
	OpFloatCeiling:   func(v Value, _ []Value) Value { return Integer(int64(math.Ceil(v.Float))) },
	OpFloatFloor:     func(v Value, _ []Value) Value { return Integer(int64(math.Floor(v.Float))) },
	OpFloatTruncate:  func(v Value, _ []Value) Value { return Integer(int64(math.Trunc(v.Float))) },
	OpFloatGreaterThan: func(v Value, args []Value) Value {
		other, ok := floatArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		return Boolean(v.Float > other)
	},
	OpFloatLessThan: func(v Value, args []Value) Value {
		other, ok := floatArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		return Boolean(v.Float < other)
	},
	OpFloatEqual: func(v Value, args []Value) Value {
		other, ok := floatArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		return Boolean(v.Float == other)
	},
	OpFloatAdd: func(v Value, args []Value) Value {
		other, ok := floatArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		return Float(v.Float + other)
	},
	OpFloatSubtract: func(v Value, args []Value) Value {
		other, ok := floatArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		return Float(v.Float - other)
	},
	OpFloatMultiply: func(v Value, args []Value) Value {
		other, ok := floatArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		return Float(v.Float * other)
	},
	OpFloatDivide: func(v Value, args []Value) Value {
		other, ok := floatArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		if other == 0 {
			return Err(types.RadonErrDivisionByZero)
		}
		return Float(v.Float / other)
	},
	OpFloatModulo: func(v Value, args []Value) Value {
		other, ok := floatArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		if other == 0 {
			return Err(types.RadonErrDivisionByZero)
		}
		return Float(math.Mod(v.Float, other))
	},
}

func floatArg(args []Value) (float64, bool) {
	if len(args) != 1 {
		return 0, false
	}
	switch args[0].Kind {
	case types.RadonFloat:
		return args[0].Float, true
	case types.RadonInteger:
		return float64(args[0].Integer), true
	default:
		return 0, false
	}
}

var integerOperators = map[Opcode]Operator{
	OpIntegerAbsolute: func(v Value, _ []Value) Value {
		if v.Integer < 0 {
			return Integer(-v.Integer)
		}
		return Integer(v.Integer)
	},
	OpIntegerNegate:   func(v Value, _ []Value) Value { return Integer(-v.Integer) },
	OpIntegerAsFloat:  func(v Value, _ []Value) Value { return Float(float64(v.Integer)) },
	OpIntegerAsString: func(v Value, _ []Value) Value { return String(strconv.FormatInt(v.Integer, 10)) },
	// Round/Ceiling/Floor are identities on an integer input; declared
	// for the same reason the opcode table documents them.
	OpIntegerRound:   func(v Value, _ []Value) Value { return v },
	OpIntegerCeiling: func(v Value, _ []Value) Value { return v },
	OpIntegerFloor:   func(v Value, _ []Value) Value { return v },
	OpIntegerGreaterThan: func(v Value, args []Value) Value {
		other, ok := integerArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		return Boolean(v.Integer > other)
	},
	OpIntegerLessThan: func(v Value, args []Value) Value {
		other, ok := integerArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		return Boolean(v.Integer < other)
	},
	OpIntegerEqual: func(v Value, args []Value) Value {
		other, ok := integerArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		return Boolean(v.Integer == other)
	},
	OpIntegerAdd: func(v Value, args []Value) Value {
		other, ok := integerArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		r := v.Integer + other
		if (other > 0 && r < v.Integer) || (other < 0 && r > v.Integer) {
			return Err(types.RadonErrOverflow)
		}
		return Integer(r)
	},
	OpIntegerSubtract: func(v Value, args []Value) Value {
		other, ok := integerArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		r := v.Integer - other
		if (other < 0 && r < v.Integer) || (other > 0 && r > v.Integer) {
			return Err(types.RadonErrOverflow)
		}
		return Integer(r)
	},
	OpIntegerMultiply: func(v Value, args []Value) Value {
		other, ok := integerArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		if v.Integer != 0 && other != 0 {
			r := v.Integer * other
			if r/other != v.Integer {
				return Err(types.RadonErrOverflow)
			}
			return Integer(r)
		}
		return Integer(0)
	},
	OpIntegerDivide: func(v Value, args []Value) Value {
		other, ok := integerArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		if other == 0 {
			return Err(types.RadonErrDivisionByZero)
		}
		return Integer(v.Integer / other)
	},
	OpIntegerModulo: func(v Value, args []Value) Value {
		other, ok := integerArg(args)
		if !ok {
			return Err(types.RadonErrWrongArguments)
		}
		if other == 0 {
			return Err(types.RadonErrDivisionByZero)
		}
		return Integer(v.Integer % other)
	},
}

func integerArg(args []Value) (int64, bool) {
	if len(args) != 1 || args[0].Kind != types.RadonInteger {
		return 0, false
	}
	return args[0].Integer, true
}

var bytesOperators = map[Opcode]Operator{
	OpBytesAsString: func(v Value, _ []Value) Value { return String(string(v.Bytes)) },
	OpBytesHash: func(v Value, args []Value) Value {
		if len(args) != 1 || args[0].Kind != types.RadonString {
			return Err(types.RadonErrWrongArguments)
		}
		digest, err := Hash(v.Bytes, args[0].String)
		if err != nil {
			return Err(types.RadonErrWrongArguments)
		}
		return Bytes(digest)
	},
}

var booleanOperators = map[Opcode]Operator{
	OpBooleanNegate: func(v Value, _ []Value) Value { return Boolean(!v.Boolean) },
	OpBooleanAsString: func(v Value, _ []Value) Value {
		if v.Boolean {
			return String("true")
		}
		return String("false")
	},
	OpBooleanMatch: func(v Value, args []Value) Value {
		if len(args) != 1 || args[0].Kind != types.RadonArray {
			return Err(types.RadonErrWrongArguments)
		}
		return matchValue(v, args[0])
	},
}
