package radon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/witmesh/witnode/pkg/types"
)

func TestCBORRoundTripValues(t *testing.T) {
	cases := []Value{
		Integer(42),
		Float(3.5),
		String("hello"),
		Boolean(true),
		Bytes([]byte{1, 2, 3}),
		Array(Integer(1), Integer(2), String("x")),
		Map(map[string]Value{"a": Integer(1), "b": Boolean(false)}),
	}

	for _, v := range cases {
		data, err := Marshal(v)
		require.NoError(t, err)
		got := Unmarshal(data)
		assert.Equal(t, v.Kind, got.Kind)
	}
}

func TestCBORRoundTripRadonError(t *testing.T) {
	v := Err(types.RadonErrHTTPError, String("timeout"))
	data, err := Marshal(v)
	require.NoError(t, err)

	got := Unmarshal(data)
	require.True(t, IsError(got))
	assert.Equal(t, types.RadonErrHTTPError, got.Error.Kind)
	require.Len(t, got.Error.Args, 1)
	assert.Equal(t, "timeout", got.Error.Args[0].String)
}

func TestUnmarshalMalformedIsExplicitUnknownError(t *testing.T) {
	got := Unmarshal([]byte{0xff, 0xff, 0xff})
	require.True(t, IsError(got))
	assert.Equal(t, types.RadonErrUnknown, got.Error.Kind)
}

func TestApplyPropagatesErrorWithoutPanicking(t *testing.T) {
	v := Err(types.RadonErrWrongArguments)
	result := Apply(v, OpStringToLowerCase, nil)
	assert.True(t, IsError(result))
	assert.Equal(t, types.RadonErrWrongArguments, result.Error.Kind)
}

func TestStringOperators(t *testing.T) {
	v := String("HELLO")
	lower := Apply(v, OpStringToLowerCase, nil)
	assert.Equal(t, "hello", lower.String)

	upper := Apply(String("hello"), OpStringToUpperCase, nil)
	assert.Equal(t, "HELLO", upper.String)

	length := Apply(v, OpStringLength, nil)
	assert.Equal(t, int64(5), length.Integer)

	asBool := Apply(String("true"), OpStringAsBoolean, nil)
	assert.Equal(t, true, asBool.Boolean)

	sliced := Apply(String("hello world"), OpStringSlice, []Value{Integer(0), Integer(5)})
	assert.Equal(t, "hello", sliced.String)

	split := Apply(String("a,b,c"), OpStringSplit, []Value{String(",")})
	require.Len(t, split.Array, 3)
	assert.Equal(t, "b", split.Array[1].String)

	replaced := Apply(String("foo bar"), OpStringReplace, []Value{String("bar"), String("baz")})
	assert.Equal(t, "foo baz", replaced.String)

	cases := Array(
		Array(String("a"), Integer(1)),
		Array(String("b"), Integer(2)),
	)
	matched := Apply(String("b"), OpStringMatch, []Value{cases})
	assert.Equal(t, int64(2), matched.Integer)
}

func TestMapTypedGetters(t *testing.T) {
	m := Map(map[string]Value{
		"name":   String("oracle"),
		"active": Boolean(true),
	})
	name := Apply(m, OpMapGetString, []Value{String("name")})
	assert.Equal(t, "oracle", name.String)

	active := Apply(m, OpMapGetBoolean, []Value{String("active")})
	assert.Equal(t, true, active.Boolean)

	wrongKind := Apply(m, OpMapGetInteger, []Value{String("name")})
	require.True(t, IsError(wrongKind))
	assert.Equal(t, types.RadonErrWrongArguments, wrongKind.Error.Kind)
}

func TestFloatAndIntegerOperators(t *testing.T) {
	gt := Apply(Float(10), OpFloatGreaterThan, []Value{Float(5)})
	assert.Equal(t, true, gt.Boolean)

	sub := Apply(Float(10), OpFloatSubtract, []Value{Float(4)})
	assert.InDelta(t, 6.0, sub.Float, 0.0001)

	divByZero := Apply(Float(10), OpFloatDivide, []Value{Float(0)})
	require.True(t, IsError(divByZero))
	assert.Equal(t, types.RadonErrDivisionByZero, divByZero.Error.Kind)

	rounded := Apply(Float(10.6), OpFloatRound, nil)
	assert.Equal(t, int64(11), rounded.Integer)

	lt := Apply(Integer(3), OpIntegerLessThan, []Value{Integer(10)})
	assert.Equal(t, true, lt.Boolean)

	diff := Apply(Integer(10), OpIntegerSubtract, []Value{Integer(4)})
	assert.Equal(t, int64(6), diff.Integer)

	intDivByZero := Apply(Integer(10), OpIntegerDivide, []Value{Integer(0)})
	require.True(t, IsError(intDivByZero))
	assert.Equal(t, types.RadonErrDivisionByZero, intDivByZero.Error.Kind)
}

func TestBooleanMatch(t *testing.T) {
	cases := Array(
		Array(Boolean(true), String("yes")),
		Array(Boolean(false), String("no")),
	)
	result := Apply(Boolean(false), OpBooleanMatch, []Value{cases})
	assert.Equal(t, "no", result.String)
}

func TestReduceAverageMean(t *testing.T) {
	items := []Value{Float(1), Float(2), Float(3)}
	result, err := Reduce(items, "averageMean")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, result.Float, 0.0001)
}

func TestFilterModeAndTallyLiarFlags(t *testing.T) {
	reveals := []Value{Integer(10), Integer(10), Integer(99)}
	report := RunTally(reveals, "mode", "mode")
	require.Equal(t, types.RadonStageTally, report.Stage)
	assert.Equal(t, int64(10), report.Result.Integer)
	require.Len(t, report.LiarFlags, 3)
	assert.False(t, report.LiarFlags[0])
	assert.False(t, report.LiarFlags[1])
	assert.True(t, report.LiarFlags[2])
	assert.InDelta(t, 2.0/3.0, report.ConsensusPct, 0.0001)
}

func TestTallyNoRevealsYieldsNoRevealsError(t *testing.T) {
	report := RunTally(nil, "mode", "mode")
	require.True(t, IsError(report.Result))
	assert.Equal(t, types.RadonErrNoReveals, report.Result.Error.Kind)
}

func TestFilterModeTieYieldsModeTieError(t *testing.T) {
	filtered, errVal := FilterArray([]Value{Integer(1), Integer(2)}, "mode")
	require.Nil(t, filtered)
	require.NotNil(t, errVal)
	require.True(t, IsError(*errVal))
	assert.Equal(t, types.RadonErrModeTie, errVal.Error.Kind)
	require.Len(t, errVal.Error.Args, 3)
	assert.Equal(t, int64(1), errVal.Error.Args[0].Integer)
	assert.Equal(t, int64(2), errVal.Error.Args[1].Integer)
}

func TestFilterModeEmptyYieldsModeEmptyError(t *testing.T) {
	filtered, errVal := FilterArray(nil, "mode")
	require.Nil(t, filtered)
	require.NotNil(t, errVal)
	require.True(t, IsError(*errVal))
	assert.Equal(t, types.RadonErrModeEmpty, errVal.Error.Kind)
}

func TestFilterModeNoTieReturnsModalValues(t *testing.T) {
	filtered, errVal := FilterArray([]Value{Integer(1), Integer(2), Integer(2), Integer(2), Integer(3), Integer(1)}, "mode")
	require.Nil(t, errVal)
	require.Len(t, filtered, 3)
	for _, v := range filtered {
		assert.Equal(t, int64(2), v.Integer)
	}
}

func TestReduceHashConcatenatePadsEachElementTo32Bytes(t *testing.T) {
	result, err := Reduce([]Value{Bytes(nil), Bytes([]byte{0xd4})}, "hashConcatenate")
	require.NoError(t, err)
	require.False(t, IsError(result))

	var concat []byte
	concat = append(concat, make([]byte, 32)...)
	padded := make([]byte, 32)
	padded[31] = 0xd4
	concat = append(concat, padded...)
	digest, err := Hash(concat, "sha256")
	require.NoError(t, err)
	assert.Equal(t, digest, result.Bytes)
}

func TestReduceHashConcatenateRejectsNonBytes(t *testing.T) {
	result, err := Reduce([]Value{Bytes([]byte{1}), String("x")}, "hashConcatenate")
	require.NoError(t, err)
	require.True(t, IsError(result))
	assert.Equal(t, types.RadonErrWrongArguments, result.Error.Kind)
}
