package radon

import "github.com/witmesh/witnode/pkg/types"

// codeNames documents the closed RADON error code table; used by
// logging and the RPC surface to render a human-readable error kind
// instead of a bare integer.
var codeNames = map[types.RadonErrorKind]string{
	types.RadonErrUnknown:               "Unknown",
	types.RadonErrSourceScriptNotCBOR:   "SourceScriptNotCBOR",
	types.RadonErrSourceScriptNotArray:  "SourceScriptNotArray",
	types.RadonErrSourceScriptNotRADON:  "SourceScriptNotRADON",
	types.RadonErrRequestTooManySources: "RequestTooManySources",
	types.RadonErrScriptTooManyCalls:    "ScriptTooManyCalls",
	types.RadonErrUnsupportedOperator:   "UnsupportedOperator",
	types.RadonErrWrongArguments:        "WrongArguments",
	types.RadonErrHTTPError:             "HTTPError",
	types.RadonErrRetrieveTimeout:       "RetrieveTimeout",
	types.RadonErrUnderflow:             "Underflow",
	types.RadonErrOverflow:              "Overflow",
	types.RadonErrDivisionByZero:        "DivisionByZero",
	types.RadonErrNoReveals:             "NoReveals",
	types.RadonErrModeTie:               "ModeTie",
	types.RadonErrModeEmpty:             "ModeEmpty",
}

// ErrorName renders a RadonErrorKind's name, falling back to "Unknown"
// for any code outside the closed table (never happens for values this
// package itself constructs, but Unmarshal can see arbitrary wire
// bytes).
func ErrorName(kind types.RadonErrorKind) string {
	if name, ok := codeNames[kind]; ok {
		return name
	}
	return "Unknown"
}
