package radon

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/witmesh/witnode/pkg/types"
)

// radonErrorCBORTag is the CBOR tag number reserved for encoding a
// RadonError as tag(39)[kind_code, args...].
const radonErrorCBORTag = 39

// wireValue mirrors Value for CBOR (de)serialization, since the
// variant tag in types.RadonValue is a Go string, not a CBOR-native
// discriminator.
type wireValue struct {
	Kind    string
	Array   []wireValue          `cbor:",omitempty"`
	Map     map[string]wireValue `cbor:",omitempty"`
	String  string               `cbor:",omitempty"`
	Float   float64              `cbor:",omitempty"`
	Integer int64                `cbor:",omitempty"`
	Bytes   []byte               `cbor:",omitempty"`
	Boolean bool                 `cbor:",omitempty"`
	Error   *wireError           `cbor:",omitempty"`
}

type wireError struct {
	Kind uint8
	Args []wireValue
}

func toWire(v Value) wireValue {
	w := wireValue{Kind: string(v.Kind)}
	switch v.Kind {
	case types.RadonArray:
		w.Array = make([]wireValue, len(v.Array))
		for i, e := range v.Array {
			w.Array[i] = toWire(e)
		}
	case types.RadonMap:
		w.Map = make(map[string]wireValue, len(v.Map))
		for k, e := range v.Map {
			w.Map[k] = toWire(e)
		}
	case types.RadonString:
		w.String = v.String
	case types.RadonFloat:
		w.Float = v.Float
	case types.RadonInteger:
		w.Integer = v.Integer
	case types.RadonBytes:
		w.Bytes = v.Bytes
	case types.RadonBoolean:
		w.Boolean = v.Boolean
	case types.RadonError:
		args := make([]wireValue, len(v.Error.Args))
		for i, a := range v.Error.Args {
			args[i] = toWire(a)
		}
		w.Error = &wireError{Kind: uint8(v.Error.Kind), Args: args}
	}
	return w
}

func fromWire(w wireValue) Value {
	v := Value{Kind: types.RadonValueKind(w.Kind)}
	switch v.Kind {
	case types.RadonArray:
		v.Array = make([]Value, len(w.Array))
		for i, e := range w.Array {
			v.Array[i] = fromWire(e)
		}
	case types.RadonMap:
		v.Map = make(map[string]Value, len(w.Map))
		for k, e := range w.Map {
			v.Map[k] = fromWire(e)
		}
	case types.RadonString:
		v.String = w.String
	case types.RadonFloat:
		v.Float = w.Float
	case types.RadonInteger:
		v.Integer = w.Integer
	case types.RadonBytes:
		v.Bytes = w.Bytes
	case types.RadonBoolean:
		v.Boolean = w.Boolean
	case types.RadonError:
		if w.Error == nil {
			return Err(types.RadonErrUnknown)
		}
		args := make([]Value, len(w.Error.Args))
		for i, a := range w.Error.Args {
			args[i] = fromWire(a)
		}
		v.Error = &types.RadonErrorValue{Kind: types.RadonErrorKind(w.Error.Kind), Args: args}
	default:
		return Err(types.RadonErrUnknown)
	}
	return v
}

// Marshal encodes a Value as CBOR. A RadonError value is carried as
// tag(39)[kind_code, args...]; every other variant (and every error
// argument) encodes as a wireValue map tagged with its Kind.
func Marshal(v Value) ([]byte, error) {
	if v.Kind == types.RadonError {
		args := make([]any, len(v.Error.Args))
		for i, a := range v.Error.Args {
			args[i] = toWire(a)
		}
		payload := append([]any{v.Error.Kind}, args...)
		tagged := cbor.Tag{Number: radonErrorCBORTag, Content: payload}
		return cbor.Marshal(tagged)
	}
	return cbor.Marshal(toWire(v))
}

// Unmarshal decodes CBOR bytes into a Value. Decode failures never
// propagate as a Go error to callers that only want a Value; Unmarshal
// returns the explicit RadonErrUnknown value for malformed input,
// per the closed decision against bare sentinel placeholders.
func Unmarshal(data []byte) Value {
	var tagged cbor.RawTag
	if err := cbor.Unmarshal(data, &tagged); err == nil && tagged.Number == radonErrorCBORTag {
		var payload []cbor.RawMessage
		if err := cbor.Unmarshal(tagged.Content, &payload); err == nil && len(payload) >= 1 {
			var kind uint8
			if err := cbor.Unmarshal(payload[0], &kind); err == nil {
				args := make([]Value, 0, len(payload)-1)
				for _, raw := range payload[1:] {
					var w wireValue
					if err := cbor.Unmarshal(raw, &w); err == nil {
						args = append(args, fromWire(w))
					}
				}
				return Err(types.RadonErrorKind(kind), args...)
			}
		}
		return Err(types.RadonErrUnknown)
	}

	var w wireValue
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Err(types.RadonErrUnknown)
	}
	return fromWire(w)
}

// MarshalCBOR encodes a Call per spec.md §4.2's "Script form": a naked
// opcode when there is no argument, or a 2-element array pairing the
// opcode with its argument's wireValue encoding. Script, being a
// plain slice of Call, inherits this per-element encoding with no
// further code — a Script is just "a CBOR array of items".
func (c Call) MarshalCBOR() ([]byte, error) {
	if c.Arg == nil {
		return cbor.Marshal(uint8(c.Op))
	}
	return cbor.Marshal([]any{uint8(c.Op), toWire(*c.Arg)})
}

// UnmarshalCBOR decodes a Call from either wire shape MarshalCBOR
// produces.
func (c *Call) UnmarshalCBOR(data []byte) error {
	var naked uint8
	if err := cbor.Unmarshal(data, &naked); err == nil {
		c.Op = Opcode(naked)
		c.Arg = nil
		return nil
	}

	var pair []cbor.RawMessage
	if err := cbor.Unmarshal(data, &pair); err != nil || len(pair) != 2 {
		return fmt.Errorf("malformed RAD script call: %x", data)
	}
	var op uint8
	if err := cbor.Unmarshal(pair[0], &op); err != nil {
		return fmt.Errorf("malformed RAD script opcode: %w", err)
	}
	var w wireValue
	if err := cbor.Unmarshal(pair[1], &w); err != nil {
		return fmt.Errorf("malformed RAD script argument: %w", err)
	}
	arg := fromWire(w)
	c.Op = Opcode(op)
	c.Arg = &arg
	return nil
}
