package radon

import (
	"crypto/sha256"
	"encoding/json"
	"encoding/xml"
	"fmt"

	"github.com/witmesh/witnode/pkg/types"
	"golang.org/x/crypto/sha3"
)

// Hash implements RADON's Hash(algo) bytes operator. "sha256" covers
// the common case; "sha3-256" is offered for sources that publish
// Keccak-family digests, reusing the same x/crypto dependency the
// witness identity layer already pulls in for address derivation.
func Hash(data []byte, algo string) ([]byte, error) {
	switch algo {
	case "sha256":
		sum := sha256.Sum256(data)
		return sum[:], nil
	case "sha3-256":
		sum := sha3.Sum256(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
}

func parseJSONMap(s string) Value {
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Err(types.RadonErrUnknown)
	}
	out := make(map[string]Value, len(raw))
	for k, v := range raw {
		out[k] = fromJSON(v)
	}
	return Map(out)
}

func parseJSONArray(s string) Value {
	var raw []any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Err(types.RadonErrUnknown)
	}
	out := make([]Value, len(raw))
	for i, v := range raw {
		out[i] = fromJSON(v)
	}
	return Array(out...)
}

// xmlNode mirrors enough of encoding/xml's generic element shape to
// walk an arbitrary document: a tag name, its attributes, and children
// (text content lands as a childless node's own CharData).
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []xmlNode  `xml:",any"`
}

// parseXMLMap decodes an XML document into RADON's nested Map/Array/
// String value model: each element becomes a Map keyed by its
// immediate children's tag names (repeated tags collapse into an
// Array), leaf elements contribute their text content as a String.
func parseXMLMap(s string) Value {
	var root xmlNode
	if err := xml.Unmarshal([]byte(s), &root); err != nil {
		return Err(types.RadonErrUnknown)
	}
	return xmlNodeValue(root)
}

func xmlNodeValue(n xmlNode) Value {
	if len(n.Children) == 0 {
		return String(n.Content)
	}
	grouped := make(map[string][]Value, len(n.Children))
	order := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		key := c.XMLName.Local
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], xmlNodeValue(c))
	}
	out := make(map[string]Value, len(order))
	for _, key := range order {
		vals := grouped[key]
		if len(vals) == 1 {
			out[key] = vals[0]
		} else {
			out[key] = Array(vals...)
		}
	}
	return Map(out)
}

func fromJSON(v any) Value {
	switch t := v.(type) {
	case string:
		return String(t)
	case float64:
		return Float(t)
	case bool:
		return Boolean(t)
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = fromJSON(e)
		}
		return Map(out)
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = fromJSON(e)
		}
		return Array(out...)
	case nil:
		return Err(types.RadonErrUnknown)
	default:
		return Err(types.RadonErrUnknown)
	}
}
