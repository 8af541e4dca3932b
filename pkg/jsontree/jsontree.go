// Package jsontree provides an order-preserving JSON value tree.
//
// The rule language encodes operator arguments as JSON objects whose keys are
// stringified positions ("0", "1", ...), and the argument order is the key
// order of the document. encoding/json maps discard that order, so every
// expression, answer value, and extraction template in the engine is held as
// a *Node instead of a map[string]any.
package jsontree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// Kind identifies the JSON type a Node holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "invalid"
	}
}

// Node is one JSON value. Nodes are immutable once built; a nil *Node is
// treated as JSON null by every method.
type Node struct {
	kind   Kind
	b      bool
	i      int64
	f      float64
	s      string
	elems  []*Node
	keys   []string
	fields map[string]*Node
}

// Null returns the JSON null value.
func Null() *Node { return &Node{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) *Node { return &Node{kind: KindBool, b: b} }

// Int wraps an integer.
func Int(i int64) *Node { return &Node{kind: KindInt, i: i} }

// Float wraps a floating-point number.
func Float(f float64) *Node { return &Node{kind: KindFloat, f: f} }

// String wraps a string.
func String(s string) *Node { return &Node{kind: KindString, s: s} }

// NewArray builds an array node from the given elements.
func NewArray(elems ...*Node) *Node {
	return &Node{kind: KindArray, elems: elems}
}

// NewObject builds an empty object node. Populate it with Set; key order is
// insertion order.
func NewObject() *Node {
	return &Node{kind: KindObject, fields: make(map[string]*Node)}
}

// Set adds or replaces a field on an object node and returns the node for
// chaining. Calling Set on a non-object node panics; objects are only built
// programmatically in tests and loaders where that is a programmer error.
func (n *Node) Set(key string, value *Node) *Node {
	if n.kind != KindObject {
		panic("jsontree: Set on non-object node")
	}
	if _, ok := n.fields[key]; !ok {
		n.keys = append(n.keys, key)
	}
	if value == nil {
		value = Null()
	}
	n.fields[key] = value
	return n
}

// Kind returns the node's JSON type.
func (n *Node) Kind() Kind {
	if n == nil {
		return KindNull
	}
	return n.kind
}

// IsNull reports whether the node is JSON null (or a nil *Node).
func (n *Node) IsNull() bool { return n.Kind() == KindNull }

// Content returns the primitive content of the node as a string, following
// the source format's convention that any scalar has a textual content
// (true -> "true", 5 -> "5"). The second result is false for null and for
// composite nodes.
func (n *Node) Content() (string, bool) {
	switch n.Kind() {
	case KindBool:
		return strconv.FormatBool(n.b), true
	case KindInt:
		return strconv.FormatInt(n.i, 10), true
	case KindFloat:
		return strconv.FormatFloat(n.f, 'g', -1, 64), true
	case KindString:
		return n.s, true
	default:
		return "", false
	}
}

// BoolVal returns the boolean value; ok is false unless the node is a bool.
func (n *Node) BoolVal() (bool, bool) {
	if n.Kind() != KindBool {
		return false, false
	}
	return n.b, true
}

// Len returns the number of elements (array) or fields (object), else 0.
func (n *Node) Len() int {
	switch n.Kind() {
	case KindArray:
		return len(n.elems)
	case KindObject:
		return len(n.keys)
	default:
		return 0
	}
}

// Elems returns the elements of an array node, or nil.
func (n *Node) Elems() []*Node {
	if n.Kind() != KindArray {
		return nil
	}
	return n.elems
}

// Keys returns an object's field names in document order, or nil.
func (n *Node) Keys() []string {
	if n.Kind() != KindObject {
		return nil
	}
	return n.keys
}

// Field returns the named field of an object node, or nil if absent.
func (n *Node) Field(key string) *Node {
	if n.Kind() != KindObject {
		return nil
	}
	return n.fields[key]
}

// Has reports whether an object node has the named field.
func (n *Node) Has(key string) bool {
	if n.Kind() != KindObject {
		return false
	}
	_, ok := n.fields[key]
	return ok
}

// Values returns an object's field values in document order, or nil for any
// other kind. This is the positional argument list of the rule language.
func (n *Node) Values() []*Node {
	if n.Kind() != KindObject {
		return nil
	}
	vals := make([]*Node, len(n.keys))
	for i, k := range n.keys {
		vals[i] = n.fields[k]
	}
	return vals
}

// ToNative converts the tree to native Go values: nil, bool, int64, float64,
// string, []any, and map[string]any. String scalars whose content parses as a
// boolean or a number coerce to that value, matching the source format where
// a primitive's type is recovered from its content.
func (n *Node) ToNative() any {
	switch n.Kind() {
	case KindNull:
		return nil
	case KindBool:
		return n.b
	case KindInt:
		return n.i
	case KindFloat:
		return n.f
	case KindString:
		return coerceScalar(n.s)
	case KindArray:
		out := make([]any, len(n.elems))
		for i, e := range n.elems {
			out[i] = e.ToNative()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(n.keys))
		for _, k := range n.keys {
			out[k] = n.fields[k].ToNative()
		}
		return out
	default:
		return nil
	}
}

// coerceScalar applies the bool -> int -> float -> string detection ladder.
func coerceScalar(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// FromNative converts native Go values back into a tree. Unknown types fall
// back to their string form, mirroring the engine's best-effort extraction
// contract.
func FromNative(v any) *Node {
	switch t := v.(type) {
	case nil:
		return Null()
	case *Node:
		if t == nil {
			return Null()
		}
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case string:
		return String(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		if f, err := t.Float64(); err == nil {
			return Float(f)
		}
		return String(t.String())
	case []any:
		elems := make([]*Node, len(t))
		for i, e := range t {
			elems[i] = FromNative(e)
		}
		return NewArray(elems...)
	case map[string]any:
		return objectFromMap(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		elems := make([]*Node, rv.Len())
		for i := range elems {
			elems[i] = FromNative(rv.Index(i).Interface())
		}
		return NewArray(elems...)
	case reflect.Map:
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return objectFromMap(m)
	}
	return String(fmt.Sprint(v))
}

// objectFromMap builds an object with sorted keys so output is deterministic.
func objectFromMap(m map[string]any) *Node {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	obj := NewObject()
	for _, k := range keys {
		obj.Set(k, FromNative(m[k]))
	}
	return obj
}

// Parse decodes a JSON document into a Node, preserving object key order.
func Parse(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	n, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("jsontree: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("jsontree: trailing data after JSON value")
	}
	return n, nil
}

// MustParse is Parse for test fixtures and static templates; it panics on
// malformed input.
func MustParse(src string) *Node {
	n, err := Parse([]byte(src))
	if err != nil {
		panic(err)
	}
	return n
}

func decodeValue(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (*Node, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string")
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			var elems []*Node
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				elems = append(elems, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return NewArray(elems...), nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case bool:
		return Bool(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.String())
		}
		return Float(f), nil
	case string:
		return String(t), nil
	case nil:
		return Null(), nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

// UnmarshalJSON implements json.Unmarshaler so Node fields embed naturally in
// model structs decoded with encoding/json.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}

// MarshalJSON implements json.Marshaler, writing object fields in document
// order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) encode(buf *bytes.Buffer) error {
	switch n.Kind() {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(n.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(n.i, 10))
	case KindFloat:
		if math.IsNaN(n.f) || math.IsInf(n.f, 0) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(strconv.FormatFloat(n.f, 'g', -1, 64))
	case KindString:
		b, err := json.Marshal(n.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range n.elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := n.fields[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// String renders the node as compact JSON; used in logs and error messages.
func (n *Node) String() string {
	b, err := n.MarshalJSON()
	if err != nil {
		return "<invalid>"
	}
	return string(b)
}
