package partitionkey

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a structured record in normalized form: null, bool, number,
// string, array or object. The zero Value is null.
//
// Numbers keep their JSON literal, so integers of any size survive unchanged.
// Objects are unordered; their canonical text sorts the keys.
type Value struct {
	kind   Kind
	truth  bool
	text   string
	items  []Value
	fields map[string]Value
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind {
	return v.kind
}

// Field looks up name on an object. It reports false when v is not an object
// or when the object has no such field. A field explicitly set to null is
// found and returned as a null Value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.fields[name]
	return f, ok
}

// truthy follows the JavaScript notion of falsy values: null, false, 0 and "".
// Empty arrays and objects are truthy.
func (v Value) truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.truth
	case KindNumber:
		return v.text != "0"
	case KindString:
		return v.text != ""
	}
	return true
}

// ValueOf normalizes x into a Value.
//
// Strings and bools are taken as is. A json.RawMessage is parsed. Anything
// else goes through encoding/json, so struct tags and json.Marshaler
// implementations decide the shape; nil pointers, maps and slices become null.
// Values encoding/json rejects (channels, funcs, NaN, cycles) yield an error
// wrapping ErrSerialization.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Value{}, nil
		}
		return *t, nil
	case string:
		return Value{kind: KindString, text: t}, nil
	case bool:
		return Value{kind: KindBool, truth: t}, nil
	case json.RawMessage:
		if len(t) == 0 {
			return Value{}, nil
		}
		return ParseJSON(t)
	}
	data, err := json.Marshal(x)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return ParseJSON(data)
}

// ParseJSON parses a single JSON document into a Value.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("%w: trailing data after JSON value", ErrSerialization)
	}
	return fromDecoded(raw), nil
}

func fromDecoded(raw any) Value {
	switch t := raw.(type) {
	case bool:
		return Value{kind: KindBool, truth: t}
	case json.Number:
		return Value{kind: KindNumber, text: normalizeNumber(t.String())}
	case string:
		return Value{kind: KindString, text: t}
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = fromDecoded(item)
		}
		return Value{kind: KindArray, items: items}
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = fromDecoded(item)
		}
		return Value{kind: KindObject, fields: fields}
	}
	return Value{}
}

// normalizeNumber rewrites a JSON number literal: 1.0, 1e0 and 1 all become 1,
// and -0 becomes 0. Integer literals are kept digit for digit so large ids do
// not lose precision. Past 1e21 that means an integer literal and the float of
// the same value spell differently: 10000000000000000000000 stays as is while
// 1e22 is written 1e+22.
func normalizeNumber(lit string) string {
	if !strings.ContainsAny(lit, ".eE") {
		if strings.Trim(lit, "-0") == "" {
			return "0"
		}
		return lit
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return lit
	}
	if f == 0 {
		return "0"
	}
	// encoding/json formats finite floats the way ECMAScript does.
	b, err := json.Marshal(f)
	if err != nil {
		return lit
	}
	return string(b)
}
