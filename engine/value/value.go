// Package value implements the closed set of dynamic values a state tree can hold.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	Null Kind = iota
	Number
	Integer
	Bool
	String
	List
	Object
)

var kindNames = [...]string{
	Null:    "null",
	Number:  "number",
	Integer: "integer",
	Bool:    "bool",
	String:  "string",
	List:    "list",
	Object:  "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a tagged variant. The zero Value is Null.
type Value struct {
	kind Kind
	num  float64
	i    int64
	b    bool
	s    string
	list []Value
	obj  map[string]Value
}

// NewNumber returns a floating-point value.
func NewNumber(f float64) Value { return Value{kind: Number, num: f} }

// NewInt returns an integer value.
func NewInt(i int64) Value { return Value{kind: Integer, i: i} }

// NewBool returns a boolean value.
func NewBool(b bool) Value { return Value{kind: Bool, b: b} }

// NewString returns a string value.
func NewString(s string) Value { return Value{kind: String, s: s} }

// NewList returns a list value holding items. A nil slice becomes an empty list.
func NewList(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: List, list: items}
}

// NewObject returns an object value backed by m. A nil map becomes an empty object.
func NewObject(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: Object, obj: m}
}

// Kind reports the variant held.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == Null }

// IsNumeric reports whether v is a Number or an Integer. Bool is not numeric.
func (v Value) IsNumeric() bool { return v.kind == Number || v.kind == Integer }

// Float returns the numeric value of a Number or Integer.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case Number:
		return v.num, true
	case Integer:
		return float64(v.i), true
	}
	return 0, false
}

// Int returns the value of an Integer.
func (v Value) Int() (int64, bool) {
	if v.kind != Integer {
		return 0, false
	}
	return v.i, true
}

// Bool returns the value of a Bool.
func (v Value) Bool() (bool, bool) {
	if v.kind != Bool {
		return false, false
	}
	return v.b, true
}

// Str returns the value of a String.
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

// List returns the backing slice of a List.
func (v Value) List() ([]Value, bool) {
	if v.kind != List {
		return nil, false
	}
	return v.list, true
}

// Object returns the backing map of an Object. Mutating the map mutates v.
func (v Value) Object() (map[string]Value, bool) {
	if v.kind != Object {
		return nil, false
	}
	return v.obj, true
}

// Truthy reports the boolean interpretation of v: false for Null, false,
// zero, and empty strings, lists and objects.
func (v Value) Truthy() bool {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		return v.num != 0
	case Integer:
		return v.i != 0
	case String:
		return v.s != ""
	case List:
		return len(v.list) > 0
	case Object:
		return len(v.obj) > 0
	default:
		return false
	}
}

// Equal reports deep equality. Integer and Number compare numerically;
// no other cross-kind pair is equal.
func (v Value) Equal(o Value) bool {
	if v.IsNumeric() && o.IsNumeric() {
		a, _ := v.Float()
		b, _ := o.Float()
		if v.kind == Integer && o.kind == Integer {
			return v.i == o.i
		}
		return a == b
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == o.b
	case String:
		return v.s == o.s
	case List:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, a := range v.obj {
			b, ok := o.obj[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case List:
		items := make([]Value, len(v.list))
		for i, it := range v.list {
			items[i] = it.Clone()
		}
		return Value{kind: List, list: items}
	case Object:
		m := make(map[string]Value, len(v.obj))
		for k, it := range v.obj {
			m[k] = it.Clone()
		}
		return Value{kind: Object, obj: m}
	default:
		return v
	}
}

// String renders v for display.
func (v Value) String() string {
	switch v.kind {
	case Null:
		return "null"
	case Number:
		return formatFloat(v.num)
	case Integer:
		return strconv.FormatInt(v.i, 10)
	case Bool:
		return strconv.FormatBool(v.b)
	case String:
		return v.s
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("<%s>", v.kind)
		}
		return string(data)
	}
}

// ToAny converts v into plain Go values: nil, float64, int64, bool, string,
// []any and map[string]any.
func (v Value) ToAny() any {
	switch v.kind {
	case Number:
		return v.num
	case Integer:
		return v.i
	case Bool:
		return v.b
	case String:
		return v.s
	case List:
		out := make([]any, len(v.list))
		for i, it := range v.list {
			out[i] = it.ToAny()
		}
		return out
	case Object:
		out := make(map[string]any, len(v.obj))
		for k, it := range v.obj {
			out[k] = it.ToAny()
		}
		return out
	default:
		return nil
	}
}

// FromAny converts decoded JSON, YAML or Lua data into a Value.
// json.Number literals without a fraction or exponent become Integers.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case bool:
		return NewBool(t), nil
	case int:
		return NewInt(int64(t)), nil
	case int32:
		return NewInt(int64(t)), nil
	case int64:
		return NewInt(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return NewNumber(float64(t)), nil
		}
		return NewInt(int64(t)), nil
	case float32:
		return NewNumber(float64(t)), nil
	case float64:
		return NewNumber(t), nil
	case json.Number:
		return fromNumber(t)
	case string:
		return NewString(t), nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = NewString(s)
		}
		return NewList(items...), nil
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			v, err := FromAny(it)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = v
		}
		return NewList(items...), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, it := range t {
			v, err := FromAny(it)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			m[k] = v
		}
		return NewObject(m), nil
	case map[any]any:
		m := make(map[string]Value, len(t))
		for k, it := range t {
			ks, ok := k.(string)
			if !ok {
				return Value{}, fmt.Errorf("non-string key %v", k)
			}
			v, err := FromAny(it)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", ks, err)
			}
			m[ks] = v
		}
		return NewObject(m), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

// MustFromAny is FromAny for literals known to be valid. It panics on error.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

func fromNumber(n json.Number) (Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return NewInt(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, fmt.Errorf("invalid number %q", s)
	}
	return NewNumber(f), nil
}

// MarshalJSON encodes v. Whole Numbers keep a fractional part so they
// decode back as Numbers rather than Integers.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Null:
		return []byte("null"), nil
	case Number:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("value: cannot encode %v", v.num)
		}
		return []byte(formatFloat(v.num)), nil
	case Integer:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case Bool:
		return json.Marshal(v.b)
	case String:
		return json.Marshal(v.s)
	case List:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, it := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			data, err := it.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case Object:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			data, err := v.obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("value: unknown kind %d", v.kind)
	}
}

// UnmarshalJSON decodes any JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func formatFloat(f float64) string {
	format := byte('f')
	if a := math.Abs(f); a != 0 && (a < 1e-6 || a >= 1e21) {
		format = 'g'
	}
	s := strconv.FormatFloat(f, format, -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
