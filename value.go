package xsd

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
	"github.com/shopspring/decimal"
)

// RawElementsField holds children that no content member consumed when the
// schema is not strict.
const RawElementsField = "_raw_elements"

// NilValue is the type of Nil.
type NilValue struct{}

// Nil marks an element that is present but explicitly has no value
// (xsi:nil="true"). An absent value is a plain Go nil.
var Nil = NilValue{}

func (NilValue) String() string { return "Nil" }

func isNil(v any) bool {
	_, ok := v.(NilValue)
	return ok
}

// AnyObject pairs a value with the construct that renders it. Type selects
// the dynamic type of an element (rendered with xsi:type); Element names the
// element a wildcard renders.
type AnyObject struct {
	Element *Element
	Type    Type
	Value   any
}

func (a *AnyObject) String() string {
	switch {
	case a.Element != nil:
		return fmt.Sprintf("AnyObject(%s, %v)", a.Element.QName(), a.Value)
	case a.Type != nil:
		return fmt.Sprintf("AnyObject(%s, %v)", a.Type.Name(), a.Value)
	}
	return fmt.Sprintf("AnyObject(%v)", a.Value)
}

// Object is a parsed or constructed complex type instance: an ordered
// mapping from field name to value.
type Object struct {
	typ    *ComplexType
	keys   []string
	values map[string]any
}

func newObject(ct *ComplexType) *Object {
	return &Object{typ: ct, values: make(map[string]any)}
}

// NewRecord returns an object not bound to any type. Repeated content groups
// parse into records.
func NewRecord() *Object {
	return newObject(nil)
}

// Type returns the complex type that produced o, or nil for records.
func (o *Object) Type() *ComplexType {
	return o.typ
}

// Get returns the value of field name, or nil.
func (o *Object) Get(name string) any {
	return o.values[name]
}

// Lookup returns the value of field name and whether the field exists.
func (o *Object) Lookup(name string) (any, bool) {
	v, ok := o.values[name]
	return v, ok
}

// Set assigns a field. New fields are appended to the key order.
func (o *Object) Set(name string, value any) {
	if _, ok := o.values[name]; !ok {
		o.keys = append(o.keys, name)
	}
	o.values[name] = value
}

// Delete removes a field.
func (o *Object) Delete(name string) {
	if _, ok := o.values[name]; !ok {
		return
	}
	delete(o.values, name)
	for i, k := range o.keys {
		if k == name {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the field names in order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of fields.
func (o *Object) Len() int {
	return len(o.keys)
}

// Map converts o into nested plain maps and slices.
func (o *Object) Map() map[string]any {
	m := make(map[string]any, len(o.keys))
	for _, k := range o.keys {
		m[k] = plainValue(o.values[k])
	}
	return m
}

func plainValue(v any) any {
	switch v := v.(type) {
	case *Object:
		return v.Map()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plainValue(item)
		}
		return out
	}
	return v
}

// Equal reports structural equality over the field mapping.
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}
	keys := o.nonEmptyKeys()
	otherKeys := other.nonEmptyKeys()
	if len(keys) != len(otherKeys) {
		return false
	}
	for i := range keys {
		if keys[i] != otherKeys[i] {
			return false
		}
		if !ValuesEqual(o.values[keys[i]], other.values[keys[i]]) {
			return false
		}
	}
	return true
}

// nonEmptyKeys ignores unset fields so that an object carrying every field
// of its type equals a sparse record with the same set values.
func (o *Object) nonEmptyKeys() []string {
	var keys []string
	for _, k := range o.keys {
		if isEmptyValue(o.values[k]) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if l, ok := v.([]any); ok && len(l) == 0 {
		return true
	}
	return false
}

func (o *Object) String() string {
	var b strings.Builder
	if o.typ != nil && !o.typ.Name().IsZero() {
		b.WriteString(o.typ.Name().Local)
	}
	b.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", k, o.values[k])
	}
	b.WriteByte('}')
	return b.String()
}

// ValuesEqual compares two codec values. Numbers compare by value across Go
// numeric types, times by instant, and objects structurally.
func ValuesEqual(a, b any) bool {
	if isEmptyValue(a) && isEmptyValue(b) {
		return true
	}
	switch av := a.(type) {
	case *Object:
		switch bv := b.(type) {
		case *Object:
			return av.Equal(bv)
		case map[string]any:
			return recordMatches(av, bv)
		}
		return false
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !ValuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		if bo, ok := b.(*Object); ok {
			return recordMatches(bo, av)
		}
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case *AnyObject:
		bv, ok := b.(*AnyObject)
		return ok && av.Element == bv.Element && av.Type == bv.Type && ValuesEqual(av.Value, bv.Value)
	case *xmlnode.Node:
		bv, ok := b.(*xmlnode.Node)
		return ok && av.String() == bv.String()
	}
	if _, ok := b.(*Object); ok {
		return false
	}
	if da, ok := toDecimal(a); ok {
		if db, ok := toDecimal(b); ok {
			return da.Equal(db)
		}
	}
	return reflect.DeepEqual(a, b)
}

func recordMatches(o *Object, m map[string]any) bool {
	for k, v := range m {
		if !ValuesEqual(o.Get(k), v) {
			return false
		}
	}
	for _, k := range o.keys {
		if _, ok := m[k]; !ok && !isEmptyValue(o.values[k]) {
			return false
		}
	}
	return true
}

// lookupField reads a field from the value shapes accepted on render.
func lookupField(value any, name string) (any, bool) {
	switch v := value.(type) {
	case *Object:
		return v.Lookup(name)
	case map[string]any:
		f, ok := v[name]
		return f, ok
	}
	return nil, false
}

func isRecord(value any) bool {
	switch value.(type) {
	case *Object, map[string]any:
		return true
	}
	return false
}

// asList normalizes a repeated value into a slice.
func asList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []*Object:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	case []string:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	case []*xmlnode.Node:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
	return nil, false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int8:
		return decimal.NewFromInt(int64(n)), true
	case int16:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return decimalFromUint(uint64(n)), true
	case uint8:
		return decimalFromUint(uint64(n)), true
	case uint16:
		return decimalFromUint(uint64(n)), true
	case uint32:
		return decimalFromUint(uint64(n)), true
	case uint64:
		return decimalFromUint(n), true
	case float32:
		return decimalFromFloat(float64(n))
	case float64:
		return decimalFromFloat(n)
	}
	return decimal.Decimal{}, false
}
