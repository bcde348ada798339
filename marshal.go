package plist

import (
	"encoding"
	"reflect"
	"sort"
	"strconv"
	"time"

	uuid "github.com/satori/go.uuid"
)

// Marshaler is implemented by types that build their own plist value.
type Marshaler interface {
	MarshalPlist() (Value, error)
}

// Unmarshaler is implemented by types that fill themselves from a plist
// value. The value passed in is owned by the callee.
type Unmarshaler interface {
	UnmarshalPlist(Value) error
}

const maxBridgeDepth = 10000

var (
	valueType           = reflect.TypeOf((*Value)(nil)).Elem()
	marshalerType       = reflect.TypeOf((*Marshaler)(nil)).Elem()
	unmarshalerType     = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	timeType            = reflect.TypeOf((*time.Time)(nil)).Elem()
	uuidType            = reflect.TypeOf((*uuid.UUID)(nil)).Elem()
)

// MarshalValue converts a Go value to a plist tree. Nil pointers and
// interfaces are absent values: struct fields and map entries holding them
// are omitted, while a nil inside a slice cannot be represented.
func MarshalValue(v interface{}) (Value, error) {
	m := &marshalState{}
	pval, ok, err := m.marshal(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(PhaseMarshal, KindUnrepresentable, "", "nil has no plist form")
	}
	return pval, nil
}

type marshalState struct {
	path  []string
	depth int
}

func (m *marshalState) fail(kind Kind, detail string, args ...interface{}) *Error {
	return newError(PhaseMarshal, kind, "", detail, args...).path(m.path)
}

// marshal returns ok == false for an absent value.
func (m *marshalState) marshal(val reflect.Value) (Value, bool, error) {
	if !val.IsValid() {
		return nil, false, nil
	}
	if (val.Kind() == reflect.Ptr || val.Kind() == reflect.Interface) && val.IsNil() {
		return nil, false, nil
	}
	if m.depth >= maxBridgeDepth {
		return nil, false, m.fail(KindLimitExceeded, "nesting deeper than %d", maxBridgeDepth)
	}
	m.depth++
	defer func() { m.depth-- }()

	typ := val.Type()
	if typ.Implements(marshalerType) {
		pval, err := val.Interface().(Marshaler).MarshalPlist()
		return pval, pval != nil, err
	}
	if val.CanAddr() && reflect.PtrTo(typ).Implements(marshalerType) {
		pval, err := val.Addr().Interface().(Marshaler).MarshalPlist()
		return pval, pval != nil, err
	}
	if typ.Implements(valueType) && val.Kind() != reflect.Interface {
		return Clone(val.Interface().(Value)), true, nil
	}
	switch typ {
	case timeType:
		return DateFromTime(val.Interface().(time.Time)), true, nil
	case uuidType:
		id := val.Interface().(uuid.UUID)
		return Data(id.Bytes()), true, nil
	}
	if typ.Implements(textMarshalerType) && val.Kind() != reflect.Interface {
		return m.marshalText(val.Interface().(encoding.TextMarshaler))
	}
	if val.CanAddr() && reflect.PtrTo(typ).Implements(textMarshalerType) {
		return m.marshalText(val.Addr().Interface().(encoding.TextMarshaler))
	}

	switch val.Kind() {
	case reflect.Ptr, reflect.Interface:
		return m.marshal(val.Elem())
	case reflect.Bool:
		return Boolean(val.Bool()), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NewInteger(val.Int()), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return integerFromUint64(val.Uint()), true, nil
	case reflect.Float32, reflect.Float64:
		return Real(val.Float()), true, nil
	case reflect.String:
		return String(val.String()), true, nil
	case reflect.Slice, reflect.Array:
		if typ.Elem().Kind() == reflect.Uint8 {
			data := make(Data, val.Len())
			for i := range data {
				data[i] = byte(val.Index(i).Uint())
			}
			return data, true, nil
		}
		return m.marshalArray(val)
	case reflect.Map:
		return m.marshalMap(val)
	case reflect.Struct:
		return m.marshalStruct(val)
	}
	return nil, false, m.fail(KindUnrepresentable, "unsupported type %v", typ)
}

func (m *marshalState) marshalText(tm encoding.TextMarshaler) (Value, bool, error) {
	text, err := tm.MarshalText()
	if err != nil {
		return nil, false, m.fail(KindUnrepresentable, "MarshalText failed").wrap(err)
	}
	return String(text), true, nil
}

func (m *marshalState) marshalArray(val reflect.Value) (Value, bool, error) {
	array := make(Array, 0, val.Len())
	for i := 0; i < val.Len(); i++ {
		m.path = append(m.path, strconv.Itoa(i))
		pval, ok, err := m.marshal(val.Index(i))
		if err == nil && !ok {
			err = m.fail(KindUnrepresentable, "nil element in sequence")
		}
		m.path = m.path[:len(m.path)-1]
		if err != nil {
			return nil, false, err
		}
		array = append(array, pval)
	}
	return array, true, nil
}

// marshalMap sorts keys so that equal maps always produce equal trees.
func (m *marshalState) marshalMap(val reflect.Value) (Value, bool, error) {
	type entry struct {
		key   string
		value reflect.Value
	}
	entries := make([]entry, 0, val.Len())
	iter := val.MapRange()
	for iter.Next() {
		key, err := m.mapKey(iter.Key())
		if err != nil {
			return nil, false, err
		}
		entries = append(entries, entry{key, iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	dict := NewDictionary(len(entries))
	for _, e := range entries {
		m.path = append(m.path, e.key)
		pval, ok, err := m.marshal(e.value)
		m.path = m.path[:len(m.path)-1]
		if err != nil {
			return nil, false, err
		}
		if ok {
			dict.append(e.key, pval)
		}
	}
	return dict, true, nil
}

func (m *marshalState) mapKey(key reflect.Value) (string, error) {
	if key.Kind() == reflect.String {
		return key.String(), nil
	}
	if tm, ok := key.Interface().(encoding.TextMarshaler); ok {
		text, err := tm.MarshalText()
		if err != nil {
			return "", m.fail(KindUnrepresentable, "MarshalText failed for map key").wrap(err)
		}
		return string(text), nil
	}
	switch key.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(key.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(key.Uint(), 10), nil
	}
	return "", m.fail(KindUnrepresentable, "unsupported map key type %v", key.Type())
}

func (m *marshalState) marshalStruct(val reflect.Value) (Value, bool, error) {
	tinfo := getTypeInfo(val.Type())
	dict := NewDictionary(len(tinfo.fields))
	for i := range tinfo.fields {
		finfo := &tinfo.fields[i]
		fval, ok := finfo.lookup(val)
		if !ok || (finfo.omitEmpty && isEmptyValue(fval)) {
			continue
		}
		m.path = append(m.path, finfo.name)
		pval, ok, err := m.marshal(fval)
		m.path = m.path[:len(m.path)-1]
		if err != nil {
			return nil, false, err
		}
		if ok {
			dict.append(finfo.name, pval)
		}
	}
	return dict, true, nil
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}
