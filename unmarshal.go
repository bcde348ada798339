package plist

import (
	"encoding"
	"math"
	"reflect"
	"strconv"

	uuid "github.com/satori/go.uuid"
)

// UnmarshalValue stores the tree pval in the value pointed to by v.
//
// Dictionaries fill structs (by `plist` tag or field name) and maps; keys
// missing from the dictionary leave fields untouched, so optional pointer
// fields stay nil. Integers that do not fit the target field fail with
// KindNumericRange. An empty interface receives map[string]interface{},
// []interface{}, string, int64 (uint64 above MaxInt64), float64, bool,
// time.Time, []byte or UID.
func UnmarshalValue(pval Value, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return newError(PhaseUnmarshal, KindTypeMismatch, "", "target must be a non-nil pointer, not %T", v)
	}
	u := &unmarshalState{}
	return u.unmarshal(pval, rv.Elem())
}

type unmarshalState struct {
	path  []string
	depth int
}

func (u *unmarshalState) mismatch(val reflect.Value, pval Value) *Error {
	return typeMismatch(PhaseUnmarshal, u.path, val.Type().String(), TypeName(pval))
}

func (u *unmarshalState) unmarshal(pval Value, val reflect.Value) error {
	if pval == nil {
		return nil
	}
	if u.depth >= maxBridgeDepth {
		return newError(PhaseUnmarshal, KindLimitExceeded, "", "nesting deeper than %d", maxBridgeDepth).path(u.path)
	}
	u.depth++
	defer func() { u.depth-- }()

	typ := val.Type()
	if typ == valueType || (typ.Implements(valueType) && typ.Kind() != reflect.Interface) {
		own := Clone(pval)
		if !reflect.TypeOf(own).AssignableTo(typ) {
			return u.mismatch(val, pval)
		}
		val.Set(reflect.ValueOf(own))
		return nil
	}

	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			val.Set(reflect.New(typ.Elem()))
		}
		return u.unmarshal(pval, val.Elem())
	}

	if val.CanAddr() && reflect.PtrTo(typ).Implements(unmarshalerType) {
		if err := val.Addr().Interface().(Unmarshaler).UnmarshalPlist(Clone(pval)); err != nil {
			return newError(PhaseUnmarshal, KindTypeMismatch, "", "UnmarshalPlist failed").path(u.path).wrap(err)
		}
		return nil
	}

	switch typ {
	case timeType:
		date, ok := pval.(Date)
		if !ok {
			return u.mismatch(val, pval)
		}
		val.Set(reflect.ValueOf(date.Time()))
		return nil
	case uuidType:
		return u.unmarshalUUID(pval, val)
	}

	if s, ok := pval.(String); ok && val.CanAddr() && reflect.PtrTo(typ).Implements(textUnmarshalerType) {
		if err := val.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return newError(PhaseUnmarshal, KindTypeMismatch, "", "UnmarshalText failed").path(u.path).wrap(err)
		}
		return nil
	}

	switch val.Kind() {
	case reflect.Interface:
		if val.NumMethod() != 0 {
			return u.mismatch(val, pval)
		}
		return u.unmarshalInterface(pval, val)
	case reflect.Bool:
		b, ok := pval.(Boolean)
		if !ok {
			return u.mismatch(val, pval)
		}
		val.SetBool(bool(b))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return u.unmarshalInt(pval, val)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return u.unmarshalUint(pval, val)
	case reflect.Float32, reflect.Float64:
		r, ok := pval.(Real)
		if !ok {
			return u.mismatch(val, pval)
		}
		if val.OverflowFloat(float64(r)) {
			return numericRange(PhaseUnmarshal, u.path, float64(r), typ.String())
		}
		val.SetFloat(float64(r))
	case reflect.String:
		s, ok := pval.(String)
		if !ok {
			return u.mismatch(val, pval)
		}
		val.SetString(string(s))
	case reflect.Slice:
		if data, ok := pval.(Data); ok && typ.Elem().Kind() == reflect.Uint8 {
			bytes := reflect.MakeSlice(typ, len(data), len(data))
			for i, c := range data {
				bytes.Index(i).SetUint(uint64(c))
			}
			val.Set(bytes)
			return nil
		}
		array, ok := pval.(Array)
		if !ok {
			return u.mismatch(val, pval)
		}
		slice := reflect.MakeSlice(typ, len(array), len(array))
		if err := u.unmarshalElements(array, slice); err != nil {
			return err
		}
		val.Set(slice)
	case reflect.Array:
		if data, ok := pval.(Data); ok && typ.Elem().Kind() == reflect.Uint8 {
			if len(data) != val.Len() {
				return u.mismatch(val, pval)
			}
			for i, c := range data {
				val.Index(i).SetUint(uint64(c))
			}
			return nil
		}
		array, ok := pval.(Array)
		if !ok || len(array) != val.Len() {
			return u.mismatch(val, pval)
		}
		return u.unmarshalElements(array, val)
	case reflect.Map:
		dict, ok := AsDictionary(pval)
		if !ok {
			return u.mismatch(val, pval)
		}
		return u.unmarshalMap(dict, val)
	case reflect.Struct:
		dict, ok := AsDictionary(pval)
		if !ok {
			return u.mismatch(val, pval)
		}
		return u.unmarshalStruct(dict, val)
	default:
		return u.mismatch(val, pval)
	}
	return nil
}

func (u *unmarshalState) unmarshalInt(pval Value, val reflect.Value) error {
	var n int64
	switch pval := pval.(type) {
	case Integer:
		i, ok := pval.Int64()
		if !ok {
			return numericRange(PhaseUnmarshal, u.path, pval, val.Type().String())
		}
		n = i
	case UID:
		if uint64(pval) > math.MaxInt64 {
			return numericRange(PhaseUnmarshal, u.path, uint64(pval), val.Type().String())
		}
		n = int64(pval)
	default:
		return u.mismatch(val, pval)
	}
	if val.OverflowInt(n) {
		return numericRange(PhaseUnmarshal, u.path, n, val.Type().String())
	}
	val.SetInt(n)
	return nil
}

func (u *unmarshalState) unmarshalUint(pval Value, val reflect.Value) error {
	var n uint64
	switch pval := pval.(type) {
	case Integer:
		i, ok := pval.Uint64()
		if !ok {
			return numericRange(PhaseUnmarshal, u.path, pval, val.Type().String())
		}
		n = i
	case UID:
		n = uint64(pval)
	default:
		return u.mismatch(val, pval)
	}
	if val.OverflowUint(n) {
		return numericRange(PhaseUnmarshal, u.path, n, val.Type().String())
	}
	val.SetUint(n)
	return nil
}

func (u *unmarshalState) unmarshalUUID(pval Value, val reflect.Value) error {
	var (
		id  uuid.UUID
		err error
	)
	switch pval := pval.(type) {
	case Data:
		id, err = uuid.FromBytes(pval)
	case String:
		id, err = uuid.FromString(string(pval))
	default:
		return u.mismatch(val, pval)
	}
	if err != nil {
		return newError(PhaseUnmarshal, KindTypeMismatch, "", "invalid UUID").path(u.path).wrap(err)
	}
	val.Set(reflect.ValueOf(id))
	return nil
}

func (u *unmarshalState) unmarshalElements(array Array, val reflect.Value) error {
	for i, elem := range array {
		u.path = append(u.path, strconv.Itoa(i))
		err := u.unmarshal(elem, val.Index(i))
		u.path = u.path[:len(u.path)-1]
		if err != nil {
			return err
		}
	}
	return nil
}

func (u *unmarshalState) unmarshalMap(dict *Dictionary, val reflect.Value) error {
	typ := val.Type()
	if val.IsNil() {
		val.Set(reflect.MakeMapWithSize(typ, dict.Len()))
	}
	for i, k := range dict.keys {
		key, err := u.mapKey(k, typ.Key())
		if err != nil {
			return err
		}
		elem := reflect.New(typ.Elem()).Elem()
		u.path = append(u.path, k)
		err = u.unmarshal(dict.values[i], elem)
		u.path = u.path[:len(u.path)-1]
		if err != nil {
			return err
		}
		val.SetMapIndex(key, elem)
	}
	return nil
}

func (u *unmarshalState) mapKey(k string, typ reflect.Type) (reflect.Value, error) {
	if reflect.PtrTo(typ).Implements(textUnmarshalerType) {
		key := reflect.New(typ)
		if err := key.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(k)); err != nil {
			return reflect.Value{}, newError(PhaseUnmarshal, KindTypeMismatch, "", "invalid map key %q", k).path(u.path).wrap(err)
		}
		return key.Elem(), nil
	}
	key := reflect.New(typ).Elem()
	switch typ.Kind() {
	case reflect.String:
		key.SetString(k)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(k, 10, 64)
		if err != nil || key.OverflowInt(n) {
			return reflect.Value{}, numericRange(PhaseUnmarshal, u.path, k, typ.String())
		}
		key.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(k, 10, 64)
		if err != nil || key.OverflowUint(n) {
			return reflect.Value{}, numericRange(PhaseUnmarshal, u.path, k, typ.String())
		}
		key.SetUint(n)
	default:
		return reflect.Value{}, typeMismatch(PhaseUnmarshal, u.path, typ.String()+" map key", "string")
	}
	return key, nil
}

func (u *unmarshalState) unmarshalStruct(dict *Dictionary, val reflect.Value) error {
	tinfo := getTypeInfo(val.Type())
	for i := range tinfo.fields {
		finfo := &tinfo.fields[i]
		dval, ok := dict.Get(finfo.name)
		if !ok {
			continue
		}
		u.path = append(u.path, finfo.name)
		err := u.unmarshal(dval, finfo.value(val))
		u.path = u.path[:len(u.path)-1]
		if err != nil {
			return err
		}
	}
	return nil
}

// unmarshalInterface stores the natural Go form of pval in an empty
// interface.
func (u *unmarshalState) unmarshalInterface(pval Value, val reflect.Value) error {
	var out interface{}
	switch pval := pval.(type) {
	case *Dictionary:
		m := make(map[string]interface{}, pval.Len())
		for i, k := range pval.keys {
			var elem interface{}
			u.path = append(u.path, k)
			err := u.unmarshal(pval.values[i], reflect.ValueOf(&elem).Elem())
			u.path = u.path[:len(u.path)-1]
			if err != nil {
				return err
			}
			m[k] = elem
		}
		out = m
	case Array:
		s := make([]interface{}, len(pval))
		if err := u.unmarshalElements(pval, reflect.ValueOf(s)); err != nil {
			return err
		}
		out = s
	case String:
		out = string(pval)
	case Integer:
		if i, ok := pval.Int64(); ok {
			out = i
		} else {
			out = pval.value
		}
	case Real:
		out = float64(pval)
	case Boolean:
		out = bool(pval)
	case Date:
		out = pval.Time()
	case Data:
		out = append([]byte(nil), pval...)
	case UID:
		out = pval
	default:
		return u.mismatch(val, pval)
	}
	val.Set(reflect.ValueOf(out))
	return nil
}
