package plist

// Value is a node of a property list tree. The set of implementations is
// closed: Array, *Dictionary, Boolean, Integer, Real, String, Date, Data
// and UID.
type Value interface {
	typeName() string
}

// Array is an ordered sequence of values.
type Array []Value

// Boolean is a plist <true/> or <false/>.
type Boolean bool

// Real is a 64-bit floating point number.
type Real float64

// String is Unicode text.
type String string

// Data is an opaque byte sequence.
type Data []byte

// UID is a keyed-archive object reference. It is decoded and preserved but
// never resolved.
type UID uint64

func (Array) typeName() string       { return "array" }
func (*Dictionary) typeName() string { return "dict" }
func (Boolean) typeName() string     { return "boolean" }
func (Integer) typeName() string     { return "integer" }
func (Real) typeName() string        { return "real" }
func (String) typeName() string      { return "string" }
func (Date) typeName() string        { return "date" }
func (Data) typeName() string        { return "data" }
func (UID) typeName() string         { return "uid" }

// TypeName returns the plist name of v's variant ("dict", "integer", ...),
// or "nil" for a nil Value.
func TypeName(v Value) string {
	if v == nil {
		return "nil"
	}
	return v.typeName()
}

func AsArray(v Value) (Array, bool) {
	a, ok := v.(Array)
	return a, ok
}

func AsDictionary(v Value) (*Dictionary, bool) {
	d, ok := v.(*Dictionary)
	return d, ok && d != nil
}

func AsBoolean(v Value) (bool, bool) {
	b, ok := v.(Boolean)
	return bool(b), ok
}

// AsInt64 returns v as an int64 if v is an Integer within int64 range.
func AsInt64(v Value) (int64, bool) {
	i, ok := v.(Integer)
	if !ok {
		return 0, false
	}
	return i.Int64()
}

// AsUint64 returns v as a uint64 if v is a non-negative Integer.
func AsUint64(v Value) (uint64, bool) {
	i, ok := v.(Integer)
	if !ok {
		return 0, false
	}
	return i.Uint64()
}

func AsReal(v Value) (float64, bool) {
	r, ok := v.(Real)
	return float64(r), ok
}

func AsString(v Value) (string, bool) {
	s, ok := v.(String)
	return string(s), ok
}

func AsDate(v Value) (Date, bool) {
	d, ok := v.(Date)
	return d, ok
}

func AsData(v Value) ([]byte, bool) {
	d, ok := v.(Data)
	return []byte(d), ok
}

func AsUID(v Value) (UID, bool) {
	u, ok := v.(UID)
	return u, ok
}

// ToArray takes ownership of v's elements. It fails with KindTypeMismatch
// when v is not an Array.
func ToArray(v Value) (Array, error) {
	if a, ok := v.(Array); ok {
		return a, nil
	}
	return nil, typeMismatch(PhaseValue, nil, "array", TypeName(v))
}

func ToDictionary(v Value) (*Dictionary, error) {
	if d, ok := AsDictionary(v); ok {
		return d, nil
	}
	return nil, typeMismatch(PhaseValue, nil, "dict", TypeName(v))
}

func ToString(v Value) (string, error) {
	if s, ok := v.(String); ok {
		return string(s), nil
	}
	return "", typeMismatch(PhaseValue, nil, "string", TypeName(v))
}

func ToData(v Value) ([]byte, error) {
	if d, ok := v.(Data); ok {
		return []byte(d), nil
	}
	return nil, typeMismatch(PhaseValue, nil, "data", TypeName(v))
}

func ToInteger(v Value) (Integer, error) {
	if i, ok := v.(Integer); ok {
		return i, nil
	}
	return Integer{}, typeMismatch(PhaseValue, nil, "integer", TypeName(v))
}
