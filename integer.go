package plist

import (
	"math"
	"strconv"
)

// Integer holds any value in the union of the int64 and uint64 ranges.
// When signed is set, value is the two's-complement bit pattern of an int64.
type Integer struct {
	signed bool
	value  uint64
}

func NewInteger(i int64) Integer {
	return Integer{signed: true, value: uint64(i)}
}

func NewUnsignedInteger(u uint64) Integer {
	return Integer{value: u}
}

// integerFromUint64 prefers the signed representation when u fits in it, so
// that decoders produce one canonical form.
func integerFromUint64(u uint64) Integer {
	if u <= math.MaxInt64 {
		return NewInteger(int64(u))
	}
	return NewUnsignedInteger(u)
}

// Signed reports whether i was built from a signed value.
func (i Integer) Signed() bool {
	return i.signed
}

// Negative reports whether i is below zero.
func (i Integer) Negative() bool {
	return i.signed && int64(i.value) < 0
}

func (i Integer) Int64() (int64, bool) {
	if i.signed || i.value <= math.MaxInt64 {
		return int64(i.value), true
	}
	return 0, false
}

func (i Integer) Uint64() (uint64, bool) {
	if i.Negative() {
		return 0, false
	}
	return i.value, true
}

// Equal compares numeric values, regardless of signedness.
func (i Integer) Equal(o Integer) bool {
	return i.Negative() == o.Negative() && i.value == o.value
}

func (i Integer) String() string {
	if i.signed {
		return strconv.FormatInt(int64(i.value), 10)
	}
	return strconv.FormatUint(i.value, 10)
}
