package plist

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func dict(kv ...interface{}) *Dictionary {
	d := NewDictionary(len(kv) / 2)
	for i := 0; i < len(kv); i += 2 {
		d.Set(kv[i].(string), kv[i+1].(Value))
	}
	return d
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Value
		equal bool
	}{
		{"signed and unsigned magnitude", NewInteger(7), NewUnsignedInteger(7), true},
		{"negative vs large unsigned", NewInteger(-1), NewUnsignedInteger(math.MaxUint64), false},
		{"real vs integer", Real(1), NewInteger(1), false},
		{"nan", Real(math.NaN()), Real(math.NaN()), true},
		{"dict order ignored", dict("a", String("x"), "b", Boolean(true)), dict("b", Boolean(true), "a", String("x")), true},
		{"dict value differs", dict("a", String("x")), dict("a", String("y")), false},
		{"dict key differs", dict("a", String("x")), dict("b", String("x")), false},
		{"array order matters", Array{NewInteger(1), NewInteger(2)}, Array{NewInteger(2), NewInteger(1)}, false},
		{"data", Data{1, 2}, Data{1, 2}, true},
		{"uid vs integer", UID(3), NewInteger(3), false},
		{"nil", nil, nil, true},
		{"nil vs value", nil, String(""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.equal {
				t.Fatalf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.equal)
			}
		})
	}
}

func TestEqualDeepTree(t *testing.T) {
	var a, b Value = String("leaf"), String("leaf")
	for i := 0; i < 100000; i++ {
		a = Array{a}
		b = Array{b}
	}
	if !Equal(a, b) {
		t.Fatalf("expected deep trees to be equal")
	}
	c := Clone(a)
	if !Equal(a, c) {
		t.Fatalf("expected clone of deep tree to be equal")
	}
}

func TestDictionaryOperations(t *testing.T) {
	d := NewDictionary(0)
	if err := d.Insert("hp", NewInteger(10)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := d.Insert("mp", NewInteger(5)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := d.Insert("hp", NewInteger(11))
	if !IsKind(err, KindDuplicateKey) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}

	d.Set("hp", NewInteger(12))
	d.Set("xp", NewInteger(0))
	if diff := cmp.Diff([]string{"hp", "mp", "xp"}, d.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if v, ok := d.Get("hp"); !ok || !Equal(v, NewInteger(12)) {
		t.Fatalf("unexpected hp: %v %v", v, ok)
	}

	if !d.Remove("mp") {
		t.Fatalf("expected mp removed")
	}
	if d.Remove("mp") {
		t.Fatalf("expected second remove to fail")
	}
	if diff := cmp.Diff([]string{"hp", "xp"}, d.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if v, ok := d.Get("xp"); !ok || !Equal(v, NewInteger(0)) {
		t.Fatalf("index not rebuilt after remove: %v %v", v, ok)
	}

	var seen []string
	d.Range(func(k string, _ Value) bool {
		seen = append(seen, k)
		return false
	})
	if diff := cmp.Diff([]string{"hp"}, seen); diff != "" {
		t.Fatalf("range did not stop (-want +got):\n%s", diff)
	}
}

func TestZeroDictionary(t *testing.T) {
	var d Dictionary
	if _, ok := d.Get("missing"); ok {
		t.Fatalf("expected empty lookup")
	}
	d.Set("a", String("b"))
	if d.Len() != 1 {
		t.Fatalf("unexpected length: %d", d.Len())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := dict(
		"items", Array{String("potion"), Data{0xde, 0xad}},
		"stats", dict("str", NewInteger(4)),
	)
	c := Clone(orig).(*Dictionary)
	if !Equal(orig, c) {
		t.Fatalf("clone differs")
	}

	items, _ := c.Get("items")
	items.(Array)[1].(Data)[0] = 0
	stats, _ := c.Get("stats")
	stats.(*Dictionary).Set("str", NewInteger(99))

	origItems, _ := orig.Get("items")
	if origItems.(Array)[1].(Data)[0] != 0xde {
		t.Fatalf("data shared between clone and original")
	}
	origStats, _ := orig.Get("stats")
	if v, _ := origStats.(*Dictionary).Get("str"); !Equal(v, NewInteger(4)) {
		t.Fatalf("dictionary shared between clone and original")
	}
}

func TestIntegerNarrowing(t *testing.T) {
	big := NewUnsignedInteger(1 << 63)
	if _, ok := big.Int64(); ok {
		t.Fatalf("2^63 must not fit int64")
	}
	if u, ok := big.Uint64(); !ok || u != 1<<63 {
		t.Fatalf("unexpected uint64: %d %v", u, ok)
	}
	neg := NewInteger(-5)
	if _, ok := neg.Uint64(); ok {
		t.Fatalf("-5 must not fit uint64")
	}
	if big.String() != "9223372036854775808" || neg.String() != "-5" {
		t.Fatalf("unexpected strings: %s %s", big, neg)
	}
}

func TestAccessors(t *testing.T) {
	if _, ok := AsString(NewInteger(1)); ok {
		t.Fatalf("integer is not a string")
	}
	if s, ok := AsString(String("x")); !ok || s != "x" {
		t.Fatalf("unexpected string: %q %v", s, ok)
	}
	if _, ok := AsDictionary((*Dictionary)(nil)); ok {
		t.Fatalf("nil dictionary pointer must not narrow")
	}
	_, err := ToArray(String("x"))
	var perr *Error
	if !IsKind(err, KindTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	if ok := asError(err, &perr); !ok || perr.Phase != PhaseValue {
		t.Fatalf("unexpected error: %#v", err)
	}
	if got := TypeName(dict()); got != "dict" {
		t.Fatalf("unexpected type name: %s", got)
	}
}

func TestDateConversion(t *testing.T) {
	tm := time.Date(2021, 6, 1, 12, 30, 15, 500000000, time.UTC)
	d := DateFromTime(tm)
	if !d.Time().Equal(tm) {
		t.Fatalf("round trip: got %v want %v", d.Time(), tm)
	}
	if DateFromTime(time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)) != 0 {
		t.Fatalf("epoch must be zero")
	}
	if Date(math.Inf(1)).Valid() {
		t.Fatalf("infinite date must be invalid")
	}
}
