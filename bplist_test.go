package plist

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// buildBplist assembles a document from encoded objects using one-byte
// offsets and references.
func buildBplist(top uint64, objects ...[]byte) []byte {
	buf := []byte("bplist00")
	var offsets []byte
	for _, obj := range objects {
		offsets = append(offsets, byte(len(buf)))
		buf = append(buf, obj...)
	}
	table := uint64(len(buf))
	buf = append(buf, offsets...)
	buf = append(buf, 0, 0, 0, 0, 0, 0, 1, 1)
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(objects)))
	buf = binary.BigEndian.AppendUint64(buf, top)
	return binary.BigEndian.AppendUint64(buf, table)
}

func encodeBinary(t *testing.T, v Value) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := NewEncoderForFormat(buf, BinaryFormat).EncodeValue(v); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func decodeBinary(buf []byte) (Value, error) {
	return newBplistParser(buf, 0).parseDocument()
}

func readTrailer(t *testing.T, buf []byte) bplistTrailer {
	t.Helper()
	var tr bplistTrailer
	if err := binary.Read(bytes.NewReader(buf[len(buf)-bplistTrailerSize:]), binary.BigEndian, &tr); err != nil {
		t.Fatalf("read trailer: %v", err)
	}
	return tr
}

func TestBinaryExactEncoding(t *testing.T) {
	got := encodeBinary(t, Array{NewInteger(1)})
	want := []byte("bplist00")
	want = append(want,
		0x10, 0x01, // object 0: integer 1
		0xA1, 0x00, // object 1: array [0]
		0x08, 0x0A, // offset table
		0, 0, 0, 0, 0, 0, 1, 1,
	)
	want = binary.BigEndian.AppendUint64(want, 2)
	want = binary.BigEndian.AppendUint64(want, 1)
	want = binary.BigEndian.AppendUint64(want, 12)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("encoding mismatch (-want +got):\n%s", diff)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	when := DateFromTime(time.Date(2020, 2, 29, 8, 0, 0, 250000000, time.UTC))
	tree := dict(
		"name", String("Sword of Dawn"),
		"unicode", String("héllo ✓ 日本"),
		"level", NewInteger(42),
		"negative", NewInteger(-1),
		"min", NewInteger(math.MinInt64),
		"max_int", NewInteger(math.MaxInt64),
		"two63", NewUnsignedInteger(1<<63),
		"max_uint", NewUnsignedInteger(math.MaxUint64),
		"weight", Real(2.5),
		"found", when,
		"blob", Data(bytes.Repeat([]byte{0xab}, 40)),
		"ref", UID(300),
		"equipped", Boolean(true),
		"cursed", Boolean(false),
		"empty_array", Array{},
		"empty_dict", NewDictionary(0),
		"long", String(strings.Repeat("x", 1000)),
		"nested", Array{dict("a", Array{Array{NewInteger(7)}})},
	)
	var many Array
	for i := 0; i < 300; i++ {
		many = append(many, NewInteger(int64(i)))
	}
	tree.Set("many", many)

	buf := encodeBinary(t, tree)
	got, err := decodeBinary(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(Value(tree), got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	d := got.(*Dictionary)
	if diff := cmp.Diff(tree.Keys(), d.Keys()); diff != "" {
		t.Fatalf("key order lost (-want +got):\n%s", diff)
	}
	if v, _ := d.Get("max_uint"); !v.(Integer).Equal(NewUnsignedInteger(math.MaxUint64)) {
		t.Fatalf("unexpected max_uint: %v", v)
	}
}

func TestBinaryIntegerEncodings(t *testing.T) {
	tests := []struct {
		value Integer
		want  []byte
	}{
		{NewInteger(0), []byte{0x10, 0x00}},
		{NewInteger(255), []byte{0x10, 0xff}},
		{NewInteger(256), []byte{0x11, 0x01, 0x00}},
		{NewInteger(1 << 32), []byte{0x13, 0, 0, 0, 1, 0, 0, 0, 0}},
		{NewInteger(-1), []byte{0x13, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{NewUnsignedInteger(1 << 63), []byte{0x14, 0, 0, 0, 0, 0, 0, 0, 0, 0x80, 0, 0, 0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.value.String(), func(t *testing.T) {
			got, err := encodeBplistLeaf(tt.value)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("encoding mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBinaryIntegerDecoding(t *testing.T) {
	tests := []struct {
		name string
		obj  []byte
		want Integer
		kind Kind
	}{
		{"one byte unsigned", []byte{0x10, 0xff}, NewInteger(255), ""},
		{"four bytes unsigned", []byte{0x12, 0xff, 0xff, 0xff, 0xff}, NewInteger(math.MaxUint32), ""},
		{"eight bytes signed", []byte{0x13, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe}, NewInteger(-2), ""},
		{"sixteen bytes negative", append([]byte{0x14}, bytes.Repeat([]byte{0xff}, 16)...), NewInteger(-1), ""},
		{"sixteen bytes too large", append([]byte{0x14, 0, 0, 0, 0, 0, 0, 0, 1}, make([]byte, 8)...), Integer{}, KindNumericRange},
		{"thirty-two bytes", append([]byte{0x15}, make([]byte, 32)...), Integer{}, KindUnsupportedObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBinary(buildBplist(0, tt.obj))
			if tt.kind != "" {
				if !IsKind(err, tt.kind) {
					t.Fatalf("expected %s, got %v", tt.kind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !Equal(got, tt.want) {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}

func TestBinaryMinimalWidths(t *testing.T) {
	small := readTrailer(t, encodeBinary(t, dict("a", String("b"))))
	if small.ObjectRefSize != 1 || small.OffsetIntSize != 1 {
		t.Fatalf("expected one-byte widths, got ref %d offset %d", small.ObjectRefSize, small.OffsetIntSize)
	}
	if small.TopObject != small.NumObjects-1 {
		t.Fatalf("root must be the last object, got %d of %d", small.TopObject, small.NumObjects)
	}

	var many Array
	for i := 0; i < 300; i++ {
		many = append(many, String(strings.Repeat("s", i)))
	}
	large := readTrailer(t, encodeBinary(t, many))
	if large.NumObjects != 301 {
		t.Fatalf("unexpected object count %d", large.NumObjects)
	}
	if large.ObjectRefSize != 2 || large.OffsetIntSize != 2 {
		t.Fatalf("expected ref 2 offset 2, got ref %d offset %d", large.ObjectRefSize, large.OffsetIntSize)
	}
}

func TestBinaryDeduplication(t *testing.T) {
	var items Array
	for i := 0; i < 1000; i++ {
		items = append(items, String("same"))
	}
	buf := encodeBinary(t, items)
	if tr := readTrailer(t, buf); tr.NumObjects != 2 {
		t.Fatalf("expected 2 objects, got %d", tr.NumObjects)
	}

	// Equal containers share a slot too, keys and values alike.
	shared := Array{dict("k", String("k")), dict("k", String("k"))}
	if tr := readTrailer(t, encodeBinary(t, shared)); tr.NumObjects != 3 {
		t.Fatalf("expected 3 objects, got %d", tr.NumObjects)
	}

	got, err := decodeBinary(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !Equal(got, items) {
		t.Fatalf("deduplicated document decodes differently")
	}
}

func TestBinarySharedObjectsAreCopied(t *testing.T) {
	buf := buildBplist(0,
		[]byte{0xA2, 1, 1}, // [1, 1]
		[]byte{0xA1, 2},    // [2]
		[]byte{0x51, 'x'},  // "x"
	)
	got, err := decodeBinary(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	root := got.(Array)
	root[0].(Array)[0] = String("changed")
	if !Equal(root[1], Array{String("x")}) {
		t.Fatalf("shared subtree was aliased: %v", root[1])
	}
}

func TestBinaryCycles(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"self", buildBplist(0, []byte{0xA1, 0})},
		{"indirect", buildBplist(0, []byte{0xA1, 1}, []byte{0xA1, 0})},
		{"through dictionary", buildBplist(0, []byte{0xD1, 1, 2}, []byte{0x51, 'k'}, []byte{0xA1, 0})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeBinary(tt.buf)
			if !IsKind(err, KindCyclicReference) {
				t.Fatalf("expected cyclic reference, got %v", err)
			}
		})
	}
}

func TestBinaryMalformed(t *testing.T) {
	badVersion := buildBplist(0, []byte{0x09})
	copy(badVersion[6:8], "01")

	tests := []struct {
		name string
		buf  []byte
		kind Kind
	}{
		{"short", []byte("bplist0"), KindOutOfBounds},
		{"bad version", badVersion, KindMalformedHeader},
		{"null", buildBplist(0, []byte{0x00}), KindUnsupportedObject},
		{"utf8 string", buildBplist(0, []byte{0x71, 'a'}), KindUnsupportedObject},
		{"set", buildBplist(0, []byte{0xC0}), KindUnsupportedObject},
		{"unknown marker", buildBplist(0, []byte{0xF0}), KindUnsupportedObject},
		{"duplicate key", buildBplist(0, []byte{0xD2, 1, 1, 2, 2}, []byte{0x51, 'a'}, []byte{0x09}), KindDuplicateKey},
		{"non-string key", buildBplist(0, []byte{0xD1, 1, 1}, []byte{0x10, 0x01}), KindTypeMismatch},
		{"container key", buildBplist(0, []byte{0xD1, 1, 1}, []byte{0xA0}), KindTypeMismatch},
		{"ref out of range", buildBplist(0, []byte{0xA1, 9}), KindOutOfBounds},
		{"string past objects", buildBplist(0, []byte{0x5f, 0x10, 0x40, 'a'}), KindOutOfBounds},
		{"bad length marker", buildBplist(0, []byte{0x5f, 0x20, 0x01}), KindUnsupportedObject},
		{"top out of range", buildBplist(3, []byte{0x09}), KindOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeBinary(tt.buf)
			if !IsKind(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
			var perr *Error
			if errors.As(err, &perr) && perr.Phase != PhaseDecode {
				t.Fatalf("unexpected phase %s", perr.Phase)
			}
		})
	}
}

func TestBinaryTruncation(t *testing.T) {
	buf := encodeBinary(t, dict("name", String("Sword"), "stats", Array{NewInteger(1), Real(0.5)}))
	for n := 0; n < len(buf); n++ {
		if _, err := decodeBinary(buf[:n]); !IsKind(err, KindOutOfBounds) {
			t.Fatalf("prefix of %d bytes: expected out of bounds, got %v", n, err)
		}

		// Naming the format skips sniffing, so even prefixes shorter than
		// the magic reach the binary parser.
		dec := NewDecoder(bytes.NewReader(buf[:n]))
		dec.SetOptions(DecodeOptions{Format: BinaryFormat})
		if _, err := dec.DecodeValue(); !IsKind(err, KindOutOfBounds) {
			t.Fatalf("decoder, prefix of %d bytes: expected out of bounds, got %v", n, err)
		}
	}
}

func TestBinarySharingBomb(t *testing.T) {
	objects := [][]byte{{0x10, 0x01}}
	for i := 1; i <= 64; i++ {
		objects = append(objects, []byte{0xA2, byte(i - 1), byte(i - 1)})
	}
	buf := buildBplist(64, objects...)
	_, err := newBplistParser(buf, 10000).parseDocument()
	if !IsKind(err, KindLimitExceeded) {
		t.Fatalf("expected limit exceeded, got %v", err)
	}

	// The same shape at a shallow depth stays within the budget.
	small := buildBplist(3, objects[:4]...)
	got, err := newBplistParser(small, 10000).parseDocument()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	leaf := Array{NewInteger(1), NewInteger(1)}
	mid := Array{leaf, leaf}
	if !Equal(got, Array{mid, mid}) {
		t.Fatalf("unexpected tree: %s", Describe(got))
	}
}

func TestBinaryNilCannotBeEncoded(t *testing.T) {
	err := NewEncoderForFormat(&bytes.Buffer{}, BinaryFormat).EncodeValue(Array{String("a"), nil})
	if !IsKind(err, KindUnrepresentable) {
		t.Fatalf("expected unrepresentable, got %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestBinaryWriteFailure(t *testing.T) {
	err := NewEncoderForFormat(failingWriter{}, BinaryFormat).EncodeValue(String("x"))
	if !IsKind(err, KindIO) {
		t.Fatalf("expected io failure, got %v", err)
	}
}
