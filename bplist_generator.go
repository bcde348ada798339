package plist

import (
	"encoding/binary"
	"io"
	"math"
	"unicode/utf16"

	"go.uber.org/zap"
)

// bplistObject is one slot of the object table. Leaves are encoded up front;
// containers keep their child indices until the reference width is known.
type bplistObject struct {
	leaf []byte
	tag  uint8
	refs []uint64
}

// bplistGenFrame is a container whose children are still being flattened.
type bplistGenFrame struct {
	tag   uint8
	items []Value
	refs  []uint64
}

type bplistGenerator struct {
	writer  io.Writer
	objects []bplistObject
	unique  map[string]uint64
	reused  int
}

func newBplistGenerator(w io.Writer) *bplistGenerator {
	return &bplistGenerator{writer: w}
}

func (g *bplistGenerator) generateDocument(root Value) error {
	g.objects = g.objects[:0]
	g.unique = make(map[string]uint64)
	g.reused = 0

	top, err := g.flatten(root)
	if err != nil {
		return err
	}
	buf := g.serialize(top)
	if _, err := g.writer.Write(buf); err != nil {
		return ioError(PhaseEncode, binaryFormatName, err)
	}
	return nil
}

// flatten assigns object indices in post-order (children before their
// container), so the root always receives the last index. Equal leaves and
// containers with equal contents share one slot.
func (g *bplistGenerator) flatten(root Value) (uint64, error) {
	frame, err := newBplistGenFrame(root)
	if err != nil {
		return 0, err
	}
	if frame == nil {
		return g.addLeaf(root)
	}
	stack := []*bplistGenFrame{frame}
	for {
		top := stack[len(stack)-1]
		if len(top.refs) == len(top.items) {
			index := g.addContainer(top)
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return index, nil
			}
			parent := stack[len(stack)-1]
			parent.refs = append(parent.refs, index)
			continue
		}
		child := top.items[len(top.refs)]
		frame, err := newBplistGenFrame(child)
		if err != nil {
			return 0, err
		}
		if frame != nil {
			stack = append(stack, frame)
			continue
		}
		index, err := g.addLeaf(child)
		if err != nil {
			return 0, err
		}
		top.refs = append(top.refs, index)
	}
}

func newBplistGenFrame(v Value) (*bplistGenFrame, error) {
	switch v := v.(type) {
	case nil:
		return nil, newError(PhaseEncode, KindUnrepresentable, binaryFormatName, "nil value")
	case Array:
		return &bplistGenFrame{tag: bpTagArray, items: v, refs: make([]uint64, 0, len(v))}, nil
	case *Dictionary:
		n := v.Len()
		items := make([]Value, 0, 2*n)
		for i := 0; i < n; i++ {
			items = append(items, String(v.keys[i]))
		}
		for i := 0; i < n; i++ {
			items = append(items, v.values[i])
		}
		return &bplistGenFrame{tag: bpTagDictionary, items: items, refs: make([]uint64, 0, 2*n)}, nil
	}
	return nil, nil
}

func (g *bplistGenerator) intern(key string, obj bplistObject) uint64 {
	if index, ok := g.unique[key]; ok {
		g.reused++
		return index
	}
	index := uint64(len(g.objects))
	g.objects = append(g.objects, obj)
	g.unique[key] = index
	return index
}

func (g *bplistGenerator) addContainer(f *bplistGenFrame) uint64 {
	key := make([]byte, 0, 1+8*len(f.refs))
	key = append(key, f.tag)
	for _, ref := range f.refs {
		key = putSizedInt(key, ref, 8)
	}
	return g.intern(string(key), bplistObject{tag: f.tag, refs: f.refs})
}

func (g *bplistGenerator) addLeaf(v Value) (uint64, error) {
	enc, err := encodeBplistLeaf(v)
	if err != nil {
		return 0, err
	}
	return g.intern(string(enc), bplistObject{leaf: enc}), nil
}

func encodeBplistLeaf(v Value) ([]byte, error) {
	switch v := v.(type) {
	case Boolean:
		if v {
			return []byte{bpTagBoolTrue}, nil
		}
		return []byte{bpTagBoolFalse}, nil
	case Integer:
		return appendBplistInteger(nil, v), nil
	case Real:
		buf := []byte{bpTagReal | 0x3}
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(float64(v))), nil
	case Date:
		buf := []byte{bpTagDate | 0x3}
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(float64(v))), nil
	case Data:
		buf := appendBplistHeader(nil, bpTagData, uint64(len(v)))
		return append(buf, v...), nil
	case String:
		return appendBplistString(nil, string(v)), nil
	case UID:
		size := minimumSizeForInt(uint64(v))
		buf := []byte{bpTagUID | uint8(size-1)}
		return putSizedInt(buf, uint64(v), size), nil
	}
	return nil, newError(PhaseEncode, KindUnrepresentable, binaryFormatName, "cannot encode %T", v)
}

// appendBplistInteger writes non-negative values in the smallest of 1, 2, 4
// or 8 bytes, negative values in 8 bytes and values above MaxInt64 as a
// 16 byte integer.
func appendBplistInteger(dst []byte, i Integer) []byte {
	if i.Negative() {
		dst = append(dst, bpTagInteger|0x3)
		return putSizedInt(dst, i.value, 8)
	}
	if i.value > math.MaxInt64 {
		dst = append(dst, bpTagInteger|0x4)
		dst = putSizedInt(dst, 0, 8)
		return putSizedInt(dst, i.value, 8)
	}
	return appendBplistUint(dst, i.value)
}

func appendBplistUint(dst []byte, n uint64) []byte {
	size := minimumSizeForInt(n)
	var nibble uint8
	switch size {
	case 2:
		nibble = 1
	case 4:
		nibble = 2
	case 8:
		nibble = 3
	}
	dst = append(dst, bpTagInteger|nibble)
	return putSizedInt(dst, n, size)
}

func appendBplistHeader(dst []byte, tag uint8, n uint64) []byte {
	if n < uint64(bpLengthFollows) {
		return append(dst, tag|uint8(n))
	}
	dst = append(dst, tag|bpLengthFollows)
	return appendBplistUint(dst, n)
}

func appendBplistString(dst []byte, s string) []byte {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		dst = appendBplistHeader(dst, bpTagASCIIString, uint64(len(s)))
		return append(dst, s...)
	}
	units := utf16.Encode([]rune(s))
	dst = appendBplistHeader(dst, bpTagUTF16String, uint64(len(units)))
	for _, u := range units {
		dst = binary.BigEndian.AppendUint16(dst, u)
	}
	return dst
}

// serialize lays the object table out with the narrowest reference and
// offset widths. The reference width depends only on the object count and
// object offsets do not depend on the offset width, so one pass suffices
// once flatten has fixed the table.
func (g *bplistGenerator) serialize(top uint64) []byte {
	count := uint64(len(g.objects))
	refSize := minimumSizeForInt(count - 1)

	buf := make([]byte, 0, 64+16*len(g.objects))
	buf = append(buf, bplistMagic...)
	buf = append(buf, bplistVersion...)

	offsets := make([]uint64, count)
	for i, obj := range g.objects {
		offsets[i] = uint64(len(buf))
		if obj.leaf != nil {
			buf = append(buf, obj.leaf...)
			continue
		}
		n := uint64(len(obj.refs))
		if obj.tag == bpTagDictionary {
			n /= 2
		}
		buf = appendBplistHeader(buf, obj.tag, n)
		for _, ref := range obj.refs {
			buf = putSizedInt(buf, ref, refSize)
		}
	}

	tableOffset := uint64(len(buf))
	offsetSize := minimumSizeForInt(offsets[count-1])
	for _, off := range offsets {
		buf = putSizedInt(buf, off, offsetSize)
	}

	Logger().Debug("encoded binary plist",
		zap.Uint64("objects", count),
		zap.Int("reused", g.reused),
		zap.Int("ref_size", refSize),
		zap.Int("offset_size", offsetSize))

	trailer := bplistTrailer{
		OffsetIntSize:     uint8(offsetSize),
		ObjectRefSize:     uint8(refSize),
		NumObjects:        count,
		TopObject:         top,
		OffsetTableOffset: tableOffset,
	}
	buf = append(buf, trailer.Unused[:]...)
	buf = append(buf, trailer.SortVersion, trailer.OffsetIntSize, trailer.ObjectRefSize)
	buf = binary.BigEndian.AppendUint64(buf, trailer.NumObjects)
	buf = binary.BigEndian.AppendUint64(buf, trailer.TopObject)
	return binary.BigEndian.AppendUint64(buf, trailer.OffsetTableOffset)
}
