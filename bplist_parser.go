package plist

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"unicode/utf16"

	"go.uber.org/zap"
)

const binaryFormatName = "binary"

const (
	objUnvisited uint8 = iota
	objInProgress
	objDone
)

// bplistFrame is a container whose children are still being resolved. For a
// dictionary, refs holds the key references followed by the value
// references.
type bplistFrame struct {
	index uint64
	refs  []uint64
	next  int
	array Array
	dict  *Dictionary
	keys  []string
	size  int
}

type bplistParser struct {
	buf      []byte
	trailer  bplistTrailer
	limit    uint64
	state    []uint8
	cache    []Value
	sizes    []int
	nodes    int
	maxNodes int
}

func newBplistParser(buf []byte, maxNodes int) *bplistParser {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	return &bplistParser{buf: buf, maxNodes: maxNodes}
}

func (p *bplistParser) parseDocument() (Value, error) {
	if len(p.buf) < bplistHeaderSize {
		return nil, p.outOfBounds(0, "document shorter than header")
	}
	if string(p.buf[:len(bplistMagic)]) != bplistMagic {
		return nil, newError(PhaseDecode, KindMalformedHeader, binaryFormatName, "bad magic %q", p.buf[:len(bplistMagic)])
	}
	if version := string(p.buf[len(bplistMagic):bplistHeaderSize]); version != bplistVersion {
		return nil, newError(PhaseDecode, KindMalformedHeader, binaryFormatName, "unsupported version %q", version)
	}
	if len(p.buf) < bplistHeaderSize+bplistTrailerSize {
		return nil, p.outOfBounds(uint64(len(p.buf)), "document shorter than header and trailer")
	}
	trailerOffset := uint64(len(p.buf) - bplistTrailerSize)
	if err := binary.Read(bytes.NewReader(p.buf[trailerOffset:]), binary.BigEndian, &p.trailer); err != nil {
		return nil, p.outOfBounds(trailerOffset, "unreadable trailer").wrap(err)
	}
	if err := p.validateTrailer(trailerOffset); err != nil {
		return nil, err
	}

	Logger().Debug("decoding binary plist",
		zap.Uint64("objects", p.trailer.NumObjects),
		zap.Uint8("ref_size", p.trailer.ObjectRefSize),
		zap.Uint8("offset_size", p.trailer.OffsetIntSize),
		zap.Uint64("top", p.trailer.TopObject))

	p.limit = p.trailer.OffsetTableOffset
	p.state = make([]uint8, p.trailer.NumObjects)
	p.cache = make([]Value, p.trailer.NumObjects)
	p.sizes = make([]int, p.trailer.NumObjects)
	return p.resolve(p.trailer.TopObject)
}

// validateTrailer checks the trailer against the buffer. The offset table
// must sit between the header and the trailer and end exactly where the
// trailer begins.
func (p *bplistParser) validateTrailer(trailerOffset uint64) error {
	t := &p.trailer
	if t.OffsetIntSize < 1 || t.OffsetIntSize > 8 {
		return p.outOfBounds(trailerOffset, "invalid offset size %d", t.OffsetIntSize)
	}
	if t.ObjectRefSize < 1 || t.ObjectRefSize > 8 {
		return p.outOfBounds(trailerOffset, "invalid object reference size %d", t.ObjectRefSize)
	}
	if t.NumObjects == 0 {
		return p.outOfBounds(trailerOffset, "no objects")
	}
	if t.TopObject >= t.NumObjects {
		return p.outOfBounds(trailerOffset, "top object %d out of range (%d objects)", t.TopObject, t.NumObjects)
	}
	if t.OffsetTableOffset < bplistHeaderSize || t.OffsetTableOffset > trailerOffset {
		return p.outOfBounds(trailerOffset, "offset table at 0x%x outside document", t.OffsetTableOffset)
	}
	span := trailerOffset - t.OffsetTableOffset
	size := uint64(t.OffsetIntSize)
	if span%size != 0 || span/size != t.NumObjects {
		return p.outOfBounds(t.OffsetTableOffset, "offset table of %d entries does not fit %d bytes", t.NumObjects, span)
	}
	return nil
}

func (p *bplistParser) outOfBounds(off uint64, detail string, args ...interface{}) *Error {
	return newError(PhaseDecode, KindOutOfBounds, binaryFormatName, detail, args...).at(off)
}

func (p *bplistParser) unsupported(off uint64, marker uint8) *Error {
	return newError(PhaseDecode, KindUnsupportedObject, binaryFormatName, "unknown object marker 0x%02x", marker).at(off)
}

// need verifies that n bytes starting at off lie before the offset table.
func (p *bplistParser) need(off, n uint64) error {
	if off > p.limit || n > p.limit-off {
		return p.outOfBounds(off, "%d bytes exceed object area", n)
	}
	return nil
}

func (p *bplistParser) offsetOf(index uint64) (uint64, error) {
	size := uint64(p.trailer.OffsetIntSize)
	entry := p.trailer.OffsetTableOffset + index*size
	off := readSizedInt(p.buf[entry : entry+size])
	if off < bplistHeaderSize || off >= p.limit {
		return 0, p.outOfBounds(entry, "object %d offset 0x%x outside object area", index, off)
	}
	return off, nil
}

// resolve materializes the object tree rooted at root. Containers are
// expanded with an explicit stack; each object is decoded at most once and
// later references receive a deep copy of the cached value.
func (p *bplistParser) resolve(root uint64) (Value, error) {
	v, frame, err := p.enter(root)
	if err != nil {
		return nil, err
	}
	if frame == nil {
		return v, nil
	}
	stack := []*bplistFrame{frame}
	for {
		top := stack[len(stack)-1]
		if top.next == len(top.refs) {
			value := top.value()
			if err := p.count(1); err != nil {
				return nil, err
			}
			p.state[top.index] = objDone
			p.cache[top.index] = value
			p.sizes[top.index] = top.size + 1
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return value, nil
			}
			if err := stack[len(stack)-1].attach(value, top.size+1); err != nil {
				return nil, err
			}
			continue
		}

		ref := top.refs[top.next]
		isKey := top.dict != nil && top.next < len(top.keys)
		switch p.state[ref] {
		case objInProgress:
			return nil, newError(PhaseDecode, KindCyclicReference, binaryFormatName, "object %d references itself", ref)
		case objDone:
			value, size := p.cache[ref], p.sizes[ref]
			if err := p.count(size); err != nil {
				return nil, err
			}
			switch value.(type) {
			case Array, *Dictionary, Data:
				value = Clone(value)
			}
			if err := top.attachRef(value, size, isKey); err != nil {
				return nil, err
			}
		default:
			value, child, err := p.enter(ref)
			if err != nil {
				return nil, err
			}
			if child != nil {
				if isKey {
					return nil, newError(PhaseDecode, KindTypeMismatch, binaryFormatName, "dictionary key %d is not a string", ref)
				}
				stack = append(stack, child)
				continue
			}
			if err := p.count(1); err != nil {
				return nil, err
			}
			if err := top.attachRef(value, 1, isKey); err != nil {
				return nil, err
			}
		}
	}
}

func (p *bplistParser) count(n int) error {
	p.nodes += n
	if p.nodes > p.maxNodes {
		return newError(PhaseDecode, KindLimitExceeded, binaryFormatName, "object graph expands beyond %d values", p.maxNodes)
	}
	return nil
}

// enter decodes the object at index. Leaves are returned directly and
// cached; containers come back as a frame marked in progress.
func (p *bplistParser) enter(index uint64) (Value, *bplistFrame, error) {
	v, frame, err := p.parseObject(index)
	if err != nil {
		return nil, nil, err
	}
	if frame != nil {
		p.state[index] = objInProgress
		return nil, frame, nil
	}
	p.state[index] = objDone
	p.cache[index] = v
	p.sizes[index] = 1
	return v, nil, nil
}

func (p *bplistParser) parseObject(index uint64) (Value, *bplistFrame, error) {
	off, err := p.offsetOf(index)
	if err != nil {
		return nil, nil, err
	}
	start := off
	marker := p.buf[off]
	off++
	info := marker & 0x0F

	switch marker & 0xF0 {
	case bpTagNull:
		switch marker {
		case bpTagBoolFalse:
			return Boolean(false), nil, nil
		case bpTagBoolTrue:
			return Boolean(true), nil, nil
		}
		return nil, nil, p.unsupported(start, marker)
	case bpTagInteger:
		if info > 4 {
			return nil, nil, p.unsupported(start, marker)
		}
		n := uint64(1) << info
		if err := p.need(off, n); err != nil {
			return nil, nil, err
		}
		i, err := p.parseInteger(p.buf[off:off+n], start)
		return i, nil, err
	case bpTagReal:
		switch info {
		case 2:
			if err := p.need(off, 4); err != nil {
				return nil, nil, err
			}
			bits := binary.BigEndian.Uint32(p.buf[off:])
			return Real(math.Float32frombits(bits)), nil, nil
		case 3:
			if err := p.need(off, 8); err != nil {
				return nil, nil, err
			}
			return Real(math.Float64frombits(binary.BigEndian.Uint64(p.buf[off:]))), nil, nil
		}
		return nil, nil, p.unsupported(start, marker)
	case bpTagDate:
		if info != 3 {
			return nil, nil, p.unsupported(start, marker)
		}
		if err := p.need(off, 8); err != nil {
			return nil, nil, err
		}
		return Date(math.Float64frombits(binary.BigEndian.Uint64(p.buf[off:]))), nil, nil
	case bpTagData:
		n, off, err := p.readLength(info, off)
		if err != nil {
			return nil, nil, err
		}
		if err := p.need(off, n); err != nil {
			return nil, nil, err
		}
		return append(Data{}, p.buf[off:off+n]...), nil, nil
	case bpTagASCIIString:
		n, off, err := p.readLength(info, off)
		if err != nil {
			return nil, nil, err
		}
		if err := p.need(off, n); err != nil {
			return nil, nil, err
		}
		return String(latin1String(p.buf[off : off+n])), nil, nil
	case bpTagUTF16String:
		n, off, err := p.readLength(info, off)
		if err != nil {
			return nil, nil, err
		}
		if n > math.MaxUint64/2 {
			return nil, nil, p.outOfBounds(off, "string of %d code units", n)
		}
		if err := p.need(off, 2*n); err != nil {
			return nil, nil, err
		}
		units := make([]uint16, n)
		for i := range units {
			units[i] = binary.BigEndian.Uint16(p.buf[off+2*uint64(i):])
		}
		return String(utf16.Decode(units)), nil, nil
	case bpTagUTF8String, bpTagSet:
		// No Value variant holds either.
		return nil, nil, p.unsupported(start, marker)
	case bpTagUID:
		n := uint64(info) + 1
		if n > 8 {
			return nil, nil, p.unsupported(start, marker)
		}
		if err := p.need(off, n); err != nil {
			return nil, nil, err
		}
		return UID(readSizedInt(p.buf[off : off+n])), nil, nil
	case bpTagArray:
		n, off, err := p.readLength(info, off)
		if err != nil {
			return nil, nil, err
		}
		refs, err := p.readRefs(off, n, 1)
		if err != nil {
			return nil, nil, err
		}
		return nil, &bplistFrame{index: index, refs: refs, array: make(Array, 0, len(refs))}, nil
	case bpTagDictionary:
		n, off, err := p.readLength(info, off)
		if err != nil {
			return nil, nil, err
		}
		refs, err := p.readRefs(off, n, 2)
		if err != nil {
			return nil, nil, err
		}
		return nil, &bplistFrame{
			index: index,
			refs:  refs,
			dict:  NewDictionary(int(n)),
			keys:  make([]string, n),
		}, nil
	}
	return nil, nil, p.unsupported(start, marker)
}

// parseInteger handles 1, 2 and 4 byte unsigned, 8 byte signed and 16 byte
// integers. Narrow widths are not sign-extended; CoreFoundation writes
// negative values as 8 bytes. A 16 byte integer must lie in
// [MinInt64, MaxUint64].
func (p *bplistParser) parseInteger(b []byte, off uint64) (Integer, error) {
	if len(b) <= 8 {
		return NewInteger(int64(readSizedInt(b))), nil
	}
	hi, lo := readSizedInt(b[:8]), readSizedInt(b[8:])
	switch {
	case hi == 0:
		return integerFromUint64(lo), nil
	case hi == math.MaxUint64 && lo > math.MaxInt64:
		return NewInteger(int64(lo)), nil
	}
	return Integer{}, newError(PhaseDecode, KindNumericRange, binaryFormatName, "128-bit integer outside 64-bit range").at(off)
}

// readLength returns the count carried by the marker nibble, or the integer
// object that follows it when the nibble is 0xF.
func (p *bplistParser) readLength(info uint8, off uint64) (uint64, uint64, error) {
	if info != bpLengthFollows {
		return uint64(info), off, nil
	}
	if err := p.need(off, 1); err != nil {
		return 0, 0, err
	}
	marker := p.buf[off]
	if marker&0xF0 != bpTagInteger || marker&0x0F > 3 {
		return 0, 0, newError(PhaseDecode, KindUnsupportedObject, binaryFormatName, "invalid length marker 0x%02x", marker).at(off)
	}
	n := uint64(1) << (marker & 0x0F)
	if err := p.need(off+1, n); err != nil {
		return 0, 0, err
	}
	return readSizedInt(p.buf[off+1 : off+1+n]), off + 1 + n, nil
}

// readRefs reads mult*n object references starting at off.
func (p *bplistParser) readRefs(off, n uint64, mult uint64) ([]uint64, error) {
	size := uint64(p.trailer.ObjectRefSize)
	if off > p.limit || n > (p.limit-off)/(size*mult) {
		return nil, p.outOfBounds(off, "%d references exceed object area", n*mult)
	}
	refs := make([]uint64, n*mult)
	for i := range refs {
		pos := off + uint64(i)*size
		ref := readSizedInt(p.buf[pos : pos+size])
		if ref >= p.trailer.NumObjects {
			return nil, p.outOfBounds(pos, "object reference %d out of range (%d objects)", ref, p.trailer.NumObjects)
		}
		refs[i] = ref
	}
	return refs, nil
}

func (f *bplistFrame) value() Value {
	if f.dict != nil {
		return f.dict
	}
	return f.array
}

func (f *bplistFrame) attachRef(v Value, size int, isKey bool) error {
	if isKey {
		s, ok := v.(String)
		if !ok {
			return newError(PhaseDecode, KindTypeMismatch, binaryFormatName, "dictionary key is %s, not string", TypeName(v))
		}
		f.keys[f.next] = string(s)
		f.next++
		return nil
	}
	return f.attach(v, size)
}

func (f *bplistFrame) attach(v Value, size int) error {
	f.size += size
	if f.dict != nil {
		key := f.keys[f.next-len(f.keys)]
		if err := f.dict.Insert(key, v); err != nil {
			return newError(PhaseDecode, KindDuplicateKey, binaryFormatName, "duplicate key %q", key)
		}
	} else {
		f.array = append(f.array, v)
	}
	f.next++
	return nil
}

func latin1String(b []byte) string {
	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}
	var s strings.Builder
	s.Grow(len(b) * 2)
	for _, c := range b {
		s.WriteRune(rune(c))
	}
	return s.String()
}
