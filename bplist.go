package plist

const (
	bplistMagic   = "bplist"
	bplistVersion = "00"

	bplistHeaderSize  = 8
	bplistTrailerSize = 32
)

type bplistTrailer struct {
	Unused            [5]uint8
	SortVersion       uint8
	OffsetIntSize     uint8
	ObjectRefSize     uint8
	NumObjects        uint64
	TopObject         uint64
	OffsetTableOffset uint64
}

const (
	bpTagNull        uint8 = 0x00
	bpTagBoolFalse   uint8 = 0x08
	bpTagBoolTrue    uint8 = 0x09
	bpTagInteger     uint8 = 0x10
	bpTagReal        uint8 = 0x20
	bpTagDate        uint8 = 0x30
	bpTagData        uint8 = 0x40
	bpTagASCIIString uint8 = 0x50
	bpTagUTF16String uint8 = 0x60
	bpTagUTF8String  uint8 = 0x70
	bpTagUID         uint8 = 0x80
	bpTagArray       uint8 = 0xA0
	bpTagSet         uint8 = 0xC0
	bpTagDictionary  uint8 = 0xD0

	// A low nibble of 0xF means the length follows as an integer object.
	bpLengthFollows uint8 = 0x0F
)

// minimumSizeForInt returns the smallest of 1, 2, 4 or 8 bytes that holds n.
func minimumSizeForInt(n uint64) int {
	switch {
	case n <= 0xff:
		return 1
	case n <= 0xffff:
		return 2
	case n <= 0xffffffff:
		return 4
	default:
		return 8
	}
}

// readSizedInt decodes a big-endian unsigned integer of 1 to 8 bytes.
func readSizedInt(b []byte) uint64 {
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n
}

// putSizedInt appends n as a big-endian unsigned integer of size bytes.
func putSizedInt(dst []byte, n uint64, size int) []byte {
	for i := size - 1; i >= 0; i-- {
		dst = append(dst, byte(n>>(uint(i)*8)))
	}
	return dst
}
