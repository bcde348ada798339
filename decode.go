package plist

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

var (
	utf8BOM   = []byte{0xEF, 0xBB, 0xBF}
	gzipMagic = []byte{0x1f, 0x8b}
)

// A Decoder reads a property list from an input stream. The whole input is
// read before parsing because the binary format needs random access.
type Decoder struct {
	reader  io.Reader
	options DecodeOptions

	// Format is the format of the last decoded document.
	Format Format
}

// NewDecoder returns a Decoder that reads from r with default limits.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: r, options: DecodeOptions{}.withDefaults()}
}

// SetOptions replaces the decoder's limits.
func (d *Decoder) SetOptions(opts DecodeOptions) {
	d.options = opts.withDefaults()
}

// Decode reads a document and stores it in the value pointed to by v.
func (d *Decoder) Decode(v interface{}) error {
	pval, err := d.DecodeValue()
	if err != nil {
		return err
	}
	return UnmarshalValue(pval, v)
}

// DecodeValue reads a document and returns its tree.
func (d *Decoder) DecodeValue() (Value, error) {
	data, err := readAllLimited(d.reader, d.options.MaxInputSize)
	if err != nil {
		return nil, err
	}
	v, format, err := parseBytes(data, d.options)
	d.Format = format
	return v, err
}

// Parse decodes a document of either format.
func Parse(data []byte) (Value, Format, error) {
	return parseBytes(data, DecodeOptions{}.withDefaults())
}

// Unmarshal decodes a document and stores it in the value pointed to by v.
// It returns the detected format.
func Unmarshal(data []byte, v interface{}) (Format, error) {
	pval, format, err := Parse(data)
	if err != nil {
		return format, err
	}
	return format, UnmarshalValue(pval, v)
}

// DetectFormat reports the format of data from its first bytes.
func DetectFormat(data []byte) Format {
	if bytes.HasPrefix(data, []byte(bplistMagic)) {
		return BinaryFormat
	}
	rest := bytes.TrimPrefix(data, utf8BOM)
	rest = bytes.TrimLeft(rest, " \t\r\n")
	if bytes.HasPrefix(rest, []byte("<")) {
		return XMLFormat
	}
	return InvalidFormat
}

func parseBytes(data []byte, opts DecodeOptions) (Value, Format, error) {
	if bytes.HasPrefix(data, gzipMagic) {
		inflated, err := gunzip(data, opts.MaxInputSize)
		if err != nil {
			return nil, InvalidFormat, err
		}
		data = inflated
	}
	format := opts.Format
	if format == AutomaticFormat {
		format = DetectFormat(data)
	}
	Logger().Debug("decoding plist", zap.Stringer("format", format), zap.Int("bytes", len(data)))
	switch format {
	case BinaryFormat:
		v, err := newBplistParser(data, opts.MaxNodes).parseDocument()
		return v, format, err
	case XMLFormat:
		v, err := newXMLPlistParser(bytes.NewReader(data), opts.MaxNodes).parseDocument()
		return v, format, err
	}
	return nil, InvalidFormat, newError(PhaseDecode, KindMalformedHeader, "", "unrecognized property list format")
}

func gunzip(data []byte, limit int64) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, newError(PhaseDecode, KindMalformedHeader, "gzip", "invalid gzip stream").wrap(err)
	}
	defer reader.Close()
	return readAllLimited(reader, limit)
}

func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, ioError(PhaseDecode, "", err)
	}
	if int64(len(data)) > limit {
		return nil, newError(PhaseDecode, KindLimitExceeded, "", "input larger than %d bytes", limit)
	}
	return data, nil
}
