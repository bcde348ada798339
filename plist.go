// Package plist reads and writes property lists in the XML and binary
// (bplist00) formats, and converts between property list trees and Go
// values.
//
// A document decodes to a Value tree:
//
//	v, format, err := plist.Parse(data)
//
// and a Go value round-trips through the typed bridge:
//
//	type Save struct {
//		Slot   int      `plist:"slot"`
//		Items  []string `plist:"items"`
//		Note   *string  `plist:"note"`
//	}
//	data, err := plist.Marshal(save, plist.BinaryFormat)
//	format, err := plist.Unmarshal(data, &save)
//
// Every failure is an *Error carrying a Phase and a Kind; use IsKind to
// test for a particular kind.
package plist

import (
	"strings"
)

// Format names an on-disk encoding.
type Format int

const (
	InvalidFormat Format = iota
	XMLFormat
	BinaryFormat

	// AutomaticFormat asks a decoder to detect the format.
	AutomaticFormat = InvalidFormat
)

// FormatNames maps each format to its human-readable name.
var FormatNames = map[Format]string{
	InvalidFormat: "unknown/invalid",
	XMLFormat:     "XML",
	BinaryFormat:  "Binary",
}

func (f Format) String() string {
	if name, ok := FormatNames[f]; ok {
		return name
	}
	return FormatNames[InvalidFormat]
}

// ParseFormat maps "xml" and "binary" (any case) to a Format.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xml", "xml1":
		return XMLFormat, true
	case "binary", "bin", "binary1", "bplist":
		return BinaryFormat, true
	}
	return InvalidFormat, false
}

const (
	// DefaultMaxNodes bounds the number of values a document may expand to
	// once shared objects and IDREFs are copied.
	DefaultMaxNodes = 1 << 24

	// DefaultMaxInputSize bounds the bytes read from a source, including
	// the decompressed size of gzip input.
	DefaultMaxInputSize = 1 << 30
)

// DecodeOptions tunes resource limits of a decode call. Zero fields take
// the defaults.
type DecodeOptions struct {
	MaxNodes     int
	MaxInputSize int64

	// Format skips detection when set. Input that does not start like the
	// named format is then reported by that format's parser.
	Format Format
}

func (o DecodeOptions) withDefaults() DecodeOptions {
	if o.MaxNodes <= 0 {
		o.MaxNodes = DefaultMaxNodes
	}
	if o.MaxInputSize <= 0 {
		o.MaxInputSize = DefaultMaxInputSize
	}
	return o
}

// XMLOptions controls XML output.
type XMLOptions struct {
	Indent      string
	CompactTags bool

	// UIDDictionaries writes a UID as a dictionary with the single key
	// CF$UID. Such dictionaries decode as dictionaries, not UIDs. Without
	// it a UID cannot be written as XML.
	UIDDictionaries bool
}

// DefaultXMLOptions indents with tabs and uses the standard element names.
var DefaultXMLOptions = XMLOptions{Indent: "\t"}
