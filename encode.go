package plist

import (
	"bytes"
	"io"
)

// An Encoder writes a property list to an output stream.
type Encoder struct {
	writer io.Writer
	format Format
	xml    XMLOptions
}

// NewEncoder returns an Encoder that writes XML to w.
func NewEncoder(w io.Writer) *Encoder {
	return NewEncoderForFormat(w, XMLFormat)
}

// NewEncoderForFormat returns an Encoder that writes format to w.
func NewEncoderForFormat(w io.Writer, format Format) *Encoder {
	return &Encoder{writer: w, format: format, xml: DefaultXMLOptions}
}

// Indent sets the XML indentation string; it has no effect on binary output.
func (e *Encoder) Indent(indent string) {
	e.xml.Indent = indent
}

// CompactTags switches XML output to single-letter element names.
func (e *Encoder) CompactTags(on bool) {
	e.xml.CompactTags = on
}

// UIDDictionaries lets XML output spell UIDs as CF$UID dictionaries.
func (e *Encoder) UIDDictionaries(on bool) {
	e.xml.UIDDictionaries = on
}

// Encode converts v with the typed bridge and writes it.
func (e *Encoder) Encode(v interface{}) error {
	pval, err := MarshalValue(v)
	if err != nil {
		return err
	}
	return e.EncodeValue(pval)
}

// EncodeValue writes the tree rooted at v.
func (e *Encoder) EncodeValue(v Value) error {
	switch e.format {
	case BinaryFormat:
		return newBplistGenerator(e.writer).generateDocument(v)
	case XMLFormat:
		g := newXMLPlistGenerator(e.writer)
		g.Indent(e.xml.Indent)
		g.compact = e.xml.CompactTags
		g.uidDicts = e.xml.UIDDictionaries
		return g.generateDocument(v)
	}
	return newError(PhaseEncode, KindUnsupportedObject, "", "cannot encode to format %v", e.format)
}

// Marshal returns v encoded in format.
func Marshal(v interface{}, format Format) ([]byte, error) {
	return MarshalIndent(v, format, DefaultXMLOptions.Indent)
}

// MarshalIndent is like Marshal with a custom XML indentation.
func MarshalIndent(v interface{}, format Format, indent string) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := NewEncoderForFormat(buf, format)
	enc.Indent(indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
