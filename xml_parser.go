package plist

import (
	"encoding/base64"
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

const xmlFormatName = "XML"

// xmlTagAliases maps the single-letter spellings of the compact dialect to
// the standard element names.
var xmlTagAliases = map[string]string{
	"a": xmlArrayTag,
	"d": xmlDictTag,
	"k": xmlKeyTag,
	"s": xmlStringTag,
	"i": xmlIntegerTag,
	"r": xmlRealTag,
	"t": xmlTrueTag,
	"f": xmlFalseTag,
}

func canonicalXMLTag(name string) string {
	if alias, ok := xmlTagAliases[name]; ok {
		return alias
	}
	return name
}

// xmlFrame is an open <array> or <dict>.
type xmlFrame struct {
	element xml.StartElement
	tag     string
	array   Array
	dict    *Dictionary
	key     *string
	nodes   int
}

// xmlRef is a value registered under an ID attribute.
type xmlRef struct {
	value Value
	nodes int
}

type xmlPlistParser struct {
	reader             io.Reader
	xmlDecoder         *xml.Decoder
	whitespaceReplacer *strings.Replacer
	ntags              int
	idrefs             map[string]xmlRef
	stack              []*xmlFrame
	root               Value
	nodes              int
	maxNodes           int
}

func newXMLPlistParser(r io.Reader, maxNodes int) *xmlPlistParser {
	return &xmlPlistParser{
		reader:             r,
		xmlDecoder:         xml.NewDecoder(r),
		whitespaceReplacer: strings.NewReplacer("\t", "", "\n", "", " ", "", "\r", ""),
		idrefs:             make(map[string]xmlRef),
		maxNodes:           maxNodes,
	}
}

// count charges n values against the node budget. An IDREF copy is charged
// before it is made, less the element it replaces.
func (p *xmlPlistParser) count(n int) error {
	p.nodes += n
	if p.nodes > p.maxNodes {
		return newError(PhaseDecode, KindLimitExceeded, xmlFormatName, "document expands beyond %d values", p.maxNodes)
	}
	return nil
}

func xmlSyntaxError(detail string, args ...interface{}) *Error {
	return newError(PhaseDecode, KindXMLSyntax, xmlFormatName, detail, args...)
}

// tokenError classifies an error from the tokenizer: markup problems are
// XML syntax errors, anything else came from the underlying reader.
func tokenError(err error) *Error {
	var syntax *xml.SyntaxError
	if errors.As(err, &syntax) || errors.Is(err, io.ErrUnexpectedEOF) {
		return xmlSyntaxError("malformed markup").wrap(err)
	}
	return ioError(PhaseDecode, xmlFormatName, err)
}

// parseDocument builds the tree with an explicit stack of open containers,
// so nesting depth in the input never turns into call depth.
func (p *xmlPlistParser) parseDocument() (Value, error) {
	inPlist := false
	for {
		token, err := p.xmlDecoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, tokenError(err)
		}
		switch token := token.(type) {
		case xml.StartElement:
			tag := canonicalXMLTag(token.Name.Local)
			if tag == xmlPlistTag {
				if inPlist || p.ntags > 0 {
					return nil, xmlSyntaxError("unexpected <%s>", xmlPlistTag)
				}
				inPlist = true
				continue
			}
			if p.root != nil {
				return nil, xmlSyntaxError("unexpected <%s> after the root value", token.Name.Local)
			}
			p.ntags++
			if err := p.startElement(token, tag); err != nil {
				return nil, err
			}
		case xml.EndElement:
			tag := canonicalXMLTag(token.Name.Local)
			if tag == xmlPlistTag {
				inPlist = false
				continue
			}
			if err := p.endContainer(tag); err != nil {
				return nil, err
			}
		}
	}
	if p.root == nil {
		return nil, xmlSyntaxError("no elements encountered")
	}
	return p.root, nil
}

func (p *xmlPlistParser) startElement(element xml.StartElement, tag string) error {
	switch tag {
	case xmlArrayTag, xmlDictTag:
		if err := p.count(1); err != nil {
			return err
		}
		frame := &xmlFrame{element: element, tag: tag, nodes: 1}
		if tag == xmlArrayTag {
			frame.array = Array{}
		} else {
			frame.dict = NewDictionary(8)
		}
		p.stack = append(p.stack, frame)
		return nil
	case xmlKeyTag:
		k, err := p.readText(element)
		if err != nil {
			return err
		}
		top := p.top()
		if top == nil || top.dict == nil {
			return xmlSyntaxError("<%s> outside of a dictionary", xmlKeyTag)
		}
		if top.key != nil {
			return xmlSyntaxError("missing value for key %q", *top.key)
		}
		top.key = &k
		return nil
	}
	v, err := p.parseLeaf(element, tag)
	if err != nil {
		return err
	}
	if err := p.count(1); err != nil {
		return err
	}
	v, nodes, err := p.storeOrFindXMLElementValue(element, v, 1)
	if err != nil {
		return err
	}
	return p.attach(v, nodes)
}

func (p *xmlPlistParser) endContainer(tag string) error {
	top := p.top()
	if top == nil || top.tag != tag {
		return xmlSyntaxError("unexpected </%s>", tag)
	}
	if top.key != nil {
		return xmlSyntaxError("missing value for key %q", *top.key)
	}
	p.stack = p.stack[:len(p.stack)-1]
	var v Value = top.array
	if top.dict != nil {
		v = top.dict
	}
	v, nodes, err := p.storeOrFindXMLElementValue(top.element, v, top.nodes)
	if err != nil {
		return err
	}
	return p.attach(v, nodes)
}

func (p *xmlPlistParser) top() *xmlFrame {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

// attach adds v, a subtree of nodes values, to the open container.
func (p *xmlPlistParser) attach(v Value, nodes int) error {
	top := p.top()
	if top != nil {
		top.nodes += nodes
	}
	switch {
	case top == nil:
		p.root = v
	case top.dict != nil:
		if top.key == nil {
			return xmlSyntaxError("missing key in dictionary")
		}
		key := *top.key
		top.key = nil
		if err := top.dict.Insert(key, v); err != nil {
			return newError(PhaseDecode, KindDuplicateKey, xmlFormatName, "duplicate key %q", key)
		}
	default:
		top.array = append(top.array, v)
	}
	return nil
}

// storeOrFindXMLElementValue registers values carrying an ID attribute and
// replaces elements carrying IDREF with a copy of the referenced value.
func (p *xmlPlistParser) storeOrFindXMLElementValue(element xml.StartElement, value Value, nodes int) (Value, int, error) {
	for _, attr := range element.Attr {
		switch attr.Name.Local {
		case "ID":
			p.idrefs[attr.Value] = xmlRef{value: value, nodes: nodes}
		case "IDREF":
			ref, ok := p.idrefs[attr.Value]
			if !ok {
				return nil, 0, xmlSyntaxError("unknown IDREF %q", attr.Value)
			}
			if err := p.count(ref.nodes - nodes); err != nil {
				return nil, 0, err
			}
			return Clone(ref.value), ref.nodes, nil
		}
	}
	return value, nodes, nil
}

// readText collects the character data of a leaf element and consumes its
// end tag.
func (p *xmlPlistParser) readText(element xml.StartElement) (string, error) {
	var text strings.Builder
	for {
		token, err := p.xmlDecoder.Token()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return "", tokenError(err)
		}
		switch token := token.(type) {
		case xml.CharData:
			text.Write(token)
		case xml.StartElement:
			return "", xmlSyntaxError("unexpected <%s> inside <%s>", token.Name.Local, element.Name.Local)
		case xml.EndElement:
			return text.String(), nil
		}
	}
}

func (p *xmlPlistParser) parseLeaf(element xml.StartElement, tag string) (Value, error) {
	switch tag {
	case xmlStringTag, xmlIntegerTag, xmlRealTag, xmlTrueTag, xmlFalseTag, xmlDateTag, xmlDataTag:
	default:
		return nil, xmlSyntaxError("encountered unknown element %s", element.Name.Local)
	}
	text, err := p.readText(element)
	if err != nil {
		return nil, err
	}
	switch tag {
	case xmlStringTag:
		return String(text), nil
	case xmlIntegerTag:
		return parseXMLInteger(text)
	case xmlRealTag:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, xmlSyntaxError("invalid <%s> %q", xmlRealTag, text).wrap(err)
		}
		return Real(f), nil
	case xmlTrueTag, xmlFalseTag:
		return Boolean(tag == xmlTrueTag), nil
	case xmlDateTag:
		t, err := time.ParseInLocation(time.RFC3339, strings.TrimSpace(text), time.UTC)
		if err != nil {
			return nil, xmlSyntaxError("invalid <%s> %q", xmlDateTag, text).wrap(err)
		}
		return DateFromTime(t), nil
	default:
		str := p.whitespaceReplacer.Replace(text)
		b, err := base64.StdEncoding.DecodeString(str)
		if err != nil {
			return nil, xmlSyntaxError("invalid <%s>", xmlDataTag).wrap(err)
		}
		return Data(b), nil
	}
}

// parseXMLInteger accepts an optional sign and an optional 0x prefix.
// Negative values are signed; positive values beyond MaxInt64 are unsigned.
func parseXMLInteger(text string) (Value, error) {
	s := strings.TrimSpace(text)
	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	base := 10
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		base = 16
		s = s[2:]
	}
	u, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return nil, numericRange(PhaseDecode, nil, text, "64-bit integer")
		}
		return nil, xmlSyntaxError("invalid <%s> %q", xmlIntegerTag, text).wrap(err)
	}
	if negative {
		if u > 1<<63 {
			return nil, numericRange(PhaseDecode, nil, text, "int64")
		}
		return NewInteger(-int64(u)), nil
	}
	return integerFromUint64(u), nil
}
