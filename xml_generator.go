package plist

import (
	"bufio"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

const (
	xmlHEADER     string = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
	xmlDOCTYPE           = `<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">` + "\n"
	xmlArrayTag          = "array"
	xmlDataTag           = "data"
	xmlDateTag           = "date"
	xmlDictTag           = "dict"
	xmlFalseTag          = "false"
	xmlIntegerTag        = "integer"
	xmlKeyTag            = "key"
	xmlPlistTag          = "plist"
	xmlRealTag           = "real"
	xmlStringTag         = "string"
	xmlTrueTag           = "true"

	xmlUIDKey        = "CF$UID"
	xmlDataLineWidth = 68
)

var xmlCompactTags = map[string]string{
	xmlArrayTag:   "a",
	xmlDictTag:    "d",
	xmlKeyTag:     "k",
	xmlStringTag:  "s",
	xmlIntegerTag: "i",
	xmlRealTag:    "r",
	xmlTrueTag:    "t",
	xmlFalseTag:   "f",
}

func formatXMLFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// xmlGenFrame is an open container whose children are still being written.
type xmlGenFrame struct {
	array Array
	dict  *Dictionary
	next  int
}

type xmlPlistGenerator struct {
	*bufio.Writer

	indent   string
	depth    int
	compact  bool
	uidDicts bool
	stack    []*xmlGenFrame
}

func newXMLPlistGenerator(w io.Writer) *xmlPlistGenerator {
	return &xmlPlistGenerator{Writer: bufio.NewWriter(w)}
}

func (p *xmlPlistGenerator) Indent(i string) {
	p.indent = i
}

func (p *xmlPlistGenerator) writeIndent() {
	for i := 0; i < p.depth; i++ {
		p.WriteString(p.indent)
	}
}

func (p *xmlPlistGenerator) tag(name string) string {
	if p.compact {
		if short, ok := xmlCompactTags[name]; ok {
			return short
		}
	}
	return name
}

func (p *xmlPlistGenerator) generateDocument(root Value) error {
	p.WriteString(xmlHEADER)
	p.WriteString(xmlDOCTYPE)

	p.WriteString(fmt.Sprintf("<%s version=\"1.0\">\n", xmlPlistTag))
	if err := p.writeTree(root); err != nil {
		return err
	}
	p.WriteString(fmt.Sprintf("</%s>", xmlPlistTag))
	if err := p.Flush(); err != nil {
		return ioError(PhaseEncode, xmlFormatName, err)
	}
	return nil
}

func (p *xmlPlistGenerator) element(key string, value string) {
	key = p.tag(key)
	p.writeIndent()
	if len(value) == 0 {
		p.WriteString(fmt.Sprintf("<%s/>\n", key))
	} else {
		p.WriteString(fmt.Sprintf("<%s>", key))
		xml.EscapeText(p.Writer, []byte(value))
		p.WriteString(fmt.Sprintf("</%s>\n", key))
	}
}

func (p *xmlPlistGenerator) openTag(name string) {
	p.writeIndent()
	p.WriteString(fmt.Sprintf("<%s>\n", p.tag(name)))
	p.depth++
}

func (p *xmlPlistGenerator) closeTag(name string) {
	p.depth--
	p.writeIndent()
	p.WriteString(fmt.Sprintf("</%s>\n", p.tag(name)))
}

// writeTree walks the tree with an explicit stack of open containers.
func (p *xmlPlistGenerator) writeTree(root Value) error {
	p.stack = p.stack[:0]
	if err := p.writePlistValue(root); err != nil {
		return err
	}
	for len(p.stack) > 0 {
		top := p.stack[len(p.stack)-1]
		var next Value
		if top.dict != nil {
			if top.next == top.dict.Len() {
				p.stack = p.stack[:len(p.stack)-1]
				p.closeTag(xmlDictTag)
				continue
			}
			p.element(xmlKeyTag, top.dict.keys[top.next])
			next = top.dict.values[top.next]
		} else {
			if top.next == len(top.array) {
				p.stack = p.stack[:len(p.stack)-1]
				p.closeTag(xmlArrayTag)
				continue
			}
			next = top.array[top.next]
		}
		top.next++
		if err := p.writePlistValue(next); err != nil {
			return err
		}
	}
	return nil
}

// writePlistValue writes a leaf, or opens a container and pushes it.
func (p *xmlPlistGenerator) writePlistValue(pval Value) error {
	switch pval := pval.(type) {
	case nil:
		return newError(PhaseEncode, KindUnrepresentable, xmlFormatName, "nil value")
	case String:
		p.element(xmlStringTag, string(pval))
	case Integer:
		p.element(xmlIntegerTag, pval.String())
	case Real:
		p.element(xmlRealTag, formatXMLFloat(float64(pval)))
	case Boolean:
		if bool(pval) {
			p.element(xmlTrueTag, "")
		} else {
			p.element(xmlFalseTag, "")
		}
	case Data:
		p.writeData(pval)
	case Date:
		if !pval.Valid() {
			return newError(PhaseEncode, KindUnrepresentable, xmlFormatName, "date %v has no calendar form", float64(pval))
		}
		p.element(xmlDateTag, pval.Time().Format(time.RFC3339Nano))
	case UID:
		if !p.uidDicts {
			return newError(PhaseEncode, KindUnrepresentable, xmlFormatName, "UID %d has no XML form", uint64(pval))
		}
		p.openTag(xmlDictTag)
		p.element(xmlKeyTag, xmlUIDKey)
		p.element(xmlIntegerTag, strconv.FormatUint(uint64(pval), 10))
		p.closeTag(xmlDictTag)
	case *Dictionary:
		if pval.Len() == 0 {
			p.element(xmlDictTag, "")
			return nil
		}
		p.openTag(xmlDictTag)
		p.stack = append(p.stack, &xmlGenFrame{dict: pval})
	case Array:
		if len(pval) == 0 {
			p.element(xmlArrayTag, "")
			return nil
		}
		p.openTag(xmlArrayTag)
		p.stack = append(p.stack, &xmlGenFrame{array: pval})
	default:
		return newError(PhaseEncode, KindUnrepresentable, xmlFormatName, "cannot encode %T", pval)
	}
	return nil
}

func (p *xmlPlistGenerator) writeData(data Data) {
	dataBase64 := base64.StdEncoding.EncodeToString([]byte(data))
	if len(dataBase64) <= xmlDataLineWidth {
		p.element(xmlDataTag, dataBase64)
		return
	}
	p.writeIndent()
	p.WriteString(fmt.Sprintf("<%s>\n", xmlDataTag))
	for i := 0; i < len(dataBase64); i += xmlDataLineWidth {
		p.writeIndent()
		endoff := i + xmlDataLineWidth
		if endoff > len(dataBase64) {
			endoff = len(dataBase64)
		}
		p.WriteString(dataBase64[i:endoff])
		p.WriteString("\n")
	}
	p.writeIndent()
	p.WriteString(fmt.Sprintf("</%s>\n", xmlDataTag))
}
