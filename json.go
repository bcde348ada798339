package plist

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

const jsonFormatName = "JSON"

// ConvertToJSON decodes a plist in either format and returns it as JSON.
func ConvertToJSON(data []byte) ([]byte, error) {
	v, _, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return ToJSON(v)
}

// ToJSON renders v as JSON, keeping dictionary order. Data is base64 text,
// Date is an RFC 3339 string and UID is {"CF$UID": n}. Non-finite reals
// have no JSON form.
func ToJSON(v Value) ([]byte, error) {
	buf := &bytes.Buffer{}
	stack := []jsonFrame{{value: v}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.closing != 0 {
			buf.WriteByte(f.closing)
			continue
		}
		if f.separator {
			buf.WriteByte(',')
		}
		if f.key != nil {
			writeJSONString(buf, *f.key)
			buf.WriteByte(':')
		}
		switch v := f.value.(type) {
		case Array:
			buf.WriteByte('[')
			stack = append(stack, jsonFrame{closing: ']'})
			for i := len(v) - 1; i >= 0; i-- {
				stack = append(stack, jsonFrame{value: v[i], separator: i > 0})
			}
		case *Dictionary:
			buf.WriteByte('{')
			stack = append(stack, jsonFrame{closing: '}'})
			for i := len(v.keys) - 1; i >= 0; i-- {
				stack = append(stack, jsonFrame{key: &v.keys[i], value: v.values[i], separator: i > 0})
			}
		default:
			if err := writeJSONLeaf(buf, v); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

type jsonFrame struct {
	key       *string
	value     Value
	separator bool
	closing   byte
}

func writeJSONString(buf *bytes.Buffer, s string) {
	// json.Marshal never fails for a string.
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func writeJSONLeaf(buf *bytes.Buffer, v Value) error {
	switch v := v.(type) {
	case String:
		writeJSONString(buf, string(v))
	case Integer:
		buf.WriteString(v.String())
	case Real:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return newError(PhaseEncode, KindUnrepresentable, jsonFormatName, "non-finite real %v", f)
		}
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case Boolean:
		buf.WriteString(strconv.FormatBool(bool(v)))
	case Date:
		if !v.Valid() {
			return newError(PhaseEncode, KindUnrepresentable, jsonFormatName, "invalid date %v", float64(v))
		}
		writeJSONString(buf, v.Time().Format(time.RFC3339Nano))
	case Data:
		b, _ := json.Marshal([]byte(v))
		buf.Write(b)
	case UID:
		buf.WriteString(`{"` + xmlUIDKey + `":`)
		buf.WriteString(strconv.FormatUint(uint64(v), 10))
		buf.WriteByte('}')
	default:
		return newError(PhaseEncode, KindUnrepresentable, jsonFormatName, "cannot encode %T", v)
	}
	return nil
}
