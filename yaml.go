package plist

import (
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	yaml "gopkg.in/yaml.v2"
)

const yamlFormatName = "YAML"

// ToYAML renders v as YAML. Dictionaries keep their key order. YAML has no
// data, date or UID scalars, so Data becomes base64 text, Date an RFC 3339
// string and UID a {CF$UID: n} mapping.
func ToYAML(v Value) ([]byte, error) {
	doc, err := yamlFromValue(v, 0)
	if err != nil {
		return nil, err
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, newError(PhaseEncode, KindUnrepresentable, yamlFormatName, "").wrap(err)
	}
	return out, nil
}

// FromYAML builds a tree from a YAML document, keeping mapping order.
func FromYAML(data []byte) (Value, error) {
	var node yamlNode
	if err := yaml.Unmarshal(data, &node); err != nil {
		if perr, ok := err.(*Error); ok {
			return nil, perr
		}
		return nil, newError(PhaseDecode, KindMalformedHeader, yamlFormatName, "invalid YAML").wrap(err)
	}
	if node.value == nil {
		return nil, newError(PhaseDecode, KindUnrepresentable, yamlFormatName, "empty document")
	}
	return node.value, nil
}

func yamlFromValue(v Value, depth int) (interface{}, error) {
	if depth >= maxBridgeDepth {
		return nil, newError(PhaseEncode, KindLimitExceeded, yamlFormatName, "nesting deeper than %d", maxBridgeDepth)
	}
	switch v := v.(type) {
	case *Dictionary:
		out := make(yaml.MapSlice, 0, v.Len())
		for i, k := range v.keys {
			item, err := yamlFromValue(v.values[i], depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, yaml.MapItem{Key: k, Value: item})
		}
		return out, nil
	case Array:
		out := make([]interface{}, len(v))
		for i, e := range v {
			item, err := yamlFromValue(e, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case String:
		return string(v), nil
	case Integer:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		return v.value, nil
	case Real:
		return float64(v), nil
	case Boolean:
		return bool(v), nil
	case Date:
		return v.Time().Format(time.RFC3339Nano), nil
	case Data:
		return base64.StdEncoding.EncodeToString(v), nil
	case UID:
		return yaml.MapSlice{{Key: xmlUIDKey, Value: uint64(v)}}, nil
	}
	return nil, newError(PhaseEncode, KindUnrepresentable, yamlFormatName, "cannot encode %T", v)
}

// yamlNode decodes any YAML node; mappings are decoded a second time as a
// MapSlice and sequences as []yamlNode so that order survives at every
// level.
type yamlNode struct {
	value Value
}

func (n *yamlNode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch raw.(type) {
	case map[interface{}]interface{}:
		var ms yaml.MapSlice
		if err := unmarshal(&ms); err != nil {
			return err
		}
		raw = ms
	case []interface{}:
		var seq []yamlNode
		if err := unmarshal(&seq); err != nil {
			return err
		}
		array := make(Array, len(seq))
		for i := range seq {
			if seq[i].value == nil {
				return newError(PhaseDecode, KindUnrepresentable, yamlFormatName, "null in sequence")
			}
			array[i] = seq[i].value
		}
		n.value = array
		return nil
	}
	v, err := valueFromYAML(raw, 0)
	if err != nil {
		return err
	}
	n.value = v
	return nil
}

func valueFromYAML(raw interface{}, depth int) (Value, error) {
	if depth >= maxBridgeDepth {
		return nil, newError(PhaseDecode, KindLimitExceeded, yamlFormatName, "nesting deeper than %d", maxBridgeDepth)
	}
	switch raw := raw.(type) {
	case nil:
		return nil, nil
	case yaml.MapSlice:
		dict := NewDictionary(len(raw))
		for _, item := range raw {
			key := fmt.Sprint(item.Key)
			v, err := valueFromYAML(item.Value, depth+1)
			if err != nil {
				return nil, err
			}
			if v == nil {
				continue
			}
			if err := dict.Insert(key, v); err != nil {
				return nil, newError(PhaseDecode, KindDuplicateKey, yamlFormatName, "duplicate key %q", key)
			}
		}
		return dict, nil
	case map[interface{}]interface{}:
		keys := make([]string, 0, len(raw))
		byKey := make(map[string]interface{}, len(raw))
		for k, v := range raw {
			key := fmt.Sprint(k)
			keys = append(keys, key)
			byKey[key] = v
		}
		sort.Strings(keys)
		dict := NewDictionary(len(keys))
		for _, k := range keys {
			v, err := valueFromYAML(byKey[k], depth+1)
			if err != nil {
				return nil, err
			}
			if v != nil {
				dict.append(k, v)
			}
		}
		return dict, nil
	case []interface{}:
		array := make(Array, 0, len(raw))
		for _, e := range raw {
			v, err := valueFromYAML(e, depth+1)
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, newError(PhaseDecode, KindUnrepresentable, yamlFormatName, "null in sequence")
			}
			array = append(array, v)
		}
		return array, nil
	case string:
		return String(raw), nil
	case bool:
		return Boolean(raw), nil
	case int:
		return NewInteger(int64(raw)), nil
	case int64:
		return NewInteger(raw), nil
	case uint64:
		return integerFromUint64(raw), nil
	case float64:
		return Real(raw), nil
	case time.Time:
		return DateFromTime(raw), nil
	}
	return nil, newError(PhaseDecode, KindUnrepresentable, yamlFormatName, "unsupported YAML value %T", raw)
}
