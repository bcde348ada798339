package plist

import (
	"reflect"
	"strings"
	"sync"
)

// typeInfo holds the dictionary layout of a struct type.
type typeInfo struct {
	fields []fieldInfo
}

// fieldInfo describes one struct field stored as a dictionary entry.
type fieldInfo struct {
	idx       []int
	name      string
	omitEmpty bool
}

var tinfoMap = &sync.Map{}

// getTypeInfo returns the typeInfo structure with details necessary
// for marshalling and unmarshalling typ.
func getTypeInfo(typ reflect.Type) *typeInfo {
	if ltinfo, ok := tinfoMap.Load(typ); ok {
		return ltinfo.(*typeInfo)
	}
	tinfo := &typeInfo{}
	if typ.Kind() == reflect.Struct {
		n := typ.NumField()
		for i := 0; i < n; i++ {
			f := typ.Field(i)
			tag := f.Tag.Get("plist")
			if tag == "-" {
				continue
			}

			// Untagged embedded structs promote their fields.
			if f.Anonymous && strings.Split(tag, ",")[0] == "" {
				t := f.Type
				if t.Kind() == reflect.Ptr {
					t = t.Elem()
				}
				if t.Kind() == reflect.Struct {
					for _, finfo := range getTypeInfo(t).fields {
						finfo.idx = append([]int{i}, finfo.idx...)
						addFieldInfo(tinfo, finfo)
					}
					continue
				}
			}
			if f.PkgPath != "" {
				continue // Private field
			}
			addFieldInfo(tinfo, structFieldInfo(&f))
		}
	}
	ltinfo, _ := tinfoMap.LoadOrStore(typ, tinfo)
	return ltinfo.(*typeInfo)
}

// structFieldInfo builds the fieldInfo for f from its `plist:"name,flags"`
// tag. An empty name part falls back to the Go field name.
func structFieldInfo(f *reflect.StructField) fieldInfo {
	finfo := fieldInfo{idx: f.Index, name: f.Name}
	tokens := strings.Split(f.Tag.Get("plist"), ",")
	if tokens[0] != "" {
		finfo.name = tokens[0]
	}
	for _, flag := range tokens[1:] {
		switch flag {
		case "omitempty":
			finfo.omitEmpty = true
		}
	}
	return finfo
}

// addFieldInfo adds newf to tinfo.fields if there are no
// conflicts, or if conflicts arise from previous fields that were
// obtained from deeper embedded structures than newf. In the latter
// case, the conflicting entries are dropped.
func addFieldInfo(tinfo *typeInfo, newf fieldInfo) {
	var conflicts []int
	for i := range tinfo.fields {
		if newf.name == tinfo.fields[i].name {
			conflicts = append(conflicts, i)
		}
	}
	if conflicts == nil {
		tinfo.fields = append(tinfo.fields, newf)
		return
	}

	// If any conflict is as shallow, ignore the new field.
	// This matches the Go field resolution on embedding.
	for _, i := range conflicts {
		if len(tinfo.fields[i].idx) <= len(newf.idx) {
			return
		}
	}

	for c := len(conflicts) - 1; c >= 0; c-- {
		i := conflicts[c]
		copy(tinfo.fields[i:], tinfo.fields[i+1:])
		tinfo.fields = tinfo.fields[:len(tinfo.fields)-1]
	}
	tinfo.fields = append(tinfo.fields, newf)
}

// value returns v's field corresponding to finfo, allocating nil embedded
// struct pointers along the way.
func (finfo *fieldInfo) value(v reflect.Value) reflect.Value {
	for i, x := range finfo.idx {
		if i > 0 {
			t := v.Type()
			if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct {
				if v.IsNil() {
					v.Set(reflect.New(v.Type().Elem()))
				}
				v = v.Elem()
			}
		}
		v = v.Field(x)
	}
	return v
}

// lookup is value without allocation; it reports false when a nil embedded
// pointer hides the field.
func (finfo *fieldInfo) lookup(v reflect.Value) (reflect.Value, bool) {
	for i, x := range finfo.idx {
		if i > 0 && v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}
