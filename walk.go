package plist

import (
	"bytes"
	"math"
)

// Equal reports whether a and b are structurally equal. Integers compare by
// numeric value regardless of signedness, a Real never equals an Integer,
// NaN equals NaN, and dictionaries compare as key sets.
func Equal(a, b Value) bool {
	type pair struct{ a, b Value }
	stack := []pair{{a, b}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.a == nil || p.b == nil {
			if p.a != p.b {
				return false
			}
			continue
		}
		switch av := p.a.(type) {
		case Array:
			bv, ok := p.b.(Array)
			if !ok || len(av) != len(bv) {
				return false
			}
			for i := range av {
				stack = append(stack, pair{av[i], bv[i]})
			}
		case *Dictionary:
			bv, ok := p.b.(*Dictionary)
			if !ok || av.Len() != bv.Len() {
				return false
			}
			for i := 0; i < av.Len(); i++ {
				other, ok := bv.Get(av.keys[i])
				if !ok {
					return false
				}
				stack = append(stack, pair{av.values[i], other})
			}
		case Integer:
			bv, ok := p.b.(Integer)
			if !ok || !av.Equal(bv) {
				return false
			}
		case Real:
			bv, ok := p.b.(Real)
			if !ok || !floatEqual(float64(av), float64(bv)) {
				return false
			}
		case Date:
			bv, ok := p.b.(Date)
			if !ok || !floatEqual(float64(av), float64(bv)) {
				return false
			}
		case Data:
			bv, ok := p.b.(Data)
			if !ok || !bytes.Equal(av, bv) {
				return false
			}
		case Boolean:
			if bv, ok := p.b.(Boolean); !ok || av != bv {
				return false
			}
		case String:
			if bv, ok := p.b.(String); !ok || av != bv {
				return false
			}
		case UID:
			if bv, ok := p.b.(UID); !ok || av != bv {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func floatEqual(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// Clone returns a deep copy of v that shares no containers or byte slices
// with it.
func Clone(v Value) Value {
	var c cloner
	root := c.node(v)
	c.run()
	return root
}

type cloneTask struct {
	src, dst Value
}

type cloner struct {
	tasks []cloneTask
}

// node copies leaves directly and returns an empty, correctly sized
// container for arrays and dictionaries, queueing the fill.
func (c *cloner) node(v Value) Value {
	switch v := v.(type) {
	case Array:
		if v == nil {
			return Array(nil)
		}
		dst := make(Array, len(v))
		c.tasks = append(c.tasks, cloneTask{v, dst})
		return dst
	case *Dictionary:
		if v == nil {
			return NewDictionary(0)
		}
		dst := NewDictionary(v.Len())
		c.tasks = append(c.tasks, cloneTask{v, dst})
		return dst
	case Data:
		if v == nil {
			return Data(nil)
		}
		return append(Data{}, v...)
	default:
		return v
	}
}

func (c *cloner) run() {
	for len(c.tasks) > 0 {
		t := c.tasks[len(c.tasks)-1]
		c.tasks = c.tasks[:len(c.tasks)-1]
		switch src := t.src.(type) {
		case Array:
			dst := t.dst.(Array)
			for i, e := range src {
				dst[i] = c.node(e)
			}
		case *Dictionary:
			dst := t.dst.(*Dictionary)
			for i, k := range src.keys {
				dst.append(k, c.node(src.values[i]))
			}
		}
	}
}
