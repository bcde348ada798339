package plist

// Dictionary is a string-keyed mapping that remembers insertion order.
// Keys are unique. The zero value is an empty dictionary ready to use.
type Dictionary struct {
	keys   []string
	values []Value
	index  map[string]int
}

// NewDictionary returns an empty dictionary with room for n entries.
func NewDictionary(n int) *Dictionary {
	return &Dictionary{
		keys:   make([]string, 0, n),
		values: make([]Value, 0, n),
		index:  make(map[string]int, n),
	}
}

func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Get returns the value stored under key.
func (d *Dictionary) Get(key string) (Value, bool) {
	if d == nil {
		return nil, false
	}
	i, ok := d.lookup(key)
	if !ok {
		return nil, false
	}
	return d.values[i], true
}

// Insert appends key. It fails with KindDuplicateKey if key is present.
func (d *Dictionary) Insert(key string, v Value) error {
	if _, ok := d.lookup(key); ok {
		return newError(PhaseValue, KindDuplicateKey, "", "duplicate key %q", key)
	}
	d.append(key, v)
	return nil
}

// Set stores v under key, replacing an existing entry in place.
func (d *Dictionary) Set(key string, v Value) {
	if i, ok := d.lookup(key); ok {
		d.values[i] = v
		return
	}
	d.append(key, v)
}

// Remove deletes key, keeping the relative order of the other entries.
func (d *Dictionary) Remove(key string) bool {
	i, ok := d.lookup(key)
	if !ok {
		return false
	}
	copy(d.keys[i:], d.keys[i+1:])
	copy(d.values[i:], d.values[i+1:])
	d.keys = d.keys[:len(d.keys)-1]
	d.values[len(d.values)-1] = nil
	d.values = d.values[:len(d.values)-1]
	d.reindex()
	return true
}

// Keys returns the keys in stored order.
func (d *Dictionary) Keys() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.keys...)
}

// Values returns the values in stored order.
func (d *Dictionary) Values() []Value {
	if d == nil {
		return nil
	}
	return append([]Value(nil), d.values...)
}

// Range calls fn for each entry in stored order until fn returns false.
func (d *Dictionary) Range(fn func(key string, v Value) bool) {
	if d == nil {
		return
	}
	for i, k := range d.keys {
		if !fn(k, d.values[i]) {
			return
		}
	}
}

// Equal compares two dictionaries as key sets; entry order is ignored.
func (d *Dictionary) Equal(o *Dictionary) bool {
	return Equal(d, o)
}

// Unmarshal fills the Go value pointed to by v from the dictionary.
func (d *Dictionary) Unmarshal(v interface{}) error {
	return UnmarshalValue(d, v)
}

func (d *Dictionary) lookup(key string) (int, bool) {
	if d.index == nil {
		if len(d.keys) == 0 {
			return 0, false
		}
		d.reindex()
	}
	i, ok := d.index[key]
	return i, ok
}

func (d *Dictionary) append(key string, v Value) {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	d.index[key] = len(d.keys)
	d.keys = append(d.keys, key)
	d.values = append(d.values, v)
}

func (d *Dictionary) reindex() {
	d.index = make(map[string]int, len(d.keys))
	for i, k := range d.keys {
		d.index[k] = i
	}
}
