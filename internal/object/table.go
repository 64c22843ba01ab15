package object

// Table is the single open-addressing hash table that backs the string
// intern table, the globals table, every class's method table, and every
// instance's fields table (spec §4.4). Keys are always interned strings,
// compared by pointer identity; linear probing with tombstones resolves
// collisions.
type Table struct {
	entries []tableEntry
	count   int // live entries + tombstones, for load-factor accounting
}

type tableEntry struct {
	Key   *ObjString
	Value Value
}

func (e tableEntry) isEmpty() bool      { return e.Key == nil && e.Value.IsNil() }
func (e tableEntry) isTombstone() bool  { return e.Key == nil && e.Value.IsBool() && e.Value.AsBool() }

const tableMinCapacity = 8
const tableMaxLoad = 0.75

func NewTable() *Table {
	return &Table{}
}

func (t *Table) Count() int { return t.count }

// Get returns the value bound to key, if any.
func (t *Table) Get(key *ObjString) (Value, bool) {
	if len(t.entries) == 0 {
		return Value{}, false
	}
	e := t.findEntry(key)
	if e == nil || e.Key == nil {
		return Value{}, false
	}
	return e.Value, true
}

// Set installs value under key, growing the table first if needed.
// Returns true if this inserted a brand new key.
func (t *Table) Set(key *ObjString, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow()
	}
	e := t.findEntry(key)
	isNew := e.Key == nil
	if isNew && e.isEmpty() {
		t.count++
	}
	e.Key = key
	e.Value = value
	return isNew
}

// Delete replaces key's entry with a tombstone (key=nil, value=true) so
// probing sequences through it keep working for other keys.
func (t *Table) Delete(key *ObjString) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.findEntry(key)
	if e == nil || e.Key == nil {
		return false
	}
	e.Key = nil
	e.Value = Bool_(true)
	return true
}

// FindString probes the table by content (hash + byte comparison) rather
// than by pointer, which is what lets the string interning table answer
// "does a string with these bytes already exist" before an ObjString for
// them has been allocated.
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	index := hash & mask
	for {
		e := &t.entries[index]
		if e.isEmpty() {
			return nil
		}
		if e.Key != nil && e.Key.Hash == hash && e.Key.Chars == chars {
			return e.Key
		}
		index = (index + 1) & mask
	}
}

// AddAll copies every entry of from into t, used by OP_INHERIT to copy a
// superclass's method table down into the subclass.
func (t *Table) AddAll(from *Table) {
	for _, e := range from.entries {
		if e.Key != nil {
			t.Set(e.Key, e.Value)
		}
	}
}

// Each calls fn for every live (non-tombstone, non-empty) entry. Used by
// the collector to mark keys and values, and by RemoveWhite below.
func (t *Table) Each(fn func(key *ObjString, value Value)) {
	for _, e := range t.entries {
		if e.Key != nil {
			fn(e.Key, e.Value)
		}
	}
}

// RemoveWhite deletes every entry whose key is not marked. Called on the
// string intern table before sweep so a string with no remaining strong
// references stops being weakly kept alive by the intern table itself.
func (t *Table) RemoveWhite() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Key != nil && !e.Key.Marked {
			e.Key = nil
			e.Value = Bool_(true)
		}
	}
}

func (t *Table) findEntry(key *ObjString) *tableEntry {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	index := key.Hash & mask
	var tombstone *tableEntry
	for {
		e := &t.entries[index]
		switch {
		case e.isEmpty():
			if tombstone != nil {
				return tombstone
			}
			return e
		case e.isTombstone():
			if tombstone == nil {
				tombstone = e
			}
		case e.Key == key:
			return e
		}
		index = (index + 1) & mask
	}
}

func (t *Table) grow() {
	newCap := tableMinCapacity
	if len(t.entries) > 0 {
		newCap = len(t.entries) * 2
	}
	old := t.entries
	t.entries = make([]tableEntry, newCap)
	t.count = 0
	for _, e := range old {
		if e.Key == nil {
			continue
		}
		dst := t.findEntry(e.Key)
		dst.Key = e.Key
		dst.Value = e.Value
		t.count++
	}
}

// FNV1a32 computes the 32-bit FNV-1a hash of s, used to precompute every
// ObjString's Hash at construction time.
func FNV1a32(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}
