// Package classify accumulates per-address AS assignments.
package classify

import "fmt"

// Unknown is the value held by an address no prefix has matched.
const Unknown = "unknown"

// Entry is a single address classification.
type Entry struct {
	Address string
	Value   string
}

// Known reports whether the entry holds a real AS assignment.
func (e Entry) Known() bool { return e.Value != Unknown }

// Table maps caller addresses to AS assignments. Entries keep insertion
// order. A Table has a single writer and is not safe for concurrent use.
type Table struct {
	index   map[string]int
	entries []Entry
}

// NewTable creates an empty table sized for sizeHint addresses.
func NewTable(sizeHint int) (*Table, error) {
	if sizeHint < 0 {
		return nil, fmt.Errorf("classify: invalid size hint %d", sizeHint)
	}
	return &Table{
		index:   make(map[string]int, sizeHint),
		entries: make([]Entry, 0, sizeHint),
	}, nil
}

// Classify records value for addr. A real AS number always replaces the
// previous value; Unknown never replaces a real AS number.
func (t *Table) Classify(addr, value string) {
	i, ok := t.index[addr]
	if !ok {
		t.index[addr] = len(t.entries)
		t.entries = append(t.entries, Entry{Address: addr, Value: value})
		return
	}
	if value == Unknown {
		return
	}
	t.entries[i].Value = value
}

// Get returns the value recorded for addr.
func (t *Table) Get(addr string) (string, bool) {
	i, ok := t.index[addr]
	if !ok {
		return "", false
	}
	return t.entries[i].Value, true
}

// Entries returns a copy of all entries in insertion order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of classified addresses.
func (t *Table) Len() int { return len(t.entries) }

// Known returns the distinct real AS values in first-seen entry order.
func (t *Table) Known() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range t.entries {
		if !e.Known() || seen[e.Value] {
			continue
		}
		seen[e.Value] = true
		out = append(out, e.Value)
	}
	return out
}
