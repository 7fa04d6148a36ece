package miner

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/termset"
)

// Entry is one counted term-set.
type Entry struct {
	Set   termset.TermSet
	Count int
}

// Counter maps term-sets to support counts and remembers the order in which
// each set was first seen. Merging partial counters in entity order yields
// the same order no matter how the work was split.
type Counter struct {
	pos     map[termset.Key]int
	entries []Entry
}

func NewCounter(hint int) *Counter {
	return &Counter{
		pos:     make(map[termset.Key]int, hint),
		entries: make([]Entry, 0, hint),
	}
}

func (c *Counter) Len() int { return len(c.entries) }

// Add increments set's count by n.
func (c *Counter) Add(set termset.TermSet, n int) {
	key := set.Key()
	if i, ok := c.pos[key]; ok {
		c.entries[i].Count += n
		return
	}
	c.pos[key] = len(c.entries)
	c.entries = append(c.entries, Entry{Set: set, Count: n})
}

// Mark counts set once; later marks of the same set are ignored. Workers use
// it so that one entity supports a set at most once.
func (c *Counter) Mark(set termset.TermSet) {
	key := set.Key()
	if _, ok := c.pos[key]; ok {
		return
	}
	c.pos[key] = len(c.entries)
	c.entries = append(c.entries, Entry{Set: set, Count: 1})
}

func (c *Counter) Count(set termset.TermSet) int {
	if i, ok := c.pos[set.Key()]; ok {
		return c.entries[i].Count
	}
	return 0
}

// Merge sums other into c. other is left untouched.
func (c *Counter) Merge(other *Counter) {
	if other == nil {
		return
	}
	for _, e := range other.entries {
		c.Add(e.Set, e.Count)
	}
}

// Entries exposes the counted sets in first-seen order. Callers must not
// modify the returned slice.
func (c *Counter) Entries() []Entry {
	return c.entries
}

// Sets returns the counted sets in first-seen order.
func (c *Counter) Sets() []termset.TermSet {
	out := make([]termset.TermSet, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Set
	}
	return out
}

// Prune copies every entry with Count >= min into a new Counter.
func (c *Counter) Prune(min int) *Counter {
	kept := 0
	for _, e := range c.entries {
		if e.Count >= min {
			kept++
		}
	}
	out := NewCounter(kept)
	for _, e := range c.entries {
		if e.Count >= min {
			out.Add(e.Set, e.Count)
		}
	}
	return out
}

// Top returns the n highest counts, ties broken by first-seen order.
func (c *Counter) Top(n int) []Entry {
	sorted := make([]Entry, len(c.entries))
	copy(sorted, c.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Count > sorted[j].Count
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
