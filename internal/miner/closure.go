package miner

import (
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/termset"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/universe"
)

// ClosureCache memoises, per term, the union of its ancestor and descendant
// closures mapped into the universe: the terms whose addition to a set that
// already holds this term is implied by the hierarchy.
//
// Only the driver calls Ensure, between levels. Blocks is read-only and is
// what counting workers use.
type ClosureCache struct {
	u       *universe.Universe
	blocked map[universe.Index]map[universe.Index]struct{}
}

func NewClosureCache(u *universe.Universe) *ClosureCache {
	return &ClosureCache{
		u:       u,
		blocked: make(map[universe.Index]map[universe.Index]struct{}),
	}
}

// Ensure computes term's entry if absent and reports whether it did.
func (c *ClosureCache) Ensure(term universe.Index) bool {
	if _, ok := c.blocked[term]; ok {
		return false
	}
	g := c.u.Graph(term)
	key := c.u.Key(term)
	anc := g.Ancestors(key)
	desc := g.Descendants(key)
	set := make(map[universe.Index]struct{}, len(anc)+len(desc))
	set[term] = struct{}{}
	for _, group := range [][]string{anc, desc} {
		for _, k := range group {
			if i, err := c.u.ToIndex(k); err == nil {
				set[i] = struct{}{}
			}
		}
	}
	c.blocked[term] = set
	return true
}

// EnsureSets populates an entry for every member of every set and returns
// how many entries were added.
func (c *ClosureCache) EnsureSets(sets []termset.TermSet) int {
	added := 0
	for _, s := range sets {
		for _, t := range s {
			if c.Ensure(t) {
				added++
			}
		}
	}
	return added
}

// Blocks reports whether candidate is a member of s or an ancestor or
// descendant of one.
func (c *ClosureCache) Blocks(s termset.TermSet, candidate universe.Index) bool {
	for _, t := range s {
		if c.Related(t, candidate) {
			return true
		}
	}
	return false
}

// Related reports whether a and b are the same term or one is an ancestor
// of the other. Both entries must have been ensured.
func (c *ClosureCache) Related(a, b universe.Index) bool {
	_, ok := c.blocked[a][b]
	return ok || a == b
}

func (c *ClosureCache) Len() int { return len(c.blocked) }
