// Package termset implements the canonical integer term-set shared by the
// entity builder and the miner: a sorted, duplicate-free slice of universe
// indices. Two sets with the same members have the same Key regardless of
// how they were built.
package termset

import (
	"encoding/binary"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/universe"
)

type TermSet []universe.Index

// Key is a comparable encoding of a TermSet, usable as a map key.
type Key string

// New sorts and deduplicates indices into a TermSet. The input is not
// modified.
func New(indices ...universe.Index) TermSet {
	if len(indices) == 0 {
		return TermSet{}
	}
	s := make(TermSet, len(indices))
	copy(s, indices)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func (s TermSet) Len() int { return len(s) }

func (s TermSet) Contains(v universe.Index) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	return i < len(s) && s[i] == v
}

// SubsetOf reports whether every member of s is in other.
func (s TermSet) SubsetOf(other TermSet) bool {
	if len(s) > len(other) {
		return false
	}
	j := 0
	for _, v := range s {
		for j < len(other) && other[j] < v {
			j++
		}
		if j == len(other) || other[j] != v {
			return false
		}
		j++
	}
	return true
}

// With returns a new set holding s plus v.
func (s TermSet) With(v universe.Index) TermSet {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	if i < len(s) && s[i] == v {
		return s
	}
	out := make(TermSet, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, v)
	return append(out, s[i:]...)
}

func (s TermSet) Key() Key {
	buf := make([]byte, 4*len(s))
	for i, v := range s {
		binary.BigEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return Key(buf)
}

// Keys translates every member through u, in index order.
func (s TermSet) Keys(u *universe.Universe) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = u.Key(v)
	}
	return out
}
