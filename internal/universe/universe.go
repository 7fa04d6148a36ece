// Package universe assigns one dense integer index to every term across a
// fixed, ordered list of ontologies so that term-sets drawn from different
// vocabularies can be handled as plain integer sets.
package universe

import (
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/ontology"
	apperrors "github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/errors"
)

// Index is a term's position in the universe.
type Index = int32

// Universe is immutable after Build.
type Universe struct {
	keys   []string
	vocab  []uint8
	lookup map[string]Index
	graphs []*ontology.Graph
}

// Build indexes every live term of each graph in graph order, then in each
// graph's own declaration order. A key already claimed by an earlier graph
// keeps its first index.
func Build(graphs ...*ontology.Graph) *Universe {
	total := 0
	for _, g := range graphs {
		total += g.Len()
	}
	u := &Universe{
		keys:   make([]string, 0, total),
		vocab:  make([]uint8, 0, total),
		lookup: make(map[string]Index, total),
		graphs: graphs,
	}
	logger := slog.Default().With("component", "universe")
	for v, g := range graphs {
		shared := 0
		for _, key := range g.Terms() {
			if _, exists := u.lookup[key]; exists {
				shared++
				continue
			}
			u.lookup[key] = Index(len(u.keys))
			u.keys = append(u.keys, key)
			u.vocab = append(u.vocab, uint8(v))
		}
		if shared > 0 {
			logger.Warn("terms shared between vocabularies keep their first index",
				"ontology", g.Name(),
				"count", shared,
				"error", apperrors.ErrDuplicateTerm,
			)
		}
	}
	logger.Info("term universe built", "terms", len(u.keys), "vocabularies", len(graphs))
	return u
}

func (u *Universe) Len() int { return len(u.keys) }

// ToIndex resolves a term key. Unknown keys wrap ErrUnknownTerm.
func (u *Universe) ToIndex(key string) (Index, error) {
	i, ok := u.lookup[key]
	if !ok {
		return 0, apperrors.UnknownTerm(key)
	}
	return i, nil
}

// ToKey resolves an index back to its term key.
func (u *Universe) ToKey(i Index) (string, error) {
	if i < 0 || int(i) >= len(u.keys) {
		return "", apperrors.UnknownTerm(i)
	}
	return u.keys[i], nil
}

// Key is ToKey for indices already known to be valid.
func (u *Universe) Key(i Index) string {
	return u.keys[i]
}

// Vocabulary returns the ordinal of the graph that contributed i.
func (u *Universe) Vocabulary(i Index) int {
	return int(u.vocab[i])
}

// Graph returns the ontology that contributed i.
func (u *Universe) Graph(i Index) *ontology.Graph {
	return u.graphs[u.vocab[i]]
}

func (u *Universe) Vocabularies() int { return len(u.graphs) }

// Resolve maps keys to indices, skipping keys outside the universe. The
// second result counts the skipped keys.
func (u *Universe) Resolve(keys []string) ([]Index, int) {
	out := make([]Index, 0, len(keys))
	missing := 0
	for _, k := range keys {
		i, ok := u.lookup[k]
		if !ok {
			missing++
			continue
		}
		out = append(out, i)
	}
	return out, missing
}
