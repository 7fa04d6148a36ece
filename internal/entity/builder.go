// Package entity turns each population member's raw per-vocabulary
// annotations into one flat term-set over the shared universe.
package entity

import (
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/ontology"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/termset"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/universe"
)

// Record holds one entity's raw annotations, one key list per vocabulary.
type Record struct {
	ID          string
	Annotations [][]string
	Line        int
}

// Entity is a Record after closure expansion. It is never mutated.
type Entity struct {
	ID    string
	Terms termset.TermSet
}

// Vocabulary pairs an ontology with the root placeholders that every
// annotated entity trivially carries.
type Vocabulary struct {
	Graph *ontology.Graph
	Roots []string
}

// BuildStats counts what was dropped while building.
type BuildStats struct {
	Entities    int
	Empty       int
	UnknownKeys int
	Incomplete  int
}

type Builder struct {
	universe *universe.Universe
	vocabs   []Vocabulary
	roots    []map[string]struct{}
	logger   *slog.Logger
}

// NewBuilder expects vocabs in the same order as the universe's graphs.
func NewBuilder(u *universe.Universe, vocabs ...Vocabulary) *Builder {
	roots := make([]map[string]struct{}, len(vocabs))
	for i, v := range vocabs {
		roots[i] = make(map[string]struct{}, len(v.Roots))
		for _, r := range v.Roots {
			roots[i][r] = struct{}{}
		}
	}
	return &Builder{
		universe: u,
		vocabs:   vocabs,
		roots:    roots,
		logger:   slog.Default().With("component", "entity-builder"),
	}
}

// Build expands every raw annotation to its ancestor closure, drops root
// placeholders and unions the vocabularies into one term-set. Keys unknown
// to their ontology are skipped and counted, as are keys a later vocabulary
// shares with an earlier one: the universe labels those with the earlier
// vocabulary, so they cannot stand for the later one.
func (b *Builder) Build(rec Record) (termset.TermSet, int) {
	unknown := 0
	indices := make([]universe.Index, 0, 32)
	for v, vocab := range b.vocabs {
		if v >= len(rec.Annotations) {
			break
		}
		raw := rec.Annotations[v]
		known := raw[:0:0]
		for _, key := range raw {
			if !vocab.Graph.Contains(key) {
				unknown++
				continue
			}
			known = append(known, key)
		}
		for key := range vocab.Graph.AncestorSet(vocab.Graph.Specifics(known)) {
			if _, isRoot := b.roots[v][key]; isRoot {
				continue
			}
			idx, err := b.universe.ToIndex(key)
			if err != nil || b.universe.Vocabulary(idx) != v {
				unknown++
				continue
			}
			indices = append(indices, idx)
		}
	}
	return termset.New(indices...), unknown
}

// BuildAll builds every record in order. Entities whose flat set is empty
// are kept; they contribute nothing to any count.
func (b *Builder) BuildAll(records []Record) ([]Entity, BuildStats) {
	stats := BuildStats{Entities: len(records)}
	out := make([]Entity, 0, len(records))
	for _, rec := range records {
		terms, unknown := b.Build(rec)
		stats.UnknownKeys += unknown
		if len(rec.Annotations) < len(b.vocabs) {
			stats.Incomplete++
		}
		if terms.Len() == 0 {
			stats.Empty++
		}
		out = append(out, Entity{ID: rec.ID, Terms: terms})
	}
	if stats.UnknownKeys > 0 {
		b.logger.Warn("skipped annotation keys outside this run's vocabularies",
			"count", stats.UnknownKeys,
		)
	}
	b.logger.Info("entity term-sets built",
		"entities", stats.Entities,
		"empty", stats.Empty,
		"incomplete", stats.Incomplete,
	)
	return out, stats
}
