// Package ontology holds an is-a term hierarchy loaded from OBO records and
// answers ancestor and descendant closure queries over it.
package ontology

import (
	"fmt"
	"log/slog"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/errors"
)

// Record is one declared term as read from a source.
type Record struct {
	ID         string
	Name       string
	Namespace  string
	IsA        []string
	IsObsolete bool
	Line       int
}

// Term is a live node of the graph. Parents only references live terms.
type Term struct {
	ID        string
	Name      string
	Namespace string
	Parents   []string
	Children  []string
}

// LoadStats reports the data-quality signals seen while building a graph.
type LoadStats struct {
	Records    int
	Duplicates int
	Obsolete   int
	Dangling   int
	Cyclic     int
}

// Graph is immutable once built; every query is safe for concurrent use.
type Graph struct {
	name   string
	order  []string
	terms  map[string]*Term
	cyclic map[string]struct{}
	stats  LoadStats
}

// NewGraph builds a graph from records in declaration order. A record with
// an empty id aborts the build. Duplicate ids keep their first position and
// the last declaration's content. Obsolete terms and every is_a edge that
// points at an undeclared or obsolete term are dropped.
func NewGraph(name string, records []Record) (*Graph, error) {
	logger := slog.Default().With("component", "ontology", "ontology", name)
	g := &Graph{
		name:   name,
		terms:  make(map[string]*Term, len(records)),
		cyclic: make(map[string]struct{}),
	}
	g.stats.Records = len(records)

	declared := make(map[string]Record, len(records))
	declOrder := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			return nil, apperrors.NewRecord(apperrors.ErrMalformedRecord, name, rec.Line, "term record has no id")
		}
		if prev, exists := declared[rec.ID]; exists {
			g.stats.Duplicates++
			logger.Warn("duplicate term declaration, keeping last",
				"term", rec.ID,
				"first_line", prev.Line,
				"line", rec.Line,
				"error", apperrors.ErrDuplicateTerm,
			)
		} else {
			declOrder = append(declOrder, rec.ID)
		}
		declared[rec.ID] = rec
	}

	for _, id := range declOrder {
		rec := declared[id]
		if rec.IsObsolete {
			g.stats.Obsolete++
			continue
		}
		g.order = append(g.order, id)
		g.terms[id] = &Term{ID: id, Name: rec.Name, Namespace: rec.Namespace}
	}

	for _, id := range g.order {
		term := g.terms[id]
		seen := make(map[string]struct{}, len(declared[id].IsA))
		for _, parentID := range declared[id].IsA {
			if _, dup := seen[parentID]; dup {
				continue
			}
			seen[parentID] = struct{}{}
			parent, ok := g.terms[parentID]
			if !ok {
				g.stats.Dangling++
				continue
			}
			term.Parents = append(term.Parents, parentID)
			parent.Children = append(parent.Children, id)
		}
	}

	g.markCycles()
	g.stats.Cyclic = len(g.cyclic)
	if g.stats.Dangling > 0 {
		logger.Warn("dropped dangling is_a references", "count", g.stats.Dangling)
	}
	if len(g.cyclic) > 0 {
		logger.Warn("is_a cycles detected, closures stay bounded but are unreliable",
			"terms", len(g.cyclic),
			"sample", g.CyclicTerms()[0],
		)
	}
	logger.Info("ontology built",
		"terms", len(g.order),
		"obsolete_removed", g.stats.Obsolete,
		"duplicates", g.stats.Duplicates,
	)
	return g, nil
}

func (g *Graph) Name() string { return g.name }

func (g *Graph) Len() int { return len(g.order) }

// Terms returns live term ids in declaration order.
func (g *Graph) Terms() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

func (g *Graph) Contains(id string) bool {
	_, ok := g.terms[id]
	return ok
}

func (g *Graph) Term(id string) (Term, bool) {
	t, ok := g.terms[id]
	if !ok {
		return Term{}, false
	}
	return *t, true
}

// TermName returns the human-readable name of id, or id itself.
func (g *Graph) TermName(id string) string {
	if t, ok := g.terms[id]; ok && t.Name != "" {
		return t.Name
	}
	return id
}

func (g *Graph) Parents(id string) []string {
	t, ok := g.terms[id]
	if !ok {
		return nil
	}
	return append([]string(nil), t.Parents...)
}

func (g *Graph) Stats() LoadStats { return g.stats }

// Ancestors returns id plus every term reachable over is_a edges, in
// breadth-first order. Unknown ids yield nil.
func (g *Graph) Ancestors(id string) []string {
	return g.walk(id, func(t *Term) []string { return t.Parents })
}

// Descendants returns id plus every term reachable over inverse is_a edges.
func (g *Graph) Descendants(id string) []string {
	return g.walk(id, func(t *Term) []string { return t.Children })
}

func (g *Graph) walk(id string, next func(*Term) []string) []string {
	if _, ok := g.terms[id]; !ok {
		return nil
	}
	visited := map[string]struct{}{id: {}}
	out := []string{id}
	for head := 0; head < len(out); head++ {
		for _, n := range next(g.terms[out[head]]) {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

// AncestorSet unions the ancestor closures of ids, skipping unknown ids.
func (g *Graph) AncestorSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, id := range ids {
		for _, a := range g.Ancestors(id) {
			set[a] = struct{}{}
		}
	}
	return set
}

// Specifics drops every id that is a strict ancestor of another id in the
// input. Ids on a common is_a cycle are ancestors of each other and are all
// kept. Unknown ids are kept as-is.
func (g *Graph) Specifics(ids []string) []string {
	ancestors := make(map[string]map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, done := ancestors[id]; done {
			continue
		}
		set := make(map[string]struct{})
		for _, a := range g.Ancestors(id) {
			set[a] = struct{}{}
		}
		ancestors[id] = set
	}
	general := func(id string) bool {
		for other, set := range ancestors {
			if other == id {
				continue
			}
			if _, above := set[id]; !above {
				continue
			}
			if _, mutual := ancestors[id][other]; !mutual {
				return true
			}
		}
		return false
	}
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if general(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// IsCyclic reports whether id lies on an is_a cycle.
func (g *Graph) IsCyclic(id string) bool {
	_, ok := g.cyclic[id]
	return ok
}

func (g *Graph) CyclicTerms() []string {
	out := make([]string, 0, len(g.cyclic))
	for id := range g.cyclic {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// markCycles flags every term inside a strongly connected component of
// size > 1 (or with a self edge) using an iterative Tarjan walk.
func (g *Graph) markCycles() {
	index := make(map[string]int, len(g.order))
	low := make(map[string]int, len(g.order))
	onStack := make(map[string]bool)
	var stack []string
	next := 0

	type frame struct {
		id   string
		edge int
	}
	for _, root := range g.order {
		if _, done := index[root]; done {
			continue
		}
		call := []frame{{id: root}}
		index[root], low[root] = next, next
		next++
		stack = append(stack, root)
		onStack[root] = true

		for len(call) > 0 {
			top := &call[len(call)-1]
			parents := g.terms[top.id].Parents
			if top.edge < len(parents) {
				p := parents[top.edge]
				top.edge++
				if _, seen := index[p]; !seen {
					index[p], low[p] = next, next
					next++
					stack = append(stack, p)
					onStack[p] = true
					call = append(call, frame{id: p})
				} else if onStack[p] && index[p] < low[top.id] {
					low[top.id] = index[p]
				}
				continue
			}
			id := top.id
			call = call[:len(call)-1]
			if len(call) > 0 {
				parent := call[len(call)-1].id
				if low[id] < low[parent] {
					low[parent] = low[id]
				}
			}
			if low[id] != index[id] {
				continue
			}
			var component []string
			for {
				n := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[n] = false
				component = append(component, n)
				if n == id {
					break
				}
			}
			if len(component) > 1 || g.selfLoop(id) {
				for _, n := range component {
					g.cyclic[n] = struct{}{}
				}
			}
		}
	}
}

func (g *Graph) selfLoop(id string) bool {
	for _, p := range g.terms[id].Parents {
		if p == id {
			return true
		}
	}
	return false
}

func (g *Graph) String() string {
	return fmt.Sprintf("ontology(%s, %d terms)", g.name, len(g.order))
}
