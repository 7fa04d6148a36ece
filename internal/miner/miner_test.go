package miner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/entity"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/ontology"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/sink"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/termset"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/universe"
	apperrors "github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/errors"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type memorySink struct {
	patterns []sink.Pattern
	ended    []int
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Emit(_ context.Context, p sink.Pattern) error {
	s.patterns = append(s.patterns, p)
	return nil
}

func (s *memorySink) EndLevel(_ context.Context, level int) error {
	s.ended = append(s.ended, level)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) lines() []string {
	out := make([]string, len(s.patterns))
	for i, p := range s.patterns {
		out[i] = fmt.Sprintf("%d:%d:%s", p.Level, p.Count, strings.Join(p.Terms, ","))
	}
	return out
}

type world struct {
	u       *universe.Universe
	builder *entity.Builder
	fn, ph  *ontology.Graph
}

// newWorld builds two small vocabularies:
//
//	function:  GO:root > GO:a0 > GO:a1,  GO:root > GO:f1, GO:f2 > GO:f3
//	phenotype: HP:root > HP:b0 > HP:b1,  HP:root > HP:p1, HP:p2
func newWorld(t testing.TB) *world {
	t.Helper()
	fn, err := ontology.NewGraph("function", []ontology.Record{
		{ID: "GO:root"},
		{ID: "GO:a0", IsA: []string{"GO:root"}},
		{ID: "GO:a1", Name: "nucleus", IsA: []string{"GO:a0"}},
		{ID: "GO:f1", IsA: []string{"GO:root"}},
		{ID: "GO:f2", IsA: []string{"GO:root"}},
		{ID: "GO:f3", IsA: []string{"GO:f2"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ph, err := ontology.NewGraph("phenotype", []ontology.Record{
		{ID: "HP:root"},
		{ID: "HP:b0", IsA: []string{"HP:root"}},
		{ID: "HP:b1", Name: "seizure", IsA: []string{"HP:b0"}},
		{ID: "HP:p1", IsA: []string{"HP:root"}},
		{ID: "HP:p2", IsA: []string{"HP:root"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	u := universe.Build(fn, ph)
	return &world{
		u:  u,
		fn: fn,
		ph: ph,
		builder: entity.NewBuilder(u,
			entity.Vocabulary{Graph: fn, Roots: []string{"GO:root"}},
			entity.Vocabulary{Graph: ph, Roots: []string{"HP:root"}},
		),
	}
}

func (w *world) entities(records ...entity.Record) []entity.Entity {
	out, _ := w.builder.BuildAll(records)
	return out
}

func annotated(id string, functions, phenotypes []string) entity.Record {
	return entity.Record{ID: id, Annotations: [][]string{functions, phenotypes}}
}

func (w *world) mine(t testing.TB, opts Options, entities []entity.Entity) (*memorySink, *Summary, *Miner) {
	t.Helper()
	out := &memorySink{}
	m := New(opts, w.u, out, nil)
	summary, err := m.Run(context.Background(), entities)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out, summary, m
}

func opts(minSupport, workers int) Options {
	return Options{MinSupport: minSupport, Workers: workers, BatchSize: 3}
}

// randomPopulation draws entities from every non-root term with a fixed seed.
func (w *world) randomPopulation(n int, seed int64) []entity.Entity {
	rng := rand.New(rand.NewSource(seed))
	fnTerms := []string{"GO:a0", "GO:a1", "GO:f1", "GO:f2", "GO:f3"}
	phTerms := []string{"HP:b0", "HP:b1", "HP:p1", "HP:p2"}
	pick := func(pool []string) []string {
		var out []string
		for _, t := range pool {
			if rng.Intn(2) == 0 {
				out = append(out, t)
			}
		}
		return out
	}
	records := make([]entity.Record, n)
	for i := range records {
		records[i] = annotated(fmt.Sprintf("g%d", i), pick(fnTerms), pick(phTerms))
	}
	return w.entities(records...)
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestDebugLogNamesTopTermSets(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	w := newWorld(t)
	ents := w.entities(
		annotated("g1", []string{"GO:a1"}, []string{"HP:b1"}),
		annotated("g2", []string{"GO:a1"}, []string{"HP:b1"}),
	)
	w.mine(t, opts(2, 1), ents)

	want := `"names":["nucleus","seizure"]`
	if !strings.Contains(buf.String(), want) {
		t.Errorf("debug log missing %s:\n%s", want, buf.String())
	}
	if !strings.Contains(buf.String(), `"names":["GO:a0","seizure"]`) {
		t.Error("unnamed terms should fall back to their key")
	}
}

func TestScenarioAncestorPairs(t *testing.T) {
	w := newWorld(t)
	ents := w.entities(
		annotated("g1", []string{"GO:a1"}, []string{"HP:b1"}),
		annotated("g2", []string{"GO:a1"}, []string{"HP:b1"}),
	)
	out, summary, _ := w.mine(t, opts(2, 2), ents)

	got := out.lines()
	sort.Strings(got)
	want := []string{
		"2:2:GO:a0,HP:b0",
		"2:2:GO:a0,HP:b1",
		"2:2:GO:a1,HP:b0",
		"2:2:GO:a1,HP:b1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("patterns = %v, want %v", got, want)
	}
	if len(summary.Levels) != 2 || summary.Levels[1].Frequent != 0 {
		t.Errorf("levels = %+v, want level 3 to find nothing", summary.Levels)
	}
	if !reflect.DeepEqual(out.ended, []int{2, 3}) {
		t.Errorf("EndLevel calls = %v, want [2 3]", out.ended)
	}
}

func TestScenarioThresholdAbovePopulation(t *testing.T) {
	w := newWorld(t)
	ents := w.entities(
		annotated("g1", []string{"GO:a1"}, []string{"HP:b1"}),
		annotated("g2", []string{"GO:a1"}, []string{"HP:b1"}),
	)
	out, summary, _ := w.mine(t, opts(3, 4), ents)
	if len(out.patterns) != 0 {
		t.Errorf("patterns = %v, want none", out.lines())
	}
	if summary.Frequent != 0 || len(summary.Levels) != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestScenarioEmptyEntity(t *testing.T) {
	w := newWorld(t)
	ents := w.entities(
		annotated("empty", nil, nil),
		annotated("rootonly", []string{"GO:root"}, []string{"HP:root"}),
		annotated("g1", []string{"GO:f1"}, []string{"HP:p1"}),
		annotated("g2", []string{"GO:f1"}, []string{"HP:p1"}),
	)
	out, summary, _ := w.mine(t, opts(2, 3), ents)
	if got := out.lines(); !reflect.DeepEqual(got, []string{"2:2:GO:f1,HP:p1"}) {
		t.Errorf("patterns = %v", got)
	}
	if summary.Entities != 4 {
		t.Errorf("Entities = %d, want 4", summary.Entities)
	}
}

func TestLevelThreeCountsEachEntityOnce(t *testing.T) {
	w := newWorld(t)
	var records []entity.Record
	for i := 0; i < 3; i++ {
		records = append(records, annotated(fmt.Sprintf("g%d", i), []string{"GO:f1", "GO:f2"}, []string{"HP:p1"}))
	}
	out, _, _ := w.mine(t, opts(3, 2), w.entities(records...))
	want := []string{
		"2:3:GO:f1,HP:p1",
		"2:3:GO:f2,HP:p1",
		"3:3:GO:f1,GO:f2,HP:p1",
	}
	if got := out.lines(); !reflect.DeepEqual(got, want) {
		t.Errorf("patterns = %v, want %v", got, want)
	}
}

func TestSameVocabularyPairsAreNotCounted(t *testing.T) {
	w := newWorld(t)
	ents := w.entities(
		annotated("g1", []string{"GO:f1", "GO:f2"}, nil),
		annotated("g2", []string{"GO:f1", "GO:f2"}, nil),
	)
	out, _, _ := w.mine(t, opts(2, 1), ents)
	if len(out.patterns) != 0 {
		t.Errorf("patterns = %v, want none", out.lines())
	}
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestCountsMatchSupportDefinition(t *testing.T) {
	w := newWorld(t)
	ents := w.randomPopulation(60, 7)
	out, _, _ := w.mine(t, opts(6, 4), ents)
	if len(out.patterns) == 0 {
		t.Fatal("fixture produced no patterns")
	}
	for _, p := range out.patterns {
		idx, missing := w.u.Resolve(p.Terms)
		if missing != 0 {
			t.Fatalf("pattern has unknown terms: %v", p.Terms)
		}
		set := termset.New(idx...)
		support := 0
		for _, e := range ents {
			if set.SubsetOf(e.Terms) {
				support++
			}
		}
		if support != p.Count {
			t.Errorf("%v: count %d, brute-force support %d", p.Terms, p.Count, support)
		}
		if p.Count < 6 {
			t.Errorf("%v emitted below threshold: %d", p.Terms, p.Count)
		}
	}
}

func TestSupportIsMonotonicAcrossLevels(t *testing.T) {
	w := newWorld(t)
	out, _, _ := w.mine(t, opts(5, 4), w.randomPopulation(80, 11))

	counts := make(map[string]int)
	for _, p := range out.patterns {
		counts[strings.Join(p.Terms, ",")] = p.Count
	}
	checked := 0
	for _, p := range out.patterns {
		if p.Level < 3 {
			continue
		}
		for drop := range p.Terms {
			sub := make([]string, 0, len(p.Terms)-1)
			sub = append(sub, p.Terms[:drop]...)
			sub = append(sub, p.Terms[drop+1:]...)
			if c, ok := counts[strings.Join(sub, ",")]; ok {
				checked++
				if p.Count > c {
					t.Errorf("%v count %d exceeds subset %v count %d", p.Terms, p.Count, sub, c)
				}
			}
		}
	}
	if checked == 0 {
		t.Fatal("fixture produced no level-3 patterns to check")
	}
}

func TestEmittedSetsHaveNoRelatedMembers(t *testing.T) {
	w := newWorld(t)
	out, _, m := w.mine(t, opts(4, 4), w.randomPopulation(80, 3))
	for _, p := range out.patterns {
		if p.Level < 3 {
			continue
		}
		idx, _ := w.u.Resolve(p.Terms)
		for i := range idx {
			for j := i + 1; j < len(idx); j++ {
				if m.Cache().Related(idx[i], idx[j]) {
					t.Errorf("%v holds related terms %s and %s", p.Terms, p.Terms[i], p.Terms[j])
				}
			}
		}
	}
}

func TestOutputIndependentOfWorkerCount(t *testing.T) {
	w := newWorld(t)
	ents := w.randomPopulation(50, 42)
	base, _, _ := w.mine(t, Options{MinSupport: 4, Workers: 1, BatchSize: 1}, ents)
	for _, o := range []Options{
		{MinSupport: 4, Workers: 2, BatchSize: 7},
		{MinSupport: 4, Workers: 8, BatchSize: 64},
		{MinSupport: 4, Workers: 48, BatchSize: 4096},
	} {
		got, _, _ := w.mine(t, o, ents)
		if !reflect.DeepEqual(got.lines(), base.lines()) {
			t.Errorf("workers=%d batch=%d changed the output", o.Workers, o.BatchSize)
		}
	}
	again, _, _ := w.mine(t, Options{MinSupport: 4, Workers: 1, BatchSize: 1}, ents)
	if !reflect.DeepEqual(again.lines(), base.lines()) {
		t.Error("second run differs from the first")
	}
}

// ---------------------------------------------------------------------------
// Limits and failures
// ---------------------------------------------------------------------------

func TestRejectsLowThreshold(t *testing.T) {
	w := newWorld(t)
	for _, min := range []int{0, 1} {
		m := New(Options{MinSupport: min, Workers: 1}, w.u, &memorySink{}, nil)
		_, err := m.Run(context.Background(), nil)
		if !errors.Is(err, apperrors.ErrInvalidThreshold) {
			t.Errorf("MinSupport=%d: err = %v, want ErrInvalidThreshold", min, err)
		}
	}
}

func TestCandidateCeiling(t *testing.T) {
	w := newWorld(t)
	o := opts(2, 2)
	o.MaxCandidatesPerLevel = 2
	m := New(o, w.u, &memorySink{}, nil)
	_, err := m.Run(context.Background(), w.randomPopulation(20, 1))
	if !errors.Is(err, apperrors.ErrCandidateCeiling) {
		t.Fatalf("err = %v, want ErrCandidateCeiling", err)
	}
}

func TestMaxLevelStopsEarly(t *testing.T) {
	w := newWorld(t)
	o := opts(3, 2)
	o.MaxLevel = 2
	out, summary, _ := w.mine(t, o, w.randomPopulation(40, 5))
	if len(summary.Levels) != 1 {
		t.Errorf("levels = %d, want 1", len(summary.Levels))
	}
	for _, p := range out.patterns {
		if p.Level != 2 {
			t.Fatalf("pattern at level %d with MaxLevel=2", p.Level)
		}
	}
}

func TestCancelledContext(t *testing.T) {
	w := newWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := New(opts(2, 2), w.u, &memorySink{}, nil)
	_, err := m.Run(ctx, w.randomPopulation(10, 9))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// ---------------------------------------------------------------------------
// Benchmarks
// ---------------------------------------------------------------------------

// BenchmarkRun measures a full mining pass over 2 000 random entities.
func BenchmarkRun(b *testing.B) {
	w := newWorld(b)
	ents := w.randomPopulation(2000, 1)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := New(Options{MinSupport: 100, Workers: 8, BatchSize: 256}, w.u, &memorySink{}, nil)
		if _, err := m.Run(context.Background(), ents); err != nil {
			b.Fatal(err)
		}
	}
}
