// Package miner enumerates frequent cross-vocabulary term-sets level by
// level. Level 2 counts every pair of terms drawn from different
// vocabularies; each later level extends the surviving sets by one term
// that is neither a member nor an ancestor or descendant of a member.
//
// The driver owns every mutable structure. Workers receive the current
// frontier and the closure cache as read-only snapshots and return partial
// counters that the driver sums.
package miner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/entity"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/sink"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/termset"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/universe"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/metrics"
)

const topLogged = 10

// Options mirrors config.MiningConfig.
type Options struct {
	MinSupport            int
	Workers               int
	BatchSize             int
	MaxCandidatesPerLevel int
	MaxLevel              int
	LevelTimeout          time.Duration
}

func OptionsFromConfig(cfg config.MiningConfig) Options {
	return Options{
		MinSupport:            cfg.MinSupport,
		Workers:               cfg.Workers,
		BatchSize:             cfg.BatchSize,
		MaxCandidatesPerLevel: cfg.MaxCandidatesPerLevel,
		MaxLevel:              cfg.MaxLevel,
		LevelTimeout:          cfg.LevelTimeout,
	}
}

// LevelSummary describes one finished level.
type LevelSummary struct {
	Level      int
	Candidates int
	Frequent   int
	Duration   time.Duration
}

type Summary struct {
	Entities int
	Levels   []LevelSummary
	Frequent int
}

type Miner struct {
	opts    Options
	u       *universe.Universe
	cache   *ClosureCache
	pool    *Pool
	sink    sink.Sink
	metrics *metrics.Metrics
}

func New(opts Options, u *universe.Universe, out sink.Sink, m *metrics.Metrics) *Miner {
	return &Miner{
		opts:    opts,
		u:       u,
		cache:   NewClosureCache(u),
		pool:    NewPool(opts.Workers, opts.BatchSize, m),
		sink:    out,
		metrics: m,
	}
}

// Cache exposes the closure cache built during Run.
func (m *Miner) Cache() *ClosureCache { return m.cache }

// Run mines entities until no term-set survives, emitting every surviving
// set to the sink as its level completes.
func (m *Miner) Run(ctx context.Context, entities []entity.Entity) (*Summary, error) {
	if m.opts.MinSupport < 2 {
		return nil, fmt.Errorf("%w: minimum support must be at least 2, got %d",
			apperrors.ErrInvalidThreshold, m.opts.MinSupport)
	}
	log := logger.FromContext(ctx).With("component", "miner")
	sets := make([]termset.TermSet, len(entities))
	for i, e := range entities {
		sets[i] = e.Terms
	}
	summary := &Summary{Entities: len(entities)}
	log.Info("mining started",
		"entities", len(entities),
		"terms", m.u.Len(),
		"min_support", m.opts.MinSupport,
		"workers", m.pool.Workers(),
	)

	level := 2
	current, err := m.runLevel(ctx, log, level, sets, m.countPairs, summary)
	if err != nil {
		return summary, err
	}
	for current.Len() > 0 {
		if m.opts.MaxLevel > 0 && level >= m.opts.MaxLevel {
			log.Info("maximum level reached, stopping", "level", level, "frontier", current.Len())
			break
		}
		level++
		frontier := current.Sets()
		current, err = m.runLevel(ctx, log, level, sets, m.extender(frontier), summary)
		if err != nil {
			return summary, err
		}
	}

	log.Info("mining finished",
		"levels", len(summary.Levels),
		"frequent", summary.Frequent,
		"closure_cache", m.cache.Len(),
	)
	return summary, nil
}

func (m *Miner) runLevel(ctx context.Context, log *slog.Logger, level int, sets []termset.TermSet,
	fn CountFunc, summary *Summary) (*Counter, error) {
	start := time.Now()
	m.metrics.StartLevel(level)

	levelCtx := ctx
	if m.opts.LevelTimeout > 0 {
		var cancel context.CancelFunc
		levelCtx, cancel = context.WithTimeout(ctx, m.opts.LevelTimeout)
		defer cancel()
	}
	counted, err := m.pool.Count(levelCtx, sets, fn, m.opts.MaxCandidatesPerLevel)
	if err != nil {
		return nil, fmt.Errorf("counting level %d: %w", level, err)
	}
	frequent := counted.Prune(m.opts.MinSupport)

	if err := m.emit(ctx, level, frequent); err != nil {
		return nil, err
	}
	added := m.cache.EnsureSets(frequent.Sets())
	m.metrics.SetClosureCacheSize(m.cache.Len())

	elapsed := time.Since(start)
	m.metrics.ObserveLevel(level, counted.Len(), frequent.Len(), elapsed)
	summary.Levels = append(summary.Levels, LevelSummary{
		Level:      level,
		Candidates: counted.Len(),
		Frequent:   frequent.Len(),
		Duration:   elapsed,
	})
	summary.Frequent += frequent.Len()

	log.Info("level complete",
		"level", level,
		"candidates", counted.Len(),
		"frequent", frequent.Len(),
		"closure_added", added,
		"duration", elapsed,
	)
	if log.Enabled(ctx, slog.LevelDebug) {
		for _, e := range frequent.Top(topLogged) {
			log.Debug("top term-set",
				"level", level,
				"count", e.Count,
				"terms", e.Set.Keys(m.u),
				"names", m.termNames(e.Set),
			)
		}
	}
	return frequent, nil
}

func (m *Miner) emit(ctx context.Context, level int, frequent *Counter) error {
	runID := logger.RunID(ctx)
	for _, e := range frequent.Entries() {
		p := sink.Pattern{
			RunID: runID,
			Level: level,
			Count: e.Count,
			Terms: e.Set.Keys(m.u),
		}
		if err := m.sink.Emit(ctx, p); err != nil {
			return fmt.Errorf("emitting level %d: %w", level, err)
		}
	}
	if err := m.sink.EndLevel(ctx, level); err != nil {
		return fmt.Errorf("finishing level %d: %w", level, err)
	}
	return nil
}

// termNames resolves each member to its ontology label.
func (m *Miner) termNames(s termset.TermSet) []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = m.u.Graph(t).TermName(m.u.Key(t))
	}
	return out
}

// countPairs marks every unordered pair of one entity's terms whose members
// come from different vocabularies.
func (m *Miner) countPairs(terms termset.TermSet) *Counter {
	c := NewCounter(0)
	for i, a := range terms {
		va := m.u.Vocabulary(a)
		for _, b := range terms[i+1:] {
			if m.u.Vocabulary(b) != va {
				c.Mark(termset.TermSet{a, b})
			}
		}
	}
	return c
}

// extender returns the per-entity task for the level after frontier: for
// every frontier set contained in the entity, add each of the entity's terms
// that the closure cache does not block.
func (m *Miner) extender(frontier []termset.TermSet) CountFunc {
	cache := m.cache
	return func(terms termset.TermSet) *Counter {
		c := NewCounter(0)
		for _, s := range frontier {
			if !s.SubsetOf(terms) {
				continue
			}
			for _, t := range terms {
				if cache.Blocks(s, t) {
					continue
				}
				c.Mark(s.With(t))
			}
		}
		return c
	}
}
