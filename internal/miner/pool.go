package miner

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/termset"
	apperrors "github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// CountFunc counts one entity's contribution. It must only read shared state.
type CountFunc func(terms termset.TermSet) *Counter

// Pool fans per-entity counting out over a bounded worker group and sums the
// partial counters in entity order.
type Pool struct {
	workers   int
	batchSize int
	metrics   *metrics.Metrics
}

func NewPool(workers, batchSize int, m *metrics.Metrics) *Pool {
	if workers < 1 {
		workers = 1
	}
	if batchSize < 1 {
		batchSize = workers
	}
	return &Pool{workers: workers, batchSize: batchSize, metrics: m}
}

func (p *Pool) Workers() int { return p.workers }

// Count runs fn once per entity and returns the merged counter. Entities are
// dispatched in batches; each batch's partial counters are merged before the
// next batch starts, which bounds memory held in partials. A positive limit
// aborts with ErrCandidateCeiling as soon as the merged counter exceeds it.
func (p *Pool) Count(ctx context.Context, entities []termset.TermSet, fn CountFunc, limit int) (*Counter, error) {
	total := NewCounter(0)
	for start := 0; start < len(entities); start += p.batchSize {
		end := start + p.batchSize
		if end > len(entities) {
			end = len(entities)
		}
		batch := entities[start:end]
		partials := make([]*Counter, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.workers)
		for i := range batch {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				partials[i] = fn(batch[i])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, part := range partials {
			total.Merge(part)
			if limit > 0 && total.Len() > limit {
				return nil, fmt.Errorf("%w: more than %d distinct candidates", apperrors.ErrCandidateCeiling, limit)
			}
		}
		p.metrics.AddEntities(len(batch))
	}
	return total, nil
}
