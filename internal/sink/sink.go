// Package sink delivers frequent term-sets as each mining level finishes.
// The compressed file sink is the primary record; Postgres, Redis and Kafka
// sinks are optional mirrors wrapped in BestEffort.
package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/metrics"
)

// Pattern is one frequent term-set. Terms are in universe index order.
type Pattern struct {
	RunID string   `json:"run_id,omitempty"`
	Level int      `json:"level"`
	Count int      `json:"count"`
	Terms []string `json:"terms"`
}

// Sink receives patterns level by level. EndLevel makes everything emitted
// for the level durable or visible downstream.
type Sink interface {
	Name() string
	Emit(ctx context.Context, p Pattern) error
	EndLevel(ctx context.Context, level int) error
	Close() error
}

// Multi fans every call out to all sinks in order and joins their errors.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Emit(ctx context.Context, p Pattern) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) EndLevel(ctx context.Context, level int) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.EndLevel(ctx, level); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestEffort logs and counts a sink's failures instead of returning them,
// so an unavailable mirror never stops a mining run.
type BestEffort struct {
	inner   Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
	pending int
}

func NewBestEffort(inner Sink, m *metrics.Metrics) *BestEffort {
	return &BestEffort{
		inner:   inner,
		metrics: m,
		logger:  slog.Default().With("component", "sink", "sink", inner.Name()),
	}
}

func (b *BestEffort) Name() string { return b.inner.Name() }

func (b *BestEffort) Emit(ctx context.Context, p Pattern) error {
	if err := b.inner.Emit(ctx, p); err != nil {
		b.metrics.SinkFailure(b.inner.Name())
		b.logger.Warn("emit failed", "level", p.Level, "error", err)
		return nil
	}
	b.pending++
	return nil
}

func (b *BestEffort) EndLevel(ctx context.Context, level int) error {
	n := b.pending
	b.pending = 0
	if err := b.inner.EndLevel(ctx, level); err != nil {
		b.metrics.SinkFailure(b.inner.Name())
		b.logger.Error("level delivery failed, continuing without it",
			"level", level,
			"patterns", n,
			"error", err,
		)
		return nil
	}
	b.metrics.SinkWrite(b.inner.Name(), n)
	return nil
}

func (b *BestEffort) Close() error {
	if err := b.inner.Close(); err != nil {
		b.logger.Warn("close failed", "error", err)
	}
	return nil
}
