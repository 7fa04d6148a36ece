package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/resilience"
)

// LevelStore persists one level of rows at a time.
type LevelStore interface {
	InsertLevel(ctx context.Context, runID string, level int, rows []postgres.Row) error
	Close() error
}

// SortedSetWriter replaces a sorted set wholesale.
type SortedSetWriter interface {
	ReplaceSortedSet(ctx context.Context, key string, members []redis.Member, ttl time.Duration) error
	Close() error
}

// BatchPublisher publishes a batch of events.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
	Close() error
}

// buffer collects a level's patterns until EndLevel.
type buffer struct {
	runID    string
	patterns []Pattern
}

func (b *buffer) add(p Pattern) {
	if b.runID == "" {
		b.runID = p.RunID
	}
	b.patterns = append(b.patterns, p)
}

func (b *buffer) take() []Pattern {
	out := b.patterns
	b.patterns = nil
	return out
}

func deliver(ctx context.Context, guard *resilience.Guard, name string, level int, fn func(context.Context) error) error {
	if err := guard.Do(ctx, fn); err != nil {
		return fmt.Errorf("%w: %s level %d: %w", apperrors.ErrSinkUnavailable, name, level, err)
	}
	return nil
}

// Postgres writes each level into frequent_termsets in one transaction.
type Postgres struct {
	store LevelStore
	guard *resilience.Guard
	buffer
}

func NewPostgres(store LevelStore, guard *resilience.Guard) *Postgres {
	return &Postgres{store: store, guard: guard}
}

func (s *Postgres) Name() string { return "postgres" }

func (s *Postgres) Emit(_ context.Context, p Pattern) error {
	s.add(p)
	return nil
}

func (s *Postgres) EndLevel(ctx context.Context, level int) error {
	patterns := s.take()
	if len(patterns) == 0 {
		return nil
	}
	rows := make([]postgres.Row, len(patterns))
	for i, p := range patterns {
		rows[i] = postgres.Row{Support: p.Count, Terms: p.Terms}
	}
	return deliver(ctx, s.guard, s.Name(), level, func(ctx context.Context) error {
		return s.store.InsertLevel(ctx, s.runID, level, rows)
	})
}

func (s *Postgres) Close() error { return s.store.Close() }

// Redis publishes each level as the sorted set <prefix>:<run>:L<level>,
// scored by support, one member per term-set.
type Redis struct {
	client SortedSetWriter
	guard  *resilience.Guard
	prefix string
	ttl    time.Duration
	buffer
}

func NewRedis(client SortedSetWriter, guard *resilience.Guard, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, guard: guard, prefix: prefix, ttl: ttl}
}

func (s *Redis) Name() string { return "redis" }

func (s *Redis) Emit(_ context.Context, p Pattern) error {
	s.add(p)
	return nil
}

// LevelKey names the sorted set holding one level of a run.
func (s *Redis) LevelKey(runID string, level int) string {
	return fmt.Sprintf("%s:%s:L%d", s.prefix, runID, level)
}

func (s *Redis) EndLevel(ctx context.Context, level int) error {
	patterns := s.take()
	if len(patterns) == 0 {
		return nil
	}
	members := make([]redis.Member, len(patterns))
	for i, p := range patterns {
		members[i] = redis.Member{Name: strings.Join(p.Terms, "\t"), Score: float64(p.Count)}
	}
	key := s.LevelKey(s.runID, level)
	return deliver(ctx, s.guard, s.Name(), level, func(ctx context.Context) error {
		return s.client.ReplaceSortedSet(ctx, key, members, s.ttl)
	})
}

func (s *Redis) Close() error { return s.client.Close() }

// Kafka publishes each level as a batch of Pattern events keyed by run id.
type Kafka struct {
	producer BatchPublisher
	guard    *resilience.Guard
	buffer
}

func NewKafka(producer BatchPublisher, guard *resilience.Guard) *Kafka {
	return &Kafka{producer: producer, guard: guard}
}

func (s *Kafka) Name() string { return "kafka" }

func (s *Kafka) Emit(_ context.Context, p Pattern) error {
	s.add(p)
	return nil
}

func (s *Kafka) EndLevel(ctx context.Context, level int) error {
	patterns := s.take()
	if len(patterns) == 0 {
		return nil
	}
	events := make([]kafka.Event, len(patterns))
	for i, p := range patterns {
		events[i] = kafka.Event{Key: p.RunID, Value: p}
	}
	return deliver(ctx, s.guard, s.Name(), level, func(ctx context.Context) error {
		return s.producer.PublishBatch(ctx, events)
	})
}

func (s *Kafka) Close() error { return s.producer.Close() }
