package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/entity"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/miner"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/ontology"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/sink"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/internal/universe"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	runID := flag.String("run-id", "", "identifier attached to every emitted term-set (default: start time)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(apperrors.ExitCode(err))
	}
	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(apperrors.ExitConfig)
	}

	if *runID == "" {
		*runID = time.Now().UTC().Format("20060102T150405Z")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logger.WithRunID(ctx, *runID)

	err = run(ctx, cfg)
	stop()
	if err != nil {
		logger.FromContext(ctx).Error("mining run failed", "error", err)
		os.Exit(apperrors.ExitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.FromContext(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	checker := health.NewChecker()
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, reg, checker.Handler())
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(sctx)
		}()
	}

	function, err := ontology.LoadOBOFile(cfg.Ontologies.Function.Path)
	if err != nil {
		return fmt.Errorf("loading function ontology: %w", err)
	}
	phenotype, err := ontology.LoadOBOFile(cfg.Ontologies.Phenotype.Path)
	if err != nil {
		return fmt.Errorf("loading phenotype ontology: %w", err)
	}
	u := universe.Build(function, phenotype)

	records, err := entity.ReadAnnotationsFile(cfg.Annotations.Path)
	if err != nil {
		return fmt.Errorf("loading annotations: %w", err)
	}
	builder := entity.NewBuilder(u,
		entity.Vocabulary{Graph: function, Roots: cfg.Ontologies.Function.Roots},
		entity.Vocabulary{Graph: phenotype, Roots: cfg.Ontologies.Phenotype.Roots},
	)
	entities, _ := builder.BuildAll(records)

	out, err := openSinks(ctx, cfg, m, checker)
	if err != nil {
		return err
	}

	summary, runErr := miner.New(miner.OptionsFromConfig(cfg.Mining), u, out, m).Run(ctx, entities)
	closeErr := out.Close()
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing output: %w", closeErr)
	}
	log.Info("run complete",
		"entities", summary.Entities,
		"levels", len(summary.Levels),
		"frequent", summary.Frequent,
		"output", cfg.Output.Path,
	)
	return nil
}

// guardCheck reports a mirror by its circuit state.
func guardCheck(g *resilience.Guard) health.Check {
	return func(context.Context) health.ComponentHealth {
		switch st := g.State(); st {
		case resilience.StateClosed:
			return health.ComponentHealth{Status: health.StatusUp}
		case resilience.StateHalfOpen:
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + st.String()}
		default:
			return health.ComponentHealth{Status: health.StatusDown, Message: "circuit " + st.String()}
		}
	}
}

// openSinks builds the primary file sink and any enabled mirrors. A mirror
// that cannot be reached at startup is skipped.
func openSinks(ctx context.Context, cfg *config.Config, m *metrics.Metrics, checker *health.Checker) (sink.Sink, error) {
	file, err := sink.NewFile(cfg.Output.Path, cfg.Output.Compression, m)
	if err != nil {
		return nil, err
	}
	checker.Register("output", true, func(context.Context) health.ComponentHealth {
		if _, err := os.Stat(cfg.Output.Path); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	sinks := []sink.Sink{file}
	guardCfg := resilience.Config{}
	newGuard := func(name string) *resilience.Guard {
		g := resilience.NewGuard(name, guardCfg)
		checker.Register(name, false, guardCheck(g))
		return g
	}

	if cfg.Postgres.Enabled {
		client, err := postgres.New(ctx, cfg.Postgres)
		if err == nil {
			err = client.EnsureSchema(ctx)
			if err != nil {
				client.Close()
			}
		}
		if err != nil {
			slog.Warn("postgres mirror disabled", "error", err)
		} else {
			pg := sink.NewPostgres(client, newGuard("postgres"))
			sinks = append(sinks, sink.NewBestEffort(pg, m))
		}
	}
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis mirror disabled", "error", err)
		} else {
			rs := sink.NewRedis(client, newGuard("redis"), cfg.Redis.KeyPrefix, cfg.Redis.TTL)
			sinks = append(sinks, sink.NewBestEffort(rs, m))
		}
	}
	if cfg.Kafka.Enabled {
		ks := sink.NewKafka(kafka.NewProducer(cfg.Kafka), newGuard("kafka"))
		sinks = append(sinks, sink.NewBestEffort(ks, m))
	}
	return sink.NewMulti(sinks...), nil
}
