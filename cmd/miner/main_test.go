package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/resilience"
)

const functionOBO = `format-version: 1.2

[Term]
id: GO:0008150
name: biological_process

[Term]
id: GO:1
is_a: GO:0008150

[Term]
id: GO:2
is_a: GO:0008150
`

const phenotypeOBO = `format-version: 1.2

[Term]
id: HP:0000001
name: All

[Term]
id: HP:1
is_a: HP:0000001

[Term]
id: HP:2
is_a: HP:1 ! child of HP:1
`

const annotations = "# gene\tfunction\tphenotype\n" +
	"g1\tGO:1\tHP:2\n" +
	"g2\tGO:1\tHP:2\n" +
	"g3\tGO:2\tHP:1\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Mining.MinSupport = 2
	cfg.Mining.Workers = 2
	cfg.Mining.BatchSize = 2
	cfg.Ontologies.Function.Path = writeFile(t, dir, "go.obo", functionOBO)
	cfg.Ontologies.Function.Roots = []string{"GO:0008150"}
	cfg.Ontologies.Phenotype.Path = writeFile(t, dir, "hp.obo", phenotypeOBO)
	cfg.Ontologies.Phenotype.Roots = []string{"HP:0000001"}
	cfg.Annotations.Path = writeFile(t, dir, "annotations.tsv", annotations)
	cfg.Output.Path = filepath.Join(dir, "results.tsv")
	cfg.Output.Compression = "none"
	return cfg
}

func TestRunWritesFrequentSets(t *testing.T) {
	cfg := testConfig(t)
	ctx := logger.WithRunID(context.Background(), "test")
	if err := run(ctx, cfg); err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(cfg.Output.Path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	sort.Strings(lines)
	want := []string{
		"2\tGO:1\tHP:1",
		"2\tGO:1\tHP:2",
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("output =\n%s\nwant\n%s", strings.Join(lines, "\n"), strings.Join(want, "\n"))
	}
}

func TestRunMissingOntology(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ontologies.Phenotype.Path = filepath.Join(t.TempDir(), "absent.obo")
	err := run(context.Background(), cfg)
	if apperrors.ExitCode(err) != apperrors.ExitInput {
		t.Fatalf("err = %v, exit code %d", err, apperrors.ExitCode(err))
	}
}

func TestRunCancelled(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := run(ctx, cfg)
	if !errors.Is(err, context.Canceled) || apperrors.ExitCode(err) != apperrors.ExitAborted {
		t.Fatalf("err = %v", err)
	}
}

func TestGuardCheck(t *testing.T) {
	g := resilience.NewGuard("redis", resilience.Config{MaxAttempts: 1, FailureThreshold: 1})
	check := guardCheck(g)
	if got := check(context.Background()).Status; got != health.StatusUp {
		t.Errorf("fresh guard = %s", got)
	}
	g.Do(context.Background(), func(context.Context) error { return errors.New("refused") })
	if got := check(context.Background()); got.Status != health.StatusDown || got.Message != "circuit open" {
		t.Errorf("open guard = %+v", got)
	}
}
