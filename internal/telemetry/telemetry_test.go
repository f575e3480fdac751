package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"commcoop/internal/model"
)

func TestMetricsObserveGeneration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	obs := m.ForVariant("fsm")

	obs.ObserveGeneration(model.GenerationStats{Generation: 1, Games: 10, Cooperations: 2, Defections: 5, NoActions: 1, ProportionCooperate: 0.2, ProportionDefect: 0.5, MeanChatLength: 1.5, Diversity: 4, Mutations: 3})
	obs.ObserveGeneration(model.GenerationStats{Generation: 2, Games: 10, Cooperations: 4, ProportionCooperate: 0.4, Diversity: 3, Mutations: 1})

	if got := testutil.ToFloat64(m.generation.WithLabelValues("fsm")); got != 2 {
		t.Fatalf("expected generation gauge 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.proportionCooperate.WithLabelValues("fsm")); got != 0.4 {
		t.Fatalf("expected cooperation gauge 0.4, got %f", got)
	}
	if got := testutil.ToFloat64(m.games.WithLabelValues("fsm")); got != 20 {
		t.Fatalf("expected 20 games, got %f", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("fsm", "mutual_cooperation")); got != 6 {
		t.Fatalf("expected 6 mutual cooperations, got %f", got)
	}
	if got := testutil.ToFloat64(m.mutations.WithLabelValues("fsm")); got != 4 {
		t.Fatalf("expected 4 mutations, got %f", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 8 {
		t.Fatalf("expected 8 metric families, got %d", len(families))
	}
}

func TestNewMetricsPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration to panic")
		}
	}()
	NewMetrics(reg)
}

func TestVariantsKeepSeparateSeries(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ForVariant("fsm").ObserveGeneration(model.GenerationStats{Generation: 5, Games: 3})
	m.ForVariant("tape").ObserveGeneration(model.GenerationStats{Generation: 2, Games: 7})

	if got := testutil.ToFloat64(m.generation.WithLabelValues("fsm")); got != 5 {
		t.Fatalf("expected fsm generation 5, got %f", got)
	}
	if got := testutil.ToFloat64(m.games.WithLabelValues("tape")); got != 7 {
		t.Fatalf("expected 7 tape games, got %f", got)
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, slog.LevelInfo, FormatJSON)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("generation complete", "generation", 3)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a single json line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "generation complete" || line["generation"] != float64(3) {
		t.Fatalf("unexpected log line: %v", line)
	}

	buf.Reset()
	logger, err = NewLogger(&buf, slog.LevelDebug, FormatText)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("visible", "k", "v")
	if !strings.Contains(buf.String(), "msg=visible") || !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("unexpected text output: %q", buf.String())
	}

	if _, err := NewLogger(&buf, slog.LevelInfo, "xml"); err == nil {
		t.Fatal("expected unknown format error")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "warn": slog.LevelWarn, " error ": slog.LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("parse %q: got %v err=%v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected unknown level error")
	}
}
