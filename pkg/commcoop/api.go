package commcoop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"commcoop/internal/config"
	"commcoop/internal/evo"
	"commcoop/internal/model"
	"commcoop/internal/negotiation"
	"commcoop/internal/stats"
	"commcoop/internal/storage"
	"commcoop/internal/telemetry"
)

// timestampLayout is fixed width so stored timestamps sort as strings.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "commcoop.db"
)

var (
	ErrNoRuns     = errors.New("no runs available")
	ErrNoSnapshot = errors.New("population snapshot not found")
)

type (
	Config          = config.Config
	GenerationStats = model.GenerationStats
)

func DefaultConfig() Config {
	return config.Default()
}

func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
	// Registerer receives the per-generation collectors. Nil disables metrics.
	Registerer prometheus.Registerer
}

type Client struct {
	store       storage.Store
	initialized bool
	logger      *slog.Logger
	metrics     *telemetry.Metrics

	artifactsDir string
	exportsDir   string
}

type RunRequest struct {
	Config Config
	// ContinueRunID resumes from the final population of an earlier run
	// held by the same store.
	ContinueRunID string
	// Progress is called after every generation.
	Progress func(GenerationStats)
}

type RunSummary struct {
	RunID                string
	ArtifactsDir         string
	ContinuePopulationID string
	Generations          []GenerationStats
	Games                int
	FinalCooperate       float64
	FinalDefect          float64
	FinalMeanChatLength  float64
	Elapsed              time.Duration
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID               string
	CreatedAtUTC        string
	Variant             string
	Seed                int64
	Population          int
	States              int
	Tokens              int
	MaxChatLength       int
	Generations         int
	FinalCooperate      float64
	FinalDefect         float64
	FinalMeanChatLength float64
}

type GenerationsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type LineageRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	c := &Client{
		store:        store,
		logger:       logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}
	if opts.Registerer != nil {
		c.metrics = telemetry.NewMetrics(opts.Registerer)
	}
	return c, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	table, err := cfg.PayoffTable()
	if err != nil {
		return RunSummary{}, err
	}
	protocol, err := negotiation.New(cfg.Variant, cfg.ProtocolOptions())
	if err != nil {
		return RunSummary{}, err
	}
	engine, err := cfg.Engine()
	if err != nil {
		return RunSummary{}, err
	}

	var initial *evo.Population
	var continuePopulationID string
	if req.ContinueRunID != "" {
		continuePopulationID = finalPopulationID(req.ContinueRunID)
		snap, ok, err := c.store.GetPopulation(ctx, continuePopulationID)
		if err != nil {
			return RunSummary{}, err
		}
		if !ok {
			return RunSummary{}, fmt.Errorf("%w: run %s", ErrNoSnapshot, req.ContinueRunID)
		}
		initial, err = storage.RestorePopulation(snap)
		if err != nil {
			return RunSummary{}, err
		}
	}

	started := time.Now().UTC()
	runID := uuid.NewString()
	logger := c.logger.With("run_id", runID, "variant", cfg.Variant)

	var observers fanOut
	if c.metrics != nil {
		observers = append(observers, c.metrics.ForVariant(cfg.Variant))
	}
	if req.Progress != nil {
		observers = append(observers, observerFunc(req.Progress))
	}

	loop, err := evo.NewGenerationLoop(evo.LoopConfig{
		Protocol:       protocol,
		Payoff:         table,
		Engine:         engine,
		Params:         cfg.Params(),
		PopulationSize: cfg.PopulationSize,
		Workers:        cfg.Workers,
		Seed:           cfg.Seed,
		Initial:        initial,
		Logger:         logger,
		Observer:       observers,
	})
	if err != nil {
		return RunSummary{}, err
	}
	initialGeneration := loop.Population().Generation

	logger.Info("run started", "population", cfg.PopulationSize, "generations", cfg.Generations, "continue_population", continuePopulationID)
	result, err := loop.Run(ctx, cfg.Generations)
	if err != nil {
		return RunSummary{}, err
	}

	series := stats.Series(result.Generations)
	last, _ := series.Last()
	games := 0
	for _, g := range series {
		games += g.Games
	}

	record := model.RunRecord{
		VersionedRecord:     storage.CurrentVersion(),
		ID:                  runID,
		Variant:             cfg.Variant,
		PopulationSize:      cfg.PopulationSize,
		States:              cfg.States,
		Tokens:              cfg.Tokens,
		MaxChatLength:       cfg.MaxChatLength,
		Generations:         cfg.Generations,
		Seed:                cfg.Seed,
		FinalCooperate:      last.ProportionCooperate,
		FinalDefect:         last.ProportionDefect,
		FinalMeanChatLength: last.MeanChatLength,
		CreatedAtUTC:        started.Format(timestampLayout),
	}
	if err := c.persist(ctx, record, result); err != nil {
		return RunSummary{}, err
	}

	runCfg := runConfig(cfg, runID)
	runCfg.ContinuePopulationID = continuePopulationID
	runCfg.InitialGeneration = initialGeneration
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config:      runCfg,
		Generations: series,
		Lineage:     result.Lineage,
		PlotWindow:  stats.DefaultPlotWindow,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:               runID,
		Variant:             cfg.Variant,
		PopulationSize:      cfg.PopulationSize,
		States:              cfg.States,
		Tokens:              cfg.Tokens,
		MaxChatLength:       cfg.MaxChatLength,
		Generations:         cfg.Generations,
		Seed:                cfg.Seed,
		Workers:             cfg.Workers,
		FinalCooperate:      last.ProportionCooperate,
		FinalDefect:         last.ProportionDefect,
		FinalMeanChatLength: last.MeanChatLength,
		CreatedAtUTC:        record.CreatedAtUTC,
	}); err != nil {
		return RunSummary{}, err
	}

	elapsed := time.Since(started)
	logger.Info("run complete",
		"games", games,
		"proportion_cooperate", last.ProportionCooperate,
		"mean_chat_length", last.MeanChatLength,
		"elapsed", elapsed,
	)

	return RunSummary{
		RunID:                runID,
		ArtifactsDir:         filepath.Clean(runDir),
		ContinuePopulationID: continuePopulationID,
		Generations:          append([]GenerationStats(nil), series...),
		Games:                games,
		FinalCooperate:       last.ProportionCooperate,
		FinalDefect:          last.ProportionDefect,
		FinalMeanChatLength:  last.MeanChatLength,
		Elapsed:              elapsed,
	}, nil
}

func (c *Client) persist(ctx context.Context, record model.RunRecord, result evo.RunResult) error {
	if err := c.store.SaveRun(ctx, record); err != nil {
		return err
	}
	if err := c.store.SaveGenerationStats(ctx, record.ID, result.Generations); err != nil {
		return err
	}
	if err := c.store.SaveLineage(ctx, record.ID, storage.StampLineage(result.Lineage)); err != nil {
		return err
	}
	snap, err := storage.SnapshotPopulation(finalPopulationID(record.ID), record.ID, result.Final)
	if err != nil {
		return err
	}
	return c.store.SavePopulation(ctx, snap)
}

// Runs lists stored runs newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}

	out := make([]RunItem, 0, len(runs))
	for _, r := range runs {
		out = append(out, RunItem{
			RunID:               r.ID,
			CreatedAtUTC:        r.CreatedAtUTC,
			Variant:             r.Variant,
			Seed:                r.Seed,
			Population:          r.PopulationSize,
			States:              r.States,
			Tokens:              r.Tokens,
			MaxChatLength:       r.MaxChatLength,
			Generations:         r.Generations,
			FinalCooperate:      r.FinalCooperate,
			FinalDefect:         r.FinalDefect,
			FinalMeanChatLength: r.FinalMeanChatLength,
		})
	}
	return out, nil
}

func (c *Client) Generations(ctx context.Context, req GenerationsRequest) ([]GenerationStats, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetGenerationStats(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("generation stats not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]GenerationStats(nil), history...), nil
}

func (c *Client) Lineage(ctx context.Context, req LineageRequest) ([]model.LineageRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	lineage, ok, err := c.store.GetLineage(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lineage not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(lineage) > req.Limit {
		lineage = lineage[:req.Limit]
	}
	return lineage, nil
}

// Export copies a run's artifact directory under OutDir.
func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, ErrNoRuns
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id or latest is required")
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", ErrNoRuns
	}
	return runs[0].ID, nil
}

func finalPopulationID(runID string) string {
	return runID + ":final"
}

func runConfig(cfg Config, runID string) stats.RunConfig {
	return stats.RunConfig{
		RunID:             runID,
		Variant:           cfg.Variant,
		PopulationSize:    cfg.PopulationSize,
		States:            cfg.States,
		Tokens:            cfg.Tokens,
		MaxChatLength:     cfg.MaxChatLength,
		TapeLength:        cfg.TapeLength,
		RandomTape:        cfg.RandomTape,
		TerminalRuleRate:  cfg.TerminalRuleRate,
		MutationRate:      cfg.MutationRate,
		TournamentSize:    cfg.TournamentSize,
		SelectionPolicy:   cfg.SelectionPolicy,
		ProtectStartState: cfg.ProtectStartState,
		MutationWeights:   cfg.MutationWeights,
		Generations:       cfg.Generations,
		Seed:              cfg.Seed,
		Workers:           cfg.Workers,
		Payoff:            cfg.Payoff,
	}
}

type observerFunc func(GenerationStats)

func (f observerFunc) ObserveGeneration(s GenerationStats) { f(s) }

type fanOut []evo.Observer

func (f fanOut) ObserveGeneration(s GenerationStats) {
	for _, o := range f {
		o.ObserveGeneration(s)
	}
}
