package evo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"commcoop/internal/genotype"
	"commcoop/internal/model"
	"commcoop/internal/negotiation"
	"commcoop/internal/payoff"
	"commcoop/internal/stats"
)

// Observer receives every generation's statistics as soon as they are
// aggregated.
type Observer interface {
	ObserveGeneration(model.GenerationStats)
}

type RunResult struct {
	Generations []model.GenerationStats
	Lineage     []model.LineageRecord
	Final       *Population
}

type LoopConfig struct {
	Protocol       negotiation.Protocol
	Payoff         payoff.Table
	Engine         *Engine
	Params         genotype.Params
	PopulationSize int
	// Workers bounds concurrent games. Results do not depend on it.
	Workers int
	Seed    int64
	// Initial resumes from an existing population instead of seeding one.
	Initial  *Population
	Logger   *slog.Logger
	Observer Observer
}

// GenerationLoop plays the round robin, aggregates statistics and hands the
// scored population to the engine, one generation per Step.
type GenerationLoop struct {
	cfg     LoopConfig
	rng     *rand.Rand
	pop     *Population
	seeded  []model.LineageRecord
	stepped bool
}

func NewGenerationLoop(cfg LoopConfig) (*GenerationLoop, error) {
	if cfg.Protocol == nil {
		return nil, fmt.Errorf("negotiation protocol is required")
	}
	if err := cfg.Payoff.Validate(); err != nil {
		return nil, err
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("evolution engine is required")
	}
	if cfg.Initial != nil && cfg.PopulationSize == 0 {
		cfg.PopulationSize = cfg.Initial.Len()
	}
	if cfg.PopulationSize < 2 {
		return nil, fmt.Errorf("population size must be >= 2")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Engine.Validate(cfg.PopulationSize); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	l := &GenerationLoop{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
	if cfg.Initial != nil {
		if cfg.Initial.Len() != cfg.PopulationSize {
			return nil, fmt.Errorf("initial population mismatch: got=%d want=%d", cfg.Initial.Len(), cfg.PopulationSize)
		}
		kind, err := cfg.Initial.Kind()
		if err != nil {
			return nil, err
		}
		if kind != cfg.Protocol.Kind() {
			return nil, fmt.Errorf("%w: population has %s, protocol runs %s", negotiation.ErrStrategyMismatch, kind, cfg.Protocol.Kind())
		}
		l.pop = cfg.Initial
		return l, nil
	}

	pop, lineage, err := NewRandomPopulation(l.rng, cfg.Protocol.Kind(), cfg.Params, cfg.PopulationSize)
	if err != nil {
		return nil, err
	}
	l.pop = pop
	l.seeded = lineage
	return l, nil
}

// Population returns the population the next Step will play.
func (l *GenerationLoop) Population() *Population {
	return l.pop
}

type pairing struct {
	first  int
	second int
	seed   int64
}

// Step advances one generation and returns its statistics together with the
// lineage of the population that replaces it.
func (l *GenerationLoop) Step(ctx context.Context) (model.GenerationStats, []model.LineageRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.GenerationStats{}, nil, err
	}
	l.stepped = true
	pop := l.pop
	pop.Reset()

	n := pop.Len()
	pairs := make([]pairing, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, pairing{first: i, second: j, seed: l.rng.Int63()})
		}
	}

	outcomes := make([]negotiation.Outcome, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Workers)
	for k := range pairs {
		k := k
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p := pairs[k]
			a, b := pop.Agents[p.first], pop.Agents[p.second]
			out, err := l.cfg.Protocol.Negotiate(rand.New(rand.NewSource(p.seed)), negotiation.SeatFor(a), negotiation.SeatFor(b))
			if err != nil {
				return fmt.Errorf("game %s vs %s: %w", a.ID(), b.ID(), err)
			}
			outcomes[k] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.GenerationStats{}, nil, err
	}

	summary := model.GenerationStats{Generation: pop.Generation + 1, Games: len(pairs)}
	chatTotal := 0
	for k, p := range pairs {
		out := outcomes[k]
		scores, err := l.cfg.Payoff.Lookup(out.First, out.Second)
		if err != nil {
			return model.GenerationStats{}, nil, err
		}
		pop.Agents[p.first].RecordScore(scores.First)
		pop.Agents[p.second].RecordScore(scores.Second)

		switch {
		case out.MutualCooperation():
			summary.Cooperations++
		case out.MutualDefection():
			summary.Defections++
		}
		if out.Undecided() {
			summary.NoActions++
		}
		chatTotal += out.ChatLength
	}
	if summary.Games > 0 {
		summary.MeanChatLength = float64(chatTotal) / float64(summary.Games)
		summary.ProportionCooperate = float64(summary.Cooperations) / float64(summary.Games)
		summary.ProportionDefect = float64(summary.Defections) / float64(summary.Games)
	}
	summarizeScores(pop, &summary)
	summary.Diversity = pop.Diversity()

	next, lineage, err := l.cfg.Engine.NextGeneration(l.rng, pop)
	if err != nil {
		return model.GenerationStats{}, nil, err
	}
	for _, rec := range lineage {
		if rec.Operation != OpClone {
			summary.Mutations++
		}
	}
	l.pop = next

	l.cfg.Logger.Debug("generation complete",
		"generation", summary.Generation,
		"games", summary.Games,
		"proportion_cooperate", summary.ProportionCooperate,
		"proportion_defect", summary.ProportionDefect,
		"mean_chat_length", summary.MeanChatLength,
		"diversity", summary.Diversity,
	)
	if l.cfg.Observer != nil {
		l.cfg.Observer.ObserveGeneration(summary)
	}
	return summary, lineage, nil
}

// Run advances n generations. The lineage includes the seed records when
// the loop started from a random population.
func (l *GenerationLoop) Run(ctx context.Context, n int) (RunResult, error) {
	if n <= 0 {
		return RunResult{}, fmt.Errorf("generations must be > 0")
	}
	result := RunResult{Generations: make([]model.GenerationStats, 0, n)}
	if !l.stepped {
		result.Lineage = append(result.Lineage, l.seeded...)
	}
	for gen := 0; gen < n; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		summary, lineage, err := l.Step(ctx)
		if err != nil {
			return RunResult{}, err
		}
		result.Generations = append(result.Generations, summary)
		result.Lineage = append(result.Lineage, lineage...)
	}
	result.Final = l.pop
	return result, nil
}

func summarizeScores(pop *Population, summary *model.GenerationStats) {
	means := make([]float64, 0, pop.Len())
	for _, a := range pop.Agents {
		if mean, ok := a.MeanScore(); ok {
			means = append(means, mean)
		}
	}
	if len(means) == 0 {
		return
	}
	summary.MeanScore = stats.Mean(means)
	summary.BestMeanScore = stats.Max(means)
}
