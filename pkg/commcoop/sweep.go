package commcoop

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"commcoop/internal/stats"
)

// SweepRequest varies population size, automaton size, alphabet and chat
// limit over Base. An empty list keeps Base's value. Every point reuses
// Base.Seed.
type SweepRequest struct {
	Base           Config
	Populations    []int
	States         []int
	Tokens         []int
	MaxChatLengths []int
	// Progress is called after each completed point.
	Progress func(done, total int, point stats.SweepPoint)
}

type SweepSummary struct {
	ID     string
	Points []stats.SweepPoint
}

func (c *Client) Sweep(ctx context.Context, req SweepRequest) (SweepSummary, error) {
	configs := expandSweep(req)
	if len(configs) == 0 {
		return SweepSummary{}, errors.New("sweep has no points")
	}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return SweepSummary{}, err
		}
	}

	exp := stats.SweepExperiment{
		ID:           uuid.NewString(),
		Variant:      req.Base.Variant,
		Seed:         req.Base.Seed,
		TotalRuns:    len(configs),
		StartedAtUTC: time.Now().UTC().Format(timestampLayout),
	}
	if err := stats.WriteSweepExperiment(c.artifactsDir, exp); err != nil {
		return SweepSummary{}, err
	}

	for _, cfg := range configs {
		summary, err := c.Run(ctx, RunRequest{Config: cfg})
		if err != nil {
			return SweepSummary{}, err
		}
		point := stats.SweepPoint{
			RunID:               summary.RunID,
			PopulationSize:      cfg.PopulationSize,
			States:              cfg.States,
			Tokens:              cfg.Tokens,
			MaxChatLength:       cfg.MaxChatLength,
			Generations:         cfg.Generations,
			FinalCooperate:      summary.FinalCooperate,
			FinalDefect:         summary.FinalDefect,
			FinalMeanChatLength: summary.FinalMeanChatLength,
		}
		exp.Points = append(exp.Points, point)
		if exp.Complete() {
			exp.CompletedAtUTC = time.Now().UTC().Format(timestampLayout)
		}
		if err := stats.WriteSweepExperiment(c.artifactsDir, exp); err != nil {
			return SweepSummary{}, err
		}
		if req.Progress != nil {
			req.Progress(len(exp.Points), exp.TotalRuns, point)
		}
	}
	return SweepSummary{ID: exp.ID, Points: append([]stats.SweepPoint(nil), exp.Points...)}, nil
}

// Sweeps lists recorded sweeps, newest first.
func (c *Client) Sweeps(_ context.Context) ([]stats.SweepExperiment, error) {
	return stats.ListSweepExperiments(c.artifactsDir)
}

func expandSweep(req SweepRequest) []Config {
	populations := orDefault(req.Populations, req.Base.PopulationSize)
	states := orDefault(req.States, req.Base.States)
	tokens := orDefault(req.Tokens, req.Base.Tokens)
	chats := orDefault(req.MaxChatLengths, req.Base.MaxChatLength)

	out := make([]Config, 0, len(populations)*len(states)*len(tokens)*len(chats))
	for _, n := range populations {
		for _, s := range states {
			for _, t := range tokens {
				for _, m := range chats {
					cfg := req.Base
					cfg.PopulationSize = n
					cfg.States = s
					cfg.Tokens = t
					cfg.MaxChatLength = m
					out = append(out, cfg)
				}
			}
		}
	}
	return out
}

func orDefault(values []int, fallback int) []int {
	if len(values) == 0 {
		return []int{fallback}
	}
	return values
}
