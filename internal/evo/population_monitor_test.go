package evo

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"commcoop/internal/agent"
	"commcoop/internal/genotype"
	"commcoop/internal/model"
	"commcoop/internal/negotiation"
	"commcoop/internal/payoff"
)

func newTestLoop(t *testing.T, kind string, size, workers int, seed int64) *GenerationLoop {
	t.Helper()
	protocol, err := negotiation.New(kind, negotiation.Options{MaxChatLength: 6, TapeLength: 5})
	if err != nil {
		t.Fatalf("new protocol: %v", err)
	}
	loop, err := NewGenerationLoop(LoopConfig{
		Protocol:       protocol,
		Payoff:         payoff.Canonical(),
		Engine:         defaultEngine(DefaultMutationRate),
		Params:         genotype.Params{States: 4, Tokens: 3, TerminalRuleRate: genotype.DefaultTerminalRuleRate},
		PopulationSize: size,
		Workers:        workers,
		Seed:           seed,
	})
	if err != nil {
		t.Fatalf("new generation loop: %v", err)
	}
	return loop
}

// fixedPopulation gives every agent a one-state automaton with the same
// action.
func fixedPopulation(t *testing.T, size int, action model.Action) *Population {
	t.Helper()
	pop := &Population{}
	for i := 0; i < size; i++ {
		f := &genotype.FSM{NumTokens: 2, ActionMap: []model.Action{action}, Transitions: [][]int{{0, 0}}}
		a, err := agent.New(string(rune('a'+i)), "", f)
		if err != nil {
			t.Fatalf("new agent: %v", err)
		}
		pop.Agents = append(pop.Agents, a)
	}
	return pop
}

func fixedLoop(t *testing.T, pop *Population, maxChat int) *GenerationLoop {
	t.Helper()
	loop, err := NewGenerationLoop(LoopConfig{
		Protocol: negotiation.FSMProtocol{MaxChatLength: maxChat},
		Payoff:   payoff.Canonical(),
		Engine:   defaultEngine(0),
		Params:   genotype.Params{States: 1, Tokens: 2},
		Initial:  pop,
		Seed:     1,
	})
	if err != nil {
		t.Fatalf("new generation loop: %v", err)
	}
	return loop
}

func TestStepPlaysEveryPairOnce(t *testing.T) {
	for _, kind := range []string{genotype.KindFSM, genotype.KindTape} {
		kind := kind
		t.Run(kind, func(t *testing.T) {
			const n = 7
			loop := newTestLoop(t, kind, n, 3, 11)
			played := loop.Population()

			summary, lineage, err := loop.Step(context.Background())
			if err != nil {
				t.Fatalf("step: %v", err)
			}
			if summary.Games != n*(n-1)/2 {
				t.Fatalf("expected %d games, got %d", n*(n-1)/2, summary.Games)
			}
			if summary.Cooperations+summary.Defections+summary.NoActions > summary.Games {
				t.Fatalf("outcome counts exceed games: %+v", summary)
			}
			for _, a := range played.Agents {
				if a.Games() != n-1 {
					t.Fatalf("agent %s played %d games, want %d", a.ID(), a.Games(), n-1)
				}
			}
			if loop.Population() == played || loop.Population().Len() != n || len(lineage) != n {
				t.Fatal("expected population to be replaced by n fresh agents")
			}
			if summary.Generation != 1 || loop.Population().Generation != 1 {
				t.Fatalf("unexpected generation indices: stats=%d population=%d", summary.Generation, loop.Population().Generation)
			}
		})
	}
}

func TestRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	for _, kind := range []string{genotype.KindFSM, genotype.KindTape} {
		kind := kind
		t.Run(kind, func(t *testing.T) {
			serial, err := newTestLoop(t, kind, 8, 1, 42).Run(context.Background(), 5)
			if err != nil {
				t.Fatalf("serial run: %v", err)
			}
			parallel, err := newTestLoop(t, kind, 8, 6, 42).Run(context.Background(), 5)
			if err != nil {
				t.Fatalf("parallel run: %v", err)
			}
			if !reflect.DeepEqual(serial.Generations, parallel.Generations) {
				t.Fatalf("generation stats differ:\nserial=%+v\nparallel=%+v", serial.Generations, parallel.Generations)
			}
			if !reflect.DeepEqual(serial.Lineage, parallel.Lineage) {
				t.Fatal("lineage differs between worker counts")
			}
			if len(serial.Lineage) != 8*6 {
				t.Fatalf("expected seed plus five generations of lineage, got %d", len(serial.Lineage))
			}
		})
	}
}

func TestSilentPopulationScoresNoAction(t *testing.T) {
	pop := fixedPopulation(t, 5, model.TokenAction(1))
	summary, _, err := fixedLoop(t, pop, 4).Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if summary.NoActions != summary.Games || summary.Cooperations != 0 || summary.Defections != 0 {
		t.Fatalf("expected every game undecided: %+v", summary)
	}
	if summary.MeanChatLength != 4 {
		t.Fatalf("expected chats to run to the limit, got %f", summary.MeanChatLength)
	}
	for _, a := range pop.Agents {
		for _, s := range a.Scores() {
			if s != -5 {
				t.Fatalf("expected -5 per undecided game, got %f", s)
			}
		}
	}
	if summary.MeanScore != -5 || summary.BestMeanScore != -5 {
		t.Fatalf("unexpected score summary: %+v", summary)
	}
}

func TestZeroChatLengthLocksOnlyTerminalStartStates(t *testing.T) {
	pop := fixedPopulation(t, 4, model.TokenAction(1))
	summary, _, err := fixedLoop(t, pop, 0).Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if summary.NoActions != summary.Games || summary.MeanChatLength != 0 {
		t.Fatalf("expected immediate undecided outcomes: %+v", summary)
	}

	pop = fixedPopulation(t, 4, model.DecisionAction(model.Defect))
	summary, _, err = fixedLoop(t, pop, 0).Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if summary.Defections != summary.Games || summary.ProportionDefect != 1 {
		t.Fatalf("expected mutual defection everywhere: %+v", summary)
	}
	if summary.MeanScore != 1 {
		t.Fatalf("expected mutual defection payoff 1, got %f", summary.MeanScore)
	}
}

func TestCooperatorsScoreThree(t *testing.T) {
	pop := fixedPopulation(t, 6, model.DecisionAction(model.Cooperate))
	summary, _, err := fixedLoop(t, pop, 10).Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if summary.ProportionCooperate != 1 || summary.MeanChatLength != 0 || summary.MeanScore != 3 {
		t.Fatalf("unexpected cooperation summary: %+v", summary)
	}
	if summary.Diversity != 1 {
		t.Fatalf("expected a single fingerprint, got %d", summary.Diversity)
	}
}

type recordingObserver struct {
	seen []int
}

func (r *recordingObserver) ObserveGeneration(s model.GenerationStats) {
	r.seen = append(r.seen, s.Generation)
}

func TestObserverSeesEveryGeneration(t *testing.T) {
	protocol := negotiation.FSMProtocol{MaxChatLength: 5}
	observer := &recordingObserver{}
	loop, err := NewGenerationLoop(LoopConfig{
		Protocol:       protocol,
		Payoff:         payoff.Canonical(),
		Engine:         defaultEngine(0.5),
		Params:         genotype.Params{States: 3, Tokens: 3, TerminalRuleRate: genotype.DefaultTerminalRuleRate},
		PopulationSize: 4,
		Seed:           2,
		Observer:       observer,
	})
	if err != nil {
		t.Fatalf("new generation loop: %v", err)
	}
	if _, err := loop.Run(context.Background(), 3); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(observer.seen, []int{1, 2, 3}) {
		t.Fatalf("unexpected observed generations: %v", observer.seen)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	loop := newTestLoop(t, genotype.KindFSM, 4, 2, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := loop.Run(ctx, 2); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestNewGenerationLoopFailsFast(t *testing.T) {
	missing := payoff.Canonical()
	delete(missing, payoff.Outcome{First: model.NoAction, Second: model.NoAction})

	base := func() LoopConfig {
		return LoopConfig{
			Protocol:       negotiation.FSMProtocol{MaxChatLength: 3},
			Payoff:         payoff.Canonical(),
			Engine:         defaultEngine(0.5),
			Params:         genotype.Params{States: 2, Tokens: 3, TerminalRuleRate: genotype.DefaultTerminalRuleRate},
			PopulationSize: 4,
		}
	}
	tapePop, _, err := NewRandomPopulation(randFor(1), genotype.KindTape, genotype.Params{States: 2, Tokens: 3, TerminalRuleRate: genotype.DefaultTerminalRuleRate}, 4)
	if err != nil {
		t.Fatalf("new population: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*LoopConfig)
		want   error
	}{
		{name: "missing payoff entry", mutate: func(c *LoopConfig) { c.Payoff = missing }, want: payoff.ErrMissingOutcome},
		{name: "single token alphabet", mutate: func(c *LoopConfig) { c.Params.Tokens = 1 }, want: genotype.ErrInvalidAlphabet},
		{name: "no states", mutate: func(c *LoopConfig) { c.Params.States = 0 }, want: genotype.ErrInvalidStates},
		{name: "tournament larger than population", mutate: func(c *LoopConfig) {
			c.Engine = &Engine{Selector: TournamentSelector{Size: 5}, MutationPolicy: DefaultMutationPolicy(false)}
		}, want: ErrTournamentTooSmall},
		{name: "initial kind mismatch", mutate: func(c *LoopConfig) { c.Initial = tapePop }, want: negotiation.ErrStrategyMismatch},
		{name: "missing protocol", mutate: func(c *LoopConfig) { c.Protocol = nil }},
		{name: "population of one", mutate: func(c *LoopConfig) { c.PopulationSize = 1 }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			_, err := NewGenerationLoop(cfg)
			if err == nil {
				t.Fatal("expected construction error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func randFor(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
