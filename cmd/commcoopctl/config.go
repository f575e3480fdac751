package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"commcoop/internal/config"
	"commcoop/internal/telemetry"
	"commcoop/pkg/commcoop"
)

// configOverride copies one explicitly set flag into the configuration.
type configOverride struct {
	flag  string
	apply func(cmd *cobra.Command, cfg *config.Config) error
}

func stringOverride(flag string, field func(*config.Config) *string) configOverride {
	return configOverride{flag: flag, apply: func(cmd *cobra.Command, cfg *config.Config) error {
		v, err := cmd.Flags().GetString(flag)
		if err != nil {
			return err
		}
		*field(cfg) = v
		return nil
	}}
}

func intOverride(flag string, field func(*config.Config) *int) configOverride {
	return configOverride{flag: flag, apply: func(cmd *cobra.Command, cfg *config.Config) error {
		v, err := cmd.Flags().GetInt(flag)
		if err != nil {
			return err
		}
		*field(cfg) = v
		return nil
	}}
}

func floatOverride(flag string, field func(*config.Config) *float64) configOverride {
	return configOverride{flag: flag, apply: func(cmd *cobra.Command, cfg *config.Config) error {
		v, err := cmd.Flags().GetFloat64(flag)
		if err != nil {
			return err
		}
		*field(cfg) = v
		return nil
	}}
}

func boolOverride(flag string, field func(*config.Config) *bool) configOverride {
	return configOverride{flag: flag, apply: func(cmd *cobra.Command, cfg *config.Config) error {
		v, err := cmd.Flags().GetBool(flag)
		if err != nil {
			return err
		}
		*field(cfg) = v
		return nil
	}}
}

var configOverrides = []configOverride{
	stringOverride("store", func(c *config.Config) *string { return &c.Store }),
	stringOverride("db-path", func(c *config.Config) *string { return &c.DBPath }),
	stringOverride("artifacts-dir", func(c *config.Config) *string { return &c.ArtifactsDir }),
	stringOverride("log-level", func(c *config.Config) *string { return &c.LogLevel }),
	stringOverride("log-format", func(c *config.Config) *string { return &c.LogFormat }),
	stringOverride("variant", func(c *config.Config) *string { return &c.Variant }),
	intOverride("pop", func(c *config.Config) *int { return &c.PopulationSize }),
	intOverride("states", func(c *config.Config) *int { return &c.States }),
	intOverride("tokens", func(c *config.Config) *int { return &c.Tokens }),
	intOverride("max-chat", func(c *config.Config) *int { return &c.MaxChatLength }),
	intOverride("tape-length", func(c *config.Config) *int { return &c.TapeLength }),
	boolOverride("random-tape", func(c *config.Config) *bool { return &c.RandomTape }),
	floatOverride("terminal-rule-rate", func(c *config.Config) *float64 { return &c.TerminalRuleRate }),
	floatOverride("mutation-rate", func(c *config.Config) *float64 { return &c.MutationRate }),
	intOverride("tournament-size", func(c *config.Config) *int { return &c.TournamentSize }),
	stringOverride("selection-policy", func(c *config.Config) *string { return &c.SelectionPolicy }),
	boolOverride("protect-start", func(c *config.Config) *bool { return &c.ProtectStartState }),
	intOverride("gens", func(c *config.Config) *int { return &c.Generations }),
	intOverride("workers", func(c *config.Config) *int { return &c.Workers }),
	{flag: "seed", apply: func(cmd *cobra.Command, cfg *config.Config) error {
		v, err := cmd.Flags().GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = v
		return nil
	}},
}

// addRunFlags registers the per-run overrides. Defaults only document the
// built-in configuration; values apply when a flag is set explicitly.
func addRunFlags(cmd *cobra.Command) {
	d := config.Default()
	f := cmd.Flags()
	f.String("variant", d.Variant, "Automaton variant: fsm or tape")
	f.Int("pop", d.PopulationSize, "Population size")
	f.Int("states", d.States, "Automaton states")
	f.Int("tokens", d.Tokens, "Alphabet size including silence")
	f.Int("max-chat", d.MaxChatLength, "Maximum chat rounds per game")
	f.Int("tape-length", d.TapeLength, "Shared tape length (tape variant)")
	f.Bool("random-tape", d.RandomTape, "Start each game on a random tape")
	f.Float64("terminal-rule-rate", d.TerminalRuleRate, "Chance a generated tape rule decides")
	f.Float64("mutation-rate", d.MutationRate, "Chance a child is mutated")
	f.Int("tournament-size", d.TournamentSize, "Tournament size")
	f.String("selection-policy", d.SelectionPolicy, "Tournament tie policy: first_fallback or legacy_pair")
	f.Bool("protect-start", d.ProtectStartState, "Never mutate the start state's action")
	f.Int("gens", d.Generations, "Generations to run")
	f.Int64("seed", d.Seed, "Random seed")
	f.Int("workers", d.Workers, "Concurrent games")
}

// loadConfig reads --config over the defaults and then applies every flag
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := overrideFromFlags(cmd, &cfg); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func overrideFromFlags(cmd *cobra.Command, cfg *config.Config) error {
	for _, o := range configOverrides {
		flag := cmd.Flags().Lookup(o.flag)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := o.apply(cmd, cfg); err != nil {
			return fmt.Errorf("flag --%s: %w", o.flag, err)
		}
	}
	return nil
}

func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := telemetry.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	format := cfg.LogFormat
	if format == "" {
		format = telemetry.FormatJSON
		if isTerminal(w) {
			format = telemetry.FormatText
		}
	}
	return telemetry.NewLogger(w, level, format)
}

func newClient(cmd *cobra.Command, cfg config.Config, opts commcoop.Options) (*commcoop.Client, error) {
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	opts.StoreKind = cfg.Store
	opts.DBPath = cfg.DBPath
	opts.ArtifactsDir = cfg.ArtifactsDir
	opts.Logger = logger
	return commcoop.New(opts)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
