package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"commcoop/internal/evo"
	"commcoop/internal/genotype"
	"commcoop/internal/negotiation"
	"commcoop/internal/payoff"
	"commcoop/internal/storage"
	"commcoop/internal/telemetry"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the construction input of a run. Files are YAML; JSON parses
// too since it is a YAML subset.
type Config struct {
	Variant           string  `yaml:"variant" json:"variant" validate:"oneof=fsm tape"`
	PopulationSize    int     `yaml:"population" json:"population" validate:"gte=2"`
	States            int     `yaml:"states" json:"states" validate:"gte=1"`
	Tokens            int     `yaml:"tokens" json:"tokens" validate:"gte=2"`
	MaxChatLength     int     `yaml:"max_chat_length" json:"max_chat_length" validate:"gte=0"`
	TapeLength        int     `yaml:"tape_length" json:"tape_length" validate:"gte=0"`
	RandomTape        bool    `yaml:"random_tape" json:"random_tape"`
	TerminalRuleRate  float64 `yaml:"terminal_rule_rate" json:"terminal_rule_rate" validate:"gte=0,lte=1"`
	MutationRate      float64 `yaml:"mutation_rate" json:"mutation_rate" validate:"gte=0,lte=1"`
	TournamentSize    int     `yaml:"tournament_size" json:"tournament_size" validate:"gte=2"`
	SelectionPolicy   string  `yaml:"selection_policy" json:"selection_policy"`
	ProtectStartState bool    `yaml:"protect_start_state" json:"protect_start_state"`
	// MutationWeights names operators (mutate_action, mutate_transition).
	// Empty splits evenly.
	MutationWeights map[string]float64    `yaml:"mutation_weights,omitempty" json:"mutation_weights,omitempty" validate:"dive,gte=0"`
	Generations     int                   `yaml:"generations" json:"generations" validate:"gte=1"`
	Seed            int64                 `yaml:"seed" json:"seed"`
	Workers         int                   `yaml:"workers" json:"workers" validate:"gte=0"`
	Payoff          map[string][2]float64 `yaml:"payoff,omitempty" json:"payoff,omitempty"`

	Store        string `yaml:"store" json:"store" validate:"omitempty,oneof=memory sqlite"`
	DBPath       string `yaml:"db_path" json:"db_path" validate:"required_if=Store sqlite"`
	ArtifactsDir string `yaml:"artifacts_dir" json:"artifacts_dir"`
	LogLevel     string `yaml:"log_level" json:"log_level" validate:"loglevel"`
	// LogFormat is text or json. Empty lets the caller choose.
	LogFormat string `yaml:"log_format" json:"log_format" validate:"omitempty,oneof=text json"`
}

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	configValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = configValidate.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		_, err := telemetry.ParseLevel(fl.Field().String())
		return err == nil
	})
}

func Default() Config {
	return Config{
		Variant:          genotype.KindFSM,
		PopulationSize:   50,
		States:           4,
		Tokens:           4,
		MaxChatLength:    10,
		TapeLength:       16,
		TerminalRuleRate: genotype.DefaultTerminalRuleRate,
		MutationRate:     evo.DefaultMutationRate,
		TournamentSize:   2,
		SelectionPolicy:  evo.PolicyFirstFallback,
		Generations:      1000,
		Seed:             1,
		Workers:          1,
		Store:            storage.DefaultStoreKind,
		DBPath:           "commcoop.db",
		ArtifactsDir:     "runs",
		LogLevel:         "info",
	}
}

// Load reads path over the defaults, so a file only needs the keys it
// changes.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Validate checks field ranges first, then the rules that span fields or
// depend on the constructed components.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fieldErrors(err)
	}
	if c.Variant == genotype.KindTape && c.TapeLength <= 0 {
		return invalid("tape_length must be > 0 for the tape variant")
	}
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.Selector().Validate(c.PopulationSize); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := evo.MutationPolicyFromWeights(c.MutationWeights, c.ProtectStartState); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.PayoffTable(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func fieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s=%v fails %s=%s", fe.Field(), fe.Value(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s=%v fails %s", fe.Field(), fe.Value(), fe.Tag()))
	}
	return invalid("%s", strings.Join(msgs, "; "))
}

func (c Config) Params() genotype.Params {
	return genotype.Params{States: c.States, Tokens: c.Tokens, TerminalRuleRate: c.TerminalRuleRate}
}

func (c Config) Selector() evo.TournamentSelector {
	return evo.TournamentSelector{Size: c.TournamentSize, Policy: c.SelectionPolicy}
}

func (c Config) ProtocolOptions() negotiation.Options {
	return negotiation.Options{
		MaxChatLength: c.MaxChatLength,
		TapeLength:    c.TapeLength,
		RandomTape:    c.RandomTape,
	}
}

func (c Config) Engine() (*evo.Engine, error) {
	policy, err := evo.MutationPolicyFromWeights(c.MutationWeights, c.ProtectStartState)
	if err != nil {
		return nil, err
	}
	return &evo.Engine{
		Selector:       c.Selector(),
		MutationPolicy: policy,
		MutationRate:   c.MutationRate,
	}, nil
}

// PayoffTable applies the configured overrides to the canonical table.
func (c Config) PayoffTable() (payoff.Table, error) {
	table, err := payoff.Canonical().WithOverrides(c.Payoff)
	if err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
