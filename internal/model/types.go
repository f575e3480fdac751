package model

import "fmt"

// Decision is an agent's terminal move for one round.
type Decision int

// Terminal symbols share the integer space with tokens; tokens are >= 0 so
// the sentinels are negative.
const (
	Cooperate Decision = -1
	Defect    Decision = -2
	NoAction  Decision = -3
)

func (d Decision) String() string {
	switch d {
	case Cooperate:
		return "cooperate"
	case Defect:
		return "defect"
	case NoAction:
		return "no_action"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Terminal reports whether d locks an agent's move.
func (d Decision) Terminal() bool {
	return d == Cooperate || d == Defect
}

// Token is a negotiation symbol. Token 0 means "no communication".
type Token int

const Silence Token = 0

// Action is an action map entry: a token in [1, T-1] or a terminal decision.
type Action int

func TokenAction(t Token) Action {
	return Action(t)
}

func DecisionAction(d Decision) Action {
	return Action(d)
}

func (a Action) IsTerminal() bool {
	return Decision(a).Terminal()
}

func (a Action) Decision() Decision {
	return Decision(a)
}

func (a Action) Token() Token {
	return Token(a)
}

func (a Action) String() string {
	if a.IsTerminal() {
		return Decision(a).String()
	}
	return fmt.Sprintf("token(%d)", int(a))
}

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// GenerationStats is the externally observable output of one generation.
type GenerationStats struct {
	Generation          int     `json:"generation"`
	Games               int     `json:"games"`
	Cooperations        int     `json:"cooperations"`
	Defections          int     `json:"defections"`
	NoActions           int     `json:"no_actions"`
	MeanChatLength      float64 `json:"mean_chat_length"`
	ProportionCooperate float64 `json:"proportion_cooperate"`
	ProportionDefect    float64 `json:"proportion_defect"`
	MeanScore           float64 `json:"mean_score"`
	BestMeanScore       float64 `json:"best_mean_score"`
	Diversity           int     `json:"diversity"`
	Mutations           int     `json:"mutations"`
}

// LineageRecord links an agent to the tournament winner it was copied from.
type LineageRecord struct {
	VersionedRecord
	AgentID     string `json:"agent_id"`
	ParentID    string `json:"parent_id"`
	Generation  int    `json:"generation"`
	Operation   string `json:"operation"`
	Fingerprint string `json:"fingerprint,omitempty"`
	// Terminal entry counts of the agent's automaton.
	Cooperate int `json:"cooperate_entries"`
	Defect    int `json:"defect_entries"`
}

// AgentSnapshot is the persisted form of one agent's automaton.
type AgentSnapshot struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Kind     string `json:"kind"`
	Strategy []byte `json:"strategy"`
}

// PopulationSnapshot is a persisted population at a generation boundary.
type PopulationSnapshot struct {
	VersionedRecord
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	Generation int             `json:"generation"`
	Agents     []AgentSnapshot `json:"agents"`
}

// RunRecord indexes a finished or in-progress run.
type RunRecord struct {
	VersionedRecord
	ID                  string  `json:"id"`
	Variant             string  `json:"variant"`
	PopulationSize      int     `json:"population_size"`
	States              int     `json:"states"`
	Tokens              int     `json:"tokens"`
	MaxChatLength       int     `json:"max_chat_length"`
	Generations         int     `json:"generations"`
	Seed                int64   `json:"seed"`
	FinalCooperate      float64 `json:"final_proportion_cooperate"`
	FinalDefect         float64 `json:"final_proportion_defect"`
	FinalMeanChatLength float64 `json:"final_mean_chat_length"`
	CreatedAtUTC        string  `json:"created_at_utc"`
}
