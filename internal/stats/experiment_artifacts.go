package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const sweepExperimentsDir = "sweeps"

// SweepPoint is one configuration of a parameter sweep and the final
// generation it reached.
type SweepPoint struct {
	RunID               string  `json:"run_id"`
	PopulationSize      int     `json:"population_size"`
	States              int     `json:"states"`
	Tokens              int     `json:"tokens"`
	MaxChatLength       int     `json:"max_chat_length"`
	Generations         int     `json:"generations"`
	FinalCooperate      float64 `json:"final_proportion_cooperate"`
	FinalDefect         float64 `json:"final_proportion_defect"`
	FinalMeanChatLength float64 `json:"final_mean_chat_length"`
}

type SweepExperiment struct {
	ID             string       `json:"id"`
	Variant        string       `json:"variant"`
	Seed           int64        `json:"seed"`
	TotalRuns      int          `json:"total_runs"`
	StartedAtUTC   string       `json:"started_at_utc,omitempty"`
	CompletedAtUTC string       `json:"completed_at_utc,omitempty"`
	Points         []SweepPoint `json:"points,omitempty"`
}

// Complete reports whether every planned run has a recorded point.
func (e SweepExperiment) Complete() bool {
	return e.TotalRuns > 0 && len(e.Points) >= e.TotalRuns
}

func WriteSweepExperiment(baseDir string, exp SweepExperiment) error {
	if exp.ID == "" {
		return fmt.Errorf("sweep id is required")
	}
	path := sweepExperimentPath(baseDir, exp.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeJSON(path, exp)
}

func ReadSweepExperiment(baseDir, id string) (SweepExperiment, bool, error) {
	if id == "" {
		return SweepExperiment{}, false, fmt.Errorf("sweep id is required")
	}
	var exp SweepExperiment
	ok, err := readJSON(sweepExperimentPath(baseDir, id), &exp)
	return exp, ok, err
}

func ListSweepExperiments(baseDir string) ([]SweepExperiment, error) {
	root := filepath.Join(baseDir, sweepExperimentsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []SweepExperiment{}, nil
		}
		return nil, err
	}

	exps := make([]SweepExperiment, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		exp, ok, err := ReadSweepExperiment(baseDir, entry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		exps = append(exps, exp)
	}
	sort.Slice(exps, func(i, j int) bool {
		switch {
		case exps[i].StartedAtUTC == exps[j].StartedAtUTC:
			return exps[i].ID < exps[j].ID
		case exps[i].StartedAtUTC == "":
			return false
		case exps[j].StartedAtUTC == "":
			return true
		default:
			return exps[i].StartedAtUTC > exps[j].StartedAtUTC
		}
	})
	return exps, nil
}

func sweepExperimentPath(baseDir, id string) string {
	return filepath.Join(baseDir, sweepExperimentsDir, id, "sweep.json")
}
