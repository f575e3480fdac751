package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"commcoop/internal/model"
)

const runIndexFile = "run_index.json"

var generationsCSVHeader = []string{
	"generation",
	"games",
	"cooperations",
	"defections",
	"no_actions",
	"mean_chat_length",
	"proportion_cooperate",
	"proportion_defect",
	"mean_score",
	"best_mean_score",
	"diversity",
	"mutations",
}

type RunConfig struct {
	RunID                string                `json:"run_id"`
	ContinuePopulationID string                `json:"continue_population_id,omitempty"`
	InitialGeneration    int                   `json:"initial_generation"`
	Variant              string                `json:"variant"`
	PopulationSize       int                   `json:"population_size"`
	States               int                   `json:"states"`
	Tokens               int                   `json:"tokens"`
	MaxChatLength        int                   `json:"max_chat_length"`
	TapeLength           int                   `json:"tape_length,omitempty"`
	RandomTape           bool                  `json:"random_tape,omitempty"`
	TerminalRuleRate     float64               `json:"terminal_rule_rate,omitempty"`
	MutationRate         float64               `json:"mutation_rate"`
	TournamentSize       int                   `json:"tournament_size"`
	SelectionPolicy      string                `json:"selection_policy"`
	ProtectStartState    bool                  `json:"protect_start_state"`
	MutationWeights      map[string]float64    `json:"mutation_weights,omitempty"`
	Generations          int                   `json:"generations"`
	Seed                 int64                 `json:"seed"`
	Workers              int                   `json:"workers"`
	Payoff               map[string][2]float64 `json:"payoff,omitempty"`
}

type RunArtifacts struct {
	Config      RunConfig             `json:"config"`
	Generations Series                `json:"generations"`
	Lineage     []model.LineageRecord `json:"lineage"`
	PlotWindow  int                   `json:"plot_window,omitempty"`
}

type RunIndexEntry struct {
	RunID               string  `json:"run_id"`
	Variant             string  `json:"variant"`
	PopulationSize      int     `json:"population_size"`
	States              int     `json:"states"`
	Tokens              int     `json:"tokens"`
	MaxChatLength       int     `json:"max_chat_length"`
	Generations         int     `json:"generations"`
	Seed                int64   `json:"seed"`
	Workers             int     `json:"workers"`
	FinalCooperate      float64 `json:"final_proportion_cooperate"`
	FinalDefect         float64 `json:"final_proportion_defect"`
	FinalMeanChatLength float64 `json:"final_mean_chat_length"`
	CreatedAtUTC        string  `json:"created_at_utc"`
}

// WriteRunArtifacts lays out one run under baseDir/<run id> and returns the
// run directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	generations := artifacts.Generations
	if generations == nil {
		generations = Series{}
	}
	if err := writeJSON(filepath.Join(runDir, "generations.json"), generations); err != nil {
		return "", err
	}
	if err := WriteGenerationsCSV(runDir, generations); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "plot.json"), BuildPlot(generations, artifacts.PlotWindow)); err != nil {
		return "", err
	}
	lineage := artifacts.Lineage
	if lineage == nil {
		lineage = []model.LineageRecord{}
	}
	if err := writeJSON(filepath.Join(runDir, "lineage.json"), lineage); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory's files to outDir/<run id>.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"config.json", "generations.json", "generations.csv", "plot.json", "lineage.json"}
	for _, file := range files {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &cfg)
	return cfg, ok, err
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, "config.json"), cfg)
}

func ReadGenerations(baseDir, runID string) (Series, bool, error) {
	var series Series
	ok, err := readJSON(filepath.Join(baseDir, runID, "generations.json"), &series)
	return series, ok, err
}

func ReadLineage(baseDir, runID string) ([]model.LineageRecord, bool, error) {
	var lineage []model.LineageRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, "lineage.json"), &lineage)
	return lineage, ok, err
}

func ReadPlot(baseDir, runID string) (Plot, bool, error) {
	var plot Plot
	ok, err := readJSON(filepath.Join(baseDir, runID, "plot.json"), &plot)
	return plot, ok, err
}

func WriteGenerationsCSV(runDir string, series Series) error {
	file, err := os.Create(filepath.Join(runDir, "generations.csv"))
	if err != nil {
		return err
	}
	defer file.Close()
	return EncodeGenerationsCSV(file, series)
}

// EncodeGenerationsCSV writes one header row and one row per generation.
func EncodeGenerationsCSV(w io.Writer, series Series) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(generationsCSVHeader); err != nil {
		return err
	}
	for _, g := range series {
		if err := writer.Write([]string{
			strconv.Itoa(g.Generation),
			strconv.Itoa(g.Games),
			strconv.Itoa(g.Cooperations),
			strconv.Itoa(g.Defections),
			strconv.Itoa(g.NoActions),
			formatFloat(g.MeanChatLength),
			formatFloat(g.ProportionCooperate),
			formatFloat(g.ProportionDefect),
			formatFloat(g.MeanScore),
			formatFloat(g.BestMeanScore),
			strconv.Itoa(g.Diversity),
			strconv.Itoa(g.Mutations),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadGenerationsCSV(baseDir, runID string) (Series, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, "generations.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	series, err := DecodeGenerationsCSV(file)
	if err != nil {
		return nil, false, err
	}
	return series, true, nil
}

func DecodeGenerationsCSV(r io.Reader) (Series, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return Series{}, nil
		}
		return nil, err
	}
	if len(header) != len(generationsCSVHeader) {
		return nil, fmt.Errorf("generations csv header must have %d columns, got %d", len(generationsCSVHeader), len(header))
	}

	series := make(Series, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		g, err := parseGenerationRow(record)
		if err != nil {
			return nil, err
		}
		series = append(series, g)
	}
	return series, nil
}

func parseGenerationRow(record []string) (model.GenerationStats, error) {
	if len(record) != len(generationsCSVHeader) {
		return model.GenerationStats{}, fmt.Errorf("generations csv row must have %d columns", len(generationsCSVHeader))
	}
	ints := make([]int, 0, 7)
	for _, i := range []int{0, 1, 2, 3, 4, 10, 11} {
		v, err := strconv.Atoi(record[i])
		if err != nil {
			return model.GenerationStats{}, fmt.Errorf("column %s: %w", generationsCSVHeader[i], err)
		}
		ints = append(ints, v)
	}
	floats := make([]float64, 0, 5)
	for i := 5; i <= 9; i++ {
		v, err := strconv.ParseFloat(record[i], 64)
		if err != nil {
			return model.GenerationStats{}, fmt.Errorf("column %s: %w", generationsCSVHeader[i], err)
		}
		floats = append(floats, v)
	}
	return model.GenerationStats{
		Generation:          ints[0],
		Games:               ints[1],
		Cooperations:        ints[2],
		Defections:          ints[3],
		NoActions:           ints[4],
		MeanChatLength:      floats[0],
		ProportionCooperate: floats[1],
		ProportionDefect:    floats[2],
		MeanScore:           floats[3],
		BestMeanScore:       floats[4],
		Diversity:           ints[5],
		Mutations:           ints[6],
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
