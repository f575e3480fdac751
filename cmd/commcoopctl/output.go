package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"commcoop/pkg/commcoop"
)

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

// progress redraws a single status line on terminals and stays quiet
// otherwise.
type progress struct {
	w       io.Writer
	total   int
	done    int
	enabled bool
}

func newProgress(w io.Writer, total int) *progress {
	return &progress{w: w, total: total, enabled: isTerminal(w)}
}

func (p *progress) observe(s commcoop.GenerationStats) {
	p.done++
	if !p.enabled {
		return
	}
	fmt.Fprintf(p.w, "\rgeneration %d (%d/%d) cooperate=%.3f defect=%.3f chat=%.2f",
		s.Generation, p.done, p.total, s.ProportionCooperate, s.ProportionDefect, s.MeanChatLength)
}

func (p *progress) finish() {
	if p.enabled {
		fmt.Fprintln(p.w)
	}
}

func printRunSummary(w io.Writer, s commcoop.RunSummary) {
	fmt.Fprintf(w, "run_id=%s\n", s.RunID)
	if s.ContinuePopulationID != "" {
		fmt.Fprintf(w, "continued_from=%s\n", s.ContinuePopulationID)
	}
	fmt.Fprintf(w, "generations=%d games=%s elapsed=%s\n",
		len(s.Generations), humanize.Comma(int64(s.Games)), s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "final proportion_cooperate=%.4f proportion_defect=%.4f mean_chat_length=%.3f\n",
		s.FinalCooperate, s.FinalDefect, s.FinalMeanChatLength)
	fmt.Fprintf(w, "artifacts=%s\n", s.ArtifactsDir)
}

// createdAgo renders an RFC3339 timestamp as relative time, falling back to
// the raw value.
func createdAgo(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}
