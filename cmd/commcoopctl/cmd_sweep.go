package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"commcoop/internal/stats"
	"commcoop/pkg/commcoop"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run every combination of the listed parameters with one seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pops, _ := cmd.Flags().GetIntSlice("pops")
			states, _ := cmd.Flags().GetIntSlice("states-list")
			tokens, _ := cmd.Flags().GetIntSlice("tokens-list")
			chats, _ := cmd.Flags().GetIntSlice("max-chats")

			client, err := newClient(cmd, cfg, commcoop.Options{})
			if err != nil {
				return err
			}
			defer client.Close()

			out := cmd.OutOrStdout()
			interactive := isTerminal(cmd.ErrOrStderr())
			summary, err := client.Sweep(cmd.Context(), commcoop.SweepRequest{
				Base:           cfg,
				Populations:    pops,
				States:         states,
				Tokens:         tokens,
				MaxChatLengths: chats,
				Progress: func(done, total int, point stats.SweepPoint) {
					if interactive {
						fmt.Fprintf(cmd.ErrOrStderr(), "point %d/%d run=%s\n", done, total, point.RunID)
					}
				},
			})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd, summary)
			}

			fmt.Fprintf(out, "sweep_id=%s points=%d\n", summary.ID, len(summary.Points))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "POP\tSTATES\tTOKENS\tMAX_CHAT\tCOOPERATE\tDEFECT\tCHAT\tRUN")
			for _, p := range summary.Points {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%.4f\t%.4f\t%.3f\t%s\n",
					p.PopulationSize, p.States, p.Tokens, p.MaxChatLength,
					p.FinalCooperate, p.FinalDefect, p.FinalMeanChatLength, p.RunID)
			}
			return tw.Flush()
		},
	}
	addRunFlags(cmd)
	cmd.Flags().IntSlice("pops", nil, "Population sizes to sweep")
	cmd.Flags().IntSlice("states-list", nil, "Automaton sizes to sweep")
	cmd.Flags().IntSlice("tokens-list", nil, "Alphabet sizes to sweep")
	cmd.Flags().IntSlice("max-chats", nil, "Chat limits to sweep")
	return cmd
}
