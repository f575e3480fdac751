package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"commcoop/pkg/commcoop"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			client, err := newClient(cmd, cfg, commcoop.Options{})
			if err != nil {
				return err
			}
			defer client.Close()

			runs, err := client.Runs(cmd.Context(), commcoop.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd, runs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tCREATED\tVARIANT\tPOP\tGENS\tSEED\tCOOPERATE\tCHAT")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%.4f\t%.3f\n",
					r.RunID, createdAgo(r.CreatedAtUTC), r.Variant, r.Population, r.Generations, r.Seed,
					r.FinalCooperate, r.FinalMeanChatLength)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum runs to list")
	return cmd
}

func newGenerationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generations",
		Short: "Print the per-generation statistics of a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runID, _ := cmd.Flags().GetString("run-id")
			latest, _ := cmd.Flags().GetBool("latest")
			limit, _ := cmd.Flags().GetInt("limit")
			client, err := newClient(cmd, cfg, commcoop.Options{})
			if err != nil {
				return err
			}
			defer client.Close()

			history, err := client.Generations(cmd.Context(), commcoop.GenerationsRequest{RunID: runID, Latest: latest, Limit: limit})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd, history)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GEN\tGAMES\tCOOPERATE\tDEFECT\tNO_ACTION\tCHAT\tDIVERSITY")
			for _, g := range history {
				fmt.Fprintf(tw, "%d\t%d\t%.4f\t%.4f\t%d\t%.3f\t%d\n",
					g.Generation, g.Games, g.ProportionCooperate, g.ProportionDefect, g.NoActions, g.MeanChatLength, g.Diversity)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("run-id", "", "Run to show")
	cmd.Flags().Bool("latest", false, "Show the newest run")
	cmd.Flags().Int("limit", 0, "Maximum generations to print (0 for all)")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts to another directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runID, _ := cmd.Flags().GetString("run-id")
			latest, _ := cmd.Flags().GetBool("latest")
			outDir, _ := cmd.Flags().GetString("out")
			client, err := newClient(cmd, cfg, commcoop.Options{})
			if err != nil {
				return err
			}
			defer client.Close()

			exported, err := client.Export(cmd.Context(), commcoop.ExportRequest{RunID: runID, Latest: latest, OutDir: outDir})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd, exported)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().String("run-id", "", "Run to export")
	cmd.Flags().Bool("latest", false, "Export the newest run")
	cmd.Flags().String("out", "", "Destination directory")
	return cmd
}

func newLineageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Print parent links and operators of a run's agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runID, _ := cmd.Flags().GetString("run-id")
			latest, _ := cmd.Flags().GetBool("latest")
			limit, _ := cmd.Flags().GetInt("limit")
			client, err := newClient(cmd, cfg, commcoop.Options{})
			if err != nil {
				return err
			}
			defer client.Close()

			lineage, err := client.Lineage(cmd.Context(), commcoop.LineageRequest{RunID: runID, Latest: latest, Limit: limit})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd, lineage)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GEN\tAGENT\tPARENT\tOPERATION\tFINGERPRINT")
			for _, rec := range lineage {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", rec.Generation, rec.AgentID, rec.ParentID, rec.Operation, rec.Fingerprint)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("run-id", "", "Run to show")
	cmd.Flags().Bool("latest", false, "Show the newest run")
	cmd.Flags().Int("limit", 50, "Maximum records to print (0 for all)")
	return cmd
}
