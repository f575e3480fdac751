package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"commcoop/internal/config"
	"commcoop/pkg/commcoop"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the store and optionally write a starter configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			writeConfig, _ := cmd.Flags().GetString("write-config")
			if writeConfig != "" {
				if _, err := os.Stat(writeConfig); err == nil {
					return fmt.Errorf("config %s already exists", writeConfig)
				}
				data, err := config.Marshal(cfg)
				if err != nil {
					return err
				}
				if err := os.WriteFile(writeConfig, data, 0o644); err != nil {
					return fmt.Errorf("write config: %w", err)
				}
			}

			client, err := newClient(cmd, cfg, commcoop.Options{})
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Init(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized store=%s", cfg.Store)
			if cfg.Store == "sqlite" {
				fmt.Fprintf(cmd.OutOrStdout(), " db=%s", cfg.DBPath)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().String("write-config", "", "Write the effective configuration as YAML to this path")
	return cmd
}
