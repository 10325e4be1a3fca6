package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cfgprep/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or inspect cfgprep.toml",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default cfgprep.toml in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return fmt.Errorf("failed to get force flag: %w", err)
		}
		if _, err := os.Stat(config.FileName); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", config.FileName)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		var buf bytes.Buffer
		if err := config.Write(&buf, config.Default()); err != nil {
			return err
		}
		if err := os.WriteFile(config.FileName, buf.Bytes(), 0o644); err != nil { //nolint:gosec // plain project config
			return fmt.Errorf("failed to write %s: %w", config.FileName, err)
		}
		if !quiet(cmd) {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", config.FileName)
		}
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return config.Write(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
