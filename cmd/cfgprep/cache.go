package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cfgprep/internal/driver"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the result cache",
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove every cached result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir, err := cacheDir(&cfg)
		if err != nil {
			return err
		}
		cache, err := driver.OpenDiskCache(dir)
		if err != nil {
			return err
		}
		if err := cache.DropAll(); err != nil {
			return fmt.Errorf("failed to clean cache: %w", err)
		}
		if !quiet(cmd) {
			fmt.Fprintf(cmd.OutOrStdout(), "cleaned %s\n", dir)
		}
		return nil
	},
}

var cacheDirCmd = &cobra.Command{
	Use:   "dir",
	Short: "Print the cache directory and its size",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir, err := cacheDir(&cfg)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dir)
		if quiet(cmd) {
			return nil
		}
		cache, err := driver.OpenDiskCache(dir)
		if err != nil {
			return err
		}
		usage, err := cache.Usage()
		if err != nil {
			return fmt.Errorf("scan cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", usage)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheCleanCmd)
	cacheCmd.AddCommand(cacheDirCmd)
}
