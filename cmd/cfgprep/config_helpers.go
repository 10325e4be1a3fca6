package main

import (
	"github.com/spf13/cobra"

	"cfgprep/internal/config"
	"cfgprep/internal/driver"
)

const appName = "cfgprep"

// loadConfig resolves cfgprep.toml (or --config) and applies the command's
// flags on top. Only flags the user actually set override the file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	root := &flagReader{fs: cmd.Root().PersistentFlags()}
	explicit := root.str("config")
	if root.err != nil {
		return config.Config{}, root.err
	}
	cfg, _, err := config.Resolve(".", explicit)
	if err != nil {
		return config.Config{}, err
	}

	r := &flagReader{fs: cmd.Flags()}
	override(r, &cfg.Driver.Jobs, "jobs", r.integer)
	override(r, &cfg.Output.Emit, "emit", r.strings)
	override(r, &cfg.Output.Dir, "out-dir", r.str)
	override(r, &cfg.Output.Format, "format", r.str)
	override(r, &cfg.Pipeline.ForwardPhis, "forward-phis", r.boolean)
	if r.fs.Changed("no-cache") {
		cfg.Driver.Cache = !r.boolean("no-cache")
	}
	if r.fs.Changed("no-dce") {
		cfg.Pipeline.EliminateDeadCode = !r.boolean("no-dce")
		cfg.Pipeline.ForwardPhis = cfg.Pipeline.ForwardPhis && cfg.Pipeline.EliminateDeadCode
	}
	if r.err != nil {
		return cfg, r.err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// openCache opens the configured result cache, or returns nil when caching
// is off.
func openCache(cfg *config.Config) (*driver.DiskCache, error) {
	if !cfg.Driver.Cache {
		return nil, nil
	}
	dir, err := cacheDir(cfg)
	if err != nil {
		return nil, err
	}
	return driver.OpenDiskCache(dir)
}

func cacheDir(cfg *config.Config) (string, error) {
	if cfg.Driver.CacheDir != "" {
		return cfg.Driver.CacheDir, nil
	}
	return driver.DefaultCacheDir(appName)
}
