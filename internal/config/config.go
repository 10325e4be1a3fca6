// Package config loads cfgprep.toml, the explicit configuration value that
// selects which preparation stages run and how the driver behaves.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up from the working directory
// upward.
const FileName = "cfgprep.toml"

// Emit kinds accepted in [output].emit.
const (
	EmitGraph = "graph"
	EmitOrder = "order"
	EmitStats = "stats"
)

var emitKinds = []string{EmitGraph, EmitOrder, EmitStats}

// Pipeline selects the stages applied to every graph.
type Pipeline struct {
	SpecialRPO        bool `toml:"special_rpo"`
	PropagateDeferred bool `toml:"propagate_deferred"`
	EliminateDeadCode bool `toml:"eliminate_dead_code"`
	ForwardPhis       bool `toml:"forward_phis"`
	Verify            bool `toml:"verify"`
}

// Driver controls multi-file processing.
type Driver struct {
	// Jobs limits concurrent files; 0 means GOMAXPROCS.
	Jobs     int    `toml:"jobs"`
	Cache    bool   `toml:"cache"`
	CacheDir string `toml:"cache_dir"`
}

// Output controls what a run writes.
type Output struct {
	Format string   `toml:"format"`
	Emit   []string `toml:"emit"`
	Dir    string   `toml:"dir"`
}

// Config is the whole file.
type Config struct {
	Pipeline Pipeline `toml:"pipeline"`
	Driver   Driver   `toml:"driver"`
	Output   Output   `toml:"output"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Pipeline: Pipeline{
			SpecialRPO:        true,
			PropagateDeferred: true,
			EliminateDeadCode: true,
			ForwardPhis:       false,
			Verify:            true,
		},
		Driver: Driver{Cache: true},
		Output: Output{Format: "text", Emit: []string{EmitGraph}},
	}
}

// Find looks for FileName in startDir and its parents.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load reads path on top of Default. Keys missing from the file keep their
// default; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	// Relative directories are relative to the file, not the process.
	base := filepath.Dir(path)
	if meta.IsDefined("driver", "cache_dir") && cfg.Driver.CacheDir != "" && !filepath.IsAbs(cfg.Driver.CacheDir) {
		cfg.Driver.CacheDir = filepath.Join(base, cfg.Driver.CacheDir)
	}
	if meta.IsDefined("output", "dir") && cfg.Output.Dir != "" && !filepath.IsAbs(cfg.Output.Dir) {
		cfg.Output.Dir = filepath.Join(base, cfg.Output.Dir)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Resolve loads the file found from startDir, or returns Default when there
// is none. explicit, when set, names the file to load instead.
func Resolve(startDir, explicit string) (Config, string, error) {
	if explicit != "" {
		cfg, err := Load(explicit)
		return cfg, explicit, err
	}
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, "", err
	}
	if !ok {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Driver.Jobs < 0 {
		errs = append(errs, fmt.Errorf("[driver].jobs must be >= 0, got %d", c.Driver.Jobs))
	}
	switch strings.ToLower(c.Output.Format) {
	case "text", "binary":
	default:
		errs = append(errs, fmt.Errorf("[output].format must be text or binary, got %q", c.Output.Format))
	}
	for _, e := range c.Output.Emit {
		if !slices.Contains(emitKinds, e) {
			errs = append(errs, fmt.Errorf("[output].emit: unknown kind %q (expected: %s)", e, strings.Join(emitKinds, "|")))
		}
	}
	if c.Pipeline.ForwardPhis && !c.Pipeline.EliminateDeadCode {
		errs = append(errs, errors.New("[pipeline].forward_phis requires eliminate_dead_code"))
	}
	return errors.Join(errs...)
}

// Emits reports whether kind is listed in [output].emit.
func (o *Output) Emits(kind string) bool {
	return slices.Contains(o.Emit, kind)
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
