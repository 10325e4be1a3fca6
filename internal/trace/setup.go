package trace

import (
	"fmt"
	"io"
	"os"
)

const defaultRingSize = 4096

// StorageMode selects where events go.
type StorageMode uint8

const (
	ModeStream StorageMode = iota + 1
	ModeRing
	ModeBoth
)

var modeNames = []string{"", "stream", "ring", "both"}

func (m StorageMode) String() string { return nameOf(modeNames, int(m)) }

// ParseMode converts a --trace-mode value.
func ParseMode(s string) (StorageMode, error) {
	i, err := lookup("mode", modeNames, s)
	if err != nil {
		return ModeRing, err
	}
	return StorageMode(i), nil //nolint:gosec // G115: index into a four-entry table
}

// Config describes the tracer built by New.
type Config struct {
	Level  Level
	Mode   StorageMode
	Format Format
	// Output takes precedence over OutputPath. OutputPath "-" or "" means
	// stderr; any other path is created and closed by the tracer.
	Output     io.Writer
	OutputPath string
	RingSize   int
}

// New builds the tracer described by cfg. LevelOff yields Nop.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	if cfg.Format == FormatAuto {
		cfg.Format = FormatText
		if cfg.OutputPath != "" && cfg.OutputPath != "-" {
			cfg.Format = formatFor(cfg.OutputPath)
		}
	}

	switch cfg.Mode {
	case ModeStream:
		return openStream(cfg)
	case ModeRing:
		return NewRingTracer(cfg.RingSize, cfg.Level), nil
	case ModeBoth:
		st, err := openStream(cfg)
		if err != nil {
			return nil, err
		}
		return NewMultiTracer(cfg.Level, st, NewRingTracer(cfg.RingSize, cfg.Level)), nil
	default:
		return nil, fmt.Errorf("unknown trace mode %v", cfg.Mode)
	}
}

func openStream(cfg Config) (*StreamTracer, error) {
	switch {
	case cfg.Output != nil:
		return NewStreamTracer(cfg.Output, cfg.Level, cfg.Format), nil
	case cfg.OutputPath == "" || cfg.OutputPath == "-":
		return NewStreamTracer(os.Stderr, cfg.Level, cfg.Format), nil
	}
	f, err := os.Create(cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("open trace output: %w", err)
	}
	st := NewStreamTracer(f, cfg.Level, cfg.Format)
	st.closer = f
	return st, nil
}
