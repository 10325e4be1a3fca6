// Package irfile reads and writes graph files.
//
// Two encodings exist: a TOML text form (*.cfg.toml) meant to be written by
// hand, and a compact msgpack form (*.cfgb) for machine-produced graphs.
package irfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cfgprep/internal/ir"
)

// Format selects a graph file encoding.
type Format uint8

const (
	FormatText Format = iota
	FormatBinary
)

// File name suffixes of the two encodings.
const (
	TextExt   = ".cfg.toml"
	BinaryExt = ".cfgb"
)

// ErrUnknownFormat is returned for paths that carry neither suffix.
var ErrUnknownFormat = errors.New("unknown graph file format")

func (f Format) String() string {
	if f == FormatBinary {
		return "binary"
	}
	return "text"
}

// Ext returns the file suffix of f.
func (f Format) Ext() string {
	if f == FormatBinary {
		return BinaryExt
	}
	return TextExt
}

// ParseFormat converts a flag or config value into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "toml":
		return FormatText, nil
	case "binary", "msgpack":
		return FormatBinary, nil
	default:
		return FormatText, fmt.Errorf("invalid graph format %q (expected: text|binary)", s)
	}
}

// FormatForPath infers the encoding from the file name.
func FormatForPath(path string) (Format, error) {
	switch {
	case strings.HasSuffix(path, TextExt):
		return FormatText, nil
	case strings.HasSuffix(path, BinaryExt):
		return FormatBinary, nil
	default:
		return FormatText, fmt.Errorf("%s: %w (want %s or %s)", path, ErrUnknownFormat, TextExt, BinaryExt)
	}
}

// StripExt removes the graph suffix from a file name.
func StripExt(path string) string {
	for _, ext := range []string{TextExt, BinaryExt} {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext)
		}
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// Decode parses data in the given format.
func Decode(data []byte, f Format) (*ir.Graph, error) {
	if f == FormatBinary {
		return DecodeBinary(bytes.NewReader(data))
	}
	return DecodeText(data)
}

// Encode writes g to w in the given format.
func Encode(w io.Writer, g *ir.Graph, f Format) error {
	if f == FormatBinary {
		return EncodeBinary(w, g)
	}
	return EncodeText(w, g)
}

// Load reads and decodes the graph file at path. It also returns the raw
// bytes, which callers use as a cache key.
func Load(path string) (*ir.Graph, []byte, error) {
	f, err := FormatForPath(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read graph: %w", err)
	}
	g, err := Decode(data, f)
	if err != nil {
		return nil, data, fmt.Errorf("%s: %w", path, err)
	}
	if g.Name == "" {
		g.Name = filepath.Base(StripExt(path))
	}
	return g, data, nil
}

// Save writes g to path, choosing the encoding from the suffix.
func Save(path string, g *ir.Graph) error {
	f, err := FormatForPath(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, g, f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil { //nolint:gosec // graph files are not secret
		return fmt.Errorf("failed to write graph: %w", err)
	}
	return nil
}
