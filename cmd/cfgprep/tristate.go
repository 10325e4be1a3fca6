package main

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// tristate is an auto|on|off flag value, used by --color and --ui. Bad
// values are rejected while flags are parsed.
type tristate string

const (
	modeAuto tristate = "auto"
	modeOn   tristate = "on"
	modeOff  tristate = "off"
)

var _ pflag.Value = (*tristate)(nil)

func (m *tristate) String() string { return string(*m) }

func (m *tristate) Type() string { return "auto|on|off" }

func (m *tristate) Set(value string) error {
	switch v := tristate(strings.ToLower(strings.TrimSpace(value))); v {
	case "":
		*m = modeAuto
	case modeAuto, modeOn, modeOff:
		*m = v
	default:
		return errors.New("expected auto, on or off")
	}
	return nil
}

// enabledFor resolves auto against whether f is a terminal.
func (m tristate) enabledFor(f *os.File) bool {
	if m == modeAuto {
		return isTerminal(f)
	}
	return m == modeOn
}
