package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// flagReader reads several flags and keeps the first lookup error, so
// callers check once after reading everything they need.
type flagReader struct {
	fs  *pflag.FlagSet
	err error
}

func (r *flagReader) note(name string, err error) {
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("flag --%s: %w", name, err)
	}
}

func (r *flagReader) str(name string) string {
	v, err := r.fs.GetString(name)
	r.note(name, err)
	return v
}

func (r *flagReader) integer(name string) int {
	v, err := r.fs.GetInt(name)
	r.note(name, err)
	return v
}

func (r *flagReader) boolean(name string) bool {
	v, err := r.fs.GetBool(name)
	r.note(name, err)
	return v
}

func (r *flagReader) strings(name string) []string {
	v, err := r.fs.GetStringSlice(name)
	r.note(name, err)
	return v
}

func (r *flagReader) duration(name string) time.Duration {
	v, err := r.fs.GetDuration(name)
	r.note(name, err)
	return v
}

// override reads name into dst with get, but only when the user set it.
func override[T any](r *flagReader, dst *T, name string, get func(string) T) {
	if r.fs.Changed(name) {
		*dst = get(name)
	}
}
