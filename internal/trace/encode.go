package trace

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// processStart anchors the relative timestamps of the text format.
var processStart = time.Now()

// Format is the encoding of written events.
type Format uint8

const (
	// FormatAuto picks a format from the output path.
	FormatAuto Format = iota
	FormatText
	FormatNDJSON
	// FormatChrome writes a chrome://tracing document with one thread per
	// lane.
	FormatChrome
)

var formatNames = []string{"auto", "text", "ndjson", "chrome"}

func (f Format) String() string { return nameOf(formatNames, int(f)) }

// ParseFormat converts a --trace-format value; empty means auto.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatAuto, nil
	}
	i, err := lookup("format", formatNames, s)
	return Format(i), err //nolint:gosec // G115: index into a four-entry table
}

// formatFor picks the format for an output path.
func formatFor(path string) Format {
	switch {
	case strings.HasSuffix(path, ".ndjson"):
		return FormatNDJSON
	case strings.HasSuffix(path, ".json"):
		return FormatChrome
	default:
		return FormatText
	}
}

func appendEvent(dst []byte, ev *Event, format Format) []byte {
	switch format {
	case FormatNDJSON:
		return appendNDJSON(dst, ev)
	case FormatChrome:
		return appendChrome(dst, ev)
	default:
		return appendText(dst, ev)
	}
}

type jsonEvent struct {
	Time     string            `json:"time"`
	Seq      uint64            `json:"seq"`
	Kind     string            `json:"kind"`
	Scope    string            `json:"scope"`
	SpanID   uint64            `json:"span_id,omitempty"`
	ParentID uint64            `json:"parent_id,omitempty"`
	Lane     uint64            `json:"lane,omitempty"`
	Name     string            `json:"name"`
	Detail   string            `json:"detail,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

func appendNDJSON(dst []byte, ev *Event) []byte {
	data, _ := json.Marshal(jsonEvent{ //nolint:errchkjson // strings and integers only
		Time:     ev.Time.Format(time.RFC3339Nano),
		Seq:      ev.Seq,
		Kind:     ev.Kind.String(),
		Scope:    ev.Scope.String(),
		SpanID:   ev.SpanID,
		ParentID: ev.ParentID,
		Lane:     ev.Lane,
		Name:     ev.Name,
		Detail:   ev.Detail,
		Extra:    ev.Extra,
	})
	dst = append(dst, data...)
	return append(dst, '\n')
}

type chromeEvent struct {
	Name  string            `json:"name"`
	Cat   string            `json:"cat"`
	Ph    string            `json:"ph"`
	Ts    int64             `json:"ts"`
	Pid   int               `json:"pid"`
	Tid   uint64            `json:"tid"`
	Scope string            `json:"s,omitempty"`
	Args  map[string]string `json:"args,omitempty"`
}

func appendChrome(dst []byte, ev *Event) []byte {
	ce := chromeEvent{
		Name: ev.Name,
		Cat:  ev.Scope.String(),
		Ph:   "i",
		Ts:   ev.Time.UnixMicro(),
		Pid:  1,
		Tid:  ev.Lane,
		Args: ev.Extra,
	}
	switch ev.Kind {
	case KindSpanBegin:
		ce.Ph = "B"
	case KindSpanEnd:
		ce.Ph = "E"
	case KindHeartbeat:
		// Heartbeats belong to the whole process, not to a lane.
		ce.Scope = "p"
	default:
		ce.Scope = "t"
	}
	if ev.Detail != "" {
		ce.Args = maps.Clone(ev.Extra)
		if ce.Args == nil {
			ce.Args = make(map[string]string, 1)
		}
		ce.Args["detail"] = ev.Detail
	}
	data, _ := json.Marshal(ce) //nolint:errchkjson // strings and integers only
	return append(dst, data...)
}

var textMarks = map[Kind]string{
	KindSpanBegin: "→",
	KindSpanEnd:   "←",
	KindPoint:     "•",
	KindHeartbeat: "♡",
}

// appendText renders "[ms] #lane  <indent><mark> name (detail) {k=v, ...}".
func appendText(dst []byte, ev *Event) []byte {
	ms := float64(ev.Time.Sub(processStart)) / float64(time.Millisecond)
	dst = fmt.Appendf(dst, "[%9.3fms] #%-3d ", ms, ev.Lane)
	if ev.Scope > ScopeDriver {
		dst = append(dst, strings.Repeat("  ", int(ev.Scope-ScopeDriver))...)
	}
	dst = append(dst, textMarks[ev.Kind]...)
	dst = append(dst, ' ')
	dst = append(dst, ev.Name...)
	if ev.Detail != "" {
		dst = fmt.Appendf(dst, " (%s)", ev.Detail)
	}
	if len(ev.Extra) > 0 {
		pairs := make([]string, 0, len(ev.Extra))
		for _, k := range slices.Sorted(maps.Keys(ev.Extra)) {
			pairs = append(pairs, k+"="+ev.Extra[k])
		}
		dst = fmt.Appendf(dst, " {%s}", strings.Join(pairs, ", "))
	}
	return append(dst, '\n')
}
