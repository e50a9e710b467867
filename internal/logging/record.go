package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// lineTimeFormat matches the daemon's historical "%F_%T%.6f" timestamps.
const lineTimeFormat = "2006-01-02_15:04:05.000000"

// Field is one flattened structured attribute.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Record is an immutable log event as delivered to writers.
type Record struct {
	Time    time.Time  `json:"ts"`
	Level   slog.Level `json:"-"`
	Target  string     `json:"target"`
	Message string     `json:"msg"`
	File    string     `json:"file,omitempty"`
	Line    int        `json:"line,omitempty"`
	Fields  []Field    `json:"fields,omitempty"`
}

// LevelName returns the upper-case level label (TRACE..ERROR).
func (r Record) LevelName() string {
	return levelLabel(r.Level)
}

// Clone returns a copy that shares no mutable state with r.
func (r Record) Clone() Record {
	if len(r.Fields) > 0 {
		r.Fields = append([]Field(nil), r.Fields...)
	}
	return r
}

// Source renders "file:line" or "?file?:0" when unknown.
func (r Record) Source() string {
	file := r.File
	if file == "" {
		file = "?file?"
	} else {
		file = filepath.Base(file)
	}
	return file + ":" + strconv.Itoa(r.Line)
}

// Format renders the record as a single text line without a trailing newline:
//
//	2006-01-02_15:04:05.000000 - [ERROR] main.go:12 icxpd - message key=value
func (r Record) Format() string {
	var buf bytes.Buffer
	buf.Grow(96 + len(r.Message) + len(r.Fields)*24)
	buf.WriteString(r.Time.Local().Format(lineTimeFormat))
	buf.WriteString(" - [")
	buf.WriteString(r.LevelName())
	buf.WriteString("] ")
	buf.WriteString(r.Source())
	buf.WriteByte(' ')
	buf.WriteString(r.Target)
	buf.WriteString(" - ")
	if msg := strings.TrimSpace(r.Message); msg != "" {
		buf.WriteString(msg)
	} else {
		buf.WriteString("(no message)")
	}
	for _, f := range r.Fields {
		if f.Key == "" {
			continue
		}
		buf.WriteByte(' ')
		buf.WriteString(f.Key)
		buf.WriteByte('=')
		buf.WriteString(quoteIfNeeded(f.Value))
	}
	return buf.String()
}

// MarshalJSON adds the level label alongside the record fields.
func (r Record) MarshalJSON() ([]byte, error) {
	type alias Record
	return json.Marshal(struct {
		alias
		Level string `json:"level"`
	}{alias: alias(r), Level: r.LevelName()})
}

// UnmarshalJSON restores a record written by MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	var aux struct {
		alias
		Level string `json:"level"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Record(aux.alias)
	level, _ := ParseLevel(aux.Level)
	r.Level = level
	return nil
}

func flattenAttrs(dst *[]Field, prefix []string, attrs []slog.Attr) {
	for _, attr := range attrs {
		flattenAttr(dst, prefix, attr)
	}
}

func flattenAttr(dst *[]Field, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = appendPrefix(prefix, attr.Key)
		}
		flattenAttrs(dst, next, attr.Value.Group())
		return
	}
	key := attr.Key
	if len(prefix) > 0 {
		if key != "" {
			key = strings.Join(append(append([]string(nil), prefix...), key), ".")
		} else {
			key = strings.Join(prefix, ".")
		}
	}
	*dst = append(*dst, Field{Key: key, Value: formatValue(attr.Value)})
}

func appendPrefix(prefix []string, value string) []string {
	out := make([]string, len(prefix)+1)
	copy(out, prefix)
	out[len(prefix)] = value
	return out
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}
